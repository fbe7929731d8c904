package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/schoolhub-dev/timetable-api/internal/models"
	appErrors "github.com/schoolhub-dev/timetable-api/pkg/errors"
	"github.com/schoolhub-dev/timetable-api/pkg/export"
)

// ExportFormat selects the rendered output type.
type ExportFormat string

const (
	ExportFormatCSV ExportFormat = "csv"
	ExportFormatPDF ExportFormat = "pdf"
)

// ParseExportFormat normalises a format query value.
func ParseExportFormat(raw string) (ExportFormat, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "pdf":
		return ExportFormatPDF, nil
	case "csv":
		return ExportFormatCSV, nil
	default:
		return "", fmt.Errorf("unsupported export format %q", raw)
	}
}

type exportTimetableReader interface {
	FindByClass(ctx context.Context, classID, academicYear string) (*models.Timetable, error)
}

type exportClassReader interface {
	FindByID(ctx context.Context, id string) (*models.Class, error)
}

type exportNameResolver interface {
	SubjectNames(ctx context.Context, ids []string) (map[string]string, error)
	TeacherNames(ctx context.Context, ids []string) (map[string]string, error)
}

type csvRenderer interface {
	Render(data export.Grid) ([]byte, error)
}

type pdfRenderer interface {
	Render(data export.Grid, title string) ([]byte, error)
}

type exportArchiver interface {
	Save(filename string, data []byte) (string, error)
}

// ExportResult carries a rendered timetable document.
type ExportResult struct {
	Payload     []byte
	ContentType string
	Filename    string
}

// ExportService renders a class's saved timetable into printable documents.
type ExportService struct {
	timetables   exportTimetableReader
	classes      exportClassReader
	names        exportNameResolver
	grid         *PeriodGrid
	csv          csvRenderer
	pdf          pdfRenderer
	archive      exportArchiver
	logger       *zap.Logger
	academicYear string
}

// NewExportService constructs an ExportService. A nil archive disables the
// on-disk copy of rendered documents.
func NewExportService(timetables exportTimetableReader, classes exportClassReader, names exportNameResolver, grid *PeriodGrid, academicYear string, logger *zap.Logger, csv csvRenderer, pdf pdfRenderer, archive exportArchiver) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if grid == nil {
		grid = DefaultPeriodGrid()
	}
	if csv == nil {
		csv = export.NewCSVExporter()
	}
	if pdf == nil {
		pdf = export.NewPDFExporter()
	}
	return &ExportService{
		timetables:   timetables,
		classes:      classes,
		names:        names,
		grid:         grid,
		csv:          csv,
		pdf:          pdf,
		archive:      archive,
		logger:       logger,
		academicYear: academicYear,
	}
}

// Export renders the persisted timetable for the class in the given format.
func (s *ExportService) Export(ctx context.Context, classID string, format ExportFormat) (*ExportResult, error) {
	class, err := s.classes.FindByID(ctx, classID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "class not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class")
	}

	timetable, err := s.timetables.FindByClass(ctx, classID, s.academicYear)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "no timetable found for this class")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load timetable")
	}

	grid, err := s.buildGrid(ctx, timetable.Slots)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to build export grid")
	}

	title := fmt.Sprintf("Timetable %s %s", class.Name, timetable.AcademicYear)
	var payload []byte
	var contentType string
	switch format {
	case ExportFormatCSV:
		payload, err = s.csv.Render(grid)
		contentType = "text/csv"
	case ExportFormatPDF:
		payload, err = s.pdf.Render(grid, title)
		contentType = "application/pdf"
	default:
		err = fmt.Errorf("unsupported export format %s", format)
	}
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render export")
	}

	filename := s.buildFilename(class.Name, format)
	if s.archive != nil {
		// archive failures never block the download itself
		if _, archiveErr := s.archive.Save(filename, payload); archiveErr != nil {
			s.logger.Warn("export archive write failed",
				zap.String("class_id", classID),
				zap.String("filename", filename),
				zap.Error(archiveErr),
			)
		}
	}

	return &ExportResult{
		Payload:     payload,
		ContentType: contentType,
		Filename:    filename,
	}, nil
}

// buildGrid pivots the slot list into one row per period with a column per
// school day.
func (s *ExportService) buildGrid(ctx context.Context, slots []models.TimetableSlot) (export.Grid, error) {
	subjectNames, teacherNames, err := s.resolveNames(ctx, slots)
	if err != nil {
		return export.Grid{}, err
	}

	bySlot := make(map[cellKey]models.TimetableSlot, len(slots))
	for _, slot := range slots {
		bySlot[cellKey{day: slot.Day, period: slot.Period}] = slot
	}

	headers := []string{"Period", "Time"}
	for _, day := range s.grid.Days() {
		headers = append(headers, dayLabel(day))
	}

	rows := make([]map[string]string, 0, len(s.grid.Periods()))
	breakRows := make(map[int]bool)
	for i, period := range s.grid.Periods() {
		row := map[string]string{
			"Period": fmt.Sprintf("%d", period.Number),
			"Time":   fmt.Sprintf("%s-%s", period.StartTime, period.EndTime),
		}
		if period.IsBreak {
			breakRows[i] = true
			for _, day := range s.grid.Days() {
				row[dayLabel(day)] = "BREAK"
			}
			rows = append(rows, row)
			continue
		}
		for _, day := range s.grid.Days() {
			slot, ok := bySlot[cellKey{day: day, period: period.Number}]
			row[dayLabel(day)] = formatCell(slot, ok, subjectNames, teacherNames)
		}
		rows = append(rows, row)
	}

	return export.Grid{Headers: headers, Rows: rows, BreakRows: breakRows}, nil
}

func (s *ExportService) resolveNames(ctx context.Context, slots []models.TimetableSlot) (map[string]string, map[string]string, error) {
	subjectIDs := make([]string, 0, len(slots))
	teacherIDs := make([]string, 0, len(slots))
	seenSubject := make(map[string]bool)
	seenTeacher := make(map[string]bool)
	for _, slot := range slots {
		if slot.SubjectID != nil && !seenSubject[*slot.SubjectID] {
			seenSubject[*slot.SubjectID] = true
			subjectIDs = append(subjectIDs, *slot.SubjectID)
		}
		if slot.TeacherID != nil && !seenTeacher[*slot.TeacherID] {
			seenTeacher[*slot.TeacherID] = true
			teacherIDs = append(teacherIDs, *slot.TeacherID)
		}
	}
	subjectNames, err := s.names.SubjectNames(ctx, subjectIDs)
	if err != nil {
		return nil, nil, err
	}
	teacherNames, err := s.names.TeacherNames(ctx, teacherIDs)
	if err != nil {
		return nil, nil, err
	}
	return subjectNames, teacherNames, nil
}

func (s *ExportService) buildFilename(className string, format ExportFormat) string {
	timestamp := time.Now().UTC().Format("20060102_150405")
	name := strings.ToLower(strings.ReplaceAll(className, " ", "_"))
	return fmt.Sprintf("timetable_%s_%s.%s", name, timestamp, format)
}

func formatCell(slot models.TimetableSlot, ok bool, subjectNames, teacherNames map[string]string) string {
	if !ok || slot.IsFree() {
		return "-"
	}
	subject := ""
	if slot.SubjectID != nil {
		subject = subjectNames[*slot.SubjectID]
		if subject == "" {
			subject = *slot.SubjectID
		}
	}
	if slot.TeacherID == nil {
		return subject
	}
	teacher := teacherNames[*slot.TeacherID]
	if teacher == "" {
		teacher = *slot.TeacherID
	}
	return fmt.Sprintf("%s (%s)", subject, teacher)
}

func dayLabel(day models.Weekday) string {
	raw := string(day)
	if raw == "" {
		return raw
	}
	return raw[:1] + strings.ToLower(raw[1:])
}
