package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/schoolhub-dev/timetable-api/internal/dto"
	"github.com/schoolhub-dev/timetable-api/internal/models"
	appErrors "github.com/schoolhub-dev/timetable-api/pkg/errors"
)

type timetableRepository interface {
	Create(ctx context.Context, timetable *models.Timetable, slots []models.TimetableSlot) error
	Replace(ctx context.Context, id string, slots []models.TimetableSlot) error
	FindByClass(ctx context.Context, classID, academicYear string) (*models.Timetable, error)
	FindByID(ctx context.Context, id string) (*models.Timetable, error)
	ListTeacherBookings(ctx context.Context, academicYear, excludeClassID string) ([]models.TeacherBooking, error)
}

type draftClassReader interface {
	FindByID(ctx context.Context, id string) (*models.Class, error)
}

type rosterReader interface {
	SubjectsForClass(ctx context.Context, classID string) ([]models.SubjectDemand, error)
	EligibleTeachers(ctx context.Context, subjectID string) ([]string, error)
}

type timetableCacheInvalidator interface {
	InvalidateTimetable(ctx context.Context, classID string)
}

// DraftConfig governs draft behaviour.
type DraftConfig struct {
	AcademicYear string
	Term         string
}

// DraftService owns the per-class draft lifecycle:
// Empty -> Generated -> Edited -> Saved. Drafts are ephemeral; nothing is
// persisted until an explicit save, so abandoning a draft has no side
// effects. Callers are serialized per class by the internal per-class lock.
type DraftService struct {
	classes    draftClassReader
	roster     rosterReader
	timetables timetableRepository
	generator  *TimetableGenerator
	detector   *ConflictDetector
	grid       *PeriodGrid
	cache      timetableCacheInvalidator
	validator  *validator.Validate
	logger     *zap.Logger
	cfg        DraftConfig

	drafts *draftStore
}

// NewDraftService wires draft lifecycle dependencies.
func NewDraftService(
	classes draftClassReader,
	roster rosterReader,
	timetables timetableRepository,
	generator *TimetableGenerator,
	cache timetableCacheInvalidator,
	validate *validator.Validate,
	logger *zap.Logger,
	cfg DraftConfig,
) *DraftService {
	if generator == nil {
		generator = NewTimetableGenerator(nil, nil, logger)
	}
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DraftService{
		classes:    classes,
		roster:     roster,
		timetables: timetables,
		generator:  generator,
		detector:   generator.detector,
		grid:       generator.grid,
		cache:      cache,
		validator:  validate,
		logger:     logger,
		cfg:        cfg,
		drafts:     newDraftStore(),
	}
}

// GeneratePreview builds a fresh draft grid for the class and never
// persists. Any prior unsaved edits for the class are discarded.
func (s *DraftService) GeneratePreview(ctx context.Context, classID string, opts dto.ScheduleOptions) (*dto.GenerationResponse, error) {
	if classID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "class id is required")
	}
	unlock := s.drafts.lock(classID)
	defer unlock()

	req, err := s.buildScheduleRequest(ctx, classID, opts)
	if err != nil {
		return nil, err
	}
	bookings, err := s.loadBookings(ctx, classID)
	if err != nil {
		return nil, err
	}

	result := s.generator.Generate(*req, bookings)
	conflicts := result.Conflicts
	if len(req.Demands) == 0 {
		conflicts = []models.SchedulingConflict{{
			Kind:   models.ConflictSubjectQuotaUnmet,
			Detail: "no subjects configured for this class",
		}}
	}

	s.drafts.put(&draft{
		classID: classID,
		state:   draftStateGenerated,
		dirty:   true,
		options: opts,
		slots:   gridToCells(result.Slots),
	})

	return &dto.GenerationResponse{
		ClassID:   classID,
		Slots:     result.Slots,
		Stats:     result.Stats,
		Conflicts: conflicts,
	}, nil
}

// Regenerate discards the class draft, edits included, and builds a new one.
// This is an explicit, destructive, user-initiated action.
func (s *DraftService) Regenerate(ctx context.Context, classID string, opts dto.ScheduleOptions) (*dto.GenerationResponse, error) {
	return s.GeneratePreview(ctx, classID, opts)
}

// LoadExisting returns the persisted timetable for the class and seeds a
// clean Saved draft from it, enabling incremental edits.
func (s *DraftService) LoadExisting(ctx context.Context, classID string) (*models.Timetable, error) {
	if classID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "class id is required")
	}
	unlock := s.drafts.lock(classID)
	defer unlock()
	return s.loadExistingLocked(ctx, classID)
}

func (s *DraftService) loadExistingLocked(ctx context.Context, classID string) (*models.Timetable, error) {
	timetable, err := s.timetables.FindByClass(ctx, classID, s.cfg.AcademicYear)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "no timetable found for this class")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load timetable")
	}

	s.drafts.put(&draft{
		classID:     classID,
		state:       draftStateSaved,
		dirty:       false,
		timetableID: timetable.ID,
		slots:       gridToCells(timetable.Slots),
	})
	return timetable, nil
}

// EditSlot patches one cell of the class draft, validating teacher
// double-booking against every other class's active timetable. Quota is
// advisory and deliberately not re-checked per edit. On rejection the draft
// is left unchanged.
func (s *DraftService) EditSlot(ctx context.Context, classID string, day models.Weekday, period int, patch dto.EditSlotRequest) (*models.TimetableSlot, error) {
	if err := s.validator.Struct(patch); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid slot patch")
	}
	if !day.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("invalid school day %q", string(day)))
	}
	if !s.grid.ValidPeriod(period) {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("invalid period %d", period))
	}
	if s.grid.IsBreak(period) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "break periods cannot carry a subject or teacher")
	}

	unlock := s.drafts.lock(classID)
	defer unlock()

	d, err := s.requireDraftLocked(ctx, classID)
	if err != nil {
		return nil, err
	}

	start, end, _ := s.grid.TimesFor(period)
	slot := models.TimetableSlot{
		Day:        day,
		Period:     period,
		StartTime:  start,
		EndTime:    end,
		SlotType:   models.SlotTypeRegular,
		SubjectID:  patch.SubjectID,
		TeacherID:  patch.TeacherID,
		RoomNumber: patch.RoomNumber,
		Notes:      patch.Notes,
	}

	if slot.TeacherID != nil {
		bookings, err := s.loadBookings(ctx, classID)
		if err != nil {
			return nil, err
		}
		if conflicts := s.detector.CheckSlot(slot, classID, bookings); len(conflicts) > 0 {
			c := conflicts[0]
			booked := &models.TeacherBookedError{TeacherID: c.TeacherID, ClassID: bookings.BookedClass(c.TeacherID, day, period), Day: day, Period: period}
			return nil, appErrors.Wrap(booked, appErrors.ErrConflict.Code, appErrors.ErrConflict.Status, c.Detail)
		}
	}

	d.slots[cellKey{day: day, period: period}] = slot
	d.state = draftStateEdited
	d.dirty = true
	return &slot, nil
}

// DeleteSlot clears a cell back to a free period.
func (s *DraftService) DeleteSlot(ctx context.Context, classID string, day models.Weekday, period int) error {
	if !day.Valid() {
		return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("invalid school day %q", string(day)))
	}
	if !s.grid.ValidPeriod(period) {
		return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("invalid period %d", period))
	}
	if s.grid.IsBreak(period) {
		return appErrors.Clone(appErrors.ErrValidation, "break periods cannot be deleted")
	}

	unlock := s.drafts.lock(classID)
	defer unlock()

	d, err := s.requireDraftLocked(ctx, classID)
	if err != nil {
		return err
	}

	start, end, _ := s.grid.TimesFor(period)
	d.slots[cellKey{day: day, period: period}] = models.TimetableSlot{
		Day:       day,
		Period:    period,
		StartTime: start,
		EndTime:   end,
		SlotType:  models.SlotTypeRegular,
	}
	d.state = draftStateEdited
	d.dirty = true
	return nil
}

// SaveDraft persists the class draft. A first-time save creates the
// timetable; when the (class, academic year) pair already has one, the
// typed conflict carrying the existing id is returned and nothing is
// overwritten - the caller resolves it through ReplaceDraft. Saving a clean
// Saved draft is a no-op returning the linked id.
func (s *DraftService) SaveDraft(ctx context.Context, classID string) (*dto.SaveDraftResponse, error) {
	unlock := s.drafts.lock(classID)
	defer unlock()

	d := s.drafts.get(classID)
	if d == nil {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "no draft to save; generate a preview first")
	}
	if d.state == draftStateSaved && !d.dirty {
		return &dto.SaveDraftResponse{TimetableID: d.timetableID}, nil
	}
	return s.persistLocked(ctx, d)
}

// ReplaceDraft links the draft to an existing timetable id and persists it
// as a replace-by-id. This is the explicit second step after SaveDraft
// reported a conflict; existing data is never silently overwritten.
func (s *DraftService) ReplaceDraft(ctx context.Context, classID, existingID string) (*dto.SaveDraftResponse, error) {
	if existingID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "existing timetable id is required")
	}

	unlock := s.drafts.lock(classID)
	defer unlock()

	d := s.drafts.get(classID)
	if d == nil {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "no draft to save; generate a preview first")
	}

	existing, err := s.timetables.FindByID(ctx, existingID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "existing timetable not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load existing timetable")
	}
	if existing.ClassID != classID {
		return nil, appErrors.Clone(appErrors.ErrValidation, "existing timetable belongs to a different class")
	}

	d.timetableID = existingID
	return s.persistLocked(ctx, d)
}

func (s *DraftService) persistLocked(ctx context.Context, d *draft) (*dto.SaveDraftResponse, error) {
	slots := cellsToGrid(d.slots)
	if err := s.detector.CheckUniqueness(slots); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "draft slot set is corrupt")
	}

	if d.timetableID == "" {
		timetable := &models.Timetable{
			ClassID:      d.classID,
			AcademicYear: s.cfg.AcademicYear,
			Term:         s.cfg.Term,
			IsActive:     true,
		}
		if err := s.timetables.Create(ctx, timetable, slots); err != nil {
			var exists *models.TimetableExistsError
			if errors.As(err, &exists) {
				return nil, appErrors.Wrap(exists, appErrors.ErrConflict.Code, appErrors.ErrConflict.Status, exists.Error())
			}
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create timetable")
		}
		d.timetableID = timetable.ID
	} else {
		if err := s.timetables.Replace(ctx, d.timetableID, slots); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to replace timetable")
		}
	}

	d.state = draftStateSaved
	d.dirty = false
	if s.cache != nil {
		s.cache.InvalidateTimetable(ctx, d.classID)
	}
	s.logger.Info("timetable saved",
		zap.String("class_id", d.classID),
		zap.String("timetable_id", d.timetableID),
	)
	return &dto.SaveDraftResponse{TimetableID: d.timetableID}, nil
}

// ScheduleClass runs the full generate-and-save pipeline for one class
// against an externally managed booking index. The bulk scheduler drives
// this once per class; the index is read here and extended by the caller
// after a successful save. Returns the persisted slot set.
func (s *DraftService) ScheduleClass(ctx context.Context, classID string, opts dto.ScheduleOptions, bookings TeacherBookings) ([]models.TimetableSlot, error) {
	unlock := s.drafts.lock(classID)
	defer unlock()

	req, err := s.buildScheduleRequest(ctx, classID, opts)
	if err != nil {
		return nil, err
	}

	result := s.generator.Generate(*req, bookings)
	d := &draft{
		classID: classID,
		state:   draftStateGenerated,
		dirty:   true,
		options: opts,
		slots:   gridToCells(result.Slots),
	}

	existing, err := s.timetables.FindByClass(ctx, classID, s.cfg.AcademicYear)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check existing timetable")
	}
	if existing != nil {
		if opts.PreserveExisting {
			exists := &models.TimetableExistsError{ExistingID: existing.ID, ClassID: classID, AcademicYear: s.cfg.AcademicYear}
			return nil, appErrors.Wrap(exists, appErrors.ErrConflict.Code, appErrors.ErrConflict.Status, exists.Error())
		}
		d.timetableID = existing.ID
	}

	s.drafts.put(d)
	if _, err := s.persistLocked(ctx, d); err != nil {
		return nil, err
	}
	return cellsToGrid(d.slots), nil
}

func (s *DraftService) buildScheduleRequest(ctx context.Context, classID string, opts dto.ScheduleOptions) (*ScheduleRequest, error) {
	if _, err := s.classes.FindByID(ctx, classID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "class not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class")
	}

	demands, err := s.roster.SubjectsForClass(ctx, classID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class subjects")
	}

	teachers := make(map[string][]string, len(demands))
	for _, demand := range demands {
		eligible, err := s.roster.EligibleTeachers(ctx, demand.SubjectID)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load eligible teachers")
		}
		teachers[demand.SubjectID] = eligible
	}

	return &ScheduleRequest{
		ClassID:          classID,
		Demands:          demands,
		EligibleTeachers: teachers,
		Options:          opts,
	}, nil
}

func (s *DraftService) loadBookings(ctx context.Context, classID string) (TeacherBookings, error) {
	rows, err := s.timetables.ListTeacherBookings(ctx, s.cfg.AcademicYear, classID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load teacher bookings")
	}
	bookings := TeacherBookings{}
	for _, row := range rows {
		bookings.Book(row.TeacherID, row.Day, row.Period, row.ClassID)
	}
	return bookings, nil
}

// requireDraftLocked returns the class draft, implicitly loading a saved
// timetable into a clean draft when no draft is in memory yet.
func (s *DraftService) requireDraftLocked(ctx context.Context, classID string) (*draft, error) {
	if d := s.drafts.get(classID); d != nil {
		return d, nil
	}
	if _, err := s.loadExistingLocked(ctx, classID); err != nil {
		var appErr *appErrors.Error
		if errors.As(err, &appErr) && appErr.Code == appErrors.ErrNotFound.Code {
			return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "no draft or saved timetable for this class; generate a preview first")
		}
		return nil, err
	}
	return s.drafts.get(classID), nil
}

// --- Draft store ---

type draftState string

const (
	draftStateGenerated draftState = "generated"
	draftStateEdited    draftState = "edited"
	draftStateSaved     draftState = "saved"
)

type cellKey struct {
	day    models.Weekday
	period int
}

// draft is the ephemeral working slot set for one class. Never persisted.
type draft struct {
	classID     string
	state       draftState
	dirty       bool
	timetableID string
	options     dto.ScheduleOptions
	slots       map[cellKey]models.TimetableSlot
}

// draftStore keeps at most one draft per class and hands out the per-class
// lock that serializes generate/edit/save for that class.
type draftStore struct {
	mu     sync.Mutex
	drafts map[string]*draft
	locks  map[string]*sync.Mutex
}

func newDraftStore() *draftStore {
	return &draftStore{
		drafts: make(map[string]*draft),
		locks:  make(map[string]*sync.Mutex),
	}
}

func (s *draftStore) lock(classID string) func() {
	s.mu.Lock()
	l, ok := s.locks[classID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[classID] = l
	}
	s.mu.Unlock()
	l.Lock()
	return l.Unlock
}

func (s *draftStore) get(classID string) *draft {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.drafts[classID]
}

func (s *draftStore) put(d *draft) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.drafts[d.classID] = d
}

func gridToCells(slots []models.TimetableSlot) map[cellKey]models.TimetableSlot {
	cells := make(map[cellKey]models.TimetableSlot, len(slots))
	for _, slot := range slots {
		cells[cellKey{day: slot.Day, period: slot.Period}] = slot
	}
	return cells
}

func cellsToGrid(cells map[cellKey]models.TimetableSlot) []models.TimetableSlot {
	slots := make([]models.TimetableSlot, 0, len(cells))
	for _, slot := range cells {
		slots = append(slots, slot)
	}
	sortSlots(slots)
	return slots
}
