package service

import (
	"context"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/schoolhub-dev/timetable-api/internal/dto"
	"github.com/schoolhub-dev/timetable-api/internal/models"
	appErrors "github.com/schoolhub-dev/timetable-api/pkg/errors"
)

type bulkClassLister interface {
	ListByGrade(ctx context.Context, gradeLevel int) ([]models.Class, error)
}

type bulkBookingLister interface {
	ListTeacherBookings(ctx context.Context, academicYear, excludeClassID string) ([]models.TeacherBooking, error)
}

type classScheduler interface {
	ScheduleClass(ctx context.Context, classID string, opts dto.ScheduleOptions, bookings TeacherBookings) ([]models.TimetableSlot, error)
}

// BulkScheduleService schedules every class in a grade level in one run.
// Classes are processed strictly in sequence because each class's generation
// must see the teacher commitments saved by the classes before it; one
// class's failure never aborts the batch.
type BulkScheduleService struct {
	classes      bulkClassLister
	bookings     bulkBookingLister
	scheduler    classScheduler
	validator    *validator.Validate
	logger       *zap.Logger
	academicYear string
}

// NewBulkScheduleService wires the bulk scheduler.
func NewBulkScheduleService(
	classes bulkClassLister,
	bookings bulkBookingLister,
	scheduler classScheduler,
	validate *validator.Validate,
	logger *zap.Logger,
	academicYear string,
) *BulkScheduleService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BulkScheduleService{
		classes:      classes,
		bookings:     bookings,
		scheduler:    scheduler,
		validator:    validate,
		logger:       logger,
		academicYear: academicYear,
	}
}

// Run generates and saves a timetable for each class of the grade, in stable
// class-id order, collecting per-class outcomes. Partial failure is part of
// the result, never an error.
func (s *BulkScheduleService) Run(ctx context.Context, req dto.BulkScheduleRequest) (*dto.BulkJobResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid bulk schedule payload")
	}

	classes, err := s.classes.ListByGrade(ctx, req.GradeLevel)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list classes for grade")
	}
	if len(classes) == 0 {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "no classes found for this grade level")
	}

	index, err := s.loadIndex(ctx)
	if err != nil {
		return nil, err
	}

	result := &dto.BulkJobResult{GradeLevel: req.GradeLevel}
	for _, class := range classes {
		slots, schedErr := s.scheduler.ScheduleClass(ctx, class.ID, req.Options, index)
		if schedErr != nil {
			result.Results = append(result.Results, dto.BulkClassOutcome{
				ClassID:   class.ID,
				ClassName: class.Name,
				Outcome:   dto.BulkOutcomeFailure,
				Error:     appErrors.FromError(schedErr).Message,
			})
			result.FailureCount++
			s.logger.Warn("bulk schedule class failed",
				zap.String("class_id", class.ID),
				zap.Int("grade_level", req.GradeLevel),
				zap.Error(schedErr),
			)
			continue
		}

		// the saved grid replaces whatever this class previously held in
		// the index, so the next class generates against fresh commitments
		index.ReleaseClass(class.ID)
		index.BookSlots(class.ID, slots)

		result.Results = append(result.Results, dto.BulkClassOutcome{
			ClassID:   class.ID,
			ClassName: class.Name,
			Outcome:   dto.BulkOutcomeSuccess,
		})
		result.SuccessCount++
	}

	s.logger.Info("bulk schedule finished",
		zap.Int("grade_level", req.GradeLevel),
		zap.Int("succeeded", result.SuccessCount),
		zap.Int("failed", result.FailureCount),
	)
	return result, nil
}

func (s *BulkScheduleService) loadIndex(ctx context.Context) (TeacherBookings, error) {
	rows, err := s.bookings.ListTeacherBookings(ctx, s.academicYear, "")
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load teacher bookings")
	}
	index := TeacherBookings{}
	for _, row := range rows {
		index.Book(row.TeacherID, row.Day, row.Period, row.ClassID)
	}
	return index, nil
}
