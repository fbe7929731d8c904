package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/schoolhub-dev/timetable-api/internal/models"
)

const pgUniqueViolation = "23505"

// TimetableRepository provides durable storage for timetables and their
// slot sets. The (class_id, academic_year) uniqueness constraint lives in
// the database and is the single source of truth for create conflicts.
type TimetableRepository struct {
	db *sqlx.DB
}

// NewTimetableRepository creates a new timetable repository.
func NewTimetableRepository(db *sqlx.DB) *TimetableRepository {
	return &TimetableRepository{db: db}
}

// Create stores a timetable header plus its full slot set in one
// transaction. A collision on (class_id, academic_year) is translated into
// models.TimetableExistsError carrying the existing id; nothing is written.
func (r *TimetableRepository) Create(ctx context.Context, timetable *models.Timetable, slots []models.TimetableSlot) error {
	if timetable == nil {
		return fmt.Errorf("timetable payload is nil")
	}
	if timetable.ClassID == "" || timetable.AcademicYear == "" {
		return fmt.Errorf("class_id and academic_year are required")
	}
	if timetable.ID == "" {
		timetable.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	timetable.CreatedAt = now
	timetable.UpdatedAt = now

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create timetable: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	const insertHeader = `
INSERT INTO timetables (id, class_id, academic_year, term, is_active, created_at, updated_at)
VALUES (:id, :class_id, :academic_year, :term, :is_active, :created_at, :updated_at)`
	if _, err = sqlx.NamedExecContext(ctx, tx, insertHeader, timetable); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == pgUniqueViolation {
			_ = tx.Rollback()
			existingID, lookupErr := r.findIDByClass(ctx, timetable.ClassID, timetable.AcademicYear)
			if lookupErr != nil {
				err = fmt.Errorf("resolve conflicting timetable: %w", lookupErr)
				return err
			}
			err = &models.TimetableExistsError{
				ExistingID:   existingID,
				ClassID:      timetable.ClassID,
				AcademicYear: timetable.AcademicYear,
			}
			return err
		}
		err = fmt.Errorf("insert timetable: %w", err)
		return err
	}

	if err = r.insertSlots(ctx, tx, timetable.ID, slots); err != nil {
		return err
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit create timetable: %w", err)
	}
	return nil
}

// Replace swaps the entire slot set of an existing timetable in one
// transaction; the prior persisted state survives any failure.
func (r *TimetableRepository) Replace(ctx context.Context, id string, slots []models.TimetableSlot) error {
	if id == "" {
		return fmt.Errorf("timetable id is required")
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin replace timetable: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	res, updateErr := tx.ExecContext(ctx, `UPDATE timetables SET updated_at = $1 WHERE id = $2`, time.Now().UTC(), id)
	if updateErr != nil {
		err = fmt.Errorf("touch timetable: %w", updateErr)
		return err
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		err = sql.ErrNoRows
		return err
	}

	if _, err = tx.ExecContext(ctx, `DELETE FROM timetable_slots WHERE timetable_id = $1`, id); err != nil {
		err = fmt.Errorf("clear timetable slots: %w", err)
		return err
	}

	if err = r.insertSlots(ctx, tx, id, slots); err != nil {
		return err
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit replace timetable: %w", err)
	}
	return nil
}

func (r *TimetableRepository) insertSlots(ctx context.Context, tx *sqlx.Tx, timetableID string, slots []models.TimetableSlot) error {
	now := time.Now().UTC()
	const insertSlot = `
INSERT INTO timetable_slots (id, timetable_id, day, period, start_time, end_time, slot_type, subject_id, teacher_id, room_number, notes, created_at, updated_at)
VALUES (:id, :timetable_id, :day, :period, :start_time, :end_time, :slot_type, :subject_id, :teacher_id, :room_number, :notes, :created_at, :updated_at)`
	for i := range slots {
		payload := slots[i]
		if payload.ID == "" {
			payload.ID = uuid.NewString()
		}
		payload.TimetableID = timetableID
		payload.CreatedAt = now
		payload.UpdatedAt = now
		if _, err := sqlx.NamedExecContext(ctx, tx, insertSlot, &payload); err != nil {
			return fmt.Errorf("insert timetable slot: %w", err)
		}
		slots[i] = payload
	}
	return nil
}

// FindByClass loads the active timetable for a class in the academic year,
// slots ordered by day and period. Returns sql.ErrNoRows when absent.
func (r *TimetableRepository) FindByClass(ctx context.Context, classID, academicYear string) (*models.Timetable, error) {
	const query = `SELECT id, class_id, academic_year, term, is_active, created_at, updated_at
FROM timetables WHERE class_id = $1 AND academic_year = $2 AND is_active = TRUE`
	var timetable models.Timetable
	if err := r.db.GetContext(ctx, &timetable, query, classID, academicYear); err != nil {
		return nil, err
	}
	slots, err := r.listSlots(ctx, timetable.ID)
	if err != nil {
		return nil, err
	}
	timetable.Slots = slots
	return &timetable, nil
}

// FindByID loads a timetable with its slots by identifier.
func (r *TimetableRepository) FindByID(ctx context.Context, id string) (*models.Timetable, error) {
	const query = `SELECT id, class_id, academic_year, term, is_active, created_at, updated_at
FROM timetables WHERE id = $1`
	var timetable models.Timetable
	if err := r.db.GetContext(ctx, &timetable, query, id); err != nil {
		return nil, err
	}
	slots, err := r.listSlots(ctx, timetable.ID)
	if err != nil {
		return nil, err
	}
	timetable.Slots = slots
	return &timetable, nil
}

func (r *TimetableRepository) listSlots(ctx context.Context, timetableID string) ([]models.TimetableSlot, error) {
	const query = `SELECT id, timetable_id, day, period, start_time, end_time, slot_type, subject_id, teacher_id, room_number, notes, created_at, updated_at
FROM timetable_slots WHERE timetable_id = $1
ORDER BY CASE day
	WHEN 'MONDAY' THEN 1 WHEN 'TUESDAY' THEN 2 WHEN 'WEDNESDAY' THEN 3
	WHEN 'THURSDAY' THEN 4 WHEN 'FRIDAY' THEN 5 ELSE 6 END, period`
	var slots []models.TimetableSlot
	if err := r.db.SelectContext(ctx, &slots, query, timetableID); err != nil {
		return nil, fmt.Errorf("list timetable slots: %w", err)
	}
	return slots, nil
}

// ListTeacherBookings returns every taught (teacher, day, period, class)
// commitment across active timetables of the academic year. An exclude
// class id filters out the class being scheduled itself.
func (r *TimetableRepository) ListTeacherBookings(ctx context.Context, academicYear, excludeClassID string) ([]models.TeacherBooking, error) {
	query := `SELECT s.teacher_id, t.class_id, s.day, s.period
FROM timetable_slots s
JOIN timetables t ON t.id = s.timetable_id
WHERE t.academic_year = $1 AND t.is_active = TRUE AND s.teacher_id IS NOT NULL`
	args := []interface{}{academicYear}
	if excludeClassID != "" {
		query += " AND t.class_id <> $2"
		args = append(args, excludeClassID)
	}

	var bookings []models.TeacherBooking
	if err := r.db.SelectContext(ctx, &bookings, query, args...); err != nil {
		return nil, fmt.Errorf("list teacher bookings: %w", err)
	}
	return bookings, nil
}

func (r *TimetableRepository) findIDByClass(ctx context.Context, classID, academicYear string) (string, error) {
	var id string
	const query = `SELECT id FROM timetables WHERE class_id = $1 AND academic_year = $2`
	if err := r.db.GetContext(ctx, &id, query, classID, academicYear); err != nil {
		return "", err
	}
	return id, nil
}
