package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/schoolhub-dev/timetable-api/internal/models"
)

// RosterRepository resolves a class's candidate subjects and the teachers
// certified to teach each subject.
type RosterRepository struct {
	db *sqlx.DB
}

// NewRosterRepository creates a new roster repository.
func NewRosterRepository(db *sqlx.DB) *RosterRepository {
	return &RosterRepository{db: db}
}

// SubjectsForClass returns the class's subjects with their weekly period
// targets, ordered by subject id for deterministic generation input.
func (r *RosterRepository) SubjectsForClass(ctx context.Context, classID string) ([]models.SubjectDemand, error) {
	const query = `SELECT cs.subject_id, s.name AS subject_name, cs.periods_per_week
FROM class_subjects cs
JOIN subjects s ON s.id = cs.subject_id
WHERE cs.class_id = $1
ORDER BY cs.subject_id ASC`
	var demands []models.SubjectDemand
	if err := r.db.SelectContext(ctx, &demands, query, classID); err != nil {
		return nil, fmt.Errorf("list subjects for class: %w", err)
	}
	return demands, nil
}

// EligibleTeachers returns ids of active teachers certified for the subject.
func (r *RosterRepository) EligibleTeachers(ctx context.Context, subjectID string) ([]string, error) {
	const query = `SELECT st.teacher_id
FROM subject_teachers st
JOIN teachers t ON t.id = st.teacher_id
WHERE st.subject_id = $1 AND t.active = TRUE
ORDER BY st.teacher_id ASC`
	var teacherIDs []string
	if err := r.db.SelectContext(ctx, &teacherIDs, query, subjectID); err != nil {
		return nil, fmt.Errorf("list eligible teachers: %w", err)
	}
	return teacherIDs, nil
}

type namedRow struct {
	ID   string `db:"id"`
	Name string `db:"name"`
}

// SubjectNames resolves display names for the given subject ids.
func (r *RosterRepository) SubjectNames(ctx context.Context, ids []string) (map[string]string, error) {
	if len(ids) == 0 {
		return map[string]string{}, nil
	}
	const query = `SELECT id, name FROM subjects WHERE id = ANY($1)`
	var rows []namedRow
	if err := r.db.SelectContext(ctx, &rows, query, pq.Array(ids)); err != nil {
		return nil, fmt.Errorf("resolve subject names: %w", err)
	}
	names := make(map[string]string, len(rows))
	for _, row := range rows {
		names[row.ID] = row.Name
	}
	return names, nil
}

// TeacherNames resolves display names for the given teacher ids.
func (r *RosterRepository) TeacherNames(ctx context.Context, ids []string) (map[string]string, error) {
	if len(ids) == 0 {
		return map[string]string{}, nil
	}
	const query = `SELECT id, full_name AS name FROM teachers WHERE id = ANY($1)`
	var rows []namedRow
	if err := r.db.SelectContext(ctx, &rows, query, pq.Array(ids)); err != nil {
		return nil, fmt.Errorf("resolve teacher names: %w", err)
	}
	names := make(map[string]string, len(rows))
	for _, row := range rows {
		names[row.ID] = row.Name
	}
	return names, nil
}
