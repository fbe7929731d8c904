package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/schoolhub-dev/timetable-api/internal/models"
)

// ClassRepository reads the class roster.
type ClassRepository struct {
	db *sqlx.DB
}

// NewClassRepository creates a new class repository.
func NewClassRepository(db *sqlx.DB) *ClassRepository {
	return &ClassRepository{db: db}
}

// FindByID loads a class by id.
func (r *ClassRepository) FindByID(ctx context.Context, id string) (*models.Class, error) {
	const query = `SELECT id, name, grade_level, capacity, homeroom_teacher_id, created_at, updated_at FROM classes WHERE id = $1`
	var class models.Class
	if err := r.db.GetContext(ctx, &class, query, id); err != nil {
		return nil, err
	}
	return &class, nil
}

// ListByGrade returns every class of the grade level in stable id order,
// the order bulk scheduling walks them in.
func (r *ClassRepository) ListByGrade(ctx context.Context, gradeLevel int) ([]models.Class, error) {
	const query = `SELECT id, name, grade_level, capacity, homeroom_teacher_id, created_at, updated_at
FROM classes WHERE grade_level = $1 ORDER BY id ASC`
	var classes []models.Class
	if err := r.db.SelectContext(ctx, &classes, query, gradeLevel); err != nil {
		return nil, fmt.Errorf("list classes by grade: %w", err)
	}
	return classes, nil
}
