package models

import "time"

// Class represents an academic class or section within a grade level.
type Class struct {
	ID                string    `db:"id" json:"id"`
	Name              string    `db:"name" json:"name"`
	GradeLevel        int       `db:"grade_level" json:"grade_level"`
	Capacity          int       `db:"capacity" json:"capacity"`
	HomeroomTeacherID *string   `db:"homeroom_teacher_id" json:"homeroom_teacher_id,omitempty"`
	CreatedAt         time.Time `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time `db:"updated_at" json:"updated_at"`
}
