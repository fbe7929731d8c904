package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassRepositoryFindByID(t *testing.T) {
	db, mock, cleanup := newTimetableRepoMock(t)
	defer cleanup()
	repo := NewClassRepository(db)

	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "name", "grade_level", "capacity", "homeroom_teacher_id", "created_at", "updated_at"}).
		AddRow("class-a", "X IPA 1", 10, 32, nil, now, now)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, name, grade_level, capacity, homeroom_teacher_id, created_at, updated_at FROM classes WHERE id = $1")).
		WithArgs("class-a").
		WillReturnRows(rows)

	class, err := repo.FindByID(context.Background(), "class-a")
	require.NoError(t, err)
	assert.Equal(t, "X IPA 1", class.Name)
	assert.Equal(t, 10, class.GradeLevel)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClassRepositoryFindByIDAbsent(t *testing.T) {
	db, mock, cleanup := newTimetableRepoMock(t)
	defer cleanup()
	repo := NewClassRepository(db)

	mock.ExpectQuery("FROM classes WHERE id").
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.FindByID(context.Background(), "missing")
	require.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClassRepositoryListByGrade(t *testing.T) {
	db, mock, cleanup := newTimetableRepoMock(t)
	defer cleanup()
	repo := NewClassRepository(db)

	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "name", "grade_level", "capacity", "homeroom_teacher_id", "created_at", "updated_at"}).
		AddRow("class-a", "X IPA 1", 10, 32, nil, now, now).
		AddRow("class-b", "X IPA 2", 10, 30, nil, now, now)
	mock.ExpectQuery("FROM classes WHERE grade_level = \\$1 ORDER BY id ASC").
		WithArgs(10).
		WillReturnRows(rows)

	classes, err := repo.ListByGrade(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, classes, 2)
	assert.Equal(t, "class-a", classes[0].ID)
	assert.Equal(t, "class-b", classes[1].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}
