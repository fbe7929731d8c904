package dto

import "github.com/schoolhub-dev/timetable-api/internal/models"

// ScheduleOptions tune the automatic generator.
type ScheduleOptions struct {
	BalanceSubjects           bool `json:"balanceSubjects"`
	RespectTeacherPreferences bool `json:"respectTeacherPreferences"`
	PreserveExisting          bool `json:"preserveExisting"`
}

// GeneratePreviewRequest asks for a draft timetable without persisting it.
type GeneratePreviewRequest struct {
	Options ScheduleOptions `json:"options"`
}

// GenerationStats summarises a generated grid.
type GenerationStats struct {
	TotalSlots        int `json:"totalSlots"`
	SubjectsScheduled int `json:"subjectsScheduled"`
	TeachersInvolved  int `json:"teachersInvolved"`
	DaysScheduled     int `json:"daysScheduled"`
}

// GenerationResponse returns the draft grid, its stats and any advisory
// conflicts. Previews are always explorable even when incomplete.
type GenerationResponse struct {
	ClassID   string                      `json:"classId"`
	Slots     []models.TimetableSlot      `json:"slots"`
	Stats     GenerationStats             `json:"stats"`
	Conflicts []models.SchedulingConflict `json:"conflicts"`
}

// EditSlotRequest patches one cell of a class draft.
type EditSlotRequest struct {
	SubjectID  *string `json:"subjectId" validate:"omitempty,min=1"`
	TeacherID  *string `json:"teacherId" validate:"omitempty,min=1"`
	RoomNumber *string `json:"roomNumber"`
	Notes      *string `json:"notes"`
}

// SaveDraftResponse reports the persisted timetable id.
type SaveDraftResponse struct {
	TimetableID string `json:"timetableId"`
}

// ReplaceDraftRequest retries a conflicted save against the existing record.
type ReplaceDraftRequest struct {
	ExistingTimetableID string `json:"existingTimetableId" validate:"required"`
}

// BulkScheduleRequest schedules every class in a grade level.
type BulkScheduleRequest struct {
	GradeLevel int             `json:"gradeLevel" validate:"required,min=1"`
	Options    ScheduleOptions `json:"options"`
}

// BulkOutcome labels a per-class bulk result.
type BulkOutcome string

const (
	BulkOutcomeSuccess BulkOutcome = "SUCCESS"
	BulkOutcomeFailure BulkOutcome = "FAILURE"
)

// BulkClassOutcome records one class's result inside a bulk run.
type BulkClassOutcome struct {
	ClassID   string      `json:"classId"`
	ClassName string      `json:"className"`
	Outcome   BulkOutcome `json:"outcome"`
	Error     string      `json:"error,omitempty"`
}

// BulkJobResult aggregates a grade-level scheduling run. Partial failure is
// reported, never raised.
type BulkJobResult struct {
	GradeLevel   int                `json:"gradeLevel"`
	Results      []BulkClassOutcome `json:"results"`
	SuccessCount int                `json:"successCount"`
	FailureCount int                `json:"failureCount"`
}
