package models

import (
	"fmt"
	"time"
)

// Weekday identifies a school day. Weekends are never scheduled.
type Weekday string

const (
	Monday    Weekday = "MONDAY"
	Tuesday   Weekday = "TUESDAY"
	Wednesday Weekday = "WEDNESDAY"
	Thursday  Weekday = "THURSDAY"
	Friday    Weekday = "FRIDAY"
)

// SchoolDays lists the scheduled weekdays in timetable order.
func SchoolDays() []Weekday {
	return []Weekday{Monday, Tuesday, Wednesday, Thursday, Friday}
}

var weekdayOrder = map[Weekday]int{
	Monday:    1,
	Tuesday:   2,
	Wednesday: 3,
	Thursday:  4,
	Friday:    5,
}

// Order returns the 1-based position of the day within the school week, 0 if unknown.
func (d Weekday) Order() int {
	return weekdayOrder[d]
}

// Valid reports whether the day is a school day.
func (d Weekday) Valid() bool {
	return weekdayOrder[d] != 0
}

// ParseWeekday normalises a day name into a Weekday.
func ParseWeekday(raw string) (Weekday, error) {
	d := Weekday(raw)
	if !d.Valid() {
		return "", fmt.Errorf("invalid school day %q", raw)
	}
	return d, nil
}

// SlotType distinguishes teaching cells from fixed breaks.
type SlotType string

const (
	SlotTypeRegular SlotType = "REGULAR"
	SlotTypeBreak   SlotType = "BREAK"
)

// Period is one row of the bell schedule.
type Period struct {
	Number    int    `json:"number"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
	IsBreak   bool   `json:"is_break"`
}

// TimetableSlot is one cell of a class's week. (day, period) is unique
// within a timetable.
type TimetableSlot struct {
	ID          string    `db:"id" json:"id,omitempty"`
	TimetableID string    `db:"timetable_id" json:"timetable_id,omitempty"`
	Day         Weekday   `db:"day" json:"day"`
	Period      int       `db:"period" json:"period"`
	StartTime   string    `db:"start_time" json:"start_time"`
	EndTime     string    `db:"end_time" json:"end_time"`
	SlotType    SlotType  `db:"slot_type" json:"slot_type"`
	SubjectID   *string   `db:"subject_id" json:"subject_id,omitempty"`
	TeacherID   *string   `db:"teacher_id" json:"teacher_id,omitempty"`
	RoomNumber  *string   `db:"room_number" json:"room_number,omitempty"`
	Notes       *string   `db:"notes" json:"notes,omitempty"`
	CreatedAt   time.Time `db:"created_at" json:"created_at,omitempty"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at,omitempty"`
}

// IsFree reports whether the cell is an unassigned teaching period.
func (s TimetableSlot) IsFree() bool {
	return s.SlotType == SlotTypeRegular && s.SubjectID == nil
}

// Timetable owns the full slot set for one (class, academic year) pair.
// At most one persisted timetable exists per pair.
type Timetable struct {
	ID           string          `db:"id" json:"id"`
	ClassID      string          `db:"class_id" json:"class_id"`
	AcademicYear string          `db:"academic_year" json:"academic_year"`
	Term         string          `db:"term" json:"term"`
	IsActive     bool            `db:"is_active" json:"is_active"`
	CreatedAt    time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time       `db:"updated_at" json:"updated_at"`
	Slots        []TimetableSlot `db:"-" json:"slots,omitempty"`
}

// ConflictKind enumerates detectable scheduling violations.
type ConflictKind string

const (
	ConflictTeacherDoubleBooked ConflictKind = "TEACHER_DOUBLE_BOOKED"
	ConflictSubjectQuotaUnmet   ConflictKind = "SUBJECT_QUOTA_UNMET"
	ConflictSlotCollision       ConflictKind = "SLOT_COLLISION"
)

// SchedulingConflict describes one detected violation or advisory shortfall.
type SchedulingConflict struct {
	Kind      ConflictKind `json:"kind"`
	Day       Weekday      `json:"day,omitempty"`
	Period    int          `json:"period,omitempty"`
	ClassID   string       `json:"class_id,omitempty"`
	TeacherID string       `json:"teacher_id,omitempty"`
	SubjectID string       `json:"subject_id,omitempty"`
	Detail    string       `json:"detail"`
}

// SubjectDemand is a roster quota: target periods per week for one subject.
type SubjectDemand struct {
	SubjectID      string `db:"subject_id" json:"subject_id"`
	SubjectName    string `db:"subject_name" json:"subject_name"`
	PeriodsPerWeek int    `db:"periods_per_week" json:"periods_per_week"`
}

// TeacherBooking is one teacher commitment read from persisted timetables;
// the rows feed the cross-class conflict index.
type TeacherBooking struct {
	TeacherID string  `db:"teacher_id" json:"teacher_id"`
	ClassID   string  `db:"class_id" json:"class_id"`
	Day       Weekday `db:"day" json:"day"`
	Period    int     `db:"period" json:"period"`
}

// TimetableExistsError is returned when a create collides with the
// per-(class, academic year) uniqueness constraint. The caller resolves it
// by retrying as a replace against ExistingID.
type TimetableExistsError struct {
	ExistingID   string `json:"existing_timetable_id"`
	ClassID      string `json:"class_id"`
	AcademicYear string `json:"academic_year"`
}

func (e *TimetableExistsError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return fmt.Sprintf("a timetable already exists for class %s in %s (id %s)", e.ClassID, e.AcademicYear, e.ExistingID)
}

// TeacherBookedError rejects a slot edit whose teacher is committed to a
// different class at the same (day, period).
type TeacherBookedError struct {
	TeacherID string  `json:"teacher_id"`
	ClassID   string  `json:"class_id"`
	Day       Weekday `json:"day"`
	Period    int     `json:"period"`
}

func (e *TeacherBookedError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return fmt.Sprintf("teacher %s is already scheduled for class %s at %s period %d", e.TeacherID, e.ClassID, e.Day, e.Period)
}
