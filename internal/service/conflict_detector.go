package service

import (
	"fmt"

	"github.com/schoolhub-dev/timetable-api/internal/models"
)

// BookingKey identifies one teacher commitment in the week.
type BookingKey struct {
	TeacherID string
	Day       models.Weekday
	Period    int
}

// TeacherBookings is the cross-class index of every known teacher
// commitment, mapping a booking to the class that holds it. It is built
// from persisted timetables and extended with slots committed earlier in
// the same bulk run.
type TeacherBookings map[BookingKey]string

// Book records a commitment.
func (b TeacherBookings) Book(teacherID string, day models.Weekday, period int, classID string) {
	b[BookingKey{TeacherID: teacherID, Day: day, Period: period}] = classID
}

// BookedClass returns the class holding the commitment, "" when free.
func (b TeacherBookings) BookedClass(teacherID string, day models.Weekday, period int) string {
	return b[BookingKey{TeacherID: teacherID, Day: day, Period: period}]
}

// ReleaseClass drops every commitment held by the class, used when its
// timetable is about to be replaced.
func (b TeacherBookings) ReleaseClass(classID string) {
	for key, holder := range b {
		if holder == classID {
			delete(b, key)
		}
	}
}

// BookSlots indexes every taught slot of a class grid.
func (b TeacherBookings) BookSlots(classID string, slots []models.TimetableSlot) {
	for _, slot := range slots {
		if slot.SlotType != models.SlotTypeRegular || slot.TeacherID == nil {
			continue
		}
		b.Book(*slot.TeacherID, slot.Day, slot.Period, classID)
	}
}

// ConflictDetector inspects candidate slot sets and reports violations.
// It never mutates its inputs.
type ConflictDetector struct{}

// NewConflictDetector constructs a detector.
func NewConflictDetector() *ConflictDetector {
	return &ConflictDetector{}
}

// CheckSlot reports TEACHER_DOUBLE_BOOKED when the slot's teacher is already
// committed to a different class at the same (day, period). Break slots and
// slots without a teacher never conflict.
func (d *ConflictDetector) CheckSlot(slot models.TimetableSlot, classID string, bookings TeacherBookings) []models.SchedulingConflict {
	if slot.SlotType == models.SlotTypeBreak || slot.TeacherID == nil {
		return nil
	}
	holder := bookings.BookedClass(*slot.TeacherID, slot.Day, slot.Period)
	if holder == "" || holder == classID {
		return nil
	}
	return []models.SchedulingConflict{{
		Kind:      models.ConflictTeacherDoubleBooked,
		Day:       slot.Day,
		Period:    slot.Period,
		ClassID:   classID,
		TeacherID: *slot.TeacherID,
		Detail:    fmt.Sprintf("teacher %s already teaches class %s at %s period %d", *slot.TeacherID, holder, slot.Day, slot.Period),
	}}
}

// CheckQuota compares placed periods against each subject's weekly target
// and reports SUBJECT_QUOTA_UNMET shortfalls. Overshoot is prevented during
// generation and therefore not reported here.
func (d *ConflictDetector) CheckQuota(slots []models.TimetableSlot, demands []models.SubjectDemand) []models.SchedulingConflict {
	placed := make(map[string]int, len(demands))
	for _, slot := range slots {
		if slot.SlotType != models.SlotTypeRegular || slot.SubjectID == nil {
			continue
		}
		placed[*slot.SubjectID]++
	}

	var conflicts []models.SchedulingConflict
	for _, demand := range demands {
		if demand.PeriodsPerWeek <= 0 {
			continue
		}
		if got := placed[demand.SubjectID]; got < demand.PeriodsPerWeek {
			conflicts = append(conflicts, models.SchedulingConflict{
				Kind:      models.ConflictSubjectQuotaUnmet,
				SubjectID: demand.SubjectID,
				Detail:    fmt.Sprintf("subject %s placed %d of %d weekly periods", demand.SubjectID, got, demand.PeriodsPerWeek),
			})
		}
	}
	return conflicts
}

// CheckUniqueness guarantees the (day, period) invariant. The slot store is
// keyed by cell, so a duplicate here is a caller bug and is returned as a
// fatal error rather than a SchedulingConflict.
func (d *ConflictDetector) CheckUniqueness(slots []models.TimetableSlot) error {
	type cell struct {
		day    models.Weekday
		period int
	}
	seen := make(map[cell]struct{}, len(slots))
	for _, slot := range slots {
		key := cell{day: slot.Day, period: slot.Period}
		if _, dup := seen[key]; dup {
			return fmt.Errorf("%s: duplicate slot at %s period %d", models.ConflictSlotCollision, slot.Day, slot.Period)
		}
		seen[key] = struct{}{}
	}
	return nil
}
