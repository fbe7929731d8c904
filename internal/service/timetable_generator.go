package service

import (
	"sort"

	"go.uber.org/zap"

	"github.com/schoolhub-dev/timetable-api/internal/dto"
	"github.com/schoolhub-dev/timetable-api/internal/models"
)

// ScheduleRequest is the full input to one generation run for one class.
type ScheduleRequest struct {
	ClassID          string
	Demands          []models.SubjectDemand
	EligibleTeachers map[string][]string
	Options          dto.ScheduleOptions
}

// GenerationResult is a best-effort grid plus advisory conflicts. Generation
// always terminates with a usable preview; unfillable cells stay free.
type GenerationResult struct {
	Slots     []models.TimetableSlot
	Stats     dto.GenerationStats
	Conflicts []models.SchedulingConflict
}

// TimetableGenerator produces a complete draft grid for one class from its
// roster demands without touching persistence.
type TimetableGenerator struct {
	grid     *PeriodGrid
	detector *ConflictDetector
	logger   *zap.Logger
}

// NewTimetableGenerator wires the generator.
func NewTimetableGenerator(grid *PeriodGrid, detector *ConflictDetector, logger *zap.Logger) *TimetableGenerator {
	if grid == nil {
		grid = DefaultPeriodGrid()
	}
	if detector == nil {
		detector = NewConflictDetector()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TimetableGenerator{grid: grid, detector: detector, logger: logger}
}

type workItem struct {
	subjectID string
	remaining int
}

type generationState struct {
	grid        *PeriodGrid
	classID     string
	options     dto.ScheduleOptions
	work        []workItem
	teachers    map[string][]string
	bookings    TeacherBookings
	placedToday map[models.Weekday]map[string]int
	teacherUse  map[string]int
	slots       []models.TimetableSlot
}

// Generate builds the grid. The bookings index carries every teacher
// commitment already known outside this class; it is read, never written.
func (g *TimetableGenerator) Generate(req ScheduleRequest, bookings TeacherBookings) GenerationResult {
	if bookings == nil {
		bookings = TeacherBookings{}
	}

	state := &generationState{
		grid:        g.grid,
		classID:     req.ClassID,
		options:     req.Options,
		teachers:    req.EligibleTeachers,
		bookings:    bookings,
		placedToday: make(map[models.Weekday]map[string]int),
		teacherUse:  make(map[string]int),
	}
	for _, demand := range req.Demands {
		if demand.PeriodsPerWeek <= 0 {
			continue
		}
		state.work = append(state.work, workItem{subjectID: demand.SubjectID, remaining: demand.PeriodsPerWeek})
	}
	state.sortWork()

	days := g.grid.Days()
	for dayIdx, day := range days {
		state.placedToday[day] = make(map[string]int)
		for _, period := range g.grid.PeriodsForDay(day) {
			start, end, _ := g.grid.TimesFor(period.Number)
			if period.IsBreak {
				state.slots = append(state.slots, models.TimetableSlot{
					Day:       day,
					Period:    period.Number,
					StartTime: start,
					EndTime:   end,
					SlotType:  models.SlotTypeBreak,
				})
				continue
			}

			slot := models.TimetableSlot{
				Day:       day,
				Period:    period.Number,
				StartTime: start,
				EndTime:   end,
				SlotType:  models.SlotTypeRegular,
			}
			daysAfter := len(days) - dayIdx - 1
			if subjectID, teacherID, ok := state.pick(day, period.Number, daysAfter); ok {
				subject := subjectID
				teacher := teacherID
				slot.SubjectID = &subject
				slot.TeacherID = &teacher
				state.commit(day, subjectID, teacherID)
			}
			state.slots = append(state.slots, slot)
		}
	}

	result := GenerationResult{Slots: state.slots}
	result.Conflicts = g.detector.CheckQuota(state.slots, req.Demands)
	result.Stats = summariseGrid(g.grid, state.slots)

	g.logger.Debug("timetable generated",
		zap.String("class_id", req.ClassID),
		zap.Int("total_slots", result.Stats.TotalSlots),
		zap.Int("subjects_scheduled", result.Stats.SubjectsScheduled),
		zap.Int("advisory_conflicts", len(result.Conflicts)),
	)
	return result
}

func (s *generationState) sortWork() {
	sort.SliceStable(s.work, func(i, j int) bool {
		if s.work[i].remaining == s.work[j].remaining {
			return s.work[i].subjectID < s.work[j].subjectID
		}
		return s.work[i].remaining > s.work[j].remaining
	})
}

// pick chooses the next subject/teacher pair for a free cell, or reports
// that the cell stays a free period. With balancing on, a subject is capped
// at one period per day unless its remaining quota cannot fit in the days
// left in the week.
func (s *generationState) pick(day models.Weekday, period, daysAfter int) (subjectID, teacherID string, ok bool) {
	if s.options.BalanceSubjects {
		s.sortWork()
		// first choice: subjects not yet placed today
		for i := range s.work {
			item := &s.work[i]
			if item.remaining <= 0 || s.placedToday[day][item.subjectID] > 0 {
				continue
			}
			if teacher, found := s.pickTeacher(item.subjectID, day, period); found {
				item.remaining--
				return item.subjectID, teacher, true
			}
		}
		// quota pressure: allow a second daily period only when the
		// remaining quota exceeds the days still ahead
		for i := range s.work {
			item := &s.work[i]
			if item.remaining <= 0 || item.remaining <= daysAfter {
				continue
			}
			if teacher, found := s.pickTeacher(item.subjectID, day, period); found {
				item.remaining--
				return item.subjectID, teacher, true
			}
		}
		return "", "", false
	}

	// unbalanced: fill subjects greedily in work-list order
	for i := range s.work {
		item := &s.work[i]
		if item.remaining <= 0 {
			continue
		}
		if teacher, found := s.pickTeacher(item.subjectID, day, period); found {
			item.remaining--
			return item.subjectID, teacher, true
		}
	}
	return "", "", false
}

// pickTeacher selects an eligible teacher free at (day, period). With the
// preference option set, teachers already teaching in this draft win for
// continuity; ties always break on ascending teacher id for determinism.
func (s *generationState) pickTeacher(subjectID string, day models.Weekday, period int) (string, bool) {
	eligible := append([]string(nil), s.teachers[subjectID]...)
	sort.Strings(eligible)

	var fallback string
	for _, teacherID := range eligible {
		holder := s.bookings.BookedClass(teacherID, day, period)
		if holder != "" && holder != s.classID {
			continue
		}
		if !s.options.RespectTeacherPreferences {
			return teacherID, true
		}
		if s.teacherUse[teacherID] > 0 {
			return teacherID, true
		}
		if fallback == "" {
			fallback = teacherID
		}
	}
	if fallback != "" {
		return fallback, true
	}
	return "", false
}

func (s *generationState) commit(day models.Weekday, subjectID, teacherID string) {
	s.placedToday[day][subjectID]++
	s.teacherUse[teacherID]++
}

// sortSlots orders a grid day by day, then by period.
func sortSlots(slots []models.TimetableSlot) {
	sort.SliceStable(slots, func(i, j int) bool {
		if slots[i].Day.Order() == slots[j].Day.Order() {
			return slots[i].Period < slots[j].Period
		}
		return slots[i].Day.Order() < slots[j].Day.Order()
	})
}

func summariseGrid(grid *PeriodGrid, slots []models.TimetableSlot) dto.GenerationStats {
	subjects := make(map[string]struct{})
	teachers := make(map[string]struct{})
	regular := 0
	for _, slot := range slots {
		if slot.SlotType != models.SlotTypeRegular {
			continue
		}
		regular++
		if slot.SubjectID != nil {
			subjects[*slot.SubjectID] = struct{}{}
		}
		if slot.TeacherID != nil {
			teachers[*slot.TeacherID] = struct{}{}
		}
	}
	return dto.GenerationStats{
		TotalSlots:        regular,
		SubjectsScheduled: len(subjects),
		TeachersInvolved:  len(teachers),
		DaysScheduled:     len(grid.Days()),
	}
}
