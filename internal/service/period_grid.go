package service

import (
	"fmt"

	"github.com/schoolhub-dev/timetable-api/internal/models"
)

// PeriodGrid is the canonical bell schedule: the full set of (day, period)
// identities and break placement. It is immutable after process start, and
// every component resolves time ranges here instead of hard-coding them.
type PeriodGrid struct {
	days    []models.Weekday
	periods []models.Period
	byNum   map[int]models.Period
}

// defaultPeriods mirrors the school bell schedule: eight 40-minute periods
// from 07:40, with the 20-minute interval after period 4.
var defaultPeriods = []models.Period{
	{Number: 1, StartTime: "07:40", EndTime: "08:20"},
	{Number: 2, StartTime: "08:20", EndTime: "09:00"},
	{Number: 3, StartTime: "09:00", EndTime: "09:40"},
	{Number: 4, StartTime: "09:40", EndTime: "10:20"},
	{Number: 5, StartTime: "10:20", EndTime: "10:40", IsBreak: true},
	{Number: 6, StartTime: "10:40", EndTime: "11:20"},
	{Number: 7, StartTime: "11:20", EndTime: "12:00"},
	{Number: 8, StartTime: "12:00", EndTime: "12:40"},
}

// DefaultPeriodGrid returns the canonical grid.
func DefaultPeriodGrid() *PeriodGrid {
	grid, err := NewPeriodGrid(models.SchoolDays(), defaultPeriods)
	if err != nil {
		// the static table above is part of the build; a bad entry is a
		// programming error, not a runtime condition
		panic(err)
	}
	return grid
}

// NewPeriodGrid validates and builds a grid. Period numbers must be
// contiguous starting at 1.
func NewPeriodGrid(days []models.Weekday, periods []models.Period) (*PeriodGrid, error) {
	if len(days) == 0 {
		return nil, fmt.Errorf("period grid requires at least one day")
	}
	if len(periods) == 0 {
		return nil, fmt.Errorf("period grid requires at least one period")
	}
	byNum := make(map[int]models.Period, len(periods))
	for i, p := range periods {
		if p.Number != i+1 {
			return nil, fmt.Errorf("period numbers must be contiguous from 1, got %d at position %d", p.Number, i)
		}
		byNum[p.Number] = p
	}
	return &PeriodGrid{days: days, periods: periods, byNum: byNum}, nil
}

// Days returns the school days in timetable order.
func (g *PeriodGrid) Days() []models.Weekday {
	out := make([]models.Weekday, len(g.days))
	copy(out, g.days)
	return out
}

// Periods returns all periods in order, breaks included.
func (g *PeriodGrid) Periods() []models.Period {
	out := make([]models.Period, len(g.periods))
	copy(out, g.periods)
	return out
}

// PeriodsForDay returns the ordered periods of one school day.
func (g *PeriodGrid) PeriodsForDay(day models.Weekday) []models.Period {
	if !day.Valid() {
		return nil
	}
	return g.Periods()
}

// IsBreak reports whether the period number is a fixed break.
func (g *PeriodGrid) IsBreak(period int) bool {
	p, ok := g.byNum[period]
	return ok && p.IsBreak
}

// TimesFor resolves the time range of a period number.
func (g *PeriodGrid) TimesFor(period int) (start, end string, ok bool) {
	p, exists := g.byNum[period]
	if !exists {
		return "", "", false
	}
	return p.StartTime, p.EndTime, true
}

// ValidPeriod reports whether the period number exists in the grid.
func (g *PeriodGrid) ValidPeriod(period int) bool {
	_, ok := g.byNum[period]
	return ok
}

// RegularCellCount returns the number of schedulable cells in a full week.
func (g *PeriodGrid) RegularCellCount() int {
	regular := 0
	for _, p := range g.periods {
		if !p.IsBreak {
			regular++
		}
	}
	return regular * len(g.days)
}
