package service

import (
	"context"
	"database/sql"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/schoolhub-dev/timetable-api/internal/dto"
	"github.com/schoolhub-dev/timetable-api/internal/models"
	appErrors "github.com/schoolhub-dev/timetable-api/pkg/errors"
)

func TestGeneratePreviewBuildsDraft(t *testing.T) {
	svc, _ := newDraftServiceFixture(t, draftFixtureConfig{})

	resp, err := svc.GeneratePreview(context.Background(), "class-a", dto.ScheduleOptions{})
	require.NoError(t, err)
	assert.Equal(t, "class-a", resp.ClassID)
	assert.Len(t, resp.Slots, 40)
	assert.Equal(t, 35, resp.Stats.TotalSlots)
	assert.Empty(t, resp.Conflicts)
}

func TestGeneratePreviewUnknownClass(t *testing.T) {
	svc, _ := newDraftServiceFixture(t, draftFixtureConfig{})

	_, err := svc.GeneratePreview(context.Background(), "missing", dto.ScheduleOptions{})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestGeneratePreviewEmptyRoster(t *testing.T) {
	svc, _ := newDraftServiceFixture(t, draftFixtureConfig{emptyRoster: true})

	resp, err := svc.GeneratePreview(context.Background(), "class-a", dto.ScheduleOptions{})
	require.NoError(t, err)
	assert.Len(t, resp.Slots, 40)
	require.Len(t, resp.Conflicts, 1)
	assert.Equal(t, models.ConflictSubjectQuotaUnmet, resp.Conflicts[0].Kind)
	assert.Contains(t, resp.Conflicts[0].Detail, "no subjects configured")
}

func TestSaveDraftCreatesTimetable(t *testing.T) {
	svc, repo := newDraftServiceFixture(t, draftFixtureConfig{})

	_, err := svc.GeneratePreview(context.Background(), "class-a", dto.ScheduleOptions{})
	require.NoError(t, err)

	saved, err := svc.SaveDraft(context.Background(), "class-a")
	require.NoError(t, err)
	assert.NotEmpty(t, saved.TimetableID)
	require.Len(t, repo.created, 1)
	assert.Equal(t, "class-a", repo.created[0].ClassID)
	assert.Len(t, repo.createdSlots[saved.TimetableID], 40)
}

func TestSaveDraftWithoutDraft(t *testing.T) {
	svc, _ := newDraftServiceFixture(t, draftFixtureConfig{})

	_, err := svc.SaveDraft(context.Background(), "class-a")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrPreconditionFailed.Code, appErrors.FromError(err).Code)
}

func TestSaveDraftIdempotentWhenClean(t *testing.T) {
	svc, repo := newDraftServiceFixture(t, draftFixtureConfig{})

	_, err := svc.GeneratePreview(context.Background(), "class-a", dto.ScheduleOptions{})
	require.NoError(t, err)
	first, err := svc.SaveDraft(context.Background(), "class-a")
	require.NoError(t, err)

	second, err := svc.SaveDraft(context.Background(), "class-a")
	require.NoError(t, err)
	assert.Equal(t, first.TimetableID, second.TimetableID)
	assert.Len(t, repo.created, 1, "clean save must not touch the repository again")
}

func TestSaveDraftConflictThenReplace(t *testing.T) {
	svc, repo := newDraftServiceFixture(t, draftFixtureConfig{})
	repo.createErr = &models.TimetableExistsError{ExistingID: "tt-existing", ClassID: "class-a", AcademicYear: "2025/2026"}
	repo.byID["tt-existing"] = &models.Timetable{ID: "tt-existing", ClassID: "class-a", AcademicYear: "2025/2026"}

	_, err := svc.GeneratePreview(context.Background(), "class-a", dto.ScheduleOptions{})
	require.NoError(t, err)

	_, err = svc.SaveDraft(context.Background(), "class-a")
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErr.Code)

	var exists *models.TimetableExistsError
	require.ErrorAs(t, err, &exists)
	assert.Equal(t, "tt-existing", exists.ExistingID)

	saved, err := svc.ReplaceDraft(context.Background(), "class-a", "tt-existing")
	require.NoError(t, err)
	assert.Equal(t, "tt-existing", saved.TimetableID)
	assert.Len(t, repo.replaced["tt-existing"], 40)
}

func TestReplaceDraftForeignTimetable(t *testing.T) {
	svc, repo := newDraftServiceFixture(t, draftFixtureConfig{})
	repo.byID["tt-other"] = &models.Timetable{ID: "tt-other", ClassID: "class-b", AcademicYear: "2025/2026"}

	_, err := svc.GeneratePreview(context.Background(), "class-a", dto.ScheduleOptions{})
	require.NoError(t, err)

	_, err = svc.ReplaceDraft(context.Background(), "class-a", "tt-other")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestEditSlotValidations(t *testing.T) {
	svc, _ := newDraftServiceFixture(t, draftFixtureConfig{})
	_, err := svc.GeneratePreview(context.Background(), "class-a", dto.ScheduleOptions{})
	require.NoError(t, err)

	cases := []struct {
		name   string
		day    models.Weekday
		period int
	}{
		{"invalid day", models.Weekday("SUNDAY"), 1},
		{"invalid period", models.Monday, 9},
		{"break period", models.Monday, 5},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.EditSlot(context.Background(), "class-a", tc.day, tc.period, dto.EditSlotRequest{})
			require.Error(t, err)
			assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
		})
	}
}

func TestEditSlotRejectsBookedTeacher(t *testing.T) {
	svc, repo := newDraftServiceFixture(t, draftFixtureConfig{})
	repo.bookings = []models.TeacherBooking{
		{TeacherID: "teacher-1", ClassID: "class-b", Day: models.Monday, Period: 2},
	}

	_, err := svc.GeneratePreview(context.Background(), "class-a", dto.ScheduleOptions{})
	require.NoError(t, err)

	_, err = svc.EditSlot(context.Background(), "class-a", models.Monday, 2, dto.EditSlotRequest{
		SubjectID: strPtr("math"),
		TeacherID: strPtr("teacher-1"),
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)

	var booked *models.TeacherBookedError
	require.ErrorAs(t, err, &booked)
	assert.Equal(t, "class-b", booked.ClassID)
}

func TestEditSlotThenSave(t *testing.T) {
	svc, repo := newDraftServiceFixture(t, draftFixtureConfig{})

	_, err := svc.GeneratePreview(context.Background(), "class-a", dto.ScheduleOptions{})
	require.NoError(t, err)

	slot, err := svc.EditSlot(context.Background(), "class-a", models.Friday, 8, dto.EditSlotRequest{
		SubjectID:  strPtr("art"),
		TeacherID:  strPtr("teacher-7"),
		RoomNumber: strPtr("R12"),
	})
	require.NoError(t, err)
	assert.Equal(t, models.SlotTypeRegular, slot.SlotType)
	assert.Equal(t, "art", *slot.SubjectID)
	assert.Equal(t, "12:00", slot.StartTime)

	saved, err := svc.SaveDraft(context.Background(), "class-a")
	require.NoError(t, err)

	var persisted *models.TimetableSlot
	for i, s := range repo.createdSlots[saved.TimetableID] {
		if s.Day == models.Friday && s.Period == 8 {
			persisted = &repo.createdSlots[saved.TimetableID][i]
		}
	}
	require.NotNil(t, persisted)
	assert.Equal(t, "art", *persisted.SubjectID)
	assert.Equal(t, "R12", *persisted.RoomNumber)
}

func TestDeleteSlotFreesCell(t *testing.T) {
	svc, repo := newDraftServiceFixture(t, draftFixtureConfig{})

	_, err := svc.GeneratePreview(context.Background(), "class-a", dto.ScheduleOptions{})
	require.NoError(t, err)

	require.NoError(t, svc.DeleteSlot(context.Background(), "class-a", models.Monday, 1))

	saved, err := svc.SaveDraft(context.Background(), "class-a")
	require.NoError(t, err)
	for _, s := range repo.createdSlots[saved.TimetableID] {
		if s.Day == models.Monday && s.Period == 1 {
			assert.True(t, s.IsFree())
		}
	}
}

func TestRegenerateDiscardsEdits(t *testing.T) {
	svc, repo := newDraftServiceFixture(t, draftFixtureConfig{})

	_, err := svc.GeneratePreview(context.Background(), "class-a", dto.ScheduleOptions{})
	require.NoError(t, err)
	_, err = svc.EditSlot(context.Background(), "class-a", models.Friday, 8, dto.EditSlotRequest{SubjectID: strPtr("art")})
	require.NoError(t, err)

	_, err = svc.Regenerate(context.Background(), "class-a", dto.ScheduleOptions{})
	require.NoError(t, err)

	saved, err := svc.SaveDraft(context.Background(), "class-a")
	require.NoError(t, err)
	for _, s := range repo.createdSlots[saved.TimetableID] {
		if s.SubjectID != nil {
			assert.NotEqual(t, "art", *s.SubjectID)
		}
	}
}

func TestLoadExistingSeedsDraft(t *testing.T) {
	svc, repo := newDraftServiceFixture(t, draftFixtureConfig{})
	repo.seedSaved(savedTimetable("tt-1", "class-a"))

	timetable, err := svc.LoadExisting(context.Background(), "class-a")
	require.NoError(t, err)
	assert.Equal(t, "tt-1", timetable.ID)

	// the seeded draft accepts edits and saves as a replace
	_, err = svc.EditSlot(context.Background(), "class-a", models.Monday, 1, dto.EditSlotRequest{SubjectID: strPtr("music")})
	require.NoError(t, err)
	saved, err := svc.SaveDraft(context.Background(), "class-a")
	require.NoError(t, err)
	assert.Equal(t, "tt-1", saved.TimetableID)
	assert.NotEmpty(t, repo.replaced["tt-1"])
}

func TestLoadExistingNotFound(t *testing.T) {
	svc, _ := newDraftServiceFixture(t, draftFixtureConfig{})

	_, err := svc.LoadExisting(context.Background(), "class-a")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestEditSlotImplicitlyLoadsSavedTimetable(t *testing.T) {
	svc, repo := newDraftServiceFixture(t, draftFixtureConfig{})
	repo.seedSaved(savedTimetable("tt-1", "class-a"))

	_, err := svc.EditSlot(context.Background(), "class-a", models.Tuesday, 3, dto.EditSlotRequest{SubjectID: strPtr("music")})
	require.NoError(t, err)
}

func TestScheduleClassPreserveExisting(t *testing.T) {
	svc, repo := newDraftServiceFixture(t, draftFixtureConfig{})
	repo.seedSaved(savedTimetable("tt-1", "class-a"))

	_, err := svc.ScheduleClass(context.Background(), "class-a", dto.ScheduleOptions{PreserveExisting: true}, TeacherBookings{})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
	assert.Empty(t, repo.replaced["tt-1"], "preserved timetable must not be overwritten")
}

func TestScheduleClassReplacesExisting(t *testing.T) {
	svc, repo := newDraftServiceFixture(t, draftFixtureConfig{})
	repo.seedSaved(savedTimetable("tt-1", "class-a"))

	slots, err := svc.ScheduleClass(context.Background(), "class-a", dto.ScheduleOptions{}, TeacherBookings{})
	require.NoError(t, err)
	assert.Len(t, slots, 40)
	assert.Len(t, repo.replaced["tt-1"], 40)
}

func TestCacheInvalidatedOnSave(t *testing.T) {
	cache := &cacheInvalidatorStub{}
	svc, _ := newDraftServiceFixture(t, draftFixtureConfig{cache: cache})

	_, err := svc.GeneratePreview(context.Background(), "class-a", dto.ScheduleOptions{})
	require.NoError(t, err)
	_, err = svc.SaveDraft(context.Background(), "class-a")
	require.NoError(t, err)

	assert.Equal(t, []string{"class-a"}, cache.invalidated)
}

// --- Fixtures ---

type draftFixtureConfig struct {
	emptyRoster bool
	cache       timetableCacheInvalidator
}

func newDraftServiceFixture(t *testing.T, cfg draftFixtureConfig) (*DraftService, *timetableRepoStub) {
	t.Helper()
	repo := newTimetableRepoStub()
	roster := rosterStub{empty: cfg.emptyRoster}
	classes := classReaderStub{known: map[string]bool{"class-a": true, "class-b": true}}

	svc := NewDraftService(
		classes,
		roster,
		repo,
		nil,
		cfg.cache,
		nil,
		nil,
		DraftConfig{AcademicYear: "2025/2026", Term: "TERM_1"},
	)
	return svc, repo
}

func savedTimetable(id, classID string) *models.Timetable {
	grid := DefaultPeriodGrid()
	timetable := &models.Timetable{ID: id, ClassID: classID, AcademicYear: "2025/2026", Term: "TERM_1", IsActive: true}
	for _, day := range grid.Days() {
		for _, period := range grid.Periods() {
			slot := models.TimetableSlot{
				ID:          fmt.Sprintf("%s-%s-%d", id, day, period.Number),
				TimetableID: id,
				Day:         day,
				Period:      period.Number,
				StartTime:   period.StartTime,
				EndTime:     period.EndTime,
				SlotType:    models.SlotTypeRegular,
			}
			if period.IsBreak {
				slot.SlotType = models.SlotTypeBreak
			}
			timetable.Slots = append(timetable.Slots, slot)
		}
	}
	return timetable
}

type timetableRepoStub struct {
	existing     map[string]*models.Timetable
	byID         map[string]*models.Timetable
	bookings     []models.TeacherBooking
	createErr    error
	created      []*models.Timetable
	createdSlots map[string][]models.TimetableSlot
	replaced     map[string][]models.TimetableSlot
}

func newTimetableRepoStub() *timetableRepoStub {
	return &timetableRepoStub{
		existing:     map[string]*models.Timetable{},
		byID:         map[string]*models.Timetable{},
		createdSlots: map[string][]models.TimetableSlot{},
		replaced:     map[string][]models.TimetableSlot{},
	}
}

func (s *timetableRepoStub) Create(ctx context.Context, timetable *models.Timetable, slots []models.TimetableSlot) error {
	if s.createErr != nil {
		return s.createErr
	}
	timetable.ID = fmt.Sprintf("tt-%d", len(s.created)+1)
	s.created = append(s.created, timetable)
	s.createdSlots[timetable.ID] = slots
	s.byID[timetable.ID] = timetable
	s.existing[timetable.ClassID] = timetable
	return nil
}

func (s *timetableRepoStub) seedSaved(timetable *models.Timetable) {
	s.existing[timetable.ClassID] = timetable
	s.byID[timetable.ID] = timetable
}

func (s *timetableRepoStub) Replace(ctx context.Context, id string, slots []models.TimetableSlot) error {
	if _, ok := s.byID[id]; !ok {
		return sql.ErrNoRows
	}
	s.replaced[id] = slots
	return nil
}

func (s *timetableRepoStub) FindByClass(ctx context.Context, classID, academicYear string) (*models.Timetable, error) {
	if timetable, ok := s.existing[classID]; ok {
		return timetable, nil
	}
	return nil, sql.ErrNoRows
}

func (s *timetableRepoStub) FindByID(ctx context.Context, id string) (*models.Timetable, error) {
	if timetable, ok := s.byID[id]; ok {
		return timetable, nil
	}
	return nil, sql.ErrNoRows
}

func (s *timetableRepoStub) ListTeacherBookings(ctx context.Context, academicYear, excludeClassID string) ([]models.TeacherBooking, error) {
	var out []models.TeacherBooking
	for _, b := range s.bookings {
		if excludeClassID != "" && b.ClassID == excludeClassID {
			continue
		}
		out = append(out, b)
	}
	return out, nil
}

type classReaderStub struct {
	known map[string]bool
}

func (s classReaderStub) FindByID(ctx context.Context, id string) (*models.Class, error) {
	if !s.known[id] {
		return nil, sql.ErrNoRows
	}
	return &models.Class{ID: id, Name: "Class " + id, GradeLevel: 10}, nil
}

type rosterStub struct {
	empty bool
}

func (s rosterStub) SubjectsForClass(ctx context.Context, classID string) ([]models.SubjectDemand, error) {
	if s.empty {
		return nil, nil
	}
	return []models.SubjectDemand{
		{SubjectID: "english", SubjectName: "English", PeriodsPerWeek: 4},
		{SubjectID: "math", SubjectName: "Mathematics", PeriodsPerWeek: 5},
		{SubjectID: "science", SubjectName: "Science", PeriodsPerWeek: 3},
	}, nil
}

func (s rosterStub) EligibleTeachers(ctx context.Context, subjectID string) ([]string, error) {
	eligible := map[string][]string{
		"math":    {"teacher-1", "teacher-2"},
		"english": {"teacher-3"},
		"science": {"teacher-2", "teacher-4"},
	}
	return eligible[subjectID], nil
}

type cacheInvalidatorStub struct {
	invalidated []string
}

func (s *cacheInvalidatorStub) InvalidateTimetable(ctx context.Context, classID string) {
	s.invalidated = append(s.invalidated, classID)
}
