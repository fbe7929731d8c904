package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/schoolhub-dev/timetable-api/internal/dto"
	"github.com/schoolhub-dev/timetable-api/internal/models"
	"github.com/schoolhub-dev/timetable-api/internal/service"
	appErrors "github.com/schoolhub-dev/timetable-api/pkg/errors"
)

type draftOperatorMock struct {
	previewResp *dto.GenerationResponse
	previewErr  error
	loadResp    *models.Timetable
	loadErr     error
	editResp    *models.TimetableSlot
	editErr     error
	deleteErr   error
	saveResp    *dto.SaveDraftResponse
	saveErr     error
	replaceResp *dto.SaveDraftResponse
	replaceErr  error

	editedDay    models.Weekday
	editedPeriod int
}

func (m *draftOperatorMock) GeneratePreview(ctx context.Context, classID string, opts dto.ScheduleOptions) (*dto.GenerationResponse, error) {
	return m.previewResp, m.previewErr
}

func (m *draftOperatorMock) Regenerate(ctx context.Context, classID string, opts dto.ScheduleOptions) (*dto.GenerationResponse, error) {
	return m.previewResp, m.previewErr
}

func (m *draftOperatorMock) LoadExisting(ctx context.Context, classID string) (*models.Timetable, error) {
	return m.loadResp, m.loadErr
}

func (m *draftOperatorMock) EditSlot(ctx context.Context, classID string, day models.Weekday, period int, patch dto.EditSlotRequest) (*models.TimetableSlot, error) {
	m.editedDay = day
	m.editedPeriod = period
	return m.editResp, m.editErr
}

func (m *draftOperatorMock) DeleteSlot(ctx context.Context, classID string, day models.Weekday, period int) error {
	return m.deleteErr
}

func (m *draftOperatorMock) SaveDraft(ctx context.Context, classID string) (*dto.SaveDraftResponse, error) {
	return m.saveResp, m.saveErr
}

func (m *draftOperatorMock) ReplaceDraft(ctx context.Context, classID, existingID string) (*dto.SaveDraftResponse, error) {
	return m.replaceResp, m.replaceErr
}

type bulkRunnerMock struct {
	result *dto.BulkJobResult
	err    error
}

func (m *bulkRunnerMock) Run(ctx context.Context, req dto.BulkScheduleRequest) (*dto.BulkJobResult, error) {
	return m.result, m.err
}

type exporterMock struct {
	result *service.ExportResult
	err    error
}

func (m *exporterMock) Export(ctx context.Context, classID string, format service.ExportFormat) (*service.ExportResult, error) {
	return m.result, m.err
}

func newTimetableRouter(h *TimetableHandler) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	h.RegisterRoutes(r.Group("/api/v1"))
	return r
}

func doJSON(t *testing.T, r *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		require.NoError(t, err)
	}
	req, err := http.NewRequest(method, path, bytes.NewReader(payload))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestTimetableHandlerPreview(t *testing.T) {
	drafts := &draftOperatorMock{
		previewResp: &dto.GenerationResponse{
			ClassID: "class-a",
			Stats:   dto.GenerationStats{TotalSlots: 35, SubjectsScheduled: 3},
		},
	}
	h := NewTimetableHandler(drafts, nil, nil, nil, nil)
	r := newTimetableRouter(h)

	w := doJSON(t, r, http.MethodPost, "/api/v1/timetables/class-a/preview", dto.GeneratePreviewRequest{
		Options: dto.ScheduleOptions{BalanceSubjects: true},
	})
	require.Equal(t, http.StatusOK, w.Code)

	var envelope struct {
		Data dto.GenerationResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	assert.Equal(t, "class-a", envelope.Data.ClassID)
	assert.Equal(t, 35, envelope.Data.Stats.TotalSlots)
}

func TestTimetableHandlerPreviewWithoutBody(t *testing.T) {
	drafts := &draftOperatorMock{previewResp: &dto.GenerationResponse{ClassID: "class-a"}}
	h := NewTimetableHandler(drafts, nil, nil, nil, nil)
	r := newTimetableRouter(h)

	req, err := http.NewRequest(http.MethodPost, "/api/v1/timetables/class-a/preview", nil)
	require.NoError(t, err)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestTimetableHandlerGet(t *testing.T) {
	drafts := &draftOperatorMock{loadResp: &models.Timetable{ID: "tt-1", ClassID: "class-a"}}
	h := NewTimetableHandler(drafts, nil, nil, nil, nil)
	r := newTimetableRouter(h)

	w := doJSON(t, r, http.MethodGet, "/api/v1/timetables/class-a", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var envelope struct {
		Data models.Timetable `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	assert.Equal(t, "tt-1", envelope.Data.ID)
}

func TestTimetableHandlerGetNotFound(t *testing.T) {
	drafts := &draftOperatorMock{loadErr: appErrors.Clone(appErrors.ErrNotFound, "no timetable found for this class")}
	h := NewTimetableHandler(drafts, nil, nil, nil, nil)
	r := newTimetableRouter(h)

	w := doJSON(t, r, http.MethodGet, "/api/v1/timetables/class-a", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestTimetableHandlerEditSlotParsesParams(t *testing.T) {
	drafts := &draftOperatorMock{editResp: &models.TimetableSlot{Day: models.Tuesday, Period: 3}}
	h := NewTimetableHandler(drafts, nil, nil, nil, nil)
	r := newTimetableRouter(h)

	w := doJSON(t, r, http.MethodPut, "/api/v1/timetables/class-a/slots/TUESDAY/3", dto.EditSlotRequest{})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, models.Tuesday, drafts.editedDay)
	assert.Equal(t, 3, drafts.editedPeriod)
}

func TestTimetableHandlerEditSlotRejectsBadDay(t *testing.T) {
	h := NewTimetableHandler(&draftOperatorMock{}, nil, nil, nil, nil)
	r := newTimetableRouter(h)

	w := doJSON(t, r, http.MethodPut, "/api/v1/timetables/class-a/slots/SUNDAY/3", dto.EditSlotRequest{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestTimetableHandlerDeleteSlot(t *testing.T) {
	h := NewTimetableHandler(&draftOperatorMock{}, nil, nil, nil, nil)
	r := newTimetableRouter(h)

	w := doJSON(t, r, http.MethodDelete, "/api/v1/timetables/class-a/slots/MONDAY/1", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestTimetableHandlerSaveConflictCarriesExistingID(t *testing.T) {
	exists := &models.TimetableExistsError{ExistingID: "tt-existing", ClassID: "class-a", AcademicYear: "2025/2026"}
	drafts := &draftOperatorMock{
		saveErr: appErrors.Wrap(exists, appErrors.ErrConflict.Code, appErrors.ErrConflict.Status, exists.Error()),
	}
	h := NewTimetableHandler(drafts, nil, nil, nil, nil)
	r := newTimetableRouter(h)

	w := doJSON(t, r, http.MethodPost, "/api/v1/timetables/class-a/save", nil)
	require.Equal(t, http.StatusConflict, w.Code)

	var envelope struct {
		Meta map[string]interface{} `json:"meta"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	assert.Equal(t, "tt-existing", envelope.Meta["existingTimetableId"])
}

func TestTimetableHandlerSaveCreated(t *testing.T) {
	drafts := &draftOperatorMock{saveResp: &dto.SaveDraftResponse{TimetableID: "tt-1"}}
	h := NewTimetableHandler(drafts, nil, nil, nil, nil)
	r := newTimetableRouter(h)

	w := doJSON(t, r, http.MethodPost, "/api/v1/timetables/class-a/save", nil)
	assert.Equal(t, http.StatusCreated, w.Code)
}

func TestTimetableHandlerReplace(t *testing.T) {
	drafts := &draftOperatorMock{replaceResp: &dto.SaveDraftResponse{TimetableID: "tt-existing"}}
	h := NewTimetableHandler(drafts, nil, nil, nil, nil)
	r := newTimetableRouter(h)

	w := doJSON(t, r, http.MethodPost, "/api/v1/timetables/class-a/replace", dto.ReplaceDraftRequest{ExistingTimetableID: "tt-existing"})
	require.Equal(t, http.StatusOK, w.Code)
}

func TestTimetableHandlerExport(t *testing.T) {
	exporter := &exporterMock{result: &service.ExportResult{
		Payload:     []byte("%PDF-1.4"),
		ContentType: "application/pdf",
		Filename:    "timetable_class_a.pdf",
	}}
	h := NewTimetableHandler(&draftOperatorMock{}, nil, exporter, nil, nil)
	r := newTimetableRouter(h)

	w := doJSON(t, r, http.MethodGet, "/api/v1/timetables/class-a/export?format=pdf", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/pdf", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "timetable_class_a.pdf")
}

func TestTimetableHandlerExportDisabled(t *testing.T) {
	h := NewTimetableHandler(&draftOperatorMock{}, nil, nil, nil, nil)
	r := newTimetableRouter(h)

	w := doJSON(t, r, http.MethodGet, "/api/v1/timetables/class-a/export", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestTimetableHandlerExportBadFormat(t *testing.T) {
	h := NewTimetableHandler(&draftOperatorMock{}, nil, &exporterMock{}, nil, nil)
	r := newTimetableRouter(h)

	w := doJSON(t, r, http.MethodGet, "/api/v1/timetables/class-a/export?format=xlsx", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestTimetableHandlerBulkSchedule(t *testing.T) {
	bulk := &bulkRunnerMock{result: &dto.BulkJobResult{
		GradeLevel:   10,
		SuccessCount: 2,
		FailureCount: 1,
		Results: []dto.BulkClassOutcome{
			{ClassID: "10a", Outcome: dto.BulkOutcomeSuccess},
			{ClassID: "10b", Outcome: dto.BulkOutcomeFailure, Error: "class roster missing"},
			{ClassID: "10c", Outcome: dto.BulkOutcomeSuccess},
		},
	}}
	h := NewTimetableHandler(&draftOperatorMock{}, bulk, nil, nil, nil)
	r := newTimetableRouter(h)

	w := doJSON(t, r, http.MethodPost, "/api/v1/timetables/bulk", dto.BulkScheduleRequest{GradeLevel: 10})
	require.Equal(t, http.StatusOK, w.Code)

	var envelope struct {
		Data dto.BulkJobResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	assert.Equal(t, 2, envelope.Data.SuccessCount)
	assert.Equal(t, 1, envelope.Data.FailureCount)
}
