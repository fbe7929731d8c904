package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/schoolhub-dev/timetable-api/internal/dto"
	"github.com/schoolhub-dev/timetable-api/internal/middleware"
	"github.com/schoolhub-dev/timetable-api/internal/models"
	"github.com/schoolhub-dev/timetable-api/internal/service"
	appErrors "github.com/schoolhub-dev/timetable-api/pkg/errors"
	"github.com/schoolhub-dev/timetable-api/pkg/response"
)

type draftOperator interface {
	GeneratePreview(ctx context.Context, classID string, opts dto.ScheduleOptions) (*dto.GenerationResponse, error)
	Regenerate(ctx context.Context, classID string, opts dto.ScheduleOptions) (*dto.GenerationResponse, error)
	LoadExisting(ctx context.Context, classID string) (*models.Timetable, error)
	EditSlot(ctx context.Context, classID string, day models.Weekday, period int, patch dto.EditSlotRequest) (*models.TimetableSlot, error)
	DeleteSlot(ctx context.Context, classID string, day models.Weekday, period int) error
	SaveDraft(ctx context.Context, classID string) (*dto.SaveDraftResponse, error)
	ReplaceDraft(ctx context.Context, classID, existingID string) (*dto.SaveDraftResponse, error)
}

type bulkRunner interface {
	Run(ctx context.Context, req dto.BulkScheduleRequest) (*dto.BulkJobResult, error)
}

type timetableExporter interface {
	Export(ctx context.Context, classID string, format service.ExportFormat) (*service.ExportResult, error)
}

// TimetableHandler exposes the timetable scheduling endpoints.
type TimetableHandler struct {
	drafts  draftOperator
	bulk    bulkRunner
	exports timetableExporter
	cache   *service.CacheService
	metrics *service.MetricsService
}

// NewTimetableHandler constructs the handler.
func NewTimetableHandler(drafts draftOperator, bulk bulkRunner, exports timetableExporter, cache *service.CacheService, metrics *service.MetricsService) *TimetableHandler {
	return &TimetableHandler{drafts: drafts, bulk: bulk, exports: exports, cache: cache, metrics: metrics}
}

// RegisterRoutes mounts the timetable endpoints on the router group.
func (h *TimetableHandler) RegisterRoutes(rg *gin.RouterGroup) {
	timetables := rg.Group("/timetables")
	timetables.POST("/bulk", h.BulkSchedule)
	timetables.GET("/:classId", h.Get)
	timetables.GET("/:classId/export", h.Export)
	timetables.POST("/:classId/preview", h.Preview)
	timetables.POST("/:classId/regenerate", h.Regenerate)
	timetables.POST("/:classId/save", h.Save)
	timetables.POST("/:classId/replace", h.Replace)
	timetables.PUT("/:classId/slots/:day/:period", h.EditSlot)
	timetables.DELETE("/:classId/slots/:day/:period", h.DeleteSlot)
}

// Preview godoc
// @Summary Generate a draft timetable preview
// @Description Builds a fresh weekly grid for the class without persisting anything. Any prior unsaved edits for the class are discarded.
// @Tags Timetables
// @Accept json
// @Produce json
// @Param classId path string true "Class ID"
// @Param payload body dto.GeneratePreviewRequest false "Generation options"
// @Success 200 {object} response.Envelope
// @Router /timetables/{classId}/preview [post]
func (h *TimetableHandler) Preview(c *gin.Context) {
	h.handleGenerate(c, h.drafts.GeneratePreview)
}

// Regenerate godoc
// @Summary Regenerate the class draft
// @Description Discards the current draft, manual edits included, and builds a new grid.
// @Tags Timetables
// @Accept json
// @Produce json
// @Param classId path string true "Class ID"
// @Param payload body dto.GeneratePreviewRequest false "Generation options"
// @Success 200 {object} response.Envelope
// @Router /timetables/{classId}/regenerate [post]
func (h *TimetableHandler) Regenerate(c *gin.Context) {
	h.handleGenerate(c, h.drafts.Regenerate)
}

// Get godoc
// @Summary Get the saved timetable for a class
// @Tags Timetables
// @Produce json
// @Param classId path string true "Class ID"
// @Success 200 {object} response.Envelope
// @Router /timetables/{classId} [get]
func (h *TimetableHandler) Get(c *gin.Context) {
	classID := c.Param("classId")
	ctx := c.Request.Context()

	if cached, hit := h.cache.GetTimetable(ctx, classID); hit {
		middleware.SetCacheHit(c, true)
		response.JSON(c, http.StatusOK, cached, nil, middleware.ExtractMeta(c))
		return
	}

	timetable, err := h.drafts.LoadExisting(ctx, classID)
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetCacheHit(c, false)
	h.cache.SetTimetable(ctx, classID, timetable)
	response.JSON(c, http.StatusOK, timetable, nil, middleware.ExtractMeta(c))
}

// EditSlot godoc
// @Summary Edit one slot of the class draft
// @Description Patches a single (day, period) cell. The edit is rejected when the teacher is already committed to another class at the same time.
// @Tags Timetables
// @Accept json
// @Produce json
// @Param classId path string true "Class ID"
// @Param day path string true "School day" Enums(MONDAY, TUESDAY, WEDNESDAY, THURSDAY, FRIDAY)
// @Param period path int true "Period number"
// @Param payload body dto.EditSlotRequest true "Slot patch"
// @Success 200 {object} response.Envelope
// @Router /timetables/{classId}/slots/{day}/{period} [put]
func (h *TimetableHandler) EditSlot(c *gin.Context) {
	day, period, err := slotParams(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	var patch dto.EditSlotRequest
	if err := c.ShouldBindJSON(&patch); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid slot payload"))
		return
	}
	slot, err := h.drafts.EditSlot(c.Request.Context(), c.Param("classId"), day, period, patch)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, slot, nil)
}

// DeleteSlot godoc
// @Summary Clear one slot of the class draft
// @Tags Timetables
// @Param classId path string true "Class ID"
// @Param day path string true "School day"
// @Param period path int true "Period number"
// @Success 204
// @Router /timetables/{classId}/slots/{day}/{period} [delete]
func (h *TimetableHandler) DeleteSlot(c *gin.Context) {
	day, period, err := slotParams(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	if err := h.drafts.DeleteSlot(c.Request.Context(), c.Param("classId"), day, period); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Save godoc
// @Summary Save the class draft
// @Description Persists the draft as the class timetable. When the class already has one for the academic year, 409 is returned with the existing timetable id; retry through the replace endpoint.
// @Tags Timetables
// @Produce json
// @Param classId path string true "Class ID"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /timetables/{classId}/save [post]
func (h *TimetableHandler) Save(c *gin.Context) {
	result, err := h.drafts.SaveDraft(c.Request.Context(), c.Param("classId"))
	if err != nil {
		h.saveError(c, err)
		return
	}
	response.Created(c, result)
}

// Replace godoc
// @Summary Replace an existing timetable with the class draft
// @Description Explicit second step after a conflicted save. The draft overwrites the timetable named by existingTimetableId.
// @Tags Timetables
// @Accept json
// @Produce json
// @Param classId path string true "Class ID"
// @Param payload body dto.ReplaceDraftRequest true "Replace payload"
// @Success 200 {object} response.Envelope
// @Router /timetables/{classId}/replace [post]
func (h *TimetableHandler) Replace(c *gin.Context) {
	var req dto.ReplaceDraftRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid replace payload"))
		return
	}
	result, err := h.drafts.ReplaceDraft(c.Request.Context(), c.Param("classId"), req.ExistingTimetableID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Export godoc
// @Summary Export the saved timetable
// @Description Renders the persisted grid as a printable document.
// @Tags Timetables
// @Produce application/pdf
// @Param classId path string true "Class ID"
// @Param format query string false "Output format" Enums(pdf, csv) default(pdf)
// @Success 200 {file} binary
// @Router /timetables/{classId}/export [get]
func (h *TimetableHandler) Export(c *gin.Context) {
	if h.exports == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrNotFound, "timetable exports are disabled"))
		return
	}
	format, err := service.ParseExportFormat(c.Query("format"))
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, err.Error()))
		return
	}
	result, err := h.exports.Export(c.Request.Context(), c.Param("classId"), format)
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", result.Filename))
	c.Data(http.StatusOK, result.ContentType, result.Payload)
}

// BulkSchedule godoc
// @Summary Schedule every class of a grade level
// @Description Generates and saves a timetable for each class of the grade in sequence. Per-class failures are reported in the result, never as a batch error.
// @Tags Timetables
// @Accept json
// @Produce json
// @Param payload body dto.BulkScheduleRequest true "Bulk schedule payload"
// @Success 200 {object} response.Envelope
// @Router /timetables/bulk [post]
func (h *TimetableHandler) BulkSchedule(c *gin.Context) {
	var req dto.BulkScheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid bulk schedule payload"))
		return
	}
	result, err := h.bulk.Run(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	for _, outcome := range result.Results {
		h.metrics.RecordBulkOutcome(string(outcome.Outcome))
	}
	response.JSON(c, http.StatusOK, result, nil)
}

type generateFunc func(ctx context.Context, classID string, opts dto.ScheduleOptions) (*dto.GenerationResponse, error)

func (h *TimetableHandler) handleGenerate(c *gin.Context, generate generateFunc) {
	var req dto.GeneratePreviewRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid generation payload"))
			return
		}
	}

	start := time.Now()
	result, err := generate(c.Request.Context(), c.Param("classId"), req.Options)
	if err != nil {
		response.Error(c, err)
		return
	}
	kinds := make([]string, 0, len(result.Conflicts))
	for _, conflict := range result.Conflicts {
		kinds = append(kinds, string(conflict.Kind))
	}
	h.metrics.ObserveGeneration(time.Since(start), kinds)

	response.JSON(c, http.StatusOK, result, nil)
}

// saveError surfaces the existing timetable id alongside a save conflict so
// the client can drive the replace flow.
func (h *TimetableHandler) saveError(c *gin.Context, err error) {
	var exists *models.TimetableExistsError
	if errors.As(err, &exists) {
		response.ErrorWithMeta(c, err, map[string]interface{}{
			"existingTimetableId": exists.ExistingID,
		})
		return
	}
	response.Error(c, err)
}

func slotParams(c *gin.Context) (models.Weekday, int, error) {
	day, err := models.ParseWeekday(c.Param("day"))
	if err != nil {
		return "", 0, appErrors.Clone(appErrors.ErrValidation, err.Error())
	}
	period, err := strconv.Atoi(c.Param("period"))
	if err != nil {
		return "", 0, appErrors.Clone(appErrors.ErrValidation, "period must be a number")
	}
	return day, period, nil
}
