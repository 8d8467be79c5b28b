package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/SscSPs/recurring_journal_engine/internal/apperrors"
	"github.com/SscSPs/recurring_journal_engine/internal/core/domain"
	portssvc "github.com/SscSPs/recurring_journal_engine/internal/core/ports/services"
	"github.com/SscSPs/recurring_journal_engine/internal/dto"
	"github.com/SscSPs/recurring_journal_engine/internal/middleware"
	"github.com/gin-gonic/gin"
)

// recurringJournalHandler handles HTTP requests related to recurring journal definitions.
type recurringJournalHandler struct {
	definitionService portssvc.DefinitionSvcFacade
	previewService    portssvc.PreviewSvc
	occurrenceService portssvc.OccurrenceSvc
	runService        portssvc.RunSvc
}

// newRecurringJournalHandler creates a new recurringJournalHandler.
func newRecurringJournalHandler(services *portssvc.ServiceContainer) *recurringJournalHandler {
	return &recurringJournalHandler{
		definitionService: services.Definition,
		previewService:    services.Preview,
		occurrenceService: services.Occurrence,
		runService:        services.Run,
	}
}

// RegisterRecurringJournalRoutes registers the definition routes under a workplace group
// (/workplaces/:workplace_id) and the batch route under the API root group.
func RegisterRecurringJournalRoutes(workplaceGroup, apiGroup *gin.RouterGroup, services *portssvc.ServiceContainer) {
	h := newRecurringJournalHandler(services)

	recurring := workplaceGroup.Group("/recurring-journals")
	{
		recurring.POST("", h.createRecurringJournal)
		recurring.GET("", h.listRecurringJournals)
		recurring.GET("/:definition_id", h.getRecurringJournal)
		recurring.PUT("/:definition_id", h.updateRecurringJournal)
		recurring.POST("/:definition_id/pause", h.pauseRecurringJournal)
		recurring.POST("/:definition_id/resume", h.resumeRecurringJournal)
		recurring.POST("/:definition_id/cancel", h.cancelRecurringJournal)
		recurring.POST("/:definition_id/skip", h.skipOccurrence)
		recurring.GET("/:definition_id/preview", h.previewRecurringJournal)
		recurring.POST("/:definition_id/run", h.runRecurringJournal)
		recurring.GET("/:definition_id/occurrences", h.listOccurrences)
		recurring.GET("/:definition_id/stats", h.getStatistics)
	}

	apiGroup.POST("/recurring-journals/run-due", middleware.RequireAllWorkplaces(), h.runDue)
}

// respondWithError maps service errors onto HTTP status codes.
func respondWithError(c *gin.Context, logger *slog.Logger, err error, action string) {
	switch {
	case errors.Is(err, apperrors.ErrNotFound):
		logger.Warn(action+" failed: not found", slog.String("error", err.Error()))
		c.JSON(http.StatusNotFound, gin.H{"error": "Recurring journal not found"})
	case errors.Is(err, apperrors.ErrValidation), errors.Is(err, apperrors.ErrUnbalancedTemplate):
		logger.Warn(action+" failed: invalid input", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, apperrors.ErrConflict), errors.Is(err, apperrors.ErrDuplicate):
		logger.Warn(action+" failed: conflict", slog.String("error", err.Error()))
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, apperrors.ErrForbidden):
		logger.Warn(action+" failed: forbidden", slog.String("error", err.Error()))
		c.JSON(http.StatusForbidden, gin.H{"error": "Forbidden"})
	default:
		logger.Error(action+" failed", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to " + action})
	}
}

// requireUser reads the authenticated user ID, answering 401 when it is missing.
func requireUser(c *gin.Context, logger *slog.Logger) (string, bool) {
	userID, ok := middleware.GetUserIDFromContext(c)
	if !ok {
		logger.Error("User ID not found in context")
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return "", false
	}
	return userID, true
}

// createRecurringJournal godoc
// @Summary Create a recurring journal
// @Description Creates a recurring journal definition with its entry template. The first run date is derived from the start date.
// @Tags recurring-journals
// @Accept  json
// @Produce  json
// @Param   workplace_id path string true "Workplace ID"
// @Param   definition body dto.CreateRecurringJournalRequest true "Recurring journal definition"
// @Success 201 {object} dto.RecurringJournalResponse
// @Failure 400 {object} map[string]string "Invalid input or unbalanced template"
// @Failure 401 {object} map[string]string "Unauthorized"
// @Failure 500 {object} map[string]string "Failed to create recurring journal"
// @Security BearerAuth
// @Router /workplaces/{workplace_id}/recurring-journals [post]
func (h *recurringJournalHandler) createRecurringJournal(c *gin.Context) {
	logger := middleware.GetLoggerFromCtx(c.Request.Context())
	workplaceID := c.Param("workplace_id")

	var req dto.CreateRecurringJournalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.Warn("Failed to bind JSON for CreateRecurringJournal", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format: " + err.Error()})
		return
	}
	userID, ok := requireUser(c, logger)
	if !ok {
		return
	}
	logger = logger.With(slog.String("workplace_id", workplaceID))

	def, err := h.definitionService.CreateDefinition(c.Request.Context(), workplaceID, req, userID)
	if err != nil {
		respondWithError(c, logger, err, "create recurring journal")
		return
	}

	logger.Info("Recurring journal created", slog.String("definition_id", def.DefinitionID))
	c.JSON(http.StatusCreated, dto.ToRecurringJournalResponse(def))
}

// listRecurringJournals godoc
// @Summary List recurring journals
// @Description Lists the recurring journal definitions of a workplace with their dashboard fields.
// @Tags recurring-journals
// @Produce  json
// @Param   workplace_id path string true "Workplace ID"
// @Param   status query []string false "Filter by status" collectionFormat(multi)
// @Param   limit query int false "Page size" default(20)
// @Param   offset query int false "Offset" default(0)
// @Success 200 {object} dto.ListRecurringJournalsResponse
// @Failure 400 {object} map[string]string "Invalid query parameters"
// @Failure 500 {object} map[string]string "Failed to list recurring journals"
// @Security BearerAuth
// @Router /workplaces/{workplace_id}/recurring-journals [get]
func (h *recurringJournalHandler) listRecurringJournals(c *gin.Context) {
	logger := middleware.GetLoggerFromCtx(c.Request.Context())
	workplaceID := c.Param("workplace_id")

	var params dto.ListRecurringJournalsParams
	if err := c.ShouldBindQuery(&params); err != nil {
		logger.Warn("Failed to bind query for ListRecurringJournals", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid query parameters: " + err.Error()})
		return
	}

	defs, err := h.definitionService.ListDefinitions(c.Request.Context(), workplaceID, params)
	if err != nil {
		respondWithError(c, logger, err, "list recurring journals")
		return
	}

	logger.Debug("Recurring journals listed", slog.String("workplace_id", workplaceID), slog.Int("count", len(defs)))
	c.JSON(http.StatusOK, dto.ListRecurringJournalsResponse{Definitions: dto.ToRecurringJournalResponses(defs)})
}

// getRecurringJournal godoc
// @Summary Get a recurring journal
// @Tags recurring-journals
// @Produce  json
// @Param   workplace_id path string true "Workplace ID"
// @Param   definition_id path string true "Definition ID"
// @Success 200 {object} dto.RecurringJournalResponse
// @Failure 404 {object} map[string]string "Recurring journal not found"
// @Security BearerAuth
// @Router /workplaces/{workplace_id}/recurring-journals/{definition_id} [get]
func (h *recurringJournalHandler) getRecurringJournal(c *gin.Context) {
	logger := middleware.GetLoggerFromCtx(c.Request.Context())
	def, err := h.definitionService.GetDefinition(c.Request.Context(), c.Param("workplace_id"), c.Param("definition_id"))
	if err != nil {
		respondWithError(c, logger, err, "get recurring journal")
		return
	}
	c.JSON(http.StatusOK, dto.ToRecurringJournalResponse(def))
}

// updateRecurringJournal godoc
// @Summary Update a recurring journal
// @Description Updates name, recurrence or template. Recurrence changes recompute the next run date. Completed and cancelled definitions only accept name and description.
// @Tags recurring-journals
// @Accept  json
// @Produce  json
// @Param   workplace_id path string true "Workplace ID"
// @Param   definition_id path string true "Definition ID"
// @Param   definition body dto.UpdateRecurringJournalRequest true "Fields to update"
// @Success 200 {object} dto.RecurringJournalResponse
// @Failure 400 {object} map[string]string "Invalid input"
// @Failure 404 {object} map[string]string "Recurring journal not found"
// @Failure 409 {object} map[string]string "Definition is locked"
// @Security BearerAuth
// @Router /workplaces/{workplace_id}/recurring-journals/{definition_id} [put]
func (h *recurringJournalHandler) updateRecurringJournal(c *gin.Context) {
	logger := middleware.GetLoggerFromCtx(c.Request.Context())
	definitionID := c.Param("definition_id")

	var req dto.UpdateRecurringJournalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.Warn("Failed to bind JSON for UpdateRecurringJournal", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format: " + err.Error()})
		return
	}
	userID, ok := requireUser(c, logger)
	if !ok {
		return
	}

	def, err := h.definitionService.UpdateDefinition(c.Request.Context(), c.Param("workplace_id"), definitionID, req, userID)
	if err != nil {
		respondWithError(c, logger, err, "update recurring journal")
		return
	}
	c.JSON(http.StatusOK, dto.ToRecurringJournalResponse(def))
}

// pauseRecurringJournal godoc
// @Summary Pause a recurring journal
// @Tags recurring-journals
// @Produce  json
// @Param   workplace_id path string true "Workplace ID"
// @Param   definition_id path string true "Definition ID"
// @Success 200 {object} dto.RecurringJournalResponse
// @Failure 404 {object} map[string]string "Recurring journal not found"
// @Failure 409 {object} map[string]string "Invalid status transition"
// @Security BearerAuth
// @Router /workplaces/{workplace_id}/recurring-journals/{definition_id}/pause [post]
func (h *recurringJournalHandler) pauseRecurringJournal(c *gin.Context) {
	logger := middleware.GetLoggerFromCtx(c.Request.Context())
	userID, ok := requireUser(c, logger)
	if !ok {
		return
	}
	def, err := h.definitionService.PauseDefinition(c.Request.Context(), c.Param("workplace_id"), c.Param("definition_id"), userID)
	if err != nil {
		respondWithError(c, logger, err, "pause recurring journal")
		return
	}
	c.JSON(http.StatusOK, dto.ToRecurringJournalResponse(def))
}

// resumeRecurringJournal godoc
// @Summary Resume a recurring journal
// @Description Reactivates a paused definition. Missed dates are caught up one per run unless reanchor is set.
// @Tags recurring-journals
// @Accept  json
// @Produce  json
// @Param   workplace_id path string true "Workplace ID"
// @Param   definition_id path string true "Definition ID"
// @Param   options body dto.ResumeRecurringJournalRequest false "Resume options"
// @Success 200 {object} dto.RecurringJournalResponse
// @Failure 404 {object} map[string]string "Recurring journal not found"
// @Failure 409 {object} map[string]string "Invalid status transition"
// @Security BearerAuth
// @Router /workplaces/{workplace_id}/recurring-journals/{definition_id}/resume [post]
func (h *recurringJournalHandler) resumeRecurringJournal(c *gin.Context) {
	logger := middleware.GetLoggerFromCtx(c.Request.Context())

	var req dto.ResumeRecurringJournalRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			logger.Warn("Failed to bind JSON for ResumeRecurringJournal", slog.String("error", err.Error()))
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format: " + err.Error()})
			return
		}
	}
	userID, ok := requireUser(c, logger)
	if !ok {
		return
	}

	def, err := h.definitionService.ResumeDefinition(c.Request.Context(), c.Param("workplace_id"), c.Param("definition_id"),
		portssvc.ResumeOptions{Reanchor: req.Reanchor}, userID)
	if err != nil {
		respondWithError(c, logger, err, "resume recurring journal")
		return
	}
	c.JSON(http.StatusOK, dto.ToRecurringJournalResponse(def))
}

// cancelRecurringJournal godoc
// @Summary Cancel a recurring journal
// @Tags recurring-journals
// @Produce  json
// @Param   workplace_id path string true "Workplace ID"
// @Param   definition_id path string true "Definition ID"
// @Success 200 {object} dto.RecurringJournalResponse
// @Failure 404 {object} map[string]string "Recurring journal not found"
// @Failure 409 {object} map[string]string "Invalid status transition"
// @Security BearerAuth
// @Router /workplaces/{workplace_id}/recurring-journals/{definition_id}/cancel [post]
func (h *recurringJournalHandler) cancelRecurringJournal(c *gin.Context) {
	logger := middleware.GetLoggerFromCtx(c.Request.Context())
	userID, ok := requireUser(c, logger)
	if !ok {
		return
	}
	def, err := h.definitionService.CancelDefinition(c.Request.Context(), c.Param("workplace_id"), c.Param("definition_id"), userID)
	if err != nil {
		respondWithError(c, logger, err, "cancel recurring journal")
		return
	}
	c.JSON(http.StatusOK, dto.ToRecurringJournalResponse(def))
}

// skipOccurrence godoc
// @Summary Skip the current due date
// @Description Records the next scheduled date as skipped and advances the schedule without posting.
// @Tags recurring-journals
// @Accept  json
// @Produce  json
// @Param   workplace_id path string true "Workplace ID"
// @Param   definition_id path string true "Definition ID"
// @Param   skip body dto.SkipOccurrenceRequest false "Skip reason"
// @Success 200 {object} dto.OccurrenceResponse
// @Failure 404 {object} map[string]string "Recurring journal not found"
// @Failure 409 {object} map[string]string "Definition inactive or run in progress"
// @Security BearerAuth
// @Router /workplaces/{workplace_id}/recurring-journals/{definition_id}/skip [post]
func (h *recurringJournalHandler) skipOccurrence(c *gin.Context) {
	logger := middleware.GetLoggerFromCtx(c.Request.Context())
	workplaceID := c.Param("workplace_id")
	definitionID := c.Param("definition_id")

	var req dto.SkipOccurrenceRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			logger.Warn("Failed to bind JSON for SkipOccurrence", slog.String("error", err.Error()))
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format: " + err.Error()})
			return
		}
	}
	userID, ok := requireUser(c, logger)
	if !ok {
		return
	}
	if _, err := h.definitionService.GetDefinition(c.Request.Context(), workplaceID, definitionID); err != nil {
		respondWithError(c, logger, err, "skip occurrence")
		return
	}

	occ, err := h.runService.SkipOccurrence(c.Request.Context(), definitionID, req.Reason, userID)
	if err != nil {
		respondWithError(c, logger, err, "skip occurrence")
		return
	}
	c.JSON(http.StatusOK, dto.ToOccurrenceResponse(occ))
}

// previewRecurringJournal godoc
// @Summary Preview upcoming run dates
// @Description Projects the next run dates without changing anything. Weekends and holidays are flagged, not shifted.
// @Tags recurring-journals
// @Produce  json
// @Param   workplace_id path string true "Workplace ID"
// @Param   definition_id path string true "Definition ID"
// @Param   limit query int false "Number of dates" default(12)
// @Param   from query string false "Skip dates before this date (YYYY-MM-DD)"
// @Success 200 {object} dto.PreviewResponse
// @Failure 400 {object} map[string]string "Invalid query parameters"
// @Failure 404 {object} map[string]string "Recurring journal not found"
// @Security BearerAuth
// @Router /workplaces/{workplace_id}/recurring-journals/{definition_id}/preview [get]
func (h *recurringJournalHandler) previewRecurringJournal(c *gin.Context) {
	logger := middleware.GetLoggerFromCtx(c.Request.Context())
	definitionID := c.Param("definition_id")

	var params dto.PreviewParams
	if err := c.ShouldBindQuery(&params); err != nil {
		logger.Warn("Failed to bind query for PreviewRecurringJournal", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid query parameters: " + err.Error()})
		return
	}
	var from *time.Time
	if params.From != "" {
		d, err := domain.ParseDate(params.From)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid from date"})
			return
		}
		from = &d
	}

	items, err := h.previewService.PreviewOccurrences(c.Request.Context(), c.Param("workplace_id"), definitionID, params.Limit, from)
	if err != nil {
		respondWithError(c, logger, err, "preview recurring journal")
		return
	}
	c.JSON(http.StatusOK, dto.ToPreviewResponse(definitionID, items))
}

// runRecurringJournal godoc
// @Summary Run a recurring journal
// @Description Materializes and posts the due date of a definition. A dry run returns the draft without posting. Posting failures are reported in the result with success=false.
// @Tags recurring-journals
// @Accept  json
// @Produce  json
// @Param   workplace_id path string true "Workplace ID"
// @Param   definition_id path string true "Definition ID"
// @Param   run body dto.RunRecurringJournalRequest false "Run options"
// @Success 200 {object} domain.RunResult
// @Failure 400 {object} map[string]string "Invalid input or unbalanced template"
// @Failure 404 {object} map[string]string "Recurring journal not found"
// @Failure 409 {object} map[string]string "Definition inactive or run in progress"
// @Security BearerAuth
// @Router /workplaces/{workplace_id}/recurring-journals/{definition_id}/run [post]
func (h *recurringJournalHandler) runRecurringJournal(c *gin.Context) {
	logger := middleware.GetLoggerFromCtx(c.Request.Context())
	workplaceID := c.Param("workplace_id")
	definitionID := c.Param("definition_id")

	var req dto.RunRecurringJournalRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			logger.Warn("Failed to bind JSON for RunRecurringJournal", slog.String("error", err.Error()))
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format: " + err.Error()})
			return
		}
	}
	userID, ok := requireUser(c, logger)
	if !ok {
		return
	}
	opts, err := req.ToRunOptions(userID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid run date"})
		return
	}
	if _, err := h.definitionService.GetDefinition(c.Request.Context(), workplaceID, definitionID); err != nil {
		respondWithError(c, logger, err, "run recurring journal")
		return
	}

	result, err := h.runService.Run(c.Request.Context(), definitionID, opts)
	if err != nil {
		respondWithError(c, logger, err, "run recurring journal")
		return
	}

	logger.Info("Recurring journal run finished",
		slog.String("definition_id", definitionID),
		slog.Bool("success", result.Success),
		slog.Bool("dry_run", result.DryRun))
	c.JSON(http.StatusOK, result)
}

// listOccurrences godoc
// @Summary List occurrences of a recurring journal
// @Description Lists the occurrence log newest first, with token based pagination.
// @Tags recurring-journals
// @Produce  json
// @Param   workplace_id path string true "Workplace ID"
// @Param   definition_id path string true "Definition ID"
// @Param   status query []string false "Filter by status" collectionFormat(multi)
// @Param   limit query int false "Page size" default(20)
// @Param   nextToken query string false "Token from the previous page"
// @Success 200 {object} dto.ListOccurrencesResponse
// @Failure 400 {object} map[string]string "Invalid query parameters"
// @Failure 404 {object} map[string]string "Recurring journal not found"
// @Security BearerAuth
// @Router /workplaces/{workplace_id}/recurring-journals/{definition_id}/occurrences [get]
func (h *recurringJournalHandler) listOccurrences(c *gin.Context) {
	logger := middleware.GetLoggerFromCtx(c.Request.Context())

	var params dto.ListOccurrencesParams
	if err := c.ShouldBindQuery(&params); err != nil {
		logger.Warn("Failed to bind query for ListOccurrences", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid query parameters: " + err.Error()})
		return
	}

	occs, next, err := h.occurrenceService.ListOccurrences(c.Request.Context(), c.Param("workplace_id"), c.Param("definition_id"),
		domain.OccurrenceFilter{Statuses: params.Status, Limit: params.Limit, NextToken: params.NextToken})
	if err != nil {
		respondWithError(c, logger, err, "list occurrences")
		return
	}
	c.JSON(http.StatusOK, dto.ListOccurrencesResponse{Occurrences: dto.ToOccurrenceResponses(occs), NextToken: next})
}

// getStatistics godoc
// @Summary Get occurrence statistics
// @Tags recurring-journals
// @Produce  json
// @Param   workplace_id path string true "Workplace ID"
// @Param   definition_id path string true "Definition ID"
// @Success 200 {object} domain.OccurrenceStats
// @Failure 404 {object} map[string]string "Recurring journal not found"
// @Security BearerAuth
// @Router /workplaces/{workplace_id}/recurring-journals/{definition_id}/stats [get]
func (h *recurringJournalHandler) getStatistics(c *gin.Context) {
	logger := middleware.GetLoggerFromCtx(c.Request.Context())
	stats, err := h.occurrenceService.GetStatistics(c.Request.Context(), c.Param("workplace_id"), c.Param("definition_id"))
	if err != nil {
		respondWithError(c, logger, err, "get occurrence statistics")
		return
	}
	c.JSON(http.StatusOK, stats)
}

// runDue godoc
// @Summary Run all due recurring journals
// @Description Runs every active definition whose next run date is on or before asOf (default today), one due date each.
// @Description Needs a token without a workplaces claim. asOf may not lie in the future.
// @Tags recurring-journals
// @Accept  json
// @Produce  json
// @Param   request body dto.RunDueRequest false "As-of date"
// @Success 200 {object} domain.BatchRunResult
// @Failure 400 {object} map[string]string "Invalid input or future asOf"
// @Failure 403 {object} map[string]string "Token limited to some workplaces"
// @Failure 500 {object} map[string]string "Failed to run due recurring journals"
// @Security BearerAuth
// @Router /recurring-journals/run-due [post]
func (h *recurringJournalHandler) runDue(c *gin.Context) {
	logger := middleware.GetLoggerFromCtx(c.Request.Context())

	var req dto.RunDueRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			logger.Warn("Failed to bind JSON for RunDue", slog.String("error", err.Error()))
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format: " + err.Error()})
			return
		}
	}
	asOf := time.Now().UTC()
	if req.AsOf != nil && *req.AsOf != "" {
		d, err := domain.ParseDate(*req.AsOf)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid asOf date"})
			return
		}
		if d.After(domain.DateOf(asOf)) {
			logger.Warn("RunDue asOf in the future", slog.String("as_of", *req.AsOf))
			c.JSON(http.StatusBadRequest, gin.H{"error": "asOf may not be later than today"})
			return
		}
		asOf = d
	}

	batch, err := h.runService.RunDue(c.Request.Context(), asOf)
	if err != nil {
		respondWithError(c, logger, err, "run due recurring journals")
		return
	}
	c.JSON(http.StatusOK, batch)
}
