package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/templeerp/yearend/internal/middleware"
	"github.com/templeerp/yearend/internal/models"
	"github.com/templeerp/yearend/internal/repository"
	"github.com/templeerp/yearend/internal/services"
)

// closingService is satisfied by *services.YearEndClosingService
type closingService interface {
	GetSummary(ctx context.Context, orgID uint) (*services.ClosingSummary, error)
	Validate(ctx context.Context, orgID uint) (*services.ValidationResult, error)
	Execute(ctx context.Context, orgID uint, actor services.Actor) (*models.ClosingRun, error)
	GetProgress(ctx context.Context, orgID uint) (*services.Progress, error)
	ListRuns(ctx context.Context, orgID uint, query *repository.ListQuery) ([]models.ClosingRun, int64, error)
	GetRun(ctx context.Context, orgID uint, runID string) (*models.ClosingRun, error)
	GetRunSnapshot(ctx context.Context, orgID uint, runID string) ([]byte, error)
}

type YearEndClosingHandler struct {
	closingService closingService
}

func NewYearEndClosingHandler(closingService closingService) *YearEndClosingHandler {
	return &YearEndClosingHandler{closingService: closingService}
}

// @Summary Closing Summary
// @Description Balance sheet totals, profit and loss and closing readiness of the active fiscal year
// @Tags Year End Closing
// @Produce json
// @Success 200 {object} services.ClosingSummary
// @Failure 409 {object} map[string]interface{}
// @Security BearerAuth
// @Router /year_end_closing/summary [get]
func (h *YearEndClosingHandler) Summary(c *gin.Context) {
	summary, err := h.closingService.GetSummary(c.Request.Context(), middleware.GetOrganizationID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

// @Summary Validate Closing
// @Description Checks every closing precondition without writing anything
// @Tags Year End Closing
// @Produce json
// @Success 200 {object} services.ValidationResult
// @Security BearerAuth
// @Router /year_end_closing/validate [get]
func (h *YearEndClosingHandler) Validate(c *gin.Context) {
	result, err := h.closingService.Validate(c.Request.Context(), middleware.GetOrganizationID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// @Summary Execute Closing
// @Description Validates and starts closing the active fiscal year in the background. Poll progress for the outcome.
// @Tags Year End Closing
// @Produce json
// @Success 202 {object} map[string]interface{}
// @Failure 409 {object} map[string]interface{}
// @Failure 422 {object} map[string]interface{}
// @Security BearerAuth
// @Router /year_end_closing/execute [post]
func (h *YearEndClosingHandler) Execute(c *gin.Context) {
	actor := services.Actor{
		UserID:    middleware.GetUserID(c),
		IP:        c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
	}

	run, err := h.closingService.Execute(c.Request.Context(), middleware.GetOrganizationID(c), actor)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"message":      "Year-end closing started",
		"run":          run,
		"progress_url": "/api/v1/year_end_closing/progress",
	})
}

// @Summary Closing Progress
// @Description Percent, phase and message of the latest closing run
// @Tags Year End Closing
// @Produce json
// @Success 200 {object} services.Progress
// @Security BearerAuth
// @Router /year_end_closing/progress [get]
func (h *YearEndClosingHandler) Progress(c *gin.Context) {
	progress, err := h.closingService.GetProgress(c.Request.Context(), middleware.GetOrganizationID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, progress)
}

// @Summary List Closing Runs
// @Description Closing history of the organization, newest first
// @Tags Year End Closing
// @Produce json
// @Param page query int false "Page number" default(1)
// @Param per_page query int false "Items per page" default(20)
// @Success 200 {object} map[string]interface{}
// @Security BearerAuth
// @Router /year_end_closing/runs [get]
func (h *YearEndClosingHandler) Runs(c *gin.Context) {
	query := repository.NewListQuery()
	query.Page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
	query.PerPage, _ = strconv.Atoi(c.DefaultQuery("per_page", "20"))

	runs, total, err := h.closingService.ListRuns(c.Request.Context(), middleware.GetOrganizationID(c), query)
	if err != nil {
		respondError(c, err)
		return
	}

	perPage := query.Limit()
	c.JSON(http.StatusOK, gin.H{
		"runs": runs,
		"pagination": gin.H{
			"page":        query.Page,
			"per_page":    perPage,
			"total":       total,
			"total_pages": (total + int64(perPage) - 1) / int64(perPage),
		},
	})
}

// @Summary Get Closing Run
// @Tags Year End Closing
// @Produce json
// @Param run_id path string true "Run ID"
// @Success 200 {object} models.ClosingRun
// @Failure 404 {object} map[string]interface{}
// @Security BearerAuth
// @Router /year_end_closing/runs/{run_id} [get]
func (h *YearEndClosingHandler) ShowRun(c *gin.Context) {
	run, err := h.closingService.GetRun(c.Request.Context(), middleware.GetOrganizationID(c), c.Param("run_id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, run)
}

// @Summary Download Closing Snapshot
// @Description Ledger balances recorded before the balance transfer of a run
// @Tags Year End Closing
// @Produce json
// @Param run_id path string true "Run ID"
// @Success 200 {object} services.ClosingSnapshot
// @Failure 404 {object} map[string]interface{}
// @Security BearerAuth
// @Router /year_end_closing/runs/{run_id}/snapshot [get]
func (h *YearEndClosingHandler) Snapshot(c *gin.Context) {
	runID := c.Param("run_id")
	data, err := h.closingService.GetRunSnapshot(c.Request.Context(), middleware.GetOrganizationID(c), runID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.Header("Content-Disposition", "attachment; filename=closing_"+runID+".json")
	c.Data(http.StatusOK, "application/json", data)
}

// respondError maps service errors to status codes. Every body carries "error" and "errors".
func respondError(c *gin.Context, err error) {
	var verr *services.ValidationError
	switch {
	case errors.As(err, &verr):
		status := http.StatusUnprocessableEntity
		if verr.Has(services.IssueStateConflict) &&
			!verr.Has(services.IssueConfiguration) && !verr.Has(services.IssueConsistency) {
			status = http.StatusConflict
		}
		c.JSON(status, gin.H{"error": verr.Error(), "errors": verr.Messages()})
	case errors.Is(err, services.ErrClosingInProgress), errors.Is(err, services.ErrNoActiveYear):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error(), "errors": []string{err.Error()}})
	case errors.Is(err, services.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error(), "errors": []string{err.Error()}})
	default:
		c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error(), "errors": []string{err.Error()}})
	}
}
