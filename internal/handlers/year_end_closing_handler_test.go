package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/templeerp/yearend/internal/models"
	"github.com/templeerp/yearend/internal/repository"
	"github.com/templeerp/yearend/internal/services"
)

// mockClosingService overrides only what a test needs
type mockClosingService struct {
	closingService
	executeFn  func(ctx context.Context, orgID uint, actor services.Actor) (*models.ClosingRun, error)
	summaryFn  func(ctx context.Context, orgID uint) (*services.ClosingSummary, error)
	progressFn func(ctx context.Context, orgID uint) (*services.Progress, error)
	listFn     func(ctx context.Context, orgID uint, query *repository.ListQuery) ([]models.ClosingRun, int64, error)
	snapshotFn func(ctx context.Context, orgID uint, runID string) ([]byte, error)
}

func (m *mockClosingService) Execute(ctx context.Context, orgID uint, actor services.Actor) (*models.ClosingRun, error) {
	return m.executeFn(ctx, orgID, actor)
}

func (m *mockClosingService) GetSummary(ctx context.Context, orgID uint) (*services.ClosingSummary, error) {
	return m.summaryFn(ctx, orgID)
}

func (m *mockClosingService) GetProgress(ctx context.Context, orgID uint) (*services.Progress, error) {
	return m.progressFn(ctx, orgID)
}

func (m *mockClosingService) ListRuns(ctx context.Context, orgID uint, query *repository.ListQuery) ([]models.ClosingRun, int64, error) {
	return m.listFn(ctx, orgID, query)
}

func (m *mockClosingService) GetRunSnapshot(ctx context.Context, orgID uint, runID string) ([]byte, error) {
	return m.snapshotFn(ctx, orgID, runID)
}

func newTestContext(method, target string) (*gin.Context, *httptest.ResponseRecorder) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request, _ = http.NewRequest(method, target, nil)
	c.Set("userID", uint(7))
	c.Set("organizationID", uint(3))
	return c, w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestYearEndClosingHandler_Execute(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantErrors int
	}{
		{"accepted", nil, http.StatusAccepted, 0},
		{"already running", services.ErrClosingInProgress, http.StatusConflict, 1},
		{
			name: "invalid configuration",
			err: &services.ValidationError{Issues: []services.ValidationIssue{
				{Kind: services.IssueConfiguration, Message: "multiple ledgers are flagged as the profit and loss ledger: A, B"},
				{Kind: services.IssueConsistency, Message: "trial balance is out of balance by 0.50"},
			}},
			wantStatus: http.StatusUnprocessableEntity,
			wantErrors: 2,
		},
		{
			name: "next year exists",
			err: &services.ValidationError{Issues: []services.ValidationIssue{
				{Kind: services.IssueStateConflict, Message: "a fiscal year starting 2025-04-01 already exists"},
			}},
			wantStatus: http.StatusConflict,
			wantErrors: 1,
		},
		{"database down", errors.New("connection refused"), http.StatusInternalServerError, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotOrg uint
			var gotActor services.Actor
			svc := &mockClosingService{
				executeFn: func(ctx context.Context, orgID uint, actor services.Actor) (*models.ClosingRun, error) {
					gotOrg, gotActor = orgID, actor
					if tt.err != nil {
						return nil, tt.err
					}
					return &models.ClosingRun{RunID: "run-1", Status: models.RunStatusProcessing, Phase: models.PhaseValidating, Percent: 10}, nil
				},
			}
			c, w := newTestContext(http.MethodPost, "/api/v1/year_end_closing/execute")

			NewYearEndClosingHandler(svc).Execute(c)

			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Equal(t, uint(3), gotOrg)
			assert.Equal(t, uint(7), gotActor.UserID)

			body := decodeBody(t, w)
			if tt.err == nil {
				run := body["run"].(map[string]interface{})
				assert.Equal(t, "run-1", run["run_id"])
				return
			}
			assert.NotEmpty(t, body["error"])
			assert.Len(t, body["errors"], tt.wantErrors)
		})
	}
}

func TestYearEndClosingHandler_SummaryWithoutActiveYear(t *testing.T) {
	svc := &mockClosingService{
		summaryFn: func(ctx context.Context, orgID uint) (*services.ClosingSummary, error) {
			return nil, services.ErrNoActiveYear
		},
	}
	c, w := newTestContext(http.MethodGet, "/api/v1/year_end_closing/summary")

	NewYearEndClosingHandler(svc).Summary(c)

	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, services.ErrNoActiveYear.Error(), decodeBody(t, w)["error"])
}

func TestYearEndClosingHandler_Progress(t *testing.T) {
	svc := &mockClosingService{
		progressFn: func(ctx context.Context, orgID uint) (*services.Progress, error) {
			return &services.Progress{RunID: "run-1", Percent: 60, Status: models.RunStatusProcessing, Phase: models.PhaseTransferring, Message: "Transferring ledger balances (3/6)"}, nil
		},
	}
	c, w := newTestContext(http.MethodGet, "/api/v1/year_end_closing/progress")

	NewYearEndClosingHandler(svc).Progress(c)

	require.Equal(t, http.StatusOK, w.Code)
	body := decodeBody(t, w)
	assert.EqualValues(t, 60, body["percent"])
	assert.Equal(t, models.PhaseTransferring, body["phase"])
}

func TestYearEndClosingHandler_RunsPagination(t *testing.T) {
	var gotQuery *repository.ListQuery
	svc := &mockClosingService{
		listFn: func(ctx context.Context, orgID uint, query *repository.ListQuery) ([]models.ClosingRun, int64, error) {
			gotQuery = query
			return []models.ClosingRun{{RunID: "a"}, {RunID: "b"}}, 12, nil
		},
	}
	c, w := newTestContext(http.MethodGet, "/api/v1/year_end_closing/runs?page=2&per_page=5")

	NewYearEndClosingHandler(svc).Runs(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 2, gotQuery.Page)
	assert.Equal(t, 5, gotQuery.PerPage)
	pagination := decodeBody(t, w)["pagination"].(map[string]interface{})
	assert.EqualValues(t, 3, pagination["total_pages"])
}

func TestYearEndClosingHandler_SnapshotNotFound(t *testing.T) {
	svc := &mockClosingService{
		snapshotFn: func(ctx context.Context, orgID uint, runID string) ([]byte, error) {
			return nil, services.ErrNotFound
		},
	}
	c, w := newTestContext(http.MethodGet, "/api/v1/year_end_closing/runs/missing/snapshot")
	c.Params = gin.Params{{Key: "run_id", Value: "missing"}}

	NewYearEndClosingHandler(svc).Snapshot(c)

	assert.Equal(t, http.StatusNotFound, w.Code)
}
