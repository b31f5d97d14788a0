package commands

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/templeerp/yearend/internal/models"
	"github.com/templeerp/yearend/internal/services"
)

type fakeClosing struct {
	summary   *services.ClosingSummary
	result    *services.ValidationResult
	executeEr error
	progress  []services.Progress
	polls     int
	swept     bool
	gotOrg    uint
	gotActor  services.Actor
}

func (f *fakeClosing) GetSummary(ctx context.Context, orgID uint) (*services.ClosingSummary, error) {
	f.gotOrg = orgID
	return f.summary, nil
}

func (f *fakeClosing) Validate(ctx context.Context, orgID uint) (*services.ValidationResult, error) {
	f.gotOrg = orgID
	return f.result, nil
}

func (f *fakeClosing) Execute(ctx context.Context, orgID uint, actor services.Actor) (*models.ClosingRun, error) {
	f.gotOrg, f.gotActor = orgID, actor
	if f.executeEr != nil {
		return nil, f.executeEr
	}
	return &models.ClosingRun{RunID: "run-1"}, nil
}

func (f *fakeClosing) GetProgress(ctx context.Context, orgID uint) (*services.Progress, error) {
	p := f.progress[min(f.polls, len(f.progress)-1)]
	f.polls++
	return &p, nil
}

func (f *fakeClosing) SweepStaleRuns(ctx context.Context) error {
	f.swept = true
	return nil
}

func run(t *testing.T, fake *fakeClosing, args ...string) (string, error) {
	t.Helper()
	closed := false
	open := func(ctx context.Context) (*Runtime, error) {
		return &Runtime{Closing: fake, Close: func() { closed = true }}, nil
	}

	var out bytes.Buffer
	cmd := NewRootCommand(open)
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	if fake.gotOrg != 0 || fake.swept {
		assert.True(t, closed, "runtime must be closed")
	}
	return out.String(), err
}

func TestValidate_PrintsIssues(t *testing.T) {
	fake := &fakeClosing{result: &services.ValidationResult{
		Issues: []services.ValidationIssue{
			{Kind: services.IssueConfiguration, Message: "no ledger is flagged as the profit and loss (retained earnings) ledger"},
		},
		TrialBalance: &services.TrialBalance{TotalDebit: decimal.NewFromInt(100), TotalCredit: decimal.NewFromInt(100)},
	}}

	out, err := run(t, fake, "validate", "--org", "4")

	assert.EqualError(t, err, "1 closing precondition(s) failed")
	assert.Equal(t, uint(4), fake.gotOrg)
	assert.Contains(t, out, "trial balance: debit 100.00, credit 100.00")
	assert.Contains(t, out, "[configuration] no ledger is flagged")
}

func TestValidate_Ready(t *testing.T) {
	fake := &fakeClosing{result: &services.ValidationResult{Valid: true}}

	out, err := run(t, fake, "validate", "--org", "4")

	require.NoError(t, err)
	assert.Contains(t, out, "ready to close")
}

func TestExecute_WaitsForCompletion(t *testing.T) {
	fake := &fakeClosing{progress: []services.Progress{
		{RunID: "run-1", Percent: 40, Phase: models.PhaseTransferring, Status: models.RunStatusProcessing, Message: "Transferring ledger balances"},
		{RunID: "run-1", Percent: 40, Phase: models.PhaseTransferring, Status: models.RunStatusProcessing, Message: "Transferring ledger balances"},
		{RunID: "run-1", Percent: 100, Phase: models.PhaseCompleted, Status: models.RunStatusCompleted, Message: "Year-end closing completed"},
	}}

	out, err := run(t, fake, "execute", "--org", "4", "--user", "9", "--poll", "1ms")

	require.NoError(t, err)
	assert.Equal(t, uint(9), fake.gotActor.UserID)
	assert.Equal(t, "yearendctl", fake.gotActor.UserAgent)
	assert.Contains(t, out, "closing run run-1 started")
	assert.Equal(t, 1, bytes.Count([]byte(out), []byte("Transferring ledger balances")), "unchanged progress is printed once")
	assert.Contains(t, out, "100% completed")
}

func TestExecute_ReportsFailedRun(t *testing.T) {
	fake := &fakeClosing{progress: []services.Progress{
		{RunID: "run-1", Percent: -1, Phase: models.PhaseError, Status: models.RunStatusError, Message: "transferring_balances failed: disk full"},
	}}

	_, err := run(t, fake, "execute", "--org", "4", "--poll", "1ms")

	assert.EqualError(t, err, "closing run run-1 failed: transferring_balances failed: disk full")
}

func TestExecute_Rejected(t *testing.T) {
	fake := &fakeClosing{executeEr: services.ErrClosingInProgress}

	_, err := run(t, fake, "execute", "--org", "4")

	assert.ErrorIs(t, err, services.ErrClosingInProgress)
	assert.Zero(t, fake.polls)
}

func TestCommands_RequireOrg(t *testing.T) {
	for _, name := range []string{"summary", "validate", "execute"} {
		_, err := run(t, &fakeClosing{}, name)
		assert.True(t, errors.Is(err, errOrgRequired), name)
	}
}

func TestSweep(t *testing.T) {
	fake := &fakeClosing{}

	out, err := run(t, fake, "sweep")

	require.NoError(t, err)
	assert.True(t, fake.swept)
	assert.Contains(t, out, "stale closing runs swept")
}

func TestSummary_PrintsJSON(t *testing.T) {
	fake := &fakeClosing{summary: &services.ClosingSummary{
		NextYearPreview: services.PeriodPreview{StartDate: "2025-04-01", EndDate: "2026-03-31"},
	}}

	out, err := run(t, fake, "summary", "--org", "4")

	require.NoError(t, err)
	assert.Contains(t, out, `"start_date": "2025-04-01"`)
}
