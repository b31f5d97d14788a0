package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/templeerp/yearend/internal/jobs"
	"github.com/templeerp/yearend/internal/models"
	"github.com/templeerp/yearend/internal/repository"
	"github.com/templeerp/yearend/internal/statemachine"
	"github.com/templeerp/yearend/pkg/logger"
	"gorm.io/gorm"
)

// jobRunner is satisfied by *jobs.Worker
type jobRunner interface {
	EnqueueUncancelable(name string, job jobs.Job, dropped func(error))
}

// snapshotStore is satisfied by *storage.LocalStorage
type snapshotStore interface {
	UploadFromBytes(data []byte, filename string, subDir string) (string, error)
	Read(relativePath string) ([]byte, error)
	Exists(relativePath string) bool
}

// ClosingOptions tunes the closing job
type ClosingOptions struct {
	BatchSize  int
	StaleAfter time.Duration
}

// Actor identifies who triggered a closing
type Actor struct {
	UserID    uint
	IP        string
	UserAgent string
}

// ValidationResult is the dry-run outcome of every closing precondition
type ValidationResult struct {
	Valid        bool                       `json:"valid"`
	Errors       []string                   `json:"errors"`
	Issues       []ValidationIssue          `json:"issues"`
	CurrentYear  *models.FiscalYearResponse `json:"current_year,omitempty"`
	TrialBalance *TrialBalance              `json:"trial_balance,omitempty"`
}

// Progress is the pollable state of the latest closing of an organization
type Progress struct {
	RunID     string     `json:"run_id,omitempty"`
	Percent   int        `json:"percent"`
	Message   string     `json:"message"`
	Status    string     `json:"status"`
	Phase     string     `json:"phase"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`
}

// PeriodPreview is the period the next fiscal year will cover
type PeriodPreview struct {
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
	Exists    bool   `json:"exists"`
}

// BalanceSheetTotals are shown in their normal sign: assets as debit, liabilities and equity as credit
type BalanceSheetTotals struct {
	Assets      decimal.Decimal `json:"assets"`
	Liabilities decimal.Decimal `json:"liabilities"`
	Equity      decimal.Decimal `json:"equity"`
	ProfitLoss  decimal.Decimal `json:"profit_loss"`
}

// PALedgerInfo describes the retained-earnings ledger configuration
type PALedgerInfo struct {
	Configured bool           `json:"configured"`
	Count      int            `json:"count"`
	Valid      bool           `json:"valid"`
	LedgerID   uint           `json:"ledger_id,omitempty"`
	Name       string         `json:"name,omitempty"`
	GroupCode  string         `json:"group_code,omitempty"`
	GroupName  string         `json:"group_name,omitempty"`
	Balance    *LedgerBalance `json:"balance,omitempty"`
}

// LedgerCounts counts the organization's ledgers
type LedgerCounts struct {
	Total              int `json:"total"`
	WithNonzeroBalance int `json:"with_nonzero_balance"`
}

// ClosingSummary is the read-only overview shown before closing
type ClosingSummary struct {
	CurrentYear        models.FiscalYearResponse `json:"current_year"`
	NextYearPreview    PeriodPreview             `json:"next_year_preview"`
	BalanceSheetTotals BalanceSheetTotals        `json:"balance_sheet_totals"`
	ProfitLoss         ProfitLoss                `json:"profit_loss"`
	PALedgerInfo       PALedgerInfo              `json:"pa_ledger_info"`
	LedgerCounts       LedgerCounts              `json:"ledger_counts"`
}

// YearEndClosingService validates and executes the closing of a fiscal year
type YearEndClosingService struct {
	yearRepo    repository.FiscalYearRepository
	chartRepo   repository.ChartRepository
	balanceRepo repository.BalanceRepository
	journalRepo repository.JournalRepository
	runRepo     repository.ClosingRunRepository
	calc        *BalanceCalculator
	aggregator  *ChartAggregator
	auditSvc    *AuditService
	worker      jobRunner
	snapshots   snapshotStore
	opts        ClosingOptions
	guard       *orgGuard
	now         func() time.Time
}

func NewYearEndClosingService(
	repos *repository.Repositories,
	auditSvc *AuditService,
	worker jobRunner,
	snapshots snapshotStore,
	opts ClosingOptions,
) *YearEndClosingService {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 100
	}
	if opts.StaleAfter <= 0 {
		opts.StaleAfter = 30 * time.Minute
	}
	calc := NewBalanceCalculator(repos.Balance, repos.Journal)
	return &YearEndClosingService{
		yearRepo:    repos.FiscalYear,
		chartRepo:   repos.Chart,
		balanceRepo: repos.Balance,
		journalRepo: repos.Journal,
		runRepo:     repos.ClosingRun,
		calc:        calc,
		aggregator:  NewChartAggregator(repos.Chart, calc),
		auditSvc:    auditSvc,
		worker:      worker,
		snapshots:   snapshots,
		opts:        opts,
		guard:       newOrgGuard(),
		now:         time.Now,
	}
}

// Calculator exposes the ledger balance calculator
func (s *YearEndClosingService) Calculator() *BalanceCalculator {
	return s.calc
}

// Aggregator exposes the chart-of-accounts aggregator
func (s *YearEndClosingService) Aggregator() *ChartAggregator {
	return s.aggregator
}

// GetSummary returns balance sheet totals and closing readiness of the active year
func (s *YearEndClosingService) GetSummary(ctx context.Context, orgID uint) (*ClosingSummary, error) {
	year, err := s.activeYear(ctx, orgID)
	if err != nil {
		return nil, err
	}

	tree, err := s.aggregator.LoadTree(ctx, orgID)
	if err != nil {
		return nil, err
	}
	snap := s.calc.Snapshot(year, year.EndDate)

	totals, err := s.aggregator.ClassTotals(ctx, tree, snap)
	if err != nil {
		return nil, err
	}
	pl, err := profitLossOf(ctx, tree, snap)
	if err != nil {
		return nil, err
	}

	start, end := year.NextPeriod()
	exists, err := s.yearRepo.ExistsStartingOn(ctx, orgID, start)
	if err != nil {
		return nil, err
	}

	counts := LedgerCounts{Total: len(tree.Ledgers())}
	for _, l := range tree.Ledgers() {
		b, err := snap.Balance(ctx, l)
		if err != nil {
			return nil, err
		}
		if !b.IsZero() {
			counts.WithNonzeroBalance++
		}
	}

	paInfo, err := s.paLedgerInfo(ctx, orgID, snap)
	if err != nil {
		return nil, err
	}

	return &ClosingSummary{
		CurrentYear: year.ToResponse(),
		NextYearPreview: PeriodPreview{
			StartDate: start.Format(models.DateLayout),
			EndDate:   end.Format(models.DateLayout),
			Exists:    exists,
		},
		BalanceSheetTotals: BalanceSheetTotals{
			Assets:      totals.Assets,
			Liabilities: totals.Liabilities.Neg(),
			Equity:      totals.Equity.Neg(),
			ProfitLoss:  pl.Net,
		},
		ProfitLoss:   pl,
		PALedgerInfo: paInfo,
		LedgerCounts: counts,
	}, nil
}

func (s *YearEndClosingService) paLedgerInfo(ctx context.Context, orgID uint, snap *BalanceSnapshot) (PALedgerInfo, error) {
	ledgers, err := s.chartRepo.FindPALedgers(ctx, orgID)
	if err != nil {
		return PALedgerInfo{}, err
	}
	info := PALedgerInfo{Configured: len(ledgers) > 0, Count: len(ledgers)}
	if len(ledgers) != 1 {
		return info, nil
	}

	l := &ledgers[0]
	info.LedgerID = l.ID
	info.Name = l.Name
	if l.Group != nil {
		info.GroupCode = l.Group.Code
		info.GroupName = l.Group.Name
		info.Valid = l.Group.Classification() == models.ClassEquity
	}
	b, err := snap.Balance(ctx, l)
	if err != nil {
		return PALedgerInfo{}, err
	}
	info.Balance = &b
	return info, nil
}

// validation holds what the checks resolved so execution does not reload it
type validation struct {
	issues   []ValidationIssue
	year     *models.FiscalYear
	paLedger *models.Ledger
	trial    *TrialBalance
}

func (v *validation) add(kind IssueKind, format string, args ...any) {
	v.issues = append(v.issues, ValidationIssue{Kind: kind, Message: fmt.Sprintf(format, args...)})
}

// Validate runs every closing precondition without writing anything
func (s *YearEndClosingService) Validate(ctx context.Context, orgID uint) (*ValidationResult, error) {
	v, err := s.validate(ctx, orgID)
	if err != nil {
		return nil, err
	}

	result := &ValidationResult{
		Valid:        len(v.issues) == 0,
		Errors:       (&ValidationError{Issues: v.issues}).Messages(),
		Issues:       v.issues,
		TrialBalance: v.trial,
	}
	if result.Issues == nil {
		result.Issues = []ValidationIssue{}
	}
	if v.year != nil {
		resp := v.year.ToResponse()
		result.CurrentYear = &resp
	}
	return result, nil
}

// validate collects every failed precondition. Errors returned are infrastructure
// failures; business failures are issues.
func (s *YearEndClosingService) validate(ctx context.Context, orgID uint) (*validation, error) {
	v := &validation{}

	pa, err := s.chartRepo.FindPALedgers(ctx, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to load profit and loss ledgers: %w", err)
	}
	switch len(pa) {
	case 0:
		v.add(IssueConfiguration, "no ledger is flagged as the profit and loss (retained earnings) ledger")
	case 1:
		l := &pa[0]
		if l.Group == nil || l.Group.Classification() != models.ClassEquity {
			code := ""
			if l.Group != nil {
				code = l.Group.Code
			}
			v.add(IssueConfiguration, "profit and loss ledger %q must belong to an equity group (3000-3999), found group %q", l.Name, code)
		} else {
			v.paLedger = l
		}
	default:
		names := make([]string, 0, len(pa))
		for _, l := range pa {
			names = append(names, l.Name)
		}
		v.add(IssueConfiguration, "multiple ledgers are flagged as the profit and loss ledger: %s", strings.Join(names, ", "))
	}

	year, err := s.yearRepo.FindActive(ctx, orgID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		v.add(IssueStateConflict, "%s", ErrNoActiveYear.Error())
		return v, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load active fiscal year: %w", err)
	}
	v.year = year

	start, _ := year.NextPeriod()
	exists, err := s.yearRepo.ExistsStartingOn(ctx, orgID, start)
	if err != nil {
		return nil, fmt.Errorf("failed to check next fiscal year: %w", err)
	}
	if exists {
		v.add(IssueStateConflict, "a fiscal year starting %s already exists", start.Format(models.DateLayout))
	}

	tb, err := s.aggregator.ComputeTrialBalance(ctx, orgID, year)
	if err != nil {
		return nil, fmt.Errorf("failed to compute trial balance: %w", err)
	}
	v.trial = &tb
	if !tb.Balanced {
		v.add(IssueConsistency, "trial balance is out of balance by %s (debit %s, credit %s)",
			tb.Difference.StringFixed(2), tb.TotalDebit.StringFixed(2), tb.TotalCredit.StringFixed(2))
	}

	return v, nil
}

// Execute validates and starts the closing of the active year on the background worker.
// It returns ErrClosingInProgress while another closing of the organization is processing
// and a *ValidationError when a precondition fails.
func (s *YearEndClosingService) Execute(ctx context.Context, orgID uint, actor Actor) (*models.ClosingRun, error) {
	if !s.guard.acquire(orgID) {
		return nil, ErrClosingInProgress
	}
	handedOff := false
	defer func() {
		if !handedOff {
			s.guard.release(orgID)
		}
	}()

	if err := s.clearStaleRun(ctx, orgID); err != nil {
		return nil, err
	}

	run := &models.ClosingRun{
		RunID:          uuid.New().String(),
		OrganizationID: orgID,
		StartedByID:    actor.UserID,
		Status:         models.RunStatusIdle,
		Phase:          models.PhaseIdle,
	}
	machine := statemachine.NewClosingFSM(run)
	if err := machine.Validate(ctx); err != nil {
		return nil, err
	}
	if err := s.runRepo.Create(ctx, run); err != nil {
		if errors.Is(err, repository.ErrRunInProgress) {
			return nil, ErrClosingInProgress
		}
		return nil, fmt.Errorf("failed to record closing run: %w", err)
	}

	ctx = logger.WithContext(ctx, "run_id", run.RunID, "organization_id", orgID)
	log := logger.FromContext(ctx)

	v, err := s.validate(ctx, orgID)
	if err != nil {
		s.fail(ctx, &closingJob{run: run, machine: machine, log: log, actor: actor}, err)
		return nil, err
	}
	if len(v.issues) > 0 {
		verr := &ValidationError{Issues: v.issues}
		if rerr := machine.Reject(ctx, verr.Error()); rerr != nil {
			log.Error("Failed to reject closing run", "error", rerr)
		}
		if uerr := s.runRepo.Update(ctx, run); uerr != nil {
			log.Error("Failed to record rejected closing run", "error", uerr)
		}
		log.Warn("Year-end closing rejected", "issues", verr.Messages())
		return nil, verr
	}

	run.FromYearID = v.year.ID
	if err := s.runRepo.Update(ctx, run); err != nil {
		return nil, fmt.Errorf("failed to record closing run: %w", err)
	}

	s.audit(ctx, orgID, actor, models.AuditActionCloseStart, "FiscalYear", v.year.ID,
		fmt.Sprintf("run %s closing %s", run.RunID, v.year.Label()))
	log.Info("Year-end closing accepted", "fiscal_year_id", v.year.ID)

	accepted := *run
	job := &closingJob{
		run:      run,
		machine:  machine,
		year:     v.year,
		paLedger: v.paLedger,
		actor:    actor,
		log:      log,
	}

	handedOff = true
	// Worker shutdown does not cancel a started closing
	s.worker.EnqueueUncancelable(closingJobPrefix+run.RunID, func(jobCtx context.Context) error {
		defer s.guard.release(orgID)
		return s.run(logger.WithContext(jobCtx, "run_id", run.RunID, "organization_id", orgID), job)
	}, func(cause error) {
		defer s.guard.release(orgID)
		dropCtx := logger.WithContext(context.Background(), "run_id", run.RunID, "organization_id", orgID)
		s.fail(dropCtx, job, fmt.Errorf("closing job was not started: %w", cause))
	})

	return &accepted, nil
}

// clearStaleRun fails a processing run that stopped reporting so a new closing can start
func (s *YearEndClosingService) clearStaleRun(ctx context.Context, orgID uint) error {
	existing, err := s.runRepo.FindProcessing(ctx, orgID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to check running closings: %w", err)
	}
	if !existing.IsStale(s.staleCutoff()) {
		return ErrClosingInProgress
	}
	return s.markInterrupted(ctx, existing)
}

func (s *YearEndClosingService) staleCutoff() time.Time {
	return s.now().Add(-s.opts.StaleAfter)
}

func (s *YearEndClosingService) markInterrupted(ctx context.Context, run *models.ClosingRun) error {
	phase := run.Phase
	since := run.UpdatedAt.Format(time.RFC3339)
	machine := statemachine.NewClosingFSM(run)
	if err := machine.Fail(ctx, errors.New("interrupted")); err != nil {
		return err
	}
	run.Message = fmt.Sprintf("interrupted during %s, no progress reported since %s", phase, since)
	logger.Warn("Marked stale closing run as interrupted",
		"run_id", run.RunID, "organization_id", run.OrganizationID, "message", run.Message)
	return s.runRepo.Update(ctx, run)
}

// SweepStaleRuns fails every processing run that stopped reporting progress.
// Runs still owned by this process are left alone.
func (s *YearEndClosingService) SweepStaleRuns(ctx context.Context) error {
	runs, err := s.runRepo.FindStale(ctx, s.staleCutoff())
	if err != nil {
		return err
	}
	for i := range runs {
		if s.guard.running(runs[i].OrganizationID) {
			continue
		}
		if err := s.markInterrupted(ctx, &runs[i]); err != nil {
			return err
		}
	}
	return nil
}

// GetProgress returns the state of the organization's latest closing run
func (s *YearEndClosingService) GetProgress(ctx context.Context, orgID uint) (*Progress, error) {
	run, err := s.runRepo.FindLatest(ctx, orgID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &Progress{Status: models.RunStatusIdle, Phase: models.PhaseIdle}, nil
	}
	if err != nil {
		return nil, err
	}

	updated := run.UpdatedAt
	p := &Progress{
		RunID:     run.RunID,
		Percent:   run.Percent,
		Message:   run.Message,
		Status:    run.Status,
		Phase:     run.Phase,
		UpdatedAt: &updated,
	}
	if run.IsStale(s.staleCutoff()) && !s.guard.running(orgID) {
		p.Status = models.RunStatusError
		p.Percent = models.ErrorPercent
		p.Message = fmt.Sprintf("interrupted during %s, no progress reported since %s", run.Phase, run.UpdatedAt.Format(time.RFC3339))
	}
	return p, nil
}

// ListRuns returns the closing history of an organization
func (s *YearEndClosingService) ListRuns(ctx context.Context, orgID uint, query *repository.ListQuery) ([]models.ClosingRun, int64, error) {
	if query == nil {
		query = repository.NewListQuery()
	}
	return s.runRepo.List(ctx, orgID, query)
}

// GetRun returns one closing run of the organization
func (s *YearEndClosingService) GetRun(ctx context.Context, orgID uint, runID string) (*models.ClosingRun, error) {
	run, err := s.runRepo.FindByRunID(ctx, orgID, runID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	return run, err
}

// GetRunSnapshot returns the stored pre-transfer snapshot of a run as JSON
func (s *YearEndClosingService) GetRunSnapshot(ctx context.Context, orgID uint, runID string) ([]byte, error) {
	run, err := s.GetRun(ctx, orgID, runID)
	if err != nil {
		return nil, err
	}
	// The file may have been pruned from storage after the run was recorded
	if run.SnapshotPath == nil || s.snapshots == nil || !s.snapshots.Exists(*run.SnapshotPath) {
		return nil, ErrNotFound
	}
	data, err := s.snapshots.Read(*run.SnapshotPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read closing snapshot: %w", err)
	}
	return data, nil
}

func (s *YearEndClosingService) activeYear(ctx context.Context, orgID uint) (*models.FiscalYear, error) {
	year, err := s.yearRepo.FindActive(ctx, orgID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNoActiveYear
	}
	return year, err
}

func (s *YearEndClosingService) audit(ctx context.Context, orgID uint, actor Actor, action, entity string, entityID uint, details string) {
	if s.auditSvc == nil {
		return
	}
	if err := s.auditSvc.Log(ctx, orgID, actor.UserID, action, entity, entityID, details, actor.IP, actor.UserAgent); err != nil {
		logger.Warn("Failed to write audit log", "action", action, "error", err)
	}
}

// orgGuard is the in-process single-flight lock per organization
type orgGuard struct {
	mu      sync.Mutex
	holders map[uint]bool
}

func newOrgGuard() *orgGuard {
	return &orgGuard{holders: make(map[uint]bool)}
}

func (g *orgGuard) acquire(orgID uint) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.holders[orgID] {
		return false
	}
	g.holders[orgID] = true
	return true
}

func (g *orgGuard) release(orgID uint) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.holders, orgID)
}

func (g *orgGuard) running(orgID uint) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.holders[orgID]
}

// closingJobPrefix names closing jobs on the worker so job status can tell them apart from maintenance jobs
const closingJobPrefix = "year-end-closing:"

// closingJob carries the state of one execution across phases
type closingJob struct {
	run      *models.ClosingRun
	machine  *statemachine.ClosingFSM
	year     *models.FiscalYear
	newYear  *models.FiscalYear
	paLedger *models.Ledger
	tree     *ChartTree
	snap     *BalanceSnapshot
	pl       ProfitLoss
	actor    Actor
	log      *slog.Logger
}

// run executes the phases in order; the first failure or panic stops the job and is recorded on the run
func (s *YearEndClosingService) run(ctx context.Context, job *closingJob) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = s.fail(ctx, job, fmt.Errorf("panic: %v", r))
		}
	}()

	phases := []struct {
		enter func(context.Context) error
		work  func(context.Context, *closingJob) error
	}{
		{job.machine.CreateYear, s.createYear},
		{job.machine.CalculateProfitLoss, s.calculateProfitLoss},
		{nil, s.transferBalances},
		{job.machine.PostProfitLoss, s.postProfitLoss},
		{job.machine.LockEntries, s.lockEntries},
		{job.machine.Finalize, s.finalize},
	}

	for _, phase := range phases {
		if phase.enter != nil {
			if err := s.enter(ctx, job, phase.enter); err != nil {
				return s.fail(ctx, job, err)
			}
		}
		if err := phase.work(ctx, job); err != nil {
			return s.fail(ctx, job, err)
		}
	}

	if err := job.machine.Complete(ctx); err != nil {
		return s.fail(ctx, job, err)
	}
	completedAt := s.now()
	job.run.CompletedAt = &completedAt
	if err := s.save(ctx, job); err != nil {
		return s.fail(ctx, job, err)
	}

	s.audit(ctx, job.run.OrganizationID, job.actor, models.AuditActionCloseComplete, "FiscalYear", job.newYear.ID,
		fmt.Sprintf("run %s opened %s with profit/loss %s", job.run.RunID, job.newYear.Label(), job.pl.Net.StringFixed(2)))
	job.log.Info("Year-end closing completed",
		"closed_year_id", job.year.ID, "opened_year_id", job.newYear.ID, "profit_loss", job.pl.Net.StringFixed(2))
	return nil
}

func (s *YearEndClosingService) enter(ctx context.Context, job *closingJob, transition func(context.Context) error) error {
	if err := transition(ctx); err != nil {
		return err
	}
	job.log.Info("Closing phase started", "phase", job.run.Phase, "percent", job.run.Percent)
	return s.save(ctx, job)
}

func (s *YearEndClosingService) save(ctx context.Context, job *closingJob) error {
	if err := s.runRepo.Update(ctx, job.run); err != nil {
		return fmt.Errorf("failed to record closing progress: %w", err)
	}
	return nil
}

// fail records the error on the run. Batches already committed stay committed.
func (s *YearEndClosingService) fail(ctx context.Context, job *closingJob, cause error) error {
	ctx = context.WithoutCancel(ctx)

	job.log.Error("Year-end closing failed", "phase", job.run.Phase, "error", cause)
	sentry.CaptureException(cause)

	if err := job.machine.Fail(ctx, cause); err != nil {
		job.log.Error("Failed to move closing run to error", "error", err)
	}
	if err := s.runRepo.Update(ctx, job.run); err != nil {
		job.log.Error("Failed to record closing failure", "error", err)
	}

	s.audit(ctx, job.run.OrganizationID, job.actor, models.AuditActionCloseFail, "ClosingRun", job.run.ID, job.run.Message)
	return cause
}

func (s *YearEndClosingService) createYear(ctx context.Context, job *closingJob) error {
	start, end := job.year.NextPeriod()

	// A concurrent request in another process may have created it since validation
	exists, err := s.yearRepo.ExistsStartingOn(ctx, job.year.OrganizationID, start)
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("a fiscal year starting %s already exists", start.Format(models.DateLayout))
	}

	newYear := &models.FiscalYear{
		OrganizationID: job.year.OrganizationID,
		StartDate:      start,
		EndDate:        end,
		Active:         false,
		Closed:         false,
	}
	if err := s.yearRepo.Create(ctx, newYear); err != nil {
		return fmt.Errorf("failed to create fiscal year: %w", err)
	}
	job.newYear = newYear
	job.run.ToYearID = &newYear.ID
	return s.save(ctx, job)
}

func (s *YearEndClosingService) calculateProfitLoss(ctx context.Context, job *closingJob) error {
	tree, err := s.aggregator.LoadTree(ctx, job.year.OrganizationID)
	if err != nil {
		return err
	}
	job.tree = tree
	job.snap = s.calc.Snapshot(job.year, job.year.EndDate)

	pl, err := profitLossOf(ctx, tree, job.snap)
	if err != nil {
		return fmt.Errorf("failed to compute profit and loss: %w", err)
	}
	job.pl = pl
	net := pl.Net.StringFixed(2)
	job.run.ProfitLoss = &net
	return s.save(ctx, job)
}

func (s *YearEndClosingService) transferBalances(ctx context.Context, job *closingJob) error {
	ledgers := job.tree.Ledgers()
	if err := s.enter(ctx, job, func(ctx context.Context) error {
		return job.machine.TransferBalances(ctx, len(ledgers))
	}); err != nil {
		return err
	}

	if err := s.writeSnapshot(ctx, job); err != nil {
		return err
	}

	for start := 0; start < len(ledgers); start += s.opts.BatchSize {
		end := start + s.opts.BatchSize
		if end > len(ledgers) {
			end = len(ledgers)
		}

		rows := make([]models.YearLedgerBalance, 0, end-start)
		for _, l := range ledgers[start:end] {
			row, err := s.openingRow(ctx, job, l)
			if err != nil {
				return err
			}
			rows = append(rows, row)
		}
		if err := s.balanceRepo.UpsertBatch(ctx, rows); err != nil {
			return fmt.Errorf("failed to transfer ledgers %d-%d: %w", start+1, end, err)
		}

		job.machine.TransferProgress(end)
		if err := s.save(ctx, job); err != nil {
			return err
		}
	}
	return nil
}

// openingRow carries balance-sheet ledgers forward and resets temporary ledgers to zero
func (s *YearEndClosingService) openingRow(ctx context.Context, job *closingJob, l *models.Ledger) (models.YearLedgerBalance, error) {
	row := models.YearLedgerBalance{
		FiscalYearID: job.newYear.ID,
		LedgerID:     l.ID,
		Debit:        decimal.Zero,
		Credit:       decimal.Zero,
	}
	if !job.tree.Classification(l).IsBalanceSheet() {
		return row, nil
	}

	b, err := job.snap.Balance(ctx, l)
	if err != nil {
		return models.YearLedgerBalance{}, err
	}
	row.Debit = b.Debit
	row.Credit = b.Credit
	row.Quantity = b.Quantity
	row.UnitPrice = b.UnitPrice
	row.UOM = b.UOM
	return row, nil
}

// postProfitLoss adds a profit to the credit side, or a loss to the debit side, of the P&L ledger
func (s *YearEndClosingService) postProfitLoss(ctx context.Context, job *closingJob) error {
	net := job.pl.Net
	if net.IsZero() {
		return nil
	}

	debit, credit := decimal.Zero, decimal.Zero
	if net.IsPositive() {
		credit = net
	} else {
		debit = net.Neg()
	}

	if _, err := s.balanceRepo.AddToBalance(ctx, job.newYear.ID, job.paLedger.ID, debit, credit); err != nil {
		return fmt.Errorf("failed to post profit and loss to ledger %q: %w", job.paLedger.Name, err)
	}
	return nil
}

func (s *YearEndClosingService) lockEntries(ctx context.Context, job *closingJob) error {
	locked, err := s.journalRepo.LockEntries(ctx, job.year.OrganizationID, job.year.StartDate, job.year.EndDate)
	if err != nil {
		return fmt.Errorf("failed to lock journal entries: %w", err)
	}
	job.log.Info("Locked journal entries", "count", locked)
	return nil
}

func (s *YearEndClosingService) finalize(ctx context.Context, job *closingJob) error {
	if err := s.yearRepo.Rollover(ctx, job.year.OrganizationID, job.year.ID, job.newYear.ID); err != nil {
		return fmt.Errorf("failed to activate fiscal year: %w", err)
	}
	return nil
}
