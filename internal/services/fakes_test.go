package services

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/templeerp/yearend/internal/jobs"
	"github.com/templeerp/yearend/internal/models"
	"github.com/templeerp/yearend/internal/repository"
	"gorm.io/gorm"
)

// memStore is an in-memory ledger database shared by the fake repositories
type memStore struct {
	mu       sync.Mutex
	nextID   uint
	years    map[uint]*models.FiscalYear
	groups   []models.AccountGroup
	ledgers  []models.Ledger
	balances map[[2]uint]*models.YearLedgerBalance
	entries  []*models.JournalEntry
	runs     []*models.ClosingRun
	audits   []models.AuditLog
	now      func() time.Time

	upsertCalls   int
	failUpsertAt  int           // 1-based batch that fails, 0 disables
	upsertEntered chan struct{} // closed when the first batch starts, if set
	upsertGate    chan struct{} // first batch waits for this, if set
	panicOnAdd    bool
	sumCalls      int
}

func newMemStore() *memStore {
	return &memStore{
		nextID:   1000,
		years:    make(map[uint]*models.FiscalYear),
		balances: make(map[[2]uint]*models.YearLedgerBalance),
		now:      time.Now,
	}
}

func (m *memStore) id() uint {
	m.nextID++
	return m.nextID
}

func (m *memStore) repos() *repository.Repositories {
	return &repository.Repositories{
		FiscalYear: &fakeYearRepo{m},
		Chart:      &fakeChartRepo{m},
		Balance:    &fakeBalanceRepo{m},
		Journal:    &fakeJournalRepo{m},
		ClosingRun: &fakeRunRepo{m},
		Audit:      &fakeAuditRepo{m},
	}
}

// Seeding helpers

func (m *memStore) addYear(orgID uint, start, end string, active bool) *models.FiscalYear {
	y := &models.FiscalYear{
		ID:             m.id(),
		OrganizationID: orgID,
		StartDate:      date(start),
		EndDate:        date(end),
		Active:         active,
	}
	m.years[y.ID] = y
	return y
}

func (m *memStore) addGroup(orgID uint, code, name string, parent *models.AccountGroup) *models.AccountGroup {
	g := models.AccountGroup{ID: m.id(), OrganizationID: orgID, Code: code, Name: name}
	if parent != nil {
		pid := parent.ID
		g.ParentID = &pid
	}
	m.groups = append(m.groups, g)
	return &m.groups[len(m.groups)-1]
}

func (m *memStore) addLedger(orgID uint, group *models.AccountGroup, name string, pa bool) *models.Ledger {
	l := models.Ledger{ID: m.id(), OrganizationID: orgID, GroupID: group.ID, Name: name, PA: pa}
	m.ledgers = append(m.ledgers, l)
	return &m.ledgers[len(m.ledgers)-1]
}

func (m *memStore) setOpening(year *models.FiscalYear, ledger *models.Ledger, debit, credit string) {
	m.balances[[2]uint{year.ID, ledger.ID}] = &models.YearLedgerBalance{
		ID:           m.id(),
		FiscalYearID: year.ID,
		LedgerID:     ledger.ID,
		Debit:        dec(debit),
		Credit:       dec(credit),
	}
}

// post records a two-legged entry debiting dr and crediting cr
func (m *memStore) post(orgID uint, on string, dr, cr *models.Ledger, amount string) *models.JournalEntry {
	e := &models.JournalEntry{ID: m.id(), OrganizationID: orgID, EntryDate: date(on)}
	e.Lines = []models.JournalLine{
		{ID: m.id(), JournalEntryID: e.ID, LedgerID: dr.ID, Amount: dec(amount), Side: models.SideDebit},
		{ID: m.id(), JournalEntryID: e.ID, LedgerID: cr.ID, Amount: dec(amount), Side: models.SideCredit},
	}
	m.entries = append(m.entries, e)
	return e
}

func (m *memStore) balance(yearID, ledgerID uint) *models.YearLedgerBalance {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.balances[[2]uint{yearID, ledgerID}]
	if !ok {
		return nil
	}
	cp := *b
	return &cp
}

func (m *memStore) yearsOf(orgID uint) []models.FiscalYear {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.FiscalYear
	for _, y := range m.years {
		if y.OrganizationID == orgID {
			out = append(out, *y)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartDate.Before(out[j].StartDate) })
	return out
}

func (m *memStore) auditActions() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for _, a := range m.audits {
		out = append(out, a.Action)
	}
	return out
}

func date(s string) time.Time {
	t, err := time.Parse(models.DateLayout, s)
	if err != nil {
		panic(err)
	}
	return t
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// Fiscal years

type fakeYearRepo struct{ m *memStore }

func (r *fakeYearRepo) FindByID(ctx context.Context, id uint) (*models.FiscalYear, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	y, ok := r.m.years[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *y
	return &cp, nil
}

func (r *fakeYearRepo) FindActive(ctx context.Context, orgID uint) (*models.FiscalYear, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	for _, y := range r.m.years {
		if y.OrganizationID == orgID && y.Active && !y.Closed {
			cp := *y
			return &cp, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *fakeYearRepo) ExistsStartingOn(ctx context.Context, orgID uint, start time.Time) (bool, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	for _, y := range r.m.years {
		if y.OrganizationID == orgID && models.DateOnly(y.StartDate).Equal(models.DateOnly(start)) {
			return true, nil
		}
	}
	return false, nil
}

func (r *fakeYearRepo) Create(ctx context.Context, year *models.FiscalYear) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	year.ID = r.m.id()
	cp := *year
	r.m.years[year.ID] = &cp
	return nil
}

func (r *fakeYearRepo) CountActive(ctx context.Context, orgID uint) (int64, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var n int64
	for _, y := range r.m.years {
		if y.OrganizationID == orgID && y.Active {
			n++
		}
	}
	return n, nil
}

func (r *fakeYearRepo) Rollover(ctx context.Context, orgID, closingYearID, openingYearID uint) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	closing, ok := r.m.years[closingYearID]
	if !ok || closing.OrganizationID != orgID {
		return gorm.ErrRecordNotFound
	}
	if !closing.Active || closing.Closed {
		return repository.ErrYearNotActive
	}
	for id, y := range r.m.years {
		if id != closingYearID && y.OrganizationID == orgID && y.Active {
			return repository.ErrActiveYearConflict
		}
	}
	pa := 0
	for _, l := range r.m.ledgers {
		if l.OrganizationID == orgID && l.PA {
			pa++
		}
	}
	if pa != 1 {
		return repository.ErrPALedgerConflict
	}
	opening, ok := r.m.years[openingYearID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	now := r.m.now()
	closing.Active, closing.Closed, closing.ClosedAt = false, true, &now
	opening.Active, opening.Closed = true, false
	return nil
}

// Chart of accounts

type fakeChartRepo struct{ m *memStore }

func (r *fakeChartRepo) ListGroups(ctx context.Context, orgID uint) ([]models.AccountGroup, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var out []models.AccountGroup
	for _, g := range r.m.groups {
		if g.OrganizationID == orgID {
			out = append(out, g)
		}
	}
	return out, nil
}

func (r *fakeChartRepo) ListLedgers(ctx context.Context, orgID uint) ([]models.Ledger, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var out []models.Ledger
	for _, l := range r.m.ledgers {
		if l.OrganizationID == orgID {
			out = append(out, l)
		}
	}
	return out, nil
}

func (r *fakeChartRepo) FindPALedgers(ctx context.Context, orgID uint) ([]models.Ledger, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var out []models.Ledger
	for _, l := range r.m.ledgers {
		if l.OrganizationID != orgID || !l.PA {
			continue
		}
		for _, g := range r.m.groups {
			if g.ID == l.GroupID {
				gc := g
				l.Group = &gc
			}
		}
		out = append(out, l)
	}
	return out, nil
}

// Opening balances

type fakeBalanceRepo struct{ m *memStore }

func (r *fakeBalanceRepo) FindOpening(ctx context.Context, yearID, ledgerID uint) (*models.YearLedgerBalance, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	b, ok := r.m.balances[[2]uint{yearID, ledgerID}]
	if !ok {
		return nil, nil
	}
	cp := *b
	return &cp, nil
}

func (r *fakeBalanceRepo) ListByYear(ctx context.Context, yearID uint) ([]models.YearLedgerBalance, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var out []models.YearLedgerBalance
	for key, b := range r.m.balances {
		if key[0] == yearID {
			out = append(out, *b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LedgerID < out[j].LedgerID })
	return out, nil
}

var errUpsertFailed = errors.New("connection reset")

func (r *fakeBalanceRepo) UpsertBatch(ctx context.Context, rows []models.YearLedgerBalance) error {
	r.m.mu.Lock()
	r.m.upsertCalls++
	first := r.m.upsertCalls == 1
	r.m.mu.Unlock()
	if first && r.m.upsertGate != nil {
		close(r.m.upsertEntered)
		<-r.m.upsertGate
	}
	// a cancelled context aborts the statement, as gorm does
	if err := ctx.Err(); err != nil {
		return err
	}

	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if r.m.failUpsertAt > 0 && r.m.upsertCalls == r.m.failUpsertAt {
		return errUpsertFailed
	}
	for _, row := range rows {
		key := [2]uint{row.FiscalYearID, row.LedgerID}
		if existing, ok := r.m.balances[key]; ok {
			row.ID = existing.ID
		} else {
			row.ID = r.m.id()
		}
		cp := row
		r.m.balances[key] = &cp
	}
	return nil
}

func (r *fakeBalanceRepo) AddToBalance(ctx context.Context, yearID, ledgerID uint, debit, credit decimal.Decimal) (*models.YearLedgerBalance, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if r.m.panicOnAdd {
		panic("nil ledger balance")
	}
	key := [2]uint{yearID, ledgerID}
	b, ok := r.m.balances[key]
	if !ok {
		b = &models.YearLedgerBalance{ID: r.m.id(), FiscalYearID: yearID, LedgerID: ledgerID}
		r.m.balances[key] = b
	}
	b.Debit, b.Credit = models.NetSides(b.Debit.Add(debit), b.Credit.Add(credit))
	cp := *b
	return &cp, nil
}

// Journal

type fakeJournalRepo struct{ m *memStore }

func (r *fakeJournalRepo) SumByLedger(ctx context.Context, ledgerID uint, from, to time.Time) (repository.LineTotals, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	r.m.sumCalls++
	totals := repository.LineTotals{}
	for _, e := range r.m.entries {
		d := models.DateOnly(e.EntryDate)
		if d.Before(models.DateOnly(from)) || d.After(models.DateOnly(to)) {
			continue
		}
		for _, line := range e.Lines {
			if line.LedgerID != ledgerID {
				continue
			}
			if line.IsDebit() {
				totals.Debit = totals.Debit.Add(line.Amount)
			} else {
				totals.Credit = totals.Credit.Add(line.Amount)
			}
			if line.Quantity != nil {
				totals.HasQuantity = true
				if line.IsDebit() {
					totals.QuantityIn = totals.QuantityIn.Add(*line.Quantity)
				} else {
					totals.QuantityOut = totals.QuantityOut.Add(*line.Quantity)
				}
			}
		}
	}
	return totals, nil
}

func (r *fakeJournalRepo) LockEntries(ctx context.Context, orgID uint, from, to time.Time) (int64, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var n int64
	now := r.m.now()
	for _, e := range r.m.entries {
		d := models.DateOnly(e.EntryDate)
		if e.OrganizationID != orgID || e.Locked || d.Before(models.DateOnly(from)) || d.After(models.DateOnly(to)) {
			continue
		}
		e.Locked = true
		e.LockedAt = &now
		n++
	}
	return n, nil
}

// Closing runs

type fakeRunRepo struct{ m *memStore }

func (r *fakeRunRepo) Create(ctx context.Context, run *models.ClosingRun) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	for _, existing := range r.m.runs {
		if existing.OrganizationID == run.OrganizationID && existing.Status == models.RunStatusProcessing {
			return repository.ErrRunInProgress
		}
	}
	now := r.m.now()
	run.ID = r.m.id()
	run.CreatedAt, run.UpdatedAt = now, now
	cp := *run
	r.m.runs = append(r.m.runs, &cp)
	return nil
}

func (r *fakeRunRepo) Update(ctx context.Context, run *models.ClosingRun) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	run.UpdatedAt = r.m.now()
	for i, existing := range r.m.runs {
		if existing.ID == run.ID {
			cp := *run
			r.m.runs[i] = &cp
			return nil
		}
	}
	return gorm.ErrRecordNotFound
}

func (r *fakeRunRepo) FindLatest(ctx context.Context, orgID uint) (*models.ClosingRun, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	for i := len(r.m.runs) - 1; i >= 0; i-- {
		if r.m.runs[i].OrganizationID == orgID {
			cp := *r.m.runs[i]
			return &cp, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *fakeRunRepo) FindByRunID(ctx context.Context, orgID uint, runID string) (*models.ClosingRun, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	for _, run := range r.m.runs {
		if run.OrganizationID == orgID && run.RunID == runID {
			cp := *run
			return &cp, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *fakeRunRepo) FindProcessing(ctx context.Context, orgID uint) (*models.ClosingRun, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	for _, run := range r.m.runs {
		if run.OrganizationID == orgID && run.Status == models.RunStatusProcessing {
			cp := *run
			return &cp, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *fakeRunRepo) FindStale(ctx context.Context, cutoff time.Time) ([]models.ClosingRun, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var out []models.ClosingRun
	for _, run := range r.m.runs {
		if run.Status == models.RunStatusProcessing && run.UpdatedAt.Before(cutoff) {
			out = append(out, *run)
		}
	}
	return out, nil
}

func (r *fakeRunRepo) List(ctx context.Context, orgID uint, query *repository.ListQuery) ([]models.ClosingRun, int64, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var all []models.ClosingRun
	for i := len(r.m.runs) - 1; i >= 0; i-- {
		if r.m.runs[i].OrganizationID == orgID {
			all = append(all, *r.m.runs[i])
		}
	}
	total := int64(len(all))
	start := query.Offset()
	if start > len(all) {
		start = len(all)
	}
	end := start + query.Limit()
	if end > len(all) {
		end = len(all)
	}
	return all[start:end], total, nil
}

// Audit

type fakeAuditRepo struct{ m *memStore }

func (r *fakeAuditRepo) Create(ctx context.Context, entry *models.AuditLog) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	entry.ID = r.m.id()
	r.m.audits = append(r.m.audits, *entry)
	return nil
}

func (r *fakeAuditRepo) List(ctx context.Context, orgID uint, query *repository.ListQuery) ([]models.AuditLog, int64, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var out []models.AuditLog
	for _, a := range r.m.audits {
		if a.OrganizationID == orgID {
			out = append(out, a)
		}
	}
	return out, int64(len(out)), nil
}

// Job runners

// syncRunner runs jobs inline so a test sees the finished closing on return
type syncRunner struct {
	errs []error
}

func (r *syncRunner) EnqueueUncancelable(name string, job jobs.Job, dropped func(error)) {
	r.errs = append(r.errs, job(context.Background()))
}

// droppingRunner never starts a job, like a worker stopped before a slot frees up
type droppingRunner struct{}

func (droppingRunner) EnqueueUncancelable(name string, job jobs.Job, dropped func(error)) {
	dropped(context.Canceled)
}

// gateRunner holds every job until release is closed
type gateRunner struct {
	release chan struct{}
	done    chan error
}

func newGateRunner() *gateRunner {
	return &gateRunner{release: make(chan struct{}), done: make(chan error, 8)}
}

func (r *gateRunner) EnqueueUncancelable(name string, job jobs.Job, dropped func(error)) {
	go func() {
		<-r.release
		r.done <- job(context.Background())
	}()
}

// memSnapshots keeps stored snapshots in memory
type memSnapshots struct {
	mu    sync.Mutex
	files map[string][]byte
}

func newMemSnapshots() *memSnapshots {
	return &memSnapshots{files: make(map[string][]byte)}
}

func (s *memSnapshots) UploadFromBytes(data []byte, filename string, subDir string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	path := subDir + "/" + filename
	s.files[path] = data
	return path, nil
}

func (s *memSnapshots) Exists(relativePath string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.files[relativePath]
	return ok
}

func (s *memSnapshots) remove(relativePath string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.files, relativePath)
}

func (s *memSnapshots) Read(relativePath string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.files[relativePath]
	if !ok {
		return nil, errors.New("file not found")
	}
	return data, nil
}
