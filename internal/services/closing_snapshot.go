package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/templeerp/yearend/internal/models"
)

const snapshotDir = "closing_snapshots"

// ClosingSnapshot is the pre-transfer record of every ledger balance of the closed year
type ClosingSnapshot struct {
	RunID          string                    `json:"run_id"`
	OrganizationID uint                      `json:"organization_id"`
	FiscalYear     models.FiscalYearResponse `json:"fiscal_year"`
	AsOf           string                    `json:"as_of"`
	TakenAt        time.Time                 `json:"taken_at"`
	ProfitLoss     ProfitLoss                `json:"profit_loss"`
	Ledgers        []SnapshotLedger          `json:"ledgers"`
}

// SnapshotLedger is one ledger's closing balance as recorded before the transfer
type SnapshotLedger struct {
	Name           string                `json:"name"`
	GroupCode      string                `json:"group_code"`
	Classification models.Classification `json:"classification"`
	PA             bool                  `json:"pa"`
	LedgerBalance
}

func (s *YearEndClosingService) buildSnapshot(ctx context.Context, job *closingJob) (*ClosingSnapshot, error) {
	snapshot := &ClosingSnapshot{
		RunID:          job.run.RunID,
		OrganizationID: job.run.OrganizationID,
		FiscalYear:     job.year.ToResponse(),
		AsOf:           job.snap.AsOf().Format(models.DateLayout),
		TakenAt:        s.now().UTC(),
		ProfitLoss:     job.pl,
	}

	ledgers := job.tree.Ledgers()
	snapshot.Ledgers = make([]SnapshotLedger, 0, len(ledgers))
	for _, l := range ledgers {
		b, err := job.snap.Balance(ctx, l)
		if err != nil {
			return nil, err
		}
		code := ""
		if g := job.tree.Group(l.GroupID); g != nil {
			code = g.Code
		}
		snapshot.Ledgers = append(snapshot.Ledgers, SnapshotLedger{
			Name:           l.Name,
			GroupCode:      code,
			Classification: job.tree.Classification(l),
			PA:             l.PA,
			LedgerBalance:  b,
		})
	}
	return snapshot, nil
}

// writeSnapshot stores the snapshot and records its path on the run
func (s *YearEndClosingService) writeSnapshot(ctx context.Context, job *closingJob) error {
	if s.snapshots == nil {
		return nil
	}

	snapshot, err := s.buildSnapshot(ctx, job)
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode closing snapshot: %w", err)
	}

	path, err := s.snapshots.UploadFromBytes(data, job.run.RunID+".json", snapshotDir)
	if err != nil {
		return fmt.Errorf("failed to store closing snapshot: %w", err)
	}
	job.run.SnapshotPath = &path
	job.log.Info("Stored closing snapshot", "path", path, "ledgers", len(snapshot.Ledgers))
	return s.save(ctx, job)
}
