package statemachine

import (
	"context"
	"fmt"

	"github.com/looplab/fsm"
	"github.com/templeerp/yearend/internal/models"
)

// Closing events
const (
	EventValidate     = "validate"
	EventReject       = "reject"
	EventCreateYear   = "create_year"
	EventCalculatePnL = "calculate_pnl"
	EventTransfer     = "transfer"
	EventPostPnL      = "post_pnl"
	EventLock         = "lock"
	EventFinalize     = "finalize"
	EventComplete     = "complete"
	EventFail         = "fail"
)

// Percent reported on entering each phase
var phasePercent = map[string]int{
	models.PhaseIdle:         0,
	models.PhaseValidating:   10,
	models.PhaseCreatingYear: 20,
	models.PhaseCalculatePnL: 30,
	models.PhaseTransferring: 40,
	models.PhasePostingPnL:   80,
	models.PhaseLocking:      85,
	models.PhaseFinalizing:   90,
	models.PhaseCompleted:    100,
	models.PhaseError:        models.ErrorPercent,
}

var phaseMessage = map[string]string{
	models.PhaseValidating:   "Validating closing prerequisites",
	models.PhaseCreatingYear: "Creating the new fiscal year",
	models.PhaseCalculatePnL: "Calculating profit and loss",
	models.PhaseTransferring: "Transferring ledger balances",
	models.PhasePostingPnL:   "Posting profit and loss to retained earnings",
	models.PhaseLocking:      "Locking journal entries of the closed year",
	models.PhaseFinalizing:   "Activating the new fiscal year",
	models.PhaseCompleted:    "Year-end closing completed",
}

const (
	transferStart = 40
	transferEnd   = 80
)

var workingPhases = []string{
	models.PhaseIdle,
	models.PhaseValidating,
	models.PhaseCreatingYear,
	models.PhaseCalculatePnL,
	models.PhaseTransferring,
	models.PhasePostingPnL,
	models.PhaseLocking,
	models.PhaseFinalizing,
}

// ClosingFSM wraps a closing run with its phase machine
type ClosingFSM struct {
	run *models.ClosingRun
	fsm *fsm.FSM
}

// NewClosingFSM creates a phase machine positioned at the run's current phase
func NewClosingFSM(run *models.ClosingRun) *ClosingFSM {
	cfsm := &ClosingFSM{
		run: run,
	}

	initial := run.Phase
	if initial == "" {
		initial = models.PhaseIdle
	}

	cfsm.fsm = fsm.NewFSM(
		initial,
		fsm.Events{
			{Name: EventValidate, Src: []string{models.PhaseIdle}, Dst: models.PhaseValidating},

			// validating → idle when a precondition fails; nothing was written
			{Name: EventReject, Src: []string{models.PhaseValidating}, Dst: models.PhaseIdle},

			{Name: EventCreateYear, Src: []string{models.PhaseValidating}, Dst: models.PhaseCreatingYear},
			{Name: EventCalculatePnL, Src: []string{models.PhaseCreatingYear}, Dst: models.PhaseCalculatePnL},
			{Name: EventTransfer, Src: []string{models.PhaseCalculatePnL}, Dst: models.PhaseTransferring},
			{Name: EventPostPnL, Src: []string{models.PhaseTransferring}, Dst: models.PhasePostingPnL},
			{Name: EventLock, Src: []string{models.PhasePostingPnL}, Dst: models.PhaseLocking},
			{Name: EventFinalize, Src: []string{models.PhaseLocking}, Dst: models.PhaseFinalizing},
			{Name: EventComplete, Src: []string{models.PhaseFinalizing}, Dst: models.PhaseCompleted},

			{Name: EventFail, Src: workingPhases, Dst: models.PhaseError},
		},
		fsm.Callbacks{
			"enter_state": func(_ context.Context, e *fsm.Event) {
				cfsm.enter(e.Dst)
			},
		},
	)

	return cfsm
}

func (c *ClosingFSM) enter(phase string) {
	c.run.Phase = phase
	c.run.Percent = phasePercent[phase]
	if msg, ok := phaseMessage[phase]; ok {
		c.run.Message = msg
	}

	switch phase {
	case models.PhaseCompleted:
		c.run.Status = models.RunStatusCompleted
	case models.PhaseError:
		c.run.Status = models.RunStatusError
	case models.PhaseIdle:
		c.run.Status = models.RunStatusIdle
	default:
		c.run.Status = models.RunStatusProcessing
	}
}

func (c *ClosingFSM) event(ctx context.Context, name string) error {
	if err := c.fsm.Event(ctx, name); err != nil {
		return fmt.Errorf("closing cannot %s from phase %s: %w", name, c.fsm.Current(), err)
	}
	return nil
}

// Validate moves the run into validation
func (c *ClosingFSM) Validate(ctx context.Context) error {
	return c.event(ctx, EventValidate)
}

// Reject returns the run to idle after failed validation
func (c *ClosingFSM) Reject(ctx context.Context, reason string) error {
	if err := c.event(ctx, EventReject); err != nil {
		return err
	}
	c.run.Message = reason
	return nil
}

// CreateYear starts the new-year creation phase
func (c *ClosingFSM) CreateYear(ctx context.Context) error {
	return c.event(ctx, EventCreateYear)
}

// CalculateProfitLoss starts the P&L calculation phase
func (c *ClosingFSM) CalculateProfitLoss(ctx context.Context) error {
	return c.event(ctx, EventCalculatePnL)
}

// TransferBalances starts the balance transfer phase
func (c *ClosingFSM) TransferBalances(ctx context.Context, totalLedgers int) error {
	if err := c.event(ctx, EventTransfer); err != nil {
		return err
	}
	c.run.LedgersTotal = totalLedgers
	c.run.LedgersDone = 0
	return nil
}

// TransferProgress records processed ledgers and moves percent linearly from 40 to 80
func (c *ClosingFSM) TransferProgress(done int) {
	if c.fsm.Current() != models.PhaseTransferring {
		return
	}
	c.run.LedgersDone = done
	total := c.run.LedgersTotal
	if total <= 0 {
		c.run.Percent = transferEnd
		return
	}
	if done > total {
		done = total
	}
	c.run.Percent = transferStart + (transferEnd-transferStart)*done/total
	c.run.Message = fmt.Sprintf("Transferring ledger balances (%d/%d)", done, total)
}

// PostProfitLoss starts the retained-earnings posting phase
func (c *ClosingFSM) PostProfitLoss(ctx context.Context) error {
	return c.event(ctx, EventPostPnL)
}

// LockEntries starts the journal locking phase
func (c *ClosingFSM) LockEntries(ctx context.Context) error {
	return c.event(ctx, EventLock)
}

// Finalize starts the activation phase
func (c *ClosingFSM) Finalize(ctx context.Context) error {
	return c.event(ctx, EventFinalize)
}

// Complete marks the run as completed
func (c *ClosingFSM) Complete(ctx context.Context) error {
	return c.event(ctx, EventComplete)
}

// Fail moves the run into the error state carrying the cause.
// The phase that failed is kept in the message.
func (c *ClosingFSM) Fail(ctx context.Context, cause error) error {
	failedPhase := c.fsm.Current()
	if err := c.event(ctx, EventFail); err != nil {
		return err
	}
	c.run.Message = fmt.Sprintf("%s failed: %v", failedPhase, cause)
	return nil
}

// Current returns the current phase
func (c *ClosingFSM) Current() string {
	return c.fsm.Current()
}

// Can checks if a transition is possible
func (c *ClosingFSM) Can(event string) bool {
	return c.fsm.Can(event)
}
