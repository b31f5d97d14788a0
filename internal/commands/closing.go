package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
	"github.com/templeerp/yearend/internal/models"
	"github.com/templeerp/yearend/internal/services"
)

var errOrgRequired = errors.New("--org is required")

func newSummaryCommand(open Opener, flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "summary",
		Short: "Print balance sheet totals and closing readiness of the active year as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if flags.orgID == 0 {
				return errOrgRequired
			}
			return withRuntime(cmd, open, func(ctx context.Context, rt *Runtime) error {
				summary, err := rt.Closing.GetSummary(ctx, flags.orgID)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), summary)
			})
		},
	}
}

func newValidateCommand(open Opener, flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check every closing precondition without writing anything",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if flags.orgID == 0 {
				return errOrgRequired
			}
			return withRuntime(cmd, open, func(ctx context.Context, rt *Runtime) error {
				result, err := rt.Closing.Validate(ctx, flags.orgID)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if result.TrialBalance != nil {
					fmt.Fprintf(out, "trial balance: debit %s, credit %s\n",
						result.TrialBalance.TotalDebit.StringFixed(2), result.TrialBalance.TotalCredit.StringFixed(2))
				}
				if result.Valid {
					fmt.Fprintln(out, "ready to close")
					return nil
				}
				for _, issue := range result.Issues {
					fmt.Fprintf(out, "[%s] %s\n", issue.Kind, issue.Message)
				}
				return fmt.Errorf("%d closing precondition(s) failed", len(result.Issues))
			})
		},
	}
}

func newExecuteCommand(open Opener, flags *globalFlags) *cobra.Command {
	var poll time.Duration

	cmd := &cobra.Command{
		Use:   "execute",
		Short: "Close the active fiscal year and wait for the closing to finish",
		Long: "Close the active fiscal year. The closing runs inside this process, so the command " +
			"reports progress until the run completes or fails.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if flags.orgID == 0 {
				return errOrgRequired
			}
			return withRuntime(cmd, open, func(ctx context.Context, rt *Runtime) error {
				run, err := rt.Closing.Execute(ctx, flags.orgID, services.Actor{UserID: flags.userID, UserAgent: "yearendctl"})
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "closing run %s started\n", run.RunID)
				return waitForRun(ctx, cmd.OutOrStdout(), rt.Closing, flags.orgID, poll)
			})
		},
	}
	cmd.Flags().DurationVar(&poll, "poll", 2*time.Second, "progress polling interval")

	return cmd
}

func newSweepCommand(open Opener) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Mark closing runs that stopped reporting progress as interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd, open, func(ctx context.Context, rt *Runtime) error {
				if err := rt.Closing.SweepStaleRuns(ctx); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "stale closing runs swept")
				return nil
			})
		},
	}
}

// waitForRun prints each new progress state until the latest run reaches a final status
func waitForRun(ctx context.Context, out io.Writer, closing closingAPI, orgID uint, poll time.Duration) error {
	ticker := time.NewTicker(poll)
	defer ticker.Stop()

	last := ""
	for {
		p, err := closing.GetProgress(ctx, orgID)
		if err != nil {
			return err
		}
		if line := fmt.Sprintf("%3d%% %s: %s", p.Percent, p.Phase, p.Message); line != last {
			fmt.Fprintln(out, line)
			last = line
		}

		switch p.Status {
		case models.RunStatusCompleted:
			return nil
		case models.RunStatusError:
			return fmt.Errorf("closing run %s failed: %s", p.RunID, p.Message)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func printJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
