package commands

import (
	"context"

	"github.com/spf13/cobra"
	"github.com/templeerp/yearend/internal/models"
	"github.com/templeerp/yearend/internal/services"
)

// closingAPI is satisfied by *services.YearEndClosingService
type closingAPI interface {
	GetSummary(ctx context.Context, orgID uint) (*services.ClosingSummary, error)
	Validate(ctx context.Context, orgID uint) (*services.ValidationResult, error)
	Execute(ctx context.Context, orgID uint, actor services.Actor) (*models.ClosingRun, error)
	GetProgress(ctx context.Context, orgID uint) (*services.Progress, error)
	SweepStaleRuns(ctx context.Context) error
}

// Runtime is the wired closing service plus whatever must be released when the command ends
type Runtime struct {
	Closing closingAPI
	Close   func()
}

// Opener connects to the database and wires the closing service
type Opener func(ctx context.Context) (*Runtime, error)

type globalFlags struct {
	orgID  uint
	userID uint
}

// NewRootCommand creates the yearendctl command tree
func NewRootCommand(open Opener) *cobra.Command {
	flags := &globalFlags{}

	rootCmd := &cobra.Command{
		Use:   "yearendctl",
		Short: "Inspect and run fiscal year closings from the command line",
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().UintVar(&flags.orgID, "org", 0, "organization id")
	rootCmd.PersistentFlags().UintVar(&flags.userID, "user", 0, "user id recorded as the actor of a closing")

	rootCmd.AddCommand(
		newSummaryCommand(open, flags),
		newValidateCommand(open, flags),
		newExecuteCommand(open, flags),
		newSweepCommand(open),
	)

	return rootCmd
}

// withRuntime opens the runtime for the duration of fn
func withRuntime(cmd *cobra.Command, open Opener, fn func(ctx context.Context, rt *Runtime) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	rt, err := open(ctx)
	if err != nil {
		return err
	}
	if rt.Close != nil {
		defer rt.Close()
	}
	return fn(ctx, rt)
}
