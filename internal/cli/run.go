package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/eshaffer321/contribution-reconciler/internal/application/service"
)

func newRunCommand(global *GlobalFlags) *cobra.Command {
	flags := &RunFlags{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Reconcile a statement against contributor lists",
		Example: `  reconciler run --session 2024-03 --statement extrato.csv --contributors central:Igreja Central=central.xlsx
  reconciler run --session 2024-03 --add --contributors norte=norte.csv`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return RunReconcile(cmd.Context(), global, flags, cmd)
		},
	}

	f := cmd.Flags()
	f.StringVar(&flags.SessionID, "session", "", "Session to create or update (generated when empty)")
	f.StringVar(&flags.OwnerID, "owner", "", "Owner of the session and learned associations")
	f.StringVar(&flags.Statement, "statement", "", "Bank statement file")
	f.StringArrayVar(&flags.Contributors, "contributors", nil, "Contributor list as church=path or church:Name=path (repeatable)")
	f.BoolVar(&flags.Additive, "add", false, "Match new contributor lists against an existing session")
	f.Float64Var(&flags.Threshold, "threshold", 0, "Name similarity threshold 0-100 (default from config)")
	f.IntVar(&flags.DayTolerance, "days", -1, "Date tolerance in days (default from config)")
	f.BoolVar(&flags.JSON, "json", false, "Print the full outcome as JSON")
	return cmd
}

// RunReconcile executes one full or additive run and prints the outcome.
func RunReconcile(ctx context.Context, global *GlobalFlags, flags *RunFlags, cmd *cobra.Command) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	if flags.Additive && flags.SessionID == "" {
		return fmt.Errorf("--add requires --session")
	}
	if !flags.Additive && flags.Statement == "" {
		return fmt.Errorf("--statement is required")
	}

	cfg, logger, err := global.load()
	if err != nil {
		return err
	}

	errOut := cmd.ErrOrStderr()
	progress := func(done, total int) {
		fmt.Fprintf(errOut, "\rAI extraction: %d/%d", done, total)
		if done == total {
			fmt.Fprintln(errOut)
		}
	}

	svc, closeStore, err := NewService(cfg, logger, progress)
	if err != nil {
		return err
	}
	defer func() { _ = closeStore() }()

	contributors, err := flags.contributorFiles()
	if err != nil {
		return err
	}
	req := service.RunRequest{
		SessionID:    flags.SessionID,
		OwnerID:      flags.OwnerID,
		Contributors: contributors,
		Options:      flags.options(svc.MatchOptions()),
	}

	var out *service.RunOutcome
	if flags.Additive {
		out, err = svc.AddContributors(ctx, req)
	} else {
		req.Statement, err = readFile(flags.Statement)
		if err != nil {
			return fmt.Errorf("statement: %w", err)
		}
		out, err = svc.Reconcile(ctx, req)
	}
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	if flags.JSON {
		return PrintJSON(w, out)
	}
	PrintHeader(w, out.SessionID, flags.Additive)
	PrintRunSummary(w, out)
	return nil
}
