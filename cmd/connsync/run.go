package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/Sternrassler/connsync/pkg/syncer"
	"github.com/spf13/cobra"
)

type runOptions struct {
	root *rootOptions

	tenant   string
	subject  string
	platform string
	runID    string
	onSite   bool
}

func newRunCommand(root *rootOptions) *cobra.Command {
	opts := &runOptions{root: root}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one incremental sync and print the terminal status",
		Long: `Run waits for credentials, pages through the connection list and appends
new records. It prints RUN_COMPLETE or RUN_FAILED followed by the run result
as JSON, and exits non-zero on failure.`,
		Example: `  connsync run --tenant acme --subject jdoe
  connsync run --tenant acme --subject jdoe --on-site --log-level debug`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(cmd)
		},
	}

	cmd.Flags().StringVar(&opts.tenant, "tenant", "", "tenant identifier (required)")
	cmd.Flags().StringVar(&opts.subject, "subject", "", "subject identifier (required)")
	cmd.Flags().StringVar(&opts.platform, "platform", "", "platform name (defaults to CONNSYNC_PLATFORM)")
	cmd.Flags().StringVar(&opts.runID, "run-id", "", "run identifier (generated when empty)")
	cmd.Flags().BoolVar(&opts.onSite, "on-site", false, "the session already sits on the target site")
	_ = cmd.MarkFlagRequired("tenant")
	_ = cmd.MarkFlagRequired("subject")

	return cmd
}

func (o *runOptions) request() syncer.RunRequest {
	req := syncer.RunRequest{
		RunID:    o.runID,
		Platform: o.platform,
		Tenant:   o.tenant,
		Subject:  o.subject,
		OnSite:   o.onSite,
	}
	if req.RunID == "" {
		req.RunID = syncer.NewRunID()
	}
	if req.Platform == "" {
		req.Platform = o.root.cfg.Platform
	}
	return req
}

func (o *runOptions) run(cmd *cobra.Command) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	req := o.request()
	if err := req.Validate(); err != nil {
		return err
	}

	a, err := newApp(ctx, o.root.cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	result, runErr := a.driver.Run(ctx, req)
	if err := printResult(cmd, result); err != nil {
		return err
	}
	return runErr
}

// printResult writes the status sentinel line and the JSON result to stdout.
func printResult(cmd *cobra.Command, result syncer.Result) error {
	out := cmd.OutOrStdout()
	if _, err := fmt.Fprintln(out, result.Status); err != nil {
		return err
	}
	return writeJSON(out, result)
}
