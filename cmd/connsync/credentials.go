package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/Sternrassler/connsync/pkg/credentials"
	"github.com/spf13/cobra"
)

// bundleSaver publishes a bundle for a tenant/subject.
type bundleSaver interface {
	Save(ctx context.Context, tenant, subject string, bundle credentials.Bundle) error
}

type credentialsOptions struct {
	root *rootOptions

	tenant  string
	subject string
	cookie  string
	csrf    string
}

func newCredentialsCommand(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "credentials",
		Short: "Manage published session credentials",
	}
	cmd.AddCommand(newCredentialsSaveCommand(root))
	return cmd
}

func newCredentialsSaveCommand(root *rootOptions) *cobra.Command {
	opts := &credentialsOptions{root: root}

	cmd := &cobra.Command{
		Use:   "save",
		Short: "Publish a credential bundle to the configured source",
		Long: `Save writes a cookie/CSRF bundle where a waiting run will pick it up:
linkedinCredentials.json in the subject directory, or Redis when
CONNSYNC_CREDENTIAL_SOURCE=redis.`,
		Example: `  connsync credentials save --tenant acme --subject jdoe --cookie "$COOKIE" --csrf "$CSRF"`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(cmd)
		},
	}

	cmd.Flags().StringVar(&opts.tenant, "tenant", "", "tenant identifier (required)")
	cmd.Flags().StringVar(&opts.subject, "subject", "", "subject identifier (required)")
	cmd.Flags().StringVar(&opts.cookie, "cookie", "", "session cookie header (required)")
	cmd.Flags().StringVar(&opts.csrf, "csrf", "", "CSRF token")
	_ = cmd.MarkFlagRequired("tenant")
	_ = cmd.MarkFlagRequired("subject")
	_ = cmd.MarkFlagRequired("cookie")

	return cmd
}

func (o *credentialsOptions) run(cmd *cobra.Command) error {
	ctx := cmd.Context()
	bundle := credentials.Bundle{Cookie: o.cookie, CSRFToken: o.csrf}
	if !bundle.Usable() {
		return errors.New("cookie must not be blank")
	}

	var saver bundleSaver = credentials.NewFileSource(o.root.cfg.DataDir)
	if o.root.cfg.CredentialSource == "redis" {
		rdb, err := newRedis(ctx, o.root.cfg)
		if err != nil {
			return err
		}
		defer rdb.Close()
		saver = credentials.NewRedisSource(rdb, 0)
	}

	if err := saver.Save(ctx, o.tenant, o.subject, bundle); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "credentials saved for %s/%s\n", o.tenant, o.subject)
	return nil
}
