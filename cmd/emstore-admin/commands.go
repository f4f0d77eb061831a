package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"alcyxob/emstore/internal/app"
	"alcyxob/emstore/internal/domain"
	"alcyxob/emstore/internal/service"
)

type appLoader func(ctx context.Context, configDir string) (*app.App, error)

type backfillOptions struct {
	limit   int
	workers int
	kind    string
}

func newRootCommand(load appLoader) *cobra.Command {
	var configDir string

	rootCmd := &cobra.Command{
		Use:           "emstore-admin",
		Short:         "Maintenance tasks for the emstore attachment store",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVarP(&configDir, "config", "c", ".", "Directory containing config.yaml and .env")

	rootCmd.AddCommand(newBackfillCommand(func(ctx context.Context) (*app.App, error) {
		return load(ctx, configDir)
	}))
	return rootCmd
}

func newBackfillCommand(load func(ctx context.Context) (*app.App, error)) *cobra.Command {
	opts := backfillOptions{}
	cmd := &cobra.Command{
		Use:   "backfill-urls",
		Short: "Resolve and store download URLs for attachments that have none",
		Long: "Derives the download URL of every attachment whose cached URL is empty, using the\n" +
			"configured URL strategy. Only metadata is updated; blobs are never read or rewritten.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			services, err := selectKinds(opts.kind)
			if err != nil {
				return err
			}
			a, err := load(cmd.Context())
			if err != nil {
				return err
			}
			defer func() {
				if err := a.Close(); err != nil {
					a.Log.Warn("Close failed", zap.Error(err))
				}
			}()
			return runBackfill(cmd, a.AttachmentServices(), services, opts)
		},
	}
	cmd.Flags().IntVar(&opts.limit, "limit", 1000, "Maximum attachments to process per kind (0 = all)")
	cmd.Flags().IntVar(&opts.workers, "workers", 4, "Concurrent URL updates")
	cmd.Flags().StringVar(&opts.kind, "kind", "", "Only process one parent kind (campaign or submission)")
	return cmd
}

// selectKinds returns the kinds to process; nil means all of them.
func selectKinds(raw string) (map[domain.ParentKind]bool, error) {
	if raw == "" {
		return nil, nil
	}
	kind, ok := domain.ParseParentKind(raw)
	if !ok {
		return nil, fmt.Errorf("unknown kind %q (want campaign or submission)", raw)
	}
	return map[domain.ParentKind]bool{kind: true}, nil
}

func runBackfill(cmd *cobra.Command, all []service.AttachmentService, only map[domain.ParentKind]bool, opts backfillOptions) error {
	out := cmd.OutOrStdout()
	failed := 0
	for _, svc := range all {
		if only != nil && !only[svc.Kind()] {
			continue
		}
		res, err := svc.BackfillURLs(cmd.Context(), opts.limit, opts.workers)
		if err != nil {
			return fmt.Errorf("%s backfill: %w", svc.Kind(), err)
		}
		fmt.Fprintf(out, "%-10s scanned=%d updated=%d failed=%d\n", svc.Kind(), res.Scanned, res.Updated, res.Failed)
		failed += res.Failed
	}
	if failed > 0 {
		return fmt.Errorf("%d attachment URLs could not be resolved", failed)
	}
	return nil
}
