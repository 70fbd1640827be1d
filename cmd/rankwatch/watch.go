package main

import (
	"context"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/FranksOps/rankwatch/internal/app"
	"github.com/FranksOps/rankwatch/internal/metrics"
	"github.com/FranksOps/rankwatch/internal/schedule"
)

func newWatchCmd(root *rootOptions) *cobra.Command {
	var (
		keywords string
		outDir   string
		interval time.Duration
	)

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Run on a fixed interval until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(root, keywords, outDir)
			if err != nil {
				return err
			}
			if interval > 0 {
				cfg.Interval = interval
			}

			ctx := cmd.Context()
			a, err := app.New(ctx, cfg, slog.Default())
			if err != nil {
				return err
			}
			defer a.Close()

			if cfg.MetricsPort > 0 {
				srv := metrics.Start(cfg.MetricsPort, slog.Default())
				defer func() {
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					if err := srv.Stop(shutdownCtx); err != nil {
						slog.Error("metrics server shutdown failed", "err", err)
					}
				}()
			}

			schedule.New(cfg.Interval, func(ctx context.Context) error {
				_, err := a.RunOnce(ctx)
				return err
			}, slog.Default()).Run(ctx)
			return nil
		},
	}

	cmd.Flags().StringVar(&keywords, "keywords", "", "keyword table (overrides RANKWATCH_KEYWORDS)")
	cmd.Flags().StringVar(&outDir, "out", "", "artifact directory (overrides RANKWATCH_OUTPUT_DIR)")
	cmd.Flags().DurationVar(&interval, "interval", 0, "re-run period (overrides RANKWATCH_INTERVAL)")
	return cmd
}
