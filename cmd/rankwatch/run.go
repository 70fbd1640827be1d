package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/FranksOps/rankwatch/internal/app"
	"github.com/FranksOps/rankwatch/internal/config"
	"github.com/FranksOps/rankwatch/internal/report"
)

type runOptions struct {
	keywords string
	outDir   string
	summary  bool
}

func newRunCmd(root *rootOptions) *cobra.Command {
	opts := &runOptions{}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Resolve every keyword once and write a results artifact",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(root, opts.keywords, opts.outDir)
			if err != nil {
				return err
			}

			a, err := app.New(cmd.Context(), cfg, slog.Default())
			if err != nil {
				return err
			}
			defer a.Close()

			res, err := a.RunOnce(cmd.Context())
			if err != nil {
				if res != nil {
					slog.Warn("run incomplete; partial artifact kept", "path", res.ArtifactPath, "records", len(res.Records))
				}
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), res.ArtifactPath)
			if opts.summary {
				s := report.GenerateSummary(res.Records)
				s.Source = res.ArtifactPath
				return report.WriteText(cmd.OutOrStdout(), s)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.keywords, "keywords", "", "keyword table (overrides RANKWATCH_KEYWORDS)")
	cmd.Flags().StringVar(&opts.outDir, "out", "", "artifact directory (overrides RANKWATCH_OUTPUT_DIR)")
	cmd.Flags().BoolVar(&opts.summary, "summary", false, "print a summary of the run")
	return cmd
}

// loadConfig reads the config and applies non-empty flag overrides.
func loadConfig(root *rootOptions, keywords, outDir string) (*config.Config, error) {
	cfg, err := config.Load(root.configPath)
	if err != nil {
		return nil, err
	}
	if keywords != "" {
		cfg.KeywordsPath = keywords
	}
	if outDir != "" {
		cfg.OutputDir = outDir
	}
	return cfg, nil
}
