package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/FranksOps/rankwatch/internal/app"
	"github.com/FranksOps/rankwatch/internal/config"
	"github.com/FranksOps/rankwatch/internal/report"
	"github.com/FranksOps/rankwatch/internal/storage"
	"github.com/FranksOps/rankwatch/internal/storage/csvbackend"
)

func newSummaryCmd(root *rootOptions) *cobra.Command {
	var (
		dir    string
		from   string
		format string
	)

	cmd := &cobra.Command{
		Use:   "summary [artifact]",
		Short: "Summarize a results artifact (the most recent one by default)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				records []*storage.RankRecord
				source  string
				err     error
			)
			if from == "" {
				records, source, err = readArtifact(root, args, dir)
			} else {
				if len(args) > 0 {
					return errors.New("an artifact path cannot be combined with --from")
				}
				records, source, err = readMirror(cmd.Context(), root, from)
			}
			if err != nil {
				return err
			}

			s := report.GenerateSummary(records)
			s.Source = source

			switch format {
			case "text":
				return report.WriteText(cmd.OutOrStdout(), s)
			case "json":
				return report.WriteJSON(cmd.OutOrStdout(), s)
			default:
				return fmt.Errorf("invalid --format %q", format)
			}
		},
	}

	cmd.Flags().StringVar(&dir, "dir", "", "directory to search for the latest artifact (default: RANKWATCH_OUTPUT_DIR)")
	cmd.Flags().StringVar(&from, "from", "", "summarize the latest run stored in a mirror instead: jsonl, sqlite or postgres")
	cmd.Flags().StringVarP(&format, "format", "f", "text", "output format: text or json")
	return cmd
}

func readArtifact(root *rootOptions, args []string, dir string) ([]*storage.RankRecord, string, error) {
	var path string
	if len(args) == 1 {
		path = args[0]
	} else {
		if dir == "" {
			cfg, err := config.Load(root.configPath)
			if err != nil {
				return nil, "", err
			}
			dir = cfg.OutputDir
		}
		latest, err := csvbackend.Latest(dir)
		if err != nil {
			return nil, "", err
		}
		path = latest
	}

	records, err := csvbackend.ReadFile(path)
	if err != nil {
		return nil, "", err
	}
	return records, path, nil
}

// readMirror loads the most recent run recorded in the named mirror sink.
func readMirror(ctx context.Context, root *rootOptions, kind string) ([]*storage.RankRecord, string, error) {
	cfg, err := config.Load(root.configPath)
	if err != nil {
		return nil, "", err
	}
	b, err := app.OpenMirror(ctx, cfg, kind)
	if err != nil {
		return nil, "", err
	}
	defer b.Close()

	records, err := storage.LatestRun(ctx, b)
	if err != nil {
		return nil, "", fmt.Errorf("%s mirror: %w", kind, err)
	}
	return records, fmt.Sprintf("%s run %s", kind, records[0].RunID), nil
}
