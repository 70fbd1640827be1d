package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/FranksOps/rankwatch/internal/config"
	"github.com/FranksOps/rankwatch/internal/pipeline"
	"github.com/FranksOps/rankwatch/internal/rank"
	"github.com/FranksOps/rankwatch/internal/serp"
	"github.com/FranksOps/rankwatch/internal/storage"
	"github.com/FranksOps/rankwatch/internal/storage/csvbackend"
	"github.com/FranksOps/rankwatch/internal/storage/jsonbackend"
	"github.com/FranksOps/rankwatch/internal/storage/postgres"
	"github.com/FranksOps/rankwatch/internal/storage/sqlite"
	"github.com/FranksOps/rankwatch/internal/tasks"
	"github.com/FranksOps/rankwatch/pkg/ratelimit"
)

// App wires the search client, resolver, pipeline and sinks from a Config.
// One App holds one Pacer, so every run it performs shares the same pacing.
type App struct {
	cfg      *config.Config
	logger   *slog.Logger
	pipeline *pipeline.Pipeline
	mirrors  []storage.Backend
	now      func() time.Time
}

// Result describes one completed run.
type Result struct {
	ArtifactPath string
	*pipeline.RunResult
}

// New validates cfg and builds an App. Missing credentials fail here with
// serp.ErrAuth, before any task is read.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	client, err := serp.NewNaverLocal(serp.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		Endpoint:     cfg.Endpoint,
		Timeout:      cfg.Timeout,
		Pacer:        ratelimit.NewPacer(cfg.Pause),
	})
	if err != nil {
		return nil, err
	}

	resolver := rank.NewResolver(client, rank.Options{
		PageSize: cfg.PageSize,
		MaxDepth: cfg.MaxDepth,
		Logger:   logger,
	})

	mirrors, err := openMirrors(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	return &App{
		cfg:      cfg,
		logger:   logger,
		pipeline: pipeline.New(resolver, pipeline.Options{Concurrency: cfg.Concurrency, Logger: logger}),
		mirrors:  mirrors,
		now:      time.Now,
	}, nil
}

// Mirror kinds accepted by OpenMirror.
const (
	MirrorJSONL    = "jsonl"
	MirrorSQLite   = "sqlite"
	MirrorPostgres = "postgres"
)

// OpenMirror opens the mirror sink of the given kind from its configured
// location.
func OpenMirror(ctx context.Context, cfg *config.Config, kind string) (storage.Backend, error) {
	switch kind {
	case MirrorJSONL:
		if cfg.JSONLPath == "" {
			return nil, errors.New("RANKWATCH_JSONL_PATH is not set")
		}
		return jsonbackend.New(cfg.JSONLPath)
	case MirrorSQLite:
		if cfg.SQLiteDSN == "" {
			return nil, errors.New("RANKWATCH_SQLITE_DSN is not set")
		}
		return sqlite.New(cfg.SQLiteDSN)
	case MirrorPostgres:
		if cfg.PostgresDSN == "" {
			return nil, errors.New("RANKWATCH_POSTGRES_DSN is not set")
		}
		return postgres.New(ctx, cfg.PostgresDSN)
	default:
		return nil, fmt.Errorf("unknown mirror %q", kind)
	}
}

// openMirrors opens every configured mirror sink. Nothing is left open on
// failure.
func openMirrors(ctx context.Context, cfg *config.Config, logger *slog.Logger) ([]storage.Backend, error) {
	configured := []struct{ kind, target string }{
		{MirrorJSONL, cfg.JSONLPath},
		{MirrorSQLite, cfg.SQLiteDSN},
		{MirrorPostgres, cfg.PostgresDSN},
	}

	var mirrors []storage.Backend
	for _, m := range configured {
		if m.target == "" {
			continue
		}
		b, err := OpenMirror(ctx, cfg, m.kind)
		if err != nil {
			for _, open := range mirrors {
				_ = open.Close()
			}
			return nil, fmt.Errorf("open %s mirror: %w", m.kind, err)
		}
		mirrors = append(mirrors, b)
		logger.Info("mirroring records", "sink", m.kind)
	}
	return mirrors, nil
}

// RunOnce loads the keyword table, resolves every task and writes a new
// artifact. A keyword table that cannot be loaded fails with tasks.ErrConfig
// and no artifact is created. When ctx is canceled mid-run the partial
// result is returned together with the error.
func (a *App) RunOnce(ctx context.Context) (*Result, error) {
	ts, err := tasks.Load(a.cfg.KeywordsPath)
	if err != nil {
		return nil, err
	}

	run := storage.NewRun(a.now())
	artifact, err := csvbackend.Create(a.cfg.OutputDir, run)
	if err != nil {
		return nil, err
	}

	res, runErr := a.pipeline.Run(ctx, run, storage.Tee(artifact, a.mirrors...), ts)
	closeErr := artifact.Close()

	out := &Result{ArtifactPath: artifact.Path(), RunResult: res}
	if err := errors.Join(runErr, closeErr); err != nil {
		return out, err
	}
	a.logger.Info("artifact written", "path", out.ArtifactPath, "records", len(res.Records))
	return out, nil
}

// Close releases the mirror sinks.
func (a *App) Close() error {
	var errs []error
	for _, m := range a.mirrors {
		errs = append(errs, m.Close())
	}
	return errors.Join(errs...)
}
