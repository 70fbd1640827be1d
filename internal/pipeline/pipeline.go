package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/FranksOps/rankwatch/internal/analyzer"
	"github.com/FranksOps/rankwatch/internal/metrics"
	"github.com/FranksOps/rankwatch/internal/rank"
	"github.com/FranksOps/rankwatch/internal/serp"
	"github.com/FranksOps/rankwatch/internal/storage"
	"github.com/FranksOps/rankwatch/internal/tasks"
)

// Resolver resolves the rank of one task. *rank.Resolver satisfies it.
type Resolver interface {
	Resolve(ctx context.Context, task tasks.KeywordTask) (rank.MatchResult, error)
}

// Kind classifies how a task ended.
type Kind string

const (
	KindOK         Kind = "ok"
	KindUnranked   Kind = "unranked"
	KindInput      Kind = "input"
	KindAuth       Kind = "auth"
	KindUpstream   Kind = "upstream"
	KindCanceled   Kind = "canceled"
	KindUnexpected Kind = "unexpected"
)

// Failed reports whether the kind represents an error.
func (k Kind) Failed() bool {
	return k != KindOK && k != KindUnranked
}

// Outcome is the explicit result of one task's failure boundary.
type Outcome struct {
	Index  int
	Task   tasks.KeywordTask
	Result rank.MatchResult
	Err    error
	Kind   Kind
}

// RunResult collects everything a run produced. Records and Outcomes are in
// input order and hold only the tasks that completed.
type RunResult struct {
	Run      storage.Run
	Records  []*storage.RankRecord
	Outcomes []Outcome
}

// Options configures a Pipeline.
type Options struct {
	// Concurrency is the number of tasks resolved at once. Values below 2 run
	// tasks one after another.
	Concurrency int
	Logger      *slog.Logger
	Clock       func() time.Time
}

// Pipeline runs every keyword task through the resolver and hands one record
// per task to a storage backend.
type Pipeline struct {
	resolver    Resolver
	concurrency int
	logger      *slog.Logger
	now         func() time.Time
}

// New creates a Pipeline.
func New(resolver Resolver, opts Options) *Pipeline {
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	return &Pipeline{
		resolver:    resolver,
		concurrency: opts.Concurrency,
		logger:      opts.Logger,
		now:         opts.Clock,
	}
}

// Run resolves ts for run and saves a record per task to sink in input order.
// A failing task never aborts the run: it is recorded with an empty rank and
// an error note. The returned error is non-nil only when sink rejects a
// record or ctx is canceled; the result then holds the records saved so far.
func (p *Pipeline) Run(ctx context.Context, run storage.Run, sink storage.Backend, ts []tasks.KeywordTask) (*RunResult, error) {
	if sink == nil {
		return nil, fmt.Errorf("pipeline: sink is nil")
	}

	res := &RunResult{
		Run:      run,
		Records:  make([]*storage.RankRecord, 0, len(ts)),
		Outcomes: make([]Outcome, 0, len(ts)),
	}
	p.logger.Info("run started", "run_id", run.ID, "timestamp", run.Timestamp, "tasks", len(ts), "concurrency", p.concurrency)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.concurrency)

	// Outcomes may complete out of order; they are committed as a contiguous
	// prefix so the sink always sees input order.
	var (
		mu    sync.Mutex
		ready = make([]*Outcome, len(ts))
		next  int
	)
	for i, task := range ts {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			out := p.resolve(gctx, i, task)

			mu.Lock()
			defer mu.Unlock()

			ready[i] = &out
			for next < len(ready) && ready[next] != nil {
				o := ready[next]
				if o.Kind == KindCanceled && gctx.Err() != nil {
					return gctx.Err()
				}
				if err := p.commit(ctx, res, sink, *o); err != nil {
					return err
				}
				next++
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		p.logger.Warn("run interrupted", "run_id", run.ID, "completed", len(res.Records), "tasks", len(ts), "err", err)
		return res, err
	}
	if err := ctx.Err(); err != nil && len(res.Records) < len(ts) {
		return res, err
	}

	metrics.RecordRunFinished(p.now())
	p.logger.Info("run finished", "run_id", run.ID, "records", len(res.Records), "ranked", countRanked(res.Records))
	return res, nil
}

// resolve is the per-task failure boundary: every error, panics included,
// comes back as an Outcome.
func (p *Pipeline) resolve(ctx context.Context, i int, task tasks.KeywordTask) (out Outcome) {
	out = Outcome{Index: i, Task: task}
	defer func() {
		if r := recover(); r != nil {
			out.Result = rank.MatchResult{}
			out.Err = fmt.Errorf("panic: %v", r)
			out.Kind = KindUnexpected
		}
	}()

	out.Result, out.Err = p.resolver.Resolve(ctx, task)
	out.Kind = Classify(out.Result, out.Err)
	if out.Kind.Failed() {
		out.Result = rank.MatchResult{}
	}
	return out
}

// Classify maps a resolver result to its outcome kind.
func Classify(res rank.MatchResult, err error) Kind {
	var upstream *serp.UpstreamError
	switch {
	case err == nil && res.Found():
		return KindOK
	case err == nil:
		return KindUnranked
	case errors.Is(err, serp.ErrInput):
		return KindInput
	case errors.Is(err, serp.ErrAuth):
		return KindAuth
	case errors.As(err, &upstream):
		return KindUpstream
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return KindCanceled
	default:
		return KindUnexpected
	}
}

// commit turns an outcome into a record and saves it. Completed work is saved
// even while the run is being canceled.
func (p *Pipeline) commit(ctx context.Context, res *RunResult, sink storage.Backend, out Outcome) error {
	rec := NewRecord(res.Run, out)
	if err := sink.Save(context.WithoutCancel(ctx), rec); err != nil {
		var mirrorErr *storage.MirrorError
		if !errors.As(err, &mirrorErr) {
			return fmt.Errorf("save record for %q: %w", out.Task.Keyword, err)
		}
		p.logger.Warn("mirror save failed", "keyword", out.Task.Keyword, "err", err)
	}
	res.Records = append(res.Records, rec)
	res.Outcomes = append(res.Outcomes, out)
	metrics.RecordTask(string(out.Kind))

	log := p.logger.With("keyword", out.Task.Keyword, "branch", out.Task.Branch)
	switch out.Kind {
	case KindOK:
		log.Info("ranked", "rank", rec.Rank, "title", rec.MatchTitle)
	case KindUnranked:
		log.Info("not ranked", "depth", out.Result.Fetched)
	default:
		log.Error("task failed", "kind", out.Kind, "line", out.Task.Line, "err", out.Err)
	}
	return nil
}

// NewRecord builds the output record for an outcome. Failed and unranked
// tasks get an empty rank and empty match fields.
func NewRecord(run storage.Run, out Outcome) *storage.RankRecord {
	rec := &storage.RankRecord{
		ID:        uuid.NewString(),
		RunID:     run.ID,
		RunAt:     run.StartedAt,
		Timestamp: run.Timestamp,
		Keyword:   out.Task.Keyword,
		Branch:    out.Task.Branch,
	}
	if out.Err != nil {
		rec.Error = out.Err.Error()
		return rec
	}
	if it := out.Result.Item; it != nil && out.Result.Found() {
		rec.Rank = out.Result.Rank
		rec.MatchTitle = serp.StripTags(it.Title)
		rec.MatchLink = it.Link
		rec.MatchAddress = analyzer.JoinAddress(*it)
		rec.MatchTelephone = it.Telephone
	}
	return rec
}

func countRanked(recs []*storage.RankRecord) int {
	n := 0
	for _, r := range recs {
		if r.Ranked() {
			n++
		}
	}
	return n
}
