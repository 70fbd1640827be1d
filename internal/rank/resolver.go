package rank

import (
	"context"
	"log/slog"

	"github.com/FranksOps/rankwatch/internal/analyzer"
	"github.com/FranksOps/rankwatch/internal/serp"
	"github.com/FranksOps/rankwatch/internal/tasks"
)

const (
	// DefaultPageSize is the number of listings requested per page.
	DefaultPageSize = 5
	// DefaultMaxDepth is the search-depth ceiling: listings beyond it are
	// never fetched or matched.
	DefaultMaxDepth = 50
)

// MatchResult is the outcome of resolving one task. Rank is 1-based over the
// cumulative listing sequence; Rank 0 with a nil Item means not found within
// the depth ceiling.
type MatchResult struct {
	Rank int
	Item *serp.SearchItem
	// Fetched is the number of listings scanned.
	Fetched int
	// Pages is the number of upstream calls made.
	Pages int
}

// Found reports whether a listing matched.
func (m MatchResult) Found() bool {
	return m.Rank > 0
}

// Options configures a Resolver.
type Options struct {
	PageSize int
	MaxDepth int
	Logger   *slog.Logger
}

// Resolver drives a serp.Provider across pages for one task and applies the
// matcher to the collected listings.
type Resolver struct {
	provider serp.Provider
	pageSize int
	maxDepth int
	logger   *slog.Logger
}

// NewResolver creates a Resolver. Zero options take the defaults.
func NewResolver(p serp.Provider, opts Options) *Resolver {
	if opts.PageSize <= 0 {
		opts.PageSize = DefaultPageSize
	}
	if opts.MaxDepth <= 0 {
		opts.MaxDepth = DefaultMaxDepth
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Resolver{
		provider: p,
		pageSize: opts.PageSize,
		maxDepth: opts.MaxDepth,
		logger:   opts.Logger,
	}
}

// Resolve fetches pages until the upstream runs short or the depth ceiling is
// reached, then matches once over everything collected. The page requests do
// not depend on whether an earlier page already held a match. Errors from the
// provider are returned as-is; there is no retry.
func (r *Resolver) Resolve(ctx context.Context, task tasks.KeywordTask) (MatchResult, error) {
	var (
		buf   []serp.SearchItem
		pages int
	)

	for offset := 1; len(buf) < r.maxDepth; offset += r.pageSize {
		if err := ctx.Err(); err != nil {
			return MatchResult{}, err
		}

		page, err := r.provider.Fetch(ctx, task.Keyword, offset, r.pageSize)
		if err != nil {
			return MatchResult{}, err
		}
		pages++

		var n int
		if page != nil {
			n = len(page.Items)
			buf = append(buf, page.Items...)
		}
		r.logger.Debug("fetched page", "keyword", task.Keyword, "offset", offset, "items", n)

		// A short page means the upstream has nothing further.
		if n < r.pageSize {
			break
		}
	}

	if len(buf) > r.maxDepth {
		buf = buf[:r.maxDepth]
	}

	pos, hit := analyzer.Match(buf, task.Patterns)
	return MatchResult{Rank: pos, Item: hit, Fetched: len(buf), Pages: pages}, nil
}
