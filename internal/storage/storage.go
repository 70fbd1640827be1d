package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// TimestampLayout formats a run timestamp. It is both the value written to
// every record of a run and the suffix of the run's artifact file name.
const TimestampLayout = "20060102_150405"

// Run identifies a single orchestrator pass over the keyword table.
type Run struct {
	ID        string
	StartedAt time.Time
	Timestamp string
}

// NewRun starts a Run at now.
func NewRun(now time.Time) Run {
	return Run{
		ID:        uuid.NewString(),
		StartedAt: now,
		Timestamp: now.Format(TimestampLayout),
	}
}

// RankRecord is the per-task output row.
type RankRecord struct {
	ID        string
	RunID     string
	RunAt     time.Time
	Timestamp string
	Keyword   string
	Branch    string
	// Rank is the 1-based position of the first matching listing; 0 means
	// unranked.
	Rank           int
	MatchTitle     string
	MatchLink      string
	MatchAddress   string
	MatchTelephone string
	Error          string // non-empty if resolving the task failed
}

// Ranked reports whether the record carries a rank.
func (r *RankRecord) Ranked() bool {
	return r.Rank > 0
}

// Filter allows querying for specific RankRecords.
type Filter struct {
	RunID   string
	Keyword string
	Branch  string
	Ranked  *bool
	Since   *time.Time
	Limit   int
	Offset  int
}

// Matches reports whether rec passes every set criterion. Limit and Offset are
// not considered.
func (f Filter) Matches(rec *RankRecord) bool {
	if f.RunID != "" && rec.RunID != f.RunID {
		return false
	}
	if f.Keyword != "" && rec.Keyword != f.Keyword {
		return false
	}
	if f.Branch != "" && rec.Branch != f.Branch {
		return false
	}
	if f.Ranked != nil && rec.Ranked() != *f.Ranked {
		return false
	}
	if f.Since != nil && rec.RunAt.Before(*f.Since) {
		return false
	}
	return true
}

// Page applies Offset and Limit to an already filtered and ordered slice.
func (f Filter) Page(recs []*RankRecord) []*RankRecord {
	if f.Offset > 0 {
		if f.Offset >= len(recs) {
			return []*RankRecord{}
		}
		recs = recs[f.Offset:]
	}
	if f.Limit > 0 && f.Limit < len(recs) {
		recs = recs[:f.Limit]
	}
	return recs
}

// Backend defines the interface for storing and querying rank records.
// Query returns newest runs first; records of one run keep their save order.
type Backend interface {
	Save(ctx context.Context, rec *RankRecord) error
	Query(ctx context.Context, filter Filter) ([]*RankRecord, error)
	Close() error
}

// Tee returns a Backend that saves to primary and every mirror. Queries are
// served by primary alone.
func Tee(primary Backend, mirrors ...Backend) Backend {
	if len(mirrors) == 0 {
		return primary
	}
	return &tee{primary: primary, mirrors: mirrors}
}

// ErrNoRecords is returned by LatestRun when the backend holds no records.
var ErrNoRecords = errors.New("no records stored")

// LatestRun returns the records of the most recent run held by b, in the
// order they were saved.
func LatestRun(ctx context.Context, b Backend) ([]*RankRecord, error) {
	newest, err := b.Query(ctx, Filter{Limit: 1})
	if err != nil {
		return nil, fmt.Errorf("find latest run: %w", err)
	}
	if len(newest) == 0 {
		return nil, ErrNoRecords
	}
	return b.Query(ctx, Filter{RunID: newest[0].RunID})
}

// MirrorError reports mirrors that failed to save a record the primary
// backend accepted.
type MirrorError struct {
	Err error
}

func (e *MirrorError) Error() string { return "mirror save failed: " + e.Err.Error() }

func (e *MirrorError) Unwrap() error { return e.Err }

type tee struct {
	primary Backend
	mirrors []Backend
}

func (t *tee) Save(ctx context.Context, rec *RankRecord) error {
	if err := t.primary.Save(ctx, rec); err != nil {
		return err
	}
	var errs []error
	for i, m := range t.mirrors {
		if err := m.Save(ctx, rec); err != nil {
			errs = append(errs, fmt.Errorf("mirror %d: %w", i, err))
		}
	}
	if len(errs) > 0 {
		return &MirrorError{Err: errors.Join(errs...)}
	}
	return nil
}

func (t *tee) Query(ctx context.Context, filter Filter) ([]*RankRecord, error) {
	return t.primary.Query(ctx, filter)
}

func (t *tee) Close() error {
	errs := []error{t.primary.Close()}
	for _, m := range t.mirrors {
		errs = append(errs, m.Close())
	}
	return errors.Join(errs...)
}
