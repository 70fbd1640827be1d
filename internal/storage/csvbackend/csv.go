package csvbackend

import (
	"bufio"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"sync"
	"time"

	"github.com/FranksOps/rankwatch/internal/storage"
)

// ensure Artifact implements storage.Backend
var _ storage.Backend = (*Artifact)(nil)

// ErrNoArtifact is returned by Latest when the directory holds no results file.
var ErrNoArtifact = errors.New("no results artifact found")

// Header is the exact column order of a results artifact.
var Header = []string{
	"timestamp",
	"keyword",
	"branch",
	"rank_local",
	"match_title",
	"match_link",
	"match_address",
	"match_telephone",
}

const (
	filePrefix = "results_"
	fileExt    = ".csv"
	utf8BOM    = "\uFEFF"

	// maxCollisions bounds the _2, _3, ... suffix search for a taken name.
	maxCollisions = 100
)

// Artifact is the per-run results file. Each Save appends one row and flushes
// it, so a run cut short still leaves a well-formed file.
type Artifact struct {
	mu   sync.Mutex
	run  storage.Run
	path string
	file *os.File
	w    *csv.Writer
}

// FileName returns the artifact base name for a run timestamp.
func FileName(timestamp string) string {
	return filePrefix + timestamp + fileExt
}

// Create makes a new artifact for run in dir. An existing file is never
// overwritten: a taken name gets a numeric suffix.
func Create(dir string, run storage.Run) (*Artifact, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}

	var (
		f    *os.File
		path string
		err  error
	)
	for i := 1; i <= maxCollisions; i++ {
		name := FileName(run.Timestamp)
		if i > 1 {
			name = fmt.Sprintf("%s%s_%d%s", filePrefix, run.Timestamp, i, fileExt)
		}
		path = filepath.Join(dir, name)
		f, err = os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if err == nil {
			break
		}
		if !errors.Is(err, fs.ErrExist) {
			return nil, fmt.Errorf("create artifact: %w", err)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("create artifact: %w", err)
	}

	if _, err := f.WriteString(utf8BOM); err != nil {
		f.Close()
		return nil, fmt.Errorf("write artifact header: %w", err)
	}
	w := csv.NewWriter(f)
	if err := w.Write(Header); err != nil {
		f.Close()
		return nil, fmt.Errorf("write artifact header: %w", err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()
		return nil, fmt.Errorf("write artifact header: %w", err)
	}

	return &Artifact{run: run, path: path, file: f, w: w}, nil
}

// Path returns the artifact's file path.
func (a *Artifact) Path() string {
	return a.path
}

func (a *Artifact) Save(ctx context.Context, rec *storage.RankRecord) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.w.Write(row(rec)); err != nil {
		return fmt.Errorf("write artifact row: %w", err)
	}
	a.w.Flush()
	if err := a.w.Error(); err != nil {
		return fmt.Errorf("write artifact row: %w", err)
	}
	return nil
}

// Query reads the rows written so far back from disk.
func (a *Artifact) Query(ctx context.Context, filter storage.Filter) ([]*storage.RankRecord, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	recs, err := ReadFile(a.path)
	if err != nil {
		return nil, err
	}

	var out []*storage.RankRecord
	for _, rec := range recs {
		rec.RunID = a.run.ID
		rec.RunAt = a.run.StartedAt
		if filter.Matches(rec) {
			out = append(out, rec)
		}
	}
	return filter.Page(out), nil
}

func (a *Artifact) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.file.Close()
}

func row(rec *storage.RankRecord) []string {
	rank := ""
	if rec.Ranked() {
		rank = strconv.Itoa(rec.Rank)
	}
	return []string{
		rec.Timestamp,
		rec.Keyword,
		rec.Branch,
		rank,
		rec.MatchTitle,
		rec.MatchLink,
		rec.MatchAddress,
		rec.MatchTelephone,
	}
}

// ReadFile parses a results artifact. RunAt is derived from the timestamp
// column in local time; RunID is unknown and left empty.
func ReadFile(path string) ([]*storage.RankRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open artifact: %w", err)
	}
	defer f.Close()

	recs, err := read(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return recs, nil
}

func read(r io.Reader) ([]*storage.RankRecord, error) {
	br := bufio.NewReader(r)
	if b, err := br.Peek(len(utf8BOM)); err == nil && string(b) == utf8BOM {
		_, _ = br.Discard(len(utf8BOM))
	}

	cr := csv.NewReader(br)
	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return []*storage.RankRecord{}, nil
		}
		return nil, err
	}
	if !slices.Equal(header, Header) {
		return nil, fmt.Errorf("unexpected header %v", header)
	}

	recs := []*storage.RankRecord{}
	for {
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}

		rank := 0
		if record[3] != "" {
			if rank, err = strconv.Atoi(record[3]); err != nil {
				return nil, fmt.Errorf("line %d: bad rank %q", len(recs)+2, record[3])
			}
		}
		runAt, _ := time.ParseInLocation(storage.TimestampLayout, record[0], time.Local)

		recs = append(recs, &storage.RankRecord{
			RunAt:          runAt,
			Timestamp:      record[0],
			Keyword:        record[1],
			Branch:         record[2],
			Rank:           rank,
			MatchTitle:     record[4],
			MatchLink:      record[5],
			MatchAddress:   record[6],
			MatchTelephone: record[7],
		})
	}
	return recs, nil
}

// Latest returns the path of the most recently modified results artifact in
// dir. Ties go to the lexically greatest name.
func Latest(dir string) (string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, filePrefix+"*"+fileExt))
	if err != nil {
		return "", fmt.Errorf("find artifacts: %w", err)
	}

	var (
		best    string
		bestMod time.Time
	)
	for _, m := range matches {
		info, err := os.Stat(m)
		if err != nil || !info.Mode().IsRegular() {
			continue
		}
		mod := info.ModTime()
		if best == "" || mod.After(bestMod) || (mod.Equal(bestMod) && m > best) {
			best, bestMod = m, mod
		}
	}
	if best == "" {
		return "", fmt.Errorf("%s: %w", dir, ErrNoArtifact)
	}
	return best, nil
}
