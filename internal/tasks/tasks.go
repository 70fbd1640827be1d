package tasks

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// ErrConfig is returned when the keyword table is missing, unreadable or
// yields no tasks. It is fatal to a run.
var ErrConfig = errors.New("keyword table is invalid")

// KeywordTask is one keyword/branch/pattern unit of rank evaluation.
type KeywordTask struct {
	Keyword  string
	Branch   string
	Patterns []string
	// Line is the 1-based line in the table file where the row starts,
	// counting the header.
	Line int
}

// Header substrings used to locate the logical columns, matched
// case-insensitively so renamed exports ("Target_Patterns", "Branch_Name")
// still resolve.
const (
	keywordColumn = "keyword"
	branchColumn  = "branch"
	patternColumn = "pattern"
)

const utf8BOM = "\uFEFF"

// Load reads the keyword table at path.
func Load(path string) ([]KeywordTask, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfig, err)
	}
	defer f.Close()

	tasks, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return tasks, nil
}

// Parse reads a CSV keyword table. The first header containing each of
// "keyword", "branch" and "pattern" supplies that field; missing columns read
// as empty. Patterns are pipe-delimited and trimmed, with empty segments
// dropped. A bare quote inside an unquoted cell is kept as a literal
// character.
func Parse(r io.Reader) ([]KeywordTask, error) {
	br := bufio.NewReader(r)
	if b, err := br.Peek(len(utf8BOM)); err == nil && string(b) == utf8BOM {
		_, _ = br.Discard(len(utf8BOM))
	}

	cr := csv.NewReader(br)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	cr.LazyQuotes = true

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: no header row", ErrConfig)
		}
		return nil, fmt.Errorf("%w: %v", ErrConfig, err)
	}
	kwIdx := columnIndex(header, keywordColumn)
	brIdx := columnIndex(header, branchColumn)
	patIdx := columnIndex(header, patternColumn)

	var tasks []KeywordTask
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrConfig, err)
		}
		if isBlank(rec) {
			continue
		}
		line, _ := cr.FieldPos(0)

		tasks = append(tasks, KeywordTask{
			Keyword:  field(rec, kwIdx),
			Branch:   field(rec, brIdx),
			Patterns: SplitPatterns(field(rec, patIdx)),
			Line:     line,
		})
	}

	if len(tasks) == 0 {
		return nil, fmt.Errorf("%w: no tasks", ErrConfig)
	}
	return tasks, nil
}

// SplitPatterns splits a pipe-delimited pattern string, trimming each segment
// and discarding empty ones.
func SplitPatterns(s string) []string {
	parts := strings.Split(s, "|")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func columnIndex(header []string, substr string) int {
	for i, h := range header {
		if strings.Contains(strings.ToLower(h), substr) {
			return i
		}
	}
	return -1
}

func field(rec []string, idx int) string {
	if idx < 0 || idx >= len(rec) {
		return ""
	}
	return strings.TrimSpace(rec[idx])
}

func isBlank(rec []string) bool {
	for _, v := range rec {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
