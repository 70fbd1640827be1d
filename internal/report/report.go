package report

import (
	"encoding/json"
	"fmt"
	"io"
	"slices"
	"text/template"

	"github.com/FranksOps/rankwatch/internal/storage"
)

// topN is the rank at or above which a listing counts as a top placement.
const topN = 5

// KeywordStat counts checks and ranked results for one keyword.
type KeywordStat struct {
	Keyword string
	Total   int
	Ranked  int
}

// Coverage returns the ranked share in percent.
func (k KeywordStat) Coverage() float64 {
	return percent(k.Ranked, k.Total)
}

// Entry is one branch/keyword result line.
type Entry struct {
	Branch  string
	Keyword string
	Rank    int
	Error   string `json:",omitempty"`
}

// Summary aggregates the records of one run.
type Summary struct {
	Source           string
	Timestamp        string
	TotalChecks      int
	DistinctBranches int
	Ranked           int
	Unranked         int
	Failed           int
	TopPlacements    int
	Coverage         float64
	Keywords         []KeywordStat
	RankedEntries    []Entry
	UnrankedEntries  []Entry
}

// GenerateSummary processes the records of a run. Keywords keep their first
// appearance order, ranked entries are ordered by rank (ties keep input
// order) and unranked entries keep input order.
func GenerateSummary(records []*storage.RankRecord) Summary {
	s := Summary{
		Keywords:        []KeywordStat{},
		RankedEntries:   []Entry{},
		UnrankedEntries: []Entry{},
	}

	branches := make(map[string]struct{})
	kwIndex := make(map[string]int)

	for _, r := range records {
		s.TotalChecks++
		if s.Timestamp == "" {
			s.Timestamp = r.Timestamp
		}
		branches[r.Branch] = struct{}{}

		i, ok := kwIndex[r.Keyword]
		if !ok {
			i = len(s.Keywords)
			kwIndex[r.Keyword] = i
			s.Keywords = append(s.Keywords, KeywordStat{Keyword: r.Keyword})
		}
		s.Keywords[i].Total++

		e := Entry{Branch: r.Branch, Keyword: r.Keyword, Rank: r.Rank, Error: r.Error}
		if r.Ranked() {
			s.Ranked++
			s.Keywords[i].Ranked++
			if r.Rank <= topN {
				s.TopPlacements++
			}
			s.RankedEntries = append(s.RankedEntries, e)
			continue
		}
		s.Unranked++
		if r.Error != "" {
			s.Failed++
		}
		s.UnrankedEntries = append(s.UnrankedEntries, e)
	}

	slices.SortStableFunc(s.RankedEntries, func(a, b Entry) int {
		return a.Rank - b.Rank
	})

	s.DistinctBranches = len(branches)
	s.Coverage = percent(s.Ranked, s.TotalChecks)
	return s
}

func percent(n, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(n) / float64(total) * 100
}

// WriteJSON writes the summary to the provided writer in JSON format.
func WriteJSON(w io.Writer, summary Summary) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(summary); err != nil {
		return fmt.Errorf("write json summary: %w", err)
	}
	return nil
}

const textTmpl = `Rank Summary
------------
{{- if .Source}}
Source:        {{.Source}}
{{- end}}
Run:           {{.Timestamp}}
Checks:        {{.TotalChecks}}
Branches:      {{.DistinctBranches}}
Ranked:        {{.Ranked}}
Unranked:      {{.Unranked}}{{if .Failed}} ({{.Failed}} failed){{end}}
Top {{topN}}:         {{.TopPlacements}}
Coverage:      {{printf "%.1f" .Coverage}}%

By keyword:
{{- range .Keywords}}
  {{.Keyword}}: {{.Ranked}}/{{.Total}} ({{printf "%.1f" .Coverage}}%)
{{- else}}
  None
{{- end}}

Ranked (by rank):
{{- range .RankedEntries}}
  #{{.Rank}} {{.Branch}} ({{.Keyword}})
{{- else}}
  None
{{- end}}

Unranked:
{{- range .UnrankedEntries}}
  {{.Branch}} ({{.Keyword}}){{if .Error}}: {{.Error}}{{end}}
{{- else}}
  None
{{- end}}
`

var textReport = template.Must(template.New("textReport").
	Funcs(template.FuncMap{"topN": func() int { return topN }}).
	Parse(textTmpl))

// WriteText writes a human-readable text summary to the provided writer.
func WriteText(w io.Writer, summary Summary) error {
	if err := textReport.Execute(w, summary); err != nil {
		return fmt.Errorf("write text summary: %w", err)
	}
	return nil
}
