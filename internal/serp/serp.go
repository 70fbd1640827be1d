package serp

import (
	"context"
	"errors"
	"fmt"
	"regexp"
)

var (
	// ErrAuth is returned when API credentials are missing or empty.
	ErrAuth = errors.New("search credentials are not configured")
	// ErrInput is returned when a query is empty or whitespace-only.
	ErrInput = errors.New("search query is empty")
)

// UpstreamError reports a failed exchange with the search API: a non-success
// status, an undecodable body, or a transport failure (StatusCode 0).
type UpstreamError struct {
	StatusCode int
	Body       string
	Err        error
}

func (e *UpstreamError) Error() string {
	switch {
	case e.StatusCode != 0:
		return fmt.Sprintf("upstream returned %d: %s", e.StatusCode, e.Body)
	case e.Err != nil:
		return fmt.Sprintf("upstream request failed: %v", e.Err)
	default:
		return "upstream request failed"
	}
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// SearchItem is one listing as returned by the local search API. Only Title
// has markup removed; all other fields are raw.
type SearchItem struct {
	Title       string `json:"title"`
	Link        string `json:"link"`
	Category    string `json:"category"`
	Description string `json:"description"`
	Telephone   string `json:"telephone"`
	Address     string `json:"address"`
	RoadAddress string `json:"roadAddress"`
	MapX        string `json:"mapx"`
	MapY        string `json:"mapy"`
}

// SearchPage is one pagination window. It may be shorter than the requested
// size; an empty page means the upstream has no more results.
type SearchPage struct {
	Items   []SearchItem `json:"items"`
	Total   int          `json:"total"`
	Start   int          `json:"start"`
	Display int          `json:"display"`
}

// Provider abstracts a local search engine that returns ranked listings for a
// query. offset is 1-based.
type Provider interface {
	Fetch(ctx context.Context, query string, offset, pageSize int) (*SearchPage, error)
}

var tagRe = regexp.MustCompile(`<.*?>`)

// StripTags removes markup-style tags such as the <b> highlights the API wraps
// around matched terms.
func StripTags(s string) string {
	return tagRe.ReplaceAllString(s, "")
}
