package serp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/FranksOps/rankwatch/internal/metrics"
	"github.com/FranksOps/rankwatch/pkg/httpclient"
	"github.com/FranksOps/rankwatch/pkg/ratelimit"
)

const (
	// DefaultNaverEndpoint is the Naver Local Search Open API.
	DefaultNaverEndpoint = "https://openapi.naver.com/v1/search/local.json"
	// DefaultTimeout bounds a single API request.
	DefaultTimeout = 10 * time.Second
	// DefaultPause is the minimum spacing between API calls.
	DefaultPause = time.Second

	maxErrorBody = 512
)

// Config configures the Naver Local Search client.
type Config struct {
	ClientID     string
	ClientSecret string
	Endpoint     string
	Timeout      time.Duration
	// Pacer spaces calls. Share one Pacer across every client in the process;
	// if nil, a private one with DefaultPause is created.
	Pacer *ratelimit.Pacer
	// Transport overrides the HTTP transport, mostly for tests.
	Transport http.RoundTripper
}

// NaverLocal implements Provider against the Naver Local Search API.
type NaverLocal struct {
	cfg    Config
	client *httpclient.Client
	pacer  *ratelimit.Pacer
}

var _ Provider = (*NaverLocal)(nil)

// NewNaverLocal builds a client. It fails with ErrAuth when either credential
// is empty, so a misconfigured process stops before any task is attempted.
func NewNaverLocal(cfg Config) (*NaverLocal, error) {
	if err := checkCredentials(cfg); err != nil {
		return nil, err
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultNaverEndpoint
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	pacer := cfg.Pacer
	if pacer == nil {
		pacer = ratelimit.NewPacer(DefaultPause)
	}

	return &NaverLocal{
		cfg: cfg,
		client: httpclient.New(httpclient.Config{
			Timeout:      cfg.Timeout,
			MaxRedirects: 3,
			UserAgent:    "rankwatch/1.0",
			Transport:    cfg.Transport,
		}),
		pacer: pacer,
	}, nil
}

func checkCredentials(cfg Config) error {
	if strings.TrimSpace(cfg.ClientID) == "" || strings.TrimSpace(cfg.ClientSecret) == "" {
		return ErrAuth
	}
	return nil
}

// Fetch requests one page of results starting at the 1-based offset.
func (n *NaverLocal) Fetch(ctx context.Context, query string, offset, pageSize int) (*SearchPage, error) {
	if err := checkCredentials(n.cfg); err != nil {
		return nil, err
	}
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("%w: %q", ErrInput, query)
	}

	u, err := url.Parse(n.cfg.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid endpoint: %w", err)
	}
	q := u.Query()
	q.Set("query", query)
	q.Set("start", strconv.Itoa(offset))
	q.Set("display", strconv.Itoa(pageSize))
	u.RawQuery = q.Encode()

	h := http.Header{}
	h.Set("X-Naver-Client-Id", n.cfg.ClientID)
	h.Set("X-Naver-Client-Secret", n.cfg.ClientSecret)
	h.Set("Accept", "application/json")

	var resp *httpclient.Response
	err = n.pacer.Do(ctx, func(ctx context.Context) error {
		var doErr error
		resp, doErr = n.client.Get(ctx, u.String(), h)
		return doErr
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		metrics.RecordSearch("error", 0)
		return nil, &UpstreamError{Err: err}
	}

	metrics.RecordSearch(strconv.Itoa(resp.StatusCode), resp.Duration)

	if !resp.OK() {
		return nil, &UpstreamError{StatusCode: resp.StatusCode, Body: truncate(string(resp.Body), maxErrorBody)}
	}

	var page SearchPage
	if err := json.Unmarshal(resp.Body, &page); err != nil {
		return nil, &UpstreamError{Err: fmt.Errorf("decode response: %w", err)}
	}
	for i := range page.Items {
		page.Items[i].Title = StripTags(page.Items[i].Title)
	}
	return &page, nil
}

// truncate cuts s to at most n bytes without splitting a UTF-8 sequence.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}
