package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/FranksOps/rankwatch/internal/config"
	"github.com/FranksOps/rankwatch/internal/serp"
	"github.com/FranksOps/rankwatch/internal/storage"
	"github.com/FranksOps/rankwatch/internal/storage/csvbackend"
	"github.com/FranksOps/rankwatch/internal/tasks"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

// fakeLocalAPI serves listings per query, paginated by start/display.
func fakeLocalAPI(t *testing.T, listings map[string][]serp.SearchItem) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Naver-Client-Id") != "id" || r.Header.Get("X-Naver-Client-Secret") != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		q := r.URL.Query()
		query := q.Get("query")
		if query == "broken" {
			http.Error(w, `{"errorCode":"SE99"}`, http.StatusInternalServerError)
			return
		}
		start, _ := strconv.Atoi(q.Get("start"))
		display, _ := strconv.Atoi(q.Get("display"))

		items := listings[query]
		page := []serp.SearchItem{}
		if begin := start - 1; begin < len(items) {
			end := min(begin+display, len(items))
			page = items[begin:end]
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(serp.SearchPage{Items: page, Total: len(items), Start: start, Display: len(page)})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func writeKeywords(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "keywords.csv")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write keywords: %v", err)
	}
	return path
}

func testConfig(endpoint, dir string) *config.Config {
	return &config.Config{
		ClientID:     "id",
		ClientSecret: "secret",
		Endpoint:     endpoint,
		KeywordsPath: filepath.Join(dir, "keywords.csv"),
		OutputDir:    filepath.Join(dir, "out"),
		PageSize:     5,
		MaxDepth:     50,
		Pause:        0,
		Timeout:      5 * time.Second,
		Concurrency:  1,
		Interval:     time.Minute,
	}
}

func TestNew_MissingCredentials(t *testing.T) {
	cfg := testConfig("http://unused", t.TempDir())
	cfg.ClientSecret = "  "

	if _, err := New(context.Background(), cfg, discard); !errors.Is(err, serp.ErrAuth) {
		t.Fatalf("expected ErrAuth, got %v", err)
	}
}

func TestNew_InvalidConfig(t *testing.T) {
	cfg := testConfig("http://unused", t.TempDir())
	cfg.PageSize = 0

	if _, err := New(context.Background(), cfg, discard); err == nil {
		t.Fatal("expected validation error")
	}
}

func TestRunOnce_MissingKeywords(t *testing.T) {
	dir := t.TempDir()
	a, err := New(context.Background(), testConfig("http://unused", dir), discard)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer a.Close()

	if _, err := a.RunOnce(context.Background()); !errors.Is(err, tasks.ErrConfig) {
		t.Fatalf("expected ErrConfig, got %v", err)
	}
	if _, err := csvbackend.Latest(filepath.Join(dir, "out")); !errors.Is(err, csvbackend.ErrNoArtifact) {
		t.Errorf("expected no artifact, got %v", err)
	}
}

func TestRunOnce_WritesArtifactAndMirrors(t *testing.T) {
	var clinics []serp.SearchItem
	for i := 1; i <= 7; i++ {
		clinics = append(clinics, serp.SearchItem{Title: fmt.Sprintf("Clinic %d", i), Link: fmt.Sprintf("http://c%d.example.com/", i)})
	}
	clinics[5] = serp.SearchItem{
		Title:       "<b>Gangnam</b> Clinic",
		Link:        "http://gangnam.example.com/",
		RoadAddress: "Gangnam-daero 1",
		Address:     "Yeoksam-dong",
		Telephone:   "02-555-1234",
	}
	srv := fakeLocalAPI(t, map[string][]serp.SearchItem{"gangnam clinic": clinics})

	dir := t.TempDir()
	writeKeywords(t, dir, "keyword,branch,target_patterns\n"+
		"gangnam clinic,Gangnam,gangnam.example.com\n"+
		"broken,Broken,x\n"+
		"gangnam clinic,Other,nowhere.example.com\n")

	cfg := testConfig(srv.URL, dir)
	cfg.JSONLPath = filepath.Join(dir, "mirror", "records.jsonl")
	cfg.SQLiteDSN = filepath.Join(dir, "records.db")

	a, err := New(context.Background(), cfg, discard)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer a.Close()

	res, err := a.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, err := csvbackend.ReadFile(res.ArtifactPath)
	if err != nil {
		t.Fatalf("failed to read artifact: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(got))
	}
	if got[0].Rank != 6 || got[0].MatchTitle != "Gangnam Clinic" || got[0].MatchAddress != "Gangnam-daero 1 Yeoksam-dong" {
		t.Errorf("unexpected first row %+v", got[0])
	}
	if got[1].Branch != "Broken" || got[1].Ranked() {
		t.Errorf("expected failed task as an unranked row, got %+v", got[1])
	}
	if got[2].Ranked() {
		t.Errorf("expected third task unranked, got %+v", got[2])
	}

	// Both mirrors saw every record, the failure with its note.
	for _, m := range a.mirrors {
		recs, err := m.Query(context.Background(), storage.Filter{RunID: res.Run.ID})
		if err != nil {
			t.Fatalf("mirror query failed: %v", err)
		}
		if len(recs) != 3 {
			t.Fatalf("expected 3 mirrored records, got %d", len(recs))
		}
		if recs[1].Error == "" {
			t.Errorf("expected error note on mirrored failure, got %+v", recs[1])
		}
	}

	// A second run never overwrites the first artifact.
	res2, err := a.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("unexpected error on second run: %v", err)
	}
	if res2.ArtifactPath == res.ArtifactPath {
		t.Errorf("expected a distinct artifact, both at %s", res.ArtifactPath)
	}
}

func TestOpenMirror(t *testing.T) {
	cfg := &config.Config{JSONLPath: filepath.Join(t.TempDir(), "records.jsonl")}

	b, err := OpenMirror(context.Background(), cfg, MirrorJSONL)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer b.Close()
	if err := b.Save(context.Background(), &storage.RankRecord{RunID: "r1", Keyword: "q"}); err != nil {
		t.Fatalf("failed to save: %v", err)
	}
	got, err := storage.LatestRun(context.Background(), b)
	if err != nil || len(got) != 1 || got[0].Keyword != "q" {
		t.Errorf("expected the saved record back, got %+v (%v)", got, err)
	}

	if _, err := OpenMirror(context.Background(), cfg, MirrorSQLite); err == nil {
		t.Error("expected error for an unconfigured sqlite mirror")
	}
	if _, err := OpenMirror(context.Background(), cfg, "redis"); err == nil {
		t.Error("expected error for an unknown mirror kind")
	}
}
