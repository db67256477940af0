package sources

import (
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/spigell/jobhunter/internal/jobs"
)

func buildOne(t *testing.T, cfg Config) Adapter {
	t.Helper()
	adapters, err := Build([]Config{cfg}, nil, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if len(adapters) != 1 {
		t.Fatalf("expected one adapter, got %d", len(adapters))
	}
	return adapters[0]
}

func TestBuild(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		cfgs    []Config
		want    int
		wantErr bool
	}{
		{name: "unknown type", cfgs: []Config{{Type: "monster"}}, wantErr: true},
		{name: "duplicate names", cfgs: []Config{{Type: "github"}, {Type: "github"}}, wantErr: true},
		{name: "greenhouse without board", cfgs: []Config{{Type: "greenhouse"}}, wantErr: true},
		{name: "file without path", cfgs: []Config{{Type: "file"}}, wantErr: true},
		{name: "disabled sources are skipped", cfgs: []Config{{Type: "github"}, {Name: "ms", Type: "microsoft", Disabled: true}}, want: 1},
		{name: "named twice with different names", cfgs: []Config{{Name: "gh-go", Type: "github"}, {Name: "gh-rust", Type: "github"}}, want: 2},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			adapters, err := Build(tt.cfgs, nil, nil)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("build: %v", err)
			}
			if len(adapters) != tt.want {
				t.Fatalf("expected %d adapters, got %d", tt.want, len(adapters))
			}
		})
	}
}

func TestGitHubFetchPagesUntilShortPage(t *testing.T) {
	t.Parallel()

	var requests atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		page, _ := strconv.Atoi(r.URL.Query().Get("page"))
		requests.Add(1)
		if r.URL.Query().Get("description") != "golang" {
			t.Errorf("expected keyword filter, got %q", r.URL.RawQuery)
		}

		n := githubPageSize
		if page == 1 {
			n = 3
		}
		batch := make([]map[string]any, 0, n)
		for i := 0; i < n; i++ {
			batch = append(batch, map[string]any{"id": fmt.Sprintf("p%d-%d", page, i), "title": "Go Developer", "company": "Acme"})
		}
		_ = json.NewEncoder(w).Encode(batch)
	}))
	defer srv.Close()

	a := buildOne(t, Config{Type: "github", URL: srv.URL, Keywords: []string{"golang"}})
	records, err := a.Fetch(context.Background())
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(records) != githubPageSize+3 {
		t.Fatalf("expected %d records, got %d", githubPageSize+3, len(records))
	}
	if n := requests.Load(); n != 2 {
		t.Fatalf("expected two requests, got %d", n)
	}
}

func TestGitHubNormalize(t *testing.T) {
	t.Parallel()

	a := buildOne(t, Config{Type: "github"})
	job, err := a.Normalize(Record{
		"id":          12345.0,
		"type":        "Full Time",
		"url":         "https://jobs.github.com/positions/12345",
		"created_at":  "2026-05-01T10:00:00Z",
		"company":     " Acme ",
		"location":    "Remote",
		"title":       "Backend Engineer",
		"description": "<p>We use <b>Go</b> and Kubernetes.</p>",
	})
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}

	if job.SourceJobID != "12345" || job.Source != "github" || job.SourceType != jobs.SourceAggregator {
		t.Fatalf("unexpected identity %+v", job.Identity())
	}
	if job.Company != "Acme" || job.Remote != jobs.RemoteRemote || job.ContractType != "Full Time" {
		t.Fatalf("unexpected fields %+v", job)
	}
	if job.Description != "We use Go and Kubernetes." {
		t.Fatalf("html not stripped: %q", job.Description)
	}
	if job.PostedAt == nil || !job.PostedAt.Equal(time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected posted date %v", job.PostedAt)
	}
}

func TestNormalizeRejectsIncompleteRecords(t *testing.T) {
	t.Parallel()

	a := buildOne(t, Config{Type: "github"})
	for _, rec := range []Record{
		{"title": "No id", "company": "Acme"},
		{"id": "1", "title": "No company"},
		{"id": "1", "company": "Acme"},
	} {
		if _, err := a.Normalize(rec); !jobs.IsValidationError(err) {
			t.Fatalf("expected validation error for %v, got %v", rec, err)
		}
	}
}

func TestMicrosoftFetchAndNormalize(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("User-Agent") == "" {
			t.Errorf("user agent header is missing")
		}
		w.Header().Set("Content-Encoding", "gzip")
		gz := gzip.NewWriter(w)
		defer gz.Close()
		_ = json.NewEncoder(gz).Encode(map[string]any{
			"operationResult": map[string]any{
				"result": map[string]any{
					"totalJobs": 1,
					"jobs": []map[string]any{{
						"jobId":          "1700001",
						"title":          "Software Engineer II",
						"location":       "Virtual",
						"category":       "Engineering",
						"description":    "<div>Build <i>Azure</i> services.</div>",
						"additionalInfo": "<ul><li>C#</li></ul>",
						"postingDate":    "2026-04-20T00:00:00",
					}},
				},
			},
		})
	}))
	defer srv.Close()

	a := buildOne(t, Config{Type: "microsoft", URL: srv.URL})
	if a.Kind() != jobs.SourceCompanyPortal {
		t.Fatalf("microsoft is a company portal, got %s", a.Kind())
	}

	records, err := a.Fetch(context.Background())
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected one record, got %d", len(records))
	}

	job, err := a.Normalize(records[0])
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if job.Company != "Microsoft" || job.Department != "Engineering" || job.CompanyIndustry != "Technology" {
		t.Fatalf("unexpected fields %+v", job)
	}
	if job.Remote != jobs.RemoteRemote {
		t.Fatalf("virtual location must be remote, got %q", job.Remote)
	}
	if job.ApplyURL != "https://careers.microsoft.com/us/en/jobs/1700001" {
		t.Fatalf("unexpected apply url %q", job.ApplyURL)
	}
	if job.Description != "Build Azure services. C#" {
		t.Fatalf("unexpected description %q", job.Description)
	}
}

func TestGreenhouseNormalize(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/acme/jobs" || r.URL.Query().Get("content") != "true" {
			t.Errorf("unexpected request %s", r.URL)
		}
		_, _ = w.Write([]byte(`{"jobs":[{"id":42,"title":"Platform Engineer","absolute_url":"https://boards.greenhouse.io/acme/jobs/42",
			"updated_at":"2026-05-02T09:30:00-04:00","content":"&lt;p&gt;Terraform &amp;amp; AWS&lt;/p&gt;",
			"location":{"name":"Remote - US"},"departments":[{"name":"Infrastructure"}]}]}`))
	}))
	defer srv.Close()

	a := buildOne(t, Config{Type: "greenhouse", URL: srv.URL, Board: "acme", Company: "Acme Inc."})
	records, err := a.Fetch(context.Background())
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	job, err := a.Normalize(records[0])
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}

	if job.SourceJobID != "42" || job.Company != "Acme Inc." || job.Department != "Infrastructure" {
		t.Fatalf("unexpected fields %+v", job)
	}
	if job.Remote != jobs.RemoteRemote {
		t.Fatalf("expected remote, got %q", job.Remote)
	}
	if job.Description != "Terraform & AWS" {
		t.Fatalf("unexpected description %q", job.Description)
	}
	if job.PostedAt == nil || !job.PostedAt.Equal(time.Date(2026, 5, 2, 13, 30, 0, 0, time.UTC)) {
		t.Fatalf("unexpected posted date %v", job.PostedAt)
	}
}

func TestFileAdapter(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "export.json")
	data := `[
		{"source":"linkedin","source_job_id":"li-1","title":"SWE II","company":"Microsoft","remote":"Hybrid","salary_min":120000,"posted_at":"2026-05-01T00:00:00Z","requirements":["Go"]},
		{"source_job_id":"x-2","title":"Data Engineer","company":"Acme"}
	]`
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	a := buildOne(t, Config{Name: "export", Type: "file", Path: path})
	records, err := a.Fetch(context.Background())
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected two records, got %d", len(records))
	}

	first, err := a.Normalize(records[0])
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if first.Source != "linkedin" || first.Remote != jobs.RemoteHybrid || first.SalaryMin == nil || *first.SalaryMin != 120000 {
		t.Fatalf("unexpected first record %+v", first)
	}
	if first.PostedAt == nil || len(first.Requirements) != 1 {
		t.Fatalf("posted date or requirements lost: %+v", first)
	}

	second, err := a.Normalize(records[1])
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if second.Source != "export" || second.SourceType != jobs.SourceAggregator {
		t.Fatalf("defaults not applied: %+v", second)
	}
}

func TestServerErrorsAreUnavailable(t *testing.T) {
	t.Parallel()

	tests := []struct {
		status      int
		unavailable bool
	}{
		{status: http.StatusServiceUnavailable, unavailable: true},
		{status: http.StatusTooManyRequests, unavailable: true},
		{status: http.StatusNotFound, unavailable: false},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			t.Parallel()
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer srv.Close()

			a := buildOne(t, Config{Type: "greenhouse", URL: srv.URL, Board: "acme"})
			_, err := a.Fetch(context.Background())
			if err == nil {
				t.Fatalf("expected error")
			}
			if IsUnavailable(err) != tt.unavailable {
				t.Fatalf("IsUnavailable(%v) = %v", err, !tt.unavailable)
			}
		})
	}
}

type flakyAdapter struct {
	failures int
	calls    int
	err      error
}

func (f *flakyAdapter) Name() string { return "flaky" }
func (f *flakyAdapter) Kind() jobs.SourceType { return jobs.SourceAggregator }
func (f *flakyAdapter) Normalize(Record) (*jobs.Job, error) { return nil, nil }

func (f *flakyAdapter) Fetch(context.Context) ([]Record, error) {
	f.calls++
	if f.calls <= f.failures {
		return nil, f.err
	}
	return []Record{{"id": "1"}}, nil
}

var fastRetry = RetryConfig{MaxAttempts: 3, InitialWait: time.Millisecond, MaxWait: 5 * time.Millisecond, Multiplier: 2}

func TestFetchRetriesUnavailableSources(t *testing.T) {
	t.Parallel()

	a := &flakyAdapter{failures: 2, err: &SourceUnavailableError{Source: "flaky", StatusCode: 503, Err: errors.New("down")}}
	records, attempts, err := Fetch(context.Background(), a, fastRetry, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if attempts != 3 || len(records) != 1 {
		t.Fatalf("expected success on third attempt, got %d attempts, %d records", attempts, len(records))
	}
}

func TestFetchGivesUp(t *testing.T) {
	t.Parallel()

	a := &flakyAdapter{failures: 10, err: &SourceUnavailableError{Source: "flaky", Err: errors.New("down")}}
	_, attempts, err := Fetch(context.Background(), a, fastRetry, nil)
	if !IsUnavailable(err) {
		t.Fatalf("expected unavailable error, got %v", err)
	}
	if attempts != 3 || a.calls != 3 {
		t.Fatalf("expected 3 attempts, got %d (%d calls)", attempts, a.calls)
	}
}

func TestFetchDoesNotRetryPermanentErrors(t *testing.T) {
	t.Parallel()

	a := &flakyAdapter{failures: 10, err: errors.New("bad status: 404 Not Found")}
	if _, _, err := Fetch(context.Background(), a, fastRetry, nil); err == nil {
		t.Fatalf("expected error")
	}
	if a.calls != 1 {
		t.Fatalf("permanent errors must not be retried, got %d calls", a.calls)
	}
}

func TestFetchStopsOnCancel(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	a := &flakyAdapter{failures: 10, err: &SourceUnavailableError{Source: "flaky", Err: errors.New("down")}}
	_, _, err := Fetch(ctx, a, fastRetry, nil)
	if !errors.Is(err, context.Canceled) && !IsUnavailable(err) {
		t.Fatalf("unexpected error %v", err)
	}
	if a.calls != 1 {
		t.Fatalf("cancelled fetch must not retry, got %d calls", a.calls)
	}
}

func TestBackoff(t *testing.T) {
	t.Parallel()

	rc := RetryConfig{InitialWait: 100 * time.Millisecond, MaxWait: 300 * time.Millisecond, Multiplier: 2}
	for retry, want := range map[int]time.Duration{1: 100 * time.Millisecond, 2: 200 * time.Millisecond, 3: 300 * time.Millisecond} {
		if got := rc.Backoff(retry); got != want {
			t.Fatalf("backoff(%d) = %v, want %v", retry, got, want)
		}
	}
}
