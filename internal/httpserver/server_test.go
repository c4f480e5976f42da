package httpserver

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/calbers/lastwords/internal/broadcast"
	"github.com/calbers/lastwords/internal/config"
	"github.com/calbers/lastwords/internal/langs"
	"github.com/calbers/lastwords/internal/store"
)

type fakeStatus struct {
	ready        bool
	hits, misses int64
}

func (f *fakeStatus) Ready() bool   { return f.ready }
func (f *fakeStatus) Hits() int64   { return f.hits }
func (f *fakeStatus) Misses() int64 { return f.misses }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestServer(t *testing.T, cfg *config.Config, status *fakeStatus) (*Server, *langs.Tracker) {
	t.Helper()
	if cfg == nil {
		cfg = &config.Config{Port: 0}
	}
	if status == nil {
		status = &fakeStatus{ready: true}
	}
	logger := testLogger()
	tracker := langs.NewTracker(1000)
	hub := broadcast.NewHub(logger)
	cache := store.NewMemory(100, time.Hour.Milliseconds())
	return NewServer(cfg, tracker, hub, cache, status, logger), tracker
}

func TestReadyEndpoint(t *testing.T) {
	status := &fakeStatus{}
	s, _ := newTestServer(t, nil, status)

	req := httptest.NewRequest(http.MethodGet, "/ready", nil)
	rec := httptest.NewRecorder()
	s.httpServer.Handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d during replay, want 503", rec.Code)
	}

	status.ready = true
	rec = httptest.NewRecorder()
	s.httpServer.Handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d when ready, want 200", rec.Code)
	}
}

func TestReadyBypassesHostRedirect(t *testing.T) {
	cfg := &config.Config{Hostname: "example.org"}
	s, _ := newTestServer(t, cfg, nil)

	req := httptest.NewRequest(http.MethodGet, "/ready", nil)
	req.Host = "10.0.0.5:8080"
	rec := httptest.NewRecorder()
	s.httpServer.Handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("health check got %d through the redirect, want 200", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Host = "10.0.0.5:8080"
	rec = httptest.NewRecorder()
	s.httpServer.Handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusMovedPermanently {
		t.Errorf("status = %d for foreign host, want 301", rec.Code)
	}
	if loc := rec.Header().Get("Location"); !strings.Contains(loc, "example.org") {
		t.Errorf("Location = %q, want canonical host", loc)
	}
}

func TestIndexRendersKnownLangs(t *testing.T) {
	s, tracker := newTestServer(t, nil, nil)
	tracker.AddSighting("en")
	tracker.AddSighting("pt")
	tracker.AddSighting("pt")

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Accept-Language", "pt-BR,pt;q=0.9")
	rec := httptest.NewRecorder()
	s.httpServer.Handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, `value="pt"`) || !strings.Contains(body, `value="en"`) {
		t.Error("index is missing active language checkboxes")
	}
	if !strings.Contains(body, `value="null"`) {
		t.Error("index is missing the untagged checkbox")
	}
}

func TestIndexUnknownPath(t *testing.T) {
	s, _ := newTestServer(t, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/nonsense", nil)
	rec := httptest.NewRecorder()
	s.httpServer.Handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestStatsEndpoint(t *testing.T) {
	s, _ := newTestServer(t, nil, &fakeStatus{ready: true, hits: 3, misses: 1})
	s.stats.add(s.collect(httptest.NewRequest(http.MethodGet, "/", nil).Context()))

	req := httptest.NewRequest(http.MethodGet, "/stats", nil)
	rec := httptest.NewRecorder()
	s.httpServer.Handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var snaps []snapshot
	if err := json.Unmarshal(rec.Body.Bytes(), &snaps); err != nil {
		t.Fatalf("unmarshal stats: %v", err)
	}
	if len(snaps) != 1 {
		t.Fatalf("got %d snapshots, want 1", len(snaps))
	}
	if snaps[0].HitRate != 0.75 {
		t.Errorf("HitRate = %v, want 0.75", snaps[0].HitRate)
	}
}

func TestOopsEndpoint(t *testing.T) {
	s, _ := newTestServer(t, nil, nil)

	req := httptest.NewRequest(http.MethodPost, "/oops", strings.NewReader(`{"message":"boom"}`))
	rec := httptest.NewRecorder()
	s.httpServer.Handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusCreated {
		t.Errorf("status = %d, want 201", rec.Code)
	}

	// malformed reports are accepted too
	req = httptest.NewRequest(http.MethodPost, "/oops", strings.NewReader(`not json`))
	rec = httptest.NewRecorder()
	s.httpServer.Handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusCreated {
		t.Errorf("status = %d for malformed report, want 201", rec.Code)
	}
}

func TestBrowserLangs(t *testing.T) {
	tests := []struct {
		header string
		want   []string
	}{
		{"", []string{}},
		{"en-US,en;q=0.9", []string{"en"}},
		{"pt-BR,pt;q=0.9,en-US;q=0.8", []string{"pt", "en"}},
		{"EN", []string{"en"}},
	}

	for _, tt := range tests {
		if got := browserLangs(tt.header); !reflect.DeepEqual(got, tt.want) {
			t.Errorf("browserLangs(%q) = %v, want %v", tt.header, got, tt.want)
		}
	}
}

func TestStatsRingBound(t *testing.T) {
	r := newStatsRing(3)
	for i := int64(1); i <= 5; i++ {
		r.add(snapshot{T: i})
	}

	got := r.list()
	if len(got) != 3 {
		t.Fatalf("len = %d, want 3", len(got))
	}
	// newest first, oldest entries dropped
	if got[0].T != 5 || got[2].T != 3 {
		t.Errorf("list = %+v", got)
	}
}
