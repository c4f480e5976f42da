// Package httpserver is the outer HTTP surface: the index page, the
// observer websocket endpoint, stats, metrics and readiness. The core
// pipeline lives elsewhere; this package only exposes it.
package httpserver

import (
	"bufio"
	"context"
	"embed"
	"fmt"
	"html/template"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/calbers/lastwords/internal/broadcast"
	"github.com/calbers/lastwords/internal/config"
	"github.com/calbers/lastwords/internal/langs"
)

//go:embed index.html
var resources embed.FS

var indexTemplate = template.Must(template.ParseFS(resources, "index.html"))

var upgrader = websocket.Upgrader{
	ReadBufferSize:  512,
	WriteBufferSize: 1024,
}

// IngestStatus is what the server needs to know about the ingestion side:
// whether it is live, and its correlation counters for the stats snapshots.
type IngestStatus interface {
	Ready() bool
	Hits() int64
	Misses() int64
}

// CacheInfo is the post store surface the stats snapshots read.
type CacheInfo interface {
	Size(ctx context.Context) (int64, error)
	Oldest(ctx context.Context) (int64, bool, error)
}

// Server serves the observer-facing HTTP endpoints.
type Server struct {
	cfg        *config.Config
	tracker    *langs.Tracker
	hub        *broadcast.Hub
	cache      CacheInfo
	status     IngestStatus
	stats      *statsRing
	logger     *slog.Logger
	httpServer *http.Server
}

// NewServer wires the HTTP surface. The readiness endpoint is registered
// outside the canonical-host redirect because deploy health checks do not
// use the custom domain.
func NewServer(
	cfg *config.Config,
	tracker *langs.Tracker,
	hub *broadcast.Hub,
	cache CacheInfo,
	status IngestStatus,
	logger *slog.Logger,
) *Server {
	s := &Server{
		cfg:     cfg,
		tracker: tracker,
		hub:     hub,
		cache:   cache,
		status:  status,
		stats:   newStatsRing(statsRingSize),
		logger:  logger,
	}

	mux := http.NewServeMux()
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /stats", s.handleStats)
	mux.HandleFunc("POST /oops", s.handleOops)
	mux.HandleFunc("GET /", s.handleRoot)

	var app http.Handler = withLogging(logger, mux)
	if cfg.Hostname != "" {
		app = redirectHost(cfg.Hostname, app)
	}

	outer := http.NewServeMux()
	outer.HandleFunc("GET /ready", s.handleReady)
	outer.Handle("/", app)

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      outer,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Start begins listening. It blocks until the server is shut down or fails.
func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	if !s.status.Ready() {
		w.WriteHeader(http.StatusServiceUnavailable)
		io.WriteString(w, "catching up")
		return
	}
	w.WriteHeader(http.StatusOK)
	io.WriteString(w, "ready")
}

// handleRoot upgrades websocket requests and serves the index page to
// everyone else. Jetstream-style single path: the page and its stream share
// the URL.
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	if r.Header.Get("Upgrade") == "websocket" {
		s.handleObserver(w, r)
		return
	}
	s.handleIndex(w, r)
}

type indexData struct {
	KnownLangs   []string
	BrowserLangs []string
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html")
	w.Header().Set("Cache-Control", "public, max-age=300, immutable")
	w.Header().Set("Vary", "accept-language")

	data := indexData{
		KnownLangs:   s.tracker.Active(),
		BrowserLangs: browserLangs(r.Header.Get("Accept-Language")),
	}
	if err := indexTemplate.Execute(w, data); err != nil {
		s.logger.Error("failed to render index", "error", err)
	}
}

// browserLangs extracts deduplicated primary subtags from an
// Accept-Language header. Quality values are ignored, which is fine for
// preselecting checkboxes.
func browserLangs(header string) []string {
	seen := map[string]bool{}
	out := []string{}
	for _, lang := range strings.Split(header, ",") {
		l := strings.TrimSpace(lang)
		l, _, _ = strings.Cut(l, ";")
		l, _, _ = strings.Cut(l, "-")
		l = strings.ToLower(l)
		if l != "" && !seen[l] {
			out = append(out, l)
			seen[l] = true
		}
	}
	return out
}

// handleObserver upgrades the connection and registers a subscriber. The
// initial interest set comes from repeated lang query parameters; the
// literal value "null" selects posts without a language tag.
func (s *Server) handleObserver(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("failed to upgrade websocket connection", "error", err)
		return
	}

	var initial []*string
	if err := r.ParseForm(); err != nil {
		s.logger.Warn("failed to parse observer languages, subscribing to all", "error", err)
	} else {
		for _, lang := range r.Form["lang"] {
			if lang == "null" {
				initial = append(initial, nil)
			} else {
				l := lang
				initial = append(initial, &l)
			}
		}
	}

	client := broadcast.NewClient(s.hub, conn, initial, s.logger)
	s.hub.Register(client)
	client.Start()
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "public, max-age=300, immutable")
	writeJSON(w, http.StatusOK, s.stats.list())
}

// handleOops accepts client-side error reports and logs them.
func (s *Server) handleOops(w http.ResponseWriter, r *http.Request) {
	report := map[string]any{}
	if err := json.NewDecoder(r.Body).Decode(&report); err != nil {
		s.logger.Warn("failed to decode error report, continuing", "error", err)
	}
	report["ua"] = r.UserAgent()
	encoded, _ := json.Marshal(report)
	s.logger.Info("client error report", "report", string(encoded))
	w.WriteHeader(http.StatusCreated)
	io.WriteString(w, "got it. and sorry :/")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// redirectHost 301s requests for any host other than the canonical one.
func redirectHost(host string, h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Host != host {
			newURL := *r.URL
			newURL.Host = host
			newURL.Scheme = "https"
			http.Redirect(w, r, newURL.String(), http.StatusMovedPermanently)
			return
		}
		h.ServeHTTP(w, r)
	})
}

func withLogging(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(wrapped, r)
		logger.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", wrapped.status,
			"duration", time.Since(start),
		)
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

// Hijack lets the websocket upgrader take over logged connections.
func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("underlying writer does not support hijacking")
	}
	return hj.Hijack()
}
