// Package echo is a local test endpoint for the harness: it answers
// POST /query deterministically from the request body, so two runs
// against it reconcile cleanly unless flaky mode is on.
package echo

import (
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
)

type Config struct {
	Port int
	// Flaky makes every second response to the same query body
	// differ from the first, to exercise divergence detection.
	Flaky bool
	// Jitter adds up to this much random delay per request.
	Jitter time.Duration
}

type Server struct {
	cfg Config

	mu   sync.Mutex
	seen map[string]uint64

	requests *prometheus.CounterVec
	registry *prometheus.Registry
}

func NewServer(cfg Config) *Server {
	s := &Server{
		cfg:  cfg,
		seen: make(map[string]uint64),
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "echo_requests_total",
				Help: "Total number of echo requests by status.",
			},
			[]string{"status"},
		),
		registry: prometheus.NewRegistry(),
	}
	s.registry.MustRegister(s.requests)
	return s
}

// Handler exposes the mux for tests via httptest.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/query", s.handleQuery)
	mux.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	return mux
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.requests.WithLabelValues(strconv.Itoa(http.StatusMethodNotAllowed)).Inc()
		http.Error(w, "POST only", http.StatusMethodNotAllowed)
		return
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		s.requests.WithLabelValues(strconv.Itoa(http.StatusBadRequest)).Inc()
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if s.cfg.Jitter > 0 {
		time.Sleep(time.Duration(rand.Int63n(int64(s.cfg.Jitter))))
	}

	resp := append([]byte("echo: "), body...)
	if s.cfg.Flaky {
		s.mu.Lock()
		s.seen[string(body)]++
		n := s.seen[string(body)]
		s.mu.Unlock()
		if n%2 == 0 {
			resp = append(resp, " (alt)"...)
		}
	}

	s.requests.WithLabelValues("200").Inc()
	w.WriteHeader(http.StatusOK)
	w.Write(resp)
}

// ListenAndServe runs the server until it fails.
func (s *Server) ListenAndServe() error {
	addr := fmt.Sprintf(":%d", s.cfg.Port)
	log.Infof("echo server running on http://localhost%s/query (flaky=%v)", addr, s.cfg.Flaky)
	srv := &http.Server{Addr: addr, Handler: s.Handler()}
	return srv.ListenAndServe()
}
