// Package monitoring serves /metrics and /healthz.
package monitoring

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/zmlAEQ/zkbrownian/pkg/lifecycle"
	"github.com/zmlAEQ/zkbrownian/pkg/logger"
	"github.com/zmlAEQ/zkbrownian/pkg/metrics"
)

// Check reports whether one dependency is healthy.
type Check func(ctx context.Context) error

type Service struct {
	addr string
	mu   sync.RWMutex
	chks map[string]Check
	srv  *http.Server
	ln   net.Listener
}

func New(addr string) *Service { return &Service{addr: addr, chks: map[string]Check{}} }

// AddCheck registers a named health check run on every /healthz request.
func (s *Service) AddCheck(name string, c Check) {
	s.mu.Lock()
	s.chks[name] = c
	s.mu.Unlock()
}

func (s *Service) Name() string { return "monitoring" }

func (s *Service) Addr() string {
	if s.ln == nil {
		return s.addr
	}
	return s.ln.Addr().String()
}

func (s *Service) Handler() http.Handler {
	r := chi.NewRouter()
	r.Handle("/metrics", metrics.Handler())
	r.Get("/healthz", s.handleHealth)
	return r
}

func (s *Service) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	names := make([]string, 0, len(s.chks))
	for n := range s.chks {
		names = append(names, n)
	}
	s.mu.RUnlock()
	sort.Strings(names)

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	status := map[string]string{}
	code := http.StatusOK
	for _, n := range names {
		s.mu.RLock()
		c := s.chks[n]
		s.mu.RUnlock()
		if err := c(ctx); err != nil {
			status[n] = err.Error()
			code = http.StatusServiceUnavailable
			continue
		}
		status[n] = "ok"
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]any{"ok": code == http.StatusOK, "checks": status})
}

func (s *Service) Start(_ context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	s.ln = ln
	s.srv = &http.Server{Handler: s.Handler(), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.ErrorJ("monitoring", map[string]any{"op": "serve", "result": "error", "err": err.Error()})
		}
	}()
	logger.InfoJ("monitoring", map[string]any{"op": "start", "result": "ok", "addr": ln.Addr().String()})
	return nil
}

func (s *Service) Stop(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}

var _ lifecycle.Service = (*Service)(nil)
