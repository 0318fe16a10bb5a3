package lifecycle

import (
	"context"
	"fmt"
	"sync"

	"github.com/zmlAEQ/zkbrownian/pkg/logger"
)

// Service is anything the node runs for its whole lifetime.
type Service interface {
	Name() string
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// Manager starts services in insertion order and stops them in reverse.
type Manager struct {
	mu      sync.Mutex
	svcs    []Service
	started []Service
}

func New() *Manager { return &Manager{} }

func (m *Manager) Add(s Service) {
	m.mu.Lock()
	m.svcs = append(m.svcs, s)
	m.mu.Unlock()
}

// StartAll starts every service. On failure the already started ones are
// stopped before the error is returned.
func (m *Manager) StartAll(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.svcs {
		if err := s.Start(ctx); err != nil {
			logger.ErrorJ("lifecycle", map[string]any{"op": "start", "service": s.Name(), "result": "error", "err": err.Error()})
			m.stopLocked(context.Background())
			return fmt.Errorf("start %s: %w", s.Name(), err)
		}
		logger.InfoJ("lifecycle", map[string]any{"op": "start", "service": s.Name(), "result": "ok"})
		m.started = append(m.started, s)
	}
	return nil
}

// StopAll stops started services in reverse order and returns the first error.
func (m *Manager) StopAll(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stopLocked(ctx)
}

func (m *Manager) stopLocked(ctx context.Context) error {
	var first error
	for i := len(m.started) - 1; i >= 0; i-- {
		s := m.started[i]
		if err := s.Stop(ctx); err != nil {
			logger.ErrorJ("lifecycle", map[string]any{"op": "stop", "service": s.Name(), "result": "error", "err": err.Error()})
			if first == nil {
				first = err
			}
			continue
		}
		logger.InfoJ("lifecycle", map[string]any{"op": "stop", "service": s.Name(), "result": "ok"})
	}
	m.started = nil
	return first
}
