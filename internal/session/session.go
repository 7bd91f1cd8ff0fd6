// Package session tracks live interviews by ID and evicts the ones nobody
// has touched for the configured TTL.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jonathan/interview-agent/internal/engine"
)

// ErrNotFound is returned for unknown or expired session IDs.
var ErrNotFound = errors.New("session not found")

// DefaultTTL is how long an idle session survives.
const DefaultTTL = time.Hour

const sweepInterval = 5 * time.Minute

type entry struct {
	interview  *engine.Interview
	lastAccess time.Time
}

// Manager owns the live session table.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*entry
	ttl      time.Duration
	logger   *zap.Logger
}

func NewManager(ttl time.Duration, logger *zap.Logger) *Manager {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Manager{
		sessions: make(map[string]*entry),
		ttl:      ttl,
		logger:   logger,
	}
}

// Create registers an interview and returns its session ID.
func (m *Manager) Create(iv *engine.Interview) string {
	id := uuid.NewString()
	m.mu.Lock()
	m.sessions[id] = &entry{interview: iv, lastAccess: time.Now()}
	m.mu.Unlock()
	m.logger.Info("session created", zap.String("session_id", id))
	return id
}

// Get returns the interview for id and refreshes its access time.
func (m *Manager) Get(id string) (*engine.Interview, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	e.lastAccess = time.Now()
	return e.interview, nil
}

// End removes a session.
func (m *Manager) End(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[id]; !ok {
		return ErrNotFound
	}
	delete(m.sessions, id)
	return nil
}

// Len returns the number of live sessions.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Run sweeps expired sessions until the context is canceled.
func (m *Manager) Run(ctx context.Context) {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.sweep()
		}
	}
}

func (m *Manager) sweep() {
	cutoff := time.Now().Add(-m.ttl)
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, e := range m.sessions {
		if e.lastAccess.Before(cutoff) {
			delete(m.sessions, id)
			m.logger.Info("session expired", zap.String("session_id", id))
		}
	}
}
