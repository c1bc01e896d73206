package core

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/agenthands/cbning/internal/core/model"
	apperrors "github.com/agenthands/cbning/internal/errors"
	"github.com/agenthands/cbning/internal/logger"
)

// Manager is the registry of live sessions. Sessions never share state.
type Manager struct {
	mu          sync.RWMutex
	sessions    map[string]*Session
	deps        Deps
	maxSessions int
	newID       func() string
	logger      *zap.Logger
}

// NewManager builds a registry. maxSessions <= 0 means unlimited.
func NewManager(deps Deps, maxSessions int) *Manager {
	return &Manager{
		sessions:    make(map[string]*Session),
		deps:        deps.withDefaults(),
		maxSessions: maxSessions,
		newID:       func() string { return uuid.New().String() },
		logger:      logger.Get(),
	}
}

// Create starts a session from the seed network and records the welcome turn.
func (m *Manager) Create(ctx context.Context) (*Session, error) {
	if m.full() {
		return nil, apperrors.ErrSessionLimit
	}

	s := newSession(ctx, m.newID(), model.Seed(), WelcomeMessage, m.deps)
	if err := m.add(s); err != nil {
		return nil, err
	}

	if m.deps.Store != nil {
		sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.deps.StoreTimeout)
		defer cancel()
		if err := m.deps.Store.Save(sctx, s.ID, s.State()); err != nil {
			m.logger.Error("Failed to persist initial snapshot", zap.String("session_id", s.ID), zap.Error(err))
		}
	}

	m.logger.Info("Session created", zap.String("session_id", s.ID))
	return s, nil
}

// Resume loads a stored snapshot into a live session. A snapshot that no longer
// validates is refused. Resuming a live session returns it unchanged.
func (m *Manager) Resume(ctx context.Context, id string) (*Session, error) {
	if s, err := m.Get(id); err == nil {
		return s, nil
	}
	if m.deps.Store == nil {
		return nil, apperrors.NewSessionNotFound(id)
	}
	if m.full() {
		return nil, apperrors.ErrSessionLimit
	}

	lctx, cancel := context.WithTimeout(ctx, m.deps.StoreTimeout)
	defer cancel()
	g, err := m.deps.Store.Load(lctx, id)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, apperrors.NewContextTimeout("resume", m.deps.StoreTimeout, err)
		}
		return nil, err
	}
	if res := m.deps.Merger.Validator.Validate(g); !res.Valid() {
		m.logger.Warn("Refusing invalid snapshot", zap.String("session_id", id), zap.Strings("violations", res.Messages()))
		return nil, apperrors.NewValidationFailed(res.Messages())
	}

	s := newSession(ctx, id, g, ResumeMessage, m.deps)
	if err := m.add(s); err != nil {
		// Lost a race with a concurrent resume of the same id.
		if existing, getErr := m.Get(id); getErr == nil {
			return existing, nil
		}
		return nil, err
	}
	m.logger.Info("Session resumed", zap.String("session_id", id))
	return s, nil
}

func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, apperrors.NewSessionNotFound(id)
	}
	return s, nil
}

// Delete drops the live session and its stored snapshot. It waits for an in-flight
// turn so that turn's snapshot cannot outlive the delete.
func (m *Manager) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	n := len(m.sessions)
	m.mu.Unlock()

	if !ok {
		return apperrors.NewSessionNotFound(id)
	}
	m.deps.Metrics.SetActiveSessions(n)
	s.close()

	if m.deps.Store != nil {
		if err := m.deps.Store.Delete(ctx, id); err != nil {
			m.logger.Error("Failed to delete snapshot", zap.String("session_id", id), zap.Error(err))
			return err
		}
	}
	return nil
}

// List returns summaries of live sessions, oldest first.
func (m *Manager) List() []Summary {
	m.mu.RLock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.mu.RUnlock()

	out := make([]Summary, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, s.Summary())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

func (m *Manager) full() bool {
	return m.maxSessions > 0 && m.Len() >= m.maxSessions
}

func (m *Manager) add(s *Session) error {
	m.mu.Lock()
	if m.maxSessions > 0 && len(m.sessions) >= m.maxSessions {
		m.mu.Unlock()
		return apperrors.ErrSessionLimit
	}
	if _, exists := m.sessions[s.ID]; exists {
		m.mu.Unlock()
		return apperrors.NewBaseError(apperrors.ErrorTypeSession, "session already exists: "+s.ID, nil)
	}
	m.sessions[s.ID] = s
	n := len(m.sessions)
	m.mu.Unlock()

	m.deps.Metrics.SetActiveSessions(n)
	return nil
}
