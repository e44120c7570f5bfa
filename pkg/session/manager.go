package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aretw0/strata/internal/logging"
	"github.com/aretw0/strata/pkg/domain"
	"github.com/aretw0/strata/pkg/ports"
)

// DefaultLockTTL bounds how long a crashed holder can block a run.
const DefaultLockTTL = 30 * time.Second

// runLock serializes the runs sharing an ID. It is dropped from
// Manager.locks once nobody waits on it.
type runLock struct {
	sync.Mutex
	waiters int
}

// Manager serializes access to persisted runs. Runs sharing an ID are
// executed one at a time, across processes when a DistributedLocker is set.
type Manager struct {
	store ports.RunStore

	mu    sync.Mutex
	locks map[string]*runLock

	locker ports.DistributedLocker
	ttl    time.Duration
	logger *slog.Logger
}

// Option configures the Manager.
type Option func(*Manager)

// WithLocker enables distributed locking.
func WithLocker(locker ports.DistributedLocker) Option {
	return func(m *Manager) {
		m.locker = locker
	}
}

// WithLockTTL sets the expiry of distributed locks.
func WithLockTTL(ttl time.Duration) Option {
	return func(m *Manager) {
		m.ttl = ttl
	}
}

// WithLogger configures a logger for the Manager.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

// NewManager creates a Manager over the given run store.
func NewManager(store ports.RunStore, opts ...Option) *Manager {
	m := &Manager{
		store:  store,
		locks:  make(map[string]*runLock),
		ttl:    DefaultLockTTL,
		logger: logging.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// hold blocks until the local lock of runID is free and returns the
// function giving it back.
func (m *Manager) hold(runID string) func() {
	m.mu.Lock()
	l, ok := m.locks[runID]
	if !ok {
		l = &runLock{}
		m.locks[runID] = l
	}
	l.waiters++
	m.mu.Unlock()

	l.Lock()
	return func() {
		l.Unlock()
		m.mu.Lock()
		if l.waiters--; l.waiters == 0 {
			delete(m.locks, runID)
		}
		m.mu.Unlock()
	}
}

// Load retrieves a persisted run.
func (m *Manager) Load(ctx context.Context, runID string) (*domain.RunState, error) {
	var state *domain.RunState
	err := m.WithLock(ctx, runID, func(ctx context.Context) error {
		var err error
		state, err = m.store.Load(ctx, runID)
		return err
	})
	return state, err
}

// LoadOrStart loads a run, or initializes and persists an idle one.
func (m *Manager) LoadOrStart(ctx context.Context, runID string) (*domain.RunState, error) {
	var state *domain.RunState
	err := m.WithLock(ctx, runID, func(ctx context.Context) error {
		var err error
		state, err = m.store.Load(ctx, runID)
		if err == nil {
			return nil
		}
		if !errors.Is(err, domain.ErrRunNotFound) {
			return fmt.Errorf("failed to check run existence: %w", err)
		}

		state = domain.NewRunState(runID)
		if err := m.store.Save(ctx, runID, state); err != nil {
			return fmt.Errorf("failed to initialize run: %w", err)
		}
		return nil
	})
	return state, err
}

// Save persists the run state.
func (m *Manager) Save(ctx context.Context, runID string, state *domain.RunState) error {
	return m.WithLock(ctx, runID, func(ctx context.Context) error {
		return m.store.Save(ctx, runID, state)
	})
}

// Delete removes the run from the store.
func (m *Manager) Delete(ctx context.Context, runID string) error {
	return m.WithLock(ctx, runID, func(ctx context.Context) error {
		return m.store.Delete(ctx, runID)
	})
}

// List delegates to the store.
func (m *Manager) List(ctx context.Context) ([]string, error) {
	return m.store.List(ctx)
}

// Store returns the underlying run store. Inside WithLock use it directly;
// the lock is not reentrant.
func (m *Manager) Store() ports.RunStore {
	return m.store
}

// WithLock executes fn while holding the lock for the run.
func (m *Manager) WithLock(ctx context.Context, runID string, fn func(context.Context) error) error {
	defer m.hold(runID)()

	if m.locker != nil {
		unlock, err := m.locker.Lock(ctx, runID, m.ttl)
		if err != nil {
			return fmt.Errorf("failed to acquire distributed lock: %w", err)
		}
		defer func() {
			if err := unlock(context.WithoutCancel(ctx)); err != nil {
				m.logger.Warn("distributed lock left to expire", "run_id", runID, "ttl", m.ttl, "err", err)
			}
		}()
	}

	return fn(ctx)
}
