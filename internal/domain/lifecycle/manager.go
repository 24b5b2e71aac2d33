package lifecycle

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/GriffinCanCode/MixOS/backend/internal/domain/environment"
	"github.com/GriffinCanCode/MixOS/backend/internal/domain/events"
	"github.com/GriffinCanCode/MixOS/backend/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/MixOS/backend/internal/shared/apperr"
)

// DefaultStopGrace is how long Stop waits after SIGTERM before SIGKILL.
const DefaultStopGrace = 5 * time.Second

var errClosed = errors.New("lifecycle manager closed")

// Config holds manager settings.
type Config struct {
	StopGrace time.Duration
}

// Manager drives environments through start, stop and destroy.
type Manager struct {
	store     *environment.Store
	launchers map[environment.Kind]Launcher
	publisher events.Publisher
	stopGrace time.Duration
	logger    *zap.Logger
	metrics   *monitoring.Metrics

	mu          sync.Mutex
	supervisors map[string]*supervisor // Protected by mu
	closed      bool                   // Protected by mu
	wg          sync.WaitGroup
}

// NewManager creates a manager. Kinds missing from launchers are rejected
// at start. publisher, logger and metrics may be nil.
func NewManager(store *environment.Store, launchers map[environment.Kind]Launcher, publisher events.Publisher,
	cfg Config, logger *zap.Logger, metrics *monitoring.Metrics) *Manager {
	if publisher == nil {
		publisher = nopPublisher{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.StopGrace <= 0 {
		cfg.StopGrace = DefaultStopGrace
	}
	return &Manager{
		store:       store,
		launchers:   launchers,
		publisher:   publisher,
		stopGrace:   cfg.StopGrace,
		logger:      logger,
		metrics:     metrics,
		supervisors: make(map[string]*supervisor),
	}
}

// Start spawns the environment's process. Starting a running environment
// returns its record without spawning again.
func (m *Manager) Start(ctx context.Context, id string) (environment.Environment, error) {
	return m.call(ctx, id, opStart)
}

// Stop terminates the environment's process, if any, and leaves it
// stopped.
func (m *Manager) Stop(ctx context.Context, id string) (environment.Environment, error) {
	return m.call(ctx, id, opStop)
}

// Destroy stops the environment and removes it from the store.
func (m *Manager) Destroy(ctx context.Context, id string) error {
	_, err := m.call(ctx, id, opDestroy)
	return err
}

// call routes an operation to id's supervisor. A supervisor that retires
// while the call is queued is replaced once.
func (m *Manager) call(ctx context.Context, id string, kind opKind) (environment.Environment, error) {
	if _, err := m.store.Get(id); err != nil {
		return environment.Environment{}, err
	}

	for attempt := 0; ; attempt++ {
		s, err := m.supervisor(id)
		if err != nil {
			return environment.Environment{}, apperr.New(apperr.KindInternal, string(kind), id, err)
		}

		env, err := s.do(ctx, kind)
		if errors.Is(err, errRetired) && attempt == 0 {
			continue
		}
		if errors.Is(err, errRetired) {
			return environment.Environment{}, apperr.NotFound(string(kind), id)
		}
		return env, err
	}
}

func (m *Manager) supervisor(id string) (*supervisor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, errClosed
	}
	if s, ok := m.supervisors[id]; ok {
		return s, nil
	}

	s := newSupervisor(m, id)
	m.supervisors[id] = s
	m.wg.Add(1)
	go s.run()
	return s, nil
}

func (m *Manager) forget(s *supervisor) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.supervisors[s.id] == s {
		delete(m.supervisors, s.id)
	}
}

// Close stops every environment and retires all supervisors. Records stay
// in the store as stopped.
func (m *Manager) Close(ctx context.Context) error {
	m.mu.Lock()
	m.closed = true
	all := make([]*supervisor, 0, len(m.supervisors))
	for _, s := range m.supervisors {
		all = append(all, s)
	}
	m.mu.Unlock()

	// One failed shutdown must not cancel the others.
	var g errgroup.Group
	for _, s := range all {
		s := s
		g.Go(func() error {
			_, err := s.do(ctx, opShutdown)
			if errors.Is(err, errRetired) {
				return nil
			}
			return err
		})
	}
	err := g.Wait()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		if err == nil {
			err = ctx.Err()
		}
	}

	m.logger.Info("lifecycle manager closed", zap.Int("supervisors", len(all)))
	return err
}

func (m *Manager) publish(env environment.Environment, line string) {
	m.publisher.Publish(events.Lifecycle(env.ID, string(env.Status), line))
}
