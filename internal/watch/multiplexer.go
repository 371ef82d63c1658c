package watch

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/giantswarm/k7s/internal/logging"
)

const defaultSweepInterval = time.Minute

// ErrSinkRegistered is returned when a sink already has a session.
var ErrSinkRegistered = errors.New("sink already registered")

// Key identifies what a session watches.
type Key struct {
	Context   string
	Group     string
	Resource  string
	Namespace string
}

// Sink is the client side of a session, usually an SSE connection.
type Sink interface {
	// Closed reports whether the client went away.
	Closed() bool
}

// Handle is the API server side of a session.
type Handle interface {
	// Stop closes the underlying watch.
	Stop()
}

// Session pairs a client with the watch feeding it.
type Session struct {
	ID      string
	Key     Key
	Created time.Time

	sink   Sink
	handle Handle
}

// MetricsRecorder tracks the number of live sessions.
type MetricsRecorder interface {
	IncrementWatchSessions(ctx context.Context)
	DecrementWatchSessions(ctx context.Context)
}

type noopMetricsRecorder struct{}

func (noopMetricsRecorder) IncrementWatchSessions(context.Context) {}
func (noopMetricsRecorder) DecrementWatchSessions(context.Context) {}

// Multiplexer keeps track of every live watch session and reaps the ones
// whose clients disappeared without unregistering.
type Multiplexer struct {
	logger        *slog.Logger
	metrics       MetricsRecorder
	sweepInterval time.Duration

	mu       sync.Mutex
	sessions map[string]*Session
	sinks    map[Sink]string

	now func() time.Time
}

// Option configures a Multiplexer.
type Option func(*Multiplexer)

// WithSweepInterval sets how often Run sweeps closed sessions.
func WithSweepInterval(d time.Duration) Option {
	return func(m *Multiplexer) {
		m.sweepInterval = d
	}
}

// WithLogger sets the logger for the multiplexer.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Multiplexer) {
		m.logger = logger
	}
}

// WithMetrics sets the metrics recorder for the multiplexer.
func WithMetrics(metrics MetricsRecorder) Option {
	return func(m *Multiplexer) {
		m.metrics = metrics
	}
}

// New creates an empty multiplexer.
func New(opts ...Option) *Multiplexer {
	m := &Multiplexer{
		logger:        slog.Default(),
		metrics:       noopMetricsRecorder{},
		sweepInterval: defaultSweepInterval,
		sessions:      make(map[string]*Session),
		sinks:         make(map[Sink]string),
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.sweepInterval <= 0 {
		m.sweepInterval = defaultSweepInterval
	}
	return m
}

// Register adds a session for sink. Sinks must be comparable, which pointer
// types are.
func (m *Multiplexer) Register(key Key, sink Sink, handle Handle) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.sinks[sink]; ok {
		return nil, ErrSinkRegistered
	}

	session := &Session{
		ID:      uuid.NewString(),
		Key:     key,
		Created: m.now(),
		sink:    sink,
		handle:  handle,
	}
	m.sessions[session.ID] = session
	m.sinks[sink] = session.ID
	m.metrics.IncrementWatchSessions(context.Background())

	m.logger.Debug("Registered watch session",
		logging.Session(session.ID),
		logging.Context(key.Context),
		logging.ResourceType(key.Group+"/"+key.Resource),
		logging.Namespace(key.Namespace))
	return session, nil
}

// Unregister stops the session's watch and forgets it. Unknown sessions are
// ignored.
func (m *Multiplexer) Unregister(session *Session) {
	if session == nil {
		return
	}
	m.mu.Lock()
	removed := m.remove(session.ID)
	m.mu.Unlock()

	if removed != nil {
		removed.handle.Stop()
		m.logger.Debug("Unregistered watch session", logging.Session(removed.ID))
	}
}

// remove deletes a session. The caller holds m.mu.
func (m *Multiplexer) remove(id string) *Session {
	session, ok := m.sessions[id]
	if !ok {
		return nil
	}
	delete(m.sessions, id)
	delete(m.sinks, session.sink)
	m.metrics.DecrementWatchSessions(context.Background())
	return session
}

// Sweep stops and removes every session whose sink is closed. It returns the
// number of sessions removed.
func (m *Multiplexer) Sweep() int {
	m.mu.Lock()
	var dead []*Session
	for id, session := range m.sessions {
		if session.sink.Closed() {
			dead = append(dead, m.remove(id))
		}
	}
	m.mu.Unlock()

	for _, session := range dead {
		session.handle.Stop()
	}
	if len(dead) > 0 {
		m.logger.Info("Swept closed watch sessions", slog.Int("count", len(dead)))
	}
	return len(dead)
}

// Run sweeps on every interval until ctx is done, then stops all remaining
// sessions.
func (m *Multiplexer) Run(ctx context.Context) {
	ticker := time.NewTicker(m.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.closeAll()
			return
		case <-ticker.C:
			m.Sweep()
		}
	}
}

func (m *Multiplexer) closeAll() {
	m.mu.Lock()
	all := make([]*Session, 0, len(m.sessions))
	for id := range m.sessions {
		all = append(all, m.remove(id))
	}
	m.mu.Unlock()

	for _, session := range all {
		session.handle.Stop()
	}
	if len(all) > 0 {
		m.logger.Info("Closed watch sessions on shutdown", slog.Int("count", len(all)))
	}
}

// Len returns the number of live sessions.
func (m *Multiplexer) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Sessions returns a snapshot of the live sessions.
func (m *Multiplexer) Sessions() []Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Session, 0, len(m.sessions))
	for _, session := range m.sessions {
		out = append(out, *session)
	}
	return out
}
