package editor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/starford/creolewiki/internal/apperr"
	"github.com/starford/creolewiki/internal/autosave"
)

const (
	// DefaultIdleTTL is how long a session without an event stream survives
	// after its last input.
	DefaultIdleTTL = 10 * time.Minute
	// DefaultPendingTTL is how long a session that never saw a stream or any
	// input survives.
	DefaultPendingTTL = 30 * time.Second
)

// Registry tracks open sessions by ID.
type Registry struct {
	store      autosave.Store
	pub        Publisher
	logger     *slog.Logger
	idleTTL    time.Duration
	pendingTTL time.Duration
	autosave   []autosave.Option

	mu       sync.Mutex
	sessions map[string]*Session
	closed   bool
}

// Option configures a Registry.
type Option func(*Registry)

// WithPublisher sets where previews and save events go.
func WithPublisher(p Publisher) Option {
	return func(r *Registry) {
		if p != nil {
			r.pub = p
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Registry) {
		r.logger = l
	}
}

// WithIdleTTL sets how long an unattached session may sit idle.
func WithIdleTTL(d time.Duration) Option {
	return func(r *Registry) {
		if d > 0 {
			r.idleTTL = d
		}
	}
}

// WithPendingTTL sets how long a session that never saw a stream or any input
// may sit idle. Pages fetched by prefetchers and scripts open such sessions.
func WithPendingTTL(d time.Duration) Option {
	return func(r *Registry) {
		if d > 0 {
			r.pendingTTL = d
		}
	}
}

// WithAutosave passes options to every session's synchronizer.
func WithAutosave(opts ...autosave.Option) Option {
	return func(r *Registry) {
		r.autosave = append(r.autosave, opts...)
	}
}

// NewRegistry returns an empty registry writing to store.
func NewRegistry(store autosave.Store, opts ...Option) *Registry {
	r := &Registry{
		store:      store,
		pub:        nopPublisher{},
		logger:     slog.Default(),
		idleTTL:    DefaultIdleTTL,
		pendingTTL: DefaultPendingTTL,
		sessions:   make(map[string]*Session),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Open starts a session editing key with the given initial buffer.
func (r *Registry) Open(key, text string) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, fmt.Errorf("editor: open %q: %w", key, apperr.ErrSessionClosed)
	}
	id := uuid.NewString()
	s := newSession(id, key, text, r.store, r.pub, r.logger, r.autosave)
	r.sessions[id] = s
	r.logger.Debug("editor: session opened", slog.String("session", id), slog.String("key", key))
	return s, nil
}

// Get returns the open session with id.
func (r *Registry) Get(id string) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil, fmt.Errorf("editor: session %s: %w", id, apperr.ErrNotFound)
	}
	return s, nil
}

// Len returns the number of open sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Attach marks an event stream open on the session. The returned function
// marks it closed; when the last stream detaches the session is closed.
func (r *Registry) Attach(id string) (func(ctx context.Context), error) {
	s, err := r.Get(id)
	if err != nil {
		return nil, err
	}
	s.attach()
	var once sync.Once
	return func(ctx context.Context) {
		once.Do(func() {
			if s.detach() {
				_ = r.Close(ctx, id)
			}
		})
	}, nil
}

// Close removes and closes the session with id.
func (r *Registry) Close(ctx context.Context, id string) error {
	r.mu.Lock()
	s, ok := r.sessions[id]
	delete(r.sessions, id)
	r.mu.Unlock()
	if !ok {
		return nil
	}
	return s.Close(ctx)
}

// CloseAll closes every session and refuses new ones.
func (r *Registry) CloseAll(ctx context.Context) error {
	r.mu.Lock()
	r.closed = true
	open := make([]*Session, 0, len(r.sessions))
	for id, s := range r.sessions {
		open = append(open, s)
		delete(r.sessions, id)
	}
	r.mu.Unlock()

	var first error
	for _, s := range open {
		if err := s.Close(ctx); err != nil && first == nil {
			first = err
		}
	}
	if len(open) > 0 {
		r.logger.Info("editor: closed sessions", slog.Int("count", len(open)))
	}
	return first
}

// Reap closes sessions with no event stream idle longer than their TTL and
// returns how many it closed. Sessions that never saw a stream or any input
// use the pending TTL.
func (r *Registry) Reap(ctx context.Context, now time.Time) int {
	r.mu.Lock()
	var stale []string
	for id, s := range r.sessions {
		idle, used := s.idleSince(now)
		ttl := r.pendingTTL
		if used {
			ttl = r.idleTTL
		}
		if idle > ttl {
			stale = append(stale, id)
		}
	}
	r.mu.Unlock()

	for _, id := range stale {
		_ = r.Close(ctx, id)
	}
	if len(stale) > 0 {
		r.logger.Info("editor: reaped idle sessions", slog.Int("count", len(stale)))
	}
	return len(stale)
}

// Run reaps idle sessions periodically until ctx is cancelled, then closes
// every remaining session.
func (r *Registry) Run(ctx context.Context) error {
	interval := min(r.idleTTL, r.pendingTTL) / 4
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return r.CloseAll(context.WithoutCancel(ctx))
		case now := <-ticker.C:
			r.Reap(ctx, now)
		}
	}
}
