// Package autosave decides when an in-progress edit is persisted.
//
// A Synchronizer polls on a fixed tick. An edit marks the document dirty;
// once no edit has arrived for the quiet window the next tick writes the
// buffer (or deletes the key when the buffer is empty). At most one write is
// in flight at a time. Failed writes leave the document dirty and are retried
// on a later tick.
package autosave

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Defaults for the tick interval and quiescence window.
const (
	DefaultInterval = 500 * time.Millisecond
	DefaultQuiet    = time.Second
)

// State is the synchronizer's position in Idle → Dirty → Flushing → Idle.
type State int

const (
	Idle State = iota
	Dirty
	Flushing
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Dirty:
		return "dirty"
	case Flushing:
		return "flushing"
	default:
		return "unknown"
	}
}

// Store is the write side of a storage backend.
type Store interface {
	Put(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}

// Source yields the current editor buffer.
type Source interface {
	Snapshot() string
}

// SourceFunc adapts a function to Source.
type SourceFunc func() string

// Snapshot calls f.
func (f SourceFunc) Snapshot() string { return f() }

// Watermark tracks the last edit and the last successful flush.
type Watermark struct {
	LastEdit  time.Time
	LastFlush time.Time
	Dirty     bool
}

// Result describes one flush attempt.
type Result struct {
	Key     string
	Deleted bool
	Bytes   int
	At      time.Time
	Err     error
}

// Synchronizer owns the watermark for one editable document.
type Synchronizer struct {
	key      string
	store    Store
	src      Source
	logger   *slog.Logger
	interval time.Duration
	quiet    time.Duration
	now      func() time.Time
	onFlush  func(Result)

	mu       sync.Mutex
	state    State
	wm       Watermark
	inFlight bool
}

// Option configures a Synchronizer.
type Option func(*Synchronizer)

// WithInterval sets the tick interval.
func WithInterval(d time.Duration) Option {
	return func(s *Synchronizer) {
		if d > 0 {
			s.interval = d
		}
	}
}

// WithQuiet sets the quiescence window.
func WithQuiet(d time.Duration) Option {
	return func(s *Synchronizer) {
		if d > 0 {
			s.quiet = d
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Synchronizer) {
		s.now = now
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Synchronizer) {
		s.logger = l
	}
}

// OnFlush registers an observer called after every flush attempt.
func OnFlush(fn func(Result)) Option {
	return func(s *Synchronizer) {
		s.onFlush = fn
	}
}

// New returns an idle Synchronizer writing src to key in store.
func New(key string, store Store, src Source, opts ...Option) *Synchronizer {
	s := &Synchronizer{
		key:      key,
		store:    store,
		src:      src,
		logger:   slog.Default(),
		interval: DefaultInterval,
		quiet:    DefaultQuiet,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Key returns the document key this synchronizer writes.
func (s *Synchronizer) Key() string { return s.key }

// State returns the current state.
func (s *Synchronizer) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Watermark returns a copy of the current watermark.
func (s *Synchronizer) Watermark() Watermark {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.wm
}

// Touch records an edit at the current time.
func (s *Synchronizer) Touch() {
	s.TouchAt(s.now())
}

// TouchAt records an edit at t: Idle|Flushing → Dirty.
func (s *Synchronizer) TouchAt(t time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = Dirty
	s.wm.Dirty = true
	s.wm.LastEdit = t
}

// Tick evaluates the watermark at now and flushes when the document is dirty
// and has been quiet for the full window. It reports whether a flush was
// attempted.
func (s *Synchronizer) Tick(ctx context.Context, now time.Time) (bool, error) {
	s.mu.Lock()
	if !s.wm.Dirty || s.inFlight || now.Sub(s.wm.LastEdit) < s.quiet {
		s.mu.Unlock()
		return false, nil
	}
	s.mu.Unlock()
	return true, s.flush(ctx, now)
}

// Flush writes pending edits immediately, ignoring the quiet window. It is a
// no-op when nothing is dirty or a flush is already in flight.
func (s *Synchronizer) Flush(ctx context.Context) error {
	s.mu.Lock()
	if !s.wm.Dirty || s.inFlight {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()
	return s.flush(ctx, s.now())
}

func (s *Synchronizer) flush(ctx context.Context, now time.Time) error {
	s.mu.Lock()
	if s.inFlight || !s.wm.Dirty {
		s.mu.Unlock()
		return nil
	}
	s.inFlight = true
	s.state = Flushing
	editSeen := s.wm.LastEdit
	s.mu.Unlock()

	value := s.src.Snapshot()
	res := Result{Key: s.key, At: now, Bytes: len(value)}
	if value == "" {
		res.Deleted = true
		res.Err = s.store.Delete(ctx, s.key)
	} else {
		res.Err = s.store.Put(ctx, s.key, value)
	}

	s.mu.Lock()
	s.inFlight = false
	// An edit during the write keeps the document dirty for the next tick.
	editedDuring := s.state == Dirty || !s.wm.LastEdit.Equal(editSeen)
	switch {
	case res.Err != nil:
		s.state = Dirty
	case editedDuring:
		s.state = Dirty
		s.wm.LastFlush = now
	default:
		s.state = Idle
		s.wm.Dirty = false
		s.wm.LastFlush = now
	}
	s.mu.Unlock()

	if res.Err != nil {
		s.logger.Warn("autosave: flush failed",
			slog.String("key", s.key),
			slog.String("error", res.Err.Error()))
	} else {
		s.logger.Debug("autosave: flushed",
			slog.String("key", s.key),
			slog.Bool("deleted", res.Deleted),
			slog.Int("bytes", res.Bytes))
	}
	if s.onFlush != nil {
		s.onFlush(res)
	}
	return res.Err
}

// Run ticks until ctx is cancelled. Flush errors are logged and retried on
// the next tick; Run itself only returns ctx.Err().
func (s *Synchronizer) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			_, _ = s.Tick(ctx, s.now())
		}
	}
}
