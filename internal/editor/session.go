// Package editor holds live editing sessions: one raw-text buffer per open
// editor, its autosave synchronizer and the preview it publishes.
package editor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/starford/creolewiki/internal/apperr"
	"github.com/starford/creolewiki/internal/autosave"
	"github.com/starford/creolewiki/internal/render"
	"github.com/starford/creolewiki/internal/sse"
)

// Publisher delivers events to browsers.
type Publisher interface {
	Publish(topic string, event sse.Event)
	PublishPage(key string, deleted bool)
}

type nopPublisher struct{}

func (nopPublisher) Publish(string, sse.Event) {}
func (nopPublisher) PublishPage(string, bool)  {}

// Session is one open editor on one key.
type Session struct {
	id     string
	key    string
	pub    Publisher
	logger *slog.Logger
	sync   *autosave.Synchronizer

	mu         sync.Mutex
	text       string
	preview    string
	lastActive time.Time
	streams    int
	used       bool
	closed     bool

	cancel    context.CancelFunc
	done      chan struct{}
	closeOnce sync.Once
	closeErr  error
}

func newSession(id, key, text string, store autosave.Store, pub Publisher, logger *slog.Logger, opts []autosave.Option) *Session {
	s := &Session{
		id:         id,
		key:        key,
		pub:        pub,
		logger:     logger.With(slog.String("session", id), slog.String("key", key)),
		text:       text,
		lastActive: time.Now(),
		done:       make(chan struct{}),
	}
	s.preview = s.renderLocked()

	opts = append(append([]autosave.Option(nil), opts...),
		autosave.WithLogger(s.logger),
		autosave.OnFlush(s.flushed),
	)
	s.sync = autosave.New(key, store, autosave.SourceFunc(s.Text), opts...)

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	go func() {
		defer close(s.done)
		_ = s.sync.Run(ctx)
	}()
	return s
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Key returns the document key being edited.
func (s *Session) Key() string { return s.key }

// Text returns the current buffer.
func (s *Session) Text() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.text
}

// Preview returns the HTML rendering of the current buffer.
func (s *Session) Preview() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.preview
}

// State returns the autosave state.
func (s *Session) State() autosave.State { return s.sync.State() }

// Input replaces the buffer, marks it dirty and publishes the new preview.
func (s *Session) Input(text string) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return fmt.Errorf("editor: input %s: %w", s.id, apperr.ErrSessionClosed)
	}
	s.text = text
	s.used = true
	s.lastActive = time.Now()
	s.preview = s.renderLocked()
	preview := s.preview
	s.sync.Touch()
	s.mu.Unlock()

	s.pub.Publish(sse.SessionTopic(s.id), sse.Event{
		Type: sse.EventPreview,
		Data: map[string]string{"html": preview},
	})
	return nil
}

func (s *Session) renderLocked() string {
	return render.HTML(render.RenderDocument(s.text, s.logger))
}

func (s *Session) flushed(res autosave.Result) {
	topic := sse.SessionTopic(s.id)
	if res.Err != nil {
		s.pub.Publish(topic, sse.Event{
			Type: sse.EventSaveFailed,
			Data: map[string]string{"key": res.Key, "error": res.Err.Error()},
		})
		return
	}
	s.pub.Publish(topic, sse.Event{
		Type: sse.EventSaved,
		Data: map[string]any{"key": res.Key, "deleted": res.Deleted, "at": res.At},
	})
	s.pub.PublishPage(res.Key, res.Deleted)
}

// attach records an open event stream.
func (s *Session) attach() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.streams++
	s.used = true
	s.lastActive = time.Now()
}

// detach records a closed event stream and reports whether none remain.
func (s *Session) detach() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.streams--
	s.lastActive = time.Now()
	return s.streams <= 0
}

// idleSince returns how long the session has had no stream and no input, and
// whether it ever had either.
func (s *Session) idleSince(now time.Time) (time.Duration, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.streams > 0 {
		return 0, true
	}
	return now.Sub(s.lastActive), s.used
}

// Close stops the timer, writes any pending edit once and rejects further
// input. No write for this session happens after Close returns.
func (s *Session) Close(ctx context.Context) error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()

		s.cancel()
		<-s.done

		s.closeErr = s.sync.Flush(ctx)
		if s.closeErr != nil {
			s.logger.Error("editor: final flush failed", slog.String("error", s.closeErr.Error()))
		}
		s.logger.Debug("editor: session closed")
	})
	return s.closeErr
}
