package editor

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/starford/creolewiki/internal/apperr"
	"github.com/starford/creolewiki/internal/autosave"
	"github.com/starford/creolewiki/internal/sse"
)

type memStore struct {
	mu     sync.Mutex
	data   map[string]string
	writes int
}

func newMemStore() *memStore { return &memStore{data: map[string]string{}} }

func (m *memStore) Put(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writes++
	m.data[key] = value
	return nil
}

func (m *memStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writes++
	delete(m.data, key)
	return nil
}

func (m *memStore) get(key string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	return v, ok
}

func (m *memStore) writeCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writes
}

type recPublisher struct {
	mu     sync.Mutex
	events []sse.Event
	pages  []string
}

func (p *recPublisher) Publish(_ string, e sse.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
}

func (p *recPublisher) PublishPage(key string, _ bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pages = append(p.pages, key)
}

func (p *recPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []string
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

func eventually(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met before deadline")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func fastRegistry(store autosave.Store, pub Publisher, opts ...Option) *Registry {
	opts = append([]Option{
		WithPublisher(pub),
		WithAutosave(autosave.WithInterval(5*time.Millisecond), autosave.WithQuiet(20*time.Millisecond)),
	}, opts...)
	return NewRegistry(store, opts...)
}

func TestSession_InputPublishesPreviewAndAutosaves(t *testing.T) {
	store := newMemStore()
	pub := &recPublisher{}
	reg := fastRegistry(store, pub)
	defer reg.CloseAll(context.Background())

	s, err := reg.Open("page", "")
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Input("== Title"); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(s.Preview(), "<h1>Title</h1>") {
		t.Errorf("preview = %q", s.Preview())
	}
	pub.mu.Lock()
	first := pub.events[0]
	pub.mu.Unlock()
	if first.Type != sse.EventPreview {
		t.Errorf("first event = %s", first.Type)
	}

	eventually(t, func() bool {
		v, ok := store.get("page")
		return ok && v == "== Title"
	})
	eventually(t, func() bool {
		for _, typ := range pub.types() {
			if typ == sse.EventSaved {
				return true
			}
		}
		return false
	})
}

func TestSession_CloseFlushesPendingEditOnce(t *testing.T) {
	store := newMemStore()
	reg := NewRegistry(store, WithAutosave(autosave.WithQuiet(time.Hour)))

	s, _ := reg.Open("k", "")
	_ = s.Input("pending")
	if err := reg.Close(context.Background(), s.ID()); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if v, _ := store.get("k"); v != "pending" {
		t.Errorf("stored = %q, want final flush", v)
	}
	writes := store.writeCount()

	if err := s.Input("late"); !errors.Is(err, apperr.ErrSessionClosed) {
		t.Errorf("Input after close err = %v", err)
	}
	if err := s.Close(context.Background()); err != nil {
		t.Errorf("second Close: %v", err)
	}
	time.Sleep(30 * time.Millisecond)
	if store.writeCount() != writes {
		t.Error("write happened after Close returned")
	}
	if _, err := reg.Get(s.ID()); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("Get closed session err = %v", err)
	}
}

func TestSession_CloseWithoutEditsDoesNotWrite(t *testing.T) {
	store := newMemStore()
	reg := NewRegistry(store)
	s, _ := reg.Open("k", "existing")
	_ = s.Close(context.Background())
	if store.writeCount() != 0 {
		t.Errorf("writes = %d, want 0", store.writeCount())
	}
}

func TestSession_EmptyBufferDeletes(t *testing.T) {
	store := newMemStore()
	_ = store.Put(context.Background(), "k", "old")
	reg := fastRegistry(store, nil)
	defer reg.CloseAll(context.Background())

	s, _ := reg.Open("k", "old")
	_ = s.Input("")
	eventually(t, func() bool {
		_, ok := store.get("k")
		return !ok
	})
}

func TestRegistry_DetachLastStreamClosesSession(t *testing.T) {
	reg := NewRegistry(newMemStore())
	s, _ := reg.Open("k", "")

	detach1, err := reg.Attach(s.ID())
	if err != nil {
		t.Fatal(err)
	}
	detach2, _ := reg.Attach(s.ID())

	detach1(context.Background())
	detach1(context.Background())
	if reg.Len() != 1 {
		t.Fatal("session closed while a stream is still attached")
	}
	detach2(context.Background())
	if reg.Len() != 0 {
		t.Error("session not closed after last stream detached")
	}
	if _, err := reg.Attach("missing"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("Attach missing err = %v", err)
	}
}

func TestRegistry_ReapSkipsAttached(t *testing.T) {
	store := newMemStore()
	reg := NewRegistry(store, WithIdleTTL(time.Minute), WithAutosave(autosave.WithQuiet(time.Hour)))
	idle, _ := reg.Open("idle", "")
	_ = idle.Input("unsaved")
	busy, _ := reg.Open("busy", "")
	if _, err := reg.Attach(busy.ID()); err != nil {
		t.Fatal(err)
	}

	n := reg.Reap(context.Background(), time.Now().Add(2*time.Minute))
	if n != 1 {
		t.Fatalf("reaped %d, want 1", n)
	}
	if _, err := reg.Get(busy.ID()); err != nil {
		t.Errorf("attached session reaped: %v", err)
	}
	if v, _ := store.get("idle"); v != "unsaved" {
		t.Errorf("reaped session lost its edit: %q", v)
	}
	_ = reg.CloseAll(context.Background())
}

func TestRegistry_CloseAllRefusesNewSessions(t *testing.T) {
	reg := NewRegistry(newMemStore())
	_, _ = reg.Open("a", "")
	_, _ = reg.Open("b", "")
	if err := reg.CloseAll(context.Background()); err != nil {
		t.Fatal(err)
	}
	if reg.Len() != 0 {
		t.Errorf("Len = %d", reg.Len())
	}
	if _, err := reg.Open("c", ""); !errors.Is(err, apperr.ErrSessionClosed) {
		t.Errorf("Open after CloseAll err = %v", err)
	}
}

func TestRegistry_RunClosesOnCancel(t *testing.T) {
	store := newMemStore()
	reg := NewRegistry(store, WithAutosave(autosave.WithQuiet(time.Hour)))
	s, _ := reg.Open("k", "")
	_ = s.Input("draft")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- reg.Run(ctx) }()
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run: %v", err)
	}
	if v, _ := store.get("k"); v != "draft" {
		t.Errorf("stored = %q", v)
	}
}

func TestRegistry_ReapDropsUntouchedSessionsSooner(t *testing.T) {
	store := newMemStore()
	reg := NewRegistry(store, WithIdleTTL(time.Hour), WithPendingTTL(time.Minute))
	defer reg.CloseAll(context.Background())

	prefetched, _ := reg.Open("prefetched", "")
	edited, _ := reg.Open("edited", "")
	_ = edited.Input("draft")

	now := time.Now()
	if n := reg.Reap(context.Background(), now.Add(30*time.Second)); n != 0 {
		t.Fatalf("reaped %d before any TTL elapsed", n)
	}
	if n := reg.Reap(context.Background(), now.Add(2*time.Minute)); n != 1 {
		t.Fatalf("reaped %d, want 1", n)
	}
	if _, err := reg.Get(prefetched.ID()); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("untouched session still open: %v", err)
	}
	if _, err := reg.Get(edited.ID()); err != nil {
		t.Errorf("edited session reaped early: %v", err)
	}
	if store.writeCount() != 0 {
		t.Errorf("reaping an untouched session wrote %d times", store.writeCount())
	}

	if n := reg.Reap(context.Background(), now.Add(2*time.Hour)); n != 1 {
		t.Errorf("reaped %d after idle TTL, want 1", n)
	}
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

type failingStore struct{}

func (failingStore) Put(context.Context, string, string) error { return errors.New("disk full") }
func (failingStore) Delete(context.Context, string) error      { return errors.New("disk full") }

func TestSession_AutosaveLogsCarrySession(t *testing.T) {
	var sessionLog, strayLog syncBuffer
	reg := NewRegistry(failingStore{},
		WithLogger(slog.New(slog.NewJSONHandler(&sessionLog, nil))),
		WithAutosave(
			autosave.WithInterval(5*time.Millisecond),
			autosave.WithQuiet(10*time.Millisecond),
			autosave.WithLogger(slog.New(slog.NewJSONHandler(&strayLog, nil))),
		),
	)
	defer reg.CloseAll(context.Background())

	s, _ := reg.Open("page", "")
	_ = s.Input("text")

	eventually(t, func() bool {
		return strings.Contains(sessionLog.String(), "autosave: flush failed")
	})
	if !strings.Contains(sessionLog.String(), `"session":"`+s.ID()+`"`) {
		t.Errorf("autosave log lacks session attribute: %s", sessionLog.String())
	}
	if strayLog.String() != "" {
		t.Errorf("autosave logged outside the session logger: %s", strayLog.String())
	}
}
