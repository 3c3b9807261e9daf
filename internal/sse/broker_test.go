package sse

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
)

// syncRecorder guards the recorder body against the concurrent reader in tests.
type syncRecorder struct {
	mu sync.Mutex
	*httptest.ResponseRecorder
}

func (s *syncRecorder) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ResponseRecorder.Write(p)
}

func (s *syncRecorder) Body() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ResponseRecorder.Body.String()
}

func eventually(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met before deadline")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestSubscribeUnsubscribe(t *testing.T) {
	b := NewBroker(0)
	defer b.Close()
	if b.SubscriberCount("a") != 0 {
		t.Fatalf("expected 0 subscribers")
	}
	ch := b.Subscribe("a")
	if b.SubscriberCount("a") != 1 || b.SubscriberCount("b") != 0 {
		t.Fatalf("expected exactly 1 subscriber on a")
	}
	b.Unsubscribe("a", ch)
	if b.SubscriberCount("a") != 0 {
		t.Fatalf("expected 0 subscribers after unsub")
	}
}

func TestPublishOnlyReachesTopic(t *testing.T) {
	b := NewBroker(0)
	defer b.Close()
	mine := b.Subscribe(SessionTopic("1"))
	other := b.Subscribe(SessionTopic("2"))
	defer b.Unsubscribe(SessionTopic("1"), mine)
	defer b.Unsubscribe(SessionTopic("2"), other)

	b.Publish(SessionTopic("1"), Event{Type: EventPreview, Data: map[string]string{"html": "<p>x</p>"}})

	select {
	case msg := <-mine:
		s := string(msg)
		if !strings.Contains(s, "event: preview\n") {
			t.Errorf("missing event type in %q", s)
		}
		if !strings.Contains(s, `"html":"<p>x</p>"`) {
			t.Errorf("missing data in %q", s)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for message")
	}

	select {
	case msg := <-other:
		t.Errorf("other topic received %q", msg)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestPublishPage(t *testing.T) {
	b := NewBroker(0)
	defer b.Close()
	ch := b.Subscribe(PageTopic("a/b"))
	defer b.Unsubscribe(PageTopic("a/b"), ch)

	b.PublishPage("a/b", false)
	b.PublishPage("a/b", true)

	for _, want := range []string{EventPageChanged, EventPageDeleted} {
		select {
		case msg := <-ch:
			if !strings.HasPrefix(string(msg), "event: "+want+"\n") {
				t.Errorf("got %q, want %s", msg, want)
			}
		case <-time.After(time.Second):
			t.Fatalf("timeout waiting for %s", want)
		}
	}
}

func TestServe(t *testing.T) {
	b := NewBroker(0)
	defer b.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	req := httptest.NewRequest(http.MethodGet, "/events", nil).WithContext(ctx)
	w := &syncRecorder{ResponseRecorder: httptest.NewRecorder()}

	done := make(chan struct{})
	go func() {
		b.Serve(w, req, "t", &Event{Type: EventPreview, Data: map[string]string{"html": ""}})
		close(done)
	}()

	eventually(t, func() bool { return b.SubscriberCount("t") == 1 })

	b.Publish("t", Event{Type: EventSaved, Data: map[string]string{"key": "x"}})
	eventually(t, func() bool { return strings.Contains(w.Body(), "event: saved") })

	cancel()
	<-done

	body := w.Body()
	if !strings.HasPrefix(body, "event: preview\n") {
		t.Errorf("initial event not first: %q", body)
	}
	if got := w.Header().Get("Content-Type"); got != "text/event-stream" {
		t.Errorf("content type = %q", got)
	}
	eventually(t, func() bool { return b.SubscriberCount("t") == 0 })
}

func TestPublishDropsOnFullBuffer(t *testing.T) {
	b := NewBroker(4)
	defer b.Close()
	ch := b.Subscribe("t")
	defer b.Unsubscribe("t", ch)

	for i := 0; i < 10; i++ {
		b.Publish("t", Event{Type: "test", Data: i})
	}
	// Reaching here without deadlock is the point; the buffer holds at most 4.
	eventually(t, func() bool { return len(ch) == 4 })
}

func TestCloseClosesSubscribersAndStopsOperations(t *testing.T) {
	b := NewBroker(0)
	ch := b.Subscribe("t")
	if b.SubscriberCount("t") != 1 {
		t.Fatalf("expected 1 subscriber")
	}

	b.Close()

	select {
	case _, ok := <-ch:
		if ok {
			t.Fatal("expected subscriber channel to be closed")
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for channel close")
	}

	if b.SubscriberCount("t") != 0 {
		t.Fatalf("expected 0 subscribers after close")
	}

	b.Publish("t", Event{Type: EventSaved})
	b.PublishPage("x", true)
	if _, ok := <-b.Subscribe("t"); ok {
		t.Fatal("subscribe after close must return a closed channel")
	}
}
