// Package sse implements a topic-based Server-Sent Events broker.
package sse

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync/atomic"
)

// Event types pushed to browsers.
const (
	EventPreview     = "preview"
	EventSaved       = "saved"
	EventSaveFailed  = "save_failed"
	EventPageChanged = "page.changed"
	EventPageDeleted = "page.deleted"
)

// SessionTopic is the topic an editor session publishes to.
func SessionTopic(id string) string { return "session:" + id }

// PageTopic is the topic viewers of one page listen on.
func PageTopic(key string) string { return "page:" + key }

// Event represents an SSE event to broadcast.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

type message struct {
	topic string
	event Event
}

type subscription struct {
	topic string
	ch    chan []byte
}

type countReq struct {
	topic string
	resp  chan int
}

// Broker fans events out to subscribers of a topic.
//
// A single internal event loop owns the subscriber map. Public methods talk
// to it through channels, so no mutexes are required.
type Broker struct {
	bufSize int

	subscribeCh   chan subscription
	unsubscribeCh chan subscription
	publishCh     chan message
	countReqCh    chan countReq

	stopCh  chan struct{}
	stopped chan struct{}
	closed  atomic.Bool
}

// NewBroker starts a broker whose subscribers buffer up to bufSize messages.
func NewBroker(bufSize int) *Broker {
	if bufSize <= 0 {
		bufSize = 64
	}

	b := &Broker{
		bufSize:       bufSize,
		subscribeCh:   make(chan subscription),
		unsubscribeCh: make(chan subscription),
		publishCh:     make(chan message, 256),
		countReqCh:    make(chan countReq),
		stopCh:        make(chan struct{}),
		stopped:       make(chan struct{}),
	}

	go b.run()
	return b
}

// Encode formats e as one SSE frame.
func Encode(e Event) ([]byte, error) {
	payload, err := json.Marshal(e.Data)
	if err != nil {
		return nil, err
	}
	return fmt.Appendf(nil, "event: %s\ndata: %s\n\n", e.Type, payload), nil
}

func (b *Broker) run() {
	defer close(b.stopped)

	topics := make(map[string]map[chan []byte]struct{})

	for {
		select {
		case <-b.stopCh:
			for _, clients := range topics {
				for ch := range clients {
					close(ch)
				}
			}
			return

		case sub := <-b.subscribeCh:
			clients := topics[sub.topic]
			if clients == nil {
				clients = make(map[chan []byte]struct{})
				topics[sub.topic] = clients
			}
			clients[sub.ch] = struct{}{}

		case sub := <-b.unsubscribeCh:
			clients := topics[sub.topic]
			if _, ok := clients[sub.ch]; ok {
				delete(clients, sub.ch)
				close(sub.ch)
				if len(clients) == 0 {
					delete(topics, sub.topic)
				}
			}

		case msg := <-b.publishCh:
			raw, err := Encode(msg.event)
			if err != nil {
				continue
			}
			for ch := range topics[msg.topic] {
				select {
				case ch <- raw:
				default:
					// Slow subscriber; drop rather than block the loop.
				}
			}

		case req := <-b.countReqCh:
			req.resp <- len(topics[req.topic])
		}
	}
}

// Close stops the loop and closes every subscriber channel.
func (b *Broker) Close() {
	if b.closed.CompareAndSwap(false, true) {
		close(b.stopCh)
	}
	<-b.stopped
}

// Subscribe adds a subscriber to topic and returns its channel.
func (b *Broker) Subscribe(topic string) chan []byte {
	ch := make(chan []byte, b.bufSize)
	if b.closed.Load() {
		close(ch)
		return ch
	}

	select {
	case b.subscribeCh <- subscription{topic: topic, ch: ch}:
	case <-b.stopped:
		close(ch)
	}

	return ch
}

// Unsubscribe removes a subscriber and closes its channel.
func (b *Broker) Unsubscribe(topic string, ch chan []byte) {
	if b.closed.Load() {
		return
	}
	select {
	case b.unsubscribeCh <- subscription{topic: topic, ch: ch}:
	case <-b.stopped:
	}
}

// SubscriberCount returns the number of subscribers on topic.
func (b *Broker) SubscriberCount(topic string) int {
	if b.closed.Load() {
		return 0
	}

	resp := make(chan int, 1)
	select {
	case b.countReqCh <- countReq{topic: topic, resp: resp}:
	case <-b.stopped:
		return 0
	}

	select {
	case n := <-resp:
		return n
	case <-b.stopped:
		return 0
	}
}

// Publish sends event to every subscriber of topic.
func (b *Broker) Publish(topic string, event Event) {
	if b.closed.Load() {
		return
	}
	select {
	case b.publishCh <- message{topic: topic, event: event}:
	case <-b.stopped:
	}
}

// PublishPage publishes a page.changed or page.deleted event for key.
func (b *Broker) PublishPage(key string, deleted bool) {
	typ := EventPageChanged
	if deleted {
		typ = EventPageDeleted
	}
	b.Publish(PageTopic(key), Event{Type: typ, Data: map[string]string{"key": key}})
}

// Serve streams topic to the client until the request context ends or the
// broker closes. initial, when non-nil, is written before any published event.
func (b *Broker) Serve(w http.ResponseWriter, r *http.Request, topic string, initial *Event) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	ch := b.Subscribe(topic)
	defer b.Unsubscribe(topic, ch)

	if initial != nil {
		if raw, err := Encode(*initial); err == nil {
			_, _ = w.Write(raw)
		}
	}
	flusher.Flush()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			_, _ = w.Write(msg)
			flusher.Flush()
		}
	}
}
