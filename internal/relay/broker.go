// Package relay fans events out to Server-Sent Events subscribers and keeps
// a short history so reconnecting clients can resume.
package relay

import (
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
)

const (
	subscriberBufSize = 256
	historySize       = 128
)

// FeedTips carries one event per delivered tip.
const FeedTips = "tips"

// Event is one message on a feed. ID is what clients echo back in
// Last-Event-ID.
type Event struct {
	ID      string
	Feed    string
	Payload string
}

type subscriber struct {
	ch    chan Event
	feeds map[string]bool // nil: every feed
}

func (s *subscriber) wants(feed string) bool {
	return s.feeds == nil || s.feeds[feed]
}

// Broker delivers events to subscribers without blocking the publisher.
// A subscriber whose buffer is full misses the event.
type Broker struct {
	mu          sync.Mutex
	subscribers map[int64]*subscriber
	history     []Event
	nextID      atomic.Int64
	published   atomic.Int64
	dropped     atomic.Int64
}

func NewBroker() *Broker {
	return &Broker{
		subscribers: make(map[int64]*subscriber),
	}
}

// Subscribe registers a consumer of feeds, or of every feed when none are
// given.
func (b *Broker) Subscribe(feeds ...string) (int64, <-chan Event) {
	id, ch, _ := b.Resume("", feeds...)
	return id, ch
}

// Resume subscribes like Subscribe and also returns the retained events
// published after lastID on the requested feeds. An empty or evicted lastID
// yields no backlog. Registration and backlog are taken under one lock, so
// nothing falls between them.
func (b *Broker) Resume(lastID string, feeds ...string) (int64, <-chan Event, []Event) {
	sub := &subscriber{ch: make(chan Event, subscriberBufSize)}
	if len(feeds) > 0 {
		sub.feeds = make(map[string]bool, len(feeds))
		for _, f := range feeds {
			sub.feeds[f] = true
		}
	}
	id := b.nextID.Add(1)

	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[id] = sub

	var backlog []Event
	if lastID != "" {
		for i := len(b.history) - 1; i >= 0; i-- {
			if b.history[i].ID != lastID {
				continue
			}
			for _, evt := range b.history[i+1:] {
				if sub.wants(evt.Feed) {
					backlog = append(backlog, evt)
				}
			}
			break
		}
	}
	return id, sub.ch, backlog
}

// Unsubscribe removes a subscriber and closes its channel. Unknown ids are
// ignored.
func (b *Broker) Unsubscribe(id int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if sub, ok := b.subscribers[id]; ok {
		delete(b.subscribers, id)
		close(sub.ch)
	}
}

// Publish records evt in the history and offers it to every subscriber of
// its feed.
func (b *Broker) Publish(evt Event) {
	b.published.Add(1)

	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.history) == historySize {
		copy(b.history, b.history[1:])
		b.history = b.history[:historySize-1]
	}
	b.history = append(b.history, evt)

	for _, sub := range b.subscribers {
		if !sub.wants(evt.Feed) {
			continue
		}
		select {
		case sub.ch <- evt:
		default:
			b.dropped.Add(1)
		}
	}
}

// PublishJSON marshals v as the payload of an event on feed.
func (b *Broker) PublishJSON(feed, id string, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("relay: marshal %s event: %w", feed, err)
	}
	b.Publish(Event{ID: id, Feed: feed, Payload: string(payload)})
	return nil
}

func (b *Broker) ClientCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subscribers)
}

// Stats reports how many events were published and how many deliveries
// were dropped on full subscriber buffers.
func (b *Broker) Stats() (published, dropped int64) {
	return b.published.Load(), b.dropped.Load()
}
