/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package events

import "sync"

// EventType enumerates event categories.
type EventType string

const (
	// EventNowPlaying fires when a playlist item becomes the current
	// slot.
	EventNowPlaying EventType = "now_playing"

	// EventSourceReady fires when a slot's stream metadata satisfies
	// its readiness requirement.
	EventSourceReady EventType = "source_ready"

	// EventSwitched fires when the switcher has been commanded to
	// crossfade to a pin.
	EventSwitched EventType = "switched"

	// EventExhausted fires when the playlist has no more items.
	EventExhausted EventType = "playlist_exhausted"

	// EventHealth carries periodic controller state snapshots.
	EventHealth EventType = "health"
)

// AllEventTypes lists every event type the controller publishes, for
// bridges that mirror the whole bus.
var AllEventTypes = []EventType{
	EventNowPlaying,
	EventSourceReady,
	EventSwitched,
	EventExhausted,
	EventHealth,
}

// Payload generic event payload.
type Payload map[string]any

// Subscriber receives event payloads.
type Subscriber chan Payload

// Bus implements a simple in-process pubsub.
type Bus struct {
	mu   sync.RWMutex
	subs map[EventType][]Subscriber
}

// NewBus creates an event bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[EventType][]Subscriber)}
}

// Subscribe registers a subscriber for event type.
func (b *Bus) Subscribe(eventType EventType) Subscriber {
	ch := make(Subscriber, 8)
	b.mu.Lock()
	b.subs[eventType] = append(b.subs[eventType], ch)
	b.mu.Unlock()
	return ch
}

// Publish sends payload to subscribers. Slow subscribers are skipped,
// never blocked on.
func (b *Bus) Publish(eventType EventType, payload Payload) {
	b.mu.RLock()
	subs := append([]Subscriber(nil), b.subs[eventType]...)
	b.mu.RUnlock()
	for _, sub := range subs {
		select {
		case sub <- payload:
		default:
		}
	}
}

// Unsubscribe removes the subscriber.
func (b *Bus) Unsubscribe(eventType EventType, sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	subs := b.subs[eventType]
	for i, candidate := range subs {
		if candidate == sub {
			subs = append(subs[:i], subs[i+1:]...)
			break
		}
	}
	b.subs[eventType] = subs
	close(sub)
}
