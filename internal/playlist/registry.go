/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package playlist

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/friendsincode/grimnir_switch/internal/engine"
)

// Protocol identifies a shared-listener protocol.
type Protocol string

const (
	ProtocolSRT  Protocol = "srt"
	ProtocolRTMP Protocol = "rtmp"
)

// DisconnectFunc is invoked when a publisher on a shared listener
// disconnects. sourceName is empty when the protocol does not carry
// one.
type DisconnectFunc func(sourceName string)

type listenerKey struct {
	proto Protocol
	port  int
}

type listenerEntry struct {
	node    engine.Node
	handles map[string]DisconnectFunc
}

// ListenerRegistry owns shared listener-mode input nodes for protocols
// where one socket multiplexes many logical sources. Listener nodes
// live for the lifetime of the registry; items hold handles plus a
// disconnect subscription.
type ListenerRegistry struct {
	logger zerolog.Logger

	mu      sync.Mutex
	entries map[listenerKey]*listenerEntry
	closed  bool
}

// NewListenerRegistry creates an empty registry.
func NewListenerRegistry(logger zerolog.Logger) *ListenerRegistry {
	return &ListenerRegistry{
		logger:  logger.With().Str("component", "listener_registry").Logger(),
		entries: make(map[listenerKey]*listenerEntry),
	}
}

// Ensure creates the listener node for (proto, port) if absent. The
// create callback receives the fan-out function the node's engine
// hooks must invoke on publisher disconnect; it is called without the
// registry lock held.
func (r *ListenerRegistry) Ensure(proto Protocol, port int, create func(fanout DisconnectFunc) (engine.Node, error)) error {
	key := listenerKey{proto: proto, port: port}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return ErrControllerClosed
	}
	if _, ok := r.entries[key]; ok {
		r.mu.Unlock()
		return nil
	}
	r.mu.Unlock()

	fanout := func(sourceName string) {
		r.dispatch(key, sourceName)
	}

	node, err := create(fanout)
	if err != nil {
		return fmt.Errorf("create %s listener on port %d: %w", proto, port, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[key]; ok {
		// Lost a race with another Ensure; keep the first node.
		go node.Close() //nolint:errcheck
		return nil
	}
	r.entries[key] = &listenerEntry{
		node:    node,
		handles: make(map[string]DisconnectFunc),
	}

	r.logger.Info().Str("protocol", string(proto)).Int("port", port).Msg("listener created")
	return nil
}

// Get returns the shared node for (proto, port).
func (r *ListenerRegistry) Get(proto Protocol, port int) (engine.Node, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.entries[listenerKey{proto: proto, port: port}]
	if !ok {
		return nil, fmt.Errorf("%w: %s port %d", ErrNoListener, proto, port)
	}
	return entry.node, nil
}

// Attach registers a per-handle disconnect callback.
func (r *ListenerRegistry) Attach(proto Protocol, port int, handleID string, onDisconnect DisconnectFunc) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.entries[listenerKey{proto: proto, port: port}]
	if !ok {
		return fmt.Errorf("%w: %s port %d", ErrNoListener, proto, port)
	}
	entry.handles[handleID] = onDisconnect
	return nil
}

// Detach removes a per-handle callback. No-op when absent.
func (r *ListenerRegistry) Detach(proto Protocol, port int, handleID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if entry, ok := r.entries[listenerKey{proto: proto, port: port}]; ok {
		delete(entry.handles, handleID)
	}
}

// HandleCount returns the number of attached handles for a listener.
func (r *ListenerRegistry) HandleCount(proto Protocol, port int) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	if entry, ok := r.entries[listenerKey{proto: proto, port: port}]; ok {
		return len(entry.handles)
	}
	return 0
}

// Count returns the number of listener nodes.
func (r *ListenerRegistry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Close tears down every listener node. Handles are discarded.
func (r *ListenerRegistry) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	nodes := make([]engine.Node, 0, len(r.entries))
	for _, entry := range r.entries {
		nodes = append(nodes, entry.node)
	}
	r.entries = make(map[listenerKey]*listenerEntry)
	r.mu.Unlock()

	var firstErr error
	for _, node := range nodes {
		if err := node.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// dispatch fans a disconnect out to the callbacks attached at call
// time. The lock is never held across callback invocation.
func (r *ListenerRegistry) dispatch(key listenerKey, sourceName string) {
	r.mu.Lock()
	entry, ok := r.entries[key]
	var callbacks []DisconnectFunc
	if ok {
		callbacks = make([]DisconnectFunc, 0, len(entry.handles))
		for _, cb := range entry.handles {
			callbacks = append(callbacks, cb)
		}
	}
	r.mu.Unlock()

	if !ok {
		return
	}

	r.logger.Debug().
		Str("protocol", string(key.proto)).
		Int("port", key.port).
		Str("source_name", sourceName).
		Int("handles", len(callbacks)).
		Msg("publisher disconnected")

	for _, cb := range callbacks {
		cb(sourceName)
	}
}
