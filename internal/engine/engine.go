/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package engine defines the contract the playlist controller consumes
// from the underlying media engine. The engine instantiates input
// nodes, decodes streams, and performs the actual audio/video
// switching; this package deliberately carries no transport so any
// binding (in-process, gRPC, CGO) can satisfy it.
package engine

import (
	"context"
	"time"
)

// Node is a handle onto an engine node.
type Node interface {
	// Close tears the node down. Closing an already-closed node is a
	// no-op.
	Close() error
}

// OutputNode is a node downstream consumers can subscribe to.
type OutputNode interface {
	Node

	// Key returns the fixed stream key this output publishes under.
	Key() StreamKey
}

// Switcher is the engine's smooth-switcher processor. It crossfades
// audio and video between subscribed pins over a configured duration.
type Switcher interface {
	Node

	// SubscribeToPins replaces the switcher's complete subscription
	// set.
	SubscribeToPins(subs []PinSubscription) error

	// SwitchSource commands a crossfade to the given pin.
	SwitchSource(pin string) error
}

// ConnectionStatus reports live-source connectivity.
type ConnectionStatus string

const (
	StatusConnected    ConnectionStatus = "connected"
	StatusDisconnected ConnectionStatus = "disconnected"
)

// StreamAccept is the answer to an OnStream callback for listener
// inputs that multiplex many publishers.
type StreamAccept struct {
	Accept         bool
	AudioStreamKey StreamKey
	VideoStreamKey StreamKey
}

// InputHooks carries the lifecycle callbacks an input node fires.
// OnCreate runs inside the engine's creation hook, before any frame is
// dispatched, so subscriptions installed there never miss data.
type InputHooks struct {
	OnCreate                 func(node Node)
	OnEOF                    func()
	OnInfo                   func(duration time.Duration)
	OnConnectionStatusChange func(status ConnectionStatus, sourceName string)
	OnStream                 func(app, url, streamID, name string) StreamAccept
	OnClose                  func(node Node)
}

// SwitcherConfig configures a smooth switcher.
type SwitcherConfig struct {
	TransitionDuration time.Duration
	Width              int
	Height             int
	SampleRate         int
	Channels           int
}

// AudioGainConfig configures an audio gain processor. A zero gain on
// every channel yields silence.
type AudioGainConfig struct {
	Source Node
	Gains  []float64
}

// AudioSignalConfig configures a raw audio signal generator.
type AudioSignalConfig struct {
	Channels   int
	SampleRate int
}

// StreamKeyOverrideConfig relabels everything flowing out of Source
// with a fixed stream key.
type StreamKeyOverrideConfig struct {
	Source Node
	Key    StreamKey
}

// Engine is the surface the playlist controller drives.
type Engine interface {
	// CreateInput creates an input node for cfg. The node is delivered
	// through hooks.OnCreate before CreateInput returns.
	CreateInput(ctx context.Context, cfg InputConfig, hooks InputHooks) error

	NewSmoothSwitcher(ctx context.Context, cfg SwitcherConfig) (Switcher, error)
	NewAudioGain(ctx context.Context, cfg AudioGainConfig) (Node, error)
	NewAudioSignal(ctx context.Context, cfg AudioSignalConfig) (Node, error)
	NewStreamKeyOverride(ctx context.Context, cfg StreamKeyOverrideConfig) (OutputNode, error)
}
