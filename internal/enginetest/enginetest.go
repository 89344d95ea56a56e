/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package enginetest provides an in-memory engine implementation for
// tests and for the development playback harness. Nodes carry no
// media; the fakes record every call and let callers fire lifecycle
// hooks by hand.
package enginetest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/friendsincode/grimnir_switch/internal/engine"
)

// FakeNode is a no-media node handle.
type FakeNode struct {
	Name string

	mu      sync.Mutex
	closed  bool
	closes  int
	onClose func(engine.Node)
}

// Close marks the node closed and fires the OnClose hook once.
func (n *FakeNode) Close() error {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return nil
	}
	n.closed = true
	n.closes++
	onClose := n.onClose
	n.mu.Unlock()

	if onClose != nil {
		onClose(n)
	}
	return nil
}

// Closed reports whether Close has been called.
func (n *FakeNode) Closed() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.closed
}

// CloseCount returns how many times Close actually tore down (at most
// one; repeats are no-ops).
func (n *FakeNode) CloseCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.closes
}

// FakeInput records one CreateInput call and exposes its hooks so a
// test can drive the node's lifecycle.
type FakeInput struct {
	Node   *FakeNode
	Config engine.InputConfig
	Hooks  engine.InputHooks
}

// EOF fires the input's end-of-file hook.
func (in *FakeInput) EOF() {
	if in.Hooks.OnEOF != nil {
		in.Hooks.OnEOF()
	}
}

// Info fires the input's media-info hook with the natural duration.
func (in *FakeInput) Info(d time.Duration) {
	if in.Hooks.OnInfo != nil {
		in.Hooks.OnInfo(d)
	}
}

// SetConnection fires the connection status hook.
func (in *FakeInput) SetConnection(status engine.ConnectionStatus, sourceName string) {
	if in.Hooks.OnConnectionStatusChange != nil {
		in.Hooks.OnConnectionStatusChange(status, sourceName)
	}
}

// Stream offers a new publisher to a listener input and returns the
// accept decision.
func (in *FakeInput) Stream(app, url, streamID, name string) engine.StreamAccept {
	if in.Hooks.OnStream == nil {
		return engine.StreamAccept{}
	}
	return in.Hooks.OnStream(app, url, streamID, name)
}

// FakeSwitcher records subscription sets and switch commands.
type FakeSwitcher struct {
	FakeNode

	// SwitchErr, when set, fails the next SwitchSource call.
	SwitchErr error

	swMu     sync.Mutex
	subs     []engine.PinSubscription
	switches []string
}

// SubscribeToPins replaces the recorded subscription set.
func (s *FakeSwitcher) SubscribeToPins(subs []engine.PinSubscription) error {
	s.swMu.Lock()
	defer s.swMu.Unlock()
	s.subs = append([]engine.PinSubscription(nil), subs...)
	return nil
}

// SwitchSource records a crossfade command.
func (s *FakeSwitcher) SwitchSource(pin string) error {
	s.swMu.Lock()
	defer s.swMu.Unlock()
	if s.SwitchErr != nil {
		err := s.SwitchErr
		s.SwitchErr = nil
		return err
	}
	s.switches = append(s.switches, pin)
	return nil
}

// Subscriptions returns the current subscription set.
func (s *FakeSwitcher) Subscriptions() []engine.PinSubscription {
	s.swMu.Lock()
	defer s.swMu.Unlock()
	return append([]engine.PinSubscription(nil), s.subs...)
}

// Switches returns every pin switched to, in order.
func (s *FakeSwitcher) Switches() []string {
	s.swMu.Lock()
	defer s.swMu.Unlock()
	return append([]string(nil), s.switches...)
}

// LastSwitch returns the most recent switch target, or "".
func (s *FakeSwitcher) LastSwitch() string {
	s.swMu.Lock()
	defer s.swMu.Unlock()
	if len(s.switches) == 0 {
		return ""
	}
	return s.switches[len(s.switches)-1]
}

// DeliverStreams invokes the selectors of every subscription bound to
// source with the given stream set, simulating the engine announcing
// streams on a node. It returns the merged pin mapping the selectors
// produced.
func (s *FakeSwitcher) DeliverStreams(source engine.Node, streams []engine.Stream) map[string][]engine.StreamKey {
	s.swMu.Lock()
	subs := append([]engine.PinSubscription(nil), s.subs...)
	s.swMu.Unlock()

	merged := make(map[string][]engine.StreamKey)
	for _, sub := range subs {
		if sub.Source != source || sub.Selector == nil {
			continue
		}
		for pin, keys := range sub.Selector(streams) {
			merged[pin] = append(merged[pin], keys...)
		}
	}
	return merged
}

// FakeOutput is a no-media output handle.
type FakeOutput struct {
	FakeNode
	key engine.StreamKey
}

// Key returns the configured output stream key.
func (o *FakeOutput) Key() engine.StreamKey { return o.key }

// FakeEngine implements engine.Engine in memory.
type FakeEngine struct {
	// CreateErr, when set, fails the next CreateInput call.
	CreateErr error

	mu       sync.Mutex
	inputs   []*FakeInput
	switcher *FakeSwitcher
	signals  []*FakeNode
	gains    []*FakeNode
	outputs  []*FakeOutput
}

// New returns an empty fake engine.
func New() *FakeEngine { return &FakeEngine{} }

// CreateInput records the input and delivers the node through
// hooks.OnCreate before returning, matching the engine contract.
func (e *FakeEngine) CreateInput(_ context.Context, cfg engine.InputConfig, hooks engine.InputHooks) error {
	e.mu.Lock()
	if e.CreateErr != nil {
		err := e.CreateErr
		e.CreateErr = nil
		e.mu.Unlock()
		return err
	}
	node := &FakeNode{
		Name:    fmt.Sprintf("%T", cfg),
		onClose: hooks.OnClose,
	}
	in := &FakeInput{Node: node, Config: cfg, Hooks: hooks}
	e.inputs = append(e.inputs, in)
	e.mu.Unlock()

	if hooks.OnCreate != nil {
		hooks.OnCreate(node)
	}
	return nil
}

// NewSmoothSwitcher returns a recording switcher. The most recent one
// is available via Switcher.
func (e *FakeEngine) NewSmoothSwitcher(_ context.Context, _ engine.SwitcherConfig) (engine.Switcher, error) {
	sw := &FakeSwitcher{FakeNode: FakeNode{Name: "switcher"}}
	e.mu.Lock()
	e.switcher = sw
	e.mu.Unlock()
	return sw, nil
}

func (e *FakeEngine) NewAudioGain(_ context.Context, _ engine.AudioGainConfig) (engine.Node, error) {
	n := &FakeNode{Name: "audio_gain"}
	e.mu.Lock()
	e.gains = append(e.gains, n)
	e.mu.Unlock()
	return n, nil
}

func (e *FakeEngine) NewAudioSignal(_ context.Context, _ engine.AudioSignalConfig) (engine.Node, error) {
	n := &FakeNode{Name: "audio_signal"}
	e.mu.Lock()
	e.signals = append(e.signals, n)
	e.mu.Unlock()
	return n, nil
}

func (e *FakeEngine) NewStreamKeyOverride(_ context.Context, cfg engine.StreamKeyOverrideConfig) (engine.OutputNode, error) {
	o := &FakeOutput{FakeNode: FakeNode{Name: "stream_key_override"}, key: cfg.Key}
	e.mu.Lock()
	e.outputs = append(e.outputs, o)
	e.mu.Unlock()
	return o, nil
}

// Inputs returns every input created so far, in creation order.
func (e *FakeEngine) Inputs() []*FakeInput {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]*FakeInput(nil), e.inputs...)
}

// Input returns the i-th created input, or nil.
func (e *FakeEngine) Input(i int) *FakeInput {
	e.mu.Lock()
	defer e.mu.Unlock()
	if i < 0 || i >= len(e.inputs) {
		return nil
	}
	return e.inputs[i]
}

// Switcher returns the most recently created switcher.
func (e *FakeEngine) Switcher() *FakeSwitcher {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.switcher
}

// Silence returns the silence gain node, when one was created.
func (e *FakeEngine) Silence() *FakeNode {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.gains) == 0 {
		return nil
	}
	return e.gains[len(e.gains)-1]
}
