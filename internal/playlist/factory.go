/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package playlist

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/friendsincode/grimnir_switch/internal/engine"
)

// SubscribedSource is handed to the subscribe callback the moment a
// node is addressable, inside the engine's creation hook, so the
// switcher subscription lands before the first frame.
type SubscribedSource struct {
	Node   engine.Node
	NodeID string
	Kind   Kind
	Item   Item
	Filter KeyFilter
	Close  func()
}

// CreatedSource is the factory's result for one playlist item.
type CreatedSource struct {
	Node     engine.Node
	NodeID   string
	Kind     Kind
	Duration *DurationFuture
	Filter   KeyFilter
	Close    func()
}

// SourceFactory produces input nodes (or shared-listener handles) for
// playlist items.
type SourceFactory struct {
	engine   engine.Engine
	registry *ListenerRegistry
	grace    time.Duration
	logger   zerolog.Logger
}

// NewSourceFactory creates a factory. grace is the delay between a
// close request and the underlying node teardown; it lets the
// switcher's crossfade drain without a glitch.
func NewSourceFactory(eng engine.Engine, registry *ListenerRegistry, grace time.Duration, logger zerolog.Logger) *SourceFactory {
	return &SourceFactory{
		engine:   eng,
		registry: registry,
		grace:    grace,
		logger:   logger.With().Str("component", "source_factory").Logger(),
	}
}

// PrecreateListeners creates one shared listener node per distinct
// listener-mode SRT or RTMP port referenced by items. Must run before
// playback starts; RTP and WHIP items always use fresh nodes.
func (f *SourceFactory) PrecreateListeners(ctx context.Context, items []Item) error {
	for _, item := range items {
		switch src := item.Source.(type) {
		case SRT:
			if src.Mode != engine.SRTListener {
				continue
			}
			if err := f.ensureSRTListener(ctx, src); err != nil {
				return err
			}
		case RTMP:
			if err := f.ensureRTMPListener(ctx, src); err != nil {
				return err
			}
		}
	}
	return nil
}

func (f *SourceFactory) ensureSRTListener(ctx context.Context, src SRT) error {
	return f.registry.Ensure(ProtocolSRT, src.Port, func(fanout DisconnectFunc) (engine.Node, error) {
		var node engine.Node
		err := f.engine.CreateInput(ctx, engine.SRTInput{
			Mode: engine.SRTListener,
			IP:   src.IP,
			Port: src.Port,
		}, engine.InputHooks{
			OnCreate: func(n engine.Node) { node = n },
			OnConnectionStatusChange: func(status engine.ConnectionStatus, sourceName string) {
				if status == engine.StatusDisconnected {
					fanout(sourceName)
				}
			},
		})
		if err != nil {
			return nil, err
		}
		if node == nil {
			return nil, fmt.Errorf("engine did not deliver srt listener node for port %d", src.Port)
		}
		return node, nil
	})
}

func (f *SourceFactory) ensureRTMPListener(ctx context.Context, src RTMP) error {
	return f.registry.Ensure(ProtocolRTMP, src.Port, func(fanout DisconnectFunc) (engine.Node, error) {
		var node engine.Node
		err := f.engine.CreateInput(ctx, engine.RTMPInput{
			Port: src.Port,
		}, engine.InputHooks{
			OnCreate: func(n engine.Node) { node = n },
			// Accept every publish; the key's source name carries
			// "<app>/<publishingName>" so per-item filters can
			// demultiplex.
			OnStream: func(app, url, streamID, name string) engine.StreamAccept {
				sourceName := app + "/" + name
				return engine.StreamAccept{
					Accept:         true,
					AudioStreamKey: engine.StreamKey{Rendition: "default", SourceName: sourceName},
					VideoStreamKey: engine.StreamKey{Rendition: "default", SourceName: sourceName},
				}
			},
			OnConnectionStatusChange: func(status engine.ConnectionStatus, sourceName string) {
				if status == engine.StatusDisconnected {
					fanout(sourceName)
				}
			},
		})
		if err != nil {
			return nil, err
		}
		if node == nil {
			return nil, fmt.Errorf("engine did not deliver rtmp listener node for port %d", src.Port)
		}
		return node, nil
	})
}

// Create produces the source for item at slotIndex. subscribe runs
// synchronously from the engine's creation hook (or immediately after
// registry lookup for shared listeners); advance is invoked whenever
// the source ends (EOF, disconnect) and reports whether the end was
// acted on; onNodeClosed observes standalone node teardown.
func (f *SourceFactory) Create(
	ctx context.Context,
	item Item,
	slotIndex int,
	subscribe func(SubscribedSource),
	advance func() bool,
	onNodeClosed func(engine.Node),
) (*CreatedSource, error) {
	nodeID := fmt.Sprintf("input-%d", slotIndex)
	filter := keyFilterFor(item.Source)

	switch src := item.Source.(type) {
	case TSFile:
		cfg := engine.TSFileInput{Path: src.Path, Begin: item.Begin}
		return f.createStandalone(ctx, item, cfg, nodeID, filter, subscribe, advance, onNodeClosed, fileHooks)

	case MP4File:
		cfg := engine.MP4FileInput{Path: src.Path, Begin: item.Begin}
		return f.createStandalone(ctx, item, cfg, nodeID, filter, subscribe, advance, onNodeClosed, mp4Hooks)

	case SRT:
		if src.Mode == engine.SRTListener {
			return f.createShared(ProtocolSRT, src.Port, item, nodeID, filter, subscribe, advance)
		}
		cfg := engine.SRTInput{Mode: engine.SRTCaller, IP: src.IP, Port: src.Port}
		return f.createStandalone(ctx, item, cfg, nodeID, filter, subscribe, advance, onNodeClosed, liveHooks)

	case RTMP:
		return f.createShared(ProtocolRTMP, src.Port, item, nodeID, filter, subscribe, advance)

	case Image:
		cfg := engine.ImageInput{Path: src.Path, Format: src.Format}
		return f.createStandalone(ctx, item, cfg, nodeID, filter, subscribe, advance, onNodeClosed, noHooks)

	case RTPSource:
		cfg := engine.RTPInput{Streams: src.Streams}
		return f.createStandalone(ctx, item, cfg, nodeID, filter, subscribe, advance, onNodeClosed, liveHooks)

	case WHIP:
		return f.createStandalone(ctx, item, engine.WHIPInput{}, nodeID, filter, subscribe, advance, onNodeClosed, liveHooks)

	default:
		return nil, fmt.Errorf("%w: %T", ErrUnknownSource, item.Source)
	}
}

// hookSet selects which end-of-source hooks a standalone node gets.
type hookSet int

const (
	noHooks hookSet = iota
	fileHooks
	mp4Hooks
	liveHooks
)

func (f *SourceFactory) createStandalone(
	ctx context.Context,
	item Item,
	cfg engine.InputConfig,
	nodeID string,
	filter KeyFilter,
	subscribe func(SubscribedSource),
	advance func() bool,
	onNodeClosed func(engine.Node),
	hooks hookSet,
) (*CreatedSource, error) {
	var (
		node      engine.Node
		closeOnce sync.Once
	)

	// Idempotent; tears the node down after the grace delay so the
	// crossfade can drain.
	closeNode := func() {
		closeOnce.Do(func() {
			time.AfterFunc(f.grace, func() {
				if err := node.Close(); err != nil {
					f.logger.Warn().Err(err).Str("node_id", nodeID).Msg("node close failed")
				}
			})
		})
	}

	duration := resolvedDuration(0, false)
	if hooks == mp4Hooks {
		duration = newDurationFuture()
	}

	engineHooks := engine.InputHooks{
		OnCreate: func(n engine.Node) {
			node = n
			subscribe(SubscribedSource{
				Node:   n,
				NodeID: nodeID,
				Kind:   item.Source.Kind(),
				Item:   item,
				Filter: filter,
				Close:  closeNode,
			})
		},
		OnClose: onNodeClosed,
	}

	switch hooks {
	case fileHooks, mp4Hooks:
		engineHooks.OnEOF = func() {
			// Unblock anyone still awaiting the duration.
			duration.resolve(0, false)
			closeNode()
			advance()
		}
		if hooks == mp4Hooks {
			engineHooks.OnInfo = func(d time.Duration) {
				duration.resolve(d, true)
			}
		}
	case liveHooks:
		engineHooks.OnConnectionStatusChange = func(status engine.ConnectionStatus, _ string) {
			if status == engine.StatusDisconnected {
				closeNode()
				advance()
			}
		}
	}

	if err := f.engine.CreateInput(ctx, cfg, engineHooks); err != nil {
		return nil, fmt.Errorf("create input %s (%s): %w", nodeID, Describe(item.Source), err)
	}
	if node == nil {
		return nil, fmt.Errorf("engine did not deliver node %s", nodeID)
	}

	f.logger.Debug().
		Str("node_id", nodeID).
		Str("source", Describe(item.Source)).
		Msg("input node created")

	return &CreatedSource{
		Node:     node,
		NodeID:   nodeID,
		Kind:     item.Source.Kind(),
		Duration: duration,
		Filter:   filter,
		Close:    closeNode,
	}, nil
}

func (f *SourceFactory) createShared(
	proto Protocol,
	port int,
	item Item,
	nodeID string,
	filter KeyFilter,
	subscribe func(SubscribedSource),
	advance func() bool,
) (*CreatedSource, error) {
	node, err := f.registry.Get(proto, port)
	if err != nil {
		return nil, err
	}

	handleID := uuid.NewString()

	var detachOnce sync.Once
	detach := func() {
		detachOnce.Do(func() {
			f.registry.Detach(proto, port, handleID)
		})
	}

	// For filtered RTMP items only the matching publisher ends the
	// item; an unfiltered handle advances on any disconnect.
	match := func(string) bool { return true }
	if r, ok := item.Source.(RTMP); ok && r.App != "" && r.Stream != "" {
		want := r.SourceName()
		match = func(sourceName string) bool { return sourceName == want }
	}

	err = f.registry.Attach(proto, port, handleID, func(sourceName string) {
		if !match(sourceName) {
			return
		}
		// Keep the subscription when the item is not current yet (a
		// prewarmed publisher may reconnect before its turn).
		if advance() {
			detach()
		}
	})
	if err != nil {
		return nil, err
	}

	// The shared node outlives the item; close only releases the
	// disconnect subscription.
	subscribe(SubscribedSource{
		Node:   node,
		NodeID: nodeID,
		Kind:   item.Source.Kind(),
		Item:   item,
		Filter: filter,
		Close:  detach,
	})

	f.logger.Debug().
		Str("node_id", nodeID).
		Str("source", Describe(item.Source)).
		Str("handle_id", handleID).
		Msg("bound to shared listener")

	return &CreatedSource{
		Node:     node,
		NodeID:   nodeID,
		Kind:     item.Source.Kind(),
		Duration: resolvedDuration(0, false),
		Filter:   filter,
		Close:    detach,
	}, nil
}
