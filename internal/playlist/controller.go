/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package playlist

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/grimnir_switch/internal/engine"
	"github.com/friendsincode/grimnir_switch/internal/events"
	"github.com/friendsincode/grimnir_switch/internal/telemetry"
)

// Output stream keys downstream consumers subscribe to.
var (
	VideoOutputKey = engine.StreamKey{Program: 1, Rendition: "video", StreamID: 256, SourceName: "input"}
	AudioOutputKey = engine.StreamKey{Program: 1, Rendition: "audio", StreamID: 257, SourceName: "input"}
)

// Options configures a controller.
type Options struct {
	// TransitionDuration is the crossfade length. Default 300ms.
	TransitionDuration time.Duration

	// Switcher output format. Defaults 640x480, 48kHz stereo.
	OutputWidth  int
	OutputHeight int
	SampleRate   int
	Channels     int

	// GraceDelay separates a close request from node teardown so the
	// crossfade can drain. Default 1s.
	GraceDelay time.Duration

	// ActivateDelay separates subscription refresh from the switch
	// command so the target pin exists before the crossfade starts.
	// Default 10ms.
	ActivateDelay time.Duration

	// HealthInterval is the period of health snapshot events.
	// Default 2s.
	HealthInterval time.Duration
}

func (o *Options) withDefaults() {
	if o.TransitionDuration <= 0 {
		o.TransitionDuration = 300 * time.Millisecond
	}
	if o.OutputWidth <= 0 {
		o.OutputWidth = 640
	}
	if o.OutputHeight <= 0 {
		o.OutputHeight = 480
	}
	if o.SampleRate <= 0 {
		o.SampleRate = 48000
	}
	if o.Channels <= 0 {
		o.Channels = 2
	}
	if o.GraceDelay <= 0 {
		o.GraceDelay = time.Second
	}
	if o.ActivateDelay <= 0 {
		o.ActivateDelay = 10 * time.Millisecond
	}
	if o.HealthInterval <= 0 {
		o.HealthInterval = 2 * time.Second
	}
}

type slotName string

const (
	slotCurrent slotName = "current"
	slotNext    slotName = "next"
)

// playingItem is the controller's state for one occupied slot.
type playingItem struct {
	item        Item
	index       int
	ready       bool
	hasDuration bool
	duration    time.Duration
	closeNode   func()
	sub         *engine.PinSubscription
	silenceSub  *engine.PinSubscription
}

// Controller is the playlist state machine. It holds three slots
// (prev, current, next), advances them on update, wires sources into
// the switcher, and commands the crossfade once the incoming source is
// ready.
//
// All advances are serialised through a single goroutine (Run); engine
// callbacks post advance requests instead of mutating slots directly.
type Controller struct {
	items   []Item
	opts    Options
	bus     *events.Bus
	metrics *telemetry.Metrics
	logger  zerolog.Logger

	binding  *SwitcherBinding
	registry *ListenerRegistry
	factory  *SourceFactory

	switcher      engine.Switcher
	silenceSignal engine.Node
	silence       engine.Node
	videoOut      engine.OutputNode
	audioOut      engine.OutputNode

	advanceCh chan struct{}
	closed    chan struct{}
	closeOnce sync.Once

	mu          sync.Mutex
	sourceIndex int
	playing     int
	prev        *playingItem
	current     *playingItem
	next        *playingItem
	timer       *time.Timer
	timerGen    uint64
	exhausted   bool
}

// New builds the controller's fixed node graph (switcher, silence
// chain, output overrides) and pre-creates every shared listener the
// playlist needs. It must complete before Start.
func New(ctx context.Context, eng engine.Engine, items []Item, opts Options, bus *events.Bus, metrics *telemetry.Metrics, logger zerolog.Logger) (*Controller, error) {
	opts.withDefaults()

	if bus == nil {
		bus = events.NewBus()
	}

	c := &Controller{
		items:     items,
		opts:      opts,
		bus:       bus,
		metrics:   metrics,
		logger:    logger.With().Str("component", "playlist").Logger(),
		advanceCh: make(chan struct{}, 16),
		closed:    make(chan struct{}),
		playing:   -1,
	}

	sw, err := eng.NewSmoothSwitcher(ctx, engine.SwitcherConfig{
		TransitionDuration: opts.TransitionDuration,
		Width:              opts.OutputWidth,
		Height:             opts.OutputHeight,
		SampleRate:         opts.SampleRate,
		Channels:           opts.Channels,
	})
	if err != nil {
		return nil, fmt.Errorf("create smooth switcher: %w", err)
	}
	c.switcher = sw
	c.binding = NewSwitcherBinding(sw, c.logger)

	c.silenceSignal, err = eng.NewAudioSignal(ctx, engine.AudioSignalConfig{
		Channels:   opts.Channels,
		SampleRate: opts.SampleRate,
	})
	if err != nil {
		return nil, fmt.Errorf("create audio signal: %w", err)
	}

	c.silence, err = eng.NewAudioGain(ctx, engine.AudioGainConfig{
		Source: c.silenceSignal,
		Gains:  make([]float64, opts.Channels),
	})
	if err != nil {
		return nil, fmt.Errorf("create silence gain: %w", err)
	}

	c.videoOut, err = eng.NewStreamKeyOverride(ctx, engine.StreamKeyOverrideConfig{
		Source: sw,
		Key:    VideoOutputKey,
	})
	if err != nil {
		return nil, fmt.Errorf("create video output: %w", err)
	}

	c.audioOut, err = eng.NewStreamKeyOverride(ctx, engine.StreamKeyOverrideConfig{
		Source: sw,
		Key:    AudioOutputKey,
	})
	if err != nil {
		return nil, fmt.Errorf("create audio output: %w", err)
	}

	c.registry = NewListenerRegistry(c.logger)
	c.factory = NewSourceFactory(eng, c.registry, opts.GraceDelay, c.logger)

	if err := c.factory.PrecreateListeners(ctx, items); err != nil {
		return nil, err
	}
	metrics.SetListenerNodes(c.registry.Count())

	return c, nil
}

// Video returns the output handle carrying the relabelled video
// stream.
func (c *Controller) Video() engine.OutputNode { return c.videoOut }

// Audio returns the output handle carrying the relabelled audio
// stream.
func (c *Controller) Audio() engine.OutputNode { return c.audioOut }

// Start begins playback from item 0.
func (c *Controller) Start() { c.requestAdvance() }

// Switch manually advances to the next item.
func (c *Controller) Switch() { c.requestAdvance() }

func (c *Controller) requestAdvance() {
	select {
	case <-c.closed:
	case c.advanceCh <- struct{}{}:
	default:
		c.logger.Warn().Msg("advance queue full, request dropped")
	}
}

// Run drains advance requests until the playlist is exhausted or ctx
// is cancelled. It returns nil on exhaustion.
func (c *Controller) Run(ctx context.Context) error {
	health := time.NewTicker(c.opts.HealthInterval)
	defer health.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.closed:
			return nil
		case <-health.C:
			c.publishHealth()
		case <-c.advanceCh:
			if err := c.update(ctx); err != nil {
				if errors.Is(err, ErrPlaylistExhausted) {
					return nil
				}
				return err
			}
		}
	}
}

// update advances the slots by one item. It runs only on the Run
// goroutine.
func (c *Controller) update(ctx context.Context) error {
	c.mu.Lock()
	// The pending timer belongs to the outgoing item.
	c.timerGen++
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}

	idx := c.sourceIndex
	if idx >= len(c.items) {
		c.exhausted = true
		c.mu.Unlock()
		c.logger.Info().Int("items", len(c.items)).Msg("playlist exhausted")
		c.bus.Publish(events.EventExhausted, events.Payload{"items": len(c.items)})
		return ErrPlaylistExhausted
	}
	c.sourceIndex++

	displaced := c.prev
	c.prev = c.current
	c.current = nil

	promoted := c.next
	if promoted != nil {
		c.current = promoted
		c.next = nil
	}
	item := c.items[idx]
	c.mu.Unlock()

	// A slot pushed out of prev is done crossfading; release its node
	// or shared-listener handle even when nothing ended it (manual
	// switches skip the EOF/disconnect paths).
	if displaced != nil && displaced.closeNode != nil {
		displaced.closeNode()
	}

	c.metrics.IncAdvances()
	c.logger.Info().
		Int("index", idx).
		Str("source", Describe(item.Source)).
		Bool("prewarmed", promoted != nil).
		Msg("advancing playlist")

	if promoted != nil {
		c.refreshSubs()
		c.refreshActive()
		c.scheduleDurationTimer(promoted)
	} else {
		created, err := c.factory.Create(ctx, item, idx,
			c.subscribeToNode(idx, slotCurrent),
			c.advanceForIndex(idx),
			c.handleNodeClosed,
		)
		if err != nil {
			c.metrics.IncSourceFailures()
			return err
		}
		c.metrics.IncSourcesCreated(item.Source.Type())

		d, ok := item.Duration, item.Duration > 0
		if !ok {
			d, ok, err = created.Duration.Wait(ctx)
			if err != nil {
				return err
			}
		}

		c.mu.Lock()
		cur := c.current
		if cur != nil && cur.index == idx {
			cur.duration = d
			cur.hasDuration = ok
			cur.closeNode = created.Close
		}
		c.mu.Unlock()

		if cur != nil {
			c.scheduleDurationTimer(cur)
		}
	}

	c.bus.Publish(events.EventNowPlaying, events.Payload{
		"index":       idx,
		"source":      Describe(item.Source),
		"source_type": item.Source.Type(),
		"live":        item.Source.IsLive(),
		"duration_ms": item.Duration.Milliseconds(),
	})

	return c.prewarmNext(ctx)
}

// prewarmNext creates the following item's node ahead of time when it
// is a live source, so the later switch is instant.
func (c *Controller) prewarmNext(ctx context.Context) error {
	c.mu.Lock()
	nextIdx := c.sourceIndex
	already := c.next != nil
	c.mu.Unlock()

	if already || nextIdx >= len(c.items) || !c.items[nextIdx].Source.IsLive() {
		return nil
	}
	item := c.items[nextIdx]

	created, err := c.factory.Create(ctx, item, nextIdx,
		c.subscribeToNode(nextIdx, slotNext),
		c.advanceForIndex(nextIdx),
		c.handleNodeClosed,
	)
	if err != nil {
		c.metrics.IncSourceFailures()
		return fmt.Errorf("prewarm item %d: %w", nextIdx, err)
	}
	c.metrics.IncSourcesCreated(item.Source.Type())

	d, ok := item.Duration, item.Duration > 0
	if !ok {
		// Live sources resolve immediately, so this never stalls the
		// loop for long.
		d, ok, err = created.Duration.Wait(ctx)
		if err != nil {
			return err
		}
	}

	c.mu.Lock()
	if c.next != nil && c.next.index == nextIdx {
		c.next.duration = d
		c.next.hasDuration = ok
		c.next.closeNode = created.Close
	}
	c.mu.Unlock()

	c.logger.Debug().Int("index", nextIdx).Str("source", Describe(item.Source)).Msg("prewarmed next source")
	return nil
}

// subscribeToNode returns the factory callback that installs a fresh
// slot entry and its switcher subscriptions the moment the node is
// addressable.
func (c *Controller) subscribeToNode(index int, slot slotName) func(SubscribedSource) {
	return func(ss SubscribedSource) {
		pi := &playingItem{
			item:      ss.Item,
			index:     index,
			closeNode: ss.Close,
		}
		pin := strconv.Itoa(index)

		pi.sub = &engine.PinSubscription{
			Source:   ss.Node,
			Selector: c.slotSelector(pi, pin, ss.Kind, ss.Filter),
		}

		if ss.Kind == KindVideo {
			// Feed silent audio onto the same pin so the switcher
			// always receives A+V.
			pi.silenceSub = &engine.PinSubscription{
				Source: c.silence,
				Selector: func(streams []engine.Stream) map[string][]engine.StreamKey {
					keys := AudioStreamKeys(streams)
					if len(keys) == 0 {
						return nil
					}
					return map[string][]engine.StreamKey{pin: {keys[0]}}
				},
			}
		}

		c.mu.Lock()
		switch slot {
		case slotCurrent:
			c.current = pi
		case slotNext:
			c.next = pi
		}
		c.mu.Unlock()

		c.refreshSubs()
	}
}

// slotSelector builds the stream selector for one slot. A pin mapping
// is published as soon as any stream is present so the downstream
// synchroniser can assemble; readiness additionally requires video,
// and audio for av sources.
func (c *Controller) slotSelector(pi *playingItem, pin string, kind Kind, filter KeyFilter) engine.Selector {
	return func(streams []engine.Stream) map[string][]engine.StreamKey {
		audio, video := pickStreams(streams, filter)

		ready := (kind == KindVideo || audio != nil) && video != nil
		c.setReady(pi, ready)

		var keys []engine.StreamKey
		if audio != nil {
			keys = append(keys, *audio)
		}
		if video != nil {
			keys = append(keys, *video)
		}
		if len(keys) == 0 {
			return nil
		}
		return map[string][]engine.StreamKey{pin: keys}
	}
}

func (c *Controller) setReady(pi *playingItem, ready bool) {
	c.mu.Lock()
	changed := pi.ready != ready
	pi.ready = ready
	c.mu.Unlock()

	if !changed {
		return
	}
	if ready {
		c.bus.Publish(events.EventSourceReady, events.Payload{
			"index":  pi.index,
			"source": Describe(pi.item.Source),
		})
	}
	c.refreshActive()
}

// advanceForIndex returns the end-of-source callback for an item. It
// accepts the advance only while that item occupies the current slot,
// so a disconnect of a prewarmed or stale source has no effect.
func (c *Controller) advanceForIndex(index int) func() bool {
	return func() bool {
		c.mu.Lock()
		isCurrent := c.current != nil && c.current.index == index
		c.mu.Unlock()
		if !isCurrent {
			return false
		}
		c.requestAdvance()
		return true
	}
}

// refreshSubs republishes the complete pin subscription set across all
// occupied slots. This is the single point that tells the switcher
// which sources it may crossfade between.
func (c *Controller) refreshSubs() {
	c.mu.Lock()
	var subs []engine.PinSubscription
	for _, pi := range []*playingItem{c.prev, c.current, c.next} {
		if pi == nil {
			continue
		}
		if pi.sub != nil {
			subs = append(subs, *pi.sub)
		}
		if pi.silenceSub != nil {
			subs = append(subs, *pi.silenceSub)
		}
	}
	c.mu.Unlock()

	if err := c.binding.Subscribe(subs); err != nil {
		c.logger.Error().Err(err).Msg("failed to refresh pin subscriptions")
	}
}

// refreshActive decides which pin should be active and commands the
// crossfade once the chosen slot is ready.
func (c *Controller) refreshActive() {
	c.mu.Lock()
	var target *playingItem
	switch {
	case c.current != nil && c.current.ready && c.playing != c.current.index:
		target = c.current
	case c.playing < 0 && c.prev != nil && c.prev.ready:
		// Nothing was ever active; fall back to the previous source.
		target = c.prev
	}
	if target == nil {
		c.mu.Unlock()
		return
	}
	c.playing = target.index
	index := target.index
	c.mu.Unlock()

	pin := strconv.Itoa(index)
	// Give refreshSubs time to land so the pin exists in the
	// switcher's subscription set.
	time.AfterFunc(c.opts.ActivateDelay, func() {
		if err := c.binding.SwitchTo(pin); err != nil {
			c.logger.Error().Err(err).Str("pin", pin).Msg("switch command failed")
			// Forget the claim so the slot stays eligible and the
			// command is re-issued.
			c.mu.Lock()
			if c.playing == index {
				c.playing = -1
			}
			c.mu.Unlock()
			c.refreshActive()
			return
		}
		c.metrics.IncSwitchCommands()
		c.metrics.SetActivePin(index)
		c.bus.Publish(events.EventSwitched, events.Payload{"pin": pin, "index": index})
	})
}

// scheduleDurationTimer arms the advance timer for a bounded item. The
// timer fires transitionDuration early so the crossfade completes at
// the item boundary, then releases the outgoing node.
func (c *Controller) scheduleDurationTimer(pi *playingItem) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !pi.hasDuration {
		return
	}

	delay := pi.duration - c.opts.TransitionDuration
	if delay < 0 {
		delay = 0
	}

	gen := c.timerGen
	c.timer = time.AfterFunc(delay, func() {
		c.mu.Lock()
		if gen != c.timerGen {
			// A manual switch or another advance superseded this
			// timer.
			c.mu.Unlock()
			return
		}
		closeFn := pi.closeNode
		c.mu.Unlock()

		c.requestAdvance()
		if closeFn != nil {
			closeFn()
		}
	})
}

// handleNodeClosed clears prev once its underlying node is gone.
// Current-slot closures are handled by the EOF and timer paths.
func (c *Controller) handleNodeClosed(node engine.Node) {
	c.mu.Lock()
	cleared := false
	if c.prev != nil && c.prev.sub != nil && c.prev.sub.Source == node {
		c.prev = nil
		cleared = true
	}
	c.mu.Unlock()

	if cleared {
		c.refreshSubs()
	}
}

func (c *Controller) publishHealth() {
	st := c.Status()
	payload := events.Payload{
		"playing":   st.Playing,
		"items":     st.Items,
		"exhausted": st.Exhausted,
	}
	if st.Current != nil {
		payload["current_index"] = st.Current.Index
		payload["current_ready"] = st.Current.Ready
	}
	if st.Next != nil {
		payload["next_index"] = st.Next.Index
	}
	c.bus.Publish(events.EventHealth, payload)
}

// SlotStatus describes one occupied slot.
type SlotStatus struct {
	Index      int    `json:"index"`
	Source     string `json:"source"`
	Ready      bool   `json:"ready"`
	DurationMs int64  `json:"duration_ms,omitempty"`
}

// Status is a point-in-time controller snapshot.
type Status struct {
	Playing   int         `json:"playing"`
	Items     int         `json:"items"`
	Exhausted bool        `json:"exhausted"`
	Prev      *SlotStatus `json:"prev,omitempty"`
	Current   *SlotStatus `json:"current,omitempty"`
	Next      *SlotStatus `json:"next,omitempty"`
}

// Status returns a snapshot of the controller state.
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()

	st := Status{
		Playing:   c.playing,
		Items:     len(c.items),
		Exhausted: c.exhausted,
	}
	st.Prev = slotStatus(c.prev)
	st.Current = slotStatus(c.current)
	st.Next = slotStatus(c.next)
	return st
}

func slotStatus(pi *playingItem) *SlotStatus {
	if pi == nil {
		return nil
	}
	s := &SlotStatus{
		Index:  pi.index,
		Source: Describe(pi.item.Source),
		Ready:  pi.ready,
	}
	if pi.hasDuration {
		s.DurationMs = pi.duration.Milliseconds()
	}
	return s
}

// Close tears down every slot, the shared listeners, and the
// controller-owned node graph. Safe to call more than once.
func (c *Controller) Close() error {
	var firstErr error
	c.closeOnce.Do(func() {
		close(c.closed)

		c.mu.Lock()
		c.timerGen++
		if c.timer != nil {
			c.timer.Stop()
			c.timer = nil
		}
		var closers []func()
		for _, pi := range []*playingItem{c.prev, c.current, c.next} {
			if pi != nil && pi.closeNode != nil {
				closers = append(closers, pi.closeNode)
			}
		}
		c.prev, c.current, c.next = nil, nil, nil
		c.mu.Unlock()

		for _, closeFn := range closers {
			closeFn()
		}

		if err := c.registry.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		for _, node := range []engine.Node{c.silence, c.silenceSignal, c.videoOut, c.audioOut, c.switcher} {
			if node == nil {
				continue
			}
			if err := node.Close(); err != nil && firstErr == nil {
				firstErr = err
			}
		}

		c.logger.Info().Msg("controller closed")
	})
	return firstErr
}
