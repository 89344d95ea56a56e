/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package playlist_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/grimnir_switch/internal/engine"
	"github.com/friendsincode/grimnir_switch/internal/enginetest"
	"github.com/friendsincode/grimnir_switch/internal/events"
	"github.com/friendsincode/grimnir_switch/internal/playlist"
)

// Fast timings so scenarios complete in milliseconds.
func testOptions() playlist.Options {
	return playlist.Options{
		TransitionDuration: 30 * time.Millisecond,
		GraceDelay:         15 * time.Millisecond,
		ActivateDelay:      time.Millisecond,
		HealthInterval:     time.Hour,
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func avStreams(sourceName string) []engine.Stream {
	return []engine.Stream{
		{Key: engine.StreamKey{Program: 1, Rendition: "default", StreamID: 1, SourceName: sourceName}, Media: engine.MediaAudio},
		{Key: engine.StreamKey{Program: 1, Rendition: "default", StreamID: 2, SourceName: sourceName}, Media: engine.MediaVideo},
	}
}

func startController(t *testing.T, eng *enginetest.FakeEngine, items []playlist.Item, opts playlist.Options) (*playlist.Controller, *events.Bus, chan error) {
	t.Helper()

	bus := events.NewBus()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	ctrl, err := playlist.New(ctx, eng, items, opts, bus, nil, zerolog.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = ctrl.Close() })

	runErr := make(chan error, 1)
	go func() { runErr <- ctrl.Run(ctx) }()
	return ctrl, bus, runErr
}

func TestFileToFileAdvance(t *testing.T) {
	fake := enginetest.New()
	items := []playlist.Item{
		{Source: playlist.TSFile{Path: "a.ts"}, Duration: 80 * time.Millisecond},
		{Source: playlist.MP4File{Path: "b.mp4"}},
	}

	ctrl, _, _ := startController(t, fake, items, testOptions())
	ctrl.Start()

	waitFor(t, "first input", func() bool { return fake.Input(0) != nil })
	in0 := fake.Input(0)
	sw := fake.Switcher()

	// Streams arrive; slot 0 becomes ready and the switch fires.
	sw.DeliverStreams(in0.Node, avStreams("a.ts"))
	waitFor(t, "switch to pin 0", func() bool { return sw.LastSwitch() == "0" })

	// The duration timer (80ms - 30ms transition) advances to the mp4.
	waitFor(t, "mp4 input", func() bool { return fake.Input(1) != nil })
	in1 := fake.Input(1)
	in1.Info(120 * time.Millisecond)

	sw.DeliverStreams(in1.Node, avStreams("b.mp4"))
	waitFor(t, "switch to pin 1", func() bool { return sw.LastSwitch() == "1" })

	// The outgoing ts node is torn down after the grace delay.
	waitFor(t, "ts node closed", func() bool { return in0.Node.Closed() })

	if st := ctrl.Status(); st.Playing != 1 {
		t.Fatalf("playing = %d, want 1", st.Playing)
	}
	if got := sw.Switches(); len(got) != 2 || got[0] != "0" || got[1] != "1" {
		t.Fatalf("switch commands = %v, want [0 1]", got)
	}
}

func TestCloseIsIdempotentAcrossTimerAndEOF(t *testing.T) {
	fake := enginetest.New()
	items := []playlist.Item{
		{Source: playlist.TSFile{Path: "a.ts"}, Duration: 60 * time.Millisecond},
		{Source: playlist.TSFile{Path: "b.ts"}, Duration: 10 * time.Second},
	}

	ctrl, _, _ := startController(t, fake, items, testOptions())
	ctrl.Start()

	waitFor(t, "first input", func() bool { return fake.Input(0) != nil })
	in0 := fake.Input(0)
	sw := fake.Switcher()
	sw.DeliverStreams(in0.Node, avStreams("a.ts"))
	waitFor(t, "switch to pin 0", func() bool { return sw.LastSwitch() == "0" })

	// The duration timer fires the first close.
	waitFor(t, "item 1 current", func() bool {
		st := ctrl.Status()
		return st.Current != nil && st.Current.Index == 1
	})

	// The file then genuinely ends; its EOF hits the same close path
	// again, plus a stale end-of-source advance.
	in0.EOF()
	in0.EOF()

	waitFor(t, "ts node closed", func() bool { return in0.Node.Closed() })
	if got := in0.Node.CloseCount(); got != 1 {
		t.Fatalf("node torn down %d times, want 1", got)
	}
	if st := ctrl.Status(); st.Current == nil || st.Current.Index != 1 {
		t.Fatalf("current = %+v after stale EOF, want index 1", ctrl.Status().Current)
	}
}

func TestSubscriptionSetStableAcrossPromotion(t *testing.T) {
	fake := enginetest.New()
	items := []playlist.Item{
		{Source: playlist.RTMP{Port: 1935, App: "a", Stream: "1"}},
		{Source: playlist.RTMP{Port: 1935, App: "a", Stream: "2"}},
	}

	ctrl, _, _ := startController(t, fake, items, testOptions())
	ctrl.Start()

	listener := fake.Input(0)
	sw := fake.Switcher()
	waitFor(t, "both slots bound", func() bool {
		st := ctrl.Status()
		return st.Current != nil && st.Next != nil
	})

	before := sw.Subscriptions()
	if len(before) != 2 {
		t.Fatalf("subscriptions = %d, want 2", len(before))
	}

	// Promotion republishes the set; with the same slots bound to the
	// same shared node the set must not change or accumulate entries.
	listener.SetConnection(engine.StatusDisconnected, "a/1")
	waitFor(t, "promoted to item 1", func() bool {
		st := ctrl.Status()
		return st.Current != nil && st.Current.Index == 1
	})

	after := sw.Subscriptions()
	if len(after) != len(before) {
		t.Fatalf("subscriptions went %d -> %d across promotion", len(before), len(after))
	}
	for i, sub := range after {
		if sub.Source != listener.Node {
			t.Fatalf("subscription %d bound to %v, want the shared listener", i, sub.Source)
		}
	}
}

func TestCreateFailurePropagatesFromRun(t *testing.T) {
	fake := enginetest.New()
	rejected := errors.New("engine rejected input")
	fake.CreateErr = rejected

	items := []playlist.Item{
		{Source: playlist.TSFile{Path: "a.ts"}, Duration: time.Second},
	}

	ctrl, _, runErr := startController(t, fake, items, testOptions())
	ctrl.Start()

	select {
	case err := <-runErr:
		if !errors.Is(err, rejected) {
			t.Fatalf("Run returned %v, want wrapped creation failure", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not surface the creation failure")
	}
}

func TestManualSwitchReleasesDisplacedSlot(t *testing.T) {
	fake := enginetest.New()
	items := []playlist.Item{
		{Source: playlist.TSFile{Path: "a.ts"}, Duration: 10 * time.Second},
		{Source: playlist.TSFile{Path: "b.ts"}, Duration: 10 * time.Second},
		{Source: playlist.TSFile{Path: "c.ts"}, Duration: 10 * time.Second},
	}

	ctrl, _, _ := startController(t, fake, items, testOptions())
	ctrl.Start()

	waitFor(t, "item 0 current", func() bool {
		st := ctrl.Status()
		return st.Current != nil && st.Current.Index == 0
	})
	in0 := fake.Input(0)

	// Two manual switches push item 0 out of the prev slot; nothing
	// ended it, so the displacement itself must release the node.
	ctrl.Switch()
	waitFor(t, "item 1 current", func() bool {
		st := ctrl.Status()
		return st.Current != nil && st.Current.Index == 1
	})
	ctrl.Switch()
	waitFor(t, "item 2 current", func() bool {
		st := ctrl.Status()
		return st.Current != nil && st.Current.Index == 2
	})

	waitFor(t, "displaced node closed", func() bool { return in0.Node.Closed() })

	// The crossfade partner in prev stays open.
	if fake.Input(1).Node.Closed() {
		t.Fatal("prev slot node closed while still subscribed")
	}
}

func TestSwitchCommandRetriedAfterFailure(t *testing.T) {
	fake := enginetest.New()
	items := []playlist.Item{
		{Source: playlist.TSFile{Path: "a.ts"}, Duration: 10 * time.Second},
	}

	ctrl, _, _ := startController(t, fake, items, testOptions())
	ctrl.Start()

	waitFor(t, "first input", func() bool { return fake.Input(0) != nil })
	sw := fake.Switcher()
	sw.SwitchErr = errors.New("switcher busy")

	sw.DeliverStreams(fake.Input(0).Node, avStreams("a.ts"))

	// The first command fails; the controller forgets the claim and
	// re-issues until it lands.
	waitFor(t, "switch to pin 0", func() bool { return sw.LastSwitch() == "0" })
	waitFor(t, "playing recorded", func() bool { return ctrl.Status().Playing == 0 })
}

func TestMP4EOFAdvancesAndExhausts(t *testing.T) {
	fake := enginetest.New()
	items := []playlist.Item{
		{Source: playlist.MP4File{Path: "only.mp4"}},
	}

	ctrl, bus, runErr := startController(t, fake, items, testOptions())
	exhausted := bus.Subscribe(events.EventExhausted)
	ctrl.Start()

	waitFor(t, "mp4 input", func() bool { return fake.Input(0) != nil })
	in0 := fake.Input(0)
	in0.Info(10 * time.Second)

	sw := fake.Switcher()
	sw.DeliverStreams(in0.Node, avStreams("only.mp4"))
	waitFor(t, "switch to pin 0", func() bool { return sw.LastSwitch() == "0" })

	// The file ends early; EOF advances past the end of the playlist.
	in0.EOF()

	select {
	case <-exhausted:
	case <-time.After(2 * time.Second):
		t.Fatal("no exhausted event")
	}
	select {
	case err := <-runErr:
		if err != nil {
			t.Fatalf("Run returned %v, want nil on exhaustion", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after exhaustion")
	}
	waitFor(t, "mp4 node closed", func() bool { return in0.Node.Closed() })
}

func TestSRTListenerSharedNodeSurvivesItem(t *testing.T) {
	fake := enginetest.New()
	items := []playlist.Item{
		{Source: playlist.SRT{Mode: engine.SRTListener, Port: 9000}},
		{Source: playlist.TSFile{Path: "tail.ts"}, Duration: 10 * time.Second},
	}

	ctrl, _, _ := startController(t, fake, items, testOptions())

	// The listener is created up front, before playback starts.
	if fake.Input(0) == nil {
		t.Fatal("listener not pre-created")
	}
	listener := fake.Input(0)

	ctrl.Start()
	sw := fake.Switcher()
	waitFor(t, "listener subscription", func() bool { return len(sw.Subscriptions()) > 0 })

	sw.DeliverStreams(listener.Node, avStreams("caller-1"))
	waitFor(t, "switch to pin 0", func() bool { return sw.LastSwitch() == "0" })

	// Publisher disconnect ends the item but the listener socket
	// stays open.
	listener.SetConnection(engine.StatusDisconnected, "caller-1")

	waitFor(t, "ts input", func() bool { return fake.Input(1) != nil })
	in1 := fake.Input(1)
	sw.DeliverStreams(in1.Node, avStreams("tail.ts"))
	waitFor(t, "switch to pin 1", func() bool { return sw.LastSwitch() == "1" })

	if listener.Node.Closed() {
		t.Fatal("shared listener node was closed by item teardown")
	}
}

func TestRTMPSharedPortFilteredAdvance(t *testing.T) {
	fake := enginetest.New()
	items := []playlist.Item{
		{Source: playlist.RTMP{Port: 1935, App: "a", Stream: "1"}},
		{Source: playlist.RTMP{Port: 1935, App: "a", Stream: "2"}},
	}

	ctrl, _, _ := startController(t, fake, items, testOptions())
	ctrl.Start()

	sw := fake.Switcher()
	listener := fake.Input(0)
	if listener == nil {
		t.Fatal("rtmp listener not pre-created")
	}

	waitFor(t, "current slot bound", func() bool { return ctrl.Status().Current != nil })
	// Item 1 is live, so it is prewarmed into the next slot without a
	// second engine input.
	waitFor(t, "prewarmed next slot", func() bool { return ctrl.Status().Next != nil })
	if got := len(fake.Inputs()); got != 1 {
		t.Fatalf("inputs = %d, want 1 shared listener", got)
	}

	sw.DeliverStreams(listener.Node, avStreams("a/1"))
	waitFor(t, "switch to pin 0", func() bool { return sw.LastSwitch() == "0" })

	// A disconnect of the *next* item's publisher must not advance.
	listener.SetConnection(engine.StatusDisconnected, "a/2")
	time.Sleep(20 * time.Millisecond)
	if st := ctrl.Status(); st.Playing != 0 {
		t.Fatalf("playing = %d after unrelated disconnect, want 0", st.Playing)
	}

	// The current publisher disconnecting promotes the prewarmed slot.
	listener.SetConnection(engine.StatusDisconnected, "a/1")
	waitFor(t, "promoted to item 1", func() bool {
		st := ctrl.Status()
		return st.Current != nil && st.Current.Index == 1
	})

	sw.DeliverStreams(listener.Node, avStreams("a/2"))
	waitFor(t, "switch to pin 1", func() bool { return sw.LastSwitch() == "1" })

	if got := len(fake.Inputs()); got != 1 {
		t.Fatalf("inputs = %d after both items, want 1", got)
	}
	if listener.Node.Closed() {
		t.Fatal("shared rtmp listener was closed")
	}
}

func TestImageSourceGetsSilence(t *testing.T) {
	fake := enginetest.New()
	items := []playlist.Item{
		{Source: playlist.Image{Path: "slate.png", Format: "png"}, Duration: 10 * time.Second},
	}

	ctrl, _, _ := startController(t, fake, items, testOptions())
	ctrl.Start()

	waitFor(t, "image input", func() bool { return fake.Input(0) != nil })
	in0 := fake.Input(0)
	sw := fake.Switcher()

	// Video-only sources pair with the silence generator on the same
	// pin.
	waitFor(t, "two subscriptions", func() bool { return len(sw.Subscriptions()) == 2 })

	silence := fake.Silence()
	found := false
	for _, sub := range sw.Subscriptions() {
		if sub.Source == silence {
			found = true
		}
	}
	if !found {
		t.Fatal("no subscription bound to the silence node")
	}

	videoOnly := []engine.Stream{
		{Key: engine.StreamKey{Program: 1, Rendition: "default", StreamID: 2, SourceName: "slate.png"}, Media: engine.MediaVideo},
	}
	sw.DeliverStreams(in0.Node, videoOnly)
	waitFor(t, "switch to pin 0", func() bool { return sw.LastSwitch() == "0" })

	silenceKeys := []engine.Stream{
		{Key: engine.StreamKey{Program: 1, Rendition: "silence", StreamID: 3, SourceName: "silence"}, Media: engine.MediaAudio},
	}
	merged := sw.DeliverStreams(silence, silenceKeys)
	if len(merged["0"]) != 1 {
		t.Fatalf("silence selector mapped %d keys to pin 0, want 1", len(merged["0"]))
	}

	if st := ctrl.Status(); st.Current == nil || !st.Current.Ready {
		t.Fatal("video-only source should be ready without audio")
	}
}

func TestManualSwitchCancelsDurationTimer(t *testing.T) {
	fake := enginetest.New()
	items := []playlist.Item{
		{Source: playlist.TSFile{Path: "a.ts"}, Duration: 100 * time.Millisecond},
		{Source: playlist.TSFile{Path: "b.ts"}, Duration: 10 * time.Second},
		{Source: playlist.TSFile{Path: "c.ts"}, Duration: 10 * time.Second},
	}

	ctrl, _, _ := startController(t, fake, items, testOptions())
	ctrl.Start()

	waitFor(t, "first input", func() bool { return fake.Input(0) != nil })
	sw := fake.Switcher()
	sw.DeliverStreams(fake.Input(0).Node, avStreams("a.ts"))
	waitFor(t, "switch to pin 0", func() bool { return sw.LastSwitch() == "0" })

	// Skip ahead before the 100ms timer fires.
	ctrl.Switch()
	waitFor(t, "item 1 current", func() bool {
		st := ctrl.Status()
		return st.Current != nil && st.Current.Index == 1
	})

	// The stale item-0 timer must not fire a second advance.
	time.Sleep(150 * time.Millisecond)
	if st := ctrl.Status(); st.Current == nil || st.Current.Index != 1 {
		t.Fatalf("current = %+v after stale timer window, want index 1", ctrl.Status().Current)
	}
}

func TestDoubleManualSwitchAdvancesTwice(t *testing.T) {
	fake := enginetest.New()
	items := []playlist.Item{
		{Source: playlist.TSFile{Path: "a.ts"}, Duration: 10 * time.Second},
		{Source: playlist.TSFile{Path: "b.ts"}, Duration: 10 * time.Second},
		{Source: playlist.TSFile{Path: "c.ts"}, Duration: 10 * time.Second},
	}

	ctrl, _, _ := startController(t, fake, items, testOptions())
	ctrl.Start()
	waitFor(t, "item 0 current", func() bool {
		st := ctrl.Status()
		return st.Current != nil && st.Current.Index == 0
	})

	ctrl.Switch()
	ctrl.Switch()

	waitFor(t, "item 2 current", func() bool {
		st := ctrl.Status()
		return st.Current != nil && st.Current.Index == 2
	})
}

func TestDurationShorterThanTransition(t *testing.T) {
	fake := enginetest.New()
	items := []playlist.Item{
		{Source: playlist.TSFile{Path: "blip.ts"}, Duration: 10 * time.Millisecond},
		{Source: playlist.TSFile{Path: "b.ts"}, Duration: 10 * time.Second},
	}

	ctrl, _, _ := startController(t, fake, items, testOptions())
	ctrl.Start()

	// 10ms < 30ms transition clamps the timer to zero; the advance is
	// immediate.
	waitFor(t, "item 1 current", func() bool {
		st := ctrl.Status()
		return st.Current != nil && st.Current.Index == 1
	})
}

func TestNowPlayingAndSwitchedEvents(t *testing.T) {
	fake := enginetest.New()
	items := []playlist.Item{
		{Source: playlist.TSFile{Path: "a.ts"}, Duration: 10 * time.Second},
	}

	ctrl, bus, _ := startController(t, fake, items, testOptions())
	nowPlaying := bus.Subscribe(events.EventNowPlaying)
	ready := bus.Subscribe(events.EventSourceReady)
	switched := bus.Subscribe(events.EventSwitched)
	ctrl.Start()

	select {
	case p := <-nowPlaying:
		if p["index"] != 0 {
			t.Fatalf("now_playing index = %v, want 0", p["index"])
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no now_playing event")
	}

	sw := fake.Switcher()
	sw.DeliverStreams(fake.Input(0).Node, avStreams("a.ts"))

	select {
	case <-ready:
	case <-time.After(2 * time.Second):
		t.Fatal("no source_ready event")
	}
	select {
	case p := <-switched:
		if p["pin"] != "0" {
			t.Fatalf("switched pin = %v, want 0", p["pin"])
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no switched event")
	}
}

func TestOutputKeysFixed(t *testing.T) {
	fake := enginetest.New()
	items := []playlist.Item{
		{Source: playlist.TSFile{Path: "a.ts"}, Duration: time.Second},
	}

	ctrl, _, _ := startController(t, fake, items, testOptions())

	if got := ctrl.Video().Key(); got != playlist.VideoOutputKey {
		t.Fatalf("video key = %+v", got)
	}
	if got := ctrl.Audio().Key(); got != playlist.AudioOutputKey {
		t.Fatalf("audio key = %+v", got)
	}
	if playlist.VideoOutputKey.StreamID != 256 || playlist.AudioOutputKey.StreamID != 257 {
		t.Fatal("output stream ids drifted")
	}
}
