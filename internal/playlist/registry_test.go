/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package playlist

import (
	"errors"
	"testing"

	"github.com/rs/zerolog"

	"github.com/friendsincode/grimnir_switch/internal/engine"
)

type stubNode struct{ closed bool }

func (n *stubNode) Close() error {
	n.closed = true
	return nil
}

func TestRegistryEnsureIsIdempotent(t *testing.T) {
	r := NewListenerRegistry(zerolog.Nop())

	creates := 0
	create := func(DisconnectFunc) (engine.Node, error) {
		creates++
		return &stubNode{}, nil
	}

	if err := r.Ensure(ProtocolSRT, 9000, create); err != nil {
		t.Fatalf("Ensure: %v", err)
	}
	if err := r.Ensure(ProtocolSRT, 9000, create); err != nil {
		t.Fatalf("Ensure: %v", err)
	}
	if creates != 1 {
		t.Fatalf("create called %d times, want 1", creates)
	}
	if r.Count() != 1 {
		t.Fatalf("Count = %d, want 1", r.Count())
	}

	// Same port, different protocol is a distinct listener.
	if err := r.Ensure(ProtocolRTMP, 9000, create); err != nil {
		t.Fatalf("Ensure: %v", err)
	}
	if r.Count() != 2 {
		t.Fatalf("Count = %d, want 2", r.Count())
	}
}

func TestRegistryGetMissing(t *testing.T) {
	r := NewListenerRegistry(zerolog.Nop())
	if _, err := r.Get(ProtocolRTMP, 1935); !errors.Is(err, ErrNoListener) {
		t.Fatalf("Get error = %v, want ErrNoListener", err)
	}
}

func TestRegistryDispatchFansOut(t *testing.T) {
	r := NewListenerRegistry(zerolog.Nop())

	var fanout DisconnectFunc
	err := r.Ensure(ProtocolRTMP, 1935, func(f DisconnectFunc) (engine.Node, error) {
		fanout = f
		return &stubNode{}, nil
	})
	if err != nil {
		t.Fatalf("Ensure: %v", err)
	}

	var got []string
	if err := r.Attach(ProtocolRTMP, 1935, "h1", func(name string) { got = append(got, "h1:"+name) }); err != nil {
		t.Fatalf("Attach: %v", err)
	}
	if err := r.Attach(ProtocolRTMP, 1935, "h2", func(name string) { got = append(got, "h2:"+name) }); err != nil {
		t.Fatalf("Attach: %v", err)
	}

	fanout("a/1")
	if len(got) != 2 {
		t.Fatalf("dispatched to %d handles, want 2", len(got))
	}

	r.Detach(ProtocolRTMP, 1935, "h1")
	got = nil
	fanout("a/1")
	if len(got) != 1 || got[0] != "h2:a/1" {
		t.Fatalf("after detach got %v", got)
	}
	if r.HandleCount(ProtocolRTMP, 1935) != 1 {
		t.Fatalf("HandleCount = %d, want 1", r.HandleCount(ProtocolRTMP, 1935))
	}
}

func TestRegistryCloseClosesNodes(t *testing.T) {
	r := NewListenerRegistry(zerolog.Nop())

	node := &stubNode{}
	err := r.Ensure(ProtocolSRT, 9000, func(DisconnectFunc) (engine.Node, error) {
		return node, nil
	})
	if err != nil {
		t.Fatalf("Ensure: %v", err)
	}

	if err := r.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if !node.closed {
		t.Fatal("listener node not closed")
	}

	// Registry is unusable afterwards.
	if err := r.Ensure(ProtocolSRT, 9001, func(DisconnectFunc) (engine.Node, error) {
		return &stubNode{}, nil
	}); !errors.Is(err, ErrControllerClosed) {
		t.Fatalf("Ensure after close = %v, want ErrControllerClosed", err)
	}
}
