/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package playlist

import (
	"context"
	"testing"
	"time"
)

func TestDurationFutureResolveOnce(t *testing.T) {
	f := newDurationFuture()
	f.resolve(5*time.Second, true)
	f.resolve(9*time.Second, true) // ignored

	d, ok, err := f.Wait(context.Background())
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if !ok || d != 5*time.Second {
		t.Fatalf("got (%v, %v), want (5s, true)", d, ok)
	}
}

func TestDurationFutureWaitCancelled(t *testing.T) {
	f := newDurationFuture()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, _, err := f.Wait(ctx); err == nil {
		t.Fatal("Wait returned nil error on cancelled context")
	}
}

func TestResolvedDuration(t *testing.T) {
	f := resolvedDuration(0, false)
	d, ok, err := f.Wait(context.Background())
	if err != nil || ok || d != 0 {
		t.Fatalf("got (%v, %v, %v), want (0, false, nil)", d, ok, err)
	}
}
