/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package playlist

import (
	"context"
	"sync"
	"time"
)

// DurationFuture resolves once with an optional duration. MP4 items
// resolve when the engine reports the natural duration; every other
// source type resolves immediately with no value.
type DurationFuture struct {
	once sync.Once
	done chan struct{}
	d    time.Duration
	ok   bool
}

func newDurationFuture() *DurationFuture {
	return &DurationFuture{done: make(chan struct{})}
}

func resolvedDuration(d time.Duration, ok bool) *DurationFuture {
	f := newDurationFuture()
	f.resolve(d, ok)
	return f
}

func (f *DurationFuture) resolve(d time.Duration, ok bool) {
	f.once.Do(func() {
		f.d = d
		f.ok = ok
		close(f.done)
	})
}

// Wait blocks until the future resolves or ctx is cancelled.
func (f *DurationFuture) Wait(ctx context.Context) (time.Duration, bool, error) {
	select {
	case <-f.done:
		return f.d, f.ok, nil
	case <-ctx.Done():
		return 0, false, ctx.Err()
	}
}
