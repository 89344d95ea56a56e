/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package playlist

import "errors"

var (
	// ErrNoListener indicates an item references a listener-mode SRT
	// or RTMP port for which no shared listener was pre-created.
	ErrNoListener = errors.New("no listener registered for port")

	// ErrUnknownSource indicates an unhandled source variant.
	ErrUnknownSource = errors.New("unknown source type")

	// ErrPlaylistExhausted indicates an advance past the last item.
	ErrPlaylistExhausted = errors.New("playlist exhausted")

	// ErrControllerClosed indicates an operation on a closed
	// controller.
	ErrControllerClosed = errors.New("controller closed")
)
