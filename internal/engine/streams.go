/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package engine

import "fmt"

// MediaType distinguishes audio and video streams.
type MediaType string

const (
	MediaAudio MediaType = "audio"
	MediaVideo MediaType = "video"
)

// StreamKey identifies one logical stream inside a node's output.
type StreamKey struct {
	Program    int    `json:"program"`
	Rendition  string `json:"rendition"`
	StreamID   int    `json:"stream_id"`
	SourceName string `json:"source_name"`
}

func (k StreamKey) String() string {
	return fmt.Sprintf("%d/%s/%d/%s", k.Program, k.Rendition, k.StreamID, k.SourceName)
}

// Stream is one entry of a node's stream metadata.
type Stream struct {
	Key   StreamKey
	Media MediaType
}

// Selector maps a node's current stream metadata to switcher pins.
// The engine re-invokes it whenever the node's stream set changes; a
// nil return means the node contributes no pins yet.
type Selector func(streams []Stream) map[string][]StreamKey

// PinSubscription binds one source node to the smooth switcher through
// a selector.
type PinSubscription struct {
	Source   Node
	Selector Selector
}
