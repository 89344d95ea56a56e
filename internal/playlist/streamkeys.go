/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package playlist

import "github.com/friendsincode/grimnir_switch/internal/engine"

// AudioStreamKeys returns the keys of all audio streams.
func AudioStreamKeys(streams []engine.Stream) []engine.StreamKey {
	return keysOf(streams, engine.MediaAudio)
}

// VideoStreamKeys returns the keys of all video streams.
func VideoStreamKeys(streams []engine.Stream) []engine.StreamKey {
	return keysOf(streams, engine.MediaVideo)
}

func keysOf(streams []engine.Stream, media engine.MediaType) []engine.StreamKey {
	var keys []engine.StreamKey
	for _, s := range streams {
		if s.Media == media {
			keys = append(keys, s.Key)
		}
	}
	return keys
}

// AVToPin returns a selector that maps a node onto pin only when both
// an audio and a video stream are present. Consumers that need
// synchronised A/V use this to avoid half-populated pins.
func AVToPin(pin string) engine.Selector {
	return func(streams []engine.Stream) map[string][]engine.StreamKey {
		audio := AudioStreamKeys(streams)
		video := VideoStreamKeys(streams)
		if len(audio) == 0 || len(video) == 0 {
			return nil
		}
		return map[string][]engine.StreamKey{
			pin: {audio[0], video[0]},
		}
	}
}

// pickStreams filters streams by an item's key filter and picks at
// most one audio and one video key.
func pickStreams(streams []engine.Stream, filter KeyFilter) (audio, video *engine.StreamKey) {
	if filter == nil {
		filter = AcceptAllKeys
	}
	for _, s := range streams {
		if !filter(s.Key) {
			continue
		}
		key := s.Key
		switch s.Media {
		case engine.MediaAudio:
			if audio == nil {
				audio = &key
			}
		case engine.MediaVideo:
			if video == nil {
				video = &key
			}
		}
	}
	return audio, video
}
