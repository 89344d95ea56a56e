/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package playlist

import (
	"strings"
	"testing"
	"time"

	"github.com/friendsincode/grimnir_switch/internal/engine"
)

const samplePlaylist = `
transition_ms: 250
items:
  - duration_ms: 4700
    source:
      type: ts
      path: /media/a.ts
  - source:
      type: mp4
      path: /media/b.mp4
    begin_ms: 1500
  - source:
      type: srt
      mode: listener
      port: 9000
  - source:
      type: srt
      mode: caller
      ip: 203.0.113.7
      port: 9001
  - source:
      type: rtmp
      port: 1935
      app: live
      stream: main
  - duration_ms: 3000
    source:
      type: image
      path: /media/slate.png
      format: png
  - source:
      type: rtp
      streams:
        - media: video
          port: 5004
          payload_type: 96
          codec: h264
          clock_rate: 90000
        - media: audio
          port: 5006
          payload_type: 97
          codec: opus
          clock_rate: 48000
  - source:
      type: whip
`

func TestParsePlaylist(t *testing.T) {
	doc, items, err := Parse([]byte(samplePlaylist))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if doc.TransitionMs != 250 {
		t.Fatalf("transition_ms = %d, want 250", doc.TransitionMs)
	}
	if len(items) != 8 {
		t.Fatalf("items = %d, want 8", len(items))
	}

	if items[0].Duration != 4700*time.Millisecond {
		t.Errorf("item 0 duration = %v", items[0].Duration)
	}
	if _, ok := items[0].Source.(TSFile); !ok {
		t.Errorf("item 0 = %T, want TSFile", items[0].Source)
	}

	if items[1].Begin != 1500*time.Millisecond {
		t.Errorf("item 1 begin = %v", items[1].Begin)
	}

	srtListener, ok := items[2].Source.(SRT)
	if !ok || srtListener.Mode != engine.SRTListener {
		t.Errorf("item 2 = %#v, want srt listener", items[2].Source)
	}
	srtCaller, ok := items[3].Source.(SRT)
	if !ok || srtCaller.Mode != engine.SRTCaller || srtCaller.IP != "203.0.113.7" {
		t.Errorf("item 3 = %#v, want srt caller", items[3].Source)
	}

	rtmp, ok := items[4].Source.(RTMP)
	if !ok || rtmp.SourceName() != "live/main" {
		t.Errorf("item 4 = %#v, want rtmp live/main", items[4].Source)
	}

	if img, ok := items[5].Source.(Image); !ok || img.Kind() != KindVideo {
		t.Errorf("item 5 = %#v, want video-only image", items[5].Source)
	}

	rtp, ok := items[6].Source.(RTPSource)
	if !ok || len(rtp.Streams) != 2 {
		t.Errorf("item 6 = %#v, want rtp with 2 streams", items[6].Source)
	}

	if _, ok := items[7].Source.(WHIP); !ok {
		t.Errorf("item 7 = %T, want WHIP", items[7].Source)
	}
}

func TestParseRejectsBadInput(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want string
	}{
		{"empty", "items: []", "no items"},
		{"missing type", "items:\n  - source: {}", "source type missing"},
		{"unknown type", "items:\n  - source: {type: dvd}", "unknown source"},
		{"ts without path", "items:\n  - source: {type: ts}", "requires path"},
		{"srt bad port", "items:\n  - source: {type: srt, port: 70000}", "valid port"},
		{"srt caller no ip", "items:\n  - source: {type: srt, mode: caller, port: 9000}", "requires ip"},
		{"rtmp app without stream", "items:\n  - source: {type: rtmp, port: 1935, app: live}", "set together"},
		{"rtp no streams", "items:\n  - source: {type: rtp}", "at least one stream"},
		{"rtp bad media", "items:\n  - source: {type: rtp, streams: [{media: text, port: 5004}]}", "unknown rtp media"},
		{"negative duration", "items:\n  - duration_ms: -1\n    source: {type: ts, path: a.ts}", "must not be negative"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := Parse([]byte(tt.doc))
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("error %q does not contain %q", err, tt.want)
			}
		})
	}
}
