/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package playlist drives a smooth-switcher node through an ordered
// list of media sources: it creates input nodes at the right time,
// prewarms live items, times out file items, shares listener sockets
// across items, and commands the crossfade once a source is ready.
package playlist

import (
	"fmt"
	"time"

	"github.com/friendsincode/grimnir_switch/internal/engine"
)

// Kind classifies what media a source produces by itself.
type Kind string

const (
	// KindAV sources carry audio and video.
	KindAV Kind = "av"

	// KindVideo sources carry video only; silence is mixed in for the
	// audio leg.
	KindVideo Kind = "video"
)

// Source is the closed set of playlist source variants.
type Source interface {
	// Kind reports whether the source needs audio to be considered
	// ready.
	Kind() Kind

	// IsLive reports whether the source is a live ingest. Only live
	// items are prewarmed.
	IsLive() bool

	// Type is a short stable name used for logging and metrics.
	Type() string

	isSource()
}

// TSFile plays a local MPEG-TS file to its natural end.
type TSFile struct {
	Path string
}

// MP4File plays a local MP4 file; its natural duration is discovered
// at runtime.
type MP4File struct {
	Path string
}

// SRT receives an SRT stream, caller or listener side.
type SRT struct {
	Mode engine.SRTMode
	IP   string
	Port int
}

// RTMP receives from a shared RTMP server socket. When both App and
// Stream are set, only the publisher named "App/Stream" feeds this
// item.
type RTMP struct {
	Port   int
	App    string
	Stream string
}

// Image shows a still image, video only.
type Image struct {
	Path   string
	Format string
}

// RTPSource receives RTP streams on fresh ports.
type RTPSource struct {
	Streams []engine.RTPStream
}

// WHIP accepts a WHIP publisher.
type WHIP struct{}

func (TSFile) isSource()    {}
func (MP4File) isSource()   {}
func (SRT) isSource()       {}
func (RTMP) isSource()      {}
func (Image) isSource()     {}
func (RTPSource) isSource() {}
func (WHIP) isSource()      {}

func (TSFile) Kind() Kind    { return KindAV }
func (MP4File) Kind() Kind   { return KindAV }
func (SRT) Kind() Kind       { return KindAV }
func (RTMP) Kind() Kind      { return KindAV }
func (Image) Kind() Kind     { return KindVideo }
func (RTPSource) Kind() Kind { return KindAV }
func (WHIP) Kind() Kind      { return KindAV }

func (TSFile) IsLive() bool    { return false }
func (MP4File) IsLive() bool   { return false }
func (SRT) IsLive() bool       { return true }
func (RTMP) IsLive() bool      { return true }
func (Image) IsLive() bool     { return false }
func (RTPSource) IsLive() bool { return true }
func (WHIP) IsLive() bool      { return true }

func (TSFile) Type() string    { return "ts_file" }
func (MP4File) Type() string   { return "mp4_file" }
func (SRT) Type() string       { return "srt" }
func (RTMP) Type() string      { return "rtmp" }
func (Image) Type() string     { return "image" }
func (RTPSource) Type() string { return "rtp" }
func (WHIP) Type() string      { return "whip" }

// SourceName is the name the RTMP listener assigns to a publisher.
func (s RTMP) SourceName() string {
	return s.App + "/" + s.Stream
}

// Describe returns a human-readable description for logging.
func Describe(s Source) string {
	switch v := s.(type) {
	case TSFile:
		return fmt.Sprintf("ts_file(%s)", v.Path)
	case MP4File:
		return fmt.Sprintf("mp4_file(%s)", v.Path)
	case SRT:
		return fmt.Sprintf("srt(%s %s:%d)", v.Mode, v.IP, v.Port)
	case RTMP:
		if v.App != "" && v.Stream != "" {
			return fmt.Sprintf("rtmp(:%d %s)", v.Port, v.SourceName())
		}
		return fmt.Sprintf("rtmp(:%d)", v.Port)
	case Image:
		return fmt.Sprintf("image(%s)", v.Path)
	case RTPSource:
		return fmt.Sprintf("rtp(%d streams)", len(v.Streams))
	case WHIP:
		return "whip"
	default:
		return fmt.Sprintf("unknown(%T)", s)
	}
}

// Item is one playlist entry.
type Item struct {
	// Begin is an advisory in-file start offset passed through to the
	// engine.
	Begin time.Duration

	// Duration bounds playing time. Zero means play to natural end.
	Duration time.Duration

	Source Source
}

// KeyFilter decides whether a stream key belongs to an item.
type KeyFilter func(key engine.StreamKey) bool

// AcceptAllKeys is the default item filter.
func AcceptAllKeys(engine.StreamKey) bool { return true }

// keyFilterFor returns the stream-key filter an item applies to the
// streams of its (possibly shared) node.
func keyFilterFor(s Source) KeyFilter {
	if r, ok := s.(RTMP); ok && r.App != "" && r.Stream != "" {
		want := r.SourceName()
		return func(key engine.StreamKey) bool {
			return key.SourceName == want
		}
	}
	return AcceptAllKeys
}
