/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package playlist

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/friendsincode/grimnir_switch/internal/engine"
)

// Document is the on-disk playlist format.
type Document struct {
	TransitionMs int        `yaml:"transition_ms"`
	Items        []ItemSpec `yaml:"items"`
}

// ItemSpec is one playlist entry as written in YAML.
type ItemSpec struct {
	BeginMs    int64      `yaml:"begin_ms"`
	DurationMs int64      `yaml:"duration_ms"`
	Source     SourceSpec `yaml:"source"`
}

// SourceSpec is the tagged union of source definitions. Type selects
// which of the remaining fields apply.
type SourceSpec struct {
	Type string `yaml:"type"`

	// ts, mp4, image
	Path string `yaml:"path"`

	// image
	Format string `yaml:"format"`

	// srt
	Mode string `yaml:"mode"`
	IP   string `yaml:"ip"`

	// srt, rtmp
	Port int `yaml:"port"`

	// rtmp
	App    string `yaml:"app"`
	Stream string `yaml:"stream"`

	// rtp
	Streams []RTPStreamSpec `yaml:"streams"`
}

// RTPStreamSpec describes one RTP stream of an rtp source.
type RTPStreamSpec struct {
	Media       string `yaml:"media"`
	Port        int    `yaml:"port"`
	PayloadType uint8  `yaml:"payload_type"`
	Codec       string `yaml:"codec"`
	ClockRate   int    `yaml:"clock_rate"`
}

// LoadFile reads and validates a playlist document.
func LoadFile(path string) (*Document, []Item, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("read playlist: %w", err)
	}
	return Parse(data)
}

// Parse decodes a playlist document and builds the item list.
func Parse(data []byte) (*Document, []Item, error) {
	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, nil, fmt.Errorf("parse playlist: %w", err)
	}
	if len(doc.Items) == 0 {
		return nil, nil, fmt.Errorf("playlist has no items")
	}

	items := make([]Item, 0, len(doc.Items))
	for i, spec := range doc.Items {
		item, err := spec.toItem()
		if err != nil {
			return nil, nil, fmt.Errorf("item %d: %w", i, err)
		}
		items = append(items, item)
	}
	return &doc, items, nil
}

func (s ItemSpec) toItem() (Item, error) {
	src, err := s.Source.toSource()
	if err != nil {
		return Item{}, err
	}
	if s.BeginMs < 0 {
		return Item{}, fmt.Errorf("begin_ms must not be negative")
	}
	if s.DurationMs < 0 {
		return Item{}, fmt.Errorf("duration_ms must not be negative")
	}
	return Item{
		Begin:    time.Duration(s.BeginMs) * time.Millisecond,
		Duration: time.Duration(s.DurationMs) * time.Millisecond,
		Source:   src,
	}, nil
}

func (s SourceSpec) toSource() (Source, error) {
	switch s.Type {
	case "ts":
		if s.Path == "" {
			return nil, fmt.Errorf("ts source requires path")
		}
		return TSFile{Path: s.Path}, nil

	case "mp4":
		if s.Path == "" {
			return nil, fmt.Errorf("mp4 source requires path")
		}
		return MP4File{Path: s.Path}, nil

	case "srt":
		if s.Port <= 0 || s.Port > 65535 {
			return nil, fmt.Errorf("srt source requires a valid port, got %d", s.Port)
		}
		switch s.Mode {
		case "caller":
			if s.IP == "" {
				return nil, fmt.Errorf("srt caller requires ip")
			}
			return SRT{Mode: engine.SRTCaller, IP: s.IP, Port: s.Port}, nil
		case "listener", "":
			return SRT{Mode: engine.SRTListener, IP: s.IP, Port: s.Port}, nil
		default:
			return nil, fmt.Errorf("unknown srt mode %q", s.Mode)
		}

	case "rtmp":
		if s.Port <= 0 || s.Port > 65535 {
			return nil, fmt.Errorf("rtmp source requires a valid port, got %d", s.Port)
		}
		if (s.App == "") != (s.Stream == "") {
			return nil, fmt.Errorf("rtmp app and stream must be set together")
		}
		return RTMP{Port: s.Port, App: s.App, Stream: s.Stream}, nil

	case "image":
		if s.Path == "" {
			return nil, fmt.Errorf("image source requires path")
		}
		return Image{Path: s.Path, Format: s.Format}, nil

	case "rtp":
		if len(s.Streams) == 0 {
			return nil, fmt.Errorf("rtp source requires at least one stream")
		}
		streams := make([]engine.RTPStream, 0, len(s.Streams))
		for _, st := range s.Streams {
			var media engine.MediaType
			switch st.Media {
			case "audio":
				media = engine.MediaAudio
			case "video":
				media = engine.MediaVideo
			default:
				return nil, fmt.Errorf("unknown rtp media %q", st.Media)
			}
			if st.Port <= 0 || st.Port > 65535 {
				return nil, fmt.Errorf("rtp stream requires a valid port, got %d", st.Port)
			}
			streams = append(streams, engine.RTPStream{
				Media:       media,
				Port:        st.Port,
				PayloadType: st.PayloadType,
				Codec:       st.Codec,
				ClockRate:   st.ClockRate,
			})
		}
		return RTPSource{Streams: streams}, nil

	case "whip":
		return WHIP{}, nil

	case "":
		return nil, fmt.Errorf("source type missing")

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownSource, s.Type)
	}
}
