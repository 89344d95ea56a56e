/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package engine

import "time"

// InputConfig is the closed set of input node configurations.
type InputConfig interface {
	isInputConfig()
}

// SRTMode selects caller or listener side for SRT inputs.
type SRTMode string

const (
	SRTCaller   SRTMode = "caller"
	SRTListener SRTMode = "listener"
)

// TSFileInput plays a local MPEG-TS file.
type TSFileInput struct {
	Path  string
	Begin time.Duration
}

// MP4FileInput plays a local MP4 file. The engine reports the natural
// duration through OnInfo once demuxing has progressed far enough.
type MP4FileInput struct {
	Path  string
	Begin time.Duration
}

// SRTInput is an SRT endpoint, caller or listener side.
type SRTInput struct {
	Mode SRTMode
	IP   string
	Port int
}

// RTMPInput is an RTMP server socket. One socket multiplexes many
// publishers, demultiplexed by source name.
type RTMPInput struct {
	Port int
}

// ImageInput is a still image, video-only.
type ImageInput struct {
	Path   string
	Format string
}

// RTPStream describes one RTP receive leg.
type RTPStream struct {
	Media       MediaType
	Port        int
	PayloadType uint8
	Codec       string
	ClockRate   int
}

// RTPInput receives one or more RTP streams.
type RTPInput struct {
	Streams []RTPStream
}

// WHIPInput accepts a WHIP (WebRTC-HTTP ingestion) publisher.
type WHIPInput struct{}

func (TSFileInput) isInputConfig()  {}
func (MP4FileInput) isInputConfig() {}
func (SRTInput) isInputConfig()     {}
func (RTMPInput) isInputConfig()    {}
func (ImageInput) isInputConfig()   {}
func (RTPInput) isInputConfig()     {}
func (WHIPInput) isInputConfig()    {}
