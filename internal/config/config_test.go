/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.TransitionDuration != 300*time.Millisecond {
		t.Errorf("TransitionDuration = %v, want 300ms", cfg.TransitionDuration)
	}
	if cfg.OutputWidth != 640 || cfg.OutputHeight != 480 {
		t.Errorf("output = %dx%d, want 640x480", cfg.OutputWidth, cfg.OutputHeight)
	}
	if cfg.SampleRate != 48000 || cfg.Channels != 2 {
		t.Errorf("audio = %d ch @ %d Hz, want 2 ch @ 48000 Hz", cfg.Channels, cfg.SampleRate)
	}
	if cfg.HTTPPort != 8080 {
		t.Errorf("HTTPPort = %d, want 8080", cfg.HTTPPort)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("GRIMNIR_TRANSITION_MS", "500")
	t.Setenv("GRIMNIR_PLAYLIST", "/etc/grimnir/playlist.yaml")
	t.Setenv("GRIMNIR_NATS_URL", "nats://localhost:4222")
	t.Setenv("GRIMNIR_TRACING_ENABLED", "yes")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.TransitionDuration != 500*time.Millisecond {
		t.Errorf("TransitionDuration = %v, want 500ms", cfg.TransitionDuration)
	}
	if cfg.PlaylistPath != "/etc/grimnir/playlist.yaml" {
		t.Errorf("PlaylistPath = %q", cfg.PlaylistPath)
	}
	if cfg.NATSURL != "nats://localhost:4222" {
		t.Errorf("NATSURL = %q", cfg.NATSURL)
	}
	if !cfg.TracingEnabled {
		t.Error("TracingEnabled = false, want true")
	}
}

func TestLoadRejectsInvalidResolution(t *testing.T) {
	t.Setenv("GRIMNIR_OUTPUT_WIDTH", "0")

	if _, err := Load(); err == nil {
		t.Fatal("Load() accepted a zero output width")
	}
}
