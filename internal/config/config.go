/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config covers process level configuration read from environment variables.
type Config struct {
	Environment  string
	HTTPBind     string
	HTTPPort     int
	PlaylistPath string

	// Switcher output settings
	TransitionDuration time.Duration
	OutputWidth        int
	OutputHeight       int
	SampleRate         int
	Channels           int

	// Event fan-out
	NATSURL string // empty disables the NATS bridge

	// Tracing configuration
	TracingEnabled    bool
	OTLPEndpoint      string
	TracingSampleRate float64
}

// Load reads environment variables, applies defaults, and validates the result.
func Load() (*Config, error) {
	cfg := &Config{
		Environment:  getEnv("GRIMNIR_ENV", "development"),
		HTTPBind:     getEnv("GRIMNIR_HTTP_BIND", "0.0.0.0"),
		HTTPPort:     getEnvInt("GRIMNIR_HTTP_PORT", 8080),
		PlaylistPath: getEnv("GRIMNIR_PLAYLIST", ""),

		TransitionDuration: time.Duration(getEnvInt("GRIMNIR_TRANSITION_MS", 300)) * time.Millisecond,
		OutputWidth:        getEnvInt("GRIMNIR_OUTPUT_WIDTH", 640),
		OutputHeight:       getEnvInt("GRIMNIR_OUTPUT_HEIGHT", 480),
		SampleRate:         getEnvInt("GRIMNIR_SAMPLE_RATE", 48000),
		Channels:           getEnvInt("GRIMNIR_CHANNELS", 2),

		NATSURL: getEnv("GRIMNIR_NATS_URL", ""),

		TracingEnabled:    getEnvBool("GRIMNIR_TRACING_ENABLED", false),
		OTLPEndpoint:      getEnv("GRIMNIR_OTLP_ENDPOINT", "localhost:4317"),
		TracingSampleRate: getEnvFloat("GRIMNIR_TRACING_SAMPLE_RATE", 1.0),
	}

	if cfg.TransitionDuration < 0 {
		return nil, fmt.Errorf("GRIMNIR_TRANSITION_MS must not be negative")
	}

	if cfg.OutputWidth <= 0 || cfg.OutputHeight <= 0 {
		return nil, fmt.Errorf("output resolution %dx%d is invalid", cfg.OutputWidth, cfg.OutputHeight)
	}

	if cfg.Channels <= 0 || cfg.SampleRate <= 0 {
		return nil, fmt.Errorf("audio format %d ch @ %d Hz is invalid", cfg.Channels, cfg.SampleRate)
	}

	return cfg, nil
}

func getEnv(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

func getEnvInt(key string, def int) int {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil {
			return parsed
		}
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		v = strings.ToLower(strings.TrimSpace(v))
		switch v {
		case "true", "1", "yes":
			return true
		case "false", "0", "no":
			return false
		}
	}
	return def
}

func getEnvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.ParseFloat(v, 64); err == nil {
			return parsed
		}
	}
	return def
}
