/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/friendsincode/grimnir_switch/internal/config"
	"github.com/friendsincode/grimnir_switch/internal/enginetest"
	"github.com/friendsincode/grimnir_switch/internal/eventbus"
	"github.com/friendsincode/grimnir_switch/internal/events"
	"github.com/friendsincode/grimnir_switch/internal/logging"
	"github.com/friendsincode/grimnir_switch/internal/playlist"
	"github.com/friendsincode/grimnir_switch/internal/server"
	"github.com/friendsincode/grimnir_switch/internal/telemetry"
	"github.com/friendsincode/grimnir_switch/internal/version"
)

var (
	logger zerolog.Logger
	cfg    *config.Config

	playlistFlag string
)

var rootCmd = &cobra.Command{
	Use:   "grimnirswitch",
	Short: "Grimnir Switch - Playlist orchestrator for smooth source switching",
	Long:  "Grimnir Switch drives a media engine's smooth switcher through a playlist of file and live sources, crossfading between them at item boundaries.",
}

var playCmd = &cobra.Command{
	Use:   "play",
	Short: "Run the playlist against the development engine",
	Long:  "Load the playlist, start the control API, and drive playback. Uses the in-memory development engine; lifecycle events must be injected externally.",
	RunE:  runPlay,
}

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a playlist file and print the playback plan",
	RunE:  runValidate,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(version.Version)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&playlistFlag, "playlist", "", "playlist file path (overrides GRIMNIR_PLAYLIST)")
	rootCmd.AddCommand(playCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig loads configuration (called by commands that need it)
func loadConfig() error {
	var err error
	cfg, err = config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger = logging.Setup(cfg.Environment)
	return nil
}

func playlistPath() (string, error) {
	if playlistFlag != "" {
		return playlistFlag, nil
	}
	if cfg != nil && cfg.PlaylistPath != "" {
		return cfg.PlaylistPath, nil
	}
	return "", errors.New("no playlist given: set --playlist or GRIMNIR_PLAYLIST")
}

func runValidate(cmd *cobra.Command, args []string) error {
	if err := loadConfig(); err != nil {
		return err
	}

	path, err := playlistPath()
	if err != nil {
		return err
	}

	doc, items, err := playlist.LoadFile(path)
	if err != nil {
		return err
	}

	transition := cfg.TransitionDuration
	if doc.TransitionMs > 0 {
		transition = time.Duration(doc.TransitionMs) * time.Millisecond
	}

	fmt.Printf("playlist %s: %d items, transition %s\n", path, len(items), transition)
	for i, item := range items {
		line := fmt.Sprintf("  %2d  %s", i, playlist.Describe(item.Source))
		if item.Duration > 0 {
			line += fmt.Sprintf("  duration=%s", item.Duration)
		}
		if item.Begin > 0 {
			line += fmt.Sprintf("  begin=%s", item.Begin)
		}
		if item.Source.IsLive() {
			line += "  (live, prewarmed)"
		}
		fmt.Println(line)
	}
	return nil
}

func runPlay(cmd *cobra.Command, args []string) error {
	if err := loadConfig(); err != nil {
		return err
	}

	logger.Info().Str("version", version.Version).Msg("Grimnir Switch starting")

	path, err := playlistPath()
	if err != nil {
		return err
	}

	doc, items, err := playlist.LoadFile(path)
	if err != nil {
		return err
	}

	transition := cfg.TransitionDuration
	if doc.TransitionMs > 0 {
		transition = time.Duration(doc.TransitionMs) * time.Millisecond
	}

	tracerProvider, err := telemetry.InitTracer(context.Background(), telemetry.TracerConfig{
		ServiceName:    "grimnir-switch",
		ServiceVersion: version.Version,
		OTLPEndpoint:   cfg.OTLPEndpoint,
		Enabled:        cfg.TracingEnabled,
		SampleRate:     cfg.TracingSampleRate,
	}, logger)
	if err != nil {
		return fmt.Errorf("initialize tracer: %w", err)
	}
	defer func() {
		if err := tracerProvider.Shutdown(context.Background()); err != nil {
			logger.Error().Err(err).Msg("failed to shutdown tracer provider")
		}
	}()

	metrics := telemetry.New()
	bus := events.NewBus()

	var publisher *eventbus.Publisher
	if cfg.NATSURL != "" {
		natsCfg := eventbus.DefaultConfig()
		natsCfg.URL = cfg.NATSURL
		publisher, err = eventbus.NewPublisher(natsCfg, bus, logger)
		if err != nil {
			return fmt.Errorf("initialize nats bridge: %w", err)
		}
		defer func() {
			if err := publisher.Close(); err != nil {
				logger.Error().Err(err).Msg("failed to close nats bridge")
			}
		}()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ctrl, err := playlist.New(ctx, enginetest.New(), items, playlist.Options{
		TransitionDuration: transition,
		OutputWidth:        cfg.OutputWidth,
		OutputHeight:       cfg.OutputHeight,
		SampleRate:         cfg.SampleRate,
		Channels:           cfg.Channels,
	}, bus, metrics, logger)
	if err != nil {
		return fmt.Errorf("initialize controller: %w", err)
	}
	defer func() {
		if err := ctrl.Close(); err != nil {
			logger.Error().Err(err).Msg("controller close failed")
		}
	}()

	checker := version.NewChecker(logger)
	checker.Start(ctx)
	defer checker.Stop()

	srv := server.New(cfg.HTTPBind, cfg.HTTPPort, ctrl, metrics, logger)
	go func() {
		if err := srv.Start(); err != nil {
			logger.Fatal().Err(err).Msg("http server error")
		}
	}()

	runErr := make(chan error, 1)
	go func() { runErr <- ctrl.Run(ctx) }()

	ctrl.Start()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
		logger.Info().Msg("shutting down gracefully...")
	case err := <-runErr:
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.Error().Err(err).Msg("playback loop failed")
		} else {
			logger.Info().Msg("playback finished")
		}
	}

	timeoutCtx, cancelTimeout := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelTimeout()
	if err := srv.Shutdown(timeoutCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}

	cancel()
	logger.Info().Msg("Grimnir Switch stopped")
	return nil
}
