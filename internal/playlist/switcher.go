/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package playlist

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/friendsincode/grimnir_switch/internal/engine"
)

// SwitcherBinding adapts controller slot state to the engine's smooth
// switcher: it republishes the complete pin subscription set and
// issues crossfade commands.
type SwitcherBinding struct {
	sw     engine.Switcher
	logger zerolog.Logger
}

// NewSwitcherBinding wraps a switcher node.
func NewSwitcherBinding(sw engine.Switcher, logger zerolog.Logger) *SwitcherBinding {
	return &SwitcherBinding{
		sw:     sw,
		logger: logger.With().Str("component", "switcher").Logger(),
	}
}

// Subscribe replaces the switcher's subscription set.
func (b *SwitcherBinding) Subscribe(subs []engine.PinSubscription) error {
	if err := b.sw.SubscribeToPins(subs); err != nil {
		return fmt.Errorf("subscribe to pins: %w", err)
	}
	b.logger.Debug().Int("subscriptions", len(subs)).Msg("pin subscriptions replaced")
	return nil
}

// SwitchTo commands a crossfade to pin.
func (b *SwitcherBinding) SwitchTo(pin string) error {
	if err := b.sw.SwitchSource(pin); err != nil {
		return fmt.Errorf("switch to pin %s: %w", pin, err)
	}
	b.logger.Info().Str("pin", pin).Msg("switch commanded")
	return nil
}
