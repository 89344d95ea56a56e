/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package eventbus bridges the in-process event bus onto NATS so other
// services can observe playback without linking against this process.
package eventbus

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/friendsincode/grimnir_switch/internal/events"
)

// Config contains NATS connection configuration.
type Config struct {
	URL           string
	SubjectPrefix string
	MaxReconnects int
	ReconnectWait time.Duration
	Timeout       time.Duration
}

// DefaultConfig returns the default NATS configuration.
func DefaultConfig() Config {
	return Config{
		URL:           nats.DefaultURL,
		SubjectPrefix: "grimnir.events",
		MaxReconnects: -1,
		ReconnectWait: 2 * time.Second,
		Timeout:       5 * time.Second,
	}
}

// envelope is the wire format published to NATS subjects.
type envelope struct {
	EventType events.EventType `json:"event_type"`
	Payload   events.Payload   `json:"payload"`
	Timestamp time.Time        `json:"timestamp"`
	NodeID    string           `json:"node_id"`
	MessageID string           `json:"message_id"`
}

// Publisher mirrors every local bus event onto NATS, one subject per
// event type: "<prefix>.<event_type>".
type Publisher struct {
	conn   *nats.Conn
	bus    *events.Bus
	logger zerolog.Logger
	prefix string
	nodeID string

	subs      map[events.EventType]events.Subscriber
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// NewPublisher connects to NATS and starts mirroring the bus. Close
// stops the mirror and drains the connection.
func NewPublisher(cfg Config, bus *events.Bus, logger zerolog.Logger) (*Publisher, error) {
	if cfg.SubjectPrefix == "" {
		cfg.SubjectPrefix = "grimnir.events"
	}
	log := logger.With().Str("component", "eventbus").Logger()

	conn, err := nats.Connect(cfg.URL,
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.Timeout(cfg.Timeout),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn().Err(err).Msg("nats disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("nats reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to nats %s: %w", cfg.URL, err)
	}

	p := &Publisher{
		conn:   conn,
		bus:    bus,
		logger: log,
		prefix: cfg.SubjectPrefix,
		nodeID: nodeID(),
		subs:   make(map[events.EventType]events.Subscriber, len(events.AllEventTypes)),
	}

	for _, et := range events.AllEventTypes {
		sub := bus.Subscribe(et)
		p.subs[et] = sub
		p.wg.Add(1)
		go p.forward(et, sub)
	}

	log.Info().Str("url", cfg.URL).Str("node_id", p.nodeID).Msg("event mirror started")
	return p, nil
}

func (p *Publisher) forward(eventType events.EventType, sub events.Subscriber) {
	defer p.wg.Done()
	subject := fmt.Sprintf("%s.%s", p.prefix, eventType)

	for payload := range sub {
		data, err := json.Marshal(envelope{
			EventType: eventType,
			Payload:   payload,
			Timestamp: time.Now().UTC(),
			NodeID:    p.nodeID,
			MessageID: uuid.NewString(),
		})
		if err != nil {
			p.logger.Error().Err(err).Str("subject", subject).Msg("failed to marshal event")
			continue
		}
		if err := p.conn.Publish(subject, data); err != nil {
			p.logger.Warn().Err(err).Str("subject", subject).Msg("failed to publish event")
		}
	}
}

// Close unsubscribes from the local bus and drains the connection.
func (p *Publisher) Close() error {
	var err error
	p.closeOnce.Do(func() {
		for et, sub := range p.subs {
			p.bus.Unsubscribe(et, sub)
		}
		p.wg.Wait()
		err = p.conn.Drain()
		p.logger.Info().Msg("event mirror stopped")
	})
	return err
}

func nodeID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "unknown"
	}
	return host + "-" + uuid.NewString()[:8]
}
