// Package publish mirrors stored rows to an MQTT broker as retained JSON messages, one topic
// per node.
package publish

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog/log"

	"github.com/robertof/go-meshtastic-recorder/config"
	"github.com/robertof/go-meshtastic-recorder/store"
)

const qos = 1

const DefaultTimeout = 10 * time.Second

type Publisher struct {
	client  mqtt.Client
	prefix  string
	timeout time.Duration
}

// Connect dials the broker in cfg. The connection is not retried: a run that can't reach
// the broker just skips publishing.
func Connect(ctx context.Context, cfg config.MQTTConfig) (*Publisher, error) {
	broker := fmt.Sprintf("tcp://%s:%d", cfg.Broker, cfg.Port)
	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(cfg.ClientID).
		SetUsername(cfg.Username).
		SetPassword(cfg.Password).
		SetConnectTimeout(cfg.Timeout).
		SetAutoReconnect(false)

	client := mqtt.NewClient(opts)

	if err := wait(ctx, client.Connect(), cfg.Timeout); err != nil {
		return nil, fmt.Errorf("mqtt connect to %s: %w", broker, err)
	}

	log.Debug().Str("Broker", broker).Msg("publish: connected to MQTT broker")

	return New(client, cfg.TopicPrefix, cfg.Timeout), nil
}

// New wraps an already connected client. Every broker round trip is bounded by timeout, or
// DefaultTimeout if it's not positive.
func New(client mqtt.Client, prefix string, timeout time.Duration) *Publisher {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	return &Publisher{
		client:  client,
		prefix:  strings.TrimSuffix(prefix, "/"),
		timeout: timeout,
	}
}

func (p *Publisher) NodeTopic(id string) string {
	return p.prefix + "/nodes/" + id
}

func (p *Publisher) TelemetryTopic(id string) string {
	return p.prefix + "/telemetry/" + id
}

func (p *Publisher) PublishNodes(ctx context.Context, rows []store.NodeRow) error {
	for _, r := range rows {
		if err := p.publishJSON(ctx, p.NodeTopic(r.ID), r); err != nil {
			return err
		}
	}

	log.Debug().Int("Nodes", len(rows)).Msg("publish: published nodes")

	return nil
}

func (p *Publisher) PublishTelemetry(ctx context.Context, rows ...store.TelemetryRow) error {
	for _, r := range rows {
		if err := p.publishJSON(ctx, p.TelemetryTopic(r.ID), r); err != nil {
			return err
		}
	}

	return nil
}

func (p *Publisher) Close() {
	p.client.Disconnect(250)
}

func (p *Publisher) publishJSON(ctx context.Context, topic string, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", topic, err)
	}

	if err := wait(ctx, p.client.Publish(topic, qos, true, payload), p.timeout); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}

	log.Trace().Str("Topic", topic).RawJSON("Payload", payload).Msg("publish: sent message")

	return nil
}

var ErrTimeout = errors.New("timed out waiting for the broker")

func wait(ctx context.Context, tok mqtt.Token, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-tok.Done():
		return tok.Error()
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return fmt.Errorf("%w after %v", ErrTimeout, timeout)
	}
}
