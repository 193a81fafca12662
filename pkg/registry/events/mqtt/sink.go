// Package mqtt publishes registry events to an MQTT broker, one topic
// per event kind under a configurable prefix.
package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/swiftbridge/message-registry/pkg/registry"
)

// Config holds the broker connection settings for the sink.
type Config struct {
	BrokerURL   string
	ClientID    string
	TopicPrefix string
	Username    string
	Password    string
}

// Sink is an EventSink backed by an MQTT broker. Events are published
// with QoS 0; the registry treats event delivery as best-effort, so a
// dropped message is acceptable and never blocks the operation that
// produced it.
type Sink struct {
	client      paho.Client
	topicPrefix string
}

var _ registry.EventSink = (*Sink)(nil)

// New connects to the broker and returns a ready sink.
func New(cfg Config) (*Sink, error) {
	if cfg.BrokerURL == "" {
		return nil, fmt.Errorf("mqtt: broker URL is required")
	}

	clientID := cfg.ClientID
	if clientID == "" {
		clientID = "message-registry"
	}
	prefix := cfg.TopicPrefix
	if prefix == "" {
		prefix = "registry/events"
	}

	opts := paho.NewClientOptions()
	opts.AddBroker(cfg.BrokerURL)
	opts.SetClientID(clientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	opts.OnConnect = func(paho.Client) {
		slog.Info("connected to MQTT broker", "broker", cfg.BrokerURL)
	}
	opts.OnConnectionLost = func(_ paho.Client, err error) {
		slog.Warn("MQTT connection lost", "error", err)
	}

	client := paho.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("mqtt: connect to %s: %w", cfg.BrokerURL, token.Error())
	}

	return &Sink{client: client, topicPrefix: prefix}, nil
}

// Publish sends the event as JSON to "<prefix>/<kind>".
func (s *Sink) Publish(_ context.Context, event registry.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("mqtt: marshal event: %w", err)
	}

	token := s.client.Publish(s.Topic(event.Kind), 0, false, payload)
	token.Wait()
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt: publish %s: %w", event.Kind, err)
	}
	return nil
}

// Topic returns the broker topic a given event kind is published to.
func (s *Sink) Topic(kind registry.EventKind) string {
	return s.topicPrefix + "/" + string(kind)
}

// Close disconnects from the broker, giving in-flight publishes a
// short window to finish.
func (s *Sink) Close() {
	s.client.Disconnect(250)
}
