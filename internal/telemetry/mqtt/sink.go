// Package mqtt publishes telemetry payloads to an MQTT broker.
package mqtt

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
)

// DefaultTopic is used when the target URI carries no topic.
const DefaultTopic = "calypso/delta"

// Options configures a Sink.
type Options struct {
	Broker         string // host:port
	Topic          string
	ClientID       string
	QoS            byte
	ConnectTimeout time.Duration
	PublishTimeout time.Duration
}

// Sink publishes each payload as one message on a fixed topic.
type Sink struct {
	client paho.Client
	opts   Options
}

// NewSink connects to the broker. It waits for the first connection until
// ctx is done or ConnectTimeout elapses.
func NewSink(ctx context.Context, opts Options) (*Sink, error) {
	if opts.Topic == "" {
		opts.Topic = DefaultTopic
	}
	if opts.ClientID == "" {
		opts.ClientID = "calypso-" + uuid.NewString()[:8]
	}
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = 10 * time.Second
	}
	if opts.PublishTimeout <= 0 {
		opts.PublishTimeout = 5 * time.Second
	}

	co := paho.NewClientOptions().
		AddBroker("tcp://" + opts.Broker).
		SetClientID(opts.ClientID).
		SetCleanSession(true).
		SetAutoReconnect(true).
		SetConnectTimeout(opts.ConnectTimeout).
		SetKeepAlive(30 * time.Second).
		SetOnConnectHandler(func(paho.Client) {
			slog.Info("[TELEMETRY] mqtt connected", "broker", opts.Broker, "client_id", opts.ClientID)
		}).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			slog.Warn("[TELEMETRY] mqtt connection lost", "broker", opts.Broker, "error", err)
		})

	s := &Sink{client: paho.NewClient(co), opts: opts}
	if err := s.connect(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Sink) connect(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.opts.ConnectTimeout)
	defer cancel()

	token := s.client.Connect()
	const poll = 100 * time.Millisecond
	for {
		if token.WaitTimeout(poll) {
			if err := token.Error(); err != nil {
				return fmt.Errorf("mqtt: connect to %s: %w", s.opts.Broker, err)
			}
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("mqtt: connect to %s: %w", s.opts.Broker, ctx.Err())
		default:
		}
	}
}

// Send publishes payload and waits for the broker to accept it.
func (s *Sink) Send(payload []byte) error {
	token := s.client.Publish(s.opts.Topic, s.opts.QoS, false, payload)
	if !token.WaitTimeout(s.opts.PublishTimeout) {
		return fmt.Errorf("mqtt: publish to %s: %w", s.opts.Topic, errors.New("timed out"))
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt: publish to %s: %w", s.opts.Topic, err)
	}
	return nil
}

func (s *Sink) Close() error {
	s.client.Disconnect(250)
	return nil
}

func (s *Sink) String() string {
	return fmt.Sprintf("mqtt://%s/%s", s.opts.Broker, s.opts.Topic)
}
