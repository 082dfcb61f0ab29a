package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"

	"github.com/diwise/monitoring-gasdetector/domain"
	"github.com/diwise/monitoring-gasdetector/internal/pkg/infrastructure/metrics"
)

// Dispatcher receives decoded push stream events. The session manager
// implements it.
type Dispatcher interface {
	HandleEnvelope(serialNumber string, payload []byte)
	HandleStatus(ev domain.StatusEvent)
	HandleThreshold(ev domain.ThresholdEvent)
	HandleDisconnect()
}

type Config struct {
	BrokerURL      string
	ClientID       string
	TopicPrefix    string
	ReconnectDelay time.Duration
	MaxReconnects  uint64
	Log            zerolog.Logger
}

// Subscriber consumes the device push stream over mqtt. Reconnects use
// a constant delay with a fixed attempt cap; exhausting the cap
// surfaces a persistent-disconnected state to the dispatcher instead
// of retrying forever.
type Subscriber struct {
	cfg        Config
	dispatcher Dispatcher
	client     mqtt.Client
	log        zerolog.Logger
}

func New(cfg Config, dispatcher Dispatcher) *Subscriber {
	if cfg.TopicPrefix == "" {
		cfg.TopicPrefix = "devices"
	}

	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = 5 * time.Second
	}

	if cfg.MaxReconnects == 0 {
		cfg.MaxReconnects = 8
	}

	return &Subscriber{
		cfg:        cfg,
		dispatcher: dispatcher,
		log:        cfg.Log.With().Str("broker", cfg.BrokerURL).Logger(),
	}
}

func (s *Subscriber) Connect(ctx context.Context) error {
	opts := mqtt.NewClientOptions().
		AddBroker(s.cfg.BrokerURL).
		SetClientID(s.cfg.ClientID).
		SetCleanSession(true).
		SetAutoReconnect(false)

	opts.SetOnConnectHandler(func(c mqtt.Client) {
		s.log.Info().Msg("connected to push stream")
		s.subscribe(c)
	})

	opts.SetConnectionLostHandler(func(c mqtt.Client, err error) {
		s.log.Warn().Err(err).Msg("push stream connection lost")
		go s.reconnect(ctx)
	})

	s.client = mqtt.NewClient(opts)

	return s.connectWithBackoff(ctx)
}

func (s *Subscriber) Close() {
	if s.client != nil && s.client.IsConnected() {
		s.client.Disconnect(250)
	}
}

func (s *Subscriber) connectWithBackoff(ctx context.Context) error {
	b := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(s.cfg.ReconnectDelay), s.cfg.MaxReconnects),
		ctx,
	)

	err := backoff.Retry(func() error {
		metrics.StreamReconnects.Inc()

		token := s.client.Connect()
		token.Wait()

		return token.Error()
	}, b)

	if err != nil {
		return fmt.Errorf("failed to connect to push stream: %s", err.Error())
	}

	return nil
}

func (s *Subscriber) reconnect(ctx context.Context) {
	err := s.connectWithBackoff(ctx)
	if err != nil {
		s.log.Error().Err(err).Msg("push stream reconnect attempts exhausted")
		s.dispatcher.HandleDisconnect()
	}
}

func (s *Subscriber) subscribe(c mqtt.Client) {
	subscriptions := map[string]mqtt.MessageHandler{
		s.cfg.TopicPrefix + "/+/telemetry": s.onTelemetry,
		s.cfg.TopicPrefix + "/+/status":    s.onStatus,
		s.cfg.TopicPrefix + "/+/threshold": s.onThreshold,
	}

	for topic, handler := range subscriptions {
		token := c.Subscribe(topic, 0, handler)
		token.Wait()

		if token.Error() != nil {
			s.log.Error().Err(token.Error()).Str("topic", topic).Msg("subscription failed")
		}
	}
}

func (s *Subscriber) onTelemetry(_ mqtt.Client, msg mqtt.Message) {
	serialNumber, ok := serialFromTopic(msg.Topic())
	if !ok {
		return
	}

	s.dispatcher.HandleEnvelope(serialNumber, msg.Payload())
}

func (s *Subscriber) onStatus(_ mqtt.Client, msg mqtt.Message) {
	serialNumber, ok := serialFromTopic(msg.Topic())
	if !ok {
		return
	}

	s.dispatcher.HandleStatus(domain.StatusEvent{
		SerialNumber: serialNumber,
		Status:       parseStatusPayload(msg.Payload()),
	})
}

func (s *Subscriber) onThreshold(_ mqtt.Client, msg mqtt.Message) {
	serialNumber, ok := serialFromTopic(msg.Topic())
	if !ok {
		return
	}

	ev := domain.ThresholdEvent{}

	err := json.Unmarshal(msg.Payload(), &ev)
	if err != nil {
		s.log.Warn().Err(err).Msg("dropping malformed threshold event")
		return
	}

	if ev.SerialNumber == "" {
		ev.SerialNumber = serialNumber
	}

	s.dispatcher.HandleThreshold(ev)
}

// serialFromTopic extracts the device serial from topics shaped like
// devices/<serial>/<kind>.
func serialFromTopic(topic string) (string, bool) {
	parts := strings.Split(topic, "/")
	if len(parts) < 3 || parts[len(parts)-2] == "" {
		return "", false
	}

	return parts[len(parts)-2], true
}

// parseStatusPayload accepts both a json body with a status field and
// a bare token like "online".
func parseStatusPayload(payload []byte) any {
	body := struct {
		Status any `json:"status"`
	}{}

	err := json.Unmarshal(payload, &body)
	if err == nil && body.Status != nil {
		return body.Status
	}

	return strings.TrimSpace(string(payload))
}
