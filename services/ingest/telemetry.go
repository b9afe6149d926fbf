package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"agroguard/pkg/config"
	"agroguard/pkg/store"
)

const (
	actorMQTT      = "mqtt"
	handlerTimeout = 10 * time.Second
)

// TelemetryMessage is the JSON body published on agroguard/<equipment-id>/telemetry.
type TelemetryMessage struct {
	Date        *time.Time `json:"date,omitempty"`
	HoursUsed   float64    `json:"hours_used"`
	Temperature *float64   `json:"temperature,omitempty"`
	Vibration   *float64   `json:"vibration,omitempty"`
	Consumption *float64   `json:"consumption,omitempty"`
	NoiseLevel  *float64   `json:"noise_level,omitempty"`
	Cycles      *int       `json:"cycles,omitempty"`
}

// Telemetry appends readings published by equipment over MQTT.
type Telemetry struct {
	client   mqtt.Client
	topic    string
	lookup   func(ctx context.Context, id uuid.UUID) (store.Equipment, error)
	recorder *Recorder
	logger   zerolog.Logger
}

// NewTelemetry prepares a listener; nothing connects until Start.
func NewTelemetry(cfg config.MQTT, st Store, recorder *Recorder, logger zerolog.Logger) (*Telemetry, error) {
	if cfg.Broker == "" {
		return nil, errors.New("mqtt broker is required")
	}
	if st == nil {
		return nil, errors.New("store is required")
	}
	if recorder == nil {
		return nil, errors.New("recorder is required")
	}

	t := &Telemetry{topic: cfg.Topic, lookup: st.GetEquipment, recorder: recorder, logger: logger}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	opts.SetUsername(cfg.Username)
	opts.SetPassword(cfg.Password)
	opts.SetAutoReconnect(true)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(10 * time.Second)
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		logger.Warn().Err(err).Msg("mqtt connection lost")
	})
	// Subscriptions do not survive a reconnect with a clean session.
	opts.SetOnConnectHandler(func(c mqtt.Client) {
		if token := c.Subscribe(t.topic, 1, t.onMessage); token.Wait() && token.Error() != nil {
			logger.Error().Err(token.Error()).Str("topic", t.topic).Msg("mqtt subscribe")
			return
		}
		logger.Info().Str("topic", t.topic).Msg("mqtt subscribed")
	})
	t.client = mqtt.NewClient(opts)
	return t, nil
}

// Start connects to the broker. The subscription is made by the connect
// handler.
func (t *Telemetry) Start(ctx context.Context) error {
	token := t.client.Connect()
	select {
	case <-token.Done():
	case <-ctx.Done():
		return ctx.Err()
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("connect mqtt broker: %w", err)
	}
	return nil
}

// Close disconnects, waiting briefly for in-flight work.
func (t *Telemetry) Close() error {
	if t.client.IsConnected() {
		t.client.Disconnect(250)
	}
	return nil
}

func (t *Telemetry) onMessage(_ mqtt.Client, msg mqtt.Message) {
	ctx, cancel := context.WithTimeout(context.Background(), handlerTimeout)
	defer cancel()
	if err := t.Handle(ctx, msg.Topic(), msg.Payload()); err != nil {
		t.logger.Warn().Err(err).Str("topic", msg.Topic()).Msg("telemetry rejected")
	}
}

// Handle appends the reading carried by one message.
func (t *Telemetry) Handle(ctx context.Context, topic string, payload []byte) error {
	id, err := equipmentFromTopic(topic)
	if err != nil {
		return err
	}
	var msg TelemetryMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}
	if msg.HoursUsed < 0 {
		return store.ErrNegativeHours
	}

	e, err := t.lookup(ctx, id)
	if err != nil {
		return fmt.Errorf("equipment %s: %w", id, err)
	}
	r := store.Reading{
		EquipmentID: id,
		HoursUsed:   msg.HoursUsed,
		Temperature: msg.Temperature,
		Vibration:   msg.Vibration,
		Consumption: msg.Consumption,
		NoiseLevel:  msg.NoiseLevel,
		Cycles:      msg.Cycles,
		Source:      store.SourceMQTT,
	}
	if msg.Date != nil {
		r.Date = msg.Date.UTC()
	}
	_, _, err = t.recorder.Append(ctx, e.OwnerID, r, actorMQTT)
	return err
}

// equipmentFromTopic extracts the id segment of agroguard/<id>/telemetry.
func equipmentFromTopic(topic string) (uuid.UUID, error) {
	parts := strings.Split(topic, "/")
	if len(parts) != 3 || parts[2] != "telemetry" {
		return uuid.Nil, fmt.Errorf("unexpected topic %q", topic)
	}
	id, err := uuid.Parse(parts[1])
	if err != nil {
		return uuid.Nil, fmt.Errorf("topic %q: invalid equipment id", topic)
	}
	return id, nil
}
