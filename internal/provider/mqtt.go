// ABOUTME: MQTT subscriber that feeds device location messages into a provider
// ABOUTME: Listens on geofence/device/+/location and drops malformed payloads

package provider

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/harper/geofence/internal/models"
	"github.com/rs/zerolog"
)

// TopicPattern matches location messages from every device.
const TopicPattern = "geofence/device/+/location"

// Publisher accepts samples for delivery to watchers.
type Publisher interface {
	Publish(s models.Sample) (int, error)
}

// MQTTConfig configures the feed.
type MQTTConfig struct {
	// DeviceID limits the feed to one device. Empty accepts all devices.
	DeviceID string
	QoS      byte
	Logger   zerolog.Logger
}

type locationMessage struct {
	DeviceID  string   `json:"device_id"`
	Latitude  float64  `json:"latitude"`
	Longitude float64  `json:"longitude"`
	Accuracy  *float64 `json:"accuracy,omitempty"`
	Altitude  *float64 `json:"altitude,omitempty"`
	Heading   *float64 `json:"heading,omitempty"`
	Speed     *float64 `json:"speed,omitempty"`
	Timestamp int64    `json:"timestamp"`
}

// MQTTFeed subscribes to device location topics.
type MQTTFeed struct {
	client   mqtt.Client
	sink     Publisher
	deviceID string
	qos      byte
	log      zerolog.Logger
}

// DialMQTT connects to a broker.
func DialMQTT(broker, clientID string) (mqtt.Client, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("mqtt connect: %w", token.Error())
	}
	return client, nil
}

// NewMQTTFeed creates a feed. Nothing is subscribed until Start.
func NewMQTTFeed(client mqtt.Client, sink Publisher, cfg MQTTConfig) *MQTTFeed {
	return &MQTTFeed{
		client:   client,
		sink:     sink,
		deviceID: cfg.DeviceID,
		qos:      cfg.QoS,
		log:      cfg.Logger.With().Str("component", "mqtt_feed").Logger(),
	}
}

// Start subscribes to the location topic.
func (f *MQTTFeed) Start() error {
	token := f.client.Subscribe(TopicPattern, f.qos, f.handleMessage)
	token.Wait()
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt subscribe: %w", err)
	}
	f.log.Info().Str("topic", TopicPattern).Msg("subscribed")
	return nil
}

// Stop unsubscribes from the location topic.
func (f *MQTTFeed) Stop() error {
	token := f.client.Unsubscribe(TopicPattern)
	token.Wait()
	return token.Error()
}

func (f *MQTTFeed) handleMessage(_ mqtt.Client, msg mqtt.Message) {
	var raw locationMessage
	if err := json.Unmarshal(msg.Payload(), &raw); err != nil {
		f.log.Warn().Err(err).Str("topic", msg.Topic()).Msg("invalid location message")
		return
	}
	if raw.DeviceID == "" {
		raw.DeviceID = deviceFromTopic(msg.Topic())
	}

	if err := validateLocationMessage(&raw); err != nil {
		f.log.Warn().Err(err).Str("topic", msg.Topic()).Msg("dropping location message")
		return
	}
	if f.deviceID != "" && raw.DeviceID != f.deviceID {
		return
	}

	s := models.Sample{
		Latitude:   raw.Latitude,
		Longitude:  raw.Longitude,
		Accuracy:   raw.Accuracy,
		Altitude:   raw.Altitude,
		Heading:    raw.Heading,
		Speed:      raw.Speed,
		CapturedAt: time.Unix(raw.Timestamp, 0).UnixMilli(),
	}
	if _, err := f.sink.Publish(s); err != nil {
		f.log.Warn().Err(err).Str("device_id", raw.DeviceID).Msg("publish sample failed")
	}
}

// deviceFromTopic extracts the + segment of geofence/device/+/location.
func deviceFromTopic(topic string) string {
	parts := strings.Split(topic, "/")
	if len(parts) == 4 && parts[0] == "geofence" && parts[1] == "device" && parts[3] == "location" {
		return parts[2]
	}
	return ""
}

func validateLocationMessage(msg *locationMessage) error {
	if msg.DeviceID == "" {
		return fmt.Errorf("device_id: required")
	}
	if err := models.ValidateCoordinates(msg.Latitude, msg.Longitude); err != nil {
		return err
	}
	if msg.Accuracy != nil && *msg.Accuracy < 0 {
		return fmt.Errorf("accuracy: must not be negative")
	}
	if msg.Timestamp <= 0 {
		return fmt.Errorf("timestamp: must be positive")
	}
	return nil
}
