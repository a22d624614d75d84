// ABOUTME: Tests for the MQTT location feed message handling
// ABOUTME: Uses a fake mqtt.Message and a recording publisher

package provider

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/harper/geofence/internal/models"
)

type fakeMQTTMessage struct {
	topic   string
	payload []byte
}

func (f *fakeMQTTMessage) Duplicate() bool   { return false }
func (f *fakeMQTTMessage) Qos() byte         { return 0 }
func (f *fakeMQTTMessage) Retained() bool    { return false }
func (f *fakeMQTTMessage) Topic() string     { return f.topic }
func (f *fakeMQTTMessage) MessageID() uint16 { return 0 }
func (f *fakeMQTTMessage) Payload() []byte   { return f.payload }
func (f *fakeMQTTMessage) Ack()              {}

type recordingPublisher struct {
	samples []models.Sample
	err     error
}

func (r *recordingPublisher) Publish(s models.Sample) (int, error) {
	if r.err != nil {
		return 0, r.err
	}
	r.samples = append(r.samples, s)
	return 1, nil
}

func message(topic string, v any) *fakeMQTTMessage {
	payload, _ := json.Marshal(v)
	return &fakeMQTTMessage{topic: topic, payload: payload}
}

func TestHandleMessage_Success(t *testing.T) {
	pub := &recordingPublisher{}
	feed := NewMQTTFeed(nil, pub, MQTTConfig{})

	acc := 6.5
	feed.handleMessage(nil, message("geofence/device/rex/location", locationMessage{
		DeviceID:  "rex",
		Latitude:  40.7829,
		Longitude: -73.9654,
		Accuracy:  &acc,
		Timestamp: 1715003456,
	}))

	if len(pub.samples) != 1 {
		t.Fatalf("expected 1 sample, got %d", len(pub.samples))
	}
	s := pub.samples[0]
	if s.Latitude != 40.7829 || s.Longitude != -73.9654 {
		t.Errorf("unexpected coordinates %+v", s)
	}
	if s.Accuracy == nil || *s.Accuracy != 6.5 {
		t.Error("accuracy lost")
	}
	if want := time.Unix(1715003456, 0).UnixMilli(); s.CapturedAt != want {
		t.Errorf("captured_at = %d, want %d", s.CapturedAt, want)
	}
}

func TestHandleMessage_DeviceFromTopic(t *testing.T) {
	pub := &recordingPublisher{}
	feed := NewMQTTFeed(nil, pub, MQTTConfig{DeviceID: "rex"})

	feed.handleMessage(nil, message("geofence/device/rex/location", locationMessage{Latitude: 1, Longitude: 1, Timestamp: 10}))
	feed.handleMessage(nil, message("geofence/device/fido/location", locationMessage{Latitude: 1, Longitude: 1, Timestamp: 10}))

	if len(pub.samples) != 1 {
		t.Errorf("expected only rex's sample, got %d", len(pub.samples))
	}
}

func TestHandleMessage_Invalid(t *testing.T) {
	tests := []struct {
		name string
		msg  *fakeMQTTMessage
	}{
		{"bad_json", &fakeMQTTMessage{topic: "geofence/device/rex/location", payload: []byte("{")}},
		{"no_device", message("other/topic", locationMessage{Latitude: 1, Longitude: 1, Timestamp: 10})},
		{"bad_latitude", message("geofence/device/rex/location", locationMessage{Latitude: 91, Longitude: 1, Timestamp: 10})},
		{"bad_longitude", message("geofence/device/rex/location", locationMessage{Latitude: 1, Longitude: -181, Timestamp: 10})},
		{"no_timestamp", message("geofence/device/rex/location", locationMessage{Latitude: 1, Longitude: 1})},
		{"negative_accuracy", message("geofence/device/rex/location", map[string]any{"latitude": 1, "longitude": 1, "timestamp": 10, "accuracy": -1})},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pub := &recordingPublisher{}
			NewMQTTFeed(nil, pub, MQTTConfig{}).handleMessage(nil, tt.msg)
			if len(pub.samples) != 0 {
				t.Errorf("expected message to be dropped, got %+v", pub.samples)
			}
		})
	}
}

func TestHandleMessage_PublishErrorIsSwallowed(t *testing.T) {
	pub := &recordingPublisher{err: errors.New("closed")}
	feed := NewMQTTFeed(nil, pub, MQTTConfig{})
	feed.handleMessage(nil, message("geofence/device/rex/location", locationMessage{Latitude: 1, Longitude: 1, Timestamp: 10}))
}

func TestDeviceFromTopic(t *testing.T) {
	tests := map[string]string{
		"geofence/device/rex/location":   "rex",
		"geofence/device/location":       "",
		"fleet/vehicle/abc/location":     "",
		"geofence/device/rex/location/x": "",
	}
	for topic, want := range tests {
		if got := deviceFromTopic(topic); got != want {
			t.Errorf("deviceFromTopic(%q) = %q, want %q", topic, got, want)
		}
	}
}
