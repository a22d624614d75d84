// ABOUTME: Best-effort upload of location samples to the history endpoint
// ABOUTME: Implements location.Uploader over plain HTTP with bearer auth

package sync

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/harper/geofence/internal/models"
)

// HistoryPath is the endpoint that receives samples.
const HistoryPath = "/api/location/history"

// Syncer uploads samples for one device.
type Syncer struct {
	config *Config
	client *http.Client
}

// NewSyncer creates a syncer from config.
func NewSyncer(cfg *Config, client *http.Client) (*Syncer, error) {
	if cfg == nil || !cfg.IsConfigured() {
		return nil, errors.New("sync not configured - run 'geofence sync init' first")
	}
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &Syncer{config: cfg, client: client}, nil
}

type historyPayload struct {
	Latitude  float64  `json:"latitude"`
	Longitude float64  `json:"longitude"`
	Accuracy  *float64 `json:"accuracy,omitempty"`
	Timestamp string   `json:"timestamp"`
	DeviceID  string   `json:"device_id"`
}

// Upload posts one sample. Any non-2xx response is an error.
func (s *Syncer) Upload(ctx context.Context, sample models.Sample) error {
	ts := sample.Time()
	if ts.IsZero() {
		ts = time.Now()
	}
	body, err := json.Marshal(historyPayload{
		Latitude:  sample.Latitude,
		Longitude: sample.Longitude,
		Accuracy:  sample.Accuracy,
		Timestamp: ts.UTC().Format(time.RFC3339),
		DeviceID:  s.config.DeviceID,
	})
	if err != nil {
		return fmt.Errorf("marshal sample: %w", err)
	}

	url := strings.TrimRight(s.config.Server, "/") + HistoryPath
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.config.Token)

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("upload sample: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("upload sample: server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
