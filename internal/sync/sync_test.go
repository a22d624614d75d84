// ABOUTME: Tests for sample uploads against a local HTTP server
// ABOUTME: Verifies payload shape, auth header, and error statuses

package sync

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/harper/geofence/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSyncerRequiresConfig(t *testing.T) {
	_, err := NewSyncer(&Config{Server: "http://x"}, nil)
	assert.Error(t, err)

	_, err = NewSyncer(nil, nil)
	assert.Error(t, err)
}

func TestUpload(t *testing.T) {
	var (
		gotPath   string
		gotAuth   string
		gotMethod string
		gotBody   map[string]any
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		gotMethod = r.Method
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	s, err := NewSyncer(&Config{Server: srv.URL + "/", Token: "tok", DeviceID: "dev-1"}, srv.Client())
	require.NoError(t, err)

	captured := time.Date(2026, 3, 1, 12, 30, 0, 0, time.UTC)
	sample := models.Sample{Latitude: 41.8781, Longitude: -87.6298, Accuracy: models.Float(8), CapturedAt: captured.UnixMilli()}
	require.NoError(t, s.Upload(context.Background(), sample))

	assert.Equal(t, http.MethodPost, gotMethod)
	assert.Equal(t, HistoryPath, gotPath)
	assert.Equal(t, "Bearer tok", gotAuth)
	assert.Equal(t, 41.8781, gotBody["latitude"])
	assert.Equal(t, -87.6298, gotBody["longitude"])
	assert.Equal(t, 8.0, gotBody["accuracy"])
	assert.Equal(t, "2026-03-01T12:30:00Z", gotBody["timestamp"])
	assert.Equal(t, "dev-1", gotBody["device_id"])
}

func TestUploadOmitsMissingAccuracy(t *testing.T) {
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
	}))
	defer srv.Close()

	s, err := NewSyncer(&Config{Server: srv.URL, Token: "tok", DeviceID: "dev-1"}, srv.Client())
	require.NoError(t, err)
	require.NoError(t, s.Upload(context.Background(), models.Sample{Latitude: 1, Longitude: 2, CapturedAt: 1}))

	_, present := gotBody["accuracy"]
	assert.False(t, present)
}

func TestUploadErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "token expired", http.StatusUnauthorized)
	}))
	defer srv.Close()

	s, err := NewSyncer(&Config{Server: srv.URL, Token: "tok", DeviceID: "dev-1"}, srv.Client())
	require.NoError(t, err)

	err = s.Upload(context.Background(), models.Sample{Latitude: 1, Longitude: 2, CapturedAt: 1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
	assert.Contains(t, err.Error(), "token expired")
}

func TestUploadHonoursContext(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
		select {
		case <-r.Context().Done():
		case <-release:
		}
	}))
	defer srv.Close()
	// Runs before srv.Close so a handler still parked on the request is let go.
	defer close(release)

	s, err := NewSyncer(&Config{Server: srv.URL, Token: "tok", DeviceID: "dev-1"}, srv.Client())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	assert.Error(t, s.Upload(ctx, models.Sample{Latitude: 1, Longitude: 2, CapturedAt: 1}))
}
