// ABOUTME: Location history query and sample ingest handlers
// ABOUTME: History can be returned as JSON samples or GeoJSON

package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/harper/geofence/internal/geojson"
	"github.com/harper/geofence/internal/models"
)

// GetHistory supports limit, from/to (RFC3339), and format=geojson with
// shape=line or points.
func (h *Handler) GetHistory(c *gin.Context) {
	var samples []models.Sample

	from, to := c.Query("from"), c.Query("to")
	if from != "" || to != "" {
		start, end, err := parseRange(from, to)
		if err != nil {
			abortWithError(c, http.StatusBadRequest, err.Error())
			return
		}
		samples = h.history.ActivityTrail(start, end)
	} else {
		limit, err := queryLimit(c)
		if err != nil {
			abortWithError(c, http.StatusBadRequest, "invalid limit parameter")
			return
		}
		samples = h.history.History(limit)
	}

	if c.Query("format") == "geojson" {
		if c.Query("shape") == "line" {
			c.JSON(http.StatusOK, geojson.SamplesToLine(samples))
		} else {
			c.JSON(http.StatusOK, geojson.SamplesToPoints(samples))
		}
		return
	}

	if samples == nil {
		samples = []models.Sample{}
	}
	c.JSON(http.StatusOK, samples)
}

func parseRange(from, to string) (time.Time, time.Time, error) {
	start := time.Unix(0, 0)
	end := time.Now()
	var err error
	if from != "" {
		if start, err = time.Parse(time.RFC3339, from); err != nil {
			return time.Time{}, time.Time{}, errors.New("invalid from parameter")
		}
	}
	if to != "" {
		if end, err = time.Parse(time.RFC3339, to); err != nil {
			return time.Time{}, time.Time{}, errors.New("invalid to parameter")
		}
	}
	if end.Before(start) {
		return time.Time{}, time.Time{}, errors.New("to must not be before from")
	}
	return start, end, nil
}

type sampleRequest struct {
	Latitude   *float64 `json:"latitude" binding:"required"`
	Longitude  *float64 `json:"longitude" binding:"required"`
	Accuracy   *float64 `json:"accuracy"`
	Altitude   *float64 `json:"altitude"`
	Heading    *float64 `json:"heading"`
	Speed      *float64 `json:"speed"`
	CapturedAt int64    `json:"captured_at_ms"`
}

// IngestSample pushes a sample into the provider feeding the tracker.
func (h *Handler) IngestSample(c *gin.Context) {
	if h.ingest == nil {
		abortWithError(c, http.StatusServiceUnavailable, "sample ingest not enabled")
		return
	}

	var req sampleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	delivered, err := h.ingest.Publish(models.Sample{
		Latitude:   *req.Latitude,
		Longitude:  *req.Longitude,
		Accuracy:   req.Accuracy,
		Altitude:   req.Altitude,
		Heading:    req.Heading,
		Speed:      req.Speed,
		CapturedAt: req.CapturedAt,
	})
	if err != nil {
		abortWithError(c, errorStatus(err), err.Error())
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"delivered": delivered})
}
