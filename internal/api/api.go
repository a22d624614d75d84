// ABOUTME: HTTP API exposing zones, transitions, history, and sample ingest
// ABOUTME: Gin handlers over the registry, engine, and tracker

package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/harper/geofence/internal/models"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// ZoneService is satisfied by *geofence.Registry.
type ZoneService interface {
	Zones() []models.Zone
	Zone(id string) (models.Zone, bool)
	AddZone(def models.ZoneDef) (string, error)
	UpdateZone(id string, patch models.ZonePatch) (bool, error)
	RemoveZone(id string) bool
}

// EngineService is satisfied by *geofence.Engine.
type EngineService interface {
	Running() bool
	Transitions() []models.Transition
	Acknowledge(id string) bool
	ClearTransitions()
	CurrentZones() []models.Zone
	NearestZone() (models.Zone, float64, bool)
}

// HistoryService is satisfied by *location.Tracker.
type HistoryService interface {
	History(limit int) []models.Sample
	ActivityTrail(from, to time.Time) []models.Sample
}

// Ingester is satisfied by *provider.Push.
type Ingester interface {
	Publish(s models.Sample) (int, error)
}

// Deps wires the handler. Ingest and Gatherer are optional.
type Deps struct {
	Zones    ZoneService
	Engine   EngineService
	History  HistoryService
	Ingest   Ingester
	Gatherer prometheus.Gatherer
	Logger   zerolog.Logger
}

// Handler serves the geofence API.
type Handler struct {
	zones    ZoneService
	engine   EngineService
	history  HistoryService
	ingest   Ingester
	gatherer prometheus.Gatherer
	log      zerolog.Logger
}

func NewHandler(deps Deps) *Handler {
	return &Handler{
		zones:    deps.Zones,
		engine:   deps.Engine,
		history:  deps.History,
		ingest:   deps.Ingest,
		gatherer: deps.Gatherer,
		log:      deps.Logger.With().Str("component", "api").Logger(),
	}
}

// Register mounts every route on r.
func (h *Handler) Register(r gin.IRouter) {
	r.GET("/healthz", h.Health)

	r.GET("/zones", h.ListZones)
	r.POST("/zones", h.CreateZone)
	r.GET("/zones/current", h.CurrentZones)
	r.GET("/zones/:id", h.GetZone)
	r.PATCH("/zones/:id", h.UpdateZone)
	r.DELETE("/zones/:id", h.DeleteZone)

	r.GET("/transitions", h.ListTransitions)
	r.POST("/transitions/:id/ack", h.AcknowledgeTransition)
	r.DELETE("/transitions", h.ClearTransitions)

	r.GET("/history", h.GetHistory)
	r.POST("/samples", h.IngestSample)

	if h.gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{})))
	}
}

// NewRouter builds a gin engine with recovery, request logging, and all routes.
func NewRouter(deps Deps) *gin.Engine {
	h := NewHandler(deps)
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(h.log))
	h.Register(r)
	return r
}

func requestLogger(log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Debug().
			Str("method", c.Request.Method).
			Str("path", c.FullPath()).
			Int("status", c.Writer.Status()).
			Dur("duration", time.Since(start)).
			Msg("request")
	}
}

func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"running": h.engine.Running(),
		"zones":   len(h.zones.Zones()),
	})
}

// errorStatus maps domain errors to HTTP status codes.
func errorStatus(err error) int {
	var verr *models.ValidationError
	if errors.As(err, &verr) {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func abortWithError(c *gin.Context, status int, msg string) {
	c.AbortWithStatusJSON(status, gin.H{"error": msg})
}
