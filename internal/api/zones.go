// ABOUTME: Zone CRUD handlers and the current-zone query
// ABOUTME: Validation failures become 400 responses

package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/harper/geofence/internal/models"
)

type zoneRequest struct {
	Name          string   `json:"name" binding:"required"`
	Latitude      *float64 `json:"latitude" binding:"required"`
	Longitude     *float64 `json:"longitude" binding:"required"`
	RadiusMeters  float64  `json:"radius_meters"`
	Category      string   `json:"category"`
	Enabled       *bool    `json:"enabled"`
	NotifyOnEntry *bool    `json:"notify_on_entry"`
	NotifyOnExit  *bool    `json:"notify_on_exit"`
}

// def converts the request, defaulting omitted flags to true.
func (r zoneRequest) def() models.ZoneDef {
	def := models.NewZoneDef(r.Name, *r.Latitude, *r.Longitude, r.RadiusMeters, models.Category(r.Category))
	if r.Enabled != nil {
		def.Enabled = *r.Enabled
	}
	if r.NotifyOnEntry != nil {
		def.NotifyOnEntry = *r.NotifyOnEntry
	}
	if r.NotifyOnExit != nil {
		def.NotifyOnExit = *r.NotifyOnExit
	}
	return def
}

type nearestResponse struct {
	Zone           models.Zone `json:"zone"`
	DistanceMeters float64     `json:"distance_meters"`
}

func (h *Handler) ListZones(c *gin.Context) {
	zones := h.zones.Zones()
	if c.Query("enabled") == "true" {
		var enabled []models.Zone
		for _, z := range zones {
			if z.Enabled {
				enabled = append(enabled, z)
			}
		}
		zones = enabled
	}
	if zones == nil {
		zones = []models.Zone{}
	}
	c.JSON(http.StatusOK, zones)
}

func (h *Handler) CreateZone(c *gin.Context) {
	var req zoneRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	id, err := h.zones.AddZone(req.def())
	if err != nil {
		abortWithError(c, errorStatus(err), err.Error())
		return
	}

	z, _ := h.zones.Zone(id)
	c.JSON(http.StatusCreated, z)
}

func (h *Handler) GetZone(c *gin.Context) {
	z, ok := h.zones.Zone(c.Param("id"))
	if !ok {
		abortWithError(c, http.StatusNotFound, "zone not found")
		return
	}
	c.JSON(http.StatusOK, z)
}

func (h *Handler) UpdateZone(c *gin.Context) {
	var patch models.ZonePatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		abortWithError(c, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if patch.IsEmpty() {
		abortWithError(c, http.StatusBadRequest, "no fields to update")
		return
	}
	if patch.Category != nil {
		cat, err := models.ParseCategory(string(*patch.Category))
		if err != nil {
			abortWithError(c, http.StatusBadRequest, err.Error())
			return
		}
		patch.Category = &cat
	}

	id := c.Param("id")
	found, err := h.zones.UpdateZone(id, patch)
	if err != nil {
		abortWithError(c, errorStatus(err), err.Error())
		return
	}
	if !found {
		abortWithError(c, http.StatusNotFound, "zone not found")
		return
	}

	z, _ := h.zones.Zone(id)
	c.JSON(http.StatusOK, z)
}

func (h *Handler) DeleteZone(c *gin.Context) {
	if !h.zones.RemoveZone(c.Param("id")) {
		abortWithError(c, http.StatusNotFound, "zone not found")
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) CurrentZones(c *gin.Context) {
	zones := h.engine.CurrentZones()
	if zones == nil {
		zones = []models.Zone{}
	}

	resp := gin.H{"zones": zones, "nearest": nil}
	if z, dist, ok := h.engine.NearestZone(); ok {
		resp["nearest"] = nearestResponse{Zone: z, DistanceMeters: dist}
	}
	c.JSON(http.StatusOK, resp)
}
