// ABOUTME: Transition log handlers
// ABOUTME: List with filters, acknowledge by ID, and clear

package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/harper/geofence/internal/models"
)

// ListTransitions returns the log oldest first. limit keeps the most recent
// N; unacknowledged=true drops acknowledged entries before the limit applies.
func (h *Handler) ListTransitions(c *gin.Context) {
	limit, err := queryLimit(c)
	if err != nil {
		abortWithError(c, http.StatusBadRequest, "invalid limit parameter")
		return
	}

	transitions := h.engine.Transitions()
	if c.Query("unacknowledged") == "true" {
		pending := make([]models.Transition, 0, len(transitions))
		for _, tr := range transitions {
			if !tr.Acknowledged {
				pending = append(pending, tr)
			}
		}
		transitions = pending
	}
	if limit > 0 && limit < len(transitions) {
		transitions = transitions[len(transitions)-limit:]
	}
	if transitions == nil {
		transitions = []models.Transition{}
	}
	c.JSON(http.StatusOK, transitions)
}

func (h *Handler) AcknowledgeTransition(c *gin.Context) {
	if !h.engine.Acknowledge(c.Param("id")) {
		abortWithError(c, http.StatusNotFound, "transition not found")
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) ClearTransitions(c *gin.Context) {
	h.engine.ClearTransitions()
	c.Status(http.StatusNoContent)
}

func queryLimit(c *gin.Context) (int, error) {
	raw := c.Query("limit")
	if raw == "" {
		return 0, nil
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 0 {
		return 0, strconv.ErrSyntax
	}
	return limit, nil
}
