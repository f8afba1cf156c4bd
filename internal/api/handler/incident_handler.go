package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/taskboard/uaa/internal/core/domain"
	"github.com/taskboard/uaa/internal/core/ports"
)

const (
	defaultIncidentLimit = 50
	maxIncidentLimit     = 500
)

type IncidentHandler struct {
	incidents ports.IncidentLister
}

func NewIncidentHandler(incidents ports.IncidentLister) *IncidentHandler {
	return &IncidentHandler{incidents: incidents}
}

type incidentResponse struct {
	ID         string    `json:"id"`
	Kind       string    `json:"kind"`
	UserID     string    `json:"user_id"`
	SessionIDs []string  `json:"session_ids"`
	Cause      string    `json:"cause"`
	RestoreErr string    `json:"restore_error"`
	OccurredAt time.Time `json:"occurred_at"`
}

func toIncidentResponse(inc domain.Incident) incidentResponse {
	ids := inc.SessionIDs
	if ids == nil {
		ids = []string{}
	}
	return incidentResponse{
		ID:         inc.ID,
		Kind:       inc.Kind,
		UserID:     inc.UserID,
		SessionIDs: ids,
		Cause:      inc.Cause,
		RestoreErr: inc.RestoreErr,
		OccurredAt: inc.OccurredAt,
	}
}

// ListOpen returns unresolved compensation incidents, newest first.
//
// GET /admin/incidents?limit=N (ADMIN) → 200 {"incidents": [...]}
func (h *IncidentHandler) ListOpen(c echo.Context) error {
	limit := int64(defaultIncidentLimit)
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || n <= 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "limit must be a positive integer")
		}
		limit = min(n, maxIncidentLimit)
	}

	incidents, err := h.incidents.ListOpen(c.Request().Context(), limit)
	if err != nil {
		return err
	}

	out := make([]incidentResponse, 0, len(incidents))
	for _, inc := range incidents {
		out = append(out, toIncidentResponse(inc))
	}
	return c.JSON(http.StatusOK, map[string][]incidentResponse{"incidents": out})
}
