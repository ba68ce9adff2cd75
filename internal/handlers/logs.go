package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"fireplus/internal/models"
	"fireplus/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	layoutDateTime = "2006-01-02 15:04:05"
	layoutDate     = "2006-01-02"

	errLoadLogs = "failed to load logs"
)

var errUnknownLogDevice = errors.New("unknown device")

// logQuery is the query string of GET /api/v1/logs.
type logQuery struct {
	From   string `form:"from"`
	To     string `form:"to"`
	Type   string `form:"type"`
	Device string `form:"device"`
}

// timeRange parses the bounds. A date-only 'to' covers that whole day.
func (q logQuery) timeRange() (from, to time.Time, err error) {
	if q.From != "" {
		if from, err = parseQueryTime(q.From); err != nil {
			return from, to, fmt.Errorf("invalid 'from': %w", err)
		}
	}
	if q.To != "" {
		if to, err = parseQueryTime(q.To); err != nil {
			return from, to, fmt.Errorf("invalid 'to': %w", err)
		}
		if !strings.ContainsAny(q.To, "T ") {
			to = to.Add(24*time.Hour - time.Nanosecond)
		}
	}
	if !from.IsZero() && !to.IsZero() && from.After(to) {
		return from, to, errors.New("'from' must be <= 'to'")
	}
	return from, to, nil
}

// @Summary      List logs
// @Description  Filter logs by date (RFC3339, 'YYYY-MM-DD HH:MM:SS', or 'YYYY-MM-DD'), event type and device. A date-only 'to' is inclusive of that day. 'device' takes a device id or host slug; ids of removed devices still return their history.
// @Tags         logs
// @Produce      json
// @Param        from    query   string  false  "Start of range"  example(2025-08-01)
// @Param        to      query   string  false  "End of range"  example(2025-08-31)
// @Param        type    query   string  false  "Event type"  Enums(SETUP,SETUP_FAILED,UPDATE_FAILED,REAUTH_REQUIRED,RECOVERED,RELOADED,REMOVED)
// @Param        device  query   string  false  "Device id or unique id"
// @Success      200   {object}  map[string]interface{}  "count, events"
// @Failure      400   {object}  map[string]string
// @Failure      401   {object}  map[string]string
// @Failure      404   {object}  map[string]string
// @Failure      500   {object}  map[string]string
// @Router       /api/v1/logs [get]
// @Security     BearerAuth
func (h *Handler) getLogs(c *gin.Context) {
	ctx := c.Request.Context()

	var q logQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	from, to, err := q.timeRange()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	eventType := strings.ToUpper(strings.TrimSpace(q.Type))
	if eventType != "" && !models.IsEventType(eventType) {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("unknown event type %q", q.Type)})
		return
	}

	deviceID, err := h.resolveLogDevice(ctx, strings.TrimSpace(q.Device))
	switch {
	case errors.Is(err, errUnknownLogDevice):
		c.JSON(http.StatusNotFound, gin.H{"error": errDeviceNotFound})
		return
	case err != nil:
		h.logAndJSONError(c, http.StatusInternalServerError, errLoadLogs, "logs_device_lookup_failed", err, "device", q.Device)
		return
	}

	events, err := h.services.EventLog.List(ctx, service.LogFilter{
		From:     from,
		To:       to,
		Type:     eventType,
		DeviceID: deviceID,
	})
	if err != nil {
		h.logAndJSONError(c, http.StatusInternalServerError, errLoadLogs, "logs_list_failed", err,
			"from", from, "to", to, "type", eventType, "device", deviceID)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"count":  len(events),
		"events": events,
	})
}

// resolveLogDevice maps a device reference to a device id. Configured devices
// match by id or unique id. An unmatched UUID is kept so the history of a
// removed device stays reachable.
func (h *Handler) resolveLogDevice(ctx context.Context, ref string) (string, error) {
	if ref == "" {
		return "", nil
	}

	st, err := h.services.Devices.GetDevice(ctx, ref)
	if err == nil {
		return st.ID, nil
	}
	if !errors.Is(err, service.ErrDeviceNotFound) {
		return "", err
	}

	devices, err := h.services.Devices.ListDevices(ctx)
	if err != nil {
		return "", err
	}
	for _, d := range devices {
		if d.UniqueID == ref {
			return d.ID, nil
		}
	}
	if _, err := uuid.Parse(ref); err == nil {
		return ref, nil
	}
	return "", errUnknownLogDevice
}

func parseQueryTime(s string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339, layoutDateTime, layoutDate} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("%q is not RFC3339, 'YYYY-MM-DD HH:MM:SS' or 'YYYY-MM-DD'", s)
}
