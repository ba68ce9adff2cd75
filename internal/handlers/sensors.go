package handlers

import (
	"errors"
	"net/http"

	"fireplus/internal/service"

	"github.com/gin-gonic/gin"
)

func (h *Handler) sensorError(c *gin.Context, logKey string, err error, kv ...interface{}) {
	switch {
	case errors.Is(err, service.ErrDeviceNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": errDeviceNotFound})
	case errors.Is(err, service.ErrSensorNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": errSensorNotFound})
	default:
		h.logAndJSONError(c, http.StatusInternalServerError, errLoadSensors, logKey, err, kv...)
	}
}

// @Summary      List sensors
// @Description  Values come from the last poll; nothing is fetched from the panel.
// @Tags         sensors
// @Produce      json
// @Param        id   path      string  true  "Device ID"
// @Success      200  {object}  map[string]interface{}  "count, sensors"
// @Failure      401  {object}  map[string]string
// @Failure      404  {object}  map[string]string
// @Router       /api/v1/devices/{id}/sensors [get]
// @Security     BearerAuth
func (h *Handler) listSensors(c *gin.Context) {
	sensors, err := h.services.Monitoring.Sensors(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.sensorError(c, "sensors_list_failed", err, "device", c.Param("id"))
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"count":   len(sensors),
		"sensors": sensors,
	})
}

// @Summary      Get sensor
// @Tags         sensors
// @Produce      json
// @Param        id   path      string  true  "Device ID"
// @Param        key  path      string  true  "Sensor key"  Enums(operation,operating_mode,power,brightness,temperature,air_slide,fine_draft,status,errors,led,burn_phase,volume)
// @Success      200  {object}  models.Sensor
// @Failure      401  {object}  map[string]string
// @Failure      404  {object}  map[string]string
// @Router       /api/v1/devices/{id}/sensors/{key} [get]
// @Security     BearerAuth
func (h *Handler) getSensor(c *gin.Context) {
	sn, err := h.services.Monitoring.Sensor(c.Request.Context(), c.Param("id"), c.Param("key"))
	if err != nil {
		h.sensorError(c, "sensor_get_failed", err, "device", c.Param("id"), "key", c.Param("key"))
		return
	}
	c.JSON(http.StatusOK, sn)
}
