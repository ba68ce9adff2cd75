package handlers

import (
	"errors"
	"net/http"

	"fireplus/internal/service"

	"github.com/gin-gonic/gin"
)

// Common response/status constants to avoid magic strings and typos.
const (
	statusOK       = "ok"
	statusRemoved  = "removed"
	statusReloaded = "reloaded"

	errDeviceNotFound  = "device not found"
	errSensorNotFound  = "sensor not found"
	errListDevices     = "failed to load devices"
	errGetDevice       = "failed to load device"
	errSaveDevice      = "failed to save device"
	errRemoveDevice    = "failed to remove device"
	errReloadDevice    = "failed to reload device"
	errLoadSensors     = "failed to load sensors"
	errInvalidBodyPref = "invalid body: "
)

// AddDeviceRequest is the payload of the setup flow.
type AddDeviceRequest struct {
	// IP address or host name of the panel
	Host string `json:"host" binding:"required" example:"192.168.1.20"`
	// Poll interval in seconds; 0 or omitted uses the configured default
	IntervalSec int `json:"interval_sec,omitempty" example:"30"`
}

// UpdateDeviceRequest changes the options of a configured device.
type UpdateDeviceRequest struct {
	// Poll interval in seconds
	IntervalSec int `json:"interval_sec" binding:"required" example:"60"`
}

// deviceError maps device service errors to HTTP responses. The setup flow
// errors are reported with their error code.
func (h *Handler) deviceError(c *gin.Context, userMsg, logKey string, err error, kv ...interface{}) {
	switch {
	case errors.Is(err, service.ErrDeviceNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": errDeviceNotFound})
	case errors.Is(err, service.ErrAlreadyConfigured):
		c.JSON(http.StatusConflict, gin.H{"error": service.ErrAlreadyConfigured.Error()})
	case errors.Is(err, service.ErrCannotConnect):
		h.logInfo(logKey, err, kv...)
		c.JSON(http.StatusBadRequest, gin.H{"error": service.ErrCannotConnect.Error()})
	case errors.Is(err, service.ErrUnknown):
		h.logInfo(logKey, err, kv...)
		c.JSON(http.StatusBadRequest, gin.H{"error": service.ErrUnknown.Error()})
	case errors.Is(err, service.ErrInvalidHost), errors.Is(err, service.ErrInvalidInterval):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		h.logAndJSONError(c, http.StatusInternalServerError, userMsg, logKey, err, kv...)
	}
}

func (h *Handler) logInfo(logKey string, err error, kv ...interface{}) {
	if h.log != nil {
		h.log.Infow(logKey, append([]interface{}{"err", err}, kv...)...)
	}
}

// @Summary      List devices
// @Tags         devices
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "count, devices"
// @Failure      401  {object}  map[string]string
// @Failure      500  {object}  map[string]string
// @Router       /api/v1/devices [get]
// @Security     BearerAuth
func (h *Handler) listDevices(c *gin.Context) {
	devices, err := h.services.Devices.ListDevices(c.Request.Context())
	if err != nil {
		h.logAndJSONError(c, http.StatusInternalServerError, errListDevices, "devices_list_failed", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"count":   len(devices),
		"devices": devices,
	})
}

// @Summary      Add device
// @Description  Validates the panel with one status request before saving. Failures return error code "connection" or "unknown"; a host that is already configured returns "already_configured".
// @Tags         devices
// @Accept       json
// @Produce      json
// @Param        body  body      AddDeviceRequest  true  "Device payload"
// @Success      201   {object}  models.DeviceStatus
// @Failure      400   {object}  map[string]string
// @Failure      401   {object}  map[string]string
// @Failure      409   {object}  map[string]string
// @Failure      500   {object}  map[string]string
// @Router       /api/v1/devices [post]
// @Security     BearerAuth
func (h *Handler) addDevice(c *gin.Context) {
	var req AddDeviceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": errInvalidBodyPref + err.Error()})
		return
	}
	st, err := h.services.Devices.AddDevice(c.Request.Context(), service.DeviceParams{
		Host:        req.Host,
		IntervalSec: req.IntervalSec,
	})
	if err != nil {
		h.deviceError(c, errSaveDevice, "device_add_failed", err, "host", req.Host)
		return
	}
	c.JSON(http.StatusCreated, st)
}

// @Summary      Get device
// @Tags         devices
// @Produce      json
// @Param        id   path      string  true  "Device ID"
// @Success      200  {object}  models.DeviceStatus
// @Failure      401  {object}  map[string]string
// @Failure      404  {object}  map[string]string
// @Failure      500  {object}  map[string]string
// @Router       /api/v1/devices/{id} [get]
// @Security     BearerAuth
func (h *Handler) getDevice(c *gin.Context) {
	st, err := h.services.Devices.GetDevice(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.deviceError(c, errGetDevice, "device_get_failed", err, "device", c.Param("id"))
		return
	}
	c.JSON(http.StatusOK, st)
}

// @Summary      Update device options
// @Description  Stores the new poll interval and reloads the device.
// @Tags         devices
// @Accept       json
// @Produce      json
// @Param        id    path      string               true  "Device ID"
// @Param        body  body      UpdateDeviceRequest  true  "Options payload"
// @Success      200   {object}  models.DeviceStatus
// @Failure      400   {object}  map[string]string
// @Failure      401   {object}  map[string]string
// @Failure      404   {object}  map[string]string
// @Failure      500   {object}  map[string]string
// @Router       /api/v1/devices/{id} [patch]
// @Security     BearerAuth
func (h *Handler) updateDevice(c *gin.Context) {
	var req UpdateDeviceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": errInvalidBodyPref + err.Error()})
		return
	}
	st, err := h.services.Devices.UpdateDevice(c.Request.Context(), c.Param("id"), service.DeviceUpdate{
		IntervalSec: req.IntervalSec,
	})
	if err != nil {
		h.deviceError(c, errSaveDevice, "device_update_failed", err, "device", c.Param("id"))
		return
	}
	c.JSON(http.StatusOK, st)
}

// @Summary      Remove device
// @Tags         devices
// @Produce      json
// @Param        id   path      string  true  "Device ID"
// @Success      200  {object}  map[string]string
// @Failure      401  {object}  map[string]string
// @Failure      404  {object}  map[string]string
// @Failure      500  {object}  map[string]string
// @Router       /api/v1/devices/{id} [delete]
// @Security     BearerAuth
func (h *Handler) removeDevice(c *gin.Context) {
	id := c.Param("id")
	if err := h.services.Devices.RemoveDevice(c.Request.Context(), id); err != nil {
		h.deviceError(c, errRemoveDevice, "device_remove_failed", err, "device", id)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": statusRemoved, "id": id})
}

// @Summary      Reload device
// @Description  Restarts polling; clears a pending reauthentication.
// @Tags         devices
// @Produce      json
// @Param        id   path      string  true  "Device ID"
// @Success      200  {object}  map[string]interface{}  "status, device"
// @Failure      401  {object}  map[string]string
// @Failure      404  {object}  map[string]string
// @Failure      500  {object}  map[string]string
// @Router       /api/v1/devices/{id}/reload [post]
// @Security     BearerAuth
func (h *Handler) reloadDevice(c *gin.Context) {
	st, err := h.services.Devices.ReloadDevice(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.deviceError(c, errReloadDevice, "device_reload_failed", err, "device", c.Param("id"))
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": statusReloaded, "device": st})
}
