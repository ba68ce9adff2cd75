package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"fireplus/internal/models"
	"fireplus/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// Send/receive timing configuration and message size limits.
const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	maxMsgSize = 1 << 12 // 4 KB
)

const wsTypeSensors = "sensors"

// Envelope used for WebSocket messages.
type wsEnvelope struct {
	Type   string      `json:"type"`
	Device string      `json:"device,omitempty"`
	Data   interface{} `json:"data,omitempty"`
	Error  string      `json:"error,omitempty"`
}

// Upgrader for HTTP -> WebSocket. Origins are not checked.
var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// @Summary      Live sensor feed
// @Description  WebSocket. Sends the current sensors of the device, then a new message after every poll. Authenticate with the bearer header or the 'token' query parameter.
// @Tags         sensors
// @Param        device  query  string  true   "Device ID"
// @Param        token   query  string  false  "Bearer token when no Authorization header can be sent"
// @Success      101
// @Failure      400  {object}  map[string]string
// @Failure      401  {object}  map[string]string
// @Failure      404  {object}  map[string]string
// @Router       /ws [get]
// @Security     BearerAuth
func (h *Handler) wsConnect(c *gin.Context) {
	deviceID := strings.TrimSpace(c.Query("device"))
	if deviceID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing 'device' query parameter"})
		return
	}

	// resolve the device before upgrading so errors are plain HTTP
	initial, err := h.services.Monitoring.Sensors(c.Request.Context(), deviceID)
	if err != nil {
		if errors.Is(err, service.ErrDeviceNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": errDeviceNotFound})
			return
		}
		h.logAndJSONError(c, http.StatusInternalServerError, errLoadSensors, "ws_sensors_failed", err, "device", deviceID)
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		if h.log != nil {
			h.log.Errorw("ws_upgrade_failed", "err", err)
		}
		return
	}
	defer func() { _ = conn.Close() }()

	// Configure read limits and pong handler to extend read deadline.
	conn.SetReadLimit(maxMsgSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	// Reader goroutine to handle control frames and detect disconnects.
	done := make(chan struct{})
	go h.startReader(conn, done)

	updates := make(chan []models.Sensor, 1)
	unsubscribe := h.services.Monitoring.Subscribe(deviceID, func(s []models.Sensor) {
		offerLatest(updates, s)
	})
	defer unsubscribe()

	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()

	if err := h.sendSensors(conn, deviceID, initial); err != nil {
		if h.log != nil {
			h.log.Infow("ws_write_failed_initial", "err", err)
		}
		return
	}

	for {
		select {
		case <-done:
			return
		case <-c.Request.Context().Done():
			return
		case <-ping.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				if h.log != nil {
					h.log.Infow("ws_ping_failed", "err", err)
				}
				return
			}
		case s := <-updates:
			if err := h.sendSensors(conn, deviceID, s); err != nil {
				if h.log != nil {
					h.log.Infow("ws_write_failed", "err", err)
				}
				return
			}
		}
	}
}

// offerLatest puts s into a one-slot channel, replacing an unsent value.
func offerLatest(ch chan []models.Sensor, s []models.Sensor) {
	for {
		select {
		case ch <- s:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}

// startReader drains incoming messages to handle control frames and detect closure.
func (h *Handler) startReader(conn *websocket.Conn, done chan<- struct{}) {
	defer close(done)
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if h.log != nil {
				h.log.Infow("ws_read_closed", "err", err)
			}
			return
		}
	}
}

func (h *Handler) sendSensors(conn *websocket.Conn, deviceID string, s []models.Sensor) error {
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(wsEnvelope{Type: wsTypeSensors, Device: deviceID, Data: s})
}
