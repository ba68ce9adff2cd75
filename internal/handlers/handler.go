package handlers

import (
	"net/http"

	"fireplus/internal/logger"
	"fireplus/internal/service"

	"github.com/gin-gonic/gin"

	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

// Handler wires HTTP layer to services and logging.
type Handler struct {
	services *service.Service
	log      *logger.Logger
	metrics  http.Handler
}

// NewHandler constructs a new HTTP handler with dependencies.
// metrics is served on /metrics when non-nil.
func NewHandler(services *service.Service, log *logger.Logger, metrics http.Handler) *Handler {
	return &Handler{services: services, log: log, metrics: metrics}
}

// InitRoutes builds and returns the Gin router with all routes registered.
func (h *Handler) InitRoutes() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	router.GET("/health", h.health)
	if h.metrics != nil {
		router.GET("/metrics", gin.WrapH(h.metrics))
	}

	h.registerAuthRoutes(router)
	h.registerAPIRoutes(router)

	// live sensor feed, same port and same tokens as the API
	router.GET("/ws", h.wsAuthMiddleware, h.wsConnect)

	return router
}

func (h *Handler) registerAuthRoutes(r *gin.Engine) {
	auth := r.Group("/auth")
	{
		auth.POST("/sign-up", h.signUp)
		auth.POST("/sign-in", h.signIn)
	}
}

func (h *Handler) registerAPIRoutes(r *gin.Engine) {
	api := r.Group("/api/v1", h.userIdMiddleware)
	{
		h.registerDeviceRoutes(api)
		h.registerLogRoutes(api)
	}
}

func (h *Handler) registerDeviceRoutes(api *gin.RouterGroup) {
	devices := api.Group("/devices")
	{
		devices.GET("", h.listDevices)
		// Body example: {"host":"192.168.1.20","interval_sec":30}
		devices.POST("", h.addDevice)
		devices.GET("/:id", h.getDevice)
		devices.PATCH("/:id", h.updateDevice)
		devices.DELETE("/:id", h.removeDevice)
		devices.POST("/:id/reload", h.reloadDevice)

		devices.GET("/:id/sensors", h.listSensors)
		devices.GET("/:id/sensors/:key", h.getSensor)
	}
}

func (h *Handler) registerLogRoutes(api *gin.RouterGroup) {
	logs := api.Group("/logs")
	{
		logs.GET("/", h.getLogs)
	}
}

// @Summary      Health check
// @Tags         system
// @Produce      json
// @Success      200  {object}  map[string]string
// @Router       /health [get]
func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": statusOK,
	})
}

// Centralized error logging and response.
func (h *Handler) logAndJSONError(c *gin.Context, httpCode int, userMsg, logKey string, err error, kv ...interface{}) {
	if h.log != nil && err != nil {
		fields := append([]interface{}{"err", err}, kv...)
		h.log.Errorw(logKey, fields...)
	}
	c.JSON(httpCode, gin.H{"error": userMsg})
}
