package handlers

import (
	"smarthome/internal/logger"
	"smarthome/internal/service"
	"smarthome/internal/stream"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

const (
	defaultTelemetryRate  = rate.Limit(1)
	defaultTelemetryBurst = 5
	defaultStreamBuffer   = 32
)

// Handler wires HTTP layer to services and logging.
type Handler struct {
	services     *service.Service
	hub          *stream.Hub
	streamBuffer int
	limiter      *KeyRateLimiter
	log          *logger.Logger
}

// Option customizes a Handler.
type Option func(*Handler)

// WithStream attaches the live stream hub served on /ws.
func WithStream(hub *stream.Hub, buffer int) Option {
	return func(h *Handler) {
		h.hub = hub
		if buffer > 0 {
			h.streamBuffer = buffer
		}
	}
}

// WithTelemetryLimit sets the per-device ingest rate.
func WithTelemetryLimit(r rate.Limit, burst int) Option {
	return func(h *Handler) {
		h.limiter = NewKeyRateLimiter(r, burst)
	}
}

// NewHandler constructs a new HTTP handler with dependencies.
func NewHandler(services *service.Service, log *logger.Logger, opts ...Option) *Handler {
	h := &Handler{
		services:     services,
		streamBuffer: defaultStreamBuffer,
		limiter:      NewKeyRateLimiter(defaultTelemetryRate, defaultTelemetryBurst),
		log:          log,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// InitRoutes builds and returns the Gin router with all routes registered.
func (h *Handler) InitRoutes() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	router.GET("/health", h.health)

	h.registerAuthRoutes(router)

	// Devices authenticate with their own key, not a user token.
	router.POST("/api/v1/devices/:id/data", h.deviceKeyMiddleware, h.ingestTelemetry)

	h.registerAPIRoutes(router)

	// Live stream on the same port; the token travels in the query string.
	router.GET("/ws", h.wsConnect)

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
		h.registerHomeRoutes(api)
		h.registerApplianceRoutes(api)
		h.registerScheduleRoutes(api)
		h.registerEventRoutes(api)
	}
}

func (h *Handler) registerHomeRoutes(api *gin.RouterGroup) {
	homes := api.Group("/homes")
	{
		homes.POST("", h.createHome)
		homes.GET("", h.listHomes)
		homes.GET("/:id/members", h.listMembers)
		homes.POST("/:id/members", h.addMember)
		homes.GET("/:id/appliances", h.listAppliances)
		homes.PUT("/:id/security-pin", h.setSecurityPin)
	}

	members := api.Group("/members")
	{
		members.PUT("/:id", h.updateMemberRole)
		members.DELETE("/:id", h.removeMember)
		members.GET("/:id/permissions", h.listPermissions)
		members.PUT("/:id/permissions/:applianceId", h.grantPermission)
		members.DELETE("/:id/permissions/:applianceId", h.revokePermission)
	}
}

func (h *Handler) registerApplianceRoutes(api *gin.RouterGroup) {
	appliances := api.Group("/appliances")
	{
		appliances.POST("", h.registerAppliance)
		appliances.GET("/:id", h.getAppliance)
		appliances.PUT("/:id", h.updateAppliance)
		appliances.DELETE("/:id", h.deleteAppliance)
		// Body example: {"status":"on","power_usage":1200}
		appliances.POST("/:id/toggle", h.toggleAppliance)
		appliances.GET("/:id/access", h.applianceAccess)
		appliances.GET("/:id/activity", h.applianceActivity)
		appliances.GET("/:id/stats", h.applianceStats)
		appliances.POST("/:id/device-key", h.provisionDeviceKey)
		appliances.GET("/:id/schedules", h.listApplianceSchedules)
	}
}

func (h *Handler) registerScheduleRoutes(api *gin.RouterGroup) {
	schedules := api.Group("/schedules")
	{
		schedules.POST("", h.createSchedule)
		schedules.GET("/active", h.listActiveSchedules)
		schedules.PUT("/:id", h.updateSchedule)
		schedules.DELETE("/:id", h.deleteSchedule)
	}
}

func (h *Handler) registerEventRoutes(api *gin.RouterGroup) {
	events := api.Group("/events")
	{
		events.GET("", h.getEvents)
		events.GET("/recent", h.getRecentEvents)
	}
	api.GET("/analytics/usage", h.getDailyUsage)
}
