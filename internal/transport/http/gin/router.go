package httpgin

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/kirinyoku/venuebook/internal/metrics"
	redisrepo "github.com/kirinyoku/venuebook/internal/repository/redis"
	"github.com/kirinyoku/venuebook/internal/service"
)

// Handler carries the dependencies of the HTTP handlers. idem may be nil.
type Handler struct {
	svcs   *service.Services
	idem   *redisrepo.IdempotencyStore
	logger *slog.Logger
}

func NewRouter(
	svcs *service.Services,
	verifier Verifier,
	idem *redisrepo.IdempotencyStore,
	limiter *redisrepo.SlidingWindowLimiter,
	m *metrics.Metrics,
	logger *slog.Logger,
	middlewares ...gin.HandlerFunc,
) *gin.Engine {
	registerValidators()

	h := &Handler{svcs: svcs, idem: idem, logger: logger}

	r := gin.New()

	r.Use(gin.Recovery(), RequestIDMiddleware(), LoggingMiddleware(logger), CORS())
	if m != nil {
		r.Use(MetricsMiddleware(m))
		r.GET("/metrics", gin.WrapH(m.Handler()))
	}
	for _, mw := range middlewares {
		if mw != nil {
			r.Use(mw)
		}
	}

	// Swagger UI
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// health
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := r.Group("/", AuthMiddleware(verifier))
	{
		api.POST("/bookings", RateLimitMiddleware(limiter, "bookings", logger), h.createBooking)
		api.GET("/bookings", h.listBookings)
		api.DELETE("/bookings/:id", h.cancelBooking)

		api.POST("/venues", h.createVenue)
		api.GET("/venues/:id", h.getVenue)
		api.PUT("/venues/:id", h.updateVenue)
		api.DELETE("/venues/:id", h.deleteVenue)
		api.GET("/venues/:id/availability", h.availability)
		api.PATCH("/venues/:id/approve", h.approveVenue)
		api.PATCH("/venues/:id/owner", h.assignOwner)
	}

	return r
}

// --- Helpers ---

func parseInt64Param(c *gin.Context, name string) (int64, bool) {
	s := c.Param(name)
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil || v <= 0 {
		badRequest(c, "invalid "+name)
		return 0, false
	}
	return v, true
}
