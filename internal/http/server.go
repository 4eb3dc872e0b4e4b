// README: API gateway; registers HTTP routes and delegates to module services.
package http

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"smartride/internal/http/handlers"
	"smartride/internal/http/middleware"
	"smartride/internal/modules/trip"
)

type ServerDeps struct {
	Trips          *trip.Manager
	Places         handlers.Places
	Metrics        http.Handler
	Logger         *zap.Logger
	SearchDebounce time.Duration
}

type Server struct {
	trips    *trip.Manager
	places   handlers.Places
	metrics  http.Handler
	logger   *zap.Logger
	debounce time.Duration
}

func NewServer(deps ServerDeps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		trips:    deps.Trips,
		places:   deps.Places,
		metrics:  deps.Metrics,
		logger:   logger,
		debounce: deps.SearchDebounce,
	}
}

func (s *Server) Routes() http.Handler {
	r := gin.New()
	r.Use(middleware.Recovery(s.logger), middleware.Logging(s.logger))

	r.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "OK")
	})
	if s.metrics != nil {
		r.GET("/metrics", gin.WrapH(s.metrics))
	}

	api := r.Group("/api")

	locationHandler := handlers.NewLocationHandler(s.places)
	api.GET("/locations/search", locationHandler.Search)
	api.GET("/locations/reverse", locationHandler.Reverse)

	tripHandler := handlers.NewTripHandler(s.trips)
	streamHandler := handlers.NewStreamHandler(s.places, s.debounce, s.logger)
	api.POST("/trips", tripHandler.Create)

	session := api.Group("/trips/:id", middleware.LoadTrip(s.trips))
	session.GET("", tripHandler.Get)
	session.DELETE("", tripHandler.Delete)
	session.PUT("/pickup", tripHandler.SetPickup)
	session.PUT("/drop", tripHandler.SetDrop)
	session.POST("/pin", tripHandler.Pin)
	session.PUT("/preference", tripHandler.SetPreference)
	session.PUT("/offer", tripHandler.SelectOffer)
	session.POST("/booking", tripHandler.Confirm)
	session.PUT("/tip", tripHandler.SetTip)
	session.POST("/cancel", tripHandler.Cancel)
	session.POST("/complete", tripHandler.Complete)
	session.GET("/stream", streamHandler.Stream)

	return r
}
