package server

import (
	"log"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/emilythestrangee/terakoya-timeline/backend/internal/config"
	"github.com/emilythestrangee/terakoya-timeline/backend/internal/database"
	"github.com/emilythestrangee/terakoya-timeline/backend/internal/handlers"
	"github.com/emilythestrangee/terakoya-timeline/backend/internal/middleware"
	"github.com/emilythestrangee/terakoya-timeline/backend/internal/timeline"
)

type Server struct {
	cfg     *config.Config
	store   database.Store
	handler *handlers.Handler
}

func New(cfg *config.Config, store database.Store, svc *timeline.Service) *Server {
	return &Server{
		cfg:     cfg,
		store:   store,
		handler: handlers.NewHandler(svc),
	}
}

// NewHTTPServer wraps the router in an http.Server listening on cfg.Port
func NewHTTPServer(cfg *config.Config, store database.Store, svc *timeline.Service) *http.Server {
	if cfg.Production {
		gin.SetMode(gin.ReleaseMode)
	}
	router := New(cfg, store, svc).RegisterRoutes()

	log.Printf("🚀 Server starting on port %s\n", cfg.Port)

	return &http.Server{
		Addr:         "0.0.0.0:" + cfg.Port,
		Handler:      router,
		IdleTimeout:  time.Minute,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
}

// RegisterRoutes sets up all application routes
func (s *Server) RegisterRoutes() *gin.Engine {
	r := gin.Default()

	// CORS configuration
	r.Use(cors.New(s.corsConfig()))

	// Health check endpoint
	r.GET("/health", s.healthHandler)

	api := r.Group("/api/timeline")
	{
		// Public reads
		api.GET("/posts", s.handler.Post.GetPosts)
		api.GET("/posts/:id", s.handler.Post.GetPost)
		api.GET("/posts/:id/comments", s.handler.Comment.GetComments)
		api.GET("/users/:uuid/posts", s.handler.Post.GetUserPosts)

		// Writes, with the caller identity taken from a bearer token when present
		protected := api.Group("")
		protected.Use(middleware.AuthMiddleware(s.cfg.JWTSecret))
		{
			protected.POST("/posts", s.handler.Post.CreatePost)
			protected.DELETE("/posts/:id", s.handler.Post.DeletePost)
			protected.PUT("/posts/:id/reactions", s.handler.Post.ReactToPost)

			protected.POST("/posts/:id/comments", s.handler.Comment.CreateComment)
			protected.PUT("/comments/:id/reactions", s.handler.Comment.ReactToComment)

			protected.PUT("/users/:uuid", s.handler.User.UpdateUserInfo)
		}
	}

	return r
}

func (s *Server) corsConfig() cors.Config {
	cfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "PUT", "DELETE", "OPTIONS", "PATCH"},
		AllowHeaders:  []string{"Accept", "Authorization", "Content-Type", "X-Requested-With"},
		ExposeHeaders: []string{"Content-Length"},
		MaxAge:        12 * time.Hour,
	}
	if len(s.cfg.CORSOrigins) == 0 || (len(s.cfg.CORSOrigins) == 1 && s.cfg.CORSOrigins[0] == "*") {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = s.cfg.CORSOrigins
		cfg.AllowCredentials = true
	}
	return cfg
}

func (s *Server) healthHandler(c *gin.Context) {
	health := s.store.Health(c.Request.Context())
	status := http.StatusOK
	if health["status"] != "up" {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, health)
}
