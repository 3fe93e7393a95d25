package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/oremus-labs/ol-cvi-coach/internal/handlers"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// Options configures the HTTP server wiring.
type Options struct {
	APIToken       string
	GraphQLHandler http.Handler
	Logger         zerolog.Logger
}

// Server wraps the Gin engine and associated configuration.
type Server struct {
	engine *gin.Engine
	log    zerolog.Logger
}

// NewServer constructs a Server with all HTTP routes configured.
func NewServer(handler *handlers.Handler, opts Options) *Server {
	gin.SetMode(gin.ReleaseMode)

	engine := gin.New()
	engine.Use(gin.Recovery(), RequestID(), Metrics("server"), RequestLogger(opts.Logger))

	// Health + meta
	engine.GET("/healthz", handler.Health)
	engine.GET("/openapi", handler.OpenAPISpec)
	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Coaching flow
	engine.GET("/scenarios", handler.ListScenarios)
	engine.POST("/signup", handler.Signup)
	engine.GET("/sessions/:id", handler.GetSession)
	engine.POST("/sessions/:id/call", handler.StartCall)
	engine.POST("/sessions/:id/end", handler.EndCall)
	engine.POST("/sessions/:id/feedback", handler.Feedback)

	protected := engine.Group("/")
	protected.Use(Auth(opts.APIToken))
	protected.GET("/history", handler.ListHistory)
	protected.GET("/events", handler.StreamEvents)
	if opts.GraphQLHandler != nil {
		protected.GET("/graphql", gin.WrapH(opts.GraphQLHandler))
		protected.POST("/graphql", gin.WrapH(opts.GraphQLHandler))
	}

	return &Server{engine: engine, log: opts.Logger}
}

// Engine exposes the underlying Gin engine for advanced use (testing, etc.).
func (s *Server) Engine() *gin.Engine {
	return s.engine
}

// Start launches the HTTP server on the provided address.
func (s *Server) Start(addr string) *http.Server {
	srv := &http.Server{
		Addr:        addr,
		Handler:     s.engine,
		ReadTimeout: 15 * time.Second,
		// No write timeout: /events holds its response open.
		IdleTimeout: 60 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.log.Fatal().Err(err).Str("addr", addr).Msg("server stopped")
		}
	}()
	return srv
}
