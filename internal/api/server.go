// Package api exposes the session engine over HTTP.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/abhisek/adaptiq/internal/analysis"
	"github.com/abhisek/adaptiq/internal/generator"
	"github.com/abhisek/adaptiq/internal/question"
	"github.com/abhisek/adaptiq/internal/session"
)

// LearnerHeader optionally identifies the caller. When present it must
// match the session's learner.
const LearnerHeader = "X-Learner-ID"

// Engine is the session lifecycle the API drives. *session.Manager
// implements it.
type Engine interface {
	Create(ctx context.Context, cfg session.Config) (*session.Session, error)
	Get(ctx context.Context, id string) (*session.Session, error)
	SubmitAnswer(ctx context.Context, id, questionID, chosen string, timeSpentSeconds int) (*session.Outcome, error)
	Pause(ctx context.Context, id string) error
	Resume(ctx context.Context, id string) (*session.Session, error)
	Finalize(ctx context.Context, id string) (*analysis.AssessmentResult, error)
	Result(ctx context.Context, id string) (*analysis.AssessmentResult, error)
}

// Bank receives generated questions.
type Bank interface {
	Save(ctx context.Context, qs []question.Question) error
}

// Options configures the HTTP server.
type Options struct {
	CORSOrigins []string

	// Generator backs POST /v1/questions/generate. The route is not
	// registered when nil.
	Generator generator.Generator
	Bank      Bank

	Logger *slog.Logger
}

// Server routes HTTP requests to the engine.
type Server struct {
	engine Engine
	gen    generator.Generator
	bank   Bank
	logger *slog.Logger
	router *gin.Engine
}

// New builds the server and its routes.
func New(engine Engine, opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	s := &Server{
		engine: engine,
		gen:    opts.Generator,
		bank:   opts.Bank,
		logger: opts.Logger,
	}

	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(opts.Logger))
	r.Use(cors.New(corsConfig(opts.CORSOrigins)))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	v1 := r.Group("/v1")
	sessions := v1.Group("/sessions")
	sessions.POST("", s.createSession)
	sessions.GET("/:id", s.getSession)
	sessions.POST("/:id/answers", s.submitAnswer)
	sessions.POST("/:id/pause", s.pauseSession)
	sessions.POST("/:id/resume", s.resumeSession)
	sessions.POST("/:id/finalize", s.finalizeSession)
	sessions.GET("/:id/result", s.getResult)

	if s.gen != nil {
		v1.POST("/questions/generate", s.generateQuestions)
	}

	s.router = r
	return s
}

// Handler returns the root http.Handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s.logger.Info("http server shutting down")
		return srv.Shutdown(shutdownCtx)
	}
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:  []string{"Content-Type", "Content-Length", "Accept", "Origin", LearnerHeader},
		ExposeHeaders: []string{"Content-Length"},
		MaxAge:        12 * time.Hour,
	}
	if len(origins) == 0 || (len(origins) == 1 && origins[0] == "*") {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
	}
	return cfg
}

func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		status := c.Writer.Status()
		level := slog.LevelDebug
		if status >= http.StatusInternalServerError {
			level = slog.LevelWarn
		}
		logger.Log(c.Request.Context(), level, "http request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", status,
			"latency_ms", time.Since(start).Milliseconds())
	}
}
