// Package server exposes the HTTP surface of the proxy: per-bot webhook
// receivers, the transparent Bot API proxy, and the file download proxy.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"

	"github.com/tgfleet/botgate/internal/config"
	"github.com/tgfleet/botgate/internal/crypto"
	"github.com/tgfleet/botgate/internal/database"
	"github.com/tgfleet/botgate/internal/entitylog"
)

const shutdownTimeout = 10 * time.Second

// Server is the HTTP front of the proxy.
type Server struct {
	engine *entitylog.Engine
	store  database.Store
	cipher *crypto.Cipher
	logger *slog.Logger

	apiURL     string
	fileAPIURL string
	listenAddr string

	upstream  *http.Client
	redirects *http.Client

	httpServer *http.Server
}

// New wires the HTTP server over the sync engine and credential store.
func New(cfg *config.Config, engine *entitylog.Engine, store database.Store, cipher *crypto.Cipher, logger *slog.Logger) *Server {
	s := &Server{
		engine:     engine,
		store:      store,
		cipher:     cipher,
		logger:     logger.With("component", "server"),
		apiURL:     cfg.Telegram.APIURL,
		fileAPIURL: cfg.Telegram.FileAPIURL,
		listenAddr: cfg.Server.ListenAddr,
		upstream:   &http.Client{Timeout: cfg.Telegram.RequestTimeout},
		redirects:  &http.Client{Timeout: cfg.Telegram.RedirectTimeout},
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), s.requestLogger())

	router.GET("/healthz", s.handleHealth)
	router.POST("/telegram/bots/:bot_id/webhook", s.handleWebhook)
	router.Any("/telegram/bot/:token/:method", s.handleProxy)
	router.GET("/telegram/file/bot/:token/*file_path", s.handleFileProxy)

	s.httpServer = &http.Server{
		Addr:         cfg.Server.ListenAddr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	return s
}

// Run serves until ctx is canceled, then drains in-flight requests.
func (s *Server) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		s.logger.Info("HTTP server listening", "addr", s.listenAddr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// requestLogger emits one structured log line per request.
func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.DebugContext(c.Request.Context(), "Handled request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration_ms", time.Since(start).Milliseconds())
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	if err := s.store.Ping(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
