// Package api serves the authenticated JSON API, the websocket gateway and
// uploaded media over HTTP.
package api

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gigroom/gigroom/internal/auth"
	"github.com/gigroom/gigroom/internal/chat"
	"github.com/gigroom/gigroom/internal/gateway"
	"github.com/gigroom/gigroom/internal/notify"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// RouterOpts holds the services the router dispatches to.
type RouterOpts struct {
	Auth           *auth.Authenticator // required
	Chat           *chat.Service       // required
	Notify         *notify.Service     // required
	Gateway        *gateway.Gateway    // optional
	AllowedOrigins []string
	MediaDir       string // served under MediaURL when set
	MediaURL       string
	Logger         *slog.Logger // nil means slog.Default()
}

// StartOpts holds configuration for the API server.
type StartOpts struct {
	RouterOpts
	Port int
	Out  io.Writer
}

// NewRouter builds the gin engine with every route registered.
func NewRouter(opts RouterOpts) (*gin.Engine, error) {
	if opts.Auth == nil {
		return nil, fmt.Errorf("api: auth is required")
	}
	if opts.Chat == nil {
		return nil, fmt.Errorf("api: chat service is required")
	}
	if opts.Notify == nil {
		return nil, fmt.Errorf("api: notify service is required")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestLogger(opts.Logger))
	router.Use(cors.New(corsConfig(opts.AllowedOrigins)))

	registerRoutes(router, opts)
	return router, nil
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.DefaultConfig()
	cfg.AllowHeaders = append(cfg.AllowHeaders, "Authorization")
	cfg.ExposeHeaders = []string{degradedHeader}
	if len(origins) == 0 {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
		cfg.AllowCredentials = true
	}
	return cfg
}

// requestLogger logs one line per request at info level.
func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Info("api: request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration", time.Since(start),
		)
	}
}

// Start launches the API server. It blocks until ctx is cancelled, then
// shuts down gracefully.
func Start(ctx context.Context, opts StartOpts) error {
	if opts.Port <= 0 {
		opts.Port = 8000
	}
	gin.SetMode(gin.ReleaseMode)
	router, err := NewRouter(opts.RouterOpts)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", opts.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	if opts.Out != nil {
		fmt.Fprintf(opts.Out, "gigroom listening on http://localhost:%d\n", opts.Port)
	}

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("api: %w", err)
	}
	return nil
}
