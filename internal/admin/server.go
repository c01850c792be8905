// Package admin serves an HTTP control surface for one device.
package admin

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/danmuck/airlink/internal/netdev"
	"github.com/danmuck/airlink/internal/observability"
	"github.com/danmuck/airlink/internal/protocol"
	"github.com/danmuck/airlink/internal/protocol/session"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

type Config struct {
	ID          string
	Addr        string
	CORSOrigins []string
	// Token enables bearer auth on /device routes when set.
	Token string
	// OpTimeout bounds each device operation a request triggers.
	OpTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		ID:        "airlink",
		Addr:      "127.0.0.1:7070",
		OpTimeout: 2 * time.Second,
	}
}

type Server struct {
	cfg     Config
	dev     netdev.Device
	router  *gin.Engine
	started time.Time
}

func New(dev netdev.Device, cfg Config) *Server {
	observability.RegisterMetrics()
	if cfg.OpTimeout <= 0 {
		cfg.OpTimeout = DefaultConfig().OpTimeout
	}
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(observability.RequestLogger(log.Logger))
	r.Use(observability.RequestMetricsMiddleware(cfg.ID))
	if origins := normalizeOrigins(cfg.CORSOrigins); len(origins) > 0 {
		r.Use(cors.New(cors.Config{
			AllowOrigins: origins,
			AllowMethods: []string{"GET", "PUT"},
			AllowHeaders: []string{"Origin", "Content-Type", "Authorization"},
			MaxAge:       12 * time.Hour,
		}))
	}
	_ = r.SetTrustedProxies([]string{"127.0.0.1", "::1"})

	s := &Server{cfg: cfg, dev: dev, router: r, started: time.Now()}
	s.registerRoutes()
	return s
}

func (s *Server) Router() *gin.Engine { return s.router }

// Run serves until ctx ends.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", s.cfg.Addr).Msg("admin: listening")
		errCh <- srv.ListenAndServe()
	}()
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

func normalizeOrigins(in []string) []string {
	out := make([]string, 0, len(in))
	for _, o := range in {
		if v := strings.TrimSpace(o); v != "" {
			out = append(out, v)
		}
	}
	return out
}

// statusFor maps a device error onto an HTTP status.
func statusFor(err error) int {
	if _, ok := session.IsRemoteStatus(err); ok {
		return http.StatusBadGateway
	}
	switch {
	case errors.Is(err, netdev.ErrValueRange):
		return http.StatusBadRequest
	case errors.Is(err, protocol.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, protocol.ErrTransport), errors.Is(err, protocol.ErrWouldBlock):
		return http.StatusServiceUnavailable
	default:
		return http.StatusBadGateway
	}
}
