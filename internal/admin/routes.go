package admin

import (
	"context"
	"net/http"
	"time"

	"github.com/danmuck/airlink/internal/auth"
	"github.com/danmuck/airlink/internal/protocol/session"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type deviceStatus struct {
	Descriptor string `json:"descriptor"`
	MAC        string `json:"mac"`
	Channel    int    `json:"channel"`
	Rate       int    `json:"rate"`
	Monitor    int    `json:"monitor"`
}

type setValue struct {
	Value *int `json:"value" binding:"required"`
}

func (s *Server) registerRoutes() {
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"uptime":  time.Since(s.started).String(),
			"service": s.cfg.ID,
			"device":  s.dev.Descriptor(),
		})
	})
	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	device := s.router.Group("/device")
	if s.cfg.Token != "" {
		device.Use(auth.Middleware(auth.StaticToken{Token: s.cfg.Token}))
	}
	device.GET("", s.getDevice)
	device.PUT("/channel", s.putValue(func(ctx context.Context, v int) error {
		return s.dev.SetChannel(ctx, v)
	}))
	device.PUT("/rate", s.putValue(func(ctx context.Context, v int) error {
		return s.dev.SetRate(ctx, v)
	}))
}

func (s *Server) getDevice(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), s.cfg.OpTimeout)
	defer cancel()

	out := deviceStatus{Descriptor: s.dev.Descriptor()}
	mac, err := s.dev.MACAddress(ctx)
	if err != nil {
		abort(c, err)
		return
	}
	out.MAC = mac.String()
	if out.Channel, err = s.dev.Channel(ctx); err != nil {
		abort(c, err)
		return
	}
	if out.Rate, err = s.dev.Rate(ctx); err != nil {
		abort(c, err)
		return
	}
	if out.Monitor, err = s.dev.MonitorState(ctx); err != nil {
		abort(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) putValue(apply func(context.Context, int) error) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req setValue
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		ctx, cancel := context.WithTimeout(c.Request.Context(), s.cfg.OpTimeout)
		defer cancel()
		if err := apply(ctx, *req.Value); err != nil {
			abort(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok", "value": *req.Value})
	}
}

func abort(c *gin.Context, err error) {
	body := gin.H{"error": err.Error()}
	if code, ok := session.IsRemoteStatus(err); ok {
		body["remote_status"] = code
	}
	c.JSON(statusFor(err), body)
}
