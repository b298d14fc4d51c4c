// Package httpapi serves the call channels over local HTTP for UIs that
// don't speak MQTT.
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"wake-agent/internal/channel"
	"wake-agent/internal/display"
	"wake-agent/internal/wake"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

// StateSource reports the wake controller's state.
type StateSource interface {
	State() wake.State
	Session() (wake.SessionInfo, bool)
	Capability() display.Capability
}

type Handler struct {
	registry *channel.Registry
	state    StateSource
}

type stateResponse struct {
	State      string            `json:"state"`
	Capability string            `json:"capability"`
	Session    *wake.SessionInfo `json:"session,omitempty"`
}

func NewHandler(registry *channel.Registry, state StateSource) *Handler {
	return &Handler{registry: registry, state: state}
}

// Router builds the gin engine.
func (h *Handler) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger())
	r.POST("/channels/*name", h.Invoke)
	r.GET("/wake/state", h.GetState)
	return r
}

func (h *Handler) Invoke(c *gin.Context) {
	name := strings.TrimPrefix(c.Param("name"), "/")
	ch, ok := h.registry.Lookup(name)
	if !ok {
		c.JSON(http.StatusNotFound, channel.Error("UNKNOWN_CHANNEL", fmt.Sprintf("no channel named %q", name), nil))
		return
	}

	body, err := io.ReadAll(io.LimitReader(c.Request.Body, 64<<10))
	if err != nil {
		c.JSON(http.StatusBadRequest, channel.Error("INVALID_CALL", err.Error(), nil))
		return
	}
	call, err := channel.DecodeCall(body)
	if err != nil {
		c.JSON(http.StatusBadRequest, channel.Error("INVALID_CALL", err.Error(), nil))
		return
	}

	res := ch.Invoke(c.Request.Context(), call)
	c.JSON(statusFor(res), res)
}

func statusFor(res channel.Result) int {
	switch {
	case res.NotImplemented:
		return http.StatusNotImplemented
	case res.Error != nil:
		return http.StatusInternalServerError
	}
	return http.StatusOK
}

func (h *Handler) GetState(c *gin.Context) {
	resp := stateResponse{
		State:      h.state.State().String(),
		Capability: h.state.Capability().String(),
	}
	if info, ok := h.state.Session(); ok {
		resp.Session = &info
	}
	c.JSON(http.StatusOK, resp)
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.WithFields(log.Fields{
			"method":  c.Request.Method,
			"path":    c.Request.URL.Path,
			"status":  c.Writer.Status(),
			"latency": time.Since(start),
		}).Debug("HTTP request")
	}
}

type Server struct {
	srv *http.Server
}

// NewServer builds the router in gin's release mode so no debug banner or
// route dump reaches the service log. Routes are logged at debug level.
func NewServer(addr string, h *Handler) *Server {
	gin.SetMode(gin.ReleaseMode)
	gin.DebugPrintRouteFunc = func(method, path, handler string, _ int) {
		log.Debugf("HTTP route %-6s %s --> %s", method, path, handler)
	}
	return &Server{srv: &http.Server{
		Addr:              addr,
		Handler:           h.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}}
}

// Start listens in the background.
func (s *Server) Start() {
	go func() {
		log.Infof("HTTP channel listening on %s", s.srv.Addr)
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Errorf("HTTP server failed: %v", err)
		}
	}()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
