package devdaemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"wirevpn/internal/client/logger"
	"wirevpn/internal/sentry"
	"wirevpn/internal/vpn"
	"wirevpn/pkg/protocol"
)

// Envelope codes returned for failed core actions.
const (
	CodeBadRequest    = 400
	CodeUnknownAction = 404
	CodeConnectFailed = 1001
)

// Server exposes an Engine over HTTP.
type Server struct {
	Engine *Engine
	Addr   string

	srv      *http.Server
	listener net.Listener
}

// NewServer creates a server for engine bound to addr.
func NewServer(addr string, engine *Engine) *Server {
	return &Server{Engine: engine, Addr: addr}
}

// Handler returns the gin router.
func (s *Server) Handler() http.Handler {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	r.Use(gin.Recovery(), sentry.Middleware())

	r.GET("/ping", func(c *gin.Context) {
		c.String(http.StatusOK, "pong")
	})
	r.POST("/api/core", s.handleCore)
	r.NoRoute(func(c *gin.Context) {
		c.String(http.StatusNotFound, "Not found: %s", c.Request.URL.Path)
	})
	return r
}

// coreRequest mirrors protocol.CoreRequest with params left raw for per-action decoding.
type coreRequest struct {
	Action string          `json:"action"`
	Params json.RawMessage `json:"params,omitempty"`
}

func reply(c *gin.Context, data interface{}) {
	env := protocol.Envelope{}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			sentry.CaptureErrorWithContext(c, err, "encode core reply")
			c.Status(http.StatusInternalServerError)
			return
		}
		env.Data = raw
	}
	c.JSON(http.StatusOK, env)
}

func fail(c *gin.Context, code int, message string) {
	c.JSON(http.StatusOK, protocol.Envelope{Code: code, Message: message})
}

func (s *Server) handleCore(c *gin.Context) {
	var req coreRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.String(http.StatusBadRequest, "invalid request: %v", err)
		return
	}

	log := logger.WithField("action", req.Action)
	log.Debug("Core request")

	switch req.Action {
	case protocol.ActionConnect:
		var cfg vpn.ClientConfig
		if len(req.Params) > 0 {
			if err := json.Unmarshal(req.Params, &cfg); err != nil {
				fail(c, CodeBadRequest, fmt.Sprintf("invalid connect params: %v", err))
				return
			}
		}
		if err := s.Engine.Connect(cfg); err != nil {
			log.Warn("Connect rejected: %v", err)
			fail(c, CodeConnectFailed, err.Error())
			return
		}
		reply(c, nil)
	case protocol.ActionDisconnect:
		s.Engine.Disconnect()
		reply(c, nil)
	case protocol.ActionStatus:
		reply(c, s.Engine.Status())
	case protocol.ActionVersion:
		reply(c, protocol.VersionPayload{Version: s.Engine.Version()})
	case protocol.ActionConfig:
		reply(c, s.Engine.Config())
	default:
		fail(c, CodeUnknownAction, fmt.Sprintf("unknown action %q", req.Action))
	}
}

// Listen binds Addr. Start calls it when needed.
func (s *Server) Listen() error {
	if s.listener != nil {
		return nil
	}
	l, err := net.Listen("tcp", s.Addr)
	if err != nil {
		return err
	}
	s.listener = l
	return nil
}

// ListenAddr returns the bound address, or "" before Listen.
func (s *Server) ListenAddr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Start serves until Shutdown. It returns nil after a graceful shutdown.
func (s *Server) Start() error {
	if err := s.Listen(); err != nil {
		return err
	}
	s.srv = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	logger.Info("Dev daemon listening on %s", s.ListenAddr())
	if err := s.srv.Serve(s.listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (s *Server) Shutdown(ctx context.Context) error {
	s.Engine.Close()
	if s.srv == nil {
		if s.listener != nil {
			return s.listener.Close()
		}
		return nil
	}
	return s.srv.Shutdown(ctx)
}
