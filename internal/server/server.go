package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"pitchhub-relay/config"
	"pitchhub-relay/internal/middleware"
	"pitchhub-relay/internal/redis"
	"pitchhub-relay/internal/relay"
	"pitchhub-relay/internal/transport/httpdto"
	"pitchhub-relay/internal/websocket"
	"pitchhub-relay/pkg/logger"

	"github.com/gin-gonic/gin"
)

var (
	ReleaseMode = "release"
	DebugMode   = "debug"
	TestMode    = "test"
)

const (
	healthTimeout = 2 * time.Second
	// listenerShutdownTimeout is separate from the session deadline, which
	// may already be spent by the time the listener closes.
	listenerShutdownTimeout = 5 * time.Second
)

// Checker is a dependency the health endpoint pings.
type Checker interface {
	Ping(ctx context.Context) error
}

// PresenceMirror is the presence view shared outside the process.
type PresenceMirror interface {
	GetOnlineCount(ctx context.Context) (int64, error)
	GetPresence(ctx context.Context, userID string) (*redis.PresenceStatus, error)
}

type Dependencies struct {
	Relay     *relay.Relay
	Hub       *websocket.Hub
	WSHandler *websocket.Handler
	Checks    map[string]Checker
	Mirror    PresenceMirror
	Limiter   middleware.ConnectLimiter
}

type Server struct {
	httpServer *http.Server
	engine     *gin.Engine
	config     *config.Config
	logger     *logger.Logger
	deps       Dependencies
}

func New(cfg *config.Config, l *logger.Logger, deps Dependencies) *Server {
	if cfg.AppMode == ReleaseMode {
		gin.SetMode(gin.ReleaseMode)
	} else if cfg.AppMode == TestMode {
		gin.SetMode(gin.TestMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	engine := gin.New()
	engine.Use(gin.Recovery())

	s := &Server{
		httpServer: &http.Server{
			Addr:              fmt.Sprintf(":%s", cfg.SocketPort),
			Handler:           engine,
			ReadHeaderTimeout: 10 * time.Second,
		},
		engine: engine,
		config: cfg,
		logger: l,
		deps:   deps,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.engine.Use(middleware.RequestIDMiddleware())
	s.engine.Use(middleware.CORSMiddleware(s.config.AllowedOrigins))
	s.engine.Use(middleware.LoggingMiddleware(s.logger))
	s.engine.Use(middleware.ErrorHandler(s.logger))

	s.engine.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, httpdto.NewSuccessResponse(gin.H{"message": "pong"}))
	})
	s.engine.GET("/health", s.health)
	if s.deps.Limiter != nil {
		s.engine.GET("/socket", middleware.ConnectRateLimitMiddleware(s.deps.Limiter, s.logger), s.deps.WSHandler.Connect)
	} else {
		s.engine.GET("/socket", s.deps.WSHandler.Connect)
	}

	v1 := s.engine.Group("/v1/relay")
	{
		v1.GET("/stats", s.stats)
		v1.GET("/presence/:userId", s.presence)
	}
}

// Handler exposes the routed engine, mainly for httptest.
func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), healthTimeout)
	defer cancel()

	status := httpdto.HealthStatus{Status: "healthy", Checks: make(map[string]string)}
	code := http.StatusOK
	if s.deps.Hub.Closing() {
		status.Status = "shutting_down"
		code = http.StatusServiceUnavailable
	}
	for name, checker := range s.deps.Checks {
		if err := checker.Ping(ctx); err != nil {
			status.Checks[name] = err.Error()
			status.Status = "unhealthy"
			code = http.StatusServiceUnavailable
			continue
		}
		status.Checks[name] = "ok"
	}

	if code != http.StatusOK {
		c.JSON(code, httpdto.NewFailureResponse(status, "UNHEALTHY"))
		return
	}
	c.JSON(code, httpdto.NewSuccessResponse(status))
}

func (s *Server) stats(c *gin.Context) {
	stats := httpdto.RelayStats{
		Sessions:    s.deps.Hub.ClientCount(),
		OnlineUsers: s.deps.Relay.Presence().Len(),
		Rooms:       s.deps.Hub.RoomCount(),
	}
	if s.deps.Mirror != nil {
		if n, err := s.deps.Mirror.GetOnlineCount(c.Request.Context()); err == nil {
			stats.MirroredUsers = &n
		} else if s.logger != nil {
			s.logger.Warnf("mirrored presence count unavailable: %s", err)
		}
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(stats))
}

func (s *Server) presence(c *gin.Context) {
	userID := c.Param("userId")
	_, online := s.deps.Relay.Presence().SessionForUser(userID)
	resp := httpdto.UserPresence{UserID: userID, Online: online}

	if s.deps.Mirror != nil {
		if st, err := s.deps.Mirror.GetPresence(c.Request.Context(), userID); err == nil {
			resp.Mirrored = &httpdto.MirroredPresence{Status: st.Status, LastSeen: st.LastSeen}
		} else if s.logger != nil {
			s.logger.Warnf("mirrored presence for %s unavailable: %s", userID, err)
		}
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(resp))
}

// Run serves until SIGINT/SIGTERM or ctx cancellation, then shuts down:
// relay sessions first, the HTTP listener second.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.httpServer.Addr, err)
	}

	errCh := make(chan error, 1)
	go func() {
		if s.logger != nil {
			s.logger.Infof("Relay listening on %s", ln.Addr().String())
		}
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGTERM, syscall.SIGINT)
	defer signal.Stop(quit)

	select {
	case sig := <-quit:
		if s.logger != nil {
			s.logger.Infof("Received %s, shutting down", sig)
		}
	case <-ctx.Done():
		if s.logger != nil {
			s.logger.Infof("Context canceled, shutting down")
		}
	case err := <-errCh:
		return fmt.Errorf("serve: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()
	return s.Shutdown(shutdownCtx)
}

// Shutdown closes every relay session, giving queued emits a chance to
// flush, and only then closes the HTTP listener.
func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.deps.Hub.Shutdown(ctx); err != nil && s.logger != nil {
		s.logger.Warnf("Relay sessions did not close in time: %s", err)
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), listenerShutdownTimeout)
	defer cancel()
	if err := s.httpServer.Shutdown(ctx); err != nil {
		if s.logger != nil {
			s.logger.Errorf("Error in the graceful shutdown of the server: %s", err)
		}
		return err
	}

	if s.logger != nil {
		s.logger.Infof("Server stopped gracefully")
	}
	return nil
}
