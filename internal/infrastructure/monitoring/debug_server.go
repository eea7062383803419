package monitoring

import (
	"context"
	"net/http"
	"time"

	"peerlink/internal/core/ports"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// DebugServer exposes health, metrics and the live connection records over
// a local HTTP endpoint.
type DebugServer struct {
	srv *http.Server
	log *zap.SugaredLogger
}

func NewDebugServer(
	addr string,
	health *HealthChecker,
	conns ports.ConnectionsRepository,
	log *zap.SugaredLogger,
) *DebugServer {
	if log == nil {
		log = zap.NewNop().Sugar()
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/healthz", func(c *gin.Context) {
		status := health.CheckAll(c.Request.Context())
		code := http.StatusOK
		if status.Status != "healthy" {
			code = http.StatusServiceUnavailable
		}
		c.JSON(code, status)
	})

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	router.GET("/connections", func(c *gin.Context) {
		records, err := conns.List(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"connections": records})
	})

	return &DebugServer{
		srv: &http.Server{
			Addr:         addr,
			Handler:      router,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 10 * time.Second,
		},
		log: log,
	}
}

// Start serves until Shutdown is called. Run it on its own goroutine.
func (s *DebugServer) Start() error {
	s.log.Infow("debug server listening", "addr", s.srv.Addr)
	if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *DebugServer) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
