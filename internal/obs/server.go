package obs

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/arrowhq/sentinel/internal/telemetry"
)

// Server exposes the Prometheus scrape endpoint and liveness/readiness
// probes used by both cmd/beat and cmd/worker.
type Server struct {
	http *http.Server
}

// NewServer builds the metrics/health HTTP server. deps is polled for
// /health/ready; an empty map makes readiness always report ok.
func NewServer(host string, port int, metrics *Metrics, deps map[string]Pinger, otelEnabled bool) *Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	if otelEnabled {
		router.Use(otelgin.Middleware("sentinel"))
	}

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, HealthStatus{Status: "ok"})
	})

	router.GET("/health/ready", func(c *gin.Context) {
		status := CheckAll(deps)
		c.JSON(status.StatusCode(), status)
	})

	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{})))

	return &Server{
		http: &http.Server{
			Addr:         fmt.Sprintf("%s:%d", host, port),
			Handler:      router,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
		},
	}
}

// Run starts serving in the background and blocks until ctx is
// cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	logger := telemetry.GetContextualLogger(ctx).WithField("component", "obs.Server")
	errCh := make(chan error, 1)

	go func() {
		logger.WithField("addr", s.http.Addr).Info("Starting metrics/health server")
		if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.http.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
