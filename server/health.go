package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sl224/casparianflow-sub002/logging"
)

// HealthServer exposes health, readiness, and Prometheus metrics endpoints.
type HealthServer struct {
	logger   *logging.ComponentLogger
	port     int
	version  string
	registry *prometheus.Registry
	server   *http.Server

	// Component health
	mu         sync.RWMutex
	components map[string]*ComponentHealth
}

// ComponentHealth tracks health of one component.
type ComponentHealth struct {
	Name      string      `json:"name"`
	Healthy   bool        `json:"healthy"`
	LastCheck time.Time   `json:"last_check"`
	LastError string      `json:"last_error,omitempty"`
	Metrics   interface{} `json:"metrics,omitempty"`
}

// HealthStatus represents overall service health.
type HealthStatus struct {
	Status     string                      `json:"status"` // healthy, degraded, unhealthy
	Version    string                      `json:"version"`
	Uptime     string                      `json:"uptime"`
	Components map[string]*ComponentHealth `json:"components"`
	Timestamp  time.Time                   `json:"timestamp"`
}

// NewHealthServer creates a health server. registry may be nil when metrics
// exposition is not wanted.
func NewHealthServer(logger *logging.ComponentLogger, port int, version string, registry *prometheus.Registry) *HealthServer {
	return &HealthServer{
		logger:     logger,
		port:       port,
		version:    version,
		registry:   registry,
		components: make(map[string]*ComponentHealth),
	}
}

// RegisterComponent registers a component for health monitoring.
func (h *HealthServer) RegisterComponent(name string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.components[name] = &ComponentHealth{
		Name:      name,
		Healthy:   false,
		LastCheck: time.Now(),
	}
}

// UpdateComponentHealth updates a component's health status.
func (h *HealthServer) UpdateComponentHealth(name string, healthy bool, err error, metrics interface{}) {
	h.mu.Lock()
	defer h.mu.Unlock()

	component, exists := h.components[name]
	if !exists {
		component = &ComponentHealth{Name: name}
		h.components[name] = component
	}

	component.Healthy = healthy
	component.LastCheck = time.Now()
	component.Metrics = metrics

	if err != nil {
		component.LastError = err.Error()
	} else {
		component.LastError = ""
	}
}

// Start starts the health server in the background.
func (h *HealthServer) Start(startTime time.Time) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", h.handleHealth(startTime))
	mux.HandleFunc("/ready", h.handleReady())
	if h.registry != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(h.registry, promhttp.HandlerOpts{
			EnableOpenMetrics: true,
		}))
	}

	h.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", h.port),
		Handler: mux,
	}

	h.logger.Info().
		Int("port", h.port).
		Msg("Starting health server")

	go func() {
		if err := h.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			h.logger.Error().
				Err(err).
				Msg("Health server error")
		}
	}()

	return nil
}

// Stop gracefully stops the health server.
func (h *HealthServer) Stop() error {
	if h.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	return h.server.Shutdown(ctx)
}

func (h *HealthServer) handleHealth(startTime time.Time) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h.mu.RLock()
		defer h.mu.RUnlock()

		status := "healthy"
		unhealthyCount := 0
		for _, comp := range h.components {
			if !comp.Healthy {
				unhealthyCount++
			}
		}
		if unhealthyCount > 0 {
			if unhealthyCount == len(h.components) {
				status = "unhealthy"
			} else {
				status = "degraded"
			}
		}

		health := HealthStatus{
			Status:     status,
			Version:    h.version,
			Uptime:     time.Since(startTime).String(),
			Components: h.components,
			Timestamp:  time.Now(),
		}

		statusCode := http.StatusOK
		if status == "unhealthy" {
			statusCode = http.StatusServiceUnavailable
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(statusCode)
		json.NewEncoder(w).Encode(health)
	}
}

func (h *HealthServer) handleReady() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h.mu.RLock()
		defer h.mu.RUnlock()

		// The registry store is the only hard dependency for readiness.
		ready := true
		if comp, exists := h.components["registry"]; exists {
			ready = comp.Healthy
		}

		if ready {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte("ready\n"))
		} else {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte("not ready\n"))
		}
	}
}
