package api

import (
	"context"
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/go-chi/chi/v5/middleware"
)

// HealthStatus represents the overall health status
type HealthStatus string

const (
	HealthStatusHealthy   HealthStatus = "healthy"
	HealthStatusDegraded  HealthStatus = "degraded"
	HealthStatusUnhealthy HealthStatus = "unhealthy"
)

// HealthCheckResponse represents a comprehensive health check response
type HealthCheckResponse struct {
	Status        HealthStatus           `json:"status"`
	Timestamp     string                 `json:"timestamp"`
	EngineVersion string                 `json:"engine_version"`
	GitCommit     string                 `json:"git_commit,omitempty"`
	BuildTime     string                 `json:"build_time,omitempty"`
	Uptime        string                 `json:"uptime"`
	Checks        map[string]HealthCheck `json:"checks"`
	System        SystemInfo             `json:"system"`
	RequestID     string                 `json:"request_id,omitempty"`
}

// HealthCheck represents an individual health check
type HealthCheck struct {
	Status      HealthStatus `json:"status"`
	Message     string       `json:"message,omitempty"`
	LastChecked string       `json:"last_checked"`
	Duration    string       `json:"duration,omitempty"`
}

// SystemInfo contains system information
type SystemInfo struct {
	GoVersion     string `json:"go_version"`
	NumGoroutines int    `json:"num_goroutines"`
	NumCPU        int    `json:"num_cpu"`
	GOMAXPROCS    int    `json:"gomaxprocs"`
	MemoryAlloc   uint64 `json:"memory_alloc_bytes"`
	MemorySys     uint64 `json:"memory_sys_bytes"`
	GCCycles      uint32 `json:"gc_cycles"`
}

// handleHealthCheck provides comprehensive health check endpoint
func (s *Server) handleHealthCheck(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetReqID(r.Context())
	start := time.Now()

	checks := map[string]HealthCheck{
		"store":     s.checkStoreHealth(r.Context()),
		"contracts": s.checkContractsHealth(),
	}

	overallStatus := HealthStatusHealthy
	for _, c := range checks {
		switch {
		case c.Status == HealthStatusUnhealthy:
			overallStatus = HealthStatusUnhealthy
		case c.Status == HealthStatusDegraded && overallStatus == HealthStatusHealthy:
			overallStatus = HealthStatusDegraded
		}
	}

	response := HealthCheckResponse{
		Status:        overallStatus,
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		EngineVersion: EngineVersion,
		GitCommit:     GitCommit,
		BuildTime:     BuildTime,
		Uptime:        time.Since(s.startTime).String(),
		Checks:        checks,
		System:        getSystemInfo(),
		RequestID:     requestID,
	}

	statusCode := http.StatusOK
	if overallStatus == HealthStatusUnhealthy {
		statusCode = http.StatusServiceUnavailable
	}

	s.securityLogger.LogAuditEvent(
		requestID,
		"health_check",
		"system",
		string(overallStatus),
		map[string]interface{}{
			"duration":    time.Since(start),
			"checks":      len(checks),
			"status_code": statusCode,
		},
	)

	s.writeJSON(w, statusCode, response)
}

// handleReadiness provides readiness probe endpoint
func (s *Server) handleReadiness(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetReqID(r.Context())

	ready := true
	message := "Ready"

	if c := s.checkContractsHealth(); c.Status != HealthStatusHealthy {
		ready = false
		message = c.Message
	}
	if c := s.checkStoreHealth(r.Context()); c.Status != HealthStatusHealthy {
		ready = false
		message = c.Message
	}

	response := map[string]interface{}{
		"ready":          ready,
		"message":        message,
		"timestamp":      time.Now().UTC().Format(time.RFC3339),
		"engine_version": EngineVersion,
		"request_id":     requestID,
	}

	statusCode := http.StatusOK
	outcome := "ready"
	if !ready {
		statusCode = http.StatusServiceUnavailable
		outcome = "not_ready"
	}

	s.securityLogger.LogAuditEvent(
		requestID,
		"readiness_check",
		"system",
		outcome,
		map[string]interface{}{"message": message},
	)

	s.writeJSON(w, statusCode, response)
}

// handleLiveness provides liveness probe endpoint
func (s *Server) handleLiveness(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"alive":          true,
		"timestamp":      time.Now().UTC().Format(time.RFC3339),
		"engine_version": EngineVersion,
		"uptime":         time.Since(s.startTime).String(),
		"request_id":     middleware.GetReqID(r.Context()),
	})
}

// checkStoreHealth pings the state store
func (s *Server) checkStoreHealth(ctx context.Context) HealthCheck {
	start := time.Now()

	status := HealthStatusHealthy
	message := "Store reachable"

	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := s.host.Ping(ctx); err != nil {
		status = HealthStatusUnhealthy
		message = fmt.Sprintf("Store unreachable: %v", err)
	}

	return HealthCheck{
		Status:      status,
		Message:     message,
		LastChecked: time.Now().UTC().Format(time.RFC3339),
		Duration:    time.Since(start).String(),
	}
}

// checkContractsHealth checks that the game contract is deployed
func (s *Server) checkContractsHealth() HealthCheck {
	start := time.Now()

	contracts := s.host.Contracts()
	status := HealthStatusUnhealthy
	message := fmt.Sprintf("Contract %s not deployed", s.gameContract)
	for _, c := range contracts {
		if c.Name == s.gameContract {
			status = HealthStatusHealthy
			message = fmt.Sprintf("%d contracts deployed", len(contracts))
		}
	}

	return HealthCheck{
		Status:      status,
		Message:     message,
		LastChecked: time.Now().UTC().Format(time.RFC3339),
		Duration:    time.Since(start).String(),
	}
}

// getSystemInfo collects system information
func getSystemInfo() SystemInfo {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	return SystemInfo{
		GoVersion:     runtime.Version(),
		NumGoroutines: runtime.NumGoroutine(),
		NumCPU:        runtime.NumCPU(),
		GOMAXPROCS:    runtime.GOMAXPROCS(0),
		MemoryAlloc:   m.Alloc,
		MemorySys:     m.Sys,
		GCCycles:      m.NumGC,
	}
}
