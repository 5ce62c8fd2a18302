package http

import (
	"encoding/json"
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/sirupsen/logrus"

	"conversation-analyzer/pkg/version"
)

// HealthStatus represents the health status of the service
type HealthStatus struct {
	Status    string                 `json:"status"`
	Timestamp string                 `json:"timestamp"`
	Uptime    string                 `json:"uptime"`
	Version   string                 `json:"version"`
	Checks    map[string]CheckResult `json:"checks"`
	System    SystemInfo             `json:"system"`
}

// CheckResult represents an individual health check result
type CheckResult struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// SystemInfo contains system resource information
type SystemInfo struct {
	GoRoutines    int    `json:"goroutines"`
	MemoryMB      uint64 `json:"memory_mb"`
	CPUCount      int    `json:"cpu_count"`
	StreamClients int    `json:"stream_clients"`
}

// HealthHandler handles health check requests
func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
	startTime := time.Now()

	health := HealthStatus{
		Status:    "healthy",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Uptime:    time.Since(s.startTime).Round(time.Second).String(),
		Version:   version.Version,
		Checks:    make(map[string]CheckResult),
	}

	if s.analyzer != nil && s.analyzer.Patterns() != nil {
		entries := 0
		for _, info := range s.analyzer.Patterns().Describe() {
			entries += info.Entries
		}
		health.Checks["patterns"] = CheckResult{
			Status:  "healthy",
			Message: fmt.Sprintf("%d pattern entries loaded", entries),
		}
	} else {
		health.Checks["patterns"] = CheckResult{
			Status:  "unhealthy",
			Message: "Pattern configuration not loaded",
		}
		health.Status = "unhealthy"
	}

	if s.stream != nil {
		if s.stream.IsRunning() {
			health.Checks["report_stream"] = CheckResult{
				Status:  "healthy",
				Message: "Report stream is running",
			}
		} else {
			health.Checks["report_stream"] = CheckResult{
				Status:  "degraded",
				Message: "Report stream not running",
			}
			health.Status = degrade(health.Status)
		}
		health.System.StreamClients = s.stream.GetConnectedClients()
	}

	if s.publisher != nil {
		if s.publisher.IsConnected() {
			health.Checks["amqp"] = CheckResult{
				Status:  "healthy",
				Message: "AMQP connected",
			}
		} else {
			health.Checks["amqp"] = CheckResult{
				Status:  "degraded",
				Message: "AMQP disconnected",
			}
			health.Status = degrade(health.Status)
		}
	}

	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	health.System.GoRoutines = runtime.NumGoroutine()
	health.System.MemoryMB = m.Alloc / 1024 / 1024
	health.System.CPUCount = runtime.NumCPU()

	if r.URL.Query().Get("detailed") == "true" {
		s.logger.WithFields(logrus.Fields{
			"status":   health.Status,
			"checks":   health.Checks,
			"system":   health.System,
			"duration": time.Since(startTime),
		}).Debug("Health check performed")
	}

	statusCode := http.StatusOK
	if health.Status == "unhealthy" {
		statusCode = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(health)
}

func degrade(status string) string {
	if status == "unhealthy" {
		return status
	}
	return "degraded"
}

// LivenessHandler handles kubernetes liveness probe
func (s *Server) LivenessHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

// ReadinessHandler reports ready once the pattern configuration is loaded
func (s *Server) ReadinessHandler(w http.ResponseWriter, r *http.Request) {
	if s.analyzer == nil || s.analyzer.Patterns() == nil || s.dispatcher == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte("not ready"))
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ready"))
}
