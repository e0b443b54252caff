package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"socialecho/pkg/geoip"
	"socialecho/pkg/logger"

	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
)

type SystemHandler struct {
	db          *sqlx.DB
	redisClient *redis.Client
	geo         *geoip.Resolver
	logger      logger.Logger
	startTime   time.Time
}

func NewSystemHandler(db *sqlx.DB, redisClient *redis.Client, geo *geoip.Resolver, log logger.Logger) *SystemHandler {
	return &SystemHandler{
		db:          db,
		redisClient: redisClient,
		geo:         geo,
		logger:      log,
		startTime:   time.Now(),
	}
}

type ServiceStatus struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Status      string `json:"status"` // operational, degraded, outage
	LastUpdated string `json:"lastUpdated"`
	LatencyMs   int64  `json:"latency_ms"`
}

type SystemStatusResponse struct {
	UptimeSeconds int64           `json:"uptime_seconds"`
	Services      []ServiceStatus `json:"services"`
}

// GetHealth is the liveness probe.
func (h *SystemHandler) GetHealth(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// GetSystemStatus reports per-dependency readiness with measured latency.
func (h *SystemHandler) GetSystemStatus(w http.ResponseWriter, r *http.Request) {
	services := []ServiceStatus{}

	// If we are here, the API is running.
	services = append(services, ServiceStatus{
		ID:          "core-api",
		Name:        "Authentication API",
		Description: "Sign-in and account lifecycle API",
		Status:      "operational",
		LastUpdated: time.Now().Format(time.RFC3339),
		LatencyMs:   0,
	})

	dbStatus := "operational"
	dbStart := time.Now()
	err := h.db.PingContext(r.Context())
	dbLatency := time.Since(dbStart).Milliseconds()

	if err != nil {
		dbStatus = "outage"
		h.logger.Error("Database ping failed", map[string]interface{}{"error": err.Error()})
	} else if dbLatency > 200 {
		dbStatus = "degraded"
	}

	services = append(services, ServiceStatus{
		ID:          "database",
		Name:        "PostgreSQL Database",
		Description: "Users, contexts, and audit logs",
		Status:      dbStatus,
		LastUpdated: time.Now().Format(time.RFC3339),
		LatencyMs:   dbLatency,
	})

	redisStatus := "operational"
	redisStart := time.Now()
	err = h.redisClient.Ping(r.Context()).Err()
	redisLatency := time.Since(redisStart).Milliseconds()

	if err != nil {
		redisStatus = "outage"
		h.logger.Error("Redis ping failed", map[string]interface{}{"error": err.Error()})
	} else if redisLatency > 50 {
		redisStatus = "degraded"
	}

	services = append(services, ServiceStatus{
		ID:          "redis",
		Name:        "Redis Cache",
		Description: "Rate limiting and mismatch counters",
		Status:      redisStatus,
		LastUpdated: time.Now().Format(time.RFC3339),
		LatencyMs:   redisLatency,
	})

	// GeoIP is optional; a missing database degrades location fields to
	// Unknown instead of failing sign-in.
	geoStatus := "operational"
	if !h.geo.Enabled() {
		geoStatus = "degraded"
	}
	services = append(services, ServiceStatus{
		ID:          "geoip",
		Name:        "GeoIP Database",
		Description: "IP to location resolution",
		Status:      geoStatus,
		LastUpdated: time.Now().Format(time.RFC3339),
		LatencyMs:   0,
	})

	h.respondJSON(w, http.StatusOK, SystemStatusResponse{
		UptimeSeconds: int64(time.Since(h.startTime).Seconds()),
		Services:      services,
	})
}

func (h *SystemHandler) respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}
