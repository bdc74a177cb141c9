package router

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/dealership-platform/pkg/logging"
)

const readinessTimeout = 2 * time.Second

// Check tests one dependency.
type Check func(ctx context.Context) error

// RedisCheck pings the Redis store.
func RedisCheck(client *redis.Client) Check {
	return func(ctx context.Context) error {
		return client.Ping(ctx).Err()
	}
}

// SQLCheck pings the Postgres database.
func SQLCheck(db *sql.DB) Check {
	return func(ctx context.Context) error {
		return db.PingContext(ctx)
	}
}

// HealthHandler serves liveness and readiness checks.
type HealthHandler struct {
	checks map[string]Check
	logger *logging.Logger
}

// NewHealthHandler creates a handler over the named dependency checks.
func NewHealthHandler(checks map[string]Check, logger *logging.Logger) *HealthHandler {
	if logger == nil {
		logger = logging.Default()
	}
	if checks == nil {
		checks = map[string]Check{}
	}
	return &HealthHandler{checks: checks, logger: logger}
}

// Live reports that the process is serving.
// GET /health
func (h *HealthHandler) Live(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type readinessResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

// Ready runs every dependency check and answers 503 when one fails.
// GET /ready
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
	defer cancel()

	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	resp := readinessResponse{Status: "ready", Checks: make(map[string]string, len(names))}
	code := http.StatusOK
	for _, name := range names {
		if err := h.checks[name](ctx); err != nil {
			h.logger.Warn("readiness check failed", "dependency", name, "error", err)
			resp.Checks[name] = "unavailable"
			resp.Status = "unavailable"
			code = http.StatusServiceUnavailable
			continue
		}
		resp.Checks[name] = "ok"
	}
	writeJSON(w, code, resp)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
