package httpapi

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

type HealthHandler struct {
	db     *sql.DB
	redis  *redis.Client
	logger *zap.Logger
}

func NewHealthHandler(db *sql.DB, redisClient *redis.Client, logger *zap.Logger) *HealthHandler {
	return &HealthHandler{db: db, redis: redisClient, logger: logger}
}

// Health pings both backends. Redis being down degrades dedup and events but
// ingestion still works, so only a database failure is reported unhealthy.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status := map[string]string{
		"status":   "ok",
		"database": "ok",
		"redis":    "ok",
	}
	code := http.StatusOK

	if err := h.db.PingContext(ctx); err != nil {
		h.logger.Warn("Database ping failed", zap.Error(err))
		status["database"] = "down"
		status["status"] = "down"
		code = http.StatusServiceUnavailable
	}
	if err := h.redis.Ping(ctx).Err(); err != nil {
		h.logger.Warn("Redis ping failed", zap.Error(err))
		status["redis"] = "down"
		if status["status"] == "ok" {
			status["status"] = "degraded"
		}
	}

	writeJSON(w, code, Ok(status))
}
