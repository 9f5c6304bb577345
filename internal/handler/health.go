package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/washpoint/carwash/pkg/logger"
	"github.com/washpoint/carwash/pkg/redis"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type HealthHandler struct {
	db          *gorm.DB
	redisClient *redis.Client
}

type HealthCheckResponse struct {
	Status    string                 `json:"status"`
	Version   string                 `json:"version"`
	Timestamp time.Time              `json:"timestamp"`
	Checks    map[string]HealthCheck `json:"checks"`
}

type HealthCheck struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

func NewHealthHandler(db *gorm.DB, redisClient *redis.Client) *HealthHandler {
	return &HealthHandler{
		db:          db,
		redisClient: redisClient,
	}
}

// HealthCheck reports database and redis connectivity
func (h *HealthHandler) HealthCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	response := HealthCheckResponse{
		Status:    "healthy",
		Version:   "1.0.0",
		Timestamp: time.Now(),
		Checks:    make(map[string]HealthCheck),
	}

	dbStatus := h.checkDatabase(ctx)
	response.Checks["database"] = dbStatus
	if dbStatus.Status != "healthy" {
		response.Status = "unhealthy"
	}

	// Redis is optional; a dead cache degrades but does not fail the check.
	response.Checks["redis"] = h.checkRedis(ctx)

	statusCode := http.StatusOK
	if response.Status == "unhealthy" {
		statusCode = http.StatusServiceUnavailable
	}

	logger.GetLogger().Debug("Health check performed",
		zap.String("overall_status", response.Status),
		zap.Int("status_code", statusCode),
	)

	c.JSON(statusCode, response)
}

func (h *HealthHandler) checkDatabase(ctx context.Context) HealthCheck {
	if h.db == nil {
		return HealthCheck{Status: "unhealthy", Message: "database not configured"}
	}

	sqlDB, err := h.db.DB()
	if err != nil {
		return HealthCheck{Status: "unhealthy", Message: err.Error()}
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return HealthCheck{Status: "unhealthy", Message: err.Error()}
	}

	return HealthCheck{Status: "healthy", Message: "database is reachable"}
}

func (h *HealthHandler) checkRedis(ctx context.Context) HealthCheck {
	if h.redisClient == nil {
		return HealthCheck{Status: "disabled", Message: "redis not enabled"}
	}
	if err := h.redisClient.Ping(ctx); err != nil {
		return HealthCheck{Status: "unhealthy", Message: err.Error()}
	}
	return HealthCheck{Status: "healthy", Message: "redis is reachable"}
}

// Liveness is the bare process-up probe
func (h *HealthHandler) Liveness(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "alive"})
}
