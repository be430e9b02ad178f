package handler

import (
	"net/http"

	"taskboard-service/pkg/database"
	"taskboard-service/prometheus"

	"github.com/labstack/echo/v4"
)

// HealthCheck reports service liveness and database reachability
func HealthCheck(c echo.Context) error {
	dbStatus := "up"
	sqlDB, err := database.GetDB().DB()
	if err != nil || sqlDB.Ping() != nil {
		dbStatus = "down"
	}

	status := http.StatusOK
	if dbStatus != "up" {
		status = http.StatusServiceUnavailable
	}

	return c.JSON(status, echo.Map{
		"status":   "healthy",
		"service":  "taskboard-service",
		"database": dbStatus,
	})
}

// MetricsHandler exposes the Prometheus metrics endpoint through Echo
func MetricsHandler(c echo.Context) error {
	handler := prometheus.GetPrometheusHandler()
	handler.ServeHTTP(c.Response(), c.Request())
	return nil
}
