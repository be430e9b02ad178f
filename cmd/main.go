package main

import (
	"taskboard-service/internal/handler"
	"taskboard-service/internal/middleware"
	"taskboard-service/pkg/config"
	"taskboard-service/pkg/database"
	"taskboard-service/pkg/jwtutil"
	"taskboard-service/pkg/logger"
	"taskboard-service/prometheus"

	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"
)

func main() {
	// Load configuration from .env file and environment variables
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	// Initialize logger with config
	logger.InitLogger(cfg)
	log := logger.GetLogger()
	log.Info("Starting taskboard service...", zap.String("environment", cfg.Server.Env))

	// Initialize database
	if err := database.InitDB(cfg); err != nil {
		log.Fatal("Failed to initialize database", zap.Error(err))
	}
	log.Info("Database connection established")

	// Initialize JWT utility
	jwtUtil := jwtutil.NewJWTUtil(&cfg.JWT)
	handler.Initialize(jwtUtil)
	log.Info("JWT utility initialized")

	// Initialize Echo framework
	e := echo.New()

	// Apply global middleware - order matters
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.CORS())
	e.Use(middleware.RequestIDMiddleware)
	e.Use(logger.Middleware(log))
	e.Use(prometheus.MetricsMiddleware())

	// Public routes - no authentication required
	e.GET("/health", handler.HealthCheck)
	e.GET("/metrics", handler.MetricsHandler)

	authRequired := middleware.AuthMiddleware(jwtUtil)

	// Authentication routes
	auth := e.Group("/auth")
	auth.POST("/register-tenant", handler.RegisterTenant)
	auth.POST("/login", handler.Login)
	auth.GET("/me", handler.Me, authRequired)
	auth.POST("/logout", handler.Logout, authRequired)
	auth.GET("/audit-logs", handler.AuditLogs, authRequired)

	// Tenant administration and user management
	tenants := e.Group("/tenants")
	tenants.Use(authRequired)
	tenants.GET("", handler.ListTenants)
	tenants.GET("/dashboard/stats", handler.DashboardStats)
	tenants.GET("/me", handler.MyTenant)
	tenants.POST("/users", handler.CreateUser)
	tenants.GET("/users", handler.ListUsers)
	tenants.PUT("/users/:id", handler.UpdateUser)
	tenants.DELETE("/users/:id", handler.DeleteUser)
	tenants.PUT("/:id", handler.UpdateTenant)

	// Projects and their task boards
	projects := e.Group("/projects")
	projects.Use(authRequired)
	projects.POST("", handler.CreateProject)
	projects.GET("", handler.ListProjects)
	projects.GET("/:id", handler.GetProject)
	projects.PUT("/:id", handler.UpdateProject)
	projects.DELETE("/:id", handler.DeleteProject)
	projects.POST("/:id/tasks", handler.CreateTask)
	projects.GET("/:id/tasks", handler.ListProjectTasks)
	projects.PUT("/tasks/:id", handler.UpdateTask)
	projects.PATCH("/tasks/:id/status", handler.UpdateTaskStatus)
	projects.DELETE("/tasks/:id", handler.DeleteTask)

	// Start server
	port := cfg.Server.Port
	log.Info("Starting server", zap.String("port", port))
	if err := e.Start(":" + port); err != nil {
		log.Fatal("Failed to start server", zap.Error(err))
	}
}
