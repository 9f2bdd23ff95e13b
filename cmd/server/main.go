package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/roomdesk/reservation-backend/internal/config"
	"github.com/roomdesk/reservation-backend/internal/database"
	"github.com/roomdesk/reservation-backend/internal/handlers"
	"github.com/roomdesk/reservation-backend/internal/middleware"
	"github.com/roomdesk/reservation-backend/internal/services"
	"github.com/roomdesk/reservation-backend/pkg/jwt"
	"github.com/roomdesk/reservation-backend/pkg/lock"
	"github.com/roomdesk/reservation-backend/pkg/notify"
	"github.com/sirupsen/logrus"
)

var (
	version   = "1.0.0"
	buildTime = "unknown"
)

func main() {
	// Initialize logger
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetOutput(os.Stdout)

	logger.Info("Starting RoomDesk Reservation Backend")
	logger.Infof("Version: %s, Build Time: %s", version, buildTime)

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("Failed to load configuration: %v", err)
	}

	// Set log level
	logLevel, err := logrus.ParseLevel(cfg.Server.LogLevel)
	if err != nil {
		logger.Warn("Invalid log level, using INFO")
		logLevel = logrus.InfoLevel
	}
	logger.SetLevel(logLevel)

	// Set Gin mode
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	// Initialize database connection
	logger.Info("Connecting to database...")
	db, err := database.NewConnection(cfg.Database)
	if err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	logger.Info("Database connection established")

	startupCtx, cancelStartup := context.WithTimeout(context.Background(), 30*time.Second)
	if err := database.Migrate(startupCtx, db); err != nil {
		cancelStartup()
		logger.Fatalf("Failed to apply schema: %v", err)
	}
	logger.Info("Database schema is up to date")

	// Notification sink: RabbitMQ when configured, the log otherwise
	var sink notify.Sink
	if cfg.AMQP.URL != "" {
		publisher, err := notify.NewAMQPPublisher(cfg.AMQP.URL, cfg.AMQP.Exchange)
		if err != nil {
			cancelStartup()
			logger.Fatalf("Failed to connect to message broker: %v", err)
		}
		defer publisher.Close()
		sink = publisher
		logger.WithField("exchange", cfg.AMQP.Exchange).Info("✓ Notifications published to RabbitMQ")
	} else {
		sink = notify.NewLogSink(logger)
		logger.Warn("AMQP_URL not set, notifications are written to the log only")
	}

	// Sweep lease: redis when configured, in-process guard only otherwise
	var locker services.Locker
	if cfg.Redis.URL != "" {
		rdb, err := lock.NewClient(startupCtx, cfg.Redis.URL)
		if err != nil {
			cancelStartup()
			logger.Fatalf("Failed to connect to redis: %v", err)
		}
		defer rdb.Close()
		locker = lock.NewRedisLocker(rdb)
		logger.Info("✓ Sweep lease held in redis")
	}
	cancelStartup()

	// Initialize services
	logger.Info("Initializing services...")
	store := database.NewPostgresReservationStore(db)
	auditService := services.NewAuditService(database.NewAuditRepository(db), logger)

	bookingService := services.NewBookingService(store, sink, auditService, services.BookingServiceConfig{
		MaxApprovedPerUser: cfg.Booking.MaxApprovedPerUser,
		StrictRoomOverlap:  cfg.Booking.StrictRoomOverlap,
		Clock:              time.Now,
	}, logger)
	availabilityService := services.NewAvailabilityService(store, logger)

	sweeper := services.NewReconciliationService(store, sink, auditService, locker, services.ReconciliationConfig{
		BatchSize:    cfg.Sweep.BatchSize,
		ReminderLead: cfg.Booking.ReminderLead,
		LockTTL:      cfg.Sweep.LockTTL,
		Clock:        time.Now,
	}, logger)

	// Initialize and start cron service
	cronService := services.NewCronService(sweeper, cfg.Sweep.Schedule, logger)
	if err := cronService.Start(); err != nil {
		logger.Fatalf("Failed to start cron service: %v", err)
	}

	jwtService := jwt.NewService(cfg.JWT.Secret, cfg.JWT.Issuer, cfg.JWT.AccessTokenExpiry)

	// Initialize handlers
	bookingHandler := handlers.NewBookingHandler(bookingService)
	adminHandler := handlers.NewAdminHandler(bookingService, cronService, auditService)
	availabilityHandler := handlers.NewAvailabilityHandler(availabilityService)

	// Initialize Gin router
	router := gin.New()

	// Middleware
	router.Use(gin.Recovery())
	router.Use(middleware.RequestLogger(logger))

	// CORS configuration
	corsConfig := cors.Config{
		AllowOrigins:     cfg.CORS.AllowedOrigins,
		AllowMethods:     cfg.CORS.AllowedMethods,
		AllowHeaders:     append(cfg.CORS.AllowedHeaders, middleware.RequestIDHeader),
		ExposeHeaders:    []string{"Content-Length", middleware.RequestIDHeader, "Retry-After"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	router.Use(cors.New(corsConfig))

	// Health check endpoint
	router.GET("/health", healthCheckHandler(db))

	// API v1 routes
	rateLimiter := middleware.NewRateLimiter(cfg.RateLimit.Requests, cfg.RateLimit.Window)
	v1 := router.Group("/api/v1")
	v1.Use(rateLimiter.Middleware())
	handlers.RegisterRoutes(
		v1,
		middleware.AuthMiddleware(jwtService, logger),
		bookingHandler,
		adminHandler,
		availabilityHandler,
	)

	// Create HTTP server
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		logger.Infof("Server starting on port %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	// Stop cron service, waiting for a running sweep
	cronService.Stop()

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Errorf("Server forced to shutdown: %v", err)
	}

	logger.Info("Server exited successfully")
}

// healthCheckHandler returns a health check endpoint
func healthCheckHandler(db database.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		// Check database connection
		dbStatus := "healthy"
		if err := db.PingContext(ctx); err != nil {
			dbStatus = "unhealthy"
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":   "unhealthy",
				"database": dbStatus,
				"error":    err.Error(),
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"status":     "healthy",
			"database":   dbStatus,
			"version":    version,
			"build_time": buildTime,
			"timestamp":  time.Now().Unix(),
		})
	}
}
