// Package server contains the HTTP handlers for the messaging API.
package server

import (
	"context"
	"fmt"
	"time"

	"sophia/internal/authz"
	"sophia/internal/cache"
	"sophia/internal/config"
	"sophia/internal/database"
	"sophia/internal/directory"
	"sophia/internal/middleware"
	"sophia/internal/notifications"
	"sophia/internal/service"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/helmet"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/monitor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// Server holds all dependencies and provides handlers.
type Server struct {
	config         *config.Config
	db             *gorm.DB
	redis          *redis.Client
	promMiddleware *fiberprometheus.FiberPrometheus

	policy    *authz.Policy
	directory directory.Directory
	notifier  *notifications.Notifier

	channelService      *service.ChannelService
	membershipService   *service.MembershipService
	messageService      *service.MessageService
	escalationService   *service.EscalationService
	notificationService *service.NotificationService
	auditService        *service.AuditService
}

// NewServer creates a server, establishing its own database and Redis
// connections from the configuration.
func NewServer(cfg *config.Config) (*Server, error) {
	db, err := database.Connect(cfg)
	if err != nil {
		return nil, fmt.Errorf("database connection failed: %w", err)
	}

	cache.InitRedis(cfg.RedisURL)
	return NewServerWithDeps(cfg, db, cache.GetClient())
}

// NewServerWithDeps creates a Server using already-initialized dependencies.
// Use this in tests or when a bootstrap layer establishes DB/Redis.
func NewServerWithDeps(cfg *config.Config, db *gorm.DB, redisClient *redis.Client) (*Server, error) {
	policy := authz.NewPolicy()
	dir := directory.NewDirectory(db)

	var notifier *notifications.Notifier
	if redisClient != nil {
		notifier = notifications.NewNotifier(redisClient)
	}
	dispatcher := service.NewDispatcher(notifier)

	server := &Server{
		config:         cfg,
		db:             db,
		redis:          redisClient,
		promMiddleware: middleware.InitMetrics("sophia-api"),
		policy:         policy,
		directory:      dir,
		notifier:       notifier,

		channelService:      service.NewChannelService(db, policy, dir, dispatcher, cfg.DefaultSLAHours),
		membershipService:   service.NewMembershipService(db, policy, dir, dispatcher),
		messageService:      service.NewMessageService(db, policy, dispatcher),
		escalationService:   service.NewEscalationService(db, policy, dispatcher, cfg.DefaultSLAHours),
		notificationService: service.NewNotificationService(db),
		auditService:        service.NewAuditService(db, policy),
	}
	return server, nil
}

// SetupMiddleware configures middleware for the Fiber app.
func (s *Server) SetupMiddleware(app *fiber.App) {
	// Panic recovery
	app.Use(recover.New())

	// Request ID for tracing
	app.Use(requestid.New())

	// Context middleware to propagate request ID and user ID
	app.Use(middleware.ContextMiddleware())

	// Prometheus metrics
	if s.promMiddleware != nil {
		app.Use(middleware.MetricsMiddleware(s.promMiddleware))
	}

	if s.config.TracingEnabled {
		app.Use(middleware.TracingMiddleware())
	}

	// Security headers
	app.Use(helmet.New())

	// Structured logging middleware (after requestid and context middleware)
	app.Use(middleware.StructuredLogger())

	// CORS must run before middlewares that can short-circuit (e.g. limiter)
	// so browser clients still receive CORS headers on error responses.
	origins := s.config.AllowedOrigins
	if origins == "" {
		origins = "http://localhost:5173,http://localhost:3000"
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization",
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	// Global rate limiting (100 requests per minute per IP)
	app.Use(limiter.New(limiter.Config{
		Max:        100,
		Expiration: 1 * time.Minute,
		Next: func(c *fiber.Ctx) bool {
			return c.Method() == fiber.MethodOptions
		},
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error": "Too many requests, please try again later.",
			})
		},
	}))
}

// SetupRoutes configures all routes for the application.
func (s *Server) SetupRoutes(app *fiber.App) {
	api := app.Group("/api")

	// Health checks
	app.Get("/health/live", s.LivenessCheck)
	app.Get("/health/ready", s.ReadinessCheck)
	app.Get("/health", s.ReadinessCheck)

	// Metrics endpoint for Prometheus
	if s.promMiddleware != nil {
		s.promMiddleware.RegisterAt(app, "/metrics")
	}
	api.Get("/metrics/dashboard", monitor.New(monitor.Config{
		Title: "Sophia Messaging Metrics Dashboard",
	}))

	// Everything below requires a valid bearer token.
	protected := api.Group("", middleware.AuthRequired)

	// Channel routes
	channels := protected.Group("/canais")
	channels.Post("/", middleware.RateLimit(
		s.redis, 10, time.Minute, "create_channel"), s.CreateChannel)
	channels.Get("/", s.ListChannels)

	// Specific /:id/:resource routes BEFORE the generic /:id route
	channels.Post("/:id/arquivar", s.ArchiveChannel)
	channels.Post("/:id/silenciar", s.MuteChannel)
	channels.Delete("/:id/silenciar", s.UnmuteChannel)
	channels.Post("/:id/fixar", s.PinChannel)
	channels.Delete("/:id/fixar", s.UnpinChannel)
	channels.Post("/:id/ler", s.MarkChannelRead)
	channels.Get("/:id/nao-lidas", s.GetUnreadCount)

	// Participant routes
	channels.Post("/:id/participantes", s.AddParticipants)
	channels.Patch("/:id/participantes/:userId", s.UpdateParticipant)
	channels.Delete("/:id/participantes/:userId", s.RemoveParticipant)

	// Message routes
	channels.Get("/:id/mensagens", s.ListMessages)
	channels.Post("/:id/mensagens", middleware.RateLimit(
		s.redis, 15, time.Minute, "send_message"), s.SendMessage)
	channels.Post("/:id/mensagens/:messageId/visualizar", s.RecordView)
	channels.Get("/:id/mensagens/:messageId/visualizacoes", s.ListMessageViews)
	channels.Post("/:id/mensagens/:messageId/confirmar", s.AcknowledgeMessage)
	channels.Put("/:id/mensagens/:messageId", s.EditMessage)
	channels.Delete("/:id/mensagens/:messageId", s.DeleteMessage)

	// Ownership / escalation routes
	channels.Post("/:id/assumir", s.EscalateConversation)
	channels.Post("/:id/devolver", s.ReturnConversation)
	channels.Get("/:id/responsavel", s.GetOwnership)

	// Generic /:id routes last
	channels.Get("/:id", s.GetChannel)
	channels.Delete("/:id", s.DeleteChannel)

	// SLA sweep (management only, typically called by a cron job)
	protected.Post("/sla/verificar", s.RefreshSLA)

	// Notification inbox
	inbox := protected.Group("/notificacoes")
	inbox.Get("/", s.ListNotifications)
	inbox.Get("/nao-lidas", s.GetNotificationUnreadCount)
	inbox.Post("/:id/ler", s.MarkNotificationRead)

	// Audit trail
	protected.Get("/auditoria", s.QueryAudit)
}

// Shutdown releases server-held resources after the HTTP listener stops.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.redis != nil {
		if err := s.redis.Close(); err != nil {
			return err
		}
	}
	return nil
}

// LivenessCheck handles liveness probe requests.
func (s *Server) LivenessCheck(c *fiber.Ctx) error {
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"status": "up",
		"time":   time.Now(),
	})
}

// ReadinessCheck handles readiness probe requests.
func (s *Server) ReadinessCheck(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.Context(), 5*time.Second)
	defer cancel()

	dbStatus := "healthy"
	sqlDB, err := s.db.DB()
	if err != nil {
		dbStatus = "unhealthy"
	} else if err := sqlDB.PingContext(ctx); err != nil {
		dbStatus = "unhealthy"
	}

	redisStatus := "healthy"
	if s.redis == nil {
		redisStatus = "unavailable"
	} else if err := s.redis.Ping(ctx).Err(); err != nil {
		redisStatus = "unhealthy"
	}

	status := fiber.StatusOK
	overall := "ready"
	if dbStatus != "healthy" {
		status = fiber.StatusServiceUnavailable
		overall = "not ready"
	}

	return c.Status(status).JSON(fiber.Map{
		"status": overall,
		"checks": fiber.Map{
			"database": dbStatus,
			"redis":    redisStatus,
		},
		"time": time.Now(),
	})
}
