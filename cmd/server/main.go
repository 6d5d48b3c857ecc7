package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/fieldworks/event-scheduler-go/pkg/approval"
	"github.com/fieldworks/event-scheduler-go/pkg/auth"
	"github.com/fieldworks/event-scheduler-go/pkg/config"
	"github.com/fieldworks/event-scheduler-go/pkg/conflict"
	"github.com/fieldworks/event-scheduler-go/pkg/database"
	"github.com/fieldworks/event-scheduler-go/pkg/engine"
	"github.com/fieldworks/event-scheduler-go/pkg/handlers"
	"github.com/fieldworks/event-scheduler-go/pkg/models"
	"github.com/fieldworks/event-scheduler-go/pkg/platform"
	"github.com/fieldworks/event-scheduler-go/pkg/rotation"
	"github.com/fieldworks/event-scheduler-go/pkg/rules"
	"github.com/fieldworks/event-scheduler-go/pkg/store"
)

func main() {
	// Load .env if it exists
	// Try root and parent directories for flexibility
	envPaths := []string{".env", "../.env", "../../.env"}
	for _, p := range envPaths {
		if _, err := os.Stat(p); err == nil {
			_ = godotenv.Load(p)
			break
		}
	}

	if os.Getenv("GIN_MODE") == "" {
		gin.SetMode(gin.ReleaseMode)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("could not build logger: %v", err)
	}
	defer logger.Sync()

	db := database.InitDB()
	if err := auth.EnsureAdminExists(db); err != nil {
		logger.Error("could not ensure admin user exists", zap.Error(err))
	}

	st := store.New(db)
	rotations := rotation.New(db)
	validator := rules.NewValidator(cfg.Holidays, time.Duration(cfg.ProximityBufferHours)*time.Hour)
	resolver := conflict.New(cfg.MaxBumps, cfg.BumpProtectionDays)
	eng := engine.New(st, rotations, validator, resolver, logger, engine.Config{
		LeadDays:                  cfg.LeadDays,
		HorizonDays:               30,
		SupervisorDurationMinutes: cfg.SupervisorDurationMinutes,
	})
	submitter := platform.NewHTTPSubmitter(cfg.PlatformURL, cfg.PlatformKey)
	approvals := approval.NewService(st, validator, submitter, logger)

	// Scheduled runs and retention run on the in-process timer.
	c := cron.New()
	if cfg.RunCron != "" {
		if _, err := c.AddFunc(cfg.RunCron, func() {
			if _, err := eng.Run(context.Background(), models.RunScheduled); err != nil && !errors.Is(err, store.ErrRunActive) {
				logger.Error("scheduled run failed", zap.Error(err))
			}
		}); err != nil {
			log.Fatalf("invalid RUN_CRON: %v", err)
		}
	}
	if _, err := c.AddFunc("30 2 * * *", func() {
		cutoff := time.Now().AddDate(0, 0, -7*cfg.RetentionWeeks)
		n, err := st.PurgeRunsBefore(context.Background(), cutoff)
		if err != nil {
			logger.Error("retention purge failed", zap.Error(err))
			return
		}
		if n > 0 {
			logger.Info("purged old runs", zap.Int64("count", n))
		}
	}); err != nil {
		log.Fatalf("could not register retention job: %v", err)
	}
	c.Start()
	defer c.Stop()

	h := &handlers.Handler{DB: db, Store: st, Engine: eng, Approval: approvals, Rotations: rotations, Cfg: cfg}

	r := gin.Default()

	// Routes
	r.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"message": "Field Event Scheduler API",
			"version": "1.0.0",
		})
	})

	r.POST("/admin/login", h.Login)

	// Admin Endpoints
	admin := r.Group("/admin")
	admin.Use(h.AuthMiddleware())
	{
		admin.POST("/keys", h.GenerateKey)
		admin.GET("/keys", h.ListKeys)
		admin.DELETE("/keys/:id", h.RevokeKey)
	}

	// Scheduler Endpoints
	api := r.Group("/api")
	api.Use(h.APIKeyMiddleware())
	{
		api.POST("/runs", h.StartRun)
		api.GET("/runs", h.ListRuns)
		api.GET("/runs/stale", h.StaleRuns)
		api.GET("/runs/:id", h.GetRun)
		api.POST("/runs/:id/dismiss", h.DismissRun)
		api.POST("/runs/:id/approve", h.ApproveRun)
		api.PUT("/proposals/:id", h.EditProposal)
		api.POST("/proposals/:id/retry", h.RetrySubmission)
		api.POST("/assignments/:id/action", h.CoreAction)
		api.PUT("/rotations", h.UpsertRotation)
		api.POST("/rotations/exceptions", h.AddRotationException)
	}

	log.Printf("Server starting on port %s", cfg.Port)
	if err := r.Run(":" + cfg.Port); err != nil {
		log.Fatalf("could not run server: %v", err)
	}
}
