package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"absensi/internal/attendance"
	"absensi/internal/auth"
	"absensi/internal/config"
	"absensi/internal/handler"
	"absensi/internal/httpmiddleware"
	"absensi/internal/logging"
	"absensi/internal/messaging"
	"absensi/internal/notify"
	"absensi/internal/policy"
	"absensi/internal/queue"
	"absensi/internal/schedule"
	"absensi/internal/store"
)

func main() {
	cfg := config.Load()
	log := logging.Must(cfg.Env)
	defer func() { _ = log.Sync() }()

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := runHTTP(cfg, log); err != nil {
		log.Fatal("http server failed", zap.Error(err))
	}
}

func runHTTP(cfg config.App, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := store.NewDB(cfg.DatabaseURL)
	if db == nil {
		return err
	}
	if err != nil {
		log.Warn("db not reachable", zap.Error(err))
	}
	defer func() { _ = db.Close() }()

	if cfg.MigrateOnStart {
		if err := store.Migrate(ctx, db.Client); err != nil {
			return err
		}
		log.Info("schema migrated")
	}

	redisClient := store.NewRedis(cfg.RedisAddr)
	defer func() { _ = redisClient.Close() }()

	var q queue.Queue
	if cfg.QueueBackend == "memory" {
		q = queue.NewInMemory(256)
	} else {
		q = queue.NewRedisQueue(redisClient.Client, "")
	}

	loc := cfg.Location()
	templates, err := notify.NewTemplates(loc)
	if err != nil {
		return err
	}
	sender := messaging.New(cfg.MessagingBaseURL, cfg.MessagingToken, cfg.NotifyTimeout)
	dispatcher := notify.NewDispatcher(notify.NewRepository(db.Client), sender, q, templates,
		notify.Options{Timeout: cfg.NotifyTimeout}, log.Named("notify"))

	policies := policy.NewCachedSource(policy.NewSettingsRepository(db.Client, log.Named("policy")),
		redisClient.Client, cfg.PolicyCacheTTL, log.Named("policy"))
	scans := attendance.NewService(attendance.NewRepository(db.Client), dispatcher, loc, log.Named("attendance"))
	schedules := schedule.NewService(schedule.NewPostgres(db.Client), log.Named("schedule"))

	// The memory queue only lives in this process, so it is consumed here.
	if cfg.QueueBackend == "memory" {
		go func() {
			if err := dispatcher.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error("notification consumer stopped", zap.Error(err))
			}
		}()
		sweeper, err := notify.StartSweeper(ctx, cfg.OutboxSweepSpec, cfg.OutboxGrace, dispatcher, log.Named("notify"))
		if err != nil {
			return err
		}
		defer sweeper.Stop()
	}

	if err := handler.RegisterValidators(); err != nil {
		return err
	}

	var limiter httpmiddleware.Limiter = httpmiddleware.NewSimpleTokenBucket(cfg.RateLimitPerMin, cfg.RateLimitPerMin)
	if cfg.RateLimitBackend == "redis" {
		limiter = httpmiddleware.NewRedisWindow(redisClient.Client, cfg.RateLimitPerMin)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		SkipPaths: []string{"/healthz", "/metrics"},
	}))
	r.Use(cors.New(cors.Config{
		AllowOriginFunc:  func(string) bool { return true },
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		AllowCredentials: true,
		MaxAge:           24 * time.Hour,
	}))
	r.Use(securityHeaders())
	r.Use(httpmiddleware.RateLimit(limiter, log.Named("ratelimit")))

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.GET("/healthz", func(c *gin.Context) {
		redisHealthy := redisClient.Healthy(c.Request.Context())
		dbHealthy := db.Healthy(c.Request.Context())
		status := http.StatusOK
		if !redisHealthy || !dbHealthy {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{"status": http.StatusText(status), "redis": redisHealthy, "db": dbHealthy})
	})

	bearer := auth.Bearer(cfg.JWTSigningKey, cfg.JWTIssuer)
	handler.New(scans, schedules, policies, log.Named("http")).Register(r,
		[]gin.HandlerFunc{bearer, auth.RequireRole(auth.RoleAdmin, auth.RoleTeacher, auth.RoleScanner)},
		[]gin.HandlerFunc{bearer, auth.RequireRole(auth.RoleAdmin)},
	)

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info("starting server", zap.String("addr", srv.Addr), zap.String("queue", cfg.QueueBackend))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	select {
	case err := <-serveErr:
		return err
	case <-ctx.Done():
	}
	log.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("server forced shutdown", zap.Error(err))
	}

	log.Info("server exited")
	return nil
}

func securityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")

		if gin.Mode() == gin.ReleaseMode {
			c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}

		c.Next()
	}
}
