package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/deepzdhq/deepzd/pkg/config"
	"github.com/deepzdhq/deepzd/pkg/geo"
	"github.com/deepzdhq/deepzd/pkg/telemetry"
)

var (
	configFile = flag.String("config", "", "Config file path")
	listen     = flag.String("listen", "", "Listen address (overrides config)")
	dbPath     = flag.String("db", "", "Database path (overrides config)")
	Version    = "dev"
)

// keyHashSalt keys the HMAC over stored API key hashes. It is not a
// secret: the hash only has to be one-way, not unforgeable.
const keyHashSalt = "deepzd-apikey-v1"

type Server struct {
	db     *gorm.DB
	logger zerolog.Logger

	hasher     KeyHasher
	adminToken string

	limiter *RateLimiter
	routes  map[string]config.RouteLimit
	quota   *QuotaGate

	analyzer geo.ContentAnalyzer
	runner   geo.MonitorRunner
	engines  []geo.Engine

	heartbeat      time.Duration
	streamCapacity int
	maxContentLen  int
}

// limitRoute returns the admission middleware for a configured route
// class. Unknown names fall through without limiting.
func (s *Server) limitRoute(name string) gin.HandlerFunc {
	rl, ok := s.routes[name]
	if !ok {
		return func(c *gin.Context) { c.Next() }
	}
	return rateLimit(s.limiter, name, rl.Limit, time.Duration(rl.WindowS)*time.Second)
}

func main() {
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *listen != "" {
		cfg.Server.Listen = *listen
	}
	if *dbPath != "" {
		cfg.Database.Path = *dbPath
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}

	logger := setupLogger(cfg.Logging)
	logger.Info().Str("version", Version).Msg("deepzd server starting")

	ctx := context.Background()
	tp, err := telemetry.SetupTracing(ctx, telemetry.Options{
		ServiceName:    "deepzd-server",
		ServiceVersion: Version,
		Endpoint:       cfg.Tracing.Endpoint,
		Insecure:       cfg.Tracing.Insecure,
		SampleRatio:    cfg.Tracing.SampleRatio,
		LogSpans:       cfg.Tracing.LogSpans,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to set up tracing")
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(shutdownCtx); err != nil {
			logger.Warn().Err(err).Msg("tracer shutdown failed")
		}
	}()

	db, err := gorm.Open(sqlite.Open(cfg.Database.Path), &gorm.Config{})
	if err != nil {
		logger.Fatal().Err(err).Str("path", cfg.Database.Path).Msg("failed to open database")
	}
	if err := db.AutoMigrate(allModels()...); err != nil {
		logger.Fatal().Err(err).Msg("failed to migrate schema")
	}

	rules, err := geo.LoadRules(cfg.Analysis.RulesFile)
	if err != nil {
		logger.Fatal().Err(err).Str("path", cfg.Analysis.RulesFile).Msg("failed to load scoring rules")
	}

	engines := make([]geo.Engine, 0, len(cfg.Engines))
	for _, e := range cfg.Engines {
		engines = append(engines, geo.Engine{
			Name:    e.Name,
			URL:     e.URL,
			Timeout: time.Duration(e.TimeoutS) * time.Second,
		})
	}

	srv := &Server{
		db:             db,
		logger:         logger,
		hasher:         NewKeyHasher([]byte(keyHashSalt)),
		adminToken:     cfg.Server.AdminToken,
		limiter:        NewRateLimiter(cfg.RateLimit.Disabled, time.Duration(cfg.RateLimit.SweepIntervalS)*time.Second),
		routes:         cfg.RateLimit.Routes,
		quota:          NewQuotaGate(db, !cfg.Quota.Disabled),
		analyzer:       geo.NewAnalyzer(rules),
		runner:         geo.NewRunner(geo.NewProbeClient()),
		engines:        engines,
		heartbeat:      time.Duration(cfg.Stream.HeartbeatIntervalS) * time.Second,
		streamCapacity: cfg.Stream.ChannelCapacity,
		maxContentLen:  cfg.Analysis.MaxContentLen,
	}
	defer srv.limiter.Close()

	reconciler := NewReconciler(db, logger,
		time.Duration(cfg.Reconciler.SweepIntervalS)*time.Second,
		time.Duration(cfg.Reconciler.StuckAfterMins)*time.Minute)
	defer reconciler.Close()

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(withRequestContext(logger))

	srv.registerAnalysisRoutes(r)
	srv.registerMonitorRoutes(r)
	srv.registerAPIKeyRoutes(r)
	r.GET("/v1/health", srv.handleHealth)
	r.GET("/v1/usage", srv.limitRoute("api"), srv.requireUser, srv.handleUsage)

	logger.Info().Str("listen", cfg.Server.Listen).Msg("listening")
	if err := r.Run(cfg.Server.Listen); err != nil {
		logger.Fatal().Err(err).Msg("server exited")
	}
}

func setupLogger(cfg config.LoggingConfig) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	var logger zerolog.Logger
	if cfg.JSON {
		logger = zerolog.New(os.Stderr)
	} else {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr})
	}
	return logger.Level(level).With().Timestamp().Logger()
}

func (s *Server) handleHealth(c *gin.Context) {
	status := "healthy"
	dbStatus := "ok"
	sqlDB, err := s.db.DB()
	if err == nil {
		err = sqlDB.PingContext(c.Request.Context())
	}
	if err != nil {
		status = "degraded"
		dbStatus = err.Error()
	}

	c.JSON(http.StatusOK, gin.H{
		"status":   status,
		"version":  Version,
		"database": dbStatus,
		"rate_limiter": gin.H{
			"tracked_keys": s.limiter.Stats().Keys,
		},
	})
}

func (s *Server) handleUsage(c *gin.Context) {
	userID := currentUserID(c)
	decision, err := s.quota.Check(c.Request.Context(), userID)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "failed to resolve usage", s.logger)
		return
	}

	used := 0
	if decision.Limit >= 0 {
		used = decision.Limit - decision.Remaining
		if used < 0 {
			used = 0
		}
	}
	c.JSON(http.StatusOK, gin.H{
		"plan":      decision.Plan,
		"limit":     decision.Limit,
		"remaining": decision.Remaining,
		"used":      used,
		"period":    time.Now().UTC().Format("2006-01"),
	})
}
