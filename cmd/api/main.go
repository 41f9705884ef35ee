package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"pos-offer-engine/internal/cache"
	"pos-offer-engine/internal/config"
	"pos-offer-engine/internal/database"
	"pos-offer-engine/internal/events"
	"pos-offer-engine/internal/features"
	"pos-offer-engine/internal/handler"
	"pos-offer-engine/internal/logger"
	"pos-offer-engine/internal/middleware"
	"pos-offer-engine/internal/service"
	"pos-offer-engine/internal/tracing"
)

func main() {
	configFile := flag.String("config", "", "Path to JSON config file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configFile)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	zlog, err := logger.New(cfg.LogLevel)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer zlog.Sync()

	// Initialize tracing
	if _, err := tracing.InitTracing(tracing.Config{
		Enabled:     cfg.Tracing.Enabled,
		Endpoint:    cfg.Tracing.Endpoint,
		ServiceName: cfg.Tracing.ServiceName,
		Environment: cfg.Tracing.Environment,
	}); err != nil {
		zlog.Fatal("failed to initialize tracing", zap.Error(err))
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tracing.Shutdown(ctx); err != nil {
			zlog.Warn("tracing shutdown failed", zap.Error(err))
		}
	}()

	// Initialize database
	db, err := database.NewDB(cfg.Database.Path)
	if err != nil {
		zlog.Fatal("failed to initialize database", zap.Error(err))
	}
	defer db.Close()

	// Eligibility cache: Redis when configured, in-process otherwise
	var c cache.Cache
	if cfg.Redis.Addr != "" {
		rc, err := cache.NewRedisCache(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			zlog.Fatal("failed to connect to redis", zap.Error(err))
		}
		c = rc
		zlog.Info("using redis eligibility cache", zap.String("addr", cfg.Redis.Addr))
	} else {
		c = cache.NewInMemoryCache()
		zlog.Info("using in-memory eligibility cache")
	}

	// Feature flags
	ff := features.NewManager()
	ff.Register(features.FeatureCacheEnabled, true, "Cache eligibility recomputes")
	ff.Register(features.FeatureEventHooksEnabled, true, "Publish domain events to in-process subscribers")
	ff.Register(features.FeaturePOSProgress, true, "Serve the live offer progress feed")

	// Domain events, logged via zap
	ev := events.NewManager(ff.IsEnabled(features.FeatureEventHooksEnabled))
	for _, et := range []events.EventType{
		events.EventOfferCreated,
		events.EventInvoiceCreated,
		events.EventInvoiceCancelled,
		events.EventEligibilityRecomputed,
		events.EventWinnerAssigned,
	} {
		ev.Subscribe(et, func(ctx context.Context, e events.Event) error {
			zlog.Info("domain event",
				zap.String("type", string(e.Type)),
				zap.Time("timestamp", e.Timestamp),
			)
			return nil
		})
	}
	defer ev.Shutdown()

	// Initialize service and handlers
	svc := service.NewService(db, c, ev, ff, zlog)
	h := handler.NewHandlerWithOptions(svc, handler.NewHandlerOptions{
		MaxBodySize: cfg.Security.MaxRequestBodySize,
	})

	// Initialize rate limiter
	rateLimiter := middleware.NewRateLimiter(cfg.RateLimit.Rate, time.Duration(cfg.RateLimit.Window)*time.Second)
	defer rateLimiter.Stop()

	// Setup router
	r := chi.NewRouter()

	// Middleware (order matters)
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.RequestLog(zlog))
	r.Use(chimw.Recoverer)

	if cfg.Tracing.Enabled {
		r.Use(middleware.Tracing())
	}
	if cfg.RateLimit.Enabled {
		r.Use(middleware.RateLimit(rateLimiter))
	}

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   strings.Split(cfg.Security.AllowedOrigins, ","),
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Routes
	r.Route("/offers", func(r chi.Router) {
		r.Post("/", h.CreateOffer)
		r.Get("/", h.ListOffers)
		r.Get("/progress", h.OfferProgress)
		r.Route("/{offer_id}", func(r chi.Router) {
			r.Get("/", h.GetOffer)
			r.Post("/deactivate", h.DeactivateOffer)
			r.Get("/eligible", h.GetEligible)
			r.Post("/winners", h.AssignWinner)
			r.Post("/winners/draw", h.DrawWinners)
			r.Post("/complete", h.CompleteOffer)
		})
	})

	r.Route("/invoices", func(r chi.Router) {
		r.Post("/", h.CreateInvoice)
		r.Route("/{invoice_id}", func(r chi.Router) {
			r.Get("/", h.GetInvoice)
			r.Post("/cancel", h.CancelInvoice)
		})
	})

	r.Post("/qualifications/preview", h.PreviewQualifications)

	r.Get("/health", h.Health)

	// Start server
	addr := fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port)
	zlog.Info("starting server",
		zap.String("addr", addr),
		zap.String("database", cfg.Database.Path),
	)

	server := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	// Graceful shutdown
	go func() {
		sigint := make(chan os.Signal, 1)
		signal.Notify(sigint, os.Interrupt, syscall.SIGTERM)
		<-sigint

		zlog.Info("shutting down server")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			zlog.Warn("server shutdown failed", zap.Error(err))
		}
	}()

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		zlog.Fatal("server failed", zap.Error(err))
	}
}
