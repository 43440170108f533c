package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/aledz7/df-graficas-sub017/internal/cache"
	"github.com/aledz7/df-graficas-sub017/internal/config"
	"github.com/aledz7/df-graficas-sub017/internal/handlers"
	"github.com/aledz7/df-graficas-sub017/internal/httpx"
	"github.com/aledz7/df-graficas-sub017/internal/jobs"
	"github.com/aledz7/df-graficas-sub017/internal/middleware"
	"github.com/aledz7/df-graficas-sub017/internal/repository"
	"github.com/aledz7/df-graficas-sub017/internal/service"
	"github.com/aledz7/df-graficas-sub017/internal/storage"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/pflag"
)

func main() {
	configPath := pflag.String("config", "", "path to a YAML config file")
	port := pflag.String("port", "", "listen port (overrides PORT)")
	migrateOnly := pflag.Bool("migrate-only", false, "apply database migrations and exit")
	pflag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal("Invalid configuration: ", err)
	}
	if *port != "" {
		cfg.Port = *port
	}

	// InitDB migrates the schema.
	db, err := repository.InitDB(cfg.Database)
	if err != nil {
		log.Fatal("Failed to connect to database:", err)
	}
	if *migrateOnly {
		log.Println("Migrations applied")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Redis is an accelerator; without it typing presence and unread totals
	// fall back to process memory.
	redisCache := cache.NewRedisCache(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	var typingStore cache.TypingStore
	var unreadStore cache.UnreadStore
	if err := redisCache.Ping(); err != nil {
		log.Printf("WARNING: Redis connection failed: %v. Running without cache.", err)
		redisCache = nil
		memStore := cache.NewMemoryTypingStore()
		defer jobs.StartTypingPrune(ctx, memStore, cfg.Chat.TypingTTL.Std())()
		typingStore = memStore
		unreadStore = cache.NewMemoryUnreadStore()
	} else {
		log.Println("Redis cache connected successfully")
		typingStore = cache.NewTypingCache(redisCache, cfg.Chat.TypingTTL.Std())
		unreadStore = cache.NewUnreadCache(redisCache)
	}

	// Attachments are optional; upload endpoints return 503 without storage.
	var objects storage.ObjectStore
	if !cfg.S3.Enabled() {
		log.Printf("WARNING: S3 storage not configured; attachments disabled")
	} else if st, err := storage.NewS3Storage(cfg.S3); err != nil {
		log.Printf("WARNING: Failed to initialize S3 storage: %v", err)
	} else {
		objects = st
		log.Printf("S3 storage initialized successfully (bucket=%s)", st.Bucket())
	}

	chat := service.NewChatService(service.Repositories{
		Users:       repository.NewUserRepository(db),
		Threads:     repository.NewThreadRepository(db),
		ReadState:   repository.NewReadStateRepository(db),
		Messages:    repository.NewMessageRepository(db),
		Attachments: repository.NewAttachmentRepository(db),
	}, typingStore, unreadStore, objects, cfg)

	if objects != nil {
		sweeper, err := jobs.NewAttachmentSweeper(chat, cfg.Attachments.SweepCron, cfg.Attachments.SweepGrace.Std())
		if err != nil {
			log.Fatal(err)
		}
		defer sweeper.Start(ctx)()
	}

	app := fiber.New(fiber.Config{
		AppName: "Chat Core",
		// Largest attachment plus multipart overhead.
		BodyLimit: int(cfg.Attachments.MaxSize.Int64()) + 1024*1024,
	})

	allowedOrigins := config.SplitCSV(cfg.AllowedOrigins)
	app.Use(requestid.New())
	app.Use(logger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.AllowedOrigins,
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, " + middleware.CSRFHeader,
		AllowMethods:     "GET, POST, PATCH, DELETE, OPTIONS",
		AllowCredentials: cfg.AllowedOrigins != "" && cfg.AllowedOrigins != "*",
	}))

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "ok",
			"message": "Chat core is running",
		})
	})
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	api := app.Group("/api",
		middleware.OriginAllowed(allowedOrigins),
		middleware.AuthRequired(cfg.JWTSecret),
		middleware.CSRFRequired(cfg.CSRFMode, allowedOrigins),
	)
	h := handlers.New(chat)
	h.Register(api, limiter.New(limiter.Config{
		Max:        30,
		Expiration: time.Minute,
		KeyGenerator: func(c *fiber.Ctx) string {
			if uid, err := httpx.LocalUint(c, "userID"); err == nil {
				return "upload:" + strconv.FormatUint(uint64(uid), 10)
			}
			return c.IP()
		},
	}))
	api.Post("/admin/attachments/reconcile", middleware.RequireRole("admin"), h.Attachments.Reconcile(cfg.Attachments.SweepGrace.Std()))

	go func() {
		<-ctx.Done()
		log.Println("Shutting down...")
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			log.Printf("shutdown: %v", err)
		}
	}()

	log.Printf("Server starting on port %s...", cfg.Port)
	if err := app.Listen(":" + cfg.Port); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatal("Failed to start server:", err)
	}
}
