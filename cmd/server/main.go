package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"warden/internal/config"
	"warden/internal/handlers"
	"warden/internal/jobs"
	"warden/internal/logging"
	"warden/internal/middleware"
	"warden/internal/options"
	"warden/internal/platform"
	"warden/internal/services"
	"warden/internal/storage"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/bwmarrin/discordgo"
	"github.com/fsnotify/fsnotify"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/joho/godotenv"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	// Initialize structured logging (JSON in production, text in dev)
	logging.Init()

	log.Println("🚀 Starting Warden Server...")

	// Load .env file (ignore error if file doesn't exist)
	if err := godotenv.Load(); err != nil {
		log.Printf("⚠️  No .env file found or error loading it: %v", err)
	} else {
		log.Println("✅ .env file loaded successfully")
	}

	// Load and validate configuration
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("❌ Invalid configuration: %v", err)
	}
	log.Printf("📋 Configuration loaded (Port: %s, DataDir: %s)", cfg.Port, cfg.DataDir)

	// Per-deployment option default overrides, hot-reloaded on change
	if err := options.LoadOverrides(cfg.DefaultsFile); err != nil {
		log.Fatalf("❌ Failed to load option defaults from %s: %v", cfg.DefaultsFile, err)
	}
	go startDefaultsFileWatcher(cfg.DefaultsFile)

	// Guild persistence
	store, err := storage.NewStore(cfg.DataDir)
	if err != nil {
		log.Fatalf("❌ Failed to initialize storage at %s: %v", cfg.DataDir, err)
	}
	log.Printf("💾 Storage initialized at %s", cfg.DataDir)

	// Discord session
	session, err := discordgo.New("Bot " + cfg.DiscordToken)
	if err != nil {
		log.Fatalf("❌ Failed to create Discord session: %v", err)
	}
	session.Identify.Intents = platform.GatewayIntents

	limiter := platform.NewRateLimiter(cfg.GlobalRateLimit, cfg.PerGuildRateLimit)
	client := platform.NewDiscordClient(session, limiter)
	log.Printf("🛡️  [RATE-LIMIT] Platform limits: global=%.0f/s, per-guild=%.0f/s",
		cfg.GlobalRateLimit, cfg.PerGuildRateLimit)

	// Guild state cache
	guildStore := services.NewGuildStore(store, client, cfg.Retention())
	log.Printf("🗂️  Guild store initialized (retention: %d days)", cfg.RetentionDays)

	// Gateway event responders keep the cache current
	gateway := services.NewGatewayService(session, guildStore, client)
	gateway.Register()

	if err := session.Open(); err != nil {
		log.Fatalf("❌ Failed to connect to Discord gateway: %v", err)
	}
	log.Println("✅ Discord gateway connected")

	// Background jobs
	scheduler, err := jobs.NewScheduler()
	if err != nil {
		log.Fatalf("❌ Failed to create scheduler: %v", err)
	}

	reconciler := jobs.NewReconciler(guildStore, client)
	if err := scheduler.AddInterval("reconcile", cfg.ReconcileInterval, reconciler.Run); err != nil {
		log.Fatalf("❌ Failed to schedule reconciler: %v", err)
	}

	autosave := jobs.NewAutosave(guildStore)
	if err := scheduler.AddCron("autosave", cfg.AutosaveCron, autosave.Run); err != nil {
		log.Fatalf("❌ Failed to schedule autosave: %v", err)
	}

	scheduler.Start()
	log.Printf("🕐 Background jobs: reconcile (every %v), autosave (cron %q)",
		cfg.ReconcileInterval, cfg.AutosaveCron)

	// Admin API
	app := fiber.New(fiber.Config{
		AppName:      "Warden",
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	})

	app.Use(recover.New())
	app.Use(logger.New())

	prometheus := fiberprometheus.New("warden")
	prometheus.RegisterAt(app, "/metrics")
	app.Use(prometheus.Middleware)
	log.Println("📊 Prometheus metrics endpoint enabled at /metrics")

	rateLimitConfig := middleware.DefaultRateLimitConfig()
	app.Use(middleware.APIRateLimiter(rateLimitConfig))

	healthHandler := handlers.NewHealthHandler(guildStore)
	guildHandler := handlers.NewGuildHandler(guildStore)

	app.Get("/health", healthHandler.Handle)
	app.Get("/guilds", guildHandler.List)
	app.Get("/guilds/:id/settings", guildHandler.GetSettings)

	writes := app.Group("", middleware.WriteRateLimiter(rateLimitConfig))
	writes.Put("/guilds/:id/settings/:key", guildHandler.UpdateSetting)
	writes.Delete("/guilds/:id/settings/:key", guildHandler.ResetSetting)
	writes.Post("/flush", guildHandler.Flush)

	log.Printf("📡 Health check: http://localhost:%s/health", cfg.Port)

	// Handle graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		log.Println("\n🛑 Shutting down server...")

		// Stop jobs first so no tick races the final flush
		if err := scheduler.Stop(); err != nil {
			log.Printf("⚠️ Error stopping scheduler: %v", err)
		}

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := guildStore.FlushAll(ctx); err != nil {
			log.Printf("⚠️ Error flushing guild state: %v", err)
		} else {
			log.Println("💾 All guild state flushed")
		}

		if err := session.Close(); err != nil {
			log.Printf("⚠️ Error closing Discord session: %v", err)
		}

		if err := app.Shutdown(); err != nil {
			log.Printf("⚠️ Error shutting down server: %v", err)
		}
	}()

	if err := app.Listen(":" + cfg.Port); err != nil {
		log.Fatalf("❌ Failed to start server: %v", err)
	}
}

// startDefaultsFileWatcher watches the option defaults file and reloads it on change.
func startDefaultsFileWatcher(filePath string) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		log.Printf("⚠️  Failed to create file watcher: %v", err)
		return
	}

	absPath, err := filepath.Abs(filePath)
	if err != nil {
		log.Printf("⚠️  Failed to get absolute path for %s: %v", filePath, err)
		watcher.Close()
		return
	}

	// Watch the directory containing the file (more reliable than watching the file directly)
	dir := filepath.Dir(absPath)
	filename := filepath.Base(absPath)

	if err := watcher.Add(dir); err != nil {
		log.Printf("⚠️  Failed to watch directory %s: %v", dir, err)
		watcher.Close()
		return
	}

	log.Printf("👁️  Watching %s for changes (hot-reload enabled)", filePath)

	// Debounce to avoid multiple reloads for rapid file changes
	var debounceTimer *time.Timer
	debounceDuration := 500 * time.Millisecond

	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != filename {
				continue
			}
			if event.Op&fsnotify.Write == fsnotify.Write || event.Op&fsnotify.Create == fsnotify.Create {
				if debounceTimer != nil {
					debounceTimer.Stop()
				}
				debounceTimer = time.AfterFunc(debounceDuration, func() {
					if err := options.LoadOverrides(filePath); err != nil {
						log.Printf("❌ Failed to reload option defaults: %v", err)
					} else {
						log.Printf("✅ Option defaults reloaded from %s", filePath)
					}
				})
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			log.Printf("⚠️  File watcher error: %v", err)
		}
	}
}
