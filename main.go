package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/gofiber/template/html/v2"
	"github.com/google/uuid"
	"github.com/sourcegraph/conc"
	"github.com/spf13/cobra"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"mediashelf/internal/cache"
	"mediashelf/internal/config"
	"mediashelf/internal/handlers"
	"mediashelf/internal/logging"
	"mediashelf/internal/migrations"
	"mediashelf/internal/repositories"
	"mediashelf/internal/services"
	"mediashelf/internal/views"
	"mediashelf/pkg/rabbitmq"
	"mediashelf/pkg/supabase"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "mediashelf",
		Short:        "Personal library of games, series, films and books",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context())
		},
	}
	root.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Run migrations and start the HTTP server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context())
		},
	})
	root.AddCommand(newMigrateCmd())
	return root
}

func newMigrateCmd() *cobra.Command {
	migrate := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the database schema",
	}
	migrate.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply pending migrations",
			RunE: func(cmd *cobra.Command, _ []string) error {
				return withDatabase(cmd.Context(), func(ctx context.Context, db *gorm.DB) error {
					sqlDB, err := db.DB()
					if err != nil {
						return err
					}
					return migrations.Up(ctx, sqlDB)
				})
			},
		},
		&cobra.Command{
			Use:   "down",
			Short: "Roll back the latest migration",
			RunE: func(cmd *cobra.Command, _ []string) error {
				return withDatabase(cmd.Context(), func(ctx context.Context, db *gorm.DB) error {
					sqlDB, err := db.DB()
					if err != nil {
						return err
					}
					return migrations.Down(ctx, sqlDB)
				})
			},
		},
		&cobra.Command{
			Use:   "status",
			Short: "List migrations and whether they are applied",
			RunE: func(cmd *cobra.Command, _ []string) error {
				return withDatabase(cmd.Context(), func(ctx context.Context, db *gorm.DB) error {
					sqlDB, err := db.DB()
					if err != nil {
						return err
					}
					statuses, err := migrations.Status(ctx, sqlDB)
					if err != nil {
						return err
					}
					for _, s := range statuses {
						state := "pending"
						if s.Applied {
							state = "applied"
						}
						fmt.Fprintf(cmd.OutOrStdout(), "%05d  %-8s %s\n", s.Version, state, s.Source)
					}
					return nil
				})
			},
		},
	)
	return migrate
}

// withDatabase loads configuration, sets up logging and opens the database
// for a one-shot command.
func withDatabase(ctx context.Context, fn func(context.Context, *gorm.DB) error) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	closer := logging.Setup(logging.Options{Level: cfg.LogLevel, File: cfg.LogFile})
	defer closer.Close()

	db, err := openDatabase(cfg.DatabaseDSN)
	if err != nil {
		return err
	}
	if sqlDB, err := db.DB(); err == nil {
		defer sqlDB.Close()
	}
	return fn(ctx, db)
}

func openDatabase(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Warn)})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database handle: %w", err)
	}
	sqlDB.SetMaxOpenConns(10)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxIdleTime(15 * time.Minute)
	return db, nil
}

// appDeps are the collaborators newApp wires into routes.
type appDeps struct {
	Sessions *services.SessionService
	Users    *services.AppUserService
	Library  *services.LibraryService
	Views    *html.Engine
	SiteURL  string
	// Status reports backend details for /health.
	Status fiber.Map
}

// newApp builds the Fiber app with middleware and every route.
func newApp(deps appDeps) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               "mediashelf",
		DisableStartupMessage: true,
		Views:                 deps.Views,
		ViewsLayout:           views.Layout,
	})

	// --- Middleware ---
	app.Use(requestid.New(requestid.Config{Generator: uuid.NewString}))
	app.Use(recover.New())
	app.Use(logger.New(logger.Config{
		Format: "${time} ${locals:requestid} ${status} - ${latency} ${method} ${path}\n",
	}))

	// --- Routes ---
	handlers.NewAuthHandler(deps.Sessions, deps.Users, deps.SiteURL).RegisterRoutes(app)
	handlers.NewProfileHandler(deps.Library, deps.Sessions).RegisterRoutes(app)

	apiV1 := app.Group("/api/v1")
	handlers.NewLibraryHandler(deps.Library, deps.Sessions).RegisterRoutes(apiV1)

	// --- Health Check Endpoint ---
	app.Get("/health", func(c *fiber.Ctx) error {
		body := fiber.Map{
			"status": "healthy",
			"time":   time.Now().Format(time.RFC3339),
		}
		for k, v := range deps.Status {
			body[k] = v
		}
		return c.Status(fiber.StatusOK).JSON(body)
	})

	return app
}

func runServe(parent context.Context) error {
	// --- Configuration ---
	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", "err", err)
		return err
	}
	closer := logging.Setup(logging.Options{Level: cfg.LogLevel, File: cfg.LogFile})
	defer closer.Close()

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// --- Database ---
	db, err := openDatabase(cfg.DatabaseDSN)
	if err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get database handle: %w", err)
	}
	defer sqlDB.Close()
	if err := migrations.Up(ctx, sqlDB); err != nil {
		return err
	}

	// --- View cache ---
	status := fiber.Map{"cache": "memory", "events": "disabled"}
	var viewCache cache.ViewCache = cache.NewMemory(cfg.ViewCacheTTL)
	if cfg.RedisAddr != "" {
		redisCache := cache.NewRedis(cfg.RedisAddr, cfg.RedisPassword, cfg.ViewCacheTTL)
		if err := redisCache.Ping(ctx); err != nil {
			slog.Warn("redis unavailable, using in-memory view cache", "addr", cfg.RedisAddr, "err", err)
			_ = redisCache.Close()
		} else {
			defer redisCache.Close()
			viewCache = redisCache
			status["cache"] = "redis"
		}
	}

	// --- Library events ---
	var events services.EventPublisher
	var mqClient *rabbitmq.Client
	if cfg.RabbitMQURL != "" {
		mqClient, err = rabbitmq.NewClient(rabbitmq.Config{URL: cfg.RabbitMQURL})
		if err != nil {
			slog.Warn("rabbitmq unavailable, library events disabled", "err", err)
		} else {
			defer mqClient.Close()
			events = mqClient
			status["events"] = "enabled"
		}
	}

	// --- Services ---
	idp := supabase.NewClient(supabase.Config{URL: cfg.SupabaseURL, AnonKey: cfg.SupabaseAnonKey})
	sessions := services.NewSessionService(idp, services.SessionConfig{
		JWTSecret:     cfg.SupabaseJWTSecret,
		SecureCookies: cfg.CookieSecure,
		Providers:     cfg.AuthProviders,
	})
	users := services.NewAppUserService(repositories.NewGORMAppUserRepository(db))
	library := services.NewLibraryService(repositories.NewGORMLibraryItemRepository(db), users, viewCache, events)

	if mqClient != nil {
		// Every instance drops its cached views when any instance writes.
		err := mqClient.ConsumeLibraryEvents(func(evt rabbitmq.Event) error {
			slog.Debug("library event received", "event_id", evt.ID, "type", evt.Type)
			return library.InvalidateViews(context.Background())
		})
		if err != nil {
			slog.Warn("failed to start library event consumer", "err", err)
		}
	}

	engine, err := views.NewEngine()
	if err != nil {
		return err
	}

	app := newApp(appDeps{
		Sessions: sessions,
		Users:    users,
		Library:  library,
		Views:    engine,
		SiteURL:  cfg.SiteURL,
		Status:   status,
	})

	// --- Start HTTP Server ---
	slog.Info("starting server", "addr", cfg.AppPort)
	var wg conc.WaitGroup
	wg.Go(func() {
		if err := app.Listen(cfg.AppPort); err != nil {
			slog.Error("server stopped", "err", err)
			stop()
		}
	})

	// Wait for interrupt signal to gracefully shut down the server
	<-ctx.Done()
	slog.Info("shutting down server")
	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		slog.Error("error during fiber shutdown", "err", err)
	}
	wg.Wait()
	slog.Info("server gracefully stopped")
	return nil
}
