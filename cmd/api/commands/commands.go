package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/taskmaster/pulse/internal/adapters/cache"
	"github.com/taskmaster/pulse/internal/adapters/enrichment"
	"github.com/taskmaster/pulse/internal/adapters/repository"
	"github.com/taskmaster/pulse/internal/application/services"
	"github.com/taskmaster/pulse/internal/infrastructure/config"
	"github.com/taskmaster/pulse/internal/infrastructure/database"
	"github.com/taskmaster/pulse/internal/infrastructure/logger"
	"github.com/taskmaster/pulse/internal/infrastructure/server"
	"github.com/taskmaster/pulse/internal/ports"
	"github.com/taskmaster/pulse/migrations"
)

// Version is overridden at build time with -ldflags.
var Version = "dev"

const shutdownTimeout = 30 * time.Second

// NewServeCommand creates the serve command
func NewServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the TaskPulse API server",
		Long:  "Start the TaskPulse API server with all configured routes and middleware",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
	}
}

// NewMigrateCommand creates the migrate command with subcommands
func NewMigrateCommand() *cobra.Command {
	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Database migration commands",
		Long:  "Manage database migrations (up, down, version)",
	}

	migrateCmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Run all up migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigration(cmd.Context(), "up")
		},
	})

	migrateCmd.AddCommand(&cobra.Command{
		Use:   "down",
		Short: "Run all down migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigration(cmd.Context(), "down")
		},
	})

	migrateCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print current migration version",
		RunE: func(cmd *cobra.Command, args []string) error {
			return showMigrationVersion()
		},
	})

	return migrateCmd
}

// NewUserCommand creates the user management command
func NewUserCommand() *cobra.Command {
	userCmd := &cobra.Command{
		Use:   "user",
		Short: "User management commands",
		Long:  "Create and manage users in the system",
	}

	createUserCmd := &cobra.Command{
		Use:   "create",
		Short: "Create a new user",
		RunE: func(cmd *cobra.Command, args []string) error {
			email, _ := cmd.Flags().GetString("email")
			password, _ := cmd.Flags().GetString("password")
			name, _ := cmd.Flags().GetString("name")
			username, _ := cmd.Flags().GetString("username")

			if email == "" || password == "" {
				return errors.New("email and password are required")
			}

			req := ports.RegisterRequest{Email: email, Password: password, Name: name}
			if req.Name == "" {
				req.Name = email
			}
			if username != "" {
				req.Username = &username
			}
			return createUser(cmd.Context(), req)
		},
	}

	createUserCmd.Flags().String("email", "", "User email (required)")
	createUserCmd.Flags().String("password", "", "User password (required)")
	createUserCmd.Flags().String("name", "", "Display name, defaults to the email")
	createUserCmd.Flags().String("username", "", "Optional unique username")

	userCmd.AddCommand(createUserCmd)
	return userCmd
}

// NewStatsCommand creates the stats maintenance command
func NewStatsCommand() *cobra.Command {
	statsCmd := &cobra.Command{
		Use:   "stats",
		Short: "User statistics maintenance",
	}

	statsCmd.AddCommand(&cobra.Command{
		Use:   "reconcile",
		Short: "Recompute every user's stats from task history and repair drift",
		RunE: func(cmd *cobra.Command, args []string) error {
			return reconcileStats(cmd.Context())
		},
	})

	return statsCmd
}

// NewVersionCommand creates the version command
func NewVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print TaskPulse version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("TaskPulse %s\n", Version)
		},
	}
}

func runServer(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	appLogger, err := logger.New(cfg.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer appLogger.Close()

	db, err := database.New(cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()

	if db.Driver() == config.DriverSQLite {
		if err := migrations.RunSQLite(ctx, db.DB.DB); err != nil {
			return err
		}
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	reportCache, closeCache := openCache(cfg.Redis, appLogger)
	defer closeCache()

	enricher, err := enrichment.NewFromConfig(ctx, cfg.AI, appLogger, registry)
	if err != nil {
		return fmt.Errorf("failed to initialize enrichment: %w", err)
	}

	if err := repository.NewStore(db).Repositories().Auth.CleanupExpiredTokens(ctx); err != nil {
		appLogger.Warnw("Failed to clean up expired refresh tokens", "error", err)
	}

	srv, err := server.New(cfg, server.Dependencies{
		DB:       db,
		Cache:    reportCache,
		Enricher: enricher,
		Registry: registry,
	}, appLogger)
	if err != nil {
		return fmt.Errorf("failed to initialize server: %w", err)
	}

	appLogger.Infow("Starting TaskPulse API server",
		"port", cfg.Server.Port,
		"environment", cfg.App.Environment,
		"database", db.Driver(),
		"enrichment", enricher.State(),
	)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start(fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port))
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case sig := <-quit:
		appLogger.Infow("Received shutdown signal", "signal", sig.String())
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	appLogger.Info("Server stopped")
	return nil
}

// openCache connects to redis when enabled. A failed ping degrades to the
// no-op cache so reports are computed on every request.
func openCache(cfg config.RedisConfig, log *logger.Logger) (ports.CacheRepository, func()) {
	if !cfg.Enabled {
		return cache.Noop{}, func() {}
	}

	client, err := cache.NewClient(cfg)
	if err != nil {
		log.Warnw("Redis unavailable, report caching disabled", "error", err)
		return cache.Noop{}, func() {}
	}

	log.Infow("Connected to redis", "addr", cfg.GetAddr())
	return cache.NewRedisCache(client, cfg.KeyPrefix), func() { client.Close() }
}

func runMigration(ctx context.Context, direction string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	db, err := database.New(cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()

	if db.Driver() == config.DriverSQLite {
		if direction != "up" {
			return errors.New("sqlite schema only supports migrate up")
		}
		if err := migrations.RunSQLite(ctx, db.DB.DB); err != nil {
			return err
		}
		fmt.Println("Migration up completed successfully")
		return nil
	}

	m, err := migrations.NewPostgres(db.DB.DB)
	if err != nil {
		return err
	}

	switch direction {
	case "up":
		err = m.Up()
	case "down":
		err = m.Down()
	}

	if errors.Is(err, migrate.ErrNoChange) {
		fmt.Println("No migrations to run")
		return nil
	}
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	fmt.Printf("Migration %s completed successfully\n", direction)
	return nil
}

func showMigrationVersion() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	db, err := database.New(cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()

	if db.Driver() == config.DriverSQLite {
		return errors.New("sqlite schema is not versioned")
	}

	m, err := migrations.NewPostgres(db.DB.DB)
	if err != nil {
		return err
	}

	version, dirty, err := m.Version()
	if err != nil {
		return fmt.Errorf("failed to get migration version: %w", err)
	}

	fmt.Printf("Current migration version: %d\n", version)
	fmt.Printf("Dirty: %t\n", dirty)
	return nil
}

// openUserService wires a user service for the maintenance commands.
func openUserService() (*services.UserService, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	appLogger, err := logger.New(cfg.Logger)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	db, err := database.New(cfg.Database)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	store := repository.NewStore(db)
	closeFn := func() {
		db.Close()
		appLogger.Close()
	}
	return services.NewUserService(store.Repositories(), store, appLogger), closeFn, nil
}

func createUser(ctx context.Context, req ports.RegisterRequest) error {
	userService, closeFn, err := openUserService()
	if err != nil {
		return err
	}
	defer closeFn()

	user, err := userService.CreateUser(ctx, req)
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}

	fmt.Printf("User created successfully:\n")
	fmt.Printf("  ID: %s\n", user.ID)
	fmt.Printf("  Email: %s\n", user.Email)
	fmt.Printf("  Name: %s\n", user.Name)
	if user.Username != nil {
		fmt.Printf("  Username: %s\n", *user.Username)
	}
	return nil
}

func reconcileStats(ctx context.Context) error {
	userService, closeFn, err := openUserService()
	if err != nil {
		return err
	}
	defer closeFn()

	results, err := userService.ReconcileAll(ctx)
	if err != nil {
		return fmt.Errorf("failed to reconcile stats: %w", err)
	}

	repaired := 0
	for _, r := range results {
		if r.Repaired {
			repaired++
			fmt.Printf("  %s: %d/%d tasks -> %d/%d tasks\n", r.UserID,
				r.Stored.CompletedTasks, r.Stored.TotalTasks,
				r.Replayed.CompletedTasks, r.Replayed.TotalTasks)
		}
	}
	fmt.Printf("Checked %d users, repaired %d\n", len(results), repaired)
	return nil
}
