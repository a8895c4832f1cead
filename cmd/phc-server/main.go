package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/phc/phc/internal/config"
	"github.com/phc/phc/internal/domain/archive"
	"github.com/phc/phc/internal/domain/examination"
	"github.com/phc/phc/internal/domain/patient"
	"github.com/phc/phc/internal/domain/program"
	"github.com/phc/phc/internal/domain/statistics"
	"github.com/phc/phc/internal/platform/db"
	"github.com/phc/phc/internal/platform/middleware"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "phc-server",
		Short: "Chronic disease program tracking API server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(rebuildCmd())
	rootCmd.AddCommand(archiveCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if dir == "" {
				dir = cfg.MigrationsDir
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			migrator := db.NewMigrator(pool, dir)
			count, err := migrator.Up(ctx)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}

			fmt.Printf("Applied %d migration(s) successfully.\n", count)
			return nil
		},
	}
	upCmd.Flags().String("dir", "", "Path to migrations directory (defaults to MIGRATIONS_DIR)")
	cmd.AddCommand(upCmd)

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if dir == "" {
				dir = cfg.MigrationsDir
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			migrator := db.NewMigrator(pool, dir)
			statuses, err := migrator.Status(ctx)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}

			fmt.Printf("%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
			fmt.Println("---------- ---------------------------------------- ---------- --------------------")
			for _, s := range statuses {
				status := "pending"
				appliedAt := ""
				if s.Applied {
					status = "applied"
					if s.AppliedAt != nil {
						appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
					}
				}
				fmt.Printf("%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
			}
			return nil
		},
	}
	statusCmd.Flags().String("dir", "", "Path to migrations directory (defaults to MIGRATIONS_DIR)")
	cmd.AddCommand(statusCmd)

	return cmd
}

func rebuildCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rebuild",
		Short: "Rebuild the monthly statistics cache from the examination log",
		RunE: func(cmd *cobra.Command, args []string) error {
			diseaseFlag, _ := cmd.Flags().GetString("disease")
			yearFlag, _ := cmd.Flags().GetInt("year")

			logger := newLogger()
			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			statsSvc := statistics.NewService(
				statistics.NewCacheRepo(pool),
				statistics.NewExamSource(pool),
				patient.NewRepo(pool),
				statistics.NewTargetRepo(pool),
				db.NewRunner(pool),
				logger,
			)

			var year *int
			if yearFlag != 0 {
				year = &yearFlag
			}

			start := time.Now()
			if diseaseFlag == "" {
				err = statsSvc.RebuildAll(ctx)
			} else {
				disease, perr := program.ParseDisease(diseaseFlag)
				if perr != nil {
					return perr
				}
				err = statsSvc.RebuildForDisease(ctx, disease, year)
			}
			if err != nil {
				return fmt.Errorf("rebuild failed: %w", err)
			}

			fmt.Printf("Cache rebuild completed in %s.\n", time.Since(start).Round(time.Millisecond))
			return nil
		},
	}
	cmd.Flags().String("disease", "", "Restrict rebuild to one disease type (ht or dm)")
	cmd.Flags().Int("year", 0, "Restrict rebuild to one year (requires --disease)")
	return cmd
}

func archiveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "archive",
		Short: "Flag prior-year examinations as archived",
		RunE: func(cmd *cobra.Command, args []string) error {
			yearFlag, _ := cmd.Flags().GetInt("year")

			logger := newLogger()
			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			svc := archive.NewService(archive.NewRepo(pool), db.NewRunner(pool), logger)

			var result archive.Result
			if yearFlag == 0 {
				result = svc.ArchivePriorYear(ctx)
				if result.Error != "" {
					return fmt.Errorf("archival failed: %s", result.Error)
				}
			} else {
				result, err = svc.ArchiveYear(ctx, yearFlag)
				if err != nil {
					return fmt.Errorf("archival failed: %w", err)
				}
			}

			fmt.Printf("Archived year %d: %d hypertension, %d diabetes examination(s).\n",
				result.Year, result.ArchivedHT, result.ArchivedDM)
			return nil
		},
	}
	cmd.Flags().Int("year", 0, "Year to archive (defaults to the prior year)")
	return cmd
}

func newLogger() zerolog.Logger {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if os.Getenv("ENV") == "development" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return logger
}

func runServer() error {
	logger := newLogger()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
	}))

	e.GET("/health", db.HealthHandler(pool))

	// Wiring: examination writes flow through the patient year tracker and
	// the statistics maintainer inside one transaction per write.
	txRunner := db.NewRunner(pool)

	patientSvc := patient.NewService(patient.NewRepo(pool))
	patientHandler := patient.NewHandler(patientSvc)

	statsSvc := statistics.NewService(
		statistics.NewCacheRepo(pool),
		statistics.NewExamSource(pool),
		patient.NewRepo(pool),
		statistics.NewTargetRepo(pool),
		txRunner,
		logger,
	)
	statsHandler := statistics.NewHandler(statsSvc)

	examSvc := examination.NewService(
		examination.NewRepo(pool),
		patientSvc,
		statsSvc,
		txRunner,
		cfg.StatsRetryAttempts,
		logger,
	)
	examHandler := examination.NewHandler(examSvc)

	archiveSvc := archive.NewService(archive.NewRepo(pool), txRunner, logger)
	archiveHandler := archive.NewHandler(archiveSvc)

	apiV1 := e.Group("/api/v1")
	patientHandler.RegisterRoutes(apiV1)
	examHandler.RegisterRoutes(apiV1)
	statsHandler.RegisterRoutes(apiV1)
	archiveHandler.RegisterRoutes(apiV1)

	scheduler := archive.NewScheduler(archiveSvc, cfg.ArchiveHour, logger)
	scheduler.Start(ctx)

	go func() {
		logger.Info().Str("port", cfg.Port).Msg("server listening")
		if err := e.Start(":" + cfg.Port); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("server stopped")
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
