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
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/dentalops/handover/internal/config"
	"github.com/dentalops/handover/internal/domain/cohort"
	"github.com/dentalops/handover/internal/domain/imaging"
	"github.com/dentalops/handover/internal/domain/journal"
	"github.com/dentalops/handover/internal/domain/records"
	"github.com/dentalops/handover/internal/domain/transfer"
	"github.com/dentalops/handover/internal/platform/db"
	"github.com/dentalops/handover/internal/platform/middleware"
	"github.com/dentalops/handover/internal/platform/portal"
	"github.com/dentalops/handover/internal/platform/staging"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "handover",
		Short: "Dental handover batch service",
	}

	rootCmd.AddCommand(runCmd())
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newLogger(cfg *config.Config) zerolog.Logger {
	if cfg.IsDev() {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

func runCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Execute the handover batch once",
		RunE: func(cmd *cobra.Command, args []string) error {
			limit, _ := cmd.Flags().GetInt("limit")
			dryRun, _ := cmd.Flags().GetBool("dry-run")
			return runBatch(limit, dryRun)
		},
	}
	cmd.Flags().Int("limit", 0, "Maximum number of patients to process (0 = no limit)")
	cmd.Flags().Bool("dry-run", false, "Walk the pipeline but stop before submitting")
	return cmd
}

func runBatch(limit int, dryRun bool) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	logger := newLogger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	clinicalPool, err := db.NewPool(ctx, cfg.ClinicalDatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		return fmt.Errorf("connect to clinical database: %w", err)
	}
	defer clinicalPool.Close()

	imagingPool, err := db.NewPool(ctx, cfg.ImagingDatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		return fmt.Errorf("connect to imaging database: %w", err)
	}
	defer imagingPool.Close()

	journalPool, err := db.NewPool(ctx, cfg.JournalDatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		return fmt.Errorf("connect to journal database: %w", err)
	}
	defer journalPool.Close()

	logger.Info().Msg("connected to clinical, imaging and journal databases")

	stage := staging.New(cfg.StagingDir)
	client := portal.NewClient(cfg.PortalBaseURL, cfg.PortalClientID, cfg.PortalClientSecret)

	cohortSvc := cohort.NewService(cohort.NewPatientRepoPG(clinicalPool), cohort.NewClinicRepoPG(clinicalPool))
	imagingSvc := imaging.NewService(imaging.NewRepoPG(imagingPool), stage, logger)
	recordsSvc := records.NewService(records.NewRepoPG(clinicalPool), records.NewPrinterPG(clinicalPool), cfg.RecheckWindowDays)
	journalSvc := journal.NewService(journal.NewReceiptRepoPG(journalPool), journal.NewNoteRepoPG(journalPool),
		journal.NewRunRepoPG(journalPool), cfg.RecheckWindowDays)

	svc := transfer.NewService(cohortSvc, imagingSvc, recordsSvc, journalSvc, client, stage, logger)

	report, err := svc.Run(ctx, transfer.Options{
		Subject:           cfg.PortalSubject,
		AgeThresholdYears: cfg.AgeThresholdYears,
		Limit:             limit,
		DryRun:            dryRun,
	})
	if err != nil {
		logger.Error().Err(err).Msg("batch run aborted")
		return err
	}

	fmt.Printf("Run %s: %d eligible, %d transferred, %d failed, %d skipped\n",
		report.RunID, report.Eligible, report.Transferred, report.Failed, report.Skipped)
	return nil
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the read-only API over receipts and run logs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func runServer() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := newLogger(cfg)

	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.JournalDatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to journal database")
	}
	defer pool.Close()
	logger.Info().Msg("connected to journal database")

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.RequestTimeout(30 * time.Second))

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": "0.1.0",
		})
	})
	e.GET("/health/db", db.HealthHandler(pool))

	journalSvc := journal.NewService(journal.NewReceiptRepoPG(pool), journal.NewNoteRepoPG(pool),
		journal.NewRunRepoPG(pool), cfg.RecheckWindowDays)
	journal.NewHandler(journalSvc).RegisterRoutes(e.Group("/api/v1"))

	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Fatal().Err(err).Msg("server shutdown failed")
	}
	logger.Info().Msg("server stopped")
	return nil
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run journal schema migrations",
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

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.JournalDatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
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
	upCmd.Flags().String("dir", "./migrations", "Path to migrations directory")
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

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.JournalDatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
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
	statusCmd.Flags().String("dir", "./migrations", "Path to migrations directory")
	cmd.AddCommand(statusCmd)

	return cmd
}
