package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/heptiolabs/healthcheck"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/buildtall-systems/vendfleet/internal/api"
	"github.com/buildtall-systems/vendfleet/internal/config"
	"github.com/buildtall-systems/vendfleet/internal/db"
	"github.com/buildtall-systems/vendfleet/internal/delivery"
	"github.com/buildtall-systems/vendfleet/internal/orchestrator"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the orchestrator HTTP service",
	Long:  `Start the vendfleet orchestrator. Serves the HTTP API and runs the deferred delivery workers.`,
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger, err := newLogger(cfg.Verbose)
	if err != nil {
		return fmt.Errorf("creating logger: %w", err)
	}
	zap.ReplaceGlobals(logger)
	defer func() { _ = logger.Sync() }()

	zap.S().Infow("vendfleet starting",
		"http", cfg.HTTP.Addr,
		"database", cfg.Database.Path,
		"queue", cfg.Queue.Path,
		"delivery_delay", cfg.Delivery.Delay,
		"delivery_workers", cfg.Delivery.Workers,
	)

	// Open database and run migrations
	database, err := db.Open(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() { _ = database.Close() }()

	if err := database.Migrate(); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	zap.S().Info("database ready")

	queue, err := delivery.OpenQueue(cfg.Queue.Path, cfg.Delivery.Delay)
	if err != nil {
		return fmt.Errorf("opening delivery queue: %w", err)
	}
	defer func() { _ = queue.Close() }()

	// Create context that cancels on shutdown signals
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		zap.S().Infow("received signal, shutting down", "signal", sig)
		cancel()
	}()

	pool := delivery.NewPool(queue, database, cfg.Delivery.Workers)
	pool.Start(ctx)

	health := healthcheck.NewHandler()
	health.AddLivenessCheck("goroutine-threshold", healthcheck.GoroutineCountCheck(200))
	go func() {
		if err := http.ListenAndServe(cfg.HTTP.HealthAddr, health); err != nil {
			zap.S().Errorw("health listener failed", "error", err)
		}
	}()

	orc := orchestrator.New(database, queue)
	srv := &http.Server{
		Addr:    cfg.HTTP.Addr,
		Handler: api.NewRouter(orc, logger),
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			zap.S().Errorw("shutting down http server", "error", err)
		}
	}()

	zap.S().Info("vendfleet running")

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}

	// Let in-flight deliveries requeue before the queue closes.
	cancel()
	pool.Wait()

	zap.S().Info("vendfleet stopped")
	return nil
}

func newLogger(verbose bool) (*zap.Logger, error) {
	if verbose {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
