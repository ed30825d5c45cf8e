package admin

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/cloo-solutions/strom/internal/api/handlers"
	"github.com/cloo-solutions/strom/internal/jobs"
	"github.com/cloo-solutions/strom/internal/server"
)

// ServeCmd returns the serve command
func ServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		Long:  "Start the strom API server with the conversation and upload endpoints",
		RunE:  runServe,
	}

	cmd.Flags().StringP("port", "p", "", "Port to listen on (overrides STROM_PORT)")
	cmd.Flags().Bool("no-migrate", false, "Skip automatic database migrations on startup")

	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}
	defer log.Sync()

	shutdownTelemetry := initTelemetry(cfg, log, cmd.Root().Version)
	defer shutdownTelemetry()

	if port, _ := cmd.Flags().GetString("port"); port != "" {
		cfg.Port = port
	}
	noMigrate, _ := cmd.Flags().GetBool("no-migrate")

	a, err := newApp(ctx, cfg, log, appOptions{requireGeneration: true, migrate: !noMigrate})
	if err != nil {
		return err
	}
	defer a.Close()

	runner := jobs.NewIngestionRunner(a.jobs, a.ingestion, cfg.JobQueueSize, log)
	runnerCtx, cancelRunner := context.WithCancel(context.Background())
	defer cancelRunner()
	go runner.Start(runnerCtx)

	router := server.NewRouter(server.RouterConfig{
		Logger:              log,
		ConversationHandler: handlers.NewConversationHandler(a.conversation),
		IngestionHandler:    handlers.NewIngestionHandler(a.ingestion, runner, cfg.MaxUploadBytes),
		HealthCheck:         a.healthCheck,
		// Leave room for the multipart envelope around the largest upload.
		MaxUploadBodyBytes: cfg.MaxUploadBytes + 1<<20,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("starting server", "port", cfg.Port, "vector_backend", cfg.VectorBackend, "provider", cfg.GenerationProvider)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		log.Info("shutting down")
	case err := <-errCh:
		if err != nil {
			runner.Stop()
			return fmt.Errorf("server failed: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	runner.Stop()

	log.Info("server exited")
	return nil
}
