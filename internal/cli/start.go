package cli

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"lesson-progress-service/internal/app"
	"lesson-progress-service/internal/config"
	"lesson-progress-service/internal/domain"
	transport "lesson-progress-service/internal/transport/http"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the lesson progress server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.LoadOrDefault(configPath)
	if err != nil {
		return err
	}
	log, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg, log); err != nil {
			return err
		}
	}

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	st, err := openStack(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer st.Close()

	service := st.service()
	defer service.Close()

	gate := app.NewStageGate(app.NewQuizGate(config.IntOr(cfg.Tracking.UnlockThreshold, app.DefaultUnlockThreshold)), st.sink, log)
	handler := transport.NewRouter(
		transport.NewAPIHandler(service, gate, log),
		transport.NewWSHandler(service, log),
	)

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	events, unsubscribe := st.localBus.Subscribe(64)
	defer unsubscribe()
	g.Go(func() error {
		gate.Run(gctx, events)
		return nil
	})

	if st.bus != nil {
		if err := st.bus.StartForwarder(gctx, func(ev domain.ProgressChanged) {
			_ = st.localBus.Publish(gctx, ev)
		}); err != nil {
			return err
		}
	}

	g.Go(func() error {
		log.Info("starting lesson progress service", "port", finalPort, "storage", cfg.Storage.Driver)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
