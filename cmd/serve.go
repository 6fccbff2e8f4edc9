package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/porthorian/memberdir"
	httptransport "github.com/porthorian/memberdir/pkg/transport/http"
)

func init() {
	rootCmd.AddCommand(newServeCommand())
}

func newServeCommand() *cobra.Command {
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the member directory HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServe(ctx)
		},
	}

	serveCmd.Flags().String("address", "", "Listen address, e.g. :8080.")
	serveCmd.Flags().String("storage", "", "Storage backend: memory, postgres or sqlite.")
	serveCmd.Flags().String("cache", "", "Cache backend: none, memory or redis.")
	_ = settings.BindPFlag("http.address", serveCmd.Flags().Lookup("address"))
	_ = settings.BindPFlag("storage.backend", serveCmd.Flags().Lookup("storage"))
	_ = settings.BindPFlag("cache.backend", serveCmd.Flags().Lookup("cache"))

	return serveCmd
}

func runServe(ctx context.Context) error {
	config, err := loadConfig()
	if err != nil {
		return err
	}

	logger, syncLogger, err := memberdir.NewLogger(config.Log)
	if err != nil {
		return err
	}
	defer func() { _ = syncLogger() }()

	app, err := memberdir.New(ctx, memberdir.Config{
		Logger:  logger,
		Runtime: config,
	})
	if err != nil {
		return err
	}
	defer func() {
		if err := app.Close(); err != nil {
			logger.Error(err, "failed to close app resources")
		}
	}()

	if bootstrap := config.Bootstrap; bootstrap.AdminUsername != "" {
		created, err := app.EnsureAdmin(ctx, bootstrap.AdminUsername, bootstrap.AdminPassword)
		if err != nil {
			return fmt.Errorf("bootstrap admin: %w", err)
		}
		if created {
			logger.Info("created bootstrap admin user", "username", bootstrap.AdminUsername)
		}
	}

	router := httptransport.NewRouter(httptransport.RouterOptions{
		Auth:           app.Auth(),
		Members:        app.Members(),
		Verifier:       app.Verifier(),
		Ready:          app.Ping,
		Now:            app.Now,
		Logger:         logger,
		AllowedOrigins: config.HTTP.CORS.AllowedOrigins,
	})

	server := &http.Server{
		Addr:         config.HTTP.Address,
		Handler:      router,
		ReadTimeout:  config.HTTP.ReadTimeout,
		WriteTimeout: config.HTTP.WriteTimeout,
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		logger.Info("http server listening", "address", config.HTTP.Address, "storage", config.Storage.Backend, "cache", config.Cache.Backend, "version", BuildVersion)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		logger.Info("shutting down http server", "timeout", config.HTTP.ShutdownTimeout)

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), config.HTTP.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http server shutdown: %w", err)
		}
		return nil
	})

	return group.Wait()
}
