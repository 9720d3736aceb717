package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/yaroslav/microdc/internal/api"
	"github.com/yaroslav/microdc/internal/config"
	"github.com/yaroslav/microdc/internal/metrics"
	"github.com/yaroslav/microdc/internal/reconciler"
)

const (
	readHeaderTimeout = 10 * time.Second
	shutdownTimeout   = 15 * time.Second
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the control plane HTTP API and reconciliation loop",
	Long: `Start the microdc control plane.

The server will:
  - Load configuration from the YAML file and MICRODC_* variables
  - Migrate the state store schema
  - Serve the REST API, health probes and Prometheus metrics
  - Reconcile every datacenter on the configured interval
  - Handle graceful shutdown on SIGTERM/SIGINT`,
	RunE: runServe,
}

var listenAddr string

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVarP(&listenAddr, "listen", "l", "",
		"Address to listen on (overrides the configuration file)")
}

func runServe(cmd *cobra.Command, args []string) error {
	if err := metrics.Init(); err != nil {
		return fmt.Errorf("failed to register metrics: %w", err)
	}

	env, err := loadEnvironment(cmd.Context())
	if err != nil {
		return err
	}
	defer env.Close()
	logger := env.logger

	if listenAddr != "" {
		env.cfg.ListenAddr = listenAddr
	}

	logger.Info("starting microdc-server",
		zap.String("version", Version),
		zap.String("listen_addr", env.cfg.ListenAddr),
		zap.String("profile", string(env.cfg.Profile)),
		zap.String("driver", env.store.Driver()),
	)

	if env.cfg.Profile == config.ProfileProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	manager := reconciler.NewManager(env.reconciler(), env.datacenters, env.cfg.Reconcile.Interval, logger)
	manager.Start()
	defer manager.Stop()

	router, stopLimiters := api.SetupRouter(&api.RouterConfig{
		Logger:        logger,
		Store:         env.store,
		Datacenters:   env.datacenters,
		Workspaces:    env.workspaces,
		Networks:      env.networks,
		DeviceConfigs: env.deviceConfigs,
		Reconciler:    manager,
		AllowOrigins:  env.cfg.CORSOrigins,
		RateLimit:     env.cfg.RateLimit,
	})
	defer stopLimiters()

	server := &http.Server{
		Addr:              env.cfg.ListenAddr,
		Handler:           router,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("server listening", zap.String("addr", env.cfg.ListenAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)
	defer signal.Stop(sigChan)

	select {
	case sig := <-sigChan:
		logger.Info("received shutdown signal", zap.String("signal", sig.String()))
	case err, ok := <-serveErr:
		if ok {
			logger.Error("server failed", zap.Error(err))
			return err
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Warn("shutdown timeout exceeded, forcing exit", zap.Error(err))
		return fmt.Errorf("shutdown: %w", err)
	}

	logger.Info("server stopped")
	return nil
}
