package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/skillsage/signaling/internal/config"
	"github.com/skillsage/signaling/internal/logging"
	"github.com/skillsage/signaling/internal/metrics"
	"github.com/skillsage/signaling/internal/server"
	"github.com/skillsage/signaling/internal/signaling"
)

var opts config.Options

var rootCmd = &cobra.Command{
	Use:   "signaling-server",
	Short: "Realtime signaling and collaboration relay for live interview sessions",
	Long: `The signaling server coordinates live two-party video interviews:
it relays WebRTC offers, answers and ICE candidates between the
recruiter and the candidate (camera and screen-share links), keeps the
per-question collaborative code state, and fans out room-scoped chat.
All state is in-memory and scoped to the process lifetime.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return run()
	},
}

func init() {
	rootCmd.Flags().StringVar(&opts.Addr, "addr", "", "listen address (default :5000)")
	rootCmd.Flags().StringVar(&opts.AllowedOrigins, "allowed-origins", "", "comma-separated websocket origins, * for all")
	rootCmd.Flags().StringVar(&opts.LogLevel, "log-level", "", "debug, info, warn or error")
	rootCmd.Flags().StringVar(&opts.LogFile, "log-file", "", "optional rotated log file")
	rootCmd.Flags().StringVar(&opts.EnvFile, "env-file", "", "path to a .env file")
	rootCmd.Flags().BoolVar(&opts.Development, "dev", false, "development mode (console logging)")
}

func run() error {
	cfg, err := config.Load(opts)
	if err != nil {
		return err
	}

	logger, err := logging.New(logging.Config{
		Level:       cfg.LogLevel,
		File:        cfg.LogFile,
		MaxSizeMB:   100,
		MaxBackups:  5,
		MaxAgeDays:  30,
		Development: cfg.Development,
	})
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	registry := prometheus.NewRegistry()
	hub := signaling.NewHub(signaling.NewRegistry(), metrics.New(registry), logger)
	go hub.Run(ctx)

	httpServer := &http.Server{
		Addr:           cfg.Addr,
		Handler:        server.NewRouter(hub, cfg, registry, logger),
		ReadTimeout:    30 * time.Second,
		WriteTimeout:   30 * time.Second,
		IdleTimeout:    120 * time.Second,
		MaxHeaderBytes: 1 << 20, // 1MB
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting signaling server", zap.String("addr", cfg.Addr))
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-ctx.Done():
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return err
		}
	}
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
