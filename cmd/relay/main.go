package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/adrblo/http-network-relay/internal/credentials"
	"github.com/adrblo/http-network-relay/internal/handlers"
	"github.com/adrblo/http-network-relay/internal/logger"
	"github.com/adrblo/http-network-relay/internal/ratelimit"
	"github.com/adrblo/http-network-relay/internal/sanitize"
	"github.com/adrblo/http-network-relay/internal/telemetry"
	"github.com/adrblo/http-network-relay/internal/wsrelay"
)

type config struct {
	host            string
	port            string
	credentialsFile string
	logLevel        string
	natsURL         string
	redisAddr       string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cfg := &config{}

	root := &cobra.Command{
		Use:   "relay",
		Short: "http-network-relay — reverse-tunnel WebSocket relay",
		Long: `http-network-relay brokers TCP byte streams between access clients and
edge agents that dial out over WebSocket, so an agent behind NAT or a
firewall can be reached without any inbound port on the agent's network.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), cfg)
		},
	}

	root.PersistentFlags().StringVar(&cfg.host, "host", envOrDefault("HTTP_NETWORK_RELAY_SERVER_HOST", "127.0.0.1"), "bind address")
	root.PersistentFlags().StringVar(&cfg.port, "port", envOrDefault("HTTP_NETWORK_RELAY_SERVER_PORT", "8000"), "bind port")
	root.PersistentFlags().StringVar(&cfg.credentialsFile, "credentials-file", envOrDefault("HTTP_NETWORK_RELAY_CREDENTIALS_FILE", "credentials.json"), "path to the agent/access-client credentials file")
	root.PersistentFlags().StringVar(&cfg.logLevel, "log-level", envOrDefault("HTTP_NETWORK_RELAY_LOG_LEVEL", "info"), "log level (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&cfg.natsURL, "nats-url", envOrDefault("HTTP_NETWORK_RELAY_NATS_URL", ""), "NATS URL for optional lifecycle-event telemetry (empty disables)")
	root.PersistentFlags().StringVar(&cfg.redisAddr, "redis-addr", envOrDefault("HTTP_NETWORK_RELAY_REDIS_ADDR", ""), "Redis address for optional access-client rate limiting (empty disables)")

	return root
}

func run(ctx context.Context, cfg *config) error {
	logger.Initialize(cfg.logLevel, os.Getenv("GIN_MODE") != "release")
	log := logger.GetLogger()

	creds, err := credentials.Load(cfg.credentialsFile)
	if err != nil {
		return fmt.Errorf("failed to load credentials: %w", err)
	}
	log.Info().Str("file", cfg.credentialsFile).Msg("credentials loaded")

	publisher := telemetry.NewPublisher(telemetry.Config{URL: cfg.natsURL}, *log)
	defer publisher.Close()

	limiter, err := ratelimit.New(ratelimit.Config{
		Addr:    cfg.redisAddr,
		Enabled: cfg.redisAddr != "",
	})
	if err != nil {
		log.Warn().Err(err).Msg("rate limiting disabled: failed to connect to redis")
		limiter, _ = ratelimit.New(ratelimit.Config{Enabled: false})
	}
	defer limiter.Close()

	relay := wsrelay.New(creds, sanitize.NewStrict(), publisher, *log)

	if os.Getenv("GIN_MODE") == "" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())

	handlers.New(relay, limiter).RegisterRoutes(router)

	addr := fmt.Sprintf("%s:%s", cfg.host, cfg.port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Msg("relay listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
	case err := <-errCh:
		return fmt.Errorf("relay server failed: %w", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("relay server forced to shutdown")
	} else {
		log.Info().Msg("relay server stopped gracefully")
	}
	return nil
}

func envOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
