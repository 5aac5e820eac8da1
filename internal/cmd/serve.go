package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/Harshalzarikar/Beaver-agent/internal/server"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 8080, "HTTP server port")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := buildApp(cmd)
	if err != nil {
		return err
	}
	defer a.close()

	if err := a.vault.StartSweeper(); err != nil {
		return fmt.Errorf("starting vault sweeper: %w", err)
	}

	apiKeys := server.ParseAPIKeys(os.Getenv("BEAVER_API_KEYS"))
	if len(apiKeys) == 0 {
		log.Warn().Msg("BEAVER_API_KEYS not set — API requests will be rejected")
	}

	srv := server.NewServer(a.orchestrator, a.store, apiKeys,
		server.WithRateLimit(a.cfg.RateLimitPerMinute))

	addr := fmt.Sprintf(":%d", servePort)
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      srv.Routes(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	log.Info().
		Str("addr", addr).
		Str("provider", a.cfg.LLMProvider).
		Str("model", a.cfg.LLMModel).
		Int("rate_limit_per_minute", a.cfg.RateLimitPerMinute).
		Msg("beaver_serve_started")

	errCh := make(chan error, 1)
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown_signal_received")
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	log.Info().Msg("server_stopped")
	return nil
}
