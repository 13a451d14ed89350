package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/dukerupert/tilly/internal/billing"
	"github.com/dukerupert/tilly/internal/database"
	"github.com/dukerupert/tilly/internal/logging"
	"github.com/dukerupert/tilly/internal/push"
	"github.com/dukerupert/tilly/internal/server"
	"github.com/dukerupert/tilly/internal/usage"
)

func main() {
	logger := logging.Setup(os.Getenv("TILLY_LOG_LEVEL"), os.Getenv("TILLY_LOG_FORMAT"))

	port := envOr("TILLY_PORT", "8080")
	dbPath := envOr("TILLY_DB_PATH", "tilly.db")

	db, err := database.Open(dbPath)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer db.Close()

	pushCfg := push.Config{
		VAPIDPublicKey:  os.Getenv("TILLY_VAPID_PUBLIC_KEY"),
		VAPIDPrivateKey: os.Getenv("TILLY_VAPID_PRIVATE_KEY"),
		Subscriber:      os.Getenv("TILLY_VAPID_SUBSCRIBER"),
	}
	if pushCfg.VAPIDPublicKey == "" || pushCfg.VAPIDPrivateKey == "" {
		// Ephemeral keys let development servers start without config.
		// Browsers will re-prompt for permission on every restart, so
		// production deployments must set real keys.
		pub, priv, err := push.GenerateVAPIDKeys()
		if err != nil {
			log.Fatalf("failed to generate VAPID keys: %v", err)
		}
		pushCfg.VAPIDPublicKey, pushCfg.VAPIDPrivateKey = pub, priv
		logger.Warn("VAPID keys not configured, generated ephemeral keys")
	}

	cronSecret := os.Getenv("TILLY_CRON_SECRET")
	if cronSecret == "" {
		logger.Warn("TILLY_CRON_SECRET not set, cron endpoint disabled")
	}

	cfg := server.Config{
		Push: pushCfg,
		Usage: usage.Config{
			Rates: usage.Rates{
				InputPerMillion:       envFloat("TILLY_INPUT_COST_PER_MILLION", 3.0),
				CachedInputPerMillion: envFloat("TILLY_CACHED_INPUT_COST_PER_MILLION", 0.3),
				OutputPerMillion:      envFloat("TILLY_OUTPUT_COST_PER_MILLION", 15.0),
			},
			WeeklyBudget:     envFloat("TILLY_WEEKLY_BUDGET", 1.0),
			MaxRequestTokens: int(envFloat("TILLY_MAX_REQUEST_TOKENS", 20000)),
		},
		Billing: billing.Config{
			SecretKey:     os.Getenv("TILLY_STRIPE_SECRET_KEY"),
			WebhookSecret: os.Getenv("TILLY_STRIPE_WEBHOOK_SECRET"),
			PlusPriceID:   os.Getenv("TILLY_STRIPE_PLUS_PRICE_ID"),
			SuccessURL:    envOr("TILLY_STRIPE_SUCCESS_URL", "/app/settings?upgraded=1"),
			CancelURL:     envOr("TILLY_STRIPE_CANCEL_URL", "/app/settings"),
		},
		OpenAIAPIKey:   os.Getenv("TILLY_OPENAI_API_KEY"),
		OpenAIModel:    envOr("TILLY_OPENAI_MODEL", "gpt-4o"),
		CronSecret:     cronSecret,
		PaywallEnabled: os.Getenv("TILLY_ENABLE_PAYWALL") == "true",
	}

	srv := server.New(db, cfg, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	srv.Sweeper().Start(ctx)
	defer srv.Sweeper().Stop()

	// Hourly cleanup of expired sessions and stale rate-limit windows.
	go func() {
		ticker := time.NewTicker(time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := srv.SessionStore().DeleteExpired(); err != nil {
					logger.Error("delete expired sessions", "error", err)
				}
				srv.RateLimiter().Cleanup()
			}
		}
	}()

	httpServer := &http.Server{
		Addr:         ":" + port,
		Handler:      srv.Router(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.Info("tilly listening", "port", port)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("shutdown error: %v", err)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}
