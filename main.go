package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	httpv1 "github.com/yourorg/mls-api/http/v1"
	"github.com/yourorg/mls-api/internal/env"
	"github.com/yourorg/mls-api/internal/events"
	"github.com/yourorg/mls-api/internal/logger"
	"github.com/yourorg/mls-api/internal/redisx"
	"github.com/yourorg/mls-api/internal/refresh"
	"github.com/yourorg/mls-api/internal/watcher"
	"github.com/yourorg/mls-api/reso"
)

func main() {
	_ = godotenv.Load()
	log := logger.Setup(env.Get("LOG_LEVEL", "info"), env.GetBool("LOG_JSON", false))

	creds := credentialsFromEnv()
	if len(creds) == 0 {
		log.Warn("no provider credentials configured, every request will fail")
	}
	reg := reso.NewRegistry(creds, log)
	if p := env.Get("MLS_PREFERRED_PROVIDER", ""); p != "" {
		if err := reg.UseProvider(p); err != nil {
			log.Error("preferred provider not usable", "provider", p, "error", err)
			os.Exit(1)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var rdb *redisx.Client
	if addr := env.Get("REDIS_ADDR", ""); addr != "" {
		rdb = redisx.New(addr, env.Get("REDIS_PASSWORD", ""), env.GetInt("REDIS_DB", 0))
		if err := rdb.Ping(ctx); err != nil {
			log.Warn("redis unreachable, serving without cache", "addr", addr, "error", err)
			rdb = nil
		}
	}

	cacheTTL := env.GetDuration("LISTING_CACHE_TTL", time.Hour)
	staleAfter := env.GetDuration("LISTING_STALE_AFTER", 5*time.Minute)
	negativeTTL := env.GetDuration("LISTING_NEGATIVE_TTL", 10*time.Minute)

	pub := events.NewInMemory(env.GetInt("EVENT_BUFFER", 256))
	go (&watcher.Watcher{Pub: pub, Log: log}).Run(ctx)

	refresher := refresh.New(
		env.GetInt("REFRESH_QUEUE", 256),
		env.GetInt("REFRESH_WORKERS", 2),
		refetchJob(reg, rdb, pub, cacheTTL, staleAfter, log),
	)

	deps := httpv1.Deps{
		Registry: reg,
		Redis:    rdb,
		Refetch: func(provider, listingKey string) {
			refresher.Enqueue(refresh.Job{Provider: provider, ListingKey: listingKey})
		},
		CacheTTL:    cacheTTL,
		StaleAfter:  staleAfter,
		NegativeTTL: negativeTTL,
	}

	port := env.GetInt("PORT", 4002)
	srv := &http.Server{
		Addr:    ":" + strconv.Itoa(port),
		Handler: logger.Middleware(BuildRouter(reg, deps)),
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("mls-api listening", "port", port, "provider", reg.Provider())
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := errors.Join(srv.Shutdown(shutdownCtx), <-errCh); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("shutdown", "error", err)
			os.Exit(1)
		}
	case err := <-errCh:
		log.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

func credentialsFromEnv() map[string]reso.Credentials {
	creds := map[string]reso.Credentials{}
	if k := env.Get("BRIDGE_API_KEY", ""); k != "" {
		creds["bridge"] = reso.Credentials{APIKey: k, ServerID: env.Get("BRIDGE_SERVER_ID", "")}
	}
	if k := env.Get("MLSGRID_API_KEY", ""); k != "" {
		creds["mlsgrid"] = reso.Credentials{APIKey: k, ServerID: env.Get("MLSGRID_ORIGINATING_SYSTEM", "")}
	}
	if k := env.Get("RENTSPREE_API_KEY", ""); k != "" {
		creds["rentspree"] = reso.Credentials{APIKey: k}
	}
	if k := env.Get("ESTATED_API_KEY", ""); k != "" {
		creds["estated"] = reso.Credentials{APIKey: k}
	}
	if k := env.Get("ATTOM_API_KEY", ""); k != "" {
		creds["attom"] = reso.Credentials{APIKey: k}
	}
	return creds
}

// refetchJob builds the background worker body: refetch one listing,
// rewrite its cache envelope, and publish the refresh so the price watcher
// sees it.
func refetchJob(reg *reso.Registry, rdb *redisx.Client, pub events.Publisher, ttl, staleAfter time.Duration, log *slog.Logger) func(ctx context.Context, j refresh.Job) {
	return func(ctx context.Context, j refresh.Job) {
		client, err := reg.Client(j.Provider)
		if err != nil {
			log.Warn("refresh skipped", "provider", j.Provider, "error", err)
			return
		}
		var oldPrice *float64
		if prev, ok := httpv1.Load(ctx, rdb, j.Provider, j.ListingKey); ok && prev.Data != nil {
			oldPrice = prev.Data.ListPrice
		}
		prop, err := client.GetProperty(ctx, j.ListingKey)
		if err != nil {
			log.Warn("refresh fetch failed",
				"provider", j.Provider,
				"listing_key", j.ListingKey,
				"error", err)
			return
		}
		if err := httpv1.Store(ctx, rdb, j.Provider, j.ListingKey, prop, ttl, staleAfter); err != nil {
			log.Warn("refresh cache write failed", "listing_key", j.ListingKey, "error", err)
		}
		pub.PublishListingRefreshed(ctx, events.ListingRefreshed{
			Provider:   j.Provider,
			ListingKey: j.ListingKey,
			OldPrice:   oldPrice,
			NewPrice:   prop.ListPrice,
		})
	}
}
