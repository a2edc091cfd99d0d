package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/yourorg/mls-api/internal/env"
	"github.com/yourorg/mls-api/internal/logger"
	"github.com/yourorg/mls-api/internal/marketwatch"
	"github.com/yourorg/mls-api/reso"
)

func main() {
	_ = godotenv.Load()
	log := logger.Setup(env.Get("LOG_LEVEL", "info"), env.GetBool("LOG_JSON", false))

	watches := parseWatches(os.Getenv("MARKET_WATCH_CITIES"))
	if len(watches) == 0 {
		log.Error("MARKET_WATCH_CITIES must list at least one city")
		os.Exit(1)
	}

	creds := credentialsFromEnv()
	if len(creds) == 0 {
		log.Error("no provider credentials configured")
		os.Exit(1)
	}
	reg := reso.NewRegistry(creds, log)
	if p := env.Get("MLS_PREFERRED_PROVIDER", ""); p != "" {
		if err := reg.UseProvider(p); err != nil {
			log.Error("preferred provider not usable", "provider", p, "error", err)
			os.Exit(1)
		}
	}

	job := &marketwatch.Job{
		Stats: reg,
		Log:   log,
		Config: marketwatch.Config{
			Watches:        watches,
			DaysBack:       env.GetInt("MARKET_WATCH_DAYS_BACK", 90),
			Interval:       env.GetDuration("MARKET_WATCH_INTERVAL", 6*time.Hour),
			PauseBetween:   env.GetDuration("MARKET_WATCH_PAUSE", 2*time.Second),
			RequestTimeout: env.GetDuration("MARKET_WATCH_REQUEST_TIMEOUT", 30*time.Second),
		},
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if env.GetBool("MARKET_WATCH_RUN_ONCE", false) {
		if err := job.RunOnce(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error("market watch run failed", "error", err)
			os.Exit(1)
		}
		return
	}

	if err := job.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("market watch stopped", "error", err)
		os.Exit(1)
	}
}

// parseWatches reads "City" or "City:PropertyType" entries from a comma or
// semicolon separated list.
func parseWatches(v string) []marketwatch.Watch {
	items := splitList(v)
	out := make([]marketwatch.Watch, 0, len(items))
	for _, item := range items {
		city, propType, _ := strings.Cut(item, ":")
		city = strings.TrimSpace(city)
		if city == "" {
			continue
		}
		out = append(out, marketwatch.Watch{
			City:         city,
			PropertyType: strings.TrimSpace(propType),
		})
	}
	return out
}

func splitList(v string) []string {
	if v == "" {
		return nil
	}
	fields := strings.FieldsFunc(v, func(r rune) bool {
		switch r {
		case ',', ';', '\n', '\r', '\t':
			return true
		default:
			return false
		}
	})
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.TrimSpace(f)
		if f != "" {
			out = append(out, f)
		}
	}
	return out
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
