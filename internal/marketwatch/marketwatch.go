// Package marketwatch polls market statistics for a watch list of cities
// and logs how each market moved between cycles.
package marketwatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/yourorg/mls-api/reso"
)

type Watch struct {
	City         string
	PropertyType string
}

type Config struct {
	Watches        []Watch
	DaysBack       int
	Interval       time.Duration
	PauseBetween   time.Duration
	RequestTimeout time.Duration
}

// StatsFetcher is the slice of the provider facade this job needs.
type StatsFetcher interface {
	GetMarketStats(ctx context.Context, city, propertyType string, daysBack int) (*reso.MarketStatistics, error)
}

type snapshot struct {
	medianList float64
	active     int
	sold       int
}

type Job struct {
	Stats  StatsFetcher
	Log    *slog.Logger
	Config Config

	mu        sync.Mutex
	baselines map[string]snapshot
}

func (j *Job) logger() *slog.Logger {
	if j.Log != nil {
		return j.Log
	}
	return slog.Default()
}

func (j *Job) validate() error {
	if j == nil {
		return errors.New("nil market watch job")
	}
	if j.Stats == nil {
		return errors.New("market watch requires a stats source")
	}
	if len(j.Config.Watches) == 0 {
		return errors.New("market watch requires at least one city")
	}
	if j.Config.DaysBack <= 0 {
		j.Config.DaysBack = 90
	}
	if j.Config.RequestTimeout <= 0 {
		j.Config.RequestTimeout = 30 * time.Second
	}
	if j.baselines == nil {
		j.baselines = map[string]snapshot{}
	}
	return nil
}

func (j *Job) Run(ctx context.Context) error {
	if err := j.validate(); err != nil {
		return err
	}
	interval := j.Config.Interval
	if interval <= 0 {
		return j.RunOnce(ctx)
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	j.logger().Info("market watch starting",
		"interval", interval.String(),
		"watches", len(j.Config.Watches))
	if err := j.RunOnce(ctx); err != nil && !errors.Is(err, context.Canceled) {
		j.logger().Error("market watch initial run", "error", err)
	}
	for {
		select {
		case <-ctx.Done():
			j.logger().Info("market watch stopping", "reason", ctx.Err().Error())
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil
			}
			return ctx.Err()
		case <-ticker.C:
			if err := j.RunOnce(ctx); err != nil && !errors.Is(err, context.Canceled) {
				j.logger().Error("market watch iteration", "error", err)
			}
		}
	}
}

// RunOnce checks every watch. Provider auth failures and rate limits abort
// the cycle since every later watch would hit the same wall; other errors
// are joined so one bad city cannot hide the rest.
func (j *Job) RunOnce(ctx context.Context) error {
	if err := j.validate(); err != nil {
		return err
	}
	var joined error
	for i, w := range j.Config.Watches {
		city := strings.TrimSpace(w.City)
		if city == "" {
			continue
		}
		if i > 0 && j.Config.PauseBetween > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(j.Config.PauseBetween):
			}
		}
		if err := j.checkWatch(ctx, city, strings.TrimSpace(w.PropertyType)); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			var rl *reso.RateLimitError
			if errors.Is(err, reso.ErrAuthentication) || errors.As(err, &rl) {
				return err
			}
			joined = errors.Join(joined, err)
		}
	}
	return joined
}

func (j *Job) checkWatch(ctx context.Context, city, propertyType string) error {
	reqCtx, cancel := context.WithTimeout(ctx, j.Config.RequestTimeout)
	stats, err := j.Stats.GetMarketStats(reqCtx, city, propertyType, j.Config.DaysBack)
	cancel()
	if err != nil {
		return fmt.Errorf("market stats for %s: %w", watchKey(city, propertyType), err)
	}

	cur := snapshot{
		medianList: stats.MedianListPrice,
		active:     stats.ActiveListings,
		sold:       stats.SoldProperties,
	}
	key := watchKey(city, propertyType)
	j.mu.Lock()
	prev, seen := j.baselines[key]
	j.baselines[key] = cur
	j.mu.Unlock()

	if !seen {
		j.logger().Info("market baseline recorded",
			"city", city,
			"property_type", stats.PropertyType,
			"median_list_price", cur.medianList,
			"active_listings", cur.active,
			"sold", cur.sold)
		return nil
	}
	j.logger().Info("market update",
		"city", city,
		"property_type", stats.PropertyType,
		"median_list_price", cur.medianList,
		"median_delta_pct", pctChange(prev.medianList, cur.medianList),
		"active_listings", cur.active,
		"active_delta", cur.active-prev.active,
		"sold", cur.sold,
		"sold_delta", cur.sold-prev.sold)
	return nil
}

func watchKey(city, propertyType string) string {
	if propertyType == "" {
		propertyType = "All"
	}
	return strings.ToLower(city) + "|" + strings.ToLower(propertyType)
}

// pctChange is the relative move in percent, rounded to one decimal.
func pctChange(old, now float64) float64 {
	if old == 0 {
		return 0
	}
	return math.Round((now-old)/old*1000) / 10
}
