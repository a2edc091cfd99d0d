// Package watcher consumes listing-refresh events and surfaces list
// price changes in the logs.
package watcher

import (
	"context"
	"log/slog"
	"math"

	"github.com/yourorg/mls-api/internal/events"
)

type Watcher struct {
	Pub events.Publisher
	Log *slog.Logger
}

func (w *Watcher) Run(ctx context.Context) {
	sub := w.Pub.SubscribeListingRefreshed()
	for {
		select {
		case <-ctx.Done():
			return
		case evt := <-sub:
			w.observe(evt)
		}
	}
}

func (w *Watcher) observe(evt events.ListingRefreshed) {
	log := w.Log
	if log == nil {
		log = slog.Default()
	}
	if evt.OldPrice == nil || evt.NewPrice == nil || *evt.OldPrice == *evt.NewPrice {
		log.Debug("listing refreshed",
			"provider", evt.Provider,
			"listing_key", evt.ListingKey)
		return
	}
	log.Info("list price changed",
		"provider", evt.Provider,
		"listing_key", evt.ListingKey,
		"old_price", *evt.OldPrice,
		"new_price", *evt.NewPrice,
		"change_pct", changePct(*evt.OldPrice, *evt.NewPrice))
}

// changePct is the relative move in percent, rounded to one decimal.
// A zero old price reads as a brand-new price, not an infinite move.
func changePct(old, now float64) float64 {
	if old == 0 {
		return 0
	}
	return math.Round((now-old)/old*1000) / 10
}
