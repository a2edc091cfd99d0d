package watcher

import (
	"context"
	"io"
	"log/slog"
	"math"
	"testing"
	"time"

	"github.com/yourorg/mls-api/internal/events"
)

type logEntry struct {
	msg   string
	attrs map[string]any
}

// captureHandler forwards every record onto a channel so the test can
// wait for the watcher loop instead of sleeping.
type captureHandler struct {
	slog.Handler
	entries chan logEntry
}

func (h captureHandler) Handle(ctx context.Context, r slog.Record) error {
	e := logEntry{msg: r.Message, attrs: map[string]any{}}
	r.Attrs(func(a slog.Attr) bool {
		e.attrs[a.Key] = a.Value.Any()
		return true
	})
	h.entries <- e
	return nil
}

func floatp(f float64) *float64 { return &f }

func TestWatcherFlagsPriceChanges(t *testing.T) {
	entries := make(chan logEntry, 8)
	log := slog.New(captureHandler{
		Handler: slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelDebug}),
		entries: entries,
	})

	pub := events.NewInMemory(8)
	pub.PublishListingRefreshed(context.Background(), events.ListingRefreshed{
		Provider:   "bridge",
		ListingKey: "L1",
		OldPrice:   floatp(250000),
		NewPrice:   floatp(250000),
	})
	pub.PublishListingRefreshed(context.Background(), events.ListingRefreshed{
		Provider:   "bridge",
		ListingKey: "L2",
		OldPrice:   floatp(200000),
		NewPrice:   floatp(190000),
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w := &Watcher{Pub: pub, Log: log}
	go w.Run(ctx)

	first := waitEntry(t, entries)
	if first.msg != "listing refreshed" {
		t.Fatalf("first log = %q, want plain refresh", first.msg)
	}

	second := waitEntry(t, entries)
	if second.msg != "list price changed" {
		t.Fatalf("second log = %q, want price change", second.msg)
	}
	if got := second.attrs["listing_key"]; got != "L2" {
		t.Fatalf("listing_key = %v, want L2", got)
	}
	pct, ok := second.attrs["change_pct"].(float64)
	if !ok || math.Abs(pct-(-5.0)) > 1e-9 {
		t.Fatalf("change_pct = %v, want -5.0", second.attrs["change_pct"])
	}
}

func TestWatcherIgnoresUnknownPrices(t *testing.T) {
	entries := make(chan logEntry, 8)
	log := slog.New(captureHandler{
		Handler: slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelDebug}),
		entries: entries,
	})

	pub := events.NewInMemory(8)
	pub.PublishListingRefreshed(context.Background(), events.ListingRefreshed{
		Provider:   "mlsgrid",
		ListingKey: "L3",
		NewPrice:   floatp(410000),
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w := &Watcher{Pub: pub, Log: log}
	go w.Run(ctx)

	if got := waitEntry(t, entries).msg; got != "listing refreshed" {
		t.Fatalf("log = %q, want plain refresh when a side is unknown", got)
	}
}

func TestChangePct(t *testing.T) {
	cases := []struct {
		old, now, want float64
	}{
		{200000, 210000, 5.0},
		{300000, 299000, -0.3},
		{0, 100000, 0},
		{150000, 150000, 0},
	}
	for _, c := range cases {
		if got := changePct(c.old, c.now); math.Abs(got-c.want) > 1e-9 {
			t.Errorf("changePct(%v, %v) = %v, want %v", c.old, c.now, got, c.want)
		}
	}
}

func waitEntry(t *testing.T, ch chan logEntry) logEntry {
	t.Helper()
	select {
	case e := <-ch:
		return e
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a log entry")
		return logEntry{}
	}
}
