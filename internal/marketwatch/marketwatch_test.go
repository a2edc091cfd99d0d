package marketwatch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/yourorg/mls-api/reso"
)

type stubStats struct {
	mu    sync.Mutex
	calls []string
	days  []int
	fn    func(city, propertyType string) (*reso.MarketStatistics, error)
}

func (s *stubStats) GetMarketStats(ctx context.Context, city, propertyType string, daysBack int) (*reso.MarketStatistics, error) {
	s.mu.Lock()
	s.calls = append(s.calls, city+"|"+propertyType)
	s.days = append(s.days, daysBack)
	s.mu.Unlock()
	return s.fn(city, propertyType)
}

func (s *stubStats) callList() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}

type logEntry struct {
	msg   string
	attrs map[string]any
}

type captureHandler struct {
	slog.Handler
	mu      *sync.Mutex
	entries *[]logEntry
}

func (h captureHandler) Handle(ctx context.Context, r slog.Record) error {
	e := logEntry{msg: r.Message, attrs: map[string]any{}}
	r.Attrs(func(a slog.Attr) bool {
		e.attrs[a.Key] = a.Value.Any()
		return true
	})
	h.mu.Lock()
	*h.entries = append(*h.entries, e)
	h.mu.Unlock()
	return nil
}

func captureLogger() (*slog.Logger, func() []logEntry) {
	var mu sync.Mutex
	var entries []logEntry
	log := slog.New(captureHandler{
		Handler: slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelDebug}),
		mu:      &mu,
		entries: &entries,
	})
	return log, func() []logEntry {
		mu.Lock()
		defer mu.Unlock()
		return append([]logEntry(nil), entries...)
	}
}

func statsFor(median float64, active, sold int) *reso.MarketStatistics {
	return &reso.MarketStatistics{
		PropertyType:    "Residential",
		MedianListPrice: median,
		ActiveListings:  active,
		SoldProperties:  sold,
	}
}

func TestRunOnceRecordsBaselineThenDeltas(t *testing.T) {
	log, entriesOf := captureLogger()
	cycle := 0
	stub := &stubStats{fn: func(city, propertyType string) (*reso.MarketStatistics, error) {
		if cycle == 0 {
			return statsFor(400000, 120, 35), nil
		}
		return statsFor(410000, 110, 40), nil
	}}
	j := &Job{
		Stats:  stub,
		Log:    log,
		Config: Config{Watches: []Watch{{City: "Austin", PropertyType: "Residential"}}},
	}

	if err := j.RunOnce(context.Background()); err != nil {
		t.Fatalf("first cycle: %v", err)
	}
	cycle++
	if err := j.RunOnce(context.Background()); err != nil {
		t.Fatalf("second cycle: %v", err)
	}

	if got := stub.days[0]; got != 90 {
		t.Fatalf("daysBack defaulted to %d, want 90", got)
	}

	entries := entriesOf()
	if len(entries) != 2 {
		t.Fatalf("got %d log entries, want 2", len(entries))
	}
	if entries[0].msg != "market baseline recorded" {
		t.Fatalf("first entry = %q", entries[0].msg)
	}
	upd := entries[1]
	if upd.msg != "market update" {
		t.Fatalf("second entry = %q", upd.msg)
	}
	pct, _ := upd.attrs["median_delta_pct"].(float64)
	if math.Abs(pct-2.5) > 1e-9 {
		t.Fatalf("median_delta_pct = %v, want 2.5", upd.attrs["median_delta_pct"])
	}
	if got, _ := upd.attrs["active_delta"].(int64); got != -10 {
		t.Fatalf("active_delta = %v, want -10", upd.attrs["active_delta"])
	}
	if got, _ := upd.attrs["sold_delta"].(int64); got != 5 {
		t.Fatalf("sold_delta = %v, want 5", upd.attrs["sold_delta"])
	}
}

func TestRunOnceJoinsPerCityErrors(t *testing.T) {
	log, _ := captureLogger()
	stub := &stubStats{fn: func(city, propertyType string) (*reso.MarketStatistics, error) {
		if city == "Nowhere" {
			return nil, errors.New("no such market")
		}
		return statsFor(300000, 50, 10), nil
	}}
	j := &Job{
		Stats: stub,
		Log:   log,
		Config: Config{Watches: []Watch{
			{City: "Nowhere"},
			{City: "Dallas"},
		}},
	}

	err := j.RunOnce(context.Background())
	if err == nil {
		t.Fatal("expected joined error")
	}
	if got := stub.callList(); len(got) != 2 || got[1] != "Dallas|" {
		t.Fatalf("calls = %v, want both cities checked", got)
	}
}

func TestRunOnceAbortsOnAuthFailure(t *testing.T) {
	log, _ := captureLogger()
	stub := &stubStats{fn: func(city, propertyType string) (*reso.MarketStatistics, error) {
		return nil, fmt.Errorf("bridge: %w", reso.ErrAuthentication)
	}}
	j := &Job{
		Stats: stub,
		Log:   log,
		Config: Config{Watches: []Watch{
			{City: "Austin"},
			{City: "Dallas"},
		}},
	}

	err := j.RunOnce(context.Background())
	if !errors.Is(err, reso.ErrAuthentication) {
		t.Fatalf("err = %v, want auth failure", err)
	}
	if got := stub.callList(); len(got) != 1 {
		t.Fatalf("calls = %v, want the cycle to stop after the first", got)
	}
}

func TestRunOnceAbortsOnRateLimit(t *testing.T) {
	log, _ := captureLogger()
	stub := &stubStats{fn: func(city, propertyType string) (*reso.MarketStatistics, error) {
		return nil, &reso.RateLimitError{Provider: "mlsgrid", RetryAfter: time.Minute}
	}}
	j := &Job{
		Stats: stub,
		Log:   log,
		Config: Config{Watches: []Watch{
			{City: "Austin"},
			{City: "Dallas"},
		}},
	}

	err := j.RunOnce(context.Background())
	var rl *reso.RateLimitError
	if !errors.As(err, &rl) {
		t.Fatalf("err = %v, want rate limit", err)
	}
	if got := stub.callList(); len(got) != 1 {
		t.Fatalf("calls = %v, want the cycle to stop after the first", got)
	}
}

func TestRunStopsCleanlyOnCancel(t *testing.T) {
	log, _ := captureLogger()
	checked := make(chan struct{}, 8)
	stub := &stubStats{fn: func(city, propertyType string) (*reso.MarketStatistics, error) {
		checked <- struct{}{}
		return statsFor(250000, 30, 5), nil
	}}
	j := &Job{
		Stats: stub,
		Log:   log,
		Config: Config{
			Watches:  []Watch{{City: "Austin"}},
			Interval: 50 * time.Millisecond,
		},
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- j.Run(ctx) }()

	<-checked // initial cycle ran
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned %v on cancel, want nil", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop after cancel")
	}
}

func TestValidateRejectsEmptyWatchList(t *testing.T) {
	j := &Job{Stats: &stubStats{fn: func(string, string) (*reso.MarketStatistics, error) {
		return statsFor(0, 0, 0), nil
	}}}
	if err := j.RunOnce(context.Background()); err == nil {
		t.Fatal("expected an error for an empty watch list")
	}
}
