package reso

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig(baseURL string) ProviderConfig {
	return ProviderConfig{
		Name:         "test",
		BaseURL:      baseURL,
		RateInterval: time.Nanosecond,
		Timeout:      5 * time.Second,
		MaxRetries:   3,
	}
}

func TestRequestSpacing(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	cfg := testConfig(srv.URL)
	cfg.RateInterval = 100 * time.Millisecond
	e := newExecutor(cfg, nil, testLogger())

	start := time.Now()
	for i := 0; i < 3; i++ {
		if _, err := e.do(context.Background(), http.MethodGet, "Property", nil); err != nil {
			t.Fatalf("request %d: %v", i, err)
		}
	}
	if elapsed := time.Since(start); elapsed < 190*time.Millisecond {
		t.Fatalf("three requests finished in %s, want two full intervals", elapsed)
	}
	if n := hits.Load(); n != 3 {
		t.Fatalf("server saw %d requests, want 3", n)
	}
}

func TestHeadersApplied(t *testing.T) {
	var auth, accept string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		accept = r.Header.Get("Accept")
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	headers := map[string]string{
		"Authorization": "Bearer sk-test",
		"Accept":        "application/json",
	}
	e := newExecutor(testConfig(srv.URL), headers, testLogger())
	if _, err := e.do(context.Background(), http.MethodGet, "Property", nil); err != nil {
		t.Fatalf("do: %v", err)
	}
	if auth != "Bearer sk-test" {
		t.Errorf("Authorization = %q", auth)
	}
	if accept != "application/json" {
		t.Errorf("Accept = %q", accept)
	}
}

func TestRetryAfterHonored(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte(`{"value":[]}`))
	}))
	defer srv.Close()

	e := newExecutor(testConfig(srv.URL), nil, testLogger())
	start := time.Now()
	body, err := e.do(context.Background(), http.MethodGet, "Property", nil)
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	if elapsed := time.Since(start); elapsed < time.Second {
		t.Fatalf("throttled request completed in %s, want at least Retry-After", elapsed)
	}
	if n := hits.Load(); n != 2 {
		t.Fatalf("server saw %d requests, want 2", n)
	}
	if string(body) != `{"value":[]}` {
		t.Fatalf("body = %q", body)
	}
}

func TestRateLimitSurfacedAfterExhaustion(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Retry-After", "1")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	cfg := testConfig(srv.URL)
	cfg.MaxRetries = 2
	e := newExecutor(cfg, nil, testLogger())

	_, err := e.do(context.Background(), http.MethodGet, "Property", nil)
	var rle *RateLimitError
	if !errors.As(err, &rle) {
		t.Fatalf("err = %v, want RateLimitError", err)
	}
	if rle.RetryAfter != time.Second {
		t.Errorf("RetryAfter = %s", rle.RetryAfter)
	}
	if n := hits.Load(); n != 2 {
		t.Fatalf("server saw %d requests, want 2 attempts", n)
	}
}

func TestUnauthorizedNeverRetried(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	e := newExecutor(testConfig(srv.URL), nil, testLogger())
	_, err := e.do(context.Background(), http.MethodGet, "Property", nil)
	if !errors.Is(err, ErrAuthentication) {
		t.Fatalf("err = %v, want ErrAuthentication", err)
	}
	if n := hits.Load(); n != 1 {
		t.Fatalf("401 was retried: %d attempts", n)
	}
}

func TestServerErrorRetriesThenSurfaces(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		http.Error(w, "upstream exploded", http.StatusBadGateway)
	}))
	defer srv.Close()

	cfg := testConfig(srv.URL)
	cfg.MaxRetries = 2
	e := newExecutor(cfg, nil, testLogger())

	_, err := e.do(context.Background(), http.MethodGet, "Property", nil)
	var reqErr *RequestError
	if !errors.As(err, &reqErr) {
		t.Fatalf("err = %v, want RequestError", err)
	}
	if reqErr.Status != http.StatusBadGateway {
		t.Errorf("Status = %d", reqErr.Status)
	}
	if !strings.Contains(reqErr.Body, "upstream exploded") {
		t.Errorf("Body = %q, want last response body", reqErr.Body)
	}
	if n := hits.Load(); n != 2 {
		t.Fatalf("server saw %d requests, want 2 attempts", n)
	}
}

func TestTransportErrorWrapped(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	cfg := testConfig(url)
	cfg.MaxRetries = 1
	e := newExecutor(cfg, nil, testLogger())

	_, err := e.do(context.Background(), http.MethodGet, "Property", nil)
	var reqErr *RequestError
	if !errors.As(err, &reqErr) {
		t.Fatalf("err = %v, want RequestError", err)
	}
	if reqErr.Status != 0 {
		t.Errorf("Status = %d, want 0 for transport failure", reqErr.Status)
	}
	if reqErr.Unwrap() == nil {
		t.Error("transport error not wrapped")
	}
}

func TestMalformedJSONNotRetried(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Write([]byte("<html>oops</html>"))
	}))
	defer srv.Close()

	e := newExecutor(testConfig(srv.URL), nil, testLogger())
	_, err := e.doJSON(context.Background(), http.MethodGet, "Property", nil)
	if !errors.Is(err, ErrResponseFormat) {
		t.Fatalf("err = %v, want ErrResponseFormat", err)
	}
	if n := hits.Load(); n != 1 {
		t.Fatalf("format error was retried: %d attempts", n)
	}
}

func TestCancellationAbortsRetries(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	cfg := testConfig(srv.URL)
	cfg.MaxRetries = 5
	e := newExecutor(cfg, nil, testLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	_, err := e.do(ctx, http.MethodGet, "Property", nil)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want DeadlineExceeded", err)
	}
	if n := hits.Load(); n != 1 {
		t.Fatalf("requests issued after cancellation: %d", n)
	}
}

func TestPayloadEnvelopes(t *testing.T) {
	cases := []struct {
		name    string
		body    string
		dataKey string
		records int
		count   *int
		next    bool
	}{
		{
			name:    "odata envelope",
			body:    `{"@odata.count": 42, "value": [{"ListingKey":"a"},{"ListingKey":"b"}]}`,
			dataKey: "value",
			records: 2,
			count:   intp(42),
		},
		{
			name:    "replication page",
			body:    `{"value": [{"ListingKey":"a"}], "@odata.nextLink": "https://api/next"}`,
			dataKey: "value",
			records: 1,
			next:    true,
		},
		{
			name:    "bare list",
			body:    `[{"id":"1"},{"id":"2"},{"id":"3"}]`,
			dataKey: "data",
			records: 3,
		},
		{
			name:    "missing key means single record",
			body:    `{"id":"1","price":100}`,
			dataKey: "data",
			records: 1,
		},
		{
			name:    "null data is empty",
			body:    `{"data": null}`,
			dataKey: "data",
			records: 0,
		},
		{
			name:    "object under key",
			body:    `{"data": {"id":"1"}}`,
			dataKey: "data",
			records: 1,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p, err := decodePayload("test", []byte(tc.body))
			if err != nil {
				t.Fatalf("decode: %v", err)
			}
			if got := len(p.records(tc.dataKey)); got != tc.records {
				t.Errorf("records = %d, want %d", got, tc.records)
			}
			switch {
			case tc.count == nil && p.count() != nil:
				t.Errorf("count = %d, want none", *p.count())
			case tc.count != nil && (p.count() == nil || *p.count() != *tc.count):
				t.Errorf("count = %v, want %d", p.count(), *tc.count)
			}
			if p.nextLink() != tc.next {
				t.Errorf("nextLink = %v, want %v", p.nextLink(), tc.next)
			}
		})
	}
}

func TestPayloadDetailUnwraps(t *testing.T) {
	p, err := decodePayload("test", []byte(`{"data": {"id": "9"}}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	rec := p.detail("data")
	if rec == nil || rec["id"] != "9" {
		t.Fatalf("detail = %v", rec)
	}
}

func intp(n int) *int { return &n }
