package reso

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"golang.org/x/time/rate"
)

const (
	maxResponseBytes   = 8 << 20 // replication pages can run large
	maxErrorSnippet    = 512
	defaultRetryAfter  = 60 * time.Second
	maxBackoffExponent = 16
)

// executor is the single chokepoint for provider HTTP. It spaces requests
// by the provider's rate interval, applies auth headers, and classifies
// failures into the package error taxonomy. One executor serves one
// provider; distinct providers never share rate state.
type executor struct {
	provider string
	baseURL  string
	headers  map[string]string
	limiter  *rate.Limiter
	rc       *retryablehttp.Client
	log      *slog.Logger
}

func newExecutor(cfg ProviderConfig, headers map[string]string, log *slog.Logger) *executor {
	if log == nil {
		log = slog.Default()
	}

	rc := retryablehttp.NewClient()
	rc.RetryMax = cfg.MaxRetries - 1 // MaxRetries counts total attempts
	if rc.RetryMax < 0 {
		rc.RetryMax = 0
	}
	rc.HTTPClient.Timeout = cfg.Timeout
	rc.Logger = retryLogger{log: log.With("provider", cfg.Name)}
	rc.Backoff = providerBackoff
	rc.CheckRetry = providerCheckRetry
	rc.ErrorHandler = retryablehttp.PassthroughErrorHandler

	lim := rate.NewLimiter(rate.Inf, 1)
	if cfg.RateInterval > 0 {
		lim = rate.NewLimiter(rate.Every(cfg.RateInterval), 1)
	}

	e := &executor{
		provider: cfg.Name,
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		headers:  headers,
		limiter:  lim,
		rc:       rc,
		log:      log,
	}
	// Retries go back through the limiter too, so a backed-off attempt can
	// never land inside another request's interval.
	rc.PrepareRetry = func(req *http.Request) error {
		return e.limiter.Wait(req.Context())
	}
	return e
}

// do issues one rate-limited, retrying request and returns the raw body of
// a 200 response.
func (e *executor) do(ctx context.Context, method, endpoint string, params url.Values) ([]byte, error) {
	if err := e.limiter.Wait(ctx); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, err
	}

	u := e.baseURL + "/" + strings.TrimLeft(endpoint, "/")
	if len(params) > 0 {
		u += "?" + params.Encode()
	}
	req, err := retryablehttp.NewRequestWithContext(ctx, method, u, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: build request: %w", e.provider, err)
	}
	for k, v := range e.headers {
		req.Header.Set(k, v)
	}

	e.log.Debug("provider request", "provider", e.provider, "method", method, "endpoint", endpoint)

	resp, err := e.rc.Do(req)
	if err != nil {
		if resp != nil {
			resp.Body.Close()
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &RequestError{Provider: e.provider, Err: err}
	}
	defer resp.Body.Close()

	body, readErr := readBodyLimit(resp.Body, maxResponseBytes)

	switch {
	case resp.StatusCode == http.StatusOK:
		if readErr != nil {
			return nil, &RequestError{Provider: e.provider, Status: resp.StatusCode, Err: readErr}
		}
		return body, nil
	case resp.StatusCode == http.StatusUnauthorized:
		return nil, fmt.Errorf("%s: %w", e.provider, ErrAuthentication)
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, &RateLimitError{Provider: e.provider, RetryAfter: retryAfter(resp)}
	default:
		return nil, &RequestError{Provider: e.provider, Status: resp.StatusCode, Body: snippet(body)}
	}
}

// doJSON issues a request and decodes the JSON payload. Providers answer
// with either an object envelope or a bare record list.
func (e *executor) doJSON(ctx context.Context, method, endpoint string, params url.Values) (*payload, error) {
	body, err := e.do(ctx, method, endpoint, params)
	if err != nil {
		return nil, err
	}
	return decodePayload(e.provider, body)
}

// payload is one decoded provider response.
type payload struct {
	obj  map[string]any
	list []map[string]any
}

func decodePayload(provider string, body []byte) (*payload, error) {
	var v any
	if err := json.Unmarshal(body, &v); err != nil {
		return nil, fmt.Errorf("%s: %w: %v", provider, ErrResponseFormat, err)
	}
	switch t := v.(type) {
	case map[string]any:
		return &payload{obj: t}, nil
	case []any:
		list, ok := recordList(t)
		if !ok {
			return nil, fmt.Errorf("%s: %w: array of non-objects", provider, ErrResponseFormat)
		}
		return &payload{list: list}, nil
	default:
		return nil, fmt.Errorf("%s: %w: top-level %T", provider, ErrResponseFormat, v)
	}
}

// records extracts the record list behind the provider's data key. A
// response without the key is a single record; a null value under the key
// is an empty result.
func (p *payload) records(dataKey string) []map[string]any {
	if p.list != nil {
		return p.list
	}
	val, ok := p.obj[dataKey]
	if !ok {
		return []map[string]any{p.obj}
	}
	switch t := val.(type) {
	case []any:
		list, _ := recordList(t)
		return list
	case map[string]any:
		return []map[string]any{t}
	default:
		return nil
	}
}

// detail extracts a single record, unwrapping the data key when present.
func (p *payload) detail(dataKey string) map[string]any {
	if p.obj == nil {
		if len(p.list) > 0 {
			return p.list[0]
		}
		return nil
	}
	if val, ok := p.obj[dataKey]; ok {
		switch t := val.(type) {
		case map[string]any:
			return t
		case []any:
			if list, _ := recordList(t); len(list) > 0 {
				return list[0]
			}
			return nil
		}
	}
	return p.obj
}

// count reads @odata.count when the provider sent one.
func (p *payload) count() *int {
	if p.obj == nil {
		return nil
	}
	if v, ok := p.obj["@odata.count"]; ok {
		if f, ok := v.(float64); ok {
			n := int(f)
			return &n
		}
	}
	return nil
}

// nextLink reports whether the response advertises another replication page.
func (p *payload) nextLink() bool {
	if p.obj == nil {
		return false
	}
	_, ok := p.obj["@odata.nextLink"]
	return ok
}

func recordList(items []any) ([]map[string]any, bool) {
	out := make([]map[string]any, 0, len(items))
	for _, it := range items {
		m, ok := it.(map[string]any)
		if !ok {
			return nil, false
		}
		out = append(out, m)
	}
	return out, true
}

// providerBackoff waits Retry-After seconds on a 429 (60s when the header
// is absent or unreadable) and 2^attempt seconds otherwise.
func providerBackoff(_, _ time.Duration, attemptNum int, resp *http.Response) time.Duration {
	if resp != nil && resp.StatusCode == http.StatusTooManyRequests {
		return retryAfter(resp)
	}
	if attemptNum > maxBackoffExponent {
		attemptNum = maxBackoffExponent
	}
	return time.Duration(1<<uint(attemptNum)) * time.Second
}

// providerCheckRetry retries 429, 5xx and transport errors. 401 and the
// rest of the 4xx family are terminal.
func providerCheckRetry(ctx context.Context, resp *http.Response, err error) (bool, error) {
	if ctx.Err() != nil {
		return false, ctx.Err()
	}
	if err != nil {
		return true, nil
	}
	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return true, nil
	}
	return false, nil
}

func retryAfter(resp *http.Response) time.Duration {
	if s := resp.Header.Get("Retry-After"); s != "" {
		if secs, err := strconv.Atoi(strings.TrimSpace(s)); err == nil && secs > 0 {
			return time.Duration(secs) * time.Second
		}
	}
	return defaultRetryAfter
}

func readBodyLimit(r io.Reader, limit int64) ([]byte, error) {
	b, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(b)) > limit {
		return nil, errors.New("payload too large")
	}
	return b, nil
}

func snippet(b []byte) string {
	s := strings.TrimSpace(string(b))
	if len(s) > maxErrorSnippet {
		return s[:maxErrorSnippet] + "..."
	}
	return s
}

// retryLogger adapts slog to retryablehttp's leveled logger.
type retryLogger struct {
	log *slog.Logger
}

func (l retryLogger) Error(msg string, kv ...any) { l.log.Error(msg, kv...) }
func (l retryLogger) Warn(msg string, kv ...any)  { l.log.Warn(msg, kv...) }
func (l retryLogger) Info(msg string, kv ...any)  { l.log.Info(msg, kv...) }
func (l retryLogger) Debug(msg string, kv ...any) { l.log.Debug(msg, kv...) }
