package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"oracle-router/oracle/types"
)

const (
	defaultSessionTimeout  = 10 * time.Second
	defaultMaxConnsPerHost = 100
	defaultMaxIdleConns    = 50
	defaultIdleConnTimeout = 90 * time.Second

	// maxErrorBody bounds how much of an upstream error body is kept for
	// error details and logs.
	maxErrorBody = 256
)

type (
	// SessionConfig tunes the shared outbound HTTP client.
	SessionConfig struct {
		Timeout         time.Duration
		MaxConnsPerHost int
		MaxIdleConns    int
		IdleConnTimeout time.Duration
		APIKey          string
		UserAgent       string
		Retry           RetryConfig
		RateLimit       RateLimitConfig

		// Headers are set on every outbound request, e.g. the attribution
		// headers OpenRouter expects.
		Headers map[string]string

		// OnMetric, when set, receives one RequestMetric per logical call.
		OnMetric func(RequestMetric)
	}

	// Session is the long-lived connection-pooled HTTP client shared by the
	// provider adapters. Calls go through the per-host rate limiter and the
	// retry schedule; every logical call emits a RequestMetric.
	Session struct {
		client  *http.Client
		cfg     SessionConfig
		limiter *HostLimiter
		logger  zerolog.Logger
	}

	// RequestMetric captures the observable outcome of one logical call,
	// retries included.
	RequestMetric struct {
		ID      string
		Host    string
		Method  string
		Start   time.Time
		End     time.Time
		Status  int
		Size    int64
		Retries int
		Err     error
	}
)

// preventRedirect avoid any redirect in the http.Client the request call
// will not return an error, but a valid response with redirect response code.
func preventRedirect(_ *http.Request, _ []*http.Request) error {
	return http.ErrUseLastResponse
}

func NewSession(cfg SessionConfig, logger zerolog.Logger) *Session {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultSessionTimeout
	}
	if cfg.MaxConnsPerHost <= 0 {
		cfg.MaxConnsPerHost = defaultMaxConnsPerHost
	}
	if cfg.MaxIdleConns <= 0 {
		cfg.MaxIdleConns = defaultMaxIdleConns
	}
	if cfg.IdleConnTimeout <= 0 {
		cfg.IdleConnTimeout = defaultIdleConnTimeout
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = DefaultRetryConfig()
	}

	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   5 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        cfg.MaxIdleConns,
		MaxIdleConnsPerHost: cfg.MaxConnsPerHost,
		IdleConnTimeout:     cfg.IdleConnTimeout,
		TLSHandshakeTimeout: 10 * time.Second,
		ForceAttemptHTTP2:   true,
	}

	return &Session{
		client: &http.Client{
			Timeout:       cfg.Timeout,
			Transport:     transport,
			CheckRedirect: preventRedirect,
		},
		cfg:     cfg,
		limiter: NewHostLimiter(cfg.RateLimit),
		logger:  logger.With().Str("module", "transport").Logger(),
	}
}

// Limiter exposes the per-host rate limiter so callers can check embargoes.
func (s *Session) Limiter() *HostLimiter {
	return s.limiter
}

// Get fetches rawURL and returns the response body.
func (s *Session) Get(ctx context.Context, rawURL string) ([]byte, error) {
	return s.roundTrip(ctx, http.MethodGet, rawURL, nil)
}

// GetJSON fetches rawURL and unmarshals the response body into out.
func (s *Session) GetJSON(ctx context.Context, rawURL string, out any) error {
	body, err := s.Get(ctx, rawURL)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return types.Errorf(types.KindDataIntegrity, "malformed response body: %s", err)
	}
	return nil
}

// PostJSON sends payload as JSON and unmarshals the response into out when
// out is non-nil.
func (s *Session) PostJSON(ctx context.Context, rawURL string, payload, out any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return types.Errorf(types.KindValidation, "unencodable payload: %s", err)
	}

	body, err := s.roundTrip(ctx, http.MethodPost, rawURL, raw)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return types.Errorf(types.KindDataIntegrity, "malformed response body: %s", err)
	}
	return nil
}

func (s *Session) roundTrip(ctx context.Context, method, rawURL string, payload []byte) ([]byte, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, types.Errorf(types.KindValidation, "invalid url: %s", err)
	}
	host := parsed.Host

	metric := RequestMetric{
		ID:     uuid.NewString(),
		Host:   host,
		Method: method,
		Start:  time.Now(),
	}

	var (
		body     []byte
		status   int
		attempts int
	)
	err = s.cfg.Retry.Do(ctx, func() error {
		attempts++
		var attemptErr error
		body, status, attemptErr = s.do(ctx, method, rawURL, host, payload)
		return attemptErr
	})
	err = translateContextErr(err)

	metric.End = time.Now()
	metric.Status = status
	metric.Size = int64(len(body))
	metric.Retries = attempts - 1
	metric.Err = err
	addRetries(metric.Retries)
	if s.cfg.OnMetric != nil {
		s.cfg.OnMetric(metric)
	}

	s.logger.Debug().
		Str("request_id", metric.ID).
		Str("method", method).
		Str("host", host).
		Int("status", status).
		Int("retries", metric.Retries).
		Dur("took", metric.End.Sub(metric.Start)).
		Err(err).
		Msg("outbound request")

	if err != nil {
		return nil, err
	}
	return body, nil
}

// do performs a single attempt. Transport failures and non-2xx statuses are
// translated into typed errors so the retry layer can classify them.
func (s *Session) do(ctx context.Context, method, rawURL, host string, payload []byte) ([]byte, int, error) {
	if err := s.limiter.Acquire(ctx, host, 1); err != nil {
		return nil, 0, err
	}

	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, rawURL, reader)
	if err != nil {
		return nil, 0, types.Errorf(types.KindValidation, "invalid request: %s", err)
	}

	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if s.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", s.cfg.UserAgent)
	}
	if s.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.cfg.APIKey)
	}
	for k, v := range s.cfg.Headers {
		req.Header.Set(k, v)
	}

	start := time.Now()
	resp, err := s.client.Do(req)
	if err != nil {
		observeRequest(host, 0, time.Since(start))
		return nil, 0, classifyTransportErr(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	observeRequest(host, resp.StatusCode, time.Since(start))
	if err != nil {
		return nil, resp.StatusCode, types.Errorf(types.KindNetwork, "reading response body: %s", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		retryAfter := parseRetryAfter(resp.Header.Get("Retry-After"))
		if retryAfter > 0 {
			s.limiter.SetRetryAfter(host, retryAfter)
		}
		return nil, resp.StatusCode, types.NewError(types.KindRateLimit, "upstream rate limit hit").
			WithDetail("host", host).
			WithDetail("retry_after_ms", retryAfter.Milliseconds())
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, resp.StatusCode, types.Errorf(
			types.KindFromStatus(resp.StatusCode),
			"unexpected status %d", resp.StatusCode,
		).WithDetail("body", truncate(body, maxErrorBody))
	}

	return body, resp.StatusCode, nil
}

func classifyTransportErr(err error) *types.Error {
	switch {
	case errors.Is(err, context.Canceled):
		return types.NewError(types.KindCancelled, "request cancelled")
	case errors.Is(err, context.DeadlineExceeded):
		return types.NewError(types.KindTimeout, "request deadline exceeded")
	}

	var nerr net.Error
	if errors.As(err, &nerr) && nerr.Timeout() {
		return types.Errorf(types.KindTimeout, "request timed out: %s", err)
	}
	return types.Errorf(types.KindNetwork, "connection failed: %s", err)
}

// translateContextErr maps raw context errors escaping the retry loop, e.g.
// a cancellation during a backoff sleep, into typed errors.
func translateContextErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, context.Canceled):
		return types.NewError(types.KindCancelled, "request cancelled")
	case errors.Is(err, context.DeadlineExceeded):
		return types.NewError(types.KindTimeout, "request deadline exceeded")
	}
	return err
}

func parseRetryAfter(header string) time.Duration {
	if header == "" {
		return 0
	}
	if secs, err := strconv.Atoi(header); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(header); err == nil {
		return time.Until(at)
	}
	return 0
}

func truncate(body []byte, n int) string {
	if len(body) <= n {
		return string(body)
	}
	return string(body[:n]) + "..."
}
