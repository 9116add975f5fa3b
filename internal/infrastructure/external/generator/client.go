// Package generator implements the HTTP client of the external exercise
// generator service. The generation algorithm lives in that service; this
// client only requests batches and validates what comes back.
package generator

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/sharpmind/trainer-hub/internal/domain/training"
	"github.com/sharpmind/trainer-hub/pkg/circuitbreaker"
	"github.com/sharpmind/trainer-hub/pkg/retry"
)

// ══════════════════════════════════════════════════════════════════════════════
// CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// ClientConfig contains configuration for the generator client.
type ClientConfig struct {
	// BaseURL is the generator base URL, e.g. http://generator:8081.
	BaseURL string

	// APIKey is sent as a bearer token when set.
	APIKey string

	// Timeout bounds a single HTTP attempt.
	Timeout time.Duration

	RateLimiterConfig RateLimiterConfig

	// Retrier and Breaker default to retry.GeneratorRetrier and
	// circuitbreaker.GeneratorBreaker.
	Retrier *retry.Retrier
	Breaker *circuitbreaker.CircuitBreaker

	Logger *slog.Logger
	Debug  bool
}

// DefaultClientConfig returns sensible defaults.
func DefaultClientConfig(baseURL string) ClientConfig {
	return ClientConfig{
		BaseURL:           baseURL,
		Timeout:           10 * time.Second,
		RateLimiterConfig: DefaultRateLimiterConfig(),
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// CLIENT
// ══════════════════════════════════════════════════════════════════════════════

// Client implements training.ExerciseGenerator over HTTP.
type Client struct {
	config      ClientConfig
	httpClient  *http.Client
	logger      *slog.Logger
	rateLimiter *RateLimiter
	retrier     *retry.Retrier
	breaker     *circuitbreaker.CircuitBreaker
}

// NewClient creates a new generator client.
func NewClient(config ClientConfig) *Client {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	logger := config.Logger.With("component", "generator_client")

	if config.Retrier == nil {
		config.Retrier = retry.GeneratorRetrier()
	}
	if config.Breaker == nil {
		config.Breaker = circuitbreaker.GeneratorBreaker(func(name string, from, to circuitbreaker.State) {
			logger.Warn("circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
		}, circuitbreaker.WithIsFailure(isOutage))
	}

	return &Client{
		config:      config,
		httpClient:  &http.Client{Timeout: config.Timeout},
		logger:      logger,
		rateLimiter: NewRateLimiter(config.RateLimiterConfig),
		retrier:     config.Retrier,
		breaker:     config.Breaker,
	}
}

// Generate requests a batch of exercises.
func (c *Client) Generate(ctx context.Context, req training.GenerateRequest) (*training.GeneratedBatch, error) {
	if req.Count <= 0 {
		return nil, fmt.Errorf("generate: count must be positive, got %d", req.Count)
	}

	var dto BatchResponseDTO
	err := c.breaker.Execute(ctx, func(ctx context.Context) error {
		return c.retrier.Do(ctx, func(ctx context.Context) error {
			return c.doRequest(ctx, http.MethodPost, "/v1/exercises/batch", requestToDTO(req), &dto)
		})
	})
	if err != nil {
		return nil, fmt.Errorf("generate %s/%s: %w", req.Curriculum, req.Level, err)
	}

	batch, err := batchFromDTO(dto)
	if err != nil {
		return nil, fmt.Errorf("generate %s/%s: %w", req.Curriculum, req.Level, err)
	}
	if len(batch.Exercises) < req.Count {
		c.logger.Warn("generator returned a short batch",
			"curriculum", req.Curriculum,
			"level", req.Level,
			"requested", req.Count,
			"received", len(batch.Exercises),
		)
	}
	return batch, nil
}

// IsHealthy checks if the generator is reachable.
func (c *Client) IsHealthy(ctx context.Context) bool {
	return c.doRequest(ctx, http.MethodGet, "/health", nil, nil) == nil
}

// BreakerState reports the circuit breaker state.
func (c *Client) BreakerState() circuitbreaker.State {
	return c.breaker.State()
}

// ══════════════════════════════════════════════════════════════════════════════
// HTTP REQUEST HELPERS
// ══════════════════════════════════════════════════════════════════════════════

// doRequest performs a single attempt. Transient failures come back wrapped
// with retry.Retryable.
func (c *Client) doRequest(ctx context.Context, method, path string, body, result interface{}) error {
	if err := c.rateLimiter.Allow(ctx); err != nil {
		return err
	}

	var bodyReader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return retry.Permanent(fmt.Errorf("marshal body: %w", err))
		}
		bodyReader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, strings.TrimRight(c.config.BaseURL, "/")+path, bodyReader)
	if err != nil {
		return retry.Permanent(fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	}

	if c.config.Debug {
		c.logger.Debug("generator request", "method", method, "path", path)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return classifyTransportError(err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return retry.Retryable(fmt.Errorf("read response: %w", err))
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		c.rateLimiter.Drain()
		retryAfter := time.Second
		if s, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil {
			retryAfter = time.Duration(s) * time.Second
		}
		return retry.Retryable(&RateLimitError{RetryAfter: retryAfter, Message: "generator rate limit exceeded"})
	}

	if resp.StatusCode >= 400 {
		apiErr := &APIErrorDTO{Status: resp.StatusCode}
		if err := json.Unmarshal(respBody, apiErr); err != nil || apiErr.Message == "" {
			apiErr.Message = http.StatusText(resp.StatusCode)
		}
		if resp.StatusCode >= 500 {
			return retry.Retryable(apiErr)
		}
		return apiErr
	}

	if result != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("unmarshal response: %w", err)
		}
	}
	return nil
}

// isOutage keeps client errors (4xx other than 429) and cancellations from
// opening the circuit.
func isOutage(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	var apiErr *APIErrorDTO
	if errors.As(err, &apiErr) {
		return apiErr.Status >= 500
	}
	return true
}

func classifyTransportError(err error) error {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return retry.Retryable(fmt.Errorf("http request: %w", err))
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return retry.Retryable(fmt.Errorf("http request: %w", err))
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return retry.Retryable(fmt.Errorf("http request: %w", err))
	}
	return fmt.Errorf("http request: %w", err)
}
