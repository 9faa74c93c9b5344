// Package restclient implements the RestClient of spec.md §4.1: a thin,
// retrying HTTP client to the managed search service. It plays the role the
// reference implementation's internal/embeddings.Client plays for Ollama,
// and the role original_source/enhanced_rag/azure_integration/rest/client.py's
// AzureSearchClient plays for Azure AI Search — retried via
// github.com/cenkalti/backoff/v5 instead of Python's tenacity.
package restclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/henryperkins/mcprag-sub001/internal/errs"
)

const defaultAPIVersion = "2025-05-01-preview"

// Config configures a Client.
type Config struct {
	Endpoint       string
	APIKey         string
	APIVersion     string
	Timeout        time.Duration
	RetryAttempts  int
	RetryBaseDelay time.Duration
}

// Client is a small HTTP client bound to one managed search service
// endpoint, with retry and sanitized error logging.
type Client struct {
	endpoint   string
	apiKey     string
	apiVersion string
	http       *http.Client
	attempts   int
	baseDelay  time.Duration
}

// New constructs a Client. It does not itself enforce concurrency bounds;
// callers compose it with internal/ratelimit.Limiter for that.
func New(cfg Config) (*Client, error) {
	if cfg.Endpoint == "" {
		return nil, errs.New(errs.KindConfig, "missing endpoint")
	}
	if cfg.APIKey == "" {
		return nil, errs.New(errs.KindConfig, "missing api key")
	}
	version := cfg.APIVersion
	if version == "" {
		version = defaultAPIVersion
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	attempts := cfg.RetryAttempts
	if attempts == 0 {
		attempts = 3
	}
	baseDelay := cfg.RetryBaseDelay
	if baseDelay == 0 {
		baseDelay = time.Second
	}

	return &Client{
		endpoint:   cfg.Endpoint,
		apiKey:     cfg.APIKey,
		apiVersion: version,
		http: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 20,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		attempts:  attempts,
		baseDelay: baseDelay,
	}, nil
}

// retryableStatus mirrors spec.md §4.1: retry network errors and 429/500/502/503/504.
func retryableStatus(status int) bool {
	switch status {
	case http.StatusTooManyRequests, http.StatusInternalServerError,
		http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}

// isDocumentsPost reports whether method/path is the bulk document-index
// POST (/indexes/{name}/docs/index). Per spec.md §4.1, "the client must not
// retry POST to the documents endpoint" — the batch's own @search.action
// keys are what make re-sending it safe, not blind client-side retry, and a
// retried POST after a response the caller already partially observed could
// double-apply non-idempotent actions like delete.
func isDocumentsPost(method, path string) bool {
	return method == http.MethodPost && strings.HasSuffix(path, "/docs/index")
}

// Request performs method against path with query params and an optional
// JSON body, retrying idempotent failures per spec.md §4.1. The response
// body is decoded into out if non-nil; a 204 leaves out untouched.
func (c *Client) Request(ctx context.Context, method, path string, query url.Values, body, out any) error {
	if query == nil {
		query = url.Values{}
	}
	query.Set("api-version", c.apiVersion)

	u := c.endpoint + path + "?" + query.Encode()
	noRetry := isDocumentsPost(method, path)

	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return errs.Wrap(errs.KindValidation, "failed to encode request body", err)
		}
	}

	op := func() (*http.Response, error) {
		var reader io.Reader
		if payload != nil {
			reader = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, u, reader)
		if err != nil {
			return nil, backoff.Permanent(err)
		}
		req.Header.Set("api-key", c.apiKey)
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			if noRetry {
				return nil, backoff.Permanent(err)
			}
			return nil, err // retried: network error
		}
		if retryableStatus(resp.StatusCode) {
			resp.Body.Close()
			statusErr := fmt.Errorf("retryable status %d", resp.StatusCode)
			if noRetry {
				return nil, backoff.Permanent(statusErr)
			}
			return nil, statusErr
		}
		return resp, nil
	}

	attempts := c.attempts
	if noRetry {
		attempts = 1
	}
	resp, err := backoff.Retry(ctx, op,
		backoff.WithMaxTries(uint(attempts)),
		backoff.WithBackOff(backoff.NewExponentialBackOff(func(b *backoff.ExponentialBackOff) {
			b.InitialInterval = c.baseDelay
			b.Multiplier = 2
			b.MaxInterval = c.baseDelay * 4
		})),
	)
	if err != nil {
		log.Printf("restclient: %s %s failed after retries", method, path)
		return errs.Wrap(errs.KindRequest, "request failed after retries", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		log.Printf("restclient: %s %s -> status %d", method, path, resp.StatusCode)
		return errs.HTTPStatus(method, path, resp.StatusCode, nil)
	}

	if resp.StatusCode == http.StatusNoContent || out == nil {
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errs.Wrap(errs.KindRequest, "failed to decode response", err)
	}
	return nil
}

// Close releases the underlying connection pool, per spec.md §5's
// "closed explicitly on shutdown (cleanup)".
func (c *Client) Close() {
	c.http.CloseIdleConnections()
}
