// Package fetcher retrieves raw feed documents over HTTP. It handles
// conditional requests, transport retries, and error classification; it never
// inspects document content.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// Result is the outcome of a successful fetch. When NotModified is set the
// upstream document has not changed and Body is empty; the returned cache
// tokens are still valid for the next fetch.
type Result struct {
	Body         []byte
	ETag         string
	LastModified string
	NotModified  bool
}

// Error is a transport-level fetch failure. Transient failures (network
// errors, 5xx, 429) are worth retrying on the next scheduled refresh;
// permanent ones (other 4xx, oversized payloads) are not.
type Error struct {
	Message   string
	Status    int
	Transient bool
	cause     error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.cause }

// IsTransient reports whether err is a fetch error eligible for retry.
func IsTransient(err error) bool {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Transient
	}
	return false
}

// Config holds fetcher configuration.
type Config struct {
	Timeout        time.Duration
	UserAgent      string
	MaxBodyBytes   int64
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

type Fetcher struct {
	httpClient     *http.Client
	userAgent      string
	maxBodyBytes   int64
	maxAttempts    int
	initialBackoff time.Duration
	maxBackoff     time.Duration
	logger         *slog.Logger
}

func New(cfg Config, logger *slog.Logger) *Fetcher {
	return &Fetcher{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		userAgent:      cfg.UserAgent,
		maxBodyBytes:   cfg.MaxBodyBytes,
		maxAttempts:    cfg.MaxAttempts,
		initialBackoff: cfg.InitialBackoff,
		maxBackoff:     cfg.MaxBackoff,
		logger:         logger.With("component", "fetcher"),
	}
}

// Fetch retrieves the document at address. The etag and lastModified tokens
// from the previous fetch may be empty; when the server answers 304 the
// result carries NotModified instead of a body. Transient failures are
// retried with capped exponential backoff.
func (f *Fetcher) Fetch(ctx context.Context, address, etag, lastModified string) (*Result, error) {
	var res *Result
	var err error

	for attempt := 1; attempt <= f.maxAttempts; attempt++ {
		res, err = f.doRequest(ctx, address, etag, lastModified)
		if err == nil {
			return res, nil
		}

		if !IsTransient(err) || attempt == f.maxAttempts {
			break
		}

		backoff := f.calculateBackoff(attempt)
		f.logger.Warn("fetch failed, retrying",
			"address", address,
			"attempt", attempt,
			"backoff", backoff,
			"error", err,
		)

		select {
		case <-ctx.Done():
			return nil, &Error{Message: "fetch cancelled", Transient: true, cause: ctx.Err()}
		case <-time.After(backoff):
		}
	}

	return nil, err
}

func (f *Fetcher) doRequest(ctx context.Context, address, etag, lastModified string) (*Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, address, nil)
	if err != nil {
		return nil, &Error{Message: "create request", Transient: false, cause: err}
	}

	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "application/rss+xml, application/atom+xml, application/xml, text/xml")
	if etag != "" {
		req.Header.Set("If-None-Match", etag)
	}
	if lastModified != "" {
		req.Header.Set("If-Modified-Since", lastModified)
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, &Error{Message: "execute request", Transient: true, cause: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotModified:
		return &Result{
			ETag:         firstNonEmpty(resp.Header.Get("ETag"), etag),
			LastModified: firstNonEmpty(resp.Header.Get("Last-Modified"), lastModified),
			NotModified:  true,
		}, nil
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		return nil, &Error{
			Message:   fmt.Sprintf("unexpected status: %d", resp.StatusCode),
			Status:    resp.StatusCode,
			Transient: true,
		}
	case resp.StatusCode != http.StatusOK:
		return nil, &Error{
			Message:   fmt.Sprintf("unexpected status: %d", resp.StatusCode),
			Status:    resp.StatusCode,
			Transient: false,
		}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBodyBytes+1))
	if err != nil {
		return nil, &Error{Message: "read body", Transient: true, cause: err}
	}
	if int64(len(body)) > f.maxBodyBytes {
		return nil, &Error{
			Message:   fmt.Sprintf("response exceeds %d bytes", f.maxBodyBytes),
			Transient: false,
		}
	}

	return &Result{
		Body:         body,
		ETag:         resp.Header.Get("ETag"),
		LastModified: resp.Header.Get("Last-Modified"),
	}, nil
}

func (f *Fetcher) calculateBackoff(attempt int) time.Duration {
	backoff := f.initialBackoff
	for i := 1; i < attempt; i++ {
		backoff *= 2
	}
	if backoff > f.maxBackoff {
		backoff = f.maxBackoff
	}
	return backoff
}

func firstNonEmpty(a, b string) string {
	if a != "" {
		return a
	}
	return b
}
