package source

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/Adithya-Monish-Kumar-K/IT-Newsfeed-Platform/pkg/resilience"
)

const (
	FetcherJSON   = "json_api"
	FetcherRSS    = "rss"
	FetcherStatic = "static"

	userAgent       = "Newsfeed-Platform/1.0"
	maxPayloadBytes = 10 << 20
)

// KnownFetcher reports whether kind names a transport strategy.
func KnownFetcher(kind string) bool {
	switch kind {
	case FetcherJSON, FetcherRSS, FetcherStatic:
		return true
	}
	return false
}

// DefaultFetcherKind picks the transport for an adapter kind when the
// source does not name one.
func DefaultFetcherKind(adapter string) string {
	if adapter == AdapterRSS {
		return FetcherRSS
	}
	return FetcherJSON
}

// Payload is the raw result of a fetch. JSON sources fill JSON; feed
// sources fill Feed.
type Payload struct {
	JSON json.RawMessage
	Feed *Feed
}

// FetchOptions bounds a single fetch.
type FetchOptions struct {
	Headers map[string]string
	// Timeout is the overall deadline across every attempt.
	Timeout time.Duration
	Retries int
	Backoff resilience.Backoff
}

// Fetcher retrieves the raw payload of a source.
type Fetcher interface {
	Fetch(ctx context.Context, endpoint string, opts FetchOptions) (Payload, error)
}

// FetchErrorKind classifies fetch failures.
type FetchErrorKind string

const (
	KindTimeout   FetchErrorKind = "timeout"
	KindHTTP      FetchErrorKind = "http"
	KindParse     FetchErrorKind = "parse"
	KindTransport FetchErrorKind = "transport"
)

// FetchError is the typed failure every Fetcher returns.
type FetchError struct {
	Kind     FetchErrorKind
	Status   int
	Endpoint string
	Err      error
}

func (e *FetchError) Error() string {
	if e.Kind == KindHTTP {
		return fmt.Sprintf("fetch %s: http status %d", e.Endpoint, e.Status)
	}
	return fmt.Sprintf("fetch %s: %s: %v", e.Endpoint, e.Kind, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Retryable reports whether another attempt could succeed. Client errors
// other than 429 and unparseable bodies are permanent.
func (e *FetchError) Retryable() bool {
	switch e.Kind {
	case KindTimeout, KindTransport:
		return true
	case KindHTTP:
		return e.Status >= 500 || e.Status == http.StatusTooManyRequests
	}
	return false
}

func isRetryable(err error) bool {
	var fe *FetchError
	return errors.As(err, &fe) && fe.Retryable()
}

// HTTPFetcher fetches JSON documents over HTTP GET.
type HTTPFetcher struct {
	client *http.Client
}

func NewHTTPFetcher(client *http.Client) *HTTPFetcher {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &HTTPFetcher{client: client}
}

func (f *HTTPFetcher) Fetch(ctx context.Context, endpoint string, opts FetchOptions) (Payload, error) {
	body, err := get(ctx, f.client, endpoint, "application/json", opts)
	if err != nil {
		return Payload{}, err
	}
	if !json.Valid(body) {
		return Payload{}, &FetchError{Kind: KindParse, Endpoint: endpoint, Err: errors.New("response is not valid JSON")}
	}
	return Payload{JSON: body}, nil
}

// StaticFetcher returns a fixed payload regardless of endpoint.
type StaticFetcher struct {
	Payload Payload
}

// NewStaticFetcher builds a fetcher from an arbitrary JSON-encodable value.
func NewStaticFetcher(v any) (*StaticFetcher, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encoding static payload: %w", err)
	}
	return &StaticFetcher{Payload: Payload{JSON: raw}}, nil
}

func (f *StaticFetcher) Fetch(ctx context.Context, _ string, _ FetchOptions) (Payload, error) {
	if err := ctx.Err(); err != nil {
		return Payload{}, &FetchError{Kind: KindTimeout, Endpoint: "static", Err: err}
	}
	return f.Payload, nil
}

// NewFetcher builds the transport strategy configured for a source.
func NewFetcher(cfg Config, client *http.Client) (Fetcher, error) {
	kind := cfg.Fetcher
	if kind == "" {
		kind = DefaultFetcherKind(cfg.Adapter)
	}
	switch kind {
	case FetcherJSON:
		return NewHTTPFetcher(client), nil
	case FetcherRSS:
		return NewRSSFetcher(client), nil
	case FetcherStatic:
		return NewStaticFetcher(cfg.Options["payload"])
	default:
		return nil, fmt.Errorf("unknown fetcher kind %q", kind)
	}
}

// get performs a bounded, retried GET and returns the response body.
func get(ctx context.Context, client *http.Client, endpoint, accept string, opts FetchOptions) ([]byte, error) {
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	var body []byte
	err := resilience.Retry(ctx, "fetch "+endpoint, resilience.RetryConfig{
		MaxAttempts:    opts.Retries + 1,
		InitialDelay:   opts.Backoff.Initial,
		MaxDelay:       opts.Backoff.Max,
		Multiplier:     opts.Backoff.Multiplier,
		JitterFraction: 0.1,
		Retryable:      isRetryable,
	}, func() error {
		b, err := getOnce(ctx, client, endpoint, accept, opts.Headers)
		if err != nil {
			return err
		}
		body = b
		return nil
	})
	if err == nil {
		return body, nil
	}

	var fe *FetchError
	if errors.As(err, &fe) {
		return nil, fe
	}
	return nil, &FetchError{Kind: KindTransport, Endpoint: endpoint, Err: err}
}

func getOnce(ctx context.Context, client *http.Client, endpoint, accept string, headers map[string]string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, &FetchError{Kind: KindTransport, Endpoint: endpoint, Err: err}
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", accept)
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, classifyTransport(ctx, endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, &FetchError{
			Kind:     KindHTTP,
			Status:   resp.StatusCode,
			Endpoint: endpoint,
			Err:      fmt.Errorf("unexpected status %s", resp.Status),
		}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPayloadBytes))
	if err != nil {
		return nil, classifyTransport(ctx, endpoint, err)
	}
	return body, nil
}

func classifyTransport(ctx context.Context, endpoint string, err error) *FetchError {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil || (errors.As(err, &netErr) && netErr.Timeout()) {
		return &FetchError{Kind: KindTimeout, Endpoint: endpoint, Err: err}
	}
	return &FetchError{Kind: KindTransport, Endpoint: endpoint, Err: err}
}
