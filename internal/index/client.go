package index

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/cenk/backoff"
	"github.com/rs/dnscache"
	circuit "github.com/rubyist/circuitbreaker"
)

// Client is the HTTP client shared by index fetches and archive
// downloads. Transient failures are retried with exponential backoff; a
// 4xx response fails fast. Downloads additionally pass through a per-host
// circuit breaker so a dead mirror trips quickly instead of burning the
// full retry budget on every artifact.
type Client struct {
	http       *http.Client
	userAgent  string
	maxRetries int

	mu       sync.Mutex
	breakers map[string]*circuit.Breaker
}

// ClientOptions tunes a Client. Zero values fall back to defaults.
type ClientOptions struct {
	Timeout    time.Duration
	MaxRetries int
}

// NewClient builds a Client with a DNS-caching dialer.
func NewClient(opts ClientOptions) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 3
	}

	resolver := &dnscache.Resolver{}
	dialer := &net.Dialer{
		Timeout:   10 * time.Second,
		KeepAlive: 30 * time.Second,
	}

	return &Client{
		http: &http.Client{
			Timeout: opts.Timeout,
			Transport: &http.Transport{
				DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
					host, port, err := net.SplitHostPort(addr)
					if err != nil {
						return nil, err
					}
					ips, err := resolver.LookupHost(ctx, host)
					if err != nil {
						return nil, err
					}
					for _, ip := range ips {
						conn, err := dialer.DialContext(ctx, network, net.JoinHostPort(ip, port))
						if err == nil {
							return conn, nil
						}
					}
					return nil, fmt.Errorf("no resolved address for %s was dialable", host)
				},
				MaxIdleConns:        10,
				IdleConnTimeout:     90 * time.Second,
				TLSHandshakeTimeout: 10 * time.Second,
			},
		},
		userAgent:  "pyforge/1.0",
		maxRetries: opts.MaxRetries,
		breakers:   make(map[string]*circuit.Breaker),
	}
}

// GetJSON fetches rawURL and decodes the response body into v. Transport
// and 5xx failures are retried up to the configured attempt budget; 4xx
// responses and undecodable payloads are terminal.
func (c *Client) GetJSON(ctx context.Context, rawURL string, v any) error {
	return c.withRetry(ctx, rawURL, func() error {
		body, err := c.get(ctx, rawURL)
		if err != nil {
			return err
		}
		defer body.Close()

		if err := json.NewDecoder(body).Decode(v); err != nil {
			return &RemoteFormatError{URL: rawURL, Err: err}
		}
		return nil
	})
}

// Download streams rawURL into w, retrying transient failures. A retried
// attempt resets the sink first so a partial body from a failed attempt
// never ends up in front of the retried bytes. The per-host circuit
// breaker short-circuits once a host has failed repeatedly within this
// invocation.
func (c *Client) Download(ctx context.Context, rawURL string, w io.Writer) error {
	breaker := c.breakerFor(rawURL)
	if !breaker.Ready() {
		return &NetworkError{URL: rawURL, Err: errors.New("circuit breaker open for host")}
	}

	var written int64
	return breaker.Call(func() error {
		return c.withRetry(ctx, rawURL, func() error {
			if written > 0 {
				if err := resetSink(w); err != nil {
					return err
				}
				written = 0
			}

			body, err := c.get(ctx, rawURL)
			if err != nil {
				return err
			}
			defer body.Close()

			n, err := io.Copy(w, body)
			written += n
			if err != nil {
				return &NetworkError{URL: rawURL, Err: err}
			}
			return nil
		})
	}, 0)
}

// resetSink rewinds a download sink to empty. A sink that cannot be
// reset makes a dirty retry unsafe, so the retry is refused instead.
func resetSink(w io.Writer) error {
	switch sink := w.(type) {
	case interface {
		io.Seeker
		Truncate(size int64) error
	}:
		if _, err := sink.Seek(0, io.SeekStart); err != nil {
			return fmt.Errorf("rewind download sink: %w", err)
		}
		if err := sink.Truncate(0); err != nil {
			return fmt.Errorf("truncate download sink: %w", err)
		}
		return nil
	case interface{ Reset() }:
		sink.Reset()
		return nil
	default:
		return errors.New("download sink holds partial data and cannot be reset")
	}
}

// withRetry runs attempt with a bounded exponential backoff schedule.
// Only NetworkError is retryable; everything else surfaces immediately.
func (c *Client) withRetry(ctx context.Context, rawURL string, attempt func() error) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 500 * time.Millisecond
	bo.MaxInterval = 10 * time.Second
	bo.Reset()

	var lastErr error
	for i := 0; i < c.maxRetries; i++ {
		if i > 0 {
			select {
			case <-ctx.Done():
				return &NetworkError{URL: rawURL, Err: ctx.Err()}
			case <-time.After(bo.NextBackOff()):
			}
		}

		err := attempt()
		if err == nil {
			return nil
		}

		var netErr *NetworkError
		if !errors.As(err, &netErr) {
			return err
		}
		lastErr = err
	}
	return lastErr
}

func (c *Client) get(ctx context.Context, rawURL string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "*/*")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &NetworkError{URL: rawURL, Err: err}
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return resp.Body, nil
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		_ = resp.Body.Close()
		return nil, &NetworkError{URL: rawURL, Err: &HTTPError{StatusCode: resp.StatusCode, URL: rawURL}}
	default:
		_ = resp.Body.Close()
		return nil, &HTTPError{StatusCode: resp.StatusCode, URL: rawURL}
	}
}

func (c *Client) breakerFor(rawURL string) *circuit.Breaker {
	host := rawURL
	if parsed, err := url.Parse(rawURL); err == nil && parsed.Host != "" {
		host = parsed.Host
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	breaker, ok := c.breakers[host]
	if !ok {
		breaker = circuit.NewBreakerWithOptions(&circuit.Options{
			ShouldTrip: circuit.ThresholdTripFunc(5),
		})
		c.breakers[host] = breaker
	}
	return breaker
}
