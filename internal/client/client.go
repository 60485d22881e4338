// Package client implements C1, the Remote Client: HTTP requests and
// newline-delimited JSON streams against the upstream gaming service,
// grounded on the fasthttp-based transport of the reference bot's
// irisfast package, generalised with the retry, rate-limit, and streaming
// semantics §4.1 specifies.
package client

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/valyala/fasthttp"

	"github.com/park285/lichess-bot-go/internal/errs"
)

// Response is what Request returns on success.
type Response struct {
	Status int
	Body   []byte
}

// Client issues HTTP requests and opens NDJSON streams against one base URL,
// injecting a bearer credential supplied by configuration (§4.1: "the client
// does not acquire credentials itself").
type Client struct {
	baseURL string
	token   string
	http    *fasthttp.Client
	retry   retryPolicy
	limiter *rateLimiter

	defaultTimeout time.Duration
	watchdog       time.Duration
}

type Option func(*Client)

func WithTimeout(d time.Duration) Option { return func(c *Client) { c.defaultTimeout = d } }
func WithWatchdog(d time.Duration) Option { return func(c *Client) { c.watchdog = d } }
func WithMaxConnsPerHost(n int) Option {
	return func(c *Client) { c.http.MaxConnsPerHost = n }
}

func NewClient(baseURL, token string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &fasthttp.Client{ReadTimeout: 20 * time.Second, WriteTimeout: 10 * time.Second, MaxConnsPerHost: 64},
		retry:   defaultRetryPolicy(),
		limiter: newRateLimiter(),

		defaultTimeout: 15 * time.Second, // §5: every outbound request has a default 15s deadline
		watchdog:       60 * time.Second, // §4.1/§5: every stream has a 60s idle watchdog
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Request implements `request(method, path, body, idempotent) → response | error`
// (§4.1). class selects which RateBudget governs this call.
func (c *Client) Request(ctx context.Context, method, path string, body []byte, idempotent bool, class EndpointClass) (Response, error) {
	if wait := c.limiter.waitDuration(class); wait > 0 {
		if err := sleepWithContext(ctx, wait); err != nil {
			return Response{}, fmt.Errorf("%w: %w", errs.ErrCancelled, err)
		}
	}

	// Every request may be retried on transport errors; status failures are
	// retried below only for idempotent requests.
	attempts := c.retry.maxAttempts

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		resp, err := c.doOnce(ctx, method, path, body)
		if err != nil {
			// transport failure: retried for both idempotent and non-idempotent
			// requests, per §4.1 ("Non-idempotent requests ... are retried only
			// on transport errors").
			lastErr = fmt.Errorf("%w: %w", errs.ErrTransport, err)
			if attempt == attempts {
				return Response{}, lastErr
			}
			if sleepErr := sleepWithContext(ctx, c.retry.backoff(attempt)); sleepErr != nil {
				return Response{}, fmt.Errorf("%w: %w", errs.ErrCancelled, sleepErr)
			}
			continue
		}

		if resp.Status == 429 {
			retryAfter := parseRetryAfter(resp.Body)
			c.limiter.penalize(class, retryAfter)
			lastErr = fmt.Errorf("%w: status=429", errs.ErrRateLimit)
			if !idempotent || attempt == attempts {
				return Response{}, lastErr
			}
			wait := retryAfter
			if wait <= 0 {
				wait = rateLimitPenalty
			}
			if sleepErr := sleepWithContext(ctx, wait); sleepErr != nil {
				return Response{}, fmt.Errorf("%w: %w", errs.ErrCancelled, sleepErr)
			}
			continue
		}

		if resp.Status < 200 || resp.Status >= 300 {
			kindErr := classifyStatus(resp.Status, resp.Body)
			if !idempotent || attempt == attempts || !isRetryableStatus(resp.Status) {
				return Response{}, kindErr
			}
			lastErr = kindErr
			if sleepErr := sleepWithContext(ctx, c.retry.backoff(attempt)); sleepErr != nil {
				return Response{}, fmt.Errorf("%w: %w", errs.ErrCancelled, sleepErr)
			}
			continue
		}

		c.limiter.recordSuccess(class)
		return resp, nil
	}

	if lastErr == nil {
		lastErr = fmt.Errorf("%w: exhausted retries", errs.ErrTransport)
	}
	return Response{}, lastErr
}

func (c *Client) doOnce(ctx context.Context, method, path string, body []byte) (Response, error) {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer func() {
		fasthttp.ReleaseRequest(req)
		fasthttp.ReleaseResponse(resp)
	}()

	req.Header.SetMethod(method)
	req.SetRequestURI(c.baseURL + path)
	req.Header.Set("Authorization", "Bearer "+c.token)
	if body != nil {
		req.Header.SetContentType("application/json")
		req.SetBody(body)
	}

	deadline := c.computeDeadline(ctx)
	if err := c.http.DoDeadline(req, resp, deadline); err != nil {
		return Response{}, err
	}

	out := Response{Status: resp.StatusCode(), Body: append([]byte(nil), resp.Body()...)}
	return out, nil
}

func (c *Client) computeDeadline(ctx context.Context) time.Time {
	clientDL := time.Now().Add(c.defaultTimeout)
	if dl, ok := ctx.Deadline(); ok && dl.Before(clientDL) {
		return dl
	}
	return clientDL
}

func classifyStatus(status int, body []byte) error {
	msg := truncate(string(body), 512)
	switch {
	case status == 401 || status == 403:
		return fmt.Errorf("%w: status=%d body=%s", errs.ErrUnauthorized, status, msg)
	case status == 404:
		return fmt.Errorf("%w: status=%d body=%s", errs.ErrNotFound, status, msg)
	case status == 409:
		return fmt.Errorf("%w: status=%d body=%s", errs.ErrConflict, status, msg)
	case status >= 500:
		return fmt.Errorf("%w: status=%d body=%s", errs.ErrServer, status, msg)
	default:
		return fmt.Errorf("%w: status=%d body=%s", errs.ErrProtocol, status, msg)
	}
}

// parseRetryAfter parses a lichess-style JSON body {"retryAfter": <seconds>}
// as well as a plain-integer body; returns 0 if absent or unparsable, in
// which case the caller applies the fixed 60s penalty (§4.1).
func parseRetryAfter(body []byte) time.Duration {
	s := strings.TrimSpace(string(body))
	if s == "" {
		return 0
	}
	if idx := strings.Index(s, `"retryAfter"`); idx >= 0 {
		rest := s[idx+len(`"retryAfter"`):]
		rest = strings.TrimLeft(rest, ": ")
		var digits strings.Builder
		for _, r := range rest {
			if r < '0' || r > '9' {
				break
			}
			digits.WriteRune(r)
		}
		if digits.Len() > 0 {
			if n, err := strconv.Atoi(digits.String()); err == nil {
				return time.Duration(n) * time.Second
			}
		}
	}
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return time.Duration(n) * time.Second
	}
	return 0
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
