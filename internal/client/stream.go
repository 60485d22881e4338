package client

import (
	"bufio"
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/valyala/fasthttp"

	"github.com/park285/lichess-bot-go/internal/errs"
)

// Frame is one line of a newline-delimited JSON stream. Err is set only on
// the terminal frame the consumer receives before the channel closes.
type Frame struct {
	Data []byte
	Err  error
}

// Stream is a cancellable sequence of frames (§9 Design Notes: "model as a
// cancellable sequence of frames"). Streams are logically infinite; on
// mid-stream transport failure the Stream surfaces a terminal error frame
// and closes — reconnection is left to the consumer (§4.1).
type Stream struct {
	Frames <-chan Frame

	cancel    context.CancelFunc
	closeOnce sync.Once
}

// Close implements `close(stream)` (§4.1).
func (s *Stream) Close() {
	s.closeOnce.Do(s.cancel)
}

// OpenStream implements `openStream(path) → sequence-of-frames | error`
// (§4.1). Grounded on the reference client's fasthttp transport, generalised
// to consume the response body as an unbounded stream via
// resp.StreamBody + bufio.Scanner rather than buffering it whole.
func (c *Client) OpenStream(ctx context.Context, path string, class EndpointClass) (*Stream, error) {
	if wait := c.limiter.waitDuration(class); wait > 0 {
		if err := sleepWithContext(ctx, wait); err != nil {
			return nil, fmt.Errorf("%w: %w", errs.ErrCancelled, err)
		}
	}

	req := fasthttp.AcquireRequest()
	req.Header.SetMethod(fasthttp.MethodGet)
	req.SetRequestURI(c.baseURL + path)
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp := fasthttp.AcquireResponse()
	resp.StreamBody = true

	if err := c.http.Do(req, resp); err != nil {
		fasthttp.ReleaseRequest(req)
		fasthttp.ReleaseResponse(resp)
		return nil, fmt.Errorf("%w: %w", errs.ErrTransport, err)
	}

	if resp.StatusCode() == 429 {
		retryAfter := parseRetryAfter(resp.Body())
		c.limiter.penalize(class, retryAfter)
		fasthttp.ReleaseRequest(req)
		fasthttp.ReleaseResponse(resp)
		return nil, fmt.Errorf("%w: status=429", errs.ErrRateLimit)
	}
	if resp.StatusCode() < 200 || resp.StatusCode() >= 300 {
		err := classifyStatus(resp.StatusCode(), resp.Body())
		fasthttp.ReleaseRequest(req)
		fasthttp.ReleaseResponse(resp)
		return nil, err
	}

	streamCtx, cancel := context.WithCancel(ctx)
	frames := make(chan Frame, 16)
	s := &Stream{Frames: frames, cancel: cancel}

	go c.pump(streamCtx, req, resp, frames)

	return s, nil
}

// pump reads NDJSON lines off resp's body stream until cancellation, a read
// error, or watchdog expiry, and always emits exactly one terminal frame
// before closing the channel.
func (c *Client) pump(ctx context.Context, req *fasthttp.Request, resp *fasthttp.Response, frames chan<- Frame) {
	defer close(frames)
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	bodyStream := resp.BodyStream()
	scanner := bufio.NewScanner(bodyStream)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)

	type lineResult struct {
		line []byte
		ok   bool
		err  error
	}
	lines := make(chan lineResult, 1)

	readNext := func() {
		go func() {
			if scanner.Scan() {
				b := append([]byte(nil), scanner.Bytes()...)
				lines <- lineResult{line: b, ok: true}
				return
			}
			lines <- lineResult{ok: false, err: scanner.Err()}
		}()
	}
	readNext()

	watchdog := time.NewTimer(c.watchdog)
	defer watchdog.Stop()

	for {
		select {
		case <-ctx.Done():
			frames <- Frame{Err: fmt.Errorf("%w", errs.ErrCancelled)}
			return

		case <-watchdog.C:
			frames <- Frame{Err: fmt.Errorf("%w: no data for %s", errs.ErrStalled, c.watchdog)}
			return

		case res := <-lines:
			if !watchdog.Stop() {
				select {
				case <-watchdog.C:
				default:
				}
			}
			watchdog.Reset(c.watchdog)

			if !res.ok {
				err := res.err
				if err == nil {
					err = fmt.Errorf("stream closed")
				}
				frames <- Frame{Err: fmt.Errorf("%w: %w", errs.ErrTransport, err)}
				return
			}
			if len(res.line) == 0 {
				// keepalive: resets the watchdog above, no frame emitted (§4.1)
				readNext()
				continue
			}
			frames <- Frame{Data: res.line}
			readNext()
		}
	}
}
