package http

import (
	"context"
	"errors"
	"time"
)

// DefaultRetryDelay is the pause between attempts when none is configured.
const DefaultRetryDelay = time.Second

// RetryTransport re-sends a request when next fails with a transport error.
// Responses are never retried, whatever their status. A timed-out attempt is
// retried like any other failure; a cancelled context stops retrying.
type RetryTransport struct {
	next    Transport
	retries int
	delay   time.Duration
}

func NewRetryTransport(next Transport, retries int, delay time.Duration) *RetryTransport {
	if retries < 0 {
		retries = 0
	}
	if delay < 0 {
		delay = DefaultRetryDelay
	}
	return &RetryTransport{next: next, retries: retries, delay: delay}
}

func (t *RetryTransport) Do(ctx context.Context, req *Request) (*Response, error) {
	var lastErr error
	for attempt := 1; attempt <= t.retries+1; attempt++ {
		resp, err := t.next.Do(ctx, req)
		if err == nil {
			resp.Attempts = attempt
			return resp, nil
		}
		lastErr = err

		var te *TransportError
		if !errors.As(err, &te) || te.Canceled || ctx.Err() != nil {
			break
		}
		te.Attempts = attempt

		if attempt <= t.retries && t.delay > 0 {
			timer := time.NewTimer(t.delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return nil, lastErr
			case <-timer.C:
			}
		}
	}
	return nil, lastErr
}
