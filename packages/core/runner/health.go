package runner

import (
	"context"
	"time"

	"golang.org/x/time/rate"

	"github.com/abdul-hamid-achik/reqx/packages/core/env"
)

const (
	DefaultHealthInterval = time.Second
	DefaultHealthTimeout  = 30 * time.Second
)

type HealthOptions struct {
	// Interval is the pause between attempts.
	Interval time.Duration
	// Timeout bounds the whole check.
	Timeout time.Duration
	// AttemptTimeout bounds each attempt. Zero leaves it to the transport.
	AttemptTimeout time.Duration
}

// HealthCheck repeats doc until its assertions pass or opts.Timeout elapses.
// Running out of time yields an execution error wrapping *NotReadyError,
// which callers can tell apart from an ordinary assertion failure. A request
// that cannot be templated fails immediately since retrying cannot fix it.
func (r *Runner) HealthCheck(ctx context.Context, doc Document, environment *env.Environment, opts HealthOptions) *RequestOutcome {
	if opts.Interval <= 0 {
		opts.Interval = DefaultHealthInterval
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultHealthTimeout
	}

	if doc.Err != nil {
		return &RequestOutcome{
			Name:           doc.Name(),
			File:           doc.Path,
			Classification: ParseError,
			Err:            doc.Err,
		}
	}

	hctx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	limiter := rate.NewLimiter(rate.Every(opts.Interval), 1)
	scope := r.newScope(environment)
	start := time.Now()

	var last *RequestOutcome
	attempts := 0
	for {
		if err := limiter.Wait(hctx); err != nil {
			// The next attempt would land past the deadline.
			<-hctx.Done()
			break
		}
		attempts++

		actx := hctx
		var acancel context.CancelFunc = func() {}
		if opts.AttemptTimeout > 0 {
			actx, acancel = context.WithTimeout(hctx, opts.AttemptTimeout)
		}
		last = r.execute(actx, doc, scope)
		acancel()
		last.Attempts = attempts

		r.logger.Debug("health attempt", "request", last.Name, "attempt", attempts, "classification", last.Classification.String())

		if last.Classification == Pass {
			last.Duration = time.Since(start)
			return last
		}
		if last.Classification == ExecutionError && last.Phase == PhaseTemplating {
			return last
		}
		if hctx.Err() != nil {
			break
		}
	}

	if ctx.Err() != nil {
		out := skippedOutcome(doc, "run canceled")
		out.Attempts = attempts
		return out
	}

	notReady := &NotReadyError{Timeout: opts.Timeout, Attempts: attempts}
	out := skippedOutcome(doc, "")
	if last != nil {
		out = last
		notReady.Last = describeLast(last)
	}
	out.Classification = ExecutionError
	out.Err = notReady
	out.SkipReason = ""
	out.Attempts = attempts
	out.Duration = time.Since(start)
	r.logger.Warn("target not ready", "request", out.Name, "attempts", attempts, "timeout", opts.Timeout)
	return out
}

func describeLast(o *RequestOutcome) string {
	if o.Err != nil {
		return o.Err.Error()
	}
	if failed := o.FailedAssertions(); len(failed) > 0 {
		return "last attempt: " + failed[0].Path + ": " + failed[0].Message
	}
	return "last attempt: " + o.Classification.String()
}
