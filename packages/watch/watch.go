package watch

import (
	"context"
	"io"
	"sort"
	"time"

	"pkt.systems/pslog"
)

// DefaultDebounce is how long the loop waits after the last change before
// re-running.
const DefaultDebounce = 500 * time.Millisecond

// RerunFunc starts a fresh run. changed lists the paths that triggered it,
// sorted and de-duplicated.
type RerunFunc func(ctx context.Context, changed []string)

type Option func(*config)

type config struct {
	logger pslog.Base
}

func WithLogger(logger pslog.Base) Option {
	return func(c *config) {
		c.logger = logger
	}
}

// Loop consumes batches of changed paths and calls rerun once per burst:
// every notification restarts the debounce timer, and rerun fires when the
// timer expires without further changes. Notifications that arrive while
// rerun is executing are coalesced into the next burst.
//
// Loop returns ctx.Err() when ctx is cancelled, or nil once events is
// closed and any pending burst has been handed to rerun.
func Loop(ctx context.Context, events <-chan []string, debounce time.Duration, rerun RerunFunc, opts ...Option) error {
	cfg := &config{}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.logger == nil {
		cfg.logger = pslog.New(io.Discard)
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	pending := make(map[string]bool)
	timer := time.NewTimer(debounce)
	stopTimer(timer)
	armed := false

	fire := func() {
		changed := make([]string, 0, len(pending))
		for p := range pending {
			changed = append(changed, p)
		}
		sort.Strings(changed)
		clear(pending)

		cfg.logger.Info("change detected, re-running", "files", len(changed))
		rerun(ctx, changed)
		cfg.logger.Debug("watching for changes")
	}

	for {
		select {
		case <-ctx.Done():
			stopTimer(timer)
			return ctx.Err()

		case batch, ok := <-events:
			if !ok {
				stopTimer(timer)
				if len(pending) > 0 {
					fire()
				}
				return nil
			}
			for _, p := range batch {
				pending[p] = true
			}
			if len(pending) == 0 {
				continue
			}
			cfg.logger.Debug("change queued", "paths", batch)
			if armed {
				stopTimer(timer)
			}
			timer.Reset(debounce)
			armed = true

		case <-timer.C:
			armed = false
			if len(pending) > 0 {
				fire()
			}
		}
	}
}

func stopTimer(t *time.Timer) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
}
