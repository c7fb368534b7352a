package plugin

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/time/rate"

	"github.com/shineum/mailkit/internal/email"
)

// ThrottlerName is the registry name of the throttler plugin.
const ThrottlerName = "throttler"

// Throttle modes.
const (
	ModeMessages = "messages"
	ModeBytes    = "bytes"
)

const defaultThrottleRate = 100

// throttler bounds sending to rate messages or rate bytes per minute.
type throttler struct {
	mode    string
	limiter *rate.Limiter
	logger  *slog.Logger
}

func newThrottler(params map[string]any, deps Deps) (Plugin, error) {
	n, err := intParam(params, "rate", defaultThrottleRate)
	if err != nil {
		return nil, err
	}
	if n <= 0 {
		return nil, fmt.Errorf("rate must be positive, got %d", n)
	}

	t := &throttler{mode: stringParam(params, "mode", ModeMessages), logger: deps.Logger}
	perSecond := rate.Limit(float64(n) / 60)
	switch t.mode {
	case ModeMessages:
		t.limiter = rate.NewLimiter(perSecond, 1)
	case ModeBytes:
		t.limiter = rate.NewLimiter(perSecond, n)
	default:
		return nil, fmt.Errorf("unknown throttle mode %q", t.mode)
	}
	return t, nil
}

func (t *throttler) Name() string { return ThrottlerName }

func (t *throttler) Wrap(next SendFunc) SendFunc {
	return func(ctx context.Context, msg *email.Message) Outcome {
		tokens := 1
		if t.mode == ModeBytes {
			size, err := msg.Size()
			if err != nil {
				return Outcome{Err: err}
			}
			// A message larger than a minute's allowance waits for a full bucket.
			tokens = int(min(size, int64(t.limiter.Burst())))
		}

		if err := t.limiter.WaitN(ctx, tokens); err != nil {
			return Outcome{Err: fmt.Errorf("throttler: %w", err)}
		}
		t.logger.Debug("throttler released message", "mode", t.mode, "tokens", tokens)
		return next(ctx, msg)
	}
}
