package plugin

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/shineum/mailkit/internal/email"
)

// AntiFloodName is the registry name of the anti-flood plugin.
const AntiFloodName = "antiflood"

const (
	defaultFloodThreshold = 100
	defaultFloodSleep     = 5
)

// antiFlood pauses for sleep after every threshold messages.
type antiFlood struct {
	threshold int
	pause     time.Duration
	sleep     func(ctx context.Context, d time.Duration) error
	logger    *slog.Logger

	mu    sync.Mutex
	count int
}

func newAntiFlood(params map[string]any, deps Deps) (Plugin, error) {
	threshold, err := intParam(params, "threshold", defaultFloodThreshold)
	if err != nil {
		return nil, err
	}
	if threshold <= 0 {
		return nil, fmt.Errorf("threshold must be positive, got %d", threshold)
	}
	seconds, err := intParam(params, "sleep", defaultFloodSleep)
	if err != nil {
		return nil, err
	}
	return &antiFlood{
		threshold: threshold,
		pause:     time.Duration(seconds) * time.Second,
		sleep:     deps.Sleep,
		logger:    deps.Logger,
	}, nil
}

func (a *antiFlood) Name() string { return AntiFloodName }

func (a *antiFlood) Wrap(next SendFunc) SendFunc {
	return func(ctx context.Context, msg *email.Message) Outcome {
		out := next(ctx, msg)

		a.mu.Lock()
		a.count++
		reached := a.count >= a.threshold
		if reached {
			a.count = 0
		}
		a.mu.Unlock()

		if reached && a.pause > 0 {
			a.logger.Info("anti-flood threshold reached, pausing", "threshold", a.threshold, "sleep", a.pause)
			if err := a.sleep(ctx, a.pause); err != nil {
				a.logger.Warn("anti-flood pause interrupted", "error", err)
			}
		}
		return out
	}
}
