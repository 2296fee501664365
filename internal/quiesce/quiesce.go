// File: internal/quiesce/quiesce.go
// Package quiesce implements completion detection for streaming text sources.
// A token-by-token renderer never signals "done" to an outside observer, so
// the only generally available heuristic is quiescence: the content staying
// identical across N consecutive polls.
package quiesce

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Options parameterizes one WaitForStable call.
type Options struct {
	// Interval between polls.
	Interval time.Duration
	// RequiredStablePolls is the number of consecutive unchanged polls needed
	// to declare stability. Use at least 2: a single unchanged poll can land
	// inside an inter-token pause of ongoing generation.
	RequiredStablePolls int
	// MaxWait bounds the whole wait. Reaching it is not an error; the last
	// observed content is returned with TimedOut set.
	MaxWait time.Duration
	// MinGrowth is the byte-length delta over the initial snapshot below which
	// content is not yet considered a response. Heuristic, tuned per target.
	MinGrowth int
}

// Result carries the outcome of a stabilization wait.
type Result struct {
	Content  string
	TimedOut bool
	Polls    int
	Elapsed  time.Duration
}

// Detector polls a content source until it stabilizes. Stateless between
// calls; every invocation owns its own counters.
type Detector struct {
	logger *zap.Logger

	// Injectable for tests.
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// New creates a Detector using the wall clock.
func New(logger *zap.Logger) *Detector {
	return &Detector{
		logger: logger.Named("quiesce"),
		now:    time.Now,
		sleep:  sleepCtx,
	}
}

// WaitForStable polls at a fixed interval until the content has remained
// unchanged for RequiredStablePolls consecutive polls after growing past
// MinGrowth, or until MaxWait elapses. Poll errors are treated as skipped
// ticks; only context cancellation aborts the wait with an error.
func (d *Detector) WaitForStable(ctx context.Context, poll func(ctx context.Context) (string, error), opts Options) (Result, error) {
	start := d.now()
	deadline := start.Add(opts.MaxWait)

	baseline, err := poll(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return Result{}, ctx.Err()
		}
		d.logger.Debug("Initial content snapshot failed; assuming empty", zap.Error(err))
		baseline = ""
	}

	previous := baseline
	last := baseline
	stableCount := 0
	polls := 1

	for {
		if d.now().After(deadline) {
			d.logger.Warn("Content did not stabilize before deadline; returning last observation",
				zap.Duration("max_wait", opts.MaxWait),
				zap.Int("polls", polls),
				zap.Int("content_len", len(last)))
			return Result{Content: last, TimedOut: true, Polls: polls, Elapsed: d.now().Sub(start)}, nil
		}

		if err := d.sleep(ctx, opts.Interval); err != nil {
			return Result{}, err
		}

		content, err := poll(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return Result{}, ctx.Err()
			}
			d.logger.Debug("Poll failed; skipping tick", zap.Error(err))
			continue
		}
		polls++
		last = content

		grown := len(content)-len(baseline) >= opts.MinGrowth

		switch {
		case grown && content == previous:
			stableCount++
		case content != previous:
			// Still streaming (or the page re-rendered); start over.
			stableCount = 0
		}

		// Only advance the comparison snapshot once real growth has happened,
		// so spurious no-growth ticks cannot fake stability later.
		if grown {
			previous = content
		}

		d.logger.Debug("Stability tick",
			zap.Int("content_len", len(content)),
			zap.Bool("grown", grown),
			zap.Int("stable_count", stableCount))

		if stableCount >= opts.RequiredStablePolls {
			return Result{Content: content, Polls: polls, Elapsed: d.now().Sub(start)}, nil
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
