// internal/humanoid/humanoid.go
// Package humanoid generates human-plausible interaction plans: mouse
// trajectories along jittered Bezier curves and typing cadences with
// hesitations and occasional corrected typos. Generators are pure; the
// browser driver replays the plans against the page.
package humanoid

import (
	"math/rand"
	"time"

	"github.com/aquilax/go-perlin"
	"go.uber.org/zap"

	"github.com/xkilldash9x/specter-cli/internal/config"
)

// Humanoid holds the per-session behavior persona. Not safe for concurrent
// use; each browser session owns exactly one instance.
type Humanoid struct {
	cfg    config.HumanoidConfig
	logger *zap.Logger

	rng    *rand.Rand
	noiseX *perlin.Perlin
	noiseY *perlin.Perlin
}

// New creates a Humanoid. A nil rng gets a time-based seed; tests inject a
// fixed-seed source for reproducible plans.
func New(cfg config.HumanoidConfig, logger *zap.Logger, rng *rand.Rand) *Humanoid {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}

	// Standard Perlin parameters. Seeds derive from the rng so a fixed-seed
	// source reproduces the drift along with everything else.
	alpha, beta, n := 2.0, 2.0, int32(3)

	return &Humanoid{
		cfg:    cfg,
		logger: logger.Named("humanoid"),
		rng:    rng,
		noiseX: perlin.NewPerlin(alpha, beta, n, rng.Int63()),
		noiseY: perlin.NewPerlin(alpha, beta, n, rng.Int63()),
	}
}

// stepDelay picks one inter-step mouse delay inside the configured band.
func (h *Humanoid) stepDelay() time.Duration {
	span := h.cfg.StepDelayMax - h.cfg.StepDelayMin
	if span <= 0 {
		return h.cfg.StepDelayMin
	}
	return h.cfg.StepDelayMin + time.Duration(h.rng.Int63n(int64(span)))
}

// keyDelay picks one inter-key delay inside the configured band.
func (h *Humanoid) keyDelay() time.Duration {
	span := h.cfg.TypingDelayMax - h.cfg.TypingDelayMin
	if span <= 0 {
		return h.cfg.TypingDelayMin
	}
	return h.cfg.TypingDelayMin + time.Duration(h.rng.Int63n(int64(span)))
}
