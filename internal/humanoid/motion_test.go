package humanoid

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xkilldash9x/specter-cli/internal/config"
)

func testConfig() config.HumanoidConfig {
	return config.HumanoidConfig{
		CurveSteps:      40,
		Randomization:   0.7,
		PerlinAmplitude: 1.5,
		StepDelayMin:    4 * time.Millisecond,
		StepDelayMax:    12 * time.Millisecond,
		IdleWanderLegs:  2,
		TypingDelayMin:  50 * time.Millisecond,
		TypingDelayMax:  150 * time.Millisecond,
		HesitationRate:  0.15,
		HesitationMin:   200 * time.Millisecond,
		HesitationMax:   500 * time.Millisecond,
	}
}

// newTestHumanoid uses a fixed seed so plans are reproducible.
func newTestHumanoid(t *testing.T, cfg config.HumanoidConfig, seed int64) *Humanoid {
	t.Helper()
	return New(cfg, zap.NewNop(), rand.New(rand.NewSource(seed)))
}

func TestGenerateCurve_EndpointsAndStepCount(t *testing.T) {
	h := newTestHumanoid(t, testConfig(), 42)
	start := Vector2D{X: 100, Y: 200}
	end := Vector2D{X: 800, Y: 520}

	curve := h.GenerateCurve(start, end)

	require.Len(t, curve.Points, testConfig().CurveSteps+1)
	require.Len(t, curve.StepDelays, testConfig().CurveSteps)

	assert.InDelta(t, start.X, curve.Points[0].X, 0.001)
	assert.InDelta(t, start.Y, curve.Points[0].Y, 0.001)
	last := curve.Points[len(curve.Points)-1]
	assert.InDelta(t, end.X, last.X, 0.001)
	assert.InDelta(t, end.Y, last.Y, 0.001)
}

func TestGenerateCurve_StepDelaysWithinBand(t *testing.T) {
	cfg := testConfig()
	h := newTestHumanoid(t, cfg, 7)

	curve := h.GenerateCurve(Vector2D{X: 0, Y: 0}, Vector2D{X: 500, Y: 300})
	for _, d := range curve.StepDelays {
		assert.GreaterOrEqual(t, d, cfg.StepDelayMin)
		assert.Less(t, d, cfg.StepDelayMax)
	}
	assert.Greater(t, curve.Duration(), time.Duration(0))
}

func TestGenerateCurve_PathsDoNotRepeat(t *testing.T) {
	h := newTestHumanoid(t, testConfig(), 99)
	start := Vector2D{X: 50, Y: 50}
	end := Vector2D{X: 700, Y: 400}

	a := h.GenerateCurve(start, end)
	b := h.GenerateCurve(start, end)

	// Midpoints should differ: control point displacement is re-rolled per call.
	mid := len(a.Points) / 2
	assert.Greater(t, a.Points[mid].Dist(b.Points[mid]), 0.5,
		"two curves between the same endpoints must not share a midpoint")
}

func TestGenerateCurve_DeterministicUnderFixedSeed(t *testing.T) {
	a := newTestHumanoid(t, testConfig(), 1234).GenerateCurve(Vector2D{X: 10, Y: 10}, Vector2D{X: 300, Y: 200})
	b := newTestHumanoid(t, testConfig(), 1234).GenerateCurve(Vector2D{X: 10, Y: 10}, Vector2D{X: 300, Y: 200})

	require.Equal(t, len(a.Points), len(b.Points))
	for i := range a.Points {
		assert.InDelta(t, a.Points[i].X, b.Points[i].X, 1e-9)
		assert.InDelta(t, a.Points[i].Y, b.Points[i].Y, 1e-9)
	}
}

func TestGenerateCurve_DegenerateHopKeepsFullResolution(t *testing.T) {
	cfg := testConfig()
	h := newTestHumanoid(t, cfg, 3)
	start := Vector2D{X: 10, Y: 10}
	end := Vector2D{X: 10.2, Y: 10.1}

	curve := h.GenerateCurve(start, end)

	require.Len(t, curve.Points, cfg.CurveSteps+1)
	require.Len(t, curve.StepDelays, cfg.CurveSteps)
	assert.InDelta(t, start.X, curve.Points[0].X, 0.001)
	assert.InDelta(t, start.Y, curve.Points[0].Y, 0.001)
	last := curve.Points[len(curve.Points)-1]
	assert.InDelta(t, end.X, last.X, 0.001)
	assert.InDelta(t, end.Y, last.Y, 0.001)
}

func TestGenerateCurve_ZeroDistanceStaysPut(t *testing.T) {
	cfg := testConfig()
	h := newTestHumanoid(t, cfg, 3)
	origin := Vector2D{X: 400, Y: 300}

	curve := h.GenerateCurve(origin, origin)

	require.Len(t, curve.Points, cfg.CurveSteps+1)
	assert.InDelta(t, origin.X, curve.Points[0].X, 0.001)
	last := curve.Points[len(curve.Points)-1]
	assert.InDelta(t, origin.X, last.X, 0.001)
	assert.InDelta(t, origin.Y, last.Y, 0.001)

	// Interior points only carry drift and jitter, bounded per axis.
	maxAxis := 1.0 + cfg.PerlinAmplitude
	for _, p := range curve.Points {
		assert.InDelta(t, origin.X, p.X, maxAxis+0.001)
		assert.InDelta(t, origin.Y, p.Y, maxAxis+0.001)
	}
}

func TestGenerateCurve_MinimumResolution(t *testing.T) {
	cfg := testConfig()
	cfg.CurveSteps = 2
	h := newTestHumanoid(t, cfg, 9)

	curve := h.GenerateCurve(Vector2D{}, Vector2D{X: 100, Y: 50})

	require.Len(t, curve.Points, 6, "step count floors at five")
	require.Len(t, curve.StepDelays, 5)
}

func TestIdleWander_StaysInsideViewport(t *testing.T) {
	cfg := testConfig()
	cfg.IdleWanderLegs = 3
	h := newTestHumanoid(t, cfg, 21)
	viewport := Vector2D{X: 1280, Y: 800}

	legs := h.IdleWander(Vector2D{X: 640, Y: 400}, viewport)

	require.Len(t, legs, 3)
	for _, leg := range legs {
		last := leg.Points[len(leg.Points)-1]
		assert.GreaterOrEqual(t, last.X, 0.0)
		assert.LessOrEqual(t, last.X, viewport.X)
		assert.GreaterOrEqual(t, last.Y, 0.0)
		assert.LessOrEqual(t, last.Y, viewport.Y)
	}
}
