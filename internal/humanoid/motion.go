// internal/humanoid/motion.go
package humanoid

import (
	"math"
	"time"
)

// maxControlDisplacement caps how far a Bezier control point may stray from
// the straight line, in pixels. Larger arcs read as erratic, not human.
const maxControlDisplacement = 100.0

// Curve is a precomputed mouse trajectory. Points has Steps+1 entries, first
// exactly at the start and last exactly at the end; StepDelays[i] is the
// pause before dispatching Points[i+1].
type Curve struct {
	Points     []Vector2D
	StepDelays []time.Duration
}

// Duration sums the inter-step delays.
func (c Curve) Duration() time.Duration {
	var total time.Duration
	for _, d := range c.StepDelays {
		total += d
	}
	return total
}

// GenerateCurve builds a cubic Bezier trajectory from start to end with the
// configured number of steps. Control points sit near 30% and 70% of the
// straight line, displaced perpendicular to it by a randomized amount scaled
// to the travel distance, so no two paths between the same endpoints repeat.
// Interior points carry sub-pixel Perlin drift plus uniform jitter up to one
// pixel; the endpoints are exact.
func (h *Humanoid) GenerateCurve(start, end Vector2D) Curve {
	steps := h.cfg.CurveSteps
	if steps < 5 {
		steps = 5
	}
	main := end.Sub(start)
	dist := main.Mag()

	// A zero-length segment has no direction; the control points collapse onto
	// the endpoints and only jitter and drift remain.
	var perp Vector2D
	if dist > 0 {
		perp = main.Normalize().Perp()
	}
	reach := math.Min(maxControlDisplacement, dist*h.cfg.Randomization)

	p0, p3 := start, end
	p1 := start.Add(main.Mul(0.3)).Add(perp.Mul((h.rng.Float64()*2 - 1) * reach))
	p2 := start.Add(main.Mul(0.7)).Add(perp.Mul((h.rng.Float64()*2 - 1) * reach))

	points := make([]Vector2D, steps+1)
	delays := make([]time.Duration, steps)
	noisePhase := h.rng.Float64() * 10

	for i := 0; i <= steps; i++ {
		t := float64(i) / float64(steps)
		omt := 1.0 - t
		omt2 := omt * omt
		t2 := t * t

		p := p0.Mul(omt2 * omt).
			Add(p1.Mul(3 * omt2 * t)).
			Add(p2.Mul(3 * omt * t2)).
			Add(p3.Mul(t2 * t))

		if i > 0 && i < steps {
			drift := Vector2D{
				X: h.noiseX.Noise1D(noisePhase+t*0.8) * h.cfg.PerlinAmplitude,
				Y: h.noiseY.Noise1D(noisePhase+t*0.8) * h.cfg.PerlinAmplitude,
			}
			jitter := Vector2D{
				X: h.rng.Float64()*2 - 1,
				Y: h.rng.Float64()*2 - 1,
			}
			p = p.Add(drift).Add(jitter)
		}
		points[i] = p

		if i < steps {
			delays[i] = h.stepDelay()
		}
	}

	return Curve{Points: points, StepDelays: delays}
}

// IdleWander produces a few short aimless drifts around origin, staying
// inside the viewport. Played before the real approach so the very first
// recorded mouse event is not a beeline to the input box.
func (h *Humanoid) IdleWander(origin, viewport Vector2D) []Curve {
	legs := make([]Curve, 0, h.cfg.IdleWanderLegs)
	pos := origin
	for i := 0; i < h.cfg.IdleWanderLegs; i++ {
		target := Vector2D{
			X: clamp(pos.X+(h.rng.Float64()*2-1)*viewport.X*0.25, 5, viewport.X-5),
			Y: clamp(pos.Y+(h.rng.Float64()*2-1)*viewport.Y*0.25, 5, viewport.Y-5),
		}
		legs = append(legs, h.GenerateCurve(pos, target))
		pos = target
	}
	return legs
}

// EntryPoint picks a randomized position near one edge of the viewport,
// where a cursor plausibly sits after a page load.
func (h *Humanoid) EntryPoint(viewport Vector2D) Vector2D {
	along := h.rng.Float64()
	inset := 5 + h.rng.Float64()*30
	switch h.rng.Intn(4) {
	case 0: // top
		return Vector2D{X: clamp(along*viewport.X, 5, viewport.X-5), Y: inset}
	case 1: // bottom
		return Vector2D{X: clamp(along*viewport.X, 5, viewport.X-5), Y: viewport.Y - inset}
	case 2: // left
		return Vector2D{X: inset, Y: clamp(along*viewport.Y, 5, viewport.Y-5)}
	default: // right
		return Vector2D{X: viewport.X - inset, Y: clamp(along*viewport.Y, 5, viewport.Y-5)}
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
