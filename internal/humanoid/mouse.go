package humanoid

import (
	"math"
	"math/rand"
	"sync"
	"time"
)

// Fitts's law coefficients in milliseconds, and the target width the index of difficulty
// is computed against.
const (
	fittsA      = 80.0
	fittsB      = 120.0
	fittsWidth  = 30.0
	stepsPerSec = 100
)

// Box is an axis-aligned rectangle in viewport pixels.
type Box struct {
	X, Y, Width, Height float64
}

// Center returns the middle of the box.
func (b Box) Center() Vector2D {
	return Vector2D{X: b.X + b.Width/2, Y: b.Y + b.Height/2}
}

// Contains reports whether p lies inside the box, edges included.
func (b Box) Contains(p Vector2D) bool {
	return p.X >= b.X && p.X <= b.X+b.Width && p.Y >= b.Y && p.Y <= b.Y+b.Height
}

// BoxFromQuad returns the bounding box of a CDP content quad (x1,y1,...,x4,y4).
func BoxFromQuad(quad []float64) (Box, bool) {
	if len(quad) < 8 || len(quad)%2 != 0 {
		return Box{}, false
	}
	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)
	for i := 0; i < len(quad); i += 2 {
		minX = math.Min(minX, quad[i])
		maxX = math.Max(maxX, quad[i])
		minY = math.Min(minY, quad[i+1])
		maxY = math.Max(maxY, quad[i+1])
	}
	if maxX <= minX || maxY <= minY {
		return Box{}, false
	}
	return Box{X: minX, Y: minY, Width: maxX - minX, Height: maxY - minY}, true
}

// Step is one cursor position and the wait before moving to it.
type Step struct {
	Point Vector2D
	Delay time.Duration
}

// Mouse plans cursor movement toward click targets. It is safe for concurrent use.
type Mouse struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewMouse returns a Mouse drawing from rng.
func NewMouse(rng *rand.Rand) *Mouse {
	return &Mouse{rng: rng}
}

// ClickPoint picks a point inside the box, normally distributed around its center.
func (m *Mouse) ClickPoint(b Box) Vector2D {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := b.Center()
	p := Vector2D{
		X: c.X + m.rng.NormFloat64()*b.Width/6,
		Y: c.Y + m.rng.NormFloat64()*b.Height/6,
	}
	// Keep a one pixel margin so the press lands on the element.
	p.X = clamp(p.X, b.X+math.Min(1, b.Width/2), b.X+b.Width-math.Min(1, b.Width/2))
	p.Y = clamp(p.Y, b.Y+math.Min(1, b.Height/2), b.Y+b.Height-math.Min(1, b.Height/2))
	return p
}

// Path returns the steps of a movement from start to end. The route is a cubic Bezier curve
// bowed to one side, sampled with ease-in-out timing over a Fitts's-law duration. The last
// step is always end.
func (m *Mouse) Path(start, end Vector2D) []Step {
	m.mu.Lock()
	defer m.mu.Unlock()

	dist := start.Dist(end)
	if dist < 1 {
		return []Step{{Point: end}}
	}
	duration := m.movementTime(dist)
	n := int(duration.Seconds() * stepsPerSec)
	if n < 2 {
		n = 2
	}

	dir := end.Sub(start).Normalize()
	normal := dir.Perp()
	bow := (m.rng.Float64()*0.3 - 0.15) * dist
	p1 := start.Add(dir.Mul(dist / 3)).Add(normal.Mul(bow))
	p2 := start.Add(dir.Mul(dist * 2 / 3)).Add(normal.Mul(bow * (0.5 + m.rng.Float64()*0.5)))

	steps := make([]Step, n)
	var prev time.Duration
	for i := 0; i < n; i++ {
		t := easeInOutCubic(float64(i+1) / float64(n))
		at := time.Duration(float64(duration) * float64(i+1) / float64(n))
		steps[i] = Step{Point: bezier(start, p1, p2, end, t), Delay: at - prev}
		prev = at
	}
	steps[n-1].Point = end
	return steps
}

// HoldTime is how long the button stays pressed.
func (m *Mouse) HoldTime() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return time.Duration(50+m.rng.Intn(70)) * time.Millisecond
}

// movementTime applies Fitts's law with +/-15% jitter. The caller holds mu.
func (m *Mouse) movementTime(dist float64) time.Duration {
	mt := fittsA + fittsB*math.Log2(1+dist/fittsWidth)
	mt += mt * (m.rng.Float64()*0.3 - 0.15)
	return time.Duration(mt * float64(time.Millisecond))
}

func easeInOutCubic(t float64) float64 {
	if t < 0.5 {
		return 4 * t * t * t
	}
	return 1 - math.Pow(-2*t+2, 3)/2
}

func bezier(p0, p1, p2, p3 Vector2D, t float64) Vector2D {
	omt := 1 - t
	return p0.Mul(omt * omt * omt).
		Add(p1.Mul(3 * omt * omt * t)).
		Add(p2.Mul(3 * omt * t * t)).
		Add(p3.Mul(t * t * t))
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
