package humanoid

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBoxFromQuad(t *testing.T) {
	box, ok := BoxFromQuad([]float64{10, 20, 110, 20, 110, 60, 10, 60})
	require.True(t, ok)
	assert.Equal(t, Box{X: 10, Y: 20, Width: 100, Height: 40}, box)
	assert.Equal(t, Vector2D{X: 60, Y: 40}, box.Center())

	_, ok = BoxFromQuad([]float64{1, 2, 3})
	assert.False(t, ok, "short quad")
	_, ok = BoxFromQuad([]float64{5, 5, 5, 5, 5, 5, 5, 5})
	assert.False(t, ok, "degenerate quad")
}

func TestMouse_ClickPointStaysInside(t *testing.T) {
	m := NewMouse(rand.New(rand.NewSource(7)))
	for _, box := range []Box{
		{X: 0, Y: 0, Width: 200, Height: 30},
		{X: 50, Y: 50, Width: 1, Height: 1},
		{X: 300, Y: 10, Width: 16, Height: 16},
	} {
		for i := 0; i < 500; i++ {
			p := m.ClickPoint(box)
			require.Truef(t, box.Contains(p), "point %+v outside %+v", p, box)
		}
	}
}

func TestMouse_PathEndsOnTarget(t *testing.T) {
	m := NewMouse(rand.New(rand.NewSource(3)))
	start, end := Vector2D{X: 0, Y: 0}, Vector2D{X: 400, Y: 300}

	steps := m.Path(start, end)
	require.GreaterOrEqual(t, len(steps), 2)
	assert.Equal(t, end, steps[len(steps)-1].Point)

	var total time.Duration
	for _, s := range steps {
		require.GreaterOrEqual(t, s.Delay, time.Duration(0))
		total += s.Delay
	}
	// 500px at a 30px target: roughly 80 + 120*log2(17.7) ms, +/-15%.
	assert.Greater(t, total, 450*time.Millisecond)
	assert.Less(t, total, 700*time.Millisecond)

	// The curve stays near the straight line.
	for _, s := range steps {
		assert.Less(t, s.Point.Dist(start)+s.Point.Dist(end), 1.5*start.Dist(end))
	}
}

func TestMouse_PathShortMove(t *testing.T) {
	m := NewMouse(rand.New(rand.NewSource(1)))
	steps := m.Path(Vector2D{X: 10, Y: 10}, Vector2D{X: 10.5, Y: 10})
	assert.Equal(t, []Step{{Point: Vector2D{X: 10.5, Y: 10}}}, steps)
}

func TestMouse_SameSeedSamePath(t *testing.T) {
	a := NewMouse(rand.New(rand.NewSource(11)))
	b := NewMouse(rand.New(rand.NewSource(11)))
	start, end := Vector2D{X: 5, Y: 700}, Vector2D{X: 640, Y: 90}
	assert.Equal(t, a.Path(start, end), b.Path(start, end))
}

func TestMouse_HoldTime(t *testing.T) {
	m := NewMouse(rand.New(rand.NewSource(5)))
	for i := 0; i < 100; i++ {
		d := m.HoldTime()
		require.GreaterOrEqual(t, d, 50*time.Millisecond)
		require.Less(t, d, 120*time.Millisecond)
	}
}
