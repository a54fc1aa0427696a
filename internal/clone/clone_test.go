package clone

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCloneIsIndependentOfSource(t *testing.T) {
	src := map[string]any{"count": float64(0), "nested": map[string]any{"a": 1.0}}
	cloned := Clone(src).(map[string]any)

	src["count"] = 99
	nested := src["nested"].(map[string]any)
	nested["a"] = 2.0

	require.Equal(t, 0.0, cloned["count"])
	clonedNested := cloned["nested"].(map[string]any)
	require.Equal(t, 1.0, clonedNested["a"])
}

func TestEqualIgnoresKeyOrder(t *testing.T) {
	a := map[string]any{"x": 1.0, "y": 2.0}
	b := map[string]any{"y": 2.0, "x": 1.0}
	require.True(t, Equal(a, b))
}

func TestEqualDetectsDifference(t *testing.T) {
	a := map[string]any{"count": 0.0}
	b := map[string]any{"count": 1.0}
	require.False(t, Equal(a, b))
}

func TestEqualIgnoresUnprojectedFields(t *testing.T) {
	// Mirrors Scenario 3: selector projects ctx.count; adding an
	// unrelated field must not register as a change once projected.
	type projected = float64
	project := func(ctx map[string]any) projected { return ctx["count"].(float64) }

	oldCtx := map[string]any{"count": 0.0}
	newCtx := map[string]any{"count": 0.0, "other": 1.0}

	require.True(t, Equal(project(oldCtx), project(newCtx)))
}
