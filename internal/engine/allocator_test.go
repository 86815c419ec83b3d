package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitAllocate(t *testing.T) {
	t.Run("default split of 300", func(t *testing.T) {
		shares := DefaultSplit().Allocate(300)
		assert.InDelta(t, 240.0, shares[0], 1e-9)
		assert.InDelta(t, 45.0, shares[1], 1e-9)
		assert.InDelta(t, 15.0, shares[2], 1e-9)
	})

	t.Run("shares sum to exactly the pool", func(t *testing.T) {
		for _, pool := range []float64{0.003, 1.0 / 3.0, 97.31, 12345.678} {
			shares := DefaultSplit().Allocate(pool)
			assert.InDelta(t, pool, shares[0]+shares[1]+shares[2], 1e-12)
		}
	})
}

func TestSplitValidate(t *testing.T) {
	require.NoError(t, DefaultSplit().Validate())

	assert.Error(t, Split{First: 0.8, Second: 0.15, Third: 0.1}.Validate())
	assert.Error(t, Split{First: 1.2, Second: -0.15, Third: -0.05}.Validate())
	assert.NoError(t, Split{First: 1, Second: 0, Third: 0}.Validate())
}
