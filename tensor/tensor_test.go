package tensor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	t.Parallel()

	tt := New(2, 3, 4)
	assert.Equal(t, []int{2, 3, 4}, tt.Shape())
	assert.Equal(t, 3, tt.Rank())
	assert.Equal(t, 4, tt.Dim(2))
	assert.Equal(t, 24, tt.Len())
	for _, v := range tt.Data() {
		assert.Zero(t, v)
	}
}

func TestFromSlice(t *testing.T) {
	t.Parallel()

	t.Run("wraps without copying", func(t *testing.T) {
		t.Parallel()
		data := []float32{1, 2, 3, 4, 5, 6}
		tt, err := FromSlice(data, 2, 3)
		require.NoError(t, err)
		data[0] = 42
		assert.Equal(t, float32(42), tt.Data()[0])
	})

	t.Run("rejects a shape mismatch", func(t *testing.T) {
		t.Parallel()
		_, err := FromSlice([]float32{1, 2, 3}, 2, 2)
		assert.Error(t, err)
	})

	t.Run("rejects negative dimensions", func(t *testing.T) {
		t.Parallel()
		_, err := FromSlice(nil, -1, 3)
		assert.Error(t, err)
	})
}

func TestShapeIsACopy(t *testing.T) {
	t.Parallel()

	tt := New(2, 2)
	s := tt.Shape()
	s[0] = 99
	assert.Equal(t, []int{2, 2}, tt.Shape())
}

func TestClone(t *testing.T) {
	t.Parallel()

	orig, err := FromSlice([]float32{1, 2, 3, 4}, 2, 2)
	require.NoError(t, err)
	c := orig.Clone()
	c.Data()[0] = 99

	assert.Equal(t, float32(1), orig.Data()[0])
	assert.Equal(t, orig.Shape(), c.Shape())
}
