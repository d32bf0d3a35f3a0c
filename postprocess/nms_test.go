package postprocess

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIoU(t *testing.T) {
	t.Parallel()

	t.Run("overlapping boxes", func(t *testing.T) {
		t.Parallel()
		got := IoU(Box{0, 0, 10, 10}, Box{1, 1, 11, 11})
		assert.InDelta(t, 100.0/142.0, got, 1e-5)
	})

	t.Run("identical boxes", func(t *testing.T) {
		t.Parallel()
		assert.InDelta(t, 1.0, IoU(Box{2, 2, 8, 8}, Box{2, 2, 8, 8}), 1e-6)
	})

	t.Run("disjoint boxes", func(t *testing.T) {
		t.Parallel()
		assert.Equal(t, float32(0), IoU(Box{0, 0, 4, 4}, Box{10, 10, 14, 14}))
	})

	t.Run("degenerate boxes never divide by zero", func(t *testing.T) {
		t.Parallel()
		a := Box{5, 5, 2, 2} // negative extent, area clips to 0
		assert.Equal(t, float32(0), IoU(a, a))
	})
}

func TestNMS(t *testing.T) {
	t.Parallel()

	t.Run("suppresses the heavier overlap", func(t *testing.T) {
		t.Parallel()
		boxes := []Box{{0, 0, 10, 10}, {1, 1, 11, 11}}
		keep := NMS(boxes, []float32{0.9, 0.8}, 0.3, nil)
		assert.Equal(t, []bool{true, false}, keep)
	})

	t.Run("highest-scored candidate is always kept", func(t *testing.T) {
		t.Parallel()
		boxes := []Box{{0, 0, 10, 10}, {0, 0, 10, 10}, {0, 0, 10, 10}}
		keep := NMS(boxes, []float32{0.1, 0.95, 0.5}, 0.5, nil)
		assert.Equal(t, []bool{false, true, false}, keep)
	})

	t.Run("single candidate survives", func(t *testing.T) {
		t.Parallel()
		keep := NMS([]Box{{0, 0, 5, 5}}, []float32{0.2}, 0.5, nil)
		assert.Equal(t, []bool{true}, keep)
	})

	t.Run("disjoint candidates all survive", func(t *testing.T) {
		t.Parallel()
		boxes := []Box{{0, 0, 5, 5}, {100, 100, 105, 105}, {200, 0, 205, 5}}
		keep := NMS(boxes, []float32{0.9, 0.8, 0.7}, 0.1, nil)
		assert.Equal(t, []bool{true, true, true}, keep)
	})

	t.Run("class-aware suppression spares other classes", func(t *testing.T) {
		t.Parallel()
		boxes := []Box{{0, 0, 10, 10}, {1, 1, 11, 11}}
		scores := []float32{0.9, 0.8}

		keep := NMS(boxes, scores, 0.3, []int{0, 1})
		assert.Equal(t, []bool{true, true}, keep, "different classes must not suppress each other")

		keep = NMS(boxes, scores, 0.3, []int{2, 2})
		assert.Equal(t, []bool{true, false}, keep, "same class still suppresses")
	})

	t.Run("keep mask never exceeds the input", func(t *testing.T) {
		t.Parallel()
		boxes := []Box{
			{0, 0, 10, 10}, {2, 2, 12, 12}, {4, 4, 14, 14},
			{50, 50, 60, 60}, {51, 51, 61, 61},
		}
		scores := []float32{0.9, 0.85, 0.8, 0.7, 0.75}
		keep := NMS(boxes, scores, 0.4, nil)
		require.Len(t, keep, len(boxes))

		// Every pair of survivors overlaps at most by the threshold.
		for i := range boxes {
			for j := i + 1; j < len(boxes); j++ {
				if keep[i] && keep[j] {
					assert.LessOrEqual(t, IoU(boxes[i], boxes[j]), float32(0.4))
				}
			}
		}
	})
}
