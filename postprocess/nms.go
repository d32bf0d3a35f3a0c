package postprocess

import "sort"

// unionEpsilon guards the IoU division against zero-area unions.
const unionEpsilon = 1e-7

// area returns the inclusive pixel area of a corner-form box, clipped at 0
// when width or height is negative.
func area(b Box) float32 {
	w := b[2] - b[0] + 1
	h := b[3] - b[1] + 1
	if w < 0 {
		w = 0
	}
	if h < 0 {
		h = 0
	}
	return w * h
}

// IoU returns the intersection-over-union of two corner-form boxes using
// inclusive pixel areas.
func IoU(a, b Box) float32 {
	ix1 := max32(a[0], b[0])
	iy1 := max32(a[1], b[1])
	ix2 := min32(a[2], b[2])
	iy2 := min32(a[3], b[3])
	inter := area(Box{ix1, iy1, ix2, iy2})

	union := area(a) + area(b) - inter
	if union == 0 {
		union = unionEpsilon
	}
	return inter / union
}

// NMS runs greedy non-maximum suppression over corner-form boxes and returns
// a keep mask. Candidates are visited in descending score order; each kept
// candidate suppresses any remaining candidate whose IoU with it exceeds
// iouThresh. When classes is non-nil suppression is class-aware: only
// candidates of the kept candidate's class are suppressed. A nil classes
// slice means class-agnostic suppression, whatever the boxes contain.
func NMS(boxes []Box, scores []float32, iouThresh float32, classes []int) []bool {
	keep := make([]bool, len(boxes))
	order := make([]int, len(boxes))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return scores[order[a]] > scores[order[b]]
	})

	for len(order) > 0 {
		i := order[0]
		keep[i] = true

		remaining := order[:0]
		for _, j := range order[1:] {
			if IoU(boxes[i], boxes[j]) > iouThresh {
				if classes == nil || classes[j] == classes[i] {
					continue // suppressed
				}
			}
			remaining = append(remaining, j)
		}
		order = remaining
	}
	return keep
}

func max32(a, b float32) float32 {
	if a > b {
		return a
	}
	return b
}
