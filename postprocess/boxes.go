// Package postprocess turns raw per-anchor network output into filtered,
// image-space bounding boxes: coordinate conversion, confidence filtering,
// greedy non-maximum suppression and letterbox rescaling.
package postprocess

// Box is a bounding box as four coordinates. Most functions use corner form
// (x1, y1, x2, y2); conversion helpers say which form they take and return.
type Box [4]float32

// CxCyWHToXYXY converts center form (cx, cy, w, h) to corner form.
func CxCyWHToXYXY(b Box) Box {
	cx, cy, w, h := b[0], b[1], b[2], b[3]
	return Box{cx - w/2, cy - h/2, cx + w/2, cy + h/2}
}

// XYXYToXYWH converts corner form back to center form (cx, cy, w, h).
func XYXYToXYWH(b Box) Box {
	x1, y1, x2, y2 := b[0], b[1], b[2], b[3]
	return Box{(x1 + x2) / 2, (y1 + y2) / 2, x2 - x1, y2 - y1}
}

// NormalizeXYXY divides corner-form coordinates by the image size, mapping
// them into [0, 1].
func NormalizeXYXY(b Box, height, width int) Box {
	w, h := float32(width), float32(height)
	return Box{b[0] / w, b[1] / h, b[2] / w, b[3] / h}
}

// DenormalizeXYXY maps normalized corner-form coordinates back to pixels.
func DenormalizeXYXY(b Box, height, width int) Box {
	w, h := float32(width), float32(height)
	return Box{b[0] * w, b[1] * h, b[2] * w, b[3] * h}
}

// ScaleBoxes rescales corner-form boxes in place from the network input frame
// (fromH, fromW) to the original image frame (toH, toW), undoing the
// letterbox gain and padding, then clips to the image bounds.
func ScaleBoxes(boxes []Box, fromH, fromW, toH, toW int) {
	gain := min32(float32(fromH)/float32(toH), float32(fromW)/float32(toW))
	padX := (float32(fromW) - float32(toW)*gain) / 2
	padY := (float32(fromH) - float32(toH)*gain) / 2

	for i := range boxes {
		boxes[i][0] = (boxes[i][0] - padX) / gain
		boxes[i][1] = (boxes[i][1] - padY) / gain
		boxes[i][2] = (boxes[i][2] - padX) / gain
		boxes[i][3] = (boxes[i][3] - padY) / gain
	}
	ClipBoxes(boxes, toH, toW)
}

// ClipBoxes clamps corner-form boxes in place to [0, width] x [0, height].
func ClipBoxes(boxes []Box, height, width int) {
	w, h := float32(width), float32(height)
	for i := range boxes {
		boxes[i][0] = clamp(boxes[i][0], 0, w)
		boxes[i][1] = clamp(boxes[i][1], 0, h)
		boxes[i][2] = clamp(boxes[i][2], 0, w)
		boxes[i][3] = clamp(boxes[i][3], 0, h)
	}
}

func clamp(v, lo, hi float32) float32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func min32(a, b float32) float32 {
	if a < b {
		return a
	}
	return b
}
