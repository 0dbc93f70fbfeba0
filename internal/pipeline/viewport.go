package pipeline

import (
	"math"

	"github.com/smazurov/shadercam/internal/gpu"
)

// PreviewViewport fits a camera frame into the preview without stretching.
// When the preview is narrower than the camera the frame spans the preview
// width and is centered vertically; otherwise it spans the height and is
// centered horizontally. The result never exceeds the preview bounds.
func PreviewViewport(cameraW, cameraH, previewW, previewH int) gpu.Rect {
	if cameraW <= 0 || cameraH <= 0 || previewW <= 0 || previewH <= 0 {
		return gpu.Rect{Width: max(previewW, 0), Height: max(previewH, 0)}
	}

	cameraAspect := float64(cameraW) / float64(cameraH)
	previewAspect := float64(previewW) / float64(previewH)

	if previewAspect < cameraAspect {
		h := min(int(math.Round(float64(previewW)/cameraAspect)), previewH)
		return gpu.Rect{X: 0, Y: (previewH - h) / 2, Width: previewW, Height: h}
	}
	w := min(int(math.Round(float64(previewH)*cameraAspect)), previewW)
	return gpu.Rect{X: (previewW - w) / 2, Y: 0, Width: w, Height: previewH}
}
