// Package projector maps frame-indexed intervals onto a strip of pixels.
package projector

import (
	"math"

	"github.com/aschmelyun/tlabel/internal/timeline"
)

// Span is the pixel extent of one interval.
type Span struct {
	PixelStart int
	PixelWidth int
	Label      timeline.Label
}

// Projection is what a timeline bar of a given width should draw.
type Projection struct {
	Spans        []Span
	CurrentPixel int
}

// Project lays intervals out over pixelWidth pixels for a video of
// totalFrames frames. Interval ends are treated as exclusive (end+1) so the
// last frame is drawn, and every span is at least one pixel wide. With no
// frames or no pixels the projection is empty.
func Project(intervals []timeline.Interval, totalFrames, pixelWidth, currentFrame int) Projection {
	if totalFrames <= 0 || pixelWidth <= 0 {
		return Projection{}
	}

	spans := make([]Span, 0, len(intervals))
	for _, iv := range intervals {
		start := toPixel(iv.StartFrame, totalFrames, pixelWidth)
		end := toPixel(iv.EndFrame+1, totalFrames, pixelWidth)
		spans = append(spans, Span{
			PixelStart: start,
			PixelWidth: max(1, end-start),
			Label:      iv.Label,
		})
	}

	return Projection{
		Spans:        spans,
		CurrentPixel: toPixel(currentFrame, totalFrames, pixelWidth),
	}
}

// PixelToFrame maps a pointer position back to a frame. It floors where
// Project rounds, so a click lands on the frame under the pointer.
func PixelToFrame(pixelX, pixelWidth, totalFrames int) int {
	if pixelWidth <= 0 || totalFrames <= 0 {
		return 0
	}
	return int(math.Floor(float64(pixelX) / float64(pixelWidth) * float64(totalFrames)))
}

// toPixel rounds half to even.
func toPixel(frame, totalFrames, pixelWidth int) int {
	return int(math.RoundToEven(float64(frame) / float64(totalFrames) * float64(pixelWidth)))
}
