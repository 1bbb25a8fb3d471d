package artwork

import (
	"bytes"
	"context"
	"image"
	"sync/atomic"

	// Register the decoders for the artwork formats the metadata layer emits.
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/rs/zerolog"
	"golang.org/x/image/draw"
	"golang.org/x/sync/semaphore"
)

// DefaultDecodeConcurrency caps simultaneous decodes system-wide. A small
// constant keeps rapid scrolling from saturating CPU, independent of how many
// rows are visible.
const DefaultDecodeConcurrency = 4

// Thumbnailer produces a downsampled bitmap from encoded image bytes.
// A false result means "no artwork available", never a crash condition.
type Thumbnailer interface {
	Generate(ctx context.Context, data []byte, maxPixelDim int) (Bitmap, bool)
}

// Generator is the decode/downsample pipeline. Decodes beyond the gate's
// capacity queue FIFO on the semaphore; a context cancelled before a slot is
// acquired is a cheap cancel, while an in-flight decode runs to completion
// and the requester discards its result.
type Generator struct {
	gate    *semaphore.Weighted
	log     zerolog.Logger
	decodes atomic.Int64 // decodes started, for diagnostics
}

// NewGenerator creates a generator allowing at most maxConcurrent decodes.
// Non-positive values fall back to DefaultDecodeConcurrency.
func NewGenerator(maxConcurrent int64, log zerolog.Logger) *Generator {
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultDecodeConcurrency
	}
	return &Generator{
		gate: semaphore.NewWeighted(maxConcurrent),
		log:  log,
	}
}

// Generate decodes data and downsamples it so the larger dimension does not
// exceed maxPixelDim, preserving aspect ratio and never upscaling beyond the
// source's native resolution. Malformed or empty bytes yield (zero, false).
func (g *Generator) Generate(ctx context.Context, data []byte, maxPixelDim int) (Bitmap, bool) {
	if len(data) == 0 || maxPixelDim <= 0 {
		return Bitmap{}, false
	}

	if err := g.gate.Acquire(ctx, 1); err != nil {
		// Cancelled while queued; no slot was consumed.
		return Bitmap{}, false
	}
	defer g.gate.Release(1)

	g.decodes.Add(1)

	src, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		g.log.Debug().Err(err).Int("bytes", len(data)).Msg("artwork decode failed")
		return Bitmap{}, false
	}

	w, h := targetSize(src.Bounds().Dx(), src.Bounds().Dy(), maxPixelDim)
	if w <= 0 || h <= 0 {
		return Bitmap{}, false
	}

	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)

	g.log.Debug().
		Str("format", format).
		Int("src_w", src.Bounds().Dx()).
		Int("src_h", src.Bounds().Dy()).
		Int("dst_w", w).
		Int("dst_h", h).
		Msg("artwork decoded")

	return Bitmap{Image: dst, EncodedSize: len(data)}, true
}

// DecodeCount returns the number of decodes started since creation.
func (g *Generator) DecodeCount() int64 {
	return g.decodes.Load()
}

// targetSize scales (srcW, srcH) so the larger dimension equals maxDim,
// preserving aspect ratio, without ever upscaling. Dimensions round toward
// zero but never below one pixel.
func targetSize(srcW, srcH, maxDim int) (int, int) {
	if srcW <= 0 || srcH <= 0 {
		return 0, 0
	}
	if srcW <= maxDim && srcH <= maxDim {
		return srcW, srcH
	}

	if srcW >= srcH {
		h := srcH * maxDim / srcW
		if h < 1 {
			h = 1
		}
		return maxDim, h
	}
	w := srcW * maxDim / srcH
	if w < 1 {
		w = 1
	}
	return w, maxDim
}
