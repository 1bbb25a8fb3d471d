package artwork

import "image"

const bytesPerPixel = 4 // 32-bit RGBA

// Bitmap is a decoded, downsampled thumbnail. The zero value means
// "no artwork available".
type Bitmap struct {
	Image *image.RGBA

	// EncodedSize is the length of the source bytes the bitmap was decoded
	// from. It is the cost fallback when pixel dimensions are unknown.
	EncodedSize int
}

// IsZero reports whether the bitmap carries no pixels.
func (b Bitmap) IsZero() bool {
	return b.Image == nil
}

// Width returns the pixel width, or 0 for a zero bitmap.
func (b Bitmap) Width() int {
	if b.Image == nil {
		return 0
	}
	return b.Image.Bounds().Dx()
}

// Height returns the pixel height, or 0 for a zero bitmap.
func (b Bitmap) Height() int {
	if b.Image == nil {
		return 0
	}
	return b.Image.Bounds().Dy()
}

// Cost estimates the decompressed memory footprint in bytes. Decoded size,
// not encoded size, is what dominates resident memory, so eviction accounting
// uses width*height*4 and falls back to the encoded length only when the
// dimensions are unknown.
func (b Bitmap) Cost() int64 {
	w, h := b.Width(), b.Height()
	if w > 0 && h > 0 {
		return int64(w) * int64(h) * bytesPerPixel
	}
	return int64(b.EncodedSize)
}
