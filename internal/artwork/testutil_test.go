package artwork

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"sync"
	"testing"
	"time"
)

// fakeSource serves canned artwork bytes and counts lookups per entity.
type fakeSource struct {
	mu    sync.Mutex
	data  map[string][]byte
	err   error
	calls map[string]int
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		data:  make(map[string][]byte),
		calls: make(map[string]int),
	}
}

func (f *fakeSource) Artwork(_ context.Context, entityID string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[entityID]++
	if f.err != nil {
		return nil, f.err
	}
	return f.data[entityID], nil
}

func (f *fakeSource) callCount(entityID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[entityID]
}

// fakeThumb is a Thumbnailer stub that counts decodes per payload and can
// block until released, to hold flights open during a test.
type fakeThumb struct {
	mu      sync.Mutex
	decodes map[string]int
	total   int
	gate    chan struct{} // when non-nil, Generate blocks until closed
	fail    bool
}

func newFakeThumb() *fakeThumb {
	return &fakeThumb{decodes: make(map[string]int)}
}

func (f *fakeThumb) Generate(ctx context.Context, data []byte, _ int) (Bitmap, bool) {
	f.mu.Lock()
	f.decodes[string(data)]++
	f.total++
	gate := f.gate
	fail := f.fail
	f.mu.Unlock()

	if gate != nil {
		<-gate
	}
	// Like the real gate, a decode whose flight was abandoned yields nothing.
	if ctx.Err() != nil || fail || len(data) == 0 {
		return Bitmap{}, false
	}
	return Bitmap{Image: image.NewRGBA(image.Rect(0, 0, 1, 1)), EncodedSize: len(data)}, true
}

func (f *fakeThumb) totalDecodes() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.total
}

func (f *fakeThumb) decodesFor(data []byte) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.decodes[string(data)]
}

// testPNG encodes a uniform w x h PNG.
func testPNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, color.RGBA{R: 200, G: 120, B: 40, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

// costBitmap builds a bitmap with no pixels whose cost is exactly cost bytes,
// exercising the encoded-size fallback.
func costBitmap(cost int) Bitmap {
	return Bitmap{EncodedSize: cost}
}

// waitSettled blocks until the handle reaches a terminal state.
func waitSettled(t *testing.T, h *LoadHandle) {
	t.Helper()
	select {
	case <-h.Done():
	case <-time.After(5 * time.Second):
		t.Fatalf("load handle did not settle, state=%d", h.State())
	}
}
