package artwork

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedEntities(source *fakeSource, n int) []string {
	ids := make([]string, n)
	for i := range ids {
		id := fmt.Sprintf("track-%04d", i)
		ids[i] = id
		source.data[id] = []byte("artwork:" + id)
	}
	return ids
}

func TestPreheatWarmsOnlyUncachedEntities(t *testing.T) {
	source := newFakeSource()
	thumb := newFakeThumb()

	// The cache must hold the whole seeded set, otherwise evicted entries
	// legitimately get decoded again.
	svc := NewService(source,
		WithLogger(zerolog.Nop()),
		WithThumbnailer(thumb),
		WithCacheLimits(2048, 64<<20),
	)
	t.Cleanup(svc.Close)

	ids := seedEntities(source, 1000)

	// 400 are already cached.
	for _, id := range ids[:400] {
		svc.cache.Put(NewCacheKey(id, PurposeGrid, 320), costBitmap(10))
	}

	svc.pre.Warm(context.Background(), ids, PurposeGrid, 320)

	assert.Equal(t, 600, thumb.totalDecodes(), "only the uncached entities get decoded")
	for _, id := range ids[:400] {
		assert.Equal(t, 0, source.callCount(id), "cached entities must not be fetched")
	}
}

func TestPreheatIgnoresReorderingAndRerender(t *testing.T) {
	source := newFakeSource()
	thumb := newFakeThumb()
	svc := newTestService(t, source, thumb)

	ids := seedEntities(source, 10)
	svc.pre.Warm(context.Background(), ids, PurposeGrid, 320)
	require.Equal(t, 10, thumb.totalDecodes())

	// Same collection, reordered: no new work.
	reordered := append([]string{ids[9]}, ids[:9]...)
	svc.pre.Warm(context.Background(), reordered, PurposeGrid, 320)
	assert.Equal(t, 10, thumb.totalDecodes(), "reordering known items must not re-trigger preheating")

	// An addition triggers work for the new entity only.
	source.data["track-new"] = []byte("artwork:track-new")
	svc.pre.Warm(context.Background(), append(ids, "track-new"), PurposeGrid, 320)
	assert.Equal(t, 11, thumb.totalDecodes())
	assert.Equal(t, 1, source.callCount("track-new"))
}

func TestPreheatRemovedEntityReturnsAsNew(t *testing.T) {
	source := newFakeSource()
	thumb := newFakeThumb()
	svc := newTestService(t, source, thumb)

	ids := seedEntities(source, 4)
	svc.pre.Warm(context.Background(), ids, PurposeGrid, 320)
	require.Equal(t, 4, thumb.totalDecodes())

	// Entity leaves the collection, cache entry gets evicted, entity returns.
	svc.pre.Warm(context.Background(), ids[1:], PurposeGrid, 320)
	svc.cache.Remove(NewCacheKey(ids[0], PurposeGrid, 320))
	svc.pre.Warm(context.Background(), ids, PurposeGrid, 320)

	assert.Equal(t, 5, thumb.totalDecodes(), "a re-added entity is preheated again")
}

func TestPreheatDeduplicatesAgainstInFlightLoad(t *testing.T) {
	source := newFakeSource()
	thumb := newFakeThumb()
	thumb.gate = make(chan struct{})
	svc := newTestService(t, source, thumb)

	ids := seedEntities(source, 5)

	// A visible row already requested the first entity.
	h := svc.FetchThumbnail(context.Background(), ids[0], PurposeGrid, 320, nil)
	require.Eventually(t, func() bool {
		return thumb.totalDecodes() == 1
	}, 2*time.Second, time.Millisecond)

	warmDone := make(chan struct{})
	go func() {
		svc.pre.Warm(context.Background(), ids, PurposeGrid, 320)
		close(warmDone)
	}()

	// The preheater decodes the other four and skips the in-flight key.
	require.Eventually(t, func() bool {
		return thumb.totalDecodes() == 5
	}, 2*time.Second, time.Millisecond)
	close(thumb.gate)

	<-warmDone
	waitSettled(t, h)

	assert.Equal(t, 1, thumb.decodesFor(source.data[ids[0]]), "the in-flight key must not be decoded twice")
	assert.Equal(t, 5, thumb.totalDecodes())
}

func TestPreheatPurposesAreIndependent(t *testing.T) {
	source := newFakeSource()
	thumb := newFakeThumb()
	svc := newTestService(t, source, thumb)

	ids := seedEntities(source, 3)
	svc.pre.Warm(context.Background(), ids, PurposeGrid, 320)
	svc.pre.Warm(context.Background(), ids, PurposeList, 64)

	assert.Equal(t, 6, thumb.totalDecodes(), "each size class is its own rendering")
	assert.Equal(t, 6, svc.cache.Len())
}

func TestPreheatToleratesMissingArtwork(t *testing.T) {
	source := newFakeSource()
	thumb := newFakeThumb()
	svc := newTestService(t, source, thumb)

	svc.pre.Warm(context.Background(), []string{"no-art-1", "no-art-2"}, PurposeGrid, 320)

	assert.Equal(t, 0, thumb.totalDecodes())
	assert.Equal(t, 0, svc.cache.Len())
}

func TestPreheatCancelledContextStopsBatch(t *testing.T) {
	source := newFakeSource()
	thumb := newFakeThumb()
	svc := newTestService(t, source, thumb)

	ids := seedEntities(source, 50)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	svc.pre.Warm(ctx, ids, PurposeGrid, 320)

	assert.Equal(t, 0, thumb.totalDecodes(), "a dead context must not fan out decode work")
}

func TestServicePreheatCoalescesBursts(t *testing.T) {
	source := newFakeSource()
	thumb := newFakeThumb()
	svc := newTestService(t, source, thumb)

	ids := seedEntities(source, 20)
	for i := 0; i < 5; i++ {
		svc.Preheat(context.Background(), ids, PurposeGrid, 320)
	}

	require.Eventually(t, func() bool {
		return svc.cache.Len() == 20
	}, 5*time.Second, 5*time.Millisecond)
	assert.Equal(t, 20, thumb.totalDecodes(), "burst of identical hints decodes each entity once")
}

func TestPurgeAllowsRewarming(t *testing.T) {
	source := newFakeSource()
	thumb := newFakeThumb()
	svc := newTestService(t, source, thumb)

	ids := seedEntities(source, 5)
	svc.pre.Warm(context.Background(), ids, PurposeGrid, 320)
	require.Equal(t, 5, svc.cache.Len())

	svc.Purge()
	svc.pre.Warm(context.Background(), ids, PurposeGrid, 320)

	assert.Equal(t, 10, thumb.totalDecodes())
	assert.Equal(t, 5, svc.cache.Len())
}
