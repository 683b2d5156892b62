package geocode

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClient struct {
	calls  atomic.Int32
	lookup func(address string) (*Result, error)
}

func (f *fakeClient) Lookup(_ context.Context, address string) (*Result, error) {
	f.calls.Add(1)
	return f.lookup(address)
}

func matchAt(lat, lon float64) func(string) (*Result, error) {
	return func(string) (*Result, error) {
		return &Result{Latitude: lat, Longitude: lon, Matched: true, Source: "kakao"}, nil
	}
}

func TestCache_SecondResolveSkipsClient(t *testing.T) {
	fake := &fakeClient{lookup: matchAt(37.5, 127.0)}
	cache := NewCache(fake)

	first, err := cache.Resolve(context.Background(), "서울 강남구 삼성동")
	require.NoError(t, err)
	require.True(t, first.Matched)

	second, err := cache.Resolve(context.Background(), "서울 강남구 삼성동")
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, int32(1), fake.calls.Load(), "cache must short-circuit the second resolve")
}

func TestCache_NegativeResultCached(t *testing.T) {
	fake := &fakeClient{lookup: func(string) (*Result, error) {
		return &Result{Matched: false, Source: "kakao"}, nil
	}}
	cache := NewCache(fake)

	for i := 0; i < 3; i++ {
		r, err := cache.Resolve(context.Background(), "없는 주소")
		require.NoError(t, err)
		assert.False(t, r.Matched)
	}
	assert.Equal(t, int32(1), fake.calls.Load(), "known-bad addresses get one external call only")
}

func TestCache_EmptyAddressNoLookupNoEntry(t *testing.T) {
	fake := &fakeClient{lookup: matchAt(1, 2)}
	cache := NewCache(fake)

	r, err := cache.Resolve(context.Background(), "  ")
	require.NoError(t, err)
	assert.False(t, r.Matched)
	assert.Equal(t, int32(0), fake.calls.Load())
	assert.Equal(t, 0, cache.Stats().Size)
}

func TestCache_TrimmedKeySharesEntry(t *testing.T) {
	fake := &fakeClient{lookup: matchAt(37.5, 127.0)}
	cache := NewCache(fake)

	_, err := cache.Resolve(context.Background(), " 인천 송도동 ")
	require.NoError(t, err)
	_, err = cache.Resolve(context.Background(), "인천 송도동")
	require.NoError(t, err)
	assert.Equal(t, int32(1), fake.calls.Load())
}

func TestCache_ClearAndStats(t *testing.T) {
	fake := &fakeClient{lookup: func(addr string) (*Result, error) {
		if addr == "miss" {
			return &Result{Matched: false}, nil
		}
		return &Result{Latitude: 1, Longitude: 2, Matched: true}, nil
	}}
	cache := NewCache(fake)

	_, _ = cache.Resolve(context.Background(), "hit")
	_, _ = cache.Resolve(context.Background(), "miss")

	stats := cache.Stats()
	assert.Equal(t, 2, stats.Size)
	assert.Equal(t, 1, stats.Matched)
	assert.Equal(t, 1, stats.Unmatched)

	cache.Clear()
	assert.Equal(t, 0, cache.Stats().Size)

	_, _ = cache.Resolve(context.Background(), "hit")
	assert.Equal(t, int32(3), fake.calls.Load(), "clear forces a fresh lookup")
}

func TestCache_ConcurrentResolveIsSafe(t *testing.T) {
	fake := &fakeClient{lookup: matchAt(37.5, 127.0)}
	cache := NewCache(fake)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r, err := cache.Resolve(context.Background(), "서울 강남구 삼성동")
			assert.NoError(t, err)
			assert.True(t, r.Matched)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, cache.Stats().Size)
}
