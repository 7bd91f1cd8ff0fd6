package promptcache

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewKey_NormalizesContent(t *testing.T) {
	a := NewKey("acknowledgment", "q01", "  Hello   World ")
	b := NewKey("acknowledgment", "q01", "hello world")
	assert.Equal(t, a, b)
}

func TestNewKey_ClassKeepsPromptKindsDistinct(t *testing.T) {
	a := NewKey("acknowledgment", "q01", "same text")
	b := NewKey("response_quality", "q01", "same text")
	assert.NotEqual(t, a, b)
}

func TestNewKey_PartBoundaries(t *testing.T) {
	// ("ab","c") and ("a","bc") must not collide
	a := NewKey("class", "ab", "c")
	b := NewKey("class", "a", "bc")
	assert.NotEqual(t, a, b)
}

func TestGetOrCompute_ComputesOnceThenHits(t *testing.T) {
	c := New()
	key := NewKey("test", "value")
	calls := 0

	for i := 0; i < 3; i++ {
		got, err := c.GetOrCompute(key, func() (string, error) {
			calls++
			return "computed", nil
		})
		require.NoError(t, err)
		assert.Equal(t, "computed", got)
	}
	assert.Equal(t, 1, calls)
	assert.Equal(t, 1, c.Len())
}

func TestGetOrCompute_ErrorsAreNotCached(t *testing.T) {
	c := New()
	key := NewKey("test", "flaky")

	_, err := c.GetOrCompute(key, func() (string, error) {
		return "", errors.New("transient")
	})
	require.Error(t, err)
	assert.Equal(t, 0, c.Len())

	got, err := c.GetOrCompute(key, func() (string, error) {
		return "recovered", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "recovered", got)
}

func TestGetOrCompute_ConcurrentCallsCollapse(t *testing.T) {
	c := New()
	key := NewKey("test", "concurrent")
	var computes atomic.Int32
	release := make(chan struct{})

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := c.GetOrCompute(key, func() (string, error) {
				computes.Add(1)
				<-release
				return "shared", nil
			})
			assert.NoError(t, err)
			assert.Equal(t, "shared", got)
		}()
	}

	close(release)
	wg.Wait()
	// singleflight collapses waiters; late arrivals hit the stored entry
	assert.LessOrEqual(t, computes.Load(), int32(2))
	assert.Equal(t, 1, c.Len())
}

func TestGet(t *testing.T) {
	c := New()
	key := NewKey("test", "get")

	_, ok := c.Get(key)
	assert.False(t, ok)

	_, err := c.GetOrCompute(key, func() (string, error) { return "v", nil })
	require.NoError(t, err)

	got, ok := c.Get(key)
	assert.True(t, ok)
	assert.Equal(t, "v", got)
}

func TestRemove(t *testing.T) {
	c := New()
	keep := NewKey("test", "keep")
	drop := NewKey("test", "drop")
	for _, k := range []Key{keep, drop} {
		_, err := c.GetOrCompute(k, func() (string, error) { return "v", nil })
		require.NoError(t, err)
	}

	c.Remove(drop)
	_, ok := c.Get(drop)
	assert.False(t, ok)
	_, ok = c.Get(keep)
	assert.True(t, ok)
}

func TestPurge(t *testing.T) {
	c := New()
	_, err := c.GetOrCompute(NewKey("test", "x"), func() (string, error) { return "v", nil })
	require.NoError(t, err)
	require.Equal(t, 1, c.Len())

	c.Purge()
	assert.Equal(t, 0, c.Len())
}
