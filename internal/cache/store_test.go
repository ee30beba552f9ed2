package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cortexlabs/cortexcache/internal/clock"
	"github.com/cortexlabs/cortexcache/internal/config"
	"github.com/cortexlabs/cortexcache/internal/cortexerr"
	"github.com/cortexlabs/cortexcache/internal/fingerprint"
)

func testConfig() config.CacheConfig {
	c := config.Default().Cache
	c.MinTokens = 10
	c.MaxSizeBytes = 1000
	c.TTLSeconds = 3600
	c.PressureThreshold = 0.80
	c.EmergencyTarget = 0.70
	return c
}

func repeatWords(n int) string {
	s := ""
	for i := 0; i < n; i++ {
		s += "word "
	}
	return s
}

func TestStore_StoreAndGet(t *testing.T) {
	t.Run("store then get is a hit", func(t *testing.T) {
		// Arrange
		store := NewStore(testConfig(), clock.NewFake(time.Now()), nil)
		fp := fingerprint.Compute("select * from orders")
		content := []byte(repeatWords(20))

		// Act
		entry, err := store.Store(fp, content, "v1")
		require.NoError(t, err)
		require.NotNil(t, entry)

		got, hit := store.Get(fp)

		// Assert
		assert.True(t, hit)
		assert.Equal(t, content, got.Content)
	})

	t.Run("get on empty fingerprint is a miss", func(t *testing.T) {
		store := NewStore(testConfig(), clock.NewFake(time.Now()), nil)

		_, hit := store.Get(fingerprint.Compute("nothing stored"))

		assert.False(t, hit)
	})

	t.Run("content below minTokens is rejected", func(t *testing.T) {
		store := NewStore(testConfig(), clock.NewFake(time.Now()), nil)
		fp := fingerprint.Compute("tiny")

		// 7 words = 35 runes, estimated at 9 tokens (one below minTokens).
		_, err := store.Store(fp, []byte(repeatWords(7)), "v1")

		require.Error(t, err)
		assert.Equal(t, cortexerr.KindContentTooSmall, cortexerr.KindOf(err))
	})

	t.Run("content at exactly minTokens is accepted", func(t *testing.T) {
		store := NewStore(testConfig(), clock.NewFake(time.Now()), nil)
		fp := fingerprint.Compute("boundary")

		// 8 words = 40 runes, estimated at exactly 10 tokens.
		_, err := store.Store(fp, []byte(repeatWords(8)), "v1")

		assert.NoError(t, err)
	})

	t.Run("version mismatch is rejected", func(t *testing.T) {
		store := NewStore(testConfig(), clock.NewFake(time.Now()), nil)
		fp := fingerprint.Compute("versioned")

		_, err := store.Store(fp, []byte(repeatWords(20)), "v2")

		require.Error(t, err)
		assert.Equal(t, cortexerr.KindVersionMismatch, cortexerr.KindOf(err))
	})

	t.Run("oversized content is rejected", func(t *testing.T) {
		cfg := testConfig()
		cfg.MaxSizeBytes = 20
		store := NewStore(cfg, clock.NewFake(time.Now()), nil)
		fp := fingerprint.Compute("huge")

		_, err := store.Store(fp, []byte(repeatWords(20)), "v1")

		require.Error(t, err)
		assert.Equal(t, cortexerr.KindFull, cortexerr.KindOf(err))
	})

	t.Run("re-storing the same fingerprint replaces the entry", func(t *testing.T) {
		store := NewStore(testConfig(), clock.NewFake(time.Now()), nil)
		fp := fingerprint.Compute("replace me")

		_, err := store.Store(fp, []byte(repeatWords(20)), "v1")
		require.NoError(t, err)
		_, err = store.Store(fp, []byte(repeatWords(30)), "v1")
		require.NoError(t, err)

		got, hit := store.Get(fp)
		require.True(t, hit)
		assert.Equal(t, []byte(repeatWords(30)), got.Content)

		snap := store.Metrics()
		assert.Equal(t, 1, snap.CurrentEntries)
	})

	t.Run("stored entry is not mutable via the returned clone", func(t *testing.T) {
		store := NewStore(testConfig(), clock.NewFake(time.Now()), nil)
		fp := fingerprint.Compute("immutable")
		content := []byte(repeatWords(20))

		entry, err := store.Store(fp, content, "v1")
		require.NoError(t, err)

		entry.Content[0] = 'X'

		got, hit := store.Get(fp)
		require.True(t, hit)
		assert.NotEqual(t, byte('X'), got.Content[0])
	})
}

func TestStore_TTLExpiry(t *testing.T) {
	t.Run("entry expires after TTL elapses", func(t *testing.T) {
		// Arrange
		fake := clock.NewFake(time.Now())
		cfg := testConfig()
		cfg.TTLSeconds = 10
		store := NewStore(cfg, fake, nil)
		fp := fingerprint.Compute("expiring query")
		_, err := store.Store(fp, []byte(repeatWords(20)), "v1")
		require.NoError(t, err)

		// Act
		fake.Advance(11 * time.Second)
		_, hit := store.Get(fp)

		// Assert
		assert.False(t, hit)
		snap := store.Metrics()
		assert.Equal(t, int64(1), snap.Expirations)
	})

	t.Run("entry survives before TTL elapses", func(t *testing.T) {
		fake := clock.NewFake(time.Now())
		cfg := testConfig()
		cfg.TTLSeconds = 10
		store := NewStore(cfg, fake, nil)
		fp := fingerprint.Compute("fresh query")
		_, err := store.Store(fp, []byte(repeatWords(20)), "v1")
		require.NoError(t, err)

		fake.Advance(5 * time.Second)
		_, hit := store.Get(fp)

		assert.True(t, hit)
	})
}

func TestStore_Invalidate(t *testing.T) {
	t.Run("invalidate with empty prefix clears everything", func(t *testing.T) {
		store := NewStore(testConfig(), clock.NewFake(time.Now()), nil)
		fp1 := fingerprint.Compute("one")
		fp2 := fingerprint.Compute("two")
		_, _ = store.Store(fp1, []byte(repeatWords(20)), "v1")
		_, _ = store.Store(fp2, []byte(repeatWords(20)), "v1")

		count := store.Invalidate("")

		assert.Equal(t, 2, count)
		_, hit := store.Get(fp1)
		assert.False(t, hit)
	})
}

func TestStore_Eviction(t *testing.T) {
	t.Run("store past the pressure threshold evicts the least recently used entry", func(t *testing.T) {
		// Arrange: 250 bytes holds three 75-byte entries, but the third
		// pushes memory pressure to 0.90, above the 0.80 threshold.
		cfg := testConfig()
		cfg.MaxSizeBytes = 250
		cfg.MinTokens = 5
		fake := clock.NewFake(time.Now())
		store := NewStore(cfg, fake, nil)

		content := []byte(repeatWords(15)) // ~75 bytes

		fp1 := fingerprint.Compute("first query")
		fp2 := fingerprint.Compute("second query")
		fp3 := fingerprint.Compute("third query")

		_, err := store.Store(fp1, content, "v1")
		require.NoError(t, err)
		fake.Advance(time.Millisecond)
		_, err = store.Store(fp2, content, "v1")
		require.NoError(t, err)
		fake.Advance(time.Millisecond)
		_, err = store.Store(fp3, content, "v1")
		require.NoError(t, err)

		// Act: the third store's pressure cleanup scores fp1 highest (oldest
		// last_accessed, no hits), so stage-2 intelligent eviction removes it.
		_, hit1 := store.Get(fp1)

		// Assert: total size respects budget; oldest entry is gone.
		snap := store.Metrics()
		assert.LessOrEqual(t, snap.TotalSizeBytes, cfg.MaxSizeBytes)
		assert.False(t, hit1)
	})

	t.Run("entry exactly at capacity is accepted", func(t *testing.T) {
		cfg := testConfig()
		content := []byte(repeatWords(15))
		cfg.MaxSizeBytes = int64(len(content))
		cfg.MinTokens = 5
		store := NewStore(cfg, clock.NewFake(time.Now()), nil)

		_, err := store.Store(fingerprint.Compute("exact fit"), content, "v1")

		assert.NoError(t, err)
	})
}
