package store

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/dylanmazurek/resolvarr/internal/config"
	"github.com/dylanmazurek/resolvarr/pkg/debrid/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T, window time.Duration) *Store {
	t.Helper()

	tmpDir := t.TempDir()
	config.SetConfigPath(tmpDir)
	if err := os.WriteFile(filepath.Join(tmpDir, "config.json"), []byte(`{"log_level":"error"}`), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
	config.Reload()

	s, err := Open(filepath.Join(tmpDir, "availability.db"), window)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func cachedEntry(name string) types.AvailabilityEntry {
	return types.AvailabilityEntry{
		Cached:    true,
		Files:     []types.AvailabilityFile{{Name: name, Size: 1024}},
		CheckedAt: time.Now(),
	}
}

func TestGetReturnsOnlyStoredHashes(t *testing.T) {
	s := openTestStore(t, time.Hour)

	require.NoError(t, s.Merge(map[string]types.AvailabilityEntry{
		"aaaa": cachedEntry("movie.mkv"),
	}))

	known, err := s.Get([]string{"aaaa", "bbbb"})
	require.NoError(t, err)
	require.Len(t, known, 1)
	assert.True(t, known["aaaa"].IsCached())
}

func TestGetExpiresUncachedEntries(t *testing.T) {
	s := openTestStore(t, 50*time.Millisecond)

	require.NoError(t, s.Merge(map[string]types.AvailabilityEntry{
		"cold": {Cached: false, CheckedAt: time.Now()},
		"hot":  cachedEntry("movie.mkv"),
	}))

	known, err := s.Get([]string{"cold", "hot"})
	require.NoError(t, err)
	assert.Len(t, known, 2)

	time.Sleep(80 * time.Millisecond)

	known, err = s.Get([]string{"cold", "hot"})
	require.NoError(t, err)
	require.Len(t, known, 1)
	assert.Contains(t, known, "hot", "cached entries never expire")
}

func TestMergeIsMonotonic(t *testing.T) {
	s := openTestStore(t, time.Hour)

	require.NoError(t, s.Merge(map[string]types.AvailabilityEntry{
		"aaaa": cachedEntry("movie.mkv"),
	}))

	// A later empty result must not erase the cached knowledge.
	require.NoError(t, s.Merge(map[string]types.AvailabilityEntry{
		"aaaa": {Cached: false, CheckedAt: time.Now()},
	}))

	known, err := s.Get([]string{"aaaa"})
	require.NoError(t, err)
	require.Contains(t, known, "aaaa")
	assert.True(t, known["aaaa"].IsCached())
	assert.Equal(t, "movie.mkv", known["aaaa"].Files[0].Name)
}

func TestMergeUpgradesUncachedEntry(t *testing.T) {
	s := openTestStore(t, time.Hour)

	require.NoError(t, s.Merge(map[string]types.AvailabilityEntry{
		"aaaa": {Cached: false, CheckedAt: time.Now()},
	}))
	require.NoError(t, s.Merge(map[string]types.AvailabilityEntry{
		"aaaa": cachedEntry("movie.mkv"),
	}))

	known, err := s.Get([]string{"aaaa"})
	require.NoError(t, err)
	assert.True(t, known["aaaa"].IsCached())
}

func TestSweepPrunesOnlyStaleUncached(t *testing.T) {
	s := openTestStore(t, 50*time.Millisecond)

	require.NoError(t, s.Merge(map[string]types.AvailabilityEntry{
		"stale":  {Cached: false, CheckedAt: time.Now().Add(-time.Minute)},
		"fresh":  {Cached: false, CheckedAt: time.Now()},
		"cached": cachedEntry("movie.mkv"),
	}))

	require.NoError(t, s.Sweep())

	stats, err := s.Stats()
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Cached)
	assert.Equal(t, 1, stats.Uncached)
}
