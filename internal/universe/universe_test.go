package universe

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocate_PrefersBaseUniverseOverFallback(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "universes", "base_universe"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "universes", "base_universe", "base_universe.txt"), []byte("AAPL\n"), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "universes", "20260101"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "universes", "20260101", "universe_tickers.txt"), []byte("MSFT\n"), 0o644))

	got, err := Locate(root, "")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "universes", "base_universe", "base_universe.txt"), got)
}

func TestLocate_FallsBackToMostRecentDatedDir(t *testing.T) {
	root := t.TempDir()
	for _, date := range []string{"20260101", "20260202"} {
		dir := filepath.Join(root, "universes", date)
		require.NoError(t, os.MkdirAll(dir, 0o755))
		require.NoError(t, os.WriteFile(filepath.Join(dir, "universe_tickers.txt"), []byte("MSFT\n"), 0o644))
	}

	got, err := Locate(root, "")
	require.NoError(t, err)
	assert.Contains(t, got, "20260202")
}

func TestLocate_NothingFoundReturnsEmpty(t *testing.T) {
	got, err := Locate(t.TempDir(), "")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestLoad_FallsBackToDefaultUniverseWhenPathEmpty(t *testing.T) {
	got, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, DefaultUniverse, got)
}

func TestLoad_ReadsNonBlankLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tickers.txt")
	require.NoError(t, os.WriteFile(path, []byte("AAPL\n\nMSFT\n  \nTSLA\n"), 0o644))

	got, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"AAPL", "MSFT", "TSLA"}, got)
}

func TestFloatFactor_BaselineAndCap(t *testing.T) {
	assert.InDelta(t, 1.0, FloatFactor(10_000_000), 0.0001)
	assert.InDelta(t, 2.0, FloatFactor(1_000_000), 0.0001) // uncapped would be ~3.16
	assert.InDelta(t, 1.0, FloatFactor(0), 0.0001)          // unknown float -> neutral
}

func TestScore_HigherGapAndRelVolScoreHigher(t *testing.T) {
	low := Score(0.03, 2.0, 50_000_000)
	high := Score(0.08, 4.0, 10_000_000)
	assert.Greater(t, high, low)
}
