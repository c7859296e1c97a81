// Package universe discovers the base list of symbols PreMarketScanner
// scans every morning and scores the gappers that clear its filters.
// Adapted from original_source/core/premarket_scanner.py's
// _find_base_universe/load_base_universe/calculate_score, with the
// directory fallback search rewritten around bmatcuk/doublestar/v4 glob
// patterns instead of a manual os.listdir + sort + loop.
package universe

import (
	"bufio"
	"fmt"
	"math"
	"os"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// DefaultUniverse is used only when no universe file can be found at all —
// the original's DEFAULT_UNIVERSE fallback of a handful of liquid names.
var DefaultUniverse = []string{
	"AAPL", "MSFT", "AMZN", "TSLA", "NVDA", "AMD", "META", "GOOGL",
}

// Locate finds the base-universe ticker file the same way
// _find_base_universe does, in priority order:
//  1. universes/base_universe/base_universe.txt
//  2. the explicitly configured path, if non-empty
//  3. the most recently dated universes/<date>/universe_tickers.txt
//
// Locate returns "" if nothing is found, signaling the caller to fall back
// to DefaultUniverse.
func Locate(root, configuredPath string) (string, error) {
	basePath := root + "/universes/base_universe/base_universe.txt"
	if fileExists(basePath) {
		return basePath, nil
	}
	if configuredPath != "" && fileExists(configuredPath) {
		return configuredPath, nil
	}

	matches, err := doublestar.Glob(os.DirFS(root), "universes/*/universe_tickers.txt")
	if err != nil {
		return "", fmt.Errorf("glob universes: %w", err)
	}
	if len(matches) == 0 {
		return "", nil
	}
	// universes/<date>/universe_tickers.txt directories sort lexically by
	// date, so the last match after a sort is the most recent, matching the
	// original's `sorted(..., reverse=True)` then first-hit loop.
	sort.Strings(matches)
	return root + "/" + matches[len(matches)-1], nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// Load reads newline-delimited tickers from path, skipping blank lines,
// falling back to DefaultUniverse if path is empty or the file does not
// exist; any other open or read error is returned.
func Load(path string) ([]string, error) {
	if path == "" {
		return append([]string(nil), DefaultUniverse...), nil
	}
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return append([]string(nil), DefaultUniverse...), nil
		}
		return nil, fmt.Errorf("open universe file %s: %w", path, err)
	}
	defer f.Close()

	var tickers []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		tickers = append(tickers, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read universe file %s: %w", path, err)
	}
	return tickers, nil
}

// FloatFactor normalizes a symbol's share float against a 10M-share
// baseline as 1/sqrt(float/10M), capped at 2x (a 2.5M-float name already
// reaches the cap), per calculate_score's float_factor. Returns 1.0 (neutral) when
// floatShares is unknown.
func FloatFactor(floatShares float64) float64 {
	if floatShares <= 0 {
		return 1.0
	}
	factor := 1 / math.Sqrt(floatShares/10_000_000)
	if factor > 2.0 {
		return 2.0
	}
	return factor
}

// Score ranks a premarket gapper for watchlist inclusion: gap% x
// relative_volume x float_factor, per calculate_score. floatShares of 0
// skips the float-factor adjustment (data not available for the symbol).
func Score(gapPct, relativeVolume, floatShares float64) float64 {
	return gapPct * relativeVolume * 100 * FloatFactor(floatShares)
}

// NormalizePremarketVolume projects pre-market volume to a full-day
// equivalent before computing relative volume, per scan_stock's comment
// that pre-market spans ~5.5 hours against a 6.5-hour regular session.
func NormalizePremarketVolume(premarketVolume float64) float64 {
	return premarketVolume * (6.5 / 5.5)
}
