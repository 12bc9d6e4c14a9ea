package testutil

import (
	"os"
	"runtime"
	"testing"
	"time"
)

// CITimeout stretches base on CI runners, which are often slow to gather candidates.
func CITimeout(base time.Duration) time.Duration {
	if os.Getenv("CI") != "true" && os.Getenv("GITHUB_ACTIONS") != "true" {
		return base
	}
	multiplier := 2.0
	if runtime.GOOS == "windows" {
		multiplier = 3.0
	}
	return time.Duration(float64(base) * multiplier)
}

// SkipWithoutNetwork skips tests that bring up real peer connections.
func SkipWithoutNetwork(t *testing.T) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping peer connection test in short mode")
	}
	if os.Getenv("SKIP_NETWORK_TESTS") == "true" {
		t.Skip("SKIP_NETWORK_TESTS is set")
	}
}
