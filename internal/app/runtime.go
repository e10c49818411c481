package app

import (
	"os"
	"strconv"
	"sync"
	"sync/atomic"
)

// TestModeEnv, when truthy, makes cmd/gestion and cmd/worker return before
// dialing Postgres or Redis. Package tests that import main rely on it.
const TestModeEnv = "GESTION_TEST_MODE"

var (
	skipStartup     atomic.Bool
	skipStartupOnce sync.Once
)

func loadSkipStartup() {
	on, err := strconv.ParseBool(os.Getenv(TestModeEnv))
	skipStartup.Store(err == nil && on)
}

// InTestMode reports whether the binaries should skip startup. The variable
// is read on first call; unparseable values count as off.
func InTestMode() bool {
	skipStartupOnce.Do(loadSkipStartup)
	return skipStartup.Load()
}

// RefreshTestMode re-reads TestModeEnv.
func RefreshTestMode() {
	skipStartupOnce.Do(func() {})
	loadSkipStartup()
}
