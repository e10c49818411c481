// Package testing switches binaries into test mode so cmd packages can be
// built and imported by tests without opening connections.
package testing

import (
	"os"
	"sync"
	stdtesting "testing"
)

var once sync.Once

func ensureTestMode() {
	once.Do(func() {
		_ = os.Setenv("GESTION_TEST_MODE", "1")
		if os.Getenv("RBAC_SUPERADMIN_IDS") == "" {
			_ = os.Setenv("RBAC_SUPERADMIN_IDS", "1")
		}
	})
}

func init() {
	ensureTestMode()
}

func TestMain(m *stdtesting.M) {
	ensureTestMode()
	os.Exit(m.Run())
}
