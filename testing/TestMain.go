// Package testing switches the process into test mode when imported by a
// test binary.
package testing

import (
	"os"
	"sync"
	stdtesting "testing"
)

var once sync.Once

func ensureTestMode() {
	once.Do(func() {
		_ = os.Setenv("MARKETDESK_TEST_MODE", "1")
		if os.Getenv("SIGNIN_RATE_PER_MINUTE") == "" {
			_ = os.Setenv("SIGNIN_RATE_PER_MINUTE", "1000")
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
