package app

import (
	"os"
	"strconv"
	"sync"
)

const testModeEnv = "TRADEFLOW_TEST_MODE"

var (
	testModeOnce  sync.Once
	testModeValue bool
)

// InTestMode reports whether binaries should exit before connecting to
// PostgreSQL and Redis. TRADEFLOW_TEST_MODE accepts any strconv.ParseBool form
// and is read once per process.
func InTestMode() bool {
	testModeOnce.Do(func() {
		testModeValue, _ = strconv.ParseBool(os.Getenv(testModeEnv))
	})
	return testModeValue
}
