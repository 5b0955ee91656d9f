package threadpool

import (
	"testing"

	"go.uber.org/goleak"
)

// TestMain enables goroutine leak detection for all tests in this package.
// Every pool created by a test must be stopped with StopAll.
func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}
