//go:build !linux

package thread

import "runtime"

// PinCPU locks the calling goroutine to its OS thread. CPU masks are not
// applied on this platform.
func PinCPU(cpu int) (func(), error) {
	runtime.LockOSThread()
	return runtime.UnlockOSThread, nil
}
