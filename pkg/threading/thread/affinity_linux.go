//go:build linux

package thread

import (
	"runtime"

	"golang.org/x/sys/unix"
)

// PinCPU locks the calling goroutine to its OS thread and restricts that
// thread to cpu. The returned function restores the previous mask and
// unlocks the goroutine; it must run on the same goroutine.
func PinCPU(cpu int) (func(), error) {
	runtime.LockOSThread()

	var prev unix.CPUSet
	if err := unix.SchedGetaffinity(0, &prev); err != nil {
		runtime.UnlockOSThread()
		return nil, err
	}

	var set unix.CPUSet
	set.Set(cpu)
	if err := unix.SchedSetaffinity(0, &set); err != nil {
		runtime.UnlockOSThread()
		return nil, err
	}

	return func() {
		_ = unix.SchedSetaffinity(0, &prev)
		runtime.UnlockOSThread()
	}, nil
}
