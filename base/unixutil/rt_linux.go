//go:build linux

package unixutil

import (
	"runtime"

	"golang.org/x/sys/unix"
)

const maxCPU = 1024

// LockMemory locks all current and future pages of the process so that the
// control loop does not stall on page faults.
func LockMemory() error {
	return unix.Mlockall(unix.MCL_CURRENT | unix.MCL_FUTURE)
}

// PinThread locks the calling goroutine to its OS thread and restricts that
// thread to the given CPU. The goroutine must not be handed to other work
// afterwards.
func PinThread(cpu int) error {
	err := checkCPU(cpu)
	if err != nil {
		return err
	}
	runtime.LockOSThread()
	var set unix.CPUSet
	set.Zero()
	set.Set(cpu)
	err = unix.SchedSetaffinity(0 /* calling thread */, &set)
	if err != nil {
		runtime.UnlockOSThread()
		return err
	}
	return nil
}
