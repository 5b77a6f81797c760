//go:build !linux

package unixutil

const maxCPU = 1024

func LockMemory() error {
	return ErrUnsupported
}

func PinThread(cpu int) error {
	err := checkCPU(cpu)
	if err != nil {
		return err
	}
	return ErrUnsupported
}
