package unixutil

import (
	"errors"
	"fmt"
)

var ErrUnsupported = errors.New("real-time setup not supported on this platform")

func checkCPU(cpu int) error {
	if cpu < 0 || cpu >= maxCPU {
		return fmt.Errorf("invalid CPU index %d", cpu)
	}
	return nil
}
