package unixutil_test

import (
	"testing"

	"github.com/Samitrad/MSD2/base/unixutil"
)

func TestPinThreadRejectsInvalidCPU(t *testing.T) {
	tests := []struct {
		name string
		cpu  int
	}{
		{"Negative index", -1},
		{"Too large", 1 << 20},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := unixutil.PinThread(tt.cpu)
			if err == nil {
				t.Errorf("PinThread(%d) succeeded; want error", tt.cpu)
			}
		})
	}
}
