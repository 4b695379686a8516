package display

import (
	"math"

	"github.com/shirou/gopsutil/v4/cpu"
)

// cpuSampler reports overall CPU usage between two calls.
type cpuSampler struct {
	percent func() ([]float64, error)
}

func newCPUSampler() *cpuSampler {
	return &cpuSampler{
		percent: func() ([]float64, error) {
			// Interval 0 compares against the previous call.
			return cpu.Percent(0, false)
		},
	}
}

// Percent returns the busy share since the previous call, or -1 when the
// counters cannot be read.
func (s *cpuSampler) Percent() int {
	values, err := s.percent()
	if err != nil || len(values) == 0 || math.IsNaN(values[0]) {
		return -1
	}
	p := int(math.Round(values[0]))
	switch {
	case p < 0:
		return 0
	case p > 100:
		return 100
	}
	return p
}
