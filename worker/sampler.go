package worker

import (
	"runtime"
	"sync"
	"time"
)

// sampler reports process CPU usage as a percentage of one core over the
// interval since the previous sample, and memory obtained from the OS in MB.
type sampler struct {
	mu      sync.Mutex
	lastCPU time.Duration
	lastAt  time.Time
}

func newSampler() *sampler {
	return &sampler{lastCPU: processCPUTime(), lastAt: time.Now()}
}

func (s *sampler) sample() (cpuPercent, memoryMB float64) {
	s.mu.Lock()
	now := time.Now()
	cpu := processCPUTime()
	wall := now.Sub(s.lastAt)
	if wall > 0 {
		cpuPercent = float64(cpu-s.lastCPU) / float64(wall) * 100
	}
	s.lastCPU, s.lastAt = cpu, now
	s.mu.Unlock()

	if cpuPercent < 0 {
		cpuPercent = 0
	}

	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	memoryMB = float64(ms.Sys) / (1024 * 1024)
	return cpuPercent, memoryMB
}
