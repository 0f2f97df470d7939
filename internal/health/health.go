// Package health samples host resource usage and derives the health flag
// the agent reports with every heartbeat.
package health

import (
	"context"
	"runtime"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/lifeline-project/lifeline/internal/logging"
)

// SystemInfo describes the host the agent runs on.
type SystemInfo struct {
	Hostname      string `json:"hostname"`
	OS            string `json:"os"`
	Platform      string `json:"platform"`
	KernelVersion string `json:"kernel_version"`
	CPUCores      int    `json:"cpu_cores"`
	TotalMemoryMB uint64 `json:"total_memory_mb"`
}

// GetSystemInfo collects static facts about the host. Fields that cannot be
// read stay zero.
func GetSystemInfo() SystemInfo {
	info := SystemInfo{
		OS:       runtime.GOOS,
		CPUCores: runtime.NumCPU(),
	}

	if hi, err := host.Info(); err == nil {
		info.Hostname = hi.Hostname
		info.Platform = hi.Platform
		info.KernelVersion = hi.KernelVersion
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		info.TotalMemoryMB = vm.Total / 1024 / 1024
	}
	return info
}

// Sample is one point-in-time resource reading.
type Sample struct {
	At          time.Time `json:"at"`
	CPUPercent  float64   `json:"cpu_percent"`
	MemPercent  float64   `json:"mem_percent"`
	DiskPercent float64   `json:"disk_percent"`
}

// Thresholds are the usage ceilings above which the host is reported
// unhealthy.
type Thresholds struct {
	CPUPercent  float64
	MemPercent  float64
	DiskPercent float64
}

// DefaultThresholds leave generous headroom before the agent starts
// reporting Unhealthy.
func DefaultThresholds() Thresholds {
	return Thresholds{
		CPUPercent:  95.0,
		MemPercent:  95.0,
		DiskPercent: 98.0,
	}
}

// Monitor periodically samples resource usage and exposes a health verdict
// suitable for the agent's health callback.
type Monitor struct {
	thresholds Thresholds
	diskPath   string
	interval   time.Duration

	mu      sync.Mutex
	last    Sample
	healthy bool
}

// NewMonitor builds a monitor that checks usage against the given
// thresholds. diskPath is the mount to watch, typically the log folder.
func NewMonitor(thresholds Thresholds, diskPath string) *Monitor {
	if diskPath == "" {
		diskPath = "/"
	}
	return &Monitor{
		thresholds: thresholds,
		diskPath:   diskPath,
		interval:   15 * time.Second,
		healthy:    true,
	}
}

// Run samples in a loop until ctx is cancelled.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.sample()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.sample()
		}
	}
}

// Healthy reports the verdict from the most recent sample. Before the first
// sample completes the host counts as healthy.
func (m *Monitor) Healthy() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.healthy
}

// Last returns the most recent sample.
func (m *Monitor) Last() Sample {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.last
}

func (m *Monitor) sample() {
	logger := logging.Component("health")

	var s Sample
	s.At = time.Now().UTC()

	if percents, err := cpu.Percent(0, false); err == nil && len(percents) > 0 {
		s.CPUPercent = percents[0]
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		s.MemPercent = vm.UsedPercent
	}
	if du, err := disk.Usage(m.diskPath); err == nil {
		s.DiskPercent = du.UsedPercent
	}

	healthy := s.CPUPercent < m.thresholds.CPUPercent &&
		s.MemPercent < m.thresholds.MemPercent &&
		s.DiskPercent < m.thresholds.DiskPercent

	m.mu.Lock()
	wasHealthy := m.healthy
	m.last = s
	m.healthy = healthy
	m.mu.Unlock()

	if healthy != wasHealthy {
		logger.Warn().
			Bool("healthy", healthy).
			Float64("cpu_percent", s.CPUPercent).
			Float64("mem_percent", s.MemPercent).
			Float64("disk_percent", s.DiskPercent).
			Msg("host health changed")
	}
}
