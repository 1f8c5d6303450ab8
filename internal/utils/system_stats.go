package utils

import (
	"runtime"
	"sync"
	"time"

	"facespace/internal/core/processor"

	"github.com/dustin/go-humanize"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
	log "github.com/sirupsen/logrus"
)

var (
	lastCPUTime        time.Time
	lastCPUUsage       float64
	cpuUsageMutex      sync.Mutex
	cpuUsageSampleRate = 500 * time.Millisecond
)

// SystemStats holds process, host and worker pool statistics.
type SystemStats struct {
	NumCPU          int     `json:"num_cpu"`
	GoRoutines      int     `json:"go_routines"`
	CPUUsage        float64 `json:"cpu_usage"`
	MemoryAlloc     uint64  `json:"memory_alloc"`
	MemorySys       uint64  `json:"memory_sys"`
	MemoryAllocText string  `json:"memory_alloc_text"`
	HostMemoryUsed  float64 `json:"host_memory_used_percent"`

	WorkerCount   int `json:"worker_count"`
	ActiveJobs    int `json:"active_jobs"`
	QueuedJobs    int `json:"queued_jobs"`
	QueueCapacity int `json:"queue_capacity"`

	Timestamp time.Time `json:"timestamp"`
}

// GetCPUUsage returns the total CPU usage in percent, sampled at most every 500ms.
func GetCPUUsage() float64 {
	cpuUsageMutex.Lock()
	defer cpuUsageMutex.Unlock()

	if !lastCPUTime.IsZero() && time.Since(lastCPUTime) < cpuUsageSampleRate {
		return lastCPUUsage
	}

	percentages, err := cpu.Percent(200*time.Millisecond, false)
	if err != nil {
		log.Warnf("Failed to measure CPU usage: %v", err)
		return 0.0
	}

	var usage float64
	if len(percentages) > 0 {
		usage = percentages[0]
	}

	lastCPUTime = time.Now()
	lastCPUUsage = usage
	return usage
}

// GetSystemStats collects the current statistics. workerPool may be nil.
func GetSystemStats(workerPool *processor.WorkerPool) *SystemStats {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	stats := &SystemStats{
		NumCPU:          runtime.NumCPU(),
		GoRoutines:      runtime.NumGoroutine(),
		CPUUsage:        GetCPUUsage(),
		MemoryAlloc:     memStats.Alloc,
		MemorySys:       memStats.Sys,
		MemoryAllocText: humanize.Bytes(memStats.Alloc),
		Timestamp:       time.Now(),
	}

	if vm, err := mem.VirtualMemory(); err == nil {
		stats.HostMemoryUsed = vm.UsedPercent
	} else {
		log.Debugf("Failed to read host memory: %v", err)
	}

	if workerPool != nil {
		stats.WorkerCount = workerPool.GetWorkerCount()
		stats.ActiveJobs = workerPool.ActiveJobCount()
		stats.QueuedJobs = workerPool.QueueLength()
		stats.QueueCapacity = workerPool.GetQueueCapacity()
	}

	return stats
}
