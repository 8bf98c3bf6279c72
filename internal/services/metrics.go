package services

import (
	"os"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"
)

type HostSnapshot struct {
	CapturedAt        time.Time `json:"captured_at"`
	Goroutines        int       `json:"goroutines"`
	ProcessRSSBytes   int64     `json:"process_rss_bytes"`
	ProcessCPULoad    float64   `json:"process_cpu_load"`
	SystemCPULoad     float64   `json:"system_cpu_load"`
	SystemMemoryTotal int64     `json:"system_memory_total_bytes"`
	SystemMemoryUsed  int64     `json:"system_memory_used_bytes"`
	UploadDiskTotal   int64     `json:"upload_disk_total_bytes"`
	UploadDiskUsed    int64     `json:"upload_disk_used_bytes"`
}

// CaptureHost samples process and host usage. Probes that fail leave their
// fields at zero.
func CaptureHost(uploadDir string) HostSnapshot {
	snap := HostSnapshot{
		CapturedAt: time.Now().UTC(),
		Goroutines: runtime.NumGoroutine(),
	}
	if proc, err := process.NewProcess(int32(os.Getpid())); err == nil {
		if rss, err := proc.MemoryInfo(); err == nil && rss != nil {
			snap.ProcessRSSBytes = int64(rss.RSS)
		}
		if cpuPerc, err := proc.CPUPercent(); err == nil {
			snap.ProcessCPULoad = cpuPerc / 100.0
		}
	}
	if sysCPU, err := cpu.Percent(0, false); err == nil && len(sysCPU) > 0 {
		snap.SystemCPULoad = sysCPU[0] / 100.0
	}
	if memStat, err := mem.VirtualMemory(); err == nil {
		snap.SystemMemoryTotal = int64(memStat.Total)
		snap.SystemMemoryUsed = int64(memStat.Total - memStat.Available)
	}
	diskStat, err := disk.Usage(uploadDir)
	if err != nil {
		diskStat, err = disk.Usage("/")
	}
	if err == nil && diskStat != nil {
		snap.UploadDiskTotal = int64(diskStat.Total)
		snap.UploadDiskUsed = int64(diskStat.Used)
	}
	return snap
}
