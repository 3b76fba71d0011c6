package util

import (
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"
)

// Platform represents the current operating system.
type Platform string

const (
	PlatformWindows Platform = "windows"
	PlatformLinux   Platform = "linux"
	PlatformDarwin  Platform = "darwin"
	PlatformUnknown Platform = "unknown"
)

// GetPlatform returns the current platform.
func GetPlatform() Platform {
	switch runtime.GOOS {
	case "windows":
		return PlatformWindows
	case "linux":
		return PlatformLinux
	case "darwin":
		return PlatformDarwin
	default:
		return PlatformUnknown
	}
}

// SystemInfo holds information about the host system.
type SystemInfo struct {
	Platform     Platform `json:"platform"`
	Hostname     string   `json:"hostname"`
	OS           string   `json:"os"`
	Architecture string   `json:"architecture"`
	CPUModel     string   `json:"cpu_model"`
	CPUCores     int      `json:"cpu_cores"`
	TotalMemory  uint64   `json:"total_memory_mb"`
	GoVersion    string   `json:"go_version"`
}

// GetSystemInfo gathers system information. Fields gopsutil cannot read
// on this host are left empty.
func GetSystemInfo() SystemInfo {
	info := SystemInfo{
		Platform:     GetPlatform(),
		Architecture: runtime.GOARCH,
		CPUCores:     runtime.NumCPU(),
		GoVersion:    runtime.Version(),
	}

	if hostname, err := os.Hostname(); err == nil {
		info.Hostname = hostname
	}

	if hostInfo, err := host.Info(); err == nil {
		info.OS = fmt.Sprintf("%s %s", hostInfo.Platform, hostInfo.PlatformVersion)
	}

	if cpuInfo, err := cpu.Info(); err == nil && len(cpuInfo) > 0 {
		info.CPUModel = cpuInfo[0].ModelName
	}

	if memInfo, err := mem.VirtualMemory(); err == nil {
		info.TotalMemory = memInfo.Total / (1024 * 1024)
	}

	return info
}

// ProcessStats describes the bot process itself.
type ProcessStats struct {
	PID        int     `json:"pid"`
	Uptime     string  `json:"uptime"`
	RSSMB      uint64  `json:"rss_mb"`
	CPUPercent float64 `json:"cpu_percent"`
	Goroutines int     `json:"goroutines"`
}

var startTime = time.Now()

// GetProcessStats samples the current process.
func GetProcessStats() ProcessStats {
	stats := ProcessStats{
		PID:        os.Getpid(),
		Uptime:     time.Since(startTime).Truncate(time.Second).String(),
		Goroutines: runtime.NumGoroutine(),
	}

	proc, err := process.NewProcess(int32(stats.PID))
	if err != nil {
		return stats
	}
	if memInfo, err := proc.MemoryInfo(); err == nil {
		stats.RSSMB = memInfo.RSS / (1024 * 1024)
	}
	if pct, err := proc.CPUPercent(); err == nil {
		stats.CPUPercent = pct
	}
	return stats
}
