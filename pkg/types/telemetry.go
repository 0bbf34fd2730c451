package types

// =============================================================================
// TELEMETRY
// =============================================================================

// SystemSnapshot is the full host description sent in agent_info and
// system_info frames. The agent does not interpret it.
type SystemSnapshot struct {
	Hostname        string        `json:"hostname"`
	Platform        string        `json:"platform"`
	PlatformRelease string        `json:"platform_release"`
	PlatformVersion string        `json:"platform_version"`
	Architecture    string        `json:"architecture"`
	Processor       string        `json:"processor"`
	CPUCount        int           `json:"cpu_count"`
	CPUPercent      float64       `json:"cpu_percent"`
	Memory          MemoryUsage   `json:"memory"`
	Disk            []DiskUsage   `json:"disk"`
	Network         NetworkInfo   `json:"network"`
	Services        []ServiceInfo `json:"services,omitempty"`
	TopProcesses    TopProcesses  `json:"top_processes"`
	Agent           AgentProcess  `json:"agent"`

	// Error is set when collection failed partway; the fields above hold
	// whatever was gathered before the failure.
	Error string `json:"error,omitempty"`
}

// MemoryUsage is virtual memory in bytes.
type MemoryUsage struct {
	Total     uint64  `json:"total"`
	Available uint64  `json:"available"`
	Percent   float64 `json:"percent"`
}

// DiskUsage describes one mounted partition.
type DiskUsage struct {
	Device     string  `json:"device"`
	Mountpoint string  `json:"mountpoint"`
	Total      uint64  `json:"total"`
	Used       uint64  `json:"used"`
	Free       uint64  `json:"free"`
	Percent    float64 `json:"percent"`
}

// NetworkInfo is the host's name and primary address.
type NetworkInfo struct {
	Hostname string `json:"hostname"`
	IP       string `json:"ip"`
}

// ServiceInfo is one Windows service from the service control manager.
type ServiceInfo struct {
	Name        string `json:"name"`
	DisplayName string `json:"display_name,omitempty"`
	State       string `json:"state,omitempty"`
}

// ProcessInfo is a process ranked by CPU or memory.
type ProcessInfo struct {
	PID    int32   `json:"pid"`
	Name   string  `json:"name"`
	CPU    float64 `json:"cpu"`
	Memory float32 `json:"memory"`
}

// TopProcesses holds the heaviest processes by each measure.
type TopProcesses struct {
	ByCPU    []ProcessInfo `json:"by_cpu"`
	ByMemory []ProcessInfo `json:"by_memory"`
}

// AgentProcess describes the agent process itself.
type AgentProcess struct {
	Version       string  `json:"version"`
	Goroutines    int     `json:"goroutines"`
	MemoryMB      float64 `json:"memory_mb"`
	UptimeSeconds int64   `json:"uptime_seconds"`
}

// QuickStats is the small payload sent with heartbeats and quick_stats.
type QuickStats struct {
	CPUPercent    float64 `json:"cpu_percent"`
	MemoryPercent float64 `json:"memory_percent"`
	DiskPercent   float64 `json:"disk_percent"`
}
