// Package telemetry collects host information for system_info, agent_info
// and heartbeat frames.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"runtime"
	"sort"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"

	"github.com/pilot-net/remote-agent/pkg/types"
)

const (
	topProcessLimit = 10
	serviceLimit    = 100
)

// Config for the provider.
type Config struct {
	// SampleInterval is the CPU percent measuring window. Default: 1s
	SampleInterval time.Duration

	// Version is reported in the agent self-metrics.
	Version string

	Logger *slog.Logger
}

// Provider gathers telemetry with gopsutil.
type Provider struct {
	sampleInterval time.Duration
	version        string
	startTime      time.Time
	goos           string
	listServices   func(ctx context.Context, limit int) ([]types.ServiceInfo, error)
	logger         *slog.Logger
}

// NewProvider creates a provider.
func NewProvider(cfg Config) *Provider {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.SampleInterval <= 0 {
		cfg.SampleInterval = time.Second
	}
	return &Provider{
		sampleInterval: cfg.SampleInterval,
		version:        cfg.Version,
		startTime:      time.Now(),
		goos:           runtime.GOOS,
		listServices:   listServices,
		logger:         cfg.Logger.With("component", "telemetry"),
	}
}

// QuickStats returns CPU, memory and root disk utilisation. Values that
// cannot be read are left at zero.
func (p *Provider) QuickStats(ctx context.Context) types.QuickStats {
	var stats types.QuickStats

	if pct, err := cpu.PercentWithContext(ctx, p.sampleInterval, false); err == nil && len(pct) > 0 {
		stats.CPUPercent = pct[0]
	} else if err != nil {
		p.logger.Debug("cpu percent unavailable", "error", err)
	}

	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		stats.MemoryPercent = vm.UsedPercent
	} else {
		p.logger.Debug("memory unavailable", "error", err)
	}

	if usage, err := disk.UsageWithContext(ctx, rootPath(p.goos)); err == nil {
		stats.DiskPercent = usage.UsedPercent
	} else {
		p.logger.Debug("disk usage unavailable", "error", err)
	}

	return stats
}

// Snapshot returns the full host description. Collection errors are
// recorded in the snapshot's Error field alongside whatever was gathered.
func (p *Provider) Snapshot(ctx context.Context) types.SystemSnapshot {
	var errs []error
	snap := types.SystemSnapshot{
		Platform: platformName(p.goos),
	}

	if info, err := host.InfoWithContext(ctx); err == nil {
		snap.Hostname = info.Hostname
		snap.PlatformRelease = info.KernelVersion
		snap.PlatformVersion = info.PlatformVersion
		snap.Architecture = info.KernelArch
	} else {
		errs = append(errs, fmt.Errorf("host info: %w", err))
	}
	if snap.Hostname == "" {
		snap.Hostname, _ = os.Hostname()
	}

	if infos, err := cpu.InfoWithContext(ctx); err == nil && len(infos) > 0 {
		snap.Processor = infos[0].ModelName
	}
	if n, err := cpu.CountsWithContext(ctx, true); err == nil {
		snap.CPUCount = n
	} else {
		snap.CPUCount = runtime.NumCPU()
	}
	if pct, err := cpu.PercentWithContext(ctx, p.sampleInterval, false); err == nil && len(pct) > 0 {
		snap.CPUPercent = pct[0]
	} else if err != nil {
		errs = append(errs, fmt.Errorf("cpu percent: %w", err))
	}

	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		snap.Memory = types.MemoryUsage{
			Total:     vm.Total,
			Available: vm.Available,
			Percent:   vm.UsedPercent,
		}
	} else {
		errs = append(errs, fmt.Errorf("memory: %w", err))
	}

	disks, err := p.disks(ctx)
	if err != nil {
		errs = append(errs, err)
	}
	snap.Disk = disks

	snap.Network = types.NetworkInfo{
		Hostname: snap.Hostname,
		IP:       resolveHostIP(ctx, snap.Hostname),
	}

	if p.goos == "windows" {
		services, err := p.services(ctx)
		if err != nil {
			errs = append(errs, err)
		}
		snap.Services = services
	}

	top, err := p.topProcesses(ctx)
	if err != nil {
		errs = append(errs, err)
	}
	snap.TopProcesses = top

	snap.Agent = p.agentProcess(ctx)

	if len(errs) > 0 {
		snap.Error = errors.Join(errs...).Error()
		p.logger.Warn("telemetry incomplete", "error", snap.Error)
	}
	return snap
}

func (p *Provider) disks(ctx context.Context) ([]types.DiskUsage, error) {
	parts, err := disk.PartitionsWithContext(ctx, false)
	if err != nil {
		return nil, fmt.Errorf("disk partitions: %w", err)
	}

	usages := make([]types.DiskUsage, 0, len(parts))
	for _, part := range parts {
		usage, err := disk.UsageWithContext(ctx, part.Mountpoint)
		if err != nil {
			// removable drives without media
			continue
		}
		usages = append(usages, types.DiskUsage{
			Device:     part.Device,
			Mountpoint: part.Mountpoint,
			Total:      usage.Total,
			Used:       usage.Used,
			Free:       usage.Free,
			Percent:    usage.UsedPercent,
		})
	}
	return usages, nil
}

func (p *Provider) services(ctx context.Context) ([]types.ServiceInfo, error) {
	services, err := p.listServices(ctx, serviceLimit)
	if err != nil {
		return nil, fmt.Errorf("listing services: %w", err)
	}
	if len(services) > serviceLimit {
		services = services[:serviceLimit]
	}
	return services, nil
}

func (p *Provider) topProcesses(ctx context.Context) (types.TopProcesses, error) {
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return types.TopProcesses{}, fmt.Errorf("listing processes: %w", err)
	}

	infos := make([]types.ProcessInfo, 0, len(procs))
	for _, proc := range procs {
		name, err := proc.NameWithContext(ctx)
		if err != nil {
			// exited or access denied
			continue
		}
		cpuPct, _ := proc.CPUPercentWithContext(ctx)
		memPct, _ := proc.MemoryPercentWithContext(ctx)
		infos = append(infos, types.ProcessInfo{
			PID:    proc.Pid,
			Name:   name,
			CPU:    cpuPct,
			Memory: memPct,
		})
	}

	return RankProcesses(infos, topProcessLimit), nil
}

// RankProcesses returns the limit heaviest processes by CPU and by memory.
func RankProcesses(infos []types.ProcessInfo, limit int) types.TopProcesses {
	byCPU := append([]types.ProcessInfo(nil), infos...)
	sort.SliceStable(byCPU, func(i, j int) bool { return byCPU[i].CPU > byCPU[j].CPU })

	byMem := append([]types.ProcessInfo(nil), infos...)
	sort.SliceStable(byMem, func(i, j int) bool { return byMem[i].Memory > byMem[j].Memory })

	if len(byCPU) > limit {
		byCPU = byCPU[:limit]
	}
	if len(byMem) > limit {
		byMem = byMem[:limit]
	}
	return types.TopProcesses{ByCPU: byCPU, ByMemory: byMem}
}

// agentProcess reports on the agent itself.
func (p *Provider) agentProcess(ctx context.Context) types.AgentProcess {
	ap := types.AgentProcess{
		Version:       p.version,
		Goroutines:    runtime.NumGoroutine(),
		UptimeSeconds: int64(time.Since(p.startTime).Seconds()),
	}

	proc, err := process.NewProcessWithContext(ctx, int32(os.Getpid()))
	if err == nil {
		if mi, err := proc.MemoryInfoWithContext(ctx); err == nil {
			ap.MemoryMB = float64(mi.RSS) / (1024 * 1024)
		}
	}
	return ap
}

func resolveHostIP(ctx context.Context, hostname string) string {
	if hostname == "" {
		return ""
	}
	addrs, err := net.DefaultResolver.LookupIPAddr(ctx, hostname)
	if err != nil {
		return ""
	}
	for _, a := range addrs {
		if v4 := a.IP.To4(); v4 != nil {
			return v4.String()
		}
	}
	if len(addrs) > 0 {
		return addrs[0].IP.String()
	}
	return ""
}

func rootPath(goos string) string {
	if goos == "windows" {
		return `C:\`
	}
	return "/"
}

func platformName(goos string) string {
	switch goos {
	case "linux":
		return "Linux"
	case "windows":
		return "Windows"
	case "darwin":
		return "Darwin"
	case "freebsd":
		return "FreeBSD"
	default:
		return goos
	}
}
