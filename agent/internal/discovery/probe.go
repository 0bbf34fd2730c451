package discovery

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/exec"
	"runtime"
	"strconv"
	"time"
)

// ErrNotFound is returned when a probe ran but found nothing.
var ErrNotFound = errors.New("not found")

// OSProbe wraps the platform network utilities discovery relies on.
//
// Implementations must be safe for concurrent Reachable calls.
type OSProbe interface {
	// ARPTable returns the IPv4 addresses currently in the ARP cache.
	ARPTable(ctx context.Context) ([]string, error)

	// DefaultGateway returns the IPv4 default gateway.
	DefaultGateway(ctx context.Context) (string, error)

	// LocalIP returns the IPv4 address of the interface used for
	// outbound traffic.
	LocalIP(ctx context.Context) (string, error)

	// Reachable reports whether a TCP connection to host:port can be
	// opened within timeout.
	Reachable(ctx context.Context, host string, port int, timeout time.Duration) bool
}

// CommandRunner runs an external command and returns its stdout.
type CommandRunner func(ctx context.Context, name string, args ...string) ([]byte, error)

// SystemProbe is the OSProbe backed by the host's own tools.
type SystemProbe struct {
	// GOOS selects the parsing strategy. Default: runtime.GOOS
	GOOS string

	// LocalIPProbeAddr is "dialed" over UDP to learn the outbound
	// interface address. UDP connect sends nothing.
	LocalIPProbeAddr string

	// Run and ReadFile are swappable for tests.
	Run      CommandRunner
	ReadFile func(name string) ([]byte, error)
}

// NewSystemProbe creates a probe for the running platform.
func NewSystemProbe(localIPProbeAddr string) *SystemProbe {
	if localIPProbeAddr == "" {
		localIPProbeAddr = "8.8.8.8:80"
	}
	return &SystemProbe{
		GOOS:             runtime.GOOS,
		LocalIPProbeAddr: localIPProbeAddr,
		Run:              runCommand,
		ReadFile:         os.ReadFile,
	}
}

// runCommand executes a tool and returns stdout.
func runCommand(ctx context.Context, name string, args ...string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	cmd := exec.CommandContext(ctx, name, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		// arp exits non-zero on an empty cache on some systems
		if stdout.Len() > 0 {
			return stdout.Bytes(), nil
		}
		return nil, fmt.Errorf("%s error: %v, stderr: %s", name, err, stderr.String())
	}
	return stdout.Bytes(), nil
}

// ARPTable reads the ARP cache.
func (p *SystemProbe) ARPTable(ctx context.Context) ([]string, error) {
	switch p.GOOS {
	case "linux":
		if data, err := p.ReadFile("/proc/net/arp"); err == nil {
			return ParseProcARP(data), nil
		}
		out, err := p.Run(ctx, "arp", "-an")
		if err != nil {
			return nil, fmt.Errorf("reading arp table: %w", err)
		}
		return ParseARPOutput(out), nil
	case "windows":
		out, err := p.Run(ctx, "arp", "-a")
		if err != nil {
			return nil, fmt.Errorf("reading arp table: %w", err)
		}
		return ParseARPOutput(out), nil
	default:
		out, err := p.Run(ctx, "arp", "-an")
		if err != nil {
			return nil, fmt.Errorf("reading arp table: %w", err)
		}
		return ParseARPOutput(out), nil
	}
}

// DefaultGateway looks up the default route.
func (p *SystemProbe) DefaultGateway(ctx context.Context) (string, error) {
	var gw string
	switch p.GOOS {
	case "linux":
		if data, err := p.ReadFile("/proc/net/route"); err == nil {
			gw = ParseProcRoute(data)
		}
		if gw == "" {
			out, err := p.Run(ctx, "ip", "route", "show", "default")
			if err != nil {
				return "", fmt.Errorf("detecting gateway: %w", err)
			}
			gw = ParseIPRouteDefault(out)
		}
	case "windows":
		out, err := p.Run(ctx, "ipconfig")
		if err != nil {
			return "", fmt.Errorf("detecting gateway: %w", err)
		}
		gw = ParseIPConfigGateway(out)
	default:
		out, err := p.Run(ctx, "route", "-n", "get", "default")
		if err != nil {
			return "", fmt.Errorf("detecting gateway: %w", err)
		}
		gw = ParseRouteGetGateway(out)
	}

	if gw == "" {
		return "", fmt.Errorf("default gateway: %w", ErrNotFound)
	}
	return gw, nil
}

// LocalIP returns the outbound interface address.
func (p *SystemProbe) LocalIP(ctx context.Context) (string, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "udp4", p.LocalIPProbeAddr)
	if err != nil {
		return "", fmt.Errorf("detecting local IP: %w", err)
	}
	defer conn.Close()

	addr, ok := conn.LocalAddr().(*net.UDPAddr)
	if !ok || addr.IP.To4() == nil {
		return "", fmt.Errorf("local IP: %w", ErrNotFound)
	}
	return addr.IP.String(), nil
}

// Reachable opens and immediately closes a TCP connection.
func (p *SystemProbe) Reachable(ctx context.Context, host string, port int, timeout time.Duration) bool {
	d := net.Dialer{Timeout: timeout}
	conn, err := d.DialContext(ctx, "tcp", net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		return false
	}
	conn.Close()
	return true
}
