// Package discovery finds the control server on an unknown local network.
//
// # Tiers
//
// Unless an explicit server URL is configured, candidates are appended in
// strict priority order, never twice:
//
//  1. localhost
//  2. default gateway
//  3. ARP cache hosts with the server port open
//  4. common host octets in the local /24 (only if tier 3 found nothing)
//  5. well-known DNS names
//  6. common private gateway addresses (only if tiers 3 and 4 found nothing)
//
// Known topology is tried before blind scanning, and the subnet sweep is
// skipped when the ARP cache already answered.
//
// # Probing
//
// Port checks inside a tier run on a bounded pool and are paced by a token
// bucket. Results keep the tier's input order.
package discovery

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/pilot-net/remote-agent/agent/internal/config"
)

// Report summarises one discovery run.
type Report struct {
	Explicit      bool
	Gateway       string
	ARPHosts      int // addresses eligible for probing
	ARPServers    int // of which had the port open
	SweepRan      bool
	SweepServers  int
	FallbackAdded bool
}

// FoundServers reports whether the ARP tier or the sweep found a server.
func (r Report) FoundServers() bool {
	return r.ARPServers > 0 || r.SweepServers > 0
}

// Generator produces the ordered candidate list.
type Generator struct {
	serverURL string
	cfg       config.DiscoveryConfig
	probe     OSProbe
	limiter   *rate.Limiter
	logger    *slog.Logger
}

// NewGenerator creates a generator. serverURL is the configured endpoint;
// empty or "auto" enables discovery.
func NewGenerator(serverURL string, cfg config.DiscoveryConfig, probe OSProbe, logger *slog.Logger) *Generator {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.ProbeConcurrency <= 0 {
		cfg.ProbeConcurrency = 1
	}

	limit := rate.Inf
	if cfg.ProbeRate > 0 {
		limit = rate.Limit(cfg.ProbeRate)
	}

	return &Generator{
		serverURL: serverURL,
		cfg:       cfg,
		probe:     probe,
		limiter:   rate.NewLimiter(limit, cfg.ProbeConcurrency),
		logger:    logger.With("component", "discovery"),
	}
}

// Generate builds the candidate list and logs what each tier found.
func (g *Generator) Generate(ctx context.Context) *CandidateList {
	list, report := g.GenerateWithReport(ctx)
	g.logger.Info("discovery complete",
		"candidates", list.Len(),
		"explicit", report.Explicit,
		"gateway", report.Gateway,
		"arp_hosts", report.ARPHosts,
		"arp_servers", report.ARPServers,
		"sweep_ran", report.SweepRan,
		"sweep_servers", report.SweepServers,
		"fallback_added", report.FallbackAdded)
	return list
}

// GenerateWithReport builds the candidate list.
func (g *Generator) GenerateWithReport(ctx context.Context) (*CandidateList, Report) {
	if g.serverURL != "" && g.serverURL != config.AutoDiscover {
		return NewCandidateList(g.serverURL), Report{Explicit: true}
	}

	var report Report
	list := NewCandidateList()

	g.logger.Info("starting server discovery")

	// Tier 1: same machine
	for _, host := range g.cfg.LocalHosts {
		list.Add(g.url(host))
	}

	// Tier 2: default gateway
	if gw, err := g.probe.DefaultGateway(ctx); err != nil {
		g.logger.Warn("could not detect gateway", "error", err)
	} else if gw != "" && gw != "0.0.0.0" {
		g.logger.Info("detected gateway", "gateway", gw)
		report.Gateway = gw
		list.Add(g.url(gw))
	}

	// Tier 3: ARP cache, filtered to hosts with the port open
	arpIPs, err := g.probe.ARPTable(ctx)
	if err != nil {
		g.logger.Warn("could not scan ARP table", "error", err)
	}
	var eligible []string
	seen := make(map[string]bool)
	for _, ip := range arpIPs {
		if IsMulticastOrBroadcast(ip) || seen[ip] || list.Contains(g.url(ip)) {
			continue
		}
		seen[ip] = true
		eligible = append(eligible, ip)
	}
	report.ARPHosts = len(eligible)
	if len(eligible) > 0 {
		g.logger.Info("checking ARP hosts", "hosts", len(eligible), "port", g.cfg.Port)
		for _, ip := range g.probeAll(ctx, eligible, g.cfg.ARPProbeTimeout) {
			if list.Add(g.url(ip)) {
				report.ARPServers++
			}
		}
	}

	// Tier 4: subnet sweep, only when ARP found nothing
	if report.ARPServers == 0 {
		report.SweepRan = true
		report.SweepServers = g.sweep(ctx, list)
	}

	// Tier 5: well-known names
	for _, name := range g.cfg.DNSNames {
		list.Add(g.url(name))
	}

	// Tier 6: last-resort private gateways
	if !report.FoundServers() {
		g.logger.Info("no servers found, adding fallback addresses")
		for _, ip := range g.cfg.FallbackIPs {
			list.Add(g.url(ip))
		}
		report.FallbackAdded = true
	}

	return list, report
}

// sweep probes the configured host octets of the local /24 and appends
// those with the port open. Returns how many were added.
func (g *Generator) sweep(ctx context.Context, list *CandidateList) int {
	localIP, err := g.probe.LocalIP(ctx)
	if err != nil {
		g.logger.Warn("could not detect local IP", "error", err)
		return 0
	}
	prefix, ok := Subnet24(localIP)
	if !ok {
		g.logger.Warn("local IP is not IPv4", "ip", localIP)
		return 0
	}

	g.logger.Info("scanning subnet",
		"local_ip", localIP,
		"subnet", prefix+".0/24",
		"hosts", len(g.cfg.SweepHosts),
		"port", g.cfg.Port)

	hosts := make([]string, 0, len(g.cfg.SweepHosts))
	for _, octet := range g.cfg.SweepHosts {
		ip := fmt.Sprintf("%s.%d", prefix, octet)
		if !list.Contains(g.url(ip)) {
			hosts = append(hosts, ip)
		}
	}

	added := 0
	for _, ip := range g.probeAll(ctx, hosts, g.cfg.SweepProbeTimeout) {
		if list.Add(g.url(ip)) {
			added++
		}
	}
	return added
}

// probeAll checks hosts concurrently and returns the reachable ones in
// input order.
func (g *Generator) probeAll(ctx context.Context, hosts []string, timeout time.Duration) []string {
	open := make([]bool, len(hosts))

	var eg errgroup.Group
	eg.SetLimit(g.cfg.ProbeConcurrency)
	for i, host := range hosts {
		eg.Go(func() error {
			if err := g.limiter.Wait(ctx); err != nil {
				return nil
			}
			if g.probe.Reachable(ctx, host, g.cfg.Port, timeout) {
				g.logger.Info("port open", "host", host, "port", g.cfg.Port)
				open[i] = true
			}
			return nil
		})
	}
	_ = eg.Wait()

	var reachable []string
	for i, ok := range open {
		if ok {
			reachable = append(reachable, hosts[i])
		}
	}
	return reachable
}

func (g *Generator) url(host string) string {
	return "ws://" + net.JoinHostPort(host, strconv.Itoa(g.cfg.Port))
}
