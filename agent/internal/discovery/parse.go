package discovery

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"net"
	"regexp"
	"strings"
)

var ipv4Pattern = regexp.MustCompile(`\b(\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3})\b`)

// gatewayLabels are the "Default Gateway" labels printed by ipconfig in
// the locales we have seen in the field.
var gatewayLabels = []string{
	"Default Gateway",
	"Passerelle par défaut",
	"Standardgateway",
	"Puerta de enlace predeterminada",
	"Gateway Padrão",
	"Gateway predefinito",
}

// firstIPv4 returns the first valid IPv4 address in s.
func firstIPv4(s string) string {
	for _, m := range ipv4Pattern.FindAllString(s, -1) {
		if ip := net.ParseIP(m); ip != nil && ip.To4() != nil {
			return m
		}
	}
	return ""
}

// ParseARPOutput extracts addresses from `arp -a` / `arp -an` output.
//
// Windows:
//
//	Interface: 192.168.1.20 --- 0x4
//	  Internet Address      Physical Address      Type
//	  192.168.1.1           00-11-22-33-44-55     dynamic
//
// BSD, macOS and net-tools:
//
//	? (192.168.1.1) at 0:11:22:33:44:55 on en0 ifscope [ethernet]
//
// Interface header lines and incomplete entries are skipped. One address
// per line, in output order.
func ParseARPOutput(output []byte) []string {
	var ips []string
	scanner := bufio.NewScanner(bytes.NewReader(output))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "Interface:") {
			continue
		}
		if strings.Contains(line, "incomplete") {
			continue
		}
		if ip := firstIPv4(line); ip != "" {
			ips = append(ips, ip)
		}
	}
	return ips
}

// ParseProcARP parses /proc/net/arp.
//
//	IP address       HW type     Flags       HW address            Mask     Device
//	192.168.1.1      0x1         0x2         00:11:22:33:44:55     *        eth0
//
// Entries with flags 0x0 are incomplete and skipped.
func ParseProcARP(data []byte) []string {
	var ips []string
	scanner := bufio.NewScanner(bytes.NewReader(data))
	first := true
	for scanner.Scan() {
		if first {
			first = false
			continue
		}
		fields := strings.Fields(scanner.Text())
		if len(fields) < 3 {
			continue
		}
		if fields[2] == "0x0" {
			continue
		}
		if ip := net.ParseIP(fields[0]); ip != nil && ip.To4() != nil {
			ips = append(ips, fields[0])
		}
	}
	return ips
}

// ParseProcRoute finds the default gateway in /proc/net/route. Addresses
// there are little-endian hex.
//
//	Iface  Destination  Gateway   Flags  RefCnt  Use  Metric  Mask      ...
//	eth0   00000000     0101A8C0  0003   0       0    100     00000000  ...
func ParseProcRoute(data []byte) string {
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 8 || fields[1] != "00000000" {
			continue
		}
		raw, err := hex.DecodeString(fields[2])
		if err != nil || len(raw) != 4 {
			continue
		}
		ip := make(net.IP, 4)
		binary.BigEndian.PutUint32(ip, binary.LittleEndian.Uint32(raw))
		if ip.IsUnspecified() {
			continue
		}
		return ip.String()
	}
	return ""
}

// ParseIPRouteDefault parses `ip route show default`:
//
//	default via 192.168.1.1 dev eth0 proto dhcp metric 100
func ParseIPRouteDefault(output []byte) string {
	scanner := bufio.NewScanner(bytes.NewReader(output))
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		for i := 0; i+1 < len(fields); i++ {
			if fields[i] == "via" {
				if ip := firstIPv4(fields[i+1]); ip != "" {
					return ip
				}
			}
		}
	}
	return ""
}

// ParseIPConfigGateway finds the default gateway in Windows ipconfig output.
//
// When the label line carries only an IPv6 address, the IPv4 gateway is
// printed on the following indented line:
//
//	Default Gateway . . . . . . . . . : fe80::1%12
//	                                    192.168.1.1
func ParseIPConfigGateway(output []byte) string {
	lines := strings.Split(strings.ReplaceAll(string(output), "\r\n", "\n"), "\n")
	for i, line := range lines {
		if !hasGatewayLabel(line) {
			continue
		}
		if ip := firstIPv4(line); ip != "" {
			return ip
		}
		for j := i + 1; j < len(lines); j++ {
			next := lines[j]
			if strings.TrimSpace(next) == "" || (strings.Contains(next, ":") && strings.Contains(next, ". .")) {
				break
			}
			if ip := firstIPv4(next); ip != "" {
				return ip
			}
		}
	}
	return ""
}

func hasGatewayLabel(line string) bool {
	for _, label := range gatewayLabels {
		if strings.Contains(line, label) {
			return true
		}
	}
	return false
}

// ParseRouteGetGateway parses `route -n get default` on macOS and BSD:
//
//	   route to: default
//	destination: default
//	    gateway: 192.168.1.1
func ParseRouteGetGateway(output []byte) string {
	scanner := bufio.NewScanner(bytes.NewReader(output))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if v, ok := strings.CutPrefix(line, "gateway:"); ok {
			return firstIPv4(v)
		}
	}
	return ""
}

// IsMulticastOrBroadcast reports whether an ARP address must not be probed:
// 224.* multicast or a .255 broadcast address.
func IsMulticastOrBroadcast(ip string) bool {
	return strings.HasPrefix(ip, "224.") || strings.HasSuffix(ip, ".255")
}

// Subnet24 returns the first three octets of an IPv4 address.
func Subnet24(ip string) (string, bool) {
	parsed := net.ParseIP(ip)
	if parsed == nil || parsed.To4() == nil {
		return "", false
	}
	v4 := parsed.To4()
	return fmt.Sprintf("%d.%d.%d", v4[0], v4[1], v4[2]), true
}
