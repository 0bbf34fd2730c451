package discovery

import (
	"context"
	"errors"
	"reflect"
	"testing"
)

const windowsARP = `
Interface: 192.168.1.20 --- 0x4
  Internet Address      Physical Address      Type
  192.168.1.1           00-11-22-33-44-55     dynamic
  192.168.1.34          66-77-88-99-aa-bb     dynamic
  192.168.1.255         ff-ff-ff-ff-ff-ff     static
  224.0.0.22            01-00-5e-00-00-16     static
`

const bsdARP = `? (10.0.0.1) at 0:11:22:33:44:55 on en0 ifscope [ethernet]
? (10.0.0.12) at (incomplete) on en0 ifscope [ethernet]
? (10.0.0.14) at a4:83:e7:1:2:3 on en0 ifscope [ethernet]
`

func TestParseARPOutput(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []string
	}{
		{
			name:  "windows",
			input: windowsARP,
			want:  []string{"192.168.1.1", "192.168.1.34", "192.168.1.255", "224.0.0.22"},
		},
		{
			name:  "bsd",
			input: bsdARP,
			want:  []string{"10.0.0.1", "10.0.0.14"},
		},
		{
			name:  "empty",
			input: "",
			want:  nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseARPOutput([]byte(tt.input))
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestParseProcARP(t *testing.T) {
	input := `IP address       HW type     Flags       HW address            Mask     Device
172.17.0.1       0x1         0x2         02:42:5d:1e:00:01     *        eth0
172.17.0.9       0x1         0x0         00:00:00:00:00:00     *        eth0
172.17.0.3       0x1         0x2         02:42:ac:11:00:03     *        eth0
`
	got := ParseProcARP([]byte(input))
	want := []string{"172.17.0.1", "172.17.0.3"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestParseProcRoute(t *testing.T) {
	input := `Iface	Destination	Gateway 	Flags	RefCnt	Use	Metric	Mask		MTU	Window	IRTT
eth0	0011A8C0	00000000	0001	0	0	0	00FFFFFF	0	0	0
eth0	00000000	0101A8C0	0003	0	0	100	00000000	0	0	0
`
	if got := ParseProcRoute([]byte(input)); got != "192.168.1.1" {
		t.Errorf("got %q, want 192.168.1.1", got)
	}

	noDefault := `Iface	Destination	Gateway 	Flags	RefCnt	Use	Metric	Mask		MTU	Window	IRTT
eth0	0011A8C0	00000000	0001	0	0	0	00FFFFFF	0	0	0
`
	if got := ParseProcRoute([]byte(noDefault)); got != "" {
		t.Errorf("expected no gateway, got %q", got)
	}
}

func TestParseIPRouteDefault(t *testing.T) {
	out := "default via 10.1.0.1 dev wlan0 proto dhcp metric 600\n"
	if got := ParseIPRouteDefault([]byte(out)); got != "10.1.0.1" {
		t.Errorf("got %q", got)
	}
}

func TestParseIPConfigGateway(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name: "english",
			input: "Ethernet adapter Ethernet:\r\n\r\n" +
				"   IPv4 Address. . . . . . . . . . . : 192.168.1.20\r\n" +
				"   Subnet Mask . . . . . . . . . . . : 255.255.255.0\r\n" +
				"   Default Gateway . . . . . . . . . : 192.168.1.1\r\n",
			want: "192.168.1.1",
		},
		{
			name: "french",
			input: "   Adresse IPv4. . . . . . . . . . . . . .: 10.0.0.20\r\n" +
				"   Passerelle par défaut. . . . . . . . . : 10.0.0.254\r\n",
			want: "10.0.0.254",
		},
		{
			name: "ipv6 first then continuation",
			input: "   Default Gateway . . . . . . . . . : fe80::1%12\r\n" +
				"                                       172.16.5.1\r\n" +
				"   DHCP Server . . . . . . . . . . . : 172.16.5.2\r\n",
			want: "172.16.5.1",
		},
		{
			name: "empty gateway",
			input: "   Default Gateway . . . . . . . . . : \r\n" +
				"   DHCP Server . . . . . . . . . . . : 172.16.5.2\r\n",
			want: "",
		},
		{
			name:  "german",
			input: "   Standardgateway . . . . . . . . . : 192.168.178.1\n",
			want:  "192.168.178.1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ParseIPConfigGateway([]byte(tt.input)); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestParseRouteGetGateway(t *testing.T) {
	out := `   route to: default
destination: default
       mask: default
    gateway: 192.168.86.1
  interface: en0
`
	if got := ParseRouteGetGateway([]byte(out)); got != "192.168.86.1" {
		t.Errorf("got %q", got)
	}
}

func TestIsMulticastOrBroadcast(t *testing.T) {
	tests := map[string]bool{
		"224.0.0.22":    true,
		"192.168.1.255": true,
		"192.168.1.25":  false,
		"10.224.0.1":    false,
		"10.0.0.1":      false,
	}
	for ip, want := range tests {
		if got := IsMulticastOrBroadcast(ip); got != want {
			t.Errorf("%s: got %v, want %v", ip, got, want)
		}
	}
}

func TestSubnet24(t *testing.T) {
	if got, ok := Subnet24("192.168.4.77"); !ok || got != "192.168.4" {
		t.Errorf("got %q %v", got, ok)
	}
	if _, ok := Subnet24("fe80::1"); ok {
		t.Error("IPv6 should not yield a /24")
	}
	if _, ok := Subnet24("nonsense"); ok {
		t.Error("garbage should not yield a /24")
	}
}

func TestSystemProbe_LinuxFallsBackToArpCommand(t *testing.T) {
	p := &SystemProbe{
		GOOS: "linux",
		ReadFile: func(string) ([]byte, error) {
			return nil, errors.New("no procfs")
		},
		Run: func(ctx context.Context, name string, args ...string) ([]byte, error) {
			if name != "arp" {
				t.Fatalf("unexpected command %s", name)
			}
			return []byte(bsdARP), nil
		},
	}

	ips, err := p.ARPTable(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(ips, []string{"10.0.0.1", "10.0.0.14"}) {
		t.Errorf("got %v", ips)
	}
}

func TestSystemProbe_WindowsGateway(t *testing.T) {
	p := &SystemProbe{
		GOOS: "windows",
		Run: func(ctx context.Context, name string, args ...string) ([]byte, error) {
			return []byte("   Default Gateway . . . . . . . . . : 192.168.1.1\r\n"), nil
		},
	}

	gw, err := p.DefaultGateway(context.Background())
	if err != nil || gw != "192.168.1.1" {
		t.Errorf("got %q, %v", gw, err)
	}
}

func TestSystemProbe_GatewayNotFound(t *testing.T) {
	p := &SystemProbe{
		GOOS: "darwin",
		Run: func(ctx context.Context, name string, args ...string) ([]byte, error) {
			return []byte("route: writing to routing socket: not in table\n"), nil
		},
	}

	if _, err := p.DefaultGateway(context.Background()); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestSystemProbe_ToolError(t *testing.T) {
	p := &SystemProbe{
		GOOS: "windows",
		Run: func(ctx context.Context, name string, args ...string) ([]byte, error) {
			return nil, errors.New("executable file not found")
		},
	}

	if _, err := p.ARPTable(context.Background()); err == nil {
		t.Error("expected error when arp is missing")
	}
	if _, err := p.DefaultGateway(context.Background()); err == nil {
		t.Error("expected error when ipconfig is missing")
	}
}
