package agent

import (
	"context"
	"errors"
	"fmt"
	"net"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/host"
	"github.com/shirou/gopsutil/v4/mem"
	psnet "github.com/shirou/gopsutil/v4/net"
)

type Sample struct {
	CPUPercent    float64
	MemoryUsedMB  float64
	NetworkRxMbps float64
	NetworkTxMbps float64
}

// Identity is what the agent reports about itself at registration.
type Identity struct {
	HardwareAddress string
	NetworkAddress  string
	Hostname        string
	Platform        string
	OSVersion       string
	Info            map[string]string
}

type Collector interface {
	Identity(ctx context.Context, iface string) (*Identity, error)
	Sample(ctx context.Context) (Sample, error)
}

// SystemCollector reads host metrics. Network rates are computed from byte
// counter deltas between consecutive samples; the first sample reports 0.
type SystemCollector struct {
	mu       sync.Mutex
	lastAt   time.Time
	lastRecv uint64
	lastSent uint64
}

func NewSystemCollector() *SystemCollector {
	return &SystemCollector{}
}

func (c *SystemCollector) Sample(ctx context.Context) (Sample, error) {
	var s Sample

	percents, err := cpu.PercentWithContext(ctx, 500*time.Millisecond, false)
	if err != nil {
		return s, fmt.Errorf("failed to read cpu usage: %w", err)
	}
	if len(percents) > 0 {
		s.CPUPercent = percents[0]
	}

	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return s, fmt.Errorf("failed to read memory usage: %w", err)
	}
	s.MemoryUsedMB = float64(vm.Used) / (1024 * 1024)

	counters, err := psnet.IOCountersWithContext(ctx, false)
	if err != nil {
		return s, fmt.Errorf("failed to read network counters: %w", err)
	}
	if len(counters) > 0 {
		s.NetworkRxMbps, s.NetworkTxMbps = c.rates(time.Now(), counters[0].BytesRecv, counters[0].BytesSent)
	}
	return s, nil
}

func (c *SystemCollector) rates(now time.Time, recv, sent uint64) (float64, float64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var rx, tx float64
	if !c.lastAt.IsZero() && recv >= c.lastRecv && sent >= c.lastSent {
		if secs := now.Sub(c.lastAt).Seconds(); secs > 0 {
			rx = float64(recv-c.lastRecv) * 8 / 1e6 / secs
			tx = float64(sent-c.lastSent) * 8 / 1e6 / secs
		}
	}
	c.lastAt, c.lastRecv, c.lastSent = now, recv, sent
	return rx, tx
}

func (c *SystemCollector) Identity(ctx context.Context, iface string) (*Identity, error) {
	interfaces, err := psnet.InterfacesWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list interfaces: %w", err)
	}
	chosen, err := pickInterface(interfaces, iface)
	if err != nil {
		return nil, err
	}

	id := &Identity{
		HardwareAddress: chosen.HardwareAddr,
		NetworkAddress:  firstIPv4(chosen.Addrs),
		Info:            map[string]string{"interface": chosen.Name},
	}

	info, err := host.InfoWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read host info: %w", err)
	}
	id.Hostname = info.Hostname
	id.Platform = info.OS
	id.OSVersion = strings.TrimSpace(info.Platform + " " + info.PlatformVersion)
	id.Info["kernel_version"] = info.KernelVersion
	id.Info["kernel_arch"] = info.KernelArch

	if cpus, err := cpu.InfoWithContext(ctx); err == nil && len(cpus) > 0 {
		id.Info["cpu_model"] = cpus[0].ModelName
	}
	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		id.Info["memory_total_mb"] = fmt.Sprintf("%d", vm.Total/(1024*1024))
	}
	return id, nil
}

// pickInterface returns the named interface, or the first up, non-loopback
// one carrying a hardware address.
func pickInterface(interfaces psnet.InterfaceStatList, name string) (psnet.InterfaceStat, error) {
	for _, i := range interfaces {
		if name != "" {
			if i.Name == name {
				if i.HardwareAddr == "" {
					return i, fmt.Errorf("interface %s has no hardware address", name)
				}
				return i, nil
			}
			continue
		}
		if i.HardwareAddr == "" || slices.Contains(i.Flags, "loopback") || !slices.Contains(i.Flags, "up") {
			continue
		}
		return i, nil
	}
	if name != "" {
		return psnet.InterfaceStat{}, fmt.Errorf("interface %s not found", name)
	}
	return psnet.InterfaceStat{}, errors.New("no usable network interface found")
}

func firstIPv4(addrs psnet.InterfaceAddrList) string {
	for _, a := range addrs {
		ip, _, err := net.ParseCIDR(a.Addr)
		if err != nil {
			ip = net.ParseIP(a.Addr)
		}
		if ip != nil && ip.To4() != nil {
			return ip.String()
		}
	}
	return ""
}
