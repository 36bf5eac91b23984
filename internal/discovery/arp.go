package discovery

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"net"
	"net/netip"
	"os"
	"strings"
)

const DefaultARPTable = "/proc/net/arp"

// arpFlagComplete marks a resolved neighbour entry.
const arpFlagComplete = 0x2

// ARPSource reads the kernel neighbour table. Entries outside Subnet are
// skipped when Subnet is valid.
type ARPSource struct {
	Path   string
	Subnet netip.Prefix
}

func NewARPSource(path, subnet string) (*ARPSource, error) {
	if path == "" {
		path = DefaultARPTable
	}
	src := &ARPSource{Path: path}
	if subnet != "" {
		prefix, err := netip.ParsePrefix(subnet)
		if err != nil {
			return nil, fmt.Errorf("invalid discovery subnet %q: %w", subnet, err)
		}
		src.Subnet = prefix.Masked()
	}
	return src, nil
}

func (a *ARPSource) Observe(_ context.Context) ([]Observation, error) {
	data, err := os.ReadFile(a.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to read arp table: %w", err)
	}
	return parseARPTable(data, a.Subnet), nil
}

// parseARPTable parses the /proc/net/arp layout:
//
//	IP address  HW type  Flags  HW address  Mask  Device
func parseARPTable(data []byte, subnet netip.Prefix) []Observation {
	var result []Observation
	scanner := bufio.NewScanner(bytes.NewReader(data))
	first := true
	for scanner.Scan() {
		if first {
			first = false
			continue
		}
		fields := strings.Fields(scanner.Text())
		if len(fields) < 4 {
			continue
		}

		addr, err := netip.ParseAddr(fields[0])
		if err != nil {
			continue
		}
		if subnet.IsValid() && !subnet.Contains(addr) {
			continue
		}

		var flags int
		if _, err := fmt.Sscanf(fields[2], "0x%x", &flags); err != nil || flags&arpFlagComplete == 0 {
			continue
		}

		hw, err := net.ParseMAC(fields[3])
		if err != nil || len(hw) != 6 || isZero(hw) {
			continue
		}

		result = append(result, Observation{
			HardwareAddress: hw.String(),
			NetworkAddress:  addr.String(),
		})
	}
	return result
}

func isZero(hw net.HardwareAddr) bool {
	for _, b := range hw {
		if b != 0 {
			return false
		}
	}
	return true
}
