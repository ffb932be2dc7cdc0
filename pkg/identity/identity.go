// Package identity derives the node identifier of a brick from its network
// hardware address.
package identity

import (
	"errors"
	"fmt"
	"net"
	"strings"
)

// ErrNoHardwareAddr is returned when no interface has a usable MAC address.
var ErrNoHardwareAddr = errors.New("no hardware address found")

// NodeID renders a MAC address as lowercase hex without separators, e.g.
// "a4cf12001122".
func NodeID(mac net.HardwareAddr) string {
	return strings.ReplaceAll(mac.String(), ":", "")
}

// Resolve returns the node ID. A configured MAC (any form net.ParseMAC
// accepts) takes precedence; otherwise the named interface is used, or the
// first up, non-loopback interface with a hardware address.
func Resolve(configured, iface string) (string, error) {
	if configured != "" {
		mac, err := net.ParseMAC(configured)
		if err != nil {
			return "", fmt.Errorf("invalid MAC address %q: %w", configured, err)
		}
		return NodeID(mac), nil
	}

	if iface != "" {
		ifi, err := net.InterfaceByName(iface)
		if err != nil {
			return "", fmt.Errorf("failed to get interface %s: %w", iface, err)
		}
		if len(ifi.HardwareAddr) == 0 {
			return "", fmt.Errorf("interface %s: %w", iface, ErrNoHardwareAddr)
		}
		return NodeID(ifi.HardwareAddr), nil
	}

	ifaces, err := net.Interfaces()
	if err != nil {
		return "", fmt.Errorf("failed to list interfaces: %w", err)
	}
	mac, err := pick(ifaces)
	if err != nil {
		return "", err
	}
	return NodeID(mac), nil
}

func pick(ifaces []net.Interface) (net.HardwareAddr, error) {
	for _, ifi := range ifaces {
		if ifi.Flags&net.FlagLoopback != 0 || ifi.Flags&net.FlagUp == 0 {
			continue
		}
		if len(ifi.HardwareAddr) == 6 {
			return ifi.HardwareAddr, nil
		}
	}
	return nil, ErrNoHardwareAddr
}
