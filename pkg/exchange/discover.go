package exchange

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/enbility/zeroconf/v3"
)

const (
	// BrokerService is the DNS-SD service type of MQTT brokers.
	BrokerService = "_mqtt._tcp"
	// Domain is the mDNS domain.
	Domain = "local."

	// DefaultDiscoveryTimeout bounds broker discovery.
	DefaultDiscoveryTimeout = 3 * time.Second
)

// DiscoverBroker browses mDNS for an MQTT broker and returns its URL
// ("tcp://host:port") for the first usable announcement. iface limits the
// browse to one interface; empty means all.
func DiscoverBroker(ctx context.Context, iface string, timeout time.Duration, logger *slog.Logger) (string, error) {
	if timeout <= 0 {
		timeout = DefaultDiscoveryTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var opts []zeroconf.ClientOption
	if iface != "" {
		ifi, err := net.InterfaceByName(iface)
		if err != nil {
			return "", fmt.Errorf("failed to get interface %s: %w", iface, err)
		}
		opts = append(opts, zeroconf.SelectIfaces([]net.Interface{*ifi}))
	}

	entries := make(chan *zeroconf.ServiceEntry)
	removed := make(chan *zeroconf.ServiceEntry)
	go func() {
		if err := zeroconf.Browse(ctx, BrokerService, Domain, entries, removed, opts...); err != nil {
			logger.Warn("mDNS browse failed", "error", err)
		}
	}()

	for {
		select {
		case entry, ok := <-entries:
			if !ok {
				return "", fmt.Errorf("no %s service found", BrokerService)
			}
			if url, ok := brokerURL(entry); ok {
				logger.Info("broker discovered", "instance", entry.Instance, "url", url)
				return url, nil
			}
		case <-removed:
		case <-ctx.Done():
			return "", fmt.Errorf("no %s service found: %w", BrokerService, ctx.Err())
		}
	}
}

// brokerURL picks an address of the entry, preferring IPv4.
func brokerURL(entry *zeroconf.ServiceEntry) (string, bool) {
	if entry == nil || entry.Port <= 0 {
		return "", false
	}
	var ip net.IP
	switch {
	case len(entry.AddrIPv4) > 0:
		ip = entry.AddrIPv4[0]
	case len(entry.AddrIPv6) > 0:
		ip = entry.AddrIPv6[0]
	default:
		return "", false
	}
	return fmt.Sprintf("tcp://%s", net.JoinHostPort(ip.String(), fmt.Sprint(entry.Port))), true
}
