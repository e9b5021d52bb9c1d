package netmon

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"
)

// ProbeSource detects connectivity by dialing a probe endpoint (normally the
// Supabase host) on a fixed interval. The connection type is inferred from
// the local interface the dial went out on.
type ProbeSource struct {
	target   string
	interval time.Duration
	timeout  time.Duration
}

// NewProbeSource builds a probe for probeURL. An empty URL returns ErrUnavailable
// so callers fall back to an EventSource.
func NewProbeSource(probeURL string, interval, timeout time.Duration) (*ProbeSource, error) {
	if probeURL == "" {
		return nil, ErrUnavailable
	}
	u, err := url.Parse(probeURL)
	if err != nil || u.Hostname() == "" {
		return nil, fmt.Errorf("invalid probe url %q: %w", probeURL, ErrUnavailable)
	}
	port := u.Port()
	if port == "" {
		switch u.Scheme {
		case "http", "ws":
			port = "80"
		default:
			port = "443"
		}
	}
	if interval <= 0 {
		interval = 5 * time.Second
	}
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &ProbeSource{
		target:   net.JoinHostPort(u.Hostname(), port),
		interval: interval,
		timeout:  timeout,
	}, nil
}

// Status dials the probe target once. A failed dial is reported as offline, not as an error.
func (p *ProbeSource) Status(ctx context.Context) (Status, error) {
	d := net.Dialer{Timeout: p.timeout}
	conn, err := d.DialContext(ctx, "tcp", p.target)
	if err != nil {
		if ctx.Err() != nil {
			return Status{}, ctx.Err()
		}
		return Status{Connected: false, Kind: KindNone}, nil
	}
	defer conn.Close()

	kind := KindUnknown
	if addr, ok := conn.LocalAddr().(*net.TCPAddr); ok {
		kind = interfaceKind(addr.IP)
	}
	return Status{Connected: true, Kind: kind}, nil
}

// Watch probes every interval and emits whenever the reading changes.
func (p *ProbeSource) Watch(ctx context.Context) (<-chan Status, error) {
	out := make(chan Status, 1)
	go func() {
		defer close(out)
		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()

		var last Status
		first := true
		for {
			st, err := p.Status(ctx)
			if err == nil && (first || st != last) {
				first = false
				last = st
				select {
				case out <- st:
				case <-ctx.Done():
					return
				}
			}
			select {
			case <-ticker.C:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// interfaceKind maps the interface owning ip to a connection type by its name.
func interfaceKind(ip net.IP) string {
	ifaces, err := net.Interfaces()
	if err != nil {
		return KindUnknown
	}
	for _, iface := range ifaces {
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, a := range addrs {
			ipnet, ok := a.(*net.IPNet)
			if ok && ipnet.IP.Equal(ip) {
				return kindFromName(iface.Name)
			}
		}
	}
	return KindUnknown
}

func kindFromName(name string) string {
	switch {
	case strings.HasPrefix(name, "wl"), strings.HasPrefix(name, "wifi"):
		return KindWifi
	case strings.HasPrefix(name, "en"), strings.HasPrefix(name, "eth"):
		return KindEthernet
	case strings.HasPrefix(name, "ww"), strings.HasPrefix(name, "rmnet"), strings.HasPrefix(name, "pdp_ip"):
		return KindCellular
	default:
		return KindUnknown
	}
}
