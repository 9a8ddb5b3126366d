// Package probe issues read-only reachability checks using resources the
// reconciler created. Probes never mutate topology; their failure is
// reported, not escalated.
package probe

import (
	"fmt"
	"net"
	"time"

	probing "github.com/prometheus-community/pro-bing"

	"grimm.is/stratus/internal/logging"
	"grimm.is/stratus/internal/netprim"
)

const (
	// DefaultAttempts is the fixed retry budget for a probe.
	DefaultAttempts = 3
	// DefaultTimeout bounds each individual attempt.
	DefaultTimeout = 2 * time.Second
	// InternetAnchor is the well-known external address used by the
	// internet reachability check.
	InternetAnchor = "8.8.8.8"
)

// Failure reports that a probe did not succeed within its retry budget.
type Failure struct {
	Target   string
	Attempts int
	Err      error
}

func (f *Failure) Error() string {
	return fmt.Sprintf("probe to %s failed after %d attempts: %v", f.Target, f.Attempts, f.Err)
}

func (f *Failure) Unwrap() error {
	return f.Err
}

// Prober runs reachability checks from inside subnet namespaces.
type Prober struct {
	ns       netprim.Namespacer
	logger   *logging.Logger
	Attempts int
	Timeout  time.Duration
}

// New creates a prober with the fixed default budget.
func New(ns netprim.Namespacer, logger *logging.Logger) *Prober {
	if logger == nil {
		logger = logging.Default()
	}
	return &Prober{
		ns:       ns,
		logger:   logger.WithComponent("probe"),
		Attempts: DefaultAttempts,
		Timeout:  DefaultTimeout,
	}
}

// Ping sends ICMP echo requests to target from inside the subnet's
// namespace, retrying up to the attempt budget.
func (p *Prober) Ping(subnet, target string) error {
	var lastErr error
	for attempt := 1; attempt <= p.Attempts; attempt++ {
		err := p.ns.Do(subnet, func() error {
			return pingOnce(target, p.Timeout)
		})
		if err == nil {
			p.logger.Info("ping succeeded", "subnet", subnet, "target", target, "attempt", attempt)
			return nil
		}
		lastErr = err
		p.logger.Debug("ping attempt failed", "subnet", subnet, "target", target, "attempt", attempt, "error", err)
	}
	return &Failure{Target: target, Attempts: p.Attempts, Err: lastErr}
}

// TCP attempts a fresh TCP connection to host:port from inside the
// subnet's namespace. Used to demonstrate that non-ICMP, non-established
// traffic between peered VPCs is denied.
func (p *Prober) TCP(subnet, host string, port int) error {
	addr := net.JoinHostPort(host, fmt.Sprintf("%d", port))
	var lastErr error
	for attempt := 1; attempt <= p.Attempts; attempt++ {
		err := p.ns.Do(subnet, func() error {
			conn, err := net.DialTimeout("tcp", addr, p.Timeout)
			if err != nil {
				return err
			}
			return conn.Close()
		})
		if err == nil {
			p.logger.Info("tcp probe succeeded", "subnet", subnet, "target", addr, "attempt", attempt)
			return nil
		}
		lastErr = err
	}
	return &Failure{Target: addr, Attempts: p.Attempts, Err: lastErr}
}

func pingOnce(target string, timeout time.Duration) error {
	pinger, err := probing.NewPinger(target)
	if err != nil {
		return fmt.Errorf("failed to create pinger: %w", err)
	}
	pinger.Count = 1
	pinger.Timeout = timeout
	// Raw sockets; the engine already requires root for netlink.
	pinger.SetPrivileged(true)

	if err := pinger.Run(); err != nil {
		return err
	}
	if pinger.Statistics().PacketsRecv == 0 {
		return fmt.Errorf("packet loss")
	}
	return nil
}
