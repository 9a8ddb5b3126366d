package cmd

import (
	"fmt"
	"strings"

	"grimm.is/stratus/internal/probe"
	"grimm.is/stratus/internal/topology"
)

// RunTestSubnet pings an arbitrary target from inside a subnet.
func RunTestSubnet(subnet, target string, opts CommonOpts) error {
	p := buildProber(opts)
	if err := p.Ping(subnet, target); err != nil {
		return err
	}
	fmt.Printf("subnet %s can reach %s\n", subnet, target)
	return nil
}

// RunTestInternet checks internet egress from inside a subnet by pinging
// a fixed external anchor through the masquerade.
func RunTestInternet(subnet string, opts CommonOpts) error {
	p := buildProber(opts)
	if err := p.Ping(subnet, probe.InternetAnchor); err != nil {
		return err
	}
	fmt.Printf("subnet %s has internet reachability\n", subnet)
	return nil
}

// RunTestSubnetToSubnet pings the target subnet's interior address from
// inside the source subnet.
func RunTestSubnetToSubnet(from, to, toCIDR string, opts CommonOpts) error {
	interior, err := topology.InteriorAddr(toCIDR)
	if err != nil {
		return err
	}
	// The probe wants the bare address, not the prefixed form.
	target := strings.SplitN(interior, "/", 2)[0]

	p := buildProber(opts)
	if err := p.Ping(from, target); err != nil {
		return err
	}
	fmt.Printf("subnet %s can reach subnet %s (%s)\n", from, to, target)
	return nil
}
