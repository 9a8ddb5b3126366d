//go:build linux
// +build linux

package netprim

import (
	"fmt"

	"github.com/safchain/ethtool"
)

// RealOffloader disables NIC offloads via the ethtool netlink interface.
type RealOffloader struct{}

// NewOffloader returns the real ethtool implementation.
func NewOffloader() Offloader {
	return &RealOffloader{}
}

// DisableTxChecksum turns off TX checksum offload on an interface.
// Veth pairs advertise checksum offload they never perform; without this
// packets leave the bridge with bad checksums and connections hang.
func (r *RealOffloader) DisableTxChecksum(iface string) error {
	et, err := ethtool.NewEthtool()
	if err != nil {
		return fmt.Errorf("failed to open ethtool: %w", err)
	}
	defer et.Close()

	features := map[string]bool{
		"tx-checksum-ip-generic":  false,
		"tx-generic-segmentation": false,
	}
	if err := et.Change(iface, features); err != nil {
		return fmt.Errorf("failed to change offload features on %s: %w", iface, err)
	}
	return nil
}
