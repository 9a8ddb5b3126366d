package topology

import (
	"errors"

	"github.com/vishvananda/netlink"

	"grimm.is/stratus/internal/netprim"
)

// Oracle answers existence questions against live kernel state. It holds
// no cache: the reconciler calls it immediately before every mutation and
// concurrent external changes must not be missed.
type Oracle struct {
	nl netprim.Netlinker
	ns netprim.Namespacer
}

// NewOracle creates an oracle over the given primitives.
func NewOracle(nl netprim.Netlinker, ns netprim.Namespacer) *Oracle {
	return &Oracle{nl: nl, ns: ns}
}

// VPCExists reports whether the VPC's bridge device is present. Bridge
// existence is the sole existence test for a VPC.
func (o *Oracle) VPCExists(name string) (bool, error) {
	link, err := o.nl.LinkByName(BridgeName(name))
	if err != nil {
		if isLinkNotFound(err) {
			return false, nil
		}
		return false, err
	}
	_, ok := link.(*netlink.Bridge)
	return ok, nil
}

// SubnetExists reports whether the subnet's namespace is present.
func (o *Oracle) SubnetExists(name string) (bool, error) {
	return o.ns.Exists(name)
}

// PeeringExists reports whether a cable for the unordered VPC pair is
// present, checking both direction names.
func (o *Oracle) PeeringExists(a, b string) (bool, error) {
	ab, ba := PeerVethNames(a, b)
	for _, name := range []string{ab, ba} {
		_, err := o.nl.LinkByName(name)
		if err == nil {
			return true, nil
		}
		if !isLinkNotFound(err) {
			return false, err
		}
	}
	return false, nil
}

func isLinkNotFound(err error) bool {
	return errors.Is(err, netprim.ErrLinkNotFound)
}
