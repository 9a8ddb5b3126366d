package topology

import (
	"fmt"
	"net"
	"strings"
)

// VPCAlias is the ifalias stamped on every bridge the engine creates.
// Clean enumerates bridges by this alias so operator-owned bridges are
// never touched.
const VPCAlias = "stratus.vpc"

// ifnameMax is the kernel IFNAMSIZ limit minus the trailing NUL.
const ifnameMax = 15

// BridgeName returns the bridge device name backing a VPC.
func BridgeName(vpc string) string {
	return vpc
}

// SubnetHostVeth returns the bridge-side cable end name for a subnet.
func SubnetHostVeth(subnet string) string {
	return subnet + "-br"
}

// SubnetNSVeth returns the namespace-side cable end name for a subnet.
func SubnetNSVeth(subnet string) string {
	return subnet + "-ns"
}

// PeerVethNames returns the two cable end names for a peering. The end
// named a-to-b is enslaved to a's bridge, b-to-a to b's bridge.
func PeerVethNames(a, b string) (string, string) {
	return a + "-to-" + b, b + "-to-" + a
}

// sortedPair returns the two names in lexical order, used to build
// direction-independent rule comments.
func sortedPair(a, b string) (string, string) {
	if a > b {
		return b, a
	}
	return a, b
}

// PeerCommentPrefix returns the comment prefix shared by all filter rules
// of one peering, independent of argument order.
func PeerCommentPrefix(a, b string) string {
	x, y := sortedPair(a, b)
	return fmt.Sprintf("peer:%s:%s:", x, y)
}

// ValidateVPCName rejects names whose device derivations exceed IFNAMSIZ.
func ValidateVPCName(name string) error {
	if name == "" {
		return fmt.Errorf("vpc name must not be empty")
	}
	if len(BridgeName(name)) > ifnameMax {
		return fmt.Errorf("vpc name %q too long for a bridge device name (max %d)", name, ifnameMax)
	}
	if strings.ContainsAny(name, "/ \t") {
		return fmt.Errorf("vpc name %q contains invalid characters", name)
	}
	return nil
}

// ValidateSubnetName rejects names whose cable derivations exceed IFNAMSIZ.
func ValidateSubnetName(name string) error {
	if name == "" {
		return fmt.Errorf("subnet name must not be empty")
	}
	if len(SubnetHostVeth(name)) > ifnameMax {
		return fmt.Errorf("subnet name %q too long for a cable end name (max %d)", name, ifnameMax)
	}
	if strings.ContainsAny(name, "/ \t") {
		return fmt.Errorf("subnet name %q contains invalid characters", name)
	}
	return nil
}

// ValidatePeerNames rejects VPC pairs whose cable names exceed IFNAMSIZ.
func ValidatePeerNames(a, b string) error {
	if a == b {
		return fmt.Errorf("cannot peer vpc %q with itself", a)
	}
	ab, ba := PeerVethNames(a, b)
	if len(ab) > ifnameMax || len(ba) > ifnameMax {
		return fmt.Errorf("vpc names %q and %q too long for a cable name (max %d)", a, b, ifnameMax)
	}
	return nil
}

// GatewayAddr derives the subnet gateway address from the subnet CIDR:
// the network address with host octet 1, keeping the prefix length.
func GatewayAddr(cidr string) (string, error) {
	return hostAddr(cidr, 1)
}

// InteriorAddr derives the namespace-side address from the subnet CIDR:
// the network address with host octet 10, keeping the prefix length.
func InteriorAddr(cidr string) (string, error) {
	return hostAddr(cidr, 10)
}

func hostAddr(cidr string, host byte) (string, error) {
	_, ipNet, err := net.ParseCIDR(cidr)
	if err != nil {
		return "", fmt.Errorf("invalid cidr %q: %w", cidr, err)
	}
	ip4 := ipNet.IP.To4()
	if ip4 == nil {
		return "", fmt.Errorf("only IPv4 cidrs supported: %s", cidr)
	}
	addr := make(net.IP, 4)
	copy(addr, ip4)
	addr[3] = host
	ones, _ := ipNet.Mask.Size()
	return fmt.Sprintf("%s/%d", addr, ones), nil
}

// IsPeerCable reports whether a link name matches the peering cable pattern.
func IsPeerCable(name string) bool {
	return strings.Contains(name, "-to-")
}

// IsSubnetCable reports whether a link name matches a subnet cable end.
func IsSubnetCable(name string) bool {
	return strings.HasSuffix(name, "-br") || strings.HasSuffix(name, "-ns")
}
