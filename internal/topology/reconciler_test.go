package topology

import (
	"errors"
	"fmt"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/vishvananda/netlink"
	"github.com/vishvananda/netns"

	"grimm.is/stratus/internal/netprim"
	"grimm.is/stratus/internal/policy"
)

func notFound(name string) error {
	return fmt.Errorf("%s: %w", name, netprim.ErrLinkNotFound)
}

func mustIPNet(t *testing.T, cidr string) *net.IPNet {
	t.Helper()
	_, ipNet, err := net.ParseCIDR(cidr)
	assert.NoError(t, err)
	return ipNet
}

type testMocks struct {
	nl      *netprim.MockNetlinker
	ns      *netprim.MockNamespacer
	sys     *netprim.MockSystemController
	offload *netprim.MockOffloader
	fw      *netprim.MockFilterManager
}

func newTestReconciler(extIface string, compiler *policy.Compiler) (*Reconciler, *testMocks) {
	m := &testMocks{
		nl:      new(netprim.MockNetlinker),
		ns:      new(netprim.MockNamespacer),
		sys:     new(netprim.MockSystemController),
		offload: new(netprim.MockOffloader),
		fw:      new(netprim.MockFilterManager),
	}
	r := NewReconciler(Options{
		Netlinker:  m.nl,
		Namespacer: m.ns,
		System:     m.sys,
		Offloader:  m.offload,
		FilterFactory: func(namespace string) (netprim.FilterManager, error) {
			return m.fw, nil
		},
		Compiler:          compiler,
		ExternalInterface: extIface,
	})
	return r, m
}

func (m *testMocks) assertAll(t *testing.T) {
	m.nl.AssertExpectations(t)
	m.ns.AssertExpectations(t)
	m.sys.AssertExpectations(t)
	m.offload.AssertExpectations(t)
	m.fw.AssertExpectations(t)
}

func TestCreateVPCIdempotent(t *testing.T) {
	r, m := newTestReconciler("eth0", nil)

	ipNet := mustIPNet(t, "10.0.0.0/16")
	routerAddr, _ := netlink.ParseAddr("10.0.0.1/16")
	bridge := &netlink.Bridge{LinkAttrs: netlink.LinkAttrs{Name: "vpc0"}}

	m.nl.On("ParseIPNet", "10.0.0.0/16").Return(ipNet, nil).Twice()
	m.nl.On("ParseAddr", "10.0.0.1/16").Return(routerAddr, nil).Twice()

	// First call: absent, so the full creation sequence runs.
	m.nl.On("LinkByName", "vpc0").Return(nil, notFound("vpc0")).Once()
	m.nl.On("LinkAdd", &netlink.Bridge{LinkAttrs: netlink.LinkAttrs{Name: "vpc0"}}).Return(nil).Once()
	// Post-create lookup plus the second call's existence check.
	m.nl.On("LinkByName", "vpc0").Return(bridge, nil).Twice()
	m.nl.On("LinkSetAlias", bridge, VPCAlias).Return(nil).Once()
	m.nl.On("AddrAdd", bridge, routerAddr).Return(nil).Once()
	m.nl.On("LinkSetUp", bridge).Return(nil).Once()

	m.sys.On("WriteSysctl", "net.ipv4.ip_forward", "1").Return(nil).Once()
	m.sys.On("WriteSysctl", "net.ipv4.conf.all.rp_filter", "0").Return(nil).Once()
	m.sys.On("WriteSysctl", "net.ipv4.conf.default.rp_filter", "0").Return(nil).Once()

	m.fw.On("EnsureHostChains").Return(nil).Once()
	m.fw.On("SetForwardPolicy", false).Return(nil).Once()
	m.fw.On("Flush").Return(nil).Once()
	m.fw.On("Close").Return(nil).Once()

	assert.NoError(t, r.CreateVPC("vpc0", "10.0.0.1/16", "10.0.0.0/16"))

	// Second call: the existence check short-circuits everything.
	assert.NoError(t, r.CreateVPC("vpc0", "10.0.0.1/16", "10.0.0.0/16"))

	m.assertAll(t)
	m.nl.AssertNumberOfCalls(t, "LinkAdd", 1)
}

func TestCreateVPCRejectsBadInput(t *testing.T) {
	r, m := newTestReconciler("eth0", nil)

	m.nl.On("ParseIPNet", "10.0.0.0/16").Return(mustIPNet(t, "10.0.0.0/16"), nil).Maybe()
	m.nl.On("ParseAddr", "bogus").Return(nil, errors.New("invalid address")).Once()

	assert.Error(t, r.CreateVPC("", "10.0.0.1/16", "10.0.0.0/16"))
	assert.Error(t, r.CreateVPC("vpc0", "bogus", "10.0.0.0/16"))
}

func TestCreateVPCWrapsBridgeFailure(t *testing.T) {
	r, m := newTestReconciler("eth0", nil)

	m.nl.On("ParseIPNet", "10.0.0.0/16").Return(mustIPNet(t, "10.0.0.0/16"), nil).Once()
	routerAddr, _ := netlink.ParseAddr("10.0.0.1/16")
	m.nl.On("ParseAddr", "10.0.0.1/16").Return(routerAddr, nil).Once()
	m.nl.On("LinkByName", "vpc0").Return(nil, notFound("vpc0")).Once()
	m.nl.On("LinkAdd", mock.Anything).Return(errors.New("exists")).Once()

	err := r.CreateVPC("vpc0", "10.0.0.1/16", "10.0.0.0/16")
	var rce *ResourceCreationError
	assert.ErrorAs(t, err, &rce)
	assert.Equal(t, "bridge", rce.Kind)
	assert.Equal(t, "vpc0", rce.Resource)
	m.assertAll(t)
}

func TestEnableNATIdempotent(t *testing.T) {
	r, m := newTestReconciler("eth0", nil)

	bridge := &netlink.Bridge{LinkAttrs: netlink.LinkAttrs{Name: "vpc0"}}
	m.nl.On("LinkByName", "vpc0").Return(bridge, nil).Twice()

	m.fw.On("EnsureHostChains").Return(nil).Twice()
	m.fw.On("Flush").Return(nil).Twice()
	m.fw.On("Close").Return(nil).Twice()

	// First run: none of the three rules exist yet.
	m.fw.On("RuleExists", netprim.ChainPostrouting, "natmasq:vpc0").Return(false, nil).Once()
	m.fw.On("RuleExists", netprim.ChainForward, "natout:vpc0").Return(false, nil).Once()
	m.fw.On("RuleExists", netprim.ChainForward, "natin:vpc0").Return(false, nil).Once()
	m.fw.On("AppendRule", netprim.ChainPostrouting, netprim.RuleSpec{
		Comment:  "natmasq:vpc0",
		SrcNet:   "10.0.0.0/16",
		OutIface: "eth0",
		Verdict:  netprim.VerdictMasquerade,
	}).Return(nil).Once()
	m.fw.On("AppendRule", netprim.ChainForward, netprim.RuleSpec{
		Comment:  "natout:vpc0",
		InIface:  "vpc0",
		OutIface: "eth0",
		Verdict:  netprim.VerdictAccept,
	}).Return(nil).Once()
	m.fw.On("AppendRule", netprim.ChainForward, netprim.RuleSpec{
		Comment:  "natin:vpc0",
		InIface:  "eth0",
		OutIface: "vpc0",
		CtStates: []netprim.CtState{netprim.CtStateEstablished, netprim.CtStateRelated},
		Verdict:  netprim.VerdictAccept,
	}).Return(nil).Once()

	// Second run: all rules present, nothing appended.
	m.fw.On("RuleExists", netprim.ChainPostrouting, "natmasq:vpc0").Return(true, nil).Once()
	m.fw.On("RuleExists", netprim.ChainForward, "natout:vpc0").Return(true, nil).Once()
	m.fw.On("RuleExists", netprim.ChainForward, "natin:vpc0").Return(true, nil).Once()

	assert.NoError(t, r.EnableNAT("vpc0", "10.0.0.0/16"))
	assert.NoError(t, r.EnableNAT("vpc0", "10.0.0.0/16"))

	m.assertAll(t)
	m.fw.AssertNumberOfCalls(t, "AppendRule", 3)
}

func TestEnableNATRequiresVPC(t *testing.T) {
	r, m := newTestReconciler("eth0", nil)

	m.nl.On("LinkByName", "vpc9").Return(nil, notFound("vpc9")).Once()

	err := r.EnableNAT("vpc9", "10.9.0.0/16")
	var dep *DependencyMissingError
	assert.ErrorAs(t, err, &dep)
	assert.Equal(t, "vpc", dep.Kind)
	assert.Equal(t, "vpc9", dep.Dependency)
	m.assertAll(t)
}

func TestAddSubnetRefreshesPolicyWhenPresent(t *testing.T) {
	// A subnet that already exists only gets its policy recompiled, as a
	// full replace of the previous directives.
	doc, err := policy.Parse([]byte(`[{
		"subnet": "web_ns",
		"ingress": [{"port": 80, "protocol": "tcp", "action": "allow"}],
		"egress": []
	}]`))
	assert.NoError(t, err)
	r, m := newTestReconciler("eth0", policy.NewCompiler(doc))

	m.ns.On("Exists", "web_ns").Return(true, nil).Once()

	m.fw.On("EnsureSubnetChains").Return(nil).Once()
	m.fw.On("DeleteRulesByComment", netprim.ChainInput, "policy:web_ns:").Return(nil).Once()
	m.fw.On("DeleteRulesByComment", netprim.ChainOutput, "policy:web_ns:").Return(nil).Once()
	m.fw.On("AppendRule", netprim.ChainInput, netprim.RuleSpec{
		Comment: "policy:web_ns:in:0",
		Proto:   "tcp",
		Port:    80,
		Verdict: netprim.VerdictAccept,
	}).Return(nil).Once()
	m.fw.On("Flush").Return(nil).Once()
	m.fw.On("Close").Return(nil).Once()

	assert.NoError(t, r.AddSubnet("web_ns", "10.0.1.0/24", "public", "vpc0"))

	m.assertAll(t)
	// No devices or namespaces were touched.
	m.nl.AssertNotCalled(t, "LinkAdd", mock.Anything)
	m.ns.AssertNotCalled(t, "Create", mock.Anything)
}

func TestAddSubnetRequiresVPC(t *testing.T) {
	r, m := newTestReconciler("eth0", nil)

	m.ns.On("Exists", "web_ns").Return(false, nil).Once()
	m.nl.On("LinkByName", "vpc9").Return(nil, notFound("vpc9")).Once()

	err := r.AddSubnet("web_ns", "10.0.1.0/24", "public", "vpc9")
	var dep *DependencyMissingError
	assert.ErrorAs(t, err, &dep)
	assert.Equal(t, "vpc9", dep.Dependency)
	m.assertAll(t)
}

func TestAddSubnetRejectsBadVisibility(t *testing.T) {
	r, _ := newTestReconciler("eth0", nil)
	assert.Error(t, r.AddSubnet("web_ns", "10.0.1.0/24", "internal", "vpc0"))
}

func expectSubnetCreation(t *testing.T, m *testMocks, subnet, cidr, vpc string, bridgeAddrs []netlink.Addr) {
	t.Helper()

	bridge := &netlink.Bridge{LinkAttrs: netlink.LinkAttrs{Name: vpc, Index: 2}}
	hostEnd, nsEnd := SubnetHostVeth(subnet), SubnetNSVeth(subnet)

	m.ns.On("Exists", subnet).Return(false, nil).Once()
	m.nl.On("LinkByName", vpc).Return(bridge, nil).Twice()
	m.ns.On("Create", subnet).Return(nil).Once()

	// Default-deny chains inside the fresh namespace.
	m.fw.On("EnsureSubnetChains").Return(nil).Once()

	hostLink := &netlink.Veth{LinkAttrs: netlink.LinkAttrs{Name: hostEnd, Index: 10}}
	peerLink := &netlink.Veth{LinkAttrs: netlink.LinkAttrs{Name: nsEnd, Index: 11}}
	m.nl.On("LinkAdd", &netlink.Veth{
		LinkAttrs: netlink.LinkAttrs{Name: hostEnd},
		PeerName:  nsEnd,
	}).Return(nil).Once()
	m.nl.On("LinkByName", hostEnd).Return(hostLink, nil).Once()
	m.nl.On("LinkSetMaster", hostLink, bridge).Return(nil).Once()
	m.nl.On("LinkSetUp", hostLink).Return(nil).Once()
	m.offload.On("DisableTxChecksum", hostEnd).Return(nil).Once()

	m.nl.On("LinkByName", nsEnd).Return(peerLink, nil).Twice()
	m.ns.On("GetHandle", subnet).Return(netns.NsHandle(-1), nil).Once()
	m.nl.On("LinkSetNsFd", peerLink, -1).Return(nil).Once()

	// Inside the namespace.
	interior, err := InteriorAddr(cidr)
	assert.NoError(t, err)
	gateway, err := GatewayAddr(cidr)
	assert.NoError(t, err)
	interiorAddr, _ := netlink.ParseAddr(interior)
	gatewayAddr, _ := netlink.ParseAddr(gateway)
	lo := &netlink.Device{LinkAttrs: netlink.LinkAttrs{Name: "lo", Index: 1}}

	m.ns.On("Do", subnet, mock.Anything).Return(nil).Once()
	m.nl.On("LinkByName", "lo").Return(lo, nil).Once()
	m.nl.On("LinkSetUp", lo).Return(nil).Once()
	m.nl.On("ParseAddr", interior).Return(interiorAddr, nil).Once()
	m.nl.On("AddrAdd", peerLink, interiorAddr).Return(nil).Once()
	m.nl.On("LinkSetUp", peerLink).Return(nil).Once()
	m.nl.On("RouteAdd", mock.MatchedBy(func(route *netlink.Route) bool {
		return route.Gw.String() == gatewayAddr.IP.String()
	})).Return(nil).Once()

	// Gateway address on the bridge.
	m.nl.On("ParseAddr", gateway).Return(gatewayAddr, nil).Once()
	m.nl.On("AddrList", bridge, netlink.FAMILY_V4).Return(bridgeAddrs, nil).Once()
	m.nl.On("AddrAdd", bridge, gatewayAddr).Return(nil).Once()

	// Policy application (no document loaded: stays deny-by-default).
	m.fw.On("DeleteRulesByComment", netprim.ChainInput, "policy:"+subnet+":").Return(nil).Once()
	m.fw.On("DeleteRulesByComment", netprim.ChainOutput, "policy:"+subnet+":").Return(nil).Once()
}

func TestAddSubnetPublic(t *testing.T) {
	r, m := newTestReconciler("eth0", nil)

	expectSubnetCreation(t, m, "web_ns", "10.0.1.0/24", "vpc0", []netlink.Addr{})
	// denyByDefault + applyPolicy each open one namespace manager, plus
	// EnsureSubnetChains again in applyPolicy.
	m.fw.On("EnsureSubnetChains").Return(nil).Once()
	m.fw.On("Flush").Return(nil).Twice()
	m.fw.On("Close").Return(nil).Twice()

	assert.NoError(t, r.AddSubnet("web_ns", "10.0.1.0/24", "public", "vpc0"))

	m.assertAll(t)
	// A public subnet never touches the host forward chain.
	m.fw.AssertNotCalled(t, "InsertRule", mock.Anything, mock.Anything)
	m.fw.AssertNotCalled(t, "EnsureHostChains")
}

func TestAddSubnetPrivateBlocksExternalEgress(t *testing.T) {
	r, m := newTestReconciler("eth0", nil)

	routerAddr, _ := netlink.ParseAddr("10.0.0.1/16")
	expectSubnetCreation(t, m, "db_ns", "10.0.2.0/24", "vpc0", []netlink.Addr{*routerAddr})

	// Host-side private subnet rules: VPC-block accepts appended, the
	// external-egress drop inserted at the head of the chain.
	m.fw.On("EnsureSubnetChains").Return(nil).Once()
	m.fw.On("EnsureHostChains").Return(nil).Once()
	m.fw.On("RuleExists", netprim.ChainForward, "subnet:db_ns:priv-in").Return(false, nil).Once()
	m.fw.On("RuleExists", netprim.ChainForward, "subnet:db_ns:priv-out").Return(false, nil).Once()
	m.fw.On("RuleExists", netprim.ChainForward, "subnet:db_ns:noegress").Return(false, nil).Once()
	m.fw.On("AppendRule", netprim.ChainForward, netprim.RuleSpec{
		Comment: "subnet:db_ns:priv-in",
		SrcNet:  "10.0.0.0/16",
		DstNet:  "10.0.2.0/24",
		Verdict: netprim.VerdictAccept,
	}).Return(nil).Once()
	m.fw.On("AppendRule", netprim.ChainForward, netprim.RuleSpec{
		Comment: "subnet:db_ns:priv-out",
		SrcNet:  "10.0.2.0/24",
		DstNet:  "10.0.0.0/16",
		Verdict: netprim.VerdictAccept,
	}).Return(nil).Once()
	m.fw.On("InsertRule", netprim.ChainForward, netprim.RuleSpec{
		Comment:  "subnet:db_ns:noegress",
		SrcNet:   "10.0.2.0/24",
		OutIface: "eth0",
		Verdict:  netprim.VerdictDrop,
	}).Return(nil).Once()
	m.fw.On("Flush").Return(nil).Times(3)
	m.fw.On("Close").Return(nil).Times(3)

	assert.NoError(t, r.AddSubnet("db_ns", "10.0.2.0/24", "private", "vpc0"))
	m.assertAll(t)
}

func TestPeerVPCsInstallsRulesAndRoutes(t *testing.T) {
	r, m := newTestReconciler("eth0", nil)

	netA := mustIPNet(t, "10.0.0.0/16")
	netB := mustIPNet(t, "10.10.0.0/16")
	m.nl.On("ParseIPNet", "10.0.0.0/16").Return(netA, nil).Once()
	m.nl.On("ParseIPNet", "10.10.0.0/16").Return(netB, nil).Once()

	// No existing cable in either direction.
	m.nl.On("LinkByName", "vpc0-to-vpc1").Return(nil, notFound("vpc0-to-vpc1")).Once()
	m.nl.On("LinkByName", "vpc1-to-vpc0").Return(nil, notFound("vpc1-to-vpc0")).Once()

	bridgeA := &netlink.Bridge{LinkAttrs: netlink.LinkAttrs{Name: "vpc0", Index: 2}}
	bridgeB := &netlink.Bridge{LinkAttrs: netlink.LinkAttrs{Name: "vpc1", Index: 3}}
	m.nl.On("LinkByName", "vpc0").Return(bridgeA, nil).Twice()
	m.nl.On("LinkByName", "vpc1").Return(bridgeB, nil).Twice()

	linkA := &netlink.Veth{LinkAttrs: netlink.LinkAttrs{Name: "vpc0-to-vpc1", Index: 20}}
	linkB := &netlink.Veth{LinkAttrs: netlink.LinkAttrs{Name: "vpc1-to-vpc0", Index: 21}}
	m.nl.On("LinkAdd", &netlink.Veth{
		LinkAttrs: netlink.LinkAttrs{Name: "vpc0-to-vpc1"},
		PeerName:  "vpc1-to-vpc0",
	}).Return(nil).Once()
	m.nl.On("LinkByName", "vpc0-to-vpc1").Return(linkA, nil).Once()
	m.nl.On("LinkByName", "vpc1-to-vpc0").Return(linkB, nil).Once()
	m.nl.On("LinkSetMaster", linkA, bridgeA).Return(nil).Once()
	m.nl.On("LinkSetMaster", linkB, bridgeB).Return(nil).Once()
	m.nl.On("LinkSetUp", linkA).Return(nil).Once()
	m.nl.On("LinkSetUp", linkB).Return(nil).Once()
	m.offload.On("DisableTxChecksum", "vpc0-to-vpc1").Return(nil).Once()
	m.offload.On("DisableTxChecksum", "vpc1-to-vpc0").Return(nil).Once()

	// A stale route toward B's block is purged before the new ones go in.
	stale := netlink.Route{Dst: mustIPNet(t, "10.10.0.0/16"), LinkIndex: 99}
	m.nl.On("RouteList", nil, netlink.FAMILY_V4).Return([]netlink.Route{stale}, nil).Once()
	m.nl.On("RouteDel", &stale).Return(nil).Once()
	m.nl.On("RouteAdd", &netlink.Route{Dst: netB, LinkIndex: 20}).Return(nil).Once()
	m.nl.On("RouteAdd", &netlink.Route{Dst: netA, LinkIndex: 21}).Return(nil).Once()

	// Prior pair rules purged, then established, ICMP, deny per direction.
	m.fw.On("EnsureHostChains").Return(nil).Once()
	m.fw.On("DeleteRulesByComment", netprim.ChainForward, "peer:vpc0:vpc1:").Return(nil).Once()
	est := []netprim.CtState{netprim.CtStateEstablished, netprim.CtStateRelated}
	for _, spec := range []netprim.RuleSpec{
		{Comment: "peer:vpc0:vpc1:est:vpc0", SrcNet: "10.0.0.0/16", DstNet: "10.10.0.0/16", CtStates: est, Verdict: netprim.VerdictAccept},
		{Comment: "peer:vpc0:vpc1:est:vpc1", SrcNet: "10.10.0.0/16", DstNet: "10.0.0.0/16", CtStates: est, Verdict: netprim.VerdictAccept},
		{Comment: "peer:vpc0:vpc1:icmp:vpc0", SrcNet: "10.0.0.0/16", DstNet: "10.10.0.0/16", Proto: "icmp", Verdict: netprim.VerdictAccept},
		{Comment: "peer:vpc0:vpc1:icmp:vpc1", SrcNet: "10.10.0.0/16", DstNet: "10.0.0.0/16", Proto: "icmp", Verdict: netprim.VerdictAccept},
		{Comment: "peer:vpc0:vpc1:deny:vpc0", SrcNet: "10.0.0.0/16", DstNet: "10.10.0.0/16", Verdict: netprim.VerdictDrop},
		{Comment: "peer:vpc0:vpc1:deny:vpc1", SrcNet: "10.10.0.0/16", DstNet: "10.0.0.0/16", Verdict: netprim.VerdictDrop},
	} {
		m.fw.On("AppendRule", netprim.ChainForward, spec).Return(nil).Once()
	}
	m.fw.On("Flush").Return(nil).Once()
	m.fw.On("Close").Return(nil).Once()

	assert.NoError(t, r.PeerVPCs("vpc0", "10.0.0.0/16", "vpc1", "10.10.0.0/16"))
	m.assertAll(t)
}

func TestPeerVPCsNoOpWhenPeered(t *testing.T) {
	r, m := newTestReconciler("eth0", nil)

	m.nl.On("ParseIPNet", "10.0.0.0/16").Return(mustIPNet(t, "10.0.0.0/16"), nil).Once()
	m.nl.On("ParseIPNet", "10.10.0.0/16").Return(mustIPNet(t, "10.10.0.0/16"), nil).Once()

	cable := &netlink.Veth{LinkAttrs: netlink.LinkAttrs{Name: "vpc0-to-vpc1"}}
	m.nl.On("LinkByName", "vpc0-to-vpc1").Return(cable, nil).Once()

	assert.NoError(t, r.PeerVPCs("vpc0", "10.0.0.0/16", "vpc1", "10.10.0.0/16"))

	m.assertAll(t)
	m.nl.AssertNotCalled(t, "LinkAdd", mock.Anything)
	m.fw.AssertNotCalled(t, "AppendRule", mock.Anything, mock.Anything)
}

func TestPeerVPCsRejectsSelfPeering(t *testing.T) {
	r, _ := newTestReconciler("eth0", nil)
	assert.Error(t, r.PeerVPCs("vpc0", "10.0.0.0/16", "vpc0", "10.0.0.0/16"))
}

func TestPeerVPCsRequiresBothVPCs(t *testing.T) {
	r, m := newTestReconciler("eth0", nil)

	m.nl.On("ParseIPNet", "10.0.0.0/16").Return(mustIPNet(t, "10.0.0.0/16"), nil).Once()
	m.nl.On("ParseIPNet", "10.10.0.0/16").Return(mustIPNet(t, "10.10.0.0/16"), nil).Once()
	m.nl.On("LinkByName", "vpc0-to-vpc1").Return(nil, notFound("vpc0-to-vpc1")).Once()
	m.nl.On("LinkByName", "vpc1-to-vpc0").Return(nil, notFound("vpc1-to-vpc0")).Once()

	bridgeA := &netlink.Bridge{LinkAttrs: netlink.LinkAttrs{Name: "vpc0"}}
	m.nl.On("LinkByName", "vpc0").Return(bridgeA, nil).Once()
	m.nl.On("LinkByName", "vpc1").Return(nil, notFound("vpc1")).Once()

	err := r.PeerVPCs("vpc0", "10.0.0.0/16", "vpc1", "10.10.0.0/16")
	var dep *DependencyMissingError
	assert.ErrorAs(t, err, &dep)
	assert.Equal(t, "vpc1", dep.Dependency)
	m.assertAll(t)
}

func TestCleanVacuous(t *testing.T) {
	// Clean on a pristine host succeeds and deletes nothing.
	r, m := newTestReconciler("eth0", nil)

	m.nl.On("LinkList").Return([]netlink.Link{}, nil).Twice()
	m.ns.On("List").Return([]string{}, nil).Once()

	m.fw.On("EnsureHostChains").Return(nil).Once()
	m.fw.On("FlushChain", netprim.ChainPostrouting).Return(nil).Once()
	m.fw.On("FlushChain", netprim.ChainForward).Return(nil).Once()
	m.fw.On("SetForwardPolicy", true).Return(nil).Once()
	m.fw.On("Flush").Return(nil).Once()
	m.fw.On("Close").Return(nil).Once()

	m.sys.On("WriteSysctl", "net.ipv4.conf.all.rp_filter", "1").Return(nil).Once()
	m.sys.On("WriteSysctl", "net.ipv4.conf.default.rp_filter", "1").Return(nil).Once()

	m.nl.On("ParseIPNet", "10.0.0.0/8").Return(mustIPNet(t, "10.0.0.0/8"), nil).Once()
	m.nl.On("RouteList", nil, netlink.FAMILY_V4).Return([]netlink.Route{}, nil).Once()

	assert.NoError(t, r.Clean())

	m.assertAll(t)
	m.nl.AssertNotCalled(t, "LinkDel", mock.Anything)
	m.ns.AssertNotCalled(t, "Delete", mock.Anything)
}

func TestCleanRemovesOnlyOwnedResources(t *testing.T) {
	r, m := newTestReconciler("eth0", nil)

	owned := &netlink.Bridge{LinkAttrs: netlink.LinkAttrs{Name: "vpc0", Alias: VPCAlias}}
	foreign := &netlink.Bridge{LinkAttrs: netlink.LinkAttrs{Name: "docker0"}}
	m.nl.On("LinkList").Return([]netlink.Link{owned, foreign}, nil).Once()
	m.nl.On("LinkDel", owned).Return(nil).Once()

	m.ns.On("List").Return([]string{"web_ns"}, nil).Once()
	m.ns.On("Delete", "web_ns").Return(nil).Once()

	// Second sweep finds a peering cable remnant and an unrelated veth.
	remnant := &netlink.Veth{LinkAttrs: netlink.LinkAttrs{Name: "vpc0-to-vpc1"}}
	unrelated := &netlink.Veth{LinkAttrs: netlink.LinkAttrs{Name: "docker-veth0"}}
	m.nl.On("LinkList").Return([]netlink.Link{remnant, unrelated}, nil).Once()
	m.nl.On("LinkDel", remnant).Return(nil).Once()

	m.fw.On("EnsureHostChains").Return(nil).Once()
	m.fw.On("FlushChain", netprim.ChainPostrouting).Return(nil).Once()
	m.fw.On("FlushChain", netprim.ChainForward).Return(nil).Once()
	m.fw.On("SetForwardPolicy", true).Return(nil).Once()
	m.fw.On("Flush").Return(nil).Once()
	m.fw.On("Close").Return(nil).Once()

	m.sys.On("WriteSysctl", "net.ipv4.conf.all.rp_filter", "1").Return(nil).Once()
	m.sys.On("WriteSysctl", "net.ipv4.conf.default.rp_filter", "1").Return(nil).Once()

	supernet := mustIPNet(t, "10.0.0.0/8")
	leftover := netlink.Route{Dst: mustIPNet(t, "10.10.0.0/16"), LinkIndex: 4}
	outside := netlink.Route{Dst: mustIPNet(t, "192.168.1.0/24"), LinkIndex: 5}
	m.nl.On("ParseIPNet", "10.0.0.0/8").Return(supernet, nil).Once()
	m.nl.On("RouteList", nil, netlink.FAMILY_V4).Return([]netlink.Route{leftover, outside}, nil).Once()
	m.nl.On("RouteDel", &leftover).Return(nil).Once()

	assert.NoError(t, r.Clean())

	m.assertAll(t)
	m.nl.AssertNumberOfCalls(t, "LinkDel", 2)
	m.nl.AssertNumberOfCalls(t, "RouteDel", 1)
}

func TestVPCSupernetPicksWidestPrefix(t *testing.T) {
	router, _ := netlink.ParseAddr("10.0.0.1/16")
	gateway, _ := netlink.ParseAddr("10.0.1.1/24")
	assert.Equal(t, "10.0.0.0/16", vpcSupernet([]netlink.Addr{*gateway, *router}))
	assert.Equal(t, "", vpcSupernet(nil))
}

func TestInventoryRender(t *testing.T) {
	inv := &Inventory{
		VPCs: []LiveVPC{
			{Name: "vpc1"},
			{Name: "vpc0", NAT: true},
		},
		Subnets:  []string{"web_ns"},
		Peerings: []LivePeering{{A: "vpc0", B: "vpc1"}},
	}
	assert.Equal(t,
		"nat vpc0\npeering vpc0 vpc1\nsubnet web_ns\nvpc vpc0\nvpc vpc1\n",
		inv.Render())
}
