// Package topology implements the reconciliation engine: it decides, for
// each requested resource, whether it already exists, which primitives
// must be created to reach the desired state, and in what order, while
// guaranteeing idempotent re-application and a symmetric teardown.
package topology

import (
	"errors"
	"fmt"
	"net"
	"sort"
	"strings"

	"github.com/vishvananda/netlink"

	"grimm.is/stratus/internal/logging"
	"grimm.is/stratus/internal/netprim"
	"grimm.is/stratus/internal/policy"
)

const (
	sysctlIPForward       = "net.ipv4.ip_forward"
	sysctlRPFilterAll     = "net.ipv4.conf.all.rp_filter"
	sysctlRPFilterDefault = "net.ipv4.conf.default.rp_filter"

	// defaultSupernet bounds leftover-route cleanup during Clean.
	defaultSupernet = "10.0.0.0/8"
)

// Visibility of a subnet.
const (
	VisibilityPublic  = "public"
	VisibilityPrivate = "private"
)

// Options configures a Reconciler. Zero-value fields get real
// implementations (or defaults) in NewReconciler.
type Options struct {
	Netlinker     netprim.Netlinker
	Namespacer    netprim.Namespacer
	System        netprim.SystemController
	Offloader     netprim.Offloader
	FilterFactory netprim.FilterFactory
	Compiler      *policy.Compiler
	Logger        *logging.Logger

	// ExternalInterface carries NAT egress and is the target of the
	// private-subnet block.
	ExternalInterface string

	// EmulatedSupernet bounds route cleanup during Clean.
	EmulatedSupernet string
}

// Reconciler sequences primitive-adapter calls to bring the host to the
// requested topology. Single-operator model: one operation runs to
// completion before the next starts; the existence checks are the only
// guard against double creation.
type Reconciler struct {
	nl        netprim.Netlinker
	ns        netprim.Namespacer
	sys       netprim.SystemController
	offload   netprim.Offloader
	newFilter netprim.FilterFactory
	oracle    *Oracle
	compiler  *policy.Compiler
	logger    *logging.Logger

	extIface string
	supernet string
}

// NewReconciler creates a reconciler, filling unset options with real
// implementations.
func NewReconciler(opts Options) *Reconciler {
	if opts.Netlinker == nil {
		opts.Netlinker = netprim.NewNetlinker()
	}
	if opts.Namespacer == nil {
		opts.Namespacer = netprim.NewNamespacer()
	}
	if opts.System == nil {
		opts.System = netprim.NewSystemController()
	}
	if opts.Offloader == nil {
		opts.Offloader = netprim.NewOffloader()
	}
	if opts.FilterFactory == nil {
		opts.FilterFactory = netprim.NewFilterManager
	}
	if opts.Compiler == nil {
		opts.Compiler = policy.NewCompiler(nil)
	}
	if opts.Logger == nil {
		opts.Logger = logging.Default()
	}
	if opts.EmulatedSupernet == "" {
		opts.EmulatedSupernet = defaultSupernet
	}
	return &Reconciler{
		nl:        opts.Netlinker,
		ns:        opts.Namespacer,
		sys:       opts.System,
		offload:   opts.Offloader,
		newFilter: opts.FilterFactory,
		oracle:    NewOracle(opts.Netlinker, opts.Namespacer),
		compiler:  opts.Compiler,
		logger:    opts.Logger.WithComponent("reconciler"),
		extIface:  opts.ExternalInterface,
		supernet:  opts.EmulatedSupernet,
	}
}

// Oracle exposes the reconciler's existence oracle for read-only callers.
func (r *Reconciler) Oracle() *Oracle {
	return r.oracle
}

// CreateVPC creates the bridge backing a VPC, assigns its router address,
// and establishes the process-wide forwarding state: IP forwarding on,
// reverse-path filtering off, default forward policy deny. Re-invocation
// on an existing VPC is a logged no-op.
func (r *Reconciler) CreateVPC(name, routerAddr, cidr string) error {
	if err := ValidateVPCName(name); err != nil {
		return err
	}
	if _, err := r.nl.ParseIPNet(cidr); err != nil {
		return fmt.Errorf("invalid vpc cidr %q: %w", cidr, err)
	}
	addr, err := r.nl.ParseAddr(routerAddr)
	if err != nil {
		return fmt.Errorf("invalid router address %q: %w", routerAddr, err)
	}

	exists, err := r.oracle.VPCExists(name)
	if err != nil {
		return err
	}
	if exists {
		r.logger.Info("vpc already exists", "vpc", name)
		return nil
	}

	bridge := &netlink.Bridge{LinkAttrs: netlink.LinkAttrs{Name: BridgeName(name)}}
	if err := r.nl.LinkAdd(bridge); err != nil {
		return &ResourceCreationError{Kind: "bridge", Resource: name, Err: err}
	}
	link, err := r.nl.LinkByName(BridgeName(name))
	if err != nil {
		return err
	}
	if err := r.nl.LinkSetAlias(link, VPCAlias); err != nil {
		return err
	}
	if err := r.nl.AddrAdd(link, addr); err != nil {
		return err
	}
	if err := r.nl.LinkSetUp(link); err != nil {
		return err
	}

	if err := r.sys.WriteSysctl(sysctlIPForward, "1"); err != nil {
		return fmt.Errorf("failed to enable ip forwarding: %w", err)
	}
	// Asymmetric routes between VPC devices are dropped with strict
	// source validation enabled.
	for _, key := range []string{sysctlRPFilterAll, sysctlRPFilterDefault} {
		if err := r.sys.WriteSysctl(key, "0"); err != nil {
			return fmt.Errorf("failed to disable reverse-path filtering: %w", err)
		}
	}

	fw, err := r.newFilter("")
	if err != nil {
		return err
	}
	defer fw.Close()
	if err := fw.EnsureHostChains(); err != nil {
		return err
	}
	if err := fw.SetForwardPolicy(false); err != nil {
		return err
	}
	if err := fw.Flush(); err != nil {
		return fmt.Errorf("failed to apply forward policy: %w", err)
	}

	r.logger.Info("vpc created", "vpc", name, "router", routerAddr, "cidr", cidr)
	return nil
}

// EnableNAT idempotently installs the masquerade rule and the two
// forwarding rules for a VPC's internet egress. Each rule is checked
// individually; re-running adds zero duplicates.
func (r *Reconciler) EnableNAT(vpcName, cidr string) error {
	exists, err := r.oracle.VPCExists(vpcName)
	if err != nil {
		return err
	}
	if !exists {
		return &DependencyMissingError{Kind: "vpc", Dependency: vpcName}
	}
	if r.extIface == "" {
		return fmt.Errorf("external interface not configured")
	}

	fw, err := r.newFilter("")
	if err != nil {
		return err
	}
	defer fw.Close()
	if err := fw.EnsureHostChains(); err != nil {
		return err
	}

	bridge := BridgeName(vpcName)
	rules := []struct {
		chain netprim.Chain
		spec  netprim.RuleSpec
	}{
		{netprim.ChainPostrouting, netprim.RuleSpec{
			Comment:  "natmasq:" + vpcName,
			SrcNet:   cidr,
			OutIface: r.extIface,
			Verdict:  netprim.VerdictMasquerade,
		}},
		{netprim.ChainForward, netprim.RuleSpec{
			Comment:  "natout:" + vpcName,
			InIface:  bridge,
			OutIface: r.extIface,
			Verdict:  netprim.VerdictAccept,
		}},
		{netprim.ChainForward, netprim.RuleSpec{
			Comment:  "natin:" + vpcName,
			InIface:  r.extIface,
			OutIface: bridge,
			CtStates: []netprim.CtState{netprim.CtStateEstablished, netprim.CtStateRelated},
			Verdict:  netprim.VerdictAccept,
		}},
	}

	for _, rule := range rules {
		present, err := fw.RuleExists(rule.chain, rule.spec.Comment)
		if err != nil {
			return err
		}
		if present {
			r.logger.Info("nat rule already present", "rule", rule.spec.Comment)
			continue
		}
		if err := fw.AppendRule(rule.chain, rule.spec); err != nil {
			return err
		}
	}
	if err := fw.Flush(); err != nil {
		return fmt.Errorf("failed to apply nat rules: %w", err)
	}

	r.logger.Info("nat enabled", "vpc", vpcName, "cidr", cidr, "via", r.extIface)
	return nil
}

// AddSubnet creates an isolated subnet inside a VPC: a namespace with
// default-deny filters, a cable pair into the VPC bridge, addressing and
// a default route, and the compiled security policy. Re-invocation on an
// existing subnet only refreshes the policy.
func (r *Reconciler) AddSubnet(name, cidr, visibility, vpcName string) error {
	if err := ValidateSubnetName(name); err != nil {
		return err
	}
	if visibility != VisibilityPublic && visibility != VisibilityPrivate {
		return fmt.Errorf("visibility must be %q or %q, got %q", VisibilityPublic, VisibilityPrivate, visibility)
	}
	gateway, err := GatewayAddr(cidr)
	if err != nil {
		return err
	}
	interior, err := InteriorAddr(cidr)
	if err != nil {
		return err
	}

	exists, err := r.oracle.SubnetExists(name)
	if err != nil {
		return err
	}
	if exists {
		r.logger.Info("subnet already exists, refreshing policy", "subnet", name)
		return r.applyPolicy(name)
	}

	vpcExists, err := r.oracle.VPCExists(vpcName)
	if err != nil {
		return err
	}
	if !vpcExists {
		return &DependencyMissingError{Kind: "vpc", Dependency: vpcName}
	}

	// (a) namespace with default-deny input/output policy.
	if err := r.ns.Create(name); err != nil {
		return &ResourceCreationError{Kind: "namespace", Resource: name, Err: err}
	}
	if err := r.denyByDefault(name); err != nil {
		return err
	}

	// (b) cable pair: bridge side enslaved, namespace side moved in.
	hostEnd, nsEnd := SubnetHostVeth(name), SubnetNSVeth(name)
	veth := &netlink.Veth{
		LinkAttrs: netlink.LinkAttrs{Name: hostEnd},
		PeerName:  nsEnd,
	}
	if err := r.nl.LinkAdd(veth); err != nil {
		return &ResourceCreationError{Kind: "cable", Resource: hostEnd, Err: err}
	}
	bridgeLink, err := r.nl.LinkByName(BridgeName(vpcName))
	if err != nil {
		return err
	}
	hostLink, err := r.nl.LinkByName(hostEnd)
	if err != nil {
		return err
	}
	if err := r.nl.LinkSetMaster(hostLink, bridgeLink); err != nil {
		return err
	}
	if err := r.nl.LinkSetUp(hostLink); err != nil {
		return err
	}
	if err := r.offload.DisableTxChecksum(hostEnd); err != nil {
		r.logger.Warn("failed to disable tx offload", "iface", hostEnd, "error", err)
	}

	peerLink, err := r.nl.LinkByName(nsEnd)
	if err != nil {
		return err
	}
	handle, err := r.ns.GetHandle(name)
	if err != nil {
		return err
	}
	err = r.nl.LinkSetNsFd(peerLink, int(handle))
	handle.Close()
	if err != nil {
		return fmt.Errorf("failed to move %s into netns %s: %w", nsEnd, name, err)
	}

	// (c) inside the namespace: loopback, interior address, default route.
	gatewayIP, _, err := net.ParseCIDR(gateway)
	if err != nil {
		return err
	}
	err = r.ns.Do(name, func() error {
		lo, err := r.nl.LinkByName("lo")
		if err != nil {
			return err
		}
		if err := r.nl.LinkSetUp(lo); err != nil {
			return fmt.Errorf("failed to bring up loopback in %s: %w", name, err)
		}
		nsLink, err := r.nl.LinkByName(nsEnd)
		if err != nil {
			return err
		}
		addr, err := r.nl.ParseAddr(interior)
		if err != nil {
			return err
		}
		if err := r.nl.AddrAdd(nsLink, addr); err != nil {
			return err
		}
		if err := r.nl.LinkSetUp(nsLink); err != nil {
			return err
		}
		route := &netlink.Route{
			Scope: netlink.SCOPE_UNIVERSE,
			Gw:    gatewayIP,
		}
		return r.nl.RouteAdd(route)
	})
	if err != nil {
		return err
	}

	// (d) gateway address on the VPC bridge, once per prefix.
	gatewayAddr, err := r.nl.ParseAddr(gateway)
	if err != nil {
		return err
	}
	addrs, err := r.nl.AddrList(bridgeLink, netlink.FAMILY_V4)
	if err != nil {
		return err
	}
	gatewayPresent := false
	for _, a := range addrs {
		if a.IP.Equal(gatewayAddr.IP) {
			gatewayPresent = true
			break
		}
	}
	if gatewayPresent {
		r.logger.Info("gateway address already on bridge", "gateway", gateway, "vpc", vpcName)
	} else if err := r.nl.AddrAdd(bridgeLink, gatewayAddr); err != nil {
		return err
	}

	// Private subnets talk only inside the VPC's address block; the
	// explicit external block is inserted ahead of any NAT accepts.
	if visibility == VisibilityPrivate {
		if err := r.restrictToSupernet(name, cidr, addrs); err != nil {
			return err
		}
	}

	// (e) compiled security policy.
	if err := r.applyPolicy(name); err != nil {
		return err
	}

	r.logger.Info("subnet created", "subnet", name, "cidr", cidr, "visibility", visibility, "vpc", vpcName)
	return nil
}

// denyByDefault installs default-deny input/output chains inside a
// freshly created namespace.
func (r *Reconciler) denyByDefault(namespace string) error {
	fw, err := r.newFilter(namespace)
	if err != nil {
		return err
	}
	defer fw.Close()
	if err := fw.EnsureSubnetChains(); err != nil {
		return err
	}
	if err := fw.Flush(); err != nil {
		return fmt.Errorf("failed to set default-deny policy in %s: %w", namespace, err)
	}
	return nil
}

// restrictToSupernet installs the private-subnet forward rules: traffic
// to and from the VPC's full address block is allowed, traffic toward
// the external interface is dropped ahead of everything else.
func (r *Reconciler) restrictToSupernet(name, cidr string, bridgeAddrs []netlink.Addr) error {
	supernet := vpcSupernet(bridgeAddrs)
	if supernet == "" {
		return fmt.Errorf("cannot determine vpc address block for private subnet %s", name)
	}
	if r.extIface == "" {
		return fmt.Errorf("external interface not configured")
	}

	fw, err := r.newFilter("")
	if err != nil {
		return err
	}
	defer fw.Close()
	if err := fw.EnsureHostChains(); err != nil {
		return err
	}

	appends := []netprim.RuleSpec{
		{
			Comment: fmt.Sprintf("subnet:%s:priv-in", name),
			SrcNet:  supernet,
			DstNet:  cidr,
			Verdict: netprim.VerdictAccept,
		},
		{
			Comment: fmt.Sprintf("subnet:%s:priv-out", name),
			SrcNet:  cidr,
			DstNet:  supernet,
			Verdict: netprim.VerdictAccept,
		},
	}
	for _, spec := range appends {
		present, err := fw.RuleExists(netprim.ChainForward, spec.Comment)
		if err != nil {
			return err
		}
		if present {
			continue
		}
		if err := fw.AppendRule(netprim.ChainForward, spec); err != nil {
			return err
		}
	}

	block := netprim.RuleSpec{
		Comment:  fmt.Sprintf("subnet:%s:noegress", name),
		SrcNet:   cidr,
		OutIface: r.extIface,
		Verdict:  netprim.VerdictDrop,
	}
	present, err := fw.RuleExists(netprim.ChainForward, block.Comment)
	if err != nil {
		return err
	}
	if !present {
		if err := fw.InsertRule(netprim.ChainForward, block); err != nil {
			return err
		}
	}

	if err := fw.Flush(); err != nil {
		return fmt.Errorf("failed to apply private subnet rules: %w", err)
	}
	return nil
}

// applyPolicy compiles the subnet's rule group and applies it as a full
// replace: prior directives are removed before the new set is appended.
func (r *Reconciler) applyPolicy(name string) error {
	ingress, egress, err := r.compiler.Compile(name)
	if err != nil {
		if !errors.Is(err, policy.ErrNoPolicy) {
			return err
		}
		r.logger.Warn("no policy defined for subnet, staying deny-by-default", "subnet", name)
	}

	fw, err := r.newFilter(name)
	if err != nil {
		return err
	}
	defer fw.Close()
	if err := fw.EnsureSubnetChains(); err != nil {
		return err
	}

	prefix := policy.CommentPrefix(name)
	if err := fw.DeleteRulesByComment(netprim.ChainInput, prefix); err != nil {
		return err
	}
	if err := fw.DeleteRulesByComment(netprim.ChainOutput, prefix); err != nil {
		return err
	}
	for _, spec := range ingress {
		if err := fw.AppendRule(netprim.ChainInput, spec); err != nil {
			return err
		}
	}
	for _, spec := range egress {
		if err := fw.AppendRule(netprim.ChainOutput, spec); err != nil {
			return err
		}
	}
	if err := fw.Flush(); err != nil {
		return fmt.Errorf("failed to apply policy for %s: %w", name, err)
	}

	r.logger.Info("policy applied", "subnet", name, "ingress", len(ingress), "egress", len(egress))
	return nil
}

// PeerVPCs connects two VPCs with a dedicated cable, routes each VPC's
// traffic for the peer's block over it, and admits only established and
// ICMP traffic between the two blocks. Re-invocation on an existing
// peering is a no-op; re-peering never duplicates rules or routes.
func (r *Reconciler) PeerVPCs(vpcA, cidrA, vpcB, cidrB string) error {
	if err := ValidatePeerNames(vpcA, vpcB); err != nil {
		return err
	}
	netA, err := r.nl.ParseIPNet(cidrA)
	if err != nil {
		return fmt.Errorf("invalid cidr %q: %w", cidrA, err)
	}
	netB, err := r.nl.ParseIPNet(cidrB)
	if err != nil {
		return fmt.Errorf("invalid cidr %q: %w", cidrB, err)
	}

	exists, err := r.oracle.PeeringExists(vpcA, vpcB)
	if err != nil {
		return err
	}
	if exists {
		r.logger.Info("peering already exists", "a", vpcA, "b", vpcB)
		return nil
	}
	for _, vpc := range []string{vpcA, vpcB} {
		present, err := r.oracle.VPCExists(vpc)
		if err != nil {
			return err
		}
		if !present {
			return &DependencyMissingError{Kind: "vpc", Dependency: vpc}
		}
	}

	// Cable with one end enslaved to each bridge.
	endA, endB := PeerVethNames(vpcA, vpcB)
	veth := &netlink.Veth{
		LinkAttrs: netlink.LinkAttrs{Name: endA},
		PeerName:  endB,
	}
	if err := r.nl.LinkAdd(veth); err != nil {
		return &ResourceCreationError{Kind: "cable", Resource: endA, Err: err}
	}
	linkA, err := r.nl.LinkByName(endA)
	if err != nil {
		return err
	}
	linkB, err := r.nl.LinkByName(endB)
	if err != nil {
		return err
	}
	bridgeA, err := r.nl.LinkByName(BridgeName(vpcA))
	if err != nil {
		return err
	}
	bridgeB, err := r.nl.LinkByName(BridgeName(vpcB))
	if err != nil {
		return err
	}
	if err := r.nl.LinkSetMaster(linkA, bridgeA); err != nil {
		return err
	}
	if err := r.nl.LinkSetMaster(linkB, bridgeB); err != nil {
		return err
	}
	if err := r.nl.LinkSetUp(linkA); err != nil {
		return err
	}
	if err := r.nl.LinkSetUp(linkB); err != nil {
		return err
	}
	for _, end := range []string{endA, endB} {
		if err := r.offload.DisableTxChecksum(end); err != nil {
			r.logger.Warn("failed to disable tx offload", "iface", end, "error", err)
		}
	}

	// One route per direction over the cable; stale routes toward either
	// block are removed first so metrics never conflict.
	routes, err := r.nl.RouteList(nil, netlink.FAMILY_V4)
	if err != nil {
		return err
	}
	for i := range routes {
		if cidrEqual(routes[i].Dst, netA) || cidrEqual(routes[i].Dst, netB) {
			if err := r.nl.RouteDel(&routes[i]); err != nil {
				r.logger.Warn("failed to remove stale route", "dst", routes[i].Dst, "error", err)
			}
		}
	}
	if err := r.nl.RouteAdd(&netlink.Route{Dst: netB, LinkIndex: linkA.Attrs().Index}); err != nil {
		return fmt.Errorf("failed to route %s over %s: %w", cidrB, endA, err)
	}
	if err := r.nl.RouteAdd(&netlink.Route{Dst: netA, LinkIndex: linkB.Attrs().Index}); err != nil {
		return fmt.Errorf("failed to route %s over %s: %w", cidrA, endB, err)
	}

	// Filter rules, first-match order: established, ICMP, then the
	// blanket deny. Prior rules for this pair are purged first.
	fw, err := r.newFilter("")
	if err != nil {
		return err
	}
	defer fw.Close()
	if err := fw.EnsureHostChains(); err != nil {
		return err
	}
	prefix := PeerCommentPrefix(vpcA, vpcB)
	if err := fw.DeleteRulesByComment(netprim.ChainForward, prefix); err != nil {
		return err
	}

	est := []netprim.CtState{netprim.CtStateEstablished, netprim.CtStateRelated}
	pairRules := []netprim.RuleSpec{
		{Comment: prefix + "est:" + vpcA, SrcNet: cidrA, DstNet: cidrB, CtStates: est, Verdict: netprim.VerdictAccept},
		{Comment: prefix + "est:" + vpcB, SrcNet: cidrB, DstNet: cidrA, CtStates: est, Verdict: netprim.VerdictAccept},
		{Comment: prefix + "icmp:" + vpcA, SrcNet: cidrA, DstNet: cidrB, Proto: "icmp", Verdict: netprim.VerdictAccept},
		{Comment: prefix + "icmp:" + vpcB, SrcNet: cidrB, DstNet: cidrA, Proto: "icmp", Verdict: netprim.VerdictAccept},
		{Comment: prefix + "deny:" + vpcA, SrcNet: cidrA, DstNet: cidrB, Verdict: netprim.VerdictDrop},
		{Comment: prefix + "deny:" + vpcB, SrcNet: cidrB, DstNet: cidrA, Verdict: netprim.VerdictDrop},
	}
	for _, spec := range pairRules {
		if err := fw.AppendRule(netprim.ChainForward, spec); err != nil {
			return err
		}
	}
	if err := fw.Flush(); err != nil {
		return fmt.Errorf("failed to apply peering rules: %w", err)
	}

	r.logger.Info("vpcs peered", "a", vpcA, "b", vpcB)
	return nil
}

// Clean tears the whole emulated topology down in dependency-safe order:
// bridges, namespaces, cable remnants, filter state, process-wide
// toggles, leftover routes. Every step tolerates already-absent
// resources; Clean on a pristine host succeeds and changes nothing.
func (r *Reconciler) Clean() error {
	links, err := r.nl.LinkList()
	if err != nil {
		return err
	}
	for _, link := range links {
		if _, ok := link.(*netlink.Bridge); !ok {
			continue
		}
		if link.Attrs().Alias != VPCAlias {
			continue
		}
		r.logger.Info("removing vpc bridge", "bridge", link.Attrs().Name)
		if err := r.nl.LinkDel(link); err != nil {
			r.logger.Warn("failed to remove bridge", "bridge", link.Attrs().Name, "error", err)
		}
	}

	namespaces, err := r.ns.List()
	if err != nil {
		return err
	}
	for _, name := range namespaces {
		r.logger.Info("removing namespace", "namespace", name)
		if err := r.ns.Delete(name); err != nil {
			r.logger.Warn("failed to remove namespace", "namespace", name, "error", err)
		}
	}

	// Cable remnants whose bridge or namespace went away above.
	links, err = r.nl.LinkList()
	if err != nil {
		return err
	}
	for _, link := range links {
		name := link.Attrs().Name
		if link.Type() != "veth" {
			continue
		}
		if !IsPeerCable(name) && !IsSubnetCable(name) {
			continue
		}
		r.logger.Info("removing cable remnant", "link", name)
		if err := r.nl.LinkDel(link); err != nil {
			r.logger.Warn("failed to remove link", "link", name, "error", err)
		}
	}

	fw, err := r.newFilter("")
	if err != nil {
		return err
	}
	defer fw.Close()
	if err := fw.EnsureHostChains(); err != nil {
		return err
	}
	if err := fw.FlushChain(netprim.ChainPostrouting); err != nil {
		return err
	}
	if err := fw.FlushChain(netprim.ChainForward); err != nil {
		return err
	}
	if err := fw.SetForwardPolicy(true); err != nil {
		return err
	}
	if err := fw.Flush(); err != nil {
		return fmt.Errorf("failed to reset filter state: %w", err)
	}

	for _, key := range []string{sysctlRPFilterAll, sysctlRPFilterDefault} {
		if err := r.sys.WriteSysctl(key, "1"); err != nil {
			r.logger.Warn("failed to restore reverse-path filtering", "key", key, "error", err)
		}
	}

	// Leftover routes inside the emulated supernet, e.g. peering routes
	// that outlived their cable.
	supernet, err := r.nl.ParseIPNet(r.supernet)
	if err != nil {
		return err
	}
	routes, err := r.nl.RouteList(nil, netlink.FAMILY_V4)
	if err != nil {
		return err
	}
	for i := range routes {
		if routes[i].Dst == nil || !supernet.Contains(routes[i].Dst.IP) {
			continue
		}
		if err := r.nl.RouteDel(&routes[i]); err != nil {
			r.logger.Warn("failed to remove leftover route", "dst", routes[i].Dst, "error", err)
		}
	}

	r.logger.Info("topology cleaned")
	return nil
}

// vpcSupernet picks the widest prefix among a bridge's addresses, which
// is the VPC's router address block. Gateway addresses carry narrower
// subnet prefixes.
func vpcSupernet(addrs []netlink.Addr) string {
	best := ""
	bestOnes := 33
	for _, a := range addrs {
		if a.IPNet == nil || a.IP.To4() == nil {
			continue
		}
		ones, _ := a.IPNet.Mask.Size()
		if ones < bestOnes {
			bestOnes = ones
			network := a.IP.Mask(a.IPNet.Mask)
			best = fmt.Sprintf("%s/%d", network, ones)
		}
	}
	return best
}

func cidrEqual(a, b *net.IPNet) bool {
	if a == nil || b == nil {
		return false
	}
	aOnes, aBits := a.Mask.Size()
	bOnes, bBits := b.Mask.Size()
	return aOnes == bOnes && aBits == bBits && a.IP.Mask(a.Mask).Equal(b.IP.Mask(b.Mask))
}

// DefaultExternalInterface returns the interface carrying the default
// route, the usual choice for NAT egress.
func DefaultExternalInterface(nl netprim.Netlinker) (string, error) {
	routes, err := nl.RouteList(nil, netlink.FAMILY_V4)
	if err != nil {
		return "", err
	}
	for i := range routes {
		if routes[i].Dst != nil {
			continue
		}
		links, err := nl.LinkList()
		if err != nil {
			return "", err
		}
		for _, link := range links {
			if link.Attrs().Index == routes[i].LinkIndex {
				return link.Attrs().Name, nil
			}
		}
	}
	return "", fmt.Errorf("no default route found")
}

// Inventory is a read-only snapshot of the live emulated topology.
type Inventory struct {
	VPCs     []LiveVPC
	Subnets  []string
	Peerings []LivePeering
}

// LiveVPC is one bridge the engine owns plus its addresses.
type LiveVPC struct {
	Name  string
	Addrs []string
	NAT   bool
}

// LivePeering is one unordered VPC pair joined by a cable.
type LivePeering struct {
	A, B string
}

// Inventory enumerates live VPCs, subnets, and peerings via the adapter.
func (r *Reconciler) Inventory() (*Inventory, error) {
	inv := &Inventory{}

	fw, err := r.newFilter("")
	if err != nil {
		return nil, err
	}
	defer fw.Close()

	links, err := r.nl.LinkList()
	if err != nil {
		return nil, err
	}
	for _, link := range links {
		if _, ok := link.(*netlink.Bridge); !ok || link.Attrs().Alias != VPCAlias {
			continue
		}
		vpc := LiveVPC{Name: link.Attrs().Name}
		addrs, err := r.nl.AddrList(link, netlink.FAMILY_V4)
		if err != nil {
			return nil, err
		}
		for _, a := range addrs {
			vpc.Addrs = append(vpc.Addrs, a.IPNet.String())
		}
		vpc.NAT, err = fw.RuleExists(netprim.ChainPostrouting, "natmasq:"+vpc.Name)
		if err != nil {
			return nil, err
		}
		inv.VPCs = append(inv.VPCs, vpc)
	}

	inv.Subnets, err = r.ns.List()
	if err != nil {
		return nil, err
	}

	seen := map[string]bool{}
	for _, link := range links {
		name := link.Attrs().Name
		if link.Type() != "veth" || !IsPeerCable(name) {
			continue
		}
		parts := strings.SplitN(name, "-to-", 2)
		if len(parts) != 2 {
			continue
		}
		a, b := sortedPair(parts[0], parts[1])
		if seen[a+"/"+b] {
			continue
		}
		seen[a+"/"+b] = true
		inv.Peerings = append(inv.Peerings, LivePeering{A: a, B: b})
	}

	return inv, nil
}

// Render produces the canonical one-resource-per-line form of the
// inventory, sorted so renderings compare stably.
func (inv *Inventory) Render() string {
	var lines []string
	for _, v := range inv.VPCs {
		lines = append(lines, "vpc "+v.Name)
		if v.NAT {
			lines = append(lines, "nat "+v.Name)
		}
	}
	for _, s := range inv.Subnets {
		lines = append(lines, "subnet "+s)
	}
	for _, p := range inv.Peerings {
		lines = append(lines, fmt.Sprintf("peering %s %s", p.A, p.B))
	}
	sort.Strings(lines)
	return strings.Join(lines, "\n") + "\n"
}
