package netprim

import (
	"errors"
	"net"

	"github.com/vishvananda/netlink"
	"github.com/vishvananda/netns"
)

// ErrLinkNotFound is wrapped into LinkByName errors when the device does
// not exist, so callers can classify absence without depending on the
// library's concrete error type.
var ErrLinkNotFound = errors.New("link not found")

// Netlinker is an interface that abstracts netlink interactions.
// This allows for mocking netlink calls during unit testing.
type Netlinker interface {
	LinkByName(name string) (netlink.Link, error)
	LinkList() ([]netlink.Link, error)
	LinkAdd(link netlink.Link) error
	LinkDel(link netlink.Link) error
	LinkSetUp(link netlink.Link) error
	LinkSetMaster(slave, master netlink.Link) error
	LinkSetNsFd(link netlink.Link, fd int) error
	LinkSetAlias(link netlink.Link, alias string) error

	AddrList(link netlink.Link, family int) ([]netlink.Addr, error)
	AddrAdd(link netlink.Link, addr *netlink.Addr) error

	RouteList(link netlink.Link, family int) ([]netlink.Route, error)
	RouteAdd(route *netlink.Route) error
	RouteDel(route *netlink.Route) error

	ParseAddr(s string) (*netlink.Addr, error)
	ParseIPNet(s string) (*net.IPNet, error)
}

// Namespacer abstracts named network namespace management.
type Namespacer interface {
	// Exists reports whether a named namespace is present.
	Exists(name string) (bool, error)

	// Create creates a named namespace and returns to the caller's namespace.
	Create(name string) error

	// Delete removes a named namespace. Absent namespaces are not an error.
	Delete(name string) error

	// List returns the names of all named namespaces on the host.
	List() ([]string, error)

	// GetHandle returns an open handle for the named namespace.
	// The caller must close it.
	GetHandle(name string) (netns.NsHandle, error)

	// Do runs fn with the calling goroutine switched into the named
	// namespace, restoring the original namespace afterwards.
	Do(name string, fn func() error) error
}

// SystemController is an interface that abstracts system-level operations like sysctl.
type SystemController interface {
	ReadSysctl(path string) (string, error)
	WriteSysctl(path, value string) error
	IsNotExist(err error) bool
}

// Offloader abstracts NIC feature manipulation.
type Offloader interface {
	// DisableTxChecksum turns off TX checksum offload on an interface.
	DisableTxChecksum(iface string) error
}

// Chain identifies one of the filter chains the engine programs.
type Chain string

const (
	// Host chains.
	ChainForward     Chain = "forward"
	ChainPostrouting Chain = "postrouting"

	// Namespace chains.
	ChainInput  Chain = "input"
	ChainOutput Chain = "output"
)

// Verdict is the action a compiled rule takes on matching traffic.
type Verdict int

const (
	VerdictAccept Verdict = iota
	VerdictDrop
	VerdictMasquerade
)

// CtState names a conntrack state a rule can match on.
type CtState string

const (
	CtStateNew         CtState = "new"
	CtStateEstablished CtState = "established"
	CtStateRelated     CtState = "related"
)

// RuleSpec describes one filter or NAT directive in structured form.
// Empty match fields match anything. Comment is the rule's identity:
// existence checks compare it exactly and purges match it by prefix.
type RuleSpec struct {
	Comment  string
	InIface  string
	OutIface string
	SrcNet   string // CIDR, empty = any source
	DstNet   string // CIDR, empty = any destination
	Proto    string // "tcp", "udp", "icmp", empty = any
	Port     uint16 // destination port, 0 = any
	CtStates []CtState
	Verdict  Verdict
}

// FilterManager abstracts the packet-filter and NAT surface the engine
// programs. Mutations are queued; Flush commits them in one batch.
// Reads (RuleExists) always reflect committed kernel state.
type FilterManager interface {
	// EnsureHostChains creates the table plus the forward and
	// postrouting base chains if missing.
	EnsureHostChains() error

	// EnsureSubnetChains creates the table plus input and output base
	// chains with drop policy. Only valid on a namespace-scoped manager.
	EnsureSubnetChains() error

	// SetForwardPolicy sets the forward base chain's default policy.
	SetForwardPolicy(accept bool) error

	// RuleExists reports whether a committed rule with this exact
	// comment is present in the chain.
	RuleExists(chain Chain, comment string) (bool, error)

	// AppendRule queues a rule at the end of the chain.
	AppendRule(chain Chain, spec RuleSpec) error

	// InsertRule queues a rule at the head of the chain, ahead of any
	// previously appended rule.
	InsertRule(chain Chain, spec RuleSpec) error

	// DeleteRulesByComment queues deletion of every rule in the chain
	// whose comment starts with prefix.
	DeleteRulesByComment(chain Chain, prefix string) error

	// FlushChain queues removal of every rule in the chain.
	FlushChain(chain Chain) error

	// DeleteTable queues removal of the whole table.
	DeleteTable() error

	// Flush commits pending changes.
	Flush() error

	// Close releases the underlying netlink connection resources.
	Close() error
}

// FilterFactory opens a FilterManager. An empty namespace name binds to
// the host; otherwise the manager programs the named namespace's tables.
type FilterFactory func(namespace string) (FilterManager, error)
