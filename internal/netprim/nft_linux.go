//go:build linux
// +build linux

package netprim

import (
	"fmt"
	"net"
	"strings"

	"github.com/google/nftables"
	"github.com/google/nftables/binaryutil"
	"github.com/google/nftables/expr"
	"github.com/vishvananda/netns"
	"golang.org/x/sys/unix"
)

// tableName is the single nftables table the engine owns, both on the
// host and inside each subnet namespace.
const tableName = "stratus"

// RealFilterManager implements FilterManager using the google/nftables
// library. One instance is bound either to the host or to one namespace.
type RealFilterManager struct {
	conn   *nftables.Conn
	nsh    netns.NsHandle
	family nftables.TableFamily
}

// NewFilterManager opens a filter manager. An empty namespace name binds
// to the host; otherwise the manager programs the named namespace.
func NewFilterManager(namespace string) (FilterManager, error) {
	m := &RealFilterManager{
		nsh:    netns.NsHandle(-1),
		family: nftables.TableFamilyIPv4,
	}

	var opts []nftables.ConnOption
	if namespace != "" {
		nsh, err := netns.GetFromName(namespace)
		if err != nil {
			return nil, fmt.Errorf("failed to open netns %s: %w", namespace, err)
		}
		m.nsh = nsh
		opts = append(opts, nftables.WithNetNSFd(int(nsh)))
	}

	conn, err := nftables.New(opts...)
	if err != nil {
		if m.nsh.IsOpen() {
			m.nsh.Close()
		}
		return nil, fmt.Errorf("failed to open nftables connection: %w", err)
	}
	m.conn = conn
	return m, nil
}

func (m *RealFilterManager) table() *nftables.Table {
	return &nftables.Table{Family: m.family, Name: tableName}
}

func (m *RealFilterManager) chain(name Chain) *nftables.Chain {
	return &nftables.Chain{Name: string(name), Table: m.table()}
}

// baseChain returns the full base-chain definition for one of the chains
// the engine owns. AddChain on an existing chain updates its policy, so
// the same definition serves create and policy-change paths.
func (m *RealFilterManager) baseChain(name Chain, policy nftables.ChainPolicy) *nftables.Chain {
	c := &nftables.Chain{
		Name:   string(name),
		Table:  m.table(),
		Policy: &policy,
	}
	switch name {
	case ChainForward:
		c.Type = nftables.ChainTypeFilter
		c.Hooknum = nftables.ChainHookForward
		c.Priority = nftables.ChainPriorityFilter
	case ChainPostrouting:
		c.Type = nftables.ChainTypeNAT
		c.Hooknum = nftables.ChainHookPostrouting
		c.Priority = nftables.ChainPriorityNATSource
	case ChainInput:
		c.Type = nftables.ChainTypeFilter
		c.Hooknum = nftables.ChainHookInput
		c.Priority = nftables.ChainPriorityFilter
	case ChainOutput:
		c.Type = nftables.ChainTypeFilter
		c.Hooknum = nftables.ChainHookOutput
		c.Priority = nftables.ChainPriorityFilter
	}
	return c
}

// EnsureHostChains creates the table plus forward and postrouting base
// chains. AddTable and AddChain are upserts, so re-running adds nothing.
func (m *RealFilterManager) EnsureHostChains() error {
	m.conn.AddTable(m.table())
	m.conn.AddChain(m.baseChain(ChainForward, nftables.ChainPolicyAccept))
	m.conn.AddChain(m.baseChain(ChainPostrouting, nftables.ChainPolicyAccept))
	return nil
}

// EnsureSubnetChains creates the table plus input and output base chains
// with drop policy inside the bound namespace.
func (m *RealFilterManager) EnsureSubnetChains() error {
	m.conn.AddTable(m.table())
	m.conn.AddChain(m.baseChain(ChainInput, nftables.ChainPolicyDrop))
	m.conn.AddChain(m.baseChain(ChainOutput, nftables.ChainPolicyDrop))
	return nil
}

// SetForwardPolicy sets the forward chain's default policy.
func (m *RealFilterManager) SetForwardPolicy(accept bool) error {
	policy := nftables.ChainPolicyDrop
	if accept {
		policy = nftables.ChainPolicyAccept
	}
	m.conn.AddChain(m.baseChain(ChainForward, policy))
	return nil
}

// RuleExists reports whether a committed rule with this exact comment is
// present in the chain. A missing table or chain means no rule.
func (m *RealFilterManager) RuleExists(chain Chain, comment string) (bool, error) {
	rules, err := m.conn.GetRules(m.table(), m.chain(chain))
	if err != nil {
		if isNoSuchObject(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to get rules: %w", err)
	}
	for _, rule := range rules {
		if string(rule.UserData) == comment {
			return true, nil
		}
	}
	return false, nil
}

// AppendRule queues a rule at the end of the chain.
func (m *RealFilterManager) AppendRule(chain Chain, spec RuleSpec) error {
	exprs, err := compileSpec(spec)
	if err != nil {
		return err
	}
	m.conn.AddRule(&nftables.Rule{
		Table:    m.table(),
		Chain:    m.chain(chain),
		Exprs:    exprs,
		UserData: []byte(spec.Comment),
	})
	return nil
}

// InsertRule queues a rule at the head of the chain.
func (m *RealFilterManager) InsertRule(chain Chain, spec RuleSpec) error {
	exprs, err := compileSpec(spec)
	if err != nil {
		return err
	}
	m.conn.InsertRule(&nftables.Rule{
		Table:    m.table(),
		Chain:    m.chain(chain),
		Exprs:    exprs,
		UserData: []byte(spec.Comment),
	})
	return nil
}

// DeleteRulesByComment queues deletion of every rule in the chain whose
// comment starts with prefix.
func (m *RealFilterManager) DeleteRulesByComment(chain Chain, prefix string) error {
	rules, err := m.conn.GetRules(m.table(), m.chain(chain))
	if err != nil {
		if isNoSuchObject(err) {
			return nil
		}
		return fmt.Errorf("failed to get rules: %w", err)
	}
	for _, rule := range rules {
		if strings.HasPrefix(string(rule.UserData), prefix) {
			if err := m.conn.DelRule(rule); err != nil {
				return fmt.Errorf("failed to delete rule: %w", err)
			}
		}
	}
	return nil
}

// FlushChain queues removal of every rule in the chain.
func (m *RealFilterManager) FlushChain(chain Chain) error {
	m.conn.FlushChain(m.chain(chain))
	return nil
}

// DeleteTable queues removal of the whole table.
func (m *RealFilterManager) DeleteTable() error {
	m.conn.DelTable(m.table())
	return nil
}

// Flush commits all pending changes.
func (m *RealFilterManager) Flush() error {
	return m.conn.Flush()
}

// Close releases the namespace handle, if any.
func (m *RealFilterManager) Close() error {
	if m.nsh.IsOpen() {
		return m.nsh.Close()
	}
	return nil
}

// isNoSuchObject reports whether an nftables error means the queried
// table or chain does not exist yet.
func isNoSuchObject(err error) bool {
	return strings.Contains(err.Error(), "no such file or directory") ||
		strings.Contains(err.Error(), "not found")
}

// compileSpec lowers a RuleSpec into nftables expressions. Expression
// order follows match-then-verdict: interfaces, addresses, protocol,
// port, conntrack state, verdict.
func compileSpec(spec RuleSpec) ([]expr.Any, error) {
	var exprs []expr.Any

	if spec.InIface != "" {
		exprs = append(exprs,
			&expr.Meta{Key: expr.MetaKeyIIFNAME, Register: 1},
			&expr.Cmp{
				Op:       expr.CmpOpEq,
				Register: 1,
				Data:     ifname(spec.InIface),
			},
		)
	}
	if spec.OutIface != "" {
		exprs = append(exprs,
			&expr.Meta{Key: expr.MetaKeyOIFNAME, Register: 1},
			&expr.Cmp{
				Op:       expr.CmpOpEq,
				Register: 1,
				Data:     ifname(spec.OutIface),
			},
		)
	}

	if spec.SrcNet != "" {
		e, err := matchNet(spec.SrcNet, 12)
		if err != nil {
			return nil, fmt.Errorf("invalid source network %s: %w", spec.SrcNet, err)
		}
		exprs = append(exprs, e...)
	}
	if spec.DstNet != "" {
		e, err := matchNet(spec.DstNet, 16)
		if err != nil {
			return nil, fmt.Errorf("invalid destination network %s: %w", spec.DstNet, err)
		}
		exprs = append(exprs, e...)
	}

	if spec.Proto != "" {
		proto, err := protoNumber(spec.Proto)
		if err != nil {
			return nil, err
		}
		exprs = append(exprs,
			&expr.Meta{Key: expr.MetaKeyL4PROTO, Register: 1},
			&expr.Cmp{
				Op:       expr.CmpOpEq,
				Register: 1,
				Data:     []byte{proto},
			},
		)
	}

	if spec.Port != 0 {
		if spec.Proto != "tcp" && spec.Proto != "udp" {
			return nil, fmt.Errorf("port match requires tcp or udp, got %q", spec.Proto)
		}
		exprs = append(exprs,
			// Transport header dport
			&expr.Payload{
				DestRegister: 1,
				Base:         expr.PayloadBaseTransportHeader,
				Offset:       2,
				Len:          2,
			},
			&expr.Cmp{
				Op:       expr.CmpOpEq,
				Register: 1,
				Data:     binaryutil.BigEndian.PutUint16(spec.Port),
			},
		)
	}

	if len(spec.CtStates) > 0 {
		var stateBits uint32
		for _, s := range spec.CtStates {
			switch s {
			case CtStateNew:
				stateBits |= expr.CtStateBitNEW
			case CtStateEstablished:
				stateBits |= expr.CtStateBitESTABLISHED
			case CtStateRelated:
				stateBits |= expr.CtStateBitRELATED
			default:
				return nil, fmt.Errorf("unknown conntrack state %q", s)
			}
		}
		exprs = append(exprs,
			&expr.Ct{Key: expr.CtKeySTATE, Register: 1},
			&expr.Bitwise{
				SourceRegister: 1,
				DestRegister:   1,
				Len:            4,
				Mask:           binaryutil.NativeEndian.PutUint32(stateBits),
				Xor:            []byte{0, 0, 0, 0},
			},
			&expr.Cmp{
				Op:       expr.CmpOpNeq,
				Register: 1,
				Data:     []byte{0, 0, 0, 0},
			},
		)
	}

	switch spec.Verdict {
	case VerdictAccept:
		exprs = append(exprs, &expr.Verdict{Kind: expr.VerdictAccept})
	case VerdictDrop:
		exprs = append(exprs, &expr.Verdict{Kind: expr.VerdictDrop})
	case VerdictMasquerade:
		exprs = append(exprs, &expr.Masq{})
	default:
		return nil, fmt.Errorf("unknown verdict %d", spec.Verdict)
	}

	return exprs, nil
}

// matchNet builds the saddr/daddr match for an IPv4 CIDR. offset is the
// IPv4 header offset of the address field (12 for source, 16 for
// destination).
func matchNet(cidr string, offset uint32) ([]expr.Any, error) {
	_, ipNet, err := net.ParseCIDR(cidr)
	if err != nil {
		return nil, err
	}
	ip4 := ipNet.IP.To4()
	if ip4 == nil {
		return nil, fmt.Errorf("only IPv4 networks supported: %s", cidr)
	}
	return []expr.Any{
		&expr.Payload{
			DestRegister: 1,
			Base:         expr.PayloadBaseNetworkHeader,
			Offset:       offset,
			Len:          4,
		},
		&expr.Bitwise{
			SourceRegister: 1,
			DestRegister:   1,
			Len:            4,
			Mask:           ipNet.Mask,
			Xor:            []byte{0, 0, 0, 0},
		},
		&expr.Cmp{
			Op:       expr.CmpOpEq,
			Register: 1,
			Data:     ip4,
		},
	}, nil
}

func protoNumber(proto string) (byte, error) {
	switch proto {
	case "tcp":
		return unix.IPPROTO_TCP, nil
	case "udp":
		return unix.IPPROTO_UDP, nil
	case "icmp":
		return unix.IPPROTO_ICMP, nil
	default:
		return 0, fmt.Errorf("unknown protocol %q", proto)
	}
}

// ifname pads an interface name to the fixed 16-byte kernel field.
func ifname(name string) []byte {
	b := make([]byte, 16)
	copy(b, name)
	return b
}
