package policy

import (
	"errors"
	"fmt"
	"strings"

	"grimm.is/stratus/internal/netprim"
)

// ErrNoPolicy indicates the document has no rule group for a subnet.
// Non-fatal: the subnet stays deny-by-default from its namespace policy.
var ErrNoPolicy = errors.New("no policy defined for subnet")

// CommentPrefix returns the comment prefix shared by every compiled
// directive of one subnet. Re-application deletes by this prefix first,
// making recompilation a full replace.
func CommentPrefix(subnet string) string {
	return fmt.Sprintf("policy:%s:", subnet)
}

// Compiler turns abstract rule groups into filter directives.
type Compiler struct {
	doc *Document
}

// NewCompiler creates a compiler over a loaded document. A nil document
// is treated as empty.
func NewCompiler(doc *Document) *Compiler {
	if doc == nil {
		doc = &Document{}
	}
	return &Compiler{doc: doc}
}

// Compile looks up the rule group for a subnet and lowers it into
// ordered ingress and egress directives. Rule order is preserved since
// compiled filter evaluation is first-match. Returns ErrNoPolicy with
// empty sets when the subnet has no group.
func (c *Compiler) Compile(subnet string) (ingress, egress []netprim.RuleSpec, err error) {
	group := c.doc.Group(subnet)
	if group == nil {
		return nil, nil, ErrNoPolicy
	}

	for i, rule := range group.Ingress {
		spec, err := compileRule(rule, fmt.Sprintf("policy:%s:in:%d", subnet, i), true)
		if err != nil {
			return nil, nil, fmt.Errorf("ingress rule %d for %s: %w", i, subnet, err)
		}
		ingress = append(ingress, spec)
	}
	for i, rule := range group.Egress {
		spec, err := compileRule(rule, fmt.Sprintf("policy:%s:out:%d", subnet, i), false)
		if err != nil {
			return nil, nil, fmt.Errorf("egress rule %d for %s: %w", i, subnet, err)
		}
		egress = append(egress, spec)
	}
	return ingress, egress, nil
}

// compileRule lowers one abstract rule. Unrecognized actions compile to
// drop, so a typo in the document can only make policy stricter.
func compileRule(rule Rule, comment string, ingress bool) (netprim.RuleSpec, error) {
	spec := netprim.RuleSpec{
		Comment: comment,
		Verdict: netprim.VerdictDrop,
	}
	if strings.EqualFold(rule.Action, "allow") {
		spec.Verdict = netprim.VerdictAccept
	}

	switch proto := strings.ToLower(strings.TrimSpace(rule.Protocol)); proto {
	case "", "all", "any":
		// any protocol
	case "tcp", "udp", "icmp":
		spec.Proto = proto
	default:
		return netprim.RuleSpec{}, fmt.Errorf("unknown protocol %q", rule.Protocol)
	}

	if !rule.Port.IsAll() {
		port, err := rule.Port.Number()
		if err != nil {
			return netprim.RuleSpec{}, err
		}
		if spec.Proto != "tcp" && spec.Proto != "udp" {
			return netprim.RuleSpec{}, fmt.Errorf("port %d requires tcp or udp", port)
		}
		spec.Port = port
	}

	// Counterpart defaults to any address when unspecified.
	if ingress {
		spec.SrcNet = rule.Source
	} else {
		spec.DstNet = rule.Destination
	}
	return spec, nil
}
