// Package policy loads the declarative security rule document and
// compiles rule groups into filter directives for the primitive adapter.
package policy

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// PortAll is the sentinel matching every port.
const PortAll = "all"

// Port is "all" or a specific port number. The JSON document may carry
// either a string or a bare number.
type Port string

// UnmarshalJSON accepts both `"all"`/`"443"` and `443`.
func (p *Port) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*p = Port(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err == nil {
		*p = Port(n.String())
		return nil
	}
	return fmt.Errorf("invalid port value %s", string(data))
}

// IsAll reports whether the port is the match-everything sentinel.
// An absent port is treated the same way.
func (p Port) IsAll() bool {
	return p == "" || strings.EqualFold(string(p), PortAll)
}

// Number returns the specific port number.
func (p Port) Number() (uint16, error) {
	n, err := strconv.ParseUint(string(p), 10, 16)
	if err != nil {
		return 0, fmt.Errorf("invalid port %q: %w", string(p), err)
	}
	return uint16(n), nil
}

// Rule is one abstract ingress or egress rule. Source applies to ingress
// rules, Destination to egress rules; an absent counterpart means any
// address. Any action other than "allow" is treated as deny.
type Rule struct {
	Port        Port   `json:"port"`
	Protocol    string `json:"protocol"`
	Source      string `json:"source,omitempty"`
	Destination string `json:"destination,omitempty"`
	Action      string `json:"action"`
}

// Group is the ordered rule set for one subnet.
type Group struct {
	Subnet  string `json:"subnet"`
	Ingress []Rule `json:"ingress"`
	Egress  []Rule `json:"egress"`
}

// Document is the whole policy file: a sequence of per-subnet groups.
type Document struct {
	Groups []Group
}

// Load reads and parses a policy document from disk.
func Load(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse parses a policy document from raw JSON.
func Parse(data []byte) (*Document, error) {
	var groups []Group
	if err := json.Unmarshal(data, &groups); err != nil {
		return nil, fmt.Errorf("invalid policy document: %w", err)
	}
	return &Document{Groups: groups}, nil
}

// Group returns the rule group for a subnet, or nil if none is defined.
func (d *Document) Group(subnet string) *Group {
	for i := range d.Groups {
		if d.Groups[i].Subnet == subnet {
			return &d.Groups[i]
		}
	}
	return nil
}
