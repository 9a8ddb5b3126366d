// Package topofile reads declarative topology documents and applies them
// through the reconciler in dependency order. A topology file is the
// batch form of the individual CLI commands; applying one twice is
// idempotent by construction.
package topofile

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v2"
)

// VPCDecl declares one VPC, optionally with internet egress.
type VPCDecl struct {
	Name   string `yaml:"name"`
	Router string `yaml:"router"`
	CIDR   string `yaml:"cidr"`
	NAT    bool   `yaml:"nat,omitempty"`
}

// SubnetDecl declares one subnet inside a VPC.
type SubnetDecl struct {
	Name       string `yaml:"name"`
	CIDR       string `yaml:"cidr"`
	Visibility string `yaml:"visibility"`
	VPC        string `yaml:"vpc"`
}

// PeeringDecl declares one peering between two VPCs.
type PeeringDecl struct {
	A     string `yaml:"a"`
	ACIDR string `yaml:"a_cidr"`
	B     string `yaml:"b"`
	BCIDR string `yaml:"b_cidr"`
}

// File is a whole topology document.
type File struct {
	VPCs     []VPCDecl     `yaml:"vpcs"`
	Subnets  []SubnetDecl  `yaml:"subnets"`
	Peerings []PeeringDecl `yaml:"peerings"`
}

// Load reads and validates a topology document.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse parses and validates a topology document from raw YAML.
func Parse(data []byte) (*File, error) {
	var f File
	if err := yaml.UnmarshalStrict(data, &f); err != nil {
		return nil, fmt.Errorf("invalid topology document: %w", err)
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return &f, nil
}

// Validate checks internal consistency: unique names and resolvable
// references.
func (f *File) Validate() error {
	vpcs := map[string]bool{}
	for _, v := range f.VPCs {
		if v.Name == "" || v.Router == "" || v.CIDR == "" {
			return fmt.Errorf("vpc declaration needs name, router, and cidr")
		}
		if vpcs[v.Name] {
			return fmt.Errorf("duplicate vpc %q", v.Name)
		}
		vpcs[v.Name] = true
	}
	subnets := map[string]bool{}
	for _, s := range f.Subnets {
		if s.Name == "" || s.CIDR == "" {
			return fmt.Errorf("subnet declaration needs name and cidr")
		}
		if subnets[s.Name] {
			return fmt.Errorf("duplicate subnet %q", s.Name)
		}
		subnets[s.Name] = true
		if !vpcs[s.VPC] {
			return fmt.Errorf("subnet %q references unknown vpc %q", s.Name, s.VPC)
		}
	}
	for _, p := range f.Peerings {
		if !vpcs[p.A] || !vpcs[p.B] {
			return fmt.Errorf("peering %s/%s references an unknown vpc", p.A, p.B)
		}
		if p.A == p.B {
			return fmt.Errorf("peering %s/%s connects a vpc to itself", p.A, p.B)
		}
	}
	return nil
}

// Applier is the subset of reconciler operations a topology file drives.
type Applier interface {
	CreateVPC(name, routerAddr, cidr string) error
	AddSubnet(name, cidr, visibility, vpcName string) error
	EnableNAT(vpcName, cidr string) error
	PeerVPCs(vpcA, cidrA, vpcB, cidrB string) error
}

// Apply reconciles the document in dependency order: VPCs, NAT, subnets,
// peerings. The first failing operation aborts the run.
func Apply(a Applier, f *File) error {
	for _, v := range f.VPCs {
		if err := a.CreateVPC(v.Name, v.Router, v.CIDR); err != nil {
			return fmt.Errorf("vpc %s: %w", v.Name, err)
		}
	}
	for _, v := range f.VPCs {
		if !v.NAT {
			continue
		}
		if err := a.EnableNAT(v.Name, v.CIDR); err != nil {
			return fmt.Errorf("nat for %s: %w", v.Name, err)
		}
	}
	for _, s := range f.Subnets {
		if err := a.AddSubnet(s.Name, s.CIDR, s.Visibility, s.VPC); err != nil {
			return fmt.Errorf("subnet %s: %w", s.Name, err)
		}
	}
	for _, p := range f.Peerings {
		if err := a.PeerVPCs(p.A, p.ACIDR, p.B, p.BCIDR); err != nil {
			return fmt.Errorf("peering %s/%s: %w", p.A, p.B, err)
		}
	}
	return nil
}

// Render produces the canonical one-resource-per-line form used for the
// plan diff. Lines are sorted so renderings compare stably.
func (f *File) Render() string {
	var lines []string
	for _, v := range f.VPCs {
		lines = append(lines, fmt.Sprintf("vpc %s", v.Name))
		if v.NAT {
			lines = append(lines, fmt.Sprintf("nat %s", v.Name))
		}
	}
	for _, s := range f.Subnets {
		lines = append(lines, fmt.Sprintf("subnet %s", s.Name))
	}
	for _, p := range f.Peerings {
		a, b := p.A, p.B
		if a > b {
			a, b = b, a
		}
		lines = append(lines, fmt.Sprintf("peering %s %s", a, b))
	}
	sort.Strings(lines)
	return strings.Join(lines, "\n") + "\n"
}
