package cmd

import (
	"fmt"

	"grimm.is/stratus/internal/topofile"
)

// RunApply reconciles a declarative topology document against the host.
func RunApply(file string, opts CommonOpts) error {
	doc, err := topofile.Load(file)
	if err != nil {
		return fmt.Errorf("failed to load topology: %w", err)
	}
	r, err := buildReconciler(opts)
	if err != nil {
		return err
	}
	if err := topofile.Apply(r, doc); err != nil {
		return err
	}
	fmt.Printf("topology %s applied: %d vpcs, %d subnets, %d peerings\n",
		file, len(doc.VPCs), len(doc.Subnets), len(doc.Peerings))
	return nil
}
