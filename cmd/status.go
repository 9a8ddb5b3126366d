package cmd

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
)

// RunStatus prints the live emulated topology in tabular form.
func RunStatus(opts CommonOpts) error {
	r, err := buildReconciler(opts)
	if err != nil {
		return err
	}
	inv, err := r.Inventory()
	if err != nil {
		return fmt.Errorf("failed to read live topology: %w", err)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)

	fmt.Fprintln(w, "VPC\tADDRESSES\tNAT")
	for _, v := range inv.VPCs {
		nat := "-"
		if v.NAT {
			nat = "enabled"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\n", v.Name, strings.Join(v.Addrs, ", "), nat)
	}
	if len(inv.VPCs) == 0 {
		fmt.Fprintln(w, "(none)\t\t")
	}
	w.Flush()

	fmt.Println()
	fmt.Println("Subnets:")
	if len(inv.Subnets) == 0 {
		fmt.Println("  (none)")
	}
	for _, s := range inv.Subnets {
		fmt.Printf("  %s\n", s)
	}

	fmt.Println()
	fmt.Println("Peerings:")
	if len(inv.Peerings) == 0 {
		fmt.Println("  (none)")
	}
	for _, p := range inv.Peerings {
		fmt.Printf("  %s <-> %s\n", p.A, p.B)
	}
	return nil
}
