package cmd

import (
	"fmt"

	"github.com/pmezard/go-difflib/difflib"

	"grimm.is/stratus/internal/topofile"
)

// RunPlan diffs a declarative topology document against the live state
// without touching anything.
func RunPlan(file string, opts CommonOpts) error {
	doc, err := topofile.Load(file)
	if err != nil {
		return fmt.Errorf("failed to load topology: %w", err)
	}
	r, err := buildReconciler(opts)
	if err != nil {
		return err
	}
	inv, err := r.Inventory()
	if err != nil {
		return fmt.Errorf("failed to read live topology: %w", err)
	}

	live := inv.Render()
	desired := doc.Render()
	if live == desired {
		fmt.Println("no changes. live topology matches", file)
		return nil
	}

	diff := difflib.UnifiedDiff{
		A:        difflib.SplitLines(live),
		B:        difflib.SplitLines(desired),
		FromFile: "live",
		ToFile:   file,
		Context:  3,
	}
	text, err := difflib.GetUnifiedDiffString(diff)
	if err != nil {
		return err
	}
	fmt.Print(text)
	return nil
}
