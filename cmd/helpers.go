// Package cmd implements the stratus subcommands as thin wiring around
// the reconciler, the policy compiler, and the prober. Each Run function
// returns an error; main maps errors to a diagnostic plus non-zero exit.
package cmd

import (
	"fmt"
	"os"

	"grimm.is/stratus/internal/logging"
	"grimm.is/stratus/internal/netprim"
	"grimm.is/stratus/internal/policy"
	"grimm.is/stratus/internal/probe"
	"grimm.is/stratus/internal/topology"
)

// CommonOpts carries the flags shared by every subcommand.
type CommonOpts struct {
	// PolicyFile is the JSON security-policy document. A missing file
	// means an empty policy: subnets stay deny-by-default.
	PolicyFile string

	// ExternalInterface carries NAT egress. Empty means autodetect from
	// the default route.
	ExternalInterface string

	Verbose bool
}

// buildReconciler wires a reconciler from the common flags.
func buildReconciler(opts CommonOpts) (*topology.Reconciler, error) {
	logger := logging.Default()
	if opts.Verbose {
		logger.SetLevel(logging.LevelDebug)
	}

	var doc *policy.Document
	if opts.PolicyFile != "" {
		var err error
		doc, err = policy.Load(opts.PolicyFile)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to load policy document: %w", err)
			}
			logger.Warn("policy document not found, subnets stay deny-by-default", "path", opts.PolicyFile)
		}
	}

	nl := netprim.NewNetlinker()
	extIface := opts.ExternalInterface
	if extIface == "" {
		detected, err := topology.DefaultExternalInterface(nl)
		if err != nil {
			// Only NAT and private subnets need the external interface;
			// the reconciler rejects those operations when it is unset.
			logger.Warn("failed to detect external interface", "error", err)
		} else {
			extIface = detected
		}
	}

	return topology.NewReconciler(topology.Options{
		Netlinker:         nl,
		Compiler:          policy.NewCompiler(doc),
		Logger:            logger,
		ExternalInterface: extIface,
	}), nil
}

// buildProber wires a prober for the test subcommands.
func buildProber(opts CommonOpts) *probe.Prober {
	logger := logging.Default()
	if opts.Verbose {
		logger.SetLevel(logging.LevelDebug)
	}
	return probe.New(netprim.NewNamespacer(), logger)
}
