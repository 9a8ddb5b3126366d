package main

import (
	"flag"
	"fmt"
	"os"

	"grimm.is/stratus/cmd"
	"grimm.is/stratus/internal/logging"
)

const defaultPolicyFile = "/etc/stratus/policy.json"

func commonFlags(fs *flag.FlagSet) *cmd.CommonOpts {
	opts := &cmd.CommonOpts{}
	fs.StringVar(&opts.PolicyFile, "policy", defaultPolicyFile, "Security policy document (JSON)")
	fs.StringVar(&opts.PolicyFile, "p", defaultPolicyFile, "Security policy document (short)")
	fs.StringVar(&opts.ExternalInterface, "ext-if", "", "External-facing interface (default: autodetect)")
	fs.BoolVar(&opts.Verbose, "v", false, "Verbose (debug) logging")
	return opts
}

func fail(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "create":
		createFlags := flag.NewFlagSet("create", flag.ExitOnError)
		opts := commonFlags(createFlags)
		createFlags.Parse(os.Args[2:])

		args := createFlags.Args()
		if len(args) != 4 || args[0] != "vpc" {
			fmt.Fprintln(os.Stderr, "Usage: stratus create vpc <name> <routerAddr/mask> <cidr>")
			os.Exit(1)
		}
		setupLogging(opts)
		if err := cmd.RunCreateVPC(args[1], args[2], args[3], *opts); err != nil {
			fail(err)
		}

	case "add":
		addFlags := flag.NewFlagSet("add", flag.ExitOnError)
		opts := commonFlags(addFlags)
		addFlags.Parse(os.Args[2:])

		args := addFlags.Args()
		if len(args) != 5 || args[0] != "subnet" {
			fmt.Fprintln(os.Stderr, "Usage: stratus add subnet <name> <cidr> public|private <vpcName>")
			os.Exit(1)
		}
		setupLogging(opts)
		if err := cmd.RunAddSubnet(args[1], args[2], args[3], args[4], *opts); err != nil {
			fail(err)
		}

	case "enable":
		enableFlags := flag.NewFlagSet("enable", flag.ExitOnError)
		opts := commonFlags(enableFlags)
		enableFlags.Parse(os.Args[2:])

		args := enableFlags.Args()
		if len(args) != 3 || args[0] != "nat" {
			fmt.Fprintln(os.Stderr, "Usage: stratus enable nat <vpcName> <cidr>")
			os.Exit(1)
		}
		setupLogging(opts)
		if err := cmd.RunEnableNAT(args[1], args[2], *opts); err != nil {
			fail(err)
		}

	case "peer":
		peerFlags := flag.NewFlagSet("peer", flag.ExitOnError)
		opts := commonFlags(peerFlags)
		peerFlags.Parse(os.Args[2:])

		args := peerFlags.Args()
		if len(args) != 5 || args[0] != "vpcs" {
			fmt.Fprintln(os.Stderr, "Usage: stratus peer vpcs <vpcA> <cidrA> <vpcB> <cidrB>")
			os.Exit(1)
		}
		setupLogging(opts)
		if err := cmd.RunPeerVPCs(args[1], args[2], args[3], args[4], *opts); err != nil {
			fail(err)
		}

	case "test":
		testFlags := flag.NewFlagSet("test", flag.ExitOnError)
		opts := commonFlags(testFlags)
		testFlags.Parse(os.Args[2:])

		args := testFlags.Args()
		if len(args) < 1 {
			printTestUsage()
			os.Exit(1)
		}
		setupLogging(opts)
		var err error
		switch args[0] {
		case "subnet":
			if len(args) != 3 {
				fmt.Fprintln(os.Stderr, "Usage: stratus test subnet <subnetName> <targetAddr>")
				os.Exit(1)
			}
			err = cmd.RunTestSubnet(args[1], args[2], *opts)
		case "internet":
			if len(args) != 2 {
				fmt.Fprintln(os.Stderr, "Usage: stratus test internet <subnetName>")
				os.Exit(1)
			}
			err = cmd.RunTestInternet(args[1], *opts)
		case "subnet_to_subnet":
			if len(args) != 4 {
				fmt.Fprintln(os.Stderr, "Usage: stratus test subnet_to_subnet <fromSubnet> <toSubnet> <toCIDR>")
				os.Exit(1)
			}
			err = cmd.RunTestSubnetToSubnet(args[1], args[2], args[3], *opts)
		default:
			printTestUsage()
			os.Exit(1)
		}
		if err != nil {
			fail(err)
		}

	case "clean":
		cleanFlags := flag.NewFlagSet("clean", flag.ExitOnError)
		opts := commonFlags(cleanFlags)
		cleanFlags.Parse(os.Args[2:])

		setupLogging(opts)
		if err := cmd.RunClean(*opts); err != nil {
			fail(err)
		}

	case "apply":
		applyFlags := flag.NewFlagSet("apply", flag.ExitOnError)
		opts := commonFlags(applyFlags)
		applyFlags.Parse(os.Args[2:])

		if len(applyFlags.Args()) != 1 {
			fmt.Fprintln(os.Stderr, "Usage: stratus apply <topology.yaml>")
			os.Exit(1)
		}
		setupLogging(opts)
		if err := cmd.RunApply(applyFlags.Arg(0), *opts); err != nil {
			fail(err)
		}

	case "plan":
		planFlags := flag.NewFlagSet("plan", flag.ExitOnError)
		opts := commonFlags(planFlags)
		planFlags.Parse(os.Args[2:])

		if len(planFlags.Args()) != 1 {
			fmt.Fprintln(os.Stderr, "Usage: stratus plan <topology.yaml>")
			os.Exit(1)
		}
		setupLogging(opts)
		if err := cmd.RunPlan(planFlags.Arg(0), *opts); err != nil {
			fail(err)
		}

	case "status":
		statusFlags := flag.NewFlagSet("status", flag.ExitOnError)
		opts := commonFlags(statusFlags)
		statusFlags.Parse(os.Args[2:])

		setupLogging(opts)
		if err := cmd.RunStatus(*opts); err != nil {
			fail(err)
		}

	case "version", "-version", "--version":
		fmt.Println("stratus", version)

	case "help", "-h", "--help":
		printUsage()

	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

var version = "dev"

func setupLogging(opts *cmd.CommonOpts) {
	cfg := logging.DefaultConfig()
	if opts.Verbose {
		cfg.Level = logging.LevelDebug
	}
	logging.SetDefault(logging.New(cfg))
}

func printUsage() {
	fmt.Println(`stratus - emulated multi-tenant virtual network provisioner

Usage:
  stratus create vpc <name> <routerAddr/mask> <cidr>   Create a VPC (bridge + router address)
  stratus add subnet <name> <cidr> public|private <vpc> Add a subnet namespace to a VPC
  stratus enable nat <vpcName> <cidr>                  Enable masqueraded internet egress
  stratus peer vpcs <vpcA> <cidrA> <vpcB> <cidrB>      Peer two VPCs (ICMP + established only)
  stratus test <probe> ...                             Reachability probes (see below)
  stratus clean                                        Tear down everything stratus created
  stratus apply <topology.yaml>                        Reconcile a declarative topology document
  stratus plan <topology.yaml>                         Diff a document against live state
  stratus status                                       Show the live topology
  stratus version                                      Print version

Probes:
  stratus test subnet <subnetName> <targetAddr>
  stratus test internet <subnetName>
  stratus test subnet_to_subnet <fromSubnet> <toSubnet> <toCIDR>

Common flags (per command):
  -policy, -p   Security policy document (default /etc/stratus/policy.json)
  -ext-if       External-facing interface (default: autodetect via default route)
  -v            Verbose logging`)
}

func printTestUsage() {
	fmt.Println(`Usage:
  stratus test subnet <subnetName> <targetAddr>
  stratus test internet <subnetName>
  stratus test subnet_to_subnet <fromSubnet> <toSubnet> <toCIDR>`)
}
