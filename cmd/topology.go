package cmd

import "fmt"

// RunCreateVPC creates (or confirms) a VPC.
func RunCreateVPC(name, routerAddr, cidr string, opts CommonOpts) error {
	r, err := buildReconciler(opts)
	if err != nil {
		return err
	}
	if err := r.CreateVPC(name, routerAddr, cidr); err != nil {
		return err
	}
	fmt.Printf("vpc %s ready\n", name)
	return nil
}

// RunAddSubnet creates a subnet or refreshes its policy if it exists.
func RunAddSubnet(name, cidr, visibility, vpcName string, opts CommonOpts) error {
	r, err := buildReconciler(opts)
	if err != nil {
		return err
	}
	if err := r.AddSubnet(name, cidr, visibility, vpcName); err != nil {
		return err
	}
	fmt.Printf("subnet %s ready\n", name)
	return nil
}

// RunEnableNAT enables internet egress for a VPC.
func RunEnableNAT(vpcName, cidr string, opts CommonOpts) error {
	r, err := buildReconciler(opts)
	if err != nil {
		return err
	}
	if err := r.EnableNAT(vpcName, cidr); err != nil {
		return err
	}
	fmt.Printf("nat enabled for %s\n", vpcName)
	return nil
}

// RunPeerVPCs connects two VPCs.
func RunPeerVPCs(vpcA, cidrA, vpcB, cidrB string, opts CommonOpts) error {
	r, err := buildReconciler(opts)
	if err != nil {
		return err
	}
	if err := r.PeerVPCs(vpcA, cidrA, vpcB, cidrB); err != nil {
		return err
	}
	fmt.Printf("vpcs %s and %s peered\n", vpcA, vpcB)
	return nil
}

// RunClean tears down the whole emulated topology.
func RunClean(opts CommonOpts) error {
	r, err := buildReconciler(opts)
	if err != nil {
		return err
	}
	if err := r.Clean(); err != nil {
		return err
	}
	fmt.Println("topology cleaned")
	return nil
}
