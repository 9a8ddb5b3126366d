// Package netprim is the primitive adapter over the four OS facilities the
// topology engine depends on: link and bridge management (netlink), network
// namespaces (netns), routing tables (netlink), and packet-filter chains
// (nftables). It owns no state; every call either succeeds, fails, or
// reports current kernel state. All entry points are interfaces with one
// real implementation and one testify mock so the reconciler can be tested
// without touching the kernel.
package netprim
