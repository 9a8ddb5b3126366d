package testutil

import (
	"os"
	"testing"
)

// RequireKernel skips the test if the STRATUS_KERNEL_TEST environment
// variable is not set. This ensures that tests requiring real kernel
// capabilities (netlink, namespaces, nftables) only run in an
// environment prepared for them.
func RequireKernel(t *testing.T) {
	t.Helper()
	if os.Getenv("STRATUS_KERNEL_TEST") == "" {
		t.Skip("Skipping test: requires STRATUS_KERNEL_TEST environment")
	}
}
