//go:build linux
// +build linux

package netprim

import (
	"fmt"
	"os"
	"runtime"

	"github.com/vishvananda/netns"
)

// netnsRunDir is where iproute2 keeps named namespace bind mounts.
const netnsRunDir = "/var/run/netns"

// RealNamespacer manages named network namespaces via the netns package.
type RealNamespacer struct{}

// NewNamespacer returns the real namespace implementation.
func NewNamespacer() Namespacer {
	return &RealNamespacer{}
}

// Exists reports whether a named namespace is present.
func (r *RealNamespacer) Exists(name string) (bool, error) {
	ns, err := netns.GetFromName(name)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	ns.Close()
	return true, nil
}

// Create creates a named namespace. netns.NewNamed switches the calling
// thread into the new namespace, so the original one is restored before
// returning.
func (r *RealNamespacer) Create(name string) error {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	origin, err := netns.Get()
	if err != nil {
		return fmt.Errorf("failed to get current netns: %w", err)
	}
	defer origin.Close()

	created, err := netns.NewNamed(name)
	if err != nil {
		return fmt.Errorf("failed to create netns %s: %w", name, err)
	}
	created.Close()

	if err := netns.Set(origin); err != nil {
		return fmt.Errorf("failed to return to original netns: %w", err)
	}
	return nil
}

// Delete removes a named namespace. Absent namespaces are not an error.
func (r *RealNamespacer) Delete(name string) error {
	if err := netns.DeleteNamed(name); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete netns %s: %w", name, err)
	}
	return nil
}

// List returns the names of all named namespaces.
func (r *RealNamespacer) List() ([]string, error) {
	entries, err := os.ReadDir(netnsRunDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	return names, nil
}

// GetHandle returns an open handle for the named namespace.
func (r *RealNamespacer) GetHandle(name string) (netns.NsHandle, error) {
	return netns.GetFromName(name)
}

// Do runs fn inside the named namespace. The OS thread is locked so that
// no other goroutine observes the switched namespace.
func (r *RealNamespacer) Do(name string, fn func() error) error {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	origin, err := netns.Get()
	if err != nil {
		return fmt.Errorf("failed to get current netns: %w", err)
	}
	defer origin.Close()

	target, err := netns.GetFromName(name)
	if err != nil {
		return fmt.Errorf("failed to open netns %s: %w", name, err)
	}
	defer target.Close()

	if err := netns.Set(target); err != nil {
		return fmt.Errorf("failed to enter netns %s: %w", name, err)
	}
	defer netns.Set(origin)

	return fn()
}
