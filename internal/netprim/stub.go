//go:build !linux
// +build !linux

package netprim

import (
	"fmt"
	"net"
	"runtime"

	"github.com/vishvananda/netlink"
	"github.com/vishvananda/netns"
)

// ErrNotSupported is returned by every stubbed primitive.
var ErrNotSupported = fmt.Errorf("network primitives not supported on %s", runtime.GOOS)

// NewNetlinker returns the stub netlink implementation.
func NewNetlinker() Netlinker { return &stubNetlinker{} }

// NewNamespacer returns the stub namespace implementation.
func NewNamespacer() Namespacer { return &stubNamespacer{} }

// NewOffloader returns the stub ethtool implementation.
func NewOffloader() Offloader { return &stubOffloader{} }

// NewFilterManager returns an error on non-Linux platforms.
func NewFilterManager(namespace string) (FilterManager, error) {
	return nil, ErrNotSupported
}

type stubNetlinker struct{}

func (s *stubNetlinker) LinkByName(string) (netlink.Link, error)         { return nil, ErrNotSupported }
func (s *stubNetlinker) LinkList() ([]netlink.Link, error)               { return nil, ErrNotSupported }
func (s *stubNetlinker) LinkAdd(netlink.Link) error                      { return ErrNotSupported }
func (s *stubNetlinker) LinkDel(netlink.Link) error                      { return ErrNotSupported }
func (s *stubNetlinker) LinkSetUp(netlink.Link) error                    { return ErrNotSupported }
func (s *stubNetlinker) LinkSetMaster(_, _ netlink.Link) error           { return ErrNotSupported }
func (s *stubNetlinker) LinkSetNsFd(netlink.Link, int) error             { return ErrNotSupported }
func (s *stubNetlinker) LinkSetAlias(netlink.Link, string) error         { return ErrNotSupported }
func (s *stubNetlinker) AddrList(netlink.Link, int) ([]netlink.Addr, error) {
	return nil, ErrNotSupported
}
func (s *stubNetlinker) AddrAdd(netlink.Link, *netlink.Addr) error { return ErrNotSupported }
func (s *stubNetlinker) RouteList(netlink.Link, int) ([]netlink.Route, error) {
	return nil, ErrNotSupported
}
func (s *stubNetlinker) RouteAdd(*netlink.Route) error { return ErrNotSupported }
func (s *stubNetlinker) RouteDel(*netlink.Route) error { return ErrNotSupported }
func (s *stubNetlinker) ParseAddr(a string) (*netlink.Addr, error) {
	return netlink.ParseAddr(a)
}
func (s *stubNetlinker) ParseIPNet(a string) (*net.IPNet, error) {
	_, ipNet, err := net.ParseCIDR(a)
	return ipNet, err
}

type stubNamespacer struct{}

func (s *stubNamespacer) Exists(string) (bool, error)  { return false, ErrNotSupported }
func (s *stubNamespacer) Create(string) error          { return ErrNotSupported }
func (s *stubNamespacer) Delete(string) error          { return ErrNotSupported }
func (s *stubNamespacer) List() ([]string, error)      { return nil, ErrNotSupported }
func (s *stubNamespacer) Do(string, func() error) error { return ErrNotSupported }
func (s *stubNamespacer) GetHandle(string) (netns.NsHandle, error) {
	return netns.NsHandle(-1), ErrNotSupported
}

type stubOffloader struct{}

func (s *stubOffloader) DisableTxChecksum(string) error { return ErrNotSupported }
