//go:build linux
// +build linux

package netprim

import (
	"errors"
	"fmt"
	"net"

	"github.com/vishvananda/netlink"
)

// RealNetlinker is a concrete implementation of Netlinker that uses the
// actual netlink package.
type RealNetlinker struct{}

// NewNetlinker returns the real netlink implementation.
func NewNetlinker() Netlinker {
	return &RealNetlinker{}
}

// LinkByName retrieves a link by name. Absence is reported as an error
// wrapping ErrLinkNotFound.
func (r *RealNetlinker) LinkByName(name string) (netlink.Link, error) {
	link, err := netlink.LinkByName(name)
	if err != nil {
		var lnf netlink.LinkNotFoundError
		if errors.As(err, &lnf) {
			return nil, fmt.Errorf("%s: %w", name, ErrLinkNotFound)
		}
		return nil, err
	}
	return link, nil
}

// LinkList retrieves all links.
func (r *RealNetlinker) LinkList() ([]netlink.Link, error) {
	return netlink.LinkList()
}

// LinkAdd adds a link.
func (r *RealNetlinker) LinkAdd(link netlink.Link) error {
	return netlink.LinkAdd(link)
}

// LinkDel deletes a link.
func (r *RealNetlinker) LinkDel(link netlink.Link) error {
	return netlink.LinkDel(link)
}

// LinkSetUp sets the link up.
func (r *RealNetlinker) LinkSetUp(link netlink.Link) error {
	return netlink.LinkSetUp(link)
}

// LinkSetMaster sets the master of a slave link.
func (r *RealNetlinker) LinkSetMaster(slave, master netlink.Link) error {
	return netlink.LinkSetMaster(slave, master)
}

// LinkSetNsFd moves a link into the namespace referenced by fd.
func (r *RealNetlinker) LinkSetNsFd(link netlink.Link, fd int) error {
	return netlink.LinkSetNsFd(link, fd)
}

// LinkSetAlias sets the ifalias of a link.
func (r *RealNetlinker) LinkSetAlias(link netlink.Link, alias string) error {
	return netlink.LinkSetAlias(link, alias)
}

// AddrList retrieves a list of addresses for a link.
func (r *RealNetlinker) AddrList(link netlink.Link, family int) ([]netlink.Addr, error) {
	return netlink.AddrList(link, family)
}

// AddrAdd adds an address to a link.
func (r *RealNetlinker) AddrAdd(link netlink.Link, addr *netlink.Addr) error {
	return netlink.AddrAdd(link, addr)
}

// RouteList retrieves a list of routes. A nil link lists all routes.
func (r *RealNetlinker) RouteList(link netlink.Link, family int) ([]netlink.Route, error) {
	return netlink.RouteList(link, family)
}

// RouteAdd adds a route.
func (r *RealNetlinker) RouteAdd(route *netlink.Route) error {
	return netlink.RouteAdd(route)
}

// RouteDel deletes a route.
func (r *RealNetlinker) RouteDel(route *netlink.Route) error {
	return netlink.RouteDel(route)
}

// ParseAddr parses an IP address string.
func (r *RealNetlinker) ParseAddr(s string) (*netlink.Addr, error) {
	return netlink.ParseAddr(s)
}

// ParseIPNet parses an IP network string.
func (r *RealNetlinker) ParseIPNet(s string) (*net.IPNet, error) {
	_, ipNet, err := net.ParseCIDR(s)
	if err != nil {
		return nil, err
	}
	return ipNet, nil
}
