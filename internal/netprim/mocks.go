package netprim

import (
	"net"

	"github.com/stretchr/testify/mock"
	"github.com/vishvananda/netlink"
	"github.com/vishvananda/netns"
)

// MockNetlinker is a mock implementation of the Netlinker interface.
type MockNetlinker struct {
	mock.Mock
}

func (m *MockNetlinker) LinkByName(name string) (netlink.Link, error) {
	args := m.Called(name)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(netlink.Link), args.Error(1)
}
func (m *MockNetlinker) LinkList() ([]netlink.Link, error) {
	args := m.Called()
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]netlink.Link), args.Error(1)
}
func (m *MockNetlinker) LinkAdd(link netlink.Link) error {
	args := m.Called(link)
	return args.Error(0)
}
func (m *MockNetlinker) LinkDel(link netlink.Link) error {
	args := m.Called(link)
	return args.Error(0)
}
func (m *MockNetlinker) LinkSetUp(link netlink.Link) error {
	args := m.Called(link)
	return args.Error(0)
}
func (m *MockNetlinker) LinkSetMaster(slave, master netlink.Link) error {
	args := m.Called(slave, master)
	return args.Error(0)
}
func (m *MockNetlinker) LinkSetNsFd(link netlink.Link, fd int) error {
	args := m.Called(link, fd)
	return args.Error(0)
}
func (m *MockNetlinker) LinkSetAlias(link netlink.Link, alias string) error {
	args := m.Called(link, alias)
	return args.Error(0)
}
func (m *MockNetlinker) AddrList(link netlink.Link, family int) ([]netlink.Addr, error) {
	args := m.Called(link, family)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]netlink.Addr), args.Error(1)
}
func (m *MockNetlinker) AddrAdd(link netlink.Link, addr *netlink.Addr) error {
	args := m.Called(link, addr)
	return args.Error(0)
}
func (m *MockNetlinker) RouteList(link netlink.Link, family int) ([]netlink.Route, error) {
	args := m.Called(link, family)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]netlink.Route), args.Error(1)
}
func (m *MockNetlinker) RouteAdd(route *netlink.Route) error {
	args := m.Called(route)
	return args.Error(0)
}
func (m *MockNetlinker) RouteDel(route *netlink.Route) error {
	args := m.Called(route)
	return args.Error(0)
}
func (m *MockNetlinker) ParseAddr(s string) (*netlink.Addr, error) {
	args := m.Called(s)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*netlink.Addr), args.Error(1)
}
func (m *MockNetlinker) ParseIPNet(s string) (*net.IPNet, error) {
	args := m.Called(s)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*net.IPNet), args.Error(1)
}

// MockNamespacer is a mock implementation of the Namespacer interface.
type MockNamespacer struct {
	mock.Mock
}

func (m *MockNamespacer) Exists(name string) (bool, error) {
	args := m.Called(name)
	return args.Bool(0), args.Error(1)
}
func (m *MockNamespacer) Create(name string) error {
	args := m.Called(name)
	return args.Error(0)
}
func (m *MockNamespacer) Delete(name string) error {
	args := m.Called(name)
	return args.Error(0)
}
func (m *MockNamespacer) List() ([]string, error) {
	args := m.Called()
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}
func (m *MockNamespacer) GetHandle(name string) (netns.NsHandle, error) {
	args := m.Called(name)
	return args.Get(0).(netns.NsHandle), args.Error(1)
}

// Do runs the callback so reconciler logic inside namespaces is exercised
// against the other mocks.
func (m *MockNamespacer) Do(name string, fn func() error) error {
	args := m.Called(name, fn)
	if args.Error(0) != nil {
		return args.Error(0)
	}
	return fn()
}

// MockSystemController is a mock implementation of the SystemController interface.
type MockSystemController struct {
	mock.Mock
}

func (m *MockSystemController) ReadSysctl(path string) (string, error) {
	args := m.Called(path)
	return args.String(0), args.Error(1)
}
func (m *MockSystemController) WriteSysctl(path, value string) error {
	args := m.Called(path, value)
	return args.Error(0)
}
func (m *MockSystemController) IsNotExist(err error) bool {
	args := m.Called(err)
	return args.Bool(0)
}

// MockOffloader is a mock implementation of the Offloader interface.
type MockOffloader struct {
	mock.Mock
}

func (m *MockOffloader) DisableTxChecksum(iface string) error {
	args := m.Called(iface)
	return args.Error(0)
}

// MockFilterManager is a mock implementation of the FilterManager interface.
type MockFilterManager struct {
	mock.Mock
}

func (m *MockFilterManager) EnsureHostChains() error {
	args := m.Called()
	return args.Error(0)
}
func (m *MockFilterManager) EnsureSubnetChains() error {
	args := m.Called()
	return args.Error(0)
}
func (m *MockFilterManager) SetForwardPolicy(accept bool) error {
	args := m.Called(accept)
	return args.Error(0)
}
func (m *MockFilterManager) RuleExists(chain Chain, comment string) (bool, error) {
	args := m.Called(chain, comment)
	return args.Bool(0), args.Error(1)
}
func (m *MockFilterManager) AppendRule(chain Chain, spec RuleSpec) error {
	args := m.Called(chain, spec)
	return args.Error(0)
}
func (m *MockFilterManager) InsertRule(chain Chain, spec RuleSpec) error {
	args := m.Called(chain, spec)
	return args.Error(0)
}
func (m *MockFilterManager) DeleteRulesByComment(chain Chain, prefix string) error {
	args := m.Called(chain, prefix)
	return args.Error(0)
}
func (m *MockFilterManager) FlushChain(chain Chain) error {
	args := m.Called(chain)
	return args.Error(0)
}
func (m *MockFilterManager) DeleteTable() error {
	args := m.Called()
	return args.Error(0)
}
func (m *MockFilterManager) Flush() error {
	args := m.Called()
	return args.Error(0)
}
func (m *MockFilterManager) Close() error {
	args := m.Called()
	return args.Error(0)
}
