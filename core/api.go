package core

import (
	"net/netip"
	"time"

	"github.com/encodeous/loadng/state"
)

// Callbacks receive the outcome of a route discovery. They run on the main loop and must not call
// any of the blocking functions in this file.
type Callbacks interface {
	NewRoute(orig netip.Addr)
	TimedOut()
}

// CallbackFuncs adapts plain functions to Callbacks, nil fields are skipped
type CallbackFuncs struct {
	OnNewRoute func(orig netip.Addr)
	OnTimedOut func()
}

func (c CallbackFuncs) NewRoute(orig netip.Addr) {
	if c.OnNewRoute != nil {
		c.OnNewRoute(orig)
	}
}

func (c CallbackFuncs) TimedOut() {
	if c.OnTimedOut != nil {
		c.OnTimedOut()
	}
}

func discoveryTimeout(s *state.State, timeout time.Duration) time.Duration {
	if timeout <= 0 {
		return s.DiscoveryTimeout
	}
	return timeout
}

// Discover starts a route discovery for dest. A zero timeout uses the configured discovery timeout.
// It returns ErrBusy while another discovery is pending and ErrRejected when dest is this node or invalid.
func Discover(s *state.State, dest netip.Addr, timeout time.Duration) error {
	_, err := s.DispatchWait(func(s *state.State) (any, error) {
		return nil, HandleDiscover(s.RouterState, Get[*LoadRouter](s), dest, discoveryTimeout(s, timeout))
	})
	return err
}

// Repair forgets every route to dest and discovers it again
func Repair(s *state.State, dest netip.Addr, timeout time.Duration) error {
	_, err := s.DispatchWait(func(s *state.State) (any, error) {
		r := Get[*LoadRouter](s)
		err := HandleRepair(s.RouterState, r, dest, discoveryTimeout(s, timeout))
		r.syncForwardTable()
		return nil, err
	})
	return err
}

// ReportError is called by the data plane when a packet from brokenSrc to brokenDest could not be forwarded
func ReportError(s *state.State, code uint8, brokenSrc, brokenDest netip.Addr) error {
	_, err := s.DispatchWait(func(s *state.State) (any, error) {
		r := Get[*LoadRouter](s)
		err := HandleReportError(s.RouterState, r, code, brokenSrc, brokenDest)
		r.syncForwardTable()
		return nil, err
	})
	return err
}

func LookupRoute(s *state.State, dest netip.Addr) (state.RouteEntry, bool) {
	res, err := s.DispatchWait(func(s *state.State) (any, error) {
		rt, ok := s.Table.LookupRoute(dest)
		return state.Pair[state.RouteEntry, bool]{V1: rt, V2: ok}, nil
	})
	if err != nil {
		return state.RouteEntry{}, false
	}
	p := res.(state.Pair[state.RouteEntry, bool])
	return p.V1, p.V2
}

// Forward returns the next hop the data plane should use for dest. A route that is used this way is
// refreshed, so it only expires once it has been idle for the route timeout.
func Forward(s *state.State, dest netip.Addr) (netip.Addr, bool) {
	res, err := s.DispatchWait(func(s *state.State) (any, error) {
		nh, ok := Get[*LoadRouter](s).ForwardTable.Lookup(dest)
		if ok {
			if rt, found := s.Table.LookupRoute(dest); found {
				s.Table.Refresh(rt)
			}
		}
		return state.Pair[netip.Addr, bool]{V1: nh, V2: ok}, nil
	})
	if err != nil {
		return netip.Addr{}, false
	}
	p := res.(state.Pair[netip.Addr, bool])
	return p.V1, p.V2
}

// Routes returns a copy of the route set, most recent first
func Routes(s *state.State) []state.RouteEntry {
	res, err := s.DispatchWait(func(s *state.State) (any, error) {
		return s.Table.Routes(), nil
	})
	if err != nil {
		return nil
	}
	return res.([]state.RouteEntry)
}
