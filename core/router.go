package core

import (
	"fmt"
	"net/netip"
	"time"

	"github.com/encodeous/loadng/link"
	"github.com/encodeous/loadng/perf"
	"github.com/encodeous/loadng/protocol"
	"github.com/encodeous/loadng/state"
	"github.com/gaissmai/bart"
)

// LoadRouter binds the route discovery engine to a transport, timers and application callbacks
type LoadRouter struct {
	*state.State
	Transport link.Transport
	Callbacks Callbacks
	// ForwardTable maps every known destination to the next hop of its best route
	ForwardTable   bart.Table[netip.Addr]
	discoveryTimer *time.Timer
}

func (r *LoadRouter) Flood(msg *protocol.RouteMsg) {
	buf, err := protocol.Marshal(msg)
	if err != nil {
		r.Log(SendFailed, "failed to encode route request", "msg", msg, "err", err)
		return
	}
	err = r.Transport.Flood(link.FloodKey{
		Originator: msg.Originator,
		Seqno:      msg.Seqno,
	}, buf)
	if err != nil {
		r.Log(SendFailed, "failed to flood", "msg", msg, "err", err)
		return
	}
	perf.RREQSent.Add(1)
}

func (r *LoadRouter) Unicast(nh netip.Addr, msg protocol.Message) {
	buf, err := protocol.Marshal(msg)
	if err != nil {
		r.Log(SendFailed, "failed to encode message", "msg", msg, "err", err)
		return
	}
	err = r.Transport.Unicast(nh, buf)
	if err != nil {
		r.Log(SendFailed, "failed to send", "nh", nh, "msg", msg, "err", err)
		return
	}
	switch msg.MsgType() {
	case protocol.MsgRREP:
		perf.RREPSent.Add(1)
	case protocol.MsgRREPAck:
		perf.RREPAckSent.Add(1)
	case protocol.MsgRERR:
		perf.RERRSent.Add(1)
	}
}

func (r *LoadRouter) SetDiscoveryTimer(gen uint64, d time.Duration) {
	r.CancelDiscoveryTimer()
	r.discoveryTimer = r.Env.ScheduleTask(func(s *state.State) error {
		HandleDiscoveryTimeout(s.RouterState, r, gen)
		return nil
	}, d)
}

func (r *LoadRouter) CancelDiscoveryTimer() {
	if r.discoveryTimer != nil {
		r.discoveryTimer.Stop()
		r.discoveryTimer = nil
	}
}

func (r *LoadRouter) SetAckTimer(p state.PendingEntry, d time.Duration) {
	r.Env.ScheduleTask(func(s *state.State) error {
		HandleAckTimeout(s.RouterState, r, p)
		return nil
	}, d)
}

func (r *LoadRouter) NewRoute(orig netip.Addr) {
	perf.DiscoveryLatency.Add(float64(time.Since(r.DiscoveryStarted).Milliseconds()))
	r.syncForwardTable()
	if r.Callbacks != nil {
		r.Callbacks.NewRoute(orig)
	}
}

func (r *LoadRouter) TimedOut() {
	perf.DiscoveryTimeouts.Add(1)
	if r.Callbacks != nil {
		r.Callbacks.TimedOut()
	}
}

func (r *LoadRouter) Log(event RouterEvent, desc string, args ...any) {
	if event.IsWarning() || state.DBG_log_route {
		r.Env.Log.Debug(fmt.Sprintf("%s %s", event.String(), desc), args...)
	}
}

// syncForwardTable rebuilds the forward table from the route set
func (r *LoadRouter) syncForwardTable() {
	r.ForwardTable = bart.Table[netip.Addr]{}
	for _, rt := range r.Table.Routes() {
		best, ok := r.Table.LookupRoute(rt.Dest)
		if !ok || best.NextHop != rt.NextHop {
			continue
		}
		r.ForwardTable.Insert(AddrToPrefix(rt.Dest), best.NextHop)
	}
}

func (r *LoadRouter) ageTick(s *state.State) error {
	HandleAgeTick(s.RouterState, r)
	r.syncForwardTable()
	return nil
}

func (r *LoadRouter) Init(s *state.State) error {
	s.Log.Debug("init router")
	r.State = s
	s.RouterState = state.NewRouterState(s.LocalCfg)
	r.ForwardTable = bart.Table[netip.Addr]{}

	err := r.Transport.Start(func(pkt link.Packet) {
		s.Env.Dispatch(func(s *state.State) error {
			return routerHandlePacket(s, pkt)
		})
	})
	if err != nil {
		return fmt.Errorf("failed to start transport: %w", err)
	}

	s.Log.Debug("schedule router tasks")
	s.Env.RepeatTask(r.ageTick, s.AgeInterval)
	return nil
}

func (r *LoadRouter) Cleanup(s *state.State) error {
	r.CancelDiscoveryTimer()
	return r.Transport.Close()
}
