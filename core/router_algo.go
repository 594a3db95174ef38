package core

import (
	"errors"
	"fmt"
	"net/netip"
	"time"

	"github.com/encodeous/loadng/protocol"
	"github.com/encodeous/loadng/state"
)

var (
	ErrBusy          = errors.New("route discovery already in progress")
	ErrRejected      = errors.New("route message rejected")
	ErrUndeliverable = errors.New("no route to deliver message")
)

// Router is an interface that defines the underlying router operations
type Router interface {
	Flood(msg *protocol.RouteMsg)
	Unicast(nh netip.Addr, msg protocol.Message)
	// SetDiscoveryTimer arms the discovery timer, replacing any armed timer. When it fires,
	// HandleDiscoveryTimeout must be called with gen.
	SetDiscoveryTimer(gen uint64, d time.Duration)
	CancelDiscoveryTimer()
	// SetAckTimer arms a timer for a pending RREP-ACK. When it fires, HandleAckTimeout must be called with p.
	SetAckTimer(p state.PendingEntry, d time.Duration)
	NewRoute(orig netip.Addr)
	TimedOut()
	Log(event RouterEvent, desc string, args ...any)
}

// nextSeqno returns a sequence number fresher than anything this node has originated
func nextSeqno(s *state.RouterState) uint16 {
	seq := s.RreqSeqno
	if SeqnoLt(seq, s.RrepSeqno) {
		seq = s.RrepSeqno
	}
	return seq + 1
}

func linkCost(msg *protocol.RouteMsg) uint32 {
	if msg.MetricType == state.MetricHopCount {
		return uint32(msg.HopCount) + 1
	}
	return AddMetric(msg.RouteMetric, state.LinkCost)
}

// routeToOriginator builds the route learned from a route message received from a neighbour
func routeToOriginator(msg *protocol.RouteMsg, from netip.Addr) state.RouteEntry {
	return state.RouteEntry{
		Dest:    msg.Originator,
		NextHop: from,
		Dist: state.Dist{
			RouteCost: linkCost(msg),
			WeakLinks: msg.WeakLinks,
		},
		Seqno:      msg.Seqno,
		MetricType: msg.MetricType,
	}
}

// forwarded returns a copy of msg advanced by one hop
func forwarded(msg *protocol.RouteMsg) *protocol.RouteMsg {
	fwd := *msg
	fwd.HopLimit--
	fwd.HopCount++
	if fwd.MetricType != state.MetricHopCount {
		fwd.RouteMetric = AddMetric(fwd.RouteMetric, state.LinkCost)
	}
	return &fwd
}

func checkRouteMsg(s *state.RouterState, msg *protocol.RouteMsg, from netip.Addr) error {
	if msg.Originator == s.Id {
		return fmt.Errorf("%s originated by this node: %w", msg.Type, ErrRejected)
	}
	for _, rt := range s.Table.RoutesTo(msg.Originator) {
		if SeqnoGe(rt.Seqno, msg.Seqno) {
			return fmt.Errorf("%s from %s has stale seqno %d, have %d: %w", msg.Type, msg.Originator, msg.Seqno, rt.Seqno, ErrRejected)
		}
	}
	if _, ok := s.Table.BlacklistLookup(from); ok {
		return fmt.Errorf("%s sent by blacklisted neighbour %s: %w", msg.Type, from, ErrRejected)
	}
	return nil
}

func HandleDiscover(s *state.RouterState, r Router, dest netip.Addr, timeout time.Duration) error {
	if s.DiscoveryPending {
		return fmt.Errorf("discovering %s: %w", s.DiscoveryTarget, ErrBusy)
	}
	if dest == s.Id || !dest.IsValid() {
		return fmt.Errorf("cannot discover %s: %w", dest, ErrRejected)
	}
	seq := nextSeqno(s)
	s.RreqSeqno = seq
	s.DiscoveryPending = true
	s.DiscoveryTarget = dest
	s.DiscoveryGen++
	s.DiscoveryStarted = time.Now()
	r.SetDiscoveryTimer(s.DiscoveryGen, timeout)
	r.Log(DiscoveryStarted, "sending route request", "dest", dest, "seqno", seq)
	r.Flood(&protocol.RouteMsg{
		Type:        protocol.MsgRREQ,
		Seqno:       seq,
		MetricType:  s.MetricType,
		HopLimit:    s.MaxHopLimit,
		Originator:  s.Id,
		Destination: dest,
	})
	return nil
}

func HandleRREQ(s *state.RouterState, r Router, msg *protocol.RouteMsg, from netip.Addr) error {
	if err := checkRouteMsg(s, msg, from); err != nil {
		r.Log(MessageRejected, "rejected route request", "from", from, "err", err)
		return err
	}
	if msg.Originator == s.LastOriginator && msg.Seqno == s.LastSeqno {
		return fmt.Errorf("duplicate RREQ %s/%d: %w", msg.Originator, msg.Seqno, ErrRejected)
	}
	s.LastOriginator = msg.Originator
	s.LastSeqno = msg.Seqno

	rt := s.Table.AddRoute(routeToOriginator(msg, from))
	r.Log(RouteAdded, "learned reverse route", "route", rt)

	if msg.Destination == s.Id {
		return sendRREP(s, r, msg.Originator)
	}
	if msg.HopCount < s.MaxHopCount && msg.HopLimit > 0 {
		fwd := forwarded(msg)
		r.Log(RequestForwarded, "forwarding route request", "orig", msg.Originator, "dest", msg.Destination, "hops", fwd.HopCount)
		r.Flood(fwd)
		return nil
	}
	r.Log(HopLimitReached, "dropping route request", "orig", msg.Originator, "hops", msg.HopCount, "limit", msg.HopLimit)
	return nil
}

// sendRREP originates a route reply towards dest
func sendRREP(s *state.RouterState, r Router, dest netip.Addr) error {
	rt, ok := s.Table.LookupRoute(dest)
	if !ok {
		r.Log(NoRoute, "no route for route reply", "dest", dest)
		return fmt.Errorf("route reply to %s: %w", dest, ErrUndeliverable)
	}
	seq := nextSeqno(s)
	s.RrepSeqno = seq
	msg := &protocol.RouteMsg{
		Type:        protocol.MsgRREP,
		Seqno:       seq,
		MetricType:  s.MetricType,
		HopLimit:    s.MaxHopLimit,
		AckRequired: s.AckRequired,
		Originator:  s.Id,
		Destination: dest,
	}
	r.Log(ReplySent, "sending route reply", "dest", dest, "nh", rt.NextHop, "seqno", seq)
	unicastRREP(s, r, rt, msg)
	return nil
}

func unicastRREP(s *state.RouterState, r Router, rt state.RouteEntry, msg *protocol.RouteMsg) {
	if msg.AckRequired {
		p := s.Table.PendingAdd(rt.NextHop, msg.Originator, msg.Seqno, s.AckTicks)
		r.SetAckTimer(p, s.AckTimeout)
	}
	s.Table.Refresh(rt)
	r.Unicast(rt.NextHop, msg)
}

func HandleRREP(s *state.RouterState, r Router, msg *protocol.RouteMsg, from netip.Addr) error {
	// the ack confirms the link, so it is sent even if the reply itself is discarded
	if msg.AckRequired {
		r.Log(AckSent, "acknowledging route reply", "to", from, "orig", msg.Originator, "seqno", msg.Seqno)
		r.Unicast(from, &protocol.RREPAck{
			Seqno:       msg.Seqno,
			Destination: msg.Originator,
		})
	}
	if err := checkRouteMsg(s, msg, from); err != nil {
		r.Log(MessageRejected, "rejected route reply", "from", from, "err", err)
		return err
	}
	rt := s.Table.AddRoute(routeToOriginator(msg, from))
	r.Log(RouteAdded, "learned forward route", "route", rt)

	if msg.Destination != s.Id {
		next, ok := s.Table.LookupRoute(msg.Destination)
		if !ok {
			r.Log(NoRoute, "no route to forward route reply", "dest", msg.Destination)
			return fmt.Errorf("forwarding route reply to %s: %w", msg.Destination, ErrUndeliverable)
		}
		if msg.HopLimit == 0 {
			r.Log(HopLimitReached, "dropping route reply", "orig", msg.Originator, "dest", msg.Destination)
			return nil
		}
		fwd := forwarded(msg)
		fwd.AckRequired = s.AckRequired
		r.Log(ReplyForwarded, "forwarding route reply", "dest", msg.Destination, "nh", next.NextHop)
		unicastRREP(s, r, next, fwd)
		return nil
	}

	orig := msg.Originator
	if !s.DiscoveryPending || orig != s.DiscoveryTarget {
		r.Log(LateReply, "route reply without a matching discovery", "orig", orig)
		return nil
	}
	s.DiscoveryPending = false
	s.DiscoveryGen++
	r.CancelDiscoveryTimer()
	r.Log(DiscoverySucceeded, "route discovered", "dest", orig, "route", rt)
	r.NewRoute(orig)
	return nil
}

func HandleRREPAck(s *state.RouterState, r Router, ack *protocol.RREPAck, from netip.Addr) error {
	p, ok := s.Table.PendingAck(from, ack.Destination, ack.Seqno)
	if !ok {
		r.Log(UnknownAck, "ack for no pending reply", "from", from, "orig", ack.Destination, "seqno", ack.Seqno)
		return nil
	}
	r.Log(AckReceived, "route reply acknowledged", "pending", p)
	return nil
}

// HandleDiscoveryTimeout ends the discovery armed with gen. Stale or repeated timeouts are ignored.
func HandleDiscoveryTimeout(s *state.RouterState, r Router, gen uint64) {
	if !s.DiscoveryPending || gen != s.DiscoveryGen {
		return
	}
	s.DiscoveryPending = false
	s.DiscoveryGen++
	r.Log(DiscoveryTimedOut, "route discovery timed out", "dest", s.DiscoveryTarget)
	r.TimedOut()
}

// HandleAckTimeout gives up on the RREP-ACK expected for p. Nothing happens if it was acknowledged meanwhile.
func HandleAckTimeout(s *state.RouterState, r Router, p state.PendingEntry) {
	if !s.Table.PendingRemove(p) {
		return
	}
	r.Log(AckTimeout, "route reply was never acknowledged", "nh", p.NextHop, "orig", p.Originator, "seqno", p.Seqno)
	if s.BlacklistOnAckTimeout {
		s.Table.BlacklistAdd(p.NextHop, s.BlacklistTicks)
		r.Log(BlacklistAdded, "blacklisted neighbour with unidirectional link", "addr", p.NextHop)
	}
}

func HandleRERR(s *state.RouterState, r Router, msg *protocol.RERR, from netip.Addr) error {
	if msg.Originator == s.Id {
		return fmt.Errorf("RERR originated by this node: %w", ErrRejected)
	}
	if rt, ok := s.Table.LookupRoute(msg.Unreachable); ok && rt.NextHop == from {
		s.Table.RemoveRoute(rt)
		s.Table.BlacklistAdd(msg.Unreachable, s.BlacklistTicks)
		r.Log(RouteRemoved, "route broken", "route", rt, "code", msg.ErrorCode)
		r.Log(BlacklistAdded, "blacklisted unreachable node", "addr", msg.Unreachable)
	}

	if msg.Destination == s.Id {
		r.Log(ErrorTerminated, "route error reached its destination", "unreachable", msg.Unreachable, "orig", msg.Originator)
		return nil
	}
	if msg.HopLimit <= 1 {
		r.Log(HopLimitReached, "dropping route error", "unreachable", msg.Unreachable, "dest", msg.Destination)
		return nil
	}
	next, ok := s.Table.LookupRoute(msg.Destination)
	if !ok {
		r.Log(NoRoute, "no route to forward route error", "dest", msg.Destination)
		return fmt.Errorf("forwarding route error to %s: %w", msg.Destination, ErrUndeliverable)
	}
	fwd := *msg
	fwd.HopLimit--
	r.Log(ErrorForwarded, "forwarding route error", "dest", msg.Destination, "nh", next.NextHop)
	r.Unicast(next.NextHop, &fwd)
	return nil
}

// HandleReportError handles a forwarding failure from brokenSrc towards brokenDest detected by this node.
// Routes to brokenDest are dropped and, unless this node is brokenSrc, a RERR is sent towards brokenSrc.
func HandleReportError(s *state.RouterState, r Router, code uint8, brokenSrc, brokenDest netip.Addr) error {
	if n := s.Table.RemoveRoutesTo(brokenDest); n != 0 {
		r.Log(RouteRemoved, "dropped routes to unreachable node", "dest", brokenDest, "count", n)
	}
	if brokenSrc == s.Id {
		return nil
	}
	next, ok := s.Table.LookupRoute(brokenSrc)
	if !ok {
		r.Log(NoRoute, "no route for route error", "dest", brokenSrc)
		return fmt.Errorf("route error to %s: %w", brokenSrc, ErrUndeliverable)
	}
	r.Log(ErrorOriginated, "sending route error", "unreachable", brokenDest, "dest", brokenSrc, "nh", next.NextHop)
	r.Unicast(next.NextHop, &protocol.RERR{
		HopLimit:    s.MaxHopLimit,
		ErrorCode:   code,
		Unreachable: brokenDest,
		Originator:  s.Id,
		Destination: brokenSrc,
	})
	return nil
}

// HandleRepair drops every route to dest and discovers it again
func HandleRepair(s *state.RouterState, r Router, dest netip.Addr, timeout time.Duration) error {
	if s.DiscoveryPending {
		return fmt.Errorf("discovering %s: %w", s.DiscoveryTarget, ErrBusy)
	}
	if n := s.Table.RemoveRoutesTo(dest); n != 0 {
		r.Log(RouteRemoved, "dropped routes for repair", "dest", dest, "count", n)
	}
	return HandleDiscover(s, r, dest, timeout)
}

func HandleAgeTick(s *state.RouterState, r Router) state.AgeResult {
	res := s.Table.AgeTick()
	for _, rt := range res.Routes {
		r.Log(RouteExpired, "route expired", "route", rt)
	}
	for _, b := range res.Blacklist {
		r.Log(BlacklistExpired, "blacklist entry expired", "addr", b.Neighbour)
	}
	for _, p := range res.Pending {
		r.Log(AckTimeout, "dropped pending reply without an ack timer", "nh", p.NextHop, "orig", p.Originator, "seqno", p.Seqno)
	}
	return res
}
