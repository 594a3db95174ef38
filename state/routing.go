package state

import (
	"fmt"
	"net/netip"
	"time"
)

// Dist is the cost of a route. Routes with fewer weak links win ties on cost.
type Dist struct {
	RouteCost uint32
	WeakLinks uint8
}

func (d Dist) Less(o Dist) bool {
	if d.RouteCost != o.RouteCost {
		return d.RouteCost < o.RouteCost
	}
	return d.WeakLinks < o.WeakLinks
}

func (d Dist) String() string {
	if d.WeakLinks == 0 {
		return fmt.Sprintf("%d", d.RouteCost)
	}
	return fmt.Sprintf("%d (%d weak)", d.RouteCost, d.WeakLinks)
}

type RouteEntry struct {
	Dest       netip.Addr
	NextHop    netip.Addr
	Dist       Dist
	Seqno      uint16 // freshness of the information this row was learned from
	MetricType uint8
	Age        uint16 // ticks since insertion or last refresh
}

func (r RouteEntry) String() string {
	return fmt.Sprintf("%s via %s cost %s seqno %d age %d", r.Dest, r.NextHop, r.Dist, r.Seqno, r.Age)
}

type BlacklistEntry struct {
	Neighbour netip.Addr
	ValidTime uint16 // remaining ticks
}

// PendingEntry records an RREP that was sent with the ack flag set and is waiting for its RREP-ACK
type PendingEntry struct {
	NextHop     netip.Addr
	Originator  netip.Addr
	Seqno       uint16
	AckReceived bool
	Timeout     uint16 // remaining ticks
}

type RouterState struct {
	Id    netip.Addr
	Table *RoutingTable

	MaxHopLimit           uint8
	MaxHopCount           uint8
	MetricType            uint8
	AckRequired           bool
	BlacklistOnAckTimeout bool
	BlacklistTicks        uint16
	AckTicks              uint16 // backstop that collects pending entries whose ack timer was lost
	AckTimeout            time.Duration

	// duplicate suppression of the most recently accepted route message
	LastOriginator netip.Addr
	LastSeqno      uint16

	RreqSeqno uint16
	RrepSeqno uint16

	DiscoveryPending bool
	DiscoveryTarget  netip.Addr
	DiscoveryGen     uint64 // bumped whenever a discovery starts or ends, stale timers compare against it
	DiscoveryStarted time.Time
}

func NewRouterState(cfg LocalCfg) *RouterState {
	return &RouterState{
		Id:                    cfg.Id,
		Table:                 NewRoutingTable(cfg.TableCfg()),
		MaxHopLimit:           cfg.MaxHopLimit,
		MaxHopCount:           cfg.MaxHopCount,
		MetricType:            cfg.MetricType,
		AckRequired:           cfg.AckRequired,
		BlacklistOnAckTimeout: cfg.BlacklistOnAckTimeout,
		BlacklistTicks:        cfg.Ticks(cfg.BlacklistTime),
		// the ack timer always fires before a full aging interval has passed
		AckTicks:   min(cfg.Ticks(cfg.RREPAckTimeout), 0xfffe) + 1,
		AckTimeout: cfg.RREPAckTimeout,
	}
}
