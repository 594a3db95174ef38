package state

import (
	"fmt"
	"net/netip"
	"strings"
)

type TableCfg struct {
	RouteEntries     int
	BlacklistEntries int
	PendingEntries   int
	RouteTimeout     uint16 // ticks
}

// RoutingTable holds the Route Set, Blacklist Set and Pending-Ack Set of a node.
// Entries are copied in and out, the table is only accessed from the dispatch goroutine.
type RoutingTable struct {
	cfg       TableCfg
	routes    *Bounded[RouteEntry]
	blacklist *Bounded[BlacklistEntry]
	pending   *Bounded[PendingEntry]
}

// AgeResult lists what a single aging tick removed
type AgeResult struct {
	Routes    []RouteEntry
	Blacklist []BlacklistEntry
	// Pending contains entries that expired before their RREP-ACK arrived
	Pending []PendingEntry
}

func NewRoutingTable(cfg TableCfg) *RoutingTable {
	if cfg.RouteTimeout == 0 {
		cfg.RouteTimeout = 1
	}
	return &RoutingTable{
		cfg:       cfg,
		routes:    NewBounded[RouteEntry](cfg.RouteEntries),
		blacklist: NewBounded[BlacklistEntry](cfg.BlacklistEntries),
		pending:   NewBounded[PendingEntry](cfg.PendingEntries),
	}
}

func (t *RoutingTable) mustInit() {
	if t == nil || t.routes == nil {
		panic("routing table used before NewRoutingTable")
	}
}

// AddRoute inserts e at the head of the route set with its age reset. An existing row for the same
// destination and next hop is replaced, otherwise the least recently inserted row is evicted when full.
func (t *RoutingTable) AddRoute(e RouteEntry) RouteEntry {
	t.mustInit()
	e.Age = 0
	idx := t.routes.IndexFunc(func(r RouteEntry) bool {
		return r.Dest == e.Dest && r.NextHop == e.NextHop
	})
	if idx != -1 {
		t.routes.RemoveAt(idx)
	}
	t.routes.PushFront(e)
	return e
}

// LookupRoute returns the lowest cost route to dest. Equal costs resolve to the earliest inserted row.
func (t *RoutingTable) LookupRoute(dest netip.Addr) (RouteEntry, bool) {
	t.mustInit()
	var best *RouteEntry
	t.routes.Backward(func(_ int, r *RouteEntry) bool {
		if r.Dest == dest && (best == nil || r.Dist.Less(best.Dist)) {
			best = r
		}
		return true
	})
	if best == nil {
		return RouteEntry{}, false
	}
	return *best, true
}

// RoutesTo returns every row for dest, most recent first
func (t *RoutingTable) RoutesTo(dest netip.Addr) []RouteEntry {
	t.mustInit()
	var res []RouteEntry
	for _, r := range t.routes.items {
		if r.Dest == dest {
			res = append(res, r)
		}
	}
	return res
}

// Refresh resets the age of the row matching e's destination and next hop
func (t *RoutingTable) Refresh(e RouteEntry) bool {
	t.mustInit()
	idx := t.routes.IndexFunc(func(r RouteEntry) bool {
		return r.Dest == e.Dest && r.NextHop == e.NextHop
	})
	if idx == -1 {
		return false
	}
	t.routes.At(idx).Age = 0
	return true
}

func (t *RoutingTable) RemoveRoute(e RouteEntry) bool {
	t.mustInit()
	return len(t.routes.RemoveFunc(func(r RouteEntry) bool {
		return r.Dest == e.Dest && r.NextHop == e.NextHop
	})) != 0
}

// RemoveRoutesTo drops every row for dest and returns how many were removed
func (t *RoutingTable) RemoveRoutesTo(dest netip.Addr) int {
	t.mustInit()
	return len(t.routes.RemoveFunc(func(r RouteEntry) bool {
		return r.Dest == dest
	}))
}

func (t *RoutingTable) BlacklistLookup(addr netip.Addr) (BlacklistEntry, bool) {
	t.mustInit()
	idx := t.blacklist.IndexFunc(func(b BlacklistEntry) bool {
		return b.Neighbour == addr
	})
	if idx == -1 {
		return BlacklistEntry{}, false
	}
	return *t.blacklist.At(idx), true
}

// BlacklistAdd blacklists addr for the given number of ticks. Blacklisting an address again restarts its timer.
func (t *RoutingTable) BlacklistAdd(addr netip.Addr, ticks uint16) BlacklistEntry {
	t.mustInit()
	t.blacklist.RemoveFunc(func(b BlacklistEntry) bool {
		return b.Neighbour == addr
	})
	e := BlacklistEntry{Neighbour: addr, ValidTime: max(ticks, 1)}
	t.blacklist.PushFront(e)
	return e
}

func (t *RoutingTable) BlacklistRemove(e BlacklistEntry) bool {
	t.mustInit()
	return len(t.blacklist.RemoveFunc(func(b BlacklistEntry) bool {
		return b.Neighbour == e.Neighbour
	})) != 0
}

func pendingMatch(nh, orig netip.Addr, seqno uint16) func(PendingEntry) bool {
	return func(p PendingEntry) bool {
		return p.NextHop == nh && p.Originator == orig && p.Seqno == seqno
	}
}

func (t *RoutingTable) PendingLookup(nh, orig netip.Addr, seqno uint16) (PendingEntry, bool) {
	t.mustInit()
	idx := t.pending.IndexFunc(pendingMatch(nh, orig, seqno))
	if idx == -1 {
		return PendingEntry{}, false
	}
	return *t.pending.At(idx), true
}

// PendingAdd records an RREP awaiting acknowledgement. A duplicate (nh, orig, seqno) replaces the old entry.
func (t *RoutingTable) PendingAdd(nh, orig netip.Addr, seqno uint16, ticks uint16) PendingEntry {
	t.mustInit()
	t.pending.RemoveFunc(pendingMatch(nh, orig, seqno))
	e := PendingEntry{
		NextHop:    nh,
		Originator: orig,
		Seqno:      seqno,
		Timeout:    max(ticks, 1),
	}
	t.pending.PushFront(e)
	return e
}

// PendingAck marks the matching entry as acknowledged and removes it from the set
func (t *RoutingTable) PendingAck(nh, orig netip.Addr, seqno uint16) (PendingEntry, bool) {
	t.mustInit()
	idx := t.pending.IndexFunc(pendingMatch(nh, orig, seqno))
	if idx == -1 {
		return PendingEntry{}, false
	}
	e := t.pending.RemoveAt(idx)
	e.AckReceived = true
	return e, true
}

func (t *RoutingTable) PendingRemove(e PendingEntry) bool {
	t.mustInit()
	return len(t.pending.RemoveFunc(pendingMatch(e.NextHop, e.Originator, e.Seqno))) != 0
}

// AgeTick advances every timer in the table by one tick and removes expired entries
func (t *RoutingTable) AgeTick() AgeResult {
	t.mustInit()
	var res AgeResult
	for i := range t.routes.items {
		t.routes.items[i].Age++
	}
	res.Routes = t.routes.RemoveFunc(func(r RouteEntry) bool {
		return r.Age >= t.cfg.RouteTimeout
	})

	for i := range t.blacklist.items {
		t.blacklist.items[i].ValidTime--
	}
	res.Blacklist = t.blacklist.RemoveFunc(func(b BlacklistEntry) bool {
		return b.ValidTime == 0
	})

	for i := range t.pending.items {
		t.pending.items[i].Timeout--
	}
	for _, p := range t.pending.RemoveFunc(func(p PendingEntry) bool {
		return p.Timeout == 0
	}) {
		if !p.AckReceived {
			res.Pending = append(res.Pending, p)
		}
	}
	return res
}

func (t *RoutingTable) Routes() []RouteEntry {
	t.mustInit()
	return t.routes.Snapshot()
}

func (t *RoutingTable) Blacklist() []BlacklistEntry {
	t.mustInit()
	return t.blacklist.Snapshot()
}

func (t *RoutingTable) Pending() []PendingEntry {
	t.mustInit()
	return t.pending.Snapshot()
}

func (t *RoutingTable) StringRoutes() string {
	t.mustInit()
	buf := strings.Builder{}
	for _, r := range t.routes.items {
		buf.WriteString(fmt.Sprintf("%s\n", r))
	}
	return buf.String()
}
