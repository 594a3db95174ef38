package core

import (
	"fmt"
	"net/netip"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/encodeous/loadng/link"
	"github.com/encodeous/loadng/protocol"
	"github.com/encodeous/loadng/state"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

type HarnessEvent struct {
	Message string
	Args    []any
}

func MakeEvent(msg string, args ...any) HarnessEvent {
	return HarnessEvent{
		Message: msg,
		Args:    args,
	}
}

// RouterHarness records everything the engine asks of its router
type RouterHarness struct {
	actions []HarnessEvent
	outbox  []HarnessEvent

	TimerArmed bool
	TimerGen   uint64
	AckTimers  []state.PendingEntry
}

func msgValue(msg protocol.Message) any {
	switch m := msg.(type) {
	case *protocol.RouteMsg:
		return *m
	case *protocol.RREPAck:
		return *m
	case *protocol.RERR:
		return *m
	}
	panic(fmt.Sprintf("unknown message %T", msg))
}

func (h *RouterHarness) Flood(msg *protocol.RouteMsg) {
	ev := MakeEvent("FLOOD", *msg)
	h.actions = append(h.actions, ev)
	h.outbox = append(h.outbox, ev)
}

func (h *RouterHarness) Unicast(nh netip.Addr, msg protocol.Message) {
	ev := MakeEvent("UNICAST", nh, msgValue(msg))
	h.actions = append(h.actions, ev)
	h.outbox = append(h.outbox, ev)
}

func (h *RouterHarness) SetDiscoveryTimer(gen uint64, d time.Duration) {
	h.TimerArmed = true
	h.TimerGen = gen
	h.actions = append(h.actions, MakeEvent("SET_TIMER", gen, d))
}

func (h *RouterHarness) CancelDiscoveryTimer() {
	h.TimerArmed = false
	h.actions = append(h.actions, MakeEvent("CANCEL_TIMER"))
}

func (h *RouterHarness) SetAckTimer(p state.PendingEntry, d time.Duration) {
	h.AckTimers = append(h.AckTimers, p)
	h.actions = append(h.actions, MakeEvent("SET_ACK_TIMER", p.NextHop, d))
}

func (h *RouterHarness) NewRoute(orig netip.Addr) {
	h.actions = append(h.actions, MakeEvent("NEW_ROUTE", orig))
}

func (h *RouterHarness) TimedOut() {
	h.actions = append(h.actions, MakeEvent("TIMED_OUT"))
}

func (h *RouterHarness) Log(event RouterEvent, desc string, args ...any) {
	x := make([]any, 0)
	x = append(x, event)
	x = append(x, desc)
	x = append(x, args...)
	h.actions = append(h.actions, MakeEvent("LOG", x...))
}

// FireTimer simulates the discovery timer expiring
func (h *RouterHarness) FireTimer(rs *state.RouterState) {
	if h.TimerArmed {
		h.TimerArmed = false
		HandleDiscoveryTimeout(rs, h, h.TimerGen)
	}
}

// FireAckTimers simulates every armed RREP-ACK timer expiring
func (h *RouterHarness) FireAckTimers(rs *state.RouterState) {
	timers := h.AckTimers
	h.AckTimers = nil
	for _, p := range timers {
		HandleAckTimeout(rs, h, p)
	}
}

type HarnessEvents []HarnessEvent

func (h HarnessEvents) String() string {
	out := make([]string, 0)
	for _, action := range h {
		cur := action.Message
		for _, arg := range action.Args {
			cur += " " + fmt.Sprint(arg)
		}
		out = append(out, cur)
	}
	slices.Sort(out)
	return strings.Join(out, "\n")
}

// GetActions drains the recorded actions, LOG events excluded
func (h *RouterHarness) GetActions() HarnessEvents {
	x := make([]HarnessEvent, 0)
	for _, action := range h.actions {
		if action.Message != "LOG" {
			x = append(x, action)
		}
	}

	h.actions = make([]HarnessEvent, 0)
	return x
}

// GetLogs drains the recorded LOG events
func (h *RouterHarness) GetLogs() HarnessEvents {
	x := make([]HarnessEvent, 0)
	for _, action := range h.actions {
		if action.Message == "LOG" {
			x = append(x, action)
		}
	}
	h.actions = make([]HarnessEvent, 0)
	return x
}

func (e HarnessEvents) contains(msg string, args ...any) bool {
	for _, event := range e {
		if event.Message == msg {
			if len(event.Args) >= len(args) {
				match := true
				for i, arg := range args {
					if !cmp.Equal(event.Args[i], arg, cmpopts.EquateComparable(netip.Addr{})) {
						match = false
						break
					}
				}
				if match {
					return true
				}
			}
		}
	}
	return false
}

func (e HarnessEvents) Count(msg string) int {
	n := 0
	for _, event := range e {
		if event.Message == msg {
			n++
		}
	}
	return n
}

func (e HarnessEvents) AssertContains(t *testing.T, msg string, args ...any) {
	t.Helper()
	if e.contains(msg, args...) {
		return
	}
	t.Fatal("Expected event not found: ", msg, " with args: ", args, " in ", e)
}

func (e HarnessEvents) AssertNotContains(t *testing.T, msg string, args ...any) {
	t.Helper()
	if e.contains(msg, args...) {
		t.Fatal("Unexpected event found: ", msg, " with args: ", args, " in ", e)
	}
}

func addr(s string) netip.Addr {
	return netip.MustParseAddr(s)
}

var (
	nodeA = addr("10.0.0.1")
	nodeB = addr("10.0.0.2")
	nodeC = addr("10.0.0.3")
	nodeD = addr("10.0.0.4")
)

func NewTestRouterState(id netip.Addr) *state.RouterState {
	return state.NewRouterState(state.DefaultLocalCfg(id))
}

func MakeRREQ(orig, dest netip.Addr, seqno uint16, hopCount uint8) *protocol.RouteMsg {
	return &protocol.RouteMsg{
		Type:        protocol.MsgRREQ,
		Seqno:       seqno,
		HopLimit:    state.MaxHopLimit - hopCount,
		HopCount:    hopCount,
		Originator:  orig,
		Destination: dest,
	}
}

func MakeRREP(orig, dest netip.Addr, seqno uint16, hopCount uint8) *protocol.RouteMsg {
	msg := MakeRREQ(orig, dest, seqno, hopCount)
	msg.Type = protocol.MsgRREP
	return msg
}

// HarnessNode is a router under test inside a HarnessMesh
type HarnessNode struct {
	*RouterHarness
	RS   *state.RouterState
	seen map[link.FloodKey]bool
}

type meshPacket struct {
	from, to netip.Addr
	flood    bool
	payload  []byte
}

// HarnessMesh connects engines with perfect, in-order links and delivers everything synchronously
type HarnessMesh struct {
	t     *testing.T
	Nodes map[netip.Addr]*HarnessNode
	links map[[2]netip.Addr]bool
	queue []meshPacket
}

func NewHarnessMesh(t *testing.T, cfg func(*state.LocalCfg), ids ...netip.Addr) *HarnessMesh {
	m := &HarnessMesh{
		t:     t,
		Nodes: make(map[netip.Addr]*HarnessNode),
		links: make(map[[2]netip.Addr]bool),
	}
	for _, id := range ids {
		c := state.DefaultLocalCfg(id)
		if cfg != nil {
			cfg(&c)
		}
		m.Nodes[id] = &HarnessNode{
			RouterHarness: &RouterHarness{},
			RS:            state.NewRouterState(c),
			seen:          make(map[link.FloodKey]bool),
		}
	}
	return m
}

func linkKey(a, b netip.Addr) [2]netip.Addr {
	if b.Less(a) {
		a, b = b, a
	}
	return [2]netip.Addr{a, b}
}

func (m *HarnessMesh) Connect(a, b netip.Addr) {
	m.links[linkKey(a, b)] = true
}

func (m *HarnessMesh) Disconnect(a, b netip.Addr) {
	delete(m.links, linkKey(a, b))
}

func (m *HarnessMesh) Node(id netip.Addr) *HarnessNode {
	return m.Nodes[id]
}

func (m *HarnessMesh) collect(id netip.Addr) {
	n := m.Nodes[id]
	for _, ev := range n.outbox {
		switch ev.Message {
		case "FLOOD":
			msg := ev.Args[0].(protocol.RouteMsg)
			n.seen[link.FloodKey{Originator: msg.Originator, Seqno: msg.Seqno}] = true
			buf, err := protocol.Marshal(&msg)
			if err != nil {
				m.t.Fatal(err)
			}
			for other := range m.Nodes {
				if other != id && m.links[linkKey(id, other)] {
					m.queue = append(m.queue, meshPacket{from: id, to: other, flood: true, payload: buf})
				}
			}
		case "UNICAST":
			nh := ev.Args[0].(netip.Addr)
			var buf []byte
			var err error
			switch msg := ev.Args[1].(type) {
			case protocol.RouteMsg:
				buf, err = protocol.Marshal(&msg)
			case protocol.RREPAck:
				buf, err = protocol.Marshal(&msg)
			case protocol.RERR:
				buf, err = protocol.Marshal(&msg)
			}
			if err != nil {
				m.t.Fatal(err)
			}
			if m.links[linkKey(id, nh)] {
				m.queue = append(m.queue, meshPacket{from: id, to: nh, payload: buf})
			}
		}
	}
	n.outbox = nil
}

func (m *HarnessMesh) deliver(p meshPacket) {
	n := m.Nodes[p.to]
	msg, err := protocol.Unmarshal(p.payload)
	if err != nil {
		m.t.Fatal(err)
	}
	switch msg := msg.(type) {
	case *protocol.RouteMsg:
		if msg.Type == protocol.MsgRREQ {
			key := link.FloodKey{Originator: msg.Originator, Seqno: msg.Seqno}
			if n.seen[key] {
				return
			}
			n.seen[key] = true
			_ = HandleRREQ(n.RS, n, msg, p.from)
		} else {
			_ = HandleRREP(n.RS, n, msg, p.from)
		}
	case *protocol.RREPAck:
		_ = HandleRREPAck(n.RS, n, msg, p.from)
	case *protocol.RERR:
		_ = HandleRERR(n.RS, n, msg, p.from)
	}
}

// Run delivers queued packets until the mesh is quiet
func (m *HarnessMesh) Run() {
	for id := range m.Nodes {
		m.collect(id)
	}
	for len(m.queue) > 0 {
		p := m.queue[0]
		m.queue = m.queue[1:]
		m.deliver(p)
		m.collect(p.to)
	}
}

func (m *HarnessMesh) Discover(id, dest netip.Addr) error {
	n := m.Nodes[id]
	err := HandleDiscover(n.RS, n, dest, time.Second)
	if err != nil {
		return err
	}
	m.Run()
	return nil
}
