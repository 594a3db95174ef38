package link

import (
	"fmt"
	"math/rand/v2"
	"net/netip"
	"slices"
	"sync"
	"sync/atomic"
	"time"
)

// VirtualLink is a simulated bidirectional radio link between two nodes
type VirtualLink struct {
	Latency    time.Duration
	Jitter     time.Duration
	PacketLoss float64
	Weak       bool
	down       atomic.Bool
}

func (v *VirtualLink) WithLatency(lat, jitter time.Duration) *VirtualLink {
	v.Latency = lat
	v.Jitter = jitter
	return v
}

func (v *VirtualLink) WithPacketLoss(loss float64) *VirtualLink {
	v.PacketLoss = loss
	return v
}

func (v *VirtualLink) WithWeak() *VirtualLink {
	v.Weak = true
	return v
}

// SetDown silently drops every packet crossing the link while down is true
func (v *VirtualLink) SetDown(down bool) {
	v.down.Store(down)
}

func (v *VirtualLink) delay() time.Duration {
	if v.Latency == 0 {
		return 0
	}
	return v.Latency + time.Duration(rand.Float64()*float64(v.Jitter.Nanoseconds()))
}

type linkKey struct {
	a, b netip.Addr
}

func makeLinkKey(a, b netip.Addr) linkKey {
	if b.Less(a) {
		a, b = b, a
	}
	return linkKey{a, b}
}

// VirtualNetwork is an in-memory radio medium. Links must be configured before traffic starts.
type VirtualNetwork struct {
	mu     sync.Mutex
	nodes  map[netip.Addr]*VirtualTransport
	links  map[linkKey]*VirtualLink
	wg     sync.WaitGroup
	done   chan struct{}
	closed bool
	// DedupTTL is used by transports created after it is set
	DedupTTL time.Duration
}

func NewVirtualNetwork() *VirtualNetwork {
	return &VirtualNetwork{
		nodes:    make(map[netip.Addr]*VirtualTransport),
		links:    make(map[linkKey]*VirtualLink),
		done:     make(chan struct{}),
		DedupTTL: 4 * time.Second,
	}
}

// Transport returns the transport of node id, creating it on first use
func (n *VirtualNetwork) Transport(id netip.Addr) *VirtualTransport {
	n.mu.Lock()
	defer n.mu.Unlock()
	t, ok := n.nodes[id]
	if !ok {
		t = &VirtualTransport{
			net:    n,
			id:     id,
			filter: NewFloodFilter(n.DedupTTL),
		}
		n.nodes[id] = t
	}
	return t
}

// Connect creates (or returns) the link between a and b
func (n *VirtualNetwork) Connect(a, b netip.Addr) *VirtualLink {
	if a == b {
		panic(fmt.Sprintf("cannot link %s to itself", a))
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	k := makeLinkKey(a, b)
	l, ok := n.links[k]
	if !ok {
		l = &VirtualLink{}
		n.links[k] = l
	}
	return l
}

func (n *VirtualNetwork) Link(a, b netip.Addr) *VirtualLink {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.links[makeLinkKey(a, b)]
}

func (n *VirtualNetwork) Neighbours(id netip.Addr) []netip.Addr {
	n.mu.Lock()
	defer n.mu.Unlock()
	var res []netip.Addr
	for k := range n.links {
		if k.a == id {
			res = append(res, k.b)
		} else if k.b == id {
			res = append(res, k.a)
		}
	}
	slices.SortFunc(res, netip.Addr.Compare)
	return res
}

func (n *VirtualNetwork) deliver(from, to netip.Addr, pkt Packet) {
	n.mu.Lock()
	l := n.links[makeLinkKey(from, to)]
	dst := n.nodes[to]
	if n.closed || l == nil || dst == nil {
		n.mu.Unlock()
		return
	}
	n.wg.Add(1)
	n.mu.Unlock()

	if l.down.Load() || rand.Float64() < l.PacketLoss {
		n.wg.Done()
		return
	}
	pkt.Weak = l.Weak
	pkt.Payload = slices.Clone(pkt.Payload)
	d := l.delay()
	go func() {
		defer n.wg.Done()
		if d != 0 {
			t := time.NewTimer(d)
			defer t.Stop()
			select {
			case <-n.done:
				return
			case <-t.C:
			}
		}
		dst.receive(pkt)
	}()
}

// Close stops all deliveries and waits for packets in flight to be dropped or delivered
func (n *VirtualNetwork) Close() {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return
	}
	n.closed = true
	close(n.done)
	n.mu.Unlock()
	n.wg.Wait()
}

type VirtualTransport struct {
	net     *VirtualNetwork
	id      netip.Addr
	filter  *FloodFilter
	handler atomic.Pointer[Handler]
	closed  atomic.Bool
}

func (t *VirtualTransport) Start(h Handler) error {
	if t.closed.Load() {
		return ErrClosed
	}
	t.handler.Store(&h)
	return nil
}

func (t *VirtualTransport) receive(pkt Packet) {
	if t.closed.Load() {
		return
	}
	h := t.handler.Load()
	if h == nil {
		return
	}
	if pkt.Flood && t.filter.Seen(pkt.Key) {
		return
	}
	(*h)(pkt)
}

func (t *VirtualTransport) Flood(key FloodKey, payload []byte) error {
	if t.closed.Load() {
		return ErrClosed
	}
	t.filter.Mark(key)
	for _, nb := range t.net.Neighbours(t.id) {
		t.net.deliver(t.id, nb, Packet{
			From:    t.id,
			Flood:   true,
			Key:     key,
			Payload: payload,
		})
	}
	return nil
}

func (t *VirtualTransport) Unicast(nh netip.Addr, payload []byte) error {
	if t.closed.Load() {
		return ErrClosed
	}
	if t.net.Link(t.id, nh) == nil {
		return fmt.Errorf("%s: %w", nh, ErrNoNeighbour)
	}
	t.net.deliver(t.id, nh, Packet{
		From:    t.id,
		Payload: payload,
	})
	return nil
}

func (t *VirtualTransport) Close() error {
	t.closed.Store(true)
	t.handler.Store(nil)
	return nil
}
