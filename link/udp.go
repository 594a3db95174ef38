package link

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/netip"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/encodeous/loadng/perf"
)

// UDPTransport exchanges frames with a static set of neighbours over a single UDP socket
type UDPTransport struct {
	id     netip.Addr
	listen netip.AddrPort

	mu         sync.RWMutex
	neighbours map[netip.Addr]netip.AddrPort
	filter     *FloodFilter
	log        *slog.Logger

	sock   *net.UDPConn
	wg     sync.WaitGroup
	closed atomic.Bool
}

func NewUDPTransport(id netip.Addr, listen netip.AddrPort, neighbours map[netip.Addr]netip.AddrPort, dedupTTL time.Duration, log *slog.Logger) *UDPTransport {
	if log == nil {
		log = slog.Default()
	}
	if neighbours == nil {
		neighbours = make(map[netip.Addr]netip.AddrPort)
	}
	return &UDPTransport{
		id:         id,
		listen:     listen,
		neighbours: neighbours,
		filter:     NewFloodFilter(dedupTTL),
		log:        log,
	}
}

func (u *UDPTransport) Start(h Handler) error {
	sock, err := net.ListenUDP("udp", net.UDPAddrFromAddrPort(u.listen))
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", u.listen, err)
	}
	u.sock = sock
	u.wg.Add(1)
	go u.readLoop(h)
	return nil
}

// AddNeighbour adds or replaces the endpoint of a neighbour
func (u *UDPTransport) AddNeighbour(addr netip.Addr, ep netip.AddrPort) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.neighbours[addr] = ep
}

func (u *UDPTransport) endpoint(addr netip.Addr) (netip.AddrPort, bool) {
	u.mu.RLock()
	defer u.mu.RUnlock()
	ep, ok := u.neighbours[addr]
	return ep, ok
}

// LocalAddr returns the bound address, useful when listening on port 0
func (u *UDPTransport) LocalAddr() netip.AddrPort {
	if u.sock == nil {
		return u.listen
	}
	return u.sock.LocalAddr().(*net.UDPAddr).AddrPort()
}

func (u *UDPTransport) readLoop(h Handler) {
	defer u.wg.Done()
	buf := make([]byte, MaxFrameSize)
	for {
		n, addr, err := u.sock.ReadFromUDPAddrPort(buf)
		if err != nil {
			if u.closed.Load() || errors.Is(err, net.ErrClosed) {
				return
			}
			u.log.Debug("udp read failed", "err", err)
			continue
		}
		perf.RecvPacketPerSecond.Add(1)
		f, err := parseFrame(buf[:n])
		if err != nil {
			u.log.Debug("dropped malformed frame", "from", addr, "err", err)
			continue
		}
		ep, ok := u.endpoint(f.From)
		if !ok || ep.Port() != addr.Port() || ep.Addr().Unmap() != addr.Addr().Unmap() {
			u.log.Debug("dropped frame from unknown neighbour", "from", f.From, "endpoint", addr)
			continue
		}
		if f.Flood && u.filter.Seen(f.Key) {
			continue
		}
		h(Packet{
			From:    f.From,
			Flood:   f.Flood,
			Key:     f.Key,
			Payload: slices.Clone(f.Payload),
		})
	}
}

func (u *UDPTransport) send(ep netip.AddrPort, f *frame) error {
	if u.closed.Load() || u.sock == nil {
		return ErrClosed
	}
	_, err := u.sock.WriteToUDPAddrPort(f.marshal(), ep)
	if err == nil {
		perf.SentPacketPerSecond.Add(1)
	}
	return err
}

func (u *UDPTransport) Flood(key FloodKey, payload []byte) error {
	u.filter.Mark(key)
	f := &frame{From: u.id, Flood: true, Key: key, Payload: payload}
	u.mu.RLock()
	eps := make([]netip.AddrPort, 0, len(u.neighbours))
	for _, ep := range u.neighbours {
		eps = append(eps, ep)
	}
	u.mu.RUnlock()
	var errs []error
	for _, ep := range eps {
		if err := u.send(ep, f); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (u *UDPTransport) Unicast(nh netip.Addr, payload []byte) error {
	ep, ok := u.endpoint(nh)
	if !ok {
		return fmt.Errorf("%s: %w", nh, ErrNoNeighbour)
	}
	return u.send(ep, &frame{From: u.id, Payload: payload})
}

func (u *UDPTransport) Close() error {
	if u.closed.Swap(true) {
		return nil
	}
	var err error
	if u.sock != nil {
		err = u.sock.Close()
	}
	u.wg.Wait()
	return err
}
