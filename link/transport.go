package link

import (
	"errors"
	"net/netip"
)

var (
	ErrNoNeighbour = errors.New("not a neighbour")
	ErrClosed      = errors.New("transport closed")
)

// FloodKey identifies a flooded message. Transports drop a flood they have already seen.
type FloodKey struct {
	Originator netip.Addr
	Seqno      uint16
}

type Packet struct {
	From    netip.Addr // neighbour the packet was received from
	Flood   bool
	Key     FloodKey // only set for floods
	Weak    bool     // the packet arrived over a link the radio considers weak
	Payload []byte
}

// Handler is called for every packet received. It may be called from any goroutine.
type Handler func(pkt Packet)

// Transport is the best effort link layer: a one hop broadcast and a one hop unicast
type Transport interface {
	// Start begins delivering received packets to h
	Start(h Handler) error
	// Flood sends payload to every neighbour, the key is remembered so echoes are suppressed
	Flood(key FloodKey, payload []byte) error
	Unicast(nh netip.Addr, payload []byte) error
	Close() error
}
