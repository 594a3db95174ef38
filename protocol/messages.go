package protocol

import (
	"fmt"
	"net/netip"
)

// MaxPacketSize is the largest encoded route message a node accepts
const MaxPacketSize = 512

type MsgType uint8

const (
	MsgRREQ MsgType = iota + 1
	MsgRREP
	MsgRREPAck
	MsgRERR
)

func (t MsgType) String() string {
	switch t {
	case MsgRREQ:
		return "RREQ"
	case MsgRREP:
		return "RREP"
	case MsgRREPAck:
		return "RREP-ACK"
	case MsgRERR:
		return "RERR"
	default:
		return fmt.Sprintf("MsgType(%d)", uint8(t))
	}
}

// RERR error codes
const (
	ErrCodeNoAvailableRoute uint8 = iota
	ErrCodeLinkBroken
)

type Message interface {
	MsgType() MsgType
}

// RouteMsg is either an RREQ or an RREP, selected by Type
type RouteMsg struct {
	Type        MsgType
	Seqno       uint16
	MetricType  uint8
	RouteMetric uint32
	HopLimit    uint8
	HopCount    uint8
	WeakLinks   uint8
	AckRequired bool
	Originator  netip.Addr
	Destination netip.Addr
}

func (m *RouteMsg) MsgType() MsgType {
	return m.Type
}

func (m *RouteMsg) String() string {
	return fmt.Sprintf("%s{orig %s dest %s seqno %d hops %d limit %d metric %d weak %d ack %t}",
		m.Type, m.Originator, m.Destination, m.Seqno, m.HopCount, m.HopLimit, m.RouteMetric, m.WeakLinks, m.AckRequired)
}

// RREPAck acknowledges an RREP. Destination is the originator of the acknowledged RREP.
type RREPAck struct {
	Seqno       uint16
	Destination netip.Addr
}

func (m *RREPAck) MsgType() MsgType {
	return MsgRREPAck
}

func (m *RREPAck) String() string {
	return fmt.Sprintf("RREP-ACK{dest %s seqno %d}", m.Destination, m.Seqno)
}

type RERR struct {
	HopLimit    uint8
	ErrorCode   uint8
	Unreachable netip.Addr
	Originator  netip.Addr
	Destination netip.Addr
}

func (m *RERR) MsgType() MsgType {
	return MsgRERR
}

func (m *RERR) String() string {
	return fmt.Sprintf("RERR{code %d unreachable %s orig %s dest %s limit %d}",
		m.ErrorCode, m.Unreachable, m.Originator, m.Destination, m.HopLimit)
}
