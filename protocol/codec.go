package protocol

import (
	"errors"
	"fmt"
	"math"
	"net/netip"

	"google.golang.org/protobuf/encoding/protowire"
)

var ErrInvalidMessage = errors.New("invalid message")

// field numbers, shared by every message type
const (
	fieldType protowire.Number = iota + 1
	fieldSeqno
	fieldMetricType
	fieldRouteMetric
	fieldHopLimit
	fieldHopCount
	fieldWeakLinks
	fieldAckRequired
	fieldOriginator
	fieldDestination
	fieldErrorCode
	fieldUnreachable
)

func appendVarint(b []byte, num protowire.Number, v uint64) []byte {
	if v == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

func appendAddr(b []byte, num protowire.Number, addr netip.Addr) []byte {
	if !addr.IsValid() {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, addr.AsSlice())
}

func boolVarint(v bool) uint64 {
	if v {
		return 1
	}
	return 0
}

// Marshal encodes m in the protobuf wire format
func Marshal(m Message) ([]byte, error) {
	b := make([]byte, 0, 64)
	b = protowire.AppendTag(b, fieldType, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(m.MsgType()))
	switch v := m.(type) {
	case *RouteMsg:
		if v.Type != MsgRREQ && v.Type != MsgRREP {
			return nil, fmt.Errorf("route message with type %s: %w", v.Type, ErrInvalidMessage)
		}
		b = appendVarint(b, fieldSeqno, uint64(v.Seqno))
		b = appendVarint(b, fieldMetricType, uint64(v.MetricType))
		b = appendVarint(b, fieldRouteMetric, uint64(v.RouteMetric))
		b = appendVarint(b, fieldHopLimit, uint64(v.HopLimit))
		b = appendVarint(b, fieldHopCount, uint64(v.HopCount))
		b = appendVarint(b, fieldWeakLinks, uint64(v.WeakLinks))
		b = appendVarint(b, fieldAckRequired, boolVarint(v.AckRequired))
		b = appendAddr(b, fieldOriginator, v.Originator)
		b = appendAddr(b, fieldDestination, v.Destination)
	case *RREPAck:
		b = appendVarint(b, fieldSeqno, uint64(v.Seqno))
		b = appendAddr(b, fieldDestination, v.Destination)
	case *RERR:
		b = appendVarint(b, fieldHopLimit, uint64(v.HopLimit))
		b = appendVarint(b, fieldErrorCode, uint64(v.ErrorCode))
		b = appendAddr(b, fieldUnreachable, v.Unreachable)
		b = appendAddr(b, fieldOriginator, v.Originator)
		b = appendAddr(b, fieldDestination, v.Destination)
	default:
		return nil, fmt.Errorf("unknown message %T: %w", m, ErrInvalidMessage)
	}
	if len(b) > MaxPacketSize {
		return nil, fmt.Errorf("encoded message is %d bytes: %w", len(b), ErrInvalidMessage)
	}
	return b, nil
}

type fields struct {
	varints map[protowire.Number]uint64
	addrs   map[protowire.Number]netip.Addr
}

func (f *fields) small(num protowire.Number, limit uint64) (uint64, error) {
	v := f.varints[num]
	if v > limit {
		return 0, fmt.Errorf("field %d overflows: %w", num, ErrInvalidMessage)
	}
	return v, nil
}

func parseFields(b []byte) (*fields, error) {
	f := &fields{
		varints: make(map[protowire.Number]uint64),
		addrs:   make(map[protowire.Number]netip.Addr),
	}
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, fmt.Errorf("%w: %w", ErrInvalidMessage, protowire.ParseError(n))
		}
		b = b[n:]
		switch {
		case num == fieldOriginator || num == fieldDestination || num == fieldUnreachable:
			if typ != protowire.BytesType {
				return nil, fmt.Errorf("field %d has wire type %d: %w", num, typ, ErrInvalidMessage)
			}
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return nil, fmt.Errorf("%w: %w", ErrInvalidMessage, protowire.ParseError(n))
			}
			addr, ok := netip.AddrFromSlice(v)
			if !ok {
				return nil, fmt.Errorf("field %d is not an address: %w", num, ErrInvalidMessage)
			}
			f.addrs[num] = addr
			b = b[n:]
		case num >= fieldType && num <= fieldErrorCode:
			if typ != protowire.VarintType {
				return nil, fmt.Errorf("field %d has wire type %d: %w", num, typ, ErrInvalidMessage)
			}
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return nil, fmt.Errorf("%w: %w", ErrInvalidMessage, protowire.ParseError(n))
			}
			f.varints[num] = v
			b = b[n:]
		default:
			// skip unknown fields
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return nil, fmt.Errorf("%w: %w", ErrInvalidMessage, protowire.ParseError(n))
			}
			b = b[n:]
		}
	}
	return f, nil
}

// Unmarshal decodes a message produced by Marshal
func Unmarshal(b []byte) (Message, error) {
	if len(b) == 0 || len(b) > MaxPacketSize {
		return nil, fmt.Errorf("message is %d bytes: %w", len(b), ErrInvalidMessage)
	}
	f, err := parseFields(b)
	if err != nil {
		return nil, err
	}
	typ := MsgType(f.varints[fieldType])
	u8 := func(num protowire.Number) uint8 {
		if err != nil {
			return 0
		}
		var v uint64
		v, err = f.small(num, math.MaxUint8)
		return uint8(v)
	}
	u16 := func(num protowire.Number) uint16 {
		if err != nil {
			return 0
		}
		var v uint64
		v, err = f.small(num, math.MaxUint16)
		return uint16(v)
	}

	var m Message
	switch typ {
	case MsgRREQ, MsgRREP:
		var metric uint64
		metric, err = f.small(fieldRouteMetric, math.MaxUint32)
		m = &RouteMsg{
			Type:        typ,
			Seqno:       u16(fieldSeqno),
			MetricType:  u8(fieldMetricType),
			RouteMetric: uint32(metric),
			HopLimit:    u8(fieldHopLimit),
			HopCount:    u8(fieldHopCount),
			WeakLinks:   u8(fieldWeakLinks),
			AckRequired: f.varints[fieldAckRequired] != 0,
			Originator:  f.addrs[fieldOriginator],
			Destination: f.addrs[fieldDestination],
		}
	case MsgRREPAck:
		m = &RREPAck{
			Seqno:       u16(fieldSeqno),
			Destination: f.addrs[fieldDestination],
		}
	case MsgRERR:
		m = &RERR{
			HopLimit:    u8(fieldHopLimit),
			ErrorCode:   u8(fieldErrorCode),
			Unreachable: f.addrs[fieldUnreachable],
			Originator:  f.addrs[fieldOriginator],
			Destination: f.addrs[fieldDestination],
		}
	default:
		return nil, fmt.Errorf("unknown message type %d: %w", typ, ErrInvalidMessage)
	}
	if err != nil {
		return nil, err
	}
	if err := validate(m); err != nil {
		return nil, err
	}
	return m, nil
}

func validate(m Message) error {
	switch v := m.(type) {
	case *RouteMsg:
		if !v.Originator.IsValid() || !v.Destination.IsValid() {
			return fmt.Errorf("%s without originator or destination: %w", v.Type, ErrInvalidMessage)
		}
	case *RREPAck:
		if !v.Destination.IsValid() {
			return fmt.Errorf("RREP-ACK without destination: %w", ErrInvalidMessage)
		}
	case *RERR:
		if !v.Unreachable.IsValid() || !v.Originator.IsValid() || !v.Destination.IsValid() {
			return fmt.Errorf("RERR missing an address: %w", ErrInvalidMessage)
		}
	}
	return nil
}
