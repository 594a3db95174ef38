package link

import (
	"errors"
	"fmt"
	"net/netip"

	"github.com/encodeous/loadng/protocol"
	"google.golang.org/protobuf/encoding/protowire"
)

var ErrInvalidFrame = errors.New("invalid frame")

// MaxFrameSize bounds a frame on the wire: the payload plus the frame header
const MaxFrameSize = protocol.MaxPacketSize + 64

const (
	frameKindUnicast uint64 = iota + 1
	frameKindFlood
)

const (
	frameFieldKind protowire.Number = iota + 1
	frameFieldFrom
	frameFieldOrigin
	frameFieldSeqno
	frameFieldPayload
)

// frame is the datagram exchanged between UDP transports
type frame struct {
	From    netip.Addr
	Flood   bool
	Key     FloodKey
	Payload []byte
}

func (f *frame) marshal() []byte {
	kind := frameKindUnicast
	if f.Flood {
		kind = frameKindFlood
	}
	b := make([]byte, 0, len(f.Payload)+48)
	b = protowire.AppendTag(b, frameFieldKind, protowire.VarintType)
	b = protowire.AppendVarint(b, kind)
	b = protowire.AppendTag(b, frameFieldFrom, protowire.BytesType)
	b = protowire.AppendBytes(b, f.From.AsSlice())
	if f.Flood {
		b = protowire.AppendTag(b, frameFieldOrigin, protowire.BytesType)
		b = protowire.AppendBytes(b, f.Key.Originator.AsSlice())
		b = protowire.AppendTag(b, frameFieldSeqno, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(f.Key.Seqno))
	}
	b = protowire.AppendTag(b, frameFieldPayload, protowire.BytesType)
	return protowire.AppendBytes(b, f.Payload)
}

func parseFrame(b []byte) (*frame, error) {
	f := &frame{}
	var kind uint64
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, fmt.Errorf("%w: %w", ErrInvalidFrame, protowire.ParseError(n))
		}
		b = b[n:]
		switch {
		case num == frameFieldKind && typ == protowire.VarintType:
			kind, n = protowire.ConsumeVarint(b)
		case num == frameFieldSeqno && typ == protowire.VarintType:
			var v uint64
			v, n = protowire.ConsumeVarint(b)
			if v > 0xffff {
				return nil, fmt.Errorf("seqno overflows: %w", ErrInvalidFrame)
			}
			f.Key.Seqno = uint16(v)
		case (num == frameFieldFrom || num == frameFieldOrigin) && typ == protowire.BytesType:
			var v []byte
			v, n = protowire.ConsumeBytes(b)
			addr, ok := netip.AddrFromSlice(v)
			if n >= 0 && !ok {
				return nil, fmt.Errorf("field %d is not an address: %w", num, ErrInvalidFrame)
			}
			if num == frameFieldFrom {
				f.From = addr
			} else {
				f.Key.Originator = addr
			}
		case num == frameFieldPayload && typ == protowire.BytesType:
			var v []byte
			v, n = protowire.ConsumeBytes(b)
			f.Payload = v
		default:
			n = protowire.ConsumeFieldValue(num, typ, b)
		}
		if n < 0 {
			return nil, fmt.Errorf("%w: %w", ErrInvalidFrame, protowire.ParseError(n))
		}
		b = b[n:]
	}
	switch kind {
	case frameKindUnicast:
	case frameKindFlood:
		f.Flood = true
		if !f.Key.Originator.IsValid() {
			return nil, fmt.Errorf("flood without originator: %w", ErrInvalidFrame)
		}
	default:
		return nil, fmt.Errorf("unknown frame kind %d: %w", kind, ErrInvalidFrame)
	}
	if !f.From.IsValid() || len(f.Payload) == 0 {
		return nil, fmt.Errorf("frame without sender or payload: %w", ErrInvalidFrame)
	}
	return f, nil
}
