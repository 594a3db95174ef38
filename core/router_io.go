package core

import (
	"errors"

	"github.com/encodeous/loadng/link"
	"github.com/encodeous/loadng/perf"
	"github.com/encodeous/loadng/protocol"
	"github.com/encodeous/loadng/state"
)

// routerHandlePacket decodes a packet from the link layer and runs it through the engine
func routerHandlePacket(s *state.State, pkt link.Packet) error {
	r := Get[*LoadRouter](s)
	msg, err := protocol.Unmarshal(pkt.Payload)
	if err != nil {
		s.Log.Warn("dropping malformed packet", "from", pkt.From, "err", err)
		return nil
	}

	switch m := msg.(type) {
	case *protocol.RouteMsg:
		if pkt.Weak && m.WeakLinks != 0xff {
			m.WeakLinks++
		}
		if m.Type == protocol.MsgRREQ {
			if !pkt.Flood {
				s.Log.Warn("dropping unicast route request", "from", pkt.From)
				return nil
			}
			err = HandleRREQ(s.RouterState, r, m, pkt.From)
		} else {
			err = HandleRREP(s.RouterState, r, m, pkt.From)
		}
	case *protocol.RREPAck:
		err = HandleRREPAck(s.RouterState, r, m, pkt.From)
	case *protocol.RERR:
		err = HandleRERR(s.RouterState, r, m, pkt.From)
	}
	r.syncForwardTable()
	return absorb(s, err)
}

// absorb keeps protocol level failures from stopping the main loop
func absorb(s *state.State, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrRejected):
		perf.Rejected.Add(1)
	case errors.Is(err, ErrUndeliverable):
		perf.Undeliverable.Add(1)
	}
	s.Log.Debug("message discarded", "err", err)
	return nil
}
