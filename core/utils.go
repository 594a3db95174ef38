package core

import (
	"net/netip"
	"reflect"

	"github.com/encodeous/loadng/state"
)

type Seqno interface {
	~uint8 | ~uint16 | ~uint32
}

// SeqnoLt reports whether a is older than b, where b is at most half the counter range ahead of a
func SeqnoLt[T Seqno](a, b T) bool {
	x := b - a
	return 0 < x && x <= ^T(0)/2
}

func SeqnoLe[T Seqno](a, b T) bool {
	return a == b || SeqnoLt(a, b)
}
func SeqnoGt[T Seqno](a, b T) bool {
	return !SeqnoLe(a, b)
}
func SeqnoGe[T Seqno](a, b T) bool {
	return !SeqnoLt(a, b)
}

// AddMetric adds two route costs, saturating at state.INF
func AddMetric(a, b uint32) uint32 {
	if a == state.INF || b == state.INF {
		return state.INF
	}
	return uint32(min(uint64(state.INF), uint64(a)+uint64(b)))
}

func Get[T state.NyModule](s *state.State) T {
	t := reflect.TypeFor[T]()
	return s.Modules[t.String()].(T)
}

func AddrToPrefix(addr netip.Addr) netip.Prefix {
	res, err := addr.Prefix(addr.BitLen())
	if err != nil {
		panic(err)
	}
	return res
}
