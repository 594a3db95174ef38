package core

import (
	"net/netip"
	"testing"

	"github.com/encodeous/loadng/state"
	"github.com/stretchr/testify/assert"
)

func TestSeqnoCircular(t *testing.T) {
	// 3 was issued after the 8 bit counter wrapped past 250
	assert.True(t, SeqnoLt(uint8(250), uint8(3)))
	assert.False(t, SeqnoLt(uint8(3), uint8(250)))
	assert.True(t, SeqnoGt(uint8(3), uint8(250)))
	assert.True(t, SeqnoGe(uint8(3), uint8(3)))
	assert.True(t, SeqnoLe(uint8(3), uint8(3)))
	assert.False(t, SeqnoLt(uint8(3), uint8(3)))

	assert.True(t, SeqnoLt(uint8(0), uint8(127)))
	assert.False(t, SeqnoLt(uint8(0), uint8(129)))

	assert.True(t, SeqnoLt(uint16(65535), uint16(0)))
	assert.True(t, SeqnoLt(uint16(1), uint16(2)))
	assert.True(t, SeqnoGt(uint32(0), ^uint32(0)))
}

func TestAddMetric(t *testing.T) {
	assert.Equal(t, uint32(5), AddMetric(2, 3))
	assert.Equal(t, state.INF, AddMetric(state.INF, 1))
	assert.Equal(t, state.INF, AddMetric(state.INF-1, 5))
}

func TestAddrToPrefix(t *testing.T) {
	assert.Equal(t, netip.MustParsePrefix("10.0.0.1/32"), AddrToPrefix(nodeA))
	assert.Equal(t, netip.MustParsePrefix("fd00::1/128"), AddrToPrefix(netip.MustParseAddr("fd00::1")))
}

func TestCallbackFuncs(t *testing.T) {
	var got netip.Addr
	timedOut := false
	var cb Callbacks = CallbackFuncs{
		OnNewRoute: func(orig netip.Addr) { got = orig },
		OnTimedOut: func() { timedOut = true },
	}
	cb.NewRoute(nodeC)
	cb.TimedOut()
	assert.Equal(t, nodeC, got)
	assert.True(t, timedOut)

	// nil functions are skipped
	CallbackFuncs{}.NewRoute(nodeC)
	CallbackFuncs{}.TimedOut()
}
