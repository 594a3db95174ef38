//go:build integration

package integration

import (
	"net/netip"
	"testing"
	"time"

	"github.com/encodeous/loadng/core"
	"github.com/encodeous/loadng/protocol"
	"github.com/encodeous/loadng/state"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestDiscoveryTimeout(t *testing.T) {
	defer goleak.VerifyNone(t)
	vh := NewVirtualHarness()
	a := vh.NewNode("10.0.0.1")
	vh.NewNode("10.0.0.2")
	vh.AddLink("10.0.0.1", "10.0.0.2")
	vh.Start(t)
	defer vh.Stop()

	require.NoError(t, a.Discover("10.0.0.9", 200*time.Millisecond))
	a.WaitTimeout(t, 2*time.Second)

	// a finished discovery frees the node for the next one
	require.NoError(t, a.Discover("10.0.0.2", time.Second))
	a.WaitRoute(t, "10.0.0.2", 2*time.Second)
}

func TestAckRequired(t *testing.T) {
	defer goleak.VerifyNone(t)
	ack := func(cfg *state.LocalCfg) {
		cfg.AckRequired = true
	}
	vh := NewVirtualHarness()
	a := vh.NewNode("10.0.0.1", ack)
	b := vh.NewNode("10.0.0.2", ack)
	c := vh.NewNode("10.0.0.3", ack)
	vh.AddLink("10.0.0.1", "10.0.0.2")
	vh.AddLink("10.0.0.2", "10.0.0.3")
	vh.Start(t)
	defer vh.Stop()

	require.NoError(t, a.Discover("10.0.0.3", time.Second))
	a.WaitRoute(t, "10.0.0.3", 2*time.Second)

	// every reply was acknowledged, so nobody blacklists its neighbour
	time.Sleep(1500 * time.Millisecond)
	for _, n := range []*VirtualNode{a, b, c} {
		res, err := n.State.DispatchWait(func(s *state.State) (any, error) {
			return len(s.Table.Blacklist()) + len(s.Table.Pending()), nil
		})
		require.NoError(t, err)
		assert.Equal(t, 0, res.(int), n.Id.String())
	}
}

func TestLinkBreakRepair(t *testing.T) {
	defer goleak.VerifyNone(t)
	//    B
	//   / \
	//  A   C
	//   \ /
	//    D  (slow)
	fast := func(cfg *state.LocalCfg) {
		cfg.AgeInterval = 50 * time.Millisecond
		cfg.RouteTimeout = 400 * time.Millisecond
	}
	vh := NewVirtualHarness()
	a := vh.NewNode("10.0.0.1", fast)
	b := vh.NewNode("10.0.0.2", fast)
	c := vh.NewNode("10.0.0.3", fast)
	d := vh.NewNode("10.0.0.4", fast)
	vh.AddLink("10.0.0.1", "10.0.0.2").WithLatency(5*time.Millisecond, 0)
	bc := vh.AddLink("10.0.0.2", "10.0.0.3").WithLatency(5*time.Millisecond, 0)
	vh.AddLink("10.0.0.1", "10.0.0.4").WithLatency(50*time.Millisecond, 0)
	vh.AddLink("10.0.0.4", "10.0.0.3").WithLatency(50*time.Millisecond, 0)
	vh.Start(t)
	defer vh.Stop()

	require.NoError(t, a.Discover("10.0.0.3", 2*time.Second))
	a.WaitRoute(t, "10.0.0.3", 3*time.Second)
	nh, ok := core.Forward(a.State, c.Id)
	require.True(t, ok)
	assert.Equal(t, b.Id, nh)

	// B can no longer reach C and tells A
	bc.SetDown(true)
	require.NoError(t, core.ReportError(b.State, protocol.ErrCodeLinkBroken, a.Id, c.Id))
	require.Eventually(t, func() bool {
		_, ok := core.Forward(a.State, c.Id)
		return !ok
	}, 2*time.Second, 10*time.Millisecond)

	// C still prefers its older reverse route through B until it expires
	time.Sleep(600 * time.Millisecond)
	require.NoError(t, core.Repair(a.State, c.Id, 2*time.Second))
	a.WaitRoute(t, "10.0.0.3", 3*time.Second)
	nh, ok = core.Forward(a.State, c.Id)
	require.True(t, ok)
	assert.Equal(t, d.Id, nh)
	assert.Equal(t, []netip.Addr{d.Id}, nextHops(core.Routes(a.State), c.Id))
}

func nextHops(routes []state.RouteEntry, dest netip.Addr) []netip.Addr {
	var res []netip.Addr
	for _, rt := range routes {
		if rt.Dest == dest {
			res = append(res, rt.NextHop)
		}
	}
	return res
}
