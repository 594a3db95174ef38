//go:build integration

package integration

import (
	"context"
	"fmt"
	"log/slog"
	"net/netip"
	"runtime/pprof"
	"testing"
	"time"

	"github.com/encodeous/loadng/core"
	"github.com/encodeous/loadng/link"
	"github.com/encodeous/loadng/state"
)

// VirtualNode is one router of a VirtualHarness
type VirtualNode struct {
	Id       netip.Addr
	Cfg      state.LocalCfg
	State    *state.State
	Routes   chan netip.Addr
	TimedOut chan struct{}
	exited   chan error
}

type VirtualHarness struct {
	Net   *link.VirtualNetwork
	Nodes []*VirtualNode
	Level slog.Level
}

func NewVirtualHarness() *VirtualHarness {
	return &VirtualHarness{
		Net:   link.NewVirtualNetwork(),
		Level: slog.LevelDebug,
	}
}

func (v *VirtualHarness) NewNode(id string, mod ...func(cfg *state.LocalCfg)) *VirtualNode {
	addr := netip.MustParseAddr(id)
	cfg := state.DefaultLocalCfg(addr)
	for _, m := range mod {
		m(&cfg)
	}
	n := &VirtualNode{
		Id:       addr,
		Cfg:      cfg,
		Routes:   make(chan netip.Addr, 16),
		TimedOut: make(chan struct{}, 16),
		exited:   make(chan error, 1),
	}
	v.Nodes = append(v.Nodes, n)
	return n
}

func (v *VirtualHarness) Node(id string) *VirtualNode {
	addr := netip.MustParseAddr(id)
	for _, n := range v.Nodes {
		if n.Id == addr {
			return n
		}
	}
	panic(fmt.Sprintf("no node %s", id))
}

func (v *VirtualHarness) AddLink(a, b string) *link.VirtualLink {
	return v.Net.Connect(netip.MustParseAddr(a), netip.MustParseAddr(b))
}

// Start brings up every node and waits until all main loops are running
func (v *VirtualHarness) Start(t *testing.T) {
	for _, n := range v.Nodes {
		cb := core.CallbackFuncs{
			OnNewRoute: func(orig netip.Addr) {
				select {
				case n.Routes <- orig:
				default:
				}
			},
			OnTimedOut: func() {
				select {
				case n.TimedOut <- struct{}{}:
				default:
				}
			},
		}
		s, err := core.Init(n.Cfg, v.Level, v.Net.Transport(n.Id), cb)
		if err != nil {
			v.Stop()
			t.Fatalf("failed to init %s: %v", n.Id, err)
		}
		n.State = s
		go func() {
			labels := pprof.Labels("loadng node", n.Id.String())
			pprof.Do(context.Background(), labels, func(_ context.Context) {
				n.exited <- core.Run(s)
			})
		}()
	}
	for _, n := range v.Nodes {
		for !n.State.Started.Load() {
			time.Sleep(time.Millisecond * 5)
		}
	}
}

func (v *VirtualHarness) Stop() {
	for _, n := range v.Nodes {
		if n.State != nil {
			core.Stop(n.State)
			<-n.exited
		}
	}
	v.Net.Close()
}

// WaitRoute waits for the NewRoute callback of n to report dest
func (n *VirtualNode) WaitRoute(t *testing.T, dest string, timeout time.Duration) {
	t.Helper()
	want := netip.MustParseAddr(dest)
	deadline := time.After(timeout)
	for {
		select {
		case got := <-n.Routes:
			if got == want {
				return
			}
		case <-n.TimedOut:
			t.Fatalf("%s: discovery of %s timed out", n.Id, dest)
		case <-deadline:
			t.Fatalf("%s: no route to %s after %s", n.Id, dest, timeout)
		}
	}
}

func (n *VirtualNode) WaitTimeout(t *testing.T, timeout time.Duration) {
	t.Helper()
	select {
	case <-n.TimedOut:
	case got := <-n.Routes:
		t.Fatalf("%s: unexpected route to %s", n.Id, got)
	case <-time.After(timeout):
		t.Fatalf("%s: discovery did not time out after %s", n.Id, timeout)
	}
}

func (n *VirtualNode) Discover(dest string, timeout time.Duration) error {
	return core.Discover(n.State, netip.MustParseAddr(dest), timeout)
}
