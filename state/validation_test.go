package state

import (
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"
)

func validCfg() LocalCfg {
	cfg := DefaultLocalCfg(netip.MustParseAddr("10.0.0.1"))
	cfg.Listen = netip.MustParseAddrPort("0.0.0.0:57176")
	cfg.Neighbours = []NeighbourCfg{
		{Addr: netip.MustParseAddr("10.0.0.2"), Endpoint: netip.MustParseAddrPort("192.168.1.2:57176")},
	}
	return cfg
}

func TestNodeConfigValidator_Valid(t *testing.T) {
	cfg := validCfg()
	assert.NoError(t, NodeConfigValidator(&cfg))
}

func TestNodeConfigValidator_InvalidId(t *testing.T) {
	cfg := validCfg()
	cfg.Id = netip.Addr{}
	assert.ErrorContains(t, NodeConfigValidator(&cfg), "node.Id")

	cfg.Id = netip.IPv4Unspecified()
	assert.ErrorContains(t, NodeConfigValidator(&cfg), "unspecified")
}

func TestNodeConfigValidator_SelfNeighbour(t *testing.T) {
	cfg := validCfg()
	cfg.Neighbours = append(cfg.Neighbours, NeighbourCfg{
		Addr:     cfg.Id,
		Endpoint: netip.MustParseAddrPort("192.168.1.1:57176"),
	})
	assert.ErrorContains(t, NodeConfigValidator(&cfg), "is this node")
}

func TestNodeConfigValidator_DuplicateNeighbour(t *testing.T) {
	cfg := validCfg()
	cfg.Neighbours = append(cfg.Neighbours, cfg.Neighbours[0])
	assert.ErrorContains(t, NodeConfigValidator(&cfg), "duplicate neighbour")
}

func TestNodeConfigValidator_BadEndpoint(t *testing.T) {
	cfg := validCfg()
	cfg.Neighbours[0].Endpoint = netip.AddrPort{}
	assert.ErrorContains(t, NodeConfigValidator(&cfg), "invalid endpoint")
}

func TestNodeConfigValidator_Limits(t *testing.T) {
	cfg := validCfg()
	cfg.RouteEntries = -1
	assert.Error(t, NodeConfigValidator(&cfg))

	cfg = validCfg()
	cfg.RREPAckTimeout = -1
	assert.Error(t, NodeConfigValidator(&cfg))

	cfg = validCfg()
	cfg.RouteTimeout = cfg.AgeInterval / 2
	assert.ErrorContains(t, NodeConfigValidator(&cfg), "shorter than age_interval")
}
