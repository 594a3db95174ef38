package state

import (
	"fmt"
	"net/netip"
	"os"
	"time"

	"github.com/goccy/go-yaml"
)

var (
	NodeConfigPath = "/etc/loadng/node.yaml"
)

// NeighbourCfg is a statically configured one-hop neighbour reachable over UDP
type NeighbourCfg struct {
	Addr     netip.Addr     `yaml:"addr"`
	Endpoint netip.AddrPort `yaml:"endpoint"`
}

// LocalCfg represents local node-level configuration
type LocalCfg struct {
	Id         netip.Addr     // address of this node in the mesh
	Listen     netip.AddrPort `yaml:"listen,omitempty"`     // UDP address the link layer binds to
	Neighbours []NeighbourCfg `yaml:"neighbours,omitempty"` // one-hop neighbours, floods are sent to all of them
	LogPath    string         `yaml:"log_path,omitempty"`   // if not empty, loadng will write to this file
	// if not empty, a unix socket is served here for loadng inspect
	ControlSocket string `yaml:"control_socket,omitempty"`

	AckRequired           bool  `yaml:"ack_required,omitempty"`             // request an RREP-ACK for every RREP this node sends
	BlacklistOnAckTimeout bool  `yaml:"blacklist_on_ack_timeout,omitempty"` // blacklist a next hop whose RREP-ACK never arrived
	MetricType            uint8 `yaml:"metric_type,omitempty"`
	MaxHopLimit           uint8 `yaml:"max_hop_limit,omitempty"`
	MaxHopCount           uint8 `yaml:"max_hop_count,omitempty"`

	RouteEntries     int `yaml:"route_entries,omitempty"`
	BlacklistEntries int `yaml:"blacklist_entries,omitempty"`
	PendingEntries   int `yaml:"pending_entries,omitempty"`

	AgeInterval      time.Duration `yaml:"age_interval,omitempty"`
	RouteTimeout     time.Duration `yaml:"route_timeout,omitempty"`
	BlacklistTime    time.Duration `yaml:"blacklist_time,omitempty"`
	RREPAckTimeout   time.Duration `yaml:"rrep_ack_timeout,omitempty"`
	DiscoveryTimeout time.Duration `yaml:"discovery_timeout,omitempty"`
}

// DefaultLocalCfg returns a configuration for id with every tunable set to its default
func DefaultLocalCfg(id netip.Addr) LocalCfg {
	cfg := LocalCfg{
		Id:                    id,
		Listen:                netip.AddrPortFrom(netip.IPv4Unspecified(), uint16(DefaultPort)),
		BlacklistOnAckTimeout: true,
	}
	cfg.ApplyDefaults()
	return cfg
}

// ApplyDefaults fills every unset tunable
func (c *LocalCfg) ApplyDefaults() {
	if c.MaxHopLimit == 0 {
		c.MaxHopLimit = MaxHopLimit
	}
	if c.MaxHopCount == 0 {
		c.MaxHopCount = MaxHopCount
	}
	if c.RouteEntries == 0 {
		c.RouteEntries = NumRouteEntries
	}
	if c.BlacklistEntries == 0 {
		c.BlacklistEntries = NumBlacklistEntries
	}
	if c.PendingEntries == 0 {
		c.PendingEntries = NumPendingEntries
	}
	if c.AgeInterval == 0 {
		c.AgeInterval = AgeInterval
	}
	if c.RouteTimeout == 0 {
		c.RouteTimeout = RouteTimeout
	}
	if c.BlacklistTime == 0 {
		c.BlacklistTime = BlacklistTime
	}
	if c.RREPAckTimeout == 0 {
		c.RREPAckTimeout = RREPAckTimeout
	}
	if c.DiscoveryTimeout == 0 {
		c.DiscoveryTimeout = NetTraversalTime
	}
}

// Ticks converts d into a number of aging ticks, rounding up. Any positive duration is at least one tick.
func (c *LocalCfg) Ticks(d time.Duration) uint16 {
	if d <= 0 || c.AgeInterval <= 0 {
		return 1
	}
	t := (d + c.AgeInterval - 1) / c.AgeInterval
	return uint16(min(max(int64(t), 1), 0xffff))
}

func (c *LocalCfg) TableCfg() TableCfg {
	return TableCfg{
		RouteEntries:     c.RouteEntries,
		BlacklistEntries: c.BlacklistEntries,
		PendingEntries:   c.PendingEntries,
		RouteTimeout:     c.Ticks(c.RouteTimeout),
	}
}

// NeighbourMap returns the configured neighbours keyed by mesh address
func (c *LocalCfg) NeighbourMap() map[netip.Addr]netip.AddrPort {
	m := make(map[netip.Addr]netip.AddrPort, len(c.Neighbours))
	for _, n := range c.Neighbours {
		m[n.Addr] = n.Endpoint
	}
	return m
}

func ReadNodeConfig(nodePath string) (*LocalCfg, error) {
	var nodeCfg LocalCfg
	file, err := os.ReadFile(nodePath)
	if err != nil {
		return nil, err
	}
	err = yaml.Unmarshal(file, &nodeCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", nodePath, err)
	}
	nodeCfg.ApplyDefaults()
	return &nodeCfg, nil
}

func WriteNodeConfig(nodePath string, cfg LocalCfg) error {
	bytes, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(nodePath, bytes, 0600)
}
