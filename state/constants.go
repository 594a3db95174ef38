package state

import "time"

const (
	// MetricHopCount is the default metric type, the route cost is the number of hops.
	MetricHopCount = uint8(0)
	// INF is the largest representable route cost.
	INF = ^(uint32)(0)
)

var (
	MaxHopLimit = uint8(32) // remaining forwarding budget of a freshly generated message
	MaxHopCount = uint8(32) // requests that travelled this many hops are not forwarded
	LinkCost    = uint32(1) // cost of a single hop for metric types other than hop count

	NumRouteEntries     = 8
	NumBlacklistEntries = 2 * NumRouteEntries
	NumPendingEntries   = NumRouteEntries

	AgeInterval      = time.Second
	RouteTimeout     = 5 * time.Second
	BlacklistTime    = 10 * time.Second
	RREPAckTimeout   = 100 * time.Millisecond
	NetTraversalTime = 2 * time.Second

	// FloodDedupTTL is how long a transport remembers a flooded (originator, seqno) pair
	FloodDedupTTL = 2 * NetTraversalTime

	SafeMTU = 1200

	// default port
	DefaultPort = 57176
)

// debug
var (
	DBG_debug     = false
	DBG_log_route = false
)
