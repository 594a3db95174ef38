package perf

import (
	"expvar"
	"net/http"

	"github.com/encodeous/metric"
)

var (
	DispatchLatency     = metric.NewHistogram("1m1s")
	DiscoveryLatency    = metric.NewHistogram("10m10s")
	RREQSent            = metric.NewCounter("10s1s")
	RREPSent            = metric.NewCounter("10s1s")
	RREPAckSent         = metric.NewCounter("10s1s")
	RERRSent            = metric.NewCounter("10s1s")
	Rejected            = metric.NewCounter("10s1s")
	Undeliverable       = metric.NewCounter("10s1s")
	DiscoveryTimeouts   = metric.NewCounter("10m10s")
	SentPacketPerSecond = metric.NewCounter("10s1s")
	RecvPacketPerSecond = metric.NewCounter("10s1s")
)

func init() {
	http.Handle("/debug/metrics", metric.Handler(metric.Exposed))
	expvar.Publish("loadng:RREQ/s", RREQSent)
	expvar.Publish("loadng:RREP/s", RREPSent)
	expvar.Publish("loadng:RREP-ACK/s", RREPAckSent)
	expvar.Publish("loadng:RERR/s", RERRSent)
	expvar.Publish("loadng:Rejected/s", Rejected)
	expvar.Publish("loadng:Undeliverable/s", Undeliverable)
	expvar.Publish("loadng:DiscoveryTimeouts", DiscoveryTimeouts)

	expvar.Publish("loadng:SentPacket/s", SentPacketPerSecond)
	expvar.Publish("loadng:RecvPacket/s", RecvPacketPerSecond)
	expvar.Publish("loadng:DispatchLatency (µs)", DispatchLatency)
	expvar.Publish("loadng:DiscoveryLatency (ms)", DiscoveryLatency)
}
