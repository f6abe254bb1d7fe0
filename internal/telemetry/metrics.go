package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Frame type label values for FramesReceived and FramesSent.
const (
	FrameStore    = "store"
	FramePeerList = "peers"
	FrameDeadNode = "dead_node"
	FrameGossip   = "gossip"
)

var (
	Registry = prometheus.NewRegistry()

	FramesReceived = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "gossipmesh",
			Name:      "frames_received_total",
			Help:      "Total number of protocol frames received, by frame type.",
		},
		[]string{"type"},
	)

	FramesSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "gossipmesh",
			Name:      "frames_sent_total",
			Help:      "Total number of protocol frames sent, by frame type.",
		},
		[]string{"type"},
	)

	MalformedFrames = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "gossipmesh",
			Name:      "malformed_frames_total",
			Help:      "Total number of received frames that failed to parse.",
		},
	)

	GossipNew = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "gossipmesh",
			Name:      "gossip_new_total",
			Help:      "Total number of gossip messages seen for the first time.",
		},
	)

	GossipDuplicate = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "gossipmesh",
			Name:      "gossip_duplicate_total",
			Help:      "Total number of gossip messages dropped as duplicates.",
		},
	)

	Registrations = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "gossipmesh",
			Name:      "registrations_total",
			Help:      "Total number of node registrations accepted by the registry.",
		},
	)

	DeadReports = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "gossipmesh",
			Name:      "dead_reports_total",
			Help:      "Total number of dead node reports accepted by the registry.",
		},
	)

	ProbeFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "gossipmesh",
			Name:      "probe_failures_total",
			Help:      "Total number of failed liveness probes.",
		},
	)

	DeclaredDead = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "gossipmesh",
			Name:      "declared_dead_total",
			Help:      "Total number of peers this node declared dead.",
		},
	)

	ConnectedPeers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "gossipmesh",
			Name:      "connected_peers",
			Help:      "Current number of connected overlay peers.",
		},
	)

	RegistrySize = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "gossipmesh",
			Name:      "registry_size",
			Help:      "Current number of live nodes known to the registry.",
		},
	)

	buildInfo = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "gossipmesh",
			Name:      "build_info",
			Help:      "Build info (constant 1, labeled by version and git_sha).",
		},
		[]string{"version", "git_sha"},
	)

	startTime = time.Now()
	uptime    = prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: "gossipmesh",
			Name:      "uptime_seconds",
			Help:      "Process uptime in seconds.",
		},
		func() float64 { return time.Since(startTime).Seconds() },
	)
)

func init() {
	Registry.MustRegister(
		FramesReceived,
		FramesSent,
		MalformedFrames,
		GossipNew,
		GossipDuplicate,
		Registrations,
		DeadReports,
		ProbeFailures,
		DeclaredDead,
		ConnectedPeers,
		RegistrySize,
		buildInfo,
		uptime,
	)
}

// MetricsHandler exposes the registry for mounting at /metrics.
func MetricsHandler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// SetBuildInfo should be called once at startup, e.g. with ldflags-provided values.
func SetBuildInfo(version, gitSHA string) {
	buildInfo.WithLabelValues(version, gitSHA).Set(1)
}
