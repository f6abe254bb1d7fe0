package gossipmesh

import (
	"time"

	"github.com/spf13/pflag"
)

// DefaultSeeds is the default rendezvous seed list.
var DefaultSeeds = []string{
	"127.0.0.1:6000",
	"127.0.0.1:6001",
	"127.0.0.1:6002",
	"127.0.0.1:6003",
}

const (
	// DefaultSeedListenAddr is the default address a seed listens on.
	DefaultSeedListenAddr = "127.0.0.1:6000"
	// DefaultPeerListenAddr is the default address a peer listens on.
	DefaultPeerListenAddr = "127.0.0.1:8000"
	// DefaultStatusAddr is the default address of the status web server. Empty disables it.
	DefaultStatusAddr = ""
	// DefaultMaxConns is the default cap on concurrent connections a seed serves. Zero means no cap.
	DefaultMaxConns = 0
	// DefaultHeartbeatInterval is the default time between liveness probes of a connected peer.
	DefaultHeartbeatInterval = 13 * time.Second
	// DefaultHeartbeatFailureLimit is the default number of consecutive probe failures after which a peer is declared dead.
	DefaultHeartbeatFailureLimit = 3
	// DefaultProbe is the default liveness probe mechanism.
	DefaultProbe = "dial"
	// DefaultProbeTimeout is the default deadline for a single liveness probe.
	DefaultProbeTimeout = 2 * time.Second
	// DefaultGossipCount is the default number of messages a node originates. Zero disables origination.
	DefaultGossipCount = 10
	// DefaultGossipInterval is the default time between originated messages.
	DefaultGossipInterval = 5 * time.Second
	// DefaultGossipDelay is the default wait before the first originated message.
	DefaultGossipDelay = 3 * time.Second
	// DefaultGossipLogCapacity is the default number of message ids remembered for deduplication.
	DefaultGossipLogCapacity = 8192
	// DefaultBootstrapGrace is the default wait for registry snapshots before picking peers.
	DefaultBootstrapGrace = 1 * time.Second
	// DefaultPeerSampleSize is the default maximum number of peers dialed after bootstrap.
	DefaultPeerSampleSize = 4
	// DefaultDialTimeout is the default timeout for a single outbound connection attempt.
	DefaultDialTimeout = 5 * time.Second
	// DefaultBadFramesPerMinute is the default rate limit for logging malformed frames. Zero logs them all.
	DefaultBadFramesPerMinute = 60.0
)

const (
	// ParamListenAddr is the name of parameter with the node's listen address.
	ParamListenAddr = "listen-addr"
	// ParamSeeds is the name of parameter with the comma-separated seed list.
	ParamSeeds = "seeds"
	// ParamStatusAddr is the name of parameter with the status web server address.
	ParamStatusAddr = "status-addr"
	// ParamMaxConns is the name of parameter with the cap on concurrent connections a seed serves.
	ParamMaxConns = "max-conns"
	// ParamHeartbeatInterval is the name of parameter with the time between liveness probes.
	ParamHeartbeatInterval = "heartbeat-interval"
	// ParamHeartbeatFailureLimit is the name of parameter with the consecutive failure limit.
	ParamHeartbeatFailureLimit = "heartbeat-failure-limit"
	// ParamProbe is the name of parameter with the liveness probe mechanism.
	ParamProbe = "probe"
	// ParamProbeTimeout is the name of parameter with the deadline for a single probe.
	ParamProbeTimeout = "probe-timeout"
	// ParamGossipCount is the name of parameter with the number of messages to originate.
	ParamGossipCount = "gossip-count"
	// ParamGossipInterval is the name of parameter with the time between originated messages.
	ParamGossipInterval = "gossip-interval"
	// ParamGossipDelay is the name of parameter with the wait before the first originated message.
	ParamGossipDelay = "gossip-delay"
	// ParamGossipLogCapacity is the name of parameter with the deduplication log capacity.
	ParamGossipLogCapacity = "gossip-log-capacity"
	// ParamBootstrapGrace is the name of parameter with the wait for registry snapshots.
	ParamBootstrapGrace = "bootstrap-grace"
	// ParamPeerSampleSize is the name of parameter with the maximum peers dialed after bootstrap.
	ParamPeerSampleSize = "peer-sample-size"
	// ParamDialTimeout is the name of parameter with the outbound connection timeout.
	ParamDialTimeout = "dial-timeout"
	// ParamBadFramesPerMinute is the name of parameter with the malformed frame log rate limit.
	ParamBadFramesPerMinute = "bad-frames-per-minute"
)

// AddFlags adds the protocol flags shared by the seed and peer daemons to the
// specified FlagSet. Role flags (listen address, seed list, connection cap)
// are added by the daemons themselves so each can carry its own default.
func AddFlags(fs *pflag.FlagSet) {
	fs.String(ParamStatusAddr, DefaultStatusAddr, "If set, serve status endpoints on this address")
	fs.Duration(ParamHeartbeatInterval, DefaultHeartbeatInterval, "Time between liveness probes of a connected peer")
	fs.Int(ParamHeartbeatFailureLimit, DefaultHeartbeatFailureLimit, "Consecutive probe failures after which a peer is declared dead")
	fs.String(ParamProbe, DefaultProbe, "Liveness probe mechanism (dial or ping)")
	fs.Duration(ParamProbeTimeout, DefaultProbeTimeout, "Deadline for a single liveness probe")
	fs.Int(ParamGossipCount, DefaultGossipCount, "Number of gossip messages to originate (0 to disable)")
	fs.Duration(ParamGossipInterval, DefaultGossipInterval, "Time between originated gossip messages")
	fs.Duration(ParamGossipDelay, DefaultGossipDelay, "Wait before originating the first gossip message")
	fs.Int(ParamGossipLogCapacity, DefaultGossipLogCapacity, "Number of message ids remembered for deduplication")
	fs.Duration(ParamBootstrapGrace, DefaultBootstrapGrace, "Wait for registry snapshots before picking peers")
	fs.Int(ParamPeerSampleSize, DefaultPeerSampleSize, "Maximum number of peers dialed after bootstrap")
	fs.Duration(ParamDialTimeout, DefaultDialTimeout, "Timeout for a single outbound connection attempt")
	fs.Float64(ParamBadFramesPerMinute, DefaultBadFramesPerMinute, "Rate limit for logging malformed frames (0 for unlimited)")
}
