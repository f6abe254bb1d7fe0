package main

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ash2k/stager"
	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"

	"github.com/gossipmesh/gossipmesh"
	"github.com/gossipmesh/gossipmesh/pkg/overlay"
	"github.com/gossipmesh/gossipmesh/pkg/ready"
	"github.com/gossipmesh/gossipmesh/pkg/registry"
	"github.com/gossipmesh/gossipmesh/pkg/transport"
	"github.com/gossipmesh/gossipmesh/pkg/util"
)

// Mesh is everything for running a small mesh inside a single process.
type Mesh struct {
	Seeds             int
	Peers             int
	SeedBasePort      int
	PeerBasePort      int
	HeartbeatInterval time.Duration
	ProbeTimeout      time.Duration
	FailureLimit      int
	GossipCount       int
	GossipInterval    time.Duration
	GossipDelay       time.Duration
	Stagger           time.Duration
	KillAfter         time.Duration
	StatusInterval    time.Duration
}

// newMesh will create a new Mesh with default values.
func newMesh() *Mesh {
	return &Mesh{
		Seeds:             4,
		Peers:             3,
		SeedBasePort:      6000,
		PeerBasePort:      8000,
		HeartbeatInterval: 2 * time.Second,
		ProbeTimeout:      time.Second,
		FailureLimit:      3,
		GossipCount:       3,
		GossipInterval:    2 * time.Second,
		GossipDelay:       2 * time.Second,
		Stagger:           500 * time.Millisecond,
		KillAfter:         0,
		StatusInterval:    2 * time.Second,
	}
}

// AddFlags adds flags for a specific Mesh to the specified FlagSet.
func (m *Mesh) AddFlags(fs *pflag.FlagSet) {
	fs.IntVar(&m.Seeds, "seeds", m.Seeds, "Number of seed registries")
	fs.IntVar(&m.Peers, "peers", m.Peers, "Number of overlay nodes")
	fs.IntVar(&m.SeedBasePort, "seed-base-port", m.SeedBasePort, "First seed port")
	fs.IntVar(&m.PeerBasePort, "peer-base-port", m.PeerBasePort, "First node port")
	fs.DurationVar(&m.HeartbeatInterval, "heartbeat-interval", m.HeartbeatInterval, "Time between liveness probes")
	fs.DurationVar(&m.ProbeTimeout, "probe-timeout", m.ProbeTimeout, "Deadline for a single probe")
	fs.IntVar(&m.FailureLimit, "failure-limit", m.FailureLimit, "Consecutive probe failures before a peer is declared dead")
	fs.IntVar(&m.GossipCount, "gossip-count", m.GossipCount, "Messages each node originates")
	fs.DurationVar(&m.GossipInterval, "gossip-interval", m.GossipInterval, "Time between originated messages")
	fs.DurationVar(&m.GossipDelay, "gossip-delay", m.GossipDelay, "Wait before the first originated message")
	fs.DurationVar(&m.Stagger, "stagger", m.Stagger, "Wait between node launches")
	fs.DurationVar(&m.KillAfter, "kill-after", m.KillAfter, "Kill the last node after this long (0 to disable)")
	fs.DurationVar(&m.StatusInterval, "status-interval", m.StatusInterval, "Time between status reports")
}

// Run runs the specified Mesh until the context is canceled.
func (m *Mesh) Run(ctx context.Context) error {
	logger := logrus.StandardLogger()

	seedAddrs := make([]gossipmesh.Address, m.Seeds)
	for i := range seedAddrs {
		seedAddrs[i] = gossipmesh.Address{Host: "127.0.0.1", Port: m.SeedBasePort + i}
	}

	stgr := stager.New()
	defer stgr.Shutdown()

	// Seeds go in the first stage so they outlive the nodes on shutdown.
	// Their listeners are bound up front so a taken port fails fast.
	seeds := make([]*registry.Server, m.Seeds)
	booted := &sync.WaitGroup{}
	booted.Add(m.Seeds)
	stage := stgr.NextStage()
	for i, addr := range seedAddrs {
		server, err := registry.NewServer(logger, addr.String(), 0, gossipmesh.DefaultBadFramesPerMinute)
		if err != nil {
			return err
		}
		ln, err := transport.Listen(addr.String())
		if err != nil {
			return err
		}
		seeds[i] = server
		stage.StartWithContext(func(sctx context.Context) {
			sctx = ready.WithWaitGroup(sctx, booted)
			lf := func() (*transport.Listener, error) { return ln, nil }
			if err := server.RunWithCustomListener(sctx, lf); err != nil {
				logger.WithError(err).Error("Seed terminated")
			}
		})
	}
	booted.Wait()

	nodes := make([]*overlay.Node, 0, m.Peers)
	stage = stgr.NextStage()
	for i := 0; i < m.Peers; i++ {
		self := gossipmesh.Address{Host: "127.0.0.1", Port: m.PeerBasePort + i}
		node, err := m.constructNode(logger, self, seedAddrs)
		if err != nil {
			return err
		}
		nodes = append(nodes, node)
		victim := m.KillAfter > 0 && i == m.Peers-1
		stage.StartWithContext(func(sctx context.Context) {
			if victim {
				var cancel context.CancelFunc
				sctx, cancel = context.WithCancel(sctx)
				defer cancel()
				kill := time.AfterFunc(m.KillAfter, cancel)
				defer kill.Stop()
			}
			if err := node.Run(sctx); err != nil {
				logger.WithError(err).Error("Node terminated")
			}
		})
		select {
		case <-time.After(m.Stagger):
		case <-ctx.Done():
			return nil
		}
	}

	t := time.NewTicker(m.StatusInterval)
	defer t.Stop()

	for {
		select {
		case <-t.C:
			fmt.Printf("registry: %v\n", seeds[0].Registry().Snapshot())
			for _, node := range nodes {
				fmt.Printf("%v: peers=%v messages=%d\n", node.Self(), node.Peers(), len(node.GossipLog()))
			}
		case <-ctx.Done():
			return nil
		}
	}
}

func (m *Mesh) constructNode(logger logrus.FieldLogger, self gossipmesh.Address, seeds []gossipmesh.Address) (*overlay.Node, error) {
	factory := util.NewBackoffFactory(1.5, 5*time.Second, 100*time.Millisecond, 0)
	dialer := transport.NewDialer(logger, gossipmesh.DefaultDialTimeout, factory)
	return overlay.NewNode(
		logger,
		self,
		seeds,
		dialer,
		overlay.DialProbe{},
		m.HeartbeatInterval,
		m.ProbeTimeout,
		m.FailureLimit,
		m.GossipCount,
		m.GossipInterval,
		m.GossipDelay,
		gossipmesh.DefaultGossipLogCapacity,
		gossipmesh.DefaultBootstrapGrace,
		gossipmesh.DefaultPeerSampleSize,
		gossipmesh.DefaultBadFramesPerMinute,
	)
}
