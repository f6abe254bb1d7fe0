package overlay

import (
	"context"
	"fmt"
	"io"
	"math/rand"
	"sync"
	"time"

	"github.com/ash2k/stager/wait"
	"github.com/sirupsen/logrus"
	"github.com/tilinna/clock"
	"golang.org/x/time/rate"

	"github.com/gossipmesh/gossipmesh"
	"github.com/gossipmesh/gossipmesh/internal/telemetry"
	"github.com/gossipmesh/gossipmesh/internal/wire"
	"github.com/gossipmesh/gossipmesh/pkg/healthcheck"
	"github.com/gossipmesh/gossipmesh/pkg/ready"
	"github.com/gossipmesh/gossipmesh/pkg/transport"
)

// NodeName is the component name used in logs and errors.
const NodeName = "node"

// peerLink is an established overlay link, keyed by the peer's announced
// listen address.  cancel stops the peer's failure detector.
type peerLink struct {
	conn   *transport.Conn
	cancel context.CancelFunc
}

type forwardTarget struct {
	addr gossipmesh.Address
	conn *transport.Conn
}

// Node is a gossip node.  It announces itself to a quorum of seeds, connects
// to a random sample of the membership they return, floods gossip across its
// links, and probes each connected peer for liveness.
type Node struct {
	logger logrus.FieldLogger
	self   gossipmesh.Address
	seeds  []gossipmesh.Address
	dialer *transport.Dialer
	probe  LivenessProbe

	heartbeatInterval time.Duration
	probeTimeout      time.Duration
	failureLimit      int

	gossipCount    int
	gossipInterval time.Duration
	gossipDelay    time.Duration

	bootstrapGrace time.Duration
	sampleSize     int

	badFrameLimiter *rate.Limiter
	log             *gossipLog
	rng             *rand.Rand
	wg              wait.Group

	mu             sync.Mutex
	conns          map[*transport.Conn]struct{}
	peers          map[gossipmesh.Address]*peerLink
	seedConns      map[*transport.Conn]gossipmesh.Address
	candidates     map[gossipmesh.Address]struct{}
	bootstrappedAt time.Time
	draining       bool
}

// NewNode creates a Node.
func NewNode(
	logger logrus.FieldLogger,
	self gossipmesh.Address,
	seeds []gossipmesh.Address,
	dialer *transport.Dialer,
	probe LivenessProbe,
	heartbeatInterval, probeTimeout time.Duration,
	failureLimit int,
	gossipCount int,
	gossipInterval, gossipDelay time.Duration,
	gossipLogCapacity int,
	bootstrapGrace time.Duration,
	peerSampleSize int,
	badFramesPerMinute float64,
) (*Node, error) {
	logger = logger.WithField("component", NodeName)

	if self.Host == "" || self.Port <= 0 {
		return nil, fmt.Errorf("[%s] listen-addr is required", NodeName)
	}
	if len(seeds) == 0 {
		return nil, fmt.Errorf("[%s] seeds are required", NodeName)
	}
	if dialer == nil {
		return nil, fmt.Errorf("[%s] dialer is required", NodeName)
	}
	if probe == nil {
		return nil, fmt.Errorf("[%s] probe is required", NodeName)
	}
	if heartbeatInterval <= 0 {
		return nil, fmt.Errorf("[%s] heartbeat-interval must be positive", NodeName)
	}
	if probeTimeout <= 0 {
		return nil, fmt.Errorf("[%s] probe-timeout must be positive", NodeName)
	}
	if failureLimit <= 0 {
		return nil, fmt.Errorf("[%s] heartbeat-failure-limit must be positive", NodeName)
	}
	if gossipCount < 0 {
		return nil, fmt.Errorf("[%s] gossip-count must be zero or positive", NodeName)
	}
	if gossipCount > 0 && gossipInterval <= 0 {
		return nil, fmt.Errorf("[%s] gossip-interval must be positive", NodeName)
	}
	if gossipDelay < 0 {
		return nil, fmt.Errorf("[%s] gossip-delay must be zero or positive", NodeName)
	}
	if gossipLogCapacity <= 0 {
		return nil, fmt.Errorf("[%s] gossip-log-capacity must be positive", NodeName)
	}
	if bootstrapGrace < 0 {
		return nil, fmt.Errorf("[%s] bootstrap-grace must be zero or positive", NodeName)
	}
	if peerSampleSize <= 0 {
		return nil, fmt.Errorf("[%s] peer-sample-size must be positive", NodeName)
	}
	if badFramesPerMinute < 0 {
		return nil, fmt.Errorf("[%s] bad-frames-per-minute must be zero or positive", NodeName)
	}

	logger.WithFields(logrus.Fields{
		"self":              self.String(),
		"seeds":             len(seeds),
		"heartbeatInterval": heartbeatInterval,
		"probeTimeout":      probeTimeout,
		"failureLimit":      failureLimit,
		"gossipCount":       gossipCount,
		"gossipInterval":    gossipInterval,
		"gossipDelay":       gossipDelay,
		"bootstrapGrace":    bootstrapGrace,
		"peerSampleSize":    peerSampleSize,
	}).Info("node starting")

	var limiter *rate.Limiter
	if badFramesPerMinute > 0 {
		limiter = rate.NewLimiter(rate.Limit(badFramesPerMinute/60.0), 1)
	}

	return &Node{
		logger:            logger,
		self:              self,
		seeds:             seeds,
		dialer:            dialer,
		probe:             probe,
		heartbeatInterval: heartbeatInterval,
		probeTimeout:      probeTimeout,
		failureLimit:      failureLimit,
		gossipCount:       gossipCount,
		gossipInterval:    gossipInterval,
		gossipDelay:       gossipDelay,
		bootstrapGrace:    bootstrapGrace,
		sampleSize:        peerSampleSize,
		badFrameLimiter:   limiter,
		log:               newGossipLog(gossipLogCapacity),
		rng:               rand.New(rand.NewSource(time.Now().UnixNano())),
		conns:             map[*transport.Conn]struct{}{},
		peers:             map[gossipmesh.Address]*peerLink{},
		seedConns:         map[*transport.Conn]gossipmesh.Address{},
		candidates:        map[gossipmesh.Address]struct{}{},
	}, nil
}

// Run listens, bootstraps through the seeds, and serves the overlay until the
// context is done.
func (n *Node) Run(ctx context.Context) error {
	return n.RunWithCustomListener(ctx, func() (*transport.Listener, error) {
		return transport.Listen(n.self.String())
	})
}

// RunWithCustomListener runs the node until the context is done.
// The listening socket is created using lf.
func (n *Node) RunWithCustomListener(ctx context.Context, lf transport.ListenerFactory) error {
	ln, err := lf()
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", n.self, err)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer n.wg.Wait()
	defer cancel()
	n.wg.Start(func() {
		<-ctx.Done()
		ln.Close()
		n.closeConns()
	})

	n.logger.WithField("address", n.self.String()).Info("Listening for peers")
	ready.SignalReady(ctx)

	n.wg.Start(func() {
		n.acceptLoop(ctx, ln)
	})

	if err := n.bootstrap(ctx); err != nil {
		return err
	}

	if n.gossipCount > 0 {
		n.wg.StartWithContext(ctx, n.originate)
	}

	<-ctx.Done()
	return nil
}

// bootstrap registers with a random majority of seeds, waits briefly for
// their membership snapshots, and opens links to a random sample of the
// discovered nodes.  At least one seed must be reachable.
func (n *Node) bootstrap(ctx context.Context) error {
	clck := clock.FromContext(ctx)

	picks := pickSeeds(n.rng, n.seeds)
	n.logger.WithField("quorum", len(picks)).Info("Contacting seed quorum")
	for _, seedAddr := range picks {
		conn, err := n.dialer.DialWithRetry(ctx, seedAddr)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			n.logger.WithError(err).WithField("seed", seedAddr.String()).Warn("Failed to reach seed")
			continue
		}
		if !n.trackConn(conn) {
			conn.Close()
			return nil
		}
		n.mu.Lock()
		n.seedConns[conn] = seedAddr
		n.mu.Unlock()
		if err := conn.WriteFrame(wire.EncodeStore(n.self)); err != nil {
			n.logger.WithError(err).WithField("seed", seedAddr.String()).Warn("Failed to register with seed")
			n.dropSeedConn(conn)
			conn.Close()
			continue
		}
		telemetry.FramesSent.WithLabelValues(telemetry.FrameStore).Inc()
		n.logger.WithField("seed", seedAddr.String()).Info("Registered with seed")
		seedAddr := seedAddr
		n.wg.Start(func() {
			defer conn.Close()
			n.seedLoop(ctx, seedAddr, conn)
		})
	}
	if n.seedConnCount() == 0 {
		return fmt.Errorf("[%s] no seeds reachable", NodeName)
	}

	// Give the snapshots a moment to arrive before picking peers.
	timer := clck.NewTimer(n.bootstrapGrace)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return nil
	case <-timer.C:
	}

	candidates := n.candidateList()
	peers := samplePeers(n.rng, candidates, n.self, n.sampleSize)
	n.logger.WithFields(logrus.Fields{
		"candidates": len(candidates),
		"sampled":    len(peers),
	}).Info("Selected peers")
	for _, addr := range peers {
		n.connectToPeer(ctx, addr)
	}

	n.mu.Lock()
	n.bootstrappedAt = clck.Now()
	n.mu.Unlock()
	return nil
}

func (n *Node) connectToPeer(ctx context.Context, addr gossipmesh.Address) {
	conn, err := n.dialer.Dial(ctx, addr)
	if err != nil {
		n.logger.WithError(err).WithField("peer", addr.String()).Warn("Failed to connect to peer")
		return
	}
	if !n.trackConn(conn) {
		conn.Close()
		return
	}
	if err := conn.WriteFrame(wire.EncodeStore(n.self)); err != nil {
		n.logger.WithError(err).WithField("peer", addr.String()).Warn("Failed to announce to peer")
		n.dropConn(conn)
		conn.Close()
		return
	}
	telemetry.FramesSent.WithLabelValues(telemetry.FrameStore).Inc()
	if !n.addPeer(ctx, conn, addr) {
		n.logger.WithField("peer", addr.String()).Debug("Peer already linked, keeping first connection")
	}
	n.wg.Start(func() {
		defer conn.Close()
		n.serveConn(ctx, conn)
	})
}

func (n *Node) acceptLoop(ctx context.Context, ln *transport.Listener) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() == nil {
				n.logger.WithError(err).Error("Accept failed")
			}
			return
		}
		if !n.trackConn(conn) {
			conn.Close()
			return
		}
		n.wg.Start(func() {
			defer conn.Close()
			n.serveConn(ctx, conn)
		})
	}
}

func (n *Node) serveConn(ctx context.Context, conn *transport.Conn) {
	logger := n.logger.WithField("remote", conn.RemoteEndpoint())
	for {
		frame, err := conn.ReadFrame()
		if err != nil {
			n.dropConn(conn)
			if err != io.EOF && ctx.Err() == nil {
				logger.WithError(err).Debug("Connection read failed")
			}
			return
		}
		n.handleFrame(ctx, logger, conn, frame)
	}
}

func (n *Node) handleFrame(ctx context.Context, logger logrus.FieldLogger, conn *transport.Conn, frame string) {
	f, err := wire.ParseFrame(frame)
	if err != nil {
		telemetry.MalformedFrames.Inc()
		if n.badFrameLimiter == nil || n.badFrameLimiter.Allow() {
			logger.WithError(err).WithField("frame", frame).Warn("Dropping malformed frame")
		}
		return
	}
	switch f := f.(type) {
	case wire.Store:
		telemetry.FramesReceived.WithLabelValues(telemetry.FrameStore).Inc()
		if f.Addr == n.self {
			logger.Debug("Ignoring own announcement")
			return
		}
		if !n.addPeer(ctx, conn, f.Addr) {
			logger.WithField("peer", f.Addr.String()).Debug("Peer already linked, keeping first connection")
		}
	case wire.Gossip:
		telemetry.FramesReceived.WithLabelValues(telemetry.FrameGossip).Inc()
		n.handleGossip(ctx, logger, conn, f)
	case wire.PeerList:
		telemetry.FramesReceived.WithLabelValues(telemetry.FramePeerList).Inc()
		logger.Debug("Ignoring peer list frame")
	case wire.DeadNode:
		telemetry.FramesReceived.WithLabelValues(telemetry.FrameDeadNode).Inc()
		logger.WithField("node", f.Addr.String()).Debug("Ignoring dead node report, seeds handle those")
	}
}

func (n *Node) handleGossip(ctx context.Context, logger logrus.FieldLogger, conn *transport.Conn, g wire.Gossip) {
	sender := conn.RemoteEndpoint()
	if addr, ok := conn.Declared(); ok {
		sender = addr.String()
	}
	msg := gossipmesh.ReceivedMessage(g.Payload, sender)
	if !n.log.record(msg, clock.FromContext(ctx).Now()) {
		telemetry.GossipDuplicate.Inc()
		logger.WithField("sender", sender).Debug("Duplicate gossip, not forwarding")
		return
	}
	telemetry.GossipNew.Inc()
	logger.WithFields(logrus.Fields{
		"sender":  sender,
		"payload": g.Payload,
	}).Info("Gossip received")
	n.forward(g.Payload, conn)
}

// forward floods payload to every linked peer except the one it came from.
// A failed send is logged and skipped, the peer's own detector decides its
// fate.
func (n *Node) forward(payload string, except *transport.Conn) {
	for _, t := range n.forwardTargets(except) {
		if err := t.conn.WriteFrame(payload); err != nil {
			n.logger.WithError(err).WithField("peer", t.addr.String()).Warn("Failed to forward gossip")
			continue
		}
		telemetry.FramesSent.WithLabelValues(telemetry.FrameGossip).Inc()
	}
}

func (n *Node) forwardTargets(except *transport.Conn) []forwardTarget {
	n.mu.Lock()
	defer n.mu.Unlock()
	targets := make([]forwardTarget, 0, len(n.peers))
	for addr, link := range n.peers {
		if link.conn == except {
			continue
		}
		targets = append(targets, forwardTarget{addr: addr, conn: link.conn})
	}
	return targets
}

// originate broadcasts this node's own messages, first after gossipDelay,
// then every gossipInterval, gossipCount in total.
func (n *Node) originate(ctx context.Context) {
	clck := clock.FromContext(ctx)

	timer := clck.NewTimer(n.gossipDelay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return
	case <-timer.C:
	}

	ticker := clck.NewTicker(n.gossipInterval)
	defer ticker.Stop()
	for i := 1; ; i++ {
		n.broadcast(ctx, i)
		if i >= n.gossipCount {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (n *Node) broadcast(ctx context.Context, i int) {
	clck := clock.FromContext(ctx)
	payload := fmt.Sprintf("%s:%s:Msg#%d - Gossip broadcast from %s",
		clck.Now().Format(wire.TimestampLayout), n.self.Host, i, n.self)
	msg := gossipmesh.NewMessage(payload, "Designated: "+n.self.String())
	n.log.record(msg, clck.Now())
	telemetry.GossipNew.Inc()
	n.forward(payload, nil)
	n.logger.WithField("payload", payload).Info("Originated gossip")
}

// addPeer registers conn as the link to addr and starts the peer's failure
// detector.  It reports false when the peer is already linked or the node is
// shutting down, the first link always wins.
func (n *Node) addPeer(ctx context.Context, conn *transport.Conn, addr gossipmesh.Address) bool {
	n.mu.Lock()
	if n.draining {
		n.mu.Unlock()
		return false
	}
	if _, ok := n.peers[addr]; ok {
		n.mu.Unlock()
		return false
	}
	peerCtx, cancel := context.WithCancel(ctx)
	n.peers[addr] = &peerLink{conn: conn, cancel: cancel}
	count := len(n.peers)
	n.mu.Unlock()

	conn.SetDeclared(addr)
	telemetry.ConnectedPeers.Set(float64(count))
	n.logger.WithField("peer", addr.String()).Info("Peer connected")

	det := &detector{
		logger:   n.logger,
		probe:    n.probe,
		addr:     addr,
		interval: n.heartbeatInterval,
		timeout:  n.probeTimeout,
		limit:    n.failureLimit,
		onDead: func(addr gossipmesh.Address) {
			n.declareDead(ctx, addr)
		},
	}
	n.wg.StartWithContext(peerCtx, det.run)
	return true
}

// declareDead removes the peer and reports it to every connected seed.  The
// report only goes out if this node actually held the link, so a peer is
// declared at most once.
func (n *Node) declareDead(ctx context.Context, addr gossipmesh.Address) {
	if !n.removePeer(addr) {
		return
	}
	telemetry.DeclaredDead.Inc()

	frame := wire.EncodeDeadNode(addr, clock.FromContext(ctx).Now(), n.self.Host)
	reported := 0
	for _, sc := range n.seedConnections() {
		if err := sc.WriteFrame(frame); err != nil {
			n.logger.WithError(err).Warn("Failed to report dead node to seed")
			continue
		}
		telemetry.FramesSent.WithLabelValues(telemetry.FrameDeadNode).Inc()
		reported++
	}
	n.logger.WithFields(logrus.Fields{
		"peer":  addr.String(),
		"seeds": reported,
	}).Warn("Declared peer dead")
}

func (n *Node) removePeer(addr gossipmesh.Address) bool {
	n.mu.Lock()
	link, ok := n.peers[addr]
	count := len(n.peers)
	if ok {
		link.cancel()
		link.conn.Close()
		delete(n.peers, addr)
		count = len(n.peers)
	}
	n.mu.Unlock()
	if !ok {
		return false
	}
	telemetry.ConnectedPeers.Set(float64(count))
	return true
}

// seedLoop reads a seed connection.  Snapshots feed the bootstrap candidate
// set, anything else from a seed is noise.
func (n *Node) seedLoop(ctx context.Context, seedAddr gossipmesh.Address, conn *transport.Conn) {
	logger := n.logger.WithField("seed", seedAddr.String())
	for {
		frame, err := conn.ReadFrame()
		if err != nil {
			n.dropSeedConn(conn)
			if err != io.EOF && ctx.Err() == nil {
				logger.WithError(err).Warn("Lost seed connection")
			}
			return
		}
		f, perr := wire.ParseFrame(frame)
		if perr != nil {
			telemetry.MalformedFrames.Inc()
			if n.badFrameLimiter == nil || n.badFrameLimiter.Allow() {
				logger.WithError(perr).WithField("frame", frame).Warn("Dropping malformed frame")
			}
			continue
		}
		switch f := f.(type) {
		case wire.PeerList:
			telemetry.FramesReceived.WithLabelValues(telemetry.FramePeerList).Inc()
			for _, entry := range f.Malformed {
				logger.WithField("entry", entry).Debug("Skipping malformed peer entry")
			}
			n.offerCandidates(f.Addrs)
			logger.WithField("peers", len(f.Addrs)).Info("Received membership snapshot")
		default:
			logger.Debug("Ignoring frame from seed")
		}
	}
}

func (n *Node) offerCandidates(addrs []gossipmesh.Address) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, addr := range addrs {
		if addr == n.self {
			continue
		}
		n.candidates[addr] = struct{}{}
	}
}

func (n *Node) candidateList() []gossipmesh.Address {
	n.mu.Lock()
	defer n.mu.Unlock()
	addrs := make([]gossipmesh.Address, 0, len(n.candidates))
	for addr := range n.candidates {
		addrs = append(addrs, addr)
	}
	return addrs
}

func (n *Node) seedConnections() []*transport.Conn {
	n.mu.Lock()
	defer n.mu.Unlock()
	conns := make([]*transport.Conn, 0, len(n.seedConns))
	for conn := range n.seedConns {
		conns = append(conns, conn)
	}
	return conns
}

func (n *Node) seedConnCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.seedConns)
}

func (n *Node) dropSeedConn(conn *transport.Conn) {
	n.mu.Lock()
	delete(n.seedConns, conn)
	delete(n.conns, conn)
	n.mu.Unlock()
}

// trackConn adds conn to the set the shutdown watcher closes.  It reports
// false when shutdown has already begun, the conn raced the watcher and must
// be closed by the caller.
func (n *Node) trackConn(conn *transport.Conn) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.draining {
		return false
	}
	n.conns[conn] = struct{}{}
	return true
}

func (n *Node) dropConn(conn *transport.Conn) {
	n.mu.Lock()
	delete(n.conns, conn)
	var dropped *gossipmesh.Address
	count := len(n.peers)
	for addr, link := range n.peers {
		if link.conn == conn {
			link.cancel()
			delete(n.peers, addr)
			addr := addr
			dropped = &addr
			count = len(n.peers)
			break
		}
	}
	n.mu.Unlock()
	if dropped != nil {
		telemetry.ConnectedPeers.Set(float64(count))
		n.logger.WithField("peer", dropped.String()).Info("Peer disconnected")
	}
}

func (n *Node) closeConns() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.draining = true
	for conn := range n.conns {
		conn.Close()
	}
}

// Self returns the node's advertised listen address.
func (n *Node) Self() gossipmesh.Address {
	return n.self
}

// Peers returns the addresses of the linked peers, sorted.
func (n *Node) Peers() []gossipmesh.Address {
	n.mu.Lock()
	addrs := make([]gossipmesh.Address, 0, len(n.peers))
	for addr := range n.peers {
		addrs = append(addrs, addr)
	}
	n.mu.Unlock()
	gossipmesh.SortAddresses(addrs)
	return addrs
}

// BootstrappedAt returns when bootstrap completed, or the zero time if it
// hasn't yet.  Bootstrap runs once, so a stale value means a stale peer set.
func (n *Node) BootstrappedAt() time.Time {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.bootstrappedAt
}

// GossipLog returns the messages this node has seen, oldest first.
func (n *Node) GossipLog() []GossipEntry {
	return n.log.snapshot()
}

// SelfChecks reports the node as alive.
func (n *Node) SelfChecks() []healthcheck.Check {
	return []healthcheck.Check{
		func() (string, bool) {
			return fmt.Sprintf("node %s running", n.self), true
		},
	}
}

// MeshChecks reports on the node's view of the mesh.
func (n *Node) MeshChecks() []healthcheck.Check {
	return []healthcheck.Check{
		func() (string, bool) {
			seeds := n.seedConnCount()
			if seeds == 0 {
				return "not connected to any seed", false
			}
			return fmt.Sprintf("connected to %d seeds", seeds), true
		},
		func() (string, bool) {
			peers := len(n.Peers())
			if peers == 0 {
				return "no overlay peers linked", false
			}
			return fmt.Sprintf("linked to %d peers", peers), true
		},
	}
}
