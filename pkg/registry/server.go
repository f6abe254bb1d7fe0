package registry

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/ash2k/stager/wait"
	"github.com/sirupsen/logrus"
	"github.com/tilinna/clock"
	"golang.org/x/time/rate"

	"github.com/gossipmesh/gossipmesh/internal/telemetry"
	"github.com/gossipmesh/gossipmesh/internal/wire"
	"github.com/gossipmesh/gossipmesh/pkg/healthcheck"
	"github.com/gossipmesh/gossipmesh/pkg/ready"
	"github.com/gossipmesh/gossipmesh/pkg/transport"
	"github.com/gossipmesh/gossipmesh/pkg/util"
)

// ServerName is the component name used in logs and errors.
const ServerName = "registry"

// Server is a seed.  It accepts connections from nodes, answers each with the
// current membership snapshot, and applies registrations and dead node
// reports to its registry.
type Server struct {
	logger          logrus.FieldLogger
	registry        *Registry
	listenAddr      string
	sem             util.Semaphore
	badFrameLimiter *rate.Limiter

	mu       sync.Mutex
	conns    map[*transport.Conn]struct{}
	draining bool
}

// NewServer creates a Server.  maxConns caps concurrently served connections,
// zero means no cap.  badFramesPerMinute throttles malformed frame logging,
// zero logs them all.
func NewServer(logger logrus.FieldLogger, listenAddr string, maxConns int, badFramesPerMinute float64) (*Server, error) {
	logger = logger.WithField("component", ServerName)

	if listenAddr == "" {
		return nil, fmt.Errorf("[%s] listen-addr is required", ServerName)
	}
	if maxConns < 0 {
		return nil, fmt.Errorf("[%s] max-conns must be zero or positive", ServerName)
	}
	if badFramesPerMinute < 0 {
		return nil, fmt.Errorf("[%s] bad-frames-per-minute must be zero or positive", ServerName)
	}

	logger.WithFields(logrus.Fields{
		"listenAddr":         listenAddr,
		"maxConns":           maxConns,
		"badFramesPerMinute": badFramesPerMinute,
	}).Info("registry starting")

	var limiter *rate.Limiter
	if badFramesPerMinute > 0 {
		limiter = rate.NewLimiter(rate.Limit(badFramesPerMinute/60.0), 1)
	}
	return &Server{
		logger:          logger,
		registry:        New(),
		listenAddr:      listenAddr,
		sem:             util.NewSemaphore(maxConns),
		badFrameLimiter: limiter,
		conns:           map[*transport.Conn]struct{}{},
	}, nil
}

// Registry returns the server's membership table.
func (s *Server) Registry() *Registry {
	return s.registry
}

// Run accepts and serves connections until the context is done.
func (s *Server) Run(ctx context.Context) error {
	return s.RunWithCustomListener(ctx, func() (*transport.Listener, error) {
		return transport.Listen(s.listenAddr)
	})
}

// RunWithCustomListener runs the server until the context is done.
// The listening socket is created using lf.
func (s *Server) RunWithCustomListener(ctx context.Context, lf transport.ListenerFactory) error {
	ln, err := lf()
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.listenAddr, err)
	}

	ctx, cancel := context.WithCancel(ctx)
	var wg wait.Group
	defer wg.Wait()
	defer cancel()
	wg.Start(func() {
		<-ctx.Done()
		ln.Close()
		s.closeConns()
	})

	s.logger.WithField("address", s.listenAddr).Info("Accepting connections")
	ready.SignalReady(ctx)

	for {
		if !s.sem.Acquire(ctx) {
			return nil
		}
		conn, err := ln.Accept()
		if err != nil {
			s.sem.Release()
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("accept on %s failed: %w", s.listenAddr, err)
		}
		if !s.trackConn(conn) {
			conn.Close()
			s.sem.Release()
			return nil
		}
		wg.Start(func() {
			defer s.sem.Release()
			defer s.untrackConn(conn)
			defer conn.Close()
			s.serveConn(ctx, conn)
		})
	}
}

// trackConn adds conn to the set the shutdown watcher closes.  It reports
// false when shutdown has already begun, the conn raced the watcher and must
// be closed by the caller.
func (s *Server) trackConn(conn *transport.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.draining {
		return false
	}
	s.conns[conn] = struct{}{}
	return true
}

func (s *Server) untrackConn(conn *transport.Conn) {
	s.mu.Lock()
	delete(s.conns, conn)
	s.mu.Unlock()
}

func (s *Server) closeConns() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.draining = true
	for conn := range s.conns {
		conn.Close()
	}
}

func (s *Server) serveConn(ctx context.Context, conn *transport.Conn) {
	logger := s.logger.WithField("remote", conn.RemoteEndpoint())

	// Every connection gets the current view up front, before the sender has
	// said anything.
	if err := conn.WriteFrame(wire.EncodePeerList(s.registry.Snapshot())); err != nil {
		logger.WithError(err).Debug("Failed to send snapshot")
		return
	}
	telemetry.FramesSent.WithLabelValues(telemetry.FramePeerList).Inc()

	for {
		frame, err := conn.ReadFrame()
		if err != nil {
			if err != io.EOF && ctx.Err() == nil {
				logger.WithError(err).Debug("Connection read failed")
			}
			return
		}
		s.handleFrame(ctx, logger, conn, frame)
	}
}

func (s *Server) handleFrame(ctx context.Context, logger logrus.FieldLogger, conn *transport.Conn, frame string) {
	f, err := wire.ParseFrame(frame)
	if err != nil {
		telemetry.MalformedFrames.Inc()
		if s.badFrameLimiter == nil || s.badFrameLimiter.Allow() {
			logger.WithError(err).WithField("frame", frame).Warn("Dropping malformed frame")
		}
		return
	}
	switch f := f.(type) {
	case wire.Store:
		telemetry.FramesReceived.WithLabelValues(telemetry.FrameStore).Inc()
		conn.SetDeclared(f.Addr)
		if s.registry.Register(f.Addr, clock.FromContext(ctx).Now()) {
			telemetry.Registrations.Inc()
			telemetry.RegistrySize.Set(float64(s.registry.Size()))
			logger.WithField("node", f.Addr.String()).Info("Registered node")
		} else {
			logger.WithField("node", f.Addr.String()).Debug("Node already registered")
		}
	case wire.DeadNode:
		telemetry.FramesReceived.WithLabelValues(telemetry.FrameDeadNode).Inc()
		if s.registry.RemoveDead(f.Addr) {
			telemetry.DeadReports.Inc()
			telemetry.RegistrySize.Set(float64(s.registry.Size()))
			logger.WithFields(logrus.Fields{
				"node":     f.Addr.String(),
				"reporter": f.Reporter,
			}).Info("Removed dead node")
		} else {
			logger.WithField("node", f.Addr.String()).Debug("Dead report for unregistered node")
		}
	case wire.PeerList:
		telemetry.FramesReceived.WithLabelValues(telemetry.FramePeerList).Inc()
		logger.Debug("Ignoring peer list frame")
	case wire.Gossip:
		telemetry.FramesReceived.WithLabelValues(telemetry.FrameGossip).Inc()
		logger.Debug("Ignoring gossip frame")
	}
}

// SelfChecks reports the server as alive.
func (s *Server) SelfChecks() []healthcheck.Check {
	return []healthcheck.Check{
		func() (string, bool) {
			return "registry server running", true
		},
	}
}

// MeshChecks reports on the membership the server has accumulated.
func (s *Server) MeshChecks() []healthcheck.Check {
	return []healthcheck.Check{
		func() (string, bool) {
			size := s.registry.Size()
			if size == 0 {
				return "no nodes registered", false
			}
			return fmt.Sprintf("%d nodes registered", size), true
		},
	}
}
