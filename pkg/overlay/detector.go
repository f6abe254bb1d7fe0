package overlay

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/tilinna/clock"

	"github.com/gossipmesh/gossipmesh"
	"github.com/gossipmesh/gossipmesh/internal/telemetry"
)

// detector drives the failure detection loop for a single peer.  It probes on
// a fixed interval, and declares the peer dead after limit consecutive
// failures.  Dead is terminal, the detector stops after declaring it.
type detector struct {
	logger   logrus.FieldLogger
	probe    LivenessProbe
	addr     gossipmesh.Address
	interval time.Duration
	timeout  time.Duration
	limit    int
	onDead   func(addr gossipmesh.Address)
}

func (d *detector) run(ctx context.Context) {
	clck := clock.FromContext(ctx)

	// Starting the ticker is how we signal to tests that everything is ready to go.
	ticker := clck.NewTicker(d.interval)
	defer ticker.Stop()

	failures := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		if err := d.probeOnce(ctx, clck); err != nil {
			if ctx.Err() != nil {
				return
			}
			failures++
			telemetry.ProbeFailures.Inc()
			d.logger.WithError(err).WithFields(logrus.Fields{
				"peer":     d.addr.String(),
				"failures": failures,
				"limit":    d.limit,
			}).Warn("Liveness probe failed")
			if failures >= d.limit {
				d.onDead(d.addr)
				return
			}
		} else {
			if failures > 0 {
				d.logger.WithField("peer", d.addr.String()).Info("Peer recovered before failure limit")
			}
			failures = 0
		}
	}
}

func (d *detector) probeOnce(ctx context.Context, clck clock.Clock) error {
	probeCtx, cancel := clck.TimeoutContext(ctx, d.timeout)
	defer cancel()
	return d.probe.Probe(probeCtx, d.addr)
}
