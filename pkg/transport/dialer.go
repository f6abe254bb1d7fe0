package transport

import (
	"context"
	"net"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/sirupsen/logrus"
	"github.com/tilinna/clock"

	"github.com/gossipmesh/gossipmesh"
	"github.com/gossipmesh/gossipmesh/pkg/util"
)

// Dialer opens framed connections.
type Dialer struct {
	logger  logrus.FieldLogger
	timeout time.Duration
	backoff util.BackoffFactory
}

// NewDialer creates a Dialer.  The timeout applies to each connection
// attempt, the backoff policy governs retries in DialWithRetry.
func NewDialer(logger logrus.FieldLogger, timeout time.Duration, backoff util.BackoffFactory) *Dialer {
	return &Dialer{
		logger:  logger,
		timeout: timeout,
		backoff: backoff,
	}
}

// Dial opens a framed connection to addr with a single attempt.
func (d *Dialer) Dial(ctx context.Context, addr gossipmesh.Address) (*Conn, error) {
	nd := &net.Dialer{Timeout: d.timeout}
	nc, err := nd.DialContext(ctx, "tcp", addr.String())
	if err != nil {
		return nil, err
	}
	return NewConn(nc), nil
}

// DialWithRetry dials addr, retrying per the dialer's backoff policy.  It
// returns the last dial error once the policy gives up, or the context error
// if the context is canceled while waiting.
func (d *Dialer) DialWithRetry(ctx context.Context, addr gossipmesh.Address) (*Conn, error) {
	clck := clock.FromContext(ctx)
	bo := d.backoff()
	for {
		conn, err := d.Dial(ctx, addr)
		if err == nil {
			return conn, nil
		}
		next := bo.NextBackOff()
		if next == backoff.Stop {
			return nil, err
		}
		d.logger.WithError(err).WithFields(logrus.Fields{
			"address": addr.String(),
			"wait":    next,
		}).Warn("Dial failed, retrying")
		timer := clck.NewTimer(next)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
}
