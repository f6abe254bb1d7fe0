package fixtures

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/gossipmesh/gossipmesh"
)

// MockProbe implements a mock overlay.LivenessProbe from github.com/gossipmesh/gossipmesh/pkg/overlay
type MockProbe struct {
	TB testing.TB

	FnProbe func(ctx context.Context, addr gossipmesh.Address) error
}

func (m *MockProbe) Probe(ctx context.Context, addr gossipmesh.Address) (p0 error) {
	if m.FnProbe != nil {
		return m.FnProbe(ctx, addr)
	}
	assert.Fail(m.TB, "LivenessProbe.Probe must not be called")
	return
}
