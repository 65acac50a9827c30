package metrics

import (
	"context"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/push"
)

const pushJob = "pauditd"

// Pusher forwards the registry to a Prometheus push gateway.
type Pusher struct {
	pusher *push.Pusher
}

// NewPusher creates a pusher for gatewayURL, grouping samples by node account.
// It returns nil when gatewayURL is empty.
func NewPusher(m *Metrics, gatewayURL, node string) *Pusher {
	if gatewayURL == "" {
		return nil
	}
	return &Pusher{
		pusher: push.New(gatewayURL, pushJob).Gatherer(m.Registry).Grouping("node", node),
	}
}

// Push replaces the node's samples on the gateway.
func (p *Pusher) Push(ctx context.Context) error {
	if p == nil {
		return nil
	}
	if err := p.pusher.PushContext(ctx); err != nil {
		return errors.Wrap(err, "failed to push metrics")
	}
	return nil
}
