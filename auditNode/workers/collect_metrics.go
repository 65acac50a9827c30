package workers

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/pushchain/push-audit-node/auditNode/eventstore"
	"github.com/pushchain/push-audit-node/auditNode/metrics"
	"github.com/pushchain/push-audit-node/auditNode/store"
)

// CollectMetricsConfig holds configuration for the CollectMetrics worker.
type CollectMetricsConfig struct {
	Store    *eventstore.Store
	Ledger   Ledger
	State    *State
	Metrics  *metrics.Metrics
	Pusher   *metrics.Pusher // Optional
	Logger   zerolog.Logger
	Interval time.Duration
}

// Collector refreshes the node gauges and forwards them to the push gateway.
// Failures are logged only.
type Collector struct {
	*loop
	store  *eventstore.Store
	ledger Ledger
	state  *State
	pusher *metrics.Pusher
}

// NewCollector creates the CollectMetrics worker.
func NewCollector(cfg CollectMetricsConfig) *Collector {
	c := &Collector{
		store:  cfg.Store,
		ledger: cfg.Ledger,
		state:  cfg.State,
		pusher: cfg.Pusher,
	}
	c.loop = newLoop("collect_metrics", cfg.Interval, c.collect, cfg.Metrics, cfg.Logger)
	return c
}

func (c *Collector) collect(ctx context.Context) error {
	counts, err := c.store.CountByStatus(ctx)
	if err != nil {
		c.logger.Warn().Err(err).Msg("failed to count events")
	} else {
		for _, st := range store.Statuses {
			c.metrics.EventsByStatus.WithLabelValues(string(st.Code)).Set(float64(counts[st.Code]))
		}
	}

	c.metrics.HeadBlock.Set(float64(c.state.Head()))
	if p := c.state.GasPrice(); p != nil {
		c.metrics.GasPriceWei.Set(bigToFloat(p))
	}

	if balance, err := c.ledger.Balance(ctx); err != nil {
		c.logger.Warn().Err(err).Msg("failed to read balance")
	} else {
		c.metrics.BalanceWei.Set(bigToFloat(balance))
	}
	if assigned, err := c.ledger.AssignedRequestCount(ctx); err != nil {
		c.logger.Warn().Err(err).Msg("failed to read assigned request count")
	} else {
		c.metrics.AssignedOnNode.Set(float64(assigned))
	}

	if err := c.pusher.Push(ctx); err != nil {
		c.logger.Warn().Err(err).Msg("failed to push metrics")
	}
	return nil
}
