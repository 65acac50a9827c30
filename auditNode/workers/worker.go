package workers

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/rs/zerolog"

	nodeerrors "github.com/pushchain/push-audit-node/auditNode/errors"
	"github.com/pushchain/push-audit-node/auditNode/metrics"
)

// Worker is one named polling loop. Run blocks until ctx is cancelled and returns a non-nil
// error only if the loop died; step failures are logged and retried on the next tick.
type Worker interface {
	Name() string
	Run(ctx context.Context) error
}

// loop runs step once immediately and then on every tick of interval.
type loop struct {
	name     string
	interval time.Duration
	step     func(ctx context.Context) error
	metrics  *metrics.Metrics
	logger   zerolog.Logger
}

func (l *loop) Name() string { return l.name }

func (l *loop) Run(ctx context.Context) error {
	l.logger.Info().Dur("interval", l.interval).Msg("worker started")
	defer l.logger.Info().Msg("worker stopped")

	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	for {
		if err := l.tick(ctx); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// tick runs one step. A panic escapes as an error so the supervisor stops the node.
func (l *loop) tick(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error().Interface("panic", r).Bytes("stack", debug.Stack()).Msg("worker panicked")
			err = nodeerrors.NewInternalError(l.name, "worker panicked", fmt.Errorf("%v", r))
		}
	}()

	if ctx.Err() != nil {
		return nil
	}
	if stepErr := l.step(ctx); stepErr != nil && ctx.Err() == nil {
		l.metrics.WorkerErrors.WithLabelValues(l.name).Inc()
		l.logger.Warn().Err(stepErr).Msg("worker step failed")
	}
	return nil
}

func newLoop(name string, interval time.Duration, step func(ctx context.Context) error, m *metrics.Metrics, logger zerolog.Logger) *loop {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	return &loop{
		name:     name,
		interval: interval,
		step:     step,
		metrics:  m,
		logger:   logger.With().Str("component", name).Logger(),
	}
}
