package workers

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/rs/zerolog"

	"github.com/pushchain/push-audit-node/auditNode/chain"
	"github.com/pushchain/push-audit-node/auditNode/eventstore"
	"github.com/pushchain/push-audit-node/auditNode/metrics"
	"github.com/pushchain/push-audit-node/auditNode/report"
	"github.com/pushchain/push-audit-node/auditNode/store"
)

// MonitorSubmissionConfig holds configuration for the MonitorSubmission worker.
type MonitorSubmissionConfig struct {
	Store   *eventstore.Store
	Ledger  Ledger
	Codec   *report.Codec
	Metrics *metrics.Metrics
	Logger  zerolog.Logger

	Interval              time.Duration
	TimeoutLimitBlocks    uint64 // Blocks an event may wait for finality, counted from assignment or submission
	MaxSubmissionAttempts int
	PoliceConfirmations   uint64 // Depth at which a police submission is final
}

// Monitor finalizes submitted events, resubmits or fails those whose submission window
// elapsed, and times out events that never got as far as a submission.
type Monitor struct {
	*loop
	store               *eventstore.Store
	ledger              Ledger
	sender              *reportSender
	limit               uint64
	maxAttempts         int
	policeConfirmations uint64
}

// NewMonitor creates the MonitorSubmission worker.
func NewMonitor(cfg MonitorSubmissionConfig) *Monitor {
	m := &Monitor{
		store:               cfg.Store,
		ledger:              cfg.Ledger,
		limit:               cfg.TimeoutLimitBlocks,
		maxAttempts:         cfg.MaxSubmissionAttempts,
		policeConfirmations: cfg.PoliceConfirmations,
	}
	if m.maxAttempts <= 0 {
		m.maxAttempts = 1
	}
	if m.policeConfirmations == 0 {
		m.policeConfirmations = 1
	}
	m.loop = newLoop("monitor_submission", cfg.Interval, m.monitor, cfg.Metrics, cfg.Logger)
	m.sender = &reportSender{store: cfg.Store, ledger: cfg.Ledger, codec: cfg.Codec, metrics: cfg.Metrics, logger: m.logger}
	return m
}

func (m *Monitor) monitor(ctx context.Context) error {
	head, err := m.ledger.HeadBlock(ctx)
	if err != nil {
		return err
	}

	if _, err := m.store.TimeoutStale(ctx, head, m.limit, "timed out awaiting submission",
		store.StatusAssigned, store.StatusToBeSubmitted); err != nil {
		m.logger.Warn().Err(err).Msg("failed to time out stale events")
	}

	events, err := m.store.QueryByStatus(ctx, store.StatusSubmitted)
	if err != nil {
		return err
	}
	for i := range events {
		if ctx.Err() != nil {
			return nil
		}
		m.check(ctx, &events[i], head)
	}
	return nil
}

func (m *Monitor) check(ctx context.Context, ev *store.AuditEvent, head uint64) {
	log := m.logger.With().Uint64("request_id", ev.RequestID).Str("kind", string(ev.Kind)).Logger()

	final, reason, err := m.finalized(ctx, ev)
	switch {
	case err != nil:
		log.Warn().Err(err).Msg("failed to check finality")
		return
	case reason != "":
		failEvent(ctx, m.store, m.logger, ev, "submission rejected", fmt.Errorf("%s", reason))
		return
	case final:
		if _, err := m.store.Transition(ctx, ev.RequestID, store.StatusDone, "finalized"); err != nil {
			log.Error().Err(err).Msg("failed to mark event done")
		}
		return
	}

	if ev.SubmissionBlockNbr+m.limit >= head {
		return
	}
	if ev.SubmissionAttempts < m.maxAttempts {
		log.Warn().
			Int("attempts", ev.SubmissionAttempts).
			Uint64("submission_block", ev.SubmissionBlockNbr).
			Uint64("head", head).
			Msg("submission not final in time, resubmitting")
		m.sender.send(ctx, ev, fmt.Sprintf("report resubmitted (attempt %d)", ev.SubmissionAttempts+1))
		return
	}
	failEvent(ctx, m.store, m.logger, ev, "submission timed out",
		fmt.Errorf("not final %d blocks after attempt %d", m.limit, ev.SubmissionAttempts))
}

// finalized reports whether ev's submission is final. A non-empty reason means the ledger
// rejected the submission.
func (m *Monitor) finalized(ctx context.Context, ev *store.AuditEvent) (bool, string, error) {
	if ev.Kind != store.KindPoliceCheck {
		done, err := m.ledger.IsAuditFinished(ctx, ev.RequestID)
		return done, "", err
	}

	depth, receipt, err := m.ledger.TxConfirmations(ctx, common.HexToHash(ev.TxHash))
	if err != nil {
		if chain.IsNotFound(err) {
			return false, "", nil
		}
		return false, "", err
	}
	if receipt != nil && receipt.Status == types.ReceiptStatusFailed {
		return false, "police report transaction reverted", nil
	}
	return depth >= m.policeConfirmations, "", nil
}
