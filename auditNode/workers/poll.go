package workers

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"

	"github.com/pushchain/push-audit-node/auditNode/chain"
	"github.com/pushchain/push-audit-node/auditNode/eventstore"
	"github.com/pushchain/push-audit-node/auditNode/metrics"
	"github.com/pushchain/push-audit-node/auditNode/store"
	"github.com/pushchain/push-audit-node/auditNode/txmanager"
)

// PollConfig holds configuration for the Poll worker.
type PollConfig struct {
	Store   *eventstore.Store
	Ledger  Ledger
	State   *State
	Metrics *metrics.Metrics
	Logger  zerolog.Logger

	Interval            time.Duration // How often to look for a new block
	MaxAssignedRequests uint64        // Concurrency cap on assigned audits
	PoliceConfirmations uint64        // Blocks a police assignment must survive before it is acted on
	FromBlock           uint64        // First block scanned for LogAuditAssigned
}

// Poller claims new audit requests, picks up police assignments and backfills assignments
// from LogAuditAssigned events. It does its work once per new block.
type Poller struct {
	*loop
	store               *eventstore.Store
	ledger              Ledger
	state               *State
	maxAssigned         uint64
	policeConfirmations uint64

	lastHead uint64
	cursor   uint64
}

// NewPoller creates the Poll worker.
func NewPoller(cfg PollConfig) *Poller {
	p := &Poller{
		store:               cfg.Store,
		ledger:              cfg.Ledger,
		state:               cfg.State,
		maxAssigned:         cfg.MaxAssignedRequests,
		policeConfirmations: cfg.PoliceConfirmations,
		cursor:              cfg.FromBlock,
	}
	if p.maxAssigned == 0 {
		p.maxAssigned = 1
	}
	p.loop = newLoop("poll", cfg.Interval, p.poll, cfg.Metrics, cfg.Logger)
	return p
}

func (p *Poller) poll(ctx context.Context) error {
	head, err := p.ledger.HeadBlock(ctx)
	if err != nil {
		return err
	}
	if head == p.lastHead {
		return nil
	}
	p.lastHead = head
	p.state.SetHead(head)

	if err := p.backfill(ctx, head); err != nil {
		p.logger.Warn().Err(err).Uint64("from", p.cursor).Uint64("to", head).Msg("assignment backfill failed")
	}
	if err := p.claim(ctx); err != nil {
		p.logger.Warn().Err(err).Msg("failed to claim audit request")
	}
	if err := p.police(ctx, head); err != nil {
		p.logger.Warn().Err(err).Msg("failed to check police assignment")
	}
	return nil
}

// backfill records every assignment logged since the cursor, so that a request claimed just
// before a crash is not lost.
func (p *Poller) backfill(ctx context.Context, head uint64) error {
	if p.cursor > head {
		return nil
	}
	logs, err := p.ledger.AssignedSince(ctx, p.cursor, head)
	if err != nil {
		return err
	}
	for i := range logs {
		a, err := logs[i].Assignment()
		if err != nil {
			p.logger.Warn().Err(err).Msg("skipping assignment")
			continue
		}
		if err := p.add(ctx, a, store.KindAudit); err != nil {
			return err
		}
	}
	p.cursor = head + 1
	return nil
}

func (p *Poller) claim(ctx context.Context) error {
	assigned, err := p.ledger.AssignedRequestCount(ctx)
	if err != nil {
		return err
	}
	if assigned >= p.maxAssigned {
		p.logger.Debug().Uint64("assigned", assigned).Uint64("max", p.maxAssigned).Msg("assignment cap reached")
		return nil
	}

	availability, err := p.ledger.AnyRequestAvailable(ctx)
	if err != nil {
		return err
	}
	if availability != chain.AvailabilityReady {
		p.logger.Debug().Str("availability", availability.String()).Msg("no request to claim")
		return nil
	}

	res := p.ledger.GetNextAuditRequest(ctx)
	p.metrics.Transactions.WithLabelValues(chain.MethodGetNextAuditRequest, res.Outcome.String()).Inc()
	switch {
	case res.Outcome == txmanager.OutcomeDuplicate:
		p.logger.Info().Str("tx_hash", res.TxHash.Hex()).Msg("claim already pending")
		return nil
	case !res.OK():
		return res.Err
	case res.Reverted():
		p.logger.Warn().Str("tx_hash", res.TxHash.Hex()).Msg("claim reverted")
		return nil
	}

	a, err := p.ledger.MyMostRecentAssignedAudit(ctx)
	if err != nil {
		return err
	}
	return p.add(ctx, a, store.KindAudit)
}

// police records the next police assignment once it is PoliceConfirmations blocks deep.
func (p *Poller) police(ctx context.Context, head uint64) error {
	isPolice, err := p.ledger.IsPoliceNode(ctx)
	if err != nil || !isPolice {
		return err
	}
	a, err := p.ledger.NextPoliceAssignment(ctx)
	if err != nil || a == nil {
		return err
	}
	if a.BlockNumber+p.policeConfirmations > head {
		p.logger.Debug().
			Uint64("request_id", a.RequestID).
			Uint64("assigned_block", a.BlockNumber).
			Uint64("head", head).
			Msg("police assignment not confirmed yet")
		return nil
	}
	return p.add(ctx, a, store.KindPoliceCheck)
}

func (p *Poller) add(ctx context.Context, a *chain.Assignment, kind store.EventKind) error {
	ev := &store.AuditEvent{
		RequestID:        a.RequestID,
		Kind:             kind,
		ContractURI:      a.URI,
		AssignedBlockNbr: a.BlockNumber,
	}
	if a.Requestor != (common.Address{}) {
		ev.Requestor = a.Requestor.Hex()
	}
	if a.Price != nil {
		ev.Price = a.Price.String()
	}
	_, err := p.store.AddIfAbsent(ctx, ev)
	return err
}
