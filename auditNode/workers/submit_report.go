package workers

import (
	"context"
	"encoding/hex"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/pushchain/push-audit-node/auditNode/chain"
	nodeerrors "github.com/pushchain/push-audit-node/auditNode/errors"
	"github.com/pushchain/push-audit-node/auditNode/eventstore"
	"github.com/pushchain/push-audit-node/auditNode/metrics"
	"github.com/pushchain/push-audit-node/auditNode/report"
	"github.com/pushchain/push-audit-node/auditNode/store"
	"github.com/pushchain/push-audit-node/auditNode/txmanager"
)

// SubmitReportConfig holds configuration for the SubmitReport worker.
type SubmitReportConfig struct {
	Store    *eventstore.Store
	Ledger   Ledger
	Codec    *report.Codec
	Metrics  *metrics.Metrics
	Logger   zerolog.Logger
	Interval time.Duration
}

// Submitter sends the report of every ToBeSubmitted event to the ledger.
type Submitter struct {
	*loop
	sender *reportSender
	store  *eventstore.Store
}

// NewSubmitter creates the SubmitReport worker.
func NewSubmitter(cfg SubmitReportConfig) *Submitter {
	s := &Submitter{store: cfg.Store}
	s.loop = newLoop("submit_report", cfg.Interval, s.submitReports, cfg.Metrics, cfg.Logger)
	s.sender = &reportSender{store: cfg.Store, ledger: cfg.Ledger, codec: cfg.Codec, metrics: cfg.Metrics, logger: s.logger}
	return s
}

func (s *Submitter) submitReports(ctx context.Context) error {
	events, err := s.store.QueryByStatus(ctx, store.StatusToBeSubmitted)
	if err != nil {
		return err
	}
	for i := range events {
		if ctx.Err() != nil {
			return nil
		}
		s.sender.send(ctx, &events[i], "report submitted")
	}
	return nil
}

// reportSender submits an event's stored report and records the outcome. It is shared by
// SubmitReport and the resubmission path of MonitorSubmission.
type reportSender struct {
	store   *eventstore.Store
	ledger  Ledger
	codec   *report.Codec
	metrics *metrics.Metrics
	logger  zerolog.Logger
}

// send submits ev's report. On success the event moves to Submitted with the transaction
// recorded; duplicates and unconfirmed or transient failures leave it for the next poll;
// anything else moves it to Error.
func (s *reportSender) send(ctx context.Context, ev *store.AuditEvent, info string) {
	log := s.logger.With().Uint64("request_id", ev.RequestID).Str("kind", string(ev.Kind)).Logger()

	method, res, err := s.transact(ctx, ev)
	if err != nil {
		if nodeerrors.IsRetryable(err) {
			log.Warn().Err(err).Msg("submission deferred")
			return
		}
		failEvent(ctx, s.store, s.logger, ev, "submission failed", err)
		return
	}
	s.metrics.Transactions.WithLabelValues(method, res.Outcome.String()).Inc()

	switch res.Outcome {
	case txmanager.OutcomeOK:
	case txmanager.OutcomeDuplicate, txmanager.OutcomeNotConfirmed, txmanager.OutcomeTransient:
		log.Info().Str("outcome", res.Outcome.String()).Str("tx_hash", res.TxHash.Hex()).AnErr("cause", res.Err).
			Msg("submission pending, leaving event for next poll")
		return
	default:
		if nodeerrors.IsRetryable(res.Err) {
			log.Warn().Err(res.Err).Msg("submission deferred")
			return
		}
		failEvent(ctx, s.store, s.logger, ev, "submission failed", res.Err)
		return
	}

	block, err := s.ledger.HeadBlock(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("failed to read head block, recording submission at assignment block")
		block = ev.AssignedBlockNbr
	}
	if _, err := s.store.Transition(ctx, ev.RequestID, store.StatusSubmitted, info,
		eventstore.WithSubmission(res.TxHash.Hex(), block),
	); err != nil {
		log.Error().Err(err).Str("tx_hash", res.TxHash.Hex()).Msg("failed to record submission")
		return
	}
	log.Info().Str("tx_hash", res.TxHash.Hex()).Uint64("submission_block", block).Msg(info)
}

func (s *reportSender) transact(ctx context.Context, ev *store.AuditEvent) (string, txmanager.Result, error) {
	compressed, err := hex.DecodeString(ev.CompressedReport)
	if err != nil {
		return "", txmanager.Result{}, errors.Wrap(err, "stored compressed report is not hex")
	}
	if ev.Kind != store.KindPoliceCheck {
		return chain.MethodSubmitReport, s.ledger.SubmitReport(ctx, ev.RequestID, ev.AuditState, compressed), nil
	}

	police, err := s.codec.DecodeBytes(compressed)
	if err != nil {
		return "", txmanager.Result{}, errors.Wrap(err, "failed to decode own report")
	}
	auditorReport, err := s.ledger.GetReport(ctx, ev.RequestID)
	if err != nil {
		return "", txmanager.Result{}, nodeerrors.NewRPCError("submit_report", "failed to fetch auditor report", err)
	}
	verdict := s.codec.VerifyAgainst(police, auditorReport)
	s.metrics.PoliceVerdicts.WithLabelValues(verdictLabel(verdict)).Inc()
	s.logger.Info().
		Uint64("request_id", ev.RequestID).
		Bool("verified", verdict.Correct).
		Float64("similarity", verdict.Similarity).
		Str("reason", verdict.Reason).
		Msg("police verdict")

	return chain.MethodSubmitPoliceReport, s.ledger.SubmitPoliceReport(ctx, ev.RequestID, compressed, verdict.Correct), nil
}

func verdictLabel(v report.Verdict) string {
	if v.Correct {
		return "correct"
	}
	return "incorrect"
}
