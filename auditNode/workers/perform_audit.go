package workers

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/pushchain/push-audit-node/auditNode/analyzer"
	"github.com/pushchain/push-audit-node/auditNode/compiler"
	"github.com/pushchain/push-audit-node/auditNode/eventstore"
	"github.com/pushchain/push-audit-node/auditNode/metrics"
	"github.com/pushchain/push-audit-node/auditNode/report"
	"github.com/pushchain/push-audit-node/auditNode/store"
	"github.com/pushchain/push-audit-node/auditNode/upload"
)

// PerformAuditConfig holds configuration for the PerformAudit worker.
type PerformAuditConfig struct {
	Store      *eventstore.Store
	Ledger     Ledger
	Runner     *analyzer.Runner
	Compiler   *compiler.Compiler
	Codec      *report.Codec
	Uploader   upload.Uploader
	HTTPClient *http.Client
	Metrics    *metrics.Metrics
	Logger     zerolog.Logger

	Interval      time.Duration
	WorkDir       string // Per-request scratch directories are created under it
	FileRoot      string // Only file:// contracts below it are read; "" disables file URIs
	ReportVersion string
}

// Auditor analyzes every Assigned event and moves it to ToBeSubmitted with its report.
type Auditor struct {
	*loop
	store      *eventstore.Store
	ledger     Ledger
	runner     *analyzer.Runner
	compiler   *compiler.Compiler
	codec      *report.Codec
	uploader   upload.Uploader
	httpClient *http.Client
	workDir    string
	fileRoot   string
	version    string
}

// NewAuditor creates the PerformAudit worker.
func NewAuditor(cfg PerformAuditConfig) *Auditor {
	a := &Auditor{
		store:      cfg.Store,
		ledger:     cfg.Ledger,
		runner:     cfg.Runner,
		compiler:   cfg.Compiler,
		codec:      cfg.Codec,
		uploader:   cfg.Uploader,
		httpClient: cfg.HTTPClient,
		workDir:    cfg.WorkDir,
		fileRoot:   cfg.FileRoot,
		version:    cfg.ReportVersion,
	}
	if a.uploader == nil {
		a.uploader = upload.None{}
	}
	if a.httpClient == nil {
		a.httpClient = &http.Client{Timeout: time.Minute}
	}
	if a.compiler == nil {
		a.compiler = compiler.New("", 0, cfg.Logger)
	}
	a.loop = newLoop("perform_audit", cfg.Interval, a.performAudits, cfg.Metrics, cfg.Logger)
	return a
}

func (a *Auditor) performAudits(ctx context.Context) error {
	events, err := a.store.QueryByStatus(ctx, store.StatusAssigned)
	if err != nil {
		return err
	}
	for i := range events {
		if ctx.Err() != nil {
			return nil
		}
		ev := &events[i]
		if err := a.audit(ctx, ev); err != nil {
			failEvent(ctx, a.store, a.logger, ev, "audit failed", err)
		}
	}
	return nil
}

func (a *Auditor) audit(ctx context.Context, ev *store.AuditEvent) error {
	start := time.Now()
	log := a.logger.With().Uint64("request_id", ev.RequestID).Str("kind", string(ev.Kind)).Logger()

	dir := filepath.Join(a.workDir, strconv.FormatUint(ev.RequestID, 10))
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return errors.Wrap(err, "failed to create work directory")
	}
	defer os.RemoveAll(dir)

	src, err := compiler.Fetch(ctx, a.httpClient, ev.ContractURI, dir, a.fileRoot)
	if err != nil {
		return err
	}
	if _, err := a.uploader.UploadContract(ctx, ev.RequestID, src.Body, src.FileName); err != nil {
		log.Warn().Err(err).Msg("contract upload failed")
	}

	compiled, err := a.compiler.Compile(ctx, src.Path)
	if err != nil {
		return err
	}

	r := &report.Report{
		Timestamp:           start.Unix(),
		ContractURI:         ev.ContractURI,
		ContractHash:        src.Hash,
		Requestor:           ev.Requestor,
		Auditor:             a.ledger.Account().Hex(),
		RequestID:           ev.RequestID,
		Version:             a.version,
		CompilationErrors:   compiled.Errors,
		CompilationWarnings: compiled.Warnings,
		AnalyzersReports:    []report.AnalyzerReport{},
	}
	if compiled.Failed() {
		log.Warn().Strs("errors", compiled.Errors).Msg("contract does not compile, skipping analyzers")
		r.AuditState, r.Status = report.AuditStateError, report.StatusError
	} else {
		r.AnalyzersReports = a.runner.Run(ctx, src.Path, src.FileName)
		if n := report.PatchMissing(r.AnalyzersReports, a.runner.Names()); n > 0 {
			log.Error().Int("patched", n).Msg("analyzer reports lacked status or identity")
		}
		r.AuditState, r.Status = report.Aggregate(r.AnalyzersReports)
		for _, ar := range r.AnalyzersReports {
			a.metrics.AnalyzerRuns.WithLabelValues(ar.Analyzer.Name, string(ar.Status)).Inc()
		}
	}

	compressed, err := a.codec.CompressBytes(r)
	if err != nil {
		return err
	}
	full, err := json.Marshal(r)
	if err != nil {
		return errors.Wrap(err, "failed to marshal report")
	}
	sum := sha256.Sum256(full)
	auditHash := hex.EncodeToString(sum[:])

	auditURI, err := a.uploader.UploadReport(ctx, full, auditHash)
	if err != nil {
		log.Warn().Err(err).Msg("report upload failed")
	}

	info := fmt.Sprintf("report ready: %s", r.Status)
	if _, err := a.store.Transition(ctx, ev.RequestID, store.StatusToBeSubmitted, info,
		eventstore.WithReport(uint8(r.AuditState), string(full), hex.EncodeToString(compressed)),
		eventstore.WithAuditURI(auditURI, auditHash),
	); err != nil {
		return err
	}

	a.metrics.AuditsCompleted.WithLabelValues(string(r.Status)).Inc()
	a.metrics.AnalysisDuration.Observe(time.Since(start).Seconds())
	log.Info().
		Str("status", string(r.Status)).
		Int("analyzers", len(r.AnalyzersReports)).
		Dur("took", time.Since(start)).
		Msg("audit complete")
	return nil
}

// failEvent moves ev to Error with the failure recorded in status_info.
func failEvent(ctx context.Context, s *eventstore.Store, logger zerolog.Logger, ev *store.AuditEvent, what string, cause error) {
	info := fmt.Sprintf("%s: %v", what, cause)
	logger.Error().Err(cause).Uint64("request_id", ev.RequestID).Str("status", string(ev.Status)).Msg(what)
	if _, err := s.Transition(ctx, ev.RequestID, store.StatusError, info); err != nil {
		logger.Error().Err(err).Uint64("request_id", ev.RequestID).Msg("failed to mark event as error")
	}
}
