package analyzer

import (
	"context"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/pushchain/push-audit-node/auditNode/config"
	nodeerrors "github.com/pushchain/push-audit-node/auditNode/errors"
	"github.com/pushchain/push-audit-node/auditNode/report"
)

// otherVulnerability is the registry entry unknown finding types are folded into.
const otherVulnerability = "other"

// Runner fans one contract out to every analyzer.
type Runner struct {
	analyzers  []*Analyzer
	knownTypes map[string]struct{}
	logger     zerolog.Logger
}

// NewRunner creates a runner over the configured analyzers. vulnTypes is the vulnerability
// registry; findings of other types are reported as "other" when the registry has it.
func NewRunner(cfgs []config.AnalyzerConfig, vulnTypes []string, logger zerolog.Logger) *Runner {
	v := validator.New(validator.WithRequiredStructEnabled())
	analyzers := make([]*Analyzer, 0, len(cfgs))
	for _, c := range cfgs {
		analyzers = append(analyzers, New(c, v))
	}
	known := make(map[string]struct{}, len(vulnTypes))
	for _, t := range vulnTypes {
		known[t] = struct{}{}
	}
	return &Runner{
		analyzers:  analyzers,
		knownTypes: known,
		logger:     logger.With().Str("component", "analyzer_runner").Logger(),
	}
}

// Analyzers returns the configured analyzers.
func (r *Runner) Analyzers() []*Analyzer {
	return r.analyzers
}

// Names returns the analyzer names in run order.
func (r *Runner) Names() []string {
	names := make([]string, len(r.analyzers))
	for i, a := range r.analyzers {
		names[i] = a.Name()
	}
	return names
}

// CheckMetadata runs every analyzer's metadata executable.
func (r *Runner) CheckMetadata(ctx context.Context) (map[string]*report.AnalyzerInfo, error) {
	out := make(map[string]*report.AnalyzerInfo, len(r.analyzers))
	for _, a := range r.analyzers {
		info, err := a.Metadata(ctx)
		if err != nil {
			return nil, err
		}
		out[a.Name()] = info
	}
	return out, nil
}

// Run analyzes the contract with every analyzer concurrently. Each analyzer is harvested
// when it finishes or when its own timeout expires, whichever is first; a failed or late
// analyzer yields an error or timeout report without affecting the others. The returned
// slice follows the configured analyzer order.
func (r *Runner) Run(ctx context.Context, contractPath, originalFileName string) []report.AnalyzerReport {
	var (
		mu        sync.Mutex
		results   = make([]*report.AnalyzerReport, len(r.analyzers))
		harvested = make([]bool, len(r.analyzers))
		done      = make([]chan struct{}, len(r.analyzers))
	)

	for i, a := range r.analyzers {
		done[i] = make(chan struct{})
		go func(i int, a *Analyzer) {
			defer close(done[i])
			actx, cancel := context.WithTimeout(ctx, a.Timeout())
			defer cancel()

			start := time.Now()
			ar, err := a.Check(actx, contractPath, originalFileName)
			if err != nil {
				ar = failureReport(a, err, start)
			}

			mu.Lock()
			defer mu.Unlock()
			if !harvested[i] {
				results[i] = ar
			}
		}(i, a)
	}

	for i, a := range r.analyzers {
		timer := time.NewTimer(a.Timeout() + time.Second)
		select {
		case <-done[i]:
		case <-timer.C:
		}
		timer.Stop()

		mu.Lock()
		harvested[i] = true
		if results[i] == nil {
			results[i] = timeoutReport(a, a.Timeout())
		}
		mu.Unlock()
	}

	out := make([]report.AnalyzerReport, len(results))
	for i, ar := range results {
		out[i] = *ar
		r.normalizeTypes(&out[i])
		r.logger.Info().
			Str("analyzer", out[i].Analyzer.Name).
			Str("status", string(out[i].Status)).
			Int("vulnerabilities", len(out[i].PotentialVulnerabilities)).
			Msg("analyzer finished")
	}
	return out
}

func (r *Runner) normalizeTypes(ar *report.AnalyzerReport) {
	if _, ok := r.knownTypes[otherVulnerability]; !ok {
		return
	}
	for i := range ar.PotentialVulnerabilities {
		v := &ar.PotentialVulnerabilities[i]
		if _, ok := r.knownTypes[v.Type]; !ok {
			ar.Warnings = append(ar.Warnings, "unregistered vulnerability type "+v.Type+" reported as "+otherVulnerability)
			v.Type = otherVulnerability
		}
	}
}

func failureReport(a *Analyzer, err error, start time.Time) *report.AnalyzerReport {
	if nodeerrors.HasCode(err, nodeerrors.ErrCodeTimeout) {
		return timeoutReport(a, a.Timeout())
	}
	return &report.AnalyzerReport{
		Analyzer:  report.AnalyzerInfo{Name: a.Name(), Experimental: a.cfg.Experimental},
		Status:    report.StatusError,
		Errors:    []string{err.Error()},
		StartTime: start.Unix(),
		EndTime:   time.Now().Unix(),
	}
}

func timeoutReport(a *Analyzer, timeout time.Duration) *report.AnalyzerReport {
	now := time.Now()
	return &report.AnalyzerReport{
		Analyzer:  report.AnalyzerInfo{Name: a.Name(), Experimental: a.cfg.Experimental},
		Status:    report.StatusTimeout,
		Errors:    []string{"analyzer timed out after " + timeout.String()},
		StartTime: now.Add(-timeout).Unix(),
		EndTime:   now.Unix(),
	}
}
