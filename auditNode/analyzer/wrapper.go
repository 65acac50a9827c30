// Package analyzer runs the security analyzers. Each analyzer is a wrapper directory with
// two executables: `metadata` prints the analyzer identity as JSON and `once` analyzes one
// contract and prints an analyzer report as JSON.
package analyzer

import (
	"bytes"
	"context"
	"encoding/json"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/pushchain/push-audit-node/auditNode/config"
	nodeerrors "github.com/pushchain/push-audit-node/auditNode/errors"
	"github.com/pushchain/push-audit-node/auditNode/report"
)

const (
	metadataExecutable = "metadata"
	onceExecutable     = "once"
	metadataTimeout    = 30 * time.Second
	stderrTail         = 2048
	waitDelay          = 5 * time.Second
)

// Analyzer is one configured analyzer wrapper.
type Analyzer struct {
	cfg      config.AnalyzerConfig
	validate *validator.Validate
}

// New creates an analyzer from its configuration.
func New(cfg config.AnalyzerConfig, validate *validator.Validate) *Analyzer {
	return &Analyzer{cfg: cfg, validate: validate}
}

// Name returns the configured analyzer name.
func (a *Analyzer) Name() string {
	return a.cfg.Name
}

// Timeout returns the analyzer's time budget per contract.
func (a *Analyzer) Timeout() time.Duration {
	return a.cfg.Timeout()
}

// Metadata runs the wrapper's metadata executable.
func (a *Analyzer) Metadata(ctx context.Context) (*report.AnalyzerInfo, error) {
	ctx, cancel := context.WithTimeout(ctx, metadataTimeout)
	defer cancel()

	out, err := a.run(ctx, metadataExecutable)
	if err != nil {
		return nil, err
	}
	var info report.AnalyzerInfo
	if err := json.Unmarshal(out, &info); err != nil {
		return nil, nodeerrors.NewAnalyzerError(a.cfg.Name, "metadata is not valid JSON", err)
	}
	if info.Name == "" {
		info.Name = a.cfg.Name
	}
	info.Experimental = a.cfg.Experimental
	return &info, nil
}

// Check analyzes the contract at contractPath and returns the analyzer's report.
// Any failure is returned as an error; callers turn it into a degraded report.
func (a *Analyzer) Check(ctx context.Context, contractPath, originalFileName string) (*report.AnalyzerReport, error) {
	start := time.Now()
	out, err := a.run(ctx, onceExecutable, contractPath, originalFileName)
	if err != nil {
		return nil, err
	}

	var ar report.AnalyzerReport
	if err := json.Unmarshal(out, &ar); err != nil {
		return nil, nodeerrors.NewAnalyzerError(a.cfg.Name, "report is not valid JSON", err)
	}
	ar.Analyzer.Name = a.cfg.Name
	ar.Analyzer.Experimental = a.cfg.Experimental
	if ar.StartTime == 0 {
		ar.StartTime = start.Unix()
	}
	if ar.EndTime == 0 {
		ar.EndTime = time.Now().Unix()
	}
	if err := a.validate.Struct(&ar); err != nil {
		return nil, nodeerrors.NewAnalyzerError(a.cfg.Name, "report does not match the analyzer schema", err)
	}
	return &ar, nil
}

func (a *Analyzer) run(ctx context.Context, executable string, args ...string) ([]byte, error) {
	path := filepath.Join(a.cfg.WrapperDir, executable)
	cmd := exec.CommandContext(ctx, path, args...)
	cmd.Dir = a.cfg.WrapperDir
	cmd.WaitDelay = waitDelay
	cmd.Env = append(cmd.Environ(), "WRAPPER_HOME="+a.cfg.WrapperDir, "ANALYZER_NAME="+a.cfg.Name)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, nodeerrors.NewTimeoutError(a.cfg.Name, executable+" did not finish in time")
		}
		msg := strings.TrimSpace(tail(stderr.String(), stderrTail))
		return nil, nodeerrors.NewAnalyzerError(a.cfg.Name, executable+" failed: "+msg, errors.WithStack(err))
	}
	return stdout.Bytes(), nil
}

func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
