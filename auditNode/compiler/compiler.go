// Package compiler prepares a contract for analysis: it fetches the source named by a
// request and checks that it compiles.
package compiler

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// Result is the outcome of compiling one contract.
type Result struct {
	Errors   []string
	Warnings []string
}

// Failed reports whether compilation produced errors.
func (r *Result) Failed() bool {
	return len(r.Errors) > 0
}

// Compiler invokes solc in standard JSON mode.
type Compiler struct {
	solcPath string
	timeout  time.Duration
	logger   zerolog.Logger
}

// New creates a compiler. An empty solcPath disables compilation.
func New(solcPath string, timeout time.Duration, logger zerolog.Logger) *Compiler {
	if timeout <= 0 {
		timeout = time.Minute
	}
	return &Compiler{
		solcPath: solcPath,
		timeout:  timeout,
		logger:   logger.With().Str("component", "compiler").Logger(),
	}
}

type standardInput struct {
	Language string                    `json:"language"`
	Sources  map[string]standardSource `json:"sources"`
	Settings standardSettings          `json:"settings"`
}

type standardSource struct {
	Content string `json:"content"`
}

type standardSettings struct {
	OutputSelection map[string]map[string][]string `json:"outputSelection"`
}

type standardOutput struct {
	Errors []struct {
		Severity         string `json:"severity"`
		Message          string `json:"message"`
		FormattedMessage string `json:"formattedMessage"`
	} `json:"errors"`
}

// Compile compiles the contract at path. An error is returned only when the compiler could
// not be run; compilation problems are reported in the Result.
func (c *Compiler) Compile(ctx context.Context, path string) (*Result, error) {
	if c.solcPath == "" {
		return &Result{}, nil
	}

	src, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read %s", path)
	}
	name := filepath.Base(path)
	input, err := json.Marshal(standardInput{
		Language: "Solidity",
		Sources:  map[string]standardSource{name: {Content: string(src)}},
		Settings: standardSettings{OutputSelection: map[string]map[string][]string{"*": {"": {"ast"}}}},
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to encode compiler input")
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, c.solcPath, "--standard-json")
	cmd.Dir = filepath.Dir(path)
	cmd.Stdin = bytes.NewReader(input)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return &Result{Errors: []string{"compilation timed out after " + c.timeout.String()}}, nil
		}
		return nil, errors.Wrapf(err, "solc failed: %s", strings.TrimSpace(stderr.String()))
	}

	var out standardOutput
	if err := json.Unmarshal(stdout.Bytes(), &out); err != nil {
		return nil, errors.Wrap(err, "solc output is not valid JSON")
	}

	res := &Result{}
	for _, e := range out.Errors {
		msg := e.FormattedMessage
		if msg == "" {
			msg = e.Message
		}
		if e.Severity == "error" {
			res.Errors = append(res.Errors, msg)
		} else {
			res.Warnings = append(res.Warnings, msg)
		}
	}
	c.logger.Debug().
		Str("contract", name).
		Int("errors", len(res.Errors)).
		Int("warnings", len(res.Warnings)).
		Msg("compiled contract")
	return res, nil
}
