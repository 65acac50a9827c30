package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pushchain/push-audit-node/auditNode/config"
	"github.com/pushchain/push-audit-node/auditNode/constant"
	"github.com/pushchain/push-audit-node/auditNode/db"
	"github.com/pushchain/push-audit-node/auditNode/eventstore"
	"github.com/pushchain/push-audit-node/auditNode/report"
	"github.com/pushchain/push-audit-node/auditNode/store"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestRootCommands(t *testing.T) {
	root := NewRootCmd()
	var names []string
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	for _, want := range []string{"init", "start", "events", "decode-report", "version"} {
		assert.Contains(t, names, want)
	}
}

func TestInitWritesDefaultConfig(t *testing.T) {
	home := t.TempDir()

	out, err := execute(t, "init", "--home", home)
	require.NoError(t, err)
	assert.Contains(t, out, "Config written")

	data, err := os.ReadFile(filepath.Join(home, constant.ConfigSubdir, constant.ConfigFileName))
	require.NoError(t, err)
	var cfg config.Config
	require.NoError(t, json.Unmarshal(data, &cfg))
	assert.Equal(t, home, cfg.NodeHome)
	assert.NotEmpty(t, cfg.AnalyzerRegistry)

	_, err = execute(t, "init", "--home", home)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")

	_, err = execute(t, "init", "--home", home, "--force")
	require.NoError(t, err)
}

func TestDecodeReport(t *testing.T) {
	cfg, err := config.LoadDefaultConfig()
	require.NoError(t, err)
	reg, err := report.NewRegistry(cfg.AnalyzerRegistry, cfg.VulnerabilityRegistry)
	require.NoError(t, err)

	compressed, err := report.NewCodec(reg).Compress(&report.Report{
		ContractHash: strings.Repeat("ab", 32),
		Version:      "2.0.1",
		AuditState:   report.AuditStateSuccess,
		Status:       report.StatusSuccess,
		AnalyzersReports: []report.AnalyzerReport{
			{Analyzer: report.AnalyzerInfo{Name: cfg.AnalyzerRegistry[0]}, Status: report.StatusSuccess},
		},
	})
	require.NoError(t, err)

	out, err := execute(t, "decode-report", "--home", t.TempDir(), compressed)
	require.NoError(t, err)

	var decoded report.Report
	require.NoError(t, json.Unmarshal([]byte(out), &decoded))
	assert.Equal(t, "2.0.1", decoded.Version)
	assert.Equal(t, report.StatusSuccess, decoded.Status)
	require.Len(t, decoded.AnalyzersReports, 1)
	assert.Equal(t, cfg.AnalyzerRegistry[0], decoded.AnalyzersReports[0].Analyzer.Name)

	_, err = execute(t, "decode-report", "--home", t.TempDir(), "zz")
	require.Error(t, err)
}

func TestEventsCommand(t *testing.T) {
	home := t.TempDir()

	database, err := db.OpenFileDB(filepath.Join(home, constant.DatabasesSubdir), constant.EventsDBName, true)
	require.NoError(t, err)
	s := eventstore.NewStore(database, zerolog.Nop())
	_, err = s.AddIfAbsent(context.Background(), &store.AuditEvent{RequestID: 11, AssignedBlockNbr: 5})
	require.NoError(t, err)
	_, err = s.AddIfAbsent(context.Background(), &store.AuditEvent{RequestID: 12, AssignedBlockNbr: 6})
	require.NoError(t, err)
	_, err = s.Transition(context.Background(), 12, store.StatusError, "boom")
	require.NoError(t, err)
	require.NoError(t, s.Close())

	out, err := execute(t, "events", "--home", home, "--status", "as", "-o", "json")
	require.NoError(t, err)
	var assigned []store.AuditEvent
	require.NoError(t, json.Unmarshal([]byte(out), &assigned))
	require.Len(t, assigned, 1)
	assert.Equal(t, uint64(11), assigned[0].RequestID)

	out, err = execute(t, "events", "--home", home, "12")
	require.NoError(t, err)
	assert.Contains(t, out, "request_id: 12")
	assert.Contains(t, out, "status: ER")

	_, err = execute(t, "events", "--home", home, "--status", "XX")
	require.Error(t, err)
}

func TestPrintOutputRejectsUnknownFormat(t *testing.T) {
	err := printOutput(&bytes.Buffer{}, map[string]int{"a": 1}, "toml")
	require.Error(t, err)
}
