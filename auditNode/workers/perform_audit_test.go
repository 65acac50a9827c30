package workers

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pushchain/push-audit-node/auditNode/analyzer"
	"github.com/pushchain/push-audit-node/auditNode/compiler"
	"github.com/pushchain/push-audit-node/auditNode/config"
	"github.com/pushchain/push-audit-node/auditNode/eventstore"
	"github.com/pushchain/push-audit-node/auditNode/report"
	"github.com/pushchain/push-audit-node/auditNode/store"
	"github.com/pushchain/push-audit-node/auditNode/upload"
)

const contractSource = "pragma solidity ^0.4.24;\ncontract A { function f() public {} }\n"

// writeAnalyzer creates an analyzer wrapper whose `once` prints output and touches marker.
func writeAnalyzer(t *testing.T, name, output, marker string) config.AnalyzerConfig {
	dir := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	once := "#!/bin/sh\ntouch '" + marker + "'\ncat <<'JSON'\n" + output + "\nJSON\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "once"), []byte(once), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "metadata"), []byte("#!/bin/sh\necho '{\"name\":\""+name+"\"}'\n"), 0o755))
	return config.AnalyzerConfig{Name: name, WrapperDir: dir, TimeoutSeconds: 5}
}

type auditFixture struct {
	store    *eventstore.Store
	auditor  *Auditor
	codec    *report.Codec
	workDir  string
	uploads  string
	marker   string
	contract string
}

func newAuditFixture(t *testing.T, solcPath string) *auditFixture {
	f := &auditFixture{
		store:   setupTestStore(t),
		codec:   newTestCodec(t),
		workDir: t.TempDir(),
		uploads: t.TempDir(),
		marker:  filepath.Join(t.TempDir(), "ran"),
	}
	f.contract = filepath.Join(t.TempDir(), "A.sol")
	require.NoError(t, os.WriteFile(f.contract, []byte(contractSource), 0o644))

	runner := analyzer.NewRunner([]config.AnalyzerConfig{
		writeAnalyzer(t, "mythril",
			`{"status":"success","potential_vulnerabilities":[{"type":"reentrancy","instances":[{"start_line":2}]}]}`, f.marker),
		writeAnalyzer(t, "securify", `{"status":"success"}`, f.marker),
	}, testVulnTypes, zerolog.Nop())

	f.auditor = NewAuditor(PerformAuditConfig{
		Store:         f.store,
		Ledger:        newFakeLedger(),
		Runner:        runner,
		Compiler:      compiler.New(solcPath, time.Second, zerolog.Nop()),
		Codec:         f.codec,
		Uploader:      upload.NewLocal(f.uploads, config.UploadConfig{}, zerolog.Nop()),
		Metrics:       newTestMetrics(),
		Logger:        zerolog.Nop(),
		WorkDir:       f.workDir,
		FileRoot:      filepath.Dir(f.contract),
		ReportVersion: "2.0.1",
	})
	return f
}

func (f *auditFixture) add(t *testing.T, id uint64, uri string) {
	_, err := f.store.AddIfAbsent(context.Background(), &store.AuditEvent{
		RequestID:        id,
		ContractURI:      uri,
		Requestor:        "0xrequestor",
		AssignedBlockNbr: 10,
	})
	require.NoError(t, err)
}

func TestAuditor_Success(t *testing.T) {
	ctx := context.Background()
	f := newAuditFixture(t, "")
	f.add(t, 1, "file://"+f.contract)

	require.NoError(t, f.auditor.performAudits(ctx))

	ev := getEvent(t, f.store, 1)
	require.Equal(t, store.StatusToBeSubmitted, ev.Status, ev.StatusInfo)
	assert.Equal(t, uint8(report.AuditStateSuccess), ev.AuditState)
	assert.True(t, strings.HasPrefix(ev.AuditURI, "file://"))
	assert.Len(t, ev.AuditHash, 64)
	assert.Contains(t, ev.FullReport, `"request_id":1`)

	decoded, err := f.codec.Decode(ev.CompressedReport)
	require.NoError(t, err)
	sum := sha256.Sum256([]byte(contractSource))
	assert.Equal(t, hex.EncodeToString(sum[:]), decoded.ContractHash)
	assert.Equal(t, report.StatusSuccess, decoded.Status)
	require.Len(t, decoded.AnalyzersReports, 2)
	assert.Equal(t, "mythril", decoded.AnalyzersReports[0].Analyzer.Name)
	assert.Len(t, decoded.AnalyzersReports[0].PotentialVulnerabilities, 1)

	entries, err := os.ReadDir(f.workDir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestAuditor_CompilationFailureSkipsAnalyzers(t *testing.T) {
	solc := filepath.Join(t.TempDir(), "solc")
	require.NoError(t, os.WriteFile(solc, []byte("#!/bin/sh\ncat >/dev/null\necho '{\"errors\":[{\"severity\":\"error\",\"message\":\"ParserError\"}]}'\n"), 0o755))
	f := newAuditFixture(t, solc)
	f.add(t, 1, "file://"+f.contract)

	require.NoError(t, f.auditor.performAudits(context.Background()))

	ev := getEvent(t, f.store, 1)
	require.Equal(t, store.StatusToBeSubmitted, ev.Status, ev.StatusInfo)
	assert.Equal(t, uint8(report.AuditStateError), ev.AuditState)
	assert.Contains(t, ev.FullReport, "ParserError")
	assert.NoFileExists(t, f.marker)

	decoded, err := f.codec.Decode(ev.CompressedReport)
	require.NoError(t, err)
	assert.Equal(t, report.StatusError, decoded.Status)
	assert.Empty(t, decoded.AnalyzersReports)
}

func TestAuditor_UnreachableContractFailsEvent(t *testing.T) {
	f := newAuditFixture(t, "")
	f.add(t, 1, "file:///nonexistent/dir/A.sol")

	require.NoError(t, f.auditor.performAudits(context.Background()))

	ev := getEvent(t, f.store, 1)
	assert.Equal(t, store.StatusError, ev.Status)
	assert.Contains(t, ev.StatusInfo, "audit failed")
	assert.NoFileExists(t, f.marker)
}

func TestAuditor_ContractOutsideFileRootFailsEvent(t *testing.T) {
	f := newAuditFixture(t, "")
	secret := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(secret, []byte(`{"account_private_key_hex":"00"}`), 0o600))
	f.add(t, 1, "file://"+secret)

	require.NoError(t, f.auditor.performAudits(context.Background()))

	ev := getEvent(t, f.store, 1)
	assert.Equal(t, store.StatusError, ev.Status)
	assert.Contains(t, ev.StatusInfo, "outside the allowed source root")
	assert.NoFileExists(t, f.marker)

	uploaded, err := os.ReadDir(f.uploads)
	require.NoError(t, err)
	assert.Empty(t, uploaded)
}
