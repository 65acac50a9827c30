package workers

import (
	"context"
	"math/big"
	"strings"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/pushchain/push-audit-node/auditNode/chain"
	"github.com/pushchain/push-audit-node/auditNode/db"
	"github.com/pushchain/push-audit-node/auditNode/eventstore"
	"github.com/pushchain/push-audit-node/auditNode/metrics"
	"github.com/pushchain/push-audit-node/auditNode/report"
	"github.com/pushchain/push-audit-node/auditNode/store"
	"github.com/pushchain/push-audit-node/auditNode/txmanager"
)

var (
	testAnalyzers = []string{"oyente", "mythril", "securify"}
	testVulnTypes = []string{"reentrancy", "integer_overflow", "tx_origin", "other"}
	testHash      = strings.Repeat("cd", 32)
	nodeAccount   = common.HexToAddress("0x00000000000000000000000000000000000000aa")
)

type submission struct {
	requestID  uint64
	auditState uint8
	compressed []byte
	verified   bool
	police     bool
}

// fakeLedger is an in-memory marketplace. Results of write calls default to OK.
type fakeLedger struct {
	mu sync.Mutex

	head         uint64
	headErr      error
	assigned     uint64
	availability chain.RequestAvailability
	nextAudit    *chain.Assignment
	logs         []chain.AssignedLog
	logQueries   [][2]uint64
	isPolice     bool
	police       *chain.Assignment
	reports      map[uint64][]byte
	finished     map[uint64]bool
	rewards      int
	balance      *big.Int
	suggested    *big.Int
	recentPrices []*big.Int
	depths       map[common.Hash]uint64
	receipts     map[common.Hash]*types.Receipt

	claimResult  *txmanager.Result
	submitResult *txmanager.Result

	claims      int
	submissions []submission
	rewardTxs   int
	nextTx      int64
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{
		availability: chain.AvailabilityEmpty,
		reports:      make(map[uint64][]byte),
		finished:     make(map[uint64]bool),
		balance:      big.NewInt(0),
		suggested:    big.NewInt(1),
		depths:       make(map[common.Hash]uint64),
		receipts:     make(map[common.Hash]*types.Receipt),
	}
}

func (f *fakeLedger) okResult() txmanager.Result {
	f.nextTx++
	return txmanager.Result{Outcome: txmanager.OutcomeOK, TxHash: common.BigToHash(big.NewInt(f.nextTx))}
}

func (f *fakeLedger) Account() common.Address { return nodeAccount }

func (f *fakeLedger) HeadBlock(context.Context) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.head, f.headErr
}

func (f *fakeLedger) AnyRequestAvailable(context.Context) (chain.RequestAvailability, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.availability, nil
}

func (f *fakeLedger) AssignedRequestCount(context.Context) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.assigned, nil
}

func (f *fakeLedger) MyMostRecentAssignedAudit(context.Context) (*chain.Assignment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.nextAudit, nil
}

func (f *fakeLedger) AssignedSince(_ context.Context, from, to uint64) ([]chain.AssignedLog, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logQueries = append(f.logQueries, [2]uint64{from, to})
	var out []chain.AssignedLog
	for _, l := range f.logs {
		if l.Raw.BlockNumber >= from && l.Raw.BlockNumber <= to {
			out = append(out, l)
		}
	}
	return out, nil
}

func (f *fakeLedger) IsPoliceNode(context.Context) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.isPolice, nil
}

func (f *fakeLedger) NextPoliceAssignment(context.Context) (*chain.Assignment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.police, nil
}

func (f *fakeLedger) GetReport(_ context.Context, id uint64) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reports[id], nil
}

func (f *fakeLedger) IsAuditFinished(_ context.Context, id uint64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.finished[id], nil
}

func (f *fakeLedger) HasAvailableRewards(context.Context) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.rewards > 0, nil
}

func (f *fakeLedger) Balance(context.Context) (*big.Int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.balance, nil
}

func (f *fakeLedger) SuggestGasPrice(context.Context) (*big.Int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.suggested, nil
}

func (f *fakeLedger) RecentGasPrices(context.Context, int) ([]*big.Int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.recentPrices, nil
}

func (f *fakeLedger) TxConfirmations(_ context.Context, hash common.Hash) (uint64, *types.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.receipts[hash]
	if !ok {
		return 0, nil, ethereum.NotFound
	}
	return f.depths[hash], r, nil
}

func (f *fakeLedger) GetNextAuditRequest(context.Context) txmanager.Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.claims++
	if f.claimResult != nil {
		return *f.claimResult
	}
	return f.okResult()
}

func (f *fakeLedger) SubmitReport(_ context.Context, id uint64, state uint8, compressed []byte) txmanager.Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submissions = append(f.submissions, submission{requestID: id, auditState: state, compressed: compressed})
	if f.submitResult != nil {
		return *f.submitResult
	}
	return f.okResult()
}

func (f *fakeLedger) SubmitPoliceReport(_ context.Context, id uint64, compressed []byte, verified bool) txmanager.Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submissions = append(f.submissions, submission{requestID: id, compressed: compressed, verified: verified, police: true})
	if f.submitResult != nil {
		return *f.submitResult
	}
	return f.okResult()
}

func (f *fakeLedger) ClaimRewards(context.Context) txmanager.Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rewardTxs++
	if f.rewards > 0 {
		f.rewards--
	}
	return f.okResult()
}

func (f *fakeLedger) setHead(h uint64) {
	f.mu.Lock()
	f.head = h
	f.mu.Unlock()
}

func setupTestStore(t *testing.T) *eventstore.Store {
	database, err := db.OpenInMemoryDB(true)
	require.NoError(t, err)
	s := eventstore.NewStore(database, zerolog.Nop())
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func newTestCodec(t *testing.T) *report.Codec {
	reg, err := report.NewRegistry(testAnalyzers, testVulnTypes)
	require.NoError(t, err)
	return report.NewCodec(reg)
}

func addEvent(t *testing.T, s *eventstore.Store, id, block uint64, kind store.EventKind) {
	_, err := s.AddIfAbsent(context.Background(), &store.AuditEvent{
		RequestID:        id,
		Kind:             kind,
		ContractURI:      "file:///tmp/contract.sol",
		AssignedBlockNbr: block,
	})
	require.NoError(t, err)
}

func getEvent(t *testing.T, s *eventstore.Store, id uint64) *store.AuditEvent {
	ev, err := s.GetByRequestID(context.Background(), id)
	require.NoError(t, err)
	return ev
}

// findingsReport builds a report with one mythril sub-report holding the given reentrancy lines.
func findingsReport(lines ...int) *report.Report {
	r := &report.Report{
		ContractHash: testHash,
		Version:      "2.0.1",
		AuditState:   report.AuditStateSuccess,
		Status:       report.StatusSuccess,
		AnalyzersReports: []report.AnalyzerReport{
			{Analyzer: report.AnalyzerInfo{Name: "mythril"}, Status: report.StatusSuccess},
		},
	}
	if len(lines) > 0 {
		v := report.Vulnerability{Type: "reentrancy"}
		for _, l := range lines {
			v.Instances = append(v.Instances, report.Instance{StartLine: l})
		}
		r.AnalyzersReports[0].PotentialVulnerabilities = []report.Vulnerability{v}
	}
	return r
}

func newTestMetrics() *metrics.Metrics {
	return metrics.New()
}
