// Package workers contains the polling loops that drive audit events through their lifecycle:
// Poll, PerformAudit, SubmitReport, MonitorSubmission, ComputeGasPrice, ClaimRewards and
// CollectMetrics. Each worker owns one step function and runs it on its own goroutine.
package workers

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/pushchain/push-audit-node/auditNode/chain"
	"github.com/pushchain/push-audit-node/auditNode/txmanager"
)

// Ledger is the marketplace surface the workers use. *chain.Client satisfies it.
type Ledger interface {
	Account() common.Address
	HeadBlock(ctx context.Context) (uint64, error)

	AnyRequestAvailable(ctx context.Context) (chain.RequestAvailability, error)
	AssignedRequestCount(ctx context.Context) (uint64, error)
	MyMostRecentAssignedAudit(ctx context.Context) (*chain.Assignment, error)
	AssignedSince(ctx context.Context, from, to uint64) ([]chain.AssignedLog, error)
	IsPoliceNode(ctx context.Context) (bool, error)
	NextPoliceAssignment(ctx context.Context) (*chain.Assignment, error)
	GetReport(ctx context.Context, requestID uint64) ([]byte, error)
	IsAuditFinished(ctx context.Context, requestID uint64) (bool, error)
	HasAvailableRewards(ctx context.Context) (bool, error)

	Balance(ctx context.Context) (*big.Int, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	RecentGasPrices(ctx context.Context, n int) ([]*big.Int, error)
	TxConfirmations(ctx context.Context, hash common.Hash) (uint64, *types.Receipt, error)

	GetNextAuditRequest(ctx context.Context) txmanager.Result
	SubmitReport(ctx context.Context, requestID uint64, auditState uint8, compressed []byte) txmanager.Result
	SubmitPoliceReport(ctx context.Context, requestID uint64, compressed []byte, verified bool) txmanager.Result
	ClaimRewards(ctx context.Context) txmanager.Result
}

var _ Ledger = (*chain.Client)(nil)
