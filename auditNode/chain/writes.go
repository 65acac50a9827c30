package chain

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/pushchain/push-audit-node/auditNode/txmanager"
)

func (c *Client) transact(ctx context.Context, method string, waitReceipt bool, args ...any) txmanager.Result {
	return c.tx.Transact(ctx, method, func(opts *bind.TransactOpts) (*types.Transaction, error) {
		return c.contract.Transact(opts, method, args...)
	}, waitReceipt)
}

// GetNextAuditRequest claims the next audit request. The assignment is read back with
// MyMostRecentAssignedAudit once the receipt is in.
func (c *Client) GetNextAuditRequest(ctx context.Context) txmanager.Result {
	return c.transact(ctx, MethodGetNextAuditRequest, true)
}

// SubmitReport submits the compressed report for an audit.
func (c *Client) SubmitReport(ctx context.Context, requestID uint64, auditState uint8, compressed []byte) txmanager.Result {
	return c.transact(ctx, MethodSubmitReport, false, new(big.Int).SetUint64(requestID), auditState, compressed)
}

// SubmitPoliceReport submits a police verdict on another node's report.
func (c *Client) SubmitPoliceReport(ctx context.Context, requestID uint64, compressed []byte, verified bool) txmanager.Result {
	return c.transact(ctx, MethodSubmitPoliceReport, false, new(big.Int).SetUint64(requestID), compressed, verified)
}

// ClaimRewards claims the node's available rewards.
func (c *Client) ClaimRewards(ctx context.Context) txmanager.Result {
	return c.transact(ctx, MethodClaimRewards, true)
}

// SetAuditNodePrice sets the minimum price this node accepts.
func (c *Client) SetAuditNodePrice(ctx context.Context, price *big.Int) txmanager.Result {
	return c.transact(ctx, MethodSetAuditNodePrice, true, price)
}
