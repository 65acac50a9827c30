package chain

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/pkg/errors"

	"github.com/pushchain/push-audit-node/auditNode/txmanager"
)

// AssignedLog is a decoded LogAuditAssigned event.
type AssignedLog struct {
	RequestId          *big.Int
	Auditor            common.Address
	Requestor          common.Address
	Uri                string
	Price              *big.Int
	RequestBlockNumber *big.Int
	Raw                types.Log
}

// Assignment converts the log to an Assignment. The block of the log is used when the
// event carries no request block.
func (l *AssignedLog) Assignment() (*Assignment, error) {
	if !l.RequestId.IsUint64() {
		return nil, errors.Errorf("request id %s does not fit uint64", l.RequestId)
	}
	block := l.Raw.BlockNumber
	if l.RequestBlockNumber != nil && l.RequestBlockNumber.IsUint64() && l.RequestBlockNumber.Sign() > 0 {
		block = l.RequestBlockNumber.Uint64()
	}
	return &Assignment{
		RequestID:   l.RequestId.Uint64(),
		Requestor:   l.Requestor,
		URI:         l.Uri,
		Price:       l.Price,
		BlockNumber: block,
	}, nil
}

func (c *Client) filter(ctx context.Context, event string, from, to uint64) ([]types.Log, error) {
	ev, ok := c.abi.Events[event]
	if !ok {
		return nil, errors.Errorf("event %s not in ABI", event)
	}
	query := ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(from),
		ToBlock:   new(big.Int).SetUint64(to),
		Addresses: []common.Address{c.address},
		Topics:    [][]common.Hash{{ev.ID}, {common.BytesToHash(c.account.Bytes())}},
	}
	logs, err := txmanager.Call(ctx, c.gate, func() ([]types.Log, error) {
		return c.backend.FilterLogs(ctx, query)
	})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to filter %s logs in [%d, %d]", event, from, to)
	}
	return logs, nil
}

// AssignedSince returns the audits assigned to this node between blocks from and to, inclusive.
func (c *Client) AssignedSince(ctx context.Context, from, to uint64) ([]AssignedLog, error) {
	logs, err := c.filter(ctx, EventLogAuditAssigned, from, to)
	if err != nil {
		return nil, err
	}
	out := make([]AssignedLog, 0, len(logs))
	for _, l := range logs {
		parsed, err := c.ParseAssigned(l)
		if err != nil {
			c.logger.Warn().Err(err).Str("tx_hash", l.TxHash.Hex()).Msg("skipping undecodable assignment log")
			continue
		}
		out = append(out, *parsed)
	}
	return out, nil
}

// ParseAssigned decodes a LogAuditAssigned log.
func (c *Client) ParseAssigned(l types.Log) (*AssignedLog, error) {
	var ev AssignedLog
	if err := c.contract.UnpackLog(&ev, EventLogAuditAssigned, l); err != nil {
		return nil, errors.Wrap(err, "failed to unpack LogAuditAssigned")
	}
	ev.Raw = l
	return &ev, nil
}
