// Package chain is the node's boundary to the ledger: typed reads of the audit marketplace
// contract, write transactions routed through the transaction manager, and log filters.
// Every RPC goes through one shared gate.
package chain

import (
	"context"
	"crypto/ecdsa"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/pushchain/push-audit-node/auditNode/txmanager"
)

// Backend is the RPC surface the client needs. *ethclient.Client satisfies it.
type Backend interface {
	bind.ContractBackend
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	BlockNumber(ctx context.Context) (uint64, error)
	BlockByNumber(ctx context.Context, number *big.Int) (*types.Block, error)
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	ChainID(ctx context.Context) (*big.Int, error)
}

// RequestAvailability is the result of anyRequestAvailable.
type RequestAvailability uint8

const (
	AvailabilityError RequestAvailability = iota
	AvailabilityReady
	AvailabilityEmpty
	AvailabilityExceeded
	AvailabilityUnderstaked
)

func (a RequestAvailability) String() string {
	switch a {
	case AvailabilityError:
		return "error"
	case AvailabilityReady:
		return "ready"
	case AvailabilityEmpty:
		return "empty"
	case AvailabilityExceeded:
		return "exceeded"
	case AvailabilityUnderstaked:
		return "understaked"
	}
	return "unknown"
}

// Assignment is an audit or police request assigned to this node.
type Assignment struct {
	RequestID   uint64
	Requestor   common.Address
	URI         string
	Price       *big.Int
	BlockNumber uint64
}

// Client talks to the audit marketplace contract.
type Client struct {
	backend  Backend
	abi      abi.ABI
	address  common.Address
	contract *bind.BoundContract
	account  common.Address
	gate     *txmanager.Gate
	tx       *txmanager.Manager
	logger   zerolog.Logger
}

// Dial connects to rpcURL and checks the endpoint serves the expected chain id (zero skips the check).
func Dial(ctx context.Context, rpcURL string, expectedChainID int64) (*ethclient.Client, error) {
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to dial %s", rpcURL)
	}
	if expectedChainID == 0 {
		return client, nil
	}
	id, err := client.ChainID(ctx)
	if err != nil {
		client.Close()
		return nil, errors.Wrap(err, "failed to read chain id")
	}
	if id.Int64() != expectedChainID {
		client.Close()
		return nil, errors.Errorf("chain id mismatch: expected %d, endpoint serves %s", expectedChainID, id)
	}
	return client, nil
}

// NewClient creates a marketplace client for the contract at contractAddress, acting as
// the account of key.
func NewClient(
	backend Backend,
	contractAddress string,
	key *ecdsa.PrivateKey,
	chainID *big.Int,
	gate *txmanager.Gate,
	gasPrice txmanager.GasPriceFunc,
	txCfg txmanager.Config,
	logger zerolog.Logger,
) (*Client, error) {
	if !common.IsHexAddress(contractAddress) {
		return nil, errors.Errorf("invalid contract address: %s", contractAddress)
	}
	parsed, err := MarketplaceABI()
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse marketplace ABI")
	}
	auth, err := bind.NewKeyedTransactorWithChainID(key, chainID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create transactor")
	}

	address := common.HexToAddress(contractAddress)
	log := logger.With().Str("component", "chain_client").Logger()
	return &Client{
		backend:  backend,
		abi:      parsed,
		address:  address,
		contract: bind.NewBoundContract(address, parsed, backend, backend, backend),
		account:  auth.From,
		gate:     gate,
		tx:       txmanager.NewManager(backend, gate, auth, gasPrice, txCfg, logger),
		logger:   log,
	}, nil
}

// Account returns the node's address.
func (c *Client) Account() common.Address {
	return c.account
}

// ContractAddress returns the marketplace address.
func (c *Client) ContractAddress() common.Address {
	return c.address
}

func (c *Client) call(ctx context.Context, method string, args ...any) ([]any, error) {
	out, err := txmanager.Call(ctx, c.gate, func() ([]any, error) {
		var out []any
		err := c.contract.Call(&bind.CallOpts{Context: ctx, From: c.account}, &out, method, args...)
		return out, err
	})
	if err != nil {
		return nil, errors.Wrapf(err, "call %s", method)
	}
	return out, nil
}

func (c *Client) callBool(ctx context.Context, method string, args ...any) (bool, error) {
	out, err := c.call(ctx, method, args...)
	if err != nil {
		return false, err
	}
	return outBool(method, out, 0)
}

func (c *Client) callUint(ctx context.Context, method string, args ...any) (*big.Int, error) {
	out, err := c.call(ctx, method, args...)
	if err != nil {
		return nil, err
	}
	return outBig(method, out, 0)
}

func (c *Client) callUint64(ctx context.Context, method string, args ...any) (uint64, error) {
	v, err := c.callUint(ctx, method, args...)
	if err != nil {
		return 0, err
	}
	return toUint64(method, v)
}

// AnyRequestAvailable reports whether an audit request can be claimed by this node.
func (c *Client) AnyRequestAvailable(ctx context.Context) (RequestAvailability, error) {
	out, err := c.call(ctx, MethodAnyRequestAvailable)
	if err != nil {
		return AvailabilityError, err
	}
	if len(out) != 1 {
		return AvailabilityError, errors.Errorf("%s: unexpected output count %d", MethodAnyRequestAvailable, len(out))
	}
	v, ok := out[0].(uint8)
	if !ok {
		return AvailabilityError, errors.Errorf("%s: unexpected output type %T", MethodAnyRequestAvailable, out[0])
	}
	return RequestAvailability(v), nil
}

// AssignedRequestCount returns the number of requests currently assigned to this node.
func (c *Client) AssignedRequestCount(ctx context.Context) (uint64, error) {
	return c.callUint64(ctx, MethodAssignedRequestCount, c.account)
}

// MyMostRecentAssignedAudit returns the latest audit assigned to this node.
func (c *Client) MyMostRecentAssignedAudit(ctx context.Context) (*Assignment, error) {
	out, err := c.call(ctx, MethodMyMostRecentAssignedAudit)
	if err != nil {
		return nil, err
	}
	if len(out) != 5 {
		return nil, errors.Errorf("%s: unexpected output count %d", MethodMyMostRecentAssignedAudit, len(out))
	}
	id, err := outUint64(MethodMyMostRecentAssignedAudit, out, 0)
	if err != nil {
		return nil, err
	}
	requestor, ok := out[1].(common.Address)
	if !ok {
		return nil, errors.Errorf("%s: unexpected requestor type %T", MethodMyMostRecentAssignedAudit, out[1])
	}
	uri, ok := out[2].(string)
	if !ok {
		return nil, errors.Errorf("%s: unexpected uri type %T", MethodMyMostRecentAssignedAudit, out[2])
	}
	price, err := outBig(MethodMyMostRecentAssignedAudit, out, 3)
	if err != nil {
		return nil, err
	}
	block, err := outUint64(MethodMyMostRecentAssignedAudit, out, 4)
	if err != nil {
		return nil, err
	}
	return &Assignment{RequestID: id, Requestor: requestor, URI: uri, Price: price, BlockNumber: block}, nil
}

// IsPoliceNode reports whether this node verifies other nodes' reports.
func (c *Client) IsPoliceNode(ctx context.Context) (bool, error) {
	return c.callBool(ctx, MethodIsPoliceNode, c.account)
}

// NextPoliceAssignment returns the next report this node must verify, or nil if none.
func (c *Client) NextPoliceAssignment(ctx context.Context) (*Assignment, error) {
	out, err := c.call(ctx, MethodGetNextPoliceAssignment)
	if err != nil {
		return nil, err
	}
	if len(out) != 5 {
		return nil, errors.Errorf("%s: unexpected output count %d", MethodGetNextPoliceAssignment, len(out))
	}
	exists, err := outBool(MethodGetNextPoliceAssignment, out, 0)
	if err != nil || !exists {
		return nil, err
	}
	id, err := outUint64(MethodGetNextPoliceAssignment, out, 1)
	if err != nil {
		return nil, err
	}
	price, err := outBig(MethodGetNextPoliceAssignment, out, 2)
	if err != nil {
		return nil, err
	}
	uri, ok := out[3].(string)
	if !ok {
		return nil, errors.Errorf("%s: unexpected uri type %T", MethodGetNextPoliceAssignment, out[3])
	}
	block, err := outUint64(MethodGetNextPoliceAssignment, out, 4)
	if err != nil {
		return nil, err
	}
	return &Assignment{RequestID: id, URI: uri, Price: price, BlockNumber: block}, nil
}

// GetReport returns the compressed report stored on-chain for requestID.
func (c *Client) GetReport(ctx context.Context, requestID uint64) ([]byte, error) {
	out, err := c.call(ctx, MethodGetReport, new(big.Int).SetUint64(requestID))
	if err != nil {
		return nil, err
	}
	if len(out) != 1 {
		return nil, errors.Errorf("%s: unexpected output count %d", MethodGetReport, len(out))
	}
	b, ok := out[0].([]byte)
	if !ok {
		return nil, errors.Errorf("%s: unexpected output type %T", MethodGetReport, out[0])
	}
	return b, nil
}

// IsAuditFinished reports whether the marketplace considers requestID final.
func (c *Client) IsAuditFinished(ctx context.Context, requestID uint64) (bool, error) {
	return c.callBool(ctx, MethodIsAuditFinished, new(big.Int).SetUint64(requestID))
}

// HasAvailableRewards reports whether this node has rewards to claim.
func (c *Client) HasAvailableRewards(ctx context.Context) (bool, error) {
	return c.callBool(ctx, MethodHasAvailableRewards)
}

// AuditTimeoutInBlocks returns the marketplace's submission timeout.
func (c *Client) AuditTimeoutInBlocks(ctx context.Context) (uint64, error) {
	return c.callUint64(ctx, MethodGetAuditTimeoutInBlocks)
}

// MaxAssignedRequests returns the marketplace's cap on concurrent assignments.
func (c *Client) MaxAssignedRequests(ctx context.Context) (uint64, error) {
	return c.callUint64(ctx, MethodGetMaxAssignedRequests)
}

// MinAuditPrice returns the price this node currently asks.
func (c *Client) MinAuditPrice(ctx context.Context) (*big.Int, error) {
	return c.callUint(ctx, MethodGetMinAuditPrice, c.account)
}

// HasEnoughStake reports whether this node is staked enough to receive work.
func (c *Client) HasEnoughStake(ctx context.Context) (bool, error) {
	return c.callBool(ctx, MethodHasEnoughStake, c.account)
}

// IsAuditor reports whether this node is whitelisted as an auditor.
func (c *Client) IsAuditor(ctx context.Context) (bool, error) {
	return c.callBool(ctx, MethodIsAuditor, c.account)
}

// HeadBlock returns the current block number.
func (c *Client) HeadBlock(ctx context.Context) (uint64, error) {
	return c.tx.Head(ctx)
}

// Balance returns the node account's native balance.
func (c *Client) Balance(ctx context.Context) (*big.Int, error) {
	return txmanager.Call(ctx, c.gate, func() (*big.Int, error) {
		return c.backend.BalanceAt(ctx, c.account, nil)
	})
}

// SuggestGasPrice returns the endpoint's gas price suggestion.
func (c *Client) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	return txmanager.Call(ctx, c.gate, func() (*big.Int, error) {
		return c.backend.SuggestGasPrice(ctx)
	})
}

// RecentGasPrices returns the gas prices of the transactions in the last n blocks.
func (c *Client) RecentGasPrices(ctx context.Context, n int) ([]*big.Int, error) {
	head, err := c.HeadBlock(ctx)
	if err != nil {
		return nil, err
	}
	var prices []*big.Int
	for i := 0; i < n && uint64(i) <= head; i++ {
		number := new(big.Int).SetUint64(head - uint64(i))
		block, err := txmanager.Call(ctx, c.gate, func() (*types.Block, error) {
			return c.backend.BlockByNumber(ctx, number)
		})
		if err != nil {
			return nil, errors.Wrapf(err, "failed to get block %s", number)
		}
		for _, tx := range block.Transactions() {
			if p := tx.GasPrice(); p != nil && p.Sign() > 0 {
				prices = append(prices, p)
			}
		}
	}
	return prices, nil
}

// TxConfirmations returns how deep a transaction is, or ethereum.NotFound if it is not mined.
func (c *Client) TxConfirmations(ctx context.Context, hash common.Hash) (uint64, *types.Receipt, error) {
	return c.tx.Confirmations(ctx, hash)
}

// IsNotFound reports whether err means the ledger does not know the object.
func IsNotFound(err error) bool {
	return errors.Is(err, ethereum.NotFound)
}

func outBool(method string, out []any, i int) (bool, error) {
	if len(out) <= i {
		return false, errors.Errorf("%s: missing output %d", method, i)
	}
	b, ok := out[i].(bool)
	if !ok {
		return false, errors.Errorf("%s: output %d has type %T", method, i, out[i])
	}
	return b, nil
}

func outBig(method string, out []any, i int) (*big.Int, error) {
	if len(out) <= i {
		return nil, errors.Errorf("%s: missing output %d", method, i)
	}
	v, ok := out[i].(*big.Int)
	if !ok {
		return nil, errors.Errorf("%s: output %d has type %T", method, i, out[i])
	}
	return v, nil
}

func outUint64(method string, out []any, i int) (uint64, error) {
	v, err := outBig(method, out, i)
	if err != nil {
		return 0, err
	}
	return toUint64(method, v)
}

func toUint64(method string, v *big.Int) (uint64, error) {
	if v.Sign() < 0 || !v.IsUint64() {
		return 0, errors.Errorf("%s: value %s does not fit uint64", method, v)
	}
	return v.Uint64(), nil
}
