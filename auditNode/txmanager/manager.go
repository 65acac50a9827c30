// Package txmanager sends ledger write transactions reliably: it picks nonces, recovers from
// nonce races, recognises duplicates and waits for reorg-safe confirmation.
package txmanager

import (
	"context"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	nodeerrors "github.com/pushchain/push-audit-node/auditNode/errors"
)

const (
	errUnderpriced  = "replacement transaction underpriced"
	errNonceTooLow  = "nonce too low"
	errKnownTx      = "known transaction"
	errAlreadyKnown = "already known"
)

// ErrNotConfirmed is the cause of an OutcomeNotConfirmed result.
var ErrNotConfirmed = errors.New("transaction not confirmed")

// Backend is the ledger surface the manager needs. *ethclient.Client satisfies it.
type Backend interface {
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	BlockNumber(ctx context.Context) (uint64, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
}

// BuildFunc creates the signed transaction for one attempt. opts carries the nonce, gas
// price and gas limit chosen by the manager and has NoSend set.
type BuildFunc func(opts *bind.TransactOpts) (*types.Transaction, error)

// GasPriceFunc returns the gas price to use for the next attempt; nil lets the builder decide.
type GasPriceFunc func() *big.Int

// Config holds the transaction reliability settings.
type Config struct {
	Attempts       int           // Broadcast attempts before giving up
	GasLimit       uint64        // Zero means estimate
	ReceiptTimeout time.Duration // Bound on waiting for a receipt
	PollInterval   time.Duration // Receipt and confirmation polling period
	Confirmations  uint64        // Depth required before a receipt is trusted
	RetryDelay     time.Duration // Base delay between retryable broadcast failures
}

// Manager sends transactions from one account.
type Manager struct {
	backend  Backend
	gate     *Gate
	auth     *bind.TransactOpts
	gasPrice GasPriceFunc
	cfg      Config
	logger   zerolog.Logger

	// sendMu keeps nonce selection and broadcast of one transaction together.
	sendMu sync.Mutex
}

// NewManager creates a transaction manager. auth provides the sender and signer.
func NewManager(backend Backend, gate *Gate, auth *bind.TransactOpts, gasPrice GasPriceFunc, cfg Config, logger zerolog.Logger) *Manager {
	if cfg.Attempts <= 0 {
		cfg.Attempts = 1
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	if cfg.ReceiptTimeout <= 0 {
		cfg.ReceiptTimeout = 2 * time.Minute
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 500 * time.Millisecond
	}
	if gasPrice == nil {
		gasPrice = func() *big.Int { return nil }
	}
	return &Manager{
		backend:  backend,
		gate:     gate,
		auth:     auth,
		gasPrice: gasPrice,
		cfg:      cfg,
		logger:   logger.With().Str("component", "tx_manager").Logger(),
	}
}

// From returns the sending account.
func (m *Manager) From() common.Address {
	return m.auth.From
}

// Transact broadcasts the transaction produced by build. When waitReceipt is set it also
// waits for the receipt and, with a positive confirmation depth, for that depth.
func (m *Manager) Transact(ctx context.Context, method string, build BuildFunc, waitReceipt bool) Result {
	log := m.logger.With().Str("method", method).Logger()

	tx, res := m.broadcast(ctx, log, build)
	if res != nil {
		return *res
	}
	log.Info().Str("tx_hash", tx.Hash().Hex()).Uint64("nonce", tx.Nonce()).Msg("transaction broadcast")

	if !waitReceipt {
		return Result{Outcome: OutcomeOK, TxHash: tx.Hash()}
	}

	receipt, err := m.waitReceipt(ctx, tx.Hash())
	if err != nil {
		return Result{Outcome: OutcomeNotConfirmed, TxHash: tx.Hash(), Err: err}
	}
	if receipt.Status == types.ReceiptStatusFailed {
		log.Warn().
			Str("tx_hash", tx.Hash().Hex()).
			Uint64("block", receipt.BlockNumber.Uint64()).
			Msg("transaction execution failed on-chain")
	}

	if m.cfg.Confirmations > 0 {
		receipt, err = m.waitConfirmed(ctx, tx.Hash(), receipt)
		if err != nil {
			return Result{Outcome: OutcomeNotConfirmed, TxHash: tx.Hash(), Err: err}
		}
	}
	return Result{Outcome: OutcomeOK, TxHash: tx.Hash(), Receipt: receipt}
}

func (m *Manager) broadcast(ctx context.Context, log zerolog.Logger, build BuildFunc) (*types.Transaction, *Result) {
	m.sendMu.Lock()
	defer m.sendMu.Unlock()

	nonce, err := m.pendingNonce(ctx)
	if err != nil {
		return nil, transient(nodeerrors.NewRPCError("tx_manager", "failed to get pending nonce", err))
	}

	var lastErr error
	for attempt := 1; attempt <= m.cfg.Attempts; attempt++ {
		// Building may estimate gas or look up contract code, so it holds the gate too.
		tx, err := Call(ctx, m.gate, func() (*types.Transaction, error) {
			return build(m.opts(ctx, nonce))
		})
		if err != nil {
			if ctx.Err() != nil || nodeerrors.IsRetryable(err) {
				return nil, transient(nodeerrors.NewRPCError("tx_manager", "failed to build transaction", err))
			}
			return nil, &Result{Outcome: OutcomeFatal, Err: errors.Wrap(err, "failed to build transaction")}
		}

		err = m.gate.Do(ctx, func() error { return m.backend.SendTransaction(ctx, tx) })
		if err == nil {
			return tx, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}

		msg := strings.ToLower(err.Error())
		switch {
		case strings.Contains(msg, errKnownTx) || strings.Contains(msg, errAlreadyKnown):
			log.Info().Str("tx_hash", tx.Hash().Hex()).Msg("transaction already known, treating as duplicate")
			return nil, &Result{Outcome: OutcomeDuplicate, TxHash: tx.Hash(), Err: err}

		case strings.Contains(msg, errUnderpriced):
			// Our own earlier transaction still holds this nonce.
			log.Warn().Uint64("nonce", nonce).Int("attempt", attempt).Msg("replacement underpriced, moving to next nonce")
			nonce++

		case strings.Contains(msg, errNonceTooLow):
			log.Warn().Uint64("nonce", nonce).Int("attempt", attempt).Msg("nonce too low, refreshing")
			fresh, nerr := m.pendingNonce(ctx)
			if nerr != nil {
				lastErr = errors.Wrap(nerr, "failed to refresh nonce")
				continue
			}
			if fresh <= nonce {
				fresh = nonce + 1
			}
			nonce = fresh

		case nodeerrors.IsRetryable(err):
			log.Warn().Err(err).Int("attempt", attempt).Msg("retryable broadcast failure")
			if attempt < m.cfg.Attempts {
				if serr := sleep(ctx, nodeerrors.ExponentialBackoff(attempt-1, m.cfg.RetryDelay, 30*time.Second)); serr != nil {
					return nil, transient(nodeerrors.NewRPCError("tx_manager", "broadcast interrupted", lastErr))
				}
			}

		default:
			return nil, &Result{
				Outcome: OutcomeFatal,
				Err:     nodeerrors.NewTransactionError("tx_manager", "broadcast failed", err),
			}
		}
	}

	// Only provider failures and nonce conflicts get here.
	return nil, transient(nodeerrors.NewRPCError("tx_manager", "broadcast attempts exhausted", lastErr))
}

func transient(err error) *Result {
	return &Result{Outcome: OutcomeTransient, Err: err}
}

func (m *Manager) opts(ctx context.Context, nonce uint64) *bind.TransactOpts {
	return &bind.TransactOpts{
		From:     m.auth.From,
		Signer:   m.auth.Signer,
		Nonce:    new(big.Int).SetUint64(nonce),
		GasPrice: m.gasPrice(),
		GasLimit: m.cfg.GasLimit,
		Context:  ctx,
		NoSend:   true,
	}
}

func (m *Manager) pendingNonce(ctx context.Context) (uint64, error) {
	return Call(ctx, m.gate, func() (uint64, error) {
		return m.backend.PendingNonceAt(ctx, m.auth.From)
	})
}

func (m *Manager) receipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	return Call(ctx, m.gate, func() (*types.Receipt, error) {
		return m.backend.TransactionReceipt(ctx, hash)
	})
}

// Head returns the current block number through the gate.
func (m *Manager) Head(ctx context.Context) (uint64, error) {
	return Call(ctx, m.gate, func() (uint64, error) {
		return m.backend.BlockNumber(ctx)
	})
}

func (m *Manager) waitReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	ctx, cancel := context.WithTimeout(ctx, m.cfg.ReceiptTimeout)
	defer cancel()

	for {
		receipt, err := m.receipt(ctx, hash)
		if err == nil {
			return receipt, nil
		}
		if !errors.Is(err, ethereum.NotFound) {
			m.logger.Debug().Err(err).Str("tx_hash", hash.Hex()).Msg("receipt query failed")
		}
		if serr := sleep(ctx, m.cfg.PollInterval); serr != nil {
			return nil, errors.Wrapf(ErrNotConfirmed, "no receipt for %s", hash.Hex())
		}
	}
}

// waitConfirmed polls until the receipt's block is Confirmations deep on the canonical chain.
// It gives up once 3*Confirmations blocks pass after inclusion, the transaction disappears,
// or ReceiptTimeout elapses.
func (m *Manager) waitConfirmed(ctx context.Context, hash common.Hash, receipt *types.Receipt) (*types.Receipt, error) {
	parent := ctx
	ctx, cancel := context.WithTimeout(ctx, m.cfg.ReceiptTimeout)
	defer cancel()

	depth := m.cfg.Confirmations
	deadline := receipt.BlockNumber.Uint64() + 3*depth

	for {
		head, err := m.Head(ctx)
		if err != nil && ctx.Err() != nil {
			break
		}
		if err == nil {
			confirmed, current, cerr := m.checkDepth(ctx, hash, head, depth)
			switch {
			case cerr != nil:
				return nil, cerr
			case confirmed:
				return current, nil
			case head > deadline:
				return nil, errors.Wrapf(ErrNotConfirmed, "%s not %d blocks deep by block %d", hash.Hex(), depth, deadline)
			}
		}
		if serr := sleep(ctx, m.cfg.PollInterval); serr != nil {
			break
		}
	}
	if parent.Err() != nil {
		return nil, errors.Wrap(parent.Err(), "waiting for confirmations")
	}
	return nil, errors.Wrapf(ErrNotConfirmed, "%s not %d blocks deep within %s", hash.Hex(), depth, m.cfg.ReceiptTimeout)
}

// checkDepth re-reads the receipt and verifies its block is still canonical and deep enough.
func (m *Manager) checkDepth(ctx context.Context, hash common.Hash, head, depth uint64) (bool, *types.Receipt, error) {
	receipt, err := m.receipt(ctx, hash)
	if errors.Is(err, ethereum.NotFound) {
		return false, nil, errors.Wrapf(ErrNotConfirmed, "%s disappeared from the chain", hash.Hex())
	}
	if err != nil {
		return false, nil, nil
	}

	included := receipt.BlockNumber.Uint64()
	if head < included || head-included < depth {
		return false, receipt, nil
	}

	header, err := Call(ctx, m.gate, func() (*types.Header, error) {
		return m.backend.HeaderByNumber(ctx, receipt.BlockNumber)
	})
	if err != nil {
		return false, receipt, nil
	}
	if header.Hash() != receipt.BlockHash {
		m.logger.Warn().
			Str("tx_hash", hash.Hex()).
			Uint64("block", included).
			Msg("receipt block is no longer canonical")
		return false, receipt, nil
	}
	return true, receipt, nil
}

// Confirmations returns how many blocks deep hash is on the canonical chain, with its receipt.
// A transaction that is not mined yields ethereum.NotFound.
func (m *Manager) Confirmations(ctx context.Context, hash common.Hash) (uint64, *types.Receipt, error) {
	receipt, err := m.receipt(ctx, hash)
	if err != nil {
		return 0, nil, err
	}
	head, err := m.Head(ctx)
	if err != nil {
		return 0, nil, err
	}
	included := receipt.BlockNumber.Uint64()
	if head < included {
		return 0, receipt, nil
	}
	return head - included, receipt, nil
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
