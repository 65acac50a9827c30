package node

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"

	"github.com/pushchain/push-audit-node/auditNode/config"
	nodeerrors "github.com/pushchain/push-audit-node/auditNode/errors"
	"github.com/pushchain/push-audit-node/auditNode/txmanager"
)

// StartupLedger is the part of the marketplace contract read once before the workers start.
type StartupLedger interface {
	Account() common.Address
	IsAuditor(ctx context.Context) (bool, error)
	HasEnoughStake(ctx context.Context) (bool, error)
	AuditTimeoutInBlocks(ctx context.Context) (uint64, error)
	MinAuditPrice(ctx context.Context) (*big.Int, error)
	SetAuditNodePrice(ctx context.Context, price *big.Int) txmanager.Result
}

// StartupValidationResult holds the values derived from on-chain state at startup.
type StartupValidationResult struct {
	SubmissionTimeoutBlocks uint64
	MinPrice                *big.Int
	PriceUpdated            bool
}

// StartupValidator checks that the node may audit before any worker runs.
type StartupValidator struct {
	log    zerolog.Logger
	config *config.Config
	ledger StartupLedger
	retry  *nodeerrors.RetryConfig
}

// NewStartupValidator creates a new startup validator
func NewStartupValidator(log zerolog.Logger, cfg *config.Config, ledger StartupLedger) *StartupValidator {
	return &StartupValidator{
		log:    log.With().Str("component", "startup_validator").Logger(),
		config: cfg,
		ledger: ledger,
		retry:  nodeerrors.DefaultRetryConfig(),
	}
}

// Validate fails when the account is not a whitelisted auditor or lacks stake, derives the
// effective submission timeout and brings the on-chain minimum price in line with the config.
func (sv *StartupValidator) Validate(ctx context.Context) (*StartupValidationResult, error) {
	account := sv.ledger.Account().Hex()
	sv.log.Info().Str("account", account).Msg("validating startup requirements")

	var isAuditor bool
	if err := sv.read(ctx, func() (err error) {
		isAuditor, err = sv.ledger.IsAuditor(ctx)
		return err
	}); err != nil {
		return nil, fmt.Errorf("failed to check auditor whitelist: %w", err)
	}
	if !isAuditor {
		return nil, nodeerrors.NewValidationError("startup_validator",
			fmt.Sprintf("account %s is not a whitelisted auditor", account))
	}

	var staked bool
	if err := sv.read(ctx, func() (err error) {
		staked, err = sv.ledger.HasEnoughStake(ctx)
		return err
	}); err != nil {
		return nil, fmt.Errorf("failed to check stake: %w", err)
	}
	if !staked {
		return nil, nodeerrors.NewValidationError("startup_validator",
			fmt.Sprintf("account %s does not have enough stake", account))
	}

	var onchainTimeout uint64
	if err := sv.read(ctx, func() (err error) {
		onchainTimeout, err = sv.ledger.AuditTimeoutInBlocks(ctx)
		return err
	}); err != nil {
		return nil, fmt.Errorf("failed to read audit timeout: %w", err)
	}

	result := &StartupValidationResult{
		SubmissionTimeoutBlocks: effectiveTimeout(sv.config.SubmissionTimeoutLimitBlocks, onchainTimeout),
	}
	if result.SubmissionTimeoutBlocks != sv.config.SubmissionTimeoutLimitBlocks {
		sv.log.Warn().
			Uint64("configured", sv.config.SubmissionTimeoutLimitBlocks).
			Uint64("onchain", onchainTimeout).
			Msg("submission timeout capped by the contract")
	}

	if err := sv.syncPrice(ctx, result); err != nil {
		return nil, err
	}

	sv.log.Info().
		Uint64("submission_timeout_blocks", result.SubmissionTimeoutBlocks).
		Str("min_price", result.MinPrice.String()).
		Msg("startup requirements validated")
	return result, nil
}

func (sv *StartupValidator) syncPrice(ctx context.Context, result *StartupValidationResult) error {
	var current *big.Int
	if err := sv.read(ctx, func() (err error) {
		current, err = sv.ledger.MinAuditPrice(ctx)
		return err
	}); err != nil {
		return fmt.Errorf("failed to read minimum audit price: %w", err)
	}
	result.MinPrice = current
	if current == nil {
		result.MinPrice = new(big.Int)
	}

	if sv.config.MinPriceWei == "" {
		return nil
	}
	want, ok := new(big.Int).SetString(sv.config.MinPriceWei, 10)
	if !ok || want.Sign() < 0 {
		return nodeerrors.NewConfigError(fmt.Sprintf("invalid min_price_wei %q", sv.config.MinPriceWei))
	}
	if want.Cmp(result.MinPrice) == 0 {
		return nil
	}

	sv.log.Info().Str("from", result.MinPrice.String()).Str("to", want.String()).Msg("updating minimum audit price")
	res := sv.ledger.SetAuditNodePrice(ctx, want)
	if !res.OK() {
		return nodeerrors.NewTransactionError("startup_validator", "failed to set minimum audit price", res.Err).
			WithContext("outcome", res.Outcome.String())
	}
	if res.Reverted() {
		return nodeerrors.NewTransactionError("startup_validator", "setAuditNodePrice reverted", nil).
			WithContext("tx_hash", res.TxHash.Hex())
	}
	result.MinPrice = want
	result.PriceUpdated = true
	return nil
}

func (sv *StartupValidator) read(ctx context.Context, fn func() error) error {
	return nodeerrors.RetryWithConfig(ctx, fn, sv.retry)
}

// effectiveTimeout is the smaller of the configured and on-chain limits. A zero on-chain
// value leaves the configured one untouched.
func effectiveTimeout(configured, onchain uint64) uint64 {
	if onchain == 0 || (configured != 0 && configured <= onchain) {
		return configured
	}
	return onchain
}
