package node

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pushchain/push-audit-node/auditNode/config"
	nodeerrors "github.com/pushchain/push-audit-node/auditNode/errors"
	"github.com/pushchain/push-audit-node/auditNode/txmanager"
)

func newTestValidator(cfg *config.Config, ledger *fakeLedger) *StartupValidator {
	sv := NewStartupValidator(zerolog.Nop(), cfg, ledger)
	sv.retry = &nodeerrors.RetryConfig{
		MaxAttempts:  3,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   2,
	}
	return sv
}

func TestEffectiveTimeout(t *testing.T) {
	tests := []struct {
		configured, onchain, want uint64
	}{
		{10, 50, 10},
		{50, 10, 10},
		{10, 0, 10},
		{0, 25, 25},
		{30, 30, 30},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, effectiveTimeout(tt.configured, tt.onchain), "configured=%d onchain=%d", tt.configured, tt.onchain)
	}
}

func TestValidateRejectsAccount(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*fakeLedger)
		wantMsg string
	}{
		{
			name:    "not whitelisted",
			mutate:  func(f *fakeLedger) { f.auditor = false },
			wantMsg: "is not a whitelisted auditor",
		},
		{
			name:    "not enough stake",
			mutate:  func(f *fakeLedger) { f.staked = false },
			wantMsg: "does not have enough stake",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ledger := newFakeLedger()
			tt.mutate(ledger)

			_, err := newTestValidator(&config.Config{SubmissionTimeoutLimitBlocks: 10}, ledger).Validate(context.Background())
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantMsg)
			assert.True(t, nodeerrors.HasCode(err, nodeerrors.ErrCodeValidation))
		})
	}
}

func TestValidateRetriesTransientReads(t *testing.T) {
	ledger := newFakeLedger()
	ledger.rpcErrs = 2

	res, err := newTestValidator(&config.Config{SubmissionTimeoutLimitBlocks: 100}, ledger).Validate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(50), res.SubmissionTimeoutBlocks)
	assert.Zero(t, ledger.rpcErrs)
}

func TestValidateGivesUpAfterRetries(t *testing.T) {
	ledger := newFakeLedger()
	ledger.rpcErrs = 10

	_, err := newTestValidator(&config.Config{}, ledger).Validate(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to check auditor whitelist")
}

func TestValidateSyncsMinPrice(t *testing.T) {
	t.Run("unset leaves price alone", func(t *testing.T) {
		ledger := newFakeLedger()
		res, err := newTestValidator(&config.Config{}, ledger).Validate(context.Background())
		require.NoError(t, err)
		assert.False(t, res.PriceUpdated)
		assert.Equal(t, "1000", res.MinPrice.String())
		assert.Empty(t, ledger.setPrices)
	})

	t.Run("equal price is not resent", func(t *testing.T) {
		ledger := newFakeLedger()
		res, err := newTestValidator(&config.Config{MinPriceWei: "1000"}, ledger).Validate(context.Background())
		require.NoError(t, err)
		assert.False(t, res.PriceUpdated)
		assert.Empty(t, ledger.setPrices)
	})

	t.Run("different price is set", func(t *testing.T) {
		ledger := newFakeLedger()
		res, err := newTestValidator(&config.Config{MinPriceWei: "2500"}, ledger).Validate(context.Background())
		require.NoError(t, err)
		assert.True(t, res.PriceUpdated)
		require.Len(t, ledger.setPrices, 1)
		assert.Equal(t, 0, ledger.setPrices[0].Cmp(big.NewInt(2500)))
	})

	t.Run("failed transaction is fatal", func(t *testing.T) {
		ledger := newFakeLedger()
		ledger.setResult = txmanager.Result{Outcome: txmanager.OutcomeFatal, Err: errors.New("insufficient funds")}
		_, err := newTestValidator(&config.Config{MinPriceWei: "2500"}, ledger).Validate(context.Background())
		require.Error(t, err)
		assert.True(t, nodeerrors.HasCode(err, nodeerrors.ErrCodeTransaction))
	})

	t.Run("malformed config value", func(t *testing.T) {
		ledger := newFakeLedger()
		_, err := newTestValidator(&config.Config{MinPriceWei: "12qsp"}, ledger).Validate(context.Background())
		require.Error(t, err)
		assert.True(t, nodeerrors.HasCode(err, nodeerrors.ErrCodeConfig))
	})
}
