package workers

import (
	"context"
	"math/big"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pushchain/push-audit-node/auditNode/config"
)

func newTestGasPricer(l *fakeLedger, state *State, strategy config.GasPriceStrategy, max *big.Int) *GasPricer {
	return NewGasPricer(GasPriceConfig{
		Ledger:       l,
		State:        state,
		Metrics:      newTestMetrics(),
		Logger:       zerolog.Nop(),
		Strategy:     strategy,
		Default:      big.NewInt(20),
		Max:          max,
		SampleBlocks: 3,
	})
}

func TestGasPricer_Static(t *testing.T) {
	state := NewState(nil)
	g := newTestGasPricer(newFakeLedger(), state, config.GasPriceStatic, nil)

	require.NoError(t, g.compute(context.Background()))
	assert.Equal(t, big.NewInt(20), state.GasPrice())
}

func TestGasPricer_Dynamic(t *testing.T) {
	ctx := context.Background()

	t.Run("median of recent blocks", func(t *testing.T) {
		l := newFakeLedger()
		l.recentPrices = []*big.Int{big.NewInt(5), big.NewInt(1), big.NewInt(3), big.NewInt(4)}
		state := NewState(nil)
		require.NoError(t, newTestGasPricer(l, state, config.GasPriceDynamic, nil).compute(ctx))
		assert.Equal(t, big.NewInt(4), state.GasPrice())
	})

	t.Run("capped", func(t *testing.T) {
		l := newFakeLedger()
		l.recentPrices = []*big.Int{big.NewInt(50), big.NewInt(70), big.NewInt(60)}
		state := NewState(nil)
		require.NoError(t, newTestGasPricer(l, state, config.GasPriceDynamic, big.NewInt(30)).compute(ctx))
		assert.Equal(t, big.NewInt(30), state.GasPrice())
	})

	t.Run("empty blocks fall back to the suggestion", func(t *testing.T) {
		l := newFakeLedger()
		l.suggested = big.NewInt(7)
		state := NewState(nil)
		require.NoError(t, newTestGasPricer(l, state, config.GasPriceDynamic, nil).compute(ctx))
		assert.Equal(t, big.NewInt(7), state.GasPrice())
	})

	t.Run("recomputed only on a new block", func(t *testing.T) {
		l := newFakeLedger()
		l.recentPrices = []*big.Int{big.NewInt(9)}
		state := NewState(nil)
		g := newTestGasPricer(l, state, config.GasPriceDynamic, nil)
		require.NoError(t, g.compute(ctx))

		l.recentPrices = []*big.Int{big.NewInt(11)}
		require.NoError(t, g.compute(ctx))
		assert.Equal(t, big.NewInt(9), state.GasPrice())

		state.SetHead(1)
		require.NoError(t, g.compute(ctx))
		assert.Equal(t, big.NewInt(11), state.GasPrice())
	})
}
