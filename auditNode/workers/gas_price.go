package workers

import (
	"context"
	"math/big"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/pushchain/push-audit-node/auditNode/config"
	"github.com/pushchain/push-audit-node/auditNode/metrics"
)

// GasPriceConfig holds configuration for the ComputeGasPrice worker.
type GasPriceConfig struct {
	Ledger   Ledger
	State    *State
	Metrics  *metrics.Metrics
	Logger   zerolog.Logger
	Interval time.Duration

	Strategy     config.GasPriceStrategy
	Default      *big.Int // Used by the static strategy
	Max          *big.Int // Cap for the dynamic strategy; nil or zero means uncapped
	SampleBlocks int
}

// GasPricer recomputes the gas price whenever Poll has observed a new block.
type GasPricer struct {
	*loop
	ledger       Ledger
	state        *State
	strategy     config.GasPriceStrategy
	defaultPrice *big.Int
	maxPrice     *big.Int
	sampleBlocks int

	lastHead uint64
	computed bool
}

// NewGasPricer creates the ComputeGasPrice worker.
func NewGasPricer(cfg GasPriceConfig) *GasPricer {
	g := &GasPricer{
		ledger:       cfg.Ledger,
		state:        cfg.State,
		strategy:     cfg.Strategy,
		defaultPrice: cfg.Default,
		maxPrice:     cfg.Max,
		sampleBlocks: cfg.SampleBlocks,
	}
	if g.sampleBlocks <= 0 {
		g.sampleBlocks = 5
	}
	g.loop = newLoop("compute_gas_price", cfg.Interval, g.compute, cfg.Metrics, cfg.Logger)
	return g
}

func (g *GasPricer) compute(ctx context.Context) error {
	head := g.state.Head()
	if g.computed && head == g.lastHead {
		return nil
	}

	price, err := g.price(ctx)
	if err != nil {
		return err
	}
	g.lastHead, g.computed = head, true

	if g.maxPrice != nil && g.maxPrice.Sign() > 0 && price.Cmp(g.maxPrice) > 0 {
		g.logger.Warn().Str("computed", price.String()).Str("max", g.maxPrice.String()).Msg("gas price capped")
		price = new(big.Int).Set(g.maxPrice)
	}
	g.state.SetGasPrice(price)
	g.metrics.GasPriceWei.Set(bigToFloat(price))
	g.logger.Debug().Str("gas_price_wei", price.String()).Uint64("head", head).Msg("gas price updated")
	return nil
}

func (g *GasPricer) price(ctx context.Context) (*big.Int, error) {
	if g.strategy == config.GasPriceStatic && g.defaultPrice != nil {
		return new(big.Int).Set(g.defaultPrice), nil
	}
	prices, err := g.ledger.RecentGasPrices(ctx, g.sampleBlocks)
	if err != nil {
		return nil, err
	}
	if len(prices) == 0 {
		return g.ledger.SuggestGasPrice(ctx)
	}
	return median(prices), nil
}

// median returns the middle price, or the upper middle one for an even count.
func median(prices []*big.Int) *big.Int {
	sorted := make([]*big.Int, len(prices))
	copy(sorted, prices)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Cmp(sorted[j]) < 0 })
	return new(big.Int).Set(sorted[len(sorted)/2])
}

func bigToFloat(v *big.Int) float64 {
	f, _ := new(big.Float).SetInt(v).Float64()
	return f
}
