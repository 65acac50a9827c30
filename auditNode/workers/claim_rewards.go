package workers

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/pushchain/push-audit-node/auditNode/chain"
	"github.com/pushchain/push-audit-node/auditNode/metrics"
)

// maxClaimsPerRun bounds how many claim transactions one run may send.
const maxClaimsPerRun = 16

// ClaimRewardsConfig holds configuration for the ClaimRewards worker.
type ClaimRewardsConfig struct {
	Ledger   Ledger
	Metrics  *metrics.Metrics
	Logger   zerolog.Logger
	Interval time.Duration
}

// RewardClaimer drains the node's claimable rewards.
type RewardClaimer struct {
	*loop
	ledger Ledger
}

// NewRewardClaimer creates the ClaimRewards worker.
func NewRewardClaimer(cfg ClaimRewardsConfig) *RewardClaimer {
	c := &RewardClaimer{ledger: cfg.Ledger}
	c.loop = newLoop("claim_rewards", cfg.Interval, c.claim, cfg.Metrics, cfg.Logger)
	return c
}

// claim calls claimRewards until the ledger reports nothing left to claim.
func (c *RewardClaimer) claim(ctx context.Context) error {
	for i := 0; i < maxClaimsPerRun; i++ {
		available, err := c.ledger.HasAvailableRewards(ctx)
		if err != nil {
			return err
		}
		if !available {
			if i > 0 {
				c.logger.Info().Int("claims", i).Msg("rewards claimed")
			}
			return nil
		}

		res := c.ledger.ClaimRewards(ctx)
		c.metrics.Transactions.WithLabelValues(chain.MethodClaimRewards, res.Outcome.String()).Inc()
		if !res.OK() {
			c.logger.Warn().Str("outcome", res.Outcome.String()).AnErr("cause", res.Err).Msg("reward claim did not go through")
			return nil
		}
		if res.Reverted() {
			c.logger.Warn().Str("tx_hash", res.TxHash.Hex()).Msg("reward claim reverted")
			return nil
		}
	}
	c.logger.Info().Int("claims", maxClaimsPerRun).Msg("claim limit reached, continuing next run")
	return nil
}
