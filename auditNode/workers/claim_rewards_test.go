package workers

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRewardClaimer(t *testing.T) {
	tests := []struct {
		name    string
		rewards int
		want    int
	}{
		{name: "nothing to claim", rewards: 0, want: 0},
		{name: "drains all rewards", rewards: 3, want: 3},
		{name: "bounded per run", rewards: 100, want: maxClaimsPerRun},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := newFakeLedger()
			l.rewards = tt.rewards
			c := NewRewardClaimer(ClaimRewardsConfig{Ledger: l, Metrics: newTestMetrics(), Logger: zerolog.Nop()})

			require.NoError(t, c.claim(context.Background()))
			assert.Equal(t, tt.want, l.rewardTxs)
		})
	}
}
