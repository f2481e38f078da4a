package rotation

import (
	"context"
	"fmt"
	"testing"

	"github.com/apiaryhq/swarm-vault-go/model"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func swarmOf(counts ...uint64) []model.SwarmWallet {
	wallets := make([]model.SwarmWallet, len(counts))
	for i, c := range counts {
		wallets[i] = model.SwarmWallet{
			Index:      i,
			Address:    fmt.Sprintf("0x%040d", i),
			TradeCount: c,
		}
	}
	return wallets
}

func TestRoundRobinIsDeterministic(t *testing.T) {
	wallets := swarmOf(0, 0, 0, 0)

	tests := []struct {
		name          string
		previousIndex int
		expected      int
	}{
		{name: "fresh vault starts at zero", previousIndex: -1, expected: 0},
		{name: "advances by one", previousIndex: 1, expected: 2},
		{name: "wraps at the end", previousIndex: 3, expected: 0},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			first, err := SelectNext(context.Background(), wallets, model.RotationRoundRobin, tc.previousIndex, nil)
			require.NoError(t, err)
			second, err := SelectNext(context.Background(), wallets, model.RotationRoundRobin, tc.previousIndex, nil)
			require.NoError(t, err)

			assert.Equal(t, tc.expected, first)
			assert.Equal(t, first, second, "identical inputs must yield identical output")
		})
	}
}

func TestRoundRobinVisitsEveryWalletOnce(t *testing.T) {
	wallets := swarmOf(0, 0, 0, 0, 0)

	visited := make(map[int]int)
	previous := -1
	for i := 0; i < len(wallets); i++ {
		next, err := SelectNext(context.Background(), wallets, model.RotationRoundRobin, previous, nil)
		require.NoError(t, err)
		visited[next]++
		previous = next
	}

	require.Len(t, visited, len(wallets))
	for index, hits := range visited {
		assert.Equal(t, 1, hits, "wallet %d should be visited exactly once per cycle", index)
	}
}

func TestRandomStaysInRange(t *testing.T) {
	wallets := swarmOf(0, 0, 0)

	for i := 0; i < 200; i++ {
		next, err := SelectNext(context.Background(), wallets, model.RotationRandom, -1, nil)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, next, 0)
		assert.Less(t, next, len(wallets))
	}
}

func TestLeastUsedPrefersLowestTradeCount(t *testing.T) {
	tests := []struct {
		name     string
		counts   []uint64
		expected int
	}{
		{name: "single minimum", counts: []uint64{4, 1, 3}, expected: 1},
		{name: "tie breaks to lowest index", counts: []uint64{2, 2, 2}, expected: 0},
		{name: "later minimum", counts: []uint64{5, 5, 0, 5}, expected: 2},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			next, err := SelectNext(context.Background(), swarmOf(tc.counts...), model.RotationLeastUsed, 99, nil)
			require.NoError(t, err)
			assert.Equal(t, tc.expected, next)
		})
	}
}

func TestBalanceBasedPicksRichestWallet(t *testing.T) {
	wallets := swarmOf(0, 0, 0)
	balances := map[string]decimal.Decimal{
		wallets[0].Address: decimal.RequireFromString("0.001"),
		wallets[1].Address: decimal.RequireFromString("0.5"),
		wallets[2].Address: decimal.RequireFromString("0.01"),
	}

	next, err := SelectNext(context.Background(), wallets, model.RotationBalanceBased, -1,
		func(ctx context.Context, address string) (decimal.Decimal, error) {
			return balances[address], nil
		})
	require.NoError(t, err)
	assert.Equal(t, 1, next)
}

func TestBalanceBasedErrors(t *testing.T) {
	wallets := swarmOf(0, 0)

	t.Run("missing balance source", func(t *testing.T) {
		_, err := SelectNext(context.Background(), wallets, model.RotationBalanceBased, -1, nil)
		assert.Error(t, err)
	})

	t.Run("balance query failure", func(t *testing.T) {
		_, err := SelectNext(context.Background(), wallets, model.RotationBalanceBased, -1,
			func(ctx context.Context, address string) (decimal.Decimal, error) {
				return decimal.Decimal{}, fmt.Errorf("rpc unavailable")
			})
		assert.Error(t, err)
	})
}

func TestSelectNextRejectsBadInputs(t *testing.T) {
	t.Run("empty swarm", func(t *testing.T) {
		_, err := SelectNext(context.Background(), nil, model.RotationRoundRobin, -1, nil)
		assert.Error(t, err)
	})

	t.Run("unknown mode", func(t *testing.T) {
		_, err := SelectNext(context.Background(), swarmOf(0, 0), "spiral", -1, nil)
		assert.Error(t, err)
	})
}
