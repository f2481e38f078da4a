package rotation

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"

	"github.com/apiaryhq/swarm-vault-go/model"
	"github.com/shopspring/decimal"
)

// BalanceFunc supplies a live native balance for balance_based selection.
type BalanceFunc func(ctx context.Context, address string) (decimal.Decimal, error)

// SelectNext picks the wallet index to use for the next operation. It is a
// pure function of its inputs: the caller persists previousIndex, so the same
// call sequence reproduces the same rotation across process restarts.
func SelectNext(ctx context.Context, wallets []model.SwarmWallet, mode model.RotationMode, previousIndex int, nativeBalance BalanceFunc) (int, error) {
	if len(wallets) == 0 {
		return 0, fmt.Errorf("cannot select from an empty swarm")
	}

	switch mode {
	case model.RotationRoundRobin:
		return selectRoundRobin(len(wallets), previousIndex), nil
	case model.RotationRandom:
		return selectRandom(len(wallets))
	case model.RotationLeastUsed:
		return selectLeastUsed(wallets), nil
	case model.RotationBalanceBased:
		return selectBalanceBased(ctx, wallets, nativeBalance)
	default:
		return 0, fmt.Errorf("unknown rotation mode: %s", mode)
	}
}

func selectRoundRobin(count, previousIndex int) int {
	next := (previousIndex + 1) % count
	if next < 0 {
		next += count
	}
	return next
}

func selectRandom(count int) (int, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(int64(count)))
	if err != nil {
		return 0, fmt.Errorf("cannot draw random index: %w", err)
	}
	return int(n.Int64()), nil
}

func selectLeastUsed(wallets []model.SwarmWallet) int {
	best := 0
	for i, w := range wallets {
		if w.TradeCount < wallets[best].TradeCount {
			best = i
		}
	}
	return wallets[best].Index
}

func selectBalanceBased(ctx context.Context, wallets []model.SwarmWallet, nativeBalance BalanceFunc) (int, error) {
	if nativeBalance == nil {
		return 0, fmt.Errorf("balance_based rotation requires a balance source")
	}

	best := 0
	bestBalance := decimal.Decimal{}
	for i, w := range wallets {
		balance, err := nativeBalance(ctx, w.Address)
		if err != nil {
			return 0, fmt.Errorf("cannot query balance for wallet %d: %w", w.Index, err)
		}
		if i == 0 || balance.GreaterThan(bestBalance) {
			best = i
			bestBalance = balance
		}
	}
	return wallets[best].Index, nil
}
