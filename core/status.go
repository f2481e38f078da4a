package core

import (
	"context"
	"fmt"

	"github.com/apiaryhq/swarm-vault-go/model"
	"github.com/shopspring/decimal"
)

// CollectStatus reads live native and token balances for every wallet.
func (e *Engine) CollectStatus(ctx context.Context) (*model.SwarmStatus, error) {
	wallets := e.vault.List()

	status := &model.SwarmStatus{
		WalletCount: len(wallets),
		TokenTotals: make(map[string]decimal.Decimal),
	}

	for _, wallet := range wallets {
		native, err := e.chain.NativeBalance(ctx, wallet.Address)
		if err != nil {
			return nil, fmt.Errorf("cannot read balance for wallet %d: %w", wallet.Index, err)
		}

		entry := model.WalletStatus{
			Index:         wallet.Index,
			Address:       wallet.Address,
			NativeBalance: native,
			TradeCount:    wallet.TradeCount,
			LastUsedAt:    wallet.LastUsedAt,
		}

		if len(e.config.Tokens) > 0 {
			entry.TokenBalances = make(map[string]decimal.Decimal, len(e.config.Tokens))
			for _, token := range e.config.Tokens {
				balance, err := e.chain.TokenBalance(ctx, wallet.Address, token)
				if err != nil {
					return nil, fmt.Errorf("cannot read %s balance for wallet %d: %w", token.Symbol, wallet.Index, err)
				}
				entry.TokenBalances[token.Symbol] = balance
				status.TokenTotals[token.Symbol] = status.TokenTotals[token.Symbol].Add(balance)
			}
		}

		status.TotalNative = status.TotalNative.Add(native)
		status.Wallets = append(status.Wallets, entry)
	}

	e.metrics.SetSwarmWallets(len(wallets))
	return status, nil
}
