package core

import (
	"context"

	"github.com/apiaryhq/swarm-vault-go/model"
	"github.com/apiaryhq/swarm-vault-go/rotation"
	"go.uber.org/zap"
)

// SelectNextWallet picks the wallet the next trading operation should use,
// per the configured rotation mode, and persists the new rotation cursor.
func (e *Engine) SelectNextWallet(ctx context.Context) (model.SwarmWallet, error) {
	wallets := e.vault.List()
	mode := model.RotationMode(e.config.Vault.RotationMode)

	index, err := rotation.SelectNext(ctx, wallets, mode, e.vault.RotationIndex(), e.chain.NativeBalance)
	if err != nil {
		return model.SwarmWallet{}, err
	}
	if err := e.vault.SetRotationIndex(index); err != nil {
		return model.SwarmWallet{}, err
	}

	e.log.Info("selected wallet",
		zap.Int("wallet_index", index),
		zap.String("address", wallets[index].Address),
		zap.String("rotation_mode", string(mode)))

	return wallets[index], nil
}

// DecryptForUse unlocks one wallet for a trading operation. The caller
// reports the use back through RecordUsage once the trade actually runs.
func (e *Engine) DecryptForUse(index int, password string) (string, string, error) {
	return e.vault.DecryptWallet(index, password)
}

// RecordUsage counts a completed trade against a wallet, which feeds
// least_used rotation.
func (e *Engine) RecordUsage(index int) error {
	if err := e.vault.RecordUsage(index); err != nil {
		return err
	}
	e.log.Info("recorded wallet usage", zap.Int("wallet_index", index))
	return nil
}
