package core

import (
	"context"
	"fmt"
)

// VerifyReadyForDissolution checks live balances on every wallet. A wallet
// offends if its native balance exceeds the reserve floor or any configured
// token balance exceeds the dust threshold. Any balance query failure fails
// the check; an unverifiable swarm is never ready.
func (e *Engine) VerifyReadyForDissolution(ctx context.Context) (bool, []int, error) {
	var offending []int
	for _, wallet := range e.vault.List() {
		holds, err := e.holdsFunds(ctx, wallet.Address)
		if err != nil {
			return false, nil, fmt.Errorf("cannot check wallet %d: %w", wallet.Index, err)
		}
		if holds {
			offending = append(offending, wallet.Index)
		}
	}
	return len(offending) == 0, offending, nil
}

func (e *Engine) holdsFunds(ctx context.Context, address string) (bool, error) {
	native, err := e.chain.NativeBalance(ctx, address)
	if err != nil {
		return false, err
	}
	if native.GreaterThan(e.config.Reclaim.Reserve) {
		return true, nil
	}

	for _, token := range e.config.Tokens {
		balance, err := e.chain.TokenBalance(ctx, address, token)
		if err != nil {
			return false, err
		}
		if balance.GreaterThan(e.config.Reclaim.TokenDust) {
			return true, nil
		}
	}
	return false, nil
}
