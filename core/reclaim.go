package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/apiaryhq/swarm-vault-go/chain"
	"github.com/apiaryhq/swarm-vault-go/model"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type ReclaimOptions struct {
	Password      string
	TargetAddress string // empty means reclaim.target_address from config
	IncludeTokens bool
}

// Reclaim drains every swarm wallet back to the target address, tokens first,
// then native minus the transfer gas cost and the configured reserve. Wallets
// already at or below the floors get skip records instead of transactions, so
// re-running a completed reclaim broadcasts nothing.
func (e *Engine) Reclaim(ctx context.Context, opts ReclaimOptions) (*model.ReclaimResult, error) {
	start := time.Now()

	target := opts.TargetAddress
	if target == "" {
		target = e.config.Reclaim.TargetAddress
	}
	if target == "" {
		return nil, errors.New("no reclaim target address configured")
	}

	if err := e.vault.VerifyPassword(opts.Password); err != nil {
		return nil, fmt.Errorf("cannot unlock vault: %w", err)
	}

	wallets := e.vault.List()
	if len(wallets) == 0 {
		return nil, errors.New("vault holds no wallets")
	}

	gasCost, err := e.chain.EstimateTransferCost(ctx)
	if err != nil {
		return nil, fmt.Errorf("cannot estimate transfer cost: %w", err)
	}

	result := &model.ReclaimResult{OperationId: uuid.New().String()}

	e.log.Info("starting reclaim",
		zap.String("operation_id", result.OperationId),
		zap.Int("wallet_count", len(wallets)),
		zap.String("target", target),
		zap.Bool("include_tokens", opts.IncludeTokens))

	for i, wallet := range wallets {
		select {
		case <-ctx.Done():
			for _, rest := range wallets[i:] {
				result.Unprocessed = append(result.Unprocessed, rest.Index)
			}
			e.log.Warn("reclaim cancelled",
				zap.String("operation_id", result.OperationId),
				zap.Ints("unprocessed", result.Unprocessed))
			return result, ctx.Err()
		default:
		}

		if err := e.reclaimWallet(ctx, wallet, opts, target, gasCost, result); err != nil {
			for _, rest := range wallets[i+1:] {
				result.Unprocessed = append(result.Unprocessed, rest.Index)
			}
			return result, err
		}
	}

	for _, wallet := range wallets {
		holds, err := e.holdsFunds(ctx, wallet.Address)
		if err != nil || holds {
			if err != nil {
				e.log.Warn("cannot verify wallet after reclaim, treating as residual",
					zap.Int("wallet_index", wallet.Index), zap.Error(err))
			}
			result.Residual = append(result.Residual, wallet.Index)
			continue
		}
		result.Ready = append(result.Ready, wallet.Index)
	}

	e.metrics.SetResidualWallets(len(result.Residual))
	e.metrics.ObserveRun("reclaim", time.Since(start).Seconds())

	e.log.Info("reclaim complete",
		zap.String("operation_id", result.OperationId),
		zap.Int("ready", len(result.Ready)),
		zap.Int("residual", len(result.Residual)),
		zap.String("total_reclaimed", result.TotalReclaimed.String()),
		zap.String("total_gas", result.TotalGas.String()))

	return result, nil
}

// reclaimWallet moves one wallet's holdings to the target. Transfer failures
// are recorded and the sweep moves on; only an audit write failure is fatal.
func (e *Engine) reclaimWallet(ctx context.Context,
	wallet model.SwarmWallet,
	opts ReclaimOptions,
	target string,
	gasCost decimal.Decimal,
	result *model.ReclaimResult,
) error {

	address, keyHex, err := e.vault.DecryptWallet(wallet.Index, opts.Password)
	if err != nil {
		outcome := failOutcome(model.TransferOutcome{
			WalletIndex: wallet.Index,
			Address:     wallet.Address,
			Action:      model.ActionReclaimNative,
			Amount:      decimal.Zero,
		}, "", err)
		return e.recordReclaim(wallet, target, outcome, decimal.Zero, result)
	}

	nonce, err := e.chain.PendingNonce(ctx, address)
	if err != nil {
		outcome := failOutcome(model.TransferOutcome{
			WalletIndex: wallet.Index,
			Address:     wallet.Address,
			Action:      model.ActionReclaimNative,
			Amount:      decimal.Zero,
		}, "", err)
		return e.recordReclaim(wallet, target, outcome, decimal.Zero, result)
	}

	if opts.IncludeTokens {
		for _, token := range e.config.Tokens {
			outcome, spent, advance := e.reclaimToken(ctx, keyHex, address, target, token, nonce)
			if advance {
				nonce++
			}
			if err := e.recordReclaim(wallet, target, outcome, spent, result); err != nil {
				return err
			}
		}
	}

	outcome, spent := e.reclaimNative(ctx, keyHex, address, target, gasCost, nonce)
	return e.recordReclaim(wallet, target, outcome, spent, result)
}

// reclaimToken sweeps one token's full balance. The third return reports
// whether a transaction was attempted, which is what consumes the nonce.
func (e *Engine) reclaimToken(ctx context.Context,
	keyHex, address, target string,
	token model.Token,
	nonce uint64,
) (model.TransferOutcome, decimal.Decimal, bool) {

	outcome := model.TransferOutcome{
		Address:     address,
		Action:      model.ActionReclaimToken,
		TokenSymbol: token.Symbol,
		Amount:      decimal.Zero,
	}

	balance, err := e.chain.TokenBalance(ctx, address, token)
	if err != nil {
		return failOutcome(outcome, "", err), decimal.Zero, false
	}
	if balance.LessThanOrEqual(e.config.Reclaim.TokenDust) {
		outcome.Status = model.StatusSuccess
		outcome.Detail = model.DetailSkippedZeroBalance
		return outcome, decimal.Zero, false
	}

	outcome.Amount = balance
	signed, err := e.chain.BuildAndSignTokenTransfer(ctx, keyHex, target, token, balance, nonce)
	if err != nil {
		return failOutcome(outcome, "", err), decimal.Zero, false
	}

	return e.broadcastAndWait(ctx, signed, outcome)
}

// reclaimNative drains what is left after gas and the reserve floor.
func (e *Engine) reclaimNative(ctx context.Context,
	keyHex, address, target string,
	gasCost decimal.Decimal,
	nonce uint64,
) (model.TransferOutcome, decimal.Decimal) {

	outcome := model.TransferOutcome{
		Address: address,
		Action:  model.ActionReclaimNative,
		Amount:  decimal.Zero,
	}

	balance, err := e.chain.NativeBalance(ctx, address)
	if err != nil {
		return failOutcome(outcome, "", err), decimal.Zero
	}

	drain := balance.Sub(gasCost).Sub(e.config.Reclaim.Reserve)
	if !drain.IsPositive() {
		outcome.Status = model.StatusSuccess
		outcome.Detail = model.DetailSkippedZeroBalance
		return outcome, decimal.Zero
	}

	outcome.Amount = drain
	signed, err := e.chain.BuildAndSignTransfer(ctx, keyHex, target, drain, nonce)
	if err != nil {
		return failOutcome(outcome, "", err), decimal.Zero
	}

	sent, spent, _ := e.broadcastAndWait(ctx, signed, outcome)
	return sent, spent
}

func (e *Engine) broadcastAndWait(ctx context.Context,
	signed *chain.SignedTransfer,
	outcome model.TransferOutcome,
) (model.TransferOutcome, decimal.Decimal, bool) {

	txId, err := e.chain.Broadcast(ctx, signed)
	if err != nil {
		return failOutcome(outcome, "", err), decimal.Zero, false
	}
	outcome.TxId = txId

	receipt, err := e.chain.WaitForConfirmation(ctx, txId, e.confirmationTimeout())
	if err != nil {
		detail := ""
		if errors.Is(err, chain.ErrConfirmationTimeout) {
			detail = model.DetailPendingTimeout
		}
		return failOutcome(outcome, detail, err), decimal.Zero, true
	}
	if !receipt.Success {
		return failOutcome(outcome, "", fmt.Errorf("transaction %s reverted", txId)), receipt.GasCost, true
	}

	outcome.Status = model.StatusSuccess
	return outcome, receipt.GasCost, true
}

// recordReclaim appends the audit record and folds the outcome into the run
// result. The append happens before the sweep moves to anything else.
func (e *Engine) recordReclaim(wallet model.SwarmWallet,
	target string,
	outcome model.TransferOutcome,
	gasCost decimal.Decimal,
	result *model.ReclaimResult,
) error {

	outcome.WalletIndex = wallet.Index
	if outcome.Address == "" {
		outcome.Address = wallet.Address
	}

	record := model.AuditRecord{
		Action:      outcome.Action,
		WalletIndex: wallet.Index,
		FromAddress: wallet.Address,
		ToAddress:   target,
		Amount:      outcome.Amount,
		TokenSymbol: outcome.TokenSymbol,
		TxId:        outcome.TxId,
		Status:      outcome.Status,
		Detail:      outcome.Detail,
		Error:       outcome.Error,
		OperationId: result.OperationId,
	}
	if err := e.auditLog.Append(record); err != nil {
		return fmt.Errorf("audit append failed, reclaim halted: %w", err)
	}

	result.Outcomes = append(result.Outcomes, outcome)
	result.TotalGas = result.TotalGas.Add(gasCost)

	if outcome.Status == model.StatusSuccess {
		volume := 0.0
		if outcome.Action == model.ActionReclaimNative && outcome.Detail == "" {
			result.TotalReclaimed = result.TotalReclaimed.Add(outcome.Amount)
			volume = outcome.Amount.InexactFloat64()
		}
		e.metrics.RecordTransfer(string(outcome.Action), string(model.StatusSuccess), volume)
		return nil
	}

	e.metrics.RecordTransfer(string(outcome.Action), string(model.StatusFailure), 0)
	e.log.Error("reclaim transfer failed",
		zap.Int("wallet_index", wallet.Index),
		zap.String("action", string(outcome.Action)),
		zap.String("token", outcome.TokenSymbol),
		zap.String("detail", outcome.Detail),
		zap.String("error", outcome.Error))
	return nil
}
