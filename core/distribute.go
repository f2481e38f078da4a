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

type DistributeOptions struct {
	QueenKeyHex string
	Amount      decimal.Decimal // zero means funding.amount_native from config
	DryRun      bool
}

// Distribute tops up every swarm wallet from the queen wallet, sequentially
// and in index order. The queen nonce is fetched once and advanced locally
// per wallet regardless of outcome, so a failed wallet never shifts the
// nonces of later ones. A dry run previews amounts and recipients without
// signing, broadcasting, or touching the audit log.
func (e *Engine) Distribute(ctx context.Context, opts DistributeOptions) (*model.DistributionResult, error) {
	start := time.Now()

	amount := opts.Amount
	if amount.IsZero() {
		amount = e.config.Funding.Amount
	}
	if !amount.IsPositive() {
		return nil, fmt.Errorf("funding amount must be positive, got %s", amount)
	}

	queenAddress, err := chain.AddressFromKey(opts.QueenKeyHex)
	if err != nil {
		return nil, fmt.Errorf("invalid queen key: %w", err)
	}

	wallets := e.vault.List()
	if len(wallets) == 0 {
		return nil, errors.New("vault holds no wallets")
	}

	available, err := e.chain.NativeBalance(ctx, queenAddress)
	if err != nil {
		return nil, fmt.Errorf("cannot read queen balance: %w", err)
	}
	required := amount.Mul(decimal.NewFromInt(int64(len(wallets)))).Add(e.config.Funding.GasReserve)
	if available.LessThan(required) {
		return nil, &InsufficientFundsError{Required: required, Available: available}
	}

	nonce, err := e.chain.PendingNonce(ctx, queenAddress)
	if err != nil {
		return nil, fmt.Errorf("cannot read queen nonce: %w", err)
	}

	result := &model.DistributionResult{
		OperationId: uuid.New().String(),
		DryRun:      opts.DryRun,
	}

	e.log.Info("starting distribution",
		zap.String("operation_id", result.OperationId),
		zap.Int("wallet_count", len(wallets)),
		zap.String("amount", amount.String()),
		zap.Bool("dry_run", opts.DryRun))

	for i, wallet := range wallets {
		select {
		case <-ctx.Done():
			for _, rest := range wallets[i:] {
				result.Unprocessed = append(result.Unprocessed, rest.Index)
			}
			e.log.Warn("distribution cancelled",
				zap.String("operation_id", result.OperationId),
				zap.Ints("unprocessed", result.Unprocessed))
			return result, ctx.Err()
		default:
		}

		txNonce := nonce
		nonce++

		if opts.DryRun {
			result.Succeeded = append(result.Succeeded, wallet.Index)
			result.TotalSent = result.TotalSent.Add(amount)
			result.Outcomes = append(result.Outcomes, model.TransferOutcome{
				WalletIndex: wallet.Index,
				Address:     wallet.Address,
				Action:      model.ActionFund,
				Amount:      amount,
				Status:      model.StatusSuccess,
				Detail:      model.DetailDryRun,
			})
			continue
		}

		outcome, gasCost := e.fundWallet(ctx, opts.QueenKeyHex, wallet, amount, txNonce)

		record := model.AuditRecord{
			Action:      model.ActionFund,
			WalletIndex: wallet.Index,
			FromAddress: queenAddress,
			ToAddress:   wallet.Address,
			Amount:      amount,
			TxId:        outcome.TxId,
			Status:      outcome.Status,
			Detail:      outcome.Detail,
			Error:       outcome.Error,
			OperationId: result.OperationId,
		}
		if err := e.auditLog.Append(record); err != nil {
			for _, rest := range wallets[i+1:] {
				result.Unprocessed = append(result.Unprocessed, rest.Index)
			}
			return result, fmt.Errorf("audit append failed, distribution halted: %w", err)
		}

		result.Outcomes = append(result.Outcomes, outcome)
		result.TotalGas = result.TotalGas.Add(gasCost)
		if outcome.Status == model.StatusSuccess {
			result.Succeeded = append(result.Succeeded, wallet.Index)
			result.TotalSent = result.TotalSent.Add(amount)
			e.metrics.RecordTransfer(string(model.ActionFund), string(model.StatusSuccess), amount.InexactFloat64())
		} else {
			result.Failed = append(result.Failed, wallet.Index)
			e.metrics.RecordTransfer(string(model.ActionFund), string(model.StatusFailure), 0)
			e.log.Error("wallet funding failed",
				zap.Int("wallet_index", wallet.Index),
				zap.String("operation_id", result.OperationId),
				zap.String("detail", outcome.Detail),
				zap.String("error", outcome.Error))
		}
	}

	e.metrics.ObserveRun("distribute", time.Since(start).Seconds())

	e.log.Info("distribution complete",
		zap.String("operation_id", result.OperationId),
		zap.Int("succeeded", len(result.Succeeded)),
		zap.Int("failed", len(result.Failed)),
		zap.String("total_sent", result.TotalSent.String()),
		zap.String("total_gas", result.TotalGas.String()))

	return result, nil
}

func (e *Engine) fundWallet(ctx context.Context,
	queenKeyHex string,
	wallet model.SwarmWallet,
	amount decimal.Decimal,
	nonce uint64,
) (model.TransferOutcome, decimal.Decimal) {

	outcome := model.TransferOutcome{
		WalletIndex: wallet.Index,
		Address:     wallet.Address,
		Action:      model.ActionFund,
		Amount:      amount,
	}

	signed, err := e.chain.BuildAndSignTransfer(ctx, queenKeyHex, wallet.Address, amount, nonce)
	if err != nil {
		return failOutcome(outcome, "", err), decimal.Zero
	}

	txId, err := e.chain.Broadcast(ctx, signed)
	if err != nil {
		return failOutcome(outcome, "", err), decimal.Zero
	}
	outcome.TxId = txId

	receipt, err := e.chain.WaitForConfirmation(ctx, txId, e.confirmationTimeout())
	if err != nil {
		detail := ""
		if errors.Is(err, chain.ErrConfirmationTimeout) {
			detail = model.DetailPendingTimeout
		}
		return failOutcome(outcome, detail, err), decimal.Zero
	}
	if !receipt.Success {
		return failOutcome(outcome, "", fmt.Errorf("transaction %s reverted", txId)), receipt.GasCost
	}

	outcome.Status = model.StatusSuccess
	return outcome, receipt.GasCost
}

func failOutcome(outcome model.TransferOutcome, detail string, err error) model.TransferOutcome {
	outcome.Status = model.StatusFailure
	outcome.Detail = detail
	outcome.Error = err.Error()
	return outcome
}
