package core

import (
	"context"
	"fmt"

	"github.com/apiaryhq/swarm-vault-go/model"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Dissolve archives the vault after proving every wallet is drained. It
// refuses with an InvariantViolationError while any wallet holds funds, and
// refuses outright when balances cannot be verified.
func (e *Engine) Dissolve(ctx context.Context) (string, error) {
	allReady, offending, err := e.VerifyReadyForDissolution(ctx)
	if err != nil {
		return "", fmt.Errorf("cannot verify swarm balances: %w", err)
	}
	if !allReady {
		return "", &InvariantViolationError{OffendingIndices: offending}
	}

	walletCount := e.vault.Count()
	archivePath, err := e.vault.Destroy()
	if err != nil {
		return "", err
	}

	record := model.AuditRecord{
		Action:      model.ActionDissolve,
		WalletIndex: -1,
		Status:      model.StatusSuccess,
		Detail:      fmt.Sprintf("archived %d wallets to %s", walletCount, archivePath),
		OperationId: uuid.New().String(),
	}
	if err := e.auditLog.Append(record); err != nil {
		return archivePath, fmt.Errorf("vault archived to %s but audit append failed: %w", archivePath, err)
	}

	e.metrics.SetSwarmWallets(0)
	e.log.Info("swarm dissolved",
		zap.Int("wallet_count", walletCount),
		zap.String("archive", archivePath))

	return archivePath, nil
}
