package chain

import (
	"context"
	"errors"
	"time"

	"github.com/apiaryhq/swarm-vault-go/model"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/shopspring/decimal"
)

// ErrConfirmationTimeout means the transaction was broadcast but did not
// confirm within the wait window. It may still land later; callers record it
// as pending/unknown rather than as a definite revert.
var ErrConfirmationTimeout = errors.New("confirmation wait timed out")

type SignedTransfer struct {
	From     string
	To       string
	Amount   decimal.Decimal
	Token    *model.Token // nil for native transfers
	Nonce    uint64
	GasLimit uint64
	TxId     string

	raw *types.Transaction
}

type Receipt struct {
	TxId    string
	Success bool
	GasUsed uint64
	GasCost decimal.Decimal
}

// Client is the chain access surface the engines consume. Amounts are in
// whole native/token units, not base units.
type Client interface {
	NativeBalance(ctx context.Context, address string) (decimal.Decimal, error)
	TokenBalance(ctx context.Context, address string, token model.Token) (decimal.Decimal, error)
	PendingNonce(ctx context.Context, address string) (uint64, error)
	BuildAndSignTransfer(ctx context.Context, privateKeyHex, to string, amount decimal.Decimal, nonce uint64) (*SignedTransfer, error)
	BuildAndSignTokenTransfer(ctx context.Context, privateKeyHex, to string, token model.Token, amount decimal.Decimal, nonce uint64) (*SignedTransfer, error)
	Broadcast(ctx context.Context, transfer *SignedTransfer) (string, error)
	WaitForConfirmation(ctx context.Context, txId string, timeout time.Duration) (*Receipt, error)
	EstimateTransferCost(ctx context.Context) (decimal.Decimal, error)
}
