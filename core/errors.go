package core

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// InsufficientFundsError aborts a distribution before any transfer is signed.
type InsufficientFundsError struct {
	Required  decimal.Decimal
	Available decimal.Decimal
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient funds: need %s native, have %s", e.Required, e.Available)
}

// InvariantViolationError refuses a dissolution while wallets still hold
// funds above the configured floors.
type InvariantViolationError struct {
	OffendingIndices []int
}

func (e *InvariantViolationError) Error() string {
	return fmt.Sprintf("dissolution refused: wallets %v still hold funds", e.OffendingIndices)
}
