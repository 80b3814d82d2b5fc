package settlement

import (
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/shopspring/decimal"
)

// Outcome is the terminal state of one settlement operation.
type Outcome string

const (
	// OutcomeConfirmed means the transaction was mined and executed.
	OutcomeConfirmed Outcome = "confirmed"
	// OutcomeFailed means a receipt was obtained but the transaction
	// reverted on chain.
	OutcomeFailed Outcome = "failed"
	// OutcomeError means settlement never reached a terminal receipt.
	OutcomeError Outcome = "error"
)

// Result is what Transfer and Withdraw hand back to the caller. Errors are
// carried as a value here, never propagated, so the hosting process cannot be
// crashed by a settlement failure.
type Result struct {
	Outcome    Outcome
	Receipt    *types.Receipt
	TxHash     string
	CoinAmount decimal.Decimal
	Err        error
}

// ValidationError marks malformed caller input, surfaced before any network
// call is made.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }
