package chain

import "github.com/ethereum/go-ethereum/core/types"

// EvaluateReceipt classifies a terminal receipt. Success and on-chain revert
// are both legitimate outcomes and pass through unchanged for the caller to
// distinguish; any other status value means the node handed back corrupted
// data. Pure function: safe to call repeatedly on the same receipt.
func EvaluateReceipt(receipt *types.Receipt) (*types.Receipt, error) {
	switch receipt.Status {
	case types.ReceiptStatusSuccessful, types.ReceiptStatusFailed:
		return receipt, nil
	default:
		return nil, &ExecutionFailure{Status: receipt.Status}
	}
}
