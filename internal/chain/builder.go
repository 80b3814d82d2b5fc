package chain

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// gasLimitMargin is added on top of the node's estimate to absorb estimation
// variance; running out of gas burns the fee with nothing to show for it.
const gasLimitMargin = 500

// BuildTransfer assembles an unsigned plain value transfer. Nonce and gas
// price are fetched fresh on every call: a stale nonce silently replaces an
// in-flight transaction.
func BuildTransfer(ctx context.Context, h *Handle, amount *big.Int, to common.Address) (*types.Transaction, error) {
	nonce, err := h.rpc.PendingNonceAt(ctx, h.from)
	if err != nil {
		return nil, &BuildError{Op: "fetch nonce", Err: err}
	}

	gasPrice, err := h.rpc.SuggestGasPrice(ctx)
	if err != nil {
		return nil, &BuildError{Op: "fetch gas price", Err: err}
	}

	gas, err := h.rpc.EstimateGas(ctx, ethereum.CallMsg{
		From:  h.from,
		To:    &to,
		Value: amount,
	})
	if err != nil {
		return nil, &BuildError{Op: "estimate gas", Err: err}
	}

	return types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &to,
		Value:    amount,
		Gas:      gas + gasLimitMargin,
		GasPrice: gasPrice,
	}), nil
}

// escalateFee returns a copy of tx with the gas price raised by 10%, keeping
// the nonce so the network treats the resend as a replacement of the same
// logical transaction.
func escalateFee(tx *types.Transaction) *types.Transaction {
	price := new(big.Int).Set(tx.GasPrice())
	price.Mul(price, big.NewInt(110))
	price.Div(price, big.NewInt(100))

	return types.NewTx(&types.LegacyTx{
		Nonce:    tx.Nonce(),
		To:       tx.To(),
		Value:    tx.Value(),
		Gas:      tx.Gas(),
		GasPrice: price,
		Data:     tx.Data(),
	})
}
