package chain

import (
	"context"
	"errors"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

// fakeRPC scripts node behavior for builder and submitter tests.
type fakeRPC struct {
	mu sync.Mutex

	nonce       uint64
	nonceErr    error
	gasPrice    *big.Int
	gasPriceErr error
	gas         uint64
	gasErr      error

	// sendErrs[i] is returned by the i-th SendTransaction call.
	sendErrs []error
	sends    []*types.Transaction

	// receiptFromSend marks after how many broadcasts the latest
	// transaction becomes minable; 0 means immediately.
	receiptFromSend int
	receiptStatus   uint64
	head            uint64

	receipts map[common.Hash]*types.Receipt
	calls    int
}

func newFakeRPC() *fakeRPC {
	return &fakeRPC{
		gasPrice:      big.NewInt(1000),
		gas:           21000,
		head:          100,
		receiptStatus: types.ReceiptStatusSuccessful,
		receipts:      make(map[common.Hash]*types.Receipt),
	}
}

func (f *fakeRPC) count() {
	f.calls++
}

func (f *fakeRPC) PendingNonceAt(context.Context, common.Address) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.count()
	return f.nonce, f.nonceErr
}

func (f *fakeRPC) SuggestGasPrice(context.Context) (*big.Int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.count()
	if f.gasPriceErr != nil {
		return nil, f.gasPriceErr
	}
	return new(big.Int).Set(f.gasPrice), nil
}

func (f *fakeRPC) EstimateGas(context.Context, ethereum.CallMsg) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.count()
	return f.gas, f.gasErr
}

func (f *fakeRPC) SendTransaction(_ context.Context, tx *types.Transaction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.count()
	idx := len(f.sends)
	f.sends = append(f.sends, tx)
	if idx < len(f.sendErrs) && f.sendErrs[idx] != nil {
		return f.sendErrs[idx]
	}
	if len(f.sends) >= f.receiptFromSend+1 {
		f.receipts[tx.Hash()] = &types.Receipt{
			Status:      f.receiptStatus,
			TxHash:      tx.Hash(),
			BlockNumber: big.NewInt(int64(f.head) - 1),
		}
	}
	return nil
}

func (f *fakeRPC) TransactionReceipt(_ context.Context, hash common.Hash) (*types.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.count()
	receipt, ok := f.receipts[hash]
	if !ok {
		return nil, errors.New("not found")
	}
	return receipt, nil
}

func (f *fakeRPC) BlockNumber(context.Context) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.count()
	return f.head, nil
}

// fakeContract scripts the funding contract binding.
type fakeContract struct {
	tx          *types.Transaction
	transactErr error
	balance     *big.Int
	callErr     error
}

func (f *fakeContract) Transact(*bind.TransactOpts, string, ...interface{}) (*types.Transaction, error) {
	if f.transactErr != nil {
		return nil, f.transactErr
	}
	return f.tx, nil
}

func (f *fakeContract) Call(_ *bind.CallOpts, results *[]interface{}, _ string, _ ...interface{}) error {
	if f.callErr != nil {
		return f.callErr
	}
	*results = append(*results, f.balance)
	return nil
}

func testHandle(rpc RPC, contract Contract) *Handle {
	key, err := crypto.GenerateKey()
	if err != nil {
		panic(err)
	}
	return NewHandle("ETH", rpc, contract, key, big.NewInt(1))
}
