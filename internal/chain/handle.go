// Package chain builds, submits and confirms value transfers on one
// EVM-compatible network.
package chain

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"

	"coinrails/internal/contracts"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
)

// RPC is the slice of the node surface the settlement core touches.
// *ethclient.Client satisfies it; tests substitute a scripted fake.
type RPC interface {
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, call ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	BlockNumber(ctx context.Context) (uint64, error)
}

// Contract is the slice of bind.BoundContract used for the funding contract.
type Contract interface {
	Transact(opts *bind.TransactOpts, method string, params ...interface{}) (*types.Transaction, error)
	Call(opts *bind.CallOpts, results *[]interface{}, method string, params ...interface{}) error
}

// Handle owns the provider connection and signing identity for one coin.
// It is constructed once at process start and shared read-only afterwards;
// nonce-consuming operations are serialized by the settlement service.
type Handle struct {
	coin     string
	rpc      RPC
	key      *ecdsa.PrivateKey
	from     common.Address
	chainID  *big.Int
	signer   types.Signer
	contract Contract
}

type HandleConfig struct {
	Coin            string
	RPCURL          string
	PrivateKeyHex   string
	ContractAddress string
}

// Dial connects to the network, derives the signer from the decrypted key
// material and binds the funding contract.
func Dial(ctx context.Context, cfg HandleConfig) (*Handle, error) {
	if cfg.RPCURL == "" {
		return nil, fmt.Errorf("rpc url is required")
	}
	if cfg.PrivateKeyHex == "" {
		return nil, fmt.Errorf("private key is required")
	}

	cli, err := ethclient.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("dial rpc: %w", err)
	}

	key, err := parsePrivateKey(cfg.PrivateKeyHex)
	if err != nil {
		return nil, err
	}

	chainID, err := cli.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch chain id: %w", err)
	}

	var bound Contract
	if cfg.ContractAddress != "" {
		parsedABI, err := abi.JSON(strings.NewReader(contracts.FundingABI))
		if err != nil {
			return nil, fmt.Errorf("parse abi: %w", err)
		}
		addr := common.HexToAddress(cfg.ContractAddress)
		bound = bind.NewBoundContract(addr, parsedABI, cli, cli, cli)
	}

	return NewHandle(cfg.Coin, cli, bound, key, chainID), nil
}

// NewHandle wires a handle from preconstructed parts. Tests use it to inject
// fake RPC and contract implementations.
func NewHandle(coin string, rpc RPC, contract Contract, key *ecdsa.PrivateKey, chainID *big.Int) *Handle {
	return &Handle{
		coin:     coin,
		rpc:      rpc,
		key:      key,
		from:     crypto.PubkeyToAddress(key.PublicKey),
		chainID:  chainID,
		signer:   types.NewEIP155Signer(chainID),
		contract: contract,
	}
}

func (h *Handle) Coin() string         { return h.coin }
func (h *Handle) From() common.Address { return h.from }

// Ping checks node reachability.
func (h *Handle) Ping(ctx context.Context) error {
	_, err := h.rpc.BlockNumber(ctx)
	return err
}

// Withdraw invokes the funding contract's owner-only sweep.
func (h *Handle) Withdraw(ctx context.Context) (*types.Transaction, error) {
	if h.contract == nil {
		return nil, fmt.Errorf("no funding contract bound for %s", h.coin)
	}
	opts, err := bind.NewKeyedTransactorWithChainID(h.key, h.chainID)
	if err != nil {
		return nil, fmt.Errorf("transactor: %w", err)
	}
	opts.Context = ctx
	return h.contract.Transact(opts, "withdraw")
}

// ContractBalance reads the funding contract's current balance.
func (h *Handle) ContractBalance(ctx context.Context) (*big.Int, error) {
	if h.contract == nil {
		return nil, fmt.Errorf("no funding contract bound for %s", h.coin)
	}
	var out []interface{}
	if err := h.contract.Call(&bind.CallOpts{Context: ctx}, &out, "getBalance"); err != nil {
		return nil, fmt.Errorf("getBalance: %w", err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("getBalance: empty result")
	}
	bal, ok := out[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("getBalance: unexpected result type %T", out[0])
	}
	return bal, nil
}

func (h *Handle) sign(tx *types.Transaction) (*types.Transaction, error) {
	return types.SignTx(tx, h.signer, h.key)
}

func parsePrivateKey(hexKey string) (*ecdsa.PrivateKey, error) {
	hexKey = strings.TrimPrefix(hexKey, "0x")
	key, err := crypto.HexToECDSA(hexKey)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	return key, nil
}
