// Package settlement orchestrates on-chain payment settlement for one coin:
// price quote, transaction build, fee-escalating submission and receipt
// classification.
package settlement

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"time"

	"coinrails/internal/chain"
	"coinrails/internal/ledger"
	"coinrails/internal/oracle"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// RateSource supplies the fiat rate for the service's coin. Quotes are
// fetched fresh for every settlement attempt.
type RateSource interface {
	GetRate(ctx context.Context) (decimal.Decimal, error)
}

// Profile carries the coin-specific parameters that used to be triplicated
// into per-coin service classes.
type Profile struct {
	Symbol   string
	Decimals int32
}

// Service settles payments for one coin. All dependencies are injected at
// construction; there is no lazy first-call initialization.
type Service struct {
	profile Profile
	rates   RateSource
	handle  *chain.Handle
	book    ledger.Ledger
	metrics *Metrics
	log     *zap.Logger
	submit  chain.SubmitOptions

	// mu serializes nonce acquisition through broadcast. Two concurrent
	// transfers would otherwise fetch the same nonce and the network would
	// reject one of them.
	mu sync.Mutex
}

func NewService(profile Profile, rates RateSource, handle *chain.Handle, book ledger.Ledger, metrics *Metrics, submit chain.SubmitOptions, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	if profile.Decimals == 0 {
		profile.Decimals = 18
	}
	submit.Logger = log
	s := &Service{
		profile: profile,
		rates:   rates,
		handle:  handle,
		book:    book,
		metrics: metrics,
		log:     log,
		submit:  submit,
	}
	s.submit.OnRetry = func(int) { metrics.incRetry(profile.Symbol) }
	return s
}

func (s *Service) Coin() string { return s.profile.Symbol }

// Ping reports node reachability for health checks.
func (s *Service) Ping(ctx context.Context) error { return s.handle.Ping(ctx) }

// Transfer settles an outbound payment: converts fiatAmount to this coin at
// the current oracle rate and pays it to recipient on chain. Every failure
// path ends in a returned Result; no error escapes this boundary.
func (s *Service) Transfer(ctx context.Context, fiatAmount decimal.Decimal, recipient string) Result {
	entry := ledger.Entry{
		Coin:       s.profile.Symbol,
		Kind:       "transfer",
		Recipient:  recipient,
		FiatAmount: fiatAmount.String(),
	}

	if !fiatAmount.IsPositive() {
		return s.finish(ctx, entry, Result{
			Outcome: OutcomeError,
			Err:     &ValidationError{Msg: "amount must be a positive number"},
		})
	}
	if !common.IsHexAddress(recipient) {
		return s.finish(ctx, entry, Result{
			Outcome: OutcomeError,
			Err:     &ValidationError{Msg: "malformed recipient address"},
		})
	}

	rate, err := s.rates.GetRate(ctx)
	if err != nil {
		var oerr *oracle.Error
		if errors.As(err, &oerr) {
			s.metrics.incOracleError(s.profile.Symbol, oerr.Kind.String())
		}
		return s.finish(ctx, entry, Result{Outcome: OutcomeError, Err: err})
	}

	coinAmount := oracle.Convert(fiatAmount, rate)
	entry.CoinAmount = coinAmount.String()
	value := toBaseUnits(coinAmount, s.profile.Decimals)

	receipt, err := s.settleTransfer(ctx, value, common.HexToAddress(recipient))
	if err != nil {
		return s.finish(ctx, entry, Result{
			Outcome:    OutcomeError,
			CoinAmount: coinAmount,
			Err:        err,
		})
	}

	entry.TxHash = receipt.TxHash.Hex()
	return s.finish(ctx, entry, resultFromReceipt(receipt, coinAmount))
}

// settleTransfer holds the coin's nonce lock from nonce fetch through the
// final broadcast.
func (s *Service) settleTransfer(ctx context.Context, value *big.Int, to common.Address) (*types.Receipt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := chain.BuildTransfer(ctx, s.handle, value, to)
	if err != nil {
		return nil, err
	}

	receipt, err := chain.Submit(ctx, s.handle, tx, s.submit)
	if err != nil {
		return nil, err
	}
	return chain.EvaluateReceipt(receipt)
}

// Withdraw sweeps the funding contract balance to the platform owner and
// awaits confirmation under the same policy as transfers.
func (s *Service) Withdraw(ctx context.Context) Result {
	entry := ledger.Entry{
		Coin: s.profile.Symbol,
		Kind: "withdraw",
	}

	receipt, err := s.settleWithdraw(ctx)
	if err != nil {
		return s.finish(ctx, entry, Result{Outcome: OutcomeError, Err: err})
	}

	entry.TxHash = receipt.TxHash.Hex()
	return s.finish(ctx, entry, resultFromReceipt(receipt, decimal.Zero))
}

func (s *Service) settleWithdraw(ctx context.Context) (*types.Receipt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.handle.Withdraw(ctx)
	if err != nil {
		return nil, err
	}

	receipt, err := chain.WaitConfirmed(ctx, s.handle, tx.Hash(), s.submit)
	if err != nil {
		return nil, err
	}
	return chain.EvaluateReceipt(receipt)
}

// ContractBalance reads the funding contract's on-chain balance.
func (s *Service) ContractBalance(ctx context.Context) (*big.Int, error) {
	return s.handle.ContractBalance(ctx)
}

// finish records the terminal outcome in the ledger and metrics, logging but
// never surfacing bookkeeping failures.
func (s *Service) finish(ctx context.Context, entry ledger.Entry, res Result) Result {
	entry.Outcome = string(res.Outcome)
	entry.CreatedAt = time.Now().UTC()
	if res.Err != nil {
		entry.Detail = res.Err.Error()
	}
	if res.TxHash == "" && res.Receipt != nil {
		res.TxHash = res.Receipt.TxHash.Hex()
	}
	if entry.TxHash == "" {
		entry.TxHash = res.TxHash
	}

	if s.book != nil {
		if err := s.book.Append(ctx, entry); err != nil {
			s.log.Error("ledger append failed",
				zap.String("coin", entry.Coin),
				zap.String("kind", entry.Kind),
				zap.Error(err),
			)
		}
	}
	s.metrics.incSettlement(entry.Coin, entry.Kind, res.Outcome)

	if res.Err != nil {
		s.log.Warn("settlement did not confirm",
			zap.String("coin", entry.Coin),
			zap.String("kind", entry.Kind),
			zap.Error(res.Err),
		)
	} else {
		s.log.Info("settlement terminal",
			zap.String("coin", entry.Coin),
			zap.String("kind", entry.Kind),
			zap.String("outcome", string(res.Outcome)),
			zap.String("tx", res.TxHash),
		)
	}
	return res
}

func resultFromReceipt(receipt *types.Receipt, coinAmount decimal.Decimal) Result {
	outcome := OutcomeConfirmed
	if receipt.Status == types.ReceiptStatusFailed {
		outcome = OutcomeFailed
	}
	return Result{
		Outcome:    outcome,
		Receipt:    receipt,
		TxHash:     receipt.TxHash.Hex(),
		CoinAmount: coinAmount,
	}
}

// toBaseUnits converts a coin amount to the chain's smallest unit, truncating
// anything below one base unit.
func toBaseUnits(amount decimal.Decimal, decimals int32) *big.Int {
	return amount.Shift(decimals).BigInt()
}
