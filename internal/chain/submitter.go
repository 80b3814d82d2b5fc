package chain

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"
)

// errConfirmTimeout marks an attempt whose confirmation window expired before
// the transaction was mined. Usually the transaction was dropped from the
// pending pool as underpriced, so the retry escalates the fee.
var errConfirmTimeout = errors.New("timeout awaiting transaction confirmation")

type SubmitOptions struct {
	// MaxRetries bounds the number of broadcast attempts. Defaults to 3.
	MaxRetries int
	// Confirmations is how many blocks must sit on top of the inclusion
	// block before the receipt is terminal. Defaults to 1.
	Confirmations uint64
	// PollInterval is the receipt polling cadence. Defaults to 2s.
	PollInterval time.Duration
	// ConfirmWindow bounds how long one attempt waits for confirmation.
	// Defaults to 2 minutes.
	ConfirmWindow time.Duration
	// BackoffBase scales the retry backoff: attempt n sleeps BackoffBase
	// doubled n times (4s, 8s, 16s with the 2s default).
	BackoffBase time.Duration
	// OnRetry is invoked before each fee-escalated resend.
	OnRetry func(attempt int)

	Logger *zap.Logger
}

func (o SubmitOptions) withDefaults() SubmitOptions {
	if o.MaxRetries <= 0 {
		o.MaxRetries = 3
	}
	if o.Confirmations == 0 {
		o.Confirmations = 1
	}
	if o.PollInterval <= 0 {
		o.PollInterval = 2 * time.Second
	}
	if o.ConfirmWindow <= 0 {
		o.ConfirmWindow = 2 * time.Minute
	}
	if o.BackoffBase <= 0 {
		o.BackoffBase = 2 * time.Second
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	return o
}

// Submit signs and broadcasts tx, then drives it to a terminal receipt.
//
// Each attempt broadcasts a fresh transaction signed over the current fee and
// the original nonce; on a timeout-class failure the fee is raised by 10% and
// the attempt repeated after exponential backoff. Holding the nonce fixed
// makes retries replacements rather than duplicates, so exactly one transfer
// can land regardless of how many attempts were broadcast. Non-timeout
// failures abort immediately.
func Submit(ctx context.Context, h *Handle, tx *types.Transaction, opts SubmitOptions) (*types.Receipt, error) {
	opts = opts.withDefaults()

	current := tx
	var lastErr error

	for attempt := 1; attempt <= opts.MaxRetries; attempt++ {
		signed, err := h.sign(current)
		if err != nil {
			return nil, fmt.Errorf("sign transaction: %w", err)
		}

		receipt, err := broadcastAndConfirm(ctx, h, signed, opts)
		if err == nil {
			return receipt, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if !isRetryable(err) {
			return nil, err
		}

		lastErr = err
		opts.Logger.Warn("confirmation attempt failed",
			zap.String("coin", h.coin),
			zap.Int("attempt", attempt),
			zap.String("tx", signed.Hash().Hex()),
			zap.Error(err),
		)

		if attempt == opts.MaxRetries {
			break
		}
		if opts.OnRetry != nil {
			opts.OnRetry(attempt)
		}

		select {
		case <-time.After(opts.BackoffBase << attempt):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		current = escalateFee(current)
	}

	return nil, &SubmissionError{Attempts: opts.MaxRetries, Err: lastErr}
}

func broadcastAndConfirm(ctx context.Context, h *Handle, signed *types.Transaction, opts SubmitOptions) (*types.Receipt, error) {
	if err := h.rpc.SendTransaction(ctx, signed); err != nil {
		return nil, fmt.Errorf("send transaction: %w", err)
	}
	return WaitConfirmed(ctx, h, signed.Hash(), opts)
}

// WaitConfirmed polls for the receipt of hash until the confirmation count is
// met, the window expires or ctx is cancelled.
func WaitConfirmed(ctx context.Context, h *Handle, hash common.Hash, opts SubmitOptions) (*types.Receipt, error) {
	opts = opts.withDefaults()

	ticker := time.NewTicker(opts.PollInterval)
	defer ticker.Stop()
	deadline := time.After(opts.ConfirmWindow)

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-deadline:
			return nil, errConfirmTimeout
		case <-ticker.C:
			receipt, err := h.rpc.TransactionReceipt(ctx, hash)
			if err != nil || receipt == nil || receipt.BlockNumber == nil {
				continue // not mined yet
			}

			head, err := h.rpc.BlockNumber(ctx)
			if err != nil {
				continue
			}
			if head < receipt.BlockNumber.Uint64() {
				continue
			}
			if head-receipt.BlockNumber.Uint64()+1 < opts.Confirmations {
				continue
			}
			return receipt, nil
		}
	}
}

// retryableFragments are provider-level failure messages worth another
// attempt: the node was unreachable or dropped the connection, not a verdict
// on the transaction itself.
var retryableFragments = []string{
	"timeout",
	"connection refused",
	"connection reset",
	"broken pipe",
}

// isRetryable classifies submission failures. Timeout-class and
// provider-level transport errors are worth a fee-escalated resend; anything
// else (bad nonce, insufficient funds, reverts) will fail the same way again.
func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, errConfirmTimeout) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, fragment := range retryableFragments {
		if strings.Contains(msg, fragment) {
			return true
		}
	}
	return false
}
