package chain

import "fmt"

// BuildError wraps any failure while assembling an unsigned transaction
// (nonce fetch, fee fetch, gas estimate).
type BuildError struct {
	Op  string
	Err error
}

func (e *BuildError) Error() string {
	return fmt.Sprintf("build transaction: %s: %v", e.Op, e.Err)
}

func (e *BuildError) Unwrap() error { return e.Err }

// SubmissionError is returned when every retry attempt hit a timeout-class
// failure.
type SubmissionError struct {
	Attempts int
	Err      error
}

func (e *SubmissionError) Error() string {
	return "Transaction confirmation failed after multiple retries"
}

func (e *SubmissionError) Unwrap() error { return e.Err }

// ExecutionFailure marks a receipt whose status is neither success nor
// on-chain revert. Both of those are legitimate terminal outcomes; anything
// else indicates corrupted data from the node.
type ExecutionFailure struct {
	Status uint64
}

func (e *ExecutionFailure) Error() string { return "Transaction failed" }
