package oracle

import "fmt"

// Kind classifies price-feed failures. Callers branch on the kind instead of
// matching message text.
type Kind int

const (
	// KindRateLimited marks provider throttling (HTTP 429). Not retried
	// here; the caller decides whether to try again later.
	KindRateLimited Kind = iota + 1
	// KindProviderError marks a non-200 response carrying a message body.
	KindProviderError
	// KindDataMissing marks a 200 response whose rate field is absent or
	// unusable.
	KindDataMissing
	// KindTransient marks network-level failures (timeout, DNS, refused).
	KindTransient
)

func (k Kind) String() string {
	switch k {
	case KindRateLimited:
		return "rate_limited"
	case KindProviderError:
		return "provider_error"
	case KindDataMissing:
		return "data_missing"
	case KindTransient:
		return "transient"
	}
	return "unknown"
}

// Error is the failure type returned by GetRate.
type Error struct {
	Kind    Kind
	Coin    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }
