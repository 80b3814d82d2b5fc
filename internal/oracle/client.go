// Package oracle fetches fiat exchange rates from per-coin price-feed
// providers and converts fiat amounts into coin amounts.
package oracle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Profile identifies one provider endpoint. Each coin uses a different
// provider and a different API key.
type Profile struct {
	Coin      string // symbol, e.g. "ETH"
	Endpoint  string // provider base URL
	Action    string // stats action, e.g. "ethprice"
	RateField string // rate field in the result object, e.g. "ethusd"
	APIKey    string
}

// Client issues rate lookups against explorer-style price APIs.
type Client struct {
	http *http.Client
	log  *zap.Logger
}

func New(log *zap.Logger) *Client {
	return &Client{
		http: &http.Client{Timeout: 10 * time.Second},
		log:  log,
	}
}

// Feed binds a client to one coin profile.
type Feed struct {
	c *Client
	p Profile
}

func (c *Client) Feed(p Profile) *Feed {
	return &Feed{c: c, p: p}
}

func (f *Feed) GetRate(ctx context.Context) (decimal.Decimal, error) {
	return f.c.GetRate(ctx, f.p)
}

type rateResponse struct {
	Status  string            `json:"status"`
	Message string            `json:"message"`
	Result  map[string]string `json:"result"`
}

// GetRate fetches the current fiat rate for the profile's coin. Rates are
// fetched fresh on every call and never cached: a stale rate misprices the
// settlement.
func (c *Client) GetRate(ctx context.Context, p Profile) (decimal.Decimal, error) {
	endpoint, err := requestURL(p)
	if err != nil {
		return decimal.Zero, &Error{Kind: KindTransient, Coin: p.Coin, Message: "build request url", Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return decimal.Zero, &Error{Kind: KindTransient, Coin: p.Coin, Message: "build request", Err: err}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return decimal.Zero, &Error{Kind: KindTransient, Coin: p.Coin, Message: "price feed request", Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return decimal.Zero, &Error{Kind: KindTransient, Coin: p.Coin, Message: "read price feed response", Err: err}
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		c.log.Warn("price feed rate limited", zap.String("coin", p.Coin))
		return decimal.Zero, &Error{
			Kind:    KindRateLimited,
			Coin:    p.Coin,
			Message: strings.TrimSpace(string(body)),
		}
	}

	if resp.StatusCode != http.StatusOK {
		return decimal.Zero, &Error{
			Kind:    KindProviderError,
			Coin:    p.Coin,
			Message: notFoundMessage(providerMessage(body), p.Coin),
		}
	}

	var parsed rateResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return decimal.Zero, &Error{
			Kind:    KindDataMissing,
			Coin:    p.Coin,
			Message: notFoundMessage("", p.Coin),
			Err:     err,
		}
	}

	raw, ok := parsed.Result[p.RateField]
	if !ok || raw == "" {
		return decimal.Zero, &Error{
			Kind:    KindDataMissing,
			Coin:    p.Coin,
			Message: notFoundMessage("", p.Coin),
		}
	}

	rate, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, &Error{
			Kind:    KindDataMissing,
			Coin:    p.Coin,
			Message: notFoundMessage("", p.Coin),
			Err:     err,
		}
	}
	if !rate.IsPositive() {
		return decimal.Zero, &Error{
			Kind:    KindDataMissing,
			Coin:    p.Coin,
			Message: notFoundMessage("", p.Coin),
		}
	}

	return rate, nil
}

// Convert returns the coin amount equivalent to the fiat amount at the given
// rate, fixed to 8 decimal places.
func Convert(fiat, rate decimal.Decimal) decimal.Decimal {
	return fiat.DivRound(rate, 8)
}

func requestURL(p Profile) (string, error) {
	u, err := url.Parse(p.Endpoint)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("module", "stats")
	q.Set("action", p.Action)
	q.Set("apikey", p.APIKey)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// providerMessage pulls a human-readable message out of an error response
// body, which may be JSON or plain text.
func providerMessage(body []byte) string {
	var parsed rateResponse
	if err := json.Unmarshal(body, &parsed); err == nil && parsed.Message != "" {
		return parsed.Message
	}
	return strings.TrimSpace(string(body))
}

func notFoundMessage(providerMsg, coin string) string {
	if providerMsg == "" {
		providerMsg = "undefined"
	}
	return fmt.Sprintf("%s or %s|Usd data not found", providerMsg, titleCoin(coin))
}

func titleCoin(symbol string) string {
	if symbol == "" {
		return symbol
	}
	lower := strings.ToLower(symbol)
	return strings.ToUpper(lower[:1]) + lower[1:]
}

// IsRateLimited reports whether err is an oracle throttling error.
func IsRateLimited(err error) bool {
	var oe *Error
	return errors.As(err, &oe) && oe.Kind == KindRateLimited
}
