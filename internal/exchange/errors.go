package exchange

import (
	"errors"
	"strings"

	"github.com/adshao/go-binance/v2/common"
)

// Typed venue errors. Callers branch on these with errors.Is; the raw venue
// error stays wrapped underneath for logging.
var (
	// ErrRateLimited means the venue told us to back off (HTTP 418 or
	// code -1003). The engine cools down for two minutes on this.
	ErrRateLimited = errors.New("exchange: rate limited")

	// ErrInsufficientFunds is a definitive rejection (-2010): the account
	// cannot fund the order. Surfaced to the caller, never retried blindly.
	ErrInsufficientFunds = errors.New("exchange: insufficient funds")

	// ErrOrderNotFound (-2011) on a cancel means the order is already gone,
	// which is the outcome a cancel wanted anyway.
	ErrOrderNotFound = errors.New("exchange: order not found")

	// ErrTransient covers malformed responses and 5xx noise worth ignoring
	// for one cycle: truncated bodies, JSON decode failures, gateway errors.
	ErrTransient = errors.New("exchange: transient venue error")

	// ErrMinNotional means the computed order is below the venue minimum.
	ErrMinNotional = errors.New("exchange: order below venue minimum")

	// ErrNotConnected is returned by every call before Connect succeeds.
	ErrNotConnected = errors.New("exchange: not connected")
)

// classify maps a raw venue error to one of the typed errors above,
// keeping the original wrapped. Binance signals errors through
// common.APIError codes; everything else is matched on message text.
func classify(err error) error {
	if err == nil {
		return nil
	}

	var apiErr *common.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case -1003: // too many requests
			return errors.Join(ErrRateLimited, err)
		case -2010:
			return errors.Join(ErrInsufficientFunds, err)
		case -2011:
			return errors.Join(ErrOrderNotFound, err)
		case -1013: // filter failure: notional / lot size
			return errors.Join(ErrMinNotional, err)
		}
		if !apiErr.IsValid() {
			// Non-2xx without a JSON body lands here with the raw response.
			return errors.Join(ErrTransient, err)
		}
		return err
	}

	msg := err.Error()
	switch {
	case strings.Contains(msg, "418"),
		strings.Contains(msg, "429"),
		strings.Contains(msg, "-1003"),
		strings.Contains(msg, "Too Many Requests"):
		return errors.Join(ErrRateLimited, err)
	case strings.Contains(msg, "content-length"),
		strings.Contains(msg, "unexpected end of JSON"),
		strings.Contains(msg, "invalid character"),
		strings.Contains(msg, "EOF"):
		return errors.Join(ErrTransient, err)
	}
	return err
}
