package exchange

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Error kinds classify exchange failures for retry and incident decisions
const (
	KindAuth              = "auth"
	KindInsufficientFunds = "insufficient_funds"
	KindSymbolFilter      = "symbol_filter"
	KindRateLimit         = "rate_limit"
	KindNetwork           = "network"
	KindOther             = "other"
)

// APIError is a classified exchange error. Code carries the Binance error
// code when the exchange returned one.
type APIError struct {
	Kind    string
	Code    int
	Message string
}

func (e *APIError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("exchange error (%s, code %d): %s", e.Kind, e.Code, e.Message)
	}
	return fmt.Sprintf("exchange error (%s): %s", e.Kind, e.Message)
}

// IsKind reports whether err is an APIError of the given kind
func IsKind(err error, kind string) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Kind == kind
}

// classify maps an HTTP status and Binance error code to an error kind.
// Binance codes: -1022 bad signature, -2014/-2015 API key rejected, -2010
// covers both insufficient balance and filter failures so the message text
// disambiguates.
func classify(status, code int, message string) string {
	switch code {
	case -1022, -2014, -2015:
		return KindAuth
	case -1013, -1111, -4003:
		return KindSymbolFilter
	case -1003, -1015:
		return KindRateLimit
	case -2010:
		if strings.Contains(strings.ToLower(message), "insufficient") {
			return KindInsufficientFunds
		}
		return KindSymbolFilter
	}

	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		return KindAuth
	case http.StatusTooManyRequests, http.StatusTeapot:
		// 418 is Binance's auto-ban response after ignored 429s
		return KindRateLimit
	}
	return KindOther
}

// NetworkError wraps a transport failure as an APIError
func NetworkError(err error) *APIError {
	return &APIError{Kind: KindNetwork, Message: err.Error()}
}
