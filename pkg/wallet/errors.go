package wallet

import (
	"errors"
	"fmt"

	"tokensite/pkg/models"

	gethrpc "github.com/ethereum/go-ethereum/rpc"
)

// EIP-1193 provider error codes.
const (
	CodeUserRejected      = 4001
	CodeUnauthorized      = 4100
	CodeUnsupportedMethod = 4200
	CodeDisconnected      = 4900
	CodeUnrecognizedChain = 4902
)

// Error is a failed wallet operation tagged with its reason.
type Error struct {
	Reason models.Reason
	Op     string
	Err    error
}

func (e *Error) Error() string {
	if e.Err == nil {
		if e.Op == "" {
			return fmt.Sprintf("[%s]", e.Reason)
		}
		return fmt.Sprintf("[%s] %s", e.Reason, e.Op)
	}
	return fmt.Sprintf("[%s] %s: %v", e.Reason, e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error carrying the same reason, so callers can write
// errors.Is(err, wallet.ErrSwitchRejected).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Reason == e.Reason
}

var (
	ErrNoProvider      = &Error{Reason: models.ReasonNoProvider}
	ErrUserRejected    = &Error{Reason: models.ReasonUserRejected}
	ErrSwitchRejected  = &Error{Reason: models.ReasonSwitchRejected}
	ErrAddRejected     = &Error{Reason: models.ReasonAddRejected}
	ErrTransport       = &Error{Reason: models.ReasonTransport}
	ErrMissingAddress  = &Error{Reason: models.ReasonMissingAddress}
	ErrNetworkMismatch = &Error{Reason: models.ReasonNetworkMismatch}
	ErrWatchRejected   = &Error{Reason: models.ReasonWatchRejected}

	errWatchDeclined = errors.New("wallet declined to watch the asset")
	errNoAccounts    = errors.New("wallet returned no accounts")
)

func wrap(reason models.Reason, op string, err error) error {
	return &Error{Reason: reason, Op: op, Err: err}
}

// ReasonOf extracts the reason from a wallet error. Unknown errors map to
// transport_error; nil maps to the empty reason.
func ReasonOf(err error) models.Reason {
	if err == nil {
		return models.ReasonNone
	}
	var we *Error
	if errors.As(err, &we) {
		return we.Reason
	}
	return models.ReasonTransport
}

// ProviderError is an EIP-1193 error answered by a wallet. It satisfies the
// go-ethereum rpc.Error and rpc.DataError interfaces, which is also how errors
// decoded from a JSON-RPC response are seen.
type ProviderError struct {
	Code    int
	Message string
	Data    interface{}
}

func (e *ProviderError) Error() string { return e.Message }
func (e *ProviderError) ErrorCode() int { return e.Code }
func (e *ProviderError) ErrorData() interface{} { return e.Data }

var (
	_ gethrpc.Error     = (*ProviderError)(nil)
	_ gethrpc.DataError = (*ProviderError)(nil)
)

// providerCode returns the EIP-1193 code of err and whether the wallet
// answered at all. An error without a code is a transport failure.
func providerCode(err error) (int, bool) {
	var rpcErr gethrpc.Error
	if !errors.As(err, &rpcErr) {
		return 0, false
	}
	return rpcErr.ErrorCode(), true
}

// isUnrecognizedChain reports whether a switch failed because the wallet does
// not know the chain. Some wallets wrap the code in the error data as
// {"originalError":{"code":4902}}.
func isUnrecognizedChain(err error) bool {
	code, ok := providerCode(err)
	if !ok {
		return false
	}
	if code == CodeUnrecognizedChain {
		return true
	}
	var dataErr gethrpc.DataError
	if !errors.As(err, &dataErr) {
		return false
	}
	data, ok := dataErr.ErrorData().(map[string]interface{})
	if !ok {
		return false
	}
	orig, ok := data["originalError"].(map[string]interface{})
	if !ok {
		return false
	}
	switch c := orig["code"].(type) {
	case float64:
		return int(c) == CodeUnrecognizedChain
	case int:
		return c == CodeUnrecognizedChain
	}
	return false
}

// classify maps a provider failure to reason when the wallet answered, or to
// transport_error when it did not.
func classify(err error, reason models.Reason, op string) error {
	if _, answered := providerCode(err); !answered {
		return wrap(models.ReasonTransport, op, err)
	}
	return wrap(reason, op, err)
}
