package layer2

import (
	"errors"
	"fmt"
	"strings"

	"github.com/stablepay/layer2/pkg/eddsa"
)

var (
	// ErrExternalSigningFailure: the wallet could not sign (rejected, unavailable).
	ErrExternalSigningFailure = eddsa.ErrExternalSigningFailure
	// ErrAccountLocked: the account has no signing key registered yet.
	ErrAccountLocked = errors.New("account is locked")
	// ErrUnsupportedVendor is returned by the registry for unknown vendors.
	ErrUnsupportedVendor = errors.New("unsupported provider")
	// ErrUnsupportedNetwork is returned by providers that do not serve a network.
	ErrUnsupportedNetwork = errors.New("network not supported")
)

// UnknownAccountError means the backend has no account for the wallet, so no
// signing key can be registered for it.
type UnknownAccountError struct {
	Address string
}

func (e *UnknownAccountError) Error() string {
	return fmt.Sprintf("unknown account %s", e.Address)
}

// BackendRequestError is a transport or validation failure reported by a
// vendor API. Error returns the backend message verbatim.
type BackendRequestError struct {
	Op         string
	StatusCode int
	Code       int
	Message    string
}

func (e *BackendRequestError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("%s: backend request failed with status %d", e.Op, e.StatusCode)
}

// IsAccountLocked reports whether err means the account must be unlocked
// first: it wraps ErrAccountLocked or its text mentions both "account" and
// "locked" in any case.
func IsAccountLocked(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrAccountLocked) {
		return true
	}
	msg := strings.ToUpper(err.Error())
	return strings.Contains(msg, "ACCOUNT") && strings.Contains(msg, "LOCKED")
}
