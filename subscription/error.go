package subscription

import (
	"fmt"

	"github.com/AdguardTeam/golibs/errors"
)

const (
	// ErrCustomListImmutable is returned when the custom list is requested to
	// be removed or replaced.
	ErrCustomListImmutable errors.Error = "custom list cannot be removed"

	// ErrDuplicate is returned when a subscription with the same URL already
	// exists.
	ErrDuplicate errors.Error = "subscription already exists"

	// ErrNotFound is returned when there is no subscription with the given
	// UID.
	ErrNotFound errors.Error = "subscription not found"

	// ErrRuleNotFound is returned when there is no rule with the given text.
	ErrRuleNotFound errors.Error = "rule not found"

	// errEmptyText is returned when the downloaded list is empty.
	errEmptyText errors.Error = "empty text, not resetting"

	// errNoHeader is returned when the downloaded list does not start with an
	// "[Adblock …]" header.
	errNoHeader errors.Error = "no adblock header"
)

// RefreshErrorKind is the kind of a [RefreshError].
type RefreshErrorKind uint8

// RefreshErrorKind values.
const (
	// RefreshErrorKindNetwork means that the list could not be downloaded.
	RefreshErrorKindNetwork RefreshErrorKind = iota + 1

	// RefreshErrorKindUnreadable means that the downloaded content is not a
	// filter list.
	RefreshErrorKindUnreadable
)

// String implements the [fmt.Stringer] interface for RefreshErrorKind.
func (k RefreshErrorKind) String() (s string) {
	switch k {
	case RefreshErrorKindNetwork:
		return "network"
	case RefreshErrorKindUnreadable:
		return "unreadable"
	default:
		return fmt.Sprintf("!bad_refresh_error_kind_%d", uint8(k))
	}
}

// RefreshError is returned by [Subscription.Refresh] when the subscription
// could not be updated.  The previously published rules stay in effect.
type RefreshError struct {
	// Err is the underlying error.
	Err error

	// Kind is the kind of the failure.
	Kind RefreshErrorKind
}

// type check
var _ error = (*RefreshError)(nil)

// Error implements the error interface for *RefreshError.
func (err *RefreshError) Error() (msg string) {
	return fmt.Sprintf("%s error: %s", err.Kind, err.Err)
}

// type check
var _ errors.Wrapper = (*RefreshError)(nil)

// Unwrap implements the [errors.Wrapper] interface for *RefreshError.
func (err *RefreshError) Unwrap() (unwrapped error) {
	return err.Err
}
