package ledger

import "errors"

var (
	// ErrDuplicateDefault is returned when a write would leave a user with two
	// default accounts. SQL stores raise it from a partial unique index.
	ErrDuplicateDefault = errors.New("user already has a default account")

	// ErrDanglingTransactions is returned when an account is deleted while
	// transactions still reference it.
	ErrDanglingTransactions = errors.New("account still has transactions")
)
