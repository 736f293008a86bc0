package repositories

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a lookup matches no record
	ErrNotFound = errors.New("record not found")

	// ErrDuplicateToken is returned by Save when a token is already stored
	ErrDuplicateToken = errors.New("token already stored")

	// ErrAlreadyRevoked is returned by TryRevoke when another call won the transition
	ErrAlreadyRevoked = errors.New("token pair already revoked")

	// ErrDuplicateUser is returned by Create when the username or email is taken
	ErrDuplicateUser = errors.New("username or email already in use")

	// ErrStoreUnavailable wraps driver and network failures
	ErrStoreUnavailable = errors.New("store unavailable")
)

// IsNotFound checks if an error is ErrNotFound
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// StoreError wraps a backend failure so callers can match ErrStoreUnavailable
// while keeping the underlying cause.
func StoreError(op string, err error) error {
	return fmt.Errorf("failed to %s: %w: %w", op, ErrStoreUnavailable, err)
}
