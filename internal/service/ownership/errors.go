package ownership

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for the ownership service layer.
var (
	ErrOwnershipConflict = errors.New("company is owned by another client")
	ErrNotOwner          = errors.New("client does not own this company")
	ErrInvalidReason     = errors.New("invalid release reason")
	ErrContention        = errors.New("ownership is being changed concurrently")
)

// ConflictError reports the current holder of a lease. It matches
// ErrOwnershipConflict.
type ConflictError struct {
	Domain    string
	Owner     string
	ExpiresAt time.Time
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s: %s held by %s until %s", ErrOwnershipConflict, e.Domain, e.Owner, e.ExpiresAt.Format(time.RFC3339))
}

func (e *ConflictError) Is(target error) bool { return target == ErrOwnershipConflict }
