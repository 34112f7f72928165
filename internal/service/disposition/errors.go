package disposition

import (
	"errors"
	"fmt"

	"github.com/ignite/lead-disposition/internal/domain"
)

// Sentinel errors for the disposition service layer.
var (
	ErrInvalidTransition = errors.New("invalid disposition transition")
	ErrChannelSuppressed = errors.New("channel is suppressed")
	ErrContention        = errors.New("contact is being updated concurrently")
)

// TransitionError carries the rejected edge. It matches ErrInvalidTransition.
type TransitionError struct {
	From domain.DispositionStatus
	To   domain.DispositionStatus
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s: %s -> %s", ErrInvalidTransition, e.From, e.To)
}

func (e *TransitionError) Is(target error) bool { return target == ErrInvalidTransition }
