package tam

import "errors"

var (
	// ErrInconsistent means the pool counts do not add up to the rows scanned.
	ErrInconsistent = errors.New("tam pools do not sum to universe")
	ErrNoClient     = errors.New("client id is required")
)
