package incrementer

import (
	"errors"
	"fmt"
)

// ErrLifecycle is matched by every error caused by calling an operation in the
// wrong state.
var ErrLifecycle = errors.New("incrementer lifecycle")

var (
	ErrNotInitialized     = fmt.Errorf("%w: not initialized", ErrLifecycle)
	ErrAlreadyInitialized = fmt.Errorf("%w: already initialized", ErrLifecycle)
	ErrClosed             = fmt.Errorf("%w: closed", ErrLifecycle)

	ErrIDOverflow = errors.New("identifier space exhausted")
)
