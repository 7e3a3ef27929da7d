package scan

import (
	"errors"
	"fmt"
)

// ErrSessionUsed is returned when Run is called more than once
var ErrSessionUsed = errors.New("scan session already run")

// HostContextError means the local network could not be determined when no
// ranges were given. It is fatal to the scan.
type HostContextError struct {
	Op  string
	Err error
}

// Error implements the error interface
func (e *HostContextError) Error() string {
	return fmt.Sprintf("host context: %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error
func (e *HostContextError) Unwrap() error {
	return e.Err
}
