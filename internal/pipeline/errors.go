package pipeline

import (
	"errors"
	"fmt"
	"strings"
)

// ErrFailed is returned by operations on a pipeline that hit a fatal error.
// A failed pipeline must be cleaned up and rebuilt.
var ErrFailed = errors.New("pipeline failed")

// ErrStopped is returned when the worker has already exited.
var ErrStopped = errors.New("pipeline stopped")

// ResourceCreationError wraps a failure to allocate a GPU resource.
type ResourceCreationError struct {
	Op  string
	Err error
}

func (e *ResourceCreationError) Error() string {
	return fmt.Sprintf("create %s: %v", e.Op, e.Err)
}

func (e *ResourceCreationError) Unwrap() error {
	return e.Err
}

// UnsupportedCapabilityError reports GPU extensions a color profile needs
// but the device lacks.
type UnsupportedCapabilityError struct {
	Profile ColorProfile
	Missing []string
}

func (e *UnsupportedCapabilityError) Error() string {
	return fmt.Sprintf("profile %s unsupported: missing %s", e.Profile, strings.Join(e.Missing, ", "))
}
