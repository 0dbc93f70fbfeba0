package capture

import (
	"errors"
	"fmt"
)

var (
	// ErrNotInitialized is returned by operations that need a running session.
	ErrNotInitialized = errors.New("capture session not initialized")
	// ErrDestroyed is returned once Destroy has been called.
	ErrDestroyed = errors.New("capture manager destroyed")
)

// EncoderShutdownError is returned when the encoder failed to finalize a
// recording.
type EncoderShutdownError struct {
	Path string
	Err  error
}

func (e *EncoderShutdownError) Error() string {
	return fmt.Sprintf("encoder shutdown failed for %s: %v", e.Path, e.Err)
}

func (e *EncoderShutdownError) Unwrap() error {
	return e.Err
}

// OutputNotFoundError is returned when the encoder reported success but the
// output file is missing.
type OutputNotFoundError struct {
	Path string
}

func (e *OutputNotFoundError) Error() string {
	return "recording output not found: " + e.Path
}
