package protocol

import "fmt"

// RecoverableError marks a handler failure the executor records without
// aborting the remaining chain. Handler errors not wrapped this way are
// fatal.
type RecoverableError struct {
	Err error
}

func (e *RecoverableError) Error() string {
	return fmt.Sprintf("recoverable: %v", e.Err)
}

func (e *RecoverableError) Unwrap() error {
	return e.Err
}

// Recoverable wraps err so the executor continues the chain after recording
// the failure.
func Recoverable(err error) error {
	if err == nil {
		return nil
	}

	return &RecoverableError{Err: err}
}
