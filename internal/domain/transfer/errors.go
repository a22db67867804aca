package transfer

import (
	"errors"
	"fmt"
)

// BusinessError marks a rule violation on a single patient: the patient is
// failed and reported, and the batch moves on. Anything else that goes wrong
// is a process error and is judged fatal or not by the orchestrator.
type BusinessError struct {
	Reason string
	Err    error
}

func (e *BusinessError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Reason, e.Err)
	}
	return e.Reason
}

func (e *BusinessError) Unwrap() error { return e.Err }

func businessErr(reason string, err error) *BusinessError {
	return &BusinessError{Reason: reason, Err: err}
}

// IsBusiness reports whether err is (or wraps) a BusinessError.
func IsBusiness(err error) bool {
	var be *BusinessError
	return errors.As(err, &be)
}
