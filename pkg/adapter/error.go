package adapter

import (
	"errors"
	"fmt"
)

// AdapterError wraps provider errors with status metadata.
type AdapterError struct {
	Provider string
	Status   int
	Err      error
}

func (e *AdapterError) Error() string {
	if e == nil {
		return "adapter error"
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s adapter error (status=%d)", e.Provider, e.Status)
}

func (e *AdapterError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// StatusCode extracts the HTTP status carried by an AdapterError, or 0.
func StatusCode(err error) int {
	var adapterErr *AdapterError
	if errors.As(err, &adapterErr) {
		return adapterErr.Status
	}
	return 0
}
