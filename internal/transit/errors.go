package transit

import (
	"errors"
	"fmt"
)

// Sentinel errors for failures that carry no extra detail.
var (
	ErrInvalidURL      = errors.New("invalid request URL")
	ErrInvalidResponse = errors.New("invalid response")
	ErrInvalidData     = errors.New("response contained no data")
	ErrServiceDown     = errors.New("transit service unavailable")
)

// NetworkError wraps a transport failure or a non-2xx status.
type NetworkError struct {
	Cause error
}

func (e *NetworkError) Error() string { return fmt.Sprintf("network error: %v", e.Cause) }
func (e *NetworkError) Unwrap() error { return e.Cause }

// ParseError reports a response body missing an expected field or structure.
type ParseError struct {
	Detail string
}

func (e *ParseError) Error() string { return "parse error: " + e.Detail }

// BatchError reports a failure while processing a batch of stops.
type BatchError struct {
	Detail string
}

func (e *BatchError) Error() string { return "batch processing error: " + e.Detail }
