package client

import (
	"errors"
	"fmt"
)

// Common errors returned by the client.
var (
	// ErrNoCredentials is returned when FetchPage is called without a usable bundle.
	ErrNoCredentials = errors.New("no usable credentials")
)

// ErrorClass represents a classification of remote request failures.
type ErrorClass string

const (
	// ErrorClassClient represents 4xx client errors other than 429.
	ErrorClassClient ErrorClass = "client"

	// ErrorClassServer represents 5xx server errors.
	ErrorClassServer ErrorClass = "server"

	// ErrorClassRateLimit represents 429 responses and active cooldowns.
	ErrorClassRateLimit ErrorClass = "rate_limit"

	// ErrorClassNetwork represents network/timeout errors.
	ErrorClassNetwork ErrorClass = "network"

	// ErrorClassDecode represents 2xx responses whose body cannot be decoded.
	ErrorClassDecode ErrorClass = "decode"
)

// RemoteRequestError is a failed listing request. It is fatal to the run.
type RemoteRequestError struct {
	StatusCode int
	ErrorClass ErrorClass
	Message    string
	Err        error
}

// Error implements the error interface.
func (e *RemoteRequestError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("remote %s error (status %d): %s: %v",
			e.ErrorClass, e.StatusCode, e.Message, e.Err)
	}
	return fmt.Sprintf("remote %s error (status %d): %s",
		e.ErrorClass, e.StatusCode, e.Message)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *RemoteRequestError) Unwrap() error {
	return e.Err
}

// IsRateLimited reports whether err is a throttling failure.
func IsRateLimited(err error) bool {
	var rre *RemoteRequestError
	return errors.As(err, &rre) && rre.ErrorClass == ErrorClassRateLimit
}
