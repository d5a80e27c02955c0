package errors

import (
	"encoding/json"
	"fmt"
)

// ErrorCode represents a specific error condition
type ErrorCode string

const (
	// Configuration errors
	ErrCodeConfigNotFound   ErrorCode = "CONFIG_NOT_FOUND"
	ErrCodeConfigInvalid    ErrorCode = "CONFIG_INVALID"
	ErrCodeConfigValidation ErrorCode = "CONFIG_VALIDATION"

	// REST errors
	ErrCodeNetwork         ErrorCode = "NETWORK_ERROR"
	ErrCodeHTTPStatus      ErrorCode = "HTTP_STATUS"
	ErrCodeInvalidResponse ErrorCode = "INVALID_RESPONSE"

	// Push channel errors
	ErrCodeChannelProtocol  ErrorCode = "CHANNEL_PROTOCOL"
	ErrCodeChannelHandshake ErrorCode = "CHANNEL_HANDSHAKE"
	ErrCodeChannelClosed    ErrorCode = "CHANNEL_CLOSED"

	// General errors
	ErrCodeInternal     ErrorCode = "INTERNAL_ERROR"
	ErrCodeInvalidInput ErrorCode = "INVALID_INPUT"
)

// StockError represents a structured error with context
type StockError struct {
	Code    ErrorCode              `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
	Cause   error                  `json:"-"`
}

// Error implements the error interface
func (e *StockError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap implements the errors.Unwrap interface
func (e *StockError) Unwrap() error {
	return e.Cause
}

// WithDetail adds a detail to the error
func (e *StockError) WithDetail(key string, value interface{}) *StockError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// ToJSON converts the error to JSON
func (e *StockError) ToJSON() string {
	data, _ := json.MarshalIndent(e, "", "  ")
	return string(data)
}

// New creates a new StockError
func New(code ErrorCode, message string) *StockError {
	return &StockError{
		Code:    code,
		Message: message,
	}
}

// Wrap wraps an existing error with a StockError
func Wrap(err error, code ErrorCode, message string) *StockError {
	return &StockError{
		Code:    code,
		Message: message,
		Cause:   err,
	}
}

// As returns the first StockError in err's chain.
func As(err error) (*StockError, bool) {
	for err != nil {
		if stockErr, ok := err.(*StockError); ok {
			return stockErr, true
		}
		unwrapper, ok := err.(interface{ Unwrap() error })
		if !ok {
			return nil, false
		}
		err = unwrapper.Unwrap()
	}
	return nil, false
}

// Is checks if an error is a specific StockError code
func Is(err error, code ErrorCode) bool {
	if err == nil {
		return false
	}

	stockErr, ok := err.(*StockError)
	if !ok {
		// Try to unwrap
		if unwrapper, ok := err.(interface{ Unwrap() error }); ok {
			return Is(unwrapper.Unwrap(), code)
		}
		return false
	}

	if stockErr.Code == code {
		return true
	}
	// A StockError may itself wrap a more specific one.
	return stockErr.Cause != nil && Is(stockErr.Cause, code)
}

// GetCode extracts the error code from an error
func GetCode(err error) ErrorCode {
	stockErr, ok := As(err)
	if !ok {
		return ""
	}
	return stockErr.Code
}
