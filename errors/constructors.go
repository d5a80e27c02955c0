package errors

import (
	"fmt"
	"net/http"
)

// ConfigNotFound creates a configuration not found error
func ConfigNotFound(path string) *StockError {
	return New(ErrCodeConfigNotFound, fmt.Sprintf("configuration file not found: %s", path)).
		WithDetail("path", path)
}

// ConfigInvalid creates an invalid configuration error
func ConfigInvalid(reason string) *StockError {
	return New(ErrCodeConfigInvalid, fmt.Sprintf("invalid configuration: %s", reason))
}

// NetworkError reports that a connection to the API or the hub could not be
// established or was dropped.
func NetworkError(target string, err error) *StockError {
	return Wrap(err, ErrCodeNetwork, fmt.Sprintf("cannot reach %s", target)).
		WithDetail("target", target)
}

// HTTPStatusError reports a REST call that completed with a non-success status.
func HTTPStatusError(method, url string, status int, message string) *StockError {
	if message == "" {
		message = DefaultStatusMessage(status)
	}
	return New(ErrCodeHTTPStatus, message).
		WithDetail("method", method).
		WithDetail("url", url).
		WithDetail("status", status)
}

// InvalidResponse reports a response body that could not be decoded.
func InvalidResponse(url string, err error) *StockError {
	return Wrap(err, ErrCodeInvalidResponse, "failed to decode response").
		WithDetail("url", url)
}

// ChannelProtocolError reports a malformed or unexpected hub message.
func ChannelProtocolError(reason string, err error) *StockError {
	return Wrap(err, ErrCodeChannelProtocol, reason)
}

// HandshakeError reports a hub handshake rejected by the server.
func HandshakeError(reason string) *StockError {
	return New(ErrCodeChannelHandshake, fmt.Sprintf("hub handshake failed: %s", reason))
}

// StatusCode returns the HTTP status carried by err, or 0.
func StatusCode(err error) int {
	stockErr, ok := As(err)
	if !ok || stockErr.Code != ErrCodeHTTPStatus {
		return 0
	}
	status, _ := stockErr.Details["status"].(int)
	return status
}

// DefaultStatusMessage returns the user-facing text for a status the server
// did not describe.
func DefaultStatusMessage(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "Invalid request. Please check your input."
	case http.StatusUnauthorized:
		return "Unauthorized. Please log in again."
	case http.StatusForbidden:
		return "You do not have permission to perform this action."
	case http.StatusNotFound:
		return "The requested resource was not found."
	case http.StatusInternalServerError:
		return "A server error occurred. Please try again later."
	case http.StatusServiceUnavailable:
		return "Service temporarily unavailable. Please try again later."
	default:
		return fmt.Sprintf("An error occurred (Status: %d)", status)
	}
}

// UserMessage extracts a user-friendly message from err.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	stockErr, ok := As(err)
	if !ok {
		return err.Error()
	}
	switch stockErr.Code {
	case ErrCodeHTTPStatus:
		return stockErr.Message
	case ErrCodeNetwork:
		return fmt.Sprintf("Cannot reach %v. Check the connection and try again.", stockErr.Details["target"])
	default:
		return stockErr.Message
	}
}
