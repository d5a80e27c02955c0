package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/grovetools/pharmastock/errors"
)

// ErrorHandler prints user-friendly error messages.
type ErrorHandler struct {
	Verbose bool
	Out     io.Writer
}

// NewErrorHandler creates a new error handler writing to stderr.
func NewErrorHandler(verbose bool) *ErrorHandler {
	return &ErrorHandler{
		Verbose: verbose,
		Out:     os.Stderr,
	}
}

// Handle prints err with a hint for known error codes and returns it.
func (h *ErrorHandler) Handle(err error) error {
	if err == nil {
		return nil
	}

	switch errors.GetCode(err) {
	case errors.ErrCodeConfigNotFound:
		fmt.Fprintf(h.Out, "❌ Configuration not found. Create pharmastock.yml or pass --config.\n")

	case errors.ErrCodeConfigInvalid, errors.ErrCodeConfigValidation:
		fmt.Fprintf(h.Out, "❌ Invalid configuration: %s\n", errors.UserMessage(err))
		fmt.Fprintf(h.Out, "Run 'pharmastock config layers' to see where each value comes from.\n")

	case errors.ErrCodeNetwork:
		fmt.Fprintf(h.Out, "❌ %s\n", errors.UserMessage(err))
		fmt.Fprintf(h.Out, "Check api_url, or start a local backend with 'pharmastock dev-server'.\n")

	case errors.ErrCodeHTTPStatus:
		fmt.Fprintf(h.Out, "❌ %s\n", errors.UserMessage(err))
		if errors.StatusCode(err) == 401 {
			fmt.Fprintf(h.Out, "Set auth.access_token or PHARMASTOCK_TOKEN.\n")
		}

	case errors.ErrCodeChannelHandshake:
		fmt.Fprintf(h.Out, "❌ The dashboard hub rejected the connection: %s\n", errors.UserMessage(err))

	default:
		fmt.Fprintf(h.Out, "❌ Error: %v\n", err)
	}

	if h.Verbose {
		if stockErr, ok := errors.As(err); ok {
			fmt.Fprintf(h.Out, "\nError details:\n%s\n", stockErr.ToJSON())
		}
	}
	return err
}
