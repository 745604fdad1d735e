package adapter

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/go-resty/resty/v2"
)

// mapHTTPError translates an HTTP response status into the transport error
// taxonomy. 2xx maps to nil; 409 is handled by the caller (a contested
// submission is a verdict, not a failure) and never reaches this function.
func mapHTTPError(resp *resty.Response) error {
	code := resp.StatusCode()
	if code >= http.StatusOK && code < http.StatusMultipleChoices {
		return nil
	}

	body := strings.TrimSpace(string(resp.Body()))
	if body == "" {
		body = http.StatusText(code)
	}

	switch {
	case code == http.StatusUnauthorized:
		return fmt.Errorf("%w: %s", ErrAuthExpired, body)
	case code == http.StatusForbidden:
		return fmt.Errorf("%w: %s", ErrPermissionDenied, body)
	case code == http.StatusBadRequest || code == http.StatusUnprocessableEntity:
		return fmt.Errorf("%w: %s", ErrValidation, body)
	case code >= http.StatusInternalServerError || code == http.StatusTooManyRequests:
		return fmt.Errorf("%w: http %d: %s", ErrTransientNetwork, code, body)
	default:
		return fmt.Errorf("http %d: %s", code, body)
	}
}

// mapTransportError wraps resty-level failures (DNS, refused connections,
// timeouts) as transient: they say nothing about the mutation itself.
func mapTransportError(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrTransientNetwork, err)
}
