package llm

import (
	"errors"
	"fmt"
	"net"
)

// RequestError is a provider failure annotated with whether retrying may help.
type RequestError struct {
	Provider   string
	StatusCode int
	Retryable  bool
	Body       string
	Err        error
}

func (e *RequestError) Error() string {
	switch {
	case e.StatusCode != 0 && e.Body != "":
		return fmt.Sprintf("%s: status %d: %s", e.Provider, e.StatusCode, e.Body)
	case e.StatusCode != 0:
		return fmt.Sprintf("%s: status %d", e.Provider, e.StatusCode)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Provider, e.Err)
	}
	return e.Provider + ": request failed"
}

func (e *RequestError) Unwrap() error { return e.Err }

// StatusRetryable reports whether an HTTP status is worth retrying.
func StatusRetryable(code int) bool {
	return code == 408 || code == 409 || code == 429 || code >= 500
}

// IsRetryable reports whether err is a transient provider failure.
func IsRetryable(err error) bool {
	var re *RequestError
	if errors.As(err, &re) {
		return re.Retryable
	}
	var ne net.Error
	return errors.As(err, &ne)
}
