package common

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies failures by where they happened and how they are remediated.
type Kind string

const (
	KindInput         Kind = "input"
	KindConfiguration Kind = "configuration"
	KindConversion    Kind = "conversion"
	KindOCR           Kind = "ocr"
	KindLLMRequest    Kind = "llm_request"
	KindLLMTimeout    Kind = "llm_timeout"
	KindDecode        Kind = "decode"
	KindPublish       Kind = "publish"
	KindInternal      Kind = "internal"
)

// AppError represents application-specific errors
type AppError struct {
	Kind    Kind
	Code    string
	Message string
	Cause   error
	// Raw carries the offending payload for decode failures.
	Raw string
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// HTTPStatus maps the error kind onto a response status.
func (e *AppError) HTTPStatus() int {
	if e.Kind == KindInput {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// Common application errors
var (
	ErrInvalidInput  = errors.New("invalid input")
	ErrEmptyFile     = errors.New("empty file")
	ErrTooLarge      = errors.New("file exceeds size limit")
	ErrUnsupported   = errors.New("unsupported file type")
	ErrNotFound      = errors.New("resource not found")
	ErrToolMissing   = errors.New("toolchain not available")
	ErrEncrypted     = errors.New("pdf is encrypted")
	ErrTimeout       = errors.New("deadline exceeded")
	ErrUnknownKey    = errors.New("unknown field")
	ErrNotJSONObject = errors.New("response is not a json object")
	ErrInternal      = errors.New("internal error")
	ErrDatabase      = errors.New("database error")
)

// Error constructors
func NewAppError(kind Kind, code, message string, cause error) *AppError {
	return &AppError{
		Kind:    kind,
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

func InputError(message string, cause error) *AppError {
	return NewAppError(KindInput, "INPUT_ERROR", message, cause)
}

func ConfigurationError(message string, cause error) *AppError {
	return NewAppError(KindConfiguration, "CONFIG_ERROR", message, cause)
}

func ConversionError(message string, cause error) *AppError {
	return NewAppError(KindConversion, "CONVERSION_ERROR", message, cause)
}

func OCRError(message string, cause error) *AppError {
	return NewAppError(KindOCR, "OCR_ERROR", message, cause)
}

func LLMRequestError(message string, cause error) *AppError {
	return NewAppError(KindLLMRequest, "LLM_REQUEST_ERROR", message, cause)
}

func LLMTimeoutError(message string, cause error) *AppError {
	return NewAppError(KindLLMTimeout, "LLM_TIMEOUT", message, cause)
}

func DecodeError(message, raw string, cause error) *AppError {
	e := NewAppError(KindDecode, "DECODE_ERROR", message, cause)
	e.Raw = raw
	return e
}

func PublishError(message string, cause error) *AppError {
	return NewAppError(KindPublish, "PUBLISH_ERROR", message, cause)
}

func WrapError(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// AsAppError finds the outermost AppError in err's chain.
func AsAppError(err error) (*AppError, bool) {
	var ae *AppError
	if errors.As(err, &ae) {
		return ae, true
	}
	return nil, false
}

// KindOf returns the kind of the first AppError in the chain, or KindInternal.
func KindOf(err error) Kind {
	if ae, ok := AsAppError(err); ok {
		return ae.Kind
	}
	return KindInternal
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
