package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorType identifies which stage of the pipeline produced an error
type ErrorType string

const (
	ErrorTypeInvalidReference ErrorType = "invalid_reference"
	ErrorTypeNetwork          ErrorType = "network"
	ErrorTypeExtraction       ErrorType = "extraction"
	ErrorTypeListing          ErrorType = "listing"
	ErrorTypeDownload         ErrorType = "download"
	ErrorTypeUnknown          ErrorType = "unknown"
)

// Kind narrows an ErrorType down to a specific cause
type Kind string

const (
	KindNone Kind = ""

	// Network kinds
	KindTimeout          Kind = "timeout"
	KindConnection       Kind = "connection"
	KindTooManyRedirects Kind = "too_many_redirects"
	KindExhaustedRetries Kind = "exhausted_retries"

	// Extraction kinds (KindNetwork is shared with listing and download)
	KindNetwork    Kind = "network"
	KindUnparsable Kind = "unparsable"

	// Listing kinds
	KindMalformedResponse Kind = "malformed_response"
	KindRejected          Kind = "rejected"

	// Download kinds
	KindBadStatus    Kind = "bad_status"
	KindSizeMismatch Kind = "size_mismatch"
	KindIO           Kind = "io"
)

// Error is the single error type crossing component boundaries
type Error struct {
	Type    ErrorType
	Kind    Kind
	Message string
	// Code is the HTTP status involved, 0 when none
	Code int
	Err  error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s error", e.Type)
	if e.Kind != KindNone {
		msg = fmt.Sprintf("%s (%s)", msg, e.Kind)
	}
	if e.Code != 0 {
		msg = fmt.Sprintf("%s [status %d]", msg, e.Code)
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports a match when target is an *Error with the same Type and,
// if the target sets one, the same Kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Type != e.Type {
		return false
	}
	return t.Kind == KindNone || t.Kind == e.Kind
}

// Sentinels usable with errors.Is
var (
	ErrInvalidReference = &Error{Type: ErrorTypeInvalidReference}
	ErrNetwork          = &Error{Type: ErrorTypeNetwork}
	ErrExtraction       = &Error{Type: ErrorTypeExtraction}
	ErrListing          = &Error{Type: ErrorTypeListing}
	ErrDownload         = &Error{Type: ErrorTypeDownload}
)

func InvalidReference(msg string, cause error) *Error {
	return &Error{Type: ErrorTypeInvalidReference, Message: msg, Err: cause}
}

func Network(kind Kind, msg string, code int, cause error) *Error {
	return &Error{Type: ErrorTypeNetwork, Kind: kind, Message: msg, Code: code, Err: cause}
}

func Extraction(kind Kind, msg string, code int, cause error) *Error {
	return &Error{Type: ErrorTypeExtraction, Kind: kind, Message: msg, Code: code, Err: cause}
}

func Listing(kind Kind, msg string, code int, cause error) *Error {
	return &Error{Type: ErrorTypeListing, Kind: kind, Message: msg, Code: code, Err: cause}
}

func Download(kind Kind, msg string, code int, cause error) *Error {
	return &Error{Type: ErrorTypeDownload, Kind: kind, Message: msg, Code: code, Err: cause}
}

// IsType reports whether any error in err's chain is an *Error of type t
func IsType(err error, t ErrorType) bool {
	var e *Error
	for err != nil {
		if stderrors.As(err, &e) {
			if e.Type == t {
				return true
			}
			err = e.Err
			continue
		}
		return false
	}
	return false
}

// KindOf returns the Kind of the outermost *Error in err's chain
func KindOf(err error) Kind {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Kind
	}
	return KindNone
}

// StatusOf returns the HTTP status carried by the outermost *Error, or 0
func StatusOf(err error) int {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Code
	}
	return 0
}

// IsRetryableStatusCode reports whether a response status is transient.
// Only throttling and gateway-style server failures qualify.
func IsRetryableStatusCode(statusCode int) bool {
	switch statusCode {
	case 429, 500, 502, 503, 504:
		return true
	default:
		return false
	}
}
