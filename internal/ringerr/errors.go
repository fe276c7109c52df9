// Package ringerr implements the error taxonomy from:
// Unavailable, Timeout, DigestMismatch, Configuration, Transport, Fatal.
//
// See storage-node/internal/errors.StorageError
// (typed code + message + cause + Unwrap + gRPC status mapping) and the
// api-gateway/internal/errors.ErrorCode enum/HTTP-mapping pattern,
// generalized from storage/API error codes to the ring-core taxonomy.
package ringerr

import (
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Code is a taxonomy member.
type Code int

const (
	CodeUnavailable Code = iota
	CodeTimeout
	CodeDigestMismatch
	CodeConfiguration
	CodeTransport
	CodeFatal
)

func (c Code) String() string {
	switch c {
	case CodeUnavailable:
		return "Unavailable"
	case CodeTimeout:
		return "Timeout"
	case CodeDigestMismatch:
		return "DigestMismatch"
	case CodeConfiguration:
		return "Configuration"
	case CodeTransport:
		return "Transport"
	case CodeFatal:
		return "Fatal"
	default:
		return "Unknown"
	}
}

// Error is a structured ring-core error with code, message, and an
// optional wrapped cause.
type Error struct {
	Code    Code
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is supports errors.Is against a bare Code sentinel comparison via
// errors.As, and direct code comparison between two *Error values.
func (e *Error) Is(target error) bool {
	other, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == other.Code
}

// ToGRPCStatus maps the taxonomy onto gRPC status codes, mirroring the
// StorageError.ToGRPCStatus.
func (e *Error) ToGRPCStatus() *status.Status {
	return status.New(e.toGRPCCode(), e.Error())
}

func (e *Error) toGRPCCode() codes.Code {
	switch e.Code {
	case CodeUnavailable:
		return codes.Unavailable
	case CodeTimeout:
		return codes.DeadlineExceeded
	case CodeDigestMismatch:
		return codes.DataLoss
	case CodeConfiguration:
		return codes.FailedPrecondition
	case CodeTransport:
		return codes.Unavailable
	case CodeFatal:
		return codes.Internal
	default:
		return codes.Unknown
	}
}

// Constructors. Each returns *Error so callers can still use errors.As.

func Unavailable(format string, args ...interface{}) *Error {
	return &Error{Code: CodeUnavailable, Message: fmt.Sprintf(format, args...)}
}

func Timeout(format string, args ...interface{}) *Error {
	return &Error{Code: CodeTimeout, Message: fmt.Sprintf(format, args...)}
}

func DigestMismatch(format string, args ...interface{}) *Error {
	return &Error{Code: CodeDigestMismatch, Message: fmt.Sprintf(format, args...)}
}

func Configuration(format string, args ...interface{}) *Error {
	return &Error{Code: CodeConfiguration, Message: fmt.Sprintf(format, args...)}
}

func Transport(cause error, format string, args ...interface{}) *Error {
	return &Error{Code: CodeTransport, Message: fmt.Sprintf(format, args...), Cause: cause}
}

func Fatal(cause error, format string, args ...interface{}) *Error {
	return &Error{Code: CodeFatal, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// ErrConfiguration is a bare sentinel usable with errors.Is(err,
// ErrConfiguration) when callers don't need the formatted message.
var ErrConfiguration = &Error{Code: CodeConfiguration, Message: "configuration error"}

// IsCode reports whether err (or something it wraps) carries code.
func IsCode(err error, code Code) bool {
	for err != nil {
		if re, ok := err.(*Error); ok {
			if re.Code == code {
				return true
			}
			err = re.Cause
			continue
		}
		type unwrapper interface{ Unwrap() error }
		u, ok := err.(unwrapper)
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
