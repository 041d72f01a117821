// Package errs defines the failure taxonomy shared by the launcher and the
// control-plane controllers.
//
// Every failure is an *Error carrying a Kind, the operation that failed and the
// target it was aimed at (an endpoint, an image, an instance name). Kinds can be
// matched with errors.Is against the sentinel values below.
package errs

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"unicode/utf8"
)

// Kind categorizes a failure.
type Kind int

const (
	KindUnknown Kind = iota
	// KindConfig is malformed configuration input.
	KindConfig
	// KindLaunch is a container runtime failure while starting the backend.
	KindLaunch
	// KindStop is a container runtime failure while stopping the backend.
	KindStop
	KindResetFailed
	KindSaveFailed
	KindLoadFailed
	// KindInvalidRequest is a caller contract violation.
	KindInvalidRequest
	// KindAuthRequired is a credential-requiring operation called without one.
	// It is InvalidRequest-class.
	KindAuthRequired
	KindProvisionTimeout
	KindProvisionFailed
	KindNotFound
	// KindRemote is an unclassified failure reported by a remote API.
	KindRemote
)

var kindNames = map[Kind]string{
	KindUnknown:          "unknown",
	KindConfig:           "config error",
	KindLaunch:           "launch error",
	KindStop:             "stop error",
	KindResetFailed:      "reset failed",
	KindSaveFailed:       "save failed",
	KindLoadFailed:       "load failed",
	KindInvalidRequest:   "invalid request",
	KindAuthRequired:     "auth required",
	KindProvisionTimeout: "provision timeout",
	KindProvisionFailed:  "provision failed",
	KindNotFound:         "not found",
	KindRemote:           "remote error",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Sentinels for errors.Is.
var (
	ErrConfig           = &Error{Kind: KindConfig}
	ErrLaunch           = &Error{Kind: KindLaunch}
	ErrStop             = &Error{Kind: KindStop}
	ErrResetFailed      = &Error{Kind: KindResetFailed}
	ErrSaveFailed       = &Error{Kind: KindSaveFailed}
	ErrLoadFailed       = &Error{Kind: KindLoadFailed}
	ErrInvalidRequest   = &Error{Kind: KindInvalidRequest}
	ErrAuthRequired     = &Error{Kind: KindAuthRequired}
	ErrProvisionTimeout = &Error{Kind: KindProvisionTimeout}
	ErrProvisionFailed  = &Error{Kind: KindProvisionFailed}
	ErrNotFound         = &Error{Kind: KindNotFound}
	ErrRemote           = &Error{Kind: KindRemote}
)

// Error is a structured failure with enough context to act on.
// It never carries credential values.
type Error struct {
	Kind       Kind
	Op         string
	Target     string
	Detail     string
	StatusCode int
	Cause      error
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		if e.Target != "" {
			fmt.Fprintf(&b, " %s", e.Target)
		}
		b.WriteString(": ")
	}
	b.WriteString(e.Kind.String())
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, " (status %d)", e.StatusCode)
	}
	if e.Detail != "" {
		fmt.Fprintf(&b, ": %s", e.Detail)
	}
	if e.Cause != nil {
		fmt.Fprintf(&b, ": %v", e.Cause)
	}
	return b.String()
}

// Unwrap returns the underlying cause error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target is an *Error of the same kind. AuthRequired also
// matches InvalidRequest.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Kind == e.Kind {
		return true
	}
	return t.Kind == KindInvalidRequest && e.Kind == KindAuthRequired
}

// New creates an Error of the given kind.
func New(kind Kind, op, target, detail string) *Error {
	return &Error{Kind: kind, Op: op, Target: target, Detail: detail}
}

// Wrap creates an Error of the given kind around cause.
func Wrap(kind Kind, op, target string, cause error) *Error {
	return &Error{Kind: kind, Op: op, Target: target, Cause: cause}
}

// Configf is shorthand for a KindConfig error with a formatted detail.
func Configf(format string, args ...any) *Error {
	return &Error{Kind: KindConfig, Detail: fmt.Sprintf(format, args...)}
}

// ConfigOpf is Configf for input rejected by op, naming the offending target.
func ConfigOpf(op, target, format string, args ...any) *Error {
	return &Error{Kind: KindConfig, Op: op, Target: target, Detail: fmt.Sprintf(format, args...)}
}

// AuthRequired reports that op on target needs a credential.
func AuthRequired(op, target string) *Error {
	return &Error{Kind: KindAuthRequired, Op: op, Target: target, Detail: "a credential is required"}
}

// FromStatus builds an Error for a non-success HTTP answer. Kind is used for
// everything except 404, which maps to KindNotFound when notFound is true.
func FromStatus(kind Kind, op, target string, status int, body string, notFound bool) *Error {
	if notFound && status == http.StatusNotFound {
		kind = KindNotFound
	}
	detail := strings.TrimSpace(body)
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		if detail == "" {
			detail = "credential rejected"
		}
	case http.StatusNotFound:
		if detail == "" {
			detail = "not found"
		}
	}
	return &Error{Kind: kind, Op: op, Target: target, StatusCode: status, Detail: truncate(detail, 512)}
}

// KindOf returns the Kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// IsNotFound checks if an error is a not-found failure
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsAuthRequired checks if an error is a missing-credential failure
func IsAuthRequired(err error) bool {
	return errors.Is(err, ErrAuthRequired)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	// never cut a multi-byte rune in half
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}
