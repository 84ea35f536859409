package services

import (
	"context"
	"errors"
	"io/fs"
	"net"
	"strings"
)

var (
	ErrExternalTool  = errors.New("external tool error")
	ErrValidation    = errors.New("validation error")
	ErrConfiguration = errors.New("configuration error")
	ErrNotFound      = errors.New("not found")
	ErrTimeout       = errors.New("timeout")
	ErrTransient     = errors.New("transient failure")
	ErrCanceled      = errors.New("canceled")
)

// Kind groups failures by how the caller should surface them.
type Kind string

const (
	// KindUser covers bad input and missing files or hosts. Never reported externally.
	KindUser Kind = "user"
	// KindLogic covers everything else; eligible for external error reporting.
	KindLogic Kind = "logic"
	// KindCanceled is a terminal state rather than a failure.
	KindCanceled Kind = "canceled"
)

// Error is the structured error produced by Wrap.
type Error struct {
	Marker    error
	Stage     string
	Operation string
	Message   string
	Hint      string
	Cause     error
}

func (e *Error) Error() string {
	detail := buildDetail(e.Stage, e.Operation, e.Message)
	marker := "service failure"
	if e.Marker != nil {
		marker = e.Marker.Error()
	}
	if e.Cause != nil {
		return marker + ": " + detail + ": " + e.Cause.Error()
	}
	return marker + ": " + detail
}

func (e *Error) Unwrap() []error {
	out := make([]error, 0, 2)
	if e.Marker != nil {
		out = append(out, e.Marker)
	}
	if e.Cause != nil {
		out = append(out, e.Cause)
	}
	return out
}

// Wrap builds an error message that includes stage context while tagging it with
// the provided marker for later classification. The marker should be one
// of the exported sentinel errors above.
func Wrap(marker error, stage, operation, message string, err error) error {
	if marker == nil {
		marker = ErrTransient
	}
	return &Error{
		Marker:    marker,
		Stage:     strings.TrimSpace(stage),
		Operation: strings.TrimSpace(operation),
		Message:   strings.TrimSpace(message),
		Cause:     err,
	}
}

// WithHint attaches a remediation hint to an error produced by Wrap. Other
// errors are returned unchanged.
func WithHint(err error, hint string) error {
	var svcErr *Error
	if !errors.As(err, &svcErr) {
		return err
	}
	clone := *svcErr
	clone.Hint = strings.TrimSpace(hint)
	return &clone
}

// ErrorDetails is the flattened view of a classified error used for logging
// and user-facing summaries.
type ErrorDetails struct {
	Kind      Kind
	Marker    string
	Operation string
	Message   string
	Hint      string
	Cause     error
}

// Details extracts the structured fields of err. Errors not produced by Wrap
// are reported with their plain message.
func Details(err error) ErrorDetails {
	if err == nil {
		return ErrorDetails{}
	}
	details := ErrorDetails{Kind: Classify(err)}
	var svcErr *Error
	if errors.As(err, &svcErr) {
		if svcErr.Marker != nil {
			details.Marker = svcErr.Marker.Error()
		}
		details.Operation = svcErr.Operation
		details.Message = svcErr.Message
		details.Hint = svcErr.Hint
		details.Cause = svcErr.Cause
	}
	if details.Message == "" {
		details.Message = strings.TrimSpace(err.Error())
	}
	return details
}

// Classify maps an error onto the user/logic/canceled taxonomy.
func Classify(err error) Kind {
	switch {
	case err == nil:
		return ""
	case IsCanceled(err):
		return KindCanceled
	case IsUserError(err):
		return KindUser
	default:
		return KindLogic
	}
}

// IsCanceled reports whether err represents cooperative cancellation.
func IsCanceled(err error) bool {
	return errors.Is(err, ErrCanceled) || errors.Is(err, context.Canceled)
}

// IsUserError reports whether err belongs to the filesystem/network
// not-found family or carries a user-input marker.
func IsUserError(err error) bool {
	if err == nil {
		return false
	}
	switch {
	case errors.Is(err, ErrValidation),
		errors.Is(err, ErrNotFound),
		errors.Is(err, ErrConfiguration),
		errors.Is(err, fs.ErrNotExist),
		errors.Is(err, fs.ErrPermission):
		return true
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) && dnsErr.IsNotFound {
		return true
	}
	return false
}

// IsReportable reports whether err should be forwarded to an external error
// reporter.
func IsReportable(err error) bool {
	return Classify(err) == KindLogic
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
