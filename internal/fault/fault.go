package fault

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies a runtime failure. Every error the dispatcher or its
// collaborators return is one of these kinds, never a raw error.
type Kind int

const (
	KindUnknown Kind = iota
	KindDuplicateToolID
	KindToolNotFound
	KindInputValidation
	KindOutputValidation
	KindAuthenticationFailed
	KindSessionRevoked
	KindPolicyDenied
	KindCredentialNotConfigured
	KindCredentialNotBound
	KindCredentialSchemaViolation
	KindHandlerTimeout
	KindHandlerError
)

var kindNames = map[Kind]string{
	KindUnknown:                   "unknown",
	KindDuplicateToolID:           "duplicate_tool_id",
	KindToolNotFound:              "tool_not_found",
	KindInputValidation:           "input_validation_failed",
	KindOutputValidation:          "output_validation_failed",
	KindAuthenticationFailed:      "authentication_failed",
	KindSessionRevoked:            "session_revoked",
	KindPolicyDenied:              "policy_denied",
	KindCredentialNotConfigured:   "credential_not_configured",
	KindCredentialNotBound:        "credential_not_bound",
	KindCredentialSchemaViolation: "credential_schema_violation",
	KindHandlerTimeout:            "handler_timeout",
	KindHandlerError:              "handler_error",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "unknown"
}

// FieldError pinpoints a single schema violation inside a structured value.
type FieldError struct {
	Path    string `json:"path"`
	Message string `json:"message"`
}

// Error is the typed failure carried through the invocation path.
// Fields is populated only for validation kinds.
type Error struct {
	Kind    Kind
	Message string
	Fields  []FieldError
	Err     error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.String())
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if len(e.Fields) > 0 {
		parts := make([]string, len(e.Fields))
		for i, f := range e.Fields {
			parts[i] = f.Path + ": " + f.Message
		}
		b.WriteString(" [")
		b.WriteString(strings.Join(parts, "; "))
		b.WriteString("]")
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// New creates a typed error with a plain message.
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

// Newf creates a typed error with a formatted message.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a kind and message to an underlying error.
func Wrap(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, Message: msg, Err: err}
}

// WithFields creates a validation error carrying field-level detail.
func WithFields(kind Kind, msg string, fields []FieldError) *Error {
	return &Error{Kind: kind, Message: msg, Fields: fields}
}

// KindOf extracts the kind from an error chain. Untyped errors report
// KindUnknown; nil reports KindUnknown as well.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return KindUnknown
}

// Is reports whether the error chain carries the given kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// FieldsOf returns the field-level detail from an error chain, if any.
func FieldsOf(err error) []FieldError {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Fields
	}
	return nil
}
