// Package errors defines the failure taxonomy shared by the bundle engine.
//
// Four conditions matter to callers:
//   - MalformedDefinitionError: a definition document has no usable
//     configuration block or lacks identity fields. Fatal for that
//     definition only.
//   - NotFoundError: a reference could not be located in any tier. Fatal in
//     strict contexts, skipped with a warning in best-effort contexts.
//   - SecurityInvariantError: a capability contract was broken. Always fatal.
//   - SizeLimitError: a bundle exceeded a blocking size threshold.
//
// Each typed error matches its sentinel through errors.Is, so callers can
// classify with either errors.Is(err, ErrNotFound) or errors.As.
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Re-export standard library functions so callers only need this package.
var (
	Is     = errors.Is
	As     = errors.As
	Unwrap = errors.Unwrap
	New    = errors.New
	Join   = errors.Join
)

// Severity ranks how a failure affects the surrounding operation.
type Severity int

const (
	// SeverityWarning failures are reported but never stop a build.
	SeverityWarning Severity = iota
	// SeverityError failures stop the current target.
	SeverityError
	// SeverityCritical failures stop the whole batch.
	SeverityCritical
)

// String returns the string representation of the severity level.
func (s Severity) String() string {
	switch s {
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	case SeverityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// Sentinel errors.
var (
	ErrMalformedDefinition = New("malformed definition")
	ErrNotFound            = New("not found")
	ErrSecurityInvariant   = New("security invariant violation")
	ErrSizeLimitExceeded   = New("size limit exceeded")
	ErrCapabilityMissing   = New("designated agent is missing its capability")
	ErrInvalidConfig       = New("invalid configuration")
)

type baseError struct {
	message  string
	cause    error
	severity Severity
}

func (e *baseError) Unwrap() error {
	return e.cause
}

// Severity returns the error severity.
func (e *baseError) Severity() Severity {
	return e.severity
}

func (e *baseError) format(prefix string, parts []string) string {
	if len(parts) > 0 {
		prefix = fmt.Sprintf("%s [%s]", prefix, strings.Join(parts, ", "))
	}
	if e.message == "" && e.cause != nil {
		return fmt.Sprintf("%s: %v", prefix, e.cause)
	}
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.message, e.cause)
	}
	if e.message == "" {
		return prefix
	}
	return fmt.Sprintf("%s: %s", prefix, e.message)
}

// MalformedDefinitionError reports a definition document that cannot be
// turned into a typed record.
//
// Example:
//
//	err := errors.NewMalformedDefinitionError("agent.name is required", nil).WithSource("agents/pm.md")
//	fmt.Println(err) // "malformed definition [source=agents/pm.md]: agent.name is required"
type MalformedDefinitionError struct {
	baseError
	Source string
	Field  string
}

// NewMalformedDefinitionError creates a new MalformedDefinitionError.
func NewMalformedDefinitionError(message string, cause error) *MalformedDefinitionError {
	return &MalformedDefinitionError{baseError: baseError{message: message, cause: cause, severity: SeverityError}}
}

// WithSource records which document failed to parse.
func (e *MalformedDefinitionError) WithSource(source string) *MalformedDefinitionError {
	e.Source = source
	return e
}

// WithField records the missing or invalid field.
func (e *MalformedDefinitionError) WithField(field string) *MalformedDefinitionError {
	e.Field = field
	return e
}

func (e *MalformedDefinitionError) Error() string {
	var parts []string
	if e.Source != "" {
		parts = append(parts, "source="+e.Source)
	}
	if e.Field != "" {
		parts = append(parts, "field="+e.Field)
	}
	return e.format("malformed definition", parts)
}

// Is matches ErrMalformedDefinition and any *MalformedDefinitionError.
func (e *MalformedDefinitionError) Is(target error) bool {
	if _, ok := target.(*MalformedDefinitionError); ok {
		return true
	}
	return target == ErrMalformedDefinition
}

// NotFoundError reports a reference that no tier could satisfy.
type NotFoundError struct {
	baseError
	Kind     string
	ID       string
	Context  string
	Searched []string
}

// NewNotFoundError creates a NotFoundError for kind/id.
func NewNotFoundError(kind, id string) *NotFoundError {
	return &NotFoundError{
		baseError: baseError{severity: SeverityError},
		Kind:      kind,
		ID:        id,
	}
}

// WithContext records the pack context the lookup ran in.
func (e *NotFoundError) WithContext(context string) *NotFoundError {
	e.Context = context
	return e
}

// WithSearched records the locations that were tried.
func (e *NotFoundError) WithSearched(paths ...string) *NotFoundError {
	e.Searched = append(e.Searched, paths...)
	return e
}

// WithCause attaches an underlying error, such as a wrapped parse failure.
func (e *NotFoundError) WithCause(cause error) *NotFoundError {
	e.cause = cause
	return e
}

func (e *NotFoundError) Error() string {
	parts := []string{fmt.Sprintf("%s=%s", e.Kind, e.ID)}
	if e.Context != "" {
		parts = append(parts, "pack="+e.Context)
	}
	msg := e.format("not found", parts)
	if len(e.Searched) > 0 {
		msg += " (searched " + strings.Join(e.Searched, ", ") + ")"
	}
	return msg
}

// Is matches ErrNotFound and any *NotFoundError.
func (e *NotFoundError) Is(target error) bool {
	if _, ok := target.(*NotFoundError); ok {
		return true
	}
	if target == ErrNotFound {
		return true
	}
	return e.cause != nil && errors.Is(e.cause, target)
}

// SecurityInvariantError reports an agent declaring a resource reserved for
// another agent.
type SecurityInvariantError struct {
	baseError
	Agent      string
	Resource   string
	Designated string
}

// NewSecurityInvariantError creates a SecurityInvariantError.
func NewSecurityInvariantError(agent, resource, designated string) *SecurityInvariantError {
	return &SecurityInvariantError{
		baseError: baseError{
			message:  fmt.Sprintf("only %s may depend on %s", designated, resource),
			severity: SeverityCritical,
		},
		Agent:      agent,
		Resource:   resource,
		Designated: designated,
	}
}

func (e *SecurityInvariantError) Error() string {
	return e.format("security invariant violation", []string{"agent=" + e.Agent})
}

// Is matches ErrSecurityInvariant and any *SecurityInvariantError.
func (e *SecurityInvariantError) Is(target error) bool {
	if _, ok := target.(*SecurityInvariantError); ok {
		return true
	}
	return target == ErrSecurityInvariant
}

// SizeLimitError reports a bundle rejected by a blocking size threshold.
type SizeLimitError struct {
	baseError
	Target string
	Size   int
	Limit  int
}

// NewSizeLimitError creates a SizeLimitError.
func NewSizeLimitError(target string, size, limit int) *SizeLimitError {
	return &SizeLimitError{
		baseError: baseError{
			message:  fmt.Sprintf("%d characters exceeds limit of %d", size, limit),
			severity: SeverityError,
		},
		Target: target,
		Size:   size,
		Limit:  limit,
	}
}

func (e *SizeLimitError) Error() string {
	var parts []string
	if e.Target != "" {
		parts = append(parts, "target="+e.Target)
	}
	return e.format("size limit exceeded", parts)
}

// Is matches ErrSizeLimitExceeded and any *SizeLimitError.
func (e *SizeLimitError) Is(target error) bool {
	if _, ok := target.(*SizeLimitError); ok {
		return true
	}
	return target == ErrSizeLimitExceeded
}

// ConfigError reports invalid configuration, including capability contracts
// whose designated agent does not declare the reserved resource.
type ConfigError struct {
	baseError
	Key string
}

// NewConfigError creates a ConfigError. A nil cause defaults to ErrInvalidConfig.
func NewConfigError(message string, cause error) *ConfigError {
	if cause == nil {
		cause = ErrInvalidConfig
	}
	return &ConfigError{baseError: baseError{message: message, cause: cause, severity: SeverityError}}
}

// WithKey records the offending configuration key or agent id.
func (e *ConfigError) WithKey(key string) *ConfigError {
	e.Key = key
	return e
}

func (e *ConfigError) Error() string {
	var parts []string
	if e.Key != "" {
		parts = append(parts, "key="+e.Key)
	}
	return e.format("configuration error", parts)
}

// Is matches any *ConfigError and the wrapped cause.
func (e *ConfigError) Is(target error) bool {
	if _, ok := target.(*ConfigError); ok {
		return true
	}
	return e.cause != nil && errors.Is(e.cause, target)
}

// SeverityOf reports the severity carried by err, defaulting to SeverityError.
func SeverityOf(err error) Severity {
	var s interface{ Severity() Severity }
	if errors.As(err, &s) {
		return s.Severity()
	}
	return SeverityError
}

// IsFatal reports whether err must abort an entire batch.
func IsFatal(err error) bool {
	return err != nil && (errors.Is(err, ErrSecurityInvariant) || SeverityOf(err) == SeverityCritical)
}
