package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Common domain errors that can occur during generation and judging.
var (
	// ErrEmptyPool indicates that a tournament was started with no admissible
	// candidates. It is an input-validation failure, not a tournament failure.
	ErrEmptyPool = errors.New("candidate pool is empty")

	// ErrInvalidConfiguration indicates that configuration is invalid or incomplete.
	ErrInvalidConfiguration = errors.New("invalid configuration")

	// ErrNoPayload indicates that no parser strategy produced a decodable payload.
	ErrNoPayload = errors.New("no decodable payload found")
)

// ParseError reports a backend response that no parser strategy could decode.
// It is recovered at the component boundary and never reaches the caller of
// the judge or the generator.
type ParseError struct {
	// Target names the shape the parser was decoding into (e.g. "rankings").
	Target string

	// Attempts lists the strategies that were tried, in order.
	Attempts []string

	// Length is the size of the raw response in bytes.
	Length int

	// Err is the last decode error, if any strategy produced a payload.
	Err error
}

// Error implements the error interface for ParseError.
func (e *ParseError) Error() string {
	msg := fmt.Sprintf("parse error: target=%s, attempts=[%s], length=%d",
		e.Target, strings.Join(e.Attempts, ","), e.Length)
	if e.Err != nil {
		msg += fmt.Sprintf(", err=%v", e.Err)
	}
	return msg
}

// Unwrap returns the underlying decode error.
func (e *ParseError) Unwrap() error { return e.Err }

// NewParseError creates a new ParseError with the given details.
func NewParseError(target string, attempts []string, length int, err error) *ParseError {
	return &ParseError{
		Target:   target,
		Attempts: attempts,
		Length:   length,
		Err:      err,
	}
}

// StructuralError reports a response that decoded as JSON but is missing
// required fields. It is handled exactly like a ParseError.
type StructuralError struct {
	// Target names the expected response shape.
	Target string

	// Field is the missing or invalid field.
	Field string

	// Err is the underlying validation error.
	Err error
}

// Error implements the error interface for StructuralError.
func (e *StructuralError) Error() string {
	return fmt.Sprintf("structural error: target=%s, field=%s, err=%v", e.Target, e.Field, e.Err)
}

// Unwrap returns the underlying error.
func (e *StructuralError) Unwrap() error { return e.Err }

// NewStructuralError creates a new StructuralError with the given details.
func NewStructuralError(target, field string, err error) *StructuralError {
	return &StructuralError{
		Target: target,
		Field:  field,
		Err:    err,
	}
}

// BackendCallError wraps a failure talking to the generation, mutation, or
// judging backend.
type BackendCallError struct {
	// Backend identifies which backend failed ("generate", "mutate", "judge").
	Backend string

	// Model is the model the backend was using, when known.
	Model string

	// Err is the underlying transport or provider error.
	Err error
}

// Error implements the error interface for BackendCallError.
func (e *BackendCallError) Error() string {
	if e.Model == "" {
		return fmt.Sprintf("backend call error: backend=%s, err=%v", e.Backend, e.Err)
	}
	return fmt.Sprintf("backend call error: backend=%s, model=%s, err=%v", e.Backend, e.Model, e.Err)
}

// Unwrap returns the underlying error.
func (e *BackendCallError) Unwrap() error { return e.Err }

// NewBackendCallError creates a new BackendCallError with the given details.
func NewBackendCallError(backend, model string, err error) *BackendCallError {
	return &BackendCallError{
		Backend: backend,
		Model:   model,
		Err:     err,
	}
}

// TournamentExhaustionError reports a round in which no group produced a
// winner. It is terminal: the judging path is considered non-functional.
type TournamentExhaustionError struct {
	// Round is the 1-based round number that produced no winners.
	Round int

	// Survivors is the number of candidates that entered the round.
	Survivors int

	// Groups is the number of groups the round was partitioned into.
	Groups int
}

// Error implements the error interface for TournamentExhaustionError.
func (e *TournamentExhaustionError) Error() string {
	return fmt.Sprintf("tournament exhausted: no winners advanced in round %d (survivors=%d, groups=%d)",
		e.Round, e.Survivors, e.Groups)
}

// NewTournamentExhaustionError creates a new TournamentExhaustionError.
func NewTournamentExhaustionError(round, survivors, groups int) *TournamentExhaustionError {
	return &TournamentExhaustionError{
		Round:     round,
		Survivors: survivors,
		Groups:    groups,
	}
}

// ValidationError represents an error that occurred during validation.
// It can contain multiple validation failures.
type ValidationError struct {
	// Entity is the name of the entity that failed validation.
	Entity string

	// Errors contains the list of validation error messages.
	Errors []string
}

// Error implements the error interface for ValidationError.
func (e *ValidationError) Error() string {
	if len(e.Errors) == 1 {
		return fmt.Sprintf("validation error for %s: %s", e.Entity, e.Errors[0])
	}
	return fmt.Sprintf("validation errors for %s: %v", e.Entity, e.Errors)
}

// Unwrap lets callers match validation failures with ErrInvalidConfiguration.
func (e *ValidationError) Unwrap() error { return ErrInvalidConfiguration }

// AddError adds a new error message to the validation error.
func (e *ValidationError) AddError(msg string) { e.Errors = append(e.Errors, msg) }

// HasErrors returns true if there are any validation errors.
func (e *ValidationError) HasErrors() bool { return len(e.Errors) > 0 }

// NewValidationError creates a new ValidationError for the given entity.
func NewValidationError(entity string) *ValidationError {
	return &ValidationError{
		Entity: entity,
		Errors: make([]string, 0),
	}
}

// IsRecoverable reports whether err is one of the judge/generation failures
// that components absorb into fallback values.
func IsRecoverable(err error) bool {
	var (
		parseErr      *ParseError
		structuralErr *StructuralError
		backendErr    *BackendCallError
	)
	return errors.As(err, &parseErr) ||
		errors.As(err, &structuralErr) ||
		errors.As(err, &backendErr)
}
