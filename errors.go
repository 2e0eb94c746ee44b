package fluent

import (
	"errors"
	"fmt"
	"strings"
)

// Error identifiers carried by FluentError.
const (
	IDRequired            = "idRequired"
	NoDefaultDatabase     = "noDefaultDatabase"
	InvalidIDType         = "invalidIDType"
	InvalidID             = "invalidID"
	ModelNotFound         = "modelNotFound"
	UnknownDatabase       = "unknownDatabase"
	UnsupportedCapability = "unsupportedCapability"
	NotSoftDeletable      = "notSoftDeletable"
	InvalidKeyPath        = "invalidKeyPath"
)

// Sentinel errors for use with errors.Is. A FluentError matches the
// sentinel that shares its identifier.
var (
	// ErrIDRequired is returned when an operation needs a persisted identifier.
	ErrIDRequired = &FluentError{Identifier: IDRequired}

	// ErrNoDefaultDatabase is returned when no connection was given and the
	// model has no registered default database.
	ErrNoDefaultDatabase = &FluentError{Identifier: NoDefaultDatabase}

	// ErrInvalidIDType is returned when the model's identifier type cannot
	// be constructed from a string.
	ErrInvalidIDType = &FluentError{Identifier: InvalidIDType}

	// ErrInvalidID is returned when a string fails to parse as an identifier.
	ErrInvalidID = &FluentError{Identifier: InvalidID}

	// ErrModelNotFound is returned when a lookup by identifier matched no row.
	ErrModelNotFound = &FluentError{Identifier: ModelNotFound}

	// ErrUnknownDatabase is returned when a container has no pool registered
	// under the requested identifier.
	ErrUnknownDatabase = &FluentError{Identifier: UnknownDatabase}

	// ErrUnsupportedCapability is returned when a connection lacks a capability.
	ErrUnsupportedCapability = &FluentError{Identifier: UnsupportedCapability}

	// ErrNotSoftDeletable is returned when a soft-delete operation is used on
	// an entity without a deletion marker.
	ErrNotSoftDeletable = &FluentError{Identifier: NotSoftDeletable}

	// ErrInvalidKeyPath is returned when a key path does not point into the model.
	ErrInvalidKeyPath = &FluentError{Identifier: InvalidKeyPath}

	// ErrTxStarted is returned when attempting to start a new transaction
	// within an existing transaction.
	ErrTxStarted = errors.New("fluent: cannot start a transaction within a transaction")
)

// FluentError is the tagged error returned by the model and query layer.
// Callers match on Identifier (or errors.Is against the sentinels) to
// handle known cases, e.g. treating ModelNotFound as a 404.
type FluentError struct {
	Identifier     string
	Reason         string
	SuggestedFixes []string
	Err            error // Optional underlying cause.
}

// Error returns the error string.
func (e *FluentError) Error() string {
	var sb strings.Builder
	sb.WriteString("fluent: ")
	sb.WriteString(e.Identifier)
	if e.Reason != "" {
		sb.WriteString(": ")
		sb.WriteString(e.Reason)
	}
	if e.Err != nil {
		fmt.Fprintf(&sb, ": %v", e.Err)
	}
	return sb.String()
}

// Is reports whether target is a FluentError with the same identifier.
func (e *FluentError) Is(target error) bool {
	t, ok := target.(*FluentError)
	return ok && t.Identifier == e.Identifier
}

// Unwrap returns the underlying error.
func (e *FluentError) Unwrap() error {
	return e.Err
}

// NewError returns a FluentError with the given identifier and reason.
func NewError(identifier, reason string, fixes ...string) *FluentError {
	return &FluentError{Identifier: identifier, Reason: reason, SuggestedFixes: fixes}
}

func errIDRequired(entity string) *FluentError {
	return NewError(IDRequired,
		fmt.Sprintf("%s does not have an identifier", entity),
		"save the model before performing this operation",
	)
}

func errNoDefaultDatabase(typeName string) *FluentError {
	return NewError(NoDefaultDatabase,
		fmt.Sprintf("no default database configured for %s", typeName),
		fmt.Sprintf("call SetDefaultDatabase on the %s entity during initialization", typeName),
		"pass an explicit connection to the query",
	)
}

func errInvalidIDType(typeName string) *FluentError {
	return NewError(InvalidIDType,
		fmt.Sprintf("identifier type %s cannot be created from a string", typeName),
		"use an integer, string or UUID identifier",
		"implement encoding.TextUnmarshaler on the identifier type",
	)
}

func errInvalidID(param, typeName string, cause error) *FluentError {
	e := NewError(InvalidID, fmt.Sprintf("could not convert %q to %s", param, typeName))
	e.Err = cause
	return e
}

func errModelNotFound(entity string, id any) *FluentError {
	return NewError(ModelNotFound, fmt.Sprintf("no %s with id %v", entity, id))
}

func errNotSoftDeletable(entity string) *FluentError {
	return NewError(NotSoftDeletable,
		fmt.Sprintf("%s has no deletion marker", entity),
		"configure the entity with WithSoftDelete",
		"embed mixin.SoftDelete in the model",
	)
}

// IsFluentError reports whether err is a FluentError with the given identifier.
func IsFluentError(err error, identifier string) bool {
	var e *FluentError
	return errors.As(err, &e) && e.Identifier == identifier
}

// IsIDRequired returns true if the error is an idRequired FluentError.
func IsIDRequired(err error) bool {
	return IsFluentError(err, IDRequired)
}

// IsNoDefaultDatabase returns true if the error is a noDefaultDatabase FluentError.
func IsNoDefaultDatabase(err error) bool {
	return IsFluentError(err, NoDefaultDatabase)
}

// IsInvalidID returns true if the error is an invalidID FluentError.
func IsInvalidID(err error) bool {
	return IsFluentError(err, InvalidID)
}

// IsInvalidIDType returns true if the error is an invalidIDType FluentError.
func IsInvalidIDType(err error) bool {
	return IsFluentError(err, InvalidIDType)
}

// IsModelNotFound returns true if the error is a modelNotFound FluentError.
func IsModelNotFound(err error) bool {
	return IsFluentError(err, ModelNotFound)
}

// RollbackError reports that a failed transaction could not be rolled
// back. It is joined with the error that caused the rollback.
type RollbackError struct {
	Err error // The rollback failure.
}

// Error returns the error string.
func (e *RollbackError) Error() string {
	return fmt.Sprintf("fluent: rollback failed: %v", e.Err)
}

// Unwrap returns the underlying error.
func (e *RollbackError) Unwrap() error {
	return e.Err
}
