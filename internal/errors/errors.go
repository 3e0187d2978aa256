package appErrors

import (
	"errors"
	"fmt"
)

// NotFoundError means the entity does not exist (within the caller's
// organization scope).
type NotFoundError struct {
	Entity string
	ID     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Entity, e.ID)
}

func NewNotFound(entity, id string) error {
	return &NotFoundError{Entity: entity, ID: id}
}

func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// ValidationError means bad input, rejected before any write.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string {
	return e.Msg
}

func NewValidation(msg string) error {
	return &ValidationError{Msg: msg}
}

func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// PermissionError means the asset belongs to another organization.
type PermissionError struct {
	AssetID string
}

func (e *PermissionError) Error() string {
	return "no permission for this asset"
}

func NewPermission(assetID string) error {
	return &PermissionError{AssetID: assetID}
}

func IsPermission(err error) bool {
	var pe *PermissionError
	return errors.As(err, &pe)
}

// PersistenceError wraps a backing-store failure with a domain-readable
// operation name.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("failed to %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

func NewPersistence(op string, err error) error {
	return &PersistenceError{Op: op, Err: err}
}

func IsPersistence(err error) bool {
	var pe *PersistenceError
	return errors.As(err, &pe)
}

// ConflictError means a lock or revision race: the state moved under
// the caller.
type ConflictError struct {
	Msg string
}

func (e *ConflictError) Error() string {
	return e.Msg
}

func NewConflict(msg string) error {
	return &ConflictError{Msg: msg}
}

func IsConflict(err error) bool {
	var ce *ConflictError
	return errors.As(err, &ce)
}
