// Package apperr holds sentinel errors shared across zensync packages.
package apperr

import "errors"

var (
	ErrNotFound      = errors.New("not found")
	ErrConflict      = errors.New("conflict")
	ErrAlreadyExists = errors.New("already exists")
	ErrConfig        = errors.New("configuration error")
	ErrRemote        = errors.New("remote call failed")
)
