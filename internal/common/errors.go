package common

import "errors"

var (
	// identity
	ErrNotProvisioned   = errors.New("client not provisioned")
	ErrInvalidToken     = errors.New("invalid token")
	ErrIdentityMismatch = errors.New("identity mismatch")
	ErrUnknownClient    = errors.New("unknown client")

	// repository
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")

	// boot
	ErrNoImageAssigned = errors.New("no image assigned")

	// image lifecycle
	ErrAlreadyActive = errors.New("overlay already active")
	ErrNotActive     = errors.New("overlay not active")
	ErrInUse         = errors.New("image in use")
	ErrLocked        = errors.New("image locked")
	ErrOutOfRange    = errors.New("write out of range")

	ErrInvalidCommand = errors.New("invalid command")

	ErrStorageFailure = errors.New("storage failure")
)
