package site

import (
	"codeberg.org/kvo/std/errors"
)

// Predefined errors for use across the feed server.
var (
	ErrAuthFailed      = errors.New("authentication failed", nil)
	ErrBadCommandUsage = errors.New("invalid invocation", nil)
	ErrIncompleteCreds = errors.New("access has incomplete credentials", nil)
	ErrInitFailed      = errors.New("initialization failed", nil)
	ErrInvalidAuth     = errors.New("invalid session token", nil)
	ErrNotFound        = errors.New("cannot find resource", nil)
)
