package datawizard

import "errors"

var (
	ErrInvalidHandle      = errors.New("datawizard: invalid handle")
	ErrOutOfMemory        = errors.New("datawizard: out of memory")
	ErrAlreadyPlain       = errors.New("datawizard: handle is not partitioned")
	ErrAlreadyPartitioned = errors.New("datawizard: handle is already partitioned")
	ErrBadChildIndex      = errors.New("datawizard: child index out of range")
	ErrInvalidState       = errors.New("datawizard: invalid handle lifecycle state")
)
