package task

import "errors"

var (
	ErrNoDevice     = errors.New("task: no worker can execute this task")
	ErrInvalidState = errors.New("task: invalid state")
	ErrAbortKernel  = errors.New("task: kernel aborted")
)
