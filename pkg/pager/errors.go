package pager

import "errors"

var (
	ErrIndexOutOfRange    = errors.New("index out of range of the remote collection")
	ErrCursorNotAdvancing = errors.New("server returned the same page cursor twice")
)
