package spool

import "errors"

var (
	ErrOpenFailed      = errors.New("spool: open for write failed")
	ErrNotOpen         = errors.New("spool: no spool file to read")
	ErrInvalidRange    = errors.New("spool: invalid scan range")
	ErrSpoolOpen       = errors.New("spool: cannot reconfigure an open spool")
	ErrInvalidChannels = errors.New("spool: channel count must be positive")
	ErrInvalidSize     = errors.New("spool: capacity must be positive")
)
