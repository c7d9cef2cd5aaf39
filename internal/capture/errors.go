package capture

import "errors"

// Backend failures. All of them advance the orchestrator to the next
// backend and are reported as log events, never as stream errors on their own.
var (
	ErrToolNotFound      = errors.New("capture tool not found")
	ErrStartupTimeout    = errors.New("capture startup timed out")
	ErrMalformedGeometry = errors.New("malformed surface geometry")
	ErrProcessExited     = errors.New("capture process exited")
	ErrNoTarget          = errors.New("no capture target")
)

// ErrExhausted is returned once every backend has failed.
var ErrExhausted = errors.New("all capture backends failed")
