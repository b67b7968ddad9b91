package rawframe

import "fmt"

// A DecodeError means a raw container could not be turned into a Frame:
// unreadable, corrupt, truncated, or a layout we don't handle.
type DecodeError struct {
	Path string
	Err  error
}

func (e *DecodeError)Error() string {
	return fmt.Sprintf("decode %s: %v", e.Path, e.Err)
}

func (e *DecodeError)Unwrap() error { return e.Err }

func decodeErrorf(path string, format string, args ...interface{}) error {
	return &DecodeError{Path: path, Err: fmt.Errorf(format, args...)}
}
