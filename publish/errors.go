package publish

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyIdentifier is returned when a title slugifies to nothing.
	ErrEmptyIdentifier = errors.New("publish: title does not produce an identifier")
	// ErrIdentifierConflict is returned when the derived identifier is already taken.
	ErrIdentifierConflict = errors.New("publish: identifier already in use")
	// ErrDuplicatePage is returned when two generated files map to the same page name.
	ErrDuplicatePage = errors.New("publish: duplicate page name")
	// ErrNoPages is returned when compilation produced no HTML page for the post.
	ErrNoPages = errors.New("publish: no html pages generated")
)

// Stage names the external process that failed.
type Stage string

const (
	StageConverter Stage = "converter"
	StagePDF       Stage = "pdf"
)

// CompileError reports a failed or timed out external compiler run.
type CompileError struct {
	Stage    Stage
	Command  string
	ExitCode int
	Output   string
	Err      error
}

func (e *CompileError) Error() string {
	if e.ExitCode > 0 {
		return fmt.Sprintf("publish: %s %q exited with status %d", e.Stage, e.Command, e.ExitCode)
	}
	return fmt.Sprintf("publish: %s %q failed: %v", e.Stage, e.Command, e.Err)
}

func (e *CompileError) Unwrap() error { return e.Err }

// MalformedOutputError reports generated HTML that lacks head or body markers.
type MalformedOutputError struct {
	File   string
	Reason string
}

func (e *MalformedOutputError) Error() string {
	return fmt.Sprintf("publish: malformed output %s: %s", e.File, e.Reason)
}

// IsCompileFailure reports whether err came from an external compiler.
func IsCompileFailure(err error) bool {
	var ce *CompileError
	return errors.As(err, &ce)
}

// IsMalformedOutput reports whether err came from unusable generated HTML.
func IsMalformedOutput(err error) bool {
	var me *MalformedOutputError
	return errors.As(err, &me)
}
