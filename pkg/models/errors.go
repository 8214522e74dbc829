package models

import (
	"errors"
	"fmt"
)

// ErrPathUnresolved is returned when no coverage report entry matches a source path.
var ErrPathUnresolved = errors.New("no coverage entry matches source path")

// ErrPathAmbiguous is returned when several report entries match a source path equally well.
var ErrPathAmbiguous = errors.New("coverage entries match source path ambiguously")

// ParseError reports a module whose syntax tree could not be produced.
type ParseError struct {
	Path string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s: %v", e.Path, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// ReportFormatError reports a coverage or plugin report that could not be decoded.
type ReportFormatError struct {
	Report string
	Err    error
}

func (e *ReportFormatError) Error() string {
	return fmt.Sprintf("malformed report %s: %v", e.Report, e.Err)
}

func (e *ReportFormatError) Unwrap() error {
	return e.Err
}

// ToolExecutionError reports an external quality tool that failed to run
// or exited non-zero.
type ToolExecutionError struct {
	Tool     string
	ExitCode int
	Stderr   string
	Err      error
}

func (e *ToolExecutionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s failed: %v", e.Tool, e.Err)
	}
	return fmt.Sprintf("%s exited with code %d", e.Tool, e.ExitCode)
}

func (e *ToolExecutionError) Unwrap() error {
	return e.Err
}
