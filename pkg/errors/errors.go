// Unified error handling for the G-code post-processor
//
// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
)

// ErrorCode represents the category of error
type ErrorCode string

const (
	// Configuration errors
	ErrConfigNotFound   ErrorCode = "CONFIG_NOT_FOUND"
	ErrConfigParse      ErrorCode = "CONFIG_PARSE"
	ErrConfigOption     ErrorCode = "CONFIG_MISSING_OPTION"
	ErrConfigValidation ErrorCode = "CONFIG_VALIDATION"

	// G-code errors
	ErrGCodeUnterminatedBlock ErrorCode = "GCODE_UNTERMINATED_BLOCK"
	ErrGCodeUnknownTool       ErrorCode = "GCODE_UNKNOWN_TOOL"

	// Job file errors
	ErrFileOpen  ErrorCode = "FILE_OPEN"
	ErrFileWrite ErrorCode = "FILE_WRITE"

	// Filter state errors
	ErrPipelineState ErrorCode = "PIPELINE_STATE"
)

// HostError is the unified error type of the post-processor
type HostError struct {
	// Code is the error category
	Code ErrorCode

	// Message is a human-readable error description
	Message string

	// File is the job or profile file (if available)
	File string

	// Line is the line number inside the layer or file (if available)
	Line int

	// Section is the profile section or layer context
	Section string

	// Option is the profile option name (if applicable)
	Option string

	// Err wraps the underlying error
	Err error

	// Context provides additional context
	Context map[string]any
}

// Error implements the error interface
func (e *HostError) Error() string {
	var b strings.Builder
	b.WriteString("[")
	b.WriteString(string(e.Code))
	if e.Section != "" {
		b.WriteString(":" + e.Section)
	}
	if e.Option != "" {
		b.WriteString(":" + e.Option)
	}
	b.WriteString("] ")
	if e.File != "" {
		b.WriteString(e.File)
		if e.Line > 0 {
			fmt.Fprintf(&b, ":%d", e.Line)
		}
		b.WriteString(": ")
	}
	b.WriteString(e.Message)
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Unwrap returns the underlying error
func (e *HostError) Unwrap() error {
	return e.Err
}

// SetFile sets the source file
func (e *HostError) SetFile(file string) *HostError {
	e.File = file
	return e
}

// SetLine sets the line number
func (e *HostError) SetLine(line int) *HostError {
	e.Line = line
	return e
}

// SetSection sets the context section
func (e *HostError) SetSection(section string) *HostError {
	e.Section = section
	return e
}

// SetOption sets the profile option
func (e *HostError) SetOption(option string) *HostError {
	e.Option = option
	return e
}

// SetContext adds additional context
func (e *HostError) SetContext(key string, value any) *HostError {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

// Wrap wraps an existing error with additional context
func Wrap(err error, code ErrorCode, message string) *HostError {
	return &HostError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// New creates a new HostError
func New(code ErrorCode, message string) *HostError {
	return &HostError{
		Code:    code,
		Message: message,
	}
}

// Config errors

// ConfigNotFoundError reports a missing profile file
func ConfigNotFoundError(path string, err error) *HostError {
	return Wrap(err, ErrConfigNotFound, "unable to open profile").SetFile(path)
}

// ConfigParseError reports a syntax error in a profile
func ConfigParseError(path string, line int, reason string) *HostError {
	return New(ErrConfigParse, reason).SetFile(path).SetLine(line)
}

// ConfigOptionError creates an error for a missing required option
func ConfigOptionError(section, option string) *HostError {
	return New(ErrConfigOption, fmt.Sprintf("option '%s' not found in section '%s'", option, section)).
		SetSection(section).
		SetOption(option)
}

// ConfigValidationError creates an error for config validation failure
func ConfigValidationError(section, option string, reason string) *HostError {
	return New(ErrConfigValidation, reason).
		SetSection(section).
		SetOption(option)
}

// G-code errors

// UnterminatedBlockError reports an adjustable block still open at the end
// of a layer. line is the 1-based line of the block begin inside the layer.
func UnterminatedBlockError(layer, line int, text string) *HostError {
	return New(ErrGCodeUnterminatedBlock, fmt.Sprintf("adjustable block opened by %q is not closed", text)).
		SetSection(fmt.Sprintf("layer %d", layer)).
		SetLine(line)
}

// UnknownToolError reports a tool change to an unconfigured extruder
func UnknownToolError(index, extruders int) *HostError {
	return New(ErrGCodeUnknownTool, fmt.Sprintf("tool change to T%d, only %d extruder(s) configured", index, extruders)).
		SetContext("tool", index)
}

// File errors

// FileError wraps an I/O failure on a job file
func FileError(code ErrorCode, path string, err error) *HostError {
	msg := "unable to open"
	if code == ErrFileWrite {
		msg = "unable to write"
	}
	return Wrap(err, code, msg).SetFile(path)
}

// StateError reports a filter used out of order
func StateError(message string) *HostError {
	return New(ErrPipelineState, message)
}

// Is checks if err or any error it wraps matches the given error code
func Is(err error, code ErrorCode) bool {
	var hostErr *HostError
	if stderrors.As(err, &hostErr) {
		return hostErr.Code == code
	}
	return false
}

// IsConfig checks if error is a config error
func IsConfig(err error) bool {
	return Is(err, ErrConfigNotFound) ||
		Is(err, ErrConfigParse) ||
		Is(err, ErrConfigOption) ||
		Is(err, ErrConfigValidation)
}

// IsGCode checks if error is a G-code error
func IsGCode(err error) bool {
	return Is(err, ErrGCodeUnterminatedBlock) || Is(err, ErrGCodeUnknownTool)
}

// IsIO checks if error is a job file error
func IsIO(err error) bool {
	return Is(err, ErrFileOpen) || Is(err, ErrFileWrite)
}
