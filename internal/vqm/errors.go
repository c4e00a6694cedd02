// Copyright ©2022 Evolution. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package vqm

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrEmptyOutput        = errors.New("empty producer output")
	ErrMissingFrameIndex  = errors.New("frame index missing")
	ErrBadFrameIndex      = errors.New("frame index unparseable")
	ErrFrameOutOfSequence = errors.New("frame index out of sequence")
	ErrBadNumber          = errors.New("bad numeric literal")
)

// ParseError is returned when ffmpeg stats output does not follow expected grammar.
type ParseError struct {
	// 1-based line of stats output, 0 if error does not relate to single line
	Line int
	// Offending key, if any
	Key string
	// Offending raw value, if any
	Token string
	Err   error
}

func (e *ParseError) Error() string {
	var sb strings.Builder
	sb.WriteString("parse error")
	if e.Line > 0 {
		fmt.Fprintf(&sb, " at line %d", e.Line)
	}
	if e.Key != "" {
		fmt.Fprintf(&sb, ", key %q", e.Key)
	}
	if e.Token != "" {
		fmt.Fprintf(&sb, ", value %q", e.Token)
	}
	fmt.Fprintf(&sb, ": %v", e.Err)
	return sb.String()
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// InvocationError is returned when ffmpeg could not be run to completion or its stats
// output could not be read.
type InvocationError struct {
	Err error
	// Tail of ffmpeg's stderr
	Stderr string
}

func (e *InvocationError) Error() string {
	if e.Stderr == "" {
		return fmt.Sprintf("ffmpeg invocation: %v", e.Err)
	}
	return fmt.Sprintf("ffmpeg invocation: %v\n%s", e.Err, strings.TrimSpace(e.Stderr))
}

func (e *InvocationError) Unwrap() error {
	return e.Err
}

// ConfigurationError reports invalid caller supplied settings, detected before ffmpeg is
// started.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}
