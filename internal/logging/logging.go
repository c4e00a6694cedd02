// Copyright ©2022 Evolution. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Two-level (Info and Debug) logging on top of standard library's "log" package.
//
// Both loggers start disabled. The CLI enables Info early and Debug on -debug flag,
// library code just logs and never decides where output goes.
package logging

import (
	"fmt"
	"io"
	"log"
	"os"
)

var (
	debugFlags = log.Ldate | log.Ltime | log.Lshortfile
	infoFlags  = log.Ldate | log.Ltime
	// Each log-level logger should be explicitly enabled via Setup() or Enable*Logger().
	DebugLogger = log.New(io.Discard, debugPrefix, debugFlags)
	InfoLogger  = log.New(io.Discard, infoPrefix, infoFlags)
)

const (
	debugPrefix = "DEBUG: "
	infoPrefix  = "INFO: "
	calldepth   = 2
)

// Setup directs enabled loggers to w. Info is always enabled, Debug only if debug is
// true, otherwise it is discarded.
func Setup(w io.Writer, debug bool) {
	InfoLogger.SetOutput(w)
	if debug {
		DebugLogger.SetOutput(w)
	} else {
		DebugLogger.SetOutput(io.Discard)
	}
}

// EnableInfoLogger enables InfoLogger on stderr.
func EnableInfoLogger() {
	InfoLogger.SetOutput(os.Stderr)
}

// EnableDebugLogger enables DebugLogger on stderr.
func EnableDebugLogger() {
	DebugLogger.SetOutput(os.Stderr)
}

// IsDebug reports whether debug logging is enabled, handy to skip building expensive
// debug messages.
func IsDebug() bool {
	return DebugLogger.Writer() != io.Discard
}

func Info(v ...interface{}) {
	InfoLogger.Output(calldepth, fmt.Sprint(v...))
}

func Infof(format string, v ...interface{}) {
	InfoLogger.Output(calldepth, fmt.Sprintf(format, v...))
}

func Debug(v ...interface{}) {
	DebugLogger.Output(calldepth, fmt.Sprint(v...))
}

func Debugf(format string, v ...interface{}) {
	DebugLogger.Output(calldepth, fmt.Sprintf(format, v...))
}
