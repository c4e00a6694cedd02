// Copyright ©2022 Evolution. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Reusable parts of vuality application and subcommand infrastructure.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path"
	"strings"

	"github.com/evolution-gaming/vuality/internal/vqm"
)

// Commander interface should be implemented by commands and sub-commands.
type Commander interface {
	Run([]string) error
	Name() string
	Help()
}

// AppError a custom error returned from CLI application.
//
// AppError is handy error type envisioned to be used in CLI's main.
// ExitCode() should be used as argument for os.Exit().
type AppError struct {
	msg      string
	exitCode int
}

// Error implements error interface for AppError.
func (e *AppError) Error() string {
	return e.msg
}

// ExitCode returns CLI application's exit code.
func (e *AppError) ExitCode() int {
	return e.exitCode
}

// assessmentError converts vqm errors into AppError, invalid settings are usage errors.
func assessmentError(err error) *AppError {
	var cErr *vqm.ConfigurationError
	if errors.As(err, &cErr) {
		return &AppError{exitCode: 2, msg: err.Error()}
	}
	return &AppError{exitCode: 1, msg: err.Error()}
}

// printSubCommandUsage helper to format ad print subcommand's usage.
func printSubCommandUsage(longHelp string, fs *flag.FlagSet) {
	fmt.Fprintf(fs.Output(), "Usage of sub-command %s:\n\n", fs.Name())
	fmt.Fprintf(fs.Output(), "%s\n\n", longHelp)
	fs.PrintDefaults()
}

// inputFiles implements flag.Value interface.
type inputFiles []string

func (i *inputFiles) String() string {
	return strings.Join(*i, ", ")
}

func (i *inputFiles) Set(value string) error {
	*i = append(*i, value)
	return nil
}

// metricList implements flag.Value interface for comma separated metric names.
type metricList []vqm.Metric

func (m *metricList) String() string {
	names := make([]string, len(*m))
	for i, v := range *m {
		names[i] = string(v)
	}
	return strings.Join(names, ",")
}

func (m *metricList) Set(value string) error {
	var metrics []vqm.Metric
	for _, name := range strings.Split(value, ",") {
		v, err := vqm.ParseMetric(name)
		if err != nil {
			return err
		}
		metrics = append(metrics, v)
	}
	*m = metrics
	return nil
}

// scaleFlag implements flag.Value interface for "WxH" dimensions.
type scaleFlag struct {
	scale *vqm.Scale
}

func (s *scaleFlag) String() string {
	if s.scale == nil {
		return ""
	}
	return s.scale.String()
}

func (s *scaleFlag) Set(value string) error {
	sc, err := vqm.ParseScale(value)
	if err != nil {
		return err
	}
	s.scale = &sc
	return nil
}

// signalContext returns context cancelled on interrupt, so that running ffmpeg processes
// get terminated.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt)
}

// baseName returns file name without directory and extension.
func baseName(fPath string) string {
	base := path.Base(fPath)
	return strings.TrimSuffix(base, path.Ext(base))
}

// all reports whether every element of non-empty slice s equals v.
func all[T comparable](s []T, v T) bool {
	if len(s) == 0 {
		return false
	}
	for _, e := range s {
		if e != v {
			return false
		}
	}
	return true
}

// fileExists checks that fPath exists and is not a directory.
func fileExists(fPath string) bool {
	if fPath == "" {
		return false
	}
	fi, err := os.Stat(fPath)
	if err != nil {
		return false
	}
	return !fi.IsDir()
}

// isNonEmptyDir will check if given directory is non-empty.
func isNonEmptyDir(path string) bool {
	fs, err := os.Open(path)
	if err != nil {
		return false
	}
	defer fs.Close()

	n, _ := fs.Readdirnames(1)
	return len(n) == 1
}
