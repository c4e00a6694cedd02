// Copyright ©2022 Evolution. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package tools

import (
	"fmt"
	"os"
	"os/exec"
)

const (
	ffprobeCmd = "ffprobe"
	ffmpegCmd  = "ffmpeg"
	// Environment variables that take precedence over $PATH lookup.
	FfmpegEnvVar  = "VUALITY_FFMPEG"
	FfprobeEnvVar = "VUALITY_FFPROBE"
)

// FindTool will find tool executable in $PATH with possibility to override it
// via environment variable.
func FindTool(exeName, overrideEnvVar string) (string, error) {
	// First check for executable in case it's overridden via env variable.
	if overrideEnvVar != "" {
		if p := os.Getenv(overrideEnvVar); p != "" {
			if _, err := os.Stat(p); err == nil {
				return p, nil
			}
		}
	}

	if p, err := exec.LookPath(exeName); err == nil {
		return p, nil
	}

	return "", fmt.Errorf("binary (%s) not found", exeName)
}

// FfmpegPath will return path to ffmpeg binary and error if path is not found.
func FfmpegPath() (string, error) {
	p, err := FindTool(ffmpegCmd, FfmpegEnvVar)
	if err != nil {
		return "", fmt.Errorf("ffmpeg not found: %w", err)
	}
	return p, nil
}

// FfprobePath will return path to ffprobe binary and error if path is not found.
func FfprobePath() (string, error) {
	p, err := FindTool(ffprobeCmd, FfprobeEnvVar)
	if err != nil {
		return "", fmt.Errorf("ffprobe not found: %w", err)
	}
	return p, nil
}
