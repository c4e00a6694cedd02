// Copyright ©2022 Evolution. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Reusable helpers and fixtures for tests.
package main

import (
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"testing"

	"github.com/evolution-gaming/vuality/internal/tools"
	"github.com/stretchr/testify/require"
)

const (
	// Per-frame means of testdata/vqm/*_scaled.log
	wantPSNRY = 44.75
	wantSSIMY = 0.78125
)

// fixCopyHelper copies testdata/helpers/<name> into dir as executable.
func fixCopyHelper(t *testing.T, name, dir string) {
	src, err := os.Open(path.Join("testdata", "helpers", name))
	if err != nil {
		t.Fatalf("Unable to open source: %v", err)
	}
	defer src.Close()
	dst, err := os.OpenFile(path.Join(dir, name), os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o755)
	if err != nil {
		t.Fatalf("Unable to open destination: %v", err)
	}
	defer dst.Close()
	if _, err := io.Copy(dst, src); err != nil {
		t.Fatalf("Failure copying: %v", err)
	}
}

// fixFakeTools fixture puts fake ffmpeg and ffprobe on PATH. Fake ffmpeg replays
// testdata/vqm/psnr_scaled.log and ssim_scaled.log. Returns file fake ffmpeg records its
// arguments to.
func fixFakeTools(t *testing.T) (argsFile string) {
	fakePath := t.TempDir()
	fixCopyHelper(t, "ffmpeg", fakePath)
	fixCopyHelper(t, "ffprobe", fakePath)

	statsDir, err := filepath.Abs(path.Join("testdata", "vqm"))
	require.NoError(t, err)

	argsFile = path.Join(t.TempDir(), "ffmpeg_args.txt")
	t.Setenv("PATH", fmt.Sprintf("%s:%s", fakePath, os.Getenv("PATH")))
	t.Setenv(tools.FfmpegEnvVar, "")
	t.Setenv(tools.FfprobeEnvVar, "")
	t.Setenv("FAKE_STATS_DIR", statsDir)
	t.Setenv("FAKE_FFMPEG_ARGS", argsFile)
	t.Setenv("FAKE_FFMPEG_FAIL_INPUT", "")
	t.Setenv("TMPDIR", t.TempDir())

	return argsFile
}

// fixMediaFiles fixture creates placeholder media files, fake tools never read them.
func fixMediaFiles(t *testing.T, names ...string) []string {
	dir := t.TempDir()
	files := make([]string, len(names))
	for i, n := range names {
		files[i] = path.Join(dir, n)
		require.NoError(t, os.WriteFile(files[i], []byte(n), 0o644))
	}
	return files
}

// fixConfigFile fixture writes configuration file with given contents.
func fixConfigFile(t *testing.T, contents string) string {
	confFile := path.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(confFile, []byte(contents), 0o600))
	return confFile
}
