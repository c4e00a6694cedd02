// Copyright ©2022 Evolution. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package main

import (
	"bytes"
	"encoding/csv"
	"math"
	"os"
	"path"
	"testing"

	"github.com/evolution-gaming/vuality/internal/metric"
	"github.com/jszwec/csvutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var reportHeader = []string{
	"input", "reference", "result_file", "metric", "group", "channel",
	"frames", "mean", "min", "max", "stdev",
}

// Channels of testdata/vqm/*_scaled.log, per metric.
var (
	psnrChannels = 8
	ssimChannels = 4
)

// readReport reads CSV report both as raw rows and decoded records.
func readReport(t *testing.T, reportFile string) ([][]string, []metric.Record) {
	b, err := os.ReadFile(reportFile)
	require.NoError(t, err)

	rows, err := csv.NewReader(bytes.NewReader(b)).ReadAll()
	require.NoError(t, err)

	var records []metric.Record
	require.NoError(t, csvutil.Unmarshal(b, &records))

	return rows, records
}

// findRecord returns report record for given input base name, group and channel.
func findRecord(t *testing.T, records []metric.Record, input, group, channel string) metric.Record {
	for _, r := range records {
		if baseName(r.Input) == input && r.Group == group && r.Channel == channel {
			return r
		}
	}
	t.Fatalf("No record for %s %s_%s", input, group, channel)
	return metric.Record{}
}

func Test_CompareApp_Run(t *testing.T) {
	fixFakeTools(t)
	media := fixMediaFiles(t, "enc1.mp4", "enc2.mp4", "source.mp4")
	outDir := path.Join(t.TempDir(), "results")

	cmd := CreateCompareCommand()
	err := cmd.Run([]string{
		"-ref", media[2],
		"-i", media[0],
		"-i", media[1],
		"-out-dir", outDir,
		"-jobs", "2",
	})
	require.NoError(t, err)

	t.Run("Report should have record per input and channel", func(t *testing.T) {
		rows, records := readReport(t, path.Join(outDir, "report.csv"))
		require.NotEmpty(t, rows)
		assert.Equal(t, reportHeader, rows[0])
		assert.Len(t, records, 2*(psnrChannels+ssimChannels))

		// Report order does not depend on completion order.
		assert.Equal(t, "enc1", baseName(records[0].Input))
		assert.Equal(t, "enc2", baseName(records[len(records)-1].Input))

		psnrY := findRecord(t, records, "enc1", "psnr", "y")
		assert.Equal(t, wantPSNRY, psnrY.Mean)
		assert.Equal(t, 42.0, psnrY.Min)
		assert.Equal(t, 48.25, psnrY.Max)
		assert.Equal(t, 4, psnrY.Frames)
		assert.Equal(t, "psnr", psnrY.Metric)
		assert.Equal(t, media[2], psnrY.Reference)

		psnrU := findRecord(t, records, "enc2", "psnr", "u")
		assert.True(t, math.IsInf(psnrU.Mean, 1), "Mean of channel with identical frame should be +Inf")

		ssimY := findRecord(t, records, "enc2", "ssim", "y")
		assert.Equal(t, wantSSIMY, ssimY.Mean)
		assert.InDelta(t, 0.2135, ssimY.StDev, 1e-4)
		assert.Equal(t, path.Join(outDir, "enc2", "enc2_ssim.json"), ssimY.ResultFile)
	})

	t.Run("Result files and plots should exist", func(t *testing.T) {
		for _, base := range []string{"enc1", "enc2"} {
			for _, f := range []string{
				base + "_psnr.json",
				base + "_ssim.json",
				base + "_psnr_y.png",
				base + "_psnr_u.png",
				base + "_mse_avg.png",
				base + "_ssim_all.png",
			} {
				assert.FileExists(t, path.Join(outDir, base, f))
			}
		}
	})
}

func Test_CompareApp_Run_SingleMetric(t *testing.T) {
	fixFakeTools(t)
	media := fixMediaFiles(t, "enc1.mp4", "source.mp4")
	outDir := t.TempDir()
	confFile := fixConfigFile(t, `{"report_file_name": "ssim.csv", "jobs": 1}`)

	cmd := CreateCompareCommand()
	err := cmd.Run([]string{"-ref", media[1], "-i", media[0], "-out-dir", outDir, "-metrics", "ssim", "-scale", "496x498", "-conf", confFile})
	require.NoError(t, err)
	assert.Equal(t, 1, cmd.flJobs, "Jobs should come from configuration")

	_, records := readReport(t, path.Join(outDir, "ssim.csv"))
	assert.Len(t, records, ssimChannels)
	for _, r := range records {
		assert.Equal(t, "ssim", r.Metric)
	}
	assert.NoFileExists(t, path.Join(outDir, "enc1", "enc1_psnr.json"))
}

func Test_CompareApp_Run_PartialFailure(t *testing.T) {
	fixFakeTools(t)
	media := fixMediaFiles(t, "good.mp4", "bad.mp4", "source.mp4")
	t.Setenv("FAKE_FFMPEG_FAIL_INPUT", media[1])
	outDir := t.TempDir()

	cmd := CreateCompareCommand()
	err := cmd.Run([]string{"-ref", media[2], "-i", media[0], "-i", media[1], "-out-dir", outDir})

	var appErr *AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, 1, appErr.ExitCode())
	assert.ErrorContains(t, err, "2 assessment(s) failed")

	// Successful assessments are still reported.
	_, records := readReport(t, path.Join(outDir, "report.csv"))
	assert.Len(t, records, psnrChannels+ssimChannels)
	for _, r := range records {
		assert.Equal(t, media[0], r.Input)
	}
}

func Test_CompareApp_Run_Negative(t *testing.T) {
	fixFakeTools(t)
	media := fixMediaFiles(t, "enc1.mp4", "source.mp4")
	nonEmptyDir := path.Dir(media[0])
	otherEnc1 := path.Join(t.TempDir(), "enc1.mkv")

	tests := map[string]struct {
		args         []string
		wantExitCode int
		wantErr      string
	}{
		"Missing reference": {
			args:         []string{"-i", media[0], "-out-dir", t.TempDir()},
			wantExitCode: 2,
			wantErr:      "mandatory option -ref is missing",
		},
		"Missing input": {
			args:         []string{"-ref", media[1], "-out-dir", t.TempDir()},
			wantExitCode: 2,
			wantErr:      "mandatory option -i is missing",
		},
		"Missing out dir": {
			args:         []string{"-ref", media[1], "-i", media[0]},
			wantExitCode: 2,
			wantErr:      "mandatory option -out-dir is missing",
		},
		"Unknown metric": {
			args:         []string{"-ref", media[1], "-i", media[0], "-out-dir", t.TempDir(), "-metrics", "vmaf"},
			wantExitCode: 2,
			wantErr:      "usage error",
		},
		"Negative jobs": {
			args:         []string{"-ref", media[1], "-i", media[0], "-out-dir", t.TempDir(), "-jobs", "-1"},
			wantExitCode: 2,
			wantErr:      "should not be negative",
		},
		"Stdin input": {
			args:         []string{"-ref", media[1], "-i", "-", "-out-dir", t.TempDir()},
			wantExitCode: 2,
			wantErr:      "stdin input is not supported",
		},
		"Same input names": {
			args:         []string{"-ref", media[1], "-i", media[0], "-i", otherEnc1, "-out-dir", t.TempDir()},
			wantExitCode: 2,
			wantErr:      "have same name",
		},
		"Non-empty out dir": {
			args:         []string{"-ref", media[1], "-i", media[0], "-out-dir", nonEmptyDir},
			wantExitCode: 1,
			wantErr:      "non-empty out dir",
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			cmd := CreateCompareCommand()
			cmd.fs.SetOutput(&bytes.Buffer{})

			err := cmd.Run(tc.args)
			var appErr *AppError
			require.ErrorAs(t, err, &appErr)
			assert.Equal(t, tc.wantExitCode, appErr.ExitCode())
			assert.ErrorContains(t, err, tc.wantErr)
		})
	}
}
