// Copyright ©2022 Evolution. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package vqm

import (
	"math"
	"testing"
	"testing/quick"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSummarize_Negative(t *testing.T) {
	t.Run("No frames", func(t *testing.T) {
		_, err := Summarize(nil, MetricPSNR)
		assert.ErrorIs(t, err, ErrEmptyOutput)
	})
	t.Run("Unknown metric", func(t *testing.T) {
		_, err := Summarize([]Frame{{N: 1}}, Metric("vmaf"))
		assert.ErrorIs(t, err, ErrUnknownMetric)
	})
}

// Summary of uniformly keyed frames equals mean of per-frame values.
func TestSummarize_MeanProperty(t *testing.T) {
	f := func(values []float64) bool {
		if len(values) == 0 {
			return true
		}
		frames := make([]Frame, len(values))
		var sum float64
		for i, v := range values {
			// Keep magnitudes sane so that sum does not overflow.
			v = math.Mod(v, 1e6)
			values[i] = v
			sum += v
			frames[i] = Frame{N: i + 1, Groups: map[string]Stat{"ssim": {"y": v}}}
		}
		summary, err := Summarize(frames, MetricSSIM)
		if err != nil {
			return false
		}
		want := sum / float64(len(values))
		return math.Abs(summary["ssim"]["y"]-want) <= 1e-6*math.Max(1, math.Abs(want))
	}
	if err := quick.Check(f, nil); err != nil {
		t.Error(err)
	}
}

func TestSummarize_Infinity(t *testing.T) {
	frames := []Frame{
		{N: 1, Groups: map[string]Stat{"psnr": {"y": 40}, "mse": {"y": 1}}},
		{N: 2, Groups: map[string]Stat{"psnr": {"y": math.Inf(1)}, "mse": {"y": 0}}},
	}
	got, err := Summarize(frames, MetricPSNR)
	require.NoError(t, err)

	assert.True(t, math.IsInf(got["psnr"]["y"], 1))
	assert.Equal(t, 0.5, got["mse"]["y"])
}

func TestAggregates(t *testing.T) {
	frames, err := ParseFrames(fixReadLog(t, "ssim_scaled.log"), MetricSSIM)
	require.NoError(t, err)

	got := Aggregates(frames, MetricSSIM)
	require.Contains(t, got, "ssim")
	y := got["ssim"]["y"]

	assert.Equal(t, 4, y.Frames)
	assert.Equal(t, 0.5, y.Min)
	assert.Equal(t, 1.0, y.Max)
	assert.Equal(t, 0.78125, y.Mean)
	assert.InDelta(t, 0.2135, y.StDev, 1e-4)

	t.Run("Mean agrees with Summarize", func(t *testing.T) {
		summary, err := Summarize(frames, MetricSSIM)
		require.NoError(t, err)
		for ch, a := range got["ssim"] {
			assert.Equal(t, summary["ssim"][ch], a.Mean, ch)
		}
	})

	t.Run("Single frame has zero deviation", func(t *testing.T) {
		got := Aggregates(frames[:1], MetricSSIM)
		assert.Equal(t, Aggregate{Frames: 1, Min: 0.75, Max: 0.75, Mean: 0.75}, got["ssim"]["y"])
	})

	t.Run("Partial channel counts present frames only", func(t *testing.T) {
		frames := []Frame{
			{N: 1, Groups: map[string]Stat{"ssim": {"y": 0.5, "u": 0.25}}},
			{N: 2, Groups: map[string]Stat{"ssim": {"y": 1}}},
		}
		got := Aggregates(frames, MetricSSIM)
		assert.Equal(t, 1, got["ssim"]["u"].Frames)
		assert.Equal(t, 0.25, got["ssim"]["u"].Mean)
		assert.Equal(t, 2, got["ssim"]["y"].Frames)
	})
}

func TestSeries(t *testing.T) {
	frames := []Frame{
		{N: 1, Groups: map[string]Stat{"ssim": {"y": 0.5, "u": 0.25}}},
		{N: 2, Groups: map[string]Stat{"ssim": {"y": 1}}},
	}

	assert.Equal(t, []float64{0.5, 1}, Series(frames, "ssim", "y"))

	u := Series(frames, "ssim", "u")
	require.Len(t, u, 2)
	assert.Equal(t, 0.25, u[0])
	assert.True(t, math.IsNaN(u[1]), "Missing channel should yield NaN")

	assert.Equal(t, []string{"u", "y"}, Channels(frames, "ssim"))
	assert.Empty(t, Channels(frames, "psnr"))
}

func TestResult_FramesOf(t *testing.T) {
	psnr, err := ParsePSNR(fixReadLog(t, "psnr_scaled.log"))
	require.NoError(t, err)
	frames, err := ParseFrames(fixReadLog(t, "psnr_scaled.log"), MetricPSNR)
	require.NoError(t, err)
	assert.Equal(t, frames, psnr.FramesOf())

	ssim, err := ParseSSIM(fixReadLog(t, "ssim_scaled.log"))
	require.NoError(t, err)
	frames, err = ParseFrames(fixReadLog(t, "ssim_scaled.log"), MetricSSIM)
	require.NoError(t, err)
	assert.Equal(t, frames, ssim.FramesOf())
}
