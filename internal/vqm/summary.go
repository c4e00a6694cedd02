// Copyright ©2022 Evolution. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Aggregation of per-frame metrics.

package vqm

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// collect gathers values of every key of group in frame order. Keys are the union over
// all frames.
func collect(frames []Frame, group string) map[string][]float64 {
	values := make(map[string][]float64)
	for _, f := range frames {
		for k, v := range f.Groups[group] {
			values[k] = append(values[k], v)
		}
	}
	return values
}

// Summarize calculates per-channel mean of every metric group.
//
// Key set of a summary group is the union of keys seen in frames. A frame lacking a key
// adds nothing to its sum while the divisor is always the total frame count.
func Summarize(frames []Frame, m Metric) (map[string]Stat, error) {
	groups := m.Groups()
	if groups == nil {
		return nil, fmt.Errorf("Summarize(): %w: %q", ErrUnknownMetric, m)
	}
	if len(frames) == 0 {
		return nil, &ParseError{Err: ErrEmptyOutput}
	}

	count := float64(len(frames))
	summary := make(map[string]Stat, len(groups))
	for _, g := range groups {
		values := collect(frames, g)
		s := make(Stat, len(values))
		for k, v := range values {
			s[k] = floats.Sum(v) / count
		}
		summary[g] = s
	}

	return summary, nil
}

// Aggregate contains descriptive statistics of a single channel.
type Aggregate struct {
	// Number of frames that had this channel
	Frames int
	Min    float64
	Max    float64
	Mean   float64
	StDev  float64
}

// Aggregates calculates descriptive statistics for every group and channel of metric m.
//
// Unlike Summarize, statistics are calculated over frames where a channel is present.
// Both agree when all frames carry the same channels.
func Aggregates(frames []Frame, m Metric) map[string]map[string]Aggregate {
	res := make(map[string]map[string]Aggregate)
	for _, g := range m.Groups() {
		res[g] = make(map[string]Aggregate)
		for k, v := range collect(frames, g) {
			a := Aggregate{
				Frames: len(v),
				Min:    floats.Min(v),
				Max:    floats.Max(v),
			}
			if len(v) > 1 {
				a.Mean, a.StDev = stat.MeanStdDev(v, nil)
			} else {
				a.Mean = v[0]
			}
			res[g][k] = a
		}
	}
	return res
}

// Series returns per-frame values of channel in group. Frames lacking the channel yield
// NaN so that index into result still matches frame position.
func Series(frames []Frame, group, channel string) []float64 {
	values := make([]float64, len(frames))
	for i, f := range frames {
		v, ok := f.Groups[group][channel]
		if !ok {
			v = math.NaN()
		}
		values[i] = v
	}
	return values
}

// Channels returns sorted union of channel keys of group.
func Channels(frames []Frame, group string) []string {
	var keys []string
	for k := range collect(frames, group) {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// FramesOf converts PSNR result frames into generic Frames.
func (r PSNRResult) FramesOf() []Frame {
	frames := make([]Frame, len(r.Frames))
	for i, f := range r.Frames {
		frames[i] = Frame{N: f.N, Groups: map[string]Stat{"mse": f.MSE, "psnr": f.PSNR}}
	}
	return frames
}

// FramesOf converts SSIM result frames into generic Frames.
func (r SSIMResult) FramesOf() []Frame {
	frames := make([]Frame, len(r.Frames))
	for i, f := range r.Frames {
		frames[i] = Frame{N: f.N, Groups: map[string]Stat{"ssim": f.SSIM}}
	}
	return frames
}
