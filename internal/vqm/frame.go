// Copyright ©2022 Evolution. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Per-frame and summary metric abstractions.

package vqm

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
)

var ErrUnknownMetric = errors.New("unknown metric")

// Metric is the ffmpeg filter used to measure video quality.
type Metric string

const (
	MetricPSNR Metric = "psnr"
	MetricSSIM Metric = "ssim"
)

// ParseMetric converts metric name into Metric, case-insensitively.
func ParseMetric(s string) (Metric, error) {
	m := Metric(strings.ToLower(strings.TrimSpace(s)))
	if m.Groups() == nil {
		return m, fmt.Errorf("%w: %q", ErrUnknownMetric, s)
	}
	return m, nil
}

// Groups returns names of the statistic groups a metric produces.
//
// PSNR stats lines carry two groups distinguished by key prefix (mse_y, psnr_y), SSIM
// lines carry a single group with bare channel keys.
func (m Metric) Groups() []string {
	switch m {
	case MetricPSNR:
		return []string{"mse", "psnr"}
	case MetricSSIM:
		return []string{"ssim"}
	}
	return nil
}

// channel maps a stats line key to the channel it represents within group. The second
// return value is false when key does not belong to group.
func (m Metric) channel(group, key string) (string, bool) {
	switch m {
	case MetricPSNR:
		ch := strings.TrimPrefix(key, group+"_")
		return ch, ch != key && ch != ""
	case MetricSSIM:
		return key, key != frameIndexKey
	}
	return "", false
}

// Stat maps channel key (y, u, v, r, g, b, a, avg, all) to a metric value.
//
// The set of keys is whatever the producer emitted: planar video gives y/u/v while
// paletted or alpha imagery gives r/g/b/a.
type Stat map[string]float64

// MarshalJSON implements json.Marshaler for Stat.
//
// JSON has no representation for infinity, which is the PSNR of identical frames, so
// non-finite values are written as strings the same way ffmpeg writes them.
func (s Stat) MarshalJSON() ([]byte, error) {
	if s == nil {
		return []byte("null"), nil
	}
	m := make(map[string]jsonFloat, len(s))
	for k, v := range s {
		m[k] = jsonFloat(v)
	}
	return json.Marshal(m)
}

// UnmarshalJSON implements json.Unmarshaler for Stat.
func (s *Stat) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		return nil
	}
	var m map[string]jsonFloat
	if err := json.Unmarshal(b, &m); err != nil {
		return err
	}
	*s = make(Stat, len(m))
	for k, v := range m {
		(*s)[k] = float64(v)
	}
	return nil
}

type jsonFloat float64

func (f jsonFloat) MarshalJSON() ([]byte, error) {
	v := float64(f)
	switch {
	case math.IsInf(v, 1):
		return []byte(`"inf"`), nil
	case math.IsInf(v, -1):
		return []byte(`"-inf"`), nil
	case math.IsNaN(v):
		return []byte(`"nan"`), nil
	}
	return json.Marshal(v)
}

func (f *jsonFloat) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return fmt.Errorf("non-numeric metric value %q", s)
		}
		*f = jsonFloat(v)
		return nil
	}
	var v float64
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	*f = jsonFloat(v)
	return nil
}

// Frame contains metric groups of a single frame.
type Frame struct {
	// 1-based frame number
	N      int
	Groups map[string]Stat
}

// MarshalJSON implements json.Marshaler for Frame, groups are inlined next to "n".
func (f Frame) MarshalJSON() ([]byte, error) {
	m := make(map[string]any, len(f.Groups)+1)
	for g, s := range f.Groups {
		m[g] = s
	}
	m[frameIndexKey] = f.N
	return json.Marshal(m)
}

// UnmarshalJSON implements json.Unmarshaler for Frame.
//
// Any key other than "n" is treated as a metric group, so both PSNR and SSIM frames can
// be read back without knowing which metric produced them.
func (f *Frame) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		return nil
	}
	raw := make(map[string]json.RawMessage)
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	n, ok := raw[frameIndexKey]
	if !ok {
		return ErrMissingFrameIndex
	}
	if err := json.Unmarshal(n, &f.N); err != nil {
		return fmt.Errorf("frame number: %w", err)
	}
	f.Groups = make(map[string]Stat, len(raw)-1)
	for k, v := range raw {
		if k == frameIndexKey {
			continue
		}
		var s Stat
		if err := json.Unmarshal(v, &s); err != nil {
			return fmt.Errorf("group %s: %w", k, err)
		}
		f.Groups[k] = s
	}
	return nil
}

// PSNRFrame contains PSNR filter output for a single frame.
type PSNRFrame struct {
	N    int  `json:"n"`
	MSE  Stat `json:"mse"`
	PSNR Stat `json:"psnr"`
}

// PSNRResult is the outcome of PSNR assessment: per-channel means and per-frame values.
type PSNRResult struct {
	PSNR   Stat        `json:"psnr"`
	MSE    Stat        `json:"mse"`
	Frames []PSNRFrame `json:"frames"`
}

// SSIMFrame contains SSIM filter output for a single frame.
type SSIMFrame struct {
	N    int  `json:"n"`
	SSIM Stat `json:"ssim"`
}

// SSIMResult is the outcome of SSIM assessment: per-channel means and per-frame values.
type SSIMResult struct {
	SSIM   Stat        `json:"ssim"`
	Frames []SSIMFrame `json:"frames"`
}

// ReadFrames reads per-frame metrics from a JSON encoded PSNRResult or SSIMResult.
func ReadFrames(r io.Reader) ([]Frame, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("ReadFrames() read from io.Reader: %w", err)
	}

	doc := struct {
		Frames []Frame `json:"frames"`
	}{}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("ReadFrames() JSON unmarshal: %w", err)
	}
	if len(doc.Frames) == 0 {
		return nil, fmt.Errorf("ReadFrames(): %w", ErrEmptyOutput)
	}

	return doc.Frames, nil
}

// WriteJSON writes v as indented JSON document.
func WriteJSON(w io.Writer, v any) error {
	jDoc, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("WriteJSON() marshal: %w", err)
	}

	if _, err := w.Write(append(jDoc, '\n')); err != nil {
		return fmt.Errorf("WriteJSON() write to Writer: %w", err)
	}

	return nil
}
