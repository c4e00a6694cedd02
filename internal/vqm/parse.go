// Copyright ©2022 Evolution. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Parsing of ffmpeg psnr/ssim filter stats_file output.
//
// Each line of stats output describes one frame as whitespace separated key:value
// tokens, for example:
//
//	n:28 mse_avg:3.76 mse_y:4.94 mse_u:1.31 mse_v:1.51 psnr_avg:42.38 psnr_y:41.19 psnr_u:46.96 psnr_v:46.34
//	n:28 Y:0.991 U:0.996 V:0.995 All:0.993 (21.53)

package vqm

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

const frameIndexKey = "n"

// ParseNumber converts stats value token into float64.
//
// Literal "inf" (in any letter case) is positive infinity, ffmpeg writes it for PSNR of
// identical frames. NaN is never a valid metric value and is rejected.
func ParseNumber(s string) (float64, error) {
	if strings.EqualFold(s, "inf") {
		return math.Inf(1), nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) {
		return 0, ErrBadNumber
	}
	return v, nil
}

// tokenize splits stats line into lowercased key to raw value mapping.
//
// Tokens without a colon or with an empty key or value are dropped, ffmpeg decorates
// SSIM lines with a "(dB)" token. Only the first colon separates key from value. On
// duplicate keys last one wins.
func tokenize(line string) map[string]string {
	tokens := strings.Fields(line)
	kv := make(map[string]string, len(tokens))
	for _, tok := range tokens {
		key, value, ok := strings.Cut(tok, ":")
		if !ok {
			continue
		}
		key = strings.ToLower(strings.TrimSpace(key))
		value = strings.TrimSpace(value)
		if key == "" || value == "" {
			continue
		}
		kv[key] = value
	}
	return kv
}

// parseFrameIndex parses value of "n" key, it has to be a positive integer.
func parseFrameIndex(s string) (int, error) {
	v, err := ParseNumber(s)
	if err != nil {
		return 0, ErrBadFrameIndex
	}
	if math.IsInf(v, 0) || v != math.Trunc(v) || v < 1 || v > math.MaxInt32 {
		return 0, ErrBadFrameIndex
	}
	return int(v), nil
}

// parseFrame converts single stats line into Frame.
func parseFrame(line string, lineNum int, m Metric) (Frame, error) {
	kv := tokenize(line)

	raw, ok := kv[frameIndexKey]
	if !ok {
		return Frame{}, &ParseError{Line: lineNum, Key: frameIndexKey, Err: ErrMissingFrameIndex}
	}
	n, err := parseFrameIndex(raw)
	if err != nil {
		return Frame{}, &ParseError{Line: lineNum, Key: frameIndexKey, Token: raw, Err: err}
	}
	if n != lineNum {
		return Frame{}, &ParseError{
			Line:  lineNum,
			Key:   frameIndexKey,
			Token: raw,
			Err:   fmt.Errorf("%w: want %d", ErrFrameOutOfSequence, lineNum),
		}
	}

	// Walk keys in order so that the reported error does not depend on map iteration.
	keys := make([]string, 0, len(kv))
	for k := range kv {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	groups := m.Groups()
	frame := Frame{N: n, Groups: make(map[string]Stat, len(groups))}
	for _, g := range groups {
		stat := make(Stat)
		for _, k := range keys {
			ch, ok := m.channel(g, k)
			if !ok {
				continue
			}
			v, err := ParseNumber(kv[k])
			if err != nil {
				return Frame{}, &ParseError{Line: lineNum, Key: k, Token: kv[k], Err: err}
			}
			stat[ch] = v
		}
		frame.Groups[g] = stat
	}

	return frame, nil
}

// ParseFrames parses complete stats output of metric m into frames.
//
// Every line is a frame, frame numbers have to start from 1 and increase by one. Any
// malformed line fails the whole output, no partial result is returned.
func ParseFrames(rawLog string, m Metric) ([]Frame, error) {
	if m.Groups() == nil {
		return nil, fmt.Errorf("ParseFrames(): %w: %q", ErrUnknownMetric, m)
	}

	rawLog = strings.TrimSpace(rawLog)
	if rawLog == "" {
		return nil, &ParseError{Err: ErrEmptyOutput}
	}

	lines := strings.Split(rawLog, "\n")
	frames := make([]Frame, 0, len(lines))
	for i, line := range lines {
		f, err := parseFrame(strings.TrimSpace(line), i+1, m)
		if err != nil {
			return nil, err
		}
		frames = append(frames, f)
	}

	return frames, nil
}

// ParsePSNR parses psnr filter stats output into PSNRResult.
func ParsePSNR(rawLog string) (PSNRResult, error) {
	var res PSNRResult

	frames, err := ParseFrames(rawLog, MetricPSNR)
	if err != nil {
		return res, err
	}
	summary, err := Summarize(frames, MetricPSNR)
	if err != nil {
		return res, err
	}

	res.MSE = summary["mse"]
	res.PSNR = summary["psnr"]
	res.Frames = make([]PSNRFrame, len(frames))
	for i, f := range frames {
		res.Frames[i] = PSNRFrame{N: f.N, MSE: f.Groups["mse"], PSNR: f.Groups["psnr"]}
	}

	return res, nil
}

// ParseSSIM parses ssim filter stats output into SSIMResult.
func ParseSSIM(rawLog string) (SSIMResult, error) {
	var res SSIMResult

	frames, err := ParseFrames(rawLog, MetricSSIM)
	if err != nil {
		return res, err
	}
	summary, err := Summarize(frames, MetricSSIM)
	if err != nil {
		return res, err
	}

	res.SSIM = summary["ssim"]
	res.Frames = make([]SSIMFrame, len(frames))
	for i, f := range frames {
		res.Frames[i] = SSIMFrame{N: f.N, SSIM: f.Groups["ssim"]}
	}

	return res, nil
}
