// Copyright ©2022 Evolution. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package vqm

import (
	"bytes"
	"encoding/json"
	"math"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMetric(t *testing.T) {
	tests := map[string]struct {
		given   string
		want    Metric
		wantErr bool
	}{
		"psnr":         {given: "psnr", want: MetricPSNR},
		"SSIM":         {given: " SSIM ", want: MetricSSIM},
		"Unsupported":  {given: "vmaf", wantErr: true},
		"Empty string": {given: "", wantErr: true},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			got, err := ParseMetric(tc.given)
			if tc.wantErr {
				assert.ErrorIs(t, err, ErrUnknownMetric)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestStat_JSON(t *testing.T) {
	given := Stat{"avg": math.Inf(1), "y": 42.5, "u": 0, "v": math.Inf(-1)}

	t.Run("Non-finite values are strings", func(t *testing.T) {
		b, err := json.Marshal(given)
		require.NoError(t, err)
		assert.JSONEq(t, `{"avg":"inf","y":42.5,"u":0,"v":"-inf"}`, string(b))
	})

	t.Run("Marshal-unmarshal roundtrip should work", func(t *testing.T) {
		b, err := json.Marshal(given)
		require.NoError(t, err)
		var got Stat
		require.NoError(t, json.Unmarshal(b, &got))
		assert.Equal(t, given, got)
	})

	t.Run("NaN is written as string", func(t *testing.T) {
		b, err := json.Marshal(Stat{"y": math.NaN()})
		require.NoError(t, err)
		assert.JSONEq(t, `{"y":"nan"}`, string(b))
	})

	t.Run("Non-numeric string should error", func(t *testing.T) {
		var got Stat
		assert.Error(t, json.Unmarshal([]byte(`{"y":"high"}`), &got))
	})
}

func TestFrame_JSON(t *testing.T) {
	given := Frame{N: 3, Groups: map[string]Stat{
		"mse":  {"y": 0},
		"psnr": {"y": math.Inf(1)},
	}}

	b, err := json.Marshal(given)
	require.NoError(t, err)
	assert.JSONEq(t, `{"n":3,"mse":{"y":0},"psnr":{"y":"inf"}}`, string(b))

	var got Frame
	require.NoError(t, json.Unmarshal(b, &got))
	assert.Equal(t, given, got)

	t.Run("Missing frame number should error", func(t *testing.T) {
		var f Frame
		err := json.Unmarshal([]byte(`{"ssim":{"y":1}}`), &f)
		assert.ErrorIs(t, err, ErrMissingFrameIndex)
	})
}

func TestReadFrames(t *testing.T) {
	tests := map[string]struct {
		golden     string
		wantFrames int
		wantGroups []string
	}{
		"PSNR result": {
			golden:     "psnr_golden.json",
			wantFrames: 4,
			wantGroups: []string{"mse", "psnr"},
		},
		"SSIM result": {
			golden:     "ssim_golden.json",
			wantFrames: 4,
			wantGroups: []string{"ssim"},
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			f, err := os.Open(testdataDir + tc.golden)
			require.NoError(t, err)
			defer f.Close()

			got, err := ReadFrames(f)
			require.NoError(t, err)
			require.Len(t, got, tc.wantFrames)
			for i, fr := range got {
				assert.Equal(t, i+1, fr.N)
				for _, g := range tc.wantGroups {
					assert.Contains(t, fr.Groups, g)
				}
			}
		})
	}

	t.Run("No frames should error", func(t *testing.T) {
		_, err := ReadFrames(strings.NewReader(`{"ssim":{"y":1},"frames":[]}`))
		assert.ErrorIs(t, err, ErrEmptyOutput)
	})
	t.Run("Garbage should error", func(t *testing.T) {
		_, err := ReadFrames(strings.NewReader(`frames`))
		assert.Error(t, err)
	})
}

func TestWriteJSON(t *testing.T) {
	want, err := ParsePSNR(fixReadLog(t, "psnr_yuv_identical.log"))
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, WriteJSON(&buf, want))
	assert.True(t, strings.HasSuffix(buf.String(), "}\n"))

	var got PSNRResult
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, want, got)
}
