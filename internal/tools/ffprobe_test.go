// Copyright ©2022 Evolution. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package tools

import (
	"os"
	"path"
	"testing"

	"github.com/evolution-gaming/vuality/internal/video"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fixFakeFfprobe creates ffprobe stand-in which prints given JSON document.
func fixFakeFfprobe(t *testing.T, output string) *Ffprobe {
	dir := t.TempDir()
	doc := path.Join(dir, "probe.json")
	require.NoError(t, os.WriteFile(doc, []byte(output), 0o644))

	script := "#!/bin/sh\ncat " + doc + "\n"
	exe := path.Join(dir, "ffprobe")
	require.NoError(t, os.WriteFile(exe, []byte(script), 0o755))

	return &Ffprobe{Path: exe}
}

func Test_Ffprobe_ExtractMetadata(t *testing.T) {
	mediaFile := path.Join(t.TempDir(), "clip.gif")
	require.NoError(t, os.WriteFile(mediaFile, []byte("GIF89a"), 0o644))

	t.Run("Should extract Metadata of first video stream", func(t *testing.T) {
		probe := fixFakeFfprobe(t, `{
			"streams": [{
				"codec_name": "gif",
				"pix_fmt": "bgra",
				"r_frame_rate": "10/1",
				"width": 496,
				"height": 498
			}],
			"format": {"duration": "2.500000"}
		}`)

		want := video.Metadata{
			CodecName: "gif",
			PixFmt:    "bgra",
			FrameRate: "10/1",
			Duration:  2.5,
			Width:     496,
			Height:    498,
		}

		got, err := probe.ExtractMetadata(mediaFile)
		assert.NoError(t, err)
		assert.Equal(t, want, got)
		assert.Equal(t, "496x498", got.Size())
	})

	t.Run("Should fail without video stream", func(t *testing.T) {
		probe := fixFakeFfprobe(t, `{"streams": [], "format": {}}`)
		_, err := probe.ExtractMetadata(mediaFile)
		assert.ErrorIs(t, err, ErrNoVideoStream)
	})

	t.Run("Should fail on garbage output", func(t *testing.T) {
		probe := fixFakeFfprobe(t, `not json`)
		_, err := probe.ExtractMetadata(mediaFile)
		assert.ErrorContains(t, err, "json.Unmarshal")
	})
}

func Test_Ffprobe_ExtractMetadata_Negative(t *testing.T) {
	t.Run("Should fail for non-existent media file", func(t *testing.T) {
		probe := &Ffprobe{Path: "/bin/true"}
		_, err := probe.ExtractMetadata("/non/existent/path/to/file")
		assert.Error(t, err)
	})
	t.Run("Should fail when ffprobe fails", func(t *testing.T) {
		probe := &Ffprobe{Path: "/non/existent/ffprobe"}
		_, err := probe.ExtractMetadata(os.Args[0])
		assert.ErrorContains(t, err, "exec error")
	})
}
