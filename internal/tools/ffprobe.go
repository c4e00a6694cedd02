// Copyright ©2022 Evolution. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Ffmpeg family related tools.
package tools

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"os/exec"

	"github.com/evolution-gaming/vuality/internal/logging"
	"github.com/evolution-gaming/vuality/internal/video"
)

var ErrNoVideoStream = errors.New("no video stream")

// Make sure Ffprobe implements video.MetadataExtractor interface.
var _ video.MetadataExtractor = (*Ffprobe)(nil)

// Ffprobe queries media metadata with ffprobe binary at Path.
type Ffprobe struct {
	Path string
}

// ExtractMetadata will query metadata of the first video stream of mediaFile.
func (f *Ffprobe) ExtractMetadata(mediaFile string) (video.Metadata, error) {
	var vmeta video.Metadata

	if _, err := os.Stat(mediaFile); err != nil {
		return vmeta, fmt.Errorf("ExtractMetadata() os.Stat: %w", err)
	}

	ffprobeArgs := []string{
		"-v", "quiet",
		"-select_streams", "v:0",
		"-of", "json",
		"-show_format",
		"-show_streams",
		mediaFile,
	}
	cmd := exec.Command(f.Path, ffprobeArgs...) //#nosec G204
	logging.Debugf("Running: %s", cmd)
	out, err := cmd.Output()
	if err != nil {
		return vmeta, fmt.Errorf("ExtractMetadata() exec error: %w", err)
	}

	// Unmarshal metadata from both "streams" and "format" JSON objects.
	meta := &struct {
		Streams []video.Metadata
		Format  video.Metadata
	}{}
	if err := json.Unmarshal(out, &meta); err != nil {
		return vmeta, fmt.Errorf("ExtractMetadata() json.Unmarshal: %w", err)
	}
	if len(meta.Streams) == 0 {
		return vmeta, fmt.Errorf("ExtractMetadata() %s: %w", mediaFile, ErrNoVideoStream)
	}

	vmeta = meta.Streams[0]
	// For some containers (mkv, gif) stream does not carry duration, so we have to look
	// into Format.
	vmeta.Duration = math.Max(vmeta.Duration, meta.Format.Duration)
	logging.Debugf("%s %+v", mediaFile, vmeta)

	return vmeta, nil
}
