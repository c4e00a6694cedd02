// Copyright ©2022 Evolution. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Media metadata related constructs.

package video

import "fmt"

// Metadata type contains video stream properties relevant to quality assessment.
type Metadata struct {
	CodecName string  `json:"codec_name,omitempty"`
	PixFmt    string  `json:"pix_fmt,omitempty"`
	FrameRate string  `json:"r_frame_rate,omitempty"`
	Duration  float64 `json:"duration,omitempty,string"`
	Width     int     `json:"width,omitempty"`
	Height    int     `json:"height,omitempty"`
}

// Size returns frame dimensions formatted as WxH.
func (m Metadata) Size() string {
	return fmt.Sprintf("%dx%d", m.Width, m.Height)
}

// MetadataExtractor is the interface that wraps ExtractMetadata method.
type MetadataExtractor interface {
	ExtractMetadata(mediaFile string) (Metadata, error)
}
