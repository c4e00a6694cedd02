// Copyright ©2022 Evolution. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// A bounded Writer that retains only the most recent output.
//
// Useful for capturing diagnostics of external processes: the interesting part of a
// failing ffmpeg run is at the end of its stderr, and a runaway process must not be
// able to exhaust memory.
package lw

// TailWriter keeps the last N bytes written to it and silently discards older data.
//
// Write never fails, so it is safe to use as exec.Cmd Stderr without affecting the
// command's outcome.
type TailWriter struct {
	// Retain at most this many bytes
	N       int
	buf     []byte
	dropped int64
}

// NewTailWriter creates TailWriter retaining at most n bytes.
func NewTailWriter(n int) *TailWriter {
	return &TailWriter{N: n}
}

// Write implements io.Writer for *TailWriter.
func (t *TailWriter) Write(b []byte) (int, error) {
	if t.N <= 0 {
		t.dropped += int64(len(b))
		return len(b), nil
	}

	// Only tail of an oversized write can survive.
	src := b
	if len(src) > t.N {
		t.dropped += int64(len(src) - t.N)
		src = src[len(src)-t.N:]
	}

	if over := len(t.buf) + len(src) - t.N; over > 0 {
		t.dropped += int64(over)
		n := copy(t.buf, t.buf[over:])
		t.buf = t.buf[:n]
	}
	t.buf = append(t.buf, src...)

	return len(b), nil
}

// Bytes returns retained data.
func (t *TailWriter) Bytes() []byte {
	return t.buf
}

func (t *TailWriter) String() string {
	return string(t.buf)
}

// Dropped reports how many bytes have been discarded.
func (t *TailWriter) Dropped() int64 {
	return t.dropped
}
