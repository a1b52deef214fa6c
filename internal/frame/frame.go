// Package frame abstracts the hardware capture/encode pipeline.
// The streaming engine pulls encoded frames through the Source interface
// and never touches encoder configuration beyond the open parameters.
package frame

import (
	"errors"
	"time"
)

// MediaType identifies the track a frame belongs to.
type MediaType int

// media types.
const (
	MediaVideo MediaType = iota
	MediaAudio
)

func (m MediaType) String() string {
	if m == MediaAudio {
		return "audio"
	}
	return "video"
}

// ErrTimeout is returned by ReadFrame when no frame became available
// within the bounded wait.
var ErrTimeout = errors.New("frame read timeout")

// Frame is one encoded access unit (video) or one encoded audio frame.
// Payload must not be touched after Release.
type Frame struct {
	Media    MediaType
	Payload  []byte
	Keyframe bool
	PTS      time.Duration

	release func()
}

// Release returns the frame buffer to its source. Safe to call once.
func (f *Frame) Release() {
	if f.release != nil {
		f.release()
		f.release = nil
	}
}

// Source produces encoded frames with a bounded wait, so callers can
// observe shutdown promptly.
type Source interface {
	ReadFrame(timeout time.Duration) (*Frame, error)
	Close() error
}
