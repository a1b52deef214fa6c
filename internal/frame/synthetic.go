package frame

import (
	"sync"
	"time"
)

// Canned baseline parameter sets, enough for players to negotiate while
// the capture pipeline warms up. Real parameter sets from the encoder
// replace them in the SDP as soon as a keyframe is observed.
var (
	syntheticSPS = []byte{0x67, 0x42, 0x00, 0x1e, 0xab, 0x40, 0x50, 0x1e, 0xc8}
	syntheticPPS = []byte{0x68, 0xce, 0x3c, 0x80}
)

// SyntheticVideoSource emits H.264-shaped access units at a fixed frame
// rate. It stands in for the hardware encoder on development hosts and
// in tests; the pacing and release contract match the SDK pipeline.
type SyntheticVideoSource struct {
	fps     int
	gopSize int

	ticker  *time.Ticker
	closeCh chan struct{}
	once    sync.Once
	count   uint64
	body    []byte
}

func NewSyntheticVideoSource(fps, gopSize int) *SyntheticVideoSource {
	if fps <= 0 {
		fps = 25
	}
	if gopSize <= 0 {
		gopSize = fps
	}
	body := make([]byte, 4*1024)
	for i := range body {
		body[i] = byte(i)
	}
	return &SyntheticVideoSource{
		fps:     fps,
		gopSize: gopSize,
		ticker:  time.NewTicker(time.Second / time.Duration(fps)),
		closeCh: make(chan struct{}),
		body:    body,
	}
}

// ReadFrame implements Source.
func (s *SyntheticVideoSource) ReadFrame(timeout time.Duration) (*Frame, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-s.closeCh:
		return nil, ErrTimeout
	case <-timer.C:
		return nil, ErrTimeout
	case <-s.ticker.C:
	}

	n := s.count
	s.count++
	keyframe := n%uint64(s.gopSize) == 0

	var payload []byte
	startCode := []byte{0x00, 0x00, 0x00, 0x01}
	if keyframe {
		payload = append(payload, startCode...)
		payload = append(payload, syntheticSPS...)
		payload = append(payload, startCode...)
		payload = append(payload, syntheticPPS...)
		payload = append(payload, startCode...)
		payload = append(payload, 0x65) // IDR slice
		payload = append(payload, s.body...)
	} else {
		payload = append(payload, startCode...)
		payload = append(payload, 0x41) // non-IDR slice
		payload = append(payload, s.body[:1024]...)
	}

	return &Frame{
		Media:    MediaVideo,
		Payload:  payload,
		Keyframe: keyframe,
		PTS:      time.Duration(n) * time.Second / time.Duration(s.fps),
	}, nil
}

// Close implements Source.
func (s *SyntheticVideoSource) Close() error {
	s.once.Do(func() {
		s.ticker.Stop()
		close(s.closeCh)
	})
	return nil
}

// SyntheticAudioSource emits 20 ms G.711-sized audio frames.
type SyntheticAudioSource struct {
	sampleRate int

	ticker  *time.Ticker
	closeCh chan struct{}
	once    sync.Once
	count   uint64
}

func NewSyntheticAudioSource(sampleRate int) *SyntheticAudioSource {
	if sampleRate <= 0 {
		sampleRate = 8000
	}
	return &SyntheticAudioSource{
		sampleRate: sampleRate,
		ticker:     time.NewTicker(20 * time.Millisecond),
		closeCh:    make(chan struct{}),
	}
}

// ReadFrame implements Source.
func (s *SyntheticAudioSource) ReadFrame(timeout time.Duration) (*Frame, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-s.closeCh:
		return nil, ErrTimeout
	case <-timer.C:
		return nil, ErrTimeout
	case <-s.ticker.C:
	}

	n := s.count
	s.count++

	payload := make([]byte, s.sampleRate/50) // 20 ms of 8-bit samples
	for i := range payload {
		payload[i] = 0xD5 // A-law silence
	}

	return &Frame{
		Media:   MediaAudio,
		Payload: payload,
		PTS:     time.Duration(n) * 20 * time.Millisecond,
	}, nil
}

// Close implements Source.
func (s *SyntheticAudioSource) Close() error {
	s.once.Do(func() {
		s.ticker.Stop()
		close(s.closeCh)
	})
	return nil
}
