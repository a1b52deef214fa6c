package rtsp

import (
	"errors"
	"time"

	"XCam/internal/frame"
	"XCam/internal/logger"
)

// bounded wait per frame read, short enough that the pumps observe the
// running flag promptly on shutdown.
const frameReadTimeout = 50 * time.Millisecond

// runVideoPump pulls one encoded access unit at a time from the video
// source and delivers it to every playing session. One iteration sends
// exactly one packetized frame per session; the RTP timestamps of all
// visited transports then advance by one inter-frame interval.
func (s *Server) runVideoPump() {
	defer s.wg.Done()

	s.Log(logger.Info, "video pump started")

	for s.running.Load() {
		f, err := s.VideoSource.ReadFrame(frameReadTimeout)
		if err != nil {
			if !errors.Is(err, frame.ErrTimeout) {
				s.Log(logger.Warn, "video frame read: %v", err)
			}
			continue
		}

		s.learnH264Params(f)

		now := time.Now()
		_, failed := s.registry.broadcast(frame.MediaVideo, func(se *session, t *mediaTransport) error {
			n, err := t.writeVideoFrame(f.Payload)
			s.bytesSent.Add(uint64(n))
			if err != nil {
				return err
			}
			t.maybeSendSenderReport(now)
			return nil
		})
		if failed > 0 {
			s.sendFailures.Add(uint64(failed))
			s.Log(logger.Debug, "video frame skipped for %d session(s)", failed)
		}

		s.framesSent.Add(1)
		f.Release()
	}

	s.Log(logger.Info, "video pump finished")
}

// runAudioPump is the audio counterpart: independent loop, independent
// frame timing, feeds only sessions that negotiated the audio track.
func (s *Server) runAudioPump() {
	defer s.wg.Done()

	s.Log(logger.Info, "audio pump started")

	for s.running.Load() {
		f, err := s.AudioSource.ReadFrame(frameReadTimeout)
		if err != nil {
			if !errors.Is(err, frame.ErrTimeout) {
				s.Log(logger.Warn, "audio frame read: %v", err)
			}
			continue
		}

		now := time.Now()
		_, failed := s.registry.broadcast(frame.MediaAudio, func(se *session, t *mediaTransport) error {
			n, err := t.writeAudioFrame(f.Payload)
			s.bytesSent.Add(uint64(n))
			if err != nil {
				return err
			}
			t.maybeSendSenderReport(now)
			return nil
		})
		if failed > 0 {
			s.sendFailures.Add(uint64(failed))
		}

		s.audioFramesSent.Add(1)
		f.Release()
	}

	s.Log(logger.Info, "audio pump finished")
}

// learnH264Params harvests SPS/PPS from keyframes until both are known,
// so DESCRIBE can advertise sprop-parameter-sets.
func (s *Server) learnH264Params(f *frame.Frame) {
	if !f.Keyframe {
		return
	}
	s.paramsMutex.Lock()
	defer s.paramsMutex.Unlock()
	if s.h264Params.Complete() {
		return
	}
	if s.h264Params.ExtractFrom(f.Payload) && s.h264Params.Complete() {
		s.Log(logger.Info, "H264 parameter sets learned from keyframe")
	}
}
