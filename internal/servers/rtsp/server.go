package rtsp

import (
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"XCam/internal/auth"
	"XCam/internal/conf"
	"XCam/internal/frame"
	"XCam/internal/logger"
	"XCam/internal/utils"
)

// how long Close waits for goroutines before declaring the shutdown
// failed.
const shutdownJoinTimeout = 5 * time.Second

// ErrShutdownTimeout is returned by Close when a server goroutine
// failed to terminate within the join budget.
var ErrShutdownTimeout = errors.New("shutdown join timeout")

type serverParent interface {
	logger.Writer
}

// Server accepts RTSP clients on one TCP port and fans hardware-encoded
// frames out to every playing session. It is the unique owner of the
// listening socket and the frame sources.
type Server struct {
	Port            int
	StreamPath      string
	ReadTimeout     conf.Duration
	WriteTimeout    conf.Duration
	VideoFPS        int
	AudioEnabled    bool
	AudioCodec      conf.AudioCodec
	AudioSampleRate int
	RTPPortLow      int
	RTPPortHigh     int
	AuthValidator   *auth.Validator
	VideoSource     frame.Source
	AudioSource     frame.Source
	Parent          serverParent

	ln       net.Listener
	running  atomic.Bool
	wg       sync.WaitGroup // acceptor + pumps
	connWg   sync.WaitGroup // one per connected client
	registry *sessionRegistry
	portPool *portPool

	paramsMutex sync.Mutex
	h264Params  frame.H264Params

	bytesSent       atomic.Uint64
	framesSent      atomic.Uint64
	audioFramesSent atomic.Uint64
	sendFailures    atomic.Uint64
}

// Stats is a snapshot of the server counters.
type Stats struct {
	BytesSent       uint64
	FramesSent      uint64
	AudioFramesSent uint64
	SendFailures    uint64
	SessionsCount   int
}

// Log implements logger.Writer.
func (s *Server) Log(level logger.Level, format string, args ...interface{}) {
	s.Parent.Log(level, "[RTSP] "+format, args...)
}

// Initialize binds the listener and launches the acceptor and fan-out
// pumps. Any step failing unwinds everything acquired before it.
func (s *Server) Initialize() error {
	if s.VideoSource == nil {
		return fmt.Errorf("video source not set")
	}
	if s.VideoFPS <= 0 {
		return fmt.Errorf("invalid video fps: %d", s.VideoFPS)
	}
	if s.AudioEnabled {
		if s.AudioSource == nil {
			return fmt.Errorf("audio enabled but audio source not set")
		}
		if s.AudioSampleRate <= 0 {
			return fmt.Errorf("invalid audio sample rate: %d", s.AudioSampleRate)
		}
	}

	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", s.Port))
	if err != nil {
		return fmt.Errorf("listen on port %d: %w", s.Port, err)
	}
	s.ln = ln

	s.registry = newSessionRegistry()
	s.portPool = newPortPool(s.RTPPortLow, s.RTPPortHigh)

	s.running.Store(true)

	s.wg.Add(2)
	go s.runAcceptor()
	go s.runVideoPump()
	if s.AudioEnabled {
		s.wg.Add(1)
		go s.runAudioPump()
	}

	s.Log(logger.Info, "listener opened on %s, stream path %s (audio: %v)",
		ln.Addr(), s.StreamPath, s.AudioEnabled)

	return nil
}

// Close stops the server: unblocks and joins the acceptor and pumps,
// tears down every remaining session, then releases the frame sources.
// Idempotent; calling it on a server that never started is a no-op.
func (s *Server) Close() error {
	if !s.running.CompareAndSwap(true, false) {
		return nil
	}

	s.Log(logger.Info, "listener is closing")

	s.ln.Close()

	if !waitTimeout(&s.wg, shutdownJoinTimeout) {
		s.Log(logger.Error, "acceptor or pump failed to stop within %v", shutdownJoinTimeout)
		return ErrShutdownTimeout
	}

	for _, se := range s.registry.snapshot() {
		se.active.Store(false)
		se.conn.Close()
	}
	if !waitTimeout(&s.connWg, shutdownJoinTimeout) {
		s.Log(logger.Error, "session loops failed to stop within %v", shutdownJoinTimeout)
		return ErrShutdownTimeout
	}

	if err := s.VideoSource.Close(); err != nil {
		s.Log(logger.Warn, "video source close: %v", err)
	}
	if s.AudioSource != nil {
		if err := s.AudioSource.Close(); err != nil {
			s.Log(logger.Warn, "audio source close: %v", err)
		}
	}

	s.Log(logger.Info, "stopped")
	return nil
}

func waitTimeout(wg *sync.WaitGroup, timeout time.Duration) bool {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-time.After(timeout):
		return false
	}
}

func (s *Server) runAcceptor() {
	defer s.wg.Done()

	for s.running.Load() {
		conn, err := s.ln.Accept()
		if err != nil {
			if s.running.Load() {
				s.Log(logger.Error, "accept failed: %v", err)
				continue
			}
			return
		}

		se := &session{
			srv:  s,
			conn: conn,
		}
		se.initialize()

		s.registry.add(se)
		s.connWg.Add(1)
		go se.run()
	}
}

// Stats returns a snapshot of the running counters.
func (s *Server) Stats() Stats {
	return Stats{
		BytesSent:       s.bytesSent.Load(),
		FramesSent:      s.framesSent.Load(),
		AudioFramesSent: s.audioFramesSent.Load(),
		SendFailures:    s.sendFailures.Load(),
		SessionsCount:   s.registry.count(),
	}
}

// StreamURL returns the address this stream is advertised on, for the
// device-description service.
func (s *Server) StreamURL() string {
	return fmt.Sprintf("rtsp://%s:%d%s", s.deviceIP(), s.Port, s.StreamPath)
}

func (s *Server) deviceIP() string {
	return utils.LocalIP()
}

func (s *Server) h264Sprop() string {
	s.paramsMutex.Lock()
	defer s.paramsMutex.Unlock()
	return s.h264Params.Sprop()
}
