package rtsp

import (
	"bytes"
	"errors"
	"net"
	"time"

	"XCam/internal/logger"
)

const (
	// fixed capacity of the per-session receive buffer. A request that
	// fills it without a terminator is discarded, never grown.
	recvBufferSize = 4096

	// how often a blocked read wakes up to observe the active flag.
	readPollInterval = time.Second
)

var requestTerminator = []byte("\r\n\r\n")

// run is the control connection loop: it owns the TCP socket, frames
// requests out of the receive buffer, feeds them to the state machine
// and writes responses back. On exit it releases everything the session
// holds and removes it from the registry.
func (s *session) run() {
	defer s.srv.connWg.Done()

	s.readLoop()

	s.conn.Close()
	s.releaseTransports()
	s.srv.registry.remove(s)

	s.Log(logger.Info, "destroyed")
}

func (s *session) readLoop() {
	lastActivity := time.Now()

	for s.active.Load() {
		s.conn.SetReadDeadline(time.Now().Add(readPollInterval))

		n, err := s.conn.Read(s.recvBuf[s.recvPos:])
		if err != nil {
			var nerr net.Error
			if errors.As(err, &nerr) && nerr.Timeout() {
				// playing sessions may stay silent on the control
				// socket; everything else is reaped when idle.
				if s.srv.ReadTimeout > 0 &&
					time.Since(lastActivity) > time.Duration(s.srv.ReadTimeout) &&
					!s.isPlaying() {
					s.Log(logger.Warn, "idle timeout")
					return
				}
				continue
			}
			return
		}
		lastActivity = time.Now()
		if n <= 0 {
			return
		}
		s.recvPos += n

		if !s.processBuffered() {
			return
		}

		// buffer full with no terminator: oversized or hostile
		// request, drop the bytes and keep the connection.
		if s.recvPos >= len(s.recvBuf) {
			s.Log(logger.Warn, "receive buffer overflow, resetting")
			s.recvPos = 0
		}
	}
}

// processBuffered handles every complete request currently framed in
// the receive buffer and compacts leftover bytes to the front. Returns
// false when the connection must be dropped.
func (s *session) processBuffered() bool {
	for {
		idx := bytes.Index(s.recvBuf[:s.recvPos], requestTerminator)
		if idx < 0 {
			return true
		}

		res := s.handle(s.recvBuf[:idx])

		if err := s.writeResponse(res); err != nil {
			s.Log(logger.Warn, "response write failed: %v", err)
			return false
		}

		s.compact(idx + len(requestTerminator))

		if !s.active.Load() {
			return false
		}
	}
}

// compact shifts any bytes after the processed request to the front of
// the receive buffer and adjusts the fill offset.
func (s *session) compact(processed int) {
	remaining := s.recvPos - processed
	if remaining > 0 {
		copy(s.recvBuf, s.recvBuf[processed:s.recvPos])
	}
	s.recvPos = remaining
}

func (s *session) writeResponse(res []byte) error {
	s.writeMutex.Lock()
	defer s.writeMutex.Unlock()

	if s.srv.WriteTimeout > 0 {
		s.conn.SetWriteDeadline(time.Now().Add(time.Duration(s.srv.WriteTimeout)))
	}
	_, err := s.conn.Write(res)
	return err
}
