package rtsp

import (
	"encoding/hex"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"XCam/internal/frame"
	"XCam/internal/logger"

	"github.com/google/uuid"
)

type rtspState int

// RTSP session states.
const (
	stateInit rtspState = iota
	stateReady
	statePlaying
)

func (s rtspState) String() string {
	switch s {
	case stateReady:
		return "READY"
	case statePlaying:
		return "PLAYING"
	}
	return "INIT"
}

// session is one connected RTSP client: its control socket, protocol
// state and the media transports negotiated via SETUP. The connection
// loop is the only writer of protocol state; the fan-out pumps read the
// transports under the registry lock.
type session struct {
	srv      *Server
	conn     net.Conn
	remoteIP net.IP

	uuid    uuid.UUID
	id      string
	created time.Time

	active       atomic.Bool
	audioEnabled bool

	// serializes writes on the control socket: responses from the
	// connection loop and interleaved media from the pumps.
	writeMutex sync.Mutex

	mutex          sync.Mutex
	state          rtspState
	cseq           int
	uri            string
	videoTransport *mediaTransport
	audioTransport *mediaTransport

	recvBuf []byte
	recvPos int
}

func (s *session) initialize() {
	s.uuid = uuid.New()
	s.id = hex.EncodeToString(s.uuid[:8])
	s.created = time.Now()
	s.recvBuf = make([]byte, recvBufferSize)
	s.active.Store(true)
	s.audioEnabled = s.srv.AudioEnabled

	if addr, ok := s.conn.RemoteAddr().(*net.TCPAddr); ok {
		s.remoteIP = addr.IP
	}

	s.Log(logger.Info, "created by %v", s.conn.RemoteAddr())
}

// Log implements logger.Writer.
func (s *session) Log(level logger.Level, format string, args ...interface{}) {
	label := hex.EncodeToString(s.uuid[:4])
	s.srv.Log(level, "[session %s] "+format, append([]interface{}{label}, args...)...)
}

// playingTransportLocked returns the transport to feed for the given
// media type, or nil when the session is not consuming that media right
// now. Caller holds s.mutex.
func (s *session) playingTransportLocked(media frame.MediaType) *mediaTransport {
	if !s.active.Load() || s.state != statePlaying {
		return nil
	}
	if media == frame.MediaAudio {
		if !s.audioEnabled {
			return nil
		}
		return s.audioTransport
	}
	return s.videoTransport
}

func (s *session) isPlaying() bool {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.state == statePlaying
}

// releaseTransports closes RTP sockets and returns ports to the pool.
func (s *session) releaseTransports() {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.videoTransport != nil {
		s.videoTransport.close()
		s.videoTransport = nil
	}
	if s.audioTransport != nil {
		s.audioTransport.close()
		s.audioTransport = nil
	}
}

// writeInterleaved implements interleavedWriter: a 4-byte $-framed
// header followed by the RTP/RTCP payload on the control socket.
func (s *session) writeInterleaved(channel int, payload []byte) error {
	buf := make([]byte, 4+len(payload))
	buf[0] = '$'
	buf[1] = byte(channel)
	buf[2] = byte(len(payload) >> 8)
	buf[3] = byte(len(payload))
	copy(buf[4:], payload)

	s.writeMutex.Lock()
	defer s.writeMutex.Unlock()

	if s.srv.WriteTimeout > 0 {
		s.conn.SetWriteDeadline(time.Now().Add(time.Duration(s.srv.WriteTimeout)))
	}
	_, err := s.conn.Write(buf)
	return err
}

// handle processes one framed request and returns the response bytes.
func (s *session) handle(data []byte) []byte {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	req, err := parseRequest(data)
	if err != nil {
		return newResponse(statusBadRequest).marshal(s.cseq)
	}

	if raw := req.header("CSeq"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil {
			s.cseq = v
		}
	}

	s.Log(logger.Debug, "[c->s] %s %s", req.method, req.uri)

	if s.srv.AuthValidator != nil && req.method != "OPTIONS" {
		if err := s.srv.AuthValidator.Check(req.header("Authorization")); err != nil {
			return newResponse(statusUnauthorized).
				add("WWW-Authenticate", s.srv.AuthValidator.Challenge()).
				marshal(s.cseq)
		}
	}

	var res *response
	switch req.method {
	case "OPTIONS":
		res = s.handleOptions()
	case "DESCRIBE":
		res = s.handleDescribe(req)
	case "SETUP":
		res = s.handleSetup(req)
	case "PLAY":
		res = s.handlePlay()
	case "PAUSE":
		res = s.handlePause()
	case "TEARDOWN":
		res = s.handleTeardown()
	case "GET_PARAMETER", "SET_PARAMETER":
		res = newResponse(statusOK).add("Session", s.id)
	default:
		res = newResponse(statusMethodNotAllowed)
	}

	return res.marshal(s.cseq)
}

func (s *session) handleOptions() *response {
	return newResponse(statusOK).
		add("Public", "DESCRIBE, SETUP, TEARDOWN, PLAY, PAUSE, GET_PARAMETER, SET_PARAMETER")
}

func (s *session) handleDescribe(req *request) *response {
	s.uri = req.uri

	sdp, err := s.srv.buildSDP()
	if err != nil {
		s.Log(logger.Error, "SDP build failed: %v", err)
		return newResponse(statusInternalError)
	}

	return newResponse(statusOK).setBody("application/sdp", sdp)
}

func (s *session) handleSetup(req *request) *response {
	rawTransport := req.header("Transport")
	if rawTransport == "" {
		return newResponse(statusBadRequest)
	}
	th := parseTransportHeader(rawTransport)

	// RTP-Info on PLAY is built from the stream URI, with or without a
	// preceding DESCRIBE.
	s.uri = streamURI(req.uri)

	isAudio := isAudioTrack(req.uri)

	var t *mediaTransport
	if isAudio {
		t = newMediaTransport(frame.MediaAudio, s.srv.AudioCodec.PayloadType(),
			uint32(s.srv.AudioSampleRate), uint32(s.srv.AudioSampleRate/50))
	} else {
		t = newMediaTransport(frame.MediaVideo, videoPayloadType,
			videoClockRate, videoClockRate/uint32(s.srv.VideoFPS))
	}

	if th.interleaved {
		t.bindInterleaved(s, th.channelRTP, th.channelRTCP)
	} else {
		err := t.bindUDP(s.srv.portPool, s.remoteIP, th.clientRTPPort, th.clientRTCPPort)
		if err != nil {
			s.Log(logger.Error, "RTP transport allocation failed: %v", err)
			return newResponse(statusInternalError)
		}
	}

	if isAudio {
		if s.audioTransport != nil {
			s.audioTransport.close()
		}
		s.audioTransport = t
		s.audioEnabled = true
	} else {
		if s.videoTransport != nil {
			s.videoTransport.close()
		}
		s.videoTransport = t
		s.state = stateReady
	}

	s.Log(logger.Info, "%s track set up (%s)", t.media, t.describeTransport(th.clientRTPPort, th.clientRTCPPort))

	return newResponse(statusOK).
		add("Transport", t.describeTransport(th.clientRTPPort, th.clientRTCPPort)).
		add("Session", s.id)
}

func (s *session) handlePlay() *response {
	if s.state != stateReady {
		return newResponse(statusMethodNotAllowed)
	}
	s.state = statePlaying

	rtpInfo := fmt.Sprintf("url=%s/track0;seq=%d;rtptime=%d",
		s.uri, s.videoTransport.seq, s.videoTransport.timestamp)
	if s.audioEnabled && s.audioTransport != nil {
		rtpInfo += fmt.Sprintf(",url=%s/track1;seq=%d;rtptime=%d",
			s.uri, s.audioTransport.seq, s.audioTransport.timestamp)
	}

	s.Log(logger.Info, "is playing")

	return newResponse(statusOK).
		add("Session", s.id).
		add("RTP-Info", rtpInfo)
}

func (s *session) handlePause() *response {
	if s.state != statePlaying {
		return newResponse(statusMethodNotAllowed)
	}
	s.state = stateReady

	s.Log(logger.Info, "is paused")

	return newResponse(statusOK).add("Session", s.id)
}

func (s *session) handleTeardown() *response {
	// the connection loop observes the flag, exits and performs the
	// actual cleanup after this response is written.
	s.active.Store(false)

	s.Log(logger.Info, "torn down")

	return newResponse(statusOK).add("Session", s.id)
}

// isAudioTrack reports whether a SETUP URI addresses the audio track.
// Video is control suffix track0, audio is track1.
func isAudioTrack(uri string) bool {
	return strings.HasSuffix(uri, "track1")
}

// streamURI strips the per-track control suffix from a SETUP URI.
func streamURI(uri string) string {
	for _, suffix := range []string{"/track0", "/track1"} {
		if strings.HasSuffix(uri, suffix) {
			return strings.TrimSuffix(uri, suffix)
		}
	}
	return uri
}
