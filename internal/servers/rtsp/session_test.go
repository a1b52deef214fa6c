package rtsp

import (
	"encoding/base64"
	"fmt"
	"net"
	"testing"

	"XCam/internal/auth"
	"XCam/internal/conf"
	"XCam/internal/logger"

	"github.com/stretchr/testify/require"
)

type testParent struct{}

func (testParent) Log(_ logger.Level, _ string, _ ...interface{}) {}

func newTestServer() *Server {
	return &Server{
		StreamPath:      "/stream",
		VideoFPS:        25,
		AudioCodec:      conf.AudioCodecALaw,
		AudioSampleRate: 8000,
		Parent:          testParent{},
		registry:        newSessionRegistry(),
		portPool:        newPortPool(35300, 35398),
	}
}

// newTestSession returns a session wired to a pipe; the returned conn is
// the client end.
func newTestSession(t *testing.T, srv *Server) (*session, net.Conn) {
	serverSide, clientSide := net.Pipe()
	s := &session{srv: srv, conn: serverSide}
	s.initialize()
	s.remoteIP = net.IPv4(127, 0, 0, 1)

	t.Cleanup(func() {
		s.releaseTransports()
		serverSide.Close()
		clientSide.Close()
	})
	return s, clientSide
}

func doRequest(s *session, format string, args ...interface{}) string {
	return string(s.handle([]byte(fmt.Sprintf(format, args...))))
}

func TestSessionOptions(t *testing.T) {
	s, _ := newTestSession(t, newTestServer())

	res := doRequest(s, "OPTIONS rtsp://host/stream RTSP/1.0\r\nCSeq: 1")
	require.Contains(t, res, "RTSP/1.0 200 OK\r\n")
	require.Contains(t, res, "CSeq: 1\r\n")
	require.Contains(t, res, "Public: DESCRIBE, SETUP, TEARDOWN, PLAY, PAUSE, GET_PARAMETER, SET_PARAMETER\r\n")
}

func TestSessionCSeqSticky(t *testing.T) {
	s, _ := newTestSession(t, newTestServer())

	res := doRequest(s, "OPTIONS rtsp://host/stream RTSP/1.0\r\nCSeq: 7")
	require.Contains(t, res, "CSeq: 7\r\n")

	// malformed request keeps the prior CSeq
	res = doRequest(s, "garbage")
	require.Contains(t, res, "RTSP/1.0 400 Bad Request\r\n")
	require.Contains(t, res, "CSeq: 7\r\n")
}

func TestSessionDescribe(t *testing.T) {
	s, _ := newTestSession(t, newTestServer())

	res := doRequest(s, "DESCRIBE rtsp://host/stream RTSP/1.0\r\nCSeq: 2")
	require.Contains(t, res, "RTSP/1.0 200 OK\r\n")
	require.Contains(t, res, "Content-Type: application/sdp\r\n")
	require.Contains(t, res, "m=video")
	require.Contains(t, res, "a=control:track0")
	require.NotContains(t, res, "track1")
	require.Equal(t, "rtsp://host/stream", s.uri)
}

func TestSessionStateMachine(t *testing.T) {
	s, _ := newTestSession(t, newTestServer())
	require.Equal(t, stateInit, s.state)

	res := doRequest(s, "SETUP rtsp://host/stream/track0 RTSP/1.0\r\nCSeq: 3\r\nTransport: RTP/AVP;unicast;client_port=5000-5001")
	require.Contains(t, res, "RTSP/1.0 200 OK\r\n")
	require.Contains(t, res, "client_port=5000-5001")
	require.Contains(t, res, "server_port=")
	require.Contains(t, res, "Session: "+s.id)
	require.Equal(t, stateReady, s.state)
	require.NotNil(t, s.videoTransport)

	res = doRequest(s, "PLAY rtsp://host/stream RTSP/1.0\r\nCSeq: 4\r\nSession: %s", s.id)
	require.Contains(t, res, "RTSP/1.0 200 OK\r\n")
	require.Contains(t, res, "RTP-Info: url=rtsp://host/stream/track0;seq=")
	require.Equal(t, statePlaying, s.state)

	res = doRequest(s, "PAUSE rtsp://host/stream RTSP/1.0\r\nCSeq: 5\r\nSession: %s", s.id)
	require.Contains(t, res, "RTSP/1.0 200 OK\r\n")
	require.Equal(t, stateReady, s.state)

	res = doRequest(s, "PLAY rtsp://host/stream RTSP/1.0\r\nCSeq: 6\r\nSession: %s", s.id)
	require.Contains(t, res, "RTSP/1.0 200 OK\r\n")
	require.Equal(t, statePlaying, s.state)

	res = doRequest(s, "TEARDOWN rtsp://host/stream RTSP/1.0\r\nCSeq: 7\r\nSession: %s", s.id)
	require.Contains(t, res, "RTSP/1.0 200 OK\r\n")
	require.False(t, s.active.Load())
}

func TestSessionPlayWithoutDescribe(t *testing.T) {
	s, _ := newTestSession(t, newTestServer())

	// SETUP alone must leave enough for RTP-Info; players may skip
	// DESCRIBE entirely
	doRequest(s, "SETUP rtsp://host/stream/track0 RTSP/1.0\r\nCSeq: 1\r\nTransport: RTP/AVP;unicast;client_port=5000-5001")
	require.Equal(t, "rtsp://host/stream", s.uri)

	res := doRequest(s, "PLAY rtsp://host/stream RTSP/1.0\r\nCSeq: 2")
	require.Contains(t, res, "RTP-Info: url=rtsp://host/stream/track0;seq=")
}

func TestStreamURI(t *testing.T) {
	require.Equal(t, "rtsp://host/stream", streamURI("rtsp://host/stream/track0"))
	require.Equal(t, "rtsp://host/stream", streamURI("rtsp://host/stream/track1"))
	require.Equal(t, "rtsp://host/stream", streamURI("rtsp://host/stream"))
}

func TestSessionPlayWithoutSetup(t *testing.T) {
	s, _ := newTestSession(t, newTestServer())

	res := doRequest(s, "PLAY rtsp://host/stream RTSP/1.0\r\nCSeq: 2")
	require.Contains(t, res, "RTSP/1.0 405 Method Not Allowed\r\n")
	require.Equal(t, stateInit, s.state)
}

func TestSessionPauseWithoutPlay(t *testing.T) {
	s, _ := newTestSession(t, newTestServer())

	doRequest(s, "SETUP rtsp://host/stream/track0 RTSP/1.0\r\nCSeq: 2\r\nTransport: RTP/AVP;unicast;client_port=5000-5001")
	require.Equal(t, stateReady, s.state)

	res := doRequest(s, "PAUSE rtsp://host/stream RTSP/1.0\r\nCSeq: 3")
	require.Contains(t, res, "RTSP/1.0 405 Method Not Allowed\r\n")
	require.Equal(t, stateReady, s.state)
}

func TestSessionSetupWithoutTransport(t *testing.T) {
	s, _ := newTestSession(t, newTestServer())

	res := doRequest(s, "SETUP rtsp://host/stream/track0 RTSP/1.0\r\nCSeq: 2")
	require.Contains(t, res, "RTSP/1.0 400 Bad Request\r\n")
	require.Equal(t, stateInit, s.state)
}

func TestSessionSetupInterleaved(t *testing.T) {
	s, _ := newTestSession(t, newTestServer())

	res := doRequest(s, "SETUP rtsp://host/stream/track0 RTSP/1.0\r\nCSeq: 2\r\nTransport: RTP/AVP/TCP;unicast;interleaved=0-1")
	require.Contains(t, res, "RTSP/1.0 200 OK\r\n")
	require.Contains(t, res, "Transport: RTP/AVP/TCP;unicast;interleaved=0-1\r\n")
	require.Equal(t, stateReady, s.state)
	require.Equal(t, transportTCPInterleaved, s.videoTransport.mode)
}

func TestSessionSetupAudioTrack(t *testing.T) {
	srv := newTestServer()
	srv.AudioEnabled = true
	s, _ := newTestSession(t, srv)

	res := doRequest(s, "SETUP rtsp://host/stream/track1 RTSP/1.0\r\nCSeq: 2\r\nTransport: RTP/AVP;unicast;client_port=5002-5003")
	require.Contains(t, res, "RTSP/1.0 200 OK\r\n")
	require.NotNil(t, s.audioTransport)
	require.Equal(t, uint8(8), s.audioTransport.payloadType)

	// only the video SETUP moves the machine out of INIT
	require.Equal(t, stateInit, s.state)
}

func TestSessionSetupReplacesTransport(t *testing.T) {
	s, _ := newTestSession(t, newTestServer())

	doRequest(s, "SETUP rtsp://host/stream/track0 RTSP/1.0\r\nCSeq: 2\r\nTransport: RTP/AVP;unicast;client_port=5000-5001")
	first := s.videoTransport
	require.NotNil(t, first)

	doRequest(s, "SETUP rtsp://host/stream/track0 RTSP/1.0\r\nCSeq: 3\r\nTransport: RTP/AVP;unicast;client_port=5004-5005")
	require.NotSame(t, first, s.videoTransport)
	require.Nil(t, first.rtpConn)
}

func TestSessionUnknownMethod(t *testing.T) {
	s, _ := newTestSession(t, newTestServer())

	res := doRequest(s, "RECORD rtsp://host/stream RTSP/1.0\r\nCSeq: 2")
	require.Contains(t, res, "RTSP/1.0 405 Method Not Allowed\r\n")
}

func TestSessionGetParameter(t *testing.T) {
	s, _ := newTestSession(t, newTestServer())

	res := doRequest(s, "GET_PARAMETER rtsp://host/stream RTSP/1.0\r\nCSeq: 2")
	require.Contains(t, res, "RTSP/1.0 200 OK\r\n")
	require.Contains(t, res, "Session: "+s.id)
}

func TestSessionAuth(t *testing.T) {
	srv := newTestServer()
	srv.AuthValidator = auth.NewValidator("XCam")
	srv.AuthValidator.AddUser("admin", "secret")
	s, _ := newTestSession(t, srv)

	// OPTIONS is exempt
	res := doRequest(s, "OPTIONS rtsp://host/stream RTSP/1.0\r\nCSeq: 1")
	require.Contains(t, res, "RTSP/1.0 200 OK\r\n")

	res = doRequest(s, "DESCRIBE rtsp://host/stream RTSP/1.0\r\nCSeq: 2")
	require.Contains(t, res, "RTSP/1.0 401 Unauthorized\r\n")
	require.Contains(t, res, "WWW-Authenticate: Basic realm=\"XCam\"\r\n")

	cred := base64.StdEncoding.EncodeToString([]byte("admin:secret"))
	res = doRequest(s, "DESCRIBE rtsp://host/stream RTSP/1.0\r\nCSeq: 3\r\nAuthorization: Basic %s", cred)
	require.Contains(t, res, "RTSP/1.0 200 OK\r\n")

	bad := base64.StdEncoding.EncodeToString([]byte("admin:wrong"))
	res = doRequest(s, "DESCRIBE rtsp://host/stream RTSP/1.0\r\nCSeq: 4\r\nAuthorization: Basic %s", bad)
	require.Contains(t, res, "RTSP/1.0 401 Unauthorized\r\n")
}

func TestIsAudioTrack(t *testing.T) {
	require.True(t, isAudioTrack("rtsp://host/stream/track1"))
	require.False(t, isAudioTrack("rtsp://host/stream/track0"))
	require.False(t, isAudioTrack("rtsp://host/stream"))
	require.False(t, isAudioTrack("t1"))
}
