package rtsp

import (
	"bufio"
	"fmt"
	"io"
	"net"
	"testing"
	"time"

	"XCam/internal/conf"
	"XCam/internal/frame"

	"github.com/pion/rtp"
	"github.com/stretchr/testify/require"
)

func newRunningServer(t *testing.T, audio bool) *Server {
	srv := &Server{
		Port:            0,
		StreamPath:      "/stream",
		ReadTimeout:     conf.Duration(10 * time.Second),
		WriteTimeout:    conf.Duration(10 * time.Second),
		VideoFPS:        50,
		RTPPortLow:      35500,
		RTPPortHigh:     35598,
		VideoSource:     frame.NewSyntheticVideoSource(50, 10),
		AudioEnabled:    audio,
		AudioCodec:      conf.AudioCodecALaw,
		AudioSampleRate: 8000,
		Parent:          testParent{},
	}
	if audio {
		srv.AudioSource = frame.NewSyntheticAudioSource(8000)
	}

	require.NoError(t, srv.Initialize())
	t.Cleanup(func() { srv.Close() })
	return srv
}

func dialServer(t *testing.T, srv *Server) (net.Conn, *bufio.Reader) {
	addr := srv.ln.Addr().(*net.TCPAddr)
	conn, err := net.Dial("tcp", fmt.Sprintf("127.0.0.1:%d", addr.Port))
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn, bufio.NewReader(conn)
}

func roundTrip(t *testing.T, conn net.Conn, br *bufio.Reader, req string) string {
	conn.SetDeadline(time.Now().Add(5 * time.Second))
	_, err := conn.Write([]byte(req))
	require.NoError(t, err)
	return readFullResponse(t, br)
}

func TestServerInitializeValidation(t *testing.T) {
	srv := &Server{Parent: testParent{}}
	require.Error(t, srv.Initialize()) // no video source

	srv.VideoSource = frame.NewSyntheticVideoSource(25, 25)
	require.Error(t, srv.Initialize()) // fps unset
}

func TestServerPortInUse(t *testing.T) {
	ln, err := net.Listen("tcp", ":0")
	require.NoError(t, err)
	defer ln.Close()

	src := frame.NewSyntheticVideoSource(25, 25)
	defer src.Close()

	srv := &Server{
		Port:        ln.Addr().(*net.TCPAddr).Port,
		StreamPath:  "/stream",
		VideoFPS:    25,
		RTPPortLow:  35500,
		RTPPortHigh: 35598,
		VideoSource: src,
		Parent:      testParent{},
	}
	require.Error(t, srv.Initialize())
}

func TestServerCloseIdempotent(t *testing.T) {
	srv := newRunningServer(t, false)
	require.NoError(t, srv.Close())
	require.NoError(t, srv.Close())

	// a server that never started is also fine to close
	require.NoError(t, (&Server{Parent: testParent{}}).Close())
}

func TestServerStreamURL(t *testing.T) {
	srv := newRunningServer(t, false)
	require.Contains(t, srv.StreamURL(), "rtsp://")
	require.Contains(t, srv.StreamURL(), "/stream")
}

func TestServerEndToEndUDP(t *testing.T) {
	srv := newRunningServer(t, false)
	conn, br := dialServer(t, srv)

	res := roundTrip(t, conn, br, "OPTIONS rtsp://127.0.0.1/stream RTSP/1.0\r\nCSeq: 1\r\n\r\n")
	require.Contains(t, res, "RTSP/1.0 200 OK\r\n")
	require.Contains(t, res, "Public:")

	res = roundTrip(t, conn, br, "DESCRIBE rtsp://127.0.0.1/stream RTSP/1.0\r\nCSeq: 2\r\n\r\n")
	require.Contains(t, res, "RTSP/1.0 200 OK\r\n")
	require.Contains(t, res, "m=video")

	recv := newReceiver(t)
	clientPort := recv.LocalAddr().(*net.UDPAddr).Port

	res = roundTrip(t, conn, br, fmt.Sprintf(
		"SETUP rtsp://127.0.0.1/stream/track0 RTSP/1.0\r\nCSeq: 3\r\nTransport: RTP/AVP;unicast;client_port=%d-%d\r\n\r\n",
		clientPort, clientPort+1))
	require.Contains(t, res, "RTSP/1.0 200 OK\r\n")
	require.Contains(t, res, "server_port=")

	res = roundTrip(t, conn, br, "PLAY rtsp://127.0.0.1/stream RTSP/1.0\r\nCSeq: 4\r\n\r\n")
	require.Contains(t, res, "RTSP/1.0 200 OK\r\n")
	require.Contains(t, res, "RTP-Info:")

	// media flows to the client socket
	first := readRTP(t, recv)
	require.Equal(t, uint8(videoPayloadType), first.PayloadType)

	second := readRTP(t, recv)
	require.Equal(t, first.SSRC, second.SSRC)
	require.Equal(t, first.SequenceNumber+1, second.SequenceNumber)

	require.Eventually(t, func() bool {
		return srv.Stats().FramesSent > 0
	}, 2*time.Second, 10*time.Millisecond)

	res = roundTrip(t, conn, br, "TEARDOWN rtsp://127.0.0.1/stream RTSP/1.0\r\nCSeq: 5\r\n\r\n")
	require.Contains(t, res, "RTSP/1.0 200 OK\r\n")

	require.Eventually(t, func() bool {
		return srv.Stats().SessionsCount == 0
	}, 2*time.Second, 10*time.Millisecond)

	// SETUP ports went back to the pool
	require.Equal(t, 0, srv.portPool.countInUse())
}

func TestServerEndToEndInterleaved(t *testing.T) {
	srv := newRunningServer(t, false)
	conn, br := dialServer(t, srv)

	res := roundTrip(t, conn, br,
		"SETUP rtsp://127.0.0.1/stream/track0 RTSP/1.0\r\nCSeq: 1\r\nTransport: RTP/AVP/TCP;unicast;interleaved=0-1\r\n\r\n")
	require.Contains(t, res, "interleaved=0-1")

	// once PLAY is sent, $-framed media may hit the socket before the
	// response does; demux by the leading byte like a real client
	conn.SetDeadline(time.Now().Add(5 * time.Second))
	_, err := conn.Write([]byte("PLAY rtsp://127.0.0.1/stream RTSP/1.0\r\nCSeq: 2\r\n\r\n"))
	require.NoError(t, err)

	sawResponse := false
	sawRTP := false
	for !sawResponse || !sawRTP {
		head, err := br.Peek(1)
		require.NoError(t, err)

		if head[0] != '$' {
			res := readFullResponse(t, br)
			require.Contains(t, res, "RTSP/1.0 200 OK\r\n")
			sawResponse = true
			continue
		}

		header := make([]byte, 4)
		_, err = io.ReadFull(br, header)
		require.NoError(t, err)

		length := int(header[2])<<8 | int(header[3])
		payload := make([]byte, length)
		_, err = io.ReadFull(br, payload)
		require.NoError(t, err)

		if header[1] != 0 {
			continue // RTCP on channel 1
		}

		var pkt rtp.Packet
		require.NoError(t, pkt.Unmarshal(payload))
		require.Equal(t, uint8(videoPayloadType), pkt.PayloadType)
		sawRTP = true
	}
}

func TestServerTimestampAdvancesPerFrame(t *testing.T) {
	srv := newRunningServer(t, false)
	conn, br := dialServer(t, srv)

	recv := newReceiver(t)
	clientPort := recv.LocalAddr().(*net.UDPAddr).Port

	roundTrip(t, conn, br, fmt.Sprintf(
		"SETUP rtsp://127.0.0.1/stream/track0 RTSP/1.0\r\nCSeq: 1\r\nTransport: RTP/AVP;unicast;client_port=%d-%d\r\n\r\n",
		clientPort, clientPort+1))
	roundTrip(t, conn, br, "PLAY rtsp://127.0.0.1/stream RTSP/1.0\r\nCSeq: 2\r\n\r\n")

	// collect packets until two distinct timestamps show up, then
	// check they differ by the clock rate over the frame rate
	first := readRTP(t, recv)
	for {
		pkt := readRTP(t, recv)
		if pkt.Timestamp == first.Timestamp {
			continue
		}
		require.Equal(t, first.Timestamp+videoClockRate/50, pkt.Timestamp)
		break
	}
}
