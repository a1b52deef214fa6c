package rtsp

import (
	"crypto/rand"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"XCam/internal/frame"

	"github.com/pion/rtp"
)

const (
	maxPacketSize = 1500
	rtpHeaderSize = 12
	maxRTPPayload = maxPacketSize - rtpHeaderSize

	// FU-A carries a 2-byte fragmentation header.
	maxFUAPayload = maxRTPPayload - 2

	fuaNALUType = 28

	videoClockRate = 90000
)

type transportMode int

// transport modes.
const (
	transportUDP transportMode = iota
	transportTCPInterleaved
)

// transportHeader is the parsed content of a SETUP Transport header.
type transportHeader struct {
	interleaved    bool
	channelRTP     int
	channelRTCP    int
	clientRTPPort  int
	clientRTCPPort int
}

func parseTransportHeader(value string) transportHeader {
	th := transportHeader{channelRTCP: 1}

	if strings.Contains(value, "RTP/AVP/TCP") || strings.Contains(value, "interleaved=") {
		th.interleaved = true
	}

	for _, part := range strings.Split(value, ";") {
		name, val, ok := strings.Cut(part, "=")
		if !ok {
			continue
		}
		switch strings.TrimSpace(name) {
		case "client_port":
			lo, hi, _ := strings.Cut(val, "-")
			th.clientRTPPort, _ = strconv.Atoi(lo)
			th.clientRTCPPort, _ = strconv.Atoi(hi)
			if th.clientRTCPPort == 0 {
				th.clientRTCPPort = th.clientRTPPort + 1
			}
		case "interleaved":
			lo, hi, _ := strings.Cut(val, "-")
			th.channelRTP, _ = strconv.Atoi(lo)
			th.channelRTCP, _ = strconv.Atoi(hi)
			if th.channelRTCP == 0 {
				th.channelRTCP = th.channelRTP + 1
			}
		}
	}

	return th
}

// interleavedWriter frames RTP/RTCP payloads into the RTSP TCP
// connection ($-prefixed, RFC 2326 §10.12).
type interleavedWriter interface {
	writeInterleaved(channel int, payload []byte) error
}

// mediaTransport is the per-media RTP state of one session: socket
// pair, client addresses and the sequence/timestamp continuity of the
// outgoing stream. Created by SETUP, destroyed with the session.
type mediaTransport struct {
	media       frame.MediaType
	payloadType uint8

	// timestamp advance per fan-out iteration, in clock-rate units.
	clockIncrement uint32
	clockRate      uint32

	ssrc      uint32
	seq       uint16
	timestamp uint32

	packetsSent uint32
	octetsSent  uint32
	lastSR      time.Time

	mode transportMode

	// UDP
	rtpConn        *net.UDPConn
	rtcpConn       *net.UDPConn
	serverRTPPort  int
	clientRTPAddr  *net.UDPAddr
	clientRTCPAddr *net.UDPAddr
	pool           *portPool

	// TCP interleaved
	channelRTP  int
	channelRTCP int
	tcpWriter   interleavedWriter
}

func randUint32() uint32 {
	var b [4]byte
	_, _ = rand.Read(b[:])
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
}

func newMediaTransport(media frame.MediaType, payloadType uint8, clockRate, clockIncrement uint32) *mediaTransport {
	return &mediaTransport{
		media:          media,
		payloadType:    payloadType,
		clockRate:      clockRate,
		clockIncrement: clockIncrement,
		ssrc:           randUint32(),
		seq:            uint16(randUint32()),
		timestamp:      randUint32(),
	}
}

// bindUDP allocates the server socket pair and stores the client
// destination addresses.
func (t *mediaTransport) bindUDP(pool *portPool, clientIP net.IP, rtpPort, rtcpPort int) error {
	rtpConn, rtcpConn, serverPort, err := pool.allocatePair()
	if err != nil {
		return err
	}

	t.mode = transportUDP
	t.pool = pool
	t.rtpConn = rtpConn
	t.rtcpConn = rtcpConn
	t.serverRTPPort = serverPort
	t.clientRTPAddr = &net.UDPAddr{IP: clientIP, Port: rtpPort}
	t.clientRTCPAddr = &net.UDPAddr{IP: clientIP, Port: rtcpPort}
	return nil
}

// bindInterleaved configures TCP-interleaved delivery on the control
// connection.
func (t *mediaTransport) bindInterleaved(w interleavedWriter, channelRTP, channelRTCP int) {
	t.mode = transportTCPInterleaved
	t.tcpWriter = w
	t.channelRTP = channelRTP
	t.channelRTCP = channelRTCP
}

// close releases sockets and returns ports to the pool. Idempotent.
func (t *mediaTransport) close() {
	if t.rtpConn != nil {
		t.rtpConn.Close()
		t.rtpConn = nil
	}
	if t.rtcpConn != nil {
		t.rtcpConn.Close()
		t.rtcpConn = nil
	}
	if t.pool != nil {
		t.pool.release(t.serverRTPPort)
		t.pool = nil
	}
}

// describeTransport returns the Transport response header value.
func (t *mediaTransport) describeTransport(clientRTPPort, clientRTCPPort int) string {
	if t.mode == transportTCPInterleaved {
		return fmt.Sprintf("RTP/AVP/TCP;unicast;interleaved=%d-%d", t.channelRTP, t.channelRTCP)
	}
	return fmt.Sprintf("RTP/AVP;unicast;client_port=%d-%d;server_port=%d-%d",
		clientRTPPort, clientRTCPPort, t.serverRTPPort, t.serverRTPPort+1)
}

// writePacket sends one RTP packet carrying payload, with the marker
// bit set only on the last fragment of a frame. The sequence number
// advances exactly once per call; the timestamp is whatever the fan-out
// pump last set. Returns the number of payload bytes sent.
func (t *mediaTransport) writePacket(payload []byte, marker bool) (int, error) {
	if len(payload) > maxRTPPayload {
		payload = payload[:maxRTPPayload]
	}

	pkt := rtp.Packet{
		Header: rtp.Header{
			Version:        2,
			Marker:         marker,
			PayloadType:    t.payloadType,
			SequenceNumber: t.seq,
			Timestamp:      t.timestamp,
			SSRC:           t.ssrc,
		},
		Payload: payload,
	}

	buf, err := pkt.Marshal()
	if err != nil {
		return 0, err
	}

	t.seq++

	switch t.mode {
	case transportTCPInterleaved:
		err = t.tcpWriter.writeInterleaved(t.channelRTP, buf)
	default:
		if t.rtpConn == nil {
			return 0, fmt.Errorf("transport not bound")
		}
		_, err = t.rtpConn.WriteToUDP(buf, t.clientRTPAddr)
	}
	if err != nil {
		return 0, err
	}

	t.packetsSent++
	t.octetsSent += uint32(len(payload))
	return len(payload), nil
}

// writeVideoFrame packetizes one H.264 access unit. NALUs that fit a
// single packet go out as-is; larger ones are fragmented as FU-A
// (RFC 6184). The marker bit is set only on the final packet of the
// frame. Returns total payload bytes sent.
func (t *mediaTransport) writeVideoFrame(payload []byte) (int, error) {
	nalus := frame.SplitNALUs(payload)

	total := 0
	for i, nalu := range nalus {
		if len(nalu) == 0 {
			continue
		}
		lastNALU := i == len(nalus)-1

		if len(nalu) <= maxRTPPayload {
			n, err := t.writePacket(nalu, lastNALU)
			total += n
			if err != nil {
				return total, err
			}
			continue
		}

		fuIndicator := (nalu[0] & 0xE0) | fuaNALUType
		naluType := nalu[0] & 0x1F
		rest := nalu[1:]
		start := true

		for len(rest) > 0 {
			chunk := len(rest)
			if chunk > maxFUAPayload {
				chunk = maxFUAPayload
			}
			end := chunk == len(rest)

			fuHeader := naluType
			if start {
				fuHeader |= 0x80
			}
			if end {
				fuHeader |= 0x40
			}

			pkt := make([]byte, 2+chunk)
			pkt[0] = fuIndicator
			pkt[1] = fuHeader
			copy(pkt[2:], rest[:chunk])

			n, err := t.writePacket(pkt, end && lastNALU)
			total += n
			if err != nil {
				return total, err
			}

			rest = rest[chunk:]
			start = false
		}
	}

	return total, nil
}

// writeAudioFrame sends one encoded audio frame. Audio frames are small
// (20 ms G.711 or one AAC frame) and go out as a single marked packet.
func (t *mediaTransport) writeAudioFrame(payload []byte) (int, error) {
	return t.writePacket(payload, true)
}
