package rtsp

import (
	"time"

	"github.com/pion/rtcp"
)

// interval between Sender Reports per transport.
const senderReportInterval = 5 * time.Second

// seconds between the NTP epoch (1900) and the Unix epoch (1970).
const ntpEpochOffset = 2208988800

func ntpTime(t time.Time) uint64 {
	secs := uint64(t.Unix()) + ntpEpochOffset
	frac := uint64(t.Nanosecond()) << 32 / uint64(time.Second)
	return secs<<32 | frac
}

// maybeSendSenderReport emits an RTCP SR on the control socket when the
// report interval has elapsed. Failures are ignored; RTCP is advisory
// and must never disturb media delivery.
func (t *mediaTransport) maybeSendSenderReport(now time.Time) {
	if now.Sub(t.lastSR) < senderReportInterval {
		return
	}
	t.lastSR = now

	sr := rtcp.SenderReport{
		SSRC:        t.ssrc,
		NTPTime:     ntpTime(now),
		RTPTime:     t.timestamp,
		PacketCount: t.packetsSent,
		OctetCount:  t.octetsSent,
	}

	buf, err := sr.Marshal()
	if err != nil {
		return
	}

	switch t.mode {
	case transportTCPInterleaved:
		_ = t.tcpWriter.writeInterleaved(t.channelRTCP, buf)
	default:
		if t.rtcpConn != nil {
			_, _ = t.rtcpConn.WriteToUDP(buf, t.clientRTCPAddr)
		}
	}
}
