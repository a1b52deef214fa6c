package rtsp

import (
	"fmt"
	"time"

	psdp "github.com/pion/sdp/v3"
)

const videoPayloadType = 96

// buildSDP produces the DESCRIBE body: always one H.264 video track at
// control track0, plus an audio track at track1 when audio is enabled.
// sprop carries the base64 SPS/PPS pair when the encoder has produced a
// keyframe; players can still negotiate without it.
func (s *Server) buildSDP() ([]byte, error) {
	sessionID := uint64(time.Now().Unix())

	fmtp := fmt.Sprintf("%d packetization-mode=1;profile-level-id=42001e", videoPayloadType)
	if sprop := s.h264Sprop(); sprop != "" {
		fmtp += ";sprop-parameter-sets=" + sprop
	}

	video := &psdp.MediaDescription{
		MediaName: psdp.MediaName{
			Media:   "video",
			Port:    psdp.RangedPort{Value: 0},
			Protos:  []string{"RTP", "AVP"},
			Formats: []string{fmt.Sprintf("%d", videoPayloadType)},
		},
		Attributes: []psdp.Attribute{
			{Key: "rtpmap", Value: fmt.Sprintf("%d H264/90000", videoPayloadType)},
			{Key: "fmtp", Value: fmtp},
			{Key: "control", Value: "track0"},
		},
	}

	desc := psdp.SessionDescription{
		Origin: psdp.Origin{
			Username:       "-",
			SessionID:      sessionID,
			SessionVersion: sessionID,
			NetworkType:    "IN",
			AddressType:    "IP4",
			UnicastAddress: "0.0.0.0",
		},
		SessionName: "RTSP Session",
		ConnectionInformation: &psdp.ConnectionInformation{
			NetworkType: "IN",
			AddressType: "IP4",
			Address:     &psdp.Address{Address: s.deviceIP()},
		},
		TimeDescriptions: []psdp.TimeDescription{
			{Timing: psdp.Timing{StartTime: 0, StopTime: 0}},
		},
		MediaDescriptions: []*psdp.MediaDescription{video},
	}

	if s.AudioEnabled {
		pt := s.AudioCodec.PayloadType()
		audio := &psdp.MediaDescription{
			MediaName: psdp.MediaName{
				Media:   "audio",
				Port:    psdp.RangedPort{Value: 0},
				Protos:  []string{"RTP", "AVP"},
				Formats: []string{fmt.Sprintf("%d", pt)},
			},
			Attributes: []psdp.Attribute{
				{Key: "rtpmap", Value: fmt.Sprintf("%d %s", pt, s.AudioCodec.RTPMap(s.AudioSampleRate))},
				{Key: "control", Value: "track1"},
			},
		}
		desc.MediaDescriptions = append(desc.MediaDescriptions, audio)
	}

	return desc.Marshal()
}
