package conf

import "fmt"

// AudioCodec is the negotiated audio encoding.
type AudioCodec string

// audio codecs.
const (
	AudioCodecALaw AudioCodec = "alaw"
	AudioCodecULaw AudioCodec = "ulaw"
	AudioCodecAAC  AudioCodec = "aac"
)

func (c *AudioCodec) Marshal(raw string) error {
	switch AudioCodec(raw) {
	case AudioCodecALaw, AudioCodecULaw, AudioCodecAAC:
		*c = AudioCodec(raw)
		return nil
	case "":
		*c = AudioCodecALaw
		return nil
	}
	return fmt.Errorf("invalid audio codec: %s", raw)
}

// PayloadType returns the RTP payload type of the codec.
func (c AudioCodec) PayloadType() uint8 {
	switch c {
	case AudioCodecULaw:
		return 0
	case AudioCodecAAC:
		return 97
	default:
		return 8
	}
}

// RTPMap returns the encoding name of the codec as used in a SDP rtpmap
// attribute, without payload type prefix.
func (c AudioCodec) RTPMap(sampleRate int) string {
	switch c {
	case AudioCodecULaw:
		return fmt.Sprintf("PCMU/%d", sampleRate)
	case AudioCodecAAC:
		return fmt.Sprintf("MPEG4-GENERIC/%d", sampleRate)
	default:
		return fmt.Sprintf("PCMA/%d", sampleRate)
	}
}
