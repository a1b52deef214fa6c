package frame

import (
	"encoding/base64"

	mch264 "github.com/bluenviron/mediacommon/v2/pkg/codecs/h264"
)

// H264Params holds the parameter sets harvested from the encoder output.
type H264Params struct {
	SPS []byte
	PPS []byte
}

// Complete reports whether both parameter sets are known.
func (p *H264Params) Complete() bool {
	return p.SPS != nil && p.PPS != nil
}

// Sprop returns the sprop-parameter-sets fmtp value, or "" when the
// parameter sets are not yet known.
func (p *H264Params) Sprop() string {
	if !p.Complete() {
		return ""
	}
	return base64.StdEncoding.EncodeToString(p.SPS) + "," +
		base64.StdEncoding.EncodeToString(p.PPS)
}

// ExtractFrom scans an Annex-B access unit for SPS/PPS NALUs and stores
// the first occurrence of each. Returns true when something new was
// learned.
func (p *H264Params) ExtractFrom(payload []byte) bool {
	var au mch264.AnnexB
	err := au.Unmarshal(payload)
	if err != nil {
		return false
	}

	learned := false
	for _, nalu := range au {
		if len(nalu) == 0 {
			continue
		}
		switch mch264.NALUType(nalu[0] & 0x1F) {
		case mch264.NALUTypeSPS:
			if p.SPS == nil {
				p.SPS = append([]byte(nil), nalu...)
				learned = true
			}
		case mch264.NALUTypePPS:
			if p.PPS == nil {
				p.PPS = append([]byte(nil), nalu...)
				learned = true
			}
		}
	}
	return learned
}

// SplitNALUs decodes an Annex-B access unit into raw NALUs. Payloads
// without a start code are treated as a single NALU.
func SplitNALUs(payload []byte) [][]byte {
	var au mch264.AnnexB
	err := au.Unmarshal(payload)
	if err != nil {
		return [][]byte{payload}
	}
	return au
}
