package rtc

import (
	"github.com/pion/sdp/v3"
	"github.com/pion/webrtc/v3"

	"github.com/maleRjc/rtc-stack/pkg/sdpinfo"
)

// operation binds one offered media description to a configured track.
type operation struct {
	id         string
	kind       webrtc.RTPCodecType
	direction  sdp.Direction
	preference sdpinfo.FormatPreference
	enabled    bool
	// negotiated payload, 0 until selected or when nothing matched
	finalPayload uint8
}

// inbound reports whether media flows from the peer to us.
func (o *operation) inbound() bool {
	return o.direction == sdp.DirectionSendOnly
}

func kindFromMediaType(t string) webrtc.RTPCodecType {
	switch t {
	case sdpinfo.MediaTypeAudio:
		return webrtc.RTPCodecTypeAudio
	case sdpinfo.MediaTypeVideo:
		return webrtc.RTPCodecTypeVideo
	default:
		return 0
	}
}
