// Copyright 2023 LiveKit, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package sdpinfo

import (
	"strings"

	"github.com/pion/sdp/v3"
	"github.com/pion/webrtc/v3"
)

const (
	MediaTypeAudio = "audio"
	MediaTypeVideo = "video"

	SDESRepairRTPStreamIDURI = "urn:ietf:params:rtp-hdrext:sdes:repaired-rtp-stream-id"
	TimestampOffsetURI       = "urn:ietf:params:rtp-hdrext:toffset"
)

// SupportedExtensions is the header extension allow-list; ids are assigned
// in this order.
var SupportedExtensions = []string{
	sdp.AudioLevelURI,
	sdp.TransportCCURI,
	sdp.SDESMidURI,
	sdp.SDESRTPStreamIDURI,
	SDESRepairRTPStreamIDURI,
	TimestampOffsetURI,
	sdp.ABSSendTimeURI,
}

// ExtensionID returns the id assigned to uri by the allow-list, or 0.
func ExtensionID(uri string) int {
	for i, u := range SupportedExtensions {
		if u == uri {
			return i + 1
		}
	}
	return 0
}

// DefaultCodecs is the local codec configuration.
var DefaultCodecs = []webrtc.RTPCodecParameters{
	{
		RTPCodecCapability: webrtc.RTPCodecCapability{
			MimeType:  webrtc.MimeTypeH264,
			ClockRate: 90000,
			RTCPFeedback: []webrtc.RTCPFeedback{
				{Type: webrtc.TypeRTCPFBCCM, Parameter: "fir"},
				{Type: webrtc.TypeRTCPFBNACK},
				{Type: webrtc.TypeRTCPFBTransportCC},
				{Type: webrtc.TypeRTCPFBGoogREMB},
			},
		},
		PayloadType: 127,
	},
	{
		RTPCodecCapability: webrtc.RTPCodecCapability{MimeType: "video/red", ClockRate: 90000},
		PayloadType:        116,
	},
	{
		RTPCodecCapability: webrtc.RTPCodecCapability{MimeType: "video/rtx", ClockRate: 90000},
		PayloadType:        96,
	},
	{
		RTPCodecCapability: webrtc.RTPCodecCapability{MimeType: "video/ulpfec", ClockRate: 90000},
		PayloadType:        117,
	},
	{
		RTPCodecCapability: webrtc.RTPCodecCapability{
			MimeType:     webrtc.MimeTypeOpus,
			ClockRate:    48000,
			Channels:     2,
			RTCPFeedback: []webrtc.RTCPFeedback{{Type: webrtc.TypeRTCPFBTransportCC}},
		},
		PayloadType: 120,
	},
}

// DefaultCodec finds the configured codec by encoding name (case insensitive).
func DefaultCodec(name string) (webrtc.RTPCodecParameters, bool) {
	for _, c := range DefaultCodecs {
		if strings.EqualFold(c.MimeType[strings.Index(c.MimeType, "/")+1:], name) {
			return c, true
		}
	}
	return webrtc.RTPCodecParameters{}, false
}
