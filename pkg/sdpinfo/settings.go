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
	"strconv"
	"strings"

	"github.com/pion/interceptor"
	"github.com/pion/sdp/v3"
	"github.com/pion/webrtc/v3"
)

const ssrcGroupFID = "FID"

// MediaSettings are the parameters of one negotiated media description that
// the transport needs to bind a stream.
type MediaSettings struct {
	IsAudio bool
	// selected payload
	Format uint8
	// primary ssrc, then rtx ssrc for video
	SSRCs       []uint32
	RED         uint8
	ULPFEC      uint8
	TransportCC int
	RTCPRsize   bool
	MID         string
	MIDExtID    int
}

func (m *MediaDesc) MediaSettings() MediaSettings {
	s := MediaSettings{
		IsAudio:   m.Type == MediaTypeAudio,
		RTCPRsize: m.RTCPRsize,
	}

	for id, uri := range m.Extmaps {
		switch uri {
		case sdp.TransportCCURI:
			if s.IsAudio {
				s.TransportCC = id
			}
		case sdp.SDESMidURI:
			s.MID = m.MID
			s.MIDExtID = id
		}
	}

	if s.IsAudio {
		if len(m.SSRCInfos) > 0 {
			s.SSRCs = []uint32{m.SSRCInfos[0].SSRC}
		}
		return s
	}

	for _, g := range m.SSRCGroups {
		if g.Semantics == ssrcGroupFID && len(g.SSRCs) == 2 {
			s.SSRCs = append([]uint32(nil), g.SSRCs...)
			break
		}
	}
	if len(s.SSRCs) == 0 && len(m.SSRCInfos) > 0 {
		s.SSRCs = []uint32{m.SSRCInfos[0].SSRC}
	}

	transportCC := false
	for _, r := range m.RtpMaps {
		switch {
		case r.IsRED():
			s.RED = r.PayloadType
		case r.IsULPFEC():
			s.ULPFEC = r.PayloadType
		}
		if r.HasFeedback(webrtc.TypeRTCPFBTransportCC) {
			transportCC = true
		}
	}
	if transportCC {
		for id, uri := range m.Extmaps {
			if uri == sdp.TransportCCURI {
				s.TransportCC = id
			}
		}
	}
	return s
}

// StreamInfo describes the stream for interceptors reading or writing it.
func (m *MediaDesc) StreamInfo(s MediaSettings) *interceptor.StreamInfo {
	codec := m.rtpMap(s.Format)
	if codec == nil {
		return nil
	}

	info := &interceptor.StreamInfo{
		ID:                                m.MID,
		PayloadType:                       codec.PayloadType,
		PayloadTypeForwardErrorCorrection: s.ULPFEC,
		MimeType:                          mimeType(m.Type, codec.EncodingName),
		ClockRate:                         codec.ClockRate,
		SDPFmtpLine:                       codec.Fmtp,
	}
	if len(s.SSRCs) > 0 {
		info.SSRC = s.SSRCs[0]
	}
	if len(s.SSRCs) > 1 {
		info.SSRCRetransmission = s.SSRCs[1]
	}
	if ch, err := strconv.ParseUint(codec.EncodingParams, 10, 16); err == nil {
		info.Channels = uint16(ch)
	}
	for _, r := range codec.Related {
		if r.IsRTX() {
			info.PayloadTypeRetransmission = r.PayloadType
		}
	}
	for _, fb := range codec.RTCPFeedback {
		typ, param, _ := strings.Cut(fb, " ")
		info.RTCPFeedback = append(info.RTCPFeedback, interceptor.RTCPFeedback{Type: typ, Parameter: param})
	}
	for _, id := range m.extIDs() {
		info.RTPHeaderExtensions = append(info.RTPHeaderExtensions, interceptor.RTPHeaderExtension{URI: m.Extmaps[id], ID: id})
	}
	return info
}

func mimeType(kind, name string) string {
	return kind + "/" + name
}
