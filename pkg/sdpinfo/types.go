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
)

// SessionInfo holds the ICE and DTLS parameters that live either at session
// level or in every media description.
type SessionInfo struct {
	ICEUfrag        string
	ICEPwd          string
	ICEOptions      string
	FingerprintAlgo string
	Fingerprint     string
	// active, passive or actpass
	Setup string
}

func (s SessionInfo) IsEmpty() bool {
	return s.ICEUfrag == ""
}

type RtpMap struct {
	PayloadType    uint8
	EncodingName   string
	ClockRate      uint32
	EncodingParams string
	RTCPFeedback   []string
	Fmtp           string
	// payloads that only make sense with this one: rtx, red, ulpfec
	Related []RtpMap
}

func (r RtpMap) Clone() RtpMap {
	c := r
	c.RTCPFeedback = append([]string(nil), r.RTCPFeedback...)
	c.Related = nil
	for _, rel := range r.Related {
		c.Related = append(c.Related, rel.Clone())
	}
	return c
}

func (r RtpMap) IsRTX() bool {
	return strings.Contains(r.Fmtp, "apt=")
}

func (r RtpMap) IsRED() bool {
	return strings.EqualFold(r.EncodingName, "red")
}

func (r RtpMap) IsULPFEC() bool {
	return strings.EqualFold(r.EncodingName, "ulpfec")
}

func (r RtpMap) isPrimaryVideo() bool {
	switch strings.ToUpper(r.EncodingName) {
	case "VP8", "VP9", "H264", "H265":
		return true
	}
	return false
}

func (r RtpMap) HasFeedback(fb string) bool {
	for _, f := range r.RTCPFeedback {
		if f == fb {
			return true
		}
	}
	return false
}

type SSRCGroup struct {
	Semantics string
	SSRCs     []uint32
}

type SSRCInfo struct {
	SSRC        uint32
	CNAME       string
	MSID        string
	MSIDTracker string
	MSLabel     string
	Label       string
}

type Format int

const (
	FormatUnknown Format = iota
	FormatOpus
	FormatH264
)

func (f Format) String() string {
	switch f {
	case FormatOpus:
		return "opus"
	case FormatH264:
		return "H264"
	default:
		return "unknown"
	}
}

func ParseFormat(s string) Format {
	switch strings.ToLower(s) {
	case "opus":
		return FormatOpus
	case "h264":
		return FormatH264
	default:
		return FormatUnknown
	}
}

// FormatPreference selects the one codec a track accepts.
type FormatPreference struct {
	Format Format
	// H264 profile-level-id, e.g. 42e01f
	Profile string
}
