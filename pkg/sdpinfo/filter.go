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

	"github.com/google/uuid"
	"github.com/jxskiss/base62"
	"github.com/pion/sdp/v3"
	"github.com/thoas/go-funk"

	"github.com/maleRjc/rtc-stack/pkg/logger"
)

const (
	ssrcCNAME    = "o/i14u9pJrxRKAsu"
	msidLength   = 10
	feedbackREMB = "goog-remb"
)

// FilterByPayload narrows the codec table to payload and its related entries.
// It returns false without touching the table when payload is unknown.
func (m *MediaDesc) FilterByPayload(payload uint8, disableRED, disableRTX, disableULPFEC bool) bool {
	found := m.rtpMap(payload)
	if found == nil {
		return false
	}

	primary := found.Clone()
	related := primary.Related[:0]
	for _, r := range primary.Related {
		switch {
		case r.IsRED() && disableRED:
		case r.IsRTX() && disableRTX:
		case r.IsULPFEC() && disableULPFEC:
		default:
			related = append(related, r)
		}
	}
	primary.Related = related

	feedback := primary.RTCPFeedback[:0]
	for _, fb := range primary.RTCPFeedback {
		if fb != feedbackREMB {
			feedback = append(feedback, fb)
		}
	}
	primary.RTCPFeedback = feedback

	table := []RtpMap{primary}
	seen := map[uint8]bool{primary.PayloadType: true}
	add := func(r RtpMap) {
		if seen[r.PayloadType] {
			return
		}
		seen[r.PayloadType] = true
		table = append(table, r)
	}
	for _, r := range primary.Related {
		add(r)
	}
	// rtx of red
	for _, r := range primary.Related {
		if len(r.Related) > 0 && !disableRTX {
			add(r.Related[0])
		}
	}
	payloads := make([]string, 0, len(table))
	for _, r := range table {
		payloads = append(payloads, strconv.Itoa(int(r.PayloadType)))
	}

	m.RtpMaps = table
	m.Payloads = strings.Join(payloads, " ")
	return true
}

// filterExtmap drops every extension outside allowed.
func (m *MediaDesc) filterExtmap(allowed []string) {
	for id, uri := range m.Extmaps {
		if !funk.ContainsString(allowed, uri) {
			delete(m.Extmaps, id)
			continue
		}
		if m.DisableAudioGCC && m.Type == MediaTypeAudio && uri == sdp.TransportCCURI {
			delete(m.Extmaps, id)
		}
	}
}

// FilterAudioPayload returns the first payload whose encoding name is the
// preferred format, or 0.
func (m *MediaDesc) FilterAudioPayload(pref FormatPreference) uint8 {
	name := pref.Format.String()
	for _, r := range m.RtpMaps {
		if r.EncodingName == name {
			return r.PayloadType
		}
	}
	return 0
}

// FilterVideoPayload returns the H264 payload with packetization-mode=0 and
// the preferred profile-level-id, or 0.
func (m *MediaDesc) FilterVideoPayload(pref FormatPreference) uint8 {
	if pref.Format != FormatH264 {
		return 0
	}
	for _, r := range m.RtpMaps {
		if r.EncodingName != pref.Format.String() {
			continue
		}
		mode, ok := fmtpParam(r.Fmtp, "packetization-mode")
		if !ok || mode != "0" {
			continue
		}
		profile, ok := fmtpParam(r.Fmtp, "profile-level-id")
		if !ok || len(profile) < 6 || profile[:6] != pref.Profile {
			continue
		}
		return r.PayloadType
	}
	return 0
}

// SetSsrcs replaces the ssrc info and groups with the first of ssrcs. An
// empty msid is replaced with a random one; the msid used is returned.
func (m *MediaDesc) SetSsrcs(ssrcs []uint32, msid string) string {
	if len(ssrcs) == 0 {
		return msid
	}
	if msid == "" {
		msid = NewMSID()
	}

	mtype := "v"
	if m.Type == MediaTypeAudio {
		mtype = "a"
	}
	// groups referenced the replaced ssrcs
	m.SSRCGroups = nil
	m.SSRCInfos = []SSRCInfo{{
		SSRC:        ssrcs[0],
		CNAME:       ssrcCNAME,
		MSID:        msid,
		MSIDTracker: mtype + "0",
		MSLabel:     msid,
		Label:       msid + mtype + "0",
	}}

	logger.Debugw("set ssrc", "mid", m.MID, "ssrc", ssrcs[0], "msid", msid)
	return msid
}

// NewMSID returns a random alphanumeric stream id.
func NewMSID() string {
	id := uuid.New()
	return base62.EncodeToString(id[:])[:msidLength]
}
