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
	"sort"
	"strconv"
	"strings"

	"github.com/pion/sdp/v3"
	"github.com/pkg/errors"
)

const (
	attrKeyICEUfrag    = "ice-ufrag"
	attrKeyICEPwd      = "ice-pwd"
	attrKeyICEOptions  = "ice-options"
	attrKeyFingerprint = "fingerprint"
	attrKeyRtpmap      = "rtpmap"
	attrKeyRTCPFb      = "rtcp-fb"
	attrKeyFmtp        = "fmtp"

	ssrcAttrCNAME   = "cname"
	ssrcAttrMSID    = "msid"
	ssrcAttrMSLabel = "mslabel"
	ssrcAttrLabel   = "label"
)

// MediaDesc is one m= section.
type MediaDesc struct {
	Type     string
	Port     int
	NumPorts int
	Protocol string
	// space separated payload types, as on the m= line
	Payloads string

	Candidates  []Candidate
	SessionInfo SessionInfo
	MID         string
	// extension id -> uri
	Extmaps   map[int]string
	Direction sdp.Direction
	MSID      string
	RTCPMux   bool
	RTCPRsize bool

	RtpMaps    []RtpMap
	SSRCInfos  []SSRCInfo
	SSRCGroups []SSRCGroup

	// strip transport-cc from audio when filtering extensions
	DisableAudioGCC bool
}

func parseMedia(md *sdp.MediaDescription) (*MediaDesc, error) {
	missing := func(field string) error {
		return errors.Wrap(ErrMissingField, field)
	}

	m := &MediaDesc{
		Type:    md.MediaName.Media,
		Port:    md.MediaName.Port.Value,
		Extmaps: make(map[int]string),
	}
	if m.Type == "" {
		return nil, missing("type")
	}
	if md.MediaName.Port.Range != nil {
		m.NumPorts = *md.MediaName.Port.Range
	}
	if len(md.MediaName.Protos) == 0 {
		return nil, missing("protocol")
	}
	m.Protocol = strings.Join(md.MediaName.Protos, "/")
	if len(md.MediaName.Formats) == 0 {
		return nil, missing("payloads")
	}
	m.Payloads = strings.Join(md.MediaName.Formats, " ")

	hasDirection := false
	for _, a := range md.Attributes {
		switch a.Key {
		case sdp.AttrKeyMID:
			m.MID = a.Value
		case sdp.AttrKeyCandidate:
			c, err := ParseCandidate(a.Value)
			if err != nil {
				return nil, err
			}
			m.Candidates = append(m.Candidates, c)
		case sdp.AttrKeyExtMap:
			ext := &sdp.ExtMap{}
			if err := ext.Unmarshal(a.String()); err != nil {
				return nil, errors.Wrap(ErrParseFailure, err.Error())
			}
			m.Extmaps[ext.Value] = ext.URI.String()
		case sdp.AttrKeySendRecv, sdp.AttrKeySendOnly, sdp.AttrKeyRecvOnly, sdp.AttrKeyInactive:
			m.Direction, _ = sdp.NewDirection(a.Key)
			hasDirection = true
		case sdp.AttrKeyMsid:
			m.MSID = a.Value
		case sdp.AttrKeyRTCPMux:
			m.RTCPMux = true
		case sdp.AttrKeyRTCPRsize:
			m.RTCPRsize = true
		}
	}
	m.SessionInfo = parseSessionInfo(md.Attributes)

	if m.MID == "" {
		return nil, missing("mid")
	}
	if len(m.Extmaps) == 0 {
		return nil, missing("ext")
	}
	if !hasDirection {
		return nil, missing("direction")
	}

	if err := m.parseRtpMaps(md); err != nil {
		return nil, err
	}
	m.parseSSRCs(md.Attributes)
	return m, nil
}

func parseSessionInfo(attrs []sdp.Attribute) SessionInfo {
	var info SessionInfo
	for _, a := range attrs {
		switch a.Key {
		case attrKeyICEUfrag:
			info.ICEUfrag = a.Value
		case attrKeyICEPwd:
			info.ICEPwd = a.Value
		case attrKeyICEOptions:
			info.ICEOptions = a.Value
		case attrKeyFingerprint:
			if parts := strings.Fields(a.Value); len(parts) == 2 {
				info.FingerprintAlgo = parts[0]
				info.Fingerprint = parts[1]
			}
		case sdp.AttrKeyConnectionSetup:
			info.Setup = a.Value
		}
	}
	return info
}

func (s SessionInfo) attributes() []sdp.Attribute {
	var attrs []sdp.Attribute
	if s.ICEUfrag != "" {
		attrs = append(attrs, sdp.NewAttribute(attrKeyICEUfrag, s.ICEUfrag))
	}
	if s.ICEPwd != "" {
		attrs = append(attrs, sdp.NewAttribute(attrKeyICEPwd, s.ICEPwd))
	}
	if s.ICEOptions != "" {
		attrs = append(attrs, sdp.NewAttribute(attrKeyICEOptions, s.ICEOptions))
	}
	if s.Fingerprint != "" {
		attrs = append(attrs, sdp.NewAttribute(attrKeyFingerprint, s.FingerprintAlgo+" "+s.Fingerprint))
	}
	if s.Setup != "" {
		attrs = append(attrs, sdp.NewAttribute(sdp.AttrKeyConnectionSetup, s.Setup))
	}
	return attrs
}

func (m *MediaDesc) parseRtpMaps(md *sdp.MediaDescription) error {
	// codec details come from the pion codec map of a single media session
	single := &sdp.SessionDescription{MediaDescriptions: []*sdp.MediaDescription{md}}
	seen := make(map[uint8]bool)
	for _, a := range md.Attributes {
		if a.Key != attrKeyRtpmap {
			continue
		}
		ptStr, _, _ := strings.Cut(a.Value, " ")
		pt, err := strconv.ParseUint(ptStr, 10, 8)
		if err != nil {
			return errors.Wrapf(ErrParseFailure, "rtpmap %q", a.Value)
		}
		if seen[uint8(pt)] {
			return errors.Wrapf(ErrDuplicatePayload, "payload %d", pt)
		}
		seen[uint8(pt)] = true

		codec, err := single.GetCodecForPayloadType(uint8(pt))
		if err != nil {
			return errors.Wrapf(ErrParseFailure, "rtpmap %q", a.Value)
		}
		m.RtpMaps = append(m.RtpMaps, RtpMap{
			PayloadType:    codec.PayloadType,
			EncodingName:   codec.Name,
			ClockRate:      codec.ClockRate,
			EncodingParams: codec.EncodingParameters,
			RTCPFeedback:   codec.RTCPFeedback,
			Fmtp:           codec.Fmtp,
		})
	}
	if len(m.RtpMaps) == 0 {
		return errors.Wrap(ErrMissingField, "rtp")
	}

	m.relateRtpMaps()
	return nil
}

// relateRtpMaps attaches every rtx entry to its apt primary, then red and
// ulpfec (with their own rtx) to every primary video codec.
func (m *MediaDesc) relateRtpMaps() {
	for _, rtx := range m.RtpMaps {
		apt, ok := fmtpParam(rtx.Fmtp, "apt")
		if !ok {
			continue
		}
		pt, err := strconv.ParseUint(apt, 10, 8)
		if err != nil {
			continue
		}
		// rtx never protects itself or another rtx
		primary := m.rtpMap(uint8(pt))
		if primary == nil || primary.PayloadType == rtx.PayloadType || primary.IsRTX() {
			continue
		}
		primary.Related = append(primary.Related, rtx.Clone())
	}

	var fec []RtpMap
	for _, r := range m.RtpMaps {
		if r.IsRED() || r.IsULPFEC() {
			fec = append(fec, r.Clone())
		}
	}
	if len(fec) == 0 {
		return
	}
	for i := range m.RtpMaps {
		if !m.RtpMaps[i].isPrimaryVideo() {
			continue
		}
		for _, f := range fec {
			m.RtpMaps[i].Related = append(m.RtpMaps[i].Related, f.Clone())
		}
	}
}

func (m *MediaDesc) parseSSRCs(attrs []sdp.Attribute) {
	for _, a := range attrs {
		switch a.Key {
		case sdp.AttrKeySSRC:
			idStr, rest, ok := strings.Cut(a.Value, " ")
			if !ok {
				continue
			}
			id, err := strconv.ParseUint(idStr, 10, 32)
			if err != nil {
				continue
			}
			name, value, _ := strings.Cut(rest, ":")
			info := m.ssrcInfo(uint32(id))
			switch name {
			case ssrcAttrCNAME:
				if info.CNAME == "" {
					info.CNAME = value
				}
			case ssrcAttrMSID:
				info.MSID, info.MSIDTracker, _ = strings.Cut(value, " ")
			case ssrcAttrMSLabel:
				info.MSLabel = value
			case ssrcAttrLabel:
				info.Label = value
			}
		case sdp.AttrKeySSRCGroup:
			fields := strings.Fields(a.Value)
			if len(fields) < 2 {
				continue
			}
			group := SSRCGroup{Semantics: fields[0]}
			for _, f := range fields[1:] {
				id, err := strconv.ParseUint(f, 10, 32)
				if err != nil {
					continue
				}
				group.SSRCs = append(group.SSRCs, uint32(id))
			}
			m.SSRCGroups = append(m.SSRCGroups, group)
		}
	}
}

// ssrcInfo fetches or creates the entry for ssrc
func (m *MediaDesc) ssrcInfo(ssrc uint32) *SSRCInfo {
	for i := range m.SSRCInfos {
		if m.SSRCInfos[i].SSRC == ssrc {
			return &m.SSRCInfos[i]
		}
	}
	m.SSRCInfos = append(m.SSRCInfos, SSRCInfo{SSRC: ssrc})
	return &m.SSRCInfos[len(m.SSRCInfos)-1]
}

func (m *MediaDesc) rtpMap(pt uint8) *RtpMap {
	for i := range m.RtpMaps {
		if m.RtpMaps[i].PayloadType == pt {
			return &m.RtpMaps[i]
		}
	}
	return nil
}

func (m *MediaDesc) encode() *sdp.MediaDescription {
	md := &sdp.MediaDescription{
		MediaName: sdp.MediaName{
			Media:   m.Type,
			Port:    sdp.RangedPort{Value: m.Port},
			Protos:  strings.Split(m.Protocol, "/"),
			Formats: strings.Fields(m.Payloads),
		},
		ConnectionInformation: &sdp.ConnectionInformation{
			NetworkType: "IN",
			AddressType: "IP4",
			Address:     &sdp.Address{Address: "0.0.0.0"},
		},
	}
	if m.NumPorts > 0 {
		n := m.NumPorts
		md.MediaName.Port.Range = &n
	}

	attrs := m.SessionInfo.attributes()
	for _, c := range m.Candidates {
		attrs = append(attrs, c.Attribute())
	}
	attrs = append(attrs, sdp.NewAttribute(sdp.AttrKeyMID, m.MID))

	for _, id := range m.extIDs() {
		attrs = append(attrs, sdp.NewAttribute(sdp.AttrKeyExtMap, strconv.Itoa(id)+" "+m.Extmaps[id]))
	}

	if dir := m.Direction.String(); dir != "" {
		attrs = append(attrs, sdp.NewPropertyAttribute(dir))
	}
	if m.MSID != "" {
		attrs = append(attrs, sdp.NewAttribute(sdp.AttrKeyMsid, m.MSID))
	}
	if m.RTCPMux {
		attrs = append(attrs, sdp.NewPropertyAttribute(sdp.AttrKeyRTCPMux))
	}
	if m.RTCPRsize {
		attrs = append(attrs, sdp.NewPropertyAttribute(sdp.AttrKeyRTCPRsize))
	}

	for _, r := range m.RtpMaps {
		rtpmap := strconv.Itoa(int(r.PayloadType)) + " " + r.EncodingName + "/" + strconv.FormatUint(uint64(r.ClockRate), 10)
		if r.EncodingParams != "" {
			rtpmap += "/" + r.EncodingParams
		}
		attrs = append(attrs, sdp.NewAttribute(attrKeyRtpmap, rtpmap))
		for _, fb := range r.RTCPFeedback {
			attrs = append(attrs, sdp.NewAttribute(attrKeyRTCPFb, strconv.Itoa(int(r.PayloadType))+" "+fb))
		}
		if r.Fmtp != "" {
			attrs = append(attrs, sdp.NewAttribute(attrKeyFmtp, strconv.Itoa(int(r.PayloadType))+" "+r.Fmtp))
		}
	}

	for _, g := range m.SSRCGroups {
		value := g.Semantics
		for _, ssrc := range g.SSRCs {
			value += " " + strconv.FormatUint(uint64(ssrc), 10)
		}
		attrs = append(attrs, sdp.NewAttribute(sdp.AttrKeySSRCGroup, value))
	}
	for _, info := range m.SSRCInfos {
		prefix := strconv.FormatUint(uint64(info.SSRC), 10) + " "
		if info.CNAME != "" {
			attrs = append(attrs, sdp.NewAttribute(sdp.AttrKeySSRC, prefix+ssrcAttrCNAME+":"+info.CNAME))
		}
		if info.MSID != "" {
			msid := info.MSID
			if info.MSIDTracker != "" {
				msid += " " + info.MSIDTracker
			}
			attrs = append(attrs, sdp.NewAttribute(sdp.AttrKeySSRC, prefix+ssrcAttrMSID+":"+msid))
		}
		if info.MSLabel != "" {
			attrs = append(attrs, sdp.NewAttribute(sdp.AttrKeySSRC, prefix+ssrcAttrMSLabel+":"+info.MSLabel))
		}
		if info.Label != "" {
			attrs = append(attrs, sdp.NewAttribute(sdp.AttrKeySSRC, prefix+ssrcAttrLabel+":"+info.Label))
		}
	}

	md.Attributes = attrs
	return md
}

func (m *MediaDesc) Clone() *MediaDesc {
	c := *m
	c.Candidates = append([]Candidate(nil), m.Candidates...)
	c.Extmaps = make(map[int]string, len(m.Extmaps))
	for id, uri := range m.Extmaps {
		c.Extmaps[id] = uri
	}
	c.RtpMaps = nil
	for _, r := range m.RtpMaps {
		c.RtpMaps = append(c.RtpMaps, r.Clone())
	}
	c.SSRCInfos = append([]SSRCInfo(nil), m.SSRCInfos...)
	c.SSRCGroups = nil
	for _, g := range m.SSRCGroups {
		c.SSRCGroups = append(c.SSRCGroups, SSRCGroup{
			Semantics: g.Semantics,
			SSRCs:     append([]uint32(nil), g.SSRCs...),
		})
	}
	return &c
}

func (m *MediaDesc) extIDs() []int {
	ids := make([]int, 0, len(m.Extmaps))
	for id := range m.Extmaps {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// fmtpParam returns the value of key in a ';' separated fmtp string.
func fmtpParam(fmtp, key string) (string, bool) {
	for _, p := range strings.Split(fmtp, ";") {
		k, v, ok := strings.Cut(strings.TrimSpace(p), "=")
		if ok && k == key {
			return v, true
		}
	}
	return "", false
}
