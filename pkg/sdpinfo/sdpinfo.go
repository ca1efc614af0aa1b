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
	"github.com/pkg/errors"
)

const groupPolicyBundle = "BUNDLE"

type Origin struct {
	Username       string
	SessionID      uint64
	SessionVersion uint64
	NetworkType    string
	AddressType    string
	UnicastAddress string
}

// SdpInfo is the relational model of one session description.
type SdpInfo struct {
	Version     int
	Origin      Origin
	SessionName string
	StartTime   uint64
	StopTime    uint64

	GroupPolicy string
	Groups      []string

	// accept a=extmap-allow-mixed when parsing
	EnableExtmapAllowMixed bool
	ExtmapAllowMixed       bool

	MsidSemantic string
	MsidTokens   []string

	ICELite bool
	// session level ICE/DTLS parameters, unused when SessionInMedias
	SessionInfo     SessionInfo
	SessionInMedias bool

	Media []*MediaDesc
}

type ParseOption func(*SdpInfo)

func WithExtmapAllowMixed() ParseOption {
	return func(s *SdpInfo) {
		s.EnableExtmapAllowMixed = true
	}
}

func Parse(text string, opts ...ParseOption) (*SdpInfo, error) {
	s := &SdpInfo{}
	for _, opt := range opts {
		opt(s)
	}
	if err := s.Init(text); err != nil {
		return nil, err
	}
	return s, nil
}

// Init parses text into an empty model.
func (s *SdpInfo) Init(text string) error {
	if len(s.Media) > 0 {
		return ErrAlreadyInitialized
	}
	if strings.TrimSpace(text) == "" {
		return ErrInvalidInput
	}

	parsed := &sdp.SessionDescription{}
	if err := parsed.UnmarshalString(text); err != nil {
		return errors.Wrap(ErrParseFailure, err.Error())
	}
	if len(parsed.MediaDescriptions) == 0 {
		return errors.Wrap(ErrParseFailure, "no media")
	}

	s.Version = int(parsed.Version)
	s.Origin = Origin{
		Username:       parsed.Origin.Username,
		SessionID:      parsed.Origin.SessionID,
		SessionVersion: parsed.Origin.SessionVersion,
		NetworkType:    parsed.Origin.NetworkType,
		AddressType:    parsed.Origin.AddressType,
		UnicastAddress: parsed.Origin.UnicastAddress,
	}
	s.SessionName = string(parsed.SessionName)
	if len(parsed.TimeDescriptions) > 0 {
		s.StartTime = parsed.TimeDescriptions[0].Timing.StartTime
		s.StopTime = parsed.TimeDescriptions[0].Timing.StopTime
	}

	for _, a := range parsed.Attributes {
		switch a.Key {
		case sdp.AttrKeyICELite:
			s.ICELite = true
		case sdp.AttrKeyGroup:
			if s.GroupPolicy != "" {
				continue
			}
			fields := strings.Fields(a.Value)
			if len(fields) > 0 {
				s.GroupPolicy = fields[0]
				s.Groups = fields[1:]
			}
		case sdp.AttrKeyExtMapAllowMixed:
			s.ExtmapAllowMixed = s.EnableExtmapAllowMixed
		case sdp.AttrKeyMsidSemantic:
			fields := strings.Fields(a.Value)
			if len(fields) > 0 {
				s.MsidSemantic = fields[0]
				s.MsidTokens = fields[1:]
			}
		}
	}

	s.SessionInfo = parseSessionInfo(parsed.Attributes)
	s.SessionInMedias = s.SessionInfo.IsEmpty()

	for i, md := range parsed.MediaDescriptions {
		m, err := parseMedia(md)
		if err != nil {
			s.Media = nil
			return errors.WithMessagef(err, "media %d", i)
		}
		s.Media = append(s.Media, m)
	}
	return nil
}

// ToString encodes the session. A non-empty mid limits the output to that
// media description; "" is returned when it does not exist.
func (s *SdpInfo) ToString(mid string) string {
	if len(s.Media) == 0 {
		return ""
	}

	var media []*MediaDesc
	if mid == "" {
		media = s.Media
	} else if m := s.MediaByMID(mid); m != nil {
		media = []*MediaDesc{m}
	} else {
		return ""
	}

	out := &sdp.SessionDescription{
		Version: sdp.Version(s.Version),
		Origin: sdp.Origin{
			Username:       s.Origin.Username,
			SessionID:      s.Origin.SessionID,
			SessionVersion: s.Origin.SessionVersion,
			NetworkType:    s.Origin.NetworkType,
			AddressType:    s.Origin.AddressType,
			UnicastAddress: s.Origin.UnicastAddress,
		},
		SessionName: sdp.SessionName(s.SessionName),
		TimeDescriptions: []sdp.TimeDescription{
			{Timing: sdp.Timing{StartTime: s.StartTime, StopTime: s.StopTime}},
		},
	}

	if s.ICELite {
		out.Attributes = append(out.Attributes, sdp.NewPropertyAttribute(sdp.AttrKeyICELite))
	}
	if !s.SessionInMedias {
		out.Attributes = append(out.Attributes, s.SessionInfo.attributes()...)
	}
	if s.GroupPolicy != "" {
		out.Attributes = append(out.Attributes, sdp.NewAttribute(sdp.AttrKeyGroup, strings.Join(append([]string{s.GroupPolicy}, s.Groups...), " ")))
	}
	if s.ExtmapAllowMixed {
		out.Attributes = append(out.Attributes, sdp.NewPropertyAttribute(sdp.AttrKeyExtMapAllowMixed))
	}
	if s.MsidSemantic != "" {
		out.Attributes = append(out.Attributes, sdp.NewAttribute(sdp.AttrKeyMsidSemantic, " "+strings.Join(append([]string{s.MsidSemantic}, s.MsidTokens...), " ")))
	}

	for _, m := range media {
		out.MediaDescriptions = append(out.MediaDescriptions, m.encode())
	}

	b, err := out.Marshal()
	if err != nil {
		return ""
	}
	return string(b)
}

func (s *SdpInfo) Clone() *SdpInfo {
	c := *s
	c.Groups = append([]string(nil), s.Groups...)
	c.MsidTokens = append([]string(nil), s.MsidTokens...)
	c.Media = nil
	for _, m := range s.Media {
		c.Media = append(c.Media, m.Clone())
	}
	return &c
}

// Answer derives the local answer from an offer.
func (s *SdpInfo) Answer() *SdpInfo {
	a := s.Clone()
	a.Origin = Origin{
		Username:       "-",
		NetworkType:    "IN",
		AddressType:    "IP4",
		UnicastAddress: "127.0.0.1",
	}
	a.SessionInfo.Setup = answerSetup(a.SessionInfo.Setup)

	for _, m := range a.Media {
		m.Port = 1
		m.SessionInfo.Setup = answerSetup(m.SessionInfo.Setup)
		m.SessionInfo.ICEOptions = ""
		m.RTCPRsize = false
		// ssrcs belong to the offerer
		m.SSRCInfos = nil
		m.SSRCGroups = nil

		switch m.Direction {
		case sdp.DirectionRecvOnly:
			m.Direction = sdp.DirectionSendOnly
		case sdp.DirectionSendOnly:
			m.Direction = sdp.DirectionRecvOnly
		}
	}
	return a
}

// answerSetup picks the local DTLS role; only an active offerer makes us
// passive, a missing role counts as actpass.
func answerSetup(offered string) string {
	if offered == sdp.ConnectionRoleActive.String() {
		return sdp.ConnectionRolePassive.String()
	}
	return sdp.ConnectionRoleActive.String()
}

// FilterExtmap applies the extension allow-list to every media description.
func (s *SdpInfo) FilterExtmap() {
	for _, m := range s.Media {
		m.filterExtmap(SupportedExtensions)
	}
}

func (s *SdpInfo) FilterByPayload(mid string, payload uint8, disableRED, disableRTX, disableULPFEC bool) bool {
	m := s.MediaByMID(mid)
	if m == nil {
		return false
	}
	return m.FilterByPayload(payload, disableRED, disableRTX, disableULPFEC)
}

func (s *SdpInfo) MediaByMID(mid string) *MediaDesc {
	for _, m := range s.Media {
		if m.MID == mid {
			return m
		}
	}
	return nil
}

func (s *SdpInfo) MediaType(mid string) string {
	if m := s.MediaByMID(mid); m != nil {
		return m.Type
	}
	return ""
}

func (s *SdpInfo) MediaDirection(mid string) sdp.Direction {
	if m := s.MediaByMID(mid); m != nil {
		return m.Direction
	}
	return sdp.Direction(0)
}

func (s *SdpInfo) MediaPort(mid string) int {
	if m := s.MediaByMID(mid); m != nil {
		return m.Port
	}
	return 0
}

func (s *SdpInfo) SetMediaPort(mid string, port int) {
	if m := s.MediaByMID(mid); m != nil {
		m.Port = port
	}
}

func (s *SdpInfo) SingleMediaSdp(mid string) string {
	return s.ToString(mid)
}

func (s *SdpInfo) SetMsidSemantic(other *SdpInfo) {
	s.MsidSemantic = other.MsidSemantic
	s.MsidTokens = append([]string(nil), other.MsidTokens...)
}

// SetCredentials copies ICE/DTLS parameters from other, honouring where each
// side keeps them.
func (s *SdpInfo) SetCredentials(other *SdpInfo) {
	info := other.SessionInfo
	if other.SessionInMedias && len(other.Media) > 0 {
		info = other.Media[0].SessionInfo
	}

	if !s.SessionInMedias {
		s.SessionInfo = info
		return
	}
	for _, m := range s.Media {
		m.SessionInfo = info
	}
}

// SetCandidates copies the candidates of other's first media description
// into every media description.
func (s *SdpInfo) SetCandidates(other *SdpInfo) {
	if len(other.Media) == 0 {
		return
	}
	for _, m := range s.Media {
		m.Candidates = append([]Candidate(nil), other.Media[0].Candidates...)
	}
}
