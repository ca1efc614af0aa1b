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

package types

import (
	"time"

	"github.com/pion/interceptor"
	"github.com/pion/rtcp"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v3"

	"github.com/maleRjc/rtc-stack/pkg/sdpinfo"
)

type TaskQueue interface {
	Post(task func())
}

// Sink receives connection events. Callbacks run on TaskQueue() when it is
// not nil, otherwise on the connection worker.
type Sink interface {
	OnFailed(reason string)
	OnCandidate(candidate string)
	OnReady()
	OnAnswer(sdp string)
	OnFrame(frame *MediaFrame)
	OnStat()
	TaskQueue() TaskQueue
}

type TrackInfo struct {
	MID  string
	Kind webrtc.RTPCodecType
	// sendonly or recvonly as seen in the peer's offer
	Direction  string
	Preference sdpinfo.FormatPreference
}

type Options struct {
	ConnectID string
	Tracks    []TrackInfo
	Sink      Sink
}

type MediaFrame struct {
	MID         string
	Kind        webrtc.RTPCodecType
	PayloadType uint8
	// rtp timestamp of the first packet
	Timestamp   uint32
	Payload     []byte
	KeyFrame    bool
	ArrivalTime time.Time
}

// FrameDestination consumes frames produced by an inbound track.
type FrameDestination interface {
	ID() string
	Kind() webrtc.RTPCodecType
	WriteFrame(frame *MediaFrame)
}

type TransportEvent int

const (
	TransportInitial TransportEvent = iota
	TransportStarted
	TransportGathered
	TransportCandidate
	TransportFailed
	TransportReady
	TransportFinished
)

func (e TransportEvent) String() string {
	switch e {
	case TransportInitial:
		return "INITIAL"
	case TransportStarted:
		return "STARTED"
	case TransportGathered:
		return "GATHERED"
	case TransportCandidate:
		return "CANDIDATE"
	case TransportFailed:
		return "FAILED"
	case TransportReady:
		return "READY"
	case TransportFinished:
		return "FINISHED"
	default:
		return "UNKNOWN"
	}
}

// TransportListener is notified from transport goroutines.
type TransportListener func(event TransportEvent, message string)

// Transport is the ICE/DTLS side of one connection.
type Transport interface {
	SetRemoteSdp(sdp string, mid string) error
	AddRemoteCandidate(candidate string) error
	RemoveRemoteCandidates(candidates []string) error
	// Gather completes negotiation of the media descriptions set so far
	Gather() error
	AddMediaStream(mid string, info *interceptor.StreamInfo, inbound bool) (MediaStream, error)
	RemoveMediaStream(mid string)
	Close()
}

type MediaStream interface {
	MID() string
	StreamInfo() *interceptor.StreamInfo
	ReadRTP() (*rtp.Packet, error)
	WriteRTP(pkt *rtp.Packet) error
	WriteRTCP(pkts []rtcp.Packet) error
}

type TransportFactory func(connectID string, listener TransportListener) (Transport, error)
