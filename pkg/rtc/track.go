package rtc

import (
	"time"

	"github.com/pion/randutil"
	"github.com/pion/webrtc/v3"

	"github.com/maleRjc/rtc-stack/pkg/logger"
	"github.com/maleRjc/rtc-stack/pkg/pipeline"
	"github.com/maleRjc/rtc-stack/pkg/rtc/types"
	"github.com/maleRjc/rtc-stack/pkg/sdpinfo"
)

type trackParams struct {
	ConnectID    string
	MID          string
	Kind         webrtc.RTPCodecType
	Inbound      bool
	Settings     sdpinfo.MediaSettings
	Stream       types.MediaStream
	MTU          uint16
	StatInterval time.Duration
	OnFrame      func(*types.MediaFrame)
	OnStat       func()
	Logger       logger.Logger
}

// track is the media pipeline end of one negotiated media description:
// a frame constructor for inbound media, a packetizer for outbound media.
type track struct {
	params      trackParams
	ssrc        uint32
	constructor *pipeline.FrameConstructor
	packetizer  *pipeline.Packetizer
}

func newTrack(params trackParams) (*track, error) {
	t := &track{params: params}
	if !params.Inbound {
		p, err := pipeline.NewPacketizer(pipeline.PacketizerParams{
			ID:     params.ConnectID + "/" + params.MID,
			Kind:   params.Kind,
			Stream: params.Stream,
			MTU:    params.MTU,
			Logger: params.Logger,
		})
		if err != nil {
			return nil, err
		}
		t.packetizer = p
		t.ssrc = p.SSRC()
		return t, nil
	}

	ssrc, err := randutil.CryptoUint64()
	if err != nil {
		return nil, err
	}
	t.ssrc = uint32(ssrc)
	t.constructor = pipeline.NewFrameConstructor(pipeline.FrameConstructorParams{
		MID:          params.MID,
		Kind:         params.Kind,
		Stream:       params.Stream,
		LocalSSRC:    t.ssrc,
		StatInterval: params.StatInterval,
		OnFrame:      params.OnFrame,
		OnStat:       params.OnStat,
		Logger:       params.Logger,
	})
	t.constructor.Start()
	return t, nil
}

func (t *track) MID() string {
	return t.params.MID
}

func (t *track) Kind() webrtc.RTPCodecType {
	return t.params.Kind
}

func (t *track) IsInbound() bool {
	return t.params.Inbound
}

// SSRC is the local ssrc: the feedback sender for inbound tracks, the media
// source for outbound ones.
func (t *track) SSRC() uint32 {
	return t.ssrc
}

func (t *track) AddDestination(d types.FrameDestination) bool {
	if t.constructor == nil || d.Kind() != t.params.Kind {
		return false
	}
	t.constructor.AddDestination(d)
	return true
}

func (t *track) RemoveDestination(id string) bool {
	if t.constructor == nil || !t.constructor.HasDestination(id) {
		return false
	}
	t.constructor.RemoveDestination(id)
	return true
}

// Destination returns the frame destination of an outbound track.
func (t *track) Destination() types.FrameDestination {
	if t.packetizer == nil {
		return nil
	}
	return t.packetizer
}

func (t *track) RequestKeyFrame() {
	if t.constructor != nil {
		t.constructor.RequestKeyFrame()
	}
}

func (t *track) Close() {
	if t.constructor != nil {
		t.constructor.Close()
	}
}
