package pipeline

import (
	"sync"

	"github.com/pion/randutil"
	"github.com/pion/rtp"
	"github.com/pion/rtp/codecs"
	"github.com/pion/webrtc/v3"
	"go.uber.org/atomic"

	"github.com/maleRjc/rtc-stack/pkg/logger"
	"github.com/maleRjc/rtc-stack/pkg/rtc/types"
	"github.com/maleRjc/rtc-stack/pkg/telemetry/prometheus"
)

const defaultMTU = 1200

type PacketizerParams struct {
	ID     string
	Kind   webrtc.RTPCodecType
	Stream types.MediaStream
	MTU    uint16
	Logger logger.Logger
}

// Packetizer is a frame destination writing frames to an outbound stream.
type Packetizer struct {
	params      PacketizerParams
	ssrc        uint32
	payloadType uint8
	clockRate   uint32

	lock         sync.Mutex
	packetizer   rtp.Packetizer
	baseOut      uint32
	baseIn       uint32
	started      bool
	waitKeyFrame bool

	frames  atomic.Uint64
	dropped atomic.Uint64
}

func NewPacketizer(params PacketizerParams) (*Packetizer, error) {
	if params.Logger == nil {
		params.Logger = logger.GetLogger()
	}
	if params.MTU == 0 {
		params.MTU = defaultMTU
	}

	p := &Packetizer{
		params:       params,
		waitKeyFrame: params.Kind == webrtc.RTPCodecTypeVideo,
	}
	if info := params.Stream.StreamInfo(); info != nil {
		p.ssrc = info.SSRC
		p.payloadType = info.PayloadType
		p.clockRate = info.ClockRate
	}
	if p.ssrc == 0 {
		ssrc, err := randutil.CryptoUint64()
		if err != nil {
			return nil, err
		}
		p.ssrc = uint32(ssrc)
	}
	base, err := randutil.CryptoUint64()
	if err != nil {
		return nil, err
	}
	p.baseOut = uint32(base)

	var payloader rtp.Payloader = &codecs.OpusPayloader{}
	if params.Kind == webrtc.RTPCodecTypeVideo {
		payloader = &codecs.H264Payloader{}
	}
	p.packetizer = rtp.NewPacketizer(params.MTU, p.payloadType, p.ssrc, payloader, rtp.NewRandomSequencer(), p.clockRate)
	return p, nil
}

func (p *Packetizer) ID() string {
	return p.params.ID
}

func (p *Packetizer) Kind() webrtc.RTPCodecType {
	return p.params.Kind
}

func (p *Packetizer) SSRC() uint32 {
	return p.ssrc
}

func (p *Packetizer) WriteFrame(frame *types.MediaFrame) {
	p.lock.Lock()
	defer p.lock.Unlock()

	if p.waitKeyFrame && !frame.KeyFrame {
		p.dropped.Inc()
		return
	}
	p.waitKeyFrame = false

	if !p.started {
		p.started = true
		p.baseIn = frame.Timestamp
	}
	// outbound timestamps keep the inbound spacing from a random base
	timestamp := p.baseOut + (frame.Timestamp - p.baseIn)

	for _, pkt := range p.packetizer.Packetize(frame.Payload, 0) {
		pkt.Timestamp = timestamp
		if err := p.params.Stream.WriteRTP(pkt); err != nil {
			p.params.Logger.Debugw("could not write packet", "id", p.params.ID, "error", err)
			return
		}
		prometheus.IncrementPackets(prometheus.Outgoing, 1, uint64(len(pkt.Payload)))
	}
	p.frames.Inc()
}

func (p *Packetizer) Stats() (frames, dropped uint64) {
	return p.frames.Load(), p.dropped.Load()
}
