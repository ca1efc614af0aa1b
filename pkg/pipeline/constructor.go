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

package pipeline

import (
	"sync"
	"time"

	"github.com/bep/debounce"
	"github.com/dustin/go-humanize"
	"github.com/frostbyte73/core"
	"github.com/pion/rtcp"
	"github.com/pion/rtp"
	"github.com/pion/rtp/codecs"
	"github.com/pion/webrtc/v3"
	"go.uber.org/atomic"

	"github.com/maleRjc/rtc-stack/pkg/logger"
	"github.com/maleRjc/rtc-stack/pkg/rtc/types"
	"github.com/maleRjc/rtc-stack/pkg/telemetry/prometheus"
)

const (
	naluTypeMask = 0x1f
	naluTypeIDR  = 5
	naluTypeSPS  = 7

	defaultStatInterval = time.Second
)

type FrameConstructorParams struct {
	MID    string
	Kind   webrtc.RTPCodecType
	Stream types.MediaStream
	// ssrc used as sender of feedback packets
	LocalSSRC    uint32
	StatInterval time.Duration
	OnFrame      func(*types.MediaFrame)
	OnStat       func()
	Logger       logger.Logger
}

// FrameConstructor reassembles frames from the RTP packets of an inbound
// stream and fans them out to its destinations.
type FrameConstructor struct {
	params       FrameConstructorParams
	depacketizer rtp.Depacketizer
	debounced    func(func())

	lock         sync.RWMutex
	destinations map[string]types.FrameDestination

	// assembly state, read loop only
	frame     []byte
	timestamp uint32
	arrival   time.Time

	remoteSSRC atomic.Uint32
	packets    atomic.Uint64
	bytes      atomic.Uint64
	frames     atomic.Uint64

	closed core.Fuse
}

func NewFrameConstructor(params FrameConstructorParams) *FrameConstructor {
	if params.Logger == nil {
		params.Logger = logger.GetLogger()
	}
	if params.StatInterval <= 0 {
		params.StatInterval = defaultStatInterval
	}
	c := &FrameConstructor{
		params:       params,
		debounced:    debounce.New(params.StatInterval),
		destinations: make(map[string]types.FrameDestination),
	}
	if params.Kind == webrtc.RTPCodecTypeVideo {
		c.depacketizer = &codecs.H264Packet{}
	} else {
		c.depacketizer = &codecs.OpusPacket{}
	}
	return c
}

func (c *FrameConstructor) MID() string {
	return c.params.MID
}

func (c *FrameConstructor) Kind() webrtc.RTPCodecType {
	return c.params.Kind
}

func (c *FrameConstructor) LocalSSRC() uint32 {
	return c.params.LocalSSRC
}

func (c *FrameConstructor) Start() {
	go c.readLoop()
}

func (c *FrameConstructor) AddDestination(d types.FrameDestination) {
	c.lock.Lock()
	c.destinations[d.ID()] = d
	c.lock.Unlock()

	if c.params.Kind == webrtc.RTPCodecTypeVideo {
		c.RequestKeyFrame()
	}
}

func (c *FrameConstructor) RemoveDestination(id string) {
	c.lock.Lock()
	delete(c.destinations, id)
	c.lock.Unlock()
}

func (c *FrameConstructor) HasDestination(id string) bool {
	c.lock.RLock()
	defer c.lock.RUnlock()
	_, ok := c.destinations[id]
	return ok
}

// RequestKeyFrame sends a PLI for the remote stream.
func (c *FrameConstructor) RequestKeyFrame() {
	if c.params.Kind != webrtc.RTPCodecTypeVideo || c.closed.IsBroken() {
		return
	}
	mediaSSRC := c.remoteSSRC.Load()
	if mediaSSRC == 0 {
		if info := c.params.Stream.StreamInfo(); info != nil {
			mediaSSRC = info.SSRC
		}
	}
	err := c.params.Stream.WriteRTCP([]rtcp.Packet{
		&rtcp.PictureLossIndication{SenderSSRC: c.params.LocalSSRC, MediaSSRC: mediaSSRC},
	})
	if err != nil {
		c.params.Logger.Debugw("could not request key frame", "mid", c.params.MID, "error", err)
		return
	}
	prometheus.IncrementPLI(prometheus.Outgoing)
}

func (c *FrameConstructor) readLoop() {
	for {
		pkt, err := c.params.Stream.ReadRTP()
		if err != nil {
			c.params.Logger.Debugw("inbound stream ended", "mid", c.params.MID, "error", err)
			return
		}
		c.push(pkt)
	}
}

func (c *FrameConstructor) push(pkt *rtp.Packet) {
	if info := c.params.Stream.StreamInfo(); info != nil && info.PayloadType != 0 && pkt.PayloadType != info.PayloadType {
		// rtx, red and fec are not reassembled
		return
	}
	c.remoteSSRC.Store(pkt.SSRC)
	c.packets.Inc()
	c.bytes.Add(uint64(len(pkt.Payload)))
	prometheus.IncrementPackets(prometheus.Incoming, 1, uint64(len(pkt.Payload)))
	if c.params.OnStat != nil {
		c.debounced(c.params.OnStat)
	}

	if len(c.frame) > 0 && pkt.Timestamp != c.timestamp {
		// previous frame lost its tail
		c.frame = nil
	}
	if len(c.frame) == 0 {
		c.timestamp = pkt.Timestamp
		c.arrival = time.Now()
	}

	payload, err := c.depacketizer.Unmarshal(pkt.Payload)
	if err != nil {
		c.params.Logger.Debugw("dropping packet", "mid", c.params.MID, "sequenceNumber", pkt.SequenceNumber, "error", err)
		return
	}
	c.frame = append(c.frame, payload...)

	if c.params.Kind == webrtc.RTPCodecTypeVideo && !c.depacketizer.IsPartitionTail(pkt.Marker, pkt.Payload) {
		return
	}
	if len(c.frame) == 0 {
		return
	}

	frame := &types.MediaFrame{
		MID:         c.params.MID,
		Kind:        c.params.Kind,
		PayloadType: pkt.PayloadType,
		Timestamp:   c.timestamp,
		Payload:     c.frame,
		ArrivalTime: c.arrival,
	}
	frame.KeyFrame = c.params.Kind == webrtc.RTPCodecTypeAudio || isH264KeyFrame(frame.Payload)
	c.frame = nil
	c.deliver(frame)
}

func (c *FrameConstructor) deliver(frame *types.MediaFrame) {
	c.frames.Inc()
	prometheus.IncrementFrames(c.params.Kind.String())
	if c.params.OnFrame != nil {
		c.params.OnFrame(frame)
	}

	c.lock.RLock()
	destinations := make([]types.FrameDestination, 0, len(c.destinations))
	for _, d := range c.destinations {
		destinations = append(destinations, d)
	}
	c.lock.RUnlock()

	for _, d := range destinations {
		d.WriteFrame(frame)
	}
}

func (c *FrameConstructor) Stats() (packets, bytes, frames uint64) {
	return c.packets.Load(), c.bytes.Load(), c.frames.Load()
}

func (c *FrameConstructor) Close() {
	if c.closed.IsBroken() {
		return
	}
	c.closed.Break()

	packets, bytes, frames := c.Stats()
	c.params.Logger.Infow("frame constructor closed",
		"mid", c.params.MID,
		"packets", packets,
		"received", humanize.Bytes(bytes),
		"frames", frames,
	)
}

// isH264KeyFrame looks for an IDR or SPS unit in an Annex B frame.
func isH264KeyFrame(frame []byte) bool {
	for i := 0; i+3 < len(frame); i++ {
		if frame[i] != 0 || frame[i+1] != 0 {
			continue
		}
		start := -1
		switch {
		case frame[i+2] == 1:
			start = i + 3
		case frame[i+2] == 0 && frame[i+3] == 1 && i+4 < len(frame):
			start = i + 4
		}
		if start < 0 || start >= len(frame) {
			continue
		}
		switch frame[start] & naluTypeMask {
		case naluTypeIDR, naluTypeSPS:
			return true
		}
	}
	return false
}
