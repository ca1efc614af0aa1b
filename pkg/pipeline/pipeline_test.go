package pipeline

import (
	"io"
	"sync"
	"testing"
	"time"

	"github.com/pion/interceptor"
	"github.com/pion/rtcp"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v3"
	"github.com/stretchr/testify/require"

	"github.com/maleRjc/rtc-stack/pkg/rtc/types"
)

type fakeStream struct {
	info *interceptor.StreamInfo
	in   chan *rtp.Packet

	lock sync.Mutex
	sent []*rtp.Packet
	rtcp []rtcp.Packet
}

func newFakeStream(info *interceptor.StreamInfo) *fakeStream {
	return &fakeStream{info: info, in: make(chan *rtp.Packet, 64)}
}

func (s *fakeStream) MID() string                         { return "0" }
func (s *fakeStream) StreamInfo() *interceptor.StreamInfo { return s.info }

func (s *fakeStream) ReadRTP() (*rtp.Packet, error) {
	pkt, ok := <-s.in
	if !ok {
		return nil, io.EOF
	}
	return pkt, nil
}

func (s *fakeStream) WriteRTP(pkt *rtp.Packet) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.sent = append(s.sent, pkt)
	return nil
}

func (s *fakeStream) WriteRTCP(pkts []rtcp.Packet) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.rtcp = append(s.rtcp, pkts...)
	return nil
}

func (s *fakeStream) sentPackets() []*rtp.Packet {
	s.lock.Lock()
	defer s.lock.Unlock()
	return append([]*rtp.Packet{}, s.sent...)
}

func (s *fakeStream) rtcpPackets() []rtcp.Packet {
	s.lock.Lock()
	defer s.lock.Unlock()
	return append([]rtcp.Packet{}, s.rtcp...)
}

type frameCollector struct {
	id   string
	kind webrtc.RTPCodecType

	lock   sync.Mutex
	frames []*types.MediaFrame
}

func (f *frameCollector) ID() string                { return f.id }
func (f *frameCollector) Kind() webrtc.RTPCodecType { return f.kind }

func (f *frameCollector) WriteFrame(frame *types.MediaFrame) {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.frames = append(f.frames, frame)
}

func (f *frameCollector) count() int {
	f.lock.Lock()
	defer f.lock.Unlock()
	return len(f.frames)
}

func (f *frameCollector) get(i int) *types.MediaFrame {
	f.lock.Lock()
	defer f.lock.Unlock()
	return f.frames[i]
}

var (
	h264KeyFrame   = []byte{0, 0, 0, 1, 0x65, 0x88, 0x84, 0x21, 0xa0}
	h264DeltaFrame = []byte{0, 0, 0, 1, 0x41, 0x9a, 0x02, 0x03}
)

func TestOpusFrames(t *testing.T) {
	stream := newFakeStream(&interceptor.StreamInfo{SSRC: 1001, PayloadType: 111, ClockRate: 48000})
	dest := &frameCollector{id: "sub", kind: webrtc.RTPCodecTypeAudio}

	c := NewFrameConstructor(FrameConstructorParams{
		MID:    "0",
		Kind:   webrtc.RTPCodecTypeAudio,
		Stream: stream,
	})
	c.AddDestination(dest)
	c.Start()
	defer c.Close()

	for i := 0; i < 3; i++ {
		stream.in <- &rtp.Packet{
			Header:  rtp.Header{Version: 2, PayloadType: 111, SequenceNumber: uint16(i), Timestamp: uint32(i * 960), SSRC: 1001},
			Payload: []byte{0xfc, byte(i)},
		}
	}
	// red is not reassembled
	stream.in <- &rtp.Packet{
		Header:  rtp.Header{Version: 2, PayloadType: 63, SequenceNumber: 3, Timestamp: 2880, SSRC: 1001},
		Payload: []byte{0x01},
	}
	close(stream.in)

	require.Eventually(t, func() bool { return dest.count() == 3 }, time.Second, 10*time.Millisecond)
	frame := dest.get(2)
	require.True(t, frame.KeyFrame)
	require.Equal(t, uint32(1920), frame.Timestamp)
	require.Equal(t, []byte{0xfc, 2}, frame.Payload)
	require.Empty(t, stream.rtcpPackets())

	packets, _, frames := c.Stats()
	require.Equal(t, uint64(3), packets)
	require.Equal(t, uint64(3), frames)
}

func TestH264KeyFrameRequest(t *testing.T) {
	stream := newFakeStream(&interceptor.StreamInfo{SSRC: 2001, PayloadType: 125, ClockRate: 90000})
	c := NewFrameConstructor(FrameConstructorParams{
		MID:       "1",
		Kind:      webrtc.RTPCodecTypeVideo,
		Stream:    stream,
		LocalSSRC: 7,
	})
	defer c.Close()

	c.AddDestination(&frameCollector{id: "sub", kind: webrtc.RTPCodecTypeVideo})
	require.True(t, c.HasDestination("sub"))

	pkts := stream.rtcpPackets()
	require.Len(t, pkts, 1)
	pli, ok := pkts[0].(*rtcp.PictureLossIndication)
	require.True(t, ok)
	require.Equal(t, uint32(7), pli.SenderSSRC)
	require.Equal(t, uint32(2001), pli.MediaSSRC)

	c.RemoveDestination("sub")
	require.False(t, c.HasDestination("sub"))
}

func TestVideoRoundTrip(t *testing.T) {
	info := &interceptor.StreamInfo{SSRC: 3001, PayloadType: 125, ClockRate: 90000}
	out := newFakeStream(info)
	p, err := NewPacketizer(PacketizerParams{ID: "sub", Kind: webrtc.RTPCodecTypeVideo, Stream: out})
	require.NoError(t, err)
	require.Equal(t, uint32(3001), p.SSRC())

	// nothing is sent before the first key frame
	p.WriteFrame(&types.MediaFrame{Timestamp: 0, Payload: h264DeltaFrame})
	require.Empty(t, out.sentPackets())

	p.WriteFrame(&types.MediaFrame{Timestamp: 3000, Payload: h264KeyFrame, KeyFrame: true})
	p.WriteFrame(&types.MediaFrame{Timestamp: 6000, Payload: h264DeltaFrame})
	sent := out.sentPackets()
	require.Len(t, sent, 2)
	require.True(t, sent[0].Marker)
	require.Equal(t, uint8(125), sent[0].PayloadType)
	require.Equal(t, sent[0].Timestamp+3000, sent[1].Timestamp)

	frames, dropped := p.Stats()
	require.Equal(t, uint64(2), frames)
	require.Equal(t, uint64(1), dropped)

	// feed the packetized output back through a constructor
	in := newFakeStream(info)
	var lock sync.Mutex
	var got []*types.MediaFrame
	c := NewFrameConstructor(FrameConstructorParams{
		MID:    "1",
		Kind:   webrtc.RTPCodecTypeVideo,
		Stream: in,
		OnFrame: func(f *types.MediaFrame) {
			lock.Lock()
			got = append(got, f)
			lock.Unlock()
		},
	})
	c.Start()
	defer c.Close()
	for _, pkt := range sent {
		in.in <- pkt
	}
	close(in.in)

	require.Eventually(t, func() bool {
		lock.Lock()
		defer lock.Unlock()
		return len(got) == 2
	}, time.Second, 10*time.Millisecond)
	require.True(t, got[0].KeyFrame)
	require.Equal(t, h264KeyFrame, got[0].Payload)
	require.False(t, got[1].KeyFrame)
}

func TestFanOut(t *testing.T) {
	stream := newFakeStream(&interceptor.StreamInfo{SSRC: 1001, PayloadType: 111, ClockRate: 48000})
	c := NewFrameConstructor(FrameConstructorParams{MID: "0", Kind: webrtc.RTPCodecTypeAudio, Stream: stream})
	defer c.Close()

	outA := newFakeStream(&interceptor.StreamInfo{SSRC: 11, PayloadType: 120, ClockRate: 48000})
	outB := newFakeStream(&interceptor.StreamInfo{PayloadType: 120, ClockRate: 48000})
	a, err := NewPacketizer(PacketizerParams{ID: "a", Kind: webrtc.RTPCodecTypeAudio, Stream: outA})
	require.NoError(t, err)
	b, err := NewPacketizer(PacketizerParams{ID: "b", Kind: webrtc.RTPCodecTypeAudio, Stream: outB})
	require.NoError(t, err)
	require.NotZero(t, b.SSRC())

	c.AddDestination(a)
	c.AddDestination(b)
	c.Start()

	stream.in <- &rtp.Packet{
		Header:  rtp.Header{Version: 2, PayloadType: 111, Timestamp: 960, SSRC: 1001},
		Payload: []byte{0xfc, 0x01},
	}
	close(stream.in)

	require.Eventually(t, func() bool {
		return len(outA.sentPackets()) == 1 && len(outB.sentPackets()) == 1
	}, time.Second, 10*time.Millisecond)
	require.Equal(t, uint32(11), outA.sentPackets()[0].SSRC)
	require.Equal(t, uint8(120), outB.sentPackets()[0].PayloadType)
	require.Equal(t, []byte{0xfc, 0x01}, outB.sentPackets()[0].Payload)
}

func TestIsH264KeyFrame(t *testing.T) {
	require.True(t, isH264KeyFrame(h264KeyFrame))
	require.True(t, isH264KeyFrame([]byte{0, 0, 1, 0x67, 0x42}))
	require.False(t, isH264KeyFrame(h264DeltaFrame))
	require.False(t, isH264KeyFrame([]byte{0, 0}))
}
