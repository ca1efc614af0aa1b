package transport

import (
	"github.com/pion/interceptor"
	"github.com/pion/rtcp"
	"github.com/pion/rtp"
	"github.com/pion/transport/v2/packetio"
	"go.uber.org/atomic"
)

const (
	defaultBufferSize = 1 << 20
	maxPacketSize     = 1500
)

// Stream carries the packets of one media description. Inbound packets are
// injected with Deliver and read with ReadRTP; outbound packets are written
// with WriteRTP and drained with ReadSent.
type Stream struct {
	mid     string
	info    *interceptor.StreamInfo
	inbound bool

	in      *packetio.Buffer
	out     *packetio.Buffer
	rtcpOut *packetio.Buffer

	packetsIn  atomic.Uint64
	packetsOut atomic.Uint64
	rtcpSent   atomic.Uint64
}

func newStream(mid string, info *interceptor.StreamInfo, inbound bool, bufferSize int) *Stream {
	if bufferSize <= 0 {
		bufferSize = defaultBufferSize
	}
	s := &Stream{
		mid:     mid,
		info:    info,
		inbound: inbound,
		in:      packetio.NewBuffer(),
		out:     packetio.NewBuffer(),
		rtcpOut: packetio.NewBuffer(),
	}
	for _, b := range []*packetio.Buffer{s.in, s.out, s.rtcpOut} {
		b.SetLimitSize(bufferSize)
	}
	return s
}

func (s *Stream) MID() string {
	return s.mid
}

func (s *Stream) StreamInfo() *interceptor.StreamInfo {
	return s.info
}

func (s *Stream) IsInbound() bool {
	return s.inbound
}

// Deliver hands a marshalled RTP packet to the stream as if it came from the network.
func (s *Stream) Deliver(raw []byte) error {
	_, err := s.in.Write(raw)
	return err
}

func (s *Stream) ReadRTP() (*rtp.Packet, error) {
	buf := make([]byte, maxPacketSize)
	n, err := s.in.Read(buf)
	if err != nil {
		return nil, err
	}
	pkt := &rtp.Packet{}
	if err := pkt.Unmarshal(buf[:n]); err != nil {
		return nil, err
	}
	s.packetsIn.Inc()
	return pkt, nil
}

func (s *Stream) WriteRTP(pkt *rtp.Packet) error {
	raw, err := pkt.Marshal()
	if err != nil {
		return err
	}
	if _, err := s.out.Write(raw); err != nil {
		return err
	}
	s.packetsOut.Inc()
	return nil
}

func (s *Stream) WriteRTCP(pkts []rtcp.Packet) error {
	raw, err := rtcp.Marshal(pkts)
	if err != nil {
		return err
	}
	if _, err := s.rtcpOut.Write(raw); err != nil {
		return err
	}
	s.rtcpSent.Add(uint64(len(pkts)))
	return nil
}

// ReadSent returns the next packet written with WriteRTP.
func (s *Stream) ReadSent() (*rtp.Packet, error) {
	buf := make([]byte, maxPacketSize)
	n, err := s.out.Read(buf)
	if err != nil {
		return nil, err
	}
	pkt := &rtp.Packet{}
	if err := pkt.Unmarshal(buf[:n]); err != nil {
		return nil, err
	}
	return pkt, nil
}

// ReadSentRTCP returns the next compound packet written with WriteRTCP.
func (s *Stream) ReadSentRTCP() ([]rtcp.Packet, error) {
	buf := make([]byte, maxPacketSize)
	n, err := s.rtcpOut.Read(buf)
	if err != nil {
		return nil, err
	}
	return rtcp.Unmarshal(buf[:n])
}

func (s *Stream) Stats() (packetsIn, packetsOut, rtcpSent uint64) {
	return s.packetsIn.Load(), s.packetsOut.Load(), s.rtcpSent.Load()
}

func (s *Stream) close() {
	_ = s.in.Close()
	_ = s.out.Close()
	_ = s.rtcpOut.Close()
}
