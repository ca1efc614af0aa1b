package rtc

import (
	"strings"
	"sync"
	"testing"

	"github.com/pion/webrtc/v3"
	"github.com/stretchr/testify/require"

	"github.com/maleRjc/rtc-stack/pkg/rtc/transport"
	"github.com/maleRjc/rtc-stack/pkg/rtc/types"
	"github.com/maleRjc/rtc-stack/pkg/sdpinfo"
)

func offer(lines ...string) string {
	return strings.Join(lines, "\r\n") + "\r\n"
}

var sessionLines = []string{
	"v=0",
	"o=- 4611731400430051336 2 IN IP4 127.0.0.1",
	"s=-",
	"t=0 0",
	"a=group:BUNDLE 0 1",
	"a=msid-semantic: WMS stream",
}

func audioLines(direction string, ssrc bool) []string {
	lines := []string{
		"m=audio 9 UDP/TLS/RTP/SAVPF 111 63",
		"c=IN IP4 0.0.0.0",
		"a=candidate:1 1 udp 2013266431 192.168.1.156 46462 typ host",
		"a=ice-ufrag:peer",
		"a=ice-pwd:peerpasswordpeerpassword",
		"a=ice-options:trickle",
		"a=fingerprint:sha-256 19:E2:1C:3B:4B:9F:81:E6:B8:5C:F4:A5:A8:D8:73:04:BB:05:2F:70:9F:04:A9:0E:05:E9:26:33:E8:70:88:A2",
		"a=setup:actpass",
		"a=mid:0",
		"a=extmap:1 urn:ietf:params:rtp-hdrext:ssrc-audio-level",
		"a=extmap:3 http://www.ietf.org/id/draft-holmer-rmcat-transport-wide-cc-extensions-01",
		"a=extmap:4 urn:ietf:params:rtp-hdrext:sdes:mid",
		"a=extmap:9 urn:ietf:params:rtp-hdrext:csrc-audio-level",
		"a=" + direction,
		"a=rtcp-mux",
		"a=rtpmap:111 opus/48000/2",
		"a=rtcp-fb:111 transport-cc",
		"a=fmtp:111 minptime=10;useinbandfec=1",
		"a=rtpmap:63 red/48000/2",
		"a=fmtp:63 111/111",
	}
	if ssrc {
		lines = append(lines,
			"a=msid:stream audio0",
			"a=ssrc:1001 cname:peer",
			"a=ssrc:1001 msid:stream audio0",
		)
	}
	return lines
}

func videoLines(direction string, ssrc bool) []string {
	lines := []string{
		"m=video 9 UDP/TLS/RTP/SAVPF 127 121 125 107",
		"c=IN IP4 0.0.0.0",
		"a=ice-ufrag:peer",
		"a=ice-pwd:peerpasswordpeerpassword",
		"a=ice-options:trickle",
		"a=fingerprint:sha-256 19:E2:1C:3B:4B:9F:81:E6:B8:5C:F4:A5:A8:D8:73:04:BB:05:2F:70:9F:04:A9:0E:05:E9:26:33:E8:70:88:A2",
		"a=setup:actpass",
		"a=mid:1",
		"a=extmap:3 http://www.ietf.org/id/draft-holmer-rmcat-transport-wide-cc-extensions-01",
		"a=extmap:4 urn:ietf:params:rtp-hdrext:sdes:mid",
		"a=extmap:13 urn:3gpp:video-orientation",
		"a=" + direction,
		"a=rtcp-mux",
		"a=rtcp-rsize",
		"a=rtpmap:127 H264/90000",
		"a=rtcp-fb:127 goog-remb",
		"a=rtcp-fb:127 transport-cc",
		"a=rtcp-fb:127 nack",
		"a=rtcp-fb:127 nack pli",
		"a=fmtp:127 level-asymmetry-allowed=1;packetization-mode=1;profile-level-id=42001f",
		"a=rtpmap:121 rtx/90000",
		"a=fmtp:121 apt=127",
		"a=rtpmap:125 H264/90000",
		"a=rtcp-fb:125 goog-remb",
		"a=rtcp-fb:125 transport-cc",
		"a=rtcp-fb:125 nack",
		"a=rtcp-fb:125 nack pli",
		"a=fmtp:125 level-asymmetry-allowed=1;packetization-mode=0;profile-level-id=42001f",
		"a=rtpmap:107 rtx/90000",
		"a=fmtp:107 apt=125",
	}
	if ssrc {
		lines = append(lines,
			"a=msid:stream video0",
			"a=ssrc-group:FID 2001 2002",
			"a=ssrc:2001 cname:peer",
			"a=ssrc:2002 cname:peer",
		)
	}
	return lines
}

func publishOffer() string {
	lines := append([]string{}, sessionLines...)
	lines = append(lines, audioLines("sendonly", true)...)
	lines = append(lines, videoLines("sendonly", true)...)
	return offer(lines...)
}

func subscribeAudioOffer() string {
	lines := []string{
		"v=0",
		"o=- 4611731400430051337 2 IN IP4 127.0.0.1",
		"s=-",
		"t=0 0",
		"a=group:BUNDLE 0",
	}
	lines = append(lines, audioLines("recvonly", false)...)
	return offer(lines...)
}

func audioTrack() types.TrackInfo {
	return types.TrackInfo{
		Kind:       webrtc.RTPCodecTypeAudio,
		Preference: sdpinfo.FormatPreference{Format: sdpinfo.FormatOpus},
	}
}

func videoTrack() types.TrackInfo {
	return types.TrackInfo{
		Kind:       webrtc.RTPCodecTypeVideo,
		Preference: sdpinfo.FormatPreference{Format: sdpinfo.FormatH264, Profile: "42001f"},
	}
}

type testSink struct {
	queue types.TaskQueue

	answers    chan string
	candidates chan string
	ready      chan struct{}
	failed     chan string
	frames     chan *types.MediaFrame
}

func newTestSink() *testSink {
	return &testSink{
		answers:    make(chan string, 4),
		candidates: make(chan string, 16),
		ready:      make(chan struct{}, 4),
		failed:     make(chan string, 4),
		frames:     make(chan *types.MediaFrame, 64),
	}
}

func (s *testSink) OnFailed(reason string) { s.failed <- reason }
func (s *testSink) OnCandidate(candidate string) { s.candidates <- candidate }
func (s *testSink) OnReady() { s.ready <- struct{}{} }
func (s *testSink) OnAnswer(sdp string) { s.answers <- sdp }
func (s *testSink) OnFrame(frame *types.MediaFrame) {
	select {
	case s.frames <- frame:
	default:
	}
}
func (s *testSink) OnStat() {}
func (s *testSink) TaskQueue() types.TaskQueue {
	return s.queue
}

// transports keeps the in-memory transports created by an agent.
type transports struct {
	lock sync.Mutex
	byID map[string]*transport.LocalTransport
}

func (ts *transports) factory() types.TransportFactory {
	ts.byID = make(map[string]*transport.LocalTransport)
	return func(connectID string, listener types.TransportListener) (types.Transport, error) {
		t, err := transport.NewLocalTransport(transport.Params{
			ConnectID: connectID,
			Addresses: []string{"127.0.0.1:7000"},
			Listener:  listener,
		})
		if err != nil {
			return nil, err
		}
		ts.lock.Lock()
		ts.byID[connectID] = t
		ts.lock.Unlock()
		return t, nil
	}
}

func (ts *transports) get(t *testing.T, connectID string) *transport.LocalTransport {
	ts.lock.Lock()
	defer ts.lock.Unlock()
	tr, ok := ts.byID[connectID]
	require.True(t, ok, "no transport for %s", connectID)
	return tr
}

func newTestAgent(t *testing.T, conf NegotiationConfig) (*Agent, *transports) {
	ts := &transports{}
	a := NewAgent(AgentParams{
		Config:           conf,
		TransportFactory: ts.factory(),
	})
	require.NoError(t, a.Initiate(2, []string{"127.0.0.1:7000"}, ""))
	t.Cleanup(a.Stop)
	return a, ts
}
