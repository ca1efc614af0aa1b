package rtc

import (
	"strings"
	"testing"
	"time"

	"github.com/pion/rtp"
	"github.com/pion/sdp/v3"
	"github.com/stretchr/testify/require"

	"github.com/maleRjc/rtc-stack/pkg/rtc/types"
	"github.com/maleRjc/rtc-stack/pkg/sdpinfo"
	"github.com/maleRjc/rtc-stack/pkg/testutils"
	"github.com/maleRjc/rtc-stack/pkg/utils"
)

func TestInitiate(t *testing.T) {
	a := NewAgent(AgentParams{})
	defer a.Stop()

	err := a.Publish(types.Options{ConnectID: "p1", Tracks: []types.TrackInfo{audioTrack()}}, publishOffer())
	require.ErrorIs(t, err, ErrNotInitialized)

	err = a.Initiate(1, nil, "")
	require.ErrorIs(t, err, ErrInvalidParam)
	require.Equal(t, ResultInvalidParam, CodeFor(err))

	require.NoError(t, a.Initiate(0, []string{"127.0.0.1:7000"}, "stun://127.0.0.1:3478"))
	require.Equal(t, 3478, a.stunServer.Port)

	err = a.Initiate(1, []string{"127.0.0.1:7000"}, "")
	require.ErrorIs(t, err, ErrAlreadyInitialized)
	require.Equal(t, ResultAlreadyInitialized, CodeFor(err))
}

func TestPublish(t *testing.T) {
	a, _ := newTestAgent(t, NegotiationConfig{})
	sink := newTestSink()

	require.NoError(t, a.Publish(types.Options{
		ConnectID: "pub",
		Tracks:    []types.TrackInfo{audioTrack(), videoTrack()},
		Sink:      sink,
	}, publishOffer()))

	answer, err := sdpinfo.Parse(testutils.Receive(t, sink.answers))
	require.NoError(t, err)
	require.Equal(t, "wa/0.1(ly)", answer.SessionName)
	require.True(t, answer.ICELite)
	require.Equal(t, "-", answer.Origin.Username)
	require.Len(t, answer.Media, 2)

	audio, video := answer.Media[0], answer.Media[1]
	require.Equal(t, "111", audio.Payloads)
	require.Equal(t, sdp.DirectionRecvOnly, audio.Direction)
	require.Equal(t, "125 107", video.Payloads)
	require.Equal(t, sdp.DirectionRecvOnly, video.Direction)
	require.False(t, video.RTCPRsize)

	for _, m := range answer.Media {
		require.NotEqual(t, "peer", m.SessionInfo.ICEUfrag)
		require.Len(t, m.SessionInfo.ICEUfrag, 16)
		require.Equal(t, "active", m.SessionInfo.Setup)
		require.Len(t, m.Candidates, 1)
		require.Equal(t, "127.0.0.1", m.Candidates[0].IP)
		for _, uri := range m.Extmaps {
			require.Contains(t, sdpinfo.SupportedExtensions, uri)
		}
	}

	// one local ssrc per inbound line, one msid for the connection
	require.Len(t, audio.SSRCInfos, 1)
	require.Len(t, video.SSRCInfos, 1)
	require.NotEqual(t, uint32(1001), audio.SSRCInfos[0].SSRC)
	require.Equal(t, audio.SSRCInfos[0].MSID, video.SSRCInfos[0].MSID)

	require.True(t, strings.HasPrefix(testutils.Receive(t, sink.candidates), "candidate:"))
	testutils.Receive(t, sink.ready)

	state, err := a.State("pub")
	require.NoError(t, err)
	require.Equal(t, ConnectionStateReady, state)
}

func TestDuplicatePublish(t *testing.T) {
	a, _ := newTestAgent(t, NegotiationConfig{})
	sink := newTestSink()
	opts := types.Options{ConnectID: "pub", Tracks: []types.TrackInfo{audioTrack(), videoTrack()}, Sink: sink}

	require.NoError(t, a.Publish(opts, publishOffer()))
	err := a.Publish(types.Options{ConnectID: "pub", Sink: newTestSink()}, publishOffer())
	require.ErrorIs(t, err, ErrAlreadyExists)
	require.Equal(t, ResultFound, CodeFor(err))

	testutils.Receive(t, sink.answers)
	testutils.Receive(t, sink.ready)
	require.Equal(t, 1, a.NumConnections())
}

func TestPublishInvalidOffer(t *testing.T) {
	a, _ := newTestAgent(t, NegotiationConfig{})
	sink := newTestSink()

	require.ErrorIs(t, a.Publish(types.Options{ConnectID: "pub"}, ""), ErrInvalidParam)

	require.NoError(t, a.Publish(types.Options{ConnectID: "pub", Sink: sink}, "not an sdp"))
	reason := testutils.Receive(t, sink.failed)
	require.Contains(t, reason, ErrParseOfferFailed.Error())
	testutils.NoReceive(t, sink.answers, 50*time.Millisecond)

	state, err := a.State("pub")
	require.NoError(t, err)
	require.Equal(t, ConnectionStateFailed, state)
}

func TestConflictingDirection(t *testing.T) {
	a, _ := newTestAgent(t, NegotiationConfig{})
	sink := newTestSink()

	// a subscriber expects recvonly media lines
	require.NoError(t, a.Subscribe(types.Options{
		ConnectID: "sub",
		Tracks:    []types.TrackInfo{audioTrack()},
		Sink:      sink,
	}, publishOffer()))

	reason := testutils.Receive(t, sink.failed)
	require.Contains(t, reason, ErrConflictingDirection.Error())
	testutils.NoReceive(t, sink.answers, 50*time.Millisecond)
}

func TestRejectedMedia(t *testing.T) {
	t.Run("no matching track", func(t *testing.T) {
		a, _ := newTestAgent(t, NegotiationConfig{})
		sink := newTestSink()
		require.NoError(t, a.Publish(types.Options{
			ConnectID: "pub",
			Tracks:    []types.TrackInfo{audioTrack()},
			Sink:      sink,
		}, publishOffer()))

		answer, err := sdpinfo.Parse(testutils.Receive(t, sink.answers))
		require.NoError(t, err)
		require.Equal(t, 1, answer.Media[0].Port)
		require.Equal(t, 0, answer.Media[1].Port)
	})

	t.Run("no matching codec", func(t *testing.T) {
		a, _ := newTestAgent(t, NegotiationConfig{})
		sink := newTestSink()
		track := videoTrack()
		track.Preference.Profile = "640c1f"
		require.NoError(t, a.Publish(types.Options{
			ConnectID: "pub",
			Tracks:    []types.TrackInfo{audioTrack(), track},
			Sink:      sink,
		}, publishOffer()))

		answer, err := sdpinfo.Parse(testutils.Receive(t, sink.answers))
		require.NoError(t, err)
		require.Equal(t, "111", answer.Media[0].Payloads)
		require.Equal(t, 0, answer.Media[1].Port)
		require.Empty(t, answer.Media[1].SSRCInfos)
	})

	t.Run("duplicate mid", func(t *testing.T) {
		a, ts := newTestAgent(t, NegotiationConfig{})
		sink := newTestSink()
		lines := append([]string{}, sessionLines...)
		lines = append(lines, audioLines("sendonly", true)...)
		lines = append(lines, audioLines("sendonly", false)...)
		lines = append(lines, videoLines("sendonly", true)...)
		require.NoError(t, a.Publish(types.Options{
			ConnectID: "pub",
			Tracks:    []types.TrackInfo{audioTrack(), videoTrack()},
			Sink:      sink,
		}, offer(lines...)))

		answer, err := sdpinfo.Parse(testutils.Receive(t, sink.answers))
		require.NoError(t, err)
		require.Len(t, answer.Media, 3)
		require.Equal(t, 1, answer.Media[0].Port)
		require.Equal(t, 0, answer.Media[1].Port)
		require.Equal(t, 1, answer.Media[2].Port)
		require.Equal(t, "125 107", answer.Media[2].Payloads)
		testutils.NoReceive(t, sink.failed, 20*time.Millisecond)

		// one operation per mid, the second audio line was not bound
		c := a.registry.find("pub")
		require.NotNil(t, c)
		require.Equal(t, 2, c.operations.Len())
		_, err = ts.get(t, "pub").Stream("1")
		require.NoError(t, err)
	})

	t.Run("port zero", func(t *testing.T) {
		a, ts := newTestAgent(t, NegotiationConfig{})
		sink := newTestSink()
		video := videoLines("sendonly", true)
		video[0] = strings.Replace(video[0], "m=video 9", "m=video 0", 1)
		lines := append([]string{}, sessionLines...)
		lines = append(lines, audioLines("sendonly", true)...)
		lines = append(lines, video...)
		require.NoError(t, a.Publish(types.Options{
			ConnectID: "pub",
			Tracks:    []types.TrackInfo{audioTrack(), videoTrack()},
			Sink:      sink,
		}, offer(lines...)))

		answer, err := sdpinfo.Parse(testutils.Receive(t, sink.answers))
		require.NoError(t, err)
		require.Equal(t, 1, answer.Media[0].Port)
		require.Equal(t, 0, answer.Media[1].Port)
		require.Empty(t, answer.Media[1].SSRCInfos)
		testutils.Receive(t, sink.ready)

		c := a.registry.find("pub")
		require.NotNil(t, c)
		op, ok := c.operations.Get("1")
		require.True(t, ok)
		require.False(t, op.enabled)

		// no transport setup for the disabled line
		_, err = ts.get(t, "pub").Stream("1")
		require.Error(t, err)
		_, err = ts.get(t, "pub").Stream("0")
		require.NoError(t, err)
	})
}

func TestDisableRTX(t *testing.T) {
	a, ts := newTestAgent(t, NegotiationConfig{DisableRTX: true, DisableAudioGCC: true})
	sink := newTestSink()
	require.NoError(t, a.Publish(types.Options{
		ConnectID: "pub",
		Tracks:    []types.TrackInfo{audioTrack(), videoTrack()},
		Sink:      sink,
	}, publishOffer()))

	answer, err := sdpinfo.Parse(testutils.Receive(t, sink.answers))
	require.NoError(t, err)
	require.Equal(t, "111", answer.Media[0].Payloads)
	require.Equal(t, "125", answer.Media[1].Payloads)
	require.NotContains(t, answer.Media[0].Extmaps, 3)

	// streams carry the answered codecs and extensions, offered ssrcs
	ssrcs := map[string]uint32{"0": 1001, "1": 2001}
	for _, m := range answer.Media {
		stream, err := ts.get(t, "pub").Stream(m.MID)
		require.NoError(t, err)
		info := stream.StreamInfo()
		require.NotNil(t, info)

		require.Equal(t, m.RtpMaps[0].PayloadType, info.PayloadType)
		require.Zero(t, info.PayloadTypeRetransmission)
		require.Equal(t, ssrcs[m.MID], info.SSRC)

		extensions := make(map[int]string)
		for _, ext := range info.RTPHeaderExtensions {
			extensions[ext.ID] = ext.URI
		}
		require.Equal(t, m.Extmaps, extensions)
	}
}

func TestRenegotiationIgnored(t *testing.T) {
	a, _ := newTestAgent(t, NegotiationConfig{})
	sink := newTestSink()
	require.NoError(t, a.Publish(types.Options{
		ConnectID: "pub",
		Tracks:    []types.TrackInfo{audioTrack(), videoTrack()},
		Sink:      sink,
	}, publishOffer()))
	testutils.Receive(t, sink.answers)

	require.NoError(t, a.Signal("pub", SignalOffer, publishOffer()))
	testutils.NoReceive(t, sink.answers, 50*time.Millisecond)
	testutils.NoReceive(t, sink.failed, 10*time.Millisecond)
}

func TestSignal(t *testing.T) {
	a, _ := newTestAgent(t, NegotiationConfig{})
	sink := newTestSink()
	require.NoError(t, a.Publish(types.Options{
		ConnectID: "pub",
		Tracks:    []types.TrackInfo{audioTrack(), videoTrack()},
		Sink:      sink,
	}, publishOffer()))

	require.ErrorIs(t, a.Signal("pub", "bye", ""), ErrInvalidParam)
	require.ErrorIs(t, a.Signal("nobody", SignalCandidate, ""), ErrNotFound)

	require.NoError(t, a.Signal("pub", SignalCandidate,
		`{"candidate":"candidate:2 1 udp 2013266431 192.168.1.157 46463 typ host","sdpMid":"0"}`))
	require.NoError(t, a.Signal("pub", SignalRemovedCandidates,
		`[{"candidate":"candidate:2 1 udp 2013266431 192.168.1.157 46463 typ host"}]`))
	testutils.Receive(t, sink.ready)
}

func TestUnpublish(t *testing.T) {
	a, _ := newTestAgent(t, NegotiationConfig{})
	sink := newTestSink()
	require.NoError(t, a.Publish(types.Options{
		ConnectID: "pub",
		Tracks:    []types.TrackInfo{audioTrack()},
		Sink:      sink,
	}, publishOffer()))

	err := a.Unpublish("nobody")
	require.ErrorIs(t, err, ErrNotFound)
	require.Equal(t, ResultNotFound, CodeFor(err))
	require.ErrorIs(t, a.Unsubscribe("pub"), ErrNotFound)

	require.NoError(t, a.Unpublish("pub"))
	require.Equal(t, 0, a.NumConnections())
	_, err = a.State("pub")
	require.ErrorIs(t, err, ErrNotFound)

	// the id can be reused
	require.NoError(t, a.Publish(types.Options{
		ConnectID: "pub",
		Tracks:    []types.TrackInfo{audioTrack()},
		Sink:      newTestSink(),
	}, publishOffer()))
}

func TestLinkup(t *testing.T) {
	// registered first so it stops after the agent
	queue := utils.NewSinkQueue()
	t.Cleanup(queue.Stop)
	a, ts := newTestAgent(t, NegotiationConfig{})

	pubSink := newTestSink()
	pubSink.queue = queue
	require.NoError(t, a.Publish(types.Options{
		ConnectID: "pub",
		Tracks:    []types.TrackInfo{audioTrack()},
		Sink:      pubSink,
	}, publishOffer()))

	subSink := newTestSink()
	require.NoError(t, a.Subscribe(types.Options{
		ConnectID: "sub",
		Tracks:    []types.TrackInfo{audioTrack()},
		Sink:      subSink,
	}, subscribeAudioOffer()))

	testutils.Receive(t, pubSink.answers)
	subAnswer, err := sdpinfo.Parse(testutils.Receive(t, subSink.answers))
	require.NoError(t, err)
	require.Equal(t, sdp.DirectionSendOnly, subAnswer.Media[0].Direction)

	require.ErrorIs(t, a.Linkup("pub", "nobody"), ErrNotFound)
	require.ErrorIs(t, a.Linkup("pub", "pub"), ErrInvalidParam)
	require.NoError(t, a.Linkup("pub", "sub"))

	in, err := ts.get(t, "pub").Stream("0")
	require.NoError(t, err)
	out, err := ts.get(t, "sub").Stream("0")
	require.NoError(t, err)

	// linkup runs on the publisher's worker
	time.Sleep(50 * time.Millisecond)

	pkt := &rtp.Packet{
		Header:  rtp.Header{Version: 2, PayloadType: 111, SequenceNumber: 1, Timestamp: 960, SSRC: 1001},
		Payload: []byte{0xfc, 0xff, 0xfe},
	}
	raw, err := pkt.Marshal()
	require.NoError(t, err)
	require.NoError(t, in.Deliver(raw))

	frame := testutils.Receive(t, pubSink.frames)
	require.Equal(t, "0", frame.MID)
	require.Equal(t, []byte{0xfc, 0xff, 0xfe}, frame.Payload)

	sent, err := out.ReadSent()
	require.NoError(t, err)
	require.Equal(t, uint8(111), sent.PayloadType)
	require.Equal(t, []byte{0xfc, 0xff, 0xfe}, sent.Payload)

	require.NoError(t, a.Cutoff("pub", "sub"))
	require.NoError(t, a.Unsubscribe("sub"))
	require.Equal(t, 1, a.NumConnections())
}
