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

package rtc

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/elliotchance/orderedmap/v2"
	"github.com/frostbyte73/core"
	"github.com/pion/sdp/v3"
	"github.com/pion/webrtc/v3"
	"github.com/pkg/errors"
	"go.uber.org/atomic"

	"github.com/maleRjc/rtc-stack/pkg/logger"
	"github.com/maleRjc/rtc-stack/pkg/rtc/types"
	"github.com/maleRjc/rtc-stack/pkg/sdpinfo"
	"github.com/maleRjc/rtc-stack/pkg/telemetry/prometheus"
	"github.com/maleRjc/rtc-stack/pkg/utils"
)

const (
	answerSessionName = "wa/0.1(ly)"

	SignalOffer             = "offer"
	SignalCandidate         = "candidate"
	SignalRemovedCandidates = "removed-candidates"
)

// NegotiationConfig holds the codec and pipeline policy applied to every
// connection.
type NegotiationConfig struct {
	DisableRED             bool
	DisableRTX             bool
	DisableULPFEC          bool
	DisableAudioGCC        bool
	EnableExtmapAllowMixed bool
	MTU                    uint16
	StatInterval           time.Duration
}

type ConnectionParams struct {
	Options types.Options
	// publish or subscribe, for metrics
	Kind             string
	Config           NegotiationConfig
	Worker           *utils.Worker
	TransportFactory types.TransportFactory
	Logger           logger.Logger
}

// Connection negotiates one peer connection. Everything that touches
// negotiation state runs as a task on the connection's worker.
type Connection struct {
	params   ConnectionParams
	id       string
	logger   logger.Logger
	registry *registry
	handle   Handle

	state  atomic.Int32
	closed core.Fuse

	// worker only
	remote     *sdpinfo.SdpInfo
	local      *sdpinfo.SdpInfo
	operations *orderedmap.OrderedMap[string, *operation]
	msids      map[string]string
	transport  types.Transport
	ready      bool
	offeredAt  time.Time

	lock   sync.RWMutex
	tracks map[string]*track
}

func newConnection(params ConnectionParams) *Connection {
	if params.Logger == nil {
		params.Logger = logger.GetLogger()
	}
	return &Connection{
		params:     params,
		id:         params.Options.ConnectID,
		logger:     params.Logger.WithValues("connectID", params.Options.ConnectID),
		operations: orderedmap.NewOrderedMap[string, *operation](),
		msids:      make(map[string]string),
		tracks:     make(map[string]*track),
	}
}

func (c *Connection) ID() string {
	return c.id
}

func (c *Connection) Kind() string {
	return c.params.Kind
}

func (c *Connection) State() ConnectionState {
	return ConnectionState(c.state.Load())
}

func (c *Connection) setState(state ConnectionState) {
	prev := ConnectionState(c.state.Swap(int32(state)))
	if prev != state {
		c.logger.Debugw("connection state changed", "from", prev, "to", state)
	}
}

// post queues fn on the connection worker. The task resolves the connection
// through its handle when it runs and is dropped if the connection is gone.
func (c *Connection) post(fn func(*Connection)) {
	dispatch(c.registry, c.handle, c.params.Worker, fn)
}

func dispatch(r *registry, h Handle, w *utils.Worker, fn func(*Connection)) {
	if r.lookup(h) == nil {
		return
	}
	w.Enqueue(func() {
		target := r.lookup(h)
		if target == nil {
			return
		}
		target.run(fn)
	})
}

func (c *Connection) run(fn func(*Connection)) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Errorw("connection task panicked", nil, "panic", r)
			c.fail(fmt.Sprintf("internal error: %v", r))
		}
	}()
	fn(c)
}

// start creates the transport on the worker.
func (c *Connection) start() {
	r, h, w := c.registry, c.handle, c.params.Worker
	listener := func(event types.TransportEvent, message string) {
		dispatch(r, h, w, func(c *Connection) {
			c.onTransportEvent(event, message)
		})
	}

	c.post(func(c *Connection) {
		t, err := c.params.TransportFactory(c.id, listener)
		if err != nil {
			c.logger.Errorw("could not create transport", err)
			c.fail(err.Error())
			return
		}
		c.transport = t
	})
}

// Signal queues a signaling message from the peer.
func (c *Connection) Signal(signal, payload string) {
	prometheus.RecordMessage(signal, "received")
	c.post(func(c *Connection) {
		var err error
		switch signal {
		case SignalOffer:
			err = c.processOffer(payload)
			if err != nil && !errors.Is(err, ErrRenegotiationUnsupported) {
				prometheus.RecordOffer(c.params.Kind, "failure")
				c.fail(err.Error())
			}
		case SignalCandidate:
			err = c.addRemoteCandidate(payload)
		case SignalRemovedCandidates:
			err = c.removeRemoteCandidates(payload)
		default:
			err = errors.Wrap(ErrInvalidParam, signal)
		}
		if err != nil {
			c.logger.Warnw("could not process signal", err, "signal", signal)
		}
	})
}

func (c *Connection) processOffer(offer string) error {
	if c.remote != nil {
		return ErrRenegotiationUnsupported
	}
	if state := c.State(); state != ConnectionStateIdle {
		return errors.Wrapf(ErrConnectionClosed, "offer in state %s", state)
	}
	c.offeredAt = time.Now()

	var opts []sdpinfo.ParseOption
	if c.params.Config.EnableExtmapAllowMixed {
		opts = append(opts, sdpinfo.WithExtmapAllowMixed())
	}
	remote, err := sdpinfo.Parse(offer, opts...)
	if err != nil {
		return errors.WithMessage(ErrParseOfferFailed, err.Error())
	}
	c.remote = remote
	c.setState(ConnectionStateOfferReceived)

	for _, m := range remote.Media {
		if err := c.addOperation(m); err != nil {
			// the line is rejected, the rest of the offer is still negotiated
			c.logger.Warnw("rejecting media", err, "mid", m.MID, "type", m.Type)
			m.Port = 0
			continue
		}
		if err := c.processOfferMedia(m); err != nil {
			return err
		}
	}

	c.local = remote.Answer()
	for i, m := range remote.Media {
		if m.Port == 0 {
			c.local.Media[i].Port = 0
		}
		if m.Type == sdpinfo.MediaTypeAudio {
			c.local.Media[i].DisableAudioGCC = c.params.Config.DisableAudioGCC
		}
	}

	cfg := c.params.Config
	for el := c.operations.Front(); el != nil; el = el.Next() {
		mid, op := el.Key, el.Value
		if !op.enabled {
			continue
		}
		if op.finalPayload == 0 || !c.local.FilterByPayload(mid, op.finalPayload, cfg.DisableRED, cfg.DisableRTX, cfg.DisableULPFEC) {
			c.logger.Infow("no usable codec, rejecting media", "mid", mid, "preference", op.preference.Format)
			op.enabled = false
			c.local.SetMediaPort(mid, 0)
		}
	}
	c.local.FilterExtmap()

	for i, m := range remote.Media {
		if m.Port == 0 || c.local.Media[i].Port == 0 {
			continue
		}
		if err := c.setupTransport(m); err != nil {
			if errors.Is(err, ErrAlreadyBound) {
				c.logger.Warnw("skipping media", err, "mid", m.MID)
				continue
			}
			return err
		}
	}
	c.setState(ConnectionStateTransportSetup)

	if c.transport == nil {
		return ErrConnectionClosed
	}
	return c.transport.Gather()
}

// addOperation binds a media description to the first configured track of
// the same kind.
func (c *Connection) addOperation(m *sdpinfo.MediaDesc) error {
	if existing, ok := c.operations.Get(m.MID); ok {
		return errors.Wrapf(ErrAlreadyBound, "mid %s has operation %s", m.MID, existing.id)
	}

	kind := kindFromMediaType(m.Type)
	for _, t := range c.params.Options.Tracks {
		if t.Kind != kind {
			continue
		}
		direction, err := sdp.NewDirection(t.Direction)
		if err != nil {
			return errors.Wrapf(ErrInvalidParam, "track direction %q", t.Direction)
		}
		c.operations.Set(m.MID, &operation{
			id:         c.id,
			kind:       t.Kind,
			direction:  direction,
			preference: t.Preference,
			enabled:    true,
		})
		return nil
	}
	return errors.Wrapf(ErrNoOperation, "mid %s", m.MID)
}

func (c *Connection) processOfferMedia(m *sdpinfo.MediaDesc) error {
	op, ok := c.operations.Get(m.MID)
	if !ok {
		m.Port = 0
		return errors.Wrapf(ErrNoOperation, "mid %s", m.MID)
	}

	if op.direction != m.Direction {
		return errors.Wrapf(ErrConflictingDirection, "mid %s: %s != %s", m.MID, op.direction, m.Direction)
	}
	if op.kind != kindFromMediaType(m.Type) {
		return errors.Wrapf(ErrConflictingType, "mid %s: %s != %s", m.MID, op.kind, m.Type)
	}

	if op.enabled && m.Port == 0 {
		c.logger.Warnw("media disabled by offer", nil, "mid", m.MID)
		op.enabled = false
	}

	switch m.Type {
	case sdpinfo.MediaTypeAudio:
		op.finalPayload = m.FilterAudioPayload(op.preference)
	case sdpinfo.MediaTypeVideo:
		op.finalPayload = m.FilterVideoPayload(op.preference)
	}
	c.logger.Debugw("selected payload", "mid", m.MID, "payload", op.finalPayload)
	return nil
}

func (c *Connection) setupTransport(m *sdpinfo.MediaDesc) error {
	op, ok := c.operations.Get(m.MID)
	if !ok {
		return errors.Wrapf(ErrNoOperation, "mid %s", m.MID)
	}
	if c.transport == nil {
		return ErrConnectionClosed
	}

	c.lock.RLock()
	_, exists := c.tracks[m.MID]
	c.lock.RUnlock()
	if exists {
		return errors.Wrapf(ErrAlreadyBound, "track %s", m.MID)
	}

	negotiated := c.local.MediaByMID(m.MID)
	if negotiated == nil {
		return errors.Wrapf(ErrNoOperation, "mid %s not in answer", m.MID)
	}

	// codecs and extensions as answered, ssrcs as offered
	inbound := op.inbound()
	settings := negotiated.MediaSettings()
	settings.SSRCs = m.MediaSettings().SSRCs
	if op.finalPayload != 0 {
		settings.Format = op.finalPayload
	}

	stream, err := c.transport.AddMediaStream(m.MID, negotiated.StreamInfo(settings), inbound)
	if err != nil {
		return errors.Wrapf(ErrAlreadyBound, "stream %s: %v", m.MID, err)
	}

	t, err := newTrack(trackParams{
		ConnectID:    c.id,
		MID:          m.MID,
		Kind:         op.kind,
		Inbound:      inbound,
		Settings:     settings,
		Stream:       stream,
		MTU:          c.params.Config.MTU,
		StatInterval: c.params.Config.StatInterval,
		OnFrame:      c.onFrame,
		OnStat:       c.onStat,
		Logger:       c.logger,
	})
	if err != nil {
		c.transport.RemoveMediaStream(m.MID)
		return err
	}
	c.lock.Lock()
	c.tracks[m.MID] = t
	c.lock.Unlock()

	if inbound {
		if local := c.local.MediaByMID(m.MID); local != nil {
			c.logger.Infow("adding ssrc to answer", "mid", m.MID, "ssrc", t.SSRC())
			c.msids[op.id] = local.SetSsrcs([]uint32{t.SSRC()}, c.msids[op.id])
		}
	}

	return c.transport.SetRemoteSdp(c.remote.SingleMediaSdp(m.MID), m.MID)
}

func (c *Connection) onTransportEvent(event types.TransportEvent, message string) {
	c.logger.Debugw("transport event", "event", event)
	prometheus.RecordTransportEvent(event.String())

	switch event {
	case types.TransportGathered:
		c.processSendAnswer(message)
	case types.TransportCandidate:
		c.notify(func(s types.Sink) { s.OnCandidate(message) })
	case types.TransportFailed:
		c.fail(message)
	case types.TransportReady:
		if c.ready || c.State() == ConnectionStateFailed {
			return
		}
		c.ready = true
		c.setState(ConnectionStateReady)
		c.notify(func(s types.Sink) { s.OnReady() })
	}
}

func (c *Connection) processSendAnswer(message string) {
	if c.local == nil {
		c.logger.Warnw("gathered without a local description", nil)
		return
	}

	if message != "" {
		gathered, err := sdpinfo.Parse(message)
		if err != nil {
			c.logger.Warnw("could not parse transport description", err)
			return
		}
		if len(gathered.Media) > 0 {
			c.local.SessionName = answerSessionName
			c.local.SetMsidSemantic(gathered)
			c.local.SetCredentials(gathered)
			c.local.SetCandidates(gathered)
			c.local.ICELite = true
		} else {
			c.logger.Errorw("no media in transport description", nil)
		}
	}

	answer := c.local.ToString("")
	prometheus.RecordOffer(c.params.Kind, "success")
	prometheus.RecordAnswerLatency(c.params.Kind, time.Since(c.offeredAt))
	c.notify(func(s types.Sink) { s.OnAnswer(answer) })
}

func (c *Connection) addRemoteCandidate(payload string) error {
	if c.transport == nil {
		return ErrConnectionClosed
	}
	return c.transport.AddRemoteCandidate(parseCandidateInit(payload))
}

func (c *Connection) removeRemoteCandidates(payload string) error {
	if c.transport == nil {
		return ErrConnectionClosed
	}

	var candidates []string
	var inits []webrtc.ICECandidateInit
	if err := json.Unmarshal([]byte(payload), &inits); err == nil {
		for _, i := range inits {
			candidates = append(candidates, i.Candidate)
		}
	} else {
		for _, line := range strings.Split(payload, "\n") {
			if line = strings.TrimSpace(line); line != "" {
				candidates = append(candidates, line)
			}
		}
	}
	return c.transport.RemoveRemoteCandidates(candidates)
}

// parseCandidateInit accepts a raw candidate attribute or its JSON form.
func parseCandidateInit(payload string) string {
	payload = strings.TrimSpace(payload)
	if strings.HasPrefix(payload, "{") {
		var init webrtc.ICECandidateInit
		if err := json.Unmarshal([]byte(payload), &init); err == nil {
			return init.Candidate
		}
	}
	return payload
}

func (c *Connection) fail(reason string) {
	if c.State() == ConnectionStateFailed {
		return
	}
	c.setState(ConnectionStateFailed)
	c.logger.Infow("connection failed", "reason", reason)
	c.notify(func(s types.Sink) { s.OnFailed(reason) })
}

func (c *Connection) onFrame(frame *types.MediaFrame) {
	c.notify(func(s types.Sink) { s.OnFrame(frame) })
}

func (c *Connection) onStat() {
	c.notify(func(s types.Sink) { s.OnStat() })
}

// notify delivers to the sink on its task queue, or inline when it has none.
func (c *Connection) notify(fn func(types.Sink)) {
	sink := c.params.Options.Sink
	if sink == nil || c.closed.IsBroken() {
		return
	}
	if q := sink.TaskQueue(); q != nil {
		q.Post(func() { fn(sink) })
		return
	}
	fn(sink)
}

func (c *Connection) inboundTracks() []*track {
	c.lock.RLock()
	defer c.lock.RUnlock()

	var tracks []*track
	for _, t := range c.tracks {
		if t.IsInbound() {
			tracks = append(tracks, t)
		}
	}
	return tracks
}

func (c *Connection) outboundDestinations() []types.FrameDestination {
	c.lock.RLock()
	defer c.lock.RUnlock()

	var dests []types.FrameDestination
	for _, t := range c.tracks {
		if d := t.Destination(); d != nil {
			dests = append(dests, d)
		}
	}
	return dests
}

// linkTo feeds the inbound media of c to the outbound tracks of dst.
func (c *Connection) linkTo(dst *Connection) int {
	linked := 0
	dests := dst.outboundDestinations()
	for _, t := range c.inboundTracks() {
		for _, d := range dests {
			if t.AddDestination(d) {
				linked++
			}
		}
	}
	return linked
}

// cutoff stops feeding the given destinations.
func (c *Connection) cutoff(ids []string) int {
	removed := 0
	for _, t := range c.inboundTracks() {
		for _, id := range ids {
			if t.RemoveDestination(id) {
				removed++
			}
		}
	}
	return removed
}

func (c *Connection) destinationIDs() []string {
	var ids []string
	for _, d := range c.outboundDestinations() {
		ids = append(ids, d.ID())
	}
	return ids
}

// shutdown tears the connection down on its worker. It must be called after
// the connection left the registry.
func (c *Connection) shutdown() {
	c.params.Worker.Enqueue(func() {
		c.closed.Break()

		c.lock.Lock()
		tracks := c.tracks
		c.tracks = make(map[string]*track)
		c.lock.Unlock()

		for mid, t := range tracks {
			t.Close()
			if c.transport != nil {
				c.transport.RemoveMediaStream(mid)
			}
		}
		if c.transport != nil {
			c.transport.Close()
		}
		c.params.Worker.Release()
		c.logger.Infow("connection closed", "state", c.State())
	})
}
