package service

import (
	"github.com/dustin/go-humanize"
	"go.uber.org/atomic"

	"github.com/maleRjc/rtc-stack/pkg/logger"
	"github.com/maleRjc/rtc-stack/pkg/rtc/types"
)

const (
	KindPublish   = "publish"
	KindSubscribe = "subscribe"
)

// session is the sink of one connection created through the service.
// answer and failed are buffered so the first event never blocks.
type session struct {
	id     string
	kind   string
	queue  types.TaskQueue
	logger logger.Logger

	answer chan string
	failed chan string
	// websocket sessions forward every event
	onEvent func(msg *SignalResponse)

	ready  atomic.Bool
	frames atomic.Uint64
	bytes  atomic.Uint64
}

func newSession(id, kind string, queue types.TaskQueue, onEvent func(msg *SignalResponse)) *session {
	return &session{
		id:      id,
		kind:    kind,
		queue:   queue,
		logger:  logger.GetLogger().WithValues("connectID", id, "kind", kind),
		answer:  make(chan string, 1),
		failed:  make(chan string, 1),
		onEvent: onEvent,
	}
}

func (s *session) emit(msg *SignalResponse) {
	if s.onEvent != nil {
		msg.ID = s.id
		s.onEvent(msg)
	}
}

func (s *session) OnAnswer(sdp string) {
	select {
	case s.answer <- sdp:
	default:
	}
	s.emit(&SignalResponse{Type: MessageAnswer, SDP: sdp})
}

func (s *session) OnCandidate(candidate string) {
	s.emit(&SignalResponse{Type: MessageCandidate, Candidate: candidate})
}

func (s *session) OnFailed(reason string) {
	s.logger.Infow("connection failed", "reason", reason)
	select {
	case s.failed <- reason:
	default:
	}
	s.emit(&SignalResponse{Type: MessageFailed, Reason: reason})
}

func (s *session) OnReady() {
	s.ready.Store(true)
	s.emit(&SignalResponse{Type: MessageReady})
}

func (s *session) OnFrame(frame *types.MediaFrame) {
	s.frames.Inc()
	s.bytes.Add(uint64(len(frame.Payload)))
}

func (s *session) OnStat() {
	s.logger.Debugw("media stats",
		"frames", s.frames.Load(),
		"bytes", humanize.Bytes(s.bytes.Load()),
	)
}

func (s *session) TaskQueue() types.TaskQueue {
	return s.queue
}
