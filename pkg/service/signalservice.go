package service

import (
	"net/http"
	"strings"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"

	"github.com/maleRjc/rtc-stack/pkg/config"
	"github.com/maleRjc/rtc-stack/pkg/logger"
	"github.com/maleRjc/rtc-stack/pkg/rtc"
	"github.com/maleRjc/rtc-stack/pkg/rtc/types"
	"github.com/maleRjc/rtc-stack/pkg/telemetry/prometheus"
	"github.com/maleRjc/rtc-stack/pkg/utils"
)

// SignalService carries the same operations as the HTTP endpoints over one
// websocket, events of every connection it created are pushed back on it.
type SignalService struct {
	config   *config.Config
	agent    Agent
	upgrader websocket.Upgrader
}

func NewSignalService(conf *config.Config, agent Agent) *SignalService {
	s := &SignalService{
		config:   conf,
		agent:    agent,
		upgrader: websocket.Upgrader{},
	}

	// allow connections from any origin, since script may be hosted anywhere
	s.upgrader.CheckOrigin = func(r *http.Request) bool {
		return true
	}
	return s
}

// wsClient tracks the connections owned by one socket.
type wsClient struct {
	sigConn *WSSignalConnection
	queue   *utils.SinkQueue
	logger  logger.Logger

	lock  sync.Mutex
	owned map[string]string
}

func (s *SignalService) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warnw("could not upgrade to WS", err)
		return
	}

	c := &wsClient{
		sigConn: NewWSSignalConnection(conn),
		queue:   utils.NewSinkQueue(),
		logger:  logger.GetLogger().WithValues("clientIP", GetClientIP(r)),
		owned:   make(map[string]string),
	}
	c.logger.Infow("new client WS connected")

	defer func() {
		s.release(c)
		c.queue.Stop()
		_ = c.sigConn.Close()
		c.logger.Infow("WS connection closed")
	}()

	for {
		req, _, err := c.sigConn.ReadRequest()
		if err != nil {
			if !IsWebSocketCloseError(err) {
				c.logger.Warnw("error reading from websocket", err)
			}
			return
		}
		if req == nil {
			continue
		}

		err = s.handleRequest(c, req)
		prometheus.RecordMessage(string(req.Type), rtc.CodeFor(err).String())

		res := &SignalResponse{
			Type:    MessageResult,
			ID:      req.ID,
			Request: req.Type,
			Code:    rtc.CodeFor(err).String(),
		}
		if err != nil {
			res.Error = err.Error()
		}
		if _, err := c.sigConn.WriteResponse(res); err != nil {
			c.logger.Warnw("error writing to websocket", err)
			return
		}
	}
}

func (s *SignalService) handleRequest(c *wsClient, req *SignalRequest) error {
	switch req.Type {
	case MessagePublish, MessageSubscribe:
		kind := KindPublish
		if req.Type == MessageSubscribe {
			kind = KindSubscribe
		}
		sess := newSession(req.ID, kind, c.queue, c.send)
		if err := connect(s.agent, kind, types.Options{
			ConnectID: req.ID,
			Tracks:    s.config.Tracks(),
			Sink:      sess,
		}, req.SDP); err != nil {
			return err
		}
		c.lock.Lock()
		c.owned[req.ID] = kind
		c.lock.Unlock()
		return nil

	case MessageUnpublish, MessageUnsubscribe:
		kind := KindPublish
		if req.Type == MessageUnsubscribe {
			kind = KindSubscribe
		}
		if err := disconnect(s.agent, kind, req.ID); err != nil {
			return err
		}
		c.lock.Lock()
		delete(c.owned, req.ID)
		c.lock.Unlock()
		return nil

	case MessageCandidate:
		return s.agent.Signal(req.ID, rtc.SignalCandidate, req.Candidate)

	case MessageRemovedCandidates:
		return s.agent.Signal(req.ID, rtc.SignalRemovedCandidates, strings.Join(req.Candidates, "\n"))

	case MessageLinkup:
		return s.agent.Linkup(req.ID, req.To)

	case MessageCutoff:
		return s.agent.Cutoff(req.ID, req.To)

	default:
		return errors.Wrapf(ErrInvalidMessageType, "%q", req.Type)
	}
}

// release removes every connection the socket still owns.
func (s *SignalService) release(c *wsClient) {
	c.lock.Lock()
	owned := c.owned
	c.owned = make(map[string]string)
	c.lock.Unlock()

	for id, kind := range owned {
		if err := disconnect(s.agent, kind, id); err != nil && !errors.Is(err, rtc.ErrNotFound) {
			c.logger.Warnw("could not remove connection", err, "connectID", id)
		}
	}
}

func (c *wsClient) send(msg *SignalResponse) {
	if _, err := c.sigConn.WriteResponse(msg); err != nil {
		c.logger.Debugw("could not forward event", "error", err, "type", msg.Type)
	}
}
