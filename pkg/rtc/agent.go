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
	"net"
	"strconv"
	"strings"
	"sync"

	"github.com/cenkalti/backoff/v4"
	"github.com/frostbyte73/core"
	"github.com/pion/stun"
	"github.com/pkg/errors"

	"github.com/maleRjc/rtc-stack/pkg/logger"
	"github.com/maleRjc/rtc-stack/pkg/rtc/transport"
	"github.com/maleRjc/rtc-stack/pkg/rtc/types"
	"github.com/maleRjc/rtc-stack/pkg/telemetry/prometheus"
	"github.com/maleRjc/rtc-stack/pkg/utils"
)

const stunResolveRetries = 3

type AgentParams struct {
	Config           NegotiationConfig
	PacketBufferSize int
	Logger           logger.Logger
	// replaces the in-memory transport when set
	TransportFactory types.TransportFactory
}

// Agent owns every connection of the process and the workers they run on.
type Agent struct {
	params AgentParams
	logger logger.Logger

	lock       sync.Mutex
	initiated  bool
	addresses  []string
	stunServer *net.UDPAddr
	pool       *utils.WorkerPool

	registry *registry
	stopped  core.Fuse
}

func NewAgent(params AgentParams) *Agent {
	if params.Logger == nil {
		params.Logger = logger.GetLogger()
	}
	return &Agent{
		params:   params,
		logger:   params.Logger.WithName("agent"),
		registry: newRegistry(),
	}
}

// Initiate starts the workers. It can only be called once.
func (a *Agent) Initiate(workers int, addresses []string, stunAddr string) error {
	if len(addresses) == 0 {
		return errors.Wrap(ErrInvalidParam, "no network address")
	}

	a.lock.Lock()
	defer a.lock.Unlock()

	if a.initiated {
		return ErrAlreadyInitialized
	}
	if workers < 1 {
		workers = 1
	}

	if stunAddr != "" {
		addr, err := a.resolveSTUN(stunAddr)
		if err != nil {
			// host candidates still work without it
			a.logger.Warnw("could not resolve stun server", err, "stun", stunAddr)
		}
		a.stunServer = addr
	}

	a.addresses = append([]string(nil), addresses...)
	a.pool = utils.NewWorkerPool("rtc", workers, a.logger)
	a.pool.Start()
	a.initiated = true

	a.logger.Infow("agent initiated", "workers", workers, "addresses", addresses, "stun", stunAddr)
	return nil
}

func (a *Agent) resolveSTUN(stunAddr string) (*net.UDPAddr, error) {
	uri, err := stun.ParseURI(strings.Replace(stunAddr, "://", ":", 1))
	if err != nil {
		return nil, errors.Wrap(ErrInvalidParam, err.Error())
	}

	var addr *net.UDPAddr
	err = backoff.Retry(func() error {
		var err error
		addr, err = net.ResolveUDPAddr("udp", net.JoinHostPort(uri.Host, strconv.Itoa(uri.Port)))
		return err
	}, backoff.WithMaxRetries(backoff.NewExponentialBackOff(), stunResolveRetries))
	return addr, err
}

func (a *Agent) transportFactory() types.TransportFactory {
	if a.params.TransportFactory != nil {
		return a.params.TransportFactory
	}
	addresses, stunServer := a.addresses, a.stunServer
	loggerFactory := logger.NewLoggerFactory(a.logger)
	return func(connectID string, listener types.TransportListener) (types.Transport, error) {
		return transport.NewLocalTransport(transport.Params{
			ConnectID:        connectID,
			Addresses:        addresses,
			STUNServer:       stunServer,
			PacketBufferSize: a.params.PacketBufferSize,
			LoggerFactory:    loggerFactory,
			Listener:         listener,
		})
	}
}

// Publish negotiates a connection receiving media from the peer. The answer
// and later events reach opts.Sink.
func (a *Agent) Publish(opts types.Options, offer string) error {
	return a.connect(prometheus.KindPublish, "sendonly", opts, offer)
}

// Subscribe negotiates a connection sending media to the peer.
func (a *Agent) Subscribe(opts types.Options, offer string) error {
	return a.connect(prometheus.KindSubscribe, "recvonly", opts, offer)
}

func (a *Agent) Unpublish(connectID string) error {
	return a.disconnect(prometheus.KindPublish, connectID)
}

func (a *Agent) Unsubscribe(connectID string) error {
	return a.disconnect(prometheus.KindSubscribe, connectID)
}

func (a *Agent) connect(kind, direction string, opts types.Options, offer string) error {
	if opts.ConnectID == "" || offer == "" {
		return ErrInvalidParam
	}

	a.lock.Lock()
	initiated, pool := a.initiated, a.pool
	a.lock.Unlock()
	if !initiated || a.stopped.IsBroken() {
		return ErrNotInitialized
	}
	if a.registry.find(opts.ConnectID) != nil {
		return ErrAlreadyExists
	}

	// direction is fixed by the kind of connection, from the peer's side
	tracks := make([]types.TrackInfo, len(opts.Tracks))
	for i, t := range opts.Tracks {
		t.Direction = direction
		tracks[i] = t
	}
	opts.Tracks = tracks

	worker := pool.Acquire()
	c := newConnection(ConnectionParams{
		Options:          opts,
		Kind:             kind,
		Config:           a.params.Config,
		Worker:           worker,
		TransportFactory: a.transportFactory(),
		Logger:           a.params.Logger,
	})
	c.registry = a.registry
	h, err := a.registry.insert(opts.ConnectID, c)
	if err != nil {
		worker.Release()
		return err
	}
	c.handle = h

	prometheus.AddConnection(kind)
	a.logger.Infow("connection added", "connectID", opts.ConnectID, "kind", kind, "worker", worker.ID())

	c.start()
	c.Signal(SignalOffer, offer)
	return nil
}

func (a *Agent) disconnect(kind, connectID string) error {
	c := a.registry.remove(connectID, func(c *Connection) bool {
		return c.Kind() == kind
	})
	if c == nil {
		return ErrNotFound
	}
	a.detach(c)
	c.shutdown()
	prometheus.SubConnection(kind)
	return nil
}

// detach removes the outbound tracks of c from every remaining publisher.
func (a *Agent) detach(c *Connection) {
	ids := c.destinationIDs()
	if len(ids) == 0 {
		return
	}
	for _, other := range a.registry.all() {
		other.post(func(o *Connection) {
			o.cutoff(ids)
		})
	}
}

// Signal forwards a trickle or offer message from the peer.
func (a *Agent) Signal(connectID, signal, payload string) error {
	switch signal {
	case SignalOffer, SignalCandidate, SignalRemovedCandidates:
	default:
		return errors.Wrapf(ErrInvalidParam, "signal %q", signal)
	}
	c := a.registry.find(connectID)
	if c == nil {
		return ErrNotFound
	}
	c.Signal(signal, payload)
	return nil
}

// Linkup feeds the media published on fromID to the subscriber toID.
func (a *Agent) Linkup(fromID, toID string) error {
	from, to, err := a.pair(fromID, toID)
	if err != nil {
		return err
	}
	from.post(func(c *Connection) {
		n := c.linkTo(to)
		c.logger.Infow("linked", "to", toID, "destinations", n)
	})
	return nil
}

func (a *Agent) Cutoff(fromID, toID string) error {
	from, to, err := a.pair(fromID, toID)
	if err != nil {
		return err
	}
	ids := to.destinationIDs()
	from.post(func(c *Connection) {
		n := c.cutoff(ids)
		c.logger.Infow("cut off", "to", toID, "destinations", n)
	})
	return nil
}

func (a *Agent) pair(fromID, toID string) (*Connection, *Connection, error) {
	if fromID == "" || toID == "" || fromID == toID {
		return nil, nil, ErrInvalidParam
	}
	from := a.registry.find(fromID)
	if from == nil {
		return nil, nil, errors.Wrapf(ErrNotFound, "connection %s", fromID)
	}
	to := a.registry.find(toID)
	if to == nil {
		return nil, nil, errors.Wrapf(ErrNotFound, "connection %s", toID)
	}
	return from, to, nil
}

// State returns the negotiation state of a connection.
func (a *Agent) State(connectID string) (ConnectionState, error) {
	c := a.registry.find(connectID)
	if c == nil {
		return ConnectionStateIdle, ErrNotFound
	}
	return c.State(), nil
}

func (a *Agent) NumConnections() int {
	return a.registry.len()
}

// Stop closes every connection and waits for the workers to drain.
func (a *Agent) Stop() {
	if a.stopped.IsBroken() {
		return
	}
	a.stopped.Break()

	for _, c := range a.registry.all() {
		if removed := a.registry.remove(c.ID(), nil); removed != nil {
			removed.shutdown()
			prometheus.SubConnection(removed.Kind())
		}
	}

	a.lock.Lock()
	pool := a.pool
	a.lock.Unlock()
	if pool != nil {
		pool.Stop()
	}
}
