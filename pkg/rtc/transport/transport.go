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

package transport

import (
	"crypto"
	"crypto/x509"
	"errors"
	"net"
	"strconv"
	"strings"
	"sync"

	"github.com/frostbyte73/core"
	"github.com/pion/dtls/v2/pkg/crypto/fingerprint"
	"github.com/pion/dtls/v2/pkg/crypto/selfsign"
	"github.com/pion/ice/v2"
	"github.com/pion/interceptor"
	"github.com/pion/logging"
	"github.com/pion/randutil"

	"github.com/maleRjc/rtc-stack/pkg/rtc/types"
	"github.com/maleRjc/rtc-stack/pkg/sdpinfo"
	"github.com/maleRjc/rtc-stack/pkg/utils"
)

const (
	ufragLength = 16
	pwdLength   = 32
	runesAlpha  = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

	candidatePrefix = "candidate:"
)

var (
	ErrTransportClosed    = errors.New("transport closed")
	ErrMissingCredentials = errors.New("remote description has no ice credentials")
	ErrNoMedia            = errors.New("no media description to negotiate")
	ErrStreamExists       = errors.New("media stream already exists")
	ErrUnknownStream      = errors.New("unknown media stream")
)

type Params struct {
	ConnectID string
	// host candidates, ip:port
	Addresses        []string
	STUNServer       *net.UDPAddr
	PacketBufferSize int
	LoggerFactory    logging.LoggerFactory
	Listener         types.TransportListener
}

// LocalTransport is an ICE-lite transport: it answers with its own
// credentials, certificate fingerprint and host candidates and reports
// itself ready once a remote candidate is known. Media moves through
// in-memory packet buffers.
type LocalTransport struct {
	params Params
	log    logging.LeveledLogger
	events *utils.OpsQueue

	ufrag       string
	pwd         string
	fingerprint string
	candidates  []sdpinfo.Candidate

	lock             sync.Mutex
	remote           []*sdpinfo.SdpInfo
	remoteCandidates []sdpinfo.Candidate
	streams          map[string]*Stream
	gathered         bool
	ready            bool

	closed core.Fuse
}

func NewLocalTransport(params Params) (*LocalTransport, error) {
	if params.LoggerFactory == nil {
		params.LoggerFactory = logging.NewDefaultLoggerFactory()
	}
	if params.Listener == nil {
		params.Listener = func(types.TransportEvent, string) {}
	}

	t := &LocalTransport{
		params:  params,
		log:     params.LoggerFactory.NewLogger("transport"),
		streams: make(map[string]*Stream),
	}
	t.events = utils.NewOpsQueue(utils.OpsQueueParams{Name: "transport-" + params.ConnectID})

	var err error
	if t.ufrag, err = randutil.GenerateCryptoRandomString(ufragLength, runesAlpha); err != nil {
		return nil, err
	}
	if t.pwd, err = randutil.GenerateCryptoRandomString(pwdLength, runesAlpha); err != nil {
		return nil, err
	}

	cert, err := selfsign.GenerateSelfSigned()
	if err != nil {
		return nil, err
	}
	x509Cert, err := x509.ParseCertificate(cert.Certificate[0])
	if err != nil {
		return nil, err
	}
	if t.fingerprint, err = fingerprint.Fingerprint(x509Cert, crypto.SHA256); err != nil {
		return nil, err
	}

	for _, addr := range params.Addresses {
		c, err := hostCandidate(addr)
		if err != nil {
			return nil, err
		}
		t.candidates = append(t.candidates, c)
	}

	t.events.Start()
	t.emit(types.TransportInitial, "")
	return t, nil
}

func hostCandidate(addr string) (sdpinfo.Candidate, error) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return sdpinfo.Candidate{}, err
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return sdpinfo.Candidate{}, err
	}
	c, err := ice.NewCandidateHost(&ice.CandidateHostConfig{
		Network:   "udp",
		Address:   host,
		Port:      port,
		Component: 1,
	})
	if err != nil {
		return sdpinfo.Candidate{}, err
	}
	return sdpinfo.ParseCandidate(c.Marshal())
}

func (t *LocalTransport) emit(event types.TransportEvent, message string) {
	t.events.Enqueue(func() {
		t.params.Listener(event, message)
	})
}

func (t *LocalTransport) Credentials() (string, string) {
	return t.ufrag, t.pwd
}

func (t *LocalTransport) Fingerprint() string {
	return t.fingerprint
}

func (t *LocalTransport) SetRemoteSdp(sdp string, mid string) error {
	if t.closed.IsBroken() {
		return ErrTransportClosed
	}

	remote, err := sdpinfo.Parse(sdp)
	if err != nil {
		return err
	}
	media := remote.MediaByMID(mid)
	if media == nil {
		return ErrNoMedia
	}
	info := media.SessionInfo
	if !remote.SessionInMedias {
		info = remote.SessionInfo
	}
	if info.ICEUfrag == "" || info.ICEPwd == "" {
		return ErrMissingCredentials
	}

	t.lock.Lock()
	t.remote = append(t.remote, remote)
	t.remoteCandidates = append(t.remoteCandidates, media.Candidates...)
	t.lock.Unlock()

	t.log.Debugf("remote description set, connectID: %s, mid: %s, candidates: %d", t.params.ConnectID, mid, len(media.Candidates))
	return nil
}

func (t *LocalTransport) AddRemoteCandidate(candidate string) error {
	if t.closed.IsBroken() {
		return ErrTransportClosed
	}

	c, err := sdpinfo.ParseCandidate(strings.TrimPrefix(strings.TrimPrefix(candidate, "a="), candidatePrefix))
	if err != nil {
		return err
	}

	t.lock.Lock()
	t.remoteCandidates = append(t.remoteCandidates, c)
	t.lock.Unlock()

	t.maybeReady()
	return nil
}

func (t *LocalTransport) RemoveRemoteCandidates(candidates []string) error {
	if t.closed.IsBroken() {
		return ErrTransportClosed
	}

	removed := make(map[string]bool)
	for _, raw := range candidates {
		c, err := sdpinfo.ParseCandidate(strings.TrimPrefix(strings.TrimPrefix(raw, "a="), candidatePrefix))
		if err != nil {
			return err
		}
		removed[c.Marshal()] = true
	}

	t.lock.Lock()
	kept := t.remoteCandidates[:0]
	for _, c := range t.remoteCandidates {
		if !removed[c.Marshal()] {
			kept = append(kept, c)
		}
	}
	t.remoteCandidates = kept
	t.lock.Unlock()
	return nil
}

// Gather builds the local description for every remote media description
// and reports it, followed by the local candidates.
func (t *LocalTransport) Gather() error {
	if t.closed.IsBroken() {
		return ErrTransportClosed
	}

	t.lock.Lock()
	if len(t.remote) == 0 {
		t.lock.Unlock()
		t.emit(types.TransportFailed, ErrNoMedia.Error())
		return ErrNoMedia
	}
	local := t.remote[0].Answer()
	local.Media = nil
	for _, r := range t.remote {
		for _, m := range r.Answer().Media {
			m.SessionInfo = sdpinfo.SessionInfo{
				ICEUfrag:        t.ufrag,
				ICEPwd:          t.pwd,
				FingerprintAlgo: "sha-256",
				Fingerprint:     t.fingerprint,
				Setup:           m.SessionInfo.Setup,
			}
			m.Candidates = append([]sdpinfo.Candidate(nil), t.candidates...)
			local.Media = append(local.Media, m)
		}
	}
	local.SessionInMedias = true
	local.ICELite = true
	local.MsidSemantic = "WMS"
	local.MsidTokens = []string{t.params.ConnectID}
	t.gathered = true
	t.lock.Unlock()

	t.emit(types.TransportStarted, "")
	t.emit(types.TransportGathered, local.ToString(""))
	for _, c := range t.candidates {
		t.emit(types.TransportCandidate, candidatePrefix+c.Marshal())
	}
	if t.params.STUNServer != nil {
		t.log.Debugf("stun service %s not queried, host candidates only", t.params.STUNServer)
	}

	t.maybeReady()
	return nil
}

func (t *LocalTransport) maybeReady() {
	t.lock.Lock()
	ready := t.gathered && !t.ready && len(t.remoteCandidates) > 0
	if ready {
		t.ready = true
	}
	t.lock.Unlock()

	if ready {
		t.emit(types.TransportReady, "")
	}
}

func (t *LocalTransport) AddMediaStream(mid string, info *interceptor.StreamInfo, inbound bool) (types.MediaStream, error) {
	if t.closed.IsBroken() {
		return nil, ErrTransportClosed
	}

	t.lock.Lock()
	defer t.lock.Unlock()

	if _, ok := t.streams[mid]; ok {
		return nil, ErrStreamExists
	}
	s := newStream(mid, info, inbound, t.params.PacketBufferSize)
	t.streams[mid] = s
	return s, nil
}

func (t *LocalTransport) RemoveMediaStream(mid string) {
	t.lock.Lock()
	s := t.streams[mid]
	delete(t.streams, mid)
	t.lock.Unlock()

	if s != nil {
		s.close()
	}
}

// Stream returns the concrete stream bound to mid.
func (t *LocalTransport) Stream(mid string) (*Stream, error) {
	t.lock.Lock()
	defer t.lock.Unlock()

	s, ok := t.streams[mid]
	if !ok {
		return nil, ErrUnknownStream
	}
	return s, nil
}

func (t *LocalTransport) Close() {
	if t.closed.IsBroken() {
		return
	}
	t.closed.Break()

	t.lock.Lock()
	streams := t.streams
	t.streams = make(map[string]*Stream)
	t.lock.Unlock()

	for _, s := range streams {
		s.close()
	}
	t.emit(types.TransportFinished, "")
	t.events.Stop()
}
