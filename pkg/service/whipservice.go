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

package service

import (
	"io"
	"net/http"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/pkg/errors"

	"github.com/maleRjc/rtc-stack/pkg/config"
	"github.com/maleRjc/rtc-stack/pkg/logger"
	"github.com/maleRjc/rtc-stack/pkg/rtc"
	"github.com/maleRjc/rtc-stack/pkg/rtc/types"
	"github.com/maleRjc/rtc-stack/pkg/telemetry/prometheus"
	"github.com/maleRjc/rtc-stack/pkg/utils"
)

const (
	cWHIPPath       = "/whip/v1"
	cWHEPPath       = "/whep/v1"
	cResourcePath   = "/{kind}/v1/{id}"
	cLinkPath       = "/link/v1/{from}/{to}"
	contentTypeSDP  = "application/sdp"
	contentTypeFrag = "application/trickle-ice-sdpfrag"
)

// WHIPService negotiates connections over plain HTTP: the offer is POSTed,
// the answer comes back in the response once candidates are gathered.
type WHIPService struct {
	config  *config.Config
	agent   Agent
	queue   *utils.SinkQueue
	answers *lru.Cache[string, string]
}

func NewWHIPService(conf *config.Config, agent Agent) (*WHIPService, error) {
	size := conf.Signal.AnswerCacheSize
	if size <= 0 {
		size = config.DefaultConfig.Signal.AnswerCacheSize
	}
	answers, err := lru.New[string, string](size)
	if err != nil {
		return nil, err
	}
	return &WHIPService{
		config:  conf,
		agent:   agent,
		queue:   utils.NewSinkQueue(),
		answers: answers,
	}, nil
}

func (s *WHIPService) SetupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST "+cWHIPPath, s.handleCreate(KindPublish))
	mux.HandleFunc("POST "+cWHEPPath, s.handleCreate(KindSubscribe))
	mux.HandleFunc("OPTIONS "+cWHIPPath, s.handleOptions)
	mux.HandleFunc("OPTIONS "+cWHEPPath, s.handleOptions)
	mux.HandleFunc("GET "+cResourcePath, s.handleGet)
	mux.HandleFunc("PATCH "+cResourcePath, s.handlePatch)
	mux.HandleFunc("DELETE "+cResourcePath, s.handleDelete)
	mux.HandleFunc("POST "+cLinkPath, s.handleLink)
	mux.HandleFunc("DELETE "+cLinkPath, s.handleLink)
}

func (s *WHIPService) Stop() {
	s.queue.Stop()
}

func (s *WHIPService) handleOptions(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Accept-Post", contentTypeSDP)
	w.WriteHeader(http.StatusNoContent)
}

func (s *WHIPService) handleCreate(kind string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		if r.Header.Get("Content-Type") != contentTypeSDP {
			s.handleError(kind, w, r, errors.Wrap(ErrUnsupportedContentType, r.Header.Get("Content-Type")))
			return
		}

		offer, err := io.ReadAll(r.Body)
		if err != nil || len(offer) == 0 {
			s.handleError(kind, w, r, ErrEmptyOffer)
			return
		}

		connectID := utils.NewGuid(idPrefix(kind))
		sess := newSession(connectID, kind, s.queue, nil)
		err = connect(s.agent, kind, types.Options{
			ConnectID: connectID,
			Tracks:    s.config.Tracks(),
			Sink:      sess,
		}, string(offer))
		if err != nil {
			s.handleError(kind, w, r, err)
			return
		}

		answer, err := s.waitForAnswer(r, sess)
		if err != nil {
			if derr := disconnect(s.agent, kind, connectID); derr != nil && !errors.Is(derr, rtc.ErrNotFound) {
				sess.logger.Warnw("could not remove connection", derr)
			}
			s.handleError(kind, w, r, err)
			return
		}
		s.answers.Add(connectID, answer)

		sess.logger.Infow("connection created", "duration", time.Since(start))
		prometheus.RecordServiceOperation("create_"+kind, "success", "")

		w.Header().Set("Content-Type", contentTypeSDP)
		w.Header().Set("Location", "/"+pathKind(kind)+"/v1/"+connectID)
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(answer))
	}
}

func (s *WHIPService) waitForAnswer(r *http.Request, sess *session) (string, error) {
	timer := time.NewTimer(s.config.Signal.AnswerTimeout)
	defer timer.Stop()

	select {
	case answer := <-sess.answer:
		return answer, nil
	case reason := <-sess.failed:
		return "", errors.Wrap(ErrConnectionFailed, reason)
	case <-timer.C:
		return "", ErrAnswerTimeout
	case <-r.Context().Done():
		return "", r.Context().Err()
	}
}

func (s *WHIPService) handleGet(w http.ResponseWriter, r *http.Request) {
	if _, err := kindFromPath(r.PathValue("kind")); err != nil {
		s.handleError("get", w, r, err)
		return
	}
	answer, ok := s.answers.Get(r.PathValue("id"))
	if !ok {
		s.handleError("get", w, r, ErrAnswerNotFound)
		return
	}
	w.Header().Set("Content-Type", contentTypeSDP)
	_, _ = w.Write([]byte(answer))
}

// handlePatch applies a trickle ICE fragment.
func (s *WHIPService) handlePatch(w http.ResponseWriter, r *http.Request) {
	if _, err := kindFromPath(r.PathValue("kind")); err != nil {
		s.handleError("patch", w, r, err)
		return
	}
	connectID := r.PathValue("id")

	body, err := io.ReadAll(r.Body)
	if err != nil {
		s.handleError("patch", w, r, err)
		return
	}
	for _, candidate := range trickleCandidates(string(body)) {
		if err := s.agent.Signal(connectID, rtc.SignalCandidate, candidate); err != nil {
			s.handleError("patch", w, r, err)
			return
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *WHIPService) handleDelete(w http.ResponseWriter, r *http.Request) {
	kind, err := kindFromPath(r.PathValue("kind"))
	if err != nil {
		s.handleError("delete", w, r, err)
		return
	}
	connectID := r.PathValue("id")
	if err := disconnect(s.agent, kind, connectID); err != nil {
		s.handleError("delete", w, r, err)
		return
	}
	s.answers.Remove(connectID)
	prometheus.RecordServiceOperation("delete_"+kind, "success", "")
	w.WriteHeader(http.StatusOK)
}

func (s *WHIPService) handleLink(w http.ResponseWriter, r *http.Request) {
	from, to := r.PathValue("from"), r.PathValue("to")

	var err error
	if r.Method == http.MethodDelete {
		err = s.agent.Cutoff(from, to)
	} else {
		err = s.agent.Linkup(from, to)
	}
	if err != nil {
		s.handleError("link", w, r, err)
		return
	}
	logger.Infow("link updated", "method", r.Method, "from", from, "to", to)
	w.WriteHeader(http.StatusNoContent)
}

func (s *WHIPService) handleError(op string, w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	prometheus.RecordServiceOperation(op, "error", rtc.CodeFor(err).String())
	handleError(w, r, status, err, "operation", op)
}

func pathKind(kind string) string {
	if kind == KindSubscribe {
		return "whep"
	}
	return "whip"
}

func idPrefix(kind string) string {
	if kind == KindSubscribe {
		return utils.SubscribePrefix
	}
	return utils.PublishPrefix
}

func kindFromPath(segment string) (string, error) {
	switch segment {
	case "whip":
		return KindPublish, nil
	case "whep":
		return KindSubscribe, nil
	default:
		return "", errors.Wrap(ErrUnknownKind, segment)
	}
}
