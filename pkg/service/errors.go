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
	"net/http"

	"github.com/pkg/errors"

	"github.com/maleRjc/rtc-stack/pkg/rtc"
)

var (
	ErrUnsupportedContentType = errors.New("unsupported content-type")
	ErrEmptyOffer             = errors.New("body does not have SDP offer")
	ErrUnknownKind            = errors.New("unknown connection kind")
	ErrAnswerTimeout          = errors.New("timed out waiting for answer")
	ErrConnectionFailed       = errors.New("connection failed")
	ErrAnswerNotFound         = errors.New("answer does not exist")
	ErrInvalidMessageType     = errors.New("invalid message type")
	ErrAlreadyRunning         = errors.New("already running")
)

// statusFor maps agent errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrUnsupportedContentType):
		return http.StatusUnsupportedMediaType
	case errors.Is(err, ErrEmptyOffer), errors.Is(err, ErrUnknownKind), errors.Is(err, ErrInvalidMessageType):
		return http.StatusBadRequest
	case errors.Is(err, ErrConnectionFailed):
		// failures before the answer come from the offer
		return http.StatusBadRequest
	case errors.Is(err, ErrAnswerTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, ErrAnswerNotFound):
		return http.StatusNotFound
	case errors.Is(err, rtc.ErrNotInitialized):
		return http.StatusServiceUnavailable
	}

	switch rtc.CodeFor(err) {
	case rtc.ResultInvalidParam, rtc.ResultParseOfferFailed:
		return http.StatusBadRequest
	case rtc.ResultFound:
		return http.StatusConflict
	case rtc.ResultNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
