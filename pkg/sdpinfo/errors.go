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

package sdpinfo

import "errors"

var (
	ErrAlreadyInitialized = errors.New("session description already initialized")
	ErrInvalidInput       = errors.New("empty session description")
	ErrParseFailure       = errors.New("could not parse session description")
	ErrMissingField       = errors.New("media description is missing a required field")
	ErrDuplicatePayload   = errors.New("duplicate payload type in media description")
	ErrInvalidCandidate   = errors.New("invalid ice candidate")
)
