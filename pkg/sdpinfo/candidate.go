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

import (
	"fmt"
	"strings"

	"github.com/pion/ice/v2"
	"github.com/pion/sdp/v3"
	"github.com/pkg/errors"
)

type Candidate struct {
	Foundation string
	Component  uint16
	Transport  string
	Priority   uint32
	IP         string
	Port       int
	// host, srflx, prflx or relay
	Type string
}

// ParseCandidate reads the value of an a=candidate attribute.
func ParseCandidate(value string) (Candidate, error) {
	c, err := ice.UnmarshalCandidate(value)
	if err != nil {
		return Candidate{}, errors.Wrap(ErrInvalidCandidate, err.Error())
	}
	// transport keeps the offered spelling so the line round-trips
	transport := c.NetworkType().NetworkShort()
	if fields := strings.Fields(value); len(fields) > 2 && strings.EqualFold(fields[2], transport) {
		transport = fields[2]
	}
	return Candidate{
		Foundation: c.Foundation(),
		Component:  c.Component(),
		Transport:  transport,
		Priority:   c.Priority(),
		IP:         c.Address(),
		Port:       c.Port(),
		Type:       c.Type().String(),
	}, nil
}

func (c Candidate) Marshal() string {
	return fmt.Sprintf("%s %d %s %d %s %d typ %s",
		c.Foundation, c.Component, c.Transport, c.Priority, c.IP, c.Port, c.Type)
}

func (c Candidate) Attribute() sdp.Attribute {
	return sdp.NewAttribute(sdp.AttrKeyCandidate, c.Marshal())
}
