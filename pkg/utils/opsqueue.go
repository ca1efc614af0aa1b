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

package utils

import (
	"fmt"
	"sync"

	"github.com/frostbyte73/core"
	"github.com/gammazero/deque"

	"github.com/maleRjc/rtc-stack/pkg/logger"
)

type OpsQueueParams struct {
	Name   string
	Logger logger.Logger
}

// OpsQueue runs queued closures one at a time in posting order.
type OpsQueue struct {
	params OpsQueueParams

	lock      sync.Mutex
	ops       *deque.Deque[func()]
	wake      chan struct{}
	isStarted bool
	stop      core.Fuse
	stopped   chan struct{}
}

func NewOpsQueue(params OpsQueueParams) *OpsQueue {
	if params.Logger == nil {
		params.Logger = logger.GetLogger()
	}
	return &OpsQueue{
		params:  params,
		ops:     deque.New[func()](),
		wake:    make(chan struct{}, 1),
		stopped: make(chan struct{}),
	}
}

func (oq *OpsQueue) Start() {
	oq.lock.Lock()
	if oq.isStarted {
		oq.lock.Unlock()
		return
	}
	oq.isStarted = true
	oq.lock.Unlock()

	go oq.process()
}

// Stop drains already queued ops and waits for the processing goroutine to exit.
func (oq *OpsQueue) Stop() {
	oq.lock.Lock()
	started := oq.isStarted
	oq.lock.Unlock()

	oq.stop.Break()
	if started {
		<-oq.stopped
	}
}

func (oq *OpsQueue) Enqueue(op func()) {
	if oq.stop.IsBroken() {
		return
	}

	oq.lock.Lock()
	oq.ops.PushBack(op)
	oq.lock.Unlock()

	select {
	case oq.wake <- struct{}{}:
	default:
	}
}

func (oq *OpsQueue) Len() int {
	oq.lock.Lock()
	defer oq.lock.Unlock()
	return oq.ops.Len()
}

func (oq *OpsQueue) process() {
	defer close(oq.stopped)

	for {
		select {
		case <-oq.wake:
		case <-oq.stop.Watch():
		}

		for {
			oq.lock.Lock()
			if oq.ops.Len() == 0 {
				oq.lock.Unlock()
				break
			}
			op := oq.ops.PopFront()
			oq.lock.Unlock()

			oq.run(op)
		}

		if oq.stop.IsBroken() {
			return
		}
	}
}

func (oq *OpsQueue) run(op func()) {
	defer func() {
		if r := recover(); r != nil {
			oq.params.Logger.Errorw("ops queue task panicked", fmt.Errorf("%v", r), "name", oq.params.Name)
		}
	}()
	op()
}
