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

	"go.uber.org/atomic"

	"github.com/maleRjc/rtc-stack/pkg/logger"
)

// Worker is one serial lane of a WorkerPool.
type Worker struct {
	*OpsQueue
	id   int
	load atomic.Int32
}

func (w *Worker) ID() int {
	return w.id
}

func (w *Worker) Load() int32 {
	return w.load.Load()
}

// Release gives back a slot taken by WorkerPool.Acquire
func (w *Worker) Release() {
	w.load.Dec()
}

type WorkerPool struct {
	lock    sync.Mutex
	workers []*Worker
}

func NewWorkerPool(name string, size int, l logger.Logger) *WorkerPool {
	if size < 1 {
		size = 1
	}
	if l == nil {
		l = logger.GetLogger()
	}
	p := &WorkerPool{}
	for i := 0; i < size; i++ {
		p.workers = append(p.workers, &Worker{
			OpsQueue: NewOpsQueue(OpsQueueParams{
				Name:   fmt.Sprintf("%s-%d", name, i),
				Logger: l,
			}),
			id: i,
		})
	}
	return p
}

func (p *WorkerPool) Start() {
	for _, w := range p.workers {
		w.Start()
	}
}

func (p *WorkerPool) Stop() {
	for _, w := range p.workers {
		w.Stop()
	}
}

func (p *WorkerPool) Size() int {
	return len(p.workers)
}

// Acquire picks the least loaded worker, ties go to the lowest id.
func (p *WorkerPool) Acquire() *Worker {
	p.lock.Lock()
	defer p.lock.Unlock()

	best := p.workers[0]
	for _, w := range p.workers[1:] {
		if w.Load() < best.Load() {
			best = w
		}
	}
	best.load.Inc()
	return best
}
