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
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestWorkerPoolLeastLoaded(t *testing.T) {
	p := NewWorkerPool("test", 3, nil)
	require.Equal(t, 3, p.Size())

	w0 := p.Acquire()
	w1 := p.Acquire()
	w2 := p.Acquire()
	require.ElementsMatch(t, []int{0, 1, 2}, []int{w0.ID(), w1.ID(), w2.ID()})

	w1.Release()
	require.Equal(t, w1.ID(), p.Acquire().ID())

	next := p.Acquire()
	require.Equal(t, int32(2), next.Load())
}

func TestWorkerPoolZeroSize(t *testing.T) {
	p := NewWorkerPool("test", 0, nil)
	require.Equal(t, 1, p.Size())

	p.Start()
	defer p.Stop()

	done := make(chan struct{})
	p.Acquire().Enqueue(func() { close(done) })
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("worker did not run task")
	}
}

func TestSinkQueue(t *testing.T) {
	q := NewSinkQueue()
	var got []string
	q.Post(func() { got = append(got, "a") })
	q.Post(func() { got = append(got, "b") })
	q.Stop()
	require.Equal(t, []string{"a", "b"}, got)
}
