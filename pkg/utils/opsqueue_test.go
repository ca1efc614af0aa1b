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
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestOpsQueueOrder(t *testing.T) {
	oq := NewOpsQueue(OpsQueueParams{Name: "test"})
	oq.Start()

	var (
		lock sync.Mutex
		got  []int
	)
	done := make(chan struct{})
	for i := 0; i < 100; i++ {
		i := i
		oq.Enqueue(func() {
			lock.Lock()
			got = append(got, i)
			lock.Unlock()
			if i == 99 {
				close(done)
			}
		})
	}

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("ops did not run")
	}
	oq.Stop()

	require.Len(t, got, 100)
	for i, v := range got {
		require.Equal(t, i, v)
	}
}

func TestOpsQueueSurvivesPanic(t *testing.T) {
	oq := NewOpsQueue(OpsQueueParams{Name: "panic"})
	oq.Start()
	defer oq.Stop()

	ran := make(chan struct{})
	oq.Enqueue(func() { panic("boom") })
	oq.Enqueue(func() { close(ran) })

	select {
	case <-ran:
	case <-time.After(5 * time.Second):
		t.Fatal("queue stopped after panic")
	}
}

func TestOpsQueueDrainsOnStop(t *testing.T) {
	oq := NewOpsQueue(OpsQueueParams{Name: "drain"})
	count := 0
	for i := 0; i < 10; i++ {
		oq.Enqueue(func() { count++ })
	}
	oq.Start()
	oq.Stop()
	require.Equal(t, 10, count)

	oq.Enqueue(func() { count++ })
	require.Zero(t, oq.Len())
	require.Equal(t, 10, count)
}
