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

package logger

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestWarnwAttachesError(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := NewZapLogger(zap.New(core), zapcore.DebugLevel).WithValues("connectID", "c1")

	l.Warnw("bad offer", errors.New("boom"), "mid", "0")

	entries := logs.All()
	require.Len(t, entries, 1)
	ctx := entries[0].ContextMap()
	require.Equal(t, "c1", ctx["connectID"])
	require.Equal(t, "0", ctx["mid"])
	require.Equal(t, "boom", ctx["error"])
}

func TestLoggerFactoryGatesLevel(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := NewZapLogger(zap.New(core), zapcore.InfoLevel)

	pl := NewLoggerFactory(l).NewLogger("transport")
	pl.Debug("hidden")
	pl.Infof("gathered %d candidates", 2)
	pl.Errorf("failed: %s", "timeout")

	entries := logs.All()
	require.Len(t, entries, 2)
	require.Equal(t, "gathered 2 candidates", entries[0].Message)
	require.Equal(t, "transport", entries[0].LoggerName)
	require.Equal(t, zapcore.ErrorLevel, entries[1].Level)
}

func TestInitFromConfig(t *testing.T) {
	prev := GetLogger()
	defer SetLogger(prev)

	require.Error(t, InitFromConfig(Config{Level: "loud"}, "test"))
	require.NoError(t, InitFromConfig(Config{Level: "warn", JSON: true}, "test"))
	require.Equal(t, zapcore.WarnLevel, GetLogger().Level())
}
