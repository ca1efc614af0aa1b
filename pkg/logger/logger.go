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
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type Logger interface {
	Debugw(msg string, keysAndValues ...interface{})
	Infow(msg string, keysAndValues ...interface{})
	Warnw(msg string, err error, keysAndValues ...interface{})
	Errorw(msg string, err error, keysAndValues ...interface{})
	WithValues(keysAndValues ...interface{}) Logger
	WithName(name string) Logger
	// Level is the minimum level this logger emits
	Level() zapcore.Level
}

type Config struct {
	JSON   bool   `yaml:"json,omitempty"`
	Level  string `yaml:"level,omitempty"`
	Sample bool   `yaml:"sample,omitempty"`
}

var (
	defaultLogger Logger = NewZapLogger(zap.NewNop(), zapcore.InfoLevel)
	loggerLock    sync.RWMutex
)

type zapLogger struct {
	zap   *zap.SugaredLogger
	level zapcore.Level
}

func NewZapLogger(l *zap.Logger, level zapcore.Level) Logger {
	return &zapLogger{
		zap:   l.Sugar(),
		level: level,
	}
}

func (l *zapLogger) Debugw(msg string, keysAndValues ...interface{}) {
	l.zap.Debugw(msg, keysAndValues...)
}

func (l *zapLogger) Infow(msg string, keysAndValues ...interface{}) {
	l.zap.Infow(msg, keysAndValues...)
}

func (l *zapLogger) Warnw(msg string, err error, keysAndValues ...interface{}) {
	if err != nil {
		keysAndValues = append(keysAndValues, "error", err)
	}
	l.zap.Warnw(msg, keysAndValues...)
}

func (l *zapLogger) Errorw(msg string, err error, keysAndValues ...interface{}) {
	if err != nil {
		keysAndValues = append(keysAndValues, "error", err)
	}
	l.zap.Errorw(msg, keysAndValues...)
}

func (l *zapLogger) WithValues(keysAndValues ...interface{}) Logger {
	return &zapLogger{
		zap:   l.zap.With(keysAndValues...),
		level: l.level,
	}
}

func (l *zapLogger) WithName(name string) Logger {
	return &zapLogger{
		zap:   l.zap.Named(name),
		level: l.level,
	}
}

func (l *zapLogger) Level() zapcore.Level {
	return l.level
}

// InitFromConfig replaces the default logger.
// valid levels: debug, info, warn, error, fatal, panic
func InitFromConfig(conf Config, name string) error {
	var zc zap.Config
	if conf.JSON {
		zc = zap.NewProductionConfig()
	} else {
		zc = zap.NewDevelopmentConfig()
	}
	if !conf.Sample {
		zc.Sampling = nil
	}

	lvl := zapcore.InfoLevel
	if conf.Level != "" {
		if err := lvl.UnmarshalText([]byte(conf.Level)); err != nil {
			return err
		}
	}
	zc.Level = zap.NewAtomicLevelAt(lvl)

	l, err := zc.Build(zap.AddCallerSkip(1))
	if err != nil {
		return err
	}
	SetLogger(NewZapLogger(l.Named(name), lvl))
	return nil
}

func SetLogger(l Logger) {
	loggerLock.Lock()
	defaultLogger = l
	loggerLock.Unlock()
}

func GetLogger() Logger {
	loggerLock.RLock()
	defer loggerLock.RUnlock()
	return defaultLogger
}

func Debugw(msg string, keysAndValues ...interface{}) {
	GetLogger().Debugw(msg, keysAndValues...)
}

func Infow(msg string, keysAndValues ...interface{}) {
	GetLogger().Infow(msg, keysAndValues...)
}

func Warnw(msg string, err error, keysAndValues ...interface{}) {
	GetLogger().Warnw(msg, err, keysAndValues...)
}

func Errorw(msg string, err error, keysAndValues ...interface{}) {
	GetLogger().Errorw(msg, err, keysAndValues...)
}
