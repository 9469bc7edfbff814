// Copyright 2021 - 2023 Matrix Origin
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package logging builds the zap.Logger every other package logs
// through. A LogPath in config.RuntimeConfig routes output through a
// rotated lumberjack sink; an empty path logs to stderr.
package logging

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Options configures New. The zero value logs JSON at info level to
// stderr.
type Options struct {
	Path       string
	Level      string
	MaxSizeMB  int
	MaxAgeDays int
}

// New builds a zap.Logger per Options.
func New(opts Options) (*zap.Logger, error) {
	level := zap.NewAtomicLevel()
	if opts.Level != "" {
		if err := level.UnmarshalText([]byte(opts.Level)); err != nil {
			return nil, err
		}
	}

	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "ts"
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encoder := zapcore.NewJSONEncoder(encoderCfg)

	sink := zapcore.AddSync(newWriteSyncer(opts))
	core := zapcore.NewCore(encoder, sink, level)

	return zap.New(core, zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel)), nil
}

func newWriteSyncer(opts Options) zapcore.WriteSyncer {
	if opts.Path == "" {
		return zapcore.Lock(os.Stderr)
	}
	return zapcore.AddSync(&lumberjack.Logger{
		Filename: opts.Path,
		MaxSize:  maxOr(opts.MaxSizeMB, 100),
		MaxAge:   maxOr(opts.MaxAgeDays, 28),
		Compress: true,
	})
}

func maxOr(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
