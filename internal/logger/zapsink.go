// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package logger

import "go.uber.org/zap"

// ZapSink adapts a *zap.SugaredLogger to the LogSink interface, following
// the same shape the driver's examples/_logger/zap integration targets.
type ZapSink struct {
	l *zap.SugaredLogger
}

// NewZapSink wraps the given zap logger as a LogSink. A nil logger falls
// back to zap.NewNop().
func NewZapSink(l *zap.Logger) *ZapSink {
	if l == nil {
		l = zap.NewNop()
	}
	return &ZapSink{l: l.Sugar()}
}

// Info implements LogSink. Levels above 0 after DiffToInfo subtraction
// (LevelDebug) are logged at zap's Debug level; everything else at Info.
func (s *ZapSink) Info(level int, msg string, keysAndValues ...interface{}) {
	if level > 0 {
		s.l.Debugw(msg, keysAndValues...)
		return
	}
	s.l.Infow(msg, keysAndValues...)
}
