// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package logger

const jobBufferSize = 100

// LogSink represents a logging implementation. It is specifically designed
// to be a subset of go-logr/logr's LogSink interface so any logr-compatible
// sink (zap, zerolog, logrus wrappers) plugs in without an adapter.
type LogSink interface {
	Info(level int, msg string, keysAndValues ...interface{})
}

type job struct {
	level         Level
	msg           string
	keysAndValues []interface{}
}

// Logger buffers write-command progress messages and hands them to a
// LogSink on a background goroutine, so a slow or blocking sink never stalls
// the synchronous batch loop driving the write.
type Logger struct {
	Level Level
	Sink  LogSink

	jobs chan job
}

// New constructs a Logger at the given level. A nil sink means Print is a
// no-op: callers are not required to check Level themselves.
func New(sink LogSink, level Level) *Logger {
	l := &Logger{
		Level: level,
		Sink:  sink,
		jobs:  make(chan job, jobBufferSize),
	}
	l.start()
	return l
}

func (l *Logger) start() {
	go func() {
		for j := range l.jobs {
			if l.Sink == nil || j.level > l.Level {
				continue
			}
			l.Sink.Info(int(j.level)-DiffToInfo, j.msg, j.keysAndValues...)
		}
	}()
}

// Print enqueues a message at the given level. Non-blocking: if the job
// buffer is full the message is dropped rather than stalling the caller.
func (l *Logger) Print(level Level, msg string, keysAndValues ...interface{}) {
	if l == nil || l.Sink == nil || level > l.Level {
		return
	}
	select {
	case l.jobs <- job{level: level, msg: msg, keysAndValues: keysAndValues}:
	default:
	}
}

// Close stops the background delivery goroutine. Safe to call once.
func (l *Logger) Close() {
	if l == nil {
		return
	}
	close(l.jobs)
}
