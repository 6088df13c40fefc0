// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package logger

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type recordingSink struct {
	mu    sync.Mutex
	calls []string
}

func (s *recordingSink) Info(level int, msg string, keysAndValues ...interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, msg)
}

func (s *recordingSink) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

func TestLogger_PrintRespectsLevel(t *testing.T) {
	sink := &recordingSink{}
	l := New(sink, LevelInfo)
	defer l.Close()

	l.Print(LevelDebug, "batch sent", "n", 3)
	l.Print(LevelInfo, "ordered short-circuit", "index", 1)

	assert.Eventually(t, func() bool { return sink.len() == 1 }, time.Second, time.Millisecond)
}

func TestLogger_NilSinkIsNoop(t *testing.T) {
	l := New(nil, LevelDebug)
	defer l.Close()

	assert.NotPanics(t, func() {
		l.Print(LevelDebug, "batch sent")
	})
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, LevelInfo, ParseLevel("info"))
	assert.Equal(t, LevelOff, ParseLevel("nonsense"))
}
