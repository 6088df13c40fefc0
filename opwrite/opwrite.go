// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

// Package opwrite executes a command using the modern write-command
// protocol (insert/update/delete commands carried over the wire as BSON
// documents), splitting it into as many batches as the server's limits
// demand.
package opwrite

import (
	"context"
	"sync/atomic"

	"go.mongodb.org/mongo-driver/v2/x/bsonx/bsoncore"

	"github.com/shardwell/mwrite/batch"
	"github.com/shardwell/mwrite/command"
	"github.com/shardwell/mwrite/driver"
	"github.com/shardwell/mwrite/internal/logger"
	"github.com/shardwell/mwrite/werror"
	"github.com/shardwell/mwrite/wireop"
	"github.com/shardwell/mwrite/writeconcern"
	"github.com/shardwell/mwrite/writeresult"
)

var requestCounter int64

func nextRequestID() int32 {
	return int32(atomic.AddInt64(&requestCounter, 1))
}

// Executor runs a Command using the command protocol.
type Executor struct {
	Log *logger.Logger
}

// New constructs a command-protocol Executor. log may be nil.
func New(log *logger.Logger) *Executor {
	return &Executor{Log: log}
}

func (e *Executor) logf(level logger.Level, msg string, kv ...interface{}) {
	if e.Log == nil {
		return
	}
	e.Log.Print(level, msg, kv...)
}

// Execute splits cmd into batches sized to conn's advertised limits, sends
// each as a write command, and folds every reply into acc. For an
// unacknowledged write the batches are fired without waiting for replies,
// in a background goroutine.
func (e *Executor) Execute(ctx context.Context, conn driver.Connection, cmd *command.Command, wc *writeconcern.WriteConcern, acc *writeresult.Accumulator) error {
	desc := conn.Description()
	planner := batch.New(desc.Limits)

	batches, err := splitBatches(planner, cmd.Payload)
	if err != nil {
		return err
	}

	if !writeconcern.AckWrite(wc) {
		go func() {
			defer func() { _ = recover() }()
			_ = sendBatches(ctx, conn, cmd, wc, batches, writeresult.New(), e, false)
		}()
		return nil
	}

	return sendBatches(ctx, conn, cmd, wc, batches, acc, e, true)
}

// opBatch is one contiguous run of the command's payload destined for a
// single write command, or a single clause rejected by the planner as
// too large to ever send.
type opBatch struct {
	docs     []bsoncore.Document
	offset   uint32
	tooLarge *werror.Error
}

// splitBatches groups cmd's payload into contiguous runs that each satisfy
// the planner's overflow predicate, never silently forcing an oversized
// clause into its own batch: a clause that alone exceeds max_bson_obj_size
// is reported as its own too-large batch instead.
func splitBatches(p *batch.Planner, payload []bsoncore.Document) ([]opBatch, error) {
	if len(payload) == 0 {
		return nil, nil
	}

	var batches []opBatch
	start := 0
	for start < len(payload) {
		if tl, ok := p.TooLarge(uint32(start), int32(len(payload[start]))); ok {
			batches = append(batches, opBatch{offset: uint32(start), tooLarge: tl})
			start++
			continue
		}

		var size int32
		end := start
		for end < len(payload) {
			clauseLen := int32(len(payload[end]))
			if _, ok := p.TooLarge(uint32(end), clauseLen); ok {
				break
			}
			if p.WouldOverflow(size, clauseLen, uint32(end-start)) {
				break
			}
			size += clauseLen
			end++
		}
		if end == start {
			end = start + 1
		}
		batches = append(batches, opBatch{docs: payload[start:end], offset: uint32(start)})
		start = end
	}
	return batches, nil
}

func sendBatches(ctx context.Context, conn driver.Connection, cmd *command.Command, wc *writeconcern.WriteConcern, batches []opBatch, acc *writeresult.Accumulator, e *Executor, acknowledged bool) error {
	for _, b := range batches {
		if b.tooLarge != nil {
			acc.AppendTooLarge(b.tooLarge)
			if cmd.Ordered {
				e.logf(logger.LevelDebug, "ordered command batch hit a too-large document, stopping", "offset", b.offset)
				return nil
			}
			continue
		}

		doc := buildCommandDoc(cmd, b.docs, wc)
		msg := wireop.BuildCommand(nextRequestID(), cmd.NS.DB, doc)

		if err := conn.WriteWireMessage(ctx, msg); err != nil {
			return werror.Transport(err)
		}

		if acknowledged {
			raw, err := conn.ReadWireMessage(ctx)
			if err != nil {
				return werror.Transport(err)
			}
			reply, err := wireop.ParseReply(raw)
			if err != nil {
				return werror.Transport(err)
			}
			replyDoc, err := wireop.SingleDoc(reply)
			if err != nil {
				return werror.Transport(err)
			}
			if err := acc.Merge(cmd.Kind, replyDoc, b.offset); err != nil {
				return err
			}
			if cmd.Ordered && acc.Failed {
				e.logf(logger.LevelDebug, "ordered command batch failed, stopping", "offset", b.offset)
				return nil
			}
		}
	}
	return nil
}

func buildCommandDoc(cmd *command.Command, docs []bsoncore.Document, wc *writeconcern.WriteConcern) bsoncore.Document {
	idx, doc := bsoncore.AppendDocumentStart(nil)
	doc = bsoncore.AppendStringElement(doc, cmd.Kind.String(), cmd.NS.Collection)

	aidx, arr := bsoncore.AppendArrayStart(nil)
	for i, d := range docs {
		arr = bsoncore.AppendDocumentElement(arr, itoa(i), d)
	}
	arrDoc, _ := bsoncore.AppendArrayEnd(arr, aidx)
	doc = bsoncore.AppendArrayElement(doc, cmd.Kind.OpField(), arrDoc)

	doc = bsoncore.AppendBooleanElement(doc, "ordered", cmd.Ordered)

	wcDoc := wc.Document()
	if len(wcDoc) > 5 { // more than just the empty-document terminator
		doc = bsoncore.AppendDocumentElement(doc, "writeConcern", wcDoc)
	}

	built, err := bsoncore.AppendDocumentEnd(doc, idx)
	if err != nil {
		built = []byte{5, 0, 0, 0, 0}
	}
	return bsoncore.Document(built)
}

func itoa(i int) string {
	if i == 0 {
		return "0"
	}
	digits := "0123456789"
	var buf [20]byte
	pos := len(buf)
	for i > 0 {
		pos--
		buf[pos] = digits[i%10]
		i /= 10
	}
	return string(buf[pos:])
}
