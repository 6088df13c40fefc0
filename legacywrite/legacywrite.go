// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

// Package legacywrite executes a command against a server using the
// legacy OP_INSERT/OP_UPDATE/OP_DELETE opcodes, following each with a
// getLastError query when the write concern is acknowledged.
package legacywrite

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/shardwell/mwrite/batch"
	"github.com/shardwell/mwrite/bsonenc"
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

// Executor runs a Command over the legacy wire opcodes.
type Executor struct {
	Log *logger.Logger
}

// New constructs a legacy-opcode Executor. log may be nil.
func New(log *logger.Logger) *Executor {
	return &Executor{Log: log}
}

func (e *Executor) logf(level logger.Level, msg string, kv ...interface{}) {
	if e.Log == nil {
		return
	}
	e.Log.Print(level, msg, kv...)
}

// Execute runs cmd's clauses against conn, acknowledging each sent message
// (one insert batch, or one update or delete clause) with getLastError when
// wc requires it, and folds the results into acc. Execution stops early
// once cmd.Ordered is true and a clause has failed. A namespace longer than
// command.MaxNamespaceLen is rejected before anything is sent.
func (e *Executor) Execute(ctx context.Context, conn driver.Connection, cmd *command.Command, wc *writeconcern.WriteConcern, acc *writeresult.Accumulator) error {
	if len(cmd.NS.FullName()) > command.MaxNamespaceLen {
		return werror.InvalidArg("namespace is too long for a legacy-opcode write: " + cmd.NS.FullName())
	}
	switch cmd.Kind {
	case command.Insert:
		return e.executeInsert(ctx, conn, cmd, wc, acc)
	case command.Update:
		return e.executeUpdate(ctx, conn, cmd, wc, acc)
	case command.Delete:
		return e.executeDelete(ctx, conn, cmd, wc, acc)
	default:
		return fmt.Errorf("legacywrite: unknown command kind %v", cmd.Kind)
	}
}

func (e *Executor) executeInsert(ctx context.Context, conn driver.Connection, cmd *command.Command, wc *writeconcern.WriteConcern, acc *writeresult.Accumulator) error {
	desc := conn.Description()
	planner := batch.New(desc.Limits)

	offset := uint32(0)
	for offset < cmd.NDocuments() {
		start := offset

		docs, next, tooLarge := sliceInsertBatch(planner, cmd.Payload, offset, cmd.AllowBulkOpInsert)
		offset = next

		if tooLarge != nil {
			acc.AppendTooLarge(tooLarge)
			if cmd.Ordered {
				e.logf(logger.LevelDebug, "ordered legacy insert hit a too-large document, stopping", "index", start)
				return nil
			}
			continue
		}

		msg := wireop.BuildInsert(nextRequestID(), cmd.NS.FullName(), !cmd.Ordered, docs)
		if err := conn.WriteWireMessage(ctx, msg); err != nil {
			return werror.Transport(err)
		}

		if writeconcern.AckWrite(wc) {
			reply, err := roundTripGetLastError(ctx, conn, cmd.NS.DB, wc)
			if err != nil {
				return err
			}
			legacy := decodeInsertReply(reply)
			_ = acc.MergeLegacy(cmd, start, uint32(len(docs)), legacy, start)
			if cmd.Ordered && legacy.HasError() {
				e.logf(logger.LevelDebug, "ordered legacy insert batch failed, stopping", "index", start)
				return nil
			}
		}
	}
	return nil
}

func (e *Executor) executeUpdate(ctx context.Context, conn driver.Connection, cmd *command.Command, wc *writeconcern.WriteConcern, acc *writeresult.Accumulator) error {
	for i, clause := range cmd.Payload {
		selector, update, upsert, multi, err := decodeUpdateClause(clause)
		if err != nil {
			return err
		}

		if !bsonenc.FirstFieldIsOperator(update) {
			if err := bsonenc.ValidateReplacementDoc(update); err != nil {
				return werror.BsonInvalid(err.Error())
			}
		}

		msg := wireop.BuildUpdate(nextRequestID(), cmd.NS.FullName(), upsert, multi, selector, update)
		if err := conn.WriteWireMessage(ctx, msg); err != nil {
			return werror.Transport(err)
		}

		if writeconcern.AckWrite(wc) {
			reply, err := roundTripGetLastError(ctx, conn, cmd.NS.DB, wc)
			if err != nil {
				return err
			}
			legacy := decodeUpdateReply(reply)
			_ = acc.MergeLegacy(cmd, uint32(i), 1, legacy, uint32(i))
			if cmd.Ordered && legacy.HasError() {
				e.logf(logger.LevelDebug, "ordered legacy update clause failed, stopping", "index", i)
				return nil
			}
		}
	}
	return nil
}

func (e *Executor) executeDelete(ctx context.Context, conn driver.Connection, cmd *command.Command, wc *writeconcern.WriteConcern, acc *writeresult.Accumulator) error {
	for i, clause := range cmd.Payload {
		selector, singleRemove, err := decodeDeleteClause(clause)
		if err != nil {
			return err
		}

		msg := wireop.BuildDelete(nextRequestID(), cmd.NS.FullName(), singleRemove, selector)
		if err := conn.WriteWireMessage(ctx, msg); err != nil {
			return werror.Transport(err)
		}

		if writeconcern.AckWrite(wc) {
			reply, err := roundTripGetLastError(ctx, conn, cmd.NS.DB, wc)
			if err != nil {
				return err
			}
			legacy := decodeDeleteReply(reply)
			_ = acc.MergeLegacy(cmd, uint32(i), 1, legacy, uint32(i))
			if cmd.Ordered && legacy.HasError() {
				e.logf(logger.LevelDebug, "ordered legacy delete clause failed, stopping", "index", i)
				return nil
			}
		}
	}
	return nil
}

func roundTripGetLastError(ctx context.Context, conn driver.Connection, db string, wc *writeconcern.WriteConcern) (wireop.Reply, error) {
	msg := wireop.BuildGetLastError(nextRequestID(), db, wc.Document())
	if err := conn.WriteWireMessage(ctx, msg); err != nil {
		return wireop.Reply{}, werror.Transport(err)
	}
	raw, err := conn.ReadWireMessage(ctx)
	if err != nil {
		return wireop.Reply{}, werror.Transport(err)
	}
	reply, err := wireop.ParseReply(raw)
	if err != nil {
		return wireop.Reply{}, werror.Transport(err)
	}
	return reply, nil
}
