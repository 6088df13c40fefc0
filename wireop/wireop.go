// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

// Package wireop builds and parses the legacy MongoDB wire protocol
// opcodes (OP_INSERT, OP_UPDATE, OP_DELETE, OP_QUERY, OP_REPLY) the
// Legacy-Opcode Executor speaks. A driver.Connection exchanges these as
// opaque byte slices via WriteWireMessage/ReadWireMessage, so callers never
// see the wire format directly.
package wireop

import (
	"encoding/binary"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/x/bsonx/bsoncore"
)

// Opcode values from the MongoDB wire protocol.
const (
	OpReply  int32 = 1
	OpUpdate int32 = 2001
	OpInsert int32 = 2002
	OpQuery  int32 = 2004
	OpDelete int32 = 2006
)

// Insert flag bits.
const (
	insertContinueOnError uint32 = 1 << 0
)

// Update flag bits.
const (
	updateUpsert uint32 = 1 << 0
	updateMulti  uint32 = 1 << 1
)

// Delete flag bits.
const (
	deleteSingleRemove uint32 = 1 << 0
)

// Query flag bits; getLastError never needs more than the zero value.
const queryFlags uint32 = 0

func appendHeader(dst []byte, requestID, responseTo, opcode int32) []byte {
	dst = appendInt32(dst, 0)
	dst = appendInt32(dst, requestID)
	dst = appendInt32(dst, responseTo)
	return appendInt32(dst, opcode)
}

func appendInt32(dst []byte, v int32) []byte {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], uint32(v))
	return append(dst, b[:]...)
}

func appendInt64(dst []byte, v int64) []byte {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], uint64(v))
	return append(dst, b[:]...)
}

func appendCString(dst []byte, s string) []byte {
	dst = append(dst, s...)
	return append(dst, 0)
}

func finalizeLength(msg []byte) []byte {
	binary.LittleEndian.PutUint32(msg[0:4], uint32(len(msg)))
	return msg
}

// BuildInsert constructs an OP_INSERT message carrying docs against the
// given namespace. continueOnError corresponds to an unordered write: the
// server keeps processing later documents in the same batch after a
// failure instead of stopping.
func BuildInsert(requestID int32, ns string, continueOnError bool, docs []bsoncore.Document) []byte {
	msg := appendHeader(nil, requestID, 0, OpInsert)
	var flags uint32
	if continueOnError {
		flags |= insertContinueOnError
	}
	msg = appendInt32(msg, int32(flags))
	msg = appendCString(msg, ns)
	for _, doc := range docs {
		msg = append(msg, doc...)
	}
	return finalizeLength(msg)
}

// BuildUpdate constructs an OP_UPDATE message for a single clause.
func BuildUpdate(requestID int32, ns string, upsert, multi bool, selector, update bsoncore.Document) []byte {
	msg := appendHeader(nil, requestID, 0, OpUpdate)
	msg = appendInt32(msg, 0) // reserved
	msg = appendCString(msg, ns)
	var flags uint32
	if upsert {
		flags |= updateUpsert
	}
	if multi {
		flags |= updateMulti
	}
	msg = appendInt32(msg, int32(flags))
	msg = append(msg, selector...)
	msg = append(msg, update...)
	return finalizeLength(msg)
}

// BuildDelete constructs an OP_DELETE message for a single clause.
// singleRemove mirrors Multi==false (remove at most one match).
func BuildDelete(requestID int32, ns string, singleRemove bool, selector bsoncore.Document) []byte {
	msg := appendHeader(nil, requestID, 0, OpDelete)
	msg = appendInt32(msg, 0) // reserved
	msg = appendCString(msg, ns)
	var flags uint32
	if singleRemove {
		flags |= deleteSingleRemove
	}
	msg = appendInt32(msg, int32(flags))
	msg = append(msg, selector...)
	return finalizeLength(msg)
}

// BuildGetLastError constructs the OP_QUERY that fetches the result of the
// immediately preceding legacy write, carrying the acknowledgement-level
// write concern fields the caller already rendered into cmdExtra (w, j,
// wtimeout).
func BuildGetLastError(requestID int32, db string, cmdExtra bsoncore.Document) []byte {
	idx, cmd := bsoncore.AppendDocumentStart(nil)
	cmd = bsoncore.AppendInt32Element(cmd, "getlasterror", 1)
	if cmdExtra != nil {
		if elems, err := cmdExtra.Elements(); err == nil {
			for _, e := range elems {
				cmd = append(cmd, e...)
			}
		}
	}
	cmdDoc, err := bsoncore.AppendDocumentEnd(cmd, idx)
	if err != nil {
		cmdDoc = []byte{5, 0, 0, 0, 0}
	}

	msg := appendHeader(nil, requestID, 0, OpQuery)
	msg = appendInt32(msg, int32(queryFlags))
	msg = appendCString(msg, db+".$cmd")
	msg = appendInt32(msg, 0) // numberToSkip
	msg = appendInt32(msg, -1) // numberToReturn
	msg = append(msg, cmdDoc...)
	return finalizeLength(msg)
}

// BuildCommand wraps a fully-formed command document (e.g. an insert/
// update/delete command produced by the opwrite package) in the
// OP_QUERY-against-$cmd envelope the command protocol is carried in.
func BuildCommand(requestID int32, db string, cmd bsoncore.Document) []byte {
	msg := appendHeader(nil, requestID, 0, OpQuery)
	msg = appendInt32(msg, int32(queryFlags))
	msg = appendCString(msg, db+".$cmd")
	msg = appendInt32(msg, 0)  // numberToSkip
	msg = appendInt32(msg, -1) // numberToReturn
	msg = append(msg, cmd...)
	return finalizeLength(msg)
}

// Reply is a decoded OP_REPLY.
type Reply struct {
	ResponseFlags  int32
	CursorID       int64
	StartingFrom   int32
	NumberReturned int32
	Documents      []bsoncore.Document
}

// QueryFailure is set in ResponseFlags when the server could not execute
// the query (here, the getLastError command itself failed).
const QueryFailure int32 = 1 << 1

var errShortReply = errors.New("wireop: reply message shorter than its header")

// ParseReply decodes a raw OP_REPLY wire message.
func ParseReply(msg []byte) (Reply, error) {
	const headerLen = 16
	const replyHeaderLen = 20
	if len(msg) < headerLen+replyHeaderLen {
		return Reply{}, errShortReply
	}
	opcode := int32(binary.LittleEndian.Uint32(msg[12:16]))
	if opcode != OpReply {
		return Reply{}, fmt.Errorf("wireop: expected OP_REPLY, got opcode %d", opcode)
	}

	body := msg[headerLen:]
	r := Reply{
		ResponseFlags:  int32(binary.LittleEndian.Uint32(body[0:4])),
		CursorID:       int64(binary.LittleEndian.Uint64(body[4:12])),
		StartingFrom:   int32(binary.LittleEndian.Uint32(body[12:16])),
		NumberReturned: int32(binary.LittleEndian.Uint32(body[16:20])),
	}

	rest := body[20:]
	for len(rest) > 0 {
		if len(rest) < 4 {
			break
		}
		length := int32(binary.LittleEndian.Uint32(rest[0:4]))
		if length <= 0 || int(length) > len(rest) {
			break
		}
		doc := bsoncore.Document(rest[:length])
		if err := doc.Validate(); err != nil {
			return r, fmt.Errorf("wireop: malformed reply document: %w", err)
		}
		r.Documents = append(r.Documents, doc)
		rest = rest[length:]
	}

	return r, nil
}

// SingleDoc extracts the single document an OP_REPLY carrying a command
// or getLastError response must contain.
func SingleDoc(r Reply) (bsoncore.Document, error) {
	if len(r.Documents) != 1 {
		return nil, fmt.Errorf("wireop: expected exactly one reply document, got %d", len(r.Documents))
	}
	return r.Documents[0], nil
}

// GetLastErrorDoc extracts the single document from a getLastError
// OP_REPLY, the shape the Legacy-Opcode Executor normalizes into a
// writeresult.LegacyReply.
func GetLastErrorDoc(r Reply) (bsoncore.Document, error) {
	return SingleDoc(r)
}
