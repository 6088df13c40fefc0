// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package wireop_test

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/x/bsonx/bsoncore"

	"github.com/shardwell/mwrite/wireop"
)

func doc(t *testing.T, key string, v int32) bsoncore.Document {
	t.Helper()
	idx, d := bsoncore.AppendDocumentStart(nil)
	d = bsoncore.AppendInt32Element(d, key, v)
	out, err := bsoncore.AppendDocumentEnd(d, idx)
	require.NoError(t, err)
	return bsoncore.Document(out)
}

func TestBuildInsert_HeaderAndLength(t *testing.T) {
	d1 := doc(t, "x", 1)
	msg := wireop.BuildInsert(42, "test.coll", true, []bsoncore.Document{d1})

	require.True(t, len(msg) >= 16)
	length := int32(binary.LittleEndian.Uint32(msg[0:4]))
	assert.EqualValues(t, len(msg), length)

	requestID := int32(binary.LittleEndian.Uint32(msg[4:8]))
	assert.EqualValues(t, 42, requestID)

	opcode := int32(binary.LittleEndian.Uint32(msg[12:16]))
	assert.Equal(t, wireop.OpInsert, opcode)
}

func TestBuildGetLastError_EmbedsWriteConcernFields(t *testing.T) {
	idx, extra := bsoncore.AppendDocumentStart(nil)
	extra = bsoncore.AppendInt32Element(extra, "w", 2)
	extraDoc, err := bsoncore.AppendDocumentEnd(extra, idx)
	require.NoError(t, err)

	msg := wireop.BuildGetLastError(1, "test", bsoncore.Document(extraDoc))
	opcode := int32(binary.LittleEndian.Uint32(msg[12:16]))
	assert.Equal(t, wireop.OpQuery, opcode)
	assert.True(t, bytes.Contains(msg, extraDoc[4:len(extraDoc)-1]), "the w element must be copied into the getlasterror command")
}

func TestParseReply_RoundTripsDocuments(t *testing.T) {
	d1 := doc(t, "n", 1)
	body := make([]byte, 0, 36+len(d1))
	body = appendInt32Test(body, 0)
	body = appendInt64Test(body, 0)
	body = appendInt32Test(body, 0)
	body = appendInt32Test(body, 1)
	body = append(body, d1...)

	header := make([]byte, 16)
	binary.LittleEndian.PutUint32(header[0:4], uint32(16+len(body)))
	binary.LittleEndian.PutUint32(header[12:16], uint32(wireop.OpReply))
	msg := append(header, body...)

	reply, err := wireop.ParseReply(msg)
	require.NoError(t, err)
	require.Len(t, reply.Documents, 1)
	assert.True(t, bytes.Equal(reply.Documents[0], d1))
	assert.EqualValues(t, 1, reply.NumberReturned)
}

func TestParseReply_RejectsWrongOpcode(t *testing.T) {
	msg := make([]byte, 36)
	binary.LittleEndian.PutUint32(msg[0:4], 36)
	binary.LittleEndian.PutUint32(msg[12:16], uint32(wireop.OpInsert))

	_, err := wireop.ParseReply(msg)
	assert.Error(t, err)
}

func appendInt32Test(dst []byte, v int32) []byte {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], uint32(v))
	return append(dst, b[:]...)
}

func appendInt64Test(dst []byte, v int64) []byte {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], uint64(v))
	return append(dst, b[:]...)
}
