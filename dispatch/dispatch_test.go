// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package dispatch_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/x/bsonx/bsoncore"

	"github.com/shardwell/mwrite/command"
	"github.com/shardwell/mwrite/dispatch"
	"github.com/shardwell/mwrite/driver"
	"github.com/shardwell/mwrite/wireop"
	"github.com/shardwell/mwrite/wireversion"
	"github.com/shardwell/mwrite/writeconcern"
)

type fakeConn struct {
	desc    driver.ServerDescription
	sent    [][]byte
	replies [][]byte
}

func (f *fakeConn) WriteWireMessage(_ context.Context, wm []byte) error {
	f.sent = append(f.sent, wm)
	return nil
}

func (f *fakeConn) ReadWireMessage(_ context.Context) ([]byte, error) {
	r := f.replies[0]
	f.replies = f.replies[1:]
	return r, nil
}

func (f *fakeConn) Description() driver.ServerDescription { return f.desc }

type fakeServer struct {
	conn *fakeConn
}

func (s *fakeServer) Connection(context.Context) (driver.Connection, error) { return s.conn, nil }
func (s *fakeServer) Description() driver.ServerDescription                 { return s.conn.desc }

type fakeDeployment struct {
	server *fakeServer
}

func (d *fakeDeployment) SelectServerForWrites(context.Context) (driver.Server, error) {
	return d.server, nil
}

func buildOKReply(t *testing.T, n int32) []byte {
	t.Helper()
	idx, doc := bsoncore.AppendDocumentStart(nil)
	doc = bsoncore.AppendInt32Element(doc, "n", n)
	built, err := bsoncore.AppendDocumentEnd(doc, idx)
	require.NoError(t, err)

	body := make([]byte, 0, 20+len(built))
	body = append(body, le32(0)...)
	body = append(body, le64(0)...)
	body = append(body, le32(0)...)
	body = append(body, le32(1)...)
	body = append(body, built...)

	header := make([]byte, 16)
	copy(header[0:4], le32(int32(16+len(body))))
	copy(header[12:16], le32(wireop.OpReply))
	return append(header, body...)
}

func le32(v int32) []byte {
	return []byte{byte(v), byte(v >> 8), byte(v >> 16), byte(v >> 24)}
}

func le64(v int64) []byte {
	b := make([]byte, 8)
	for i := 0; i < 8; i++ {
		b[i] = byte(v >> (8 * i))
	}
	return b
}

func buildInsertCmd(t *testing.T) *command.Command {
	t.Helper()
	ns := command.Namespace{DB: "test", Collection: "coll"}
	idx, d := bsoncore.AppendDocumentStart(nil)
	d = bsoncore.AppendInt32Element(d, "x", 1)
	built, err := bsoncore.AppendDocumentEnd(d, idx)
	require.NoError(t, err)
	cmd, err := command.NewInsert(ns, []bsoncore.Document{bsoncore.Document(built)}, true, true)
	require.NoError(t, err)
	return cmd
}

func TestDispatch_ModernServer_UsesCommandProtocol(t *testing.T) {
	conn := &fakeConn{
		desc: driver.ServerDescription{
			WireVersion: wireversion.Range{Min: 0, Max: 6},
			Limits:      driver.Limits{MaxBSONObjectSize: 16 * 1024 * 1024, MaxWriteBatchSize: 1000},
		},
		replies: [][]byte{buildOKReply(t, 1)},
	}
	dep := &fakeDeployment{server: &fakeServer{conn: conn}}

	d := dispatch.New(dep, nil)
	cmd := buildInsertCmd(t)
	_, ok, err := d.Dispatch(context.Background(), cmd, nil)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Len(t, conn.sent, 1, "a single command-protocol batch round trip")
}

func TestDispatch_PreWireVersionServer_UsesLegacyOpcodes(t *testing.T) {
	conn := &fakeConn{
		desc: driver.ServerDescription{
			WireVersion: wireversion.Range{Min: 0, Max: 0},
			Limits:      driver.Limits{MaxBSONObjectSize: 16 * 1024 * 1024, MaxMessageSize: 48 * 1024 * 1024},
		},
		replies: [][]byte{buildOKReply(t, 0)},
	}
	dep := &fakeDeployment{server: &fakeServer{conn: conn}}

	d := dispatch.New(dep, nil)
	cmd := buildInsertCmd(t)
	_, ok, err := d.Dispatch(context.Background(), cmd, nil)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Len(t, conn.sent, 2, "legacy path sends OP_INSERT then a getLastError query")
}

func TestDispatch_MinWireVersionZero_UnacknowledgedPrefersLegacy(t *testing.T) {
	conn := &fakeConn{
		desc: driver.ServerDescription{
			WireVersion: wireversion.Range{Min: 0, Max: 6},
			Limits:      driver.Limits{MaxBSONObjectSize: 16 * 1024 * 1024, MaxMessageSize: 48 * 1024 * 1024},
		},
	}
	dep := &fakeDeployment{server: &fakeServer{conn: conn}}

	d := dispatch.New(dep, nil)
	cmd := buildInsertCmd(t)
	_, _, err := d.Dispatch(context.Background(), cmd, writeconcern.Unacknowledged())
	require.NoError(t, err)
	assert.Len(t, conn.sent, 1, "unacknowledged legacy insert sends only OP_INSERT, no getLastError")
}

func TestDispatch_InvalidWriteConcern_RejectedBeforeServerSelection(t *testing.T) {
	d := dispatch.New(&fakeDeployment{}, nil)
	cmd := buildInsertCmd(t)

	j := true
	badWC := writeconcern.Unacknowledged()
	badWC.J = &j

	_, _, err := d.Dispatch(context.Background(), cmd, badWC)
	assert.Error(t, err, "j=true combined with an unacknowledged write concern must be rejected")
}
