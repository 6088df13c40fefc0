// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

// Package driver declares the external collaborator interfaces this module
// consumes but does not implement: connection selection / topology (a
// Server handle with capability metadata) and the RPC transport (a
// Connection that sends framed messages and receives responses). A real
// driver supplies concrete implementations; this module only depends on
// these narrow interfaces.
package driver

import (
	"context"

	"github.com/shardwell/mwrite/wireversion"
)

// Limits is the subset of a server's advertised capabilities the batch
// planner and legacy executor need.
type Limits struct {
	MaxBSONObjectSize int32
	MaxMessageSize    int32
	MaxWriteBatchSize int32
}

// ServerDescription is the capability metadata a selected server exposes:
// its wire-version range (gates command vs. legacy protocol selection) and
// its size/count limits.
type ServerDescription struct {
	WireVersion wireversion.Range
	Limits      Limits
}

// Connection is the RPC transport: it sends a framed wire message and
// receives one back. Implementations own framing, compression, and
// network I/O; this module only calls these two methods.
type Connection interface {
	WriteWireMessage(ctx context.Context, wm []byte) error
	ReadWireMessage(ctx context.Context) (wm []byte, err error)
	Description() ServerDescription
}

// Server represents a selected, connectable MongoDB server.
type Server interface {
	Connection(ctx context.Context) (Connection, error)
	Description() ServerDescription
}

// Deployment selects a Server suitable for a write, given no explicit
// server hint was supplied by the caller.
type Deployment interface {
	SelectServerForWrites(ctx context.Context) (Server, error)
}
