// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

// Package dispatch selects a server, picks the wire protocol a write
// command should use, and drives the chosen executor to completion.
package dispatch

import (
	"context"

	"github.com/shardwell/mwrite/command"
	"github.com/shardwell/mwrite/driver"
	"github.com/shardwell/mwrite/internal/logger"
	"github.com/shardwell/mwrite/legacywrite"
	"github.com/shardwell/mwrite/opwrite"
	"github.com/shardwell/mwrite/werror"
	"github.com/shardwell/mwrite/wireversion"
	"github.com/shardwell/mwrite/writeconcern"
	"github.com/shardwell/mwrite/writeresult"
)

// Dispatcher drives a single Command from server selection through to a
// completed writeresult.Accumulator.
type Dispatcher struct {
	Deployment driver.Deployment
	Log        *logger.Logger
}

// New constructs a Dispatcher against the given deployment. log may be nil.
func New(deployment driver.Deployment, log *logger.Logger) *Dispatcher {
	return &Dispatcher{Deployment: deployment, Log: log}
}

func (d *Dispatcher) logf(level logger.Level, msg string, kv ...interface{}) {
	if d.Log == nil {
		return
	}
	d.Log.Print(level, msg, kv...)
}

// Dispatch executes cmd under wc and returns the completed result document
// and whether the overall write succeeded.
func (d *Dispatcher) Dispatch(ctx context.Context, cmd *command.Command, wc *writeconcern.WriteConcern) ([]byte, bool, error) {
	if !wc.Valid() {
		return nil, false, werror.InvalidArg("write concern is not valid: j=true cannot be combined with an unacknowledged write")
	}
	if cmd.NDocuments() == 0 {
		return nil, false, werror.InvalidArg("command has no clauses to execute")
	}

	server, err := d.selectServer(ctx, cmd)
	if err != nil {
		return nil, false, err
	}

	conn, err := server.Connection(ctx)
	if err != nil {
		return nil, false, werror.Transport(err)
	}

	acc := writeresult.New()
	desc := conn.Description()

	if usesCommandProtocol(desc.WireVersion, wc) {
		d.logf(logger.LevelDebug, "dispatching via command protocol", "collection", cmd.NS.Collection)
		exec := opwrite.New(d.Log)
		if err := exec.Execute(ctx, conn, cmd, wc, acc); err != nil {
			return nil, false, err
		}
	} else {
		d.logf(logger.LevelDebug, "dispatching via legacy opcodes", "collection", cmd.NS.Collection)
		exec := legacywrite.New(d.Log)
		if err := exec.Execute(ctx, conn, cmd, wc, acc); err != nil {
			return nil, false, err
		}
	}

	doc, ok, err := acc.Complete()
	if err != nil {
		return nil, false, err
	}
	return doc, ok, nil
}

func (d *Dispatcher) selectServer(ctx context.Context, cmd *command.Command) (driver.Server, error) {
	if s, ok := cmd.ServerHint.(driver.Server); ok && s != nil {
		return s, nil
	}
	if d.Deployment == nil {
		return nil, werror.InvalidArg("no server hint and no deployment to select one from")
	}
	return d.Deployment.SelectServerForWrites(ctx)
}

// usesCommandProtocol implements protocol-selection rule:
// a server advertising wire version >= wireversion.WriteCommandVersion
// uses the command protocol, except a server whose minimum wire version
// is 0 (meaning it still accepts the legacy opcodes) is
// always driven over legacy opcodes for an unacknowledged write, since a
// round trip to the command protocol would gain nothing there.
func usesCommandProtocol(wv wireversion.Range, wc *writeconcern.WriteConcern) bool {
	if wv.Min == 0 && !writeconcern.AckWrite(wc) {
		return false
	}
	return wv.SupportsWriteCommands()
}
