// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

// Package batch decides, given server limits and a command's payload, how
// many clauses fit in the next outgoing request.
package batch

import (
	"github.com/shardwell/mwrite/driver"
	"github.com/shardwell/mwrite/werror"
)

// commandEnvelopeSlack is the amount of headroom the server guarantees
// above max_bson_obj_size for the enclosing command envelope.
const commandEnvelopeSlack = 16382

// clauseKeyOverhead is the maximum bytes an array-index key ("0","1",…)
// plus its element header add on top of a clause's own encoded length.
const clauseKeyOverhead = 12

// Planner applies the write-batch overflow predicate against a server's
// advertised limits.
type Planner struct {
	Limits driver.Limits
}

// New constructs a Planner for the given server limits.
func New(limits driver.Limits) *Planner {
	return &Planner{Limits: limits}
}

// WouldOverflow reports whether adding a candidate clause of the given
// encoded size to a request that already has accumulated bytes and
// included clauses would overflow the command-path limits.
func (p *Planner) WouldOverflow(accumulated, candidate int32, included uint32) bool {
	maxCmdSize := p.Limits.MaxBSONObjectSize + commandEnvelopeSlack
	if accumulated+candidate > maxCmdSize {
		return true
	}
	if p.Limits.MaxWriteBatchSize > 0 && int32(included) >= p.Limits.MaxWriteBatchSize {
		return true
	}
	return false
}

// TooLarge reports whether a single clause's encoded length alone exceeds
// max_bson_obj_size, and if so returns the too-large error carrying
// {index, len, max}.
func (p *Planner) TooLarge(index uint32, length int32) (*werror.Error, bool) {
	if length > p.Limits.MaxBSONObjectSize {
		return werror.TooLarge(index, length, p.Limits.MaxBSONObjectSize), true
	}
	return nil, false
}

// WouldOverflowLegacyInsert applies the legacy-insert-specific overflow
// rule: when singleDocumentOnly is true (AllowBulkOpInsert == false), a
// batch may carry at most one document; otherwise the running request size
// (4-byte flags + namespace + documents already queued) must not exceed
// max_msg_size.
func (p *Planner) WouldOverflowLegacyInsert(singleDocumentOnly bool, docsInBatch int, runningSize, candidateLen int32) bool {
	if singleDocumentOnly && docsInBatch >= 1 {
		return true
	}
	return runningSize+candidateLen > p.Limits.MaxMessageSize
}
