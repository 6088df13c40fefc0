// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

// Package writeresult implements the Result Accumulator: it folds
// per-batch server replies, from either wire path, into a single
// externally-visible WriteResult.
package writeresult

import (
	"go.mongodb.org/mongo-driver/v2/x/bsonx/bsoncore"

	"github.com/shardwell/mwrite/command"
	"github.com/shardwell/mwrite/werror"
)

// UpsertedID is one entry of the result's upserted-id list: the
// caller-global clause index and the server-generated (or user-supplied)
// _id value.
type UpsertedID struct {
	Index uint32
	ID    bsoncore.Value
}

// WriteErrorEntry is one per-clause error, index-biased to the caller's
// global numbering.
type WriteErrorEntry struct {
	Index  uint32
	Code   int32
	ErrMsg string
}

// Accumulator aggregates per-batch server replies into a final result. It
// is exclusively owned by its caller and must not be shared across
// concurrent executions.
type Accumulator struct {
	NInserted uint32
	NMatched  uint32
	NModified uint32
	NRemoved  uint32
	NUpserted uint32

	// OmitNModified is set true the first time a contributing reply fails
	// to report nModified as an integer, and never clears.
	OmitNModified bool

	Upserted    []UpsertedID
	WriteErrors []WriteErrorEntry

	// WriteConcernError accumulates fields from any writeConcernError
	// documents seen; nil means none were reported.
	WriteConcernError bsoncore.Document

	Failed bool
	Err    *werror.Error
}

// New returns an empty Accumulator ready to receive merges.
func New() *Accumulator {
	return &Accumulator{}
}

// Merge folds a command-path reply (the server's response to an
// insert/update/delete command) into the accumulator.
func (a *Accumulator) Merge(kind command.Kind, reply bsoncore.Document, offset uint32) error {
	affected := lookupInt32(reply, "n", 0)

	if hasNonEmptyArray(reply, "writeErrors") {
		a.Failed = true
	}

	switch kind {
	case command.Insert:
		a.NInserted += uint32(affected)
	case command.Delete:
		a.NRemoved += uint32(affected)
	case command.Update:
		a.mergeUpdateCounts(reply, affected, offset)
	}

	if arr, ok := lookupArray(reply, "writeErrors"); ok {
		a.mergeWriteErrors(arr, offset)
	}

	if doc, ok := lookupDocument(reply, "writeConcernError"); ok {
		a.mergeWriteConcernError(doc)
	}

	return nil
}

func (a *Accumulator) mergeUpdateCounts(reply bsoncore.Document, affected int32, offset uint32) {
	var upsertedInBatch uint32

	if arr, ok := lookupArray(reply, "upserted"); ok {
		vals, err := arr.Values()
		if err == nil {
			for _, v := range vals {
				doc, ok := v.DocumentOK()
				if !ok {
					continue
				}
				idx := uint32(lookupInt32(doc, "index", 0))
				idVal, err := doc.LookupErr("_id")
				if err != nil {
					continue
				}
				a.appendUpsert(offset+idx, idVal)
				upsertedInBatch++
			}
		}
		a.NUpserted += upsertedInBatch
		matched := affected - int32(upsertedInBatch)
		if matched < 0 {
			matched = 0
		}
		a.NMatched += uint32(matched)
	} else {
		a.NMatched += uint32(affected)
	}

	if v, ok, isInt := lookupInt32OK(reply, "nModified"); ok && isInt {
		a.NModified += uint32(v)
	} else {
		a.OmitNModified = true
	}
}

func (a *Accumulator) mergeWriteErrors(arr bsoncore.Array, offset uint32) {
	vals, err := arr.Values()
	if err != nil {
		return
	}
	for _, v := range vals {
		doc, ok := v.DocumentOK()
		if !ok {
			continue
		}
		idx := uint32(lookupInt32(doc, "index", 0))
		code := lookupInt32(doc, "code", 0)
		msg := lookupString(doc, "errmsg", "")
		a.WriteErrors = append(a.WriteErrors, WriteErrorEntry{
			Index:  idx + offset,
			Code:   code,
			ErrMsg: msg,
		})
	}
}

func (a *Accumulator) mergeWriteConcernError(doc bsoncore.Document) {
	elems, err := doc.Elements()
	if err != nil {
		return
	}
	if a.WriteConcernError == nil {
		idx, d := bsoncore.AppendDocumentStart(nil)
		for _, e := range elems {
			d = append(d, e...)
		}
		built, err := bsoncore.AppendDocumentEnd(d, idx)
		if err == nil {
			a.WriteConcernError = bsoncore.Document(built)
		}
		return
	}
	existing, err := a.WriteConcernError.Elements()
	if err != nil {
		return
	}
	idx, d := bsoncore.AppendDocumentStart(nil)
	for _, e := range existing {
		d = append(d, e...)
	}
	for _, e := range elems {
		d = append(d, e...)
	}
	built, err := bsoncore.AppendDocumentEnd(d, idx)
	if err == nil {
		a.WriteConcernError = bsoncore.Document(built)
	}
}

// AppendTooLarge synthesizes a writeErrors entry from a too-large clause
// error, without a round trip to the server. Used when the batch planner
// rejects a clause before it is ever sent.
func (a *Accumulator) AppendTooLarge(err *werror.Error) {
	a.Failed = true
	a.WriteErrors = append(a.WriteErrors, WriteErrorEntry{
		Index:  err.Index,
		Code:   err.Code,
		ErrMsg: err.Message,
	})
}

func (a *Accumulator) appendUpsert(index uint32, id bsoncore.Value) {
	a.Upserted = append(a.Upserted, UpsertedID{Index: index, ID: id})
}

// UpsertAppendCount is the next key that would be used when appending to
// Upserted: always equal to len(Upserted).
func (a *Accumulator) UpsertAppendCount() uint32 { return uint32(len(a.Upserted)) }
