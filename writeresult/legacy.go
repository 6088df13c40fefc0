// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package writeresult

import (
	"go.mongodb.org/mongo-driver/v2/x/bsonx/bsoncore"

	"github.com/shardwell/mwrite/command"
)

// legacyUnknownErrorCode is used when a getLastError response reports an
// error message but no numeric code, mirroring the original driver's
// fallback when the server predates structured write-error codes.
const legacyUnknownErrorCode = 8

// LegacyReply is a normalized getLastError response. The legacy-opcode
// executor decodes the raw OP_REPLY into this shape before handing it to
// the accumulator, rather than merging against raw wire bytes directly.
type LegacyReply struct {
	N               int32
	ErrMsg          string
	Code            int32
	UpdatedExisting *bool
	Upserted        *bsoncore.Value
}

// HasError reports whether this getLastError response carries an error.
func (r LegacyReply) HasError() bool { return r.ErrMsg != "" }

// MergeLegacy folds one getLastError response into the accumulator.
// offset is the global index of the first clause/document this response
// covers; count is how many documents it covers (the legacy insert path
// issues one getLastError per submitted batch; update and delete issue
// one per clause, so count is 1 there). clauseIndex identifies, within
// cmd.Payload, the clause this reply corresponds to, used to recover the
// clause's update document and selector for the upsert-id repair below.
// getLastError never reports nModified, so every call sets OmitNModified.
func (a *Accumulator) MergeLegacy(cmd *command.Command, clauseIndex uint32, count uint32, reply LegacyReply, offset uint32) error {
	a.OmitNModified = true

	if reply.HasError() {
		a.Failed = true
		code := reply.Code
		if code == 0 {
			code = legacyUnknownErrorCode
		}
		errIndex := offset
		if count > 0 {
			errIndex = offset + count - 1
		}
		a.WriteErrors = append(a.WriteErrors, WriteErrorEntry{
			Index:  errIndex,
			Code:   code,
			ErrMsg: reply.ErrMsg,
		})
	}

	switch cmd.Kind {
	case command.Insert:
		a.mergeLegacyInsert(count, reply)
	case command.Delete:
		a.NRemoved += uint32(reply.N)
	case command.Update:
		a.mergeLegacyUpdate(cmd, clauseIndex, reply, offset)
	}

	return nil
}

func (a *Accumulator) mergeLegacyInsert(count uint32, reply LegacyReply) {
	if !reply.HasError() {
		a.NInserted += count
		return
	}
	if count > 0 {
		a.NInserted += count - 1
	}
}

// mergeLegacyUpdate applies the getLastError "n"/"upserted"/"updatedExisting"
// triad per _mongoc_write_result_merge_legacy. Pre-2.6 servers that performed
// an upsert report updatedExisting=false and n=1 without an "upserted" id;
// in that case the CDRIVER-372 repair recovers the id from the clause's
// update document, or failing that from its selector, since the server
// must have used it verbatim as the inserted document's _id.
func (a *Accumulator) mergeLegacyUpdate(cmd *command.Command, clauseIndex uint32, reply LegacyReply, offset uint32) {
	switch {
	case reply.Upserted != nil:
		a.appendUpsert(offset, *reply.Upserted)
		a.NUpserted++
	case reply.UpdatedExisting != nil && !*reply.UpdatedExisting && reply.N == 1:
		if id, ok := repairUpsertedID(cmd, clauseIndex); ok {
			a.appendUpsert(offset, id)
			a.NUpserted++
		} else {
			a.NMatched += uint32(reply.N)
		}
	default:
		a.NMatched += uint32(reply.N)
	}
}

// repairUpsertedID recovers the _id a pre-2.6 server used for an implicit
// upsert insert, which it never reports back directly. The update document
// itself is checked first, falling back to the selector only if the update
// names no _id, matching has_update before has_selector.
func repairUpsertedID(cmd *command.Command, clauseIndex uint32) (bsoncore.Value, bool) {
	if int(clauseIndex) >= len(cmd.Payload) {
		return bsoncore.Value{}, false
	}
	clause := cmd.Payload[clauseIndex]

	if uVal, err := clause.LookupErr("u"); err == nil {
		if update, ok := uVal.DocumentOK(); ok {
			if idVal, err := update.LookupErr("_id"); err == nil {
				return idVal, true
			}
		}
	}

	qVal, err := clause.LookupErr("q")
	if err != nil {
		return bsoncore.Value{}, false
	}
	selector, ok := qVal.DocumentOK()
	if !ok {
		return bsoncore.Value{}, false
	}
	idVal, err := selector.LookupErr("_id")
	if err != nil {
		return bsoncore.Value{}, false
	}
	return idVal, true
}
