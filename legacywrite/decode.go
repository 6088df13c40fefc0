// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package legacywrite

import (
	"fmt"

	"go.mongodb.org/mongo-driver/v2/x/bsonx/bsoncore"

	"github.com/shardwell/mwrite/batch"
	"github.com/shardwell/mwrite/werror"
	"github.com/shardwell/mwrite/wireop"
	"github.com/shardwell/mwrite/writeresult"
)

// sliceInsertBatch returns the next contiguous run of documents, starting
// at offset, that fit in one OP_INSERT message under the planner's
// byte-budget rule, and the offset to resume at. If the document at offset
// alone exceeds max_bson_obj_size, tooLarge is non-nil and docs/next
// describe skipping past just that one document.
func sliceInsertBatch(p *batch.Planner, payload []bsoncore.Document, offset uint32, allowBulkOpInsert bool) (docs []bsoncore.Document, next uint32, tooLarge *werror.Error) {
	if int(offset) >= len(payload) {
		return nil, offset, nil
	}
	if tl, ok := p.TooLarge(offset, int32(len(payload[offset]))); ok {
		return nil, offset + 1, tl
	}
	var running int32
	i := offset
	for int(i) < len(payload) {
		candidate := int32(len(payload[i]))
		if _, ok := p.TooLarge(i, candidate); ok {
			break
		}
		if p.WouldOverflowLegacyInsert(!allowBulkOpInsert, int(i-offset), running, candidate) {
			break
		}
		running += candidate
		i++
	}
	if i == offset {
		i = offset + 1
	}
	return payload[offset:i], i, nil
}

func decodeUpdateClause(clause bsoncore.Document) (selector, update bsoncore.Document, upsert, multi bool, err error) {
	qVal, err := clause.LookupErr("q")
	if err != nil {
		return nil, nil, false, false, fmt.Errorf("legacywrite: update clause missing q: %w", err)
	}
	selector, ok := qVal.DocumentOK()
	if !ok {
		return nil, nil, false, false, fmt.Errorf("legacywrite: update clause q is not a document")
	}
	uVal, err := clause.LookupErr("u")
	if err != nil {
		return nil, nil, false, false, fmt.Errorf("legacywrite: update clause missing u: %w", err)
	}
	update, ok = uVal.DocumentOK()
	if !ok {
		return nil, nil, false, false, fmt.Errorf("legacywrite: update clause u is not a document")
	}
	if v, err := clause.LookupErr("upsert"); err == nil {
		upsert, _ = v.BooleanOK()
	}
	if v, err := clause.LookupErr("multi"); err == nil {
		multi, _ = v.BooleanOK()
	}
	return selector, update, upsert, multi, nil
}

func decodeDeleteClause(clause bsoncore.Document) (selector bsoncore.Document, singleRemove bool, err error) {
	qVal, err := clause.LookupErr("q")
	if err != nil {
		return nil, false, fmt.Errorf("legacywrite: delete clause missing q: %w", err)
	}
	selector, ok := qVal.DocumentOK()
	if !ok {
		return nil, false, fmt.Errorf("legacywrite: delete clause q is not a document")
	}
	limit := int32(1)
	if v, err := clause.LookupErr("limit"); err == nil {
		if n, ok := v.AsInt64OK(); ok {
			limit = int32(n)
		}
	}
	return selector, limit != 0, nil
}

func legacyReplyFromDoc(doc bsoncore.Document) writeresult.LegacyReply {
	var r writeresult.LegacyReply
	if v, err := doc.LookupErr("n"); err == nil {
		if n, ok := v.AsInt64OK(); ok {
			r.N = int32(n)
		}
	}
	if v, err := doc.LookupErr("err"); err == nil {
		if s, ok := v.StringValueOK(); ok {
			r.ErrMsg = s
		}
	}
	if v, err := doc.LookupErr("code"); err == nil {
		if n, ok := v.AsInt64OK(); ok {
			r.Code = int32(n)
		}
	}
	if v, err := doc.LookupErr("updatedExisting"); err == nil {
		if b, ok := v.BooleanOK(); ok {
			r.UpdatedExisting = &b
		}
	}
	if v, err := doc.LookupErr("upserted"); err == nil {
		cp := v
		r.Upserted = &cp
	}
	return r
}

func decodeInsertReply(reply wireop.Reply) writeresult.LegacyReply {
	doc, err := wireop.GetLastErrorDoc(reply)
	if err != nil {
		return writeresult.LegacyReply{ErrMsg: err.Error()}
	}
	return legacyReplyFromDoc(doc)
}

func decodeUpdateReply(reply wireop.Reply) writeresult.LegacyReply {
	return decodeInsertReply(reply)
}

func decodeDeleteReply(reply wireop.Reply) writeresult.LegacyReply {
	return decodeInsertReply(reply)
}
