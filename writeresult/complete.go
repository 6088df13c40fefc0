// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package writeresult

import (
	"strconv"

	"go.mongodb.org/mongo-driver/v2/x/bsonx/bsoncore"

	"github.com/shardwell/mwrite/werror"
)

// Complete renders the accumulator's state into the canonical result
// document and reports whether the overall operation
// succeeded. A false ok does not mean the returned document is nil: a result with
// writeErrors is still a well-formed document, just one the caller should
// treat as a failure.
func (a *Accumulator) Complete() (bsoncore.Document, bool, error) {
	idx, doc := bsoncore.AppendDocumentStart(nil)

	doc = bsoncore.AppendInt32Element(doc, "nInserted", int32(a.NInserted))
	doc = bsoncore.AppendInt32Element(doc, "nMatched", int32(a.NMatched))
	if !a.OmitNModified {
		doc = bsoncore.AppendInt32Element(doc, "nModified", int32(a.NModified))
	}
	doc = bsoncore.AppendInt32Element(doc, "nUpserted", int32(a.NUpserted))
	doc = bsoncore.AppendInt32Element(doc, "nRemoved", int32(a.NRemoved))

	if len(a.Upserted) > 0 {
		var err error
		doc, err = appendUpsertedArray(doc, a.Upserted)
		if err != nil {
			return nil, false, err
		}
	}

	var err error
	doc, err = appendWriteErrorsArray(doc, a.WriteErrors)
	if err != nil {
		return nil, false, err
	}

	if a.WriteConcernError != nil {
		doc = bsoncore.AppendDocumentElement(doc, "writeConcernError", a.WriteConcernError)
	}

	built, err := bsoncore.AppendDocumentEnd(doc, idx)
	if err != nil {
		return nil, false, err
	}

	ok := !a.Failed && len(a.WriteErrors) == 0 && a.WriteConcernError == nil
	if !ok && a.Err == nil && len(a.WriteErrors) > 0 {
		first := a.WriteErrors[0]
		a.Err = werror.ServerWrite(first.Index, first.Code, first.ErrMsg)
	}
	return bsoncore.Document(built), ok, nil
}

func appendUpsertedArray(dst []byte, upserted []UpsertedID) ([]byte, error) {
	aidx, arr := bsoncore.AppendArrayStart(dst)
	for i, u := range upserted {
		didx, entry := bsoncore.AppendDocumentStart(nil)
		entry = bsoncore.AppendInt32Element(entry, "index", int32(u.Index))
		entry = bsoncore.AppendValueElement(entry, "_id", u.ID)
		entryDoc, err := bsoncore.AppendDocumentEnd(entry, didx)
		if err != nil {
			return nil, err
		}
		arr = bsoncore.AppendDocumentElement(arr, strconv.Itoa(i), entryDoc)
	}
	return bsoncore.AppendArrayEnd(arr, aidx)
}

func appendWriteErrorsArray(dst []byte, writeErrors []WriteErrorEntry) ([]byte, error) {
	aidx, arr := bsoncore.AppendArrayStart(dst)
	for i, we := range writeErrors {
		didx, entry := bsoncore.AppendDocumentStart(nil)
		entry = bsoncore.AppendInt32Element(entry, "index", int32(we.Index))
		entry = bsoncore.AppendInt32Element(entry, "code", we.Code)
		entry = bsoncore.AppendStringElement(entry, "errmsg", we.ErrMsg)
		entryDoc, err := bsoncore.AppendDocumentEnd(entry, didx)
		if err != nil {
			return nil, err
		}
		arr = bsoncore.AppendDocumentElement(arr, strconv.Itoa(i), entryDoc)
	}
	return bsoncore.AppendArrayEnd(arr, aidx)
}
