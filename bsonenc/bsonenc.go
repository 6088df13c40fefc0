// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

// Package bsonenc is the thin adapter between the write-command core and
// the external BSON library (go.mongodb.org/mongo-driver/v2/x/bsonx/bsoncore).
// It exposes exactly the operations the core needs: measuring a document,
// appending a document under a numeric array key, validating an update
// replacement document's keys, and iterating a document array.
package bsonenc

import (
	"unicode/utf8"

	"go.mongodb.org/mongo-driver/v2/x/bsonx/bsoncore"
)

// Measure returns the encoded length of doc, validating it in the process.
func Measure(doc bsoncore.Document) (int32, error) {
	if err := doc.Validate(); err != nil {
		return 0, err
	}
	return int32(len(doc)), nil
}

// AppendUnderKey appends doc to dst (an in-progress document or array body)
// under the given string key, used to build the "0", "1", … contiguous keys
// the payload and result arrays require.
func AppendUnderKey(dst []byte, key string, doc bsoncore.Document) []byte {
	return bsoncore.AppendDocumentElement(dst, key, doc)
}

// NewDocument starts a fresh empty document builder, returning the start
// index to pass to EndDocument.
func NewDocument() (int32, []byte) {
	return bsoncore.AppendDocumentStart(nil)
}

// EndDocument closes a document builder started with bsoncore.AppendDocumentStart.
func EndDocument(dst []byte, start int32) (bsoncore.Document, error) {
	out, err := bsoncore.AppendDocumentEnd(dst, start)
	return bsoncore.Document(out), err
}

// Iterate calls fn for every element of arr in order, stopping at the first
// error fn returns or the first malformed element.
func Iterate(arr bsoncore.Array, fn func(i int, doc bsoncore.Document) error) error {
	vals, err := arr.Values()
	if err != nil {
		return err
	}
	for i, v := range vals {
		doc, ok := v.DocumentOK()
		if !ok {
			continue
		}
		if err := fn(i, doc); err != nil {
			return err
		}
	}
	return nil
}

// FirstFieldIsOperator reports whether doc's first top-level field name
// begins with "$", i.e. doc is an operator update ({$set: …}) rather than a
// full replacement document.
func FirstFieldIsOperator(doc bsoncore.Document) bool {
	elems, err := doc.Elements()
	if err != nil || len(elems) == 0 {
		return false
	}
	key := elems[0].Key()
	return len(key) > 0 && key[0] == '$'
}

// ValidateReplacementDoc enforces the strict key rules a replacement
// (non-operator) update document must satisfy: no top-level key may start
// with "$" or contain a ".", and every top-level string value must be valid
// UTF-8. Nested documents are not inspected.
func ValidateReplacementDoc(doc bsoncore.Document) error {
	elems, err := doc.Elements()
	if err != nil {
		return err
	}
	for _, elem := range elems {
		key := elem.Key()
		for _, r := range key {
			if r == '$' && len(key) > 0 && key[0] == '$' {
				return errInvalidKey(key)
			}
			if r == '.' {
				return errInvalidKey(key)
			}
		}
		if s, ok := elem.Value().StringValueOK(); ok {
			if !utf8.ValidString(s) {
				return errInvalidUTF8(key)
			}
		}
	}
	return nil
}

type keyError struct {
	msg string
}

func (e *keyError) Error() string { return e.msg }

func errInvalidKey(key string) error {
	return &keyError{msg: "update document is corrupt or contains invalid keys including $ or .: " + key}
}

func errInvalidUTF8(key string) error {
	return &keyError{msg: "update document field is not valid UTF-8: " + key}
}
