// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

// Package writeconcern models the durability requirement attached to a
// write command.
package writeconcern

import (
	"go.mongodb.org/mongo-driver/v2/x/bsonx/bsoncore"
)

// WriteConcern describes the acknowledgement a write should wait for. A nil
// *WriteConcern is treated as the implicit "acknowledged, default" concern.
type WriteConcern struct {
	W        interface{} // int, or the string "majority"
	J        *bool
	WTimeout int32 // milliseconds, 0 means unset

	unacknowledged bool
}

// Unacknowledged returns a write concern for fire-and-forget writes (w=0).
func Unacknowledged() *WriteConcern {
	return &WriteConcern{unacknowledged: true}
}

// Majority returns a write concern requiring acknowledgement from a
// majority of the replica set.
func Majority() *WriteConcern {
	return &WriteConcern{W: "majority"}
}

// Acknowledged reports whether wc requires the server to confirm the write.
// A nil WriteConcern is acknowledged by default.
func (wc *WriteConcern) Acknowledged() bool {
	if wc == nil {
		return true
	}
	if wc.unacknowledged {
		return false
	}
	if n, ok := wc.W.(int); ok && n == 0 {
		return false
	}
	return true
}

// Valid reports whether the write concern is internally consistent: j=true
// cannot be combined with w=0.
func (wc *WriteConcern) Valid() bool {
	if wc == nil {
		return true
	}
	if !wc.Acknowledged() && wc.J != nil && *wc.J {
		return false
	}
	return true
}

// AckWrite reports whether wc requires acknowledgement, treating nil as
// acknowledged. A free function so call sites read the same way regardless
// of whether they already have a non-nil *WriteConcern in hand.
func AckWrite(wc *WriteConcern) bool {
	return wc.Acknowledged()
}

// Document renders the write concern as a BSON document suitable for
// embedding under the "writeConcern" field of a write command. An
// unacknowledged or nil write concern renders as the empty document.
func (wc *WriteConcern) Document() bsoncore.Document {
	idx, doc := bsoncore.AppendDocumentStart(nil)
	if wc == nil || !wc.Acknowledged() {
		doc, _ = bsoncore.AppendDocumentEnd(doc, idx)
		return doc
	}

	switch w := wc.W.(type) {
	case int:
		doc = bsoncore.AppendInt32Element(doc, "w", int32(w))
	case string:
		if w != "" {
			doc = bsoncore.AppendStringElement(doc, "w", w)
		}
	}
	if wc.J != nil {
		doc = bsoncore.AppendBooleanElement(doc, "j", *wc.J)
	}
	if wc.WTimeout > 0 {
		doc = bsoncore.AppendInt32Element(doc, "wtimeout", wc.WTimeout)
	}

	doc, _ = bsoncore.AppendDocumentEnd(doc, idx)
	return doc
}
