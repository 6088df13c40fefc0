// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package writeresult

import "go.mongodb.org/mongo-driver/v2/x/bsonx/bsoncore"

// lookupInt32 reads a field as an integer of any BSON numeric type,
// returning deflt if the field is absent or not numeric.
func lookupInt32(doc bsoncore.Document, key string, deflt int32) int32 {
	v, err := doc.LookupErr(key)
	if err != nil {
		return deflt
	}
	n, ok := v.AsInt64OK()
	if !ok {
		return deflt
	}
	return int32(n)
}

// lookupInt32OK reports whether key is present (ok) and, if present,
// whether its BSON type is an integer type (isInt) as opposed to a float
// or other numeric representation. Callers treat a non-integer nModified
// as absent for stickiness purposes.
func lookupInt32OK(doc bsoncore.Document, key string) (value int32, ok bool, isInt bool) {
	v, err := doc.LookupErr(key)
	if err != nil {
		return 0, false, false
	}
	if n, isOk := v.Int32OK(); isOk {
		return n, true, true
	}
	if n, isOk := v.Int64OK(); isOk {
		return int32(n), true, true
	}
	return 0, true, false
}

func lookupString(doc bsoncore.Document, key string, deflt string) string {
	v, err := doc.LookupErr(key)
	if err != nil {
		return deflt
	}
	s, ok := v.StringValueOK()
	if !ok {
		return deflt
	}
	return s
}

func lookupArray(doc bsoncore.Document, key string) (bsoncore.Array, bool) {
	v, err := doc.LookupErr(key)
	if err != nil {
		return nil, false
	}
	arr, ok := v.ArrayOK()
	if !ok {
		return nil, false
	}
	return arr, true
}

func lookupDocument(doc bsoncore.Document, key string) (bsoncore.Document, bool) {
	v, err := doc.LookupErr(key)
	if err != nil {
		return nil, false
	}
	d, ok := v.DocumentOK()
	if !ok {
		return nil, false
	}
	return d, true
}

func hasNonEmptyArray(doc bsoncore.Document, key string) bool {
	arr, ok := lookupArray(doc, key)
	if !ok {
		return false
	}
	vals, err := arr.Values()
	if err != nil {
		return false
	}
	return len(vals) > 0
}
