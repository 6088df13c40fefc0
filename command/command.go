// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

// Package command models a single pending write operation (insert,
// update, or delete) together with its accumulated payload documents, as
// a tagged variant: a shared header plus per-kind fields.
package command

import (
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson/primitive"
	"go.mongodb.org/mongo-driver/v2/x/bsonx/bsoncore"

	"github.com/shardwell/mwrite/bsonenc"
)

// Kind discriminates the three write operations this module supports.
type Kind int

const (
	// Insert documents into a collection.
	Insert Kind = iota
	// Update documents matching a selector.
	Update
	// Delete documents matching a selector.
	Delete
)

// String renders the kind as the lower-case command name the wire protocol
// uses ("insert", "update", "delete").
func (k Kind) String() string {
	switch k {
	case Insert:
		return "insert"
	case Update:
		return "update"
	case Delete:
		return "delete"
	default:
		return "unknown"
	}
}

// OpField is the array field name a batch's clauses are carried under in
// the command-protocol wire shape ("documents", "updates", "deletes").
func (k Kind) OpField() string {
	switch k {
	case Insert:
		return "documents"
	case Update:
		return "updates"
	case Delete:
		return "deletes"
	default:
		return "unknown"
	}
}

// Namespace identifies a database and collection.
type Namespace struct {
	DB         string
	Collection string
}

// FullName renders "<database>.<collection>", the legacy-opcode namespace
// format. It does not check the length; the legacy executor rejects a
// namespace longer than MaxNamespaceLen.
func (ns Namespace) FullName() string {
	return ns.DB + "." + ns.Collection
}

// MaxNamespaceLen is the maximum encoded length of a "<database>.<collection>"
// namespace string accepted by a legacy-opcode write.
const MaxNamespaceLen = 128

// Command is a single pending write operation plus its clause payload.
type Command struct {
	Kind Kind
	NS   Namespace

	Ordered bool

	// AllowBulkOpInsert is legacy-path-only: when false, legacy insert
	// batches contain exactly one document.
	AllowBulkOpInsert bool

	// Multi is delete-only: true means each delete clause removes all
	// matches, false means at most one.
	Multi bool

	// Payload holds one clause document per pending operation, in the
	// order they were appended. Keys are not stored here; array keys
	// ("0","1",…) are synthesized when encoding onto the wire.
	Payload []bsoncore.Document

	// ServerHint identifies the server selected to execute this command,
	// set by the Dispatcher and read by the executors.
	ServerHint interface{}
}

// NDocuments returns the number of clause documents, which must always
// equal len(Payload).
func (c *Command) NDocuments() uint32 { return uint32(len(c.Payload)) }

// NewInsert constructs an insert command from a set of user documents,
// synthesizing an "_id" for any document that lacks one at the top level.
func NewInsert(ns Namespace, docs []bsoncore.Document, ordered, allowBulkOpInsert bool) (*Command, error) {
	c := &Command{
		Kind:              Insert,
		NS:                ns,
		Ordered:           ordered,
		AllowBulkOpInsert: allowBulkOpInsert,
	}
	if err := c.AppendInsert(docs); err != nil {
		return nil, err
	}
	return c, nil
}

// NewUpdate constructs an update command from a single clause.
func NewUpdate(ns Namespace, selector, update bsoncore.Document, upsert, multi, ordered bool) (*Command, error) {
	c := &Command{Kind: Update, NS: ns, Ordered: ordered}
	if err := c.AppendUpdate(selector, update, upsert, multi); err != nil {
		return nil, err
	}
	return c, nil
}

// NewDelete constructs a delete command from a single clause.
func NewDelete(ns Namespace, selector bsoncore.Document, multi, ordered bool) (*Command, error) {
	c := &Command{Kind: Delete, NS: ns, Ordered: ordered, Multi: multi}
	if err := c.AppendDelete(selector); err != nil {
		return nil, err
	}
	return c, nil
}

// AppendInsert extends an insert command with more documents. Each
// document lacking a top-level "_id" gets one synthesized: a fresh
// ObjectID written first, followed by the document's own fields in their
// original order. The caller's document is never mutated; a new clause
// document is built instead.
func (c *Command) AppendInsert(docs []bsoncore.Document) error {
	if c.Kind != Insert {
		panic("AppendInsert called on a non-insert command")
	}
	for _, doc := range docs {
		if _, err := bsonenc.Measure(doc); err != nil {
			return fmt.Errorf("insert document is invalid: %w", err)
		}

		if hasTopLevelID(doc) {
			c.Payload = append(c.Payload, doc)
			continue
		}

		idx, clause := bsoncore.AppendDocumentStart(nil)
		clause = bsoncore.AppendObjectIDElement(clause, "_id", primitive.NewObjectID())
		clause = appendDocumentFields(clause, doc)
		built, err := bsoncore.AppendDocumentEnd(clause, idx)
		if err != nil {
			return err
		}
		c.Payload = append(c.Payload, bsoncore.Document(built))
	}
	return nil
}

// AppendUpdate extends an update command with one more {q, u, upsert,
// multi} clause.
func (c *Command) AppendUpdate(selector, update bsoncore.Document, upsert, multi bool) error {
	if c.Kind != Update {
		panic("AppendUpdate called on a non-update command")
	}
	idx, doc := bsoncore.AppendDocumentStart(nil)
	doc = bsoncore.AppendDocumentElement(doc, "q", selector)
	doc = bsoncore.AppendDocumentElement(doc, "u", update)
	doc = bsoncore.AppendBooleanElement(doc, "upsert", upsert)
	doc = bsoncore.AppendBooleanElement(doc, "multi", multi)
	built, err := bsoncore.AppendDocumentEnd(doc, idx)
	if err != nil {
		return err
	}
	c.Payload = append(c.Payload, bsoncore.Document(built))
	return nil
}

// AppendDelete extends a delete command with one more {q, limit} clause.
// limit is 0 ("all matching") when the command's Multi flag is set, else 1.
func (c *Command) AppendDelete(selector bsoncore.Document) error {
	if c.Kind != Delete {
		panic("AppendDelete called on a non-delete command")
	}
	limit := int32(1)
	if c.Multi {
		limit = 0
	}
	idx, doc := bsoncore.AppendDocumentStart(nil)
	doc = bsoncore.AppendDocumentElement(doc, "q", selector)
	doc = bsoncore.AppendInt32Element(doc, "limit", limit)
	built, err := bsoncore.AppendDocumentEnd(doc, idx)
	if err != nil {
		return err
	}
	c.Payload = append(c.Payload, bsoncore.Document(built))
	return nil
}

// Close drops the command's payload (NDocuments becomes 0) and leaves the
// memory to Go's GC; it exists so callers that expect a paired
// init/destroy lifecycle have one.
func (c *Command) Close() {
	c.Payload = nil
}

func hasTopLevelID(doc bsoncore.Document) bool {
	_, err := doc.LookupErr("_id")
	return err == nil
}

func appendDocumentFields(dst []byte, doc bsoncore.Document) []byte {
	elems, err := doc.Elements()
	if err != nil {
		return dst
	}
	for _, elem := range elems {
		dst = append(dst, elem...)
	}
	return dst
}
