// Package result implements the single sum-type Result Model shared by all
// five resource-store operations (GET, STORAGE_EXPAND, PUT, DELETE,
// CLEANUP). Exactly one Value is delivered per request.
/*
 * Copyright (c) 2018-2020, NVIDIA CORPORATION. All rights reserved.
 */
package result

import "io"

// Outcome tags which variant a Value holds.
type Outcome int

const (
	OutcomeDocument Outcome = iota
	OutcomeCollection
	OutcomeNotFound
	OutcomeNotModified
	OutcomeNotEmpty
	OutcomeRejected
	OutcomeInvalid
	OutcomeError
)

func (o Outcome) String() string {
	switch o {
	case OutcomeDocument:
		return "Document"
	case OutcomeCollection:
		return "Collection"
	case OutcomeNotFound:
		return "NotFound"
	case OutcomeNotModified:
		return "NotModified"
	case OutcomeNotEmpty:
		return "NotEmpty"
	case OutcomeRejected:
		return "Rejected"
	case OutcomeInvalid:
		return "Invalid"
	case OutcomeError:
		return "Error"
	default:
		return "Unknown"
	}
}

// Item is one entry in a Collection listing. Name carries no trailing
// separator; IsCollection marks sub-collections, the rest are documents.
type Item struct {
	Name         string
	IsCollection bool
}

// Document is a streamed resource body plus its metadata. Len is the
// decompressed byte length when known ahead of the stream being drained
// (-1 when unknown, e.g. a synthesized STORAGE_EXPAND body is always known).
//
// Exists is true on every Document the engine returns; it is false only for the
// "existingResource" PUT outcome — an unusual overload the spec(§4.D, Open
// Question a) calls for literally: "this path would shadow an existing
// document ancestor", surfaced as a Document result rather than its own
// Outcome so that callers handling PUT responses don't need a sixth case
// just for this one conflict shape.
type Document struct {
	Stream     io.Reader
	Len        int64
	Etag       string
	Exists     bool
	Compressed bool
}

// Collection is the derived listing of a collection's children.
type Collection struct {
	Items []Item
	// Conflict is set true for the "existingCollection" PUT outcome: caller
	// tried to PUT a document where a collection already exists.
	Conflict bool
}

// Value is the tagged union delivered to exactly one handler per request.
type Value struct {
	Outcome    Outcome
	Document   *Document
	Collection *Collection
	Message    string // populated for OutcomeInvalid / OutcomeError
}

func NotFound() Value    { return Value{Outcome: OutcomeNotFound} }
func NotModified() Value { return Value{Outcome: OutcomeNotModified} }
func NotEmpty() Value    { return Value{Outcome: OutcomeNotEmpty} }
func Rejected() Value    { return Value{Outcome: OutcomeRejected} }

func Invalid(msg string) Value { return Value{Outcome: OutcomeInvalid, Message: msg} }
func Err(msg string) Value     { return Value{Outcome: OutcomeError, Message: msg} }

func Doc(d *Document) Value { return Value{Outcome: OutcomeDocument, Document: d} }
func Coll(c *Collection) Value {
	return Value{Outcome: OutcomeCollection, Collection: c}
}

// ExistingCollectionConflict is the "existingCollection" PUT outcome: the
// caller tried to PUT a document at a path that is already an observable
// collection.
func ExistingCollectionConflict() Value {
	return Coll(&Collection{Conflict: true})
}

// ExistingResourceConflict is the "existingResource" PUT outcome (Open
// Question a): an ancestor segment of the target path is already a
// document, so no document can be created beneath it.
func ExistingResourceConflict() Value {
	return Doc(&Document{Exists: false})
}

// IsSuccess reports whether v represents Document/Collection delivery
// rather than a terminal non-success outcome.
func (v Value) IsSuccess() bool {
	return v.Outcome == OutcomeDocument || v.Outcome == OutcomeCollection
}
