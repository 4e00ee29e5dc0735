// Package openapi implements the OpenAPI v3.1.0 / JSON Schema Draft 2020-12
// document model consumed by the gateway.
//
// Unlike a typical OpenAPI package that generates a specification document
// from a set of registered routes, this package runs in the opposite
// direction: it decodes specification documents authored elsewhere (hand
// written, exported from a design tool, produced by another service's
// build) and hands the result to the rest of the gateway, which derives
// its routing table, its request/response validators, and its storage
// schema from what the document says.
//
// # Document model
//
// Document is the root of a decoded specification. Its shape follows the
// OpenAPI v3.1.0 object model closely: Paths map URL templates to
// PathItems, each of which may declare an Operation per HTTP method, each
// of which may declare Parameters, a RequestBody, and Responses, with
// Schema used throughout to describe JSON shapes. Components holds the
// reusable definitions referenced by $ref elsewhere in the document.
//
// Document, PathItem, Operation, and Schema all carry an Extensions field
// populated from any "x-" prefixed keys found alongside their standard
// fields. The gateway uses these to attach information the OpenAPI object
// model has no native field for: x-table-schemas and x-table-schema
// describe how a resource maps onto a relational table, x-relation,
// x-unique, x-index, and x-auto-field refine a column's storage
// behaviour, and x-modules names the pipeline modules an operation or
// path should run through. Callers read Document.Extensions,
// PathItem.Extensions, Operation.Extensions, and Schema.Extensions with
// Extensions.Get, supplying a destination value to unmarshal the raw
// extension payload into.
//
// # $ref resolution
//
// This package does not resolve "$ref" pointers itself; it decodes them
// verbatim into the Ref field of the object that carries them. Resolution
// against Components (and across merged documents, when more than one
// specification is attached to a listener) is the responsibility of the
// schema-extraction and route-generation code that walks a decoded
// Document, since only that code knows which documents are in scope for a
// given reference.
package openapi
