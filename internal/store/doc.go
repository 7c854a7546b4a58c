// Package store persists enrolled embedding samples.
//
// Three backends implement Store: an in-process map, BadgerDB on local disk
// and a Pinecone index. Identities are ordered by an ordinal assigned when
// their first sample is saved.
package store
