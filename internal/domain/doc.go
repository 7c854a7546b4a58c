// Package domain holds the types and errors shared by every stage of the
// voxgate pipeline: embeddings, identity id rules and the error taxonomy
// (input, quality, capability and precondition failures).
package domain
