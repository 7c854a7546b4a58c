// Package matching ranks an enrolled gallery against a probe embedding
// and makes the threshold decision. It is pure and deterministic.
package matching
