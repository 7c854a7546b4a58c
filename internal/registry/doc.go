// Package registry fetches model artifacts from an HTTP model registry.
//
// Artifacts are addressed as {endpoint}/models/{name}/{version}/{file} and
// stored under {cache_dir}/{name}/{version}/{file}. Downloads are bounded by
// a semaphore, retried with exponential backoff on server and transport
// errors, verified against an optional SHA-256 header and moved into place
// atomically.
package registry
