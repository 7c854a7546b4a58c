// Package model holds the embedding and classification capabilities.
//
// A Gateway owns one slot per capability. Each slot has a prioritized list
// of loaders (local cache, model registry, builtin) that is walked once on
// initialization; the first success becomes the active model for the life
// of the process. Concurrent initializers wait on the single in-flight
// attempt. A failed attempt leaves the slot empty so that it can be retried.
//
// ONNX models are served by onnxruntime and compiled in with the "onnx"
// build tag. Without it the ONNX constructors return ErrNativeUnavailable
// and only the builtin log-mel statistics encoder is available.
package model
