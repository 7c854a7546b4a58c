//go:build !onnx

package model

import "errors"

// ErrNativeUnavailable indicates the ONNX backend is not compiled in.
var ErrNativeUnavailable = errors.New("model: onnx backend not available (build without -tags onnx)")

// ONNXAvailable reports that no ONNX backend is compiled in.
func ONNXAvailable() bool { return false }

// NewONNXEmbedder returns an error when built without the onnx tag.
func NewONNXEmbedder(_ ONNXOptions) (Embedder, error) {
	return nil, ErrNativeUnavailable
}

// NewONNXClassifier returns an error when built without the onnx tag.
func NewONNXClassifier(_ ONNXOptions, _ []string) (Classifier, error) {
	return nil, ErrNativeUnavailable
}
