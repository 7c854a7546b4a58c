package model

import (
	"context"
	"io"

	"github.com/skypro1111/voxgate/internal/audio"
)

// Capability names one of the model-backed functions of the pipeline
type Capability string

const (
	CapabilityEmbedding      Capability = "embedding"
	CapabilityClassification Capability = "classification"
)

// Device is the compute device a capability runs on
type Device string

const (
	DeviceCPU  Device = "cpu"
	DeviceCUDA Device = "cuda"
)

// SourceKind is where a model is loaded from
type SourceKind string

const (
	SourceCache    SourceKind = "cache"
	SourceRegistry SourceKind = "registry"
	SourceBuiltin  SourceKind = "builtin"
)

// Embedder turns a canonical waveform into a fixed-length vector.
// Implementations must be safe for concurrent use.
type Embedder interface {
	Embed(ctx context.Context, w *audio.Waveform) ([]float32, error)
	Dimension() int
	io.Closer
}

// Classifier turns a canonical waveform into a probability per label.
// Implementations must be safe for concurrent use.
type Classifier interface {
	Classify(ctx context.Context, w *audio.Waveform) ([]float64, error)
	Labels() []string
	io.Closer
}

// Loader is one prioritized source for a capability
type Loader[T io.Closer] struct {
	Kind    SourceKind
	Name    string
	Version string
	Load    func(ctx context.Context, device Device) (T, error)
}

// ID returns the "kind:name" form used in logs and errors
func (l Loader[T]) ID() string {
	return string(l.Kind) + ":" + l.Name
}

// InitObserver is notified of every source load attempt
type InitObserver interface {
	RecordModelInit(capability, source string, success bool)
}
