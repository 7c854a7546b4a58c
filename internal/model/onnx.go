//go:build onnx

package model

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/skypro1111/voxgate/internal/audio"
)

// ErrNativeUnavailable is never returned when the onnx backend is compiled in.
var ErrNativeUnavailable = errors.New("model: onnx backend not available")

// ortInitOnce guards the process-wide ONNX Runtime environment. The error is
// kept so later sessions report the original failure.
var (
	ortInitOnce sync.Once
	ortInitErr  error
)

// ONNXAvailable reports that the ONNX backend is compiled in.
func ONNXAvailable() bool { return true }

func initRuntime(libraryPath string) error {
	ortInitOnce.Do(func() {
		if libraryPath == "" {
			libraryPath = os.Getenv("ONNXRUNTIME_LIB_PATH")
		}
		if libraryPath != "" {
			if _, err := os.Stat(libraryPath); err != nil {
				ortInitErr = fmt.Errorf("onnxruntime library %q: %w", libraryPath, err)
				return
			}
			ort.SetSharedLibraryPath(libraryPath)
		}
		ortInitErr = ort.InitializeEnvironment()
	})
	return ortInitErr
}

// onnxSession owns one AdvancedSession and its reused tensors. Run is
// serialized because the tensors are shared between calls.
type onnxSession struct {
	mu      sync.Mutex
	session *ort.AdvancedSession
	input   *ort.Tensor[float32]
	output  *ort.Tensor[float32]
}

func newONNXSession(opts ONNXOptions) (*onnxSession, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if _, err := os.Stat(opts.Path); err != nil {
		return nil, fmt.Errorf("model file: %w", err)
	}
	if err := initRuntime(opts.LibraryPath); err != nil {
		return nil, fmt.Errorf("onnx: %w", err)
	}

	input, err := ort.NewEmptyTensor[float32](ort.NewShape(1, int64(opts.WindowSamples)))
	if err != nil {
		return nil, fmt.Errorf("onnx: create input tensor: %w", err)
	}
	output, err := ort.NewEmptyTensor[float32](ort.NewShape(1, int64(opts.OutputSize)))
	if err != nil {
		input.Destroy()
		return nil, fmt.Errorf("onnx: create output tensor: %w", err)
	}

	var sessionOpts *ort.SessionOptions
	if opts.Device == DeviceCUDA {
		sessionOpts, err = cudaSessionOptions()
		if err != nil {
			input.Destroy()
			output.Destroy()
			return nil, err
		}
		defer sessionOpts.Destroy()
	}

	session, err := ort.NewAdvancedSession(
		opts.Path,
		[]string{opts.InputName},
		[]string{opts.OutputName},
		[]ort.Value{input},
		[]ort.Value{output},
		sessionOpts,
	)
	if err != nil {
		input.Destroy()
		output.Destroy()
		return nil, fmt.Errorf("onnx: create session: %w", err)
	}

	return &onnxSession{session: session, input: input, output: output}, nil
}

func cudaSessionOptions() (*ort.SessionOptions, error) {
	sessionOpts, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("onnx: session options: %w", err)
	}
	cudaOpts, err := ort.NewCUDAProviderOptions()
	if err != nil {
		sessionOpts.Destroy()
		return nil, fmt.Errorf("onnx: cuda provider options: %w", err)
	}
	defer cudaOpts.Destroy()
	if err := sessionOpts.AppendExecutionProviderCUDA(cudaOpts); err != nil {
		sessionOpts.Destroy()
		return nil, fmt.Errorf("onnx: enable cuda: %w", err)
	}
	return sessionOpts, nil
}

func (s *onnxSession) run(ctx context.Context, samples []float64) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.session == nil {
		return nil, fmt.Errorf("onnx: session closed")
	}
	fitWindow(s.input.GetData(), samples)
	if err := s.session.Run(); err != nil {
		return nil, fmt.Errorf("onnx: run: %w", err)
	}
	return append([]float32(nil), s.output.GetData()...), nil
}

func (s *onnxSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.session != nil {
		s.session.Destroy()
		s.session = nil
	}
	if s.input != nil {
		s.input.Destroy()
		s.input = nil
	}
	if s.output != nil {
		s.output.Destroy()
		s.output = nil
	}
	return nil
}

type onnxEmbedder struct {
	*onnxSession
	dim int
}

// NewONNXEmbedder loads a speaker embedding model.
func NewONNXEmbedder(opts ONNXOptions) (Embedder, error) {
	s, err := newONNXSession(opts)
	if err != nil {
		return nil, err
	}
	return &onnxEmbedder{onnxSession: s, dim: opts.OutputSize}, nil
}

func (e *onnxEmbedder) Embed(ctx context.Context, w *audio.Waveform) ([]float32, error) {
	if w == nil {
		return nil, fmt.Errorf("waveform cannot be nil")
	}
	return e.run(ctx, w.Samples)
}

func (e *onnxEmbedder) Dimension() int { return e.dim }

type onnxClassifier struct {
	*onnxSession
	labels []string
}

// NewONNXClassifier loads a classifier whose output is one logit per label.
func NewONNXClassifier(opts ONNXOptions, labels []string) (Classifier, error) {
	if len(labels) != opts.OutputSize {
		return nil, fmt.Errorf("onnx: %d labels for output size %d", len(labels), opts.OutputSize)
	}
	s, err := newONNXSession(opts)
	if err != nil {
		return nil, err
	}
	return &onnxClassifier{onnxSession: s, labels: append([]string(nil), labels...)}, nil
}

func (c *onnxClassifier) Classify(ctx context.Context, w *audio.Waveform) ([]float64, error) {
	if w == nil {
		return nil, fmt.Errorf("waveform cannot be nil")
	}
	logits, err := c.run(ctx, w.Samples)
	if err != nil {
		return nil, err
	}
	return softmax(logits), nil
}

func (c *onnxClassifier) Labels() []string { return c.labels }
