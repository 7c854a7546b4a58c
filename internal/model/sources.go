package model

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/skypro1111/voxgate/internal/config"
)

// Fetcher downloads a model artifact and returns its local path
type Fetcher interface {
	Fetch(ctx context.Context, name, version, file string) (string, error)
}

// EmbeddingLoaders builds the prioritized embedding sources from config
func EmbeddingLoaders(cfg config.ModelConfig, sampleRate int, fetcher Fetcher) ([]Loader[Embedder], error) {
	loaders := make([]Loader[Embedder], 0, len(cfg.Embedding.Sources))
	for _, src := range cfg.Embedding.Sources {
		src := src
		l := Loader[Embedder]{Kind: SourceKind(src.Kind), Name: src.Name, Version: src.Version}

		switch l.Kind {
		case SourceBuiltin:
			if src.Name != LogMelName {
				return nil, fmt.Errorf("unknown builtin embedder %q", src.Name)
			}
			l.Load = func(context.Context, Device) (Embedder, error) {
				lm := DefaultLogMelConfig()
				lm.SampleRate = sampleRate
				return NewLogMelEncoder(lm)
			}
		case SourceCache, SourceRegistry:
			if src.Dimension < 1 {
				return nil, fmt.Errorf("embedding source %s needs a dimension", src.Name)
			}
			l.Load = func(ctx context.Context, device Device) (Embedder, error) {
				path, err := resolveArtifact(ctx, cfg, src, fetcher)
				if err != nil {
					return nil, err
				}
				return NewONNXEmbedder(onnxOptions(cfg, src, path, sampleRate, src.Dimension, device))
			}
		default:
			return nil, fmt.Errorf("unknown source kind %q", src.Kind)
		}

		loaders = append(loaders, l)
	}
	return loaders, nil
}

// ClassificationLoaders builds the prioritized classification sources from config
func ClassificationLoaders(cfg config.ModelConfig, sampleRate int, fetcher Fetcher) ([]Loader[Classifier], error) {
	labels := cfg.Classification.Labels
	loaders := make([]Loader[Classifier], 0, len(cfg.Classification.Sources))
	for _, src := range cfg.Classification.Sources {
		src := src
		l := Loader[Classifier]{Kind: SourceKind(src.Kind), Name: src.Name, Version: src.Version}

		switch l.Kind {
		case SourceCache, SourceRegistry:
			l.Load = func(ctx context.Context, device Device) (Classifier, error) {
				path, err := resolveArtifact(ctx, cfg, src, fetcher)
				if err != nil {
					return nil, err
				}
				return NewONNXClassifier(onnxOptions(cfg, src, path, sampleRate, len(labels), device), labels)
			}
		case SourceBuiltin:
			return nil, fmt.Errorf("no builtin classifier named %q", src.Name)
		default:
			return nil, fmt.Errorf("unknown source kind %q", src.Kind)
		}

		loaders = append(loaders, l)
	}
	return loaders, nil
}

// resolveArtifact returns a local path for a cache or registry source
func resolveArtifact(ctx context.Context, cfg config.ModelConfig, src config.SourceConfig, fetcher Fetcher) (string, error) {
	if SourceKind(src.Kind) == SourceRegistry {
		if fetcher == nil {
			return "", fmt.Errorf("model registry is not configured")
		}
		return fetcher.Fetch(ctx, src.Name, src.Version, src.Path)
	}

	path := src.Path
	if !filepath.IsAbs(path) {
		path = filepath.Join(cfg.CacheDir, path)
	}
	if _, err := os.Stat(path); err != nil {
		return "", fmt.Errorf("model not in cache: %w", err)
	}
	return path, nil
}

func onnxOptions(cfg config.ModelConfig, src config.SourceConfig, path string, sampleRate, outputSize int, device Device) ONNXOptions {
	return ONNXOptions{
		Path:          path,
		LibraryPath:   cfg.ONNXLibrary,
		InputName:     src.InputName,
		OutputName:    src.OutputName,
		WindowSamples: int(src.WindowSeconds * float64(sampleRate)),
		OutputSize:    outputSize,
		Device:        device,
	}
}
