package store

import (
	"fmt"
	"log/slog"

	"github.com/skypro1111/voxgate/internal/config"
)

// Open creates the Store selected by the configuration
func Open(cfg config.StoreConfig, logger *slog.Logger) (Store, error) {
	switch cfg.Backend {
	case "memory", "":
		return NewMemory(), nil
	case "badger":
		return NewBadger(BadgerOptions{
			Dir:      cfg.Badger.Dir,
			InMemory: cfg.Badger.InMemory,
			Logger:   logger,
		})
	case "pinecone":
		return NewPinecone(PineconeOptions{
			APIKey:    cfg.Pinecone.APIKey,
			Host:      cfg.Pinecone.Host,
			Namespace: cfg.Pinecone.Namespace,
		})
	default:
		return nil, fmt.Errorf("store: unknown backend %q", cfg.Backend)
	}
}
