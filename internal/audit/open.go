package audit

import (
	"fmt"

	"github.com/skypro1111/voxgate/internal/config"
)

// Open creates the sink selected by the configuration
func Open(cfg config.AuditConfig) (Sink, error) {
	switch cfg.Sink {
	case "memory", "":
		return NewMemory(), nil
	case "sqlite":
		return NewSQLite(cfg.SQLitePath)
	default:
		return nil, fmt.Errorf("audit: unknown sink %q", cfg.Sink)
	}
}
