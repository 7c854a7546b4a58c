package audit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Observer is notified of every stored record
type Observer interface {
	RecordAudit(kind string)
}

// Recorder stamps records with an id and time and appends them to a sink
type Recorder struct {
	sink     Sink
	logger   *slog.Logger
	observer Observer
	now      func() time.Time
}

// NewRecorder creates a recorder over a sink. The observer may be nil.
func NewRecorder(sink Sink, observer Observer, logger *slog.Logger) (*Recorder, error) {
	if sink == nil {
		return nil, errors.New("audit: sink is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{sink: sink, logger: logger, observer: observer, now: time.Now}, nil
}

// Record stores a deep copy of r with a fresh id and timestamp and returns it
func (rc *Recorder) Record(ctx context.Context, r Record) (Record, error) {
	if _, err := ParseKind(string(r.Kind)); err != nil || r.Kind == "" {
		return Record{}, fmt.Errorf("audit: invalid kind %q", r.Kind)
	}

	snapshot := r.Clone()
	snapshot.ID = uuid.NewString()
	snapshot.Timestamp = rc.now().UTC()

	if err := rc.sink.Append(ctx, snapshot); err != nil {
		return Record{}, fmt.Errorf("audit: append: %w", err)
	}

	if rc.observer != nil {
		rc.observer.RecordAudit(string(snapshot.Kind))
	}

	rc.logger.Debug("Audit record stored",
		slog.String("id", snapshot.ID),
		slog.String("kind", string(snapshot.Kind)),
		slog.Duration("latency", snapshot.Latency),
	)

	return snapshot.Clone(), nil
}

// List returns stored records, newest first
func (rc *Recorder) List(ctx context.Context, f Filter) ([]Record, error) {
	return rc.sink.List(ctx, f)
}

// Close closes the sink
func (rc *Recorder) Close() error {
	return rc.sink.Close()
}
