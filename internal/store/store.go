package store

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/skypro1111/voxgate/internal/domain"
)

// Sample is one enrolled embedding of an identity
type Sample struct {
	IdentityID string           `json:"identity_id" msgpack:"identity_id"`
	Index      int              `json:"index" msgpack:"index"`
	Embedding  domain.Embedding `json:"embedding" msgpack:"embedding"`
	Quality    float64          `json:"quality" msgpack:"quality"`
	Duration   float64          `json:"duration_seconds" msgpack:"duration"`
	CreatedAt  time.Time        `json:"created_at" msgpack:"created_at"`
}

// Clone returns a deep copy
func (s Sample) Clone() Sample {
	s.Embedding = s.Embedding.Clone()
	return s
}

// Identity is the store view of an enrolled identity. Ordinal increases with
// creation order and breaks similarity ties.
type Identity struct {
	ID          string    `json:"id" msgpack:"id"`
	Ordinal     uint64    `json:"ordinal" msgpack:"ordinal"`
	CreatedAt   time.Time `json:"created_at" msgpack:"created_at"`
	SampleCount int       `json:"sample_count" msgpack:"-"`
}

// Entry is one identity of the gallery with its samples ordered by index
type Entry struct {
	IdentityID string
	Ordinal    uint64
	Samples    []Sample
}

// Store persists enrolled samples. Implementations are safe for concurrent
// use; reads return point-in-time copies.
type Store interface {
	// Save creates the identity on first use and replaces any sample at the same index.
	Save(ctx context.Context, sample Sample) error
	// Samples returns the samples of an identity ordered by index; unknown identities have none.
	Samples(ctx context.Context, identityID string) ([]Sample, error)
	// Delete removes one sample. The identity survives even when it becomes empty.
	Delete(ctx context.Context, identityID string, index int) error
	// DeleteIdentity removes an identity and all of its samples.
	DeleteIdentity(ctx context.Context, identityID string) error
	// ActiveEmbeddings returns every identity with at least one sample, in ordinal order.
	ActiveEmbeddings(ctx context.Context) ([]Entry, error)
	// Identities lists every known identity in ordinal order.
	Identities(ctx context.Context) ([]Identity, error)
	Close() error
}

func validateSample(s Sample) error {
	if err := domain.ValidateIdentityID(s.IdentityID); err != nil {
		return err
	}
	if s.Index < 0 {
		return fmt.Errorf("sample index cannot be negative, got %d", s.Index)
	}
	if s.Embedding.Dimension() == 0 {
		return fmt.Errorf("sample embedding is empty")
	}
	return nil
}

func sortSamples(samples []Sample) {
	sort.Slice(samples, func(i, j int) bool { return samples[i].Index < samples[j].Index })
}

func sortIdentities(ids []Identity) {
	sort.SliceStable(ids, func(i, j int) bool { return ids[i].Ordinal < ids[j].Ordinal })
}

func sortEntries(entries []Entry) {
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].Ordinal < entries[j].Ordinal })
}
