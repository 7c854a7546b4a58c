package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/skypro1111/voxgate/internal/domain"
)

type memoryIdentity struct {
	Identity
	samples map[int]Sample
}

// Memory is an in-process Store
type Memory struct {
	mu          sync.RWMutex
	identities  map[string]*memoryIdentity
	nextOrdinal uint64
}

// NewMemory creates an empty in-memory store
func NewMemory() *Memory {
	return &Memory{identities: make(map[string]*memoryIdentity)}
}

func (m *Memory) Save(_ context.Context, sample Sample) error {
	if err := validateSample(sample); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.identities[sample.IdentityID]
	if !ok {
		rec = &memoryIdentity{
			Identity: Identity{ID: sample.IdentityID, Ordinal: m.nextOrdinal, CreatedAt: time.Now()},
			samples:  make(map[int]Sample),
		}
		m.nextOrdinal++
		m.identities[sample.IdentityID] = rec
	}
	rec.samples[sample.Index] = sample.Clone()
	return nil
}

func (m *Memory) Samples(_ context.Context, identityID string) ([]Sample, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.identities[identityID]
	if !ok {
		return nil, nil
	}
	return rec.copySamples(), nil
}

func (m *Memory) Delete(_ context.Context, identityID string, index int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.identities[identityID]
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrIdentityNotFound, identityID)
	}
	if _, ok := rec.samples[index]; !ok {
		return fmt.Errorf("%w: %s#%d", domain.ErrSampleNotFound, identityID, index)
	}
	delete(rec.samples, index)
	return nil
}

func (m *Memory) DeleteIdentity(_ context.Context, identityID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.identities[identityID]; !ok {
		return fmt.Errorf("%w: %s", domain.ErrIdentityNotFound, identityID)
	}
	delete(m.identities, identityID)
	return nil
}

func (m *Memory) ActiveEmbeddings(_ context.Context) ([]Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entries := make([]Entry, 0, len(m.identities))
	for _, rec := range m.identities {
		if len(rec.samples) == 0 {
			continue
		}
		entries = append(entries, Entry{
			IdentityID: rec.ID,
			Ordinal:    rec.Ordinal,
			Samples:    rec.copySamples(),
		})
	}
	sortEntries(entries)
	return entries, nil
}

func (m *Memory) Identities(_ context.Context) ([]Identity, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := make([]Identity, 0, len(m.identities))
	for _, rec := range m.identities {
		id := rec.Identity
		id.SampleCount = len(rec.samples)
		ids = append(ids, id)
	}
	sortIdentities(ids)
	return ids, nil
}

func (m *Memory) Close() error { return nil }

func (r *memoryIdentity) copySamples() []Sample {
	out := make([]Sample, 0, len(r.samples))
	for _, s := range r.samples {
		out = append(out, s.Clone())
	}
	sortSamples(out)
	return out
}
