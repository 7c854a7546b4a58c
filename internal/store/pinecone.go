package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/pinecone-io/go-pinecone/pinecone"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/skypro1111/voxgate/internal/domain"
)

const (
	pineconeFetchBatch = 100
	pineconeListLimit  = 100
)

// pineconeIndex is the subset of *pinecone.IndexConnection used by the store
type pineconeIndex interface {
	UpsertVectors(ctx context.Context, in []*pinecone.Vector) (uint32, error)
	FetchVectors(ctx context.Context, ids []string) (*pinecone.FetchVectorsResponse, error)
	ListVectors(ctx context.Context, in *pinecone.ListVectorsRequest) (*pinecone.ListVectorsResponse, error)
	DeleteVectorsById(ctx context.Context, ids []string) error
	Close() error
}

// PineconeOptions configures the remote vector index
type PineconeOptions struct {
	APIKey    string
	Host      string
	Namespace string
}

// Pinecone is a Store backed by a Pinecone serverless index. Each sample
// is one vector with id "{identity}#{index}". Identity metadata is copied
// onto every vector, so an identity without samples is not retained.
type Pinecone struct {
	index pineconeIndex
}

// NewPinecone connects to a Pinecone index
func NewPinecone(opts PineconeOptions) (*Pinecone, error) {
	if opts.APIKey == "" || opts.Host == "" {
		return nil, errors.New("store: pinecone api key and host are required")
	}

	client, err := pinecone.NewClient(pinecone.NewClientParams{ApiKey: opts.APIKey})
	if err != nil {
		return nil, fmt.Errorf("store: pinecone client: %w", err)
	}

	conn, err := client.Index(pinecone.NewIndexConnParams{Host: opts.Host, Namespace: opts.Namespace})
	if err != nil {
		return nil, fmt.Errorf("store: pinecone index: %w", err)
	}

	return &Pinecone{index: conn}, nil
}

func newPineconeWithIndex(index pineconeIndex) *Pinecone {
	return &Pinecone{index: index}
}

func vectorID(identityID string, index int) string {
	return identityID + "#" + strconv.Itoa(index)
}

func (p *Pinecone) Save(ctx context.Context, sample Sample) error {
	if err := validateSample(sample); err != nil {
		return err
	}

	existing, err := p.fetchPrefix(ctx, sample.IdentityID+"#")
	if err != nil {
		return err
	}

	ident := Identity{ID: sample.IdentityID, CreatedAt: time.Now()}
	ident.Ordinal = uint64(ident.CreatedAt.UnixNano())
	if len(existing) > 0 {
		ident = existing[0].identity
	}

	metadata, err := structpb.NewStruct(map[string]any{
		"identity_id":         sample.IdentityID,
		"sample_index":        float64(sample.Index),
		"quality":             sample.Quality,
		"duration":            sample.Duration,
		"created_at":          sample.CreatedAt.UTC().Format(time.RFC3339Nano),
		"model":               sample.Embedding.Model,
		"model_version":       sample.Embedding.ModelVersion,
		"identity_created_at": ident.CreatedAt.UTC().Format(time.RFC3339Nano),
		"identity_ordinal":    strconv.FormatUint(ident.Ordinal, 10),
	})
	if err != nil {
		return fmt.Errorf("store: pinecone metadata: %w", err)
	}

	_, err = p.index.UpsertVectors(ctx, []*pinecone.Vector{{
		Id:       vectorID(sample.IdentityID, sample.Index),
		Values:   append([]float32(nil), sample.Embedding.Vector...),
		Metadata: &pinecone.Metadata{Fields: metadata.Fields},
	}})
	if err != nil {
		return fmt.Errorf("store: pinecone upsert: %w", err)
	}
	return nil
}

func (p *Pinecone) Samples(ctx context.Context, identityID string) ([]Sample, error) {
	records, err := p.fetchPrefix(ctx, identityID+"#")
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}
	samples := make([]Sample, 0, len(records))
	for _, r := range records {
		samples = append(samples, r.sample)
	}
	sortSamples(samples)
	return samples, nil
}

func (p *Pinecone) Delete(ctx context.Context, identityID string, index int) error {
	id := vectorID(identityID, index)
	res, err := p.index.FetchVectors(ctx, []string{id})
	if err != nil {
		return fmt.Errorf("store: pinecone fetch: %w", err)
	}
	if res == nil || res.Vectors[id] == nil {
		ids, err := p.listIDs(ctx, identityID+"#")
		if err != nil {
			return err
		}
		if len(ids) == 0 {
			return fmt.Errorf("%w: %s", domain.ErrIdentityNotFound, identityID)
		}
		return fmt.Errorf("%w: %s", domain.ErrSampleNotFound, id)
	}
	if err := p.index.DeleteVectorsById(ctx, []string{id}); err != nil {
		return fmt.Errorf("store: pinecone delete: %w", err)
	}
	return nil
}

func (p *Pinecone) DeleteIdentity(ctx context.Context, identityID string) error {
	ids, err := p.listIDs(ctx, identityID+"#")
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		return fmt.Errorf("%w: %s", domain.ErrIdentityNotFound, identityID)
	}
	if err := p.index.DeleteVectorsById(ctx, ids); err != nil {
		return fmt.Errorf("store: pinecone delete: %w", err)
	}
	return nil
}

func (p *Pinecone) ActiveEmbeddings(ctx context.Context) ([]Entry, error) {
	records, err := p.fetchPrefix(ctx, "")
	if err != nil {
		return nil, err
	}

	byID := make(map[string]*Entry)
	var order []string
	for _, r := range records {
		e, ok := byID[r.sample.IdentityID]
		if !ok {
			e = &Entry{IdentityID: r.sample.IdentityID, Ordinal: r.identity.Ordinal}
			byID[r.sample.IdentityID] = e
			order = append(order, r.sample.IdentityID)
		}
		e.Samples = append(e.Samples, r.sample)
	}

	entries := make([]Entry, 0, len(order))
	for _, id := range order {
		e := byID[id]
		sortSamples(e.Samples)
		entries = append(entries, *e)
	}
	sortEntries(entries)
	return entries, nil
}

func (p *Pinecone) Identities(ctx context.Context) ([]Identity, error) {
	records, err := p.fetchPrefix(ctx, "")
	if err != nil {
		return nil, err
	}

	byID := make(map[string]*Identity)
	for _, r := range records {
		ident, ok := byID[r.identity.ID]
		if !ok {
			cp := r.identity
			ident = &cp
			byID[r.identity.ID] = ident
		}
		ident.SampleCount++
	}

	out := make([]Identity, 0, len(byID))
	for _, ident := range byID {
		out = append(out, *ident)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	sortIdentities(out)
	return out, nil
}

func (p *Pinecone) Close() error {
	return p.index.Close()
}

// fetchPrefix lists every vector id with the prefix and fetches the vectors
func (p *Pinecone) fetchPrefix(ctx context.Context, prefix string) ([]vectorRecord, error) {
	ids, err := p.listIDs(ctx, prefix)
	if err != nil {
		return nil, err
	}

	var records []vectorRecord
	for start := 0; start < len(ids); start += pineconeFetchBatch {
		end := min(start+pineconeFetchBatch, len(ids))
		res, err := p.index.FetchVectors(ctx, ids[start:end])
		if err != nil {
			return nil, fmt.Errorf("store: pinecone fetch: %w", err)
		}
		for _, id := range ids[start:end] {
			v, ok := res.Vectors[id]
			if !ok || v == nil {
				continue
			}
			r, err := decodeVector(v)
			if err != nil {
				return nil, err
			}
			records = append(records, r)
		}
	}
	return records, nil
}

func (p *Pinecone) listIDs(ctx context.Context, prefix string) ([]string, error) {
	var ids []string
	var token *string
	limit := uint32(pineconeListLimit)
	for {
		req := &pinecone.ListVectorsRequest{Limit: &limit, PaginationToken: token}
		if prefix != "" {
			req.Prefix = &prefix
		}
		res, err := p.index.ListVectors(ctx, req)
		if err != nil {
			return nil, fmt.Errorf("store: pinecone list: %w", err)
		}
		for _, id := range res.VectorIds {
			if id != nil {
				ids = append(ids, *id)
			}
		}
		if res.NextPaginationToken == nil || *res.NextPaginationToken == "" {
			return ids, nil
		}
		token = res.NextPaginationToken
	}
}

// vectorRecord is a decoded vector with the identity fields copied onto it
type vectorRecord struct {
	sample   Sample
	identity Identity
}

func decodeVector(v *pinecone.Vector) (vectorRecord, error) {
	if v.Metadata == nil {
		return vectorRecord{}, fmt.Errorf("store: vector %s has no metadata", v.Id)
	}
	md := v.Metadata.AsMap()

	identityID, _ := md["identity_id"].(string)
	if identityID == "" {
		identityID, _, _ = strings.Cut(v.Id, "#")
	}
	index, _ := md["sample_index"].(float64)
	quality, _ := md["quality"].(float64)
	duration, _ := md["duration"].(float64)
	model, _ := md["model"].(string)
	version, _ := md["model_version"].(string)
	ordinalText, _ := md["identity_ordinal"].(string)
	ordinal, err := strconv.ParseUint(ordinalText, 10, 64)
	if err != nil {
		return vectorRecord{}, fmt.Errorf("store: vector %s has a bad identity ordinal: %w", v.Id, err)
	}

	return vectorRecord{
		sample: Sample{
			IdentityID: identityID,
			Index:      int(index),
			Embedding: domain.Embedding{
				Vector:       append([]float32(nil), v.Values...),
				Model:        model,
				ModelVersion: version,
			},
			Quality:   quality,
			Duration:  duration,
			CreatedAt: parseTime(md["created_at"]),
		},
		identity: Identity{
			ID:        identityID,
			Ordinal:   ordinal,
			CreatedAt: parseTime(md["identity_created_at"]),
		},
	}, nil
}

func parseTime(v any) time.Time {
	s, _ := v.(string)
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
