package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/skypro1111/voxgate/internal/domain"
)

const (
	identityPrefix = "identity/"
	samplePrefix   = "sample/"
	ordinalSeqKey  = "meta/identity-ordinal"
)

// Badger is a Store backed by BadgerDB v4 with msgpack-encoded values.
//
// Key layout:
//
//	identity/{id}          -> Identity
//	sample/{id}/{index}    -> Sample
type Badger struct {
	db  *badger.DB
	seq *badger.Sequence
}

// BadgerOptions configures the BadgerDB store
type BadgerOptions struct {
	// Dir is the directory for data files. Required unless InMemory is set.
	Dir string

	// InMemory runs BadgerDB without disk persistence.
	InMemory bool

	// Logger receives badger's own log output. Nil silences it.
	Logger *slog.Logger
}

// NewBadger opens a BadgerDB-backed Store
func NewBadger(opts BadgerOptions) (*Badger, error) {
	if !opts.InMemory && opts.Dir == "" {
		return nil, errors.New("store: badger dir is required for on-disk mode")
	}

	dbOpts := badger.DefaultOptions(opts.Dir)
	if opts.InMemory {
		dbOpts = badger.DefaultOptions("").WithInMemory(true)
	}
	dbOpts = dbOpts.WithLogger(badgerLogger{logger: opts.Logger})

	db, err := badger.Open(dbOpts)
	if err != nil {
		return nil, fmt.Errorf("store: open badger: %w", err)
	}

	seq, err := db.GetSequence([]byte(ordinalSeqKey), 64)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("store: identity sequence: %w", err)
	}

	return &Badger{db: db, seq: seq}, nil
}

func identityKey(id string) []byte {
	return []byte(identityPrefix + id)
}

func sampleKey(id string, index int) []byte {
	return []byte(fmt.Sprintf("%s%s/%06d", samplePrefix, id, index))
}

func samplesPrefix(id string) []byte {
	return []byte(samplePrefix + id + "/")
}

func (b *Badger) Save(ctx context.Context, sample Sample) error {
	if err := validateSample(sample); err != nil {
		return err
	}

	value, err := msgpack.Marshal(sample)
	if err != nil {
		return fmt.Errorf("store: encode sample: %w", err)
	}

	// Two writers creating the same identity conflict on its key; the loser
	// retries and finds the identity already present.
	for attempt := 0; attempt < 3; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		err = b.db.Update(func(txn *badger.Txn) error {
			_, err := txn.Get(identityKey(sample.IdentityID))
			if errors.Is(err, badger.ErrKeyNotFound) {
				ordinal, err := b.seq.Next()
				if err != nil {
					return fmt.Errorf("next ordinal: %w", err)
				}
				data, err := msgpack.Marshal(Identity{
					ID:        sample.IdentityID,
					Ordinal:   ordinal,
					CreatedAt: time.Now(),
				})
				if err != nil {
					return fmt.Errorf("encode identity: %w", err)
				}
				if err := txn.Set(identityKey(sample.IdentityID), data); err != nil {
					return err
				}
			} else if err != nil {
				return err
			}
			return txn.Set(sampleKey(sample.IdentityID, sample.Index), value)
		})
		if !errors.Is(err, badger.ErrConflict) {
			break
		}
	}
	if err != nil {
		return fmt.Errorf("store: save %s#%d: %w", sample.IdentityID, sample.Index, err)
	}
	return nil
}

func (b *Badger) Samples(_ context.Context, identityID string) ([]Sample, error) {
	var samples []Sample
	err := b.db.View(func(txn *badger.Txn) error {
		var err error
		samples, err = readSamples(txn, samplesPrefix(identityID))
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("store: read samples: %w", err)
	}
	sortSamples(samples)
	return samples, nil
}

func (b *Badger) Delete(_ context.Context, identityID string, index int) error {
	return b.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(identityKey(identityID)); err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return fmt.Errorf("%w: %s", domain.ErrIdentityNotFound, identityID)
			}
			return err
		}
		key := sampleKey(identityID, index)
		if _, err := txn.Get(key); err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return fmt.Errorf("%w: %s#%d", domain.ErrSampleNotFound, identityID, index)
			}
			return err
		}
		return txn.Delete(key)
	})
}

func (b *Badger) DeleteIdentity(_ context.Context, identityID string) error {
	return b.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(identityKey(identityID)); err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return fmt.Errorf("%w: %s", domain.ErrIdentityNotFound, identityID)
			}
			return err
		}

		prefix := samplesPrefix(identityID)
		var keys [][]byte
		iterOpts := badger.DefaultIteratorOptions
		iterOpts.Prefix = prefix
		iterOpts.PrefetchValues = false
		it := txn.NewIterator(iterOpts)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			keys = append(keys, it.Item().KeyCopy(nil))
		}
		it.Close()

		for _, k := range keys {
			if err := txn.Delete(k); err != nil {
				return err
			}
		}
		return txn.Delete(identityKey(identityID))
	})
}

func (b *Badger) ActiveEmbeddings(_ context.Context) ([]Entry, error) {
	var entries []Entry
	err := b.db.View(func(txn *badger.Txn) error {
		identities, err := readIdentities(txn)
		if err != nil {
			return err
		}
		samples, err := readSamples(txn, []byte(samplePrefix))
		if err != nil {
			return err
		}

		grouped := make(map[string][]Sample)
		for _, s := range samples {
			grouped[s.IdentityID] = append(grouped[s.IdentityID], s)
		}

		for _, ident := range identities {
			group := grouped[ident.ID]
			if len(group) == 0 {
				continue
			}
			sortSamples(group)
			entries = append(entries, Entry{IdentityID: ident.ID, Ordinal: ident.Ordinal, Samples: group})
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("store: read gallery: %w", err)
	}
	sortEntries(entries)
	return entries, nil
}

func (b *Badger) Identities(_ context.Context) ([]Identity, error) {
	var identities []Identity
	err := b.db.View(func(txn *badger.Txn) error {
		var err error
		identities, err = readIdentities(txn)
		if err != nil {
			return err
		}

		for i := range identities {
			prefix := samplesPrefix(identities[i].ID)
			iterOpts := badger.DefaultIteratorOptions
			iterOpts.Prefix = prefix
			iterOpts.PrefetchValues = false
			it := txn.NewIterator(iterOpts)
			for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
				identities[i].SampleCount++
			}
			it.Close()
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("store: read identities: %w", err)
	}
	sortIdentities(identities)
	return identities, nil
}

func (b *Badger) Close() error {
	return errors.Join(b.seq.Release(), b.db.Close())
}

func readIdentities(txn *badger.Txn) ([]Identity, error) {
	prefix := []byte(identityPrefix)
	iterOpts := badger.DefaultIteratorOptions
	iterOpts.Prefix = prefix
	it := txn.NewIterator(iterOpts)
	defer it.Close()

	var out []Identity
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		val, err := it.Item().ValueCopy(nil)
		if err != nil {
			return nil, err
		}
		var ident Identity
		if err := msgpack.Unmarshal(val, &ident); err != nil {
			return nil, fmt.Errorf("decode identity %s: %w",
				strings.TrimPrefix(string(it.Item().Key()), identityPrefix), err)
		}
		out = append(out, ident)
	}
	return out, nil
}

func readSamples(txn *badger.Txn, prefix []byte) ([]Sample, error) {
	iterOpts := badger.DefaultIteratorOptions
	iterOpts.Prefix = prefix
	it := txn.NewIterator(iterOpts)
	defer it.Close()

	var out []Sample
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		val, err := it.Item().ValueCopy(nil)
		if err != nil {
			return nil, err
		}
		var s Sample
		if err := msgpack.Unmarshal(val, &s); err != nil {
			return nil, fmt.Errorf("decode sample %s: %w", it.Item().Key(), err)
		}
		out = append(out, s)
	}
	return out, nil
}

// badgerLogger forwards badger warnings and errors to slog
type badgerLogger struct {
	logger *slog.Logger
}

func (l badgerLogger) Errorf(f string, v ...interface{}) {
	if l.logger != nil {
		l.logger.Error("Badger error", slog.String("message", strings.TrimSpace(fmt.Sprintf(f, v...))))
	}
}

func (l badgerLogger) Warningf(f string, v ...interface{}) {
	if l.logger != nil {
		l.logger.Warn("Badger warning", slog.String("message", strings.TrimSpace(fmt.Sprintf(f, v...))))
	}
}

func (l badgerLogger) Infof(string, ...interface{})  {}
func (l badgerLogger) Debugf(string, ...interface{}) {}
