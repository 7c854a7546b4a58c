package enrollment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/skypro1111/voxgate/internal/domain"
	"github.com/skypro1111/voxgate/internal/store"
)

// Config contains the per-identity enrollment rules
type Config struct {
	SampleCap        int
	RequiredSamples  int
	QualityThreshold float64
	LockIdleTimeout  time.Duration
	SweepInterval    time.Duration
}

// Validate checks the enrollment rules
func (c Config) Validate() error {
	if c.SampleCap <= 0 {
		return fmt.Errorf("sample cap must be positive, got %d", c.SampleCap)
	}
	if c.RequiredSamples <= 0 || c.RequiredSamples > c.SampleCap {
		return fmt.Errorf("required samples must be in [1, %d], got %d", c.SampleCap, c.RequiredSamples)
	}
	if c.QualityThreshold < 0 || c.QualityThreshold > 1 {
		return fmt.Errorf("quality threshold must be in [0, 1], got %f", c.QualityThreshold)
	}
	if c.LockIdleTimeout <= 0 {
		return fmt.Errorf("lock idle timeout must be positive, got %v", c.LockIdleTimeout)
	}
	return nil
}

// Status summarizes the enrollment progress of one identity
type Status struct {
	IdentityID  string  `json:"identity_id"`
	Registered  int     `json:"registered_count"`
	Required    int     `json:"required_count"`
	IsComplete  bool    `json:"is_complete"`
	MeanQuality float64 `json:"mean_quality"`
}

// identityLock serializes enrollment for one identity
type identityLock struct {
	mu       sync.Mutex
	refs     int
	lastUsed time.Time
}

// Ledger is the only writer of enrolled samples. Operations on the same
// identity are serialized; different identities proceed in parallel.
type Ledger struct {
	store  store.Store
	config Config
	logger *slog.Logger

	locks   map[string]*identityLock
	locksMu sync.Mutex

	ctx     context.Context
	cancel  context.CancelFunc
	cleanup chan struct{}
}

// NewLedger creates a ledger and starts the idle lock sweeper
func NewLedger(s store.Store, config Config, logger *slog.Logger) (*Ledger, error) {
	if s == nil {
		return nil, errors.New("enrollment: store is required")
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("enrollment: %w", err)
	}
	if config.SweepInterval <= 0 {
		config.SweepInterval = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	l := &Ledger{
		store:   s,
		config:  config,
		logger:  logger,
		locks:   make(map[string]*identityLock),
		ctx:     ctx,
		cancel:  cancel,
		cleanup: make(chan struct{}),
	}

	go l.startSweepRoutine()

	return l, nil
}

// Enroll stores an embedding in the lowest free slot of the identity and
// returns the slot index. A low-quality sample is discarded and a full
// identity is left untouched.
func (l *Ledger) Enroll(ctx context.Context, identityID string, emb domain.Embedding, quality, duration float64) (int, error) {
	if err := domain.ValidateIdentityID(identityID); err != nil {
		return -1, err
	}

	if quality < l.config.QualityThreshold {
		return -1, &domain.QualityTooLowError{Score: quality, Threshold: l.config.QualityThreshold}
	}

	lock := l.acquire(identityID)
	defer l.release(identityID, lock)

	samples, err := l.store.Samples(ctx, identityID)
	if err != nil {
		return -1, fmt.Errorf("enrollment: read samples: %w", err)
	}

	if len(samples) >= l.config.SampleCap {
		return -1, &domain.EnrollmentCapExceededError{IdentityID: identityID, Cap: l.config.SampleCap}
	}

	index := lowestFreeSlot(samples, l.config.SampleCap)
	sample := store.Sample{
		IdentityID: identityID,
		Index:      index,
		Embedding:  emb,
		Quality:    quality,
		Duration:   duration,
		CreatedAt:  time.Now(),
	}
	if err := l.store.Save(ctx, sample); err != nil {
		return -1, fmt.Errorf("enrollment: save sample: %w", err)
	}

	l.logger.Info("Enrolled sample",
		slog.String("identity_id", identityID),
		slog.Int("sample_index", index),
		slog.Int("registered", len(samples)+1),
		slog.Float64("quality", quality),
	)

	return index, nil
}

// Remove deletes one sample. Removing the last sample leaves an empty identity.
func (l *Ledger) Remove(ctx context.Context, identityID string, index int) error {
	if err := domain.ValidateIdentityID(identityID); err != nil {
		return err
	}

	lock := l.acquire(identityID)
	defer l.release(identityID, lock)

	if err := l.store.Delete(ctx, identityID, index); err != nil {
		return fmt.Errorf("enrollment: remove sample: %w", err)
	}

	l.logger.Info("Removed sample",
		slog.String("identity_id", identityID),
		slog.Int("sample_index", index),
	)
	return nil
}

// Forget destroys the identity with all of its samples
func (l *Ledger) Forget(ctx context.Context, identityID string) error {
	if err := domain.ValidateIdentityID(identityID); err != nil {
		return err
	}

	lock := l.acquire(identityID)
	defer l.release(identityID, lock)

	if err := l.store.DeleteIdentity(ctx, identityID); err != nil {
		return fmt.Errorf("enrollment: forget identity: %w", err)
	}

	l.logger.Info("Forgot identity", slog.String("identity_id", identityID))
	return nil
}

// Status reports enrollment progress. Unknown identities have zero samples.
func (l *Ledger) Status(ctx context.Context, identityID string) (Status, error) {
	if err := domain.ValidateIdentityID(identityID); err != nil {
		return Status{}, err
	}

	samples, err := l.store.Samples(ctx, identityID)
	if err != nil {
		return Status{}, fmt.Errorf("enrollment: read samples: %w", err)
	}

	st := Status{
		IdentityID: identityID,
		Registered: len(samples),
		Required:   l.config.RequiredSamples,
	}
	if len(samples) > 0 {
		var sum float64
		for _, s := range samples {
			sum += s.Quality
		}
		st.MeanQuality = sum / float64(len(samples))
	}
	st.IsComplete = st.Registered >= st.Required && st.MeanQuality >= l.config.QualityThreshold

	return st, nil
}

// Samples returns the enrolled samples of an identity
func (l *Ledger) Samples(ctx context.Context, identityID string) ([]store.Sample, error) {
	return l.store.Samples(ctx, identityID)
}

// LockCount returns the number of identity locks currently held in memory
func (l *Ledger) LockCount() int {
	l.locksMu.Lock()
	defer l.locksMu.Unlock()
	return len(l.locks)
}

// Stop stops the sweeper. The store stays open.
func (l *Ledger) Stop() {
	l.cancel()
	<-l.cleanup
}

func lowestFreeSlot(samples []store.Sample, sampleCap int) int {
	used := make(map[int]bool, len(samples))
	for _, s := range samples {
		used[s.Index] = true
	}
	for i := 0; i < sampleCap; i++ {
		if !used[i] {
			return i
		}
	}
	return sampleCap
}

func (l *Ledger) acquire(identityID string) *identityLock {
	l.locksMu.Lock()
	lock, ok := l.locks[identityID]
	if !ok {
		lock = &identityLock{}
		l.locks[identityID] = lock
	}
	lock.refs++
	l.locksMu.Unlock()

	lock.mu.Lock()
	return lock
}

func (l *Ledger) release(identityID string, lock *identityLock) {
	lock.mu.Unlock()

	l.locksMu.Lock()
	lock.refs--
	lock.lastUsed = time.Now()
	l.locksMu.Unlock()
}

func (l *Ledger) startSweepRoutine() {
	defer close(l.cleanup)

	ticker := time.NewTicker(l.config.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-l.ctx.Done():
			return
		case <-ticker.C:
			l.sweepIdleLocks(time.Now())
		}
	}
}

// sweepIdleLocks drops locks nobody holds or waits for that have been idle
// longer than the timeout
func (l *Ledger) sweepIdleLocks(now time.Time) int {
	l.locksMu.Lock()
	defer l.locksMu.Unlock()

	removed := 0
	for id, lock := range l.locks {
		if lock.refs == 0 && now.Sub(lock.lastUsed) > l.config.LockIdleTimeout {
			delete(l.locks, id)
			removed++
		}
	}

	if removed > 0 {
		l.logger.Debug("Swept idle identity locks",
			slog.Int("removed", removed),
			slog.Int("remaining", len(l.locks)),
		)
	}
	return removed
}
