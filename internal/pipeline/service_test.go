package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skypro1111/voxgate/internal/affect"
	"github.com/skypro1111/voxgate/internal/audio"
	"github.com/skypro1111/voxgate/internal/audit"
	"github.com/skypro1111/voxgate/internal/domain"
	"github.com/skypro1111/voxgate/internal/enrollment"
	"github.com/skypro1111/voxgate/internal/metrics"
	"github.com/skypro1111/voxgate/internal/model"
	"github.com/skypro1111/voxgate/internal/quality"
	"github.com/skypro1111/voxgate/internal/store"
)

// clip describes what the fakes return for one upload
type clip struct {
	quality float64
	vector  []float32
	dist    []float64
}

type fixture struct {
	mu    sync.Mutex
	clips map[string]clip
	waves map[*audio.Waveform]string
	ready map[model.Capability]bool
	// enhancements records the enhancement used per upload
	enhancements map[string]audio.Enhancement
}

func newFixture() *fixture {
	return &fixture{
		clips:        make(map[string]clip),
		waves:        make(map[*audio.Waveform]string),
		ready:        map[model.Capability]bool{model.CapabilityEmbedding: true, model.CapabilityClassification: true},
		enhancements: make(map[string]audio.Enhancement),
	}
}

func (f *fixture) add(name string, c clip) []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.clips[name] = c
	return []byte(name)
}

func (f *fixture) lookup(w *audio.Waveform) clip {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.clips[f.waves[w]]
}

type fakeIngestor struct{ f *fixture }

func (i fakeIngestor) Ingest(_ context.Context, data []byte, e audio.Enhancement) (*audio.Waveform, error) {
	i.f.mu.Lock()
	defer i.f.mu.Unlock()
	name := string(data)
	if _, ok := i.f.clips[name]; !ok {
		return nil, &domain.AudioDecodeError{Reason: "unknown container"}
	}
	w := &audio.Waveform{Samples: make([]float64, 16000), SampleRate: 16000, Duration: 1}
	i.f.waves[w] = name
	i.f.enhancements[name] = e
	return w, nil
}

type fakeAssessor struct{ f *fixture }

func (a fakeAssessor) Assess(w *audio.Waveform, p quality.Profile) *quality.Score {
	return &quality.Score{Composite: a.f.lookup(w).quality, Profile: p}
}

type fakeModels struct {
	f *fixture
}

func (m fakeModels) Ready(c model.Capability) bool {
	m.f.mu.Lock()
	defer m.f.mu.Unlock()
	return m.f.ready[c]
}

func (m fakeModels) Embed(_ context.Context, w *audio.Waveform) (domain.Embedding, error) {
	v := m.f.lookup(w).vector
	return domain.Embedding{Vector: append([]float32(nil), v...), Model: "fake", ModelVersion: "1"}, nil
}

func (m fakeModels) Classify(_ context.Context, w *audio.Waveform) ([]float64, error) {
	return append([]float64(nil), m.f.lookup(w).dist...), nil
}

func (m fakeModels) Labels() []string { return affect.DefaultLabels }

func (m fakeModels) Status() model.Status { return model.Status{} }

type failingArchive struct{}

func (failingArchive) Store(context.Context, string, []byte) (string, error) {
	return "", errors.New("bucket unavailable")
}

type recordingArchive struct {
	mu    sync.Mutex
	kinds []string
}

func (a *recordingArchive) Store(_ context.Context, kind string, _ []byte) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.kinds = append(a.kinds, kind)
	return "raw/" + kind + "/x.wav", nil
}

type failingRecorder struct{}

func (failingRecorder) Record(context.Context, audit.Record) (audit.Record, error) {
	return audit.Record{}, errors.New("audit sink unavailable")
}

func (failingRecorder) List(context.Context, audit.Filter) ([]audit.Record, error) {
	return nil, errors.New("audit sink unavailable")
}

type harness struct {
	svc     *Service
	fix     *fixture
	store   *store.Memory
	ledger  *enrollment.Ledger
	metrics *metrics.Metrics
}

func newHarness(t *testing.T, archiver Archiver) *harness {
	t.Helper()

	fix := newFixture()
	st := store.NewMemory()
	ledger, err := enrollment.NewLedger(st, enrollment.Config{
		SampleCap:        5,
		RequiredSamples:  3,
		QualityThreshold: 0.6,
		LockIdleTimeout:  time.Minute,
	}, nil)
	require.NoError(t, err)
	t.Cleanup(ledger.Stop)

	m := metrics.NewMetrics(prometheus.NewRegistry())
	rec, err := audit.NewRecorder(audit.NewMemory(), m, nil)
	require.NoError(t, err)

	svc, err := NewService(Config{
		QualityThreshold:    0.6,
		SimilarityThreshold: 0.7,
		TopK:                5,
		Workers:             2,
	}, Deps{
		Ingestor: fakeIngestor{fix},
		Assessor: fakeAssessor{fix},
		Models:   fakeModels{fix},
		Ledger:   ledger,
		Store:    st,
		Recorder: rec,
		Archiver: archiver,
		Metrics:  m,
	}, nil)
	require.NoError(t, err)

	return &harness{svc: svc, fix: fix, store: st, ledger: ledger, metrics: m}
}

func (h *harness) enroll(t *testing.T, id string, vector []float32, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		data := h.fix.add(id+"-enroll-"+string(rune('a'+i)), clip{quality: 0.9, vector: vector})
		_, err := h.svc.RegisterSample(context.Background(), id, data)
		require.NoError(t, err)
	}
}

func TestNewServiceValidation(t *testing.T) {
	_, err := NewService(Config{QualityThreshold: 2}, Deps{}, nil)
	assert.Error(t, err)

	_, err = NewService(Config{QualityThreshold: 0.6}, Deps{}, nil)
	assert.ErrorContains(t, err, "ingestor is required")
}

func TestRegisterSampleRejectsLowQuality(t *testing.T) {
	h := newHarness(t, nil)
	data := h.fix.add("noisy", clip{quality: 0.40, vector: []float32{1, 0}})

	_, err := h.svc.RegisterSample(context.Background(), "alice", data)

	var qErr *domain.QualityTooLowError
	require.ErrorAs(t, err, &qErr)
	assert.InDelta(t, 0.40, qErr.Score, 1e-9)
	assert.InDelta(t, 0.6, qErr.Threshold, 1e-9)

	samples, err := h.store.Samples(context.Background(), "alice")
	require.NoError(t, err)
	assert.Empty(t, samples)

	ids, err := h.store.Identities(context.Background())
	require.NoError(t, err)
	assert.Empty(t, ids)

	assert.Equal(t, float64(1), testutil.ToFloat64(h.metrics.Enrollments.WithLabelValues(OutcomeQualityTooLow)))
}

func TestRegisterSampleCompletesEnrollment(t *testing.T) {
	h := newHarness(t, nil)

	var reg *Registration
	for i := 0; i < 3; i++ {
		data := h.fix.add("alice-"+string(rune('a'+i)), clip{quality: 0.8, vector: []float32{1, 0, 0}})
		var err error
		reg, err = h.svc.RegisterSample(context.Background(), "alice", data)
		require.NoError(t, err)
		assert.Equal(t, i, reg.SampleIndex)
		assert.Equal(t, i+1, reg.Status.Registered)
		assert.NotEmpty(t, reg.AuditID)
	}
	assert.True(t, reg.Status.IsComplete)
	assert.Equal(t, audio.EnhanceDenoise, h.fix.enhancements["alice-a"])

	records, err := h.svc.AuditLog(context.Background(), audit.Filter{Kind: audit.KindEnrollment})
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.True(t, records[0].Enrollment.IsComplete)
	assert.Equal(t, 2, records[0].Enrollment.SampleIndex)
}

func TestRegisterSampleSurvivesAuditFailure(t *testing.T) {
	h := newHarness(t, nil)
	h.svc.recorder = failingRecorder{}

	for i := 0; i < 3; i++ {
		data := h.fix.add("alice-"+string(rune('a'+i)), clip{quality: 0.9, vector: []float32{1, 0}})
		reg, err := h.svc.RegisterSample(context.Background(), "alice", data)
		require.NoError(t, err)
		assert.Equal(t, i, reg.SampleIndex)
		assert.Equal(t, i+1, reg.Status.Registered)
		assert.Empty(t, reg.AuditID)
	}

	st, err := h.svc.EnrollmentStatus(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, 3, st.Registered)
	assert.True(t, st.IsComplete)

	stats := h.svc.GetStats()
	assert.Equal(t, uint64(3), stats.Operations[OpRegister].Success)
}

func TestRegisterSampleInvalidIdentity(t *testing.T) {
	h := newHarness(t, nil)
	data := h.fix.add("clip", clip{quality: 0.9, vector: []float32{1}})

	_, err := h.svc.RegisterSample(context.Background(), "a#b", data)
	assert.ErrorIs(t, err, domain.ErrInvalidIdentity)
}

func TestRegisterSampleCapExceeded(t *testing.T) {
	h := newHarness(t, nil)
	h.enroll(t, "alice", []float32{1, 0}, 5)

	data := h.fix.add("extra", clip{quality: 0.9, vector: []float32{1, 0}})
	_, err := h.svc.RegisterSample(context.Background(), "alice", data)
	assert.ErrorIs(t, err, domain.ErrEnrollmentCapExceeded)

	st, err := h.svc.EnrollmentStatus(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, 5, st.Registered)
}

func TestRecognizeAcceptsClosestIdentity(t *testing.T) {
	h := newHarness(t, nil)
	h.enroll(t, "alice", []float32{1, 0, 0}, 3)
	h.enroll(t, "bob", []float32{0, 1, 0}, 3)

	data := h.fix.add("probe", clip{quality: 0.75, vector: []float32{0.9, 0.1, 0}})
	result, err := h.svc.Recognize(context.Background(), data, nil)
	require.NoError(t, err)

	require.True(t, result.Accepted)
	require.NotNil(t, result.Selected)
	assert.Equal(t, "alice", *result.Selected)
	assert.Greater(t, result.Confidence, 0.99)
	assert.InDelta(t, 0.75, result.Probe.Quality, 1e-9)
	assert.Equal(t, 1.0, result.Probe.Duration)
	require.Len(t, result.Candidates, 2)
	assert.Equal(t, "bob", result.Candidates[1].IdentityID)

	records, err := h.svc.AuditLog(context.Background(), audit.Filter{Kind: audit.KindRecognition})
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.NotNil(t, records[0].Match)
	assert.True(t, records[0].Match.Accepted)
}

func TestRecognizeRejectsBelowThreshold(t *testing.T) {
	h := newHarness(t, nil)
	h.enroll(t, "alice", []float32{1, 0}, 3)

	data := h.fix.add("stranger", clip{quality: 0.9, vector: []float32{0, 1}})
	result, err := h.svc.Recognize(context.Background(), data, nil)
	require.NoError(t, err)

	assert.False(t, result.Accepted)
	assert.Nil(t, result.Selected)
	require.Len(t, result.Candidates, 1)
	assert.InDelta(t, 0, result.Candidates[0].Similarity, 1e-9)
}

type staticGallery []store.Entry

func (g staticGallery) ActiveEmbeddings(context.Context) ([]store.Entry, error) { return g, nil }

func TestRecognizeWithExplicitGallery(t *testing.T) {
	h := newHarness(t, nil)
	data := h.fix.add("probe", clip{quality: 0.9, vector: []float32{0, 1}})

	_, err := h.svc.Recognize(context.Background(), data, staticGallery(nil))
	assert.ErrorIs(t, err, domain.ErrEmptyGallery)

	gallery := staticGallery{{
		IdentityID: "carol",
		Samples: []store.Sample{{
			IdentityID: "carol",
			Embedding:  domain.Embedding{Vector: []float32{0, 1}},
		}},
	}}
	result, err := h.svc.Recognize(context.Background(), data, gallery)
	require.NoError(t, err)
	require.NotNil(t, result.Selected)
	assert.Equal(t, "carol", *result.Selected)
}

func TestRecognizeFailsFastWithoutModel(t *testing.T) {
	h := newHarness(t, nil)
	h.fix.ready[model.CapabilityEmbedding] = false
	data := h.fix.add("probe", clip{quality: 0.9, vector: []float32{1}})

	_, err := h.svc.Recognize(context.Background(), data, nil)
	assert.ErrorIs(t, err, domain.ErrModelNotInitialized)
	assert.True(t, domain.IsCapabilityError(err))
}

func TestRecognizeUndecodableInput(t *testing.T) {
	h := newHarness(t, nil)

	_, err := h.svc.Recognize(context.Background(), []byte("garbage"), nil)
	assert.ErrorIs(t, err, domain.ErrAudioDecode)
	assert.Equal(t, OutcomeInputError, Outcome(err))

	stats := h.svc.GetStats()
	assert.Equal(t, uint64(1), stats.Operations[OpRecognize].Failed)
	assert.Equal(t, uint64(1), stats.Operations[OpRecognize].ByClass[OutcomeInputError])
}

func TestVerify(t *testing.T) {
	h := newHarness(t, nil)
	h.enroll(t, "alice", []float32{1, 0}, 3)
	h.enroll(t, "bob", []float32{0, 1}, 3)

	data := h.fix.add("probe", clip{quality: 0.9, vector: []float32{0, 1}})

	result, err := h.svc.Verify(context.Background(), "alice", data)
	require.NoError(t, err)
	assert.False(t, result.Accepted)
	require.Len(t, result.Candidates, 1)
	assert.Equal(t, "alice", result.Candidates[0].IdentityID)

	result, err = h.svc.Verify(context.Background(), "bob", data)
	require.NoError(t, err)
	assert.True(t, result.Accepted)

	_, err = h.svc.Verify(context.Background(), "nobody", data)
	assert.ErrorIs(t, err, domain.ErrIdentityNotFound)
}

func TestVerifyMatchesOnWorkerPool(t *testing.T) {
	h := newHarness(t, nil)
	h.enroll(t, "alice", []float32{1, 0}, 3)
	data := h.fix.add("check", clip{quality: 0.9, vector: []float32{1, 0}})

	before := h.svc.GetStats().Workers.Completed
	_, err := h.svc.Verify(context.Background(), "alice", data)
	require.NoError(t, err)

	// ingest+quality, embed and match each take one pool slot.
	assert.Equal(t, before+3, h.svc.GetStats().Workers.Completed)
}

func TestDetectAffect(t *testing.T) {
	h := newHarness(t, nil)
	data := h.fix.add("voice", clip{quality: 0.8, dist: []float64{0.05, 0.70, 0.05, 0.05, 0.05, 0.05, 0.05}})

	result, err := h.svc.DetectAffect(context.Background(), data)
	require.NoError(t, err)

	assert.Equal(t, "happy", result.Dominant)
	assert.InDelta(t, 0.70, result.Confidence, 1e-9)
	assert.InDelta(t, 0.95/6, result.Intensity, 1e-9)
	assert.Equal(t, affect.ConfidenceHigh, result.ConfidenceLevel)
	assert.Equal(t, audio.EnhancePreEmphasis, h.fix.enhancements["voice"])

	records, err := h.svc.AuditLog(context.Background(), audit.Filter{Kind: audit.KindAffect})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "happy", records[0].Affect.Dominant)
}

func TestDetectAffectAttributesSubject(t *testing.T) {
	h := newHarness(t, nil)
	dist := []float64{0.05, 0.70, 0.05, 0.05, 0.05, 0.05, 0.05}

	_, err := h.svc.DetectAffect(context.Background(), h.fix.add("a", clip{quality: 0.9, dist: dist}), WithSubject("alice"))
	require.NoError(t, err)
	_, err = h.svc.DetectAffect(context.Background(), h.fix.add("b", clip{quality: 0.7, dist: dist}))
	require.NoError(t, err)
	items := h.svc.BatchDetectAffect(context.Background(), [][]byte{
		h.fix.add("c", clip{quality: 0.8, dist: dist}),
	}, WithSubject("alice"))
	require.NoError(t, items[0].Err)

	records, err := h.svc.AuditLog(context.Background(), audit.Filter{Kind: audit.KindAffect, SubjectID: "alice"})
	require.NoError(t, err)
	assert.Len(t, records, 2)

	_, err = h.svc.DetectAffect(context.Background(), h.fix.add("d", clip{quality: 0.9, dist: dist}), WithSubject("a#b"))
	assert.ErrorIs(t, err, domain.ErrInvalidIdentity)

	items = h.svc.BatchDetectAffect(context.Background(), [][]byte{h.fix.add("e", clip{quality: 0.9, dist: dist})}, WithSubject("a#b"))
	assert.ErrorIs(t, items[0].Err, domain.ErrInvalidIdentity)
}

func TestAuditStats(t *testing.T) {
	h := newHarness(t, nil)
	happy := []float64{0.05, 0.70, 0.05, 0.05, 0.05, 0.05, 0.05}
	neutral := []float64{0.9, 0.02, 0.02, 0.02, 0.02, 0.01, 0.01}
	ctx := context.Background()

	_, err := h.svc.DetectAffect(ctx, h.fix.add("a", clip{quality: 0.9, dist: happy}), WithSubject("alice"))
	require.NoError(t, err)
	_, err = h.svc.DetectAffect(ctx, h.fix.add("b", clip{quality: 0.7, dist: happy}), WithSubject("alice"))
	require.NoError(t, err)
	_, err = h.svc.DetectAffect(ctx, h.fix.add("c", clip{quality: 0.8, dist: neutral}), WithSubject("bob"))
	require.NoError(t, err)
	_, err = h.svc.DetectAffect(ctx, h.fix.add("d", clip{quality: 0.2, dist: happy}), WithSubject("alice"))
	require.ErrorIs(t, err, domain.ErrQualityTooLow)

	stats, err := h.svc.AuditStats(ctx, audit.Filter{Kind: audit.KindAffect, SubjectID: "alice"})
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Decisions.Total)
	assert.Equal(t, map[string]int{"happy": 2}, stats.Decisions.Affect.Dominant)
	assert.Equal(t, audit.QualityBuckets{High: 1, Medium: 1}, stats.Decisions.Quality)
	assert.InDelta(t, 0.70, stats.Decisions.Affect.MeanConfidence, 1e-9)

	op := stats.Operations[OpAffect]
	assert.Equal(t, uint64(4), op.Total)
	assert.Equal(t, uint64(1), op.Failed)
	assert.InDelta(t, 0.75, op.SuccessRate, 1e-9)
}

func TestDetectAffectWithoutClassifier(t *testing.T) {
	h := newHarness(t, nil)
	h.fix.ready[model.CapabilityClassification] = false
	data := h.fix.add("voice", clip{quality: 0.8})

	_, err := h.svc.DetectAffect(context.Background(), data)
	assert.ErrorIs(t, err, domain.ErrModelNotInitialized)
}

func TestBatchDetectAffect(t *testing.T) {
	h := newHarness(t, nil)
	dist := []float64{0.9, 0.02, 0.02, 0.02, 0.02, 0.01, 0.01}
	uploads := [][]byte{
		h.fix.add("one", clip{quality: 0.8, dist: dist}),
		[]byte("broken"),
		h.fix.add("quiet", clip{quality: 0.2, dist: dist}),
		h.fix.add("two", clip{quality: 0.9, dist: dist}),
	}

	items := h.svc.BatchDetectAffect(context.Background(), uploads)
	require.Len(t, items, 4)

	require.NoError(t, items[0].Err)
	assert.Equal(t, "neutral", items[0].Result.Dominant)
	assert.ErrorIs(t, items[1].Err, domain.ErrAudioDecode)
	assert.ErrorIs(t, items[2].Err, domain.ErrQualityTooLow)
	require.NoError(t, items[3].Err)

	stats := h.svc.GetStats()
	assert.Equal(t, uint64(4), stats.Operations[OpAffect].Total)
	assert.Equal(t, uint64(1), stats.Operations[OpBatchAffect].Success)
}

func TestRemoveAndForget(t *testing.T) {
	h := newHarness(t, nil)
	h.enroll(t, "alice", []float32{1, 0}, 3)
	ctx := context.Background()

	require.NoError(t, h.svc.RemoveSample(ctx, "alice", 1))
	st, err := h.svc.EnrollmentStatus(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 2, st.Registered)
	assert.False(t, st.IsComplete)

	assert.ErrorIs(t, h.svc.RemoveSample(ctx, "alice", 1), domain.ErrSampleNotFound)

	require.NoError(t, h.svc.ForgetIdentity(ctx, "alice"))
	ids, err := h.svc.Identities(ctx)
	require.NoError(t, err)
	assert.Empty(t, ids)

	assert.ErrorIs(t, h.svc.ForgetIdentity(ctx, "alice"), domain.ErrIdentityNotFound)
}

func TestArchiveKeysAreRecorded(t *testing.T) {
	arch := &recordingArchive{}
	h := newHarness(t, arch)
	h.enroll(t, "alice", []float32{1, 0}, 1)

	data := h.fix.add("probe", clip{quality: 0.9, vector: []float32{1, 0}})
	_, err := h.svc.Recognize(context.Background(), data, nil)
	require.NoError(t, err)

	assert.Equal(t, []string{"enrollment", "recognition"}, arch.kinds)

	records, err := h.svc.AuditLog(context.Background(), audit.Filter{})
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "raw/recognition/x.wav", records[0].ArchiveKey)
}

func TestArchiveFailureDoesNotFailOperation(t *testing.T) {
	h := newHarness(t, failingArchive{})
	data := h.fix.add("clip", clip{quality: 0.9, vector: []float32{1, 0}})

	reg, err := h.svc.RegisterSample(context.Background(), "alice", data)
	require.NoError(t, err)
	assert.Equal(t, 0, reg.SampleIndex)

	records, err := h.svc.AuditLog(context.Background(), audit.Filter{})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Empty(t, records[0].ArchiveKey)
}

func TestConcurrentRegistrationRespectsCap(t *testing.T) {
	h := newHarness(t, nil)

	var wg sync.WaitGroup
	errs := make([]error, 12)
	for i := range errs {
		data := h.fix.add("c"+string(rune('a'+i)), clip{quality: 0.9, vector: []float32{1, 0}})
		wg.Add(1)
		go func(i int, data []byte) {
			defer wg.Done()
			_, errs[i] = h.svc.RegisterSample(context.Background(), "alice", data)
		}(i, data)
	}
	wg.Wait()

	capped := 0
	for _, err := range errs {
		if err != nil {
			assert.ErrorIs(t, err, domain.ErrEnrollmentCapExceeded)
			capped++
		}
	}
	assert.Equal(t, 7, capped)

	samples, err := h.store.Samples(context.Background(), "alice")
	require.NoError(t, err)
	require.Len(t, samples, 5)
	for i, s := range samples {
		assert.Equal(t, i, s.Index)
	}
}
