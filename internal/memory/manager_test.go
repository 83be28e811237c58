package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yyup/agentd/internal/embeddings"
	"github.com/yyup/agentd/internal/vectorstore"
)

// stubProvider returns canned vectors per text so tests control
// similarity exactly. Unknown texts get the fallback vector. The error
// fields are mutex-guarded because the embed worker calls the provider
// from its own goroutine.
type stubProvider struct {
	vectors  map[string][]float32
	fallback []float32

	mu       sync.Mutex
	docErr   error
	queryErr error
}

func (s *stubProvider) setDocErr(err error) {
	s.mu.Lock()
	s.docErr = err
	s.mu.Unlock()
}

func (s *stubProvider) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	s.mu.Lock()
	err := s.docErr
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = s.vector(t)
	}
	return out, nil
}

func (s *stubProvider) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	s.mu.Lock()
	err := s.queryErr
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return s.vector(text), nil
}

func (s *stubProvider) Dimensions() int { return 4 }

func (s *stubProvider) vector(text string) []float32 {
	if v, ok := s.vectors[text]; ok {
		return v
	}
	if s.fallback != nil {
		return s.fallback
	}
	return []float32{1, 0, 0, 0}
}

type testClock struct {
	now time.Time
}

func (c *testClock) Now() time.Time          { return c.now }
func (c *testClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newTestManager(t *testing.T, provider embeddings.Provider, cfg Config, clock *testClock) *Manager {
	t.Helper()
	store, err := vectorstore.NewChromemStore(vectorstore.ChromemConfig{}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	mgr, err := NewManager(store, provider, cfg, nil, WithClock(clock.Now))
	require.NoError(t, err)
	t.Cleanup(func() { _ = mgr.Close() })
	return mgr
}

func defaultStub() *stubProvider {
	return &stubProvider{vectors: map[string][]float32{}}
}

func TestNewManager_Validation(t *testing.T) {
	store, err := vectorstore.NewChromemStore(vectorstore.ChromemConfig{}, nil)
	require.NoError(t, err)
	defer store.Close()

	_, err = NewManager(nil, defaultStub(), Config{}, nil)
	assert.Error(t, err)

	_, err = NewManager(store, nil, Config{}, nil)
	assert.Error(t, err)

	mgr, err := NewManager(store, defaultStub(), Config{}, nil)
	require.NoError(t, err)
	assert.Equal(t, 512, mgr.config.Capacity)
	require.NoError(t, mgr.Close())
}

func TestWrite_Validation(t *testing.T) {
	clock := &testClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	mgr := newTestManager(t, defaultStub(), Config{}, clock)
	ctx := context.Background()

	_, err := mgr.Write(ctx, WriteInput{Dimension: DimensionCore, Content: "x"})
	assert.ErrorIs(t, err, ErrEmptyOwner)

	_, err = mgr.Write(ctx, WriteInput{OwnerID: "u1", Dimension: "mystery", Content: "x"})
	assert.ErrorIs(t, err, ErrInvalidDimension)

	_, err = mgr.Write(ctx, WriteInput{OwnerID: "u1", Dimension: DimensionCore, Content: "   "})
	assert.ErrorIs(t, err, ErrEmptyContent)
}

func TestWrite_ImportanceClampAndExpiry(t *testing.T) {
	clock := &testClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	mgr := newTestManager(t, defaultStub(), Config{DefaultTTL: time.Hour}, clock)
	ctx := context.Background()

	rec, err := mgr.Write(ctx, WriteInput{
		OwnerID: "u1", Dimension: DimensionEpisodic, Content: "event", Importance: 1.7,
	})
	require.NoError(t, err)
	assert.Equal(t, 1.0, rec.Importance)
	require.NotNil(t, rec.ExpiresAt)
	assert.Equal(t, clock.now.Add(time.Hour), *rec.ExpiresAt)

	// TTL on permanent dimensions is ignored.
	core, err := mgr.Write(ctx, WriteInput{
		OwnerID: "u1", Dimension: DimensionKnowledgeVault, Content: "secret", Importance: -2, TTL: time.Minute,
	})
	require.NoError(t, err)
	assert.Nil(t, core.ExpiresAt)
	assert.Equal(t, 0.0, core.Importance)
}

func TestWrite_SameContentTwiceKeepsBothRecords(t *testing.T) {
	clock := &testClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	mgr := newTestManager(t, embeddings.NewHashProvider(64), Config{}, clock)
	ctx := context.Background()

	first, err := mgr.Write(ctx, WriteInput{OwnerID: "u1", Dimension: DimensionSemantic, Content: "fire drill on friday"})
	require.NoError(t, err)
	second, err := mgr.Write(ctx, WriteInput{OwnerID: "u1", Dimension: DimensionSemantic, Content: "fire drill on friday"})
	require.NoError(t, err)

	// Writes never deduplicate: identical content makes a new record.
	assert.NotEqual(t, first.ID, second.ID)
	assert.Equal(t, 2, mgr.Stats("u1")[DimensionSemantic])

	got, err := mgr.Retrieve(ctx, RetrieveInput{OwnerID: "u1", Query: "fire drill", K: 10})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.NotEqual(t, got[0].ID, got[1].ID)
}

// gatedProvider blocks EmbedDocuments until released so tests can
// observe the write path finishing ahead of the embedding.
type gatedProvider struct {
	startedOnce sync.Once
	releaseOnce sync.Once
	started     chan struct{}
	release     chan struct{}
}

func (g *gatedProvider) unblock() {
	g.releaseOnce.Do(func() { close(g.release) })
}

func (g *gatedProvider) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	g.startedOnce.Do(func() { close(g.started) })
	<-g.release
	out := make([][]float32, len(texts))
	for i := range out {
		out[i] = []float32{1, 0, 0, 0}
	}
	return out, nil
}

func (g *gatedProvider) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return []float32{1, 0, 0, 0}, nil
}

func (g *gatedProvider) Dimensions() int { return 4 }

func TestWrite_EmbedsAsynchronously(t *testing.T) {
	provider := &gatedProvider{started: make(chan struct{}), release: make(chan struct{})}
	clock := &testClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	mgr := newTestManager(t, provider, Config{}, clock)
	// Registered after newTestManager so the worker is unblocked before
	// Close waits on it during cleanup.
	t.Cleanup(provider.unblock)
	ctx := context.Background()

	// Write returns while the provider is still blocked.
	rec, err := mgr.Write(ctx, WriteInput{OwnerID: "u1", Dimension: DimensionSemantic, Content: "snack schedule"})
	require.NoError(t, err)
	assert.Empty(t, rec.Embedding)

	select {
	case <-provider.started:
	case <-time.After(5 * time.Second):
		t.Fatal("embed worker never picked up the queued record")
	}

	provider.unblock()
	assert.Eventually(t, func() bool {
		fetched, err := mgr.Get(ctx, "u1", rec.ID)
		return err == nil && len(fetched.Embedding) > 0
	}, 5*time.Second, 10*time.Millisecond)
}

func TestRetrieve_BoostsImportance(t *testing.T) {
	clock := &testClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	mgr := newTestManager(t, embeddings.NewHashProvider(64), Config{}, clock)
	ctx := context.Background()

	written, err := mgr.Write(ctx, WriteInput{
		OwnerID:    "parent-7",
		Dimension:  DimensionEpisodic,
		Content:    "child A ate all of the lunch today",
		Importance: 0.4,
	})
	require.NoError(t, err)

	got, err := mgr.Retrieve(ctx, RetrieveInput{OwnerID: "parent-7", Query: "lunch", K: 1})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, written.ID, got[0].ID)
	assert.InDelta(t, 0.45, got[0].Importance, 1e-9)

	// The boost persists and compounds on the next hit.
	got, err = mgr.Retrieve(ctx, RetrieveInput{OwnerID: "parent-7", Query: "lunch", K: 1})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.InDelta(t, 0.5, got[0].Importance, 1e-9)
}

func TestRetrieve_RefreshesLastAccess(t *testing.T) {
	clock := &testClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	mgr := newTestManager(t, defaultStub(), Config{}, clock)
	ctx := context.Background()

	rec, err := mgr.Write(ctx, WriteInput{OwnerID: "u1", Dimension: DimensionSemantic, Content: "fact"})
	require.NoError(t, err)
	writtenAt := clock.now

	clock.Advance(10 * time.Minute)
	got, err := mgr.Retrieve(ctx, RetrieveInput{OwnerID: "u1", Query: "fact", K: 1})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, clock.now, got[0].LastAccessedAt)
	assert.Equal(t, writtenAt, got[0].CreatedAt)

	// The refresh lands on the stored record, not just the copy.
	fetched, err := mgr.Get(ctx, "u1", rec.ID)
	require.NoError(t, err)
	assert.Equal(t, clock.now, fetched.LastAccessedAt)
}

func TestRetrieve_BoostCapsAtOne(t *testing.T) {
	clock := &testClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	mgr := newTestManager(t, defaultStub(), Config{}, clock)
	ctx := context.Background()

	_, err := mgr.Write(ctx, WriteInput{
		OwnerID: "u1", Dimension: DimensionSemantic, Content: "fact", Importance: 0.98,
	})
	require.NoError(t, err)

	got, err := mgr.Retrieve(ctx, RetrieveInput{OwnerID: "u1", Query: "fact", K: 1})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 1.0, got[0].Importance)
}

func TestRetrieve_RanksBySimilarity(t *testing.T) {
	provider := &stubProvider{vectors: map[string][]float32{
		"close":    {1, 0, 0, 0},
		"middling": {0.7, 0.7, 0, 0},
		"far":      {0, 0, 1, 0},
		"query":    {1, 0, 0, 0},
	}}
	clock := &testClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	mgr := newTestManager(t, provider, Config{}, clock)
	ctx := context.Background()

	for _, content := range []string{"far", "middling", "close"} {
		_, err := mgr.Write(ctx, WriteInput{OwnerID: "u1", Dimension: DimensionSemantic, Content: content})
		require.NoError(t, err)
	}

	got, err := mgr.Retrieve(ctx, RetrieveInput{OwnerID: "u1", Query: "query", K: 3})
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "close", got[0].Content)
	assert.Equal(t, "middling", got[1].Content)
	assert.Equal(t, "far", got[2].Content)
}

func TestRetrieve_TieBreakImportanceThenRecency(t *testing.T) {
	// All contents share one vector so similarity ties exactly.
	same := []float32{0, 1, 0, 0}
	provider := &stubProvider{
		vectors:  map[string][]float32{"query": {0, 1, 0, 0}},
		fallback: same,
	}
	clock := &testClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	mgr := newTestManager(t, provider, Config{}, clock)
	ctx := context.Background()

	_, err := mgr.Write(ctx, WriteInput{OwnerID: "u1", Dimension: DimensionSemantic, Content: "low", Importance: 0.2})
	require.NoError(t, err)
	_, err = mgr.Write(ctx, WriteInput{OwnerID: "u1", Dimension: DimensionSemantic, Content: "high", Importance: 0.9})
	require.NoError(t, err)

	got, err := mgr.Retrieve(ctx, RetrieveInput{OwnerID: "u1", Query: "query", K: 2})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "high", got[0].Content)
	assert.Equal(t, "low", got[1].Content)

	// Equal importance: the more recently touched record wins.
	_, err = mgr.Write(ctx, WriteInput{OwnerID: "u2", Dimension: DimensionSemantic, Content: "older", Importance: 0.5})
	require.NoError(t, err)
	clock.Advance(time.Minute)
	_, err = mgr.Write(ctx, WriteInput{OwnerID: "u2", Dimension: DimensionSemantic, Content: "newer", Importance: 0.5})
	require.NoError(t, err)

	got, err = mgr.Retrieve(ctx, RetrieveInput{OwnerID: "u2", Query: "query", K: 2})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "newer", got[0].Content)
}

func TestRetrieve_DimensionFilter(t *testing.T) {
	clock := &testClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	mgr := newTestManager(t, defaultStub(), Config{}, clock)
	ctx := context.Background()

	_, err := mgr.Write(ctx, WriteInput{OwnerID: "u1", Dimension: DimensionEpisodic, Content: "episodic entry"})
	require.NoError(t, err)
	_, err = mgr.Write(ctx, WriteInput{OwnerID: "u1", Dimension: DimensionProcedural, Content: "procedural entry"})
	require.NoError(t, err)

	got, err := mgr.Retrieve(ctx, RetrieveInput{OwnerID: "u1", Dimension: DimensionEpisodic, Query: "entry", K: 10})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, DimensionEpisodic, got[0].Dimension)
}

func TestRetrieve_KLargerThanBucket(t *testing.T) {
	clock := &testClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	mgr := newTestManager(t, defaultStub(), Config{}, clock)
	ctx := context.Background()

	_, err := mgr.Write(ctx, WriteInput{OwnerID: "u1", Dimension: DimensionSemantic, Content: "only one"})
	require.NoError(t, err)

	got, err := mgr.Retrieve(ctx, RetrieveInput{OwnerID: "u1", Query: "anything", K: 50})
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestRetrieve_EmptyOwnerHasNoResults(t *testing.T) {
	clock := &testClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	mgr := newTestManager(t, defaultStub(), Config{}, clock)

	got, err := mgr.Retrieve(context.Background(), RetrieveInput{OwnerID: "ghost", Query: "q", K: 3})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestTTL_ExpiryAndPermanence(t *testing.T) {
	clock := &testClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	mgr := newTestManager(t, defaultStub(), Config{DefaultTTL: time.Hour}, clock)
	ctx := context.Background()

	_, err := mgr.Write(ctx, WriteInput{OwnerID: "u1", Dimension: DimensionEpisodic, Content: "fleeting"})
	require.NoError(t, err)
	_, err = mgr.Write(ctx, WriteInput{OwnerID: "u1", Dimension: DimensionCore, Content: "permanent", TTL: time.Minute})
	require.NoError(t, err)

	clock.Advance(2 * time.Hour)

	got, err := mgr.Retrieve(ctx, RetrieveInput{OwnerID: "u1", Query: "anything", K: 10})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "permanent", got[0].Content)

	stats := mgr.Stats("u1")
	assert.Equal(t, 0, stats[DimensionEpisodic])
	assert.Equal(t, 1, stats[DimensionCore])
}

func TestCapacityEviction_LowestImportanceFirst(t *testing.T) {
	clock := &testClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	mgr := newTestManager(t, defaultStub(), Config{Capacity: 2}, clock)
	ctx := context.Background()

	_, err := mgr.Write(ctx, WriteInput{OwnerID: "u1", Dimension: DimensionSemantic, Content: "keep high", Importance: 0.9})
	require.NoError(t, err)
	_, err = mgr.Write(ctx, WriteInput{OwnerID: "u1", Dimension: DimensionSemantic, Content: "evict low", Importance: 0.1})
	require.NoError(t, err)
	_, err = mgr.Write(ctx, WriteInput{OwnerID: "u1", Dimension: DimensionSemantic, Content: "keep mid", Importance: 0.5})
	require.NoError(t, err)

	got, err := mgr.Retrieve(ctx, RetrieveInput{OwnerID: "u1", Query: "anything", K: 10})
	require.NoError(t, err)
	require.Len(t, got, 2)

	contents := []string{got[0].Content, got[1].Content}
	assert.Contains(t, contents, "keep high")
	assert.Contains(t, contents, "keep mid")
}

func TestCapacityEviction_TieOldestAccessFirst(t *testing.T) {
	clock := &testClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	mgr := newTestManager(t, defaultStub(), Config{Capacity: 2}, clock)
	ctx := context.Background()

	_, err := mgr.Write(ctx, WriteInput{OwnerID: "u1", Dimension: DimensionSemantic, Content: "older", Importance: 0.5})
	require.NoError(t, err)
	clock.Advance(time.Minute)
	_, err = mgr.Write(ctx, WriteInput{OwnerID: "u1", Dimension: DimensionSemantic, Content: "newer", Importance: 0.5})
	require.NoError(t, err)
	clock.Advance(time.Minute)
	_, err = mgr.Write(ctx, WriteInput{OwnerID: "u1", Dimension: DimensionSemantic, Content: "newest", Importance: 0.5})
	require.NoError(t, err)

	got, err := mgr.Retrieve(ctx, RetrieveInput{OwnerID: "u1", Query: "anything", K: 10})
	require.NoError(t, err)
	require.Len(t, got, 2)

	contents := []string{got[0].Content, got[1].Content}
	assert.Contains(t, contents, "newer")
	assert.Contains(t, contents, "newest")
}

func TestCapacityEviction_PerBucketIsolation(t *testing.T) {
	clock := &testClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	mgr := newTestManager(t, defaultStub(), Config{Capacity: 1}, clock)
	ctx := context.Background()

	_, err := mgr.Write(ctx, WriteInput{OwnerID: "u1", Dimension: DimensionSemantic, Content: "semantic"})
	require.NoError(t, err)
	_, err = mgr.Write(ctx, WriteInput{OwnerID: "u1", Dimension: DimensionEpisodic, Content: "episodic"})
	require.NoError(t, err)
	_, err = mgr.Write(ctx, WriteInput{OwnerID: "u2", Dimension: DimensionSemantic, Content: "other owner"})
	require.NoError(t, err)

	// Different buckets never evict each other.
	stats1 := mgr.Stats("u1")
	assert.Equal(t, 1, stats1[DimensionSemantic])
	assert.Equal(t, 1, stats1[DimensionEpisodic])
	assert.Equal(t, 1, mgr.Stats("u2")[DimensionSemantic])
}

func TestLexicalFallback(t *testing.T) {
	provider := defaultStub()
	provider.queryErr = embeddings.ErrUnavailable
	clock := &testClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	mgr := newTestManager(t, provider, Config{}, clock)
	ctx := context.Background()

	_, err := mgr.Write(ctx, WriteInput{OwnerID: "u1", Dimension: DimensionSemantic, Content: "the Lunch menu", Importance: 0.3})
	require.NoError(t, err)
	_, err = mgr.Write(ctx, WriteInput{OwnerID: "u1", Dimension: DimensionSemantic, Content: "lunch schedule for friday", Importance: 0.8})
	require.NoError(t, err)
	_, err = mgr.Write(ctx, WriteInput{OwnerID: "u1", Dimension: DimensionSemantic, Content: "unrelated note"})
	require.NoError(t, err)

	got, err := mgr.Retrieve(ctx, RetrieveInput{OwnerID: "u1", Query: "lunch", K: 10})
	require.NoError(t, err)
	require.Len(t, got, 2)
	// Importance orders lexical matches.
	assert.Equal(t, "lunch schedule for friday", got[0].Content)
	assert.Equal(t, "the Lunch menu", got[1].Content)
}

func TestReembedAfterProviderRecovers(t *testing.T) {
	provider := defaultStub()
	provider.docErr = embeddings.ErrUnavailable
	clock := &testClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	mgr := newTestManager(t, provider, Config{}, clock)
	ctx := context.Background()

	rec, err := mgr.Write(ctx, WriteInput{OwnerID: "u1", Dimension: DimensionSemantic, Content: "written while down"})
	require.NoError(t, err)
	assert.Empty(t, rec.Embedding)

	// Provider comes back; the next retrieval indexes the record.
	provider.setDocErr(nil)

	got, err := mgr.Retrieve(ctx, RetrieveInput{OwnerID: "u1", Query: "written", K: 5})
	require.NoError(t, err)
	require.Len(t, got, 1)

	fetched, err := mgr.Get(ctx, "u1", rec.ID)
	require.NoError(t, err)
	assert.NotEmpty(t, fetched.Embedding)
}

func TestDecayAndEvict_Idempotent(t *testing.T) {
	clock := &testClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	mgr := newTestManager(t, defaultStub(), Config{Capacity: 2, DefaultTTL: time.Hour}, clock)
	ctx := context.Background()

	for _, c := range []string{"a", "b", "c"} {
		_, err := mgr.Write(ctx, WriteInput{OwnerID: "u1", Dimension: DimensionEpisodic, Content: c, Importance: 0.5})
		require.NoError(t, err)
	}

	clock.Advance(30 * time.Minute)
	mgr.DecayAndEvict(ctx)
	first := mgr.Stats("u1")[DimensionEpisodic]

	mgr.DecayAndEvict(ctx)
	assert.Equal(t, first, mgr.Stats("u1")[DimensionEpisodic])

	clock.Advance(time.Hour)
	mgr.DecayAndEvict(ctx)
	assert.Equal(t, 0, mgr.Stats("u1")[DimensionEpisodic])
}

func TestGetAndDelete(t *testing.T) {
	clock := &testClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	mgr := newTestManager(t, defaultStub(), Config{}, clock)
	ctx := context.Background()

	rec, err := mgr.Write(ctx, WriteInput{OwnerID: "u1", Dimension: DimensionResource, Content: "handbook"})
	require.NoError(t, err)

	fetched, err := mgr.Get(ctx, "u1", rec.ID)
	require.NoError(t, err)
	assert.Equal(t, "handbook", fetched.Content)

	require.NoError(t, mgr.Delete(ctx, "u1", rec.ID))

	_, err = mgr.Get(ctx, "u1", rec.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, mgr.Delete(ctx, "u1", rec.ID), ErrNotFound)
}

func TestWriteHelpers(t *testing.T) {
	clock := &testClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	mgr := newTestManager(t, defaultStub(), Config{}, clock)
	ctx := context.Background()

	event, err := mgr.WriteEpisodicEvent(ctx, "u1", "conv-12", "teacher-3", "naptime refused, fire drill chaos", true, false)
	require.NoError(t, err)
	assert.Equal(t, DimensionEpisodic, event.Dimension)
	assert.Equal(t, "conv-12", event.ConversationID)
	assert.InDelta(t, 0.8, event.Importance, 1e-9)
	assert.Equal(t, "teacher-3", event.Metadata["actor"])

	proc, err := mgr.WriteProcedure(ctx, "u1", "morning drop-off", []string{"greet", "sign in", "hang coat"})
	require.NoError(t, err)
	assert.Equal(t, DimensionProcedural, proc.Dimension)
	assert.Contains(t, proc.Content, "morning drop-off")

	_, err = mgr.WriteProcedure(ctx, "u1", "empty", nil)
	assert.ErrorIs(t, err, ErrEmptyContent)

	res, err := mgr.WriteResource(ctx, "u1", "parent handbook 2026", "s3://docs/handbook.pdf", 0)
	require.NoError(t, err)
	assert.Equal(t, "s3://docs/handbook.pdf", res.Metadata["uri"])
}

func TestAssessEpisodicImportance(t *testing.T) {
	assert.InDelta(t, 0.5, AssessEpisodicImportance("short", false, false), 1e-9)
	assert.InDelta(t, 0.8, AssessEpisodicImportance("short", true, false), 1e-9)
	assert.InDelta(t, 0.7, AssessEpisodicImportance("short", false, true), 1e-9)

	long := make([]byte, 600)
	for i := range long {
		long[i] = 'x'
	}
	assert.InDelta(t, 0.9, AssessEpisodicImportance(string(long), true, false), 1e-9)
	// Failure outranks confirmation; the flags do not stack.
	assert.InDelta(t, 0.9, AssessEpisodicImportance(string(long), true, true), 1e-9)
}
