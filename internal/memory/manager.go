package memory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/yyup/agentd/internal/embeddings"
	"github.com/yyup/agentd/internal/vectorstore"
)

// DefaultRetrieveLimit applies when a caller passes k <= 0.
const DefaultRetrieveLimit = 5

// Config bounds the manager.
type Config struct {
	// Capacity is the maximum records per (owner, dimension) bucket.
	Capacity int

	// DefaultTTL applies to expirable dimensions when the writer
	// passes no TTL.
	DefaultTTL time.Duration
}

// ApplyDefaults fills zero values.
func (c *Config) ApplyDefaults() {
	if c.Capacity == 0 {
		c.Capacity = 512
	}
	if c.DefaultTTL == 0 {
		c.DefaultTTL = 30 * 24 * time.Hour
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.Capacity < 1 {
		return fmt.Errorf("capacity must be >= 1, got %d", c.Capacity)
	}
	if c.DefaultTTL < 0 {
		return fmt.Errorf("default TTL cannot be negative")
	}
	return nil
}

// embedQueueSize bounds the asynchronous embedding queue. Overflow is
// harmless: unindexed records are picked up by the next retrieval.
const embedQueueSize = 64

type bucketKey struct {
	owner string
	dim   Dimension
}

// embedJob asks the worker to embed and index one record.
type embedJob struct {
	key bucketKey
	id  string
}

// bucket holds one owner/dimension record set. Each bucket has a single
// writer at a time; the bucket mutex is held across store calls.
type bucket struct {
	mu      sync.Mutex
	records map[string]*Record
}

// Manager owns all memory records and their vector index.
type Manager struct {
	store    vectorstore.Store
	provider embeddings.Provider
	config   Config
	logger   *zap.Logger
	metrics  *Metrics
	now      func() time.Time

	embedJobs chan embedJob
	done      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once

	mu      sync.Mutex
	buckets map[bucketKey]*bucket
}

// Option customizes a Manager.
type Option func(*Manager)

// WithClock overrides the time source. Used by tests to control expiry.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithMetrics attaches metrics instrumentation.
func WithMetrics(metrics *Metrics) Option {
	return func(m *Manager) { m.metrics = metrics }
}

// NewManager creates a memory manager and starts its embedding worker.
// Call Close to stop the worker.
func NewManager(store vectorstore.Store, provider embeddings.Provider, config Config, logger *zap.Logger, opts ...Option) (*Manager, error) {
	if store == nil {
		return nil, fmt.Errorf("vector store cannot be nil")
	}
	if provider == nil {
		return nil, fmt.Errorf("embedding provider cannot be nil")
	}
	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	m := &Manager{
		store:     store,
		provider:  provider,
		config:    config,
		logger:    logger,
		now:       time.Now,
		embedJobs: make(chan embedJob, embedQueueSize),
		done:      make(chan struct{}),
		buckets:   make(map[bucketKey]*bucket),
	}
	for _, opt := range opts {
		opt(m)
	}

	m.wg.Add(1)
	go m.embedWorker()

	return m, nil
}

// Close stops the embedding worker. Jobs still queued are dropped; the
// records they pointed at remain reachable and are indexed on the next
// retrieval.
func (m *Manager) Close() error {
	m.closeOnce.Do(func() { close(m.done) })
	m.wg.Wait()
	return nil
}

func collectionName(ownerID string) string {
	return "mem_" + ownerID
}

func (m *Manager) bucket(key bucketKey) *bucket {
	m.mu.Lock()
	defer m.mu.Unlock()

	b, ok := m.buckets[key]
	if !ok {
		b = &bucket{records: make(map[string]*Record)}
		m.buckets[key] = b
	}
	return b
}

// WriteInput describes one memory write.
type WriteInput struct {
	OwnerID string

	// ConversationID is optional; core memories are usually
	// conversation-independent.
	ConversationID string

	Dimension Dimension
	Content   string

	// Importance in [0, 1]. Values outside the range are clamped.
	Importance float64

	// TTL overrides the default for expirable dimensions. Ignored for
	// core and knowledge_vault, which never expire.
	TTL time.Duration

	Metadata map[string]string
}

// Write stores a new record and queues it for embedding.
//
// The bucket is swept and, if full, the least important record is
// evicted to make room. Embedding happens asynchronously on a bounded
// queue; until the vector lands (or when the provider is down) the
// record is reachable through the lexical fallback, and the next
// retrieval over the bucket indexes whatever is still missing.
func (m *Manager) Write(ctx context.Context, input WriteInput) (Record, error) {
	if input.OwnerID == "" {
		return Record{}, ErrEmptyOwner
	}
	dim, err := ParseDimension(string(input.Dimension))
	if err != nil {
		return Record{}, err
	}
	if strings.TrimSpace(input.Content) == "" {
		return Record{}, ErrEmptyContent
	}

	now := m.now()
	rec := &Record{
		ID:             uuid.NewString(),
		OwnerID:        input.OwnerID,
		ConversationID: input.ConversationID,
		Dimension:      dim,
		Content:        input.Content,
		Importance:     clampImportance(input.Importance),
		CreatedAt:      now,
		LastAccessedAt: now,
	}
	if len(input.Metadata) > 0 {
		rec.Metadata = make(map[string]string, len(input.Metadata))
		for k, v := range input.Metadata {
			rec.Metadata[k] = v
		}
	}
	if dim.Expirable() {
		ttl := input.TTL
		if ttl <= 0 {
			ttl = m.config.DefaultTTL
		}
		expires := now.Add(ttl)
		rec.ExpiresAt = &expires
	}

	key := bucketKey{owner: input.OwnerID, dim: dim}
	b := m.bucket(key)
	b.mu.Lock()
	defer b.mu.Unlock()

	m.sweepLocked(ctx, key, b, now)
	m.evictForCapacityLocked(ctx, key, b, 1)

	b.records[rec.ID] = rec
	m.enqueueEmbed(embedJob{key: key, id: rec.ID})

	if m.metrics != nil {
		m.metrics.RecordWrite(ctx, dim)
	}
	m.logger.Debug("memory written",
		zap.String("owner", input.OwnerID),
		zap.String("dimension", string(dim)),
		zap.String("id", rec.ID),
		zap.Float64("importance", rec.Importance))

	return rec.clone(), nil
}

// enqueueEmbed hands the record to the worker without blocking the
// write path. A full queue just defers indexing to the next retrieval.
func (m *Manager) enqueueEmbed(job embedJob) {
	select {
	case <-m.done:
	case m.embedJobs <- job:
	default:
		m.logger.Warn("embed queue full, deferring to retrieval", zap.String("id", job.id))
	}
}

func (m *Manager) embedWorker() {
	defer m.wg.Done()
	ctx := context.Background()
	for {
		select {
		case <-m.done:
			return
		case job := <-m.embedJobs:
			m.runEmbedJob(ctx, job)
		}
	}
}

// runEmbedJob embeds and indexes one record. The provider call runs off
// the bucket lock; the record is re-checked under the lock afterwards
// since it may have been evicted, deleted or indexed by a retrieval in
// the meantime. Failure is soft: the record stays usable through the
// lexical fallback.
func (m *Manager) runEmbedJob(ctx context.Context, job embedJob) {
	b := m.bucket(job.key)

	b.mu.Lock()
	rec, ok := b.records[job.id]
	if !ok || len(rec.Embedding) > 0 {
		b.mu.Unlock()
		return
	}
	content := rec.Content
	b.mu.Unlock()

	vectors, err := m.provider.EmbedDocuments(ctx, []string{content})
	if err != nil {
		m.logger.Warn("embedding unavailable, record stays unindexed",
			zap.String("id", job.id), zap.Error(err))
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	rec, ok = b.records[job.id]
	if !ok || len(rec.Embedding) > 0 {
		return
	}
	rec.Embedding = vectors[0]

	doc := vectorstore.Document{
		ID:        rec.ID,
		Content:   rec.Content,
		Embedding: rec.Embedding,
		Metadata:  map[string]string{"dimension": string(rec.Dimension)},
	}
	if err := m.store.Add(ctx, collectionName(job.key.owner), []vectorstore.Document{doc}); err != nil {
		m.logger.Warn("vector index add failed", zap.String("id", rec.ID), zap.Error(err))
		rec.Embedding = nil
	}
}

// RetrieveInput describes one retrieval.
type RetrieveInput struct {
	OwnerID string

	// Dimension restricts the search. Empty searches all dimensions.
	Dimension Dimension

	Query string

	// K is the maximum results. Non-positive uses DefaultRetrieveLimit.
	K int
}

// Retrieve returns up to K records ranked by cosine similarity to the
// query, with importance and then recency breaking ties.
//
// Every returned record gets an importance boost of RetrievalBoost
// (capped at 1.0) and a refreshed last-access time. When the embedding
// provider is unavailable the ranking degrades to case-insensitive
// substring matching ordered by importance and recency.
func (m *Manager) Retrieve(ctx context.Context, input RetrieveInput) ([]Record, error) {
	if input.OwnerID == "" {
		return nil, ErrEmptyOwner
	}
	if strings.TrimSpace(input.Query) == "" {
		return nil, ErrEmptyQuery
	}

	dims := Dimensions
	if input.Dimension != "" {
		dim, err := ParseDimension(string(input.Dimension))
		if err != nil {
			return nil, err
		}
		dims = []Dimension{dim}
	}

	k := input.K
	if k <= 0 {
		k = DefaultRetrieveLimit
	}

	// The query is embedded before any bucket lock is taken so a slow
	// provider never stalls concurrent writes.
	queryVec, qerr := m.provider.EmbedQuery(ctx, input.Query)
	if qerr != nil && !errors.Is(qerr, embeddings.ErrUnavailable) {
		return nil, fmt.Errorf("embedding query: %w", qerr)
	}

	now := m.now()
	locked := m.lockBuckets(input.OwnerID, dims)
	defer unlockBuckets(locked)

	candidates := make(map[string]*Record)
	for i, b := range locked {
		m.sweepLocked(ctx, bucketKey{owner: input.OwnerID, dim: dims[i]}, b, now)
		for id, rec := range b.records {
			candidates[id] = rec
		}
	}
	if len(candidates) == 0 {
		return []Record{}, nil
	}

	m.reembedLocked(ctx, input.OwnerID, candidates)

	var ranked []*Record
	if qerr != nil {
		m.logger.Warn("embedding provider unavailable, falling back to lexical match", zap.Error(qerr))
		if m.metrics != nil {
			m.metrics.RecordFallback(ctx)
		}
		ranked = lexicalRank(input.Query, candidates)
	} else {
		ranked = m.rankByVector(ctx, input, queryVec, candidates)
	}

	if len(ranked) > k {
		ranked = ranked[:k]
	}

	out := make([]Record, 0, len(ranked))
	for _, rec := range ranked {
		rec.Importance = clampImportance(rec.Importance + RetrievalBoost)
		rec.LastAccessedAt = now
		out = append(out, rec.clone())
	}

	if m.metrics != nil {
		m.metrics.RecordRetrieval(ctx, input.Dimension, len(out))
	}
	return out, nil
}

// rankByVector orders candidates by cosine similarity to the query
// vector, degrading to lexical matching when the index search fails.
func (m *Manager) rankByVector(ctx context.Context, input RetrieveInput, queryVec []float32, candidates map[string]*Record) []*Record {
	var where map[string]string
	if input.Dimension != "" {
		where = map[string]string{"dimension": string(input.Dimension)}
	}

	results, err := m.store.Search(ctx, collectionName(input.OwnerID), queryVec, len(candidates), where)
	if err != nil {
		m.logger.Warn("vector search failed, falling back to lexical match", zap.Error(err))
		if m.metrics != nil {
			m.metrics.RecordFallback(ctx)
		}
		return lexicalRank(input.Query, candidates)
	}

	type scored struct {
		rec *Record
		sim float32
	}
	ranked := make([]scored, 0, len(results))
	for _, res := range results {
		rec, ok := candidates[res.ID]
		if !ok {
			// Stale index entry for an evicted or expired record.
			continue
		}
		ranked = append(ranked, scored{rec: rec, sim: res.Similarity})
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].sim != ranked[j].sim {
			return ranked[i].sim > ranked[j].sim
		}
		if ranked[i].rec.Importance != ranked[j].rec.Importance {
			return ranked[i].rec.Importance > ranked[j].rec.Importance
		}
		return ranked[i].rec.LastAccessedAt.After(ranked[j].rec.LastAccessedAt)
	})

	out := make([]*Record, len(ranked))
	for i, s := range ranked {
		out[i] = s.rec
	}
	return out
}

// lexicalRank is the no-embeddings fallback: case-insensitive substring
// match ordered by importance then recency.
func lexicalRank(query string, candidates map[string]*Record) []*Record {
	needle := strings.ToLower(query)
	var matched []*Record
	for _, rec := range candidates {
		if strings.Contains(strings.ToLower(rec.Content), needle) {
			matched = append(matched, rec)
		}
	}
	sort.SliceStable(matched, func(i, j int) bool {
		if matched[i].Importance != matched[j].Importance {
			return matched[i].Importance > matched[j].Importance
		}
		return matched[i].LastAccessedAt.After(matched[j].LastAccessedAt)
	})
	return matched
}

// reembedLocked embeds records the worker has not indexed yet, whether
// the provider was down, the queue overflowed or the job simply has not
// run. Quietly gives up on failure; the records remain reachable
// through the lexical fallback.
func (m *Manager) reembedLocked(ctx context.Context, ownerID string, candidates map[string]*Record) {
	var pending []*Record
	for _, rec := range candidates {
		if len(rec.Embedding) == 0 {
			pending = append(pending, rec)
		}
	}
	if len(pending) == 0 {
		return
	}

	texts := make([]string, len(pending))
	for i, rec := range pending {
		texts[i] = rec.Content
	}
	vectors, err := m.provider.EmbedDocuments(ctx, texts)
	if err != nil {
		return
	}

	docs := make([]vectorstore.Document, len(pending))
	for i, rec := range pending {
		rec.Embedding = vectors[i]
		docs[i] = vectorstore.Document{
			ID:        rec.ID,
			Content:   rec.Content,
			Embedding: rec.Embedding,
			Metadata:  map[string]string{"dimension": string(rec.Dimension)},
		}
	}
	if err := m.store.Add(ctx, collectionName(ownerID), docs); err != nil {
		m.logger.Warn("re-embed index add failed", zap.Error(err))
		for _, rec := range pending {
			rec.Embedding = nil
		}
	}
}

// Get returns one record by ID.
func (m *Manager) Get(ctx context.Context, ownerID, id string) (Record, error) {
	if ownerID == "" {
		return Record{}, ErrEmptyOwner
	}

	for _, dim := range Dimensions {
		b := m.bucket(bucketKey{owner: ownerID, dim: dim})
		b.mu.Lock()
		rec, ok := b.records[id]
		if ok && !rec.Expired(m.now()) {
			out := rec.clone()
			b.mu.Unlock()
			return out, nil
		}
		b.mu.Unlock()
	}
	return Record{}, fmt.Errorf("%w: %s", ErrNotFound, id)
}

// Delete removes one record by ID.
func (m *Manager) Delete(ctx context.Context, ownerID, id string) error {
	if ownerID == "" {
		return ErrEmptyOwner
	}

	for _, dim := range Dimensions {
		b := m.bucket(bucketKey{owner: ownerID, dim: dim})
		b.mu.Lock()
		if _, ok := b.records[id]; ok {
			delete(b.records, id)
			b.mu.Unlock()
			if err := m.store.Delete(ctx, collectionName(ownerID), id); err != nil {
				m.logger.Warn("vector index delete failed", zap.String("id", id), zap.Error(err))
			}
			return nil
		}
		b.mu.Unlock()
	}
	return fmt.Errorf("%w: %s", ErrNotFound, id)
}

// Stats counts live records per dimension for an owner.
func (m *Manager) Stats(ownerID string) map[Dimension]int {
	now := m.now()
	stats := make(map[Dimension]int, len(Dimensions))
	for _, dim := range Dimensions {
		b := m.bucket(bucketKey{owner: ownerID, dim: dim})
		b.mu.Lock()
		n := 0
		for _, rec := range b.records {
			if !rec.Expired(now) {
				n++
			}
		}
		b.mu.Unlock()
		stats[dim] = n
	}
	return stats
}

// DecayAndEvict sweeps every bucket: expired records are removed and
// over-capacity buckets are trimmed lowest-importance first. Running it
// twice in a row without intervening writes changes nothing.
func (m *Manager) DecayAndEvict(ctx context.Context) {
	now := m.now()

	m.mu.Lock()
	keys := make([]bucketKey, 0, len(m.buckets))
	for key := range m.buckets {
		keys = append(keys, key)
	}
	m.mu.Unlock()

	for _, key := range keys {
		b := m.bucket(key)
		b.mu.Lock()
		m.sweepLocked(ctx, key, b, now)
		m.evictForCapacityLocked(ctx, key, b, 0)
		b.mu.Unlock()
	}
}

// sweepLocked drops expired records and their index entries.
func (m *Manager) sweepLocked(ctx context.Context, key bucketKey, b *bucket, now time.Time) {
	var expired []string
	for id, rec := range b.records {
		if rec.Expired(now) {
			expired = append(expired, id)
		}
	}
	if len(expired) == 0 {
		return
	}

	for _, id := range expired {
		delete(b.records, id)
	}
	if err := m.store.Delete(ctx, collectionName(key.owner), expired...); err != nil {
		m.logger.Warn("vector index sweep failed", zap.Error(err))
	}
	if m.metrics != nil {
		m.metrics.RecordEviction(ctx, key.dim, "expired", len(expired))
	}
	m.logger.Debug("expired records swept",
		zap.String("owner", key.owner),
		zap.String("dimension", string(key.dim)),
		zap.Int("count", len(expired)))
}

// evictForCapacityLocked trims the bucket so that incoming more records
// still fit. Lowest importance goes first, oldest last access breaking
// ties.
func (m *Manager) evictForCapacityLocked(ctx context.Context, key bucketKey, b *bucket, incoming int) {
	over := len(b.records) + incoming - m.config.Capacity
	if over <= 0 {
		return
	}

	recs := make([]*Record, 0, len(b.records))
	for _, rec := range b.records {
		recs = append(recs, rec)
	}
	sort.SliceStable(recs, func(i, j int) bool {
		if recs[i].Importance != recs[j].Importance {
			return recs[i].Importance < recs[j].Importance
		}
		return recs[i].LastAccessedAt.Before(recs[j].LastAccessedAt)
	})

	evicted := make([]string, 0, over)
	for i := 0; i < over && i < len(recs); i++ {
		evicted = append(evicted, recs[i].ID)
		delete(b.records, recs[i].ID)
	}
	if err := m.store.Delete(ctx, collectionName(key.owner), evicted...); err != nil {
		m.logger.Warn("vector index evict failed", zap.Error(err))
	}
	if m.metrics != nil {
		m.metrics.RecordEviction(ctx, key.dim, "capacity", len(evicted))
	}
	m.logger.Debug("records evicted for capacity",
		zap.String("owner", key.owner),
		zap.String("dimension", string(key.dim)),
		zap.Int("count", len(evicted)))
}

// lockBuckets locks the owner's buckets for dims in canonical order.
func (m *Manager) lockBuckets(ownerID string, dims []Dimension) []*bucket {
	locked := make([]*bucket, len(dims))
	for i, dim := range dims {
		b := m.bucket(bucketKey{owner: ownerID, dim: dim})
		b.mu.Lock()
		locked[i] = b
	}
	return locked
}

func unlockBuckets(buckets []*bucket) {
	for _, b := range buckets {
		b.mu.Unlock()
	}
}
