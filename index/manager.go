package index

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"finsight-backend/llm"
	"finsight-backend/storage"
)

const defaultTopK = 4

const queryPromptTemplate = `Context information from the user's documents is below.
---------------------
%s
---------------------
Given the context information and not prior knowledge, answer the query.
If the context does not contain the answer, say so.
Query: %s
Answer:`

// Manager owns the mapping from (user_id, conversation_id) to a durable
// partition holding one merged retrieval index plus one visualization
// graph. Builds for the same key are serialized through a per-key lock;
// builds for different keys proceed in parallel. Queries are read-only
// and load a consistent snapshot, so they never block behind builds on
// other keys and never observe a partially written partition.
type Manager struct {
	store     storage.Storage
	embedder  llm.Embedder
	completer llm.Completer
	chunkSize int
	topK      int
	log       *zap.Logger

	mu       sync.Mutex
	keyLocks map[string]*sync.Mutex
}

// ManagerOption is a functional option for Manager
type ManagerOption func(*Manager)

// WithChunkSize overrides the fixed chunk size applied at build time
func WithChunkSize(size int) ManagerOption {
	return func(m *Manager) {
		if size > 0 {
			m.chunkSize = size
		}
	}
}

// WithTopK overrides how many chunks are retrieved per query
func WithTopK(k int) ManagerOption {
	return func(m *Manager) {
		if k > 0 {
			m.topK = k
		}
	}
}

// NewManager creates a partition manager
func NewManager(store storage.Storage, embedder llm.Embedder, completer llm.Completer, log *zap.Logger, opts ...ManagerOption) *Manager {
	m := &Manager{
		store:     store,
		embedder:  embedder,
		completer: completer,
		chunkSize: DefaultChunkSize,
		topK:      defaultTopK,
		log:       log,
		keyLocks:  make(map[string]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// lockFor returns the mutex serializing writers for one key
func (m *Manager) lockFor(key Key) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	loc := key.location()
	lock, ok := m.keyLocks[loc]
	if !ok {
		lock = &sync.Mutex{}
		m.keyLocks[loc] = lock
	}
	return lock
}

// BuildOrMerge creates the partition for key from documents, or merges new
// documents into the existing partition. Merging is incremental: documents
// whose content hash is already in the partition manifest are skipped, so
// retrying an identical upload leaves the partition's effective content
// set unchanged. The graph snapshot is re-rendered on every build that
// adds documents and is otherwise left as written.
func (m *Manager) BuildOrMerge(ctx context.Context, key Key, docs []Document) (*Partition, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, errors.New("no documents to index")
	}

	lock := m.lockFor(key)
	lock.Lock()
	defer lock.Unlock()

	data, err := m.loadData(ctx, key)
	if errors.Is(err, ErrPartitionNotFound) {
		data = newPartitionFile(m.chunkSize)
	} else if err != nil {
		return nil, err
	}

	added := 0
	for _, doc := range docs {
		hash := doc.Hash()
		if data.hasDocument(hash) {
			m.log.Info("document already indexed, skipping",
				zap.String("partition", key.location()),
				zap.String("filename", doc.Filename))
			continue
		}

		chunks := ChunkText(doc.Text, data.ChunkSize)
		if len(chunks) == 0 {
			m.log.Warn("document produced no chunks",
				zap.String("partition", key.location()),
				zap.String("filename", doc.Filename))
			continue
		}

		for i, chunk := range chunks {
			embedding, err := m.embedder.EmbedDocument(ctx, chunk)
			if err != nil {
				return nil, fmt.Errorf("failed to embed chunk %d of %s: %w", i, doc.Filename, err)
			}
			data.Chunks = append(data.Chunks, chunkRecord{
				DocHash:   hash,
				Text:      chunk,
				Embedding: embedding,
			})
		}

		data.Graph = append(data.Graph, m.extractTriplets(ctx, chunks)...)
		data.Documents = append(data.Documents, manifestEntry{
			Filename:   doc.Filename,
			SHA256:     hash,
			ChunkCount: len(chunks),
		})
		added++
	}

	if added > 0 {
		data.BuiltAt = time.Now().UTC()
		if err := m.persist(ctx, key, data); err != nil {
			return nil, err
		}
		m.log.Info("partition built",
			zap.String("partition", key.location()),
			zap.Int("documents_added", added),
			zap.Int("documents_total", len(data.Documents)),
			zap.Int("chunks_total", len(data.Chunks)))
	}

	return &Partition{Key: key, data: data}, nil
}

// Load deserializes the persisted partition for key. A key that was never
// built fails with ErrPartitionNotFound, never with an empty result.
func (m *Manager) Load(ctx context.Context, key Key) (*Partition, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}
	data, err := m.loadData(ctx, key)
	if err != nil {
		return nil, err
	}
	return &Partition{Key: key, data: data}, nil
}

// Query resolves a natural-language query against the merged index for key
// only. Missing and empty partitions fail with ErrPartitionNotFound; there
// is no fallback to any other partition.
func (m *Manager) Query(ctx context.Context, key Key, query string) (string, error) {
	p, err := m.Load(ctx, key)
	if err != nil {
		return "", err
	}
	if p.ChunkCount() == 0 {
		return "", ErrPartitionNotFound
	}

	queryEmbedding, err := m.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return "", fmt.Errorf("failed to embed query: %w", err)
	}

	top := topChunks(p.data.Chunks, queryEmbedding, m.topK)
	prompt := fmt.Sprintf(queryPromptTemplate, strings.Join(top, "\n\n"), query)

	answer, err := m.completer.Complete(ctx, prompt, 0)
	if err != nil {
		return "", fmt.Errorf("failed to answer query: %w", err)
	}
	return answer, nil
}

// GraphHTML returns the visualization snapshot written at last build time
func (m *Manager) GraphHTML(ctx context.Context, key Key) ([]byte, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}
	reader, err := m.store.Get(ctx, key.graphKey())
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrPartitionNotFound
		}
		return nil, fmt.Errorf("failed to read graph snapshot: %w", err)
	}
	defer reader.Close()

	html, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read graph snapshot: %w", err)
	}
	return html, nil
}

// Clear removes the partition for key. There is no automatic retention;
// partitions live until explicitly cleared.
func (m *Manager) Clear(ctx context.Context, key Key) error {
	if err := key.Validate(); err != nil {
		return err
	}

	lock := m.lockFor(key)
	lock.Lock()
	defer lock.Unlock()

	if err := m.store.Delete(ctx, key.indexKey()); err != nil {
		return fmt.Errorf("failed to delete partition index: %w", err)
	}
	if err := m.store.Delete(ctx, key.graphKey()); err != nil {
		return fmt.Errorf("failed to delete graph snapshot: %w", err)
	}
	return nil
}

func (m *Manager) loadData(ctx context.Context, key Key) (*partitionFile, error) {
	reader, err := m.store.Get(ctx, key.indexKey())
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrPartitionNotFound
		}
		return nil, fmt.Errorf("failed to read partition: %w", err)
	}
	defer reader.Close()

	var data partitionFile
	if err := json.NewDecoder(reader).Decode(&data); err != nil {
		return nil, fmt.Errorf("failed to decode partition: %w", err)
	}
	return &data, nil
}

// persist writes the graph snapshot before the index. The index file is
// the dedupe manifest: once it lands, a retry of the same upload is a
// no-op, so everything the partition needs must already be durable by
// then.
func (m *Manager) persist(ctx context.Context, key Key, data *partitionFile) error {
	html, err := renderGraphHTML(data.Graph)
	if err != nil {
		return fmt.Errorf("failed to render graph snapshot: %w", err)
	}
	if err := m.store.Put(ctx, key.graphKey(), bytes.NewReader(html)); err != nil {
		return fmt.Errorf("failed to persist graph snapshot: %w", err)
	}

	encoded, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to encode partition: %w", err)
	}
	if err := m.store.Put(ctx, key.indexKey(), bytes.NewReader(encoded)); err != nil {
		return fmt.Errorf("failed to persist partition: %w", err)
	}
	return nil
}

// topChunks ranks chunks by cosine similarity to the query embedding.
// Embeddings are L2-normalized at build time, so the dot product is the
// cosine.
func topChunks(chunks []chunkRecord, queryEmbedding []float64, k int) []string {
	type scored struct {
		text  string
		score float64
	}
	results := make([]scored, 0, len(chunks))
	for _, c := range chunks {
		results = append(results, scored{text: c.Text, score: dot(c.Embedding, queryEmbedding)})
	}
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].score > results[j].score
	})

	if k > len(results) {
		k = len(results)
	}
	texts := make([]string, 0, k)
	for i := 0; i < k; i++ {
		texts = append(texts, results[i].text)
	}
	return texts
}

func dot(a, b []float64) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	sum := 0.0
	for i := 0; i < n; i++ {
		sum += a[i] * b[i]
	}
	return sum
}
