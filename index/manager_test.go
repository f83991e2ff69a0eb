package index

import (
	"context"
	"fmt"
	"io"
	"math"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"finsight-backend/storage"
)

// fakeEmbedder returns a deterministic unit vector per text so retrieval
// ranking is stable across runs
type fakeEmbedder struct {
	mu    sync.Mutex
	calls int
}

func (f *fakeEmbedder) embed(text string) []float64 {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()

	v := make([]float64, 4)
	for i, r := range text {
		v[i%4] += float64(r)
	}
	var norm float64
	for _, x := range v {
		norm += x * x
	}
	if norm == 0 {
		return v
	}
	norm = 1 / math.Sqrt(norm)
	for i := range v {
		v[i] *= norm
	}
	return v
}

func (f *fakeEmbedder) EmbedDocument(_ context.Context, text string) ([]float64, error) {
	return f.embed(text), nil
}

func (f *fakeEmbedder) EmbedQuery(_ context.Context, text string) ([]float64, error) {
	return f.embed(text), nil
}

// fakeCompleter records prompts and answers with a canned response. Triplet
// extraction prompts get an empty JSON array so graph building stays inert.
type fakeCompleter struct {
	mu      sync.Mutex
	prompts []string
}

func (f *fakeCompleter) Complete(_ context.Context, prompt string, _ float32) (string, error) {
	f.mu.Lock()
	f.prompts = append(f.prompts, prompt)
	f.mu.Unlock()
	if strings.Contains(prompt, "knowledge triplets") {
		return "[]", nil
	}
	return "canned answer", nil
}

func newTestManager(t *testing.T) (*Manager, *fakeEmbedder, *fakeCompleter) {
	t.Helper()
	store, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	embedder := &fakeEmbedder{}
	completer := &fakeCompleter{}
	return NewManager(store, embedder, completer, zap.NewNop()), embedder, completer
}

func TestKeyValidation(t *testing.T) {
	assert.NoError(t, Key{UserID: "user-1", ConversationID: "conv-1"}.Validate())
	assert.ErrorIs(t, Key{UserID: "", ConversationID: "conv"}.Validate(), ErrInvalidKey)
	assert.ErrorIs(t, Key{UserID: "user", ConversationID: ""}.Validate(), ErrInvalidKey)
	// The separator character inside a component would alias another key
	assert.ErrorIs(t, Key{UserID: "a_b", ConversationID: "c"}.Validate(), ErrInvalidKey)
	assert.ErrorIs(t, Key{UserID: "a", ConversationID: "b/c"}.Validate(), ErrInvalidKey)
	assert.ErrorIs(t, Key{UserID: "a b", ConversationID: "c"}.Validate(), ErrInvalidKey)
}

func TestQueryWithoutBuildReturnsNotFound(t *testing.T) {
	m, _, _ := newTestManager(t)
	key := Key{UserID: "user-1", ConversationID: "conv-1"}

	_, err := m.Query(context.Background(), key, "anything")
	assert.ErrorIs(t, err, ErrPartitionNotFound)

	_, err = m.Load(context.Background(), key)
	assert.ErrorIs(t, err, ErrPartitionNotFound)

	_, err = m.GraphHTML(context.Background(), key)
	assert.ErrorIs(t, err, ErrPartitionNotFound)
}

func TestBuildThenQuery(t *testing.T) {
	m, _, completer := newTestManager(t)
	key := Key{UserID: "user-1", ConversationID: "conv-1"}

	docs := []Document{
		{Filename: "report.pdf", Text: "Revenue grew to 3.9 trillion dollars in the final quarter."},
		{Filename: "notes.pdf", Text: "Operating expenses were flat year over year."},
	}
	p, err := m.BuildOrMerge(context.Background(), key, docs)
	require.NoError(t, err)
	assert.Equal(t, 2, p.DocumentCount())
	assert.Greater(t, p.ChunkCount(), 0)

	answer, err := m.Query(context.Background(), key, "What happened to revenue?")
	require.NoError(t, err)
	assert.Equal(t, "canned answer", answer)

	// The answer prompt must carry retrieved document context
	last := completer.prompts[len(completer.prompts)-1]
	assert.Contains(t, last, "Context information")
	assert.Contains(t, last, "What happened to revenue?")

	html, err := m.GraphHTML(context.Background(), key)
	require.NoError(t, err)
	assert.Contains(t, string(html), "vis-network")
}

func TestPartitionIsolation(t *testing.T) {
	m, _, _ := newTestManager(t)
	keyA := Key{UserID: "user-1", ConversationID: "conv-a"}
	keyB := Key{UserID: "user-1", ConversationID: "conv-b"}

	_, err := m.BuildOrMerge(context.Background(), keyA, []Document{
		{Filename: "a.pdf", Text: "only conversation A has documents"},
	})
	require.NoError(t, err)

	// A sibling conversation of the same user must not see them
	_, err = m.Query(context.Background(), keyB, "anything")
	assert.ErrorIs(t, err, ErrPartitionNotFound)

	p, err := m.Load(context.Background(), keyA)
	require.NoError(t, err)
	assert.Equal(t, []string{"a.pdf"}, p.Filenames())
}

func TestBuildOrMergeIdempotent(t *testing.T) {
	m, _, _ := newTestManager(t)
	key := Key{UserID: "user-1", ConversationID: "conv-1"}
	docs := []Document{{Filename: "a.pdf", Text: "identical content"}}

	first, err := m.BuildOrMerge(context.Background(), key, docs)
	require.NoError(t, err)

	// Same content again, including under a different filename
	again, err := m.BuildOrMerge(context.Background(), key, []Document{
		{Filename: "a-copy.pdf", Text: "identical content"},
	})
	require.NoError(t, err)

	assert.Equal(t, first.DocumentCount(), again.DocumentCount())
	assert.Equal(t, first.ChunkCount(), again.ChunkCount())
}

func TestBuildOrMergeAppendsNewDocuments(t *testing.T) {
	m, _, _ := newTestManager(t)
	key := Key{UserID: "user-1", ConversationID: "conv-1"}

	_, err := m.BuildOrMerge(context.Background(), key, []Document{
		{Filename: "first.pdf", Text: "first document"},
	})
	require.NoError(t, err)

	p, err := m.BuildOrMerge(context.Background(), key, []Document{
		{Filename: "second.pdf", Text: "second document"},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, p.DocumentCount())
	assert.Equal(t, []string{"first.pdf", "second.pdf"}, p.Filenames())
}

func TestConcurrentBuildsStayConsistent(t *testing.T) {
	m, _, _ := newTestManager(t)
	key := Key{UserID: "user-1", ConversationID: "conv-1"}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := m.BuildOrMerge(context.Background(), key, []Document{
				{Filename: fmt.Sprintf("doc-%d.pdf", i), Text: fmt.Sprintf("unique content %d", i)},
			})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	p, err := m.Load(context.Background(), key)
	require.NoError(t, err)
	assert.Equal(t, 8, p.DocumentCount())
}

func TestClearRemovesPartition(t *testing.T) {
	m, _, _ := newTestManager(t)
	key := Key{UserID: "user-1", ConversationID: "conv-1"}

	_, err := m.BuildOrMerge(context.Background(), key, []Document{
		{Filename: "a.pdf", Text: "content"},
	})
	require.NoError(t, err)

	require.NoError(t, m.Clear(context.Background(), key))

	_, err = m.Load(context.Background(), key)
	assert.ErrorIs(t, err, ErrPartitionNotFound)
}

func TestTopChunksRanking(t *testing.T) {
	chunks := []chunkRecord{
		{Text: "low", Embedding: []float64{0, 1}},
		{Text: "high", Embedding: []float64{1, 0}},
		{Text: "mid", Embedding: []float64{0.7, 0.7}},
	}
	top := topChunks(chunks, []float64{1, 0}, 2)
	assert.Equal(t, []string{"high", "mid"}, top)
}

// flakySnapshotStorage fails the first graph snapshot write, simulating a
// store that dies between persisting the two partition files
type flakySnapshotStorage struct {
	storage.Storage
	mu     sync.Mutex
	failed bool
}

func (s *flakySnapshotStorage) Put(ctx context.Context, key string, data io.Reader) error {
	s.mu.Lock()
	fail := !s.failed && strings.HasSuffix(key, "graph.html")
	if fail {
		s.failed = true
	}
	s.mu.Unlock()
	if fail {
		return fmt.Errorf("transient write failure")
	}
	return s.Storage.Put(ctx, key, data)
}

func TestBuildRetriesAfterSnapshotWriteFailure(t *testing.T) {
	base, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	store := &flakySnapshotStorage{Storage: base}
	m := NewManager(store, &fakeEmbedder{}, &fakeCompleter{}, zap.NewNop())

	key := Key{UserID: "user1", ConversationID: "conv1"}
	docs := []Document{{Filename: "report.pdf", Text: "Revenue grew strongly this quarter."}}

	_, err = m.BuildOrMerge(context.Background(), key, docs)
	require.Error(t, err)

	// The manifest must not land before the snapshot: otherwise the retry
	// dedupes the document away and the snapshot stays missing forever.
	_, err = m.Load(context.Background(), key)
	assert.ErrorIs(t, err, ErrPartitionNotFound)
	_, err = m.GraphHTML(context.Background(), key)
	assert.ErrorIs(t, err, ErrPartitionNotFound)

	p, err := m.BuildOrMerge(context.Background(), key, docs)
	require.NoError(t, err)
	assert.Equal(t, 1, p.DocumentCount())

	html, err := m.GraphHTML(context.Background(), key)
	require.NoError(t, err)
	assert.NotEmpty(t, html)
}
