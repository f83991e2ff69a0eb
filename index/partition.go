package index

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"regexp"
	"time"
)

var (
	// ErrPartitionNotFound is returned when no partition has been built for
	// a key, or when a partition holds no indexed documents. Queries against
	// such a key must fail explicitly, never fall back to another partition.
	ErrPartitionNotFound = errors.New("no documents processed yet for this conversation")

	// ErrInvalidKey is returned for keys whose components are empty or
	// contain characters that could make two keys resolve to one storage
	// location.
	ErrInvalidKey = errors.New("invalid partition key")
)

// keyComponentPattern constrains key components so that the
// "{user_id}_{conversation_id}" layout cannot alias two distinct keys to
// the same location (the separator itself is excluded).
var keyComponentPattern = regexp.MustCompile(`^[A-Za-z0-9-]+$`)

// Key identifies one partition. Both components are opaque identifiers
// owned by the caller.
type Key struct {
	UserID         string
	ConversationID string
}

// Validate checks that the key maps to an unambiguous storage location
func (k Key) Validate() error {
	if !keyComponentPattern.MatchString(k.UserID) || !keyComponentPattern.MatchString(k.ConversationID) {
		return fmt.Errorf("%w: %q/%q", ErrInvalidKey, k.UserID, k.ConversationID)
	}
	return nil
}

// location returns the storage prefix for this key. The same key always
// resolves to the same location across restarts; distinct keys never alias
// because components exclude the separator.
func (k Key) location() string {
	return "partitions/" + k.UserID + "_" + k.ConversationID
}

func (k Key) indexKey() string { return k.location() + "/index.json" }
func (k Key) graphKey() string { return k.location() + "/graph.html" }

// Document is one unit of raw extracted text submitted for indexing
type Document struct {
	Filename string
	Text     string
}

// Hash returns the content hash used for merge deduplication
func (d Document) Hash() string {
	sum := sha256.Sum256([]byte(d.Text))
	return hex.EncodeToString(sum[:])
}

// manifestEntry records one document merged into the partition
type manifestEntry struct {
	Filename   string `json:"filename"`
	SHA256     string `json:"sha256"`
	ChunkCount int    `json:"chunk_count"`
}

// chunkRecord is one indexed chunk with its normalized embedding
type chunkRecord struct {
	DocHash   string    `json:"doc_hash"`
	Text      string    `json:"text"`
	Embedding []float64 `json:"embedding"`
}

// graphEdge is one entity/relation triplet, kept for visualization only
type graphEdge struct {
	Subject  string `json:"subject"`
	Relation string `json:"relation"`
	Object   string `json:"object"`
}

// partitionFile is the serialized form of a partition
type partitionFile struct {
	Version   int             `json:"version"`
	ChunkSize int             `json:"chunk_size"`
	Documents []manifestEntry `json:"documents"`
	Chunks    []chunkRecord   `json:"chunks"`
	Graph     []graphEdge     `json:"graph"`
	BuiltAt   time.Time       `json:"built_at"`
}

func newPartitionFile(chunkSize int) *partitionFile {
	return &partitionFile{
		Version:   1,
		ChunkSize: chunkSize,
	}
}

func (p *partitionFile) hasDocument(hash string) bool {
	for _, d := range p.Documents {
		if d.SHA256 == hash {
			return true
		}
	}
	return false
}

// Partition is a loaded, read-only view of one key's merged index
type Partition struct {
	Key  Key
	data *partitionFile
}

// DocumentCount returns the number of distinct documents merged into the
// partition
func (p *Partition) DocumentCount() int { return len(p.data.Documents) }

// ChunkCount returns the number of indexed chunks
func (p *Partition) ChunkCount() int { return len(p.data.Chunks) }

// Filenames lists the documents merged into the partition, in merge order
func (p *Partition) Filenames() []string {
	names := make([]string, 0, len(p.data.Documents))
	for _, d := range p.data.Documents {
		names = append(names, d.Filename)
	}
	return names
}

// BuiltAt returns the time of the last build that changed the partition
func (p *Partition) BuiltAt() time.Time { return p.data.BuiltAt }
