package core

import (
	"encoding/binary"
	"time"

	"github.com/go-crypt/x/blake2b"
)

// ID is a unique identifier for domain entities.
// It is generated using content-based hashing or database sequences.
type ID uint64

// IDFromContent generates a deterministic ID from text content using BLAKE2b hashing.
// This ensures that identical content produces identical IDs. It is used for
// the per-user URL uniqueness index.
func IDFromContent(text string) ID {
	h, _ := blake2b.New(8, nil) // 8 bytes = 64 bits
	h.Write([]byte(text))
	sum := h.Sum(nil)
	return ID(binary.LittleEndian.Uint64(sum))
}

// Item represents a user-submitted URL and its progressively enriched
// derived fields. Most fields start empty and are populated by the
// enrichment pipeline as it advances through its stages.
type Item struct {
	Id     ID
	UserId ID

	// Submission field, set synchronously at creation time.
	URL string

	// Extraction stage output.
	SourceSite      string
	Title           string
	CanonicalURL    string
	FaviconURL      string
	PublishedAt     time.Time
	ContentMarkdown string
	ContentText     string

	// Summary stage output.
	Summary     string
	ExpiryScore float64 // Decay score in [0,1]; 1 decays fastest

	// Index stage output.
	ContentTokenCount int
	Vector            []float32

	// Status axes, each with its own last-changed timestamp.
	ClientStatus   ClientStatus
	ClientStatusAt time.Time
	ServerStatus   ServerStatus
	ServerStatusAt time.Time

	InsertedAt time.Time // When the record was inserted into the database
	UpdatedAt  time.Time // When the record was last updated
}

// SetClientStatus moves the item to the given client status and stamps the
// change time. It does not validate the transition; callers go through
// ValidateClientTransition (the item repository does this on update).
func (i *Item) SetClientStatus(s ClientStatus, at time.Time) {
	i.ClientStatus = s
	i.ClientStatusAt = at
}

// SetServerStatus moves the item to the given server status and stamps the
// change time.
func (i *Item) SetServerStatus(s ServerStatus, at time.Time) {
	i.ServerStatus = s
	i.ServerStatusAt = at
}

// Chunk is one ordered slice of an item's content with its own embedding,
// used for fine-grained retrieval. Chunks are identified by (ItemId, Position)
// with contiguous zero-based positions, and are replaced wholesale every time
// the index stage completes for an item.
type Chunk struct {
	ItemId     ID
	Position   int
	Text       string
	TokenCount int
	Vector     []float32
	InsertedAt time.Time
	UpdatedAt  time.Time
}

// User owns items. Password hashes are derived with Argon2id by the
// user repository; the plain password is never stored.
type User struct {
	Id           ID
	Username     string
	PasswordHash []byte
	PasswordSalt []byte
	InsertedAt   time.Time
	UpdatedAt    time.Time
}

// UsageLog records one billable call to an external AI service.
// Entries are appended fire-and-forget by the pipeline, so losing one
// under failure is acceptable.
type UsageLog struct {
	Id        ID
	UserId    ID
	ItemId    ID
	Operation string
	Tokens    int
	At        time.Time
}

// SearchResult represents a search hit with its relevance score.
// Chunk is nil for item-scoped searches.
type SearchResult struct {
	Item  *Item
	Chunk *Chunk
	Score float32
}
