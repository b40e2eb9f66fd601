package storage

import (
	"context"

	"github.com/lateralhq/lateral/core"
)

// Repository provides common storage operations shared across all repositories.
// Implementations must be thread-safe and support concurrent access.
type Repository interface {
	// Close closes the repository and releases resources.
	Close() error
}

// ItemFilter narrows ListItems results. Zero values mean "no constraint".
type ItemFilter struct {
	// ClientStatuses restricts results to items in one of the given statuses.
	ClientStatuses []core.ClientStatus
	// Limit caps the number of returned items. 0 means no cap.
	Limit int
	// Offset skips the first N matching items.
	Offset int
}

// ItemRepository provides operations for managing items.
// All read and write operations are scoped to the owning user: an item id
// paired with the wrong user id behaves exactly like a missing item.
type ItemRepository interface {
	Repository

	// AddItem adds an item to storage. Generates a new ID from sequence and
	// sets the InsertedAt/UpdatedAt timestamps. Items are unique per
	// (user, URL); a duplicate submission returns ErrDuplicateKey.
	AddItem(ctx context.Context, item *core.Item) (*core.Item, error)

	// UpdateItem applies apply to the stored item inside one transaction and
	// persists the result, so the written fields become visible atomically.
	// The stored item is re-read inside the transaction; concurrent updates
	// are last-writer-wins per mutation, not per whole record.
	// Status transitions produced by apply are validated against the
	// core transition tables.
	// Returns ErrNotFound if the item doesn't exist or belongs to another user.
	UpdateItem(ctx context.Context, id, userID core.ID, apply func(*core.Item) error) (*core.Item, error)

	// ItemExists reports whether the item exists and belongs to the user.
	ItemExists(ctx context.Context, id, userID core.ID) (bool, error)

	// GetItem retrieves a single item by ID.
	// Returns ErrNotFound if the item doesn't exist or belongs to another user.
	GetItem(ctx context.Context, id, userID core.ID) (*core.Item, error)

	// ListItems retrieves the user's items, newest first.
	ListItems(ctx context.Context, userID core.ID, filter ItemFilter) ([]*core.Item, error)

	// DeleteItem removes an item and all of its chunks.
	// Returns ErrNotFound if the item doesn't exist or belongs to another user.
	DeleteItem(ctx context.Context, id, userID core.ID) error

	// FindSimilarItems finds the user's items whose whole-item embedding is
	// similar to the given vector. Returns results with similarity >=
	// minSimilarity, up to limit, ordered by score (highest first).
	FindSimilarItems(ctx context.Context, userID core.ID, vector []float32, minSimilarity float32, limit int) ([]*core.SearchResult, error)
}

// ChunkRepository provides operations for managing item chunks.
type ChunkRepository interface {
	Repository

	// UpsertChunks writes chunks keyed by (ItemId, Position), overwriting
	// any existing chunk at the same position. Timestamps are populated.
	UpsertChunks(ctx context.Context, chunks ...*core.Chunk) error

	// PruneChunks deletes chunks of the item at positions >= keep.
	// Used after a re-index run that produced fewer chunks than before, so
	// stale trailing positions don't survive.
	PruneChunks(ctx context.Context, itemID core.ID, keep int) error

	// GetChunks retrieves all chunks of an item ordered by position.
	GetChunks(ctx context.Context, itemID core.ID) ([]*core.Chunk, error)

	// DeleteChunks removes all chunks of an item.
	DeleteChunks(ctx context.Context, itemID core.ID) error

	// FindSimilarChunks finds chunks of the user's items whose embedding is
	// similar to the given vector. Returns results with similarity >=
	// minSimilarity, up to limit, ordered by score (highest first).
	FindSimilarChunks(ctx context.Context, userID core.ID, vector []float32, minSimilarity float32, limit int) ([]*core.SearchResult, error)
}

// UserRepository provides operations for managing users.
type UserRepository interface {
	Repository

	// AddUser creates a user with the given plain-text password.
	// The password is hashed before storage; usernames are unique and a
	// duplicate returns ErrDuplicateKey.
	AddUser(ctx context.Context, username, password string) (*core.User, error)

	// GetUserByUsername retrieves a user by username.
	// Returns ErrNotFound if no such user exists.
	GetUserByUsername(ctx context.Context, username string) (*core.User, error)

	// Authenticate verifies a username/password pair.
	// Returns ErrNotFound for unknown users and ErrInvalidCredentials for a
	// wrong password, so callers can't distinguish timing-wise but can log.
	Authenticate(ctx context.Context, username, password string) (*core.User, error)
}

// UsageLogRepository provides append-oriented storage for usage accounting.
type UsageLogRepository interface {
	Repository

	// AddUsageLog appends a usage entry, assigning it a sequence ID.
	AddUsageLog(ctx context.Context, log *core.UsageLog) (*core.UsageLog, error)

	// ListUsageLogs retrieves up to limit of the user's entries, newest first.
	ListUsageLogs(ctx context.Context, userID core.ID, limit int) ([]*core.UsageLog, error)
}
