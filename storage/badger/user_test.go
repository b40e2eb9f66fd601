package badger

import (
	"context"
	"errors"
	"testing"

	"github.com/lateralhq/lateral/core"
	"github.com/lateralhq/lateral/storage"
)

func TestUserLifecycle(t *testing.T) {
	repos, err := NewMemoryRepositories()
	if err != nil {
		t.Fatalf("Failed to create repositories: %v", err)
	}
	defer repos.Close()

	ctx := context.Background()

	user, err := repos.Users.AddUser(ctx, "ada", "correct horse battery staple")
	if err != nil {
		t.Fatalf("Failed to add user: %v", err)
	}
	if user.Id == 0 {
		t.Fatal("Expected non-zero ID")
	}
	if len(user.PasswordHash) == 0 || len(user.PasswordSalt) == 0 {
		t.Fatal("Expected password hash and salt to be set")
	}
	if string(user.PasswordHash) == "correct horse battery staple" {
		t.Fatal("Expected the password to be hashed")
	}

	// Duplicate username rejected
	if _, err := repos.Users.AddUser(ctx, "ada", "other"); !errors.Is(err, storage.ErrDuplicateKey) {
		t.Fatalf("Expected ErrDuplicateKey, got %v", err)
	}

	retrieved, err := repos.Users.GetUserByUsername(ctx, "ada")
	if err != nil {
		t.Fatalf("Failed to get user: %v", err)
	}
	if retrieved.Id != user.Id {
		t.Fatalf("Expected ID %d, got %d", user.Id, retrieved.Id)
	}

	if _, err := repos.Users.GetUserByUsername(ctx, "nobody"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("Expected ErrNotFound, got %v", err)
	}
}

func TestAuthenticate(t *testing.T) {
	repos, err := NewMemoryRepositories()
	if err != nil {
		t.Fatalf("Failed to create repositories: %v", err)
	}
	defer repos.Close()

	ctx := context.Background()

	if _, err := repos.Users.AddUser(ctx, "ada", "s3cret"); err != nil {
		t.Fatalf("Failed to add user: %v", err)
	}

	user, err := repos.Users.Authenticate(ctx, "ada", "s3cret")
	if err != nil {
		t.Fatalf("Expected authentication to succeed, got %v", err)
	}
	if user.Username != "ada" {
		t.Fatalf("Expected user ada, got %q", user.Username)
	}

	if _, err := repos.Users.Authenticate(ctx, "ada", "wrong"); !errors.Is(err, storage.ErrInvalidCredentials) {
		t.Fatalf("Expected ErrInvalidCredentials, got %v", err)
	}
	if _, err := repos.Users.Authenticate(ctx, "nobody", "s3cret"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("Expected ErrNotFound, got %v", err)
	}
}

func TestSaltsDiffer(t *testing.T) {
	repos, err := NewMemoryRepositories()
	if err != nil {
		t.Fatalf("Failed to create repositories: %v", err)
	}
	defer repos.Close()

	ctx := context.Background()

	a, err := repos.Users.AddUser(ctx, "a", "same password")
	if err != nil {
		t.Fatalf("Failed to add user: %v", err)
	}
	b, err := repos.Users.AddUser(ctx, "b", "same password")
	if err != nil {
		t.Fatalf("Failed to add user: %v", err)
	}

	if string(a.PasswordHash) == string(b.PasswordHash) {
		t.Fatal("Expected per-user salts to produce different hashes")
	}
}

func TestUsageLogs(t *testing.T) {
	repos, err := NewMemoryRepositories()
	if err != nil {
		t.Fatalf("Failed to create repositories: %v", err)
	}
	defer repos.Close()

	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := repos.Usage.AddUsageLog(ctx, &core.UsageLog{
			UserId:    1,
			ItemId:    core.ID(100 + i),
			Operation: "summarize",
			Tokens:    500 + i,
		})
		if err != nil {
			t.Fatalf("Failed to add usage log: %v", err)
		}
	}
	if _, err := repos.Usage.AddUsageLog(ctx, &core.UsageLog{UserId: 2, Operation: "embed", Tokens: 10}); err != nil {
		t.Fatalf("Failed to add usage log: %v", err)
	}

	logs, err := repos.Usage.ListUsageLogs(ctx, 1, 0)
	if err != nil {
		t.Fatalf("Failed to list usage logs: %v", err)
	}
	if len(logs) != 3 {
		t.Fatalf("Expected 3 logs, got %d", len(logs))
	}
	// Newest first
	if logs[0].ItemId != core.ID(102) {
		t.Fatalf("Expected newest log first, got item %d", logs[0].ItemId)
	}
	if logs[0].At.IsZero() {
		t.Fatal("Expected timestamp to be populated")
	}

	limited, err := repos.Usage.ListUsageLogs(ctx, 1, 2)
	if err != nil {
		t.Fatalf("Failed to list usage logs: %v", err)
	}
	if len(limited) != 2 {
		t.Fatalf("Expected 2 logs, got %d", len(limited))
	}
}
