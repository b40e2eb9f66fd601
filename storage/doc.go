// Copyright 2025 Lateral HQ
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package storage provides the storage abstraction layer for lateral.
//
// This package defines repository interfaces that decouple storage
// implementation from the pipeline and search logic. It allows different
// storage backends (BadgerDB, in-memory, etc.) to be used interchangeably.
//
// # Ownership scoping
//
// Items belong to users. Every item read, update, and delete takes the
// owning user id alongside the item id, and an id paired with the wrong
// owner behaves exactly like a missing record (ErrNotFound). The enrichment
// pipeline relies on this for its liveness checks: "not found" after a user
// deletion must look identical to "never existed".
//
// # Architecture
//
// The storage layer follows the Repository pattern:
//
//   - ItemRepository: items and per-user vector search over them
//   - ChunkRepository: chunk upsert/prune keyed by (item, position)
//   - UserRepository: users with hashed credentials
//   - UsageLogRepository: append-only usage accounting
//
// # Thread Safety
//
// All repository implementations must be thread-safe and support
// concurrent access from multiple goroutines.
//
// # Context Support
//
// All repository methods accept context.Context for cancellation
// and timeout support. Pass context.Background() for operations
// without specific timeout requirements.
package storage
