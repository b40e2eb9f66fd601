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

package badger

// Repositories bundles the per-record-type repositories that share one
// backend.
type Repositories struct {
	Items   *ItemRepository
	Chunks  *ChunkRepository
	Users   *UserRepository
	Usage   *UsageLogRepository
	Backend *Backend
}

// Close closes the repositories first, then the backend.
func (r *Repositories) Close() error {
	r.Items.Close()
	r.Chunks.Close()
	r.Users.Close()
	r.Usage.Close()
	return r.Backend.Close()
}

// OpenRepositories opens a backend at path and builds all repositories
// on top of it. An empty path opens an in-memory backend, which is what
// tests use.
func OpenRepositories(path string, inMemory bool) (*Repositories, error) {
	backend, err := OpenBackend(path, inMemory)
	if err != nil {
		return nil, err
	}

	items, err := NewItemRepository(backend)
	if err != nil {
		backend.Close()
		return nil, err
	}

	chunks, err := NewChunkRepository(backend)
	if err != nil {
		items.Close()
		backend.Close()
		return nil, err
	}

	users, err := NewUserRepository(backend)
	if err != nil {
		chunks.Close()
		items.Close()
		backend.Close()
		return nil, err
	}

	usage, err := NewUsageLogRepository(backend)
	if err != nil {
		users.Close()
		chunks.Close()
		items.Close()
		backend.Close()
		return nil, err
	}

	return &Repositories{
		Items:   items,
		Chunks:  chunks,
		Users:   users,
		Usage:   usage,
		Backend: backend,
	}, nil
}

// NewMemoryRepositories creates in-memory repositories for testing.
// Caller must Close the bundle when done.
func NewMemoryRepositories() (*Repositories, error) {
	return OpenRepositories("", true)
}
