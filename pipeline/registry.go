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

package pipeline

import (
	"context"
	"sync"

	"github.com/lateralhq/lateral/core"
)

// handle tracks one in-flight enrichment run.
type handle struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Registry tracks running enrichment tasks per item so deletions can
// cancel them and wait for them to stop. The zero value is not usable;
// call NewRegistry.
type Registry struct {
	mu      sync.Mutex
	running map[core.ID]*handle
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		running: make(map[core.ID]*handle),
	}
}

// track registers a run for the item and returns a finish function the
// run must call exactly once when it stops, whatever the reason. A
// previous run still registered under the same item is replaced but not
// cancelled; callers serialize per-item runs themselves.
func (r *Registry) track(id core.ID, cancel context.CancelFunc) (finish func()) {
	h := &handle{
		cancel: cancel,
		done:   make(chan struct{}),
	}

	r.mu.Lock()
	r.running[id] = h
	r.mu.Unlock()

	return func() {
		r.mu.Lock()
		if r.running[id] == h {
			delete(r.running, id)
		}
		r.mu.Unlock()
		close(h.done)
	}
}

// Running reports whether the item has an in-flight run.
func (r *Registry) Running(id core.ID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.running[id]
	return ok
}

// Len returns the number of in-flight runs.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.running)
}

// CancelAndWait cancels the item's run, if any, and blocks until it has
// fully stopped. Returns immediately when no run is registered. After
// it returns, no pipeline write for this item can still be in flight.
func (r *Registry) CancelAndWait(id core.ID) {
	r.mu.Lock()
	h := r.running[id]
	r.mu.Unlock()

	if h == nil {
		return
	}
	h.cancel()
	<-h.done
}

// CancelAndWaitAll cancels every registered run and waits for all of
// them to stop. Used on shutdown.
func (r *Registry) CancelAndWaitAll() {
	r.mu.Lock()
	handles := make([]*handle, 0, len(r.running))
	for _, h := range r.running {
		handles = append(handles, h)
	}
	r.mu.Unlock()

	for _, h := range handles {
		h.cancel()
	}
	for _, h := range handles {
		<-h.done
	}
}
