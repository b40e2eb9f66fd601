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

package core

import "fmt"

// ClientStatus is the user-facing lifecycle flag for an item.
// It is the sole signal clients poll while enrichment runs in the background.
type ClientStatus int

const (
	// ClientStatusAdding means the enrichment pipeline is still working.
	ClientStatusAdding ClientStatus = iota + 1
	// ClientStatusQueued means enrichment succeeded and the item is fully indexed.
	ClientStatusQueued
	// ClientStatusError means a pipeline stage failed irrecoverably.
	// No automatic retry is scheduled; the user has to re-submit the URL.
	ClientStatusError
)

// String returns the wire/display name of the status.
func (s ClientStatus) String() string {
	switch s {
	case ClientStatusAdding:
		return "adding"
	case ClientStatusQueued:
		return "queued"
	case ClientStatusError:
		return "error"
	default:
		return fmt.Sprintf("ClientStatus(%d)", int(s))
	}
}

// ParseClientStatus converts a display name back to a ClientStatus.
func ParseClientStatus(s string) (ClientStatus, error) {
	switch s {
	case "adding":
		return ClientStatusAdding, nil
	case "queued":
		return ClientStatusQueued, nil
	case "error":
		return ClientStatusError, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrInvalidClientStatus, s)
	}
}

// ValidateClientTransition checks a client status transition against the
// allowed set {adding->queued, adding->error, *->error}. Staying in the
// same status is always allowed so that unrelated field updates don't have
// to special-case it. Error is terminal: once an item is in error it can
// only stay there.
func ValidateClientTransition(from, to ClientStatus) error {
	if err := ValidateClientStatus(to); err != nil {
		return err
	}
	if from == to || to == ClientStatusError {
		return nil
	}
	if from == ClientStatusAdding && to == ClientStatusQueued {
		return nil
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
}

// ValidateClientStatus checks that a ClientStatus has a valid value.
func ValidateClientStatus(s ClientStatus) error {
	if s < ClientStatusAdding || s > ClientStatusError {
		return fmt.Errorf("%w: value %d", ErrInvalidClientStatus, s)
	}
	return nil
}

// ServerStatus is the internal pipeline-stage marker for an item.
// It only ever advances; each pipeline stage bumps it exactly one step.
type ServerStatus int

const (
	// ServerStatusSaved means the item row exists but nothing has run yet.
	ServerStatusSaved ServerStatus = iota + 1
	// ServerStatusExtracted means raw content has been fetched and cleaned.
	ServerStatusExtracted
	// ServerStatusSummarised means the summary and expiry score are persisted.
	ServerStatusSummarised
	// ServerStatusEmbedded means the whole-item embedding is persisted.
	ServerStatusEmbedded
)

// String returns the wire/display name of the status.
func (s ServerStatus) String() string {
	switch s {
	case ServerStatusSaved:
		return "saved"
	case ServerStatusExtracted:
		return "extracted"
	case ServerStatusSummarised:
		return "summarised"
	case ServerStatusEmbedded:
		return "embedded"
	default:
		return fmt.Sprintf("ServerStatus(%d)", int(s))
	}
}

// ParseServerStatus converts a display name back to a ServerStatus.
func ParseServerStatus(s string) (ServerStatus, error) {
	switch s {
	case "saved":
		return ServerStatusSaved, nil
	case "extracted":
		return ServerStatusExtracted, nil
	case "summarised":
		return ServerStatusSummarised, nil
	case "embedded":
		return ServerStatusEmbedded, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrInvalidServerStatus, s)
	}
}

// ValidateServerTransition checks that a server status transition moves
// forward (or stays put). The pipeline advances one step per stage, but a
// jump forward is tolerated so repairs and backfills stay expressible.
func ValidateServerTransition(from, to ServerStatus) error {
	if err := ValidateServerStatus(to); err != nil {
		return err
	}
	if to < from {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	return nil
}

// ValidateServerStatus checks that a ServerStatus has a valid value.
func ValidateServerStatus(s ServerStatus) error {
	if s < ServerStatusSaved || s > ServerStatusEmbedded {
		return fmt.Errorf("%w: value %d", ErrInvalidServerStatus, s)
	}
	return nil
}
