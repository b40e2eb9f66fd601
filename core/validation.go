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

// ValidateItem validates an Item according to domain rules.
//
// Validation rules:
//   - URL must not be empty
//   - UserId must be set (items always have an owner)
//   - ClientStatus and ServerStatus must be valid values
//   - ExpiryScore must be within [0,1]
//
// NOT validated (populated by the pipeline):
//   - Content, summary, and embedding fields (empty until the stage runs)
//   - ID (0 is valid before the database sequence assigns one)
func ValidateItem(item *Item) error {
	if item == nil {
		return fmt.Errorf("%w: item is nil", ErrInvalidItem)
	}

	if item.URL == "" {
		return fmt.Errorf("%w: %w", ErrInvalidItem, ErrEmptyURL)
	}

	if item.UserId == 0 {
		return fmt.Errorf("%w: %w", ErrInvalidItem, ErrMissingOwner)
	}

	if err := ValidateClientStatus(item.ClientStatus); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidItem, err)
	}

	if err := ValidateServerStatus(item.ServerStatus); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidItem, err)
	}

	if item.ExpiryScore < 0 || item.ExpiryScore > 1 {
		return fmt.Errorf("%w: %w", ErrInvalidItem, ErrExpiryScoreRange)
	}

	return nil
}

// ValidateChunk validates a Chunk according to domain rules.
//
// Validation rules:
//   - ItemId must be set
//   - Position must be zero or positive
//   - Text must not be empty
func ValidateChunk(chunk *Chunk) error {
	if chunk == nil {
		return fmt.Errorf("%w: chunk is nil", ErrInvalidChunk)
	}

	if chunk.ItemId == 0 {
		return fmt.Errorf("%w: %w", ErrInvalidChunk, ErrMissingOwner)
	}

	if chunk.Position < 0 {
		return fmt.Errorf("%w: %w", ErrInvalidChunk, ErrNegativePosition)
	}

	if chunk.Text == "" {
		return fmt.Errorf("%w: %w", ErrInvalidChunk, ErrEmptyChunkText)
	}

	return nil
}

// ValidateUser validates a User according to domain rules.
func ValidateUser(user *User) error {
	if user == nil {
		return fmt.Errorf("%w: user is nil", ErrInvalidUser)
	}

	if user.Username == "" {
		return fmt.Errorf("%w: %w", ErrInvalidUser, ErrEmptyUsername)
	}

	return nil
}
