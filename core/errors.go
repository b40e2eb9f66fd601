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

import "errors"

// Domain validation errors
var (
	// ErrInvalidItem indicates an Item failed validation.
	ErrInvalidItem = errors.New("invalid item")

	// ErrInvalidChunk indicates a Chunk failed validation.
	ErrInvalidChunk = errors.New("invalid chunk")

	// ErrInvalidUser indicates a User failed validation.
	ErrInvalidUser = errors.New("invalid user")

	// ErrEmptyURL indicates the URL field is empty.
	ErrEmptyURL = errors.New("url cannot be empty")

	// ErrMissingOwner indicates the UserId field is unset.
	ErrMissingOwner = errors.New("owning user id is required")

	// ErrEmptyChunkText indicates the chunk Text field is empty.
	ErrEmptyChunkText = errors.New("chunk text cannot be empty")

	// ErrNegativePosition indicates a chunk position below zero.
	ErrNegativePosition = errors.New("chunk position cannot be negative")

	// ErrEmptyUsername indicates the user Username field is empty.
	ErrEmptyUsername = errors.New("username cannot be empty")

	// ErrExpiryScoreRange indicates an expiry score outside [0,1].
	ErrExpiryScoreRange = errors.New("expiry score must be between 0 and 1")

	// ErrInvalidClientStatus indicates an invalid ClientStatus value.
	ErrInvalidClientStatus = errors.New("invalid client status")

	// ErrInvalidServerStatus indicates an invalid ServerStatus value.
	ErrInvalidServerStatus = errors.New("invalid server status")

	// ErrInvalidTransition indicates a status transition outside the allowed set.
	ErrInvalidTransition = errors.New("invalid status transition")
)
