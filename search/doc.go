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

// Package search finds a user's saved items by query.
//
// Two modes are supported:
//   - Lexical: every query word (after stop-word filtering) must appear
//     in the candidate text.
//   - Semantic: the query is embedded and matched against stored
//     vectors by similarity, with a lexical fallback filling remaining
//     result slots.
//
// Both modes run over one of two scopes: whole items, or chunks ranked
// back up to their items with the best chunk kept as a preview.
package search
