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

// Package reindex re-embeds a user's saved items and their chunks with the
// currently configured embedding model. It is meant to be run offline after
// switching embedding models, since vectors from different models are not
// comparable and semantic search degrades silently until everything has been
// regenerated.
//
// Only items that have completed enrichment are touched; items still moving
// through the pipeline get their vectors from the pipeline itself.
package reindex
