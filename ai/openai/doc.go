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

// Package openai implements the ai interfaces using OpenAI-compatible
// APIs via langchaingo.
//
// It works with any OpenAI-compatible endpoint: OpenAI itself, Ollama,
// LocalAI, vLLM and similar local servers. Summarization requests use
// JSON mode with temperature 0, and responses are defensively repaired
// before parsing because small local models routinely emit slightly
// malformed JSON.
package openai
