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

import "strings"

const (
	// DefaultWordsPerChunk is the word budget of one chunk.
	DefaultWordsPerChunk = 400
	// DefaultOverlapWords is how many words consecutive chunks share.
	DefaultOverlapWords = 80
)

// splitSentences splits text on sentence boundaries: a terminator
// (.!?), whitespace, then an uppercase letter, digit, opening bracket
// or quote. Text with no such boundary comes back as one sentence.
func splitSentences(s string) []string {
	runes := []rune(s)
	var sentences []string
	start := 0

	for i := 0; i < len(runes); i++ {
		r := runes[i]
		if r != '.' && r != '!' && r != '?' {
			continue
		}
		// Consume whitespace after the terminator
		j := i + 1
		for j < len(runes) && (runes[j] == ' ' || runes[j] == '\t' || runes[j] == '\n' || runes[j] == '\r') {
			j++
		}
		if j == i+1 || j >= len(runes) {
			continue
		}
		if !startsSentence(runes[j]) {
			continue
		}
		sentence := strings.TrimSpace(string(runes[start : i+1]))
		if sentence != "" {
			sentences = append(sentences, sentence)
		}
		start = j
		i = j - 1
	}

	if tail := strings.TrimSpace(string(runes[start:])); tail != "" {
		sentences = append(sentences, tail)
	}
	return sentences
}

func startsSentence(r rune) bool {
	return (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') ||
		r == '(' || r == '"' || r == '\''
}

// chunkText splits text into chunks of roughly wordsPerChunk words,
// keeping sentence boundaries where possible and overlapping
// consecutive chunks by about overlapWords words. Sentences longer than
// the whole budget are hard-split by words.
func chunkText(s string, wordsPerChunk, overlapWords int) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}

	sentences := splitSentences(s)
	if len(sentences) == 0 {
		sentences = []string{s}
	}

	wordCounts := make([]int, len(sentences))
	for i, sentence := range sentences {
		wordCounts[i] = len(strings.Fields(sentence))
	}
	// cumulative[i] is the word count of sentences[0:i]
	cumulative := make([]int, len(sentences)+1)
	for i, wc := range wordCounts {
		cumulative[i+1] = cumulative[i] + wc
	}

	var chunks []string
	i := 0
	for i < len(sentences) {
		// Find j such that sentences[i:j] fits the budget
		j := i
		for j < len(sentences) && cumulative[j+1]-cumulative[i] <= wordsPerChunk {
			j++
		}

		if j == i {
			// Single sentence over budget: hard split by words
			words := strings.Fields(sentences[i])
			chunks = append(chunks, strings.Join(words[:wordsPerChunk], " "))
			back := wordsPerChunk - overlapWords
			if back < 0 {
				back = 0
			}
			remainder := strings.Join(words[back:], " ")
			sentences[i] = remainder
			wordCounts[i] = len(words) - back
			for k := i; k < len(sentences); k++ {
				cumulative[k+1] = cumulative[k] + wordCounts[k]
			}
			continue
		}

		chunks = append(chunks, strings.TrimSpace(strings.Join(sentences[i:j], " ")))

		// Step back enough sentences to keep ~overlapWords of overlap
		k := j
		backWords := 0
		for k > i && backWords < overlapWords {
			k--
			backWords += wordCounts[k]
		}
		// Ensure progress
		if k <= i {
			k = i + 1
		}
		i = k
	}

	return chunks
}

// overlapTokenCount counts the tokens of the word overlap shared between
// the end of prev and the start of chunk.
func overlapTokenCount(prev, chunk string, counter TokenCounter) int {
	prevWords := strings.Fields(prev)
	chunkWords := strings.Fields(chunk)
	maxOverlap := len(prevWords)
	if len(chunkWords) < maxOverlap {
		maxOverlap = len(chunkWords)
	}

	overlapWords := 0
	for size := maxOverlap; size > 0; size-- {
		if wordsEqual(prevWords[len(prevWords)-size:], chunkWords[:size]) {
			overlapWords = size
			break
		}
	}
	if overlapWords == 0 {
		return 0
	}
	return counter(strings.Join(chunkWords[:overlapWords], " "))
}

func wordsEqual(a, b []string) bool {
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// effectiveTokenCounts discounts every chunk's token count by its
// overlap with the previous chunk, so pooling weights reflect each
// chunk's unique contribution.
func effectiveTokenCounts(chunks []string, tokenCounts []int, counter TokenCounter) []int {
	effective := make([]int, 0, len(chunks))
	for i, count := range tokenCounts {
		if i == 0 {
			if count < 0 {
				count = 0
			}
			effective = append(effective, count)
			continue
		}
		overlap := overlapTokenCount(chunks[i-1], chunks[i], counter)
		unique := count - overlap
		if unique < 0 {
			unique = 0
		}
		effective = append(effective, unique)
	}
	return effective
}
