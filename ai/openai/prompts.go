package openai

import (
	"fmt"
	"strings"
	"time"

	"github.com/lateralhq/lateral/ai"
)

const summaryResponseSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "properties": {
    "summary": {
      "type": "string"
    },
    "expiry_score": {
      "type": "number",
      "minimum": 0,
      "maximum": 1
    }
  },
  "required": ["summary", "expiry_score"],
  "additionalProperties": false
}`

const summaryPromptTemplate = `Your role is to extract key metadata from a scraped article. Provide a 1-2 sentence
summary and an expiry score between 0 and 1 where 1 decays fastest.

Output ONLY valid JSON which complies with the schema given below. Do not include any preamble, explanation,
greeting, or acknowledgment. Start your response directly with the opening brace { and end with the closing
brace }. Your output must exactly follow this schema:

%s

Rules:
- The summary is 1-2 sentences describing what the article covers, written in plain neutral prose.
- The expiry score estimates how quickly the content becomes stale: breaking news and product launches score
  near 1, evergreen reference material and tutorials score near 0.
- The JSON must parse without errors; no trailing commas, no extra keys, and no extraneous text outside the object.

Example:
Input:
Title: Go 1.22 Released
Source: The Go Blog
URL: https://go.dev/blog/go1.22

Article Content:
Go 1.22 ships loop variable scoping changes and a faster runtime...
Output:
{
  "summary": "Announcement of the Go 1.22 release, covering the loop variable scoping change and runtime performance improvements.",
  "expiry_score": 0.7
}`

// buildSummaryPrompt creates the system prompt with the response schema
// embedded.
func buildSummaryPrompt() string {
	return fmt.Sprintf(summaryPromptTemplate, summaryResponseSchema)
}

// buildDocumentContext flattens the document into the user message the
// model summarizes from.
func buildDocumentContext(doc *ai.Document) string {
	var parts []string
	if doc.Title != "" {
		parts = append(parts, "Title: "+doc.Title)
	}
	if doc.SourceSite != "" {
		parts = append(parts, "Source: "+doc.SourceSite)
	}
	if !doc.PublishedAt.IsZero() {
		parts = append(parts, "Published: "+doc.PublishedAt.Format(time.DateOnly))
	}
	parts = append(parts, "URL: "+doc.URL)
	if doc.Markdown != "" {
		parts = append(parts, "\nArticle Content:\n"+doc.Markdown)
	}
	return strings.Join(parts, "\n")
}
