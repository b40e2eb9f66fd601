package ai

import "time"

// Document is the extracted article content a Summarizer works from.
type Document struct {
	Title string

	// SourceSite is the publishing site's name, if known.
	SourceSite string

	// PublishedAt is zero when the page declared no publication date.
	PublishedAt time.Time

	// URL should be the canonical URL when one exists.
	URL string

	// Markdown is the article body in markdown form.
	Markdown string
}

// Summary is the metadata a Summarizer produces for a document.
type Summary struct {
	// Text is a 1-2 sentence summary of the document.
	Text string

	// ExpiryScore is between 0 and 1, where 1 means the content decays
	// fastest (news, launches) and 0 means it stays relevant (reference
	// material).
	ExpiryScore float64
}
