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

package extract

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/html"
)

const (
	defaultTimeout      = 30 * time.Second
	defaultMaxBodyBytes = 8 << 20 // 8 MiB
	defaultUserAgent    = "lateral/1.0"

	// Pages with less meaningful text than this are treated as failed
	// extractions rather than stored as near-empty items.
	minContentChars = 10
)

// Content is the normalized result of extracting a page.
type Content struct {
	// URL is the prepared URL the page was fetched from.
	URL string
	// CanonicalURL is the page's self-declared canonical URL, if any.
	CanonicalURL string
	Title        string
	// SourceSite is the site name, falling back to the host.
	SourceSite string
	// PublishedAt is zero when the page declares no publication date.
	PublishedAt time.Time
	FaviconURL  string
	// Markdown is a markdown rendering of the main content, links kept.
	Markdown string
	// Text is a plain-text rendering of the main content, links dropped.
	Text string
}

// Extractor turns a raw URL into extracted page content.
type Extractor interface {
	Extract(ctx context.Context, rawURL string) (*Content, error)
}

// WebExtractor fetches pages over HTTP and extracts content from their
// HTML.
type WebExtractor struct {
	client       *http.Client
	userAgent    string
	maxBodyBytes int64
}

var _ Extractor = (*WebExtractor)(nil)

// Option is a functional option for configuring a WebExtractor.
type Option func(*WebExtractor)

// WithHTTPClient sets the HTTP client used for fetching.
func WithHTTPClient(client *http.Client) Option {
	return func(e *WebExtractor) {
		e.client = client
	}
}

// WithUserAgent sets the User-Agent header sent with fetches.
func WithUserAgent(agent string) Option {
	return func(e *WebExtractor) {
		e.userAgent = agent
	}
}

// WithMaxBodyBytes caps how much of a response body is read.
func WithMaxBodyBytes(n int64) Option {
	return func(e *WebExtractor) {
		e.maxBodyBytes = n
	}
}

// NewWebExtractor creates a WebExtractor with the given options.
func NewWebExtractor(opts ...Option) *WebExtractor {
	e := &WebExtractor{
		client:       &http.Client{Timeout: defaultTimeout},
		userAgent:    defaultUserAgent,
		maxBodyBytes: defaultMaxBodyBytes,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Extract prepares the URL, downloads the page and extracts content and
// metadata from it.
func (e *WebExtractor) Extract(ctx context.Context, rawURL string) (*Content, error) {
	pageURL, err := PrepareURL(rawURL)
	if err != nil {
		return nil, err
	}

	doc, err := e.fetch(ctx, pageURL)
	if err != nil {
		return nil, err
	}

	meta := collectMetadata(doc)
	markdown := renderMarkdown(doc)
	text := renderText(doc)

	if strings.TrimSpace(markdown) == "" || strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: page at %s yielded no text", ErrNoContent, pageURL)
	}
	if len(strings.TrimSpace(text)) < minContentChars {
		return nil, fmt.Errorf("%w: page at %s yielded too little text", ErrNoContent, pageURL)
	}

	content := &Content{
		URL:          pageURL,
		CanonicalURL: normalizeURL(meta.canonicalURL, pageURL),
		Title:        meta.title,
		SourceSite:   meta.siteName,
		PublishedAt:  meta.publishedAt,
		Markdown:     markdown,
		Text:         text,
	}

	ref := content.CanonicalURL
	if ref == "" {
		ref = pageURL
	}
	content.FaviconURL = buildFaviconURL(ref)
	if content.SourceSite == "" {
		if parsed, err := url.Parse(ref); err == nil {
			content.SourceSite = parsed.Host
		}
	}

	return content, nil
}

func (e *WebExtractor) fetch(ctx context.Context, pageURL string) (*html.Node, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFetchFailed, err)
	}
	req.Header.Set("User-Agent", e.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFetchFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: %s returned status %d", ErrFetchFailed, pageURL, resp.StatusCode)
	}

	doc, err := html.Parse(io.LimitReader(resp.Body, e.maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFetchFailed, err)
	}
	return doc, nil
}
