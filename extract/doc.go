// Package extract fetches web pages and turns them into the normalized
// content an item is enriched from: a markdown rendering, a plain-text
// rendering, and page metadata (title, canonical URL, site name,
// publication date, favicon).
package extract
