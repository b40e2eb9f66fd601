// Package pipeline orchestrates the background enrichment of items.
//
// Each added item runs through three stages: extraction (fetch the page
// and store its content), summarization (generate a short summary and
// expiry score), and indexing (chunk the text, embed the chunks and the
// whole item, and persist the vectors). The item's server status
// advances through saved, extracted, summarised and embedded; clients
// watch the client status, which starts at adding and lands on queued
// or error.
//
// Runs are tracked in a Registry so a deletion can cancel the item's
// in-flight run and wait for it to stop before removing storage rows.
// Between stages the pipeline re-checks that the item still exists and
// stops silently if it was deleted mid-run. A stage failure marks the
// item's client status as error; the marking itself is best-effort.
package pipeline
