package search

import "github.com/lateralhq/lateral/core"

// SearchMonitor provides hooks to observe the search process.
// Implement this interface to track intermediate steps and results during search.
type SearchMonitor interface {
	Start(query string, mode Mode, scope Scope)
	AfterSemanticSearch(itemIds []core.ID)
	AfterLexicalScan(itemIds []core.ID)
	ChunkRankedHit(itemID core.ID, position int)
	LexicalFallback(added int)
	Finish(results []*core.SearchResult)
}

// noopMonitor is a no-op implementation of SearchMonitor
type noopMonitor struct{}

var _ SearchMonitor = (*noopMonitor)(nil)

func (n *noopMonitor) Start(_ string, _ Mode, _ Scope) {}
func (n *noopMonitor) AfterSemanticSearch(_ []core.ID) {}
func (n *noopMonitor) AfterLexicalScan(_ []core.ID)    {}
func (n *noopMonitor) ChunkRankedHit(_ core.ID, _ int) {}
func (n *noopMonitor) LexicalFallback(_ int)           {}
func (n *noopMonitor) Finish(_ []*core.SearchResult)   {}
