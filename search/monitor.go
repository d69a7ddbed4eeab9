package search

import (
	"github.com/poiesic/retriever/core"
)

// SearchMonitor observes the stages of a single hybrid search. Hooks are
// called sequentially from the searching goroutine.
type SearchMonitor interface {
	Start(query string, filter core.ScopeFilter)
	AfterIndexAcquired(version uint64, documents int, rebuilt bool)
	AfterDenseSearch(results []core.ScoredResult)
	AfterLexicalSearch(results []core.ScoredResult)
	AfterFusion(results []core.FusedResult)
	Failed(err error)
	Finish(results []core.FusedResult)
}

type noopMonitor struct{}

var _ SearchMonitor = (*noopMonitor)(nil)

func (n *noopMonitor) Start(_ string, _ core.ScopeFilter)       {}
func (n *noopMonitor) AfterIndexAcquired(_ uint64, _ int, _ bool) {}
func (n *noopMonitor) AfterDenseSearch(_ []core.ScoredResult)    {}
func (n *noopMonitor) AfterLexicalSearch(_ []core.ScoredResult)  {}
func (n *noopMonitor) AfterFusion(_ []core.FusedResult)          {}
func (n *noopMonitor) Failed(_ error)                            {}
func (n *noopMonitor) Finish(_ []core.FusedResult)               {}
