package search

import "github.com/quarryai/quarry/core"

// Monitor provides hooks to observe the search process.
// Implement this interface to track intermediate steps during a query.
type Monitor interface {
	Start(query string)
	AfterQueryEmbedding(dimension int)
	AfterBackendQuery(candidates int)
	Degraded(reason string)
	Finish(hits []core.SearchHit)
}

// noopMonitor is a no-op implementation of Monitor
type noopMonitor struct{}

var _ Monitor = (*noopMonitor)(nil)

func (n *noopMonitor) Start(_ string)             {}
func (n *noopMonitor) AfterQueryEmbedding(_ int)  {}
func (n *noopMonitor) AfterBackendQuery(_ int)    {}
func (n *noopMonitor) Degraded(_ string)          {}
func (n *noopMonitor) Finish(_ []core.SearchHit)  {}
