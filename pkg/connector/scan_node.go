package connector

import (
	"github.com/petreldb/petrel/pkg/expr"
	"github.com/petreldb/petrel/pkg/metrics"
	"github.com/petreldb/petrel/pkg/plan"
)

// ScanNode is the execution-side handle for one logical table scan. It owns
// the predicate list and runtime-filter collector produced by expression and
// join planning, and hands non-owning references to every DataSource the
// provider creates. The ScanNode outlives all of them.
type ScanNode struct {
	node           *plan.PlanNode
	conjuncts      []expr.Predicate
	runtimeFilters *expr.RuntimeFilterCollector
	profile        *metrics.Collector
}

// NewScanNode creates the execution handle for a compiled scan node.
func NewScanNode(node *plan.PlanNode) *ScanNode {
	return &ScanNode{
		node:           node,
		runtimeFilters: expr.NewRuntimeFilterCollector(),
		profile:        metrics.NewCollector(node.ConnectorName),
	}
}

// PlanNode returns the compiled scan description.
func (s *ScanNode) PlanNode() *plan.PlanNode { return s.node }

// SetConjuncts installs the scan predicates.
func (s *ScanNode) SetConjuncts(conjuncts []expr.Predicate) { s.conjuncts = conjuncts }

// Conjuncts returns the scan predicates.
func (s *ScanNode) Conjuncts() []expr.Predicate { return s.conjuncts }

// RuntimeFilters returns the collector join planning feeds filters into.
func (s *ScanNode) RuntimeFilters() *expr.RuntimeFilterCollector { return s.runtimeFilters }

// Profile returns the metrics collector for this scan.
func (s *ScanNode) Profile() *metrics.Collector { return s.profile }

// Bind injects the framework-set inputs into a freshly created DataSource,
// before Open. The source borrows everything; the ScanNode keeps ownership.
func (s *ScanNode) Bind(ds DataSource) {
	ds.SetPredicates(s.conjuncts)
	ds.SetRuntimeFilters(s.runtimeFilters)
	if s.node.Limit >= 0 {
		ds.SetReadLimit(s.node.Limit)
	}
	ds.SetProfile(s.profile)
	ds.UpdateHasAnyPredicate()
}
