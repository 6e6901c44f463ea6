// Package plan holds the planner-produced inputs the scan layer consumes:
// row-layout descriptors, backend-opaque scan ranges and the logical scan
// node description. Everything here is immutable once handed to a provider.
package plan

import (
	"fmt"

	json "github.com/goccy/go-json"
)

// SlotType is the data type of one output slot.
type SlotType string

const (
	SlotTypeInt64   SlotType = "int64"
	SlotTypeFloat64 SlotType = "float64"
	SlotTypeString  SlotType = "string"
	SlotTypeBool    SlotType = "bool"
)

// SlotDescriptor describes one column in the scan output layout.
type SlotDescriptor struct {
	ID       int      `json:"id"`
	Name     string   `json:"name"`
	Type     SlotType `json:"type"`
	Nullable bool     `json:"nullable"`
}

// TupleDescriptor describes the row layout a scan produces. It is stable for
// the lifetime of the provider that returns it.
type TupleDescriptor struct {
	ID    int              `json:"id"`
	Slots []SlotDescriptor `json:"slots"`
}

// NumFields returns the slot count, used by memory-budget heuristics.
func (t *TupleDescriptor) NumFields() int { return len(t.Slots) }

// Slot returns the descriptor of the named slot, or nil.
func (t *TupleDescriptor) Slot(name string) *SlotDescriptor {
	for i := range t.Slots {
		if t.Slots[i].Name == name {
			return &t.Slots[i]
		}
	}
	return nil
}

// ScanRange is a backend-specific descriptor of one contiguous piece of a
// table. The payload is opaque to the scheduler; only the owning backend
// decodes it. NumRows is -1 when the backend cannot report a row count.
type ScanRange struct {
	NumRows int64           `json:"num_rows"`
	Spec    json.RawMessage `json:"spec"`
}

// NewScanRange encodes a backend-specific spec into an opaque scan range.
func NewScanRange(spec interface{}, numRows int64) (*ScanRange, error) {
	raw, err := json.Marshal(spec)
	if err != nil {
		return nil, fmt.Errorf("encode scan range spec: %w", err)
	}
	return &ScanRange{NumRows: numRows, Spec: raw}, nil
}

// Decode unmarshals the opaque payload into a backend-specific spec struct.
func (r *ScanRange) Decode(out interface{}) error {
	if len(r.Spec) == 0 {
		return fmt.Errorf("scan range has empty spec")
	}
	return json.Unmarshal(r.Spec, out)
}

// PlanNode is the compiled description of one logical table scan, produced by
// query planning and consumed by a Connector to build a provider.
type PlanNode struct {
	NodeID        int32             `json:"node_id"`
	ConnectorName string            `json:"connector_name"`
	TupleDesc     *TupleDescriptor  `json:"tuple_desc"`
	Limit         int64             `json:"limit"` // -1 means no limit
	Properties    map[string]string `json:"properties"`
}

// Property returns a backend-specific property or the given default.
func (n *PlanNode) Property(key, def string) string {
	if v, ok := n.Properties[key]; ok {
		return v
	}
	return def
}
