package model

// DeltaAction tags the kind of incremental edit a Delta performs.
type DeltaAction string

const (
	ActionUpdateNode DeltaAction = "update_node"
	ActionAddNode    DeltaAction = "add_node"
	ActionDeleteNode DeltaAction = "delete_node"
	ActionUpdateEdge DeltaAction = "update_edge"
	ActionAddEdge    DeltaAction = "add_edge"
	ActionDeleteEdge DeltaAction = "delete_edge"
)

// ChangeOp is the operation applied to a single field path within a Delta.
type ChangeOp string

const (
	OpAppend  ChangeOp = "append"
	OpRemove  ChangeOp = "remove"
	OpReplace ChangeOp = "replace"
	OpUpdate  ChangeOp = "update"
)

// Change is one field-level modification inside a Delta.
//
// Value carries the payload for append/replace/update; Filter selects the
// element to remove or update inside a list field (e.g. {"name": "email"}).
type Change struct {
	Operation ChangeOp       `json:"operation"`
	Value     any            `json:"value,omitempty"`
	Filter    map[string]any `json:"filter,omitempty"`
}

// Delta is a single structured incremental edit against a diagram, as
// opposed to re-sending the whole diagram. Changes are keyed by field path
// ("data.label", "data.attributes", ...).
type Delta struct {
	Action      DeltaAction       `json:"action"`
	NodeID      string            `json:"node_id,omitempty"`
	EdgeID      string            `json:"edge_id,omitempty"`
	Changes     map[string]Change `json:"changes"`
	Description string            `json:"description"`
}
