package bridge

import (
	"fmt"

	json "github.com/goccy/go-json"
)

// OpKind tags an Operation variant.
type OpKind string

const (
	OpAddNode    OpKind = "add_node"
	OpRemoveNode OpKind = "remove_node"
	OpConnect    OpKind = "connect"
	OpDisconnect OpKind = "disconnect"
	OpSetWidget  OpKind = "set_widget"
)

// Operation is one primitive graph edit. The union is closed: every
// consumer switches over the concrete types, so a new variant fails to
// compile until the validator, the executor, and the serializer all
// handle it. Operations are immutable once emitted by the compiler.
type Operation interface {
	Kind() OpKind
	op()
}

// AddNode creates a node of Class with the given id and initial widget
// values. Widgets holds the complete value map, already merged over the
// class defaults by the compiler.
type AddNode struct {
	ID      int            `json:"id"`
	Class   string         `json:"class"`
	Widgets map[string]any `json:"widgets,omitempty"`
}

// RemoveNode deletes a node and, cascading, every link incident to it.
type RemoveNode struct {
	ID int `json:"id"`
}

// Connect links a source output slot to a destination input slot.
type Connect struct {
	SourceID   int `json:"source_id"`
	SourceSlot int `json:"source_slot"`
	TargetID   int `json:"target_id"`
	TargetSlot int `json:"target_slot"`
}

// Disconnect removes the link with the given endpoint tuple.
type Disconnect struct {
	SourceID   int `json:"source_id"`
	SourceSlot int `json:"source_slot"`
	TargetID   int `json:"target_id"`
	TargetSlot int `json:"target_slot"`
}

// SetWidget assigns a new value to a declared widget of an existing node.
type SetWidget struct {
	NodeID int    `json:"node_id"`
	Name   string `json:"name"`
	Value  any    `json:"value"`
}

func (AddNode) Kind() OpKind    { return OpAddNode }
func (RemoveNode) Kind() OpKind { return OpRemoveNode }
func (Connect) Kind() OpKind    { return OpConnect }
func (Disconnect) Kind() OpKind { return OpDisconnect }
func (SetWidget) Kind() OpKind  { return OpSetWidget }

func (AddNode) op()    {}
func (RemoveNode) op() {}
func (Connect) op()    {}
func (Disconnect) op() {}
func (SetWidget) op()  {}

// OperationList is the compiler's validated, ordered output and the
// executor's sole input alongside the graph. Order is semantically
// significant: later operations may reference ids created earlier.
type OperationList []Operation

// MarshalJSON encodes each operation as one record tagged by kind.
// The encoding is stable: identical lists produce identical bytes.
func (ops OperationList) MarshalJSON() ([]byte, error) {
	type tagged struct {
		Op OpKind `json:"op"`
	}
	out := make([]json.RawMessage, len(ops))
	for i, op := range ops {
		var rec any
		switch v := op.(type) {
		case AddNode:
			rec = struct {
				tagged
				AddNode
			}{tagged{v.Kind()}, v}
		case RemoveNode:
			rec = struct {
				tagged
				RemoveNode
			}{tagged{v.Kind()}, v}
		case Connect:
			rec = struct {
				tagged
				Connect
			}{tagged{v.Kind()}, v}
		case Disconnect:
			rec = struct {
				tagged
				Disconnect
			}{tagged{v.Kind()}, v}
		case SetWidget:
			rec = struct {
				tagged
				SetWidget
			}{tagged{v.Kind()}, v}
		default:
			return nil, fmt.Errorf("bridge: unknown operation type %T", op)
		}
		b, err := json.Marshal(rec)
		if err != nil {
			return nil, fmt.Errorf("bridge: marshal operation %d: %w", i, err)
		}
		out[i] = b
	}
	return json.Marshal(out)
}

// UnmarshalJSON decodes a list of tagged operation records.
func (ops *OperationList) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("bridge: operation list: %w", err)
	}
	list := make(OperationList, 0, len(raw))
	for i, rec := range raw {
		var tag struct {
			Op OpKind `json:"op"`
		}
		if err := json.Unmarshal(rec, &tag); err != nil {
			return fmt.Errorf("bridge: operation %d: %w", i, err)
		}
		var (
			op  Operation
			err error
		)
		switch tag.Op {
		case OpAddNode:
			var v AddNode
			err = json.Unmarshal(rec, &v)
			op = v
		case OpRemoveNode:
			var v RemoveNode
			err = json.Unmarshal(rec, &v)
			op = v
		case OpConnect:
			var v Connect
			err = json.Unmarshal(rec, &v)
			op = v
		case OpDisconnect:
			var v Disconnect
			err = json.Unmarshal(rec, &v)
			op = v
		case OpSetWidget:
			var v SetWidget
			err = json.Unmarshal(rec, &v)
			op = v
		default:
			return fmt.Errorf("bridge: operation %d: unknown kind %q", i, tag.Op)
		}
		if err != nil {
			return fmt.Errorf("bridge: operation %d: %w", i, err)
		}
		list = append(list, op)
	}
	*ops = list
	return nil
}
