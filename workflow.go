package bridge

import (
	json "github.com/goccy/go-json"
)

// Workflow is the logical node/link/widget graph being edited.
// Layout and presentation data never enters this type; Meta carries
// workflow-level metadata opaquely and is preserved but never interpreted.
type Workflow struct {
	ID         string          `json:"id"`
	Revision   int             `json:"revision"`
	LastNodeID int             `json:"last_node_id"`
	LastLinkID int             `json:"last_link_id"`
	Nodes      []Node          `json:"nodes"`
	Links      []Link          `json:"links"`
	Meta       json.RawMessage `json:"meta,omitempty"`
}

// Node is a single processing node. Class must resolve in the Catalog.
// Widgets maps declared widget names to current values. Properties is an
// opaque metadata bag carried through unchanged.
type Node struct {
	ID         int             `json:"id"`
	Class      string          `json:"class"`
	Widgets    map[string]any  `json:"widgets,omitempty"`
	Properties json.RawMessage `json:"properties,omitempty"`
}

// Link connects a source output slot to a destination input slot.
// The (SourceID, SourceSlot, TargetID, TargetSlot) tuple is unique within
// a workflow, and an input slot holds at most one incoming link.
type Link struct {
	ID         int    `json:"id"`
	SourceID   int    `json:"source_id"`
	SourceSlot int    `json:"source_slot"`
	TargetID   int    `json:"target_id"`
	TargetSlot int    `json:"target_slot"`
	Type       string `json:"type"`
}

// Node returns the node with the given id, or nil.
func (w *Workflow) Node(id int) *Node {
	for i := range w.Nodes {
		if w.Nodes[i].ID == id {
			return &w.Nodes[i]
		}
	}
	return nil
}

// FindLink returns the link with the given endpoint tuple, or nil.
func (w *Workflow) FindLink(sourceID, sourceSlot, targetID, targetSlot int) *Link {
	for i := range w.Links {
		l := &w.Links[i]
		if l.SourceID == sourceID && l.SourceSlot == sourceSlot &&
			l.TargetID == targetID && l.TargetSlot == targetSlot {
			return l
		}
	}
	return nil
}

// InputLink returns the link feeding the given input slot, or nil.
func (w *Workflow) InputLink(targetID, targetSlot int) *Link {
	for i := range w.Links {
		l := &w.Links[i]
		if l.TargetID == targetID && l.TargetSlot == targetSlot {
			return l
		}
	}
	return nil
}

// MaxNodeID returns the highest node id in use, taking LastNodeID into
// account so ids of deleted nodes are not reissued.
func (w *Workflow) MaxNodeID() int {
	max := w.LastNodeID
	for i := range w.Nodes {
		if w.Nodes[i].ID > max {
			max = w.Nodes[i].ID
		}
	}
	return max
}

// MaxLinkID returns the highest link id in use, taking LastLinkID into
// account.
func (w *Workflow) MaxLinkID() int {
	max := w.LastLinkID
	for i := range w.Links {
		if w.Links[i].ID > max {
			max = w.Links[i].ID
		}
	}
	return max
}

// Clone returns a deep copy. Mutating the copy never affects the original.
func (w *Workflow) Clone() *Workflow {
	c := &Workflow{
		ID:         w.ID,
		Revision:   w.Revision,
		LastNodeID: w.LastNodeID,
		LastLinkID: w.LastLinkID,
	}
	if w.Nodes != nil {
		c.Nodes = make([]Node, len(w.Nodes))
		for i, n := range w.Nodes {
			cn := n
			if n.Widgets != nil {
				cn.Widgets = make(map[string]any, len(n.Widgets))
				for k, v := range n.Widgets {
					cn.Widgets[k] = v
				}
			}
			if n.Properties != nil {
				cn.Properties = append(json.RawMessage(nil), n.Properties...)
			}
			c.Nodes[i] = cn
		}
	}
	if w.Links != nil {
		c.Links = append([]Link(nil), w.Links...)
	}
	if w.Meta != nil {
		c.Meta = append(json.RawMessage(nil), w.Meta...)
	}
	return c
}

// TypesCompatible reports whether a source output type may feed a
// destination input type. The wildcard "*" matches anything.
func TypesCompatible(out, in string) bool {
	return out == in || out == "*" || in == "*"
}
