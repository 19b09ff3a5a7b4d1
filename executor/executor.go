// Package executor applies a validated operation list to a workflow.
// Application is atomic: every operation is re-validated against the
// live working copy before it mutates anything, and the caller's
// workflow is replaced only on full success.
package executor

import (
	"github.com/meikuraledutech/bridge"
)

// Execute applies ops to wf strictly in list order and returns the
// updated workflow. Each operation is re-checked against the
// already-mutated working copy, because earlier operations can
// invalidate later ones. On the first failure an ExecutionError carrying
// the operation's index is returned and wf is left wholly unchanged.
//
// Execute has no side effects beyond its return values, and reapplying
// the same list to the same starting workflow is deterministic.
func Execute(ops bridge.OperationList, wf *bridge.Workflow, cat bridge.Catalog) (*bridge.Workflow, error) {
	work := wf.Clone()
	for i, op := range ops {
		if v := Step(work, op, cat); v != nil {
			return nil, &bridge.ExecutionError{Index: i, Kind: op.Kind(), Message: v.Error()}
		}
	}
	work.Revision = wf.Revision + 1
	return work, nil
}

// Step validates one operation against wf and, if it holds, applies it
// in place. The returned Violation names the offending field and the
// rule broken. The compiler threads Step through its virtual graph state
// so that compile-time validation and execute-time re-validation cannot
// drift apart.
func Step(wf *bridge.Workflow, op bridge.Operation, cat bridge.Catalog) *bridge.Violation {
	switch v := op.(type) {
	case bridge.AddNode:
		return stepAddNode(wf, v, cat)
	case bridge.RemoveNode:
		return stepRemoveNode(wf, v)
	case bridge.Connect:
		return stepConnect(wf, v, cat)
	case bridge.Disconnect:
		return stepDisconnect(wf, v)
	case bridge.SetWidget:
		return stepSetWidget(wf, v, cat)
	}
	return bridge.Violationf("op", "unknown-operation", "unhandled operation type %T", op)
}

func stepAddNode(wf *bridge.Workflow, op bridge.AddNode, cat bridge.Catalog) *bridge.Violation {
	def := cat.Class(op.Class)
	if def == nil {
		return bridge.Violationf("class", "unknown-class", "class %q is not in the catalog", op.Class)
	}
	if op.ID <= 0 {
		return bridge.Violationf("id", "invalid-node-id", "node id %d must be positive", op.ID)
	}
	if wf.Node(op.ID) != nil {
		return bridge.Violationf("id", "duplicate-node-id", "node %d already exists", op.ID)
	}

	provided := make(map[string]any, len(op.Widgets))
	for name, val := range op.Widgets {
		wd := def.Widget(name)
		if wd == nil {
			return bridge.Violationf("widgets", "unknown-widget",
				"class %q declares no widget %q", op.Class, name)
		}
		norm, err := wd.Normalize(val)
		if err != nil {
			return bridge.Violationf("widgets", "invalid-widget-value", "%v", err)
		}
		provided[name] = norm
	}

	// Defaults first, explicit values on top. Explicit zero values
	// (0, "", false) must win too, so this is a plain overlay.
	widgets := def.DefaultWidgets()
	for name, val := range provided {
		widgets[name] = val
	}
	for _, wd := range def.Widgets {
		if _, ok := widgets[wd.Name]; !ok {
			return bridge.Violationf("widgets", "missing-widget-value",
				"widget %q has no default and no value was provided", wd.Name)
		}
	}

	wf.Nodes = append(wf.Nodes, bridge.Node{ID: op.ID, Class: op.Class, Widgets: widgets})
	if op.ID > wf.LastNodeID {
		wf.LastNodeID = op.ID
	}
	return nil
}

func stepRemoveNode(wf *bridge.Workflow, op bridge.RemoveNode) *bridge.Violation {
	if wf.Node(op.ID) == nil {
		return bridge.Violationf("id", "unknown-node", "node %d does not exist", op.ID)
	}
	nodes := wf.Nodes[:0]
	for _, n := range wf.Nodes {
		if n.ID != op.ID {
			nodes = append(nodes, n)
		}
	}
	wf.Nodes = nodes

	// Cascade: every link incident to the node goes with it.
	links := wf.Links[:0]
	for _, l := range wf.Links {
		if l.SourceID != op.ID && l.TargetID != op.ID {
			links = append(links, l)
		}
	}
	wf.Links = links
	return nil
}

func stepConnect(wf *bridge.Workflow, op bridge.Connect, cat bridge.Catalog) *bridge.Violation {
	src := wf.Node(op.SourceID)
	if src == nil {
		return bridge.Violationf("source_id", "unknown-node", "node %d does not exist", op.SourceID)
	}
	dst := wf.Node(op.TargetID)
	if dst == nil {
		return bridge.Violationf("target_id", "unknown-node", "node %d does not exist", op.TargetID)
	}
	srcDef, dstDef := cat.Class(src.Class), cat.Class(dst.Class)
	if srcDef == nil {
		return bridge.Violationf("source_id", "unknown-class", "class %q is not in the catalog", src.Class)
	}
	if dstDef == nil {
		return bridge.Violationf("target_id", "unknown-class", "class %q is not in the catalog", dst.Class)
	}
	if op.SourceSlot < 0 || op.SourceSlot >= len(srcDef.Outputs) {
		return bridge.Violationf("source_slot", "slot-out-of-range",
			"class %q has %d outputs, slot %d requested", src.Class, len(srcDef.Outputs), op.SourceSlot)
	}
	if op.TargetSlot < 0 || op.TargetSlot >= len(dstDef.Inputs) {
		return bridge.Violationf("target_slot", "slot-out-of-range",
			"class %q has %d inputs, slot %d requested", dst.Class, len(dstDef.Inputs), op.TargetSlot)
	}
	out, in := srcDef.Outputs[op.SourceSlot], dstDef.Inputs[op.TargetSlot]
	if !bridge.TypesCompatible(out.Type, in.Type) {
		return bridge.Violationf("target_slot", "type-mismatch",
			"output %s does not feed input %s", out.Type, in.Type)
	}
	if wf.FindLink(op.SourceID, op.SourceSlot, op.TargetID, op.TargetSlot) != nil {
		return bridge.Violationf("target_slot", "duplicate-link",
			"link %d.%d->%d.%d already exists", op.SourceID, op.SourceSlot, op.TargetID, op.TargetSlot)
	}
	if l := wf.InputLink(op.TargetID, op.TargetSlot); l != nil {
		return bridge.Violationf("target_slot", "input-occupied",
			"input %d.%d is already fed by link %d; disconnect it first", op.TargetID, op.TargetSlot, l.ID)
	}

	id := wf.MaxLinkID() + 1
	wf.Links = append(wf.Links, bridge.Link{
		ID:         id,
		SourceID:   op.SourceID,
		SourceSlot: op.SourceSlot,
		TargetID:   op.TargetID,
		TargetSlot: op.TargetSlot,
		Type:       out.Type,
	})
	wf.LastLinkID = id
	return nil
}

func stepDisconnect(wf *bridge.Workflow, op bridge.Disconnect) *bridge.Violation {
	target := wf.FindLink(op.SourceID, op.SourceSlot, op.TargetID, op.TargetSlot)
	if target == nil {
		return bridge.Violationf("target_slot", "unknown-link",
			"no link %d.%d->%d.%d", op.SourceID, op.SourceSlot, op.TargetID, op.TargetSlot)
	}
	links := wf.Links[:0]
	for _, l := range wf.Links {
		if l.ID != target.ID {
			links = append(links, l)
		}
	}
	wf.Links = links
	return nil
}

func stepSetWidget(wf *bridge.Workflow, op bridge.SetWidget, cat bridge.Catalog) *bridge.Violation {
	node := wf.Node(op.NodeID)
	if node == nil {
		return bridge.Violationf("node_id", "unknown-node", "node %d does not exist", op.NodeID)
	}
	def := cat.Class(node.Class)
	if def == nil {
		return bridge.Violationf("node_id", "unknown-class", "class %q is not in the catalog", node.Class)
	}
	wd := def.Widget(op.Name)
	if wd == nil {
		return bridge.Violationf("name", "unknown-widget",
			"class %q declares no widget %q", node.Class, op.Name)
	}
	norm, err := wd.Normalize(op.Value)
	if err != nil {
		return bridge.Violationf("value", "invalid-widget-value", "%v", err)
	}
	if node.Widgets == nil {
		node.Widgets = make(map[string]any, 1)
	}
	node.Widgets[op.Name] = norm
	return nil
}
