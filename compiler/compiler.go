// Package compiler turns a free-form change brief into a strictly
// validated, ordered operation list. Compilation is pure: the current
// workflow is never mutated, and either every mined edit validates or a
// single CompileError is returned. No partial list, no best guess.
package compiler

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/meikuraledutech/bridge"
	"github.com/meikuraledutech/bridge/executor"
)

// Plan is a compiled change brief: the canonical operation list plus a
// human-readable summary. The summary exists for display only; the
// operation list is the contract.
type Plan struct {
	Ops     bridge.OperationList `json:"operations"`
	Summary string               `json:"summary"`
}

// Compile resolves brief against wf and cat into a Plan. Operations are
// validated in order against a virtual graph state (a private clone of
// wf threaded through executor.Step), so an operation may reference a
// node introduced by an earlier AddNode in the same list. Placeholder
// references (NODE_<k>) are allocated real ids past the workflow's
// highest node id, in order of first appearance.
func Compile(brief string, wf *bridge.Workflow, cat bridge.Catalog) (*Plan, error) {
	directives, err := mine(brief)
	if err != nil {
		return nil, err
	}
	if len(directives) == 0 {
		return nil, &bridge.CompileError{
			Index: -1, Field: "brief", Rule: "no-directives",
			Message: "brief contains no concrete edit directives",
		}
	}

	c := &compilation{
		vstate:       wf.Clone(),
		cat:          cat,
		placeholders: make(map[string]int),
		nextID:       wf.MaxNodeID(),
	}
	for _, d := range directives {
		if err := c.emit(d); err != nil {
			return nil, err
		}
	}
	return &Plan{Ops: c.ops, Summary: c.summary()}, nil
}

// compilation is the state threaded through plan emission: the virtual
// graph, the placeholder table, and the operations emitted so far. The
// virtual graph is discarded once the list is emitted.
type compilation struct {
	vstate       *bridge.Workflow
	cat          bridge.Catalog
	placeholders map[string]int
	nextID       int
	ops          bridge.OperationList
	notes        []string
}

func (c *compilation) emit(d directive) error {
	switch d.kind {
	case bridge.OpAddNode:
		return c.emitAdd(d)
	case bridge.OpRemoveNode:
		for _, ref := range d.refs {
			id, err := c.resolve(ref, "id", d)
			if err != nil {
				return err
			}
			if err := c.push(d, bridge.RemoveNode{ID: id}); err != nil {
				return err
			}
			c.note("remove node %d", id)
		}
		return nil
	case bridge.OpConnect, bridge.OpDisconnect:
		src, err := c.resolve(d.src, "source_id", d)
		if err != nil {
			return err
		}
		dst, err := c.resolve(d.dst, "target_id", d)
		if err != nil {
			return err
		}
		var op bridge.Operation
		if d.kind == bridge.OpConnect {
			op = bridge.Connect{SourceID: src, SourceSlot: d.srcSlot, TargetID: dst, TargetSlot: d.dstSlot}
			c.note("connect %d.%d -> %d.%d", src, d.srcSlot, dst, d.dstSlot)
		} else {
			op = bridge.Disconnect{SourceID: src, SourceSlot: d.srcSlot, TargetID: dst, TargetSlot: d.dstSlot}
			c.note("disconnect %d.%d -> %d.%d", src, d.srcSlot, dst, d.dstSlot)
		}
		return c.push(d, op)
	case bridge.OpSetWidget:
		id, err := c.resolve(d.ref, "node_id", d)
		if err != nil {
			return err
		}
		if err := c.push(d, bridge.SetWidget{NodeID: id, Name: d.widget, Value: parseValue(d.value)}); err != nil {
			return err
		}
		c.note("set %d.%s = %s", id, d.widget, d.value)
		return nil
	}
	return c.fail(d, "op", "unknown-operation", "unhandled directive kind %q", d.kind)
}

func (c *compilation) emitAdd(d directive) error {
	def := c.cat.Class(d.class)
	if def == nil {
		return c.fail(d, "class", "unknown-class", "class %q is not in the catalog", d.class)
	}

	widgets := make(map[string]any, len(d.named)+len(d.pos))
	for name, raw := range d.named {
		widgets[name] = parseValue(raw)
	}
	if len(d.pos) > 0 {
		if len(d.pos) != len(def.Widgets) {
			return c.fail(d, "widgets", "widget-count",
				"class %q declares %d widgets, fragment has %d", d.class, len(def.Widgets), len(d.pos))
		}
		for i, v := range d.pos {
			widgets[def.Widgets[i].Name] = v
		}
	}

	id, err := c.allocate(d)
	if err != nil {
		return err
	}
	if err := c.push(d, bridge.AddNode{ID: id, Class: d.class, Widgets: widgets}); err != nil {
		return err
	}
	c.note("add %s as node %d", d.class, id)
	return nil
}

// allocate determines the node id an ADD introduces: a literal id is
// taken as requested, a NODE_<k> placeholder gets the next free id and
// becomes resolvable for every later directive.
func (c *compilation) allocate(d directive) (int, error) {
	if id, err := strconv.Atoi(d.ref); err == nil {
		if id > c.nextID {
			c.nextID = id
		}
		return id, nil
	}
	if !strings.HasPrefix(d.ref, "NODE_") {
		return 0, c.fail(d, "id", "invalid-reference",
			"ADD wants a numeric id or NODE_<k> placeholder, got %q", d.ref)
	}
	if _, dup := c.placeholders[d.ref]; dup {
		return 0, c.fail(d, "id", "duplicate-placeholder", "placeholder %s already added", d.ref)
	}
	c.nextID++
	c.placeholders[d.ref] = c.nextID
	return c.nextID, nil
}

// resolve maps a node reference (numeric id, NODE_<k> placeholder, or
// class name) to a node id. Name resolution runs against the virtual
// graph state and must be unambiguous: zero or several matches is a
// CompileError, never a guess.
func (c *compilation) resolve(ref, field string, d directive) (int, error) {
	if id, err := strconv.Atoi(ref); err == nil {
		return id, nil
	}
	if strings.HasPrefix(ref, "NODE_") {
		id, ok := c.placeholders[ref]
		if !ok {
			return 0, c.fail(d, field, "unknown-placeholder", "placeholder %s was never added", ref)
		}
		return id, nil
	}

	var matches []int
	for i := range c.vstate.Nodes {
		if strings.EqualFold(c.vstate.Nodes[i].Class, ref) {
			matches = append(matches, c.vstate.Nodes[i].ID)
		}
	}
	switch len(matches) {
	case 1:
		return matches[0], nil
	case 0:
		return 0, c.fail(d, field, "unknown-reference", "no node matches %q", ref)
	}
	return 0, c.fail(d, field, "ambiguous-reference",
		"%d nodes match %q (%v); reference one by id", len(matches), ref, matches)
}

// push validates op against the virtual graph state and appends it.
func (c *compilation) push(d directive, op bridge.Operation) error {
	if v := executor.Step(c.vstate, op, c.cat); v != nil {
		return &bridge.CompileError{
			Index:   len(c.ops),
			Field:   v.Field,
			Rule:    v.Rule,
			Message: fmt.Sprintf("line %d: %s", d.line, v.Message),
		}
	}
	c.ops = append(c.ops, op)
	return nil
}

func (c *compilation) fail(d directive, field, rule, format string, args ...any) *bridge.CompileError {
	return &bridge.CompileError{
		Index:   len(c.ops),
		Field:   field,
		Rule:    rule,
		Message: fmt.Sprintf("line %d: %s", d.line, fmt.Sprintf(format, args...)),
	}
}

func (c *compilation) note(format string, args ...any) {
	c.notes = append(c.notes, fmt.Sprintf(format, args...))
}

func (c *compilation) summary() string {
	return fmt.Sprintf("%d operation(s): %s", len(c.ops), strings.Join(c.notes, "; "))
}
