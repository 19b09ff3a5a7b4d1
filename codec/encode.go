package codec

import (
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/meikuraledutech/bridge"
)

// Encode renders a workflow in the compact interchange form. It fails
// with a FormatError if the workflow violates the link invariant or
// references classes or widgets the catalog does not declare; invalid
// input is never silently repaired.
//
// Output is canonical: nodes and links are ordered by id and slot
// sections are derived from the catalog, so encoding the same logical
// workflow twice yields byte-identical text.
func Encode(wf *bridge.Workflow, cat bridge.Catalog) (string, error) {
	if err := validateGraph(wf, cat); err != nil {
		return "", err
	}

	nodes := append([]bridge.Node(nil), wf.Nodes...)
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].ID < nodes[j].ID })
	links := append([]bridge.Link(nil), wf.Links...)
	sort.Slice(links, func(i, j int) bool { return links[i].ID < links[j].ID })

	// Link lookups per node, for the I:/O: sections.
	inputLink := make(map[[2]int]int)      // (target, slot) -> link id
	outputLinks := make(map[[2]int][]int)  // (source, slot) -> link ids
	for _, l := range links {
		inputLink[[2]int{l.TargetID, l.TargetSlot}] = l.ID
		k := [2]int{l.SourceID, l.SourceSlot}
		outputLinks[k] = append(outputLinks[k], l.ID)
	}

	id := wf.ID
	if id == "" {
		id = "none"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "W:%s|r:%d|ln:%d|ll:%d|v:%s\n", id, wf.Revision, wf.LastNodeID, wf.LastLinkID, Version)
	b.WriteString("NODES:\n")

	for _, n := range nodes {
		def := cat.Class(n.Class)

		ins := make([]string, len(def.Inputs))
		for i, in := range def.Inputs {
			ref := "None"
			if lid, ok := inputLink[[2]int{n.ID, i}]; ok {
				ref = strconv.Itoa(lid)
			}
			ins[i] = in.Name + ":" + shortType(in.Type) + ":" + ref
		}

		outs := make([]string, len(def.Outputs))
		for i, out := range def.Outputs {
			ids := append([]int(nil), outputLinks[[2]int{n.ID, i}]...)
			sort.Ints(ids)
			parts := make([]string, len(ids))
			for j, lid := range ids {
				parts[j] = strconv.Itoa(lid)
			}
			outs[i] = out.Name + ":" + shortType(out.Type) + ":" + strings.Join(parts, ",")
		}

		wids := make([]string, len(def.Widgets))
		for i, wd := range def.Widgets {
			wids[i] = escapeWidget(n.Widgets[wd.Name])
		}

		fmt.Fprintf(&b, "N%d:%s|I:%s|O:%s|W:%s",
			n.ID, n.Class, strings.Join(ins, ","), strings.Join(outs, ";"), strings.Join(wids, ";"))
		if len(n.Properties) > 0 {
			b.WriteString("|P:" + url.QueryEscape(string(n.Properties)))
		}
		b.WriteByte('\n')
	}

	b.WriteString("LINKS:\n")
	for _, l := range links {
		fmt.Fprintf(&b, "L%d:%d.%d->%d.%d:%s\n",
			l.ID, l.SourceID, l.SourceSlot, l.TargetID, l.TargetSlot, shortType(l.Type))
	}

	meta := wf.Meta
	if len(meta) == 0 {
		meta = []byte(`{"groups":[],"config":{},"extra":{}}`)
	}
	b.WriteString("M:" + string(meta))
	return b.String(), nil
}

// validateGraph checks the workflow against the catalog: unique node ids,
// known classes, exact widget coverage, and the full link invariant.
func validateGraph(wf *bridge.Workflow, cat bridge.Catalog) error {
	seen := make(map[int]bool, len(wf.Nodes))
	for _, n := range wf.Nodes {
		if seen[n.ID] {
			return &bridge.FormatError{Message: fmt.Sprintf("duplicate node id %d", n.ID)}
		}
		seen[n.ID] = true

		def := cat.Class(n.Class)
		if def == nil {
			return &bridge.FormatError{Message: fmt.Sprintf("node %d references unknown class %q", n.ID, n.Class)}
		}
		for name := range n.Widgets {
			if def.Widget(name) == nil {
				return &bridge.FormatError{Message: fmt.Sprintf("node %d has undeclared widget %q", n.ID, name)}
			}
		}
		for _, wd := range def.Widgets {
			v, ok := n.Widgets[wd.Name]
			if !ok {
				return &bridge.FormatError{Message: fmt.Sprintf("node %d missing value for widget %q", n.ID, wd.Name)}
			}
			if _, err := wd.Normalize(v); err != nil {
				return &bridge.FormatError{Message: fmt.Sprintf("node %d: %v", n.ID, err)}
			}
		}
	}

	linkIDs := make(map[int]bool, len(wf.Links))
	tuples := make(map[[4]int]bool, len(wf.Links))
	inputs := make(map[[2]int]bool, len(wf.Links))
	for _, l := range wf.Links {
		if linkIDs[l.ID] {
			return &bridge.FormatError{Message: fmt.Sprintf("duplicate link id %d", l.ID)}
		}
		linkIDs[l.ID] = true

		tuple := [4]int{l.SourceID, l.SourceSlot, l.TargetID, l.TargetSlot}
		if tuples[tuple] {
			return &bridge.FormatError{Message: fmt.Sprintf("duplicate link %d.%d->%d.%d",
				l.SourceID, l.SourceSlot, l.TargetID, l.TargetSlot)}
		}
		tuples[tuple] = true

		src := wf.Node(l.SourceID)
		if src == nil {
			return &bridge.FormatError{Message: fmt.Sprintf("link %d dangles: no source node %d", l.ID, l.SourceID)}
		}
		dst := wf.Node(l.TargetID)
		if dst == nil {
			return &bridge.FormatError{Message: fmt.Sprintf("link %d dangles: no target node %d", l.ID, l.TargetID)}
		}

		srcDef, dstDef := cat.Class(src.Class), cat.Class(dst.Class)
		if l.SourceSlot < 0 || l.SourceSlot >= len(srcDef.Outputs) {
			return &bridge.FormatError{Message: fmt.Sprintf("link %d: output slot %d out of range for class %q",
				l.ID, l.SourceSlot, src.Class)}
		}
		if l.TargetSlot < 0 || l.TargetSlot >= len(dstDef.Inputs) {
			return &bridge.FormatError{Message: fmt.Sprintf("link %d: input slot %d out of range for class %q",
				l.ID, l.TargetSlot, dst.Class)}
		}
		if !bridge.TypesCompatible(srcDef.Outputs[l.SourceSlot].Type, dstDef.Inputs[l.TargetSlot].Type) {
			return &bridge.FormatError{Message: fmt.Sprintf("link %d: type %s does not feed %s",
				l.ID, srcDef.Outputs[l.SourceSlot].Type, dstDef.Inputs[l.TargetSlot].Type)}
		}

		in := [2]int{l.TargetID, l.TargetSlot}
		if inputs[in] {
			return &bridge.FormatError{Message: fmt.Sprintf("input slot %d.%d has more than one incoming link",
				l.TargetID, l.TargetSlot)}
		}
		inputs[in] = true
	}
	return nil
}
