package codec

import (
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	json "github.com/goccy/go-json"
	"github.com/meikuraledutech/bridge"
)

var (
	nodeLineRe = regexp.MustCompile(`^N(\d+):([^|]*)\|I:([^|]*)\|O:([^|]*)\|W:([^|]*)(.*)$`)
	linkLineRe = regexp.MustCompile(`^L(\d+)\s*:\s*(\d+)\.(\d+)\s*->\s*(\d+)\.(\d+)\s*:\s*(.+)$`)
)

// Decode parses the compact interchange form back into a workflow,
// validating every node and link against the catalog. Malformed input
// (unknown class, out-of-range slot, duplicate id, dangling or
// type-mismatched link) fails with a FormatError; an invalid workflow
// is never produced.
func Decode(data string, cat bridge.Catalog) (*bridge.Workflow, error) {
	lines := splitLines(data)
	if len(lines) == 0 {
		return nil, &bridge.FormatError{Message: "empty interchange data"}
	}
	if !strings.HasPrefix(lines[0].text, "W:") {
		return nil, &bridge.FormatError{Line: lines[0].num, Message: "missing W: header"}
	}

	wf := &bridge.Workflow{}
	if err := parseHeader(lines[0], wf); err != nil {
		return nil, err
	}

	nodeIDs := make(map[int]int) // id -> line, for duplicate reporting
	linkIDs := make(map[int]int)
	section := ""
	for _, ln := range lines[1:] {
		switch {
		case ln.text == "NODES:":
			section = "nodes"
		case ln.text == "LINKS:":
			section = "links"
		case strings.HasPrefix(ln.text, "M:"):
			raw := strings.TrimPrefix(ln.text, "M:")
			if !json.Valid([]byte(raw)) {
				return nil, &bridge.FormatError{Line: ln.num, Message: "metadata is not valid JSON"}
			}
			wf.Meta = json.RawMessage(raw)
		case section == "nodes" && strings.HasPrefix(ln.text, "N"):
			n, err := parseNodeLine(ln, cat)
			if err != nil {
				return nil, err
			}
			if prev, dup := nodeIDs[n.ID]; dup {
				return nil, &bridge.FormatError{Line: ln.num,
					Message: fmt.Sprintf("duplicate node id %d (first declared on line %d)", n.ID, prev)}
			}
			nodeIDs[n.ID] = ln.num
			wf.Nodes = append(wf.Nodes, *n)
		case section == "links" && strings.HasPrefix(ln.text, "L"):
			l, err := parseLinkLine(ln)
			if err != nil {
				return nil, err
			}
			if prev, dup := linkIDs[l.ID]; dup {
				return nil, &bridge.FormatError{Line: ln.num,
					Message: fmt.Sprintf("duplicate link id %d (first declared on line %d)", l.ID, prev)}
			}
			linkIDs[l.ID] = ln.num
			wf.Links = append(wf.Links, *l)
		default:
			return nil, &bridge.FormatError{Line: ln.num, Message: "unrecognized line: " + ln.text}
		}
	}

	// Links are authoritative for connectivity; the full link invariant
	// (endpoints, slot ranges, type compatibility, input occupancy) is
	// re-checked exactly as on encode.
	if err := validateGraph(wf, cat); err != nil {
		return nil, err
	}
	return wf, nil
}

type line struct {
	num  int // 1-based position in the input
	text string
}

func splitLines(data string) []line {
	var out []line
	for i, raw := range strings.Split(data, "\n") {
		t := strings.TrimSpace(raw)
		if t != "" {
			out = append(out, line{num: i + 1, text: t})
		}
	}
	return out
}

func parseHeader(ln line, wf *bridge.Workflow) error {
	for _, part := range strings.Split(ln.text, "|") {
		kv := strings.SplitN(part, ":", 2)
		if len(kv) != 2 {
			return &bridge.FormatError{Line: ln.num, Message: "malformed header field: " + part}
		}
		key, val := kv[0], kv[1]
		var err error
		switch key {
		case "W":
			if val != "none" {
				wf.ID = val
			}
		case "r":
			wf.Revision, err = strconv.Atoi(val)
		case "ln":
			wf.LastNodeID, err = strconv.Atoi(val)
		case "ll":
			wf.LastLinkID, err = strconv.Atoi(val)
		case "v":
			// Accepted for forward compatibility; no version gate yet.
		default:
			return &bridge.FormatError{Line: ln.num, Message: "unknown header field: " + key}
		}
		if err != nil {
			return &bridge.FormatError{Line: ln.num, Message: fmt.Sprintf("header field %s: %v", key, err)}
		}
	}
	return nil
}

func parseNodeLine(ln line, cat bridge.Catalog) (*bridge.Node, error) {
	m := nodeLineRe.FindStringSubmatch(ln.text)
	if m == nil {
		return nil, &bridge.FormatError{Line: ln.num, Message: "malformed node line"}
	}
	id, _ := strconv.Atoi(m[1])
	class := m[2]
	def := cat.Class(class)
	if def == nil {
		return nil, &bridge.FormatError{Line: ln.num, Message: fmt.Sprintf("unknown class %q", class)}
	}

	if n := sectionCount(m[3], ","); n != len(def.Inputs) {
		return nil, &bridge.FormatError{Line: ln.num,
			Message: fmt.Sprintf("class %q declares %d inputs, line has %d", class, len(def.Inputs), n)}
	}
	if n := sectionCount(m[4], ";"); n != len(def.Outputs) {
		return nil, &bridge.FormatError{Line: ln.num,
			Message: fmt.Sprintf("class %q declares %d outputs, line has %d", class, len(def.Outputs), n)}
	}

	node := &bridge.Node{ID: id, Class: class}
	widgets, err := parseWidgets(ln, m[5], def)
	if err != nil {
		return nil, err
	}
	node.Widgets = widgets

	for _, tag := range strings.Split(m[6], "|") {
		if tag == "" {
			continue
		}
		if !strings.HasPrefix(tag, "P:") {
			return nil, &bridge.FormatError{Line: ln.num, Message: "unknown node tag: " + tag}
		}
		raw, err := url.QueryUnescape(tag[2:])
		if err != nil || !json.Valid([]byte(raw)) {
			return nil, &bridge.FormatError{Line: ln.num, Message: "malformed properties tag"}
		}
		node.Properties = json.RawMessage(raw)
	}
	return node, nil
}

// parseWidgets maps the positional widget section onto the class's
// declared widget names, coercing each value by its declared kind.
func parseWidgets(ln line, widstr string, def *bridge.ClassDef) (map[string]any, error) {
	if len(def.Widgets) == 0 {
		if widstr != "" {
			return nil, &bridge.FormatError{Line: ln.num,
				Message: fmt.Sprintf("class %q declares no widgets, line has values", def.Name)}
		}
		return nil, nil
	}
	parts := strings.Split(widstr, ";")
	if len(parts) != len(def.Widgets) {
		return nil, &bridge.FormatError{Line: ln.num,
			Message: fmt.Sprintf("class %q declares %d widgets, line has %d", def.Name, len(def.Widgets), len(parts))}
	}
	widgets := make(map[string]any, len(parts))
	for i, part := range parts {
		wd := &def.Widgets[i]
		v, err := parseWidgetValue(unescapeWidget(part), wd)
		if err != nil {
			return nil, &bridge.FormatError{Line: ln.num, Message: err.Error()}
		}
		widgets[wd.Name] = v
	}
	return widgets, nil
}

func parseWidgetValue(s string, wd *bridge.WidgetDef) (any, error) {
	var v any
	switch wd.Kind {
	case bridge.WidgetInt:
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("widget %q: %q is not an integer", wd.Name, s)
		}
		v = n
	case bridge.WidgetFloat:
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, fmt.Errorf("widget %q: %q is not a number", wd.Name, s)
		}
		v = f
	case bridge.WidgetBool:
		switch s {
		case "True":
			v = true
		case "False":
			v = false
		default:
			return nil, fmt.Errorf("widget %q: %q is not a boolean", wd.Name, s)
		}
	default:
		v = s
	}
	return wd.Normalize(v)
}

func parseLinkLine(ln line) (*bridge.Link, error) {
	m := linkLineRe.FindStringSubmatch(ln.text)
	if m == nil {
		return nil, &bridge.FormatError{Line: ln.num, Message: "malformed link line"}
	}
	nums := make([]int, 5)
	for i := range nums {
		nums[i], _ = strconv.Atoi(m[i+1])
	}
	return &bridge.Link{
		ID:         nums[0],
		SourceID:   nums[1],
		SourceSlot: nums[2],
		TargetID:   nums[3],
		TargetSlot: nums[4],
		Type:       longType(m[6]),
	}, nil
}

func sectionCount(s, sep string) int {
	if s == "" {
		return 0
	}
	return len(strings.Split(s, sep))
}
