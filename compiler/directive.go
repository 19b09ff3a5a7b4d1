package compiler

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/meikuraledutech/bridge"
	"github.com/meikuraledutech/bridge/codec"
)

// A directive is one explicit edit intent mined from a change brief.
// Briefs are opaque text: only directive lines and interchange fragment
// lines are acted on, everything else is ignored as prose. A line that
// starts like a directive but cannot be parsed is an error, never a
// silent skip.
type directive struct {
	line int
	kind bridge.OpKind

	ref     string            // add/set: target reference
	class   string            // add
	named   map[string]string // add: widget=value pairs from an ADD line
	pos     []any             // add: positional widget values from a fragment line
	refs    []string          // delete: one or more references
	src     string            // connect/disconnect
	srcSlot int
	dst     string
	dstSlot int
	widget  string // set
	value   string // set: raw value text
}

var (
	addRe  = regexp.MustCompile(`^ADD\s+(\S+)\s+(\S+)\s*(.*)$`)
	delRe  = regexp.MustCompile(`^DELETE\s+(.+)$`)
	connRe = regexp.MustCompile(`^(CONNECT|DISCONNECT)\s+(.+?)\.(\d+)\s*->\s*(.+?)\.(\d+)\s*$`)
	setRe  = regexp.MustCompile(`^SET\s+(.+?)\.([A-Za-z0-9_]+)\s*=\s*(.+)$`)

	keywordRe = regexp.MustCompile(`^(ADD|DELETE|CONNECT|DISCONNECT|SET)\b`)
)

// mine extracts the ordered directive list from a brief. Fragment node
// and link lines (the form the original task envelope used for
// additions) are folded into add and connect directives in place, so
// list order always follows brief order.
func mine(brief string) ([]directive, error) {
	var out []directive
	for i, raw := range strings.Split(brief, "\n") {
		text := strings.TrimSpace(raw)
		if text == "" {
			continue
		}
		num := i + 1

		frag, _, err := codec.ParseFragment(text)
		if err != nil {
			return nil, briefError(num, "malformed-fragment", "%s", err.Error())
		}
		if len(frag.Nodes)+len(frag.Links) > 0 {
			for _, n := range frag.Nodes {
				out = append(out, directive{
					line: num, kind: bridge.OpAddNode,
					ref: n.Ref, class: n.Class, pos: n.Widgets,
				})
			}
			for _, l := range frag.Links {
				out = append(out, directive{
					line: num, kind: bridge.OpConnect,
					src: l.Source, srcSlot: l.SourceSlot,
					dst: l.Target, dstSlot: l.TargetSlot,
				})
			}
			continue
		}

		if !keywordRe.MatchString(text) {
			continue // prose
		}
		d, err := parseDirective(num, text)
		if err != nil {
			return nil, err
		}
		out = append(out, d...)
	}
	return out, nil
}

func parseDirective(num int, text string) ([]directive, error) {
	switch {
	case strings.HasPrefix(text, "ADD"):
		m := addRe.FindStringSubmatch(text)
		if m == nil {
			return nil, briefError(num, "malformed-directive", "ADD wants: ADD <ref> <Class> [widget=value; ...]")
		}
		named, err := parseAssignments(num, m[3])
		if err != nil {
			return nil, err
		}
		return []directive{{line: num, kind: bridge.OpAddNode, ref: m[1], class: m[2], named: named}}, nil

	case strings.HasPrefix(text, "DELETE"):
		m := delRe.FindStringSubmatch(text)
		if m == nil {
			return nil, briefError(num, "malformed-directive", "DELETE wants: DELETE <ref>[, <ref>...]")
		}
		var refs []string
		for _, r := range strings.Split(m[1], ",") {
			if r = strings.TrimSpace(r); r != "" {
				refs = append(refs, r)
			}
		}
		if len(refs) == 0 {
			return nil, briefError(num, "malformed-directive", "DELETE names no nodes")
		}
		return []directive{{line: num, kind: bridge.OpRemoveNode, refs: refs}}, nil

	case strings.HasPrefix(text, "CONNECT"), strings.HasPrefix(text, "DISCONNECT"):
		m := connRe.FindStringSubmatch(text)
		if m == nil {
			return nil, briefError(num, "malformed-directive",
				"%s wants: %s <ref>.<slot> -> <ref>.<slot>", firstWord(text), firstWord(text))
		}
		kind := bridge.OpConnect
		if m[1] == "DISCONNECT" {
			kind = bridge.OpDisconnect
		}
		srcSlot, _ := strconv.Atoi(m[3])
		dstSlot, _ := strconv.Atoi(m[5])
		return []directive{{
			line: num, kind: kind,
			src: strings.TrimSpace(m[2]), srcSlot: srcSlot,
			dst: strings.TrimSpace(m[4]), dstSlot: dstSlot,
		}}, nil

	case strings.HasPrefix(text, "SET"):
		m := setRe.FindStringSubmatch(text)
		if m == nil {
			return nil, briefError(num, "malformed-directive", "SET wants: SET <ref>.<widget> = <value>")
		}
		return []directive{{
			line: num, kind: bridge.OpSetWidget,
			ref: strings.TrimSpace(m[1]), widget: m[2], value: strings.TrimSpace(m[3]),
		}}, nil
	}
	return nil, briefError(num, "malformed-directive", "unrecognized directive: %s", text)
}

// parseAssignments parses the "widget=value; widget=value" tail of an
// ADD directive.
func parseAssignments(num int, s string) (map[string]string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	out := make(map[string]string)
	for _, pair := range strings.Split(s, ";") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		eq := strings.Index(pair, "=")
		if eq <= 0 {
			return nil, briefError(num, "malformed-directive", "widget assignment wants name=value, got %q", pair)
		}
		name := strings.TrimSpace(pair[:eq])
		if _, dup := out[name]; dup {
			return nil, briefError(num, "malformed-directive", "widget %q assigned twice", name)
		}
		out[name] = strings.TrimSpace(pair[eq+1:])
	}
	return out, nil
}

// parseValue turns raw directive value text into a scalar. Quoted text
// is always a string; everything else is sniffed.
func parseValue(s string) any {
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		return s[1 : len(s)-1]
	}
	return codec.ParseScalar(s)
}

func briefError(line int, rule, format string, args ...any) *bridge.CompileError {
	return &bridge.CompileError{
		Index:   -1,
		Field:   "brief",
		Rule:    rule,
		Message: fmt.Sprintf("line %d: %s", line, fmt.Sprintf(format, args...)),
	}
}

func firstWord(s string) string {
	if i := strings.IndexByte(s, ' '); i > 0 {
		return s[:i]
	}
	return s
}
