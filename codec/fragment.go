package codec

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/meikuraledutech/bridge"
)

// A Fragment is a bare run of node and link lines without the workflow
// header, the form a change brief uses to describe additions. Node
// references may be real numeric ids or NODE_<k> placeholders for nodes
// that do not exist yet; resolving placeholders against a graph is the
// compiler's job, so fragment values stay unvalidated and widget values
// are sniffed rather than checked against a catalog.
type Fragment struct {
	Nodes []FragmentNode
	Links []FragmentLink
}

// FragmentNode is one N-line of a fragment: a node reference, its class,
// and positional widget values.
type FragmentNode struct {
	Ref     string
	Class   string
	Widgets []any
}

// FragmentLink is one L-line of a fragment. Source and Target are node
// references (numeric or placeholder); the link id on the line is
// discarded since real ids are allocated at execution time.
type FragmentLink struct {
	Source     string
	SourceSlot int
	Target     string
	TargetSlot int
}

var (
	fragNodeRe = regexp.MustCompile(`^N(\d+|NODE_\d+):([^|]*)(\|.*)?$`)
	fragLinkRe = regexp.MustCompile(`^L+(?:\d+|LINK_\d+)?\s*:\s*(\d+|NODE_\d+)\.(\d+)\s*->\s*(\d+|NODE_\d+)\.(\d+)(?:\s*:\s*\S+)?$`)
)

// ParseFragment parses fragment node and link lines. Lines that are
// neither are returned untouched as leftovers for the caller to handle.
func ParseFragment(text string) (*Fragment, []string, error) {
	frag := &Fragment{}
	var leftover []string
	for _, ln := range splitLines(text) {
		switch {
		case fragNodeRe.MatchString(ln.text):
			n, err := parseFragmentNode(ln)
			if err != nil {
				return nil, nil, err
			}
			frag.Nodes = append(frag.Nodes, *n)
		case fragLinkRe.MatchString(ln.text):
			m := fragLinkRe.FindStringSubmatch(ln.text)
			srcSlot, _ := strconv.Atoi(m[2])
			dstSlot, _ := strconv.Atoi(m[4])
			frag.Links = append(frag.Links, FragmentLink{
				Source:     m[1],
				SourceSlot: srcSlot,
				Target:     m[3],
				TargetSlot: dstSlot,
			})
		default:
			leftover = append(leftover, ln.text)
		}
	}
	return frag, leftover, nil
}

func parseFragmentNode(ln line) (*FragmentNode, error) {
	m := fragNodeRe.FindStringSubmatch(ln.text)
	n := &FragmentNode{Ref: m[1], Class: m[2]}
	if n.Class == "" {
		return nil, &bridge.FormatError{Line: ln.num, Message: "fragment node has no class"}
	}
	// Only the W: section carries information a fragment can contribute;
	// I:/O: sections are redundant with the L-lines and are skipped.
	for _, tag := range strings.Split(strings.TrimPrefix(m[3], "|"), "|") {
		if !strings.HasPrefix(tag, "W:") {
			continue
		}
		widstr := tag[2:]
		if widstr == "" {
			continue
		}
		for _, part := range strings.Split(widstr, ";") {
			n.Widgets = append(n.Widgets, ParseScalar(unescapeWidget(part)))
		}
	}
	return n, nil
}
