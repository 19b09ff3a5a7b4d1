package catalog

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/meikuraledutech/bridge"
	"github.com/meikuraledutech/bridge/codec"
)

var termSplitRe = regexp.MustCompile(`[,+\s]+`)

// Search returns the classes matching query, split on commas, plus signs
// or whitespace. Per term, an exact name match wins over a
// case-insensitive match, which wins over substring matches. An empty
// query returns every class. Results are deduplicated and come back in a
// deterministic order: term order first, substring matches sorted by
// name.
func Search(cat bridge.Catalog, query string) []*bridge.ClassDef {
	terms := splitTerms(query)
	if len(terms) == 0 {
		return allSorted(cat)
	}

	var out []*bridge.ClassDef
	seen := make(map[string]bool)
	add := func(d *bridge.ClassDef) {
		if !seen[d.Name] {
			seen[d.Name] = true
			out = append(out, d)
		}
	}

	for _, term := range terms {
		if d := cat.Class(term); d != nil {
			add(d)
			continue
		}
		lower := strings.ToLower(term)
		if d := classFold(cat, lower); d != nil {
			add(d)
			continue
		}
		var subs []*bridge.ClassDef
		for name, d := range cat {
			if strings.Contains(strings.ToLower(name), lower) {
				subs = append(subs, d)
			}
		}
		sort.Slice(subs, func(i, j int) bool { return subs[i].Name < subs[j].Name })
		for _, d := range subs {
			add(d)
		}
	}
	return out
}

// Signatures renders the matching classes in the compact signature form
// consumed by planners: one line per class, required inputs prefixed
// with +, optional with ?, widgets with %, outputs with -. The query
// filters on class name or category; empty matches all. Lines are
// sorted by class name.
func Signatures(cat bridge.Catalog, query string) string {
	terms := splitTerms(strings.ToLower(query))

	var names []string
	for name, d := range cat {
		if len(terms) > 0 && !matchesAny(name, d.Category, terms) {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)

	lines := make([]string, 0, len(names))
	for _, name := range names {
		lines = append(lines, signature(cat[name]))
	}
	return strings.Join(lines, "\n")
}

func signature(d *bridge.ClassDef) string {
	parts := []string{"@" + d.Name}
	for _, in := range d.Inputs {
		prefix := "?"
		if in.Required {
			prefix = "+"
		}
		parts = append(parts, prefix+in.Name+":"+shortType(in.Type))
	}
	for _, w := range d.Widgets {
		parts = append(parts, "%"+w.Name+":"+string(w.Kind))
	}
	for _, out := range d.Outputs {
		parts = append(parts, "-"+shortType(out.Type))
	}
	return strings.Join(parts, " ")
}

// shortType maps a wire type to its compact encoding; in signature
// context unknown types collapse to the wildcard.
func shortType(t string) string {
	if s, ok := codec.TypeShorthand[t]; ok {
		return s
	}
	return "*"
}

// ModelIndex groups every model file the catalog's COMBO widgets can
// select, keyed by the widget naming conventions of the host.
type ModelIndex struct {
	Checkpoints []string `json:"checkpoints"`
	UNets       []string `json:"unets"`
	LoRAs       []string `json:"loras"`
	VAEs        []string `json:"vaes"`
	CLIPs       []string `json:"clips"`
}

// Models scans the catalog for model-selecting widgets and returns the
// deduplicated, sorted index.
func Models(cat bridge.Catalog) *ModelIndex {
	sets := map[string]map[string]bool{
		"ckpt": {}, "unet": {}, "lora": {}, "vae": {}, "clip": {},
	}
	for _, d := range cat {
		for _, w := range d.Widgets {
			if w.Kind != bridge.WidgetCombo {
				continue
			}
			var bucket string
			switch {
			case w.Name == "ckpt_name":
				bucket = "ckpt"
			case w.Name == "unet_name":
				bucket = "unet"
			case w.Name == "lora_name":
				bucket = "lora"
			case w.Name == "vae_name":
				bucket = "vae"
			case strings.Contains(w.Name, "clip_name"):
				bucket = "clip"
			default:
				continue
			}
			for _, opt := range w.Options {
				if opt != "" && opt != "None" {
					sets[bucket][opt] = true
				}
			}
		}
	}
	return &ModelIndex{
		Checkpoints: sortedKeys(sets["ckpt"]),
		UNets:       sortedKeys(sets["unet"]),
		LoRAs:       sortedKeys(sets["lora"]),
		VAEs:        sortedKeys(sets["vae"]),
		CLIPs:       sortedKeys(sets["clip"]),
	}
}

// String renders the index as the plain-text block planners consume.
func (m *ModelIndex) String() string {
	var b strings.Builder
	b.WriteString("=== USER MODEL INDEX ===\n")
	section := func(title string, items []string) {
		fmt.Fprintf(&b, "\n[%s (%d)]\n%s", title, len(items), strings.Join(items, "\n"))
	}
	section("CHECKPOINTS", m.Checkpoints)
	section("UNETS", m.UNets)
	section("LORAS", m.LoRAs)
	section("VAES", m.VAEs)
	section("CLIPS", m.CLIPs)
	return b.String()
}

// Categories returns the sorted root categories of the catalog, skipping
// internal ones (prefixed with underscores).
func Categories(cat bridge.Catalog) []string {
	set := make(map[string]bool)
	for _, d := range cat {
		root := d.Category
		if i := strings.Index(root, "/"); i >= 0 {
			root = root[:i]
		}
		if root == "" || strings.HasPrefix(root, "_") {
			continue
		}
		set[root] = true
	}
	out := sortedKeys(set)
	return out
}

func splitTerms(query string) []string {
	var out []string
	for _, t := range termSplitRe.Split(strings.TrimSpace(query), -1) {
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}

func matchesAny(name, category string, terms []string) bool {
	lname, lcat := strings.ToLower(name), strings.ToLower(category)
	for _, t := range terms {
		if strings.Contains(lname, t) || strings.Contains(lcat, t) {
			return true
		}
	}
	return false
}

func classFold(cat bridge.Catalog, lower string) *bridge.ClassDef {
	var names []string
	for name := range cat {
		if strings.ToLower(name) == lower {
			names = append(names, name)
		}
	}
	if len(names) == 0 {
		return nil
	}
	sort.Strings(names)
	return cat[names[0]]
}

func allSorted(cat bridge.Catalog) []*bridge.ClassDef {
	names := make([]string, 0, len(cat))
	for name := range cat {
		names = append(names, name)
	}
	sort.Strings(names)
	out := make([]*bridge.ClassDef, len(names))
	for i, name := range names {
		out[i] = cat[name]
	}
	return out
}

func sortedKeys(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool {
		return strings.ToLower(out[i]) < strings.ToLower(out[j])
	})
	return out
}
