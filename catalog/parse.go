// Package catalog loads the node definition registry: from a static
// object_info JSON file or live from a running host. The registry is
// read-only once loaded and safely shared across compile and execute
// calls; refreshing it is an out-of-band concern handled by Client.
package catalog

import (
	"bytes"
	"fmt"
	"os"

	json "github.com/goccy/go-json"
	"github.com/meikuraledutech/bridge"
)

// primitive input kinds that become widgets rather than input slots.
var widgetKinds = map[string]bridge.WidgetKind{
	"INT":     bridge.WidgetInt,
	"FLOAT":   bridge.WidgetFloat,
	"STRING":  bridge.WidgetString,
	"BOOLEAN": bridge.WidgetBool,
}

// Parse builds a Catalog from object_info JSON: a map of class name to
// declaration, each input entry a [type, options?] pair. Entries whose
// type is a list become COMBO widgets, primitive types become typed
// widgets, and everything else is a wired input slot. Any malformed
// entry is a CatalogError: a registry with a bad class blocks the whole
// compile/execute session rather than failing operation by operation.
//
// Input declaration order is preserved: positional widget values in the
// interchange form map onto widgets in document order, required before
// optional.
func Parse(data []byte) (bridge.Catalog, error) {
	var top map[string]json.RawMessage
	if err := json.Unmarshal(data, &top); err != nil {
		return nil, &bridge.CatalogError{Message: "object_info is not a JSON object: " + err.Error()}
	}
	cat := make(bridge.Catalog, len(top))
	for name, raw := range top {
		def, err := parseClass(name, raw)
		if err != nil {
			return nil, err
		}
		cat[name] = def
	}
	return cat, nil
}

// Load reads and parses an object_info file.
func Load(path string) (bridge.Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &bridge.CatalogError{Message: "read " + path + ": " + err.Error()}
	}
	return Parse(data)
}

type rawClass struct {
	Input struct {
		Required json.RawMessage `json:"required"`
		Optional json.RawMessage `json:"optional"`
	} `json:"input"`
	Output     json.RawMessage `json:"output"`
	OutputName []string        `json:"output_name"`
	Category   json.RawMessage `json:"category"`
}

func parseClass(name string, raw json.RawMessage) (*bridge.ClassDef, error) {
	var rc rawClass
	if err := json.Unmarshal(raw, &rc); err != nil {
		return nil, &bridge.CatalogError{Class: name, Message: "malformed entry: " + err.Error()}
	}
	def := &bridge.ClassDef{Name: name}

	if err := parseInputs(def, rc.Input.Required, true); err != nil {
		return nil, &bridge.CatalogError{Class: name, Message: err.Error()}
	}
	if err := parseInputs(def, rc.Input.Optional, false); err != nil {
		return nil, &bridge.CatalogError{Class: name, Message: err.Error()}
	}
	if err := parseOutputs(def, rc.Output, rc.OutputName); err != nil {
		return nil, &bridge.CatalogError{Class: name, Message: err.Error()}
	}
	def.Category = parseCategory(rc.Category)
	return def, nil
}

// parseInputs walks one input section in document order, appending
// widgets and input slots as they appear.
func parseInputs(def *bridge.ClassDef, section json.RawMessage, required bool) error {
	if len(section) == 0 {
		return nil
	}
	entries, err := orderedObject(section)
	if err != nil {
		return fmt.Errorf("input section: %w", err)
	}
	for _, e := range entries {
		var spec []json.RawMessage
		if err := json.Unmarshal(e.value, &spec); err != nil || len(spec) == 0 {
			return fmt.Errorf("input %q: want a [type, options?] pair", e.key)
		}

		var opts map[string]any
		if len(spec) > 1 {
			// A second element that is not an options object (some packs
			// use trailing strings) is ignored, as the original does.
			_ = json.Unmarshal(spec[1], &opts)
		}

		// COMBO: the declared type is itself the option list.
		var options []string
		if err := json.Unmarshal(spec[0], &options); err == nil {
			def.Widgets = append(def.Widgets, comboWidget(e.key, options, opts))
			continue
		}

		var typ string
		if err := json.Unmarshal(spec[0], &typ); err != nil {
			return fmt.Errorf("input %q: type is neither a string nor an option list", e.key)
		}
		if kind, ok := widgetKinds[typ]; ok {
			def.Widgets = append(def.Widgets, primitiveWidget(e.key, kind, opts))
			continue
		}
		def.Inputs = append(def.Inputs, bridge.SlotDef{Name: e.key, Type: typ, Required: required})
	}
	return nil
}

func comboWidget(name string, options []string, opts map[string]any) bridge.WidgetDef {
	w := bridge.WidgetDef{Name: name, Kind: bridge.WidgetCombo, Options: options}
	if d, ok := opts["default"]; ok {
		w.Default, w.HasDefault = d, true
	}
	return w
}

func primitiveWidget(name string, kind bridge.WidgetKind, opts map[string]any) bridge.WidgetDef {
	w := bridge.WidgetDef{Name: name, Kind: kind}
	if d, ok := opts["default"]; ok {
		w.Default, w.HasDefault = d, true
	}
	if m, ok := opts["min"].(float64); ok {
		w.Min = &m
	}
	if m, ok := opts["max"].(float64); ok {
		w.Max = &m
	}
	return w
}

func parseOutputs(def *bridge.ClassDef, output json.RawMessage, names []string) error {
	if len(output) == 0 {
		return nil
	}
	var outs []json.RawMessage
	if err := json.Unmarshal(output, &outs); err != nil {
		return fmt.Errorf("output section: want a list, got %s", output)
	}
	for i, raw := range outs {
		var typ string
		if err := json.Unmarshal(raw, &typ); err != nil {
			// A list-typed output declares an inline enum; its wire type
			// is the first element.
			var list []string
			if err := json.Unmarshal(raw, &list); err != nil || len(list) == 0 {
				return fmt.Errorf("output %d: unrecognized declaration", i)
			}
			typ = list[0]
		}
		name := typ
		if i < len(names) {
			name = names[i]
		}
		def.Outputs = append(def.Outputs, bridge.SlotDef{Name: name, Type: typ})
	}
	return nil
}

func parseCategory(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err == nil && len(list) > 0 {
		return list[0]
	}
	return ""
}

type objectEntry struct {
	key   string
	value json.RawMessage
}

// orderedObject decodes a JSON object preserving key order, which
// encoding into a Go map would lose. Widget positions in the interchange
// form depend on this order.
func orderedObject(raw json.RawMessage) ([]objectEntry, error) {
	var asMap map[string]json.RawMessage
	if err := json.Unmarshal(raw, &asMap); err != nil {
		return nil, fmt.Errorf("want an object: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	if _, err := dec.Token(); err != nil { // opening brace
		return nil, err
	}
	entries := make([]objectEntry, 0, len(asMap))
	for dec.More() {
		t, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, ok := t.(string)
		if !ok {
			return nil, fmt.Errorf("unexpected token %v", t)
		}
		entries = append(entries, objectEntry{key: key, value: asMap[key]})
		if err := skipValue(dec); err != nil {
			return nil, err
		}
	}
	return entries, nil
}

func skipValue(dec *json.Decoder) error {
	t, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := t.(json.Delim); ok && (d == '{' || d == '[') {
		for dec.More() {
			if d == '{' {
				if _, err := dec.Token(); err != nil { // key
					return err
				}
			}
			if err := skipValue(dec); err != nil {
				return err
			}
		}
		_, err = dec.Token() // closing delim
	}
	return err
}
