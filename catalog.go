package bridge

import (
	"fmt"
	"strings"
)

// WidgetKind classifies a widget declaration by value type.
type WidgetKind string

const (
	WidgetInt    WidgetKind = "INT"
	WidgetFloat  WidgetKind = "FLOAT"
	WidgetString WidgetKind = "STRING"
	WidgetBool   WidgetKind = "BOOLEAN"
	WidgetCombo  WidgetKind = "COMBO"
)

// SlotDef declares one input or output slot of a node class.
type SlotDef struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Required bool   `json:"required,omitempty"`
}

// WidgetDef declares one widget of a node class: its value kind, default,
// and optional range or enum constraint.
type WidgetDef struct {
	Name       string     `json:"name"`
	Kind       WidgetKind `json:"kind"`
	Default    any        `json:"default,omitempty"`
	HasDefault bool       `json:"has_default,omitempty"`
	Min        *float64   `json:"min,omitempty"`
	Max        *float64   `json:"max,omitempty"`
	Options    []string   `json:"options,omitempty"`
}

// ClassDef is one node class as declared by the catalog: ordered input
// slots, ordered output slots, and ordered widget declarations.
// Immutable once loaded.
type ClassDef struct {
	Name     string      `json:"name"`
	Category string      `json:"category,omitempty"`
	Inputs   []SlotDef   `json:"inputs"`
	Outputs  []SlotDef   `json:"outputs"`
	Widgets  []WidgetDef `json:"widgets"`
}

// Catalog is the read-only registry of node classes, keyed by class name.
// It is safely shared across concurrent compile and execute calls.
type Catalog map[string]*ClassDef

// Class returns the definition for name, or nil.
func (c Catalog) Class(name string) *ClassDef {
	return c[name]
}

// Widget returns the widget declaration with the given name, or nil.
func (d *ClassDef) Widget(name string) *WidgetDef {
	for i := range d.Widgets {
		if d.Widgets[i].Name == name {
			return &d.Widgets[i]
		}
	}
	return nil
}

// DefaultWidgets synthesizes the initial widget value map for the class:
// the declared default, or for COMBO widgets the first option; INT 0,
// FLOAT 0.0, STRING "", BOOLEAN false otherwise. A COMBO widget with no
// default and no options has no derivable value and is omitted from the
// map; callers requiring full coverage must check for the gap and
// reject rather than guess.
func (d *ClassDef) DefaultWidgets() map[string]any {
	vals := make(map[string]any, len(d.Widgets))
	for _, w := range d.Widgets {
		if w.HasDefault {
			if v, err := w.Normalize(w.Default); err == nil {
				vals[w.Name] = v
			}
			continue
		}
		switch w.Kind {
		case WidgetCombo:
			if len(w.Options) > 0 {
				vals[w.Name] = w.Options[0]
			}
		case WidgetInt:
			vals[w.Name] = int64(0)
		case WidgetFloat:
			vals[w.Name] = float64(0)
		case WidgetString:
			vals[w.Name] = ""
		case WidgetBool:
			vals[w.Name] = false
		}
	}
	return vals
}

// Normalize coerces v to the widget's canonical Go representation
// (int64, float64, string, or bool) and checks the declared range or enum
// constraint. JSON decoding hands numbers over as float64; the coercion
// here keeps widget values comparable across codec round trips.
func (w *WidgetDef) Normalize(v any) (any, error) {
	switch w.Kind {
	case WidgetInt:
		n, ok := asInt(v)
		if !ok {
			return nil, fmt.Errorf("bridge: widget %q wants an integer, got %T", w.Name, v)
		}
		if err := w.checkRange(float64(n)); err != nil {
			return nil, err
		}
		return n, nil
	case WidgetFloat:
		f, ok := asFloat(v)
		if !ok {
			return nil, fmt.Errorf("bridge: widget %q wants a number, got %T", w.Name, v)
		}
		if err := w.checkRange(f); err != nil {
			return nil, err
		}
		return f, nil
	case WidgetString:
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("bridge: widget %q wants a string, got %T", w.Name, v)
		}
		return s, nil
	case WidgetBool:
		b, ok := v.(bool)
		if !ok {
			return nil, fmt.Errorf("bridge: widget %q wants a boolean, got %T", w.Name, v)
		}
		return b, nil
	case WidgetCombo:
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("bridge: widget %q wants one of its options, got %T", w.Name, v)
		}
		for _, opt := range w.Options {
			if opt == s {
				return s, nil
			}
		}
		return nil, fmt.Errorf("bridge: widget %q does not allow %q (options: %s)",
			w.Name, s, strings.Join(w.Options, ", "))
	}
	return nil, fmt.Errorf("bridge: widget %q has unknown kind %q", w.Name, w.Kind)
}

func (w *WidgetDef) checkRange(f float64) error {
	if w.Min != nil && f < *w.Min {
		return fmt.Errorf("bridge: widget %q value %v below minimum %v", w.Name, f, *w.Min)
	}
	if w.Max != nil && f > *w.Max {
		return fmt.Errorf("bridge: widget %q value %v above maximum %v", w.Name, f, *w.Max)
	}
	return nil
}

func asInt(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int64:
		return n, true
	case float64:
		if n == float64(int64(n)) {
			return int64(n), true
		}
	}
	return 0, false
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}
