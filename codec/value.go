// Package codec converts workflows to and from the compact interchange
// form: a line-oriented text encoding that keeps the full logical graph
// (nodes, links, widget values, opaque metadata) while dropping layout
// and presentation fields. Encoding is canonical: the same logical
// workflow always yields byte-identical output.
package codec

import (
	"strconv"
	"strings"
)

// Version is the interchange format version emitted in the header.
const Version = "1.0.0"

// TypeShorthand maps wire type names to their compact single- or
// two-letter encoding. Within the interchange form unknown types pass
// through unmapped.
var TypeShorthand = map[string]string{
	"MODEL": "M", "IMAGE": "G", "CONDITIONING": "C", "LATENT": "A",
	"VAE": "V", "CLIP": "P", "STRING": "S", "INT": "I", "FLOAT": "F",
	"BOOLEAN": "B", "MASK": "K", "CONTROL_NET": "T", "LIST": "L",
	"CLIP_VISION": "CV", "CLIP_VISION_OUTPUT": "CO", "VOXEL": "VX", "MESH": "MS",
	"*": "*",
}

var typeLonghand = func() map[string]string {
	m := make(map[string]string, len(TypeShorthand))
	for k, v := range TypeShorthand {
		m[v] = k
	}
	return m
}()

func shortType(t string) string {
	if s, ok := TypeShorthand[t]; ok {
		return s
	}
	return t
}

func longType(t string) string {
	if l, ok := typeLonghand[t]; ok {
		return l
	}
	return t
}

// escapeWidget makes a widget value safe for the single-line, |-and-;
// delimited node record. The % escape must run first.
func escapeWidget(v any) string {
	s := formatScalar(v)
	s = strings.ReplaceAll(s, "%", "%25")
	s = strings.ReplaceAll(s, ";", "%3B")
	s = strings.ReplaceAll(s, "\n", "%0A")
	s = strings.ReplaceAll(s, "\r", "")
	s = strings.ReplaceAll(s, "|", "%7C")
	return s
}

// unescapeWidget reverses escapeWidget; the % escape must run last.
func unescapeWidget(s string) string {
	s = strings.ReplaceAll(s, "%7C", "|")
	s = strings.ReplaceAll(s, "%3B", ";")
	s = strings.ReplaceAll(s, "%0A", "\n")
	s = strings.ReplaceAll(s, "%25", "%")
	return s
}

// formatScalar renders a widget value for the interchange form.
func formatScalar(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case bool:
		if x {
			return "True"
		}
		return "False"
	case string:
		return x
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64)
	}
	return ""
}

// ParseScalar sniffs a scalar from its text form: True/False, integer,
// float, then string. Callers holding a widget declaration should prefer
// the declared kind over sniffing.
func ParseScalar(s string) any {
	switch s {
	case "True":
		return true
	case "False":
		return false
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return s
}
