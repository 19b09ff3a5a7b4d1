package codec

import (
	"strings"
	"testing"

	json "github.com/goccy/go-json"
	"github.com/meikuraledutech/bridge"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fp(v float64) *float64 { return &v }

func testCatalog() bridge.Catalog {
	return bridge.Catalog{
		"CheckpointLoaderSimple": {
			Name:     "CheckpointLoaderSimple",
			Category: "loaders",
			Outputs: []bridge.SlotDef{
				{Name: "MODEL", Type: "MODEL"},
				{Name: "CLIP", Type: "CLIP"},
				{Name: "VAE", Type: "VAE"},
			},
			Widgets: []bridge.WidgetDef{
				{Name: "ckpt_name", Kind: bridge.WidgetCombo,
					Options: []string{"sd15.safetensors", "sdxl.safetensors"}},
			},
		},
		"CLIPTextEncode": {
			Name:     "CLIPTextEncode",
			Category: "conditioning",
			Inputs:   []bridge.SlotDef{{Name: "clip", Type: "CLIP", Required: true}},
			Outputs:  []bridge.SlotDef{{Name: "CONDITIONING", Type: "CONDITIONING"}},
			Widgets: []bridge.WidgetDef{
				{Name: "text", Kind: bridge.WidgetString, Default: "", HasDefault: true},
			},
		},
		"KSampler": {
			Name:     "KSampler",
			Category: "sampling",
			Inputs: []bridge.SlotDef{
				{Name: "model", Type: "MODEL", Required: true},
				{Name: "positive", Type: "CONDITIONING", Required: true},
				{Name: "latent_image", Type: "LATENT", Required: true},
			},
			Outputs: []bridge.SlotDef{{Name: "LATENT", Type: "LATENT"}},
			Widgets: []bridge.WidgetDef{
				{Name: "seed", Kind: bridge.WidgetInt, Default: 0, HasDefault: true, Min: fp(0)},
				{Name: "steps", Kind: bridge.WidgetInt, Default: 20, HasDefault: true, Min: fp(1), Max: fp(10000)},
			},
		},
		"EmptyLatentImage": {
			Name:     "EmptyLatentImage",
			Category: "latent",
			Outputs:  []bridge.SlotDef{{Name: "LATENT", Type: "LATENT"}},
			Widgets: []bridge.WidgetDef{
				{Name: "width", Kind: bridge.WidgetInt, Default: 512, HasDefault: true},
				{Name: "height", Kind: bridge.WidgetInt, Default: 512, HasDefault: true},
			},
		},
	}
}

func testWorkflow() *bridge.Workflow {
	return &bridge.Workflow{
		ID:         "wf-1",
		Revision:   2,
		LastNodeID: 2,
		LastLinkID: 1,
		Nodes: []bridge.Node{
			{ID: 1, Class: "CheckpointLoaderSimple",
				Widgets: map[string]any{"ckpt_name": "sd15.safetensors"}},
			{ID: 2, Class: "CLIPTextEncode",
				Widgets: map[string]any{"text": "a cat; 100% fluffy"}},
		},
		Links: []bridge.Link{
			{ID: 1, SourceID: 1, SourceSlot: 1, TargetID: 2, TargetSlot: 0, Type: "CLIP"},
		},
	}
}

func TestEncode(t *testing.T) {
	data, err := Encode(testWorkflow(), testCatalog())
	require.NoError(t, err)

	want := strings.Join([]string{
		"W:wf-1|r:2|ln:2|ll:1|v:1.0.0",
		"NODES:",
		"N1:CheckpointLoaderSimple|I:|O:MODEL:M:;CLIP:P:1;VAE:V:|W:sd15.safetensors",
		"N2:CLIPTextEncode|I:clip:P:1|O:CONDITIONING:C:|W:a cat%3B 100%25 fluffy",
		"LINKS:",
		"L1:1.1->2.0:P",
		`M:{"groups":[],"config":{},"extra":{}}`,
	}, "\n")
	assert.Equal(t, want, data)
}

func TestRoundTrip(t *testing.T) {
	cat := testCatalog()
	wf := testWorkflow()

	data, err := Encode(wf, cat)
	require.NoError(t, err)

	back, err := Decode(data, cat)
	require.NoError(t, err)

	assert.Equal(t, wf.ID, back.ID)
	assert.Equal(t, wf.Revision, back.Revision)
	assert.Equal(t, wf.Nodes, back.Nodes)
	assert.Equal(t, wf.Links, back.Links)

	// Decoding the canonical form and re-encoding must be a fixpoint.
	again, err := Encode(back, cat)
	require.NoError(t, err)
	assert.Equal(t, data, again)
}

func TestEncodeIsCanonical(t *testing.T) {
	cat := testCatalog()
	wf := testWorkflow()

	shuffled := wf.Clone()
	shuffled.Nodes[0], shuffled.Nodes[1] = shuffled.Nodes[1], shuffled.Nodes[0]

	a, err := Encode(wf, cat)
	require.NoError(t, err)
	b, err := Encode(shuffled, cat)
	require.NoError(t, err)
	assert.Equal(t, a, b, "node declaration order must not leak into the encoding")
}

func TestEncodePreservesOpaqueData(t *testing.T) {
	cat := testCatalog()
	wf := testWorkflow()
	wf.Nodes[0].Properties = json.RawMessage(`{"Node name for S&R":"CheckpointLoaderSimple"}`)
	wf.Meta = json.RawMessage(`{"groups":[{"title":"stage 1"}],"config":{},"extra":{}}`)

	data, err := Encode(wf, cat)
	require.NoError(t, err)
	assert.Contains(t, data, "|P:")
	assert.Contains(t, data, `M:{"groups":[{"title":"stage 1"}],"config":{},"extra":{}}`)

	back, err := Decode(data, cat)
	require.NoError(t, err)
	assert.Equal(t, wf.Nodes[0].Properties, back.Nodes[0].Properties)
	assert.Equal(t, wf.Meta, back.Meta)
}

func TestEncodeRejectsInvalidGraphs(t *testing.T) {
	cat := testCatalog()
	tests := []struct {
		name    string
		mutate  func(wf *bridge.Workflow)
		message string
	}{
		{"unknown class", func(wf *bridge.Workflow) {
			wf.Nodes[0].Class = "Mystery"
		}, "unknown class"},
		{"duplicate node id", func(wf *bridge.Workflow) {
			wf.Nodes[1].ID = 1
		}, "duplicate node id"},
		{"undeclared widget", func(wf *bridge.Workflow) {
			wf.Nodes[1].Widgets["volume"] = 11
		}, "undeclared widget"},
		{"missing widget value", func(wf *bridge.Workflow) {
			delete(wf.Nodes[1].Widgets, "text")
		}, "missing value"},
		{"combo value outside options", func(wf *bridge.Workflow) {
			wf.Nodes[0].Widgets["ckpt_name"] = "unknown.ckpt"
		}, "does not allow"},
		{"dangling link", func(wf *bridge.Workflow) {
			wf.Links[0].TargetID = 99
		}, "dangles"},
		{"slot out of range", func(wf *bridge.Workflow) {
			wf.Links[0].SourceSlot = 9
		}, "out of range"},
		{"type mismatch", func(wf *bridge.Workflow) {
			wf.Links[0].SourceSlot = 0 // MODEL into a CLIP input
		}, "does not feed"},
		{"occupied input slot", func(wf *bridge.Workflow) {
			wf.Nodes = append(wf.Nodes, bridge.Node{ID: 3, Class: "CheckpointLoaderSimple",
				Widgets: map[string]any{"ckpt_name": "sdxl.safetensors"}})
			wf.Links = append(wf.Links, bridge.Link{
				ID: 2, SourceID: 3, SourceSlot: 1, TargetID: 2, TargetSlot: 0, Type: "CLIP",
			})
		}, "more than one incoming link"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wf := testWorkflow()
			tt.mutate(wf)
			_, err := Encode(wf, cat)
			var ferr *bridge.FormatError
			require.ErrorAs(t, err, &ferr)
			assert.Contains(t, ferr.Message, tt.message)
		})
	}
}

func TestDecodeRejectsMalformedInput(t *testing.T) {
	cat := testCatalog()
	valid := strings.Join([]string{
		"W:wf-1|r:0|ln:1|ll:0|v:1.0.0",
		"NODES:",
		"N1:EmptyLatentImage|I:|O:LATENT:A:|W:512;512",
		"LINKS:",
		"M:{}",
	}, "\n")

	// Sanity check the fixture itself.
	_, err := Decode(valid, cat)
	require.NoError(t, err)

	tests := []struct {
		name    string
		data    string
		line    int
		message string
	}{
		{"empty input", "", 0, "empty interchange"},
		{"missing header", "NODES:\nM:{}", 1, "missing W: header"},
		{"unknown header field", "W:x|r:0|zz:9", 1, "unknown header field"},
		{"non-numeric revision", "W:x|r:abc", 1, "header field r"},
		{"unknown class", strings.Replace(valid, "EmptyLatentImage", "Mystery", 1), 3, "unknown class"},
		{"widget count mismatch", strings.Replace(valid, "W:512;512", "W:512", 1), 3, "declares 2 widgets, line has 1"},
		{"non-integer widget", strings.Replace(valid, "W:512;512", "W:512;tall", 1), 3, "not an integer"},
		{"unrecognized line", valid + "\nX:what", 6, "unrecognized line"},
		{"invalid metadata", strings.Replace(valid, "M:{}", "M:{broken", 1), 5, "not valid JSON"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(tt.data, cat)
			var ferr *bridge.FormatError
			require.ErrorAs(t, err, &ferr)
			assert.Equal(t, tt.line, ferr.Line)
			assert.Contains(t, ferr.Message, tt.message)
		})
	}
}

func TestDecodeReportsDuplicateIDs(t *testing.T) {
	cat := testCatalog()
	data := strings.Join([]string{
		"W:x|r:0|ln:2|ll:0|v:1.0.0",
		"NODES:",
		"N1:EmptyLatentImage|I:|O:LATENT:A:|W:512;512",
		"N1:EmptyLatentImage|I:|O:LATENT:A:|W:256;256",
		"LINKS:",
		"M:{}",
	}, "\n")
	_, err := Decode(data, cat)
	var ferr *bridge.FormatError
	require.ErrorAs(t, err, &ferr)
	assert.Equal(t, 4, ferr.Line)
	assert.Contains(t, ferr.Message, "first declared on line 3")
}

func TestWidgetEscaping(t *testing.T) {
	tests := []struct {
		in   any
		want string
	}{
		{"plain", "plain"},
		{"a;b", "a%3Bb"},
		{"a|b", "a%7Cb"},
		{"line1\nline2", "line1%0Aline2"},
		{"50%", "50%25"},
		{"100%; done", "100%25%3B done"},
		{"cr\r\nlf", "cr%0Alf"},
		{true, "True"},
		{int64(7), "7"},
		{3.5, "3.5"},
	}
	for _, tt := range tests {
		got := escapeWidget(tt.in)
		assert.Equal(t, tt.want, got)
		if s, ok := tt.in.(string); ok && !strings.ContainsRune(s, '\r') {
			assert.Equal(t, s, unescapeWidget(got))
		}
	}
}

func TestParseScalar(t *testing.T) {
	assert.Equal(t, true, ParseScalar("True"))
	assert.Equal(t, false, ParseScalar("False"))
	assert.Equal(t, int64(42), ParseScalar("42"))
	assert.Equal(t, 2.5, ParseScalar("2.5"))
	assert.Equal(t, "euler", ParseScalar("euler"))
}

func TestParseFragment(t *testing.T) {
	text := strings.Join([]string{
		"NODE_1 should load the checkpoint.",
		"NNODE_1:CheckpointLoaderSimple|W:sd15.safetensors",
		"N7:KSampler|I:model:M:None|O:LATENT:A:|W:42;25",
		"L:NODE_1.0->7.0",
		"LLINK_3:7.0 -> NODE_2.1:A",
	}, "\n")

	frag, leftover, err := ParseFragment(text)
	require.NoError(t, err)

	require.Len(t, frag.Nodes, 2)
	assert.Equal(t, "NODE_1", frag.Nodes[0].Ref)
	assert.Equal(t, "CheckpointLoaderSimple", frag.Nodes[0].Class)
	assert.Equal(t, []any{"sd15.safetensors"}, frag.Nodes[0].Widgets)
	assert.Equal(t, "7", frag.Nodes[1].Ref)
	assert.Equal(t, []any{int64(42), int64(25)}, frag.Nodes[1].Widgets)

	require.Len(t, frag.Links, 2)
	assert.Equal(t, FragmentLink{Source: "NODE_1", SourceSlot: 0, Target: "7", TargetSlot: 0}, frag.Links[0])
	assert.Equal(t, FragmentLink{Source: "7", SourceSlot: 0, Target: "NODE_2", TargetSlot: 1}, frag.Links[1])

	require.Len(t, leftover, 1)
	assert.Equal(t, "NODE_1 should load the checkpoint.", leftover[0])
}

func TestParseFragmentRejectsClasslessNode(t *testing.T) {
	_, _, err := ParseFragment("N5:|W:1")
	var ferr *bridge.FormatError
	require.ErrorAs(t, err, &ferr)
	assert.Contains(t, ferr.Message, "no class")
}
