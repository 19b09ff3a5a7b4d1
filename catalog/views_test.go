package catalog

import (
	"strings"
	"testing"

	"github.com/meikuraledutech/bridge"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func viewCatalog() bridge.Catalog {
	return bridge.Catalog{
		"KSampler": {
			Name:     "KSampler",
			Category: "sampling",
			Inputs: []bridge.SlotDef{
				{Name: "model", Type: "MODEL", Required: true},
				{Name: "mask", Type: "MASK"},
			},
			Outputs: []bridge.SlotDef{{Name: "LATENT", Type: "LATENT"}},
			Widgets: []bridge.WidgetDef{
				{Name: "steps", Kind: bridge.WidgetInt},
			},
		},
		"KSamplerAdvanced": {
			Name:     "KSamplerAdvanced",
			Category: "sampling",
		},
		"CheckpointLoaderSimple": {
			Name:     "CheckpointLoaderSimple",
			Category: "loaders",
			Widgets: []bridge.WidgetDef{
				{Name: "ckpt_name", Kind: bridge.WidgetCombo,
					Options: []string{"sd15.safetensors", "sdxl.safetensors", "None"}},
			},
		},
		"LoraLoader": {
			Name:     "LoraLoader",
			Category: "loaders/lora",
			Widgets: []bridge.WidgetDef{
				{Name: "lora_name", Kind: bridge.WidgetCombo,
					Options: []string{"detail.safetensors", ""}},
			},
		},
		"CLIPLoader": {
			Name:     "CLIPLoader",
			Category: "advanced/loaders",
			Widgets: []bridge.WidgetDef{
				{Name: "clip_name1", Kind: bridge.WidgetCombo,
					Options: []string{"clip_l.safetensors"}},
			},
		},
		"MaskToImage": {
			Name:     "MaskToImage",
			Category: "_internal",
		},
	}
}

func TestSearchPrecedence(t *testing.T) {
	cat := viewCatalog()

	// Exact name beats every other match even though the term is a
	// substring of other classes too.
	got := Search(cat, "KSampler")
	require.NotEmpty(t, got)
	assert.Equal(t, "KSampler", got[0].Name)

	// Case-insensitive exact match next.
	got = Search(cat, "ksampleradvanced")
	require.Len(t, got, 1)
	assert.Equal(t, "KSamplerAdvanced", got[0].Name)

	// Substring matches come back sorted by name.
	got = Search(cat, "loader")
	names := make([]string, len(got))
	for i, d := range got {
		names[i] = d.Name
	}
	assert.Equal(t, []string{"CLIPLoader", "CheckpointLoaderSimple", "LoraLoader"}, names)
}

func TestSearchMultipleTerms(t *testing.T) {
	cat := viewCatalog()
	got := Search(cat, "KSampler, CLIPLoader")
	require.Len(t, got, 2)
	assert.Equal(t, "KSampler", got[0].Name)
	assert.Equal(t, "CLIPLoader", got[1].Name)
}

func TestSearchEmptyQueryReturnsAll(t *testing.T) {
	cat := viewCatalog()
	got := Search(cat, "")
	assert.Len(t, got, len(cat))
	for i := 1; i < len(got); i++ {
		assert.Less(t, got[i-1].Name, got[i].Name)
	}
}

func TestSignatures(t *testing.T) {
	cat := viewCatalog()
	out := Signatures(cat, "KSampler")
	lines := strings.Split(out, "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "@KSampler +model:M ?mask:K %steps:INT -A", lines[0])
	assert.Equal(t, "@KSamplerAdvanced", lines[1])
}

func TestSignaturesFilterByCategory(t *testing.T) {
	cat := viewCatalog()
	out := Signatures(cat, "sampling")
	assert.Contains(t, out, "@KSampler")
	assert.NotContains(t, out, "@LoraLoader")
}

func TestModels(t *testing.T) {
	cat := viewCatalog()
	idx := Models(cat)

	// "" and "None" placeholder entries are dropped.
	assert.Equal(t, []string{"sd15.safetensors", "sdxl.safetensors"}, idx.Checkpoints)
	assert.Equal(t, []string{"detail.safetensors"}, idx.LoRAs)
	assert.Equal(t, []string{"clip_l.safetensors"}, idx.CLIPs)
	assert.Empty(t, idx.UNets)
	assert.Empty(t, idx.VAEs)

	text := idx.String()
	assert.True(t, strings.HasPrefix(text, "=== USER MODEL INDEX ==="))
	assert.Contains(t, text, "[CHECKPOINTS (2)]")
	assert.Contains(t, text, "[LORAS (1)]")
}

func TestCategories(t *testing.T) {
	cat := viewCatalog()
	got := Categories(cat)
	assert.Equal(t, []string{"advanced", "loaders", "sampling"}, got,
		"roots only, underscore-prefixed internals skipped")
}
