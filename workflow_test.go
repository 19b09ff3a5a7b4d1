package bridge

import (
	"testing"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleWorkflow() *Workflow {
	return &Workflow{
		ID:         "wf-1",
		Revision:   3,
		LastNodeID: 4,
		LastLinkID: 2,
		Nodes: []Node{
			{ID: 1, Class: "Loader", Widgets: map[string]any{"name": "a.safetensors"}},
			{ID: 4, Class: "Decode", Properties: json.RawMessage(`{"note":"x"}`)},
		},
		Links: []Link{
			{ID: 2, SourceID: 1, SourceSlot: 0, TargetID: 4, TargetSlot: 0, Type: "MODEL"},
		},
		Meta: json.RawMessage(`{"groups":[]}`),
	}
}

func TestWorkflowLookups(t *testing.T) {
	wf := sampleWorkflow()

	require.NotNil(t, wf.Node(4))
	assert.Nil(t, wf.Node(9))

	require.NotNil(t, wf.FindLink(1, 0, 4, 0))
	assert.Nil(t, wf.FindLink(1, 0, 4, 1))

	require.NotNil(t, wf.InputLink(4, 0))
	assert.Nil(t, wf.InputLink(1, 0))
}

func TestWorkflowMaxIDs(t *testing.T) {
	wf := sampleWorkflow()
	assert.Equal(t, 4, wf.MaxNodeID())
	assert.Equal(t, 2, wf.MaxLinkID())

	// Deleted-node ids must not be reissued: the high-water marks win
	// when they exceed anything still in the graph.
	wf.LastNodeID = 9
	wf.LastLinkID = 7
	assert.Equal(t, 9, wf.MaxNodeID())
	assert.Equal(t, 7, wf.MaxLinkID())
}

func TestWorkflowCloneIsDeep(t *testing.T) {
	wf := sampleWorkflow()
	c := wf.Clone()
	require.Equal(t, wf, c)

	c.Nodes[0].Widgets["name"] = "b.safetensors"
	c.Nodes[1].Properties[2] = 'X'
	c.Links[0].TargetSlot = 5
	c.Meta[1] = 'X'

	assert.Equal(t, "a.safetensors", wf.Nodes[0].Widgets["name"])
	assert.Equal(t, json.RawMessage(`{"note":"x"}`), wf.Nodes[1].Properties)
	assert.Equal(t, 0, wf.Links[0].TargetSlot)
	assert.Equal(t, json.RawMessage(`{"groups":[]}`), wf.Meta)
}

func TestTypesCompatible(t *testing.T) {
	assert.True(t, TypesCompatible("MODEL", "MODEL"))
	assert.True(t, TypesCompatible("*", "LATENT"))
	assert.True(t, TypesCompatible("IMAGE", "*"))
	assert.False(t, TypesCompatible("MODEL", "LATENT"))
}
