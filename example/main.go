package main

import (
	"fmt"
	"log"

	json "github.com/goccy/go-json"
	"github.com/meikuraledutech/bridge"
	"github.com/meikuraledutech/bridge/catalog"
	"github.com/meikuraledutech/bridge/codec"
	"github.com/meikuraledutech/bridge/compiler"
	"github.com/meikuraledutech/bridge/executor"
)

// objectInfo is a trimmed node definition dump covering a classic
// text-to-image chain. A live server would fetch this from ComfyUI's
// /object_info endpoint instead.
const objectInfo = `{
  "CheckpointLoaderSimple": {
    "input": {"required": {"ckpt_name": [["sd15.safetensors", "sdxl.safetensors"]]}},
    "output": ["MODEL", "CLIP", "VAE"],
    "output_name": ["MODEL", "CLIP", "VAE"],
    "category": "loaders"
  },
  "CLIPTextEncode": {
    "input": {"required": {
      "text": ["STRING", {"multiline": true, "default": ""}],
      "clip": ["CLIP"]
    }},
    "output": ["CONDITIONING"],
    "category": "conditioning"
  },
  "EmptyLatentImage": {
    "input": {"required": {
      "width": ["INT", {"default": 512, "min": 16, "max": 16384}],
      "height": ["INT", {"default": 512, "min": 16, "max": 16384}],
      "batch_size": ["INT", {"default": 1, "min": 1, "max": 4096}]
    }},
    "output": ["LATENT"],
    "category": "latent"
  },
  "KSampler": {
    "input": {"required": {
      "model": ["MODEL"],
      "seed": ["INT", {"default": 0, "min": 0}],
      "steps": ["INT", {"default": 20, "min": 1, "max": 10000}],
      "cfg": ["FLOAT", {"default": 8.0, "min": 0.0, "max": 100.0}],
      "sampler_name": [["euler", "euler_ancestral", "dpmpp_2m"]],
      "scheduler": [["normal", "karras", "exponential"]],
      "positive": ["CONDITIONING"],
      "negative": ["CONDITIONING"],
      "latent_image": ["LATENT"],
      "denoise": ["FLOAT", {"default": 1.0, "min": 0.0, "max": 1.0}]
    }},
    "output": ["LATENT"],
    "category": "sampling"
  },
  "VAEDecode": {
    "input": {"required": {"samples": ["LATENT"], "vae": ["VAE"]}},
    "output": ["IMAGE"],
    "category": "latent"
  },
  "SaveImage": {
    "input": {"required": {
      "images": ["IMAGE"],
      "filename_prefix": ["STRING", {"default": "ComfyUI"}]
    }},
    "output": [],
    "category": "image"
  }
}`

// brief builds the whole chain from scratch. NODE_<k> placeholders are
// resolved to real ids by the compiler in order of first appearance.
const brief = `
Build a simple text-to-image graph.

ADD NODE_1 CheckpointLoaderSimple ckpt_name=sd15.safetensors
ADD NODE_2 CLIPTextEncode text="a misty forest at dawn"
ADD NODE_3 CLIPTextEncode text="blurry, low quality"
ADD NODE_4 EmptyLatentImage width=768; height=512
ADD NODE_5 KSampler seed=42; steps=25; sampler_name=dpmpp_2m
ADD NODE_6 VAEDecode
ADD NODE_7 SaveImage filename_prefix=forest

CONNECT NODE_1.0 -> NODE_5.0
CONNECT NODE_1.1 -> NODE_2.0
CONNECT NODE_1.1 -> NODE_3.0
CONNECT NODE_2.0 -> NODE_5.1
CONNECT NODE_3.0 -> NODE_5.2
CONNECT NODE_4.0 -> NODE_5.3
CONNECT NODE_5.0 -> NODE_6.0
CONNECT NODE_1.2 -> NODE_6.1
CONNECT NODE_6.0 -> NODE_7.0
`

func main() {
	cat, err := catalog.Parse([]byte(objectInfo))
	if err != nil {
		log.Fatalf("catalog: %v", err)
	}

	// ── Inspect the catalog ───────────────────────────────────────────
	fmt.Println(catalog.Signatures(cat, "KSampler"))

	// ── Compile the brief against an empty workflow ───────────────────
	wf := &bridge.Workflow{ID: "demo"}
	plan, err := compiler.Compile(brief, wf, cat)
	if err != nil {
		log.Fatalf("compile: %v", err)
	}
	fmt.Println(plan.Summary)
	printJSON(plan.Ops)

	// ── Execute: all or nothing, wf itself stays untouched ────────────
	next, err := executor.Execute(plan.Ops, wf, cat)
	if err != nil {
		log.Fatalf("execute: %v", err)
	}

	// ── Encode to the interchange form ────────────────────────────────
	data, err := codec.Encode(next, cat)
	if err != nil {
		log.Fatalf("encode: %v", err)
	}
	fmt.Println("\ninterchange form:")
	fmt.Println(data)

	// ── A follow-up edit on the decoded graph ─────────────────────────
	decoded, err := codec.Decode(data, cat)
	if err != nil {
		log.Fatalf("decode: %v", err)
	}
	plan2, err := compiler.Compile("SET KSampler.steps = 40", decoded, cat)
	if err != nil {
		log.Fatalf("compile: %v", err)
	}
	final, err := executor.Execute(plan2.Ops, decoded, cat)
	if err != nil {
		log.Fatalf("execute: %v", err)
	}
	data2, err := codec.Encode(final, cat)
	if err != nil {
		log.Fatalf("encode: %v", err)
	}
	fmt.Printf("\nafter %q (revision %d):\n", plan2.Summary, final.Revision)
	fmt.Println(data2)
}

func printJSON(v any) {
	out, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(out))
}
