package main

import (
	"fmt"
	"os"

	"dario.cat/mergo"
	json "github.com/goccy/go-json"
)

// Config controls the server process. Values loaded from the config file
// are merged over the defaults, so a partial file is fine.
type Config struct {
	ComfyUI struct {
		URL string `json:"url"`
	} `json:"comfyui"`
	Server struct {
		Listen string `json:"listen"`
	} `json:"server"`
	Database struct {
		URL string `json:"url"`
	} `json:"database"`
	Catalog struct {
		// File points at a static object_info dump. When set it replaces
		// the live ComfyUI fetch entirely.
		File string `json:"file"`
	} `json:"catalog"`
}

func defaultConfig() Config {
	var cfg Config
	cfg.ComfyUI.URL = "http://127.0.0.1:8188"
	cfg.Server.Listen = ":3000"
	return cfg
}

// loadConfig reads path and merges it over the defaults. A missing file
// is written out with the defaults so there is always something to edit.
func loadConfig(path string) (Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		out, _ := json.MarshalIndent(cfg, "", "  ")
		if werr := os.WriteFile(path, out, 0o644); werr != nil {
			return cfg, fmt.Errorf("bridge: write default config: %w", werr)
		}
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("bridge: read config: %w", err)
	}

	var loaded Config
	if err := json.Unmarshal(data, &loaded); err != nil {
		return cfg, fmt.Errorf("bridge: parse config %s: %w", path, err)
	}
	if err := mergo.Merge(&cfg, loaded, mergo.WithOverride); err != nil {
		return cfg, fmt.Errorf("bridge: merge config: %w", err)
	}
	return cfg, nil
}
