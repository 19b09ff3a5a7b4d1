package main

import (
	"context"
	"log"
	"os"

	"github.com/gofiber/fiber/v3"
	json "github.com/goccy/go-json"
	"github.com/hashicorp/go-hclog"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/meikuraledutech/bridge"
	"github.com/meikuraledutech/bridge/catalog"
	"github.com/meikuraledutech/bridge/codec"
	"github.com/meikuraledutech/bridge/compiler"
	"github.com/meikuraledutech/bridge/executor"
	"github.com/meikuraledutech/bridge/postgres"
)

// catalogSource yields the node definition catalog the pipeline validates
// against. Either a live ComfyUI client or a static file.
type catalogSource interface {
	Catalog(ctx context.Context) (bridge.Catalog, error)
}

// staticCatalog serves one catalog parsed at startup.
type staticCatalog struct{ cat bridge.Catalog }

func (s staticCatalog) Catalog(context.Context) (bridge.Catalog, error) { return s.cat, nil }

func main() {
	logger := hclog.New(&hclog.LoggerOptions{Name: "bridge", Level: hclog.Info})

	path := os.Getenv("BRIDGE_CONFIG")
	if path == "" {
		path = "config.json"
	}
	cfg, err := loadConfig(path)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	var source catalogSource
	if cfg.Catalog.File != "" {
		cat, err := catalog.Load(cfg.Catalog.File)
		if err != nil {
			log.Fatalf("catalog: %v", err)
		}
		logger.Info("loaded static catalog", "file", cfg.Catalog.File, "classes", len(cat))
		source = staticCatalog{cat: cat}
	} else {
		source = catalog.NewClient(cfg.ComfyUI.URL, logger)
		logger.Info("using live catalog", "url", cfg.ComfyUI.URL)
	}

	var store bridge.Store
	if cfg.Database.URL != "" {
		pool, err := pgxpool.New(context.Background(), cfg.Database.URL)
		if err != nil {
			log.Fatalf("connect: %v", err)
		}
		defer pool.Close()
		store = postgres.New(pool)
		logger.Info("workflow store enabled")
	}

	app := fiber.New(fiber.Config{
		JSONEncoder: json.Marshal,
		JSONDecoder: json.Unmarshal,
	})

	// ── Pipeline ──────────────────────────────────────────────────────
	app.Post("/decode", func(c fiber.Ctx) error {
		var req struct {
			Data string `json:"data"`
		}
		if err := c.Bind().JSON(&req); err != nil {
			return c.Status(400).JSON(fiber.Map{"error": "invalid body"})
		}
		cat, err := source.Catalog(c.Context())
		if err != nil {
			return respondError(c, err)
		}
		wf, err := codec.Decode(req.Data, cat)
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(wf)
	})

	app.Post("/encode", func(c fiber.Ctx) error {
		var wf bridge.Workflow
		if err := c.Bind().JSON(&wf); err != nil {
			return c.Status(400).JSON(fiber.Map{"error": "invalid body"})
		}
		cat, err := source.Catalog(c.Context())
		if err != nil {
			return respondError(c, err)
		}
		data, err := codec.Encode(&wf, cat)
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(fiber.Map{"data": data})
	})

	app.Post("/compile", func(c fiber.Ctx) error {
		var req struct {
			Brief    string `json:"brief"`
			Workflow string `json:"workflow"`
		}
		if err := c.Bind().JSON(&req); err != nil {
			return c.Status(400).JSON(fiber.Map{"error": "invalid body"})
		}
		cat, err := source.Catalog(c.Context())
		if err != nil {
			return respondError(c, err)
		}
		wf, err := codec.Decode(req.Workflow, cat)
		if err != nil {
			return respondError(c, err)
		}
		plan, err := compiler.Compile(req.Brief, wf, cat)
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(plan)
	})

	app.Post("/execute", func(c fiber.Ctx) error {
		var req struct {
			Operations bridge.OperationList `json:"operations"`
			Workflow   string               `json:"workflow"`
		}
		if err := c.Bind().JSON(&req); err != nil {
			return c.Status(400).JSON(fiber.Map{"error": "invalid body"})
		}
		cat, err := source.Catalog(c.Context())
		if err != nil {
			return respondError(c, err)
		}
		wf, err := codec.Decode(req.Workflow, cat)
		if err != nil {
			return respondError(c, err)
		}
		next, err := executor.Execute(req.Operations, wf, cat)
		if err != nil {
			return respondError(c, err)
		}
		data, err := codec.Encode(next, cat)
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(fiber.Map{"workflow": data, "revision": next.Revision})
	})

	app.Post("/apply", func(c fiber.Ctx) error {
		var req struct {
			Brief    string `json:"brief"`
			Workflow string `json:"workflow"`
		}
		if err := c.Bind().JSON(&req); err != nil {
			return c.Status(400).JSON(fiber.Map{"error": "invalid body"})
		}
		cat, err := source.Catalog(c.Context())
		if err != nil {
			return respondError(c, err)
		}
		wf, err := codec.Decode(req.Workflow, cat)
		if err != nil {
			return respondError(c, err)
		}
		plan, err := compiler.Compile(req.Brief, wf, cat)
		if err != nil {
			return respondError(c, err)
		}
		next, err := executor.Execute(plan.Ops, wf, cat)
		if err != nil {
			return respondError(c, err)
		}
		data, err := codec.Encode(next, cat)
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(fiber.Map{
			"workflow":   data,
			"operations": plan.Ops,
			"summary":    plan.Summary,
			"revision":   next.Revision,
		})
	})

	// ── Catalog ───────────────────────────────────────────────────────
	app.Get("/catalog/classes", func(c fiber.Ctx) error {
		cat, err := source.Catalog(c.Context())
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(catalog.Search(cat, c.Query("q")))
	})

	app.Get("/catalog/signatures", func(c fiber.Ctx) error {
		cat, err := source.Catalog(c.Context())
		if err != nil {
			return respondError(c, err)
		}
		return c.SendString(catalog.Signatures(cat, c.Query("q")))
	})

	app.Get("/catalog/models", func(c fiber.Ctx) error {
		cat, err := source.Catalog(c.Context())
		if err != nil {
			return respondError(c, err)
		}
		return c.SendString(catalog.Models(cat).String())
	})

	app.Get("/catalog/categories", func(c fiber.Ctx) error {
		cat, err := source.Catalog(c.Context())
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(catalog.Categories(cat))
	})

	// ── Workflow store ────────────────────────────────────────────────
	if store != nil {
		app.Post("/schema", func(c fiber.Ctx) error {
			if err := store.CreateSchema(c.Context()); err != nil {
				return c.Status(500).JSON(fiber.Map{"error": err.Error()})
			}
			return c.JSON(fiber.Map{"message": "schema created"})
		})

		app.Delete("/schema", func(c fiber.Ctx) error {
			if err := store.DropSchema(c.Context()); err != nil {
				return c.Status(500).JSON(fiber.Map{"error": err.Error()})
			}
			return c.JSON(fiber.Map{"message": "schema dropped"})
		})

		app.Post("/workflows", func(c fiber.Ctx) error {
			var req struct {
				Name string `json:"name"`
				Data string `json:"data"`
			}
			if err := c.Bind().JSON(&req); err != nil {
				return c.Status(400).JSON(fiber.Map{"error": "invalid body"})
			}
			if req.Name == "" {
				return c.Status(400).JSON(fiber.Map{"error": "name is required"})
			}
			cat, err := source.Catalog(c.Context())
			if err != nil {
				return respondError(c, err)
			}
			wf, err := codec.Decode(req.Data, cat)
			if err != nil {
				return respondError(c, err)
			}
			// Store the canonical form, not the client's byte layout.
			data, err := codec.Encode(wf, cat)
			if err != nil {
				return respondError(c, err)
			}
			rec := bridge.WorkflowRecord{Name: req.Name, Data: data}
			id, err := store.SaveWorkflow(c.Context(), &rec)
			if err != nil {
				return c.Status(500).JSON(fiber.Map{"error": err.Error()})
			}
			return c.Status(201).JSON(fiber.Map{"id": id, "revision": rec.Revision})
		})

		app.Get("/workflows", func(c fiber.Ctx) error {
			recs, err := store.ListWorkflows(c.Context())
			if err != nil {
				return c.Status(500).JSON(fiber.Map{"error": err.Error()})
			}
			return c.JSON(recs)
		})

		app.Get("/workflows/:id", func(c fiber.Ctx) error {
			rec, err := store.GetWorkflow(c.Context(), c.Params("id"))
			if err != nil {
				return c.Status(500).JSON(fiber.Map{"error": err.Error()})
			}
			if rec == nil {
				return c.Status(404).JSON(fiber.Map{"error": "workflow not found"})
			}
			return c.JSON(rec)
		})

		app.Get("/workflows/latest/:name", func(c fiber.Ctx) error {
			rec, err := store.LatestWorkflow(c.Context(), c.Params("name"))
			if err != nil {
				return c.Status(500).JSON(fiber.Map{"error": err.Error()})
			}
			if rec == nil {
				return c.Status(404).JSON(fiber.Map{"error": "workflow not found"})
			}
			return c.JSON(rec)
		})

		app.Get("/workflows/revisions/:name", func(c fiber.Ctx) error {
			recs, err := store.ListRevisions(c.Context(), c.Params("name"))
			if err != nil {
				return c.Status(500).JSON(fiber.Map{"error": err.Error()})
			}
			return c.JSON(recs)
		})

		app.Delete("/workflows/:id", func(c fiber.Ctx) error {
			if err := store.DeleteWorkflow(c.Context(), c.Params("id")); err != nil {
				return c.Status(500).JSON(fiber.Map{"error": err.Error()})
			}
			return c.SendStatus(204)
		})
	}

	logger.Info("listening", "addr", cfg.Server.Listen)
	log.Fatal(app.Listen(cfg.Server.Listen))
}

// respondError maps pipeline errors onto HTTP statuses. Format problems
// are the client's fault, compile and execute rejections carry enough
// structure to point at the failing operation, and catalog trouble means
// the upstream ComfyUI instance is unreachable or broken.
func respondError(c fiber.Ctx, err error) error {
	switch e := err.(type) {
	case *bridge.FormatError:
		return c.Status(400).JSON(fiber.Map{"error": e.Message, "line": e.Line})
	case *bridge.CompileError:
		return c.Status(422).JSON(fiber.Map{
			"error": e.Message, "index": e.Index, "field": e.Field, "rule": e.Rule,
		})
	case *bridge.ExecutionError:
		return c.Status(422).JSON(fiber.Map{
			"error": e.Message, "index": e.Index, "kind": e.Kind,
		})
	case *bridge.CatalogError:
		return c.Status(503).JSON(fiber.Map{"error": e.Error()})
	default:
		return c.Status(500).JSON(fiber.Map{"error": err.Error()})
	}
}
