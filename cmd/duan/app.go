package main

import (
	"context"
	"strings"

	"github.com/yaoapp/duan/api"
	"github.com/yaoapp/duan/cache"
	"github.com/yaoapp/duan/config"
	"github.com/yaoapp/duan/docstore"
	"github.com/yaoapp/duan/embed"
	"github.com/yaoapp/duan/model"
	"github.com/yaoapp/duan/repo"
	"github.com/yaoapp/duan/service"
	"github.com/yaoapp/duan/vector"
	"github.com/yaoapp/kun/log"
)

// queryCacheSize bounds the in-process query embedding cache when no
// Redis is configured.
const queryCacheSize = 512

// App bundles the wired components the commands operate on.
type App struct {
	Config    *config.Config
	Repo      *repo.Repo
	Stores    *docstore.Registry
	Embedders *embed.Registry
	Vectors   *vector.Registry
	Docs      *service.DocumentService
	Search    *service.VectorService
	Executor  *service.Executor
	API       *api.Server

	fs    *docstore.FS
	mongo *docstore.Mongo
}

// mustConfig loads and validates the configuration and applies the log
// level. Commands exit instead of limping along with a broken config.
func mustConfig() *config.Config {
	cfg, err := config.Load(cfgFile)
	exitOn(err)
	exitOn(cfg.Validate())
	log.SetLevel(logLevel(cfg.LogLevel))
	return cfg
}

// newApp connects the database, mounts the providers the configuration
// enables, wires the services and creates the default collection.
func newApp(ctx context.Context, cfg *config.Config) (*App, error) {
	app := &App{Config: cfg}

	r, err := repo.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	app.Repo = r

	if err := app.mount(ctx, cfg); err != nil {
		app.Close()
		return nil, err
	}

	queryCache, err := app.queryCache(ctx, cfg)
	if err != nil {
		app.Close()
		return nil, err
	}

	app.Docs = service.NewDocumentService(r, app.Stores, app.Embedders, app.Vectors)
	app.Search = service.NewVectorService(r, app.Docs, app.Embedders, app.Vectors, queryCache)
	app.Executor = service.NewExecutor(app.Search, cfg.BatchQueue, cfg.BatchWorkers, cfg.OperationTimeout)

	if err := app.Search.CreateDefault(ctx, cfg.DefaultVectorProvider()); err != nil {
		app.Close()
		return nil, err
	}

	app.API = api.NewServer(app.Docs, app.Search, app.Executor, api.Info{
		Version:            version,
		VectorProviders:    app.Vectors.IDs(),
		EmbeddingProviders: app.Embedders.IDs(),
		DocumentProviders:  app.Stores.IDs(),
		DefaultCollection: api.DefaultCollection{
			Name:     model.DefaultCollectionName,
			Model:    model.DefaultCollectionModel,
			Embedder: model.DefaultCollectionEmbedder,
			Size:     model.DefaultCollectionSize,
		},
	})

	app.Executor.Start()
	return app, nil
}

// mount builds the provider registries.
func (app *App) mount(ctx context.Context, cfg *config.Config) error {
	fs, err := docstore.NewFS(cfg.UploadPath)
	if err != nil {
		return err
	}
	app.fs = fs

	docstores := []docstore.Store{fs}
	if cfg.MongoURI != "" {
		mongo, err := docstore.NewMongo(ctx, cfg.MongoURI)
		if err != nil {
			return err
		}
		app.mongo = mongo
		docstores = append(docstores, mongo)
	}
	app.Stores = docstore.NewRegistry(docstores...)

	embedders := []embed.Embedder{embed.NewFastembed(cfg.FembedURL)}
	if cfg.OpenAIKey != "" {
		embedders = append(embedders, embed.NewOpenAI(cfg.OpenAIKey))
	}
	app.Embedders = embed.NewRegistry(embedders...)

	chromem, err := vector.NewChromem(cfg.ChromemPath)
	if err != nil {
		return err
	}
	stores := []vector.Store{chromem}
	if cfg.QdrantURL != "" {
		qdrant, err := vector.NewQdrant(cfg.QdrantURL, cfg.QdrantAPIKey)
		if err != nil {
			return err
		}
		stores = append(stores, qdrant)
	}
	if cfg.WeaviateURL != "" {
		weaviate, err := vector.NewWeaviate(cfg.WeaviateURL)
		if err != nil {
			return err
		}
		stores = append(stores, weaviate)
	}
	app.Vectors = vector.NewRegistry(stores...)
	return nil
}

// queryCache prefers Redis when one is configured.
func (app *App) queryCache(ctx context.Context, cfg *config.Config) (cache.Cache, error) {
	if cfg.RedisURL != "" {
		return cache.NewRedis(ctx, cfg.RedisURL)
	}
	return cache.NewLRU(queryCacheSize)
}

// Close releases what newApp opened, in reverse order.
func (app *App) Close() {
	if app.Executor != nil {
		app.Executor.Stop()
	}
	if app.mongo != nil {
		if err := app.mongo.Close(context.Background()); err != nil {
			log.Error("close mongo: %s", err.Error())
		}
	}
	if app.Repo != nil {
		if err := app.Repo.Close(); err != nil {
			log.Error("close database: %s", err.Error())
		}
	}
}

// logLevel maps the configured name to a kun level. Unknown names fall
// back to info.
func logLevel(name string) log.Level {
	switch strings.ToLower(name) {
	case "trace":
		return log.TraceLevel
	case "debug":
		return log.DebugLevel
	case "warn", "warning":
		return log.WarnLevel
	case "error":
		return log.ErrorLevel
	default:
		return log.InfoLevel
	}
}
