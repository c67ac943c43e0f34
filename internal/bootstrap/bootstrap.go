// Package bootstrap wires configuration into adapters and core services.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/google/uuid"

	"github.com/custodia-labs/librarian/internal/adapters/driven/catalog/calibre"
	"github.com/custodia-labs/librarian/internal/adapters/driven/catalog/manifest"
	convollama "github.com/custodia-labs/librarian/internal/adapters/driven/conversation/ollama"
	"github.com/custodia-labs/librarian/internal/adapters/driven/embedding/hashing"
	"github.com/custodia-labs/librarian/internal/adapters/driven/embedding/ollama"
	"github.com/custodia-labs/librarian/internal/adapters/driven/embedding/openai"
	"github.com/custodia-labs/librarian/internal/adapters/driven/storage/sqlite"
	"github.com/custodia-labs/librarian/internal/adapters/driven/vectorindex"
	"github.com/custodia-labs/librarian/internal/core/domain"
	"github.com/custodia-labs/librarian/internal/core/ports/driven"
	"github.com/custodia-labs/librarian/internal/core/services"
	"github.com/custodia-labs/librarian/internal/extractors"
	"github.com/custodia-labs/librarian/internal/extractors/epub"
	"github.com/custodia-labs/librarian/internal/extractors/html"
	"github.com/custodia-labs/librarian/internal/extractors/markdown"
	"github.com/custodia-labs/librarian/internal/extractors/plaintext"
	"github.com/custodia-labs/librarian/internal/logger"
	"github.com/custodia-labs/librarian/internal/postprocessors/chunker"
	"github.com/custodia-labs/librarian/internal/telemetry"
)

// Options adjust how the artifacts are opened.
type Options struct {
	// ResetIndex starts a fresh vector index when the existing one is
	// missing, corrupt or belongs to another store. Indexed books are
	// forgotten so the next run rebuilds them.
	ResetIndex bool
}

// App holds the wired engine.
type App struct {
	Config domain.Config

	Store        *sqlite.Store
	Index        *vectorindex.Index
	Catalog      driven.Catalog
	Embedder     driven.EmbeddingService
	Conversation driven.ConversationService // nil when not configured
	Metrics      *telemetry.Metrics

	Indexer *services.Indexer
	Search  *services.SearchService
	Library *services.LibraryService
	Ask     *services.AskService
	Watcher *services.Watcher
}

// Open wires the engine from cfg. The store and the vector index are
// checked to belong together before any service is built.
func Open(ctx context.Context, cfg domain.Config, opts Options) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	metrics, err := telemetry.New()
	if err != nil {
		logger.Warn("telemetry disabled: %v", err)
		metrics = nil
	}

	store, err := sqlite.NewStore(cfg.Library.DataDir)
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}

	app := &App{Config: cfg, Store: store, Metrics: metrics}
	if err := app.wire(ctx, opts); err != nil {
		_ = app.Close()
		return nil, err
	}
	return app, nil
}

func (a *App) wire(ctx context.Context, opts Options) error {
	cfg := a.Config

	index, err := openIndex(ctx, cfg, a.Store, opts.ResetIndex)
	if err != nil {
		return err
	}
	a.Index = index

	raw, err := newEmbedder(cfg.Embedding)
	if err != nil {
		return err
	}
	if raw.Dimensions() != index.Dimensions() {
		return fmt.Errorf("%w: embedder produces %d dimensions, index holds %d; rebuild with --reset-index --full",
			domain.ErrArtifactMismatch, raw.Dimensions(), index.Dimensions())
	}
	a.Embedder = services.NewEmbeddingGateway(raw, services.GatewayConfigFrom(cfg.Embedding), a.Metrics)

	registry := extractors.NewRegistry(epub.New(), html.New(), markdown.New(), plaintext.New())
	a.Catalog = newLazyCatalog(cfg.Library, registry)

	chunks := chunker.New(
		chunker.WithWindow(cfg.Chunking.WindowWords),
		chunker.WithOverlap(cfg.Chunking.OverlapWords),
	)

	a.Indexer = services.NewIndexer(services.IndexerDeps{
		Catalog:    a.Catalog,
		Extractors: registry,
		Chunker:    chunks,
		Embedder:   a.Embedder,
		Index:      index,
		Books:      a.Store.BookStore(),
		Chunks:     a.Store.ChunkStore(),
		Progress:   a.Store.ProgressStore(),
		Metrics:    a.Metrics,
	}, services.IndexerConfigFrom(cfg))

	a.Search = services.NewSearchService(a.Embedder, index, a.Store.ChunkStore(), cfg.Search, a.Metrics)

	a.Library = services.NewLibraryService(services.LibraryDeps{
		Books:     a.Store.BookStore(),
		Chunks:    a.Store.ChunkStore(),
		Progress:  a.Store.ProgressStore(),
		Index:     index,
		Embedder:  a.Embedder,
		Guard:     a.Indexer,
		IndexPath: cfg.Library.IndexPath(),
	})

	if cfg.Conversation.IsConfigured() {
		conv, err := convollama.NewConversationService(convollama.Config{
			BaseURL: cfg.Conversation.BaseURL,
			Model:   cfg.Conversation.Model,
			Timeout: cfg.Conversation.Timeout(),
		})
		if err != nil {
			return fmt.Errorf("configuring conversation: %w", err)
		}
		a.Conversation = conv
	}
	a.Ask = services.NewAskService(a.Search, a.Conversation)

	a.Watcher = services.NewWatcher(a.Indexer, watchedFiles(cfg.Library), services.DefaultDebounce)
	return nil
}

// Close releases the catalog, the conversation client and the store.
// The vector index is saved by the indexer as it commits.
func (a *App) Close() error {
	var errs []error
	if a.Catalog != nil {
		errs = append(errs, a.Catalog.Close())
	}
	if a.Conversation != nil {
		errs = append(errs, a.Conversation.Close())
	}
	if a.Store != nil {
		errs = append(errs, a.Store.Close())
	}
	return errors.Join(errs...)
}

// openIndex loads the vector index and checks it against the store's
// pairing ID. A store without books gets a fresh index; a missing index
// next to indexed books is an error unless reset is set.
func openIndex(ctx context.Context, cfg domain.Config, store *sqlite.Store, reset bool) (*vectorindex.Index, error) {
	progress := store.ProgressStore()
	ivf := vectorindex.WithIVF(cfg.Index.IVFThreshold, cfg.Index.IVFProbes)
	path := cfg.Library.IndexPath()

	stored, err := progress.PairingID(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading pairing id: %w", err)
	}

	index, err := vectorindex.Load(path, ivf)
	switch {
	case err == nil && stored == "":
		// An index without a paired store cannot be trusted.
		err = fmt.Errorf("%w: %s has no paired store", domain.ErrArtifactMismatch, path)
	case err == nil && index.PairingID() != stored:
		err = fmt.Errorf("%w: index %s, store %s", domain.ErrArtifactMismatch, index.PairingID(), stored)
	case err == nil && index.Dimensions() != cfg.Embedding.Dimensions:
		err = fmt.Errorf("%w: index holds %d dimensions, configuration asks for %d",
			domain.ErrArtifactMismatch, index.Dimensions(), cfg.Embedding.Dimensions)
	case domain.IsIndexError(err, domain.IndexMissing):
		empty, emptyErr := storeEmpty(ctx, store)
		if emptyErr != nil {
			return nil, emptyErr
		}
		if stored == "" || empty {
			return newIndex(ctx, cfg, store, path, ivf)
		}
	}
	if err == nil {
		return index, nil
	}
	if !reset {
		return nil, err
	}

	logger.Warn("resetting vector index: %v", err)
	if err := forgetBooks(ctx, store); err != nil {
		return nil, err
	}
	return newIndex(ctx, cfg, store, path, ivf)
}

func storeEmpty(ctx context.Context, store *sqlite.Store) (bool, error) {
	books, err := store.BookStore().ListBooks(ctx, 0, 1)
	if err != nil {
		return false, fmt.Errorf("listing books: %w", err)
	}
	return len(books) == 0, nil
}

// newIndex creates and saves an empty index paired with the store.
func newIndex(ctx context.Context, cfg domain.Config, store *sqlite.Store, path string, opts ...vectorindex.Option) (*vectorindex.Index, error) {
	id := uuid.New()
	index, err := vectorindex.New(cfg.Embedding.Dimensions, append(opts, vectorindex.WithPairingID(id))...)
	if err != nil {
		return nil, err
	}
	if err := index.Save(path); err != nil {
		return nil, fmt.Errorf("saving new index: %w", err)
	}
	if err := store.ProgressStore().SetPairingID(ctx, id.String()); err != nil {
		return nil, fmt.Errorf("recording pairing id: %w", err)
	}
	logger.Info("created vector index %s (%d dimensions)", path, cfg.Embedding.Dimensions)
	return index, nil
}

// forgetBooks drops every indexed book so a reset index and the store
// agree. An interrupted run is closed so the next run starts over.
func forgetBooks(ctx context.Context, store *sqlite.Store) error {
	progress := store.ProgressStore()
	cp, err := progress.LoadCheckpoint(ctx)
	switch {
	case errors.Is(err, domain.ErrNotFound):
	case err != nil:
		return fmt.Errorf("loading checkpoint for reset: %w", err)
	case !cp.Completed:
		cp.Completed = true
		if err := progress.SaveCheckpoint(ctx, cp); err != nil {
			return fmt.Errorf("closing interrupted run: %w", err)
		}
	}

	books := store.BookStore()
	for {
		page, err := books.ListBooks(ctx, 0, 500)
		if err != nil {
			return fmt.Errorf("listing books for reset: %w", err)
		}
		if len(page) == 0 {
			return nil
		}
		for i := range page {
			if _, err := books.DeleteBook(ctx, page[i].ID); err != nil {
				return fmt.Errorf("forgetting book %d: %w", page[i].ID, err)
			}
		}
	}
}

// newEmbedder builds the configured embedding collaborator.
func newEmbedder(cfg domain.EmbeddingConfig) (driven.EmbeddingService, error) {
	switch cfg.Provider {
	case domain.EmbeddingProviderHashing:
		return hashing.NewEmbeddingService(cfg.Dimensions), nil
	case domain.EmbeddingProviderOllama:
		return ollama.NewEmbeddingService(ollama.Config{
			BaseURL:    cfg.BaseURL,
			Model:      cfg.Model,
			Timeout:    cfg.Timeout(),
			Dimensions: cfg.Dimensions,
		}), nil
	case domain.EmbeddingProviderOpenAI:
		svc, err := openai.NewEmbeddingService(openai.Config{
			APIKey:     cfg.APIKey,
			BaseURL:    cfg.BaseURL,
			Model:      cfg.Model,
			Timeout:    cfg.Timeout(),
			Dimensions: cfg.Dimensions,
		})
		if err != nil {
			return nil, fmt.Errorf("configuring embeddings: %w", err)
		}
		return svc, nil
	default:
		return nil, fmt.Errorf("%w: embedding provider %q", domain.ErrInvalidInput, cfg.Provider)
	}
}

// watchedFiles are the catalog files whose changes trigger a run.
func watchedFiles(cfg domain.LibraryConfig) []string {
	if cfg.Catalog == domain.CatalogManifest {
		return []string{cfg.ManifestPath}
	}
	return []string{filepath.Join(cfg.CalibrePath, calibre.MetadataFile)}
}

// lazyCatalog opens the catalog on first use, so commands that never
// read it work while the library is unavailable.
type lazyCatalog struct {
	cfg     domain.LibraryConfig
	formats []string

	mu  sync.Mutex
	cat driven.Catalog
}

func newLazyCatalog(cfg domain.LibraryConfig, registry *extractors.Registry) *lazyCatalog {
	var formats []string
	for _, ext := range calibre.DefaultFormats {
		if registry.Supports(ext) {
			formats = append(formats, ext)
		}
	}
	return &lazyCatalog{cfg: cfg, formats: formats}
}

func (l *lazyCatalog) open() (driven.Catalog, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.cat != nil {
		return l.cat, nil
	}

	var (
		cat driven.Catalog
		err error
	)
	switch l.cfg.Catalog {
	case domain.CatalogManifest:
		cat, err = manifest.Open(l.cfg.ManifestPath)
	default:
		cat, err = calibre.Open(l.cfg.CalibrePath, l.formats)
	}
	if err != nil {
		return nil, fmt.Errorf("opening %s catalog: %w", l.cfg.Catalog, err)
	}
	l.cat = cat
	return cat, nil
}

func (l *lazyCatalog) Name() string {
	if l.cfg.Catalog == domain.CatalogManifest {
		return "manifest:" + l.cfg.ManifestPath
	}
	return "calibre:" + l.cfg.CalibrePath
}

func (l *lazyCatalog) Entries(ctx context.Context) ([]domain.CatalogEntry, error) {
	cat, err := l.open()
	if err != nil {
		return nil, err
	}
	return cat.Entries(ctx)
}

func (l *lazyCatalog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.cat == nil {
		return nil
	}
	err := l.cat.Close()
	l.cat = nil
	return err
}
