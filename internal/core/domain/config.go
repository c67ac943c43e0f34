package domain

import (
	"errors"
	"fmt"
	"path/filepath"
	"time"
)

const unknownDescription = "Unknown"

// EmbeddingProvider identifies the embedding collaborator.
type EmbeddingProvider string

// Available embedding providers.
const (
	// EmbeddingProviderHashing is the local feature hashing embedder.
	EmbeddingProviderHashing EmbeddingProvider = "hashing"

	// EmbeddingProviderOllama is a local Ollama instance.
	EmbeddingProviderOllama EmbeddingProvider = "ollama"

	// EmbeddingProviderOpenAI is the OpenAI embeddings API.
	EmbeddingProviderOpenAI EmbeddingProvider = "openai"
)

// IsValid returns true if the provider is recognised.
func (p EmbeddingProvider) IsValid() bool {
	switch p {
	case EmbeddingProviderHashing, EmbeddingProviderOllama, EmbeddingProviderOpenAI:
		return true
	default:
		return false
	}
}

// RequiresAPIKey returns true if this provider needs an API key.
func (p EmbeddingProvider) RequiresAPIKey() bool {
	return p == EmbeddingProviderOpenAI
}

// Description returns a human-readable description of the provider.
func (p EmbeddingProvider) Description() string {
	switch p {
	case EmbeddingProviderHashing:
		return "Feature hashing (local, offline)"
	case EmbeddingProviderOllama:
		return "Ollama (local)"
	case EmbeddingProviderOpenAI:
		return "OpenAI (cloud)"
	default:
		return unknownDescription
	}
}

// CatalogKind identifies the library catalog collaborator.
type CatalogKind string

// Available catalogs.
const (
	// CatalogCalibre reads a Calibre metadata.db.
	CatalogCalibre CatalogKind = "calibre"

	// CatalogManifest reads a YAML manifest of books.
	CatalogManifest CatalogKind = "manifest"
)

// IsValid returns true if the catalog kind is recognised.
func (k CatalogKind) IsValid() bool {
	return k == CatalogCalibre || k == CatalogManifest
}

// ChangePolicy decides which catalog entries an incremental run re-indexes.
type ChangePolicy string

// Available change policies.
const (
	// ChangePolicyMissing indexes only books not yet in the store.
	ChangePolicyMissing ChangePolicy = "missing"

	// ChangePolicyModTime re-indexes books whose file modification time changed.
	ChangePolicyModTime ChangePolicy = "mtime"

	// ChangePolicyHash re-indexes books whose file content hash changed.
	ChangePolicyHash ChangePolicy = "hash"
)

// IsValid returns true if the policy is recognised.
func (p ChangePolicy) IsValid() bool {
	switch p {
	case ChangePolicyMissing, ChangePolicyModTime, ChangePolicyHash:
		return true
	default:
		return false
	}
}

// ServerConfig configures the MCP HTTP listener.
type ServerConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
}

// LibraryConfig locates the catalog and the engine's own artifacts.
type LibraryConfig struct {
	// Catalog selects the catalog collaborator.
	Catalog CatalogKind `toml:"catalog"`

	// CalibrePath is the Calibre library directory holding metadata.db.
	CalibrePath string `toml:"calibre_path"`

	// ManifestPath is the YAML manifest file.
	ManifestPath string `toml:"manifest_path"`

	// DataDir holds library.db and vectors.idx.
	DataDir string `toml:"data_dir"`
}

// StorePath returns the metadata store file.
func (c LibraryConfig) StorePath() string {
	return filepath.Join(c.DataDir, "library.db")
}

// IndexPath returns the vector index file.
func (c LibraryConfig) IndexPath() string {
	return filepath.Join(c.DataDir, "vectors.idx")
}

// ChunkingConfig configures the chunker.
type ChunkingConfig struct {
	WindowWords  int `toml:"window_words"`
	OverlapWords int `toml:"overlap_words"`
}

// EmbeddingConfig configures the embedding collaborator and gateway.
type EmbeddingConfig struct {
	Provider EmbeddingProvider `toml:"provider"`
	Model    string            `toml:"model"`
	BaseURL  string            `toml:"base_url"`
	APIKey   string            `toml:"api_key"`

	// Dimensions is the fixed vector size.
	Dimensions int `toml:"dimensions"`

	// BatchSize is the maximum texts per collaborator call.
	BatchSize int `toml:"batch_size"`

	// MaxRetries bounds retries of a transient failure.
	MaxRetries int `toml:"max_retries"`

	// TimeoutSeconds bounds a single collaborator call.
	TimeoutSeconds int `toml:"timeout_seconds"`

	// RequestsPerSecond limits collaborator calls. Zero disables limiting.
	RequestsPerSecond float64 `toml:"requests_per_second"`
}

// Timeout returns the collaborator timeout.
func (c EmbeddingConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// IndexConfig configures the indexing pipeline and vector index.
type IndexConfig struct {
	Workers         int          `toml:"workers"`
	CheckpointEvery int          `toml:"checkpoint_every"`
	ChangePolicy    ChangePolicy `toml:"change_policy"`
	IncludeSummary  bool         `toml:"include_summary"`

	// IVFThreshold is the live vector count above which partitions are trained.
	IVFThreshold int `toml:"ivf_threshold"`

	// IVFProbes is the number of partitions scanned per query.
	IVFProbes int `toml:"ivf_probes"`
}

// SearchConfig configures the search engine.
type SearchConfig struct {
	Limit            int     `toml:"limit"`
	MinSimilarity    float64 `toml:"min_similarity"`
	OversampleFactor int     `toml:"oversample_factor"`
	ContextWindow    int     `toml:"context_window"`
	SnippetLanguage  string  `toml:"snippet_language"`
}

// ConversationConfig configures the conversation collaborator.
type ConversationConfig struct {
	BaseURL        string `toml:"base_url"`
	Model          string `toml:"model"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Timeout returns the per-exchange timeout.
func (c ConversationConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// IsConfigured returns true if a conversation model is set.
func (c ConversationConfig) IsConfigured() bool {
	return c.Model != ""
}

// Config is the validated engine configuration.
type Config struct {
	Server       ServerConfig       `toml:"server"`
	Library      LibraryConfig      `toml:"library"`
	Chunking     ChunkingConfig     `toml:"chunking"`
	Embedding    EmbeddingConfig    `toml:"embedding"`
	Index        IndexConfig        `toml:"index"`
	Search       SearchConfig       `toml:"search"`
	Conversation ConversationConfig `toml:"conversation"`
}

// DefaultConfig returns the configuration used when no file exists.
func DefaultConfig() Config {
	return Config{
		Server: ServerConfig{Host: "127.0.0.1", Port: 8765},
		Library: LibraryConfig{
			Catalog: CatalogCalibre,
		},
		Chunking: ChunkingConfig{WindowWords: 500, OverlapWords: 50},
		Embedding: EmbeddingConfig{
			Provider:          EmbeddingProviderHashing,
			Dimensions:        384,
			BatchSize:         32,
			MaxRetries:        3,
			TimeoutSeconds:    60,
			RequestsPerSecond: 0,
		},
		Index: IndexConfig{
			Workers:         4,
			CheckpointEvery: 100,
			ChangePolicy:    ChangePolicyMissing,
			IncludeSummary:  true,
			IVFThreshold:    1_000_000,
			IVFProbes:       8,
		},
		Search: SearchConfig{
			Limit:            10,
			MinSimilarity:    0.3,
			OversampleFactor: 5,
			ContextWindow:    3,
			SnippetLanguage:  "en",
		},
		Conversation: ConversationConfig{
			BaseURL:        "http://localhost:11434",
			TimeoutSeconds: 120,
		},
	}
}

// Validate checks every field and returns all problems joined.
func (c Config) Validate() error {
	var errs []error
	bad := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalidInput}, args...)...))
	}

	if c.Server.Host == "" {
		bad("server.host is empty")
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		bad("server.port %d out of range", c.Server.Port)
	}
	if !c.Library.Catalog.IsValid() {
		bad("library.catalog %q unknown", c.Library.Catalog)
	}
	if c.Chunking.WindowWords < 1 {
		bad("chunking.window_words must be positive")
	}
	if c.Chunking.OverlapWords < 0 || c.Chunking.OverlapWords >= c.Chunking.WindowWords {
		bad("chunking.overlap_words must be within [0, window_words)")
	}
	if !c.Embedding.Provider.IsValid() {
		bad("embedding.provider %q unknown", c.Embedding.Provider)
	}
	if c.Embedding.Provider.RequiresAPIKey() && c.Embedding.APIKey == "" {
		bad("embedding.api_key required for %s", c.Embedding.Provider)
	}
	if c.Embedding.Dimensions < 1 {
		bad("embedding.dimensions must be positive")
	}
	if c.Embedding.BatchSize < 1 {
		bad("embedding.batch_size must be positive")
	}
	if c.Embedding.MaxRetries < 0 {
		bad("embedding.max_retries must not be negative")
	}
	if c.Embedding.TimeoutSeconds < 1 {
		bad("embedding.timeout_seconds must be positive")
	}
	if c.Embedding.RequestsPerSecond < 0 {
		bad("embedding.requests_per_second must not be negative")
	}
	if c.Index.Workers < 1 {
		bad("index.workers must be positive")
	}
	if c.Index.CheckpointEvery < 1 {
		bad("index.checkpoint_every must be positive")
	}
	if !c.Index.ChangePolicy.IsValid() {
		bad("index.change_policy %q unknown", c.Index.ChangePolicy)
	}
	if c.Index.IVFThreshold < 1 || c.Index.IVFProbes < 1 {
		bad("index.ivf_threshold and index.ivf_probes must be positive")
	}
	if c.Search.Limit < 1 {
		bad("search.limit must be at least 1")
	}
	if !(c.Search.MinSimilarity >= 0 && c.Search.MinSimilarity <= 1) {
		bad("search.min_similarity must be within [0, 1]")
	}
	if c.Search.OversampleFactor < 1 {
		bad("search.oversample_factor must be at least 1")
	}
	if c.Search.ContextWindow < 1 {
		bad("search.context_window must be at least 1")
	}
	return errors.Join(errs...)
}
